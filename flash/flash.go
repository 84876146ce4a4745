// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package flash defines the flash driver interface consumed by image slot
// management, the non-secure callable gateway and the boot flow.
//
// Addresses are always offsets from the flash base.
package flash

import (
	"errors"
	"fmt"
)

// Driver errors
var (
	ErrNotInitialized = errors.New("driver not initialized")
	ErrRange          = errors.New("address out of range")
	ErrAlignment      = errors.New("unaligned access")
	ErrNotErased      = errors.New("programming over non-erased data")
	ErrFault          = errors.New("flash operation failed")
)

// Info represents the flash geometry.
type Info struct {
	// Size is the total flash size
	Size uint32
	// SectorSize is the erase granularity
	SectorSize uint32
	// ProgramUnit is the programming granularity
	ProgramUnit uint32
	// ErasedValue is the byte value of erased flash
	ErasedValue byte
}

// Driver represents a flash device.
type Driver interface {
	// Initialize prepares the device for use.
	Initialize() error
	// Uninitialize releases the device.
	Uninitialize() error
	// ReadData reads len(buf) bytes at the given offset.
	ReadData(off uint32, buf []byte) error
	// ProgramData programs data at the given offset, both must be aligned
	// to the program unit.
	ProgramData(off uint32, data []byte) error
	// EraseSector erases the sector at the given (sector aligned) offset.
	EraseSector(off uint32) error
	// GetInfo returns the device geometry.
	GetInfo() Info
}

// CheckRange validates an access against the device geometry, unit is the
// required alignment for both offset and length (0 for none).
func CheckRange(info Info, off uint32, size int, unit uint32) error {
	if size < 0 || off > info.Size || uint32(size) > info.Size-off {
		return fmt.Errorf("%w (%#x+%#x)", ErrRange, off, size)
	}

	if unit != 0 && (off%unit != 0 || uint32(size)%unit != 0) {
		return fmt.Errorf("%w (%#x+%#x)", ErrAlignment, off, size)
	}

	return nil
}

// Erased returns whether a buffer only holds the erased value.
func Erased(buf []byte, erased byte) bool {
	for _, b := range buf {
		if b != erased {
			return false
		}
	}

	return true
}

// Read is a convenience wrapper returning size bytes read at the given
// offset.
func Read(d Driver, off uint32, size int) (buf []byte, err error) {
	buf = make([]byte, size)

	if err = d.ReadData(off, buf); err != nil {
		return nil, err
	}

	return
}

// EraseRange erases all sectors covering [off, off+size).
func EraseRange(d Driver, off uint32, size uint32) (err error) {
	info := d.GetInfo()

	if info.SectorSize == 0 {
		return ErrNotInitialized
	}

	start := off - off%info.SectorSize

	for addr := start; addr < off+size; addr += info.SectorSize {
		if err = d.EraseSector(addr); err != nil {
			return fmt.Errorf("erase %#x: %w", addr, err)
		}
	}

	return
}
