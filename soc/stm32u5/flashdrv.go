// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package stm32u5

import (
	"encoding/binary"
	"fmt"

	"github.com/usbarmory/u5-secure-boot/flash"
	"github.com/usbarmory/u5-secure-boot/mem"
)

// FlashDriver implements flash.Driver on the embedded flash through its
// secure alias.
type FlashDriver struct {
	Flash *Flash

	initialized bool
}

// Info is the embedded flash geometry.
var Info = flash.Info{
	Size:        mem.FlashSize,
	SectorSize:  mem.PageSize,
	ProgramUnit: mem.ProgramUnit,
	ErasedValue: 0xff,
}

// Initialize implements flash.Driver.
func (d *FlashDriver) Initialize() (err error) {
	if err = d.Flash.Unlock(); err != nil {
		return
	}

	d.initialized = true

	return
}

// Uninitialize implements flash.Driver.
func (d *FlashDriver) Uninitialize() error {
	d.Flash.Lock()
	d.initialized = false

	return nil
}

// GetInfo implements flash.Driver.
func (d *FlashDriver) GetInfo() flash.Info {
	return Info
}

// ReadData implements flash.Driver.
func (d *FlashDriver) ReadData(off uint32, buf []byte) (err error) {
	if !d.initialized {
		return flash.ErrNotInitialized
	}

	if err = flash.CheckRange(Info, off, len(buf), 0); err != nil {
		return
	}

	var word [4]byte

	for i := range buf {
		addr := off + uint32(i)

		if i == 0 || addr%4 == 0 {
			binary.LittleEndian.PutUint32(word[:], d.Flash.bus.Read32(mem.FlashS(addr&^3)))
		}

		buf[i] = word[addr%4]
	}

	return
}

// ProgramData implements flash.Driver.
func (d *FlashDriver) ProgramData(off uint32, data []byte) (err error) {
	if !d.initialized {
		return flash.ErrNotInitialized
	}

	if err = flash.CheckRange(Info, off, len(data), Info.ProgramUnit); err != nil {
		return
	}

	for i := 0; i < len(data); i += mem.ProgramUnit {
		var words [4]uint32

		for j := range words {
			words[j] = binary.LittleEndian.Uint32(data[i+j*4:])
		}

		if err = d.Flash.Program(off+uint32(i), words); err != nil {
			return fmt.Errorf("%w at %#x: %v", flash.ErrFault, off+uint32(i), err)
		}
	}

	return
}

// EraseSector implements flash.Driver.
func (d *FlashDriver) EraseSector(off uint32) (err error) {
	if !d.initialized {
		return flash.ErrNotInitialized
	}

	if err = flash.CheckRange(Info, off, int(Info.SectorSize), Info.SectorSize); err != nil {
		return
	}

	if err = d.Flash.ErasePage(mem.Bank(off), mem.Page(off)); err != nil {
		return fmt.Errorf("%w at %#x: %v", flash.ErrFault, off, err)
	}

	return
}
