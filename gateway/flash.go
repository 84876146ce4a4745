// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gateway

import (
	"fmt"

	"github.com/usbarmory/u5-secure-boot/mem"
)

// window converts a flash address to an offset, checking that the range
// falls within the non-secure data window.
func (g *Gateway) window(addr uint32, size uint32) (off uint32, err error) {
	off, ok := mem.FlashOffset(addr)

	if !ok || !g.Layout.NSDataWindow.ContainsRange(off, size) {
		return 0, fmt.Errorf("%w: %#.8x+%#x outside non-secure data window", ErrInvalidParameter, addr, size)
	}

	return
}

// FlashProgramData programs data within the non-secure data window, the
// address and length must be aligned to the flash program unit.
func (g *Gateway) FlashProgramData(addr uint32, data []byte) (err error) {
	g.Lock()
	defer g.Unlock()

	size := uint32(len(data))

	if uint64(len(data)) != uint64(size) {
		return ErrInvalidParameter
	}

	off, err := g.window(addr, size)

	if err != nil {
		return
	}

	unit := g.Flash.GetInfo().ProgramUnit

	if unit == 0 || off%unit != 0 || size%unit != 0 {
		return fmt.Errorf("%w: %#.8x+%#x unaligned", ErrInvalidParameter, addr, size)
	}

	return g.Flash.ProgramData(off, data)
}

// FlashEraseSector erases a sector within the non-secure data window.
func (g *Gateway) FlashEraseSector(addr uint32) (err error) {
	g.Lock()
	defer g.Unlock()

	sector := g.Flash.GetInfo().SectorSize

	if sector == 0 {
		return ErrInvalidParameter
	}

	off, err := g.window(addr, sector)

	if err != nil {
		return
	}

	if off%sector != 0 {
		return fmt.Errorf("%w: %#.8x not sector aligned", ErrInvalidParameter, addr)
	}

	return g.Flash.EraseSector(off)
}
