// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package boot

import (
	"errors"
	"fmt"
	"log"

	"github.com/usbarmory/u5-secure-boot/image"
	"github.com/usbarmory/u5-secure-boot/mem"
)

// ClearRAM zeroes the bootloader RAM area, word by word.
func (p *Platform) ClearRAM() {
	r := p.Layout.BootData

	for i := uint32(0); i < r.Size/4; i++ {
		p.SoC.Bus.Write32(r.Start+i*4, 0)
	}
}

// nextRegions returns the code and RAM windows of the next image.
func (p *Platform) nextRegions() (code mem.Region, data mem.Region, err error) {
	l := p.Layout

	if l.Next == mem.SecureImage {
		if l.SecureCode == nil {
			return code, data, errors.New("missing secure image code region")
		}

		code = *l.SecureCode
		data, err = secureDataWindow(l)

		return
	}

	var foundCode, foundData bool

	for _, r := range l.NonSecure {
		switch {
		case r.Attr&(mem.Secure|mem.Device) != 0:
			continue
		case r.Attr&mem.Exec != 0 && !foundCode:
			code, foundCode = r, true
		case sram(r) && r.Attr&mem.Write != 0 && !foundData:
			data, foundData = r, true
		}
	}

	if !foundCode || !foundData {
		err = errors.New("missing non-secure image regions")
	}

	return
}

// Handoff clears the bootloader RAM and jumps to the next image reset
// handler, after validating its vector table against the image code and
// RAM windows.
//
// It must follow UpdateProtections and, on hardware, does not return.
func (p *Platform) Handoff() (err error) {
	if err = p.transition(stateUpdated, stateHandoff); err != nil {
		return
	}

	slot, err := p.Layout.Slot(p.Layout.Next, mem.Primary)

	if err != nil {
		return p.Fatal(err)
	}

	code, data, err := p.nextRegions()

	if err != nil {
		return p.Fatal(err)
	}

	p.ClearRAM()

	img, err := image.Load(p.Flash, slot)

	if err != nil {
		return p.Fatal(fmt.Errorf("%w: %v", ErrImage, err))
	}

	sp, pc := img.VectorTable()

	// initial stack pointer is the top of the stack, thumb bit is set
	switch {
	case sp < data.Start || sp > data.End():
		return p.Fatal(fmt.Errorf("%w: stack pointer %#.8x outside %s", ErrImage, sp, data.Name))
	case !code.Contains(pc &^ 1):
		return p.Fatal(fmt.Errorf("%w: reset handler %#.8x outside %s", ErrImage, pc, code.Name))
	}

	if p.Layout.Next == mem.SecureImage {
		p.SoC.SCB.SetVectorTable(mem.FlashS(slot.Offset) + uint32(img.Header.HeaderSize))
	}

	log.Printf("BL2 jumping to %s image (sp:%#.8x pc:%#.8x)", p.Layout.Next, sp, pc)

	return p.Intrinsics.Jump(sp, pc)
}
