// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm
// +build tamago,arm

package gotee

import (
	"bytes"
	"fmt"
	"sync"

	usbarmory "github.com/usbarmory/tamago/board/usbarmory/mk2"
	"github.com/usbarmory/tamago/soc/nxp/usdhc"

	"github.com/usbarmory/u5-secure-boot/flash"
	"github.com/usbarmory/u5-secure-boot/soc/stm32u5"
)

// EMMCOffset is the byte offset of the flash area on the eMMC.
const EMMCOffset = 0x10000000

// EMMC implements flash.Driver on an area of the board eMMC, with the
// STM32U5 flash geometry and programming rules.
type EMMC struct {
	sync.Mutex

	// Card is the eMMC controller
	Card *usdhc.USDHC
	// Offset is the byte offset of the flash area
	Offset int64

	info        flash.Info
	blockSize   int
	initialized bool
}

// NewEMMC returns a flash device on the USB armory Mk II eMMC.
func NewEMMC() *EMMC {
	return &EMMC{
		Card:   usbarmory.MMC,
		Offset: EMMCOffset,
		info:   stm32u5.Info,
	}
}

// Initialize implements flash.Driver, it is a no-op on an initialized
// device.
func (d *EMMC) Initialize() (err error) {
	d.Lock()
	defer d.Unlock()

	if d.initialized {
		return
	}

	if err = d.Card.Detect(); err != nil {
		return
	}

	card := d.Card.Info()

	if card.BlockSize == 0 || d.Offset%int64(card.BlockSize) != 0 {
		return fmt.Errorf("invalid eMMC block size %d", card.BlockSize)
	}

	if d.Offset+int64(d.info.Size) > int64(card.Blocks)*int64(card.BlockSize) {
		return fmt.Errorf("eMMC too small for flash area")
	}

	d.blockSize = card.BlockSize
	d.initialized = true

	return
}

// Uninitialize implements flash.Driver.
func (d *EMMC) Uninitialize() error {
	d.Lock()
	defer d.Unlock()

	if !d.initialized {
		return flash.ErrNotInitialized
	}

	d.initialized = false

	return nil
}

// GetInfo implements flash.Driver.
func (d *EMMC) GetInfo() flash.Info {
	return d.info
}

// blocks returns the blocks covering [off, off+size) and the position of
// off within them.
func (d *EMMC) blocks(off uint32, size int) (lba int, buf []byte, skip int) {
	start := d.Offset + int64(off)
	first := start / int64(d.blockSize)
	last := (start + int64(size) - 1) / int64(d.blockSize)

	return int(first), make([]byte, int(last-first+1)*d.blockSize), int(start - first*int64(d.blockSize))
}

func (d *EMMC) read(off uint32, size int) (lba int, buf []byte, skip int, err error) {
	lba, buf, skip = d.blocks(off, size)
	err = d.Card.ReadBlocks(lba, buf)

	return
}

// ReadData implements flash.Driver.
func (d *EMMC) ReadData(off uint32, buf []byte) (err error) {
	d.Lock()
	defer d.Unlock()

	if !d.initialized {
		return flash.ErrNotInitialized
	}

	if err = flash.CheckRange(d.info, off, len(buf), 0); err != nil || len(buf) == 0 {
		return
	}

	_, blocks, skip, err := d.read(off, len(buf))

	if err != nil {
		return fmt.Errorf("%w: %v", flash.ErrFault, err)
	}

	copy(buf, blocks[skip:])

	return
}

// ProgramData implements flash.Driver.
func (d *EMMC) ProgramData(off uint32, data []byte) (err error) {
	d.Lock()
	defer d.Unlock()

	if !d.initialized {
		return flash.ErrNotInitialized
	}

	if err = flash.CheckRange(d.info, off, len(data), d.info.ProgramUnit); err != nil || len(data) == 0 {
		return
	}

	lba, blocks, skip, err := d.read(off, len(data))

	if err != nil {
		return fmt.Errorf("%w: %v", flash.ErrFault, err)
	}

	if !flash.Erased(blocks[skip:skip+len(data)], d.info.ErasedValue) {
		return flash.ErrNotErased
	}

	copy(blocks[skip:], data)

	if err = d.Card.WriteBlocks(lba, blocks); err != nil {
		return fmt.Errorf("%w: %v", flash.ErrFault, err)
	}

	return
}

// EraseSector implements flash.Driver.
func (d *EMMC) EraseSector(off uint32) (err error) {
	d.Lock()
	defer d.Unlock()

	if !d.initialized {
		return flash.ErrNotInitialized
	}

	if err = flash.CheckRange(d.info, off, int(d.info.SectorSize), d.info.SectorSize); err != nil {
		return
	}

	lba, blocks, skip := d.blocks(off, int(d.info.SectorSize))
	erased := bytes.Repeat([]byte{d.info.ErasedValue}, int(d.info.SectorSize))

	if skip != 0 || len(blocks) != len(erased) {
		if err = d.Card.ReadBlocks(lba, blocks); err != nil {
			return fmt.Errorf("%w: %v", flash.ErrFault, err)
		}
	}

	copy(blocks[skip:], erased)

	if err = d.Card.WriteBlocks(lba, blocks); err != nil {
		return fmt.Errorf("%w: %v", flash.ErrFault, err)
	}

	return
}
