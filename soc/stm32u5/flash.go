// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package stm32u5

import (
	"errors"
	"fmt"
	"time"

	"github.com/usbarmory/u5-secure-boot/mem"
	"github.com/usbarmory/u5-secure-boot/reg"
)

// FLASH registers
const (
	FLASH_NSKEYR  = 0x08
	FLASH_SECKEYR = 0x0c
	FLASH_OPTKEYR = 0x10

	FLASH_NSSR  = 0x20
	FLASH_SECSR = 0x24

	SR_EOP     = 0
	SR_OPERR   = 1
	SR_PROGERR = 3
	SR_WRPERR  = 4
	SR_PGAERR  = 5
	SR_SIZERR  = 6
	SR_PGSERR  = 7
	SR_OPTWERR = 13
	SR_BSY     = 16

	FLASH_NSCR  = 0x28
	FLASH_SECCR = 0x2c

	CR_PG         = 0
	CR_PER        = 1
	CR_PNB        = 3
	CR_BKER       = 11
	CR_STRT       = 16
	CR_OPTSTRT    = 17
	CR_OBL_LAUNCH = 27
	CR_OPTLOCK    = 30
	CR_LOCK       = 31

	FLASH_OPTR    = 0x40
	OPTR_RDP      = 0
	OPTR_SWAPBANK = 20
	OPTR_DUALBANK = 21
	OPTR_TZEN     = 31

	FLASH_NSBOOTADD0R  = 0x44
	FLASH_NSBOOTADD1R  = 0x48
	FLASH_SECBOOTADD0R = 0x4c
	BOOTADD_ADDR       = 7
	BOOTADD_BOOT_LOCK  = 0

	FLASH_SECWM1R1 = 0x50
	FLASH_SECWM1R2 = 0x54
	FLASH_WRP1AR   = 0x58
	FLASH_WRP1BR   = 0x5c
	FLASH_SECWM2R1 = 0x60
	FLASH_SECWM2R2 = 0x64
	FLASH_WRP2AR   = 0x68
	FLASH_WRP2BR   = 0x6c

	// SECWMxR1, WRPxyR
	AREA_PSTRT    = 0
	AREA_PEND     = 16
	WRP_UNLOCK    = 31
	SECWM_HDPEND  = 16
	SECWM_HDPEN   = 31
	AREA_PAGEMASK = 0x7f

	FLASH_SECHDPCR       = 0xc0
	SECHDPCR_HDP1_ACCDIS = 0
	SECHDPCR_HDP2_ACCDIS = 1

	FLASH_KEY1    = 0x45670123
	FLASH_KEY2    = 0xcdef89ab
	FLASH_OPTKEY1 = 0x08192a3b
	FLASH_OPTKEY2 = 0x4c5d6e7f
)

// SR error flags
const srErrors = 1<<SR_OPERR | 1<<SR_PROGERR | 1<<SR_WRPERR | 1<<SR_PGAERR | 1<<SR_SIZERR | 1<<SR_PGSERR

// Timeout is the default flash operation timeout.
const Timeout = 100 * time.Millisecond

// Flash controller errors
var (
	ErrLocked    = errors.New("flash controller locked")
	ErrBusy      = errors.New("flash controller busy")
	ErrOperation = errors.New("flash operation error")
)

// Flash represents the embedded flash memory controller.
type Flash struct {
	// Timeout is the maximum duration of a single operation
	Timeout time.Duration

	bus  reg.Bus
	base reg.Register
}

// NewFlash returns the flash controller at the given base address.
func NewFlash(bus reg.Bus, base uint32) *Flash {
	return &Flash{
		Timeout: Timeout,
		bus:     bus,
		base:    reg.At(bus, base),
	}
}

func (hw *Flash) r(off uint32) reg.Register {
	return hw.base.Offset(off)
}

func (hw *Flash) wait(sr reg.Register) (err error) {
	if !sr.Wait(SR_BSY, 1, 0, hw.Timeout) {
		return ErrBusy
	}

	if errs := sr.Read() & srErrors; errs != 0 {
		// write-one-to-clear
		sr.Write(errs)
		return fmt.Errorf("%w (SR %#x)", ErrOperation, errs)
	}

	return
}

func (hw *Flash) unlock(cr reg.Register, keyr reg.Register) error {
	if !cr.IsSet(CR_LOCK) {
		return nil
	}

	keyr.Write(FLASH_KEY1)
	keyr.Write(FLASH_KEY2)

	if cr.IsSet(CR_LOCK) {
		return ErrLocked
	}

	return nil
}

// Unlock unlocks the secure flash control register.
func (hw *Flash) Unlock() error {
	return hw.unlock(hw.r(FLASH_SECCR), hw.r(FLASH_SECKEYR))
}

// Lock locks the secure flash control register.
func (hw *Flash) Lock() {
	hw.r(FLASH_SECCR).Set(CR_LOCK)
}

// ErasePage erases a flash page of a bank using the secure control
// register.
func (hw *Flash) ErasePage(bank int, page uint32) (err error) {
	cr := hw.r(FLASH_SECCR)
	sr := hw.r(FLASH_SECSR)

	if page >= mem.PagesPerBank || bank < 0 || bank > 1 {
		return fmt.Errorf("invalid page %d:%d", bank, page)
	}

	if err = hw.wait(sr); err != nil {
		return
	}

	if err = hw.Unlock(); err != nil {
		return
	}

	val := cr.Read()
	val |= 1 << CR_PER
	val &^= AREA_PAGEMASK << CR_PNB
	val |= page << CR_PNB
	val &^= 1 << CR_BKER
	val |= uint32(bank) << CR_BKER
	cr.Write(val)

	cr.Set(CR_STRT)
	err = hw.wait(sr)
	cr.Clear(CR_PER)

	return
}

// Program programs a quad-word at a flash offset through its secure alias.
func (hw *Flash) Program(off uint32, words [4]uint32) (err error) {
	cr := hw.r(FLASH_SECCR)
	sr := hw.r(FLASH_SECSR)

	if off%mem.ProgramUnit != 0 || off >= mem.FlashSize {
		return fmt.Errorf("invalid program offset %#x", off)
	}

	if err = hw.wait(sr); err != nil {
		return
	}

	if err = hw.Unlock(); err != nil {
		return
	}

	cr.Set(CR_PG)

	for i, w := range words {
		hw.bus.Write32(mem.FlashS(off)+uint32(i)*4, w)
	}

	err = hw.wait(sr)
	cr.Clear(CR_PG)

	return
}

// OptionBytes returns the current option byte configuration.
func (hw *Flash) OptionBytes() (ob OptionBytes) {
	ob.decode(hw.r)
	return
}

// ProgramOptionBytes programs the option bytes and launches their reload,
// which resets the device.
//
// The sequence is: unlock the control register and the option lock, write
// all option registers, start programming (OPTSTRT), wait completion and
// launch the reload (OBL_LAUNCH). On hardware this function does not return
// on success.
func (hw *Flash) ProgramOptionBytes(ob *OptionBytes) (err error) {
	cr := hw.r(FLASH_NSCR)
	sr := hw.r(FLASH_NSSR)
	optkeyr := hw.r(FLASH_OPTKEYR)

	if err = hw.wait(sr); err != nil {
		return
	}

	if err = hw.unlock(cr, hw.r(FLASH_NSKEYR)); err != nil {
		return
	}

	if cr.IsSet(CR_OPTLOCK) {
		optkeyr.Write(FLASH_OPTKEY1)
		optkeyr.Write(FLASH_OPTKEY2)

		if cr.IsSet(CR_OPTLOCK) {
			return fmt.Errorf("option bytes %w", ErrLocked)
		}
	}

	for _, r := range ob.encode() {
		hw.r(r.off).Write(r.val)
	}

	cr.Set(CR_OPTSTRT)

	if err = hw.wait(sr); err != nil {
		return
	}

	if sr.IsSet(SR_OPTWERR) {
		sr.Write(1 << SR_OPTWERR)
		return fmt.Errorf("%w (OPTWERR)", ErrOperation)
	}

	cr.Set(CR_OBL_LAUNCH)

	return
}

// HDPAccessDisable disables access to the hide protected area of a bank
// until the next reset.
func (hw *Flash) HDPAccessDisable(bank int) error {
	r := hw.r(FLASH_SECHDPCR)
	r.Set(SECHDPCR_HDP1_ACCDIS + bank)

	if !r.IsSet(SECHDPCR_HDP1_ACCDIS + bank) {
		return fmt.Errorf("HDP%d access disable readback mismatch", bank+1)
	}

	return nil
}

// HDPAccessDisabled returns whether access to the hide protected area of a
// bank is disabled.
func (hw *Flash) HDPAccessDisabled(bank int) bool {
	return hw.r(FLASH_SECHDPCR).IsSet(SECHDPCR_HDP1_ACCDIS + bank)
}
