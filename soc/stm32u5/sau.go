// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package stm32u5

import (
	"fmt"

	"github.com/usbarmory/u5-secure-boot/reg"
)

// SAU registers
const (
	SAU_CTRL        = 0x00
	SAU_CTRL_ALLNS  = 1
	SAU_CTRL_ENABLE = 0

	SAU_TYPE         = 0x04
	SAU_TYPE_SREGION = 0

	SAU_RNR = 0x08

	SAU_RBAR = 0x0c

	SAU_RLAR        = 0x10
	SAU_RLAR_NSC    = 1
	SAU_RLAR_ENABLE = 0

	SAU_SFSR = 0x14
	SAU_SFAR = 0x18

	// SAU regions have 32 byte granularity
	SAU_ALIGN = 32
)

// SecureFault status bits
const (
	SFSR_INVEP     = 0
	SFSR_INVIS     = 1
	SFSR_INVER     = 2
	SFSR_AUVIOL    = 3
	SFSR_INVTRAN   = 4
	SFSR_LSPERR    = 5
	SFSR_SFARVALID = 6
	SFSR_LSERR     = 7
)

// SAU represents the Security Attribution Unit.
type SAU struct {
	ctrl reg.Register
	typ  reg.Register
	rnr  reg.Register
	rbar reg.Register
	rlar reg.Register
	sfsr reg.Register
	sfar reg.Register
}

// SAURegion represents an SAU region, End is exclusive.
type SAURegion struct {
	Start   uint32
	End     uint32
	NSC     bool
	Enabled bool
}

func (r SAURegion) String() string {
	kind := "NS "

	if r.NSC {
		kind = "NSC"
	}

	if !r.Enabled {
		kind = "off"
	}

	return fmt.Sprintf("%#.8x-%#.8x %s", r.Start, r.End, kind)
}

// NewSAU returns the SAU instance at the given base address.
func NewSAU(bus reg.Bus, base uint32) *SAU {
	b := reg.At(bus, base)

	return &SAU{
		ctrl: b.Offset(SAU_CTRL),
		typ:  b.Offset(SAU_TYPE),
		rnr:  b.Offset(SAU_RNR),
		rbar: b.Offset(SAU_RBAR),
		rlar: b.Offset(SAU_RLAR),
		sfsr: b.Offset(SAU_SFSR),
		sfar: b.Offset(SAU_SFAR),
	}
}

// Regions returns the number of implemented SAU regions.
func (hw *SAU) Regions() int {
	return int(hw.typ.Get(SAU_TYPE_SREGION, 0xff))
}

// Enable enables the SAU, allNS controls the attribution of memory when the
// SAU is disabled and must be false to keep a background-secure policy.
func (hw *SAU) Enable(allNS bool) error {
	var ctrl uint32

	if allNS {
		ctrl |= 1 << SAU_CTRL_ALLNS
	}

	ctrl |= 1 << SAU_CTRL_ENABLE

	if !hw.ctrl.Verify(ctrl) {
		return fmt.Errorf("SAU_CTRL readback mismatch (%#x)", hw.ctrl.Read())
	}

	return nil
}

// Disable disables the SAU, leaving all memory secure.
func (hw *SAU) Disable() {
	hw.ctrl.Write(0)
}

// Enabled returns the SAU enable and ALLNS state.
func (hw *SAU) Enabled() (enabled bool, allNS bool) {
	return hw.ctrl.IsSet(SAU_CTRL_ENABLE), hw.ctrl.IsSet(SAU_CTRL_ALLNS)
}

// SetRegion configures an SAU region as non-secure, or non-secure callable,
// covering [start, end).
func (hw *SAU) SetRegion(n int, start uint32, end uint32, nsc bool) error {
	if n < 0 || n >= hw.Regions() {
		return fmt.Errorf("invalid SAU region %d", n)
	}

	if start%SAU_ALIGN != 0 || end%SAU_ALIGN != 0 || end <= start {
		return fmt.Errorf("invalid SAU region %d bounds %#x-%#x", n, start, end)
	}

	rlar := (end - 1) &^ (SAU_ALIGN - 1)

	if nsc {
		rlar |= 1 << SAU_RLAR_NSC
	}

	rlar |= 1 << SAU_RLAR_ENABLE

	hw.rnr.Write(uint32(n))

	if !hw.rbar.Verify(start) || !hw.rlar.Verify(rlar) {
		return fmt.Errorf("SAU region %d readback mismatch", n)
	}

	return nil
}

// ClearRegion disables an SAU region.
func (hw *SAU) ClearRegion(n int) {
	hw.rnr.Write(uint32(n))
	hw.rlar.Write(0)
	hw.rbar.Write(0)
}

// Region returns the configuration of an SAU region.
func (hw *SAU) Region(n int) (r SAURegion) {
	hw.rnr.Write(uint32(n))

	rbar := hw.rbar.Read()
	rlar := hw.rlar.Read()

	r.Start = rbar &^ (SAU_ALIGN - 1)
	r.End = (rlar | (SAU_ALIGN - 1)) + 1
	r.NSC = rlar&(1<<SAU_RLAR_NSC) != 0
	r.Enabled = rlar&(1<<SAU_RLAR_ENABLE) != 0

	return
}

// Attribution returns the security attribution of an address as set by the
// SAU, it is secure unless an enabled region matches.
func (hw *SAU) Attribution(addr uint32) (secure bool, nsc bool) {
	enabled, allNS := hw.Enabled()

	if !enabled {
		return !allNS, false
	}

	for i := 0; i < hw.Regions(); i++ {
		r := hw.Region(i)

		if !r.Enabled || addr < r.Start || addr-r.Start >= r.End-r.Start {
			continue
		}

		if r.NSC {
			return true, true
		}

		return false, false
	}

	return true, false
}

// Fault returns the SecureFault status and, when valid, the faulting address.
func (hw *SAU) Fault() (sfsr uint32, sfar uint32, valid bool) {
	sfsr = hw.sfsr.Read()
	valid = sfsr&(1<<SFSR_SFARVALID) != 0

	if valid {
		sfar = hw.sfar.Read()
	}

	return
}

// ClearFault clears the SecureFault status (write-one-to-clear).
func (hw *SAU) ClearFault(sfsr uint32) {
	hw.sfsr.Write(sfsr)
}
