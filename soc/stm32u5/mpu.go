// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package stm32u5

import (
	"fmt"

	"github.com/usbarmory/u5-secure-boot/reg"
)

// MPU registers (ARMv8-M PMSAv8)
const (
	MPU_TYPE         = 0x00
	MPU_TYPE_DREGION = 8

	MPU_CTRL            = 0x04
	MPU_CTRL_PRIVDEFENA = 2
	MPU_CTRL_HFNMIENA   = 1
	MPU_CTRL_ENABLE     = 0

	MPU_RNR = 0x08

	MPU_RBAR    = 0x0c
	MPU_RBAR_SH = 3
	MPU_RBAR_AP = 1
	MPU_RBAR_XN = 0

	MPU_RLAR          = 0x10
	MPU_RLAR_ATTRINDX = 1
	MPU_RLAR_EN       = 0

	MPU_MAIR0 = 0x30
	MPU_MAIR1 = 0x34

	// MPU regions have 32 byte granularity
	MPU_ALIGN = 32
)

// Access permissions (RBAR.AP)
const (
	AP_RW_PRIV = 0b00
	AP_RW_ANY  = 0b01
	AP_RO_PRIV = 0b10
	AP_RO_ANY  = 0b11
)

// Memory attributes (MAIR)
const (
	MAIR_DEVICE_nGnRnE = 0x00
	MAIR_NORMAL_NC     = 0x44
	MAIR_NORMAL_WB     = 0xff
)

// Memory attribute indices, as programmed by SetDefaultAttributes.
const (
	ATTR_NORMAL = 0
	ATTR_DEVICE = 1
	ATTR_NC     = 2
)

// MPU represents a Memory Protection Unit instance.
type MPU struct {
	// Secure is true for the secure MPU instance
	Secure bool

	typ   reg.Register
	ctrl  reg.Register
	rnr   reg.Register
	rbar  reg.Register
	rlar  reg.Register
	mair0 reg.Register
	mair1 reg.Register
}

// MPURegion represents an MPU region, End is exclusive.
type MPURegion struct {
	Start     uint32
	End       uint32
	AP        uint32
	XN        bool
	Shareable uint32
	AttrIndex uint32
	Enabled   bool
}

// ReadOnly returns whether the region denies writes.
func (r MPURegion) ReadOnly() bool {
	return r.AP&0b10 != 0
}

// Unprivileged returns whether the region grants unprivileged access.
func (r MPURegion) Unprivileged() bool {
	return r.AP&0b01 != 0
}

func (r MPURegion) String() string {
	if !r.Enabled {
		return "off"
	}

	perm := []byte("rwx")

	if r.ReadOnly() {
		perm[1] = '-'
	}

	if r.XN {
		perm[2] = '-'
	}

	priv := "priv"

	if r.Unprivileged() {
		priv = "any"
	}

	return fmt.Sprintf("%#.8x-%#.8x %s %-4s attr:%d", r.Start, r.End, perm, priv, r.AttrIndex)
}

// NewMPU returns the MPU instance at the given base address.
func NewMPU(bus reg.Bus, base uint32, secure bool) *MPU {
	b := reg.At(bus, base)

	return &MPU{
		Secure: secure,
		typ:    b.Offset(MPU_TYPE),
		ctrl:   b.Offset(MPU_CTRL),
		rnr:    b.Offset(MPU_RNR),
		rbar:   b.Offset(MPU_RBAR),
		rlar:   b.Offset(MPU_RLAR),
		mair0:  b.Offset(MPU_MAIR0),
		mair1:  b.Offset(MPU_MAIR1),
	}
}

// Regions returns the number of implemented MPU regions.
func (hw *MPU) Regions() int {
	return int(hw.typ.Get(MPU_TYPE_DREGION, 0xff))
}

// Enable enables the MPU, privDefault enables the default memory map as
// background region for privileged accesses.
func (hw *MPU) Enable(privDefault bool) error {
	ctrl := uint32(1 << MPU_CTRL_ENABLE)

	if privDefault {
		ctrl |= 1 << MPU_CTRL_PRIVDEFENA
	}

	if !hw.ctrl.Verify(ctrl) {
		return fmt.Errorf("MPU_CTRL readback mismatch (%#x)", hw.ctrl.Read())
	}

	return nil
}

// Disable disables the MPU.
func (hw *MPU) Disable() {
	hw.ctrl.Write(0)
}

// Enabled returns the MPU enable and PRIVDEFENA state.
func (hw *MPU) Enabled() (enabled bool, privDefault bool) {
	return hw.ctrl.IsSet(MPU_CTRL_ENABLE), hw.ctrl.IsSet(MPU_CTRL_PRIVDEFENA)
}

// SetDefaultAttributes programs the memory attribute indirection registers
// with the ATTR_* indices.
func (hw *MPU) SetDefaultAttributes() error {
	mair := uint32(MAIR_NORMAL_WB)<<(ATTR_NORMAL*8) |
		uint32(MAIR_DEVICE_nGnRnE)<<(ATTR_DEVICE*8) |
		uint32(MAIR_NORMAL_NC)<<(ATTR_NC*8)

	if !hw.mair0.Verify(mair) {
		return fmt.Errorf("MPU_MAIR0 readback mismatch (%#x)", hw.mair0.Read())
	}

	return nil
}

// Attribute returns the MAIR attribute for an index.
func (hw *MPU) Attribute(idx uint32) uint8 {
	mair := hw.mair0

	if idx >= 4 {
		mair = hw.mair1
		idx -= 4
	}

	return uint8(mair.Get(int(idx*8), 0xff))
}

// SetRegion configures an MPU region.
func (hw *MPU) SetRegion(n int, r MPURegion) error {
	if n < 0 || n >= hw.Regions() {
		return fmt.Errorf("invalid MPU region %d", n)
	}

	if r.Start%MPU_ALIGN != 0 || r.End%MPU_ALIGN != 0 || r.End <= r.Start {
		return fmt.Errorf("invalid MPU region %d bounds %#x-%#x", n, r.Start, r.End)
	}

	rbar := r.Start
	rbar |= (r.Shareable & 0b11) << MPU_RBAR_SH
	rbar |= (r.AP & 0b11) << MPU_RBAR_AP

	if r.XN {
		rbar |= 1 << MPU_RBAR_XN
	}

	rlar := (r.End - 1) &^ (MPU_ALIGN - 1)
	rlar |= (r.AttrIndex & 0b111) << MPU_RLAR_ATTRINDX
	rlar |= 1 << MPU_RLAR_EN

	hw.rnr.Write(uint32(n))

	if !hw.rbar.Verify(rbar) || !hw.rlar.Verify(rlar) {
		return fmt.Errorf("MPU region %d readback mismatch", n)
	}

	return nil
}

// ClearRegion disables an MPU region.
func (hw *MPU) ClearRegion(n int) {
	hw.rnr.Write(uint32(n))
	hw.rlar.Write(0)
	hw.rbar.Write(0)
}

// Region returns the configuration of an MPU region.
func (hw *MPU) Region(n int) (r MPURegion) {
	hw.rnr.Write(uint32(n))

	rbar := hw.rbar.Read()
	rlar := hw.rlar.Read()

	r.Start = rbar &^ (MPU_ALIGN - 1)
	r.End = (rlar | (MPU_ALIGN - 1)) + 1
	r.Shareable = (rbar >> MPU_RBAR_SH) & 0b11
	r.AP = (rbar >> MPU_RBAR_AP) & 0b11
	r.XN = rbar&(1<<MPU_RBAR_XN) != 0
	r.AttrIndex = (rlar >> MPU_RLAR_ATTRINDX) & 0b111
	r.Enabled = rlar&(1<<MPU_RLAR_EN) != 0

	return
}

// Permissions represents the access rights resulting from an MPU lookup.
type Permissions struct {
	Read  bool
	Write bool
	Exec  bool
}

// Lookup returns the permissions granted by the MPU for a privileged or
// unprivileged access to an address.
func (hw *MPU) Lookup(addr uint32, privileged bool) (p Permissions) {
	enabled, privDefault := hw.Enabled()

	if !enabled {
		return Permissions{true, true, true}
	}

	for i := 0; i < hw.Regions(); i++ {
		r := hw.Region(i)

		if !r.Enabled || addr < r.Start || addr-r.Start >= r.End-r.Start {
			continue
		}

		if !privileged && !r.Unprivileged() {
			return
		}

		p.Read = true
		p.Write = !r.ReadOnly()
		p.Exec = !r.XN

		return
	}

	if privileged && privDefault {
		return Permissions{true, true, true}
	}

	return
}
