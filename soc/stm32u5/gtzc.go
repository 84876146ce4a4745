// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package stm32u5

import (
	"fmt"

	"github.com/usbarmory/u5-secure-boot/mem"
	"github.com/usbarmory/u5-secure-boot/reg"
)

// GTZC TrustZone security controller registers
const (
	TZSC_CR        = 0x00
	TZSC_SECCFGR1  = 0x10
	TZSC_PRIVCFGR1 = 0x20

	TZSC_REGS = 3
)

// GTZC TrustZone illegal access controller registers
const (
	TZIC_IER1 = 0x00
	TZIC_SR1  = 0x10
	TZIC_FCR1 = 0x20

	TZIC_REGS = 4
)

// GTZC block-based memory protection controller registers
const (
	MPCBB_CR             = 0x00
	MPCBB_CR_SRWILADIS   = 31
	MPCBB_CR_INVSECSTATE = 30
	MPCBB_CR_GLOCK       = 0

	MPCBB_SECCFGR  = 0x100
	MPCBB_PRIVCFGR = 0x200

	// MPCBB blocks are 512 bytes, each configuration word covers 32 blocks
	MPCBB_BLOCK      = 512
	MPCBB_SUPERBLOCK = 32 * MPCBB_BLOCK
)

// Peripheral indices within TZSC_SECCFGRx, as register*32 + bit.
const (
	PERIPH_USART1 = 32 + 3
	PERIPH_AES    = 64 + 11
	PERIPH_HASH   = 64 + 12
	PERIPH_RNG    = 64 + 13
	PERIPH_PKA    = 64 + 14
	PERIPH_SAES   = 64 + 15
)

// GTZC represents the Global TrustZone Controller.
type GTZC struct {
	TZSC  *TZSC
	TZIC  *TZIC
	MPCBB []*MPCBB
}

// TZSC represents the GTZC TrustZone security controller.
type TZSC struct {
	base reg.Register
}

// TZIC represents the GTZC TrustZone illegal access controller.
type TZIC struct {
	base reg.Register
}

// MPCBB represents a GTZC block-based memory protection controller
// instance, covering a single SRAM.
type MPCBB struct {
	// Name is the protected SRAM name
	Name string
	// Offset is the protected SRAM offset from the SRAM base
	Offset uint32
	// Size is the protected SRAM size
	Size uint32

	base reg.Register
}

// NewGTZC returns the GTZC instance.
func NewGTZC(bus reg.Bus) *GTZC {
	return &GTZC{
		TZSC: &TZSC{base: reg.At(bus, GTZC_TZSC_BASE)},
		TZIC: &TZIC{base: reg.At(bus, GTZC_TZIC_BASE)},
		MPCBB: []*MPCBB{
			{Name: "SRAM1", Offset: mem.SRAM1Offset, Size: mem.SRAM1Size, base: reg.At(bus, GTZC_MPCBB1_BASE)},
			{Name: "SRAM2", Offset: mem.SRAM2Offset, Size: mem.SRAM2Size, base: reg.At(bus, GTZC_MPCBB2_BASE)},
			{Name: "SRAM3", Offset: mem.SRAM3Offset, Size: mem.SRAM3Size, base: reg.At(bus, GTZC_MPCBB3_BASE)},
		},
	}
}

// SetSecure sets the security attribution of a peripheral.
func (hw *TZSC) SetSecure(periph int, secure bool) error {
	n := periph / 32

	if periph < 0 || n >= TZSC_REGS {
		return fmt.Errorf("invalid peripheral %d", periph)
	}

	r := hw.base.Offset(TZSC_SECCFGR1 + uint32(n)*4)
	val := r.Read()

	if secure {
		val |= 1 << (periph % 32)
	} else {
		val &^= 1 << (periph % 32)
	}

	if !r.Verify(val) {
		return fmt.Errorf("TZSC_SECCFGR%d readback mismatch", n+1)
	}

	return nil
}

// Secure returns the security attribution of a peripheral.
func (hw *TZSC) Secure(periph int) bool {
	if periph < 0 || periph/32 >= TZSC_REGS {
		return false
	}

	return hw.base.Offset(TZSC_SECCFGR1 + uint32(periph/32)*4).IsSet(periph % 32)
}

// EnableAll enables all illegal access interrupt sources.
func (hw *TZIC) EnableAll() error {
	for n := uint32(0); n < TZIC_REGS; n++ {
		if !hw.base.Offset(TZIC_IER1 + n*4).Verify(0xffffffff) {
			return fmt.Errorf("TZIC_IER%d readback mismatch", n+1)
		}
	}

	return nil
}

// Enabled returns whether all illegal access interrupt sources are enabled.
func (hw *TZIC) Enabled() bool {
	for n := uint32(0); n < TZIC_REGS; n++ {
		if hw.base.Offset(TZIC_IER1+n*4).Read() != 0xffffffff {
			return false
		}
	}

	return true
}

// Pending returns the illegal access flags currently set, as register*32 +
// bit indices.
func (hw *TZIC) Pending() (ids []int) {
	for n := 0; n < TZIC_REGS; n++ {
		sr := hw.base.Offset(TZIC_SR1 + uint32(n)*4).Read()

		for i := 0; i < 32; i++ {
			if sr&(1<<i) != 0 {
				ids = append(ids, n*32+i)
			}
		}
	}

	return
}

// Clear clears an illegal access flag.
func (hw *TZIC) Clear(id int) {
	if id < 0 || id/32 >= TZIC_REGS {
		return
	}

	hw.base.Offset(TZIC_FCR1 + uint32(id/32)*4).Write(1 << (id % 32))
}

// Lookup returns the MPCBB instance protecting an SRAM address (either
// alias) and the address offset within the instance SRAM.
func (hw *GTZC) Lookup(addr uint32) (m *MPCBB, off uint32, ok bool) {
	switch {
	case addr >= mem.SRAMBaseS:
		off = addr - mem.SRAMBaseS
	case addr >= mem.SRAMBaseNS:
		off = addr - mem.SRAMBaseNS
	default:
		return
	}

	for _, m = range hw.MPCBB {
		if off >= m.Offset && off-m.Offset < m.Size {
			return m, off - m.Offset, true
		}
	}

	return nil, 0, false
}

// Blocks returns the number of blocks of the protected SRAM.
func (hw *MPCBB) Blocks() int {
	return int(hw.Size / MPCBB_BLOCK)
}

func (hw *MPCBB) seccfgr(block int) reg.Register {
	return hw.base.Offset(MPCBB_SECCFGR + uint32(block/32)*4)
}

// SetSecure sets the security attribution of the blocks covering [off,
// off+size) within the protected SRAM.
func (hw *MPCBB) SetSecure(off uint32, size uint32, secure bool) error {
	if off%MPCBB_BLOCK != 0 || size%MPCBB_BLOCK != 0 || off > hw.Size || size > hw.Size-off {
		return fmt.Errorf("invalid %s block range %#x+%#x", hw.Name, off, size)
	}

	for b := int(off / MPCBB_BLOCK); b < int((off+size)/MPCBB_BLOCK); {
		r := hw.seccfgr(b)
		val := r.Read()

		for ; b < int((off+size)/MPCBB_BLOCK); b++ {
			if secure {
				val |= 1 << (b % 32)
			} else {
				val &^= 1 << (b % 32)
			}

			if b%32 == 31 {
				b++
				break
			}
		}

		if !r.Verify(val) {
			return fmt.Errorf("%s MPCBB_SECCFGR readback mismatch (%#x)", hw.Name, r.Addr)
		}
	}

	return nil
}

// Secure returns the security attribution of the block holding an offset
// within the protected SRAM.
func (hw *MPCBB) Secure(off uint32) bool {
	b := int(off / MPCBB_BLOCK)
	return hw.seccfgr(b).IsSet(b % 32)
}

// Lock locks the MPCBB configuration until the next reset.
func (hw *MPCBB) Lock() {
	hw.base.Offset(MPCBB_CR).Set(MPCBB_CR_GLOCK)
}
