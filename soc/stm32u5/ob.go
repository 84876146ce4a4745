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

// Readout protection levels (OPTR.RDP), any other value is level 1.
const (
	RDP_LEVEL0  = 0xaa
	RDP_LEVEL05 = 0x55
	RDP_LEVEL1  = 0xbb
	RDP_LEVEL2  = 0xcc
)

// RDPRank returns an ordinal for a readout protection value, higher values
// are more restrictive.
func RDPRank(rdp uint8) int {
	switch rdp {
	case RDP_LEVEL0:
		return 0
	case RDP_LEVEL05:
		return 1
	case RDP_LEVEL2:
		return 3
	default:
		return 2
	}
}

// RDPName returns the readout protection level name.
func RDPName(rdp uint8) string {
	return [...]string{"0", "0.5", "1", "2"}[RDPRank(rdp)]
}

// HDPArea represents the hide protection area of a bank, starting at the
// secure watermark start page.
type HDPArea struct {
	End     uint32 `cbor:"1,keyasint"`
	Enabled bool   `cbor:"2,keyasint"`
}

// WRPArea represents a write protection area.
type WRPArea struct {
	Pages  mem.PageRange `cbor:"1,keyasint"`
	Unlock bool          `cbor:"2,keyasint"`
}

// OptionBytes represents the security relevant option bytes.
type OptionBytes struct {
	RDP      uint8 `cbor:"1,keyasint"`
	TZEN     bool  `cbor:"2,keyasint"`
	DualBank bool  `cbor:"3,keyasint"`
	SwapBank bool  `cbor:"4,keyasint"`

	// SECWM are the secure watermarks of each bank
	SECWM [2]mem.PageRange `cbor:"5,keyasint"`
	// HDP are the hide protection areas of each bank
	HDP [2]HDPArea `cbor:"6,keyasint"`
	// WRPA and WRPB are the write protection areas of each bank
	WRPA [2]WRPArea `cbor:"7,keyasint"`
	WRPB [2]WRPArea `cbor:"8,keyasint"`

	NSBootAddr0  uint32 `cbor:"9,keyasint"`
	NSBootAddr1  uint32 `cbor:"10,keyasint"`
	SecBootAddr0 uint32 `cbor:"11,keyasint"`
	BootLock     bool   `cbor:"12,keyasint"`

	// OPTR holds the raw user option bits not modeled by other fields,
	// preserved on programming.
	OPTR uint32 `cbor:"13,keyasint"`
}

type optionRegister struct {
	off uint32
	val uint32
}

const optrModeled = 0xff<<OPTR_RDP | 1<<OPTR_SWAPBANK | 1<<OPTR_DUALBANK | 1<<OPTR_TZEN

func bit(b bool, pos int) uint32 {
	if b {
		return 1 << pos
	}

	return 0
}

func area(p mem.PageRange) uint32 {
	return (p.Start&AREA_PAGEMASK)<<AREA_PSTRT | (p.End&AREA_PAGEMASK)<<AREA_PEND
}

func pages(val uint32) mem.PageRange {
	return mem.PageRange{
		Start: (val >> AREA_PSTRT) & AREA_PAGEMASK,
		End:   (val >> AREA_PEND) & AREA_PAGEMASK,
	}
}

func (ob *OptionBytes) encode() []optionRegister {
	optr := ob.OPTR &^ optrModeled
	optr |= uint32(ob.RDP) << OPTR_RDP
	optr |= bit(ob.SwapBank, OPTR_SWAPBANK)
	optr |= bit(ob.DualBank, OPTR_DUALBANK)
	optr |= bit(ob.TZEN, OPTR_TZEN)

	regs := []optionRegister{
		{FLASH_OPTR, optr},
		{FLASH_NSBOOTADD0R, ob.NSBootAddr0 &^ (1<<BOOTADD_ADDR - 1)},
		{FLASH_NSBOOTADD1R, ob.NSBootAddr1 &^ (1<<BOOTADD_ADDR - 1)},
		{FLASH_SECBOOTADD0R, ob.SecBootAddr0&^(1<<BOOTADD_ADDR-1) | bit(ob.BootLock, BOOTADD_BOOT_LOCK)},
	}

	bases := [2][4]uint32{
		{FLASH_SECWM1R1, FLASH_SECWM1R2, FLASH_WRP1AR, FLASH_WRP1BR},
		{FLASH_SECWM2R1, FLASH_SECWM2R2, FLASH_WRP2AR, FLASH_WRP2BR},
	}

	for bank, r := range bases {
		hdp := (ob.HDP[bank].End&AREA_PAGEMASK)<<SECWM_HDPEND | bit(ob.HDP[bank].Enabled, SECWM_HDPEN)

		regs = append(regs,
			optionRegister{r[0], area(ob.SECWM[bank])},
			optionRegister{r[1], hdp},
			optionRegister{r[2], area(ob.WRPA[bank].Pages) | bit(ob.WRPA[bank].Unlock, WRP_UNLOCK)},
			optionRegister{r[3], area(ob.WRPB[bank].Pages) | bit(ob.WRPB[bank].Unlock, WRP_UNLOCK)},
		)
	}

	return regs
}

func (ob *OptionBytes) decode(r func(uint32) reg.Register) {
	optr := r(FLASH_OPTR).Read()

	ob.OPTR = optr &^ optrModeled
	ob.RDP = uint8(optr >> OPTR_RDP)
	ob.SwapBank = optr&(1<<OPTR_SWAPBANK) != 0
	ob.DualBank = optr&(1<<OPTR_DUALBANK) != 0
	ob.TZEN = optr&(1<<OPTR_TZEN) != 0

	ob.NSBootAddr0 = r(FLASH_NSBOOTADD0R).Read() &^ (1<<BOOTADD_ADDR - 1)
	ob.NSBootAddr1 = r(FLASH_NSBOOTADD1R).Read() &^ (1<<BOOTADD_ADDR - 1)

	sec := r(FLASH_SECBOOTADD0R).Read()
	ob.SecBootAddr0 = sec &^ (1<<BOOTADD_ADDR - 1)
	ob.BootLock = sec&(1<<BOOTADD_BOOT_LOCK) != 0

	bases := [2][4]uint32{
		{FLASH_SECWM1R1, FLASH_SECWM1R2, FLASH_WRP1AR, FLASH_WRP1BR},
		{FLASH_SECWM2R1, FLASH_SECWM2R2, FLASH_WRP2AR, FLASH_WRP2BR},
	}

	for bank, off := range bases {
		ob.SECWM[bank] = pages(r(off[0]).Read())

		hdp := r(off[1]).Read()
		ob.HDP[bank].End = (hdp >> SECWM_HDPEND) & AREA_PAGEMASK
		ob.HDP[bank].Enabled = hdp&(1<<SECWM_HDPEN) != 0

		wrpa := r(off[2]).Read()
		ob.WRPA[bank] = WRPArea{Pages: pages(wrpa), Unlock: wrpa&(1<<WRP_UNLOCK) != 0}

		wrpb := r(off[3]).Read()
		ob.WRPB[bank] = WRPArea{Pages: pages(wrpb), Unlock: wrpb&(1<<WRP_UNLOCK) != 0}
	}
}

func (ob *OptionBytes) String() string {
	return fmt.Sprintf("RDP:%s TZEN:%v DUALBANK:%v SWAP_BANK:%v SECWM1:%s SECWM2:%s HDP1:%v/%d HDP2:%v/%d WRP1A:%s WRP1B:%s WRP2A:%s WRP2B:%s SECBOOTADD0:%#.8x BOOT_LOCK:%v",
		RDPName(ob.RDP), ob.TZEN, ob.DualBank, ob.SwapBank,
		ob.SECWM[0], ob.SECWM[1],
		ob.HDP[0].Enabled, ob.HDP[0].End, ob.HDP[1].Enabled, ob.HDP[1].End,
		ob.WRPA[0].Pages, ob.WRPB[0].Pages, ob.WRPA[1].Pages, ob.WRPB[1].Pages,
		ob.SecBootAddr0, ob.BootLock)
}
