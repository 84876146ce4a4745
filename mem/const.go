// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mem

// STM32U5 memory map (RM0456), secure and non-secure aliases.
const (
	FlashBaseNS = 0x08000000
	FlashBaseS  = 0x0c000000

	// 2MB dual bank flash, 8KB pages
	FlashSize    = 0x00200000
	BankSize     = 0x00100000
	PageSize     = 0x2000
	PagesPerBank = BankSize / PageSize

	// quad-word programming
	ProgramUnit = 16

	SRAMBaseNS = 0x20000000
	SRAMBaseS  = 0x30000000

	SRAM1Offset = 0x00000000
	SRAM1Size   = 0x00030000 // 192KB
	SRAM2Offset = 0x00030000
	SRAM2Size   = 0x00010000 // 64KB
	SRAM3Offset = 0x00040000
	SRAM3Size   = 0x00080000 // 512KB

	PeriphBaseNS = 0x40000000
	PeriphBaseS  = 0x50000000
	PeriphSize   = 0x10000000
)

// FlashS returns the secure alias of a flash offset.
func FlashS(off uint32) uint32 {
	return FlashBaseS + off
}

// FlashNS returns the non-secure alias of a flash offset.
func FlashNS(off uint32) uint32 {
	return FlashBaseNS + off
}

// SRAMS returns the secure alias of an SRAM offset.
func SRAMS(off uint32) uint32 {
	return SRAMBaseS + off
}

// SRAMNS returns the non-secure alias of an SRAM offset.
func SRAMNS(off uint32) uint32 {
	return SRAMBaseNS + off
}
