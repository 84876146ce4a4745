// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package stm32u5 provides support for the security related peripherals of
// STMicroelectronics STM32U5 series microcontrollers (Cortex-M33, ARMv8-M
// with TrustZone).
//
// The following peripherals are supported:
//   - Security Attribution Unit (SAU)
//   - Memory Protection Unit (secure and non-secure instances)
//   - Global TrustZone Controller (TZSC, TZIC, MPCBB)
//   - Embedded flash memory controller and option bytes
//   - System Control Block (reset, fault enables)
//
// All registers are accessed through a reg.Bus, allowing the same drivers
// to run on hardware or against the simulated device returned by NewSim.
package stm32u5

import (
	"github.com/usbarmory/u5-secure-boot/reg"
)

// Peripheral base addresses (secure aliases)
const (
	SCB_BASE    = 0xe000ed00
	SAU_BASE    = 0xe000edd0
	MPU_S_BASE  = 0xe000ed90
	MPU_NS_BASE = 0xe002ed90
	NVIC_BASE   = 0xe000e100

	FLASH_BASE = 0x50022000

	GTZC_TZSC_BASE   = 0x50032400
	GTZC_TZIC_BASE   = 0x50032800
	GTZC_MPCBB1_BASE = 0x50032c00
	GTZC_MPCBB2_BASE = 0x50033000
	GTZC_MPCBB3_BASE = 0x50033400
)

// GTZC interrupt number
const GTZC_IRQ = 8

// SoC represents the STM32U5 security peripherals.
type SoC struct {
	// Bus is the register bus
	Bus reg.Bus

	SAU   *SAU
	MPU   *MPU
	MPUNS *MPU
	GTZC  *GTZC
	Flash *Flash
	SCB   *SCB
}

// New returns the STM32U5 peripherals on a bus.
func New(bus reg.Bus) *SoC {
	return &SoC{
		Bus:   bus,
		SAU:   NewSAU(bus, SAU_BASE),
		MPU:   NewMPU(bus, MPU_S_BASE, true),
		MPUNS: NewMPU(bus, MPU_NS_BASE, false),
		GTZC:  NewGTZC(bus),
		Flash: NewFlash(bus, FLASH_BASE),
		SCB:   NewSCB(bus, SCB_BASE, NVIC_BASE),
	}
}
