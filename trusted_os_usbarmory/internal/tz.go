// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm
// +build tamago,arm

package gotee

import (
	"github.com/usbarmory/tamago/arm/tzc380"
	"github.com/usbarmory/tamago/soc/nxp/csu"
	"github.com/usbarmory/tamago/soc/nxp/imx6ul"

	"github.com/usbarmory/u5-secure-boot/mem"
)

// secure only peripherals: config security level index and slave
var securePeripherals = [][2]int{
	{2, 1},  // GPIO4 (LEDs)
	{6, 1},  // IOMUXC (LEDs)
	{8, 0},  // USB (console)
	{11, 0}, // USDHC2 (eMMC flash)
	{13, 0}, // ROMCP
	{16, 1}, // TZASC
	{34, 0}, // DCP
}

// secure only bus masters
var secureMasters = []int{
	4,  // USB
	11, // USDHC2
	14, // DCP
}

func configureTrustZone(lock bool) (err error) {
	// grant NonSecure access to CP10 and CP11
	imx6ul.ARM.NonSecureAccessControl(1<<11 | 1<<10)

	if !imx6ul.Native {
		return
	}

	// grant NonSecure access to all peripherals
	for i := csu.CSL_MIN; i <= csu.CSL_MAX; i++ {
		if err = imx6ul.CSU.SetSecurityLevel(i, 0, csu.SEC_LEVEL_0, false); err != nil {
			return
		}

		if err = imx6ul.CSU.SetSecurityLevel(i, 1, csu.SEC_LEVEL_0, false); err != nil {
			return
		}
	}

	// set default TZASC region (entire memory space) to NonSecure access
	if err = imx6ul.TZASC.EnableRegion(0, 0, 0, (1<<tzc380.SP_NW_RD)|(1<<tzc380.SP_NW_WR)); err != nil {
		return
	}

	// enable OCRAM TrustZone support
	if err = imx6ul.SetOCRAMProtection(imx6ul.OCRAM_START); err != nil {
		return
	}

	imx6ul.Debug(!lock)

	if !lock {
		return
	}

	// restrict Secure World memory
	if err = imx6ul.TZASC.EnableRegion(1, mem.SecureStart, mem.SecureSize+mem.SecureDMASize, (1<<tzc380.SP_SW_RD)|(1<<tzc380.SP_SW_WR)); err != nil {
		return
	}

	// set all controllers to NonSecure
	for i := csu.SA_MIN; i <= csu.SA_MAX; i++ {
		if err = imx6ul.CSU.SetAccess(i, false, false); err != nil {
			return
		}
	}

	for _, p := range securePeripherals {
		if p[0] == 34 && imx6ul.DCP == nil {
			continue
		}

		if err = imx6ul.CSU.SetSecurityLevel(p[0], p[1], csu.SEC_LEVEL_4, false); err != nil {
			return
		}
	}

	for _, id := range secureMasters {
		if id == 14 && imx6ul.DCP == nil {
			continue
		}

		if err = imx6ul.CSU.SetAccess(id, true, false); err != nil {
			return
		}
	}

	return
}
