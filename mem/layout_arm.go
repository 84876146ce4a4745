// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm
// +build tamago,arm

package mem

import (
	"github.com/usbarmory/tamago/dma"
)

// USB armory Mk II memory map of the GoTEE port, the STM32U5 layouts above
// are applied to the simulated security peripherals while the i.MX6UL
// TrustZone controllers isolate the worlds.
const (
	// Secure Monitor (boot platform)
	SecureStart = 0x90000000
	SecureSize  = 0x05f00000 // 95MB

	// Secure Monitor DMA (relocated to avoid conflicts with Main OS)
	SecureDMAStart = 0x95f00000
	SecureDMASize  = 0x00100000 // 1MB

	// Non-secure OS
	NonSecureStart = 0x80000000
	NonSecureSize  = 0x10000000 // 256MB
)

// NonSecureRegion is the Non-secure OS memory.
var NonSecureRegion *dma.Region

// Init reserves the Non-secure OS memory.
func Init() {
	NonSecureRegion, _ = dma.NewRegion(NonSecureStart, NonSecureSize, false)
	NonSecureRegion.Reserve(NonSecureSize, 0)
}
