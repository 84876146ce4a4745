// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mem

// Loader profile flash offsets.
const (
	loaderOffset       = 0x000000
	loaderSize         = 0x00e000
	loaderNoHDPOffset  = 0x00e000
	loaderNoHDPSize    = 0x002000
	loaderAppOffset    = 0x010000
	loaderAppSize      = 0x0e0000
	loaderUpdateOffset = 0x100000
	loaderUpdateSize   = 0x0e0000

	loaderNSDataOffset = 0x1e0000
	loaderNSDataSize   = 0x020000
)

// Loader is the standalone loader profile, a secure loader receives updates
// and hands off directly to a non-secure application, no secure image is
// present and hide protection is not used.
var Loader = &Layout{
	Name: "loader",

	Boot: Region{
		Name:  "loader_code",
		Start: FlashS(loaderOffset),
		Size:  loaderSize,
		Attr:  Secure | Read | Exec,
	},
	BootNoHDP: Region{
		Name:  "loader_jump_code",
		Start: FlashS(loaderNoHDPOffset),
		Size:  loaderNoHDPSize,
		Attr:  Secure | Read | Exec,
	},
	BootData: Region{
		Name:  "loader_data",
		Start: SRAMS(SRAM2Offset),
		Size:  SRAM2Size,
		Attr:  Secure | Read | Write,
	},
	Shared: Region{
		Name:  "boot_shared",
		Start: SRAMS(SRAM1Offset),
		Size:  0x400,
		Attr:  Secure | Read | Write | Shared,
	},

	HDP:      false,
	DualBank: true,
	Next:     NonSecureImage,

	Slots: []Slot{
		{Name: "app_primary", Image: NonSecureImage, Kind: Primary, Offset: loaderAppOffset, Size: loaderAppSize},
		{Name: "app_secondary", Image: NonSecureImage, Kind: Secondary, Offset: loaderUpdateOffset, Size: loaderUpdateSize},
	},

	SecureData: Region{
		Name:  "s_data",
		Start: SRAMS(SRAM1Offset),
		Size:  SRAM1Size + SRAM2Size,
		Attr:  Secure | Read | Write,
	},

	NonSecure: []Region{
		{Name: "ns_code", Start: FlashNS(loaderAppOffset), Size: loaderAppSize, Attr: Read | Exec},
		{Name: "ns_secondary", Start: FlashNS(loaderUpdateOffset), Size: loaderUpdateSize, Attr: Read | Write},
		{Name: "ns_flash_data", Start: FlashNS(loaderNSDataOffset), Size: loaderNSDataSize, Attr: Read | Write},
		{Name: "ns_data", Start: SRAMNS(SRAM3Offset), Size: SRAM3Size, Attr: Read | Write},
		{Name: "ns_periph", Start: PeriphBaseNS, Size: PeriphSize, Attr: Read | Write | Device},
	},

	NSDataWindow: Region{
		Name:  "ns_flash_data",
		Start: loaderNSDataOffset,
		Size:  loaderNSDataSize,
		Attr:  Read | Write,
	},

	Peripherals: Region{
		Name:  "s_periph",
		Start: PeriphBaseS,
		Size:  PeriphSize,
		Attr:  Secure | Read | Write | Device,
	},
}
