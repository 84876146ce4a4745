// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mem

// TF-M profile flash offsets.
const (
	tfmBL2Offset      = 0x000000
	tfmBL2Size        = 0x012000 // 72KB, hidden after handoff
	tfmBL2NoHDPOffset = 0x012000
	tfmBL2NoHDPSize   = 0x002000
	tfmNVOffset       = 0x014000 // BL2 NV counters
	tfmNVSize         = 0x004000

	tfmSPrimaryOffset    = 0x018000
	tfmSImageSize        = 0x040000
	tfmNSPrimaryOffset   = 0x058000
	tfmNSImageSize       = 0x060000
	tfmSSecondaryOffset  = 0x100000
	tfmNSSecondaryOffset = 0x140000

	tfmNSDataOffset = 0x1e0000
	tfmNSDataSize   = 0x020000

	tfmVeneerOffset = 0x054000
	tfmVeneerSize   = 0x002000

	tfmSharedSize = 0x000400
	tfmBL2RAMSize = 0x01fc00
)

var tfmSecureCode = Region{
	Name:  "s_code",
	Start: FlashS(tfmSPrimaryOffset),
	Size:  tfmSImageSize,
	Attr:  Secure | Read | Exec,
}

// TFM is the TF-M profile: BL2 (MCUboot) verifies and hands off to the
// secure image, which in turn starts the non-secure image.
var TFM = &Layout{
	Name: "tfm",

	Boot: Region{
		Name:  "bl2_code",
		Start: FlashS(tfmBL2Offset),
		Size:  tfmBL2Size,
		Attr:  Secure | Read | Exec | Hidden,
	},
	BootNoHDP: Region{
		Name:  "bl2_nohdp_code",
		Start: FlashS(tfmBL2NoHDPOffset),
		Size:  tfmBL2NoHDPSize,
		Attr:  Secure | Read | Exec,
	},
	BootData: Region{
		Name:  "bl2_data",
		Start: SRAMS(SRAM1Offset + tfmSharedSize),
		Size:  tfmBL2RAMSize,
		Attr:  Secure | Read | Write,
	},
	Shared: Region{
		Name:  "boot_shared",
		Start: SRAMS(SRAM1Offset),
		Size:  tfmSharedSize,
		Attr:  Secure | Read | Write | Shared,
	},

	HDP:      true,
	DualBank: true,
	Next:     SecureImage,

	Slots: []Slot{
		{Name: "s_primary", Image: SecureImage, Kind: Primary, Offset: tfmSPrimaryOffset, Size: tfmSImageSize},
		{Name: "ns_primary", Image: NonSecureImage, Kind: Primary, Offset: tfmNSPrimaryOffset, Size: tfmNSImageSize},
		{Name: "s_secondary", Image: SecureImage, Kind: Secondary, Offset: tfmSSecondaryOffset, Size: tfmSImageSize},
		{Name: "ns_secondary", Image: NonSecureImage, Kind: Secondary, Offset: tfmNSSecondaryOffset, Size: tfmNSImageSize},
	},

	SecureCode: &tfmSecureCode,
	SecureData: Region{
		Name:  "s_data",
		Start: SRAMS(SRAM1Offset),
		Size:  SRAM1Size + SRAM2Size,
		Attr:  Secure | Read | Write,
	},

	NonSecure: []Region{
		{Name: "ns_code", Start: FlashNS(tfmNSPrimaryOffset), Size: tfmNSImageSize, Attr: Read | Exec},
		{Name: "ns_secondary", Start: FlashNS(tfmNSSecondaryOffset), Size: tfmNSImageSize, Attr: Read | Write},
		{Name: "ns_flash_data", Start: FlashNS(tfmNSDataOffset), Size: tfmNSDataSize, Attr: Read | Write},
		{Name: "ns_data", Start: SRAMNS(SRAM3Offset), Size: SRAM3Size, Attr: Read | Write},
		{Name: "ns_periph", Start: PeriphBaseNS, Size: PeriphSize, Attr: Read | Write | Device},
		{Name: "veneers", Start: FlashS(tfmVeneerOffset), Size: tfmVeneerSize, Attr: Secure | NSC | Read | Exec},
	},

	NSDataWindow: Region{
		Name:  "ns_flash_data",
		Start: tfmNSDataOffset,
		Size:  tfmNSDataSize,
		Attr:  Read | Write,
	},

	Peripherals: Region{
		Name:  "s_periph",
		Start: PeriphBaseS,
		Size:  PeriphSize,
		Attr:  Secure | Read | Write | Device,
	},
}
