// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mem

// SBSFU profile flash offsets.
const (
	sbsfuBootOffset      = 0x000000
	sbsfuBootSize        = 0x01a000
	sbsfuBootNoHDPOffset = 0x01a000
	sbsfuBootNoHDPSize   = 0x002000

	sbsfuSActiveOffset    = 0x020000
	sbsfuSImageSize       = 0x060000
	sbsfuNSActiveOffset   = 0x080000
	sbsfuNSImageSize      = 0x080000
	sbsfuSDownloadOffset  = 0x100000
	sbsfuNSDownloadOffset = 0x160000

	sbsfuNSDataOffset = 0x1e0000
	sbsfuNSDataSize   = 0x020000

	// last page of the secure active slot
	sbsfuVeneerOffset = 0x07e000
	sbsfuVeneerSize   = 0x002000
)

var sbsfuSecureCode = Region{
	Name:  "s_code",
	Start: FlashS(sbsfuSActiveOffset),
	Size:  sbsfuSImageSize,
	Attr:  Secure | Read | Exec,
}

// SBSFU is the secure boot and secure firmware update profile, images are
// downloaded by the running application into the download slots and
// installed at the next boot.
var SBSFU = &Layout{
	Name: "sbsfu",

	Boot: Region{
		Name:  "sbsfu_code",
		Start: FlashS(sbsfuBootOffset),
		Size:  sbsfuBootSize,
		Attr:  Secure | Read | Exec | Hidden,
	},
	BootNoHDP: Region{
		Name:  "sbsfu_nohdp_code",
		Start: FlashS(sbsfuBootNoHDPOffset),
		Size:  sbsfuBootNoHDPSize,
		Attr:  Secure | Read | Exec,
	},
	BootData: Region{
		Name:  "sbsfu_data",
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
		{Name: "s_active", Image: SecureImage, Kind: Primary, Offset: sbsfuSActiveOffset, Size: sbsfuSImageSize},
		{Name: "ns_active", Image: NonSecureImage, Kind: Primary, Offset: sbsfuNSActiveOffset, Size: sbsfuNSImageSize},
		{Name: "s_download", Image: SecureImage, Kind: Secondary, Offset: sbsfuSDownloadOffset, Size: sbsfuSImageSize},
		{Name: "ns_download", Image: NonSecureImage, Kind: Secondary, Offset: sbsfuNSDownloadOffset, Size: sbsfuNSImageSize},
	},

	SecureCode: &sbsfuSecureCode,
	SecureData: Region{
		Name:  "s_data",
		Start: SRAMS(SRAM1Offset),
		Size:  SRAM1Size + SRAM2Size,
		Attr:  Secure | Read | Write,
	},

	NonSecure: []Region{
		{Name: "ns_code", Start: FlashNS(sbsfuNSActiveOffset), Size: sbsfuNSImageSize, Attr: Read | Exec},
		{Name: "ns_download", Start: FlashNS(sbsfuNSDownloadOffset), Size: sbsfuNSImageSize, Attr: Read | Write},
		{Name: "ns_flash_data", Start: FlashNS(sbsfuNSDataOffset), Size: sbsfuNSDataSize, Attr: Read | Write},
		{Name: "ns_data", Start: SRAMNS(SRAM3Offset), Size: SRAM3Size, Attr: Read | Write},
		{Name: "ns_periph", Start: PeriphBaseNS, Size: PeriphSize, Attr: Read | Write | Device},
		{Name: "veneers", Start: FlashS(sbsfuVeneerOffset), Size: sbsfuVeneerSize, Attr: Secure | NSC | Read | Exec},
	},

	NSDataWindow: Region{
		Name:  "ns_flash_data",
		Start: sbsfuNSDataOffset,
		Size:  sbsfuNSDataSize,
		Attr:  Read | Write,
	},

	Peripherals: Region{
		Name:  "s_periph",
		Start: PeriphBaseS,
		Size:  PeriphSize,
		Attr:  Secure | Read | Write | Device,
	},
}
