// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm
// +build tamago,arm

package gotee

import (
	"log"

	"github.com/usbarmory/u5-secure-boot/boot/intrinsics"
)

// Intrinsics implements the boot intrinsics of the port, the jump launches
// the Non-secure OS authenticated by the next image.
type Intrinsics struct {
	intrinsics.Native

	dev *Device
}

// Jump implements intrinsics.Intrinsics.
func (in *Intrinsics) Jump(sp uint32, pc uint32) (err error) {
	log.Printf("SM handoff (sp:%#.8x pc:%#.8x)", sp, pc)

	os, err := in.dev.loadNonSecure()

	if err != nil {
		return
	}

	run(os)

	return
}
