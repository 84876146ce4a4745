// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm
// +build tamago,arm

package intrinsics

import (
	"github.com/usbarmory/tamago/soc/nxp/imx6ul"
)

// defined in jump_arm.s
func jump(sp uint32, pc uint32)

// Native implements Intrinsics on bare-metal TamaGo ARM targets, where the
// boot flow hands off to the next image directly.
//
// Ports which run the next image under a secure monitor, such as the GoTEE
// port, embed Native for Reset and override Jump.
type Native struct{}

// Jump implements Intrinsics, it clears the general purpose registers and
// branches to pc with sp as stack pointer, it does not return.
func (Native) Jump(sp uint32, pc uint32) error {
	jump(sp, pc)
	return nil
}

// Reset implements Intrinsics.
func (Native) Reset() {
	imx6ul.Reset()
}
