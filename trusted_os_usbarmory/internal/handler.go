// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm
// +build tamago,arm

package gotee

import (
	"errors"
	"fmt"
	"log"

	"github.com/usbarmory/tamago/arm"

	"github.com/usbarmory/GoTEE/monitor"
	"github.com/usbarmory/GoTEE/syscall"

	"github.com/usbarmory/u5-secure-boot/util"
)

// handler is the Non-secure OS exception handler, data aborts are raised
// as SecureFault on the boot platform and gateway calls are served over
// RPC.
func (d *Device) handler(ctx *monitor.ExecCtx) (err error) {
	if !ctx.NonSecure() {
		return errors.New("unexpected processor mode")
	}

	switch ctx.ExceptionVector {
	case arm.DATA_ABORT:
		pc := ctx.R15 - 8
		log.Printf("SM trapped Non-secure data abort pc:%#.8x", pc)

		d.Abort = &Abort{PC: pc, LR: ctx.R14, SP: ctx.R13}

		d.Sim.InjectSecureFault(pc)

		if err = d.Platform.SecureFault(); err != nil {
			return
		}

		ctx.Stop()

		return
	case arm.SUPERVISOR:
	default:
		return fmt.Errorf("unhandled exception %x", ctx.ExceptionVector)
	}

	switch ctx.A0() {
	case syscall.SYS_WRITE:
		// Override write syscall to avoid interleaved logs and to log
		// simultaneously to remote terminal and serial console.
		if Console != nil && Console.Term != nil {
			util.BufferedTermLog(byte(ctx.A1()), false, Console.Term)
		} else {
			util.BufferedStdoutLog(byte(ctx.A1()), false)
		}
	case syscall.SYS_EXIT:
		ctx.Stop()
	case syscall.SYS_RPC_REQ, syscall.SYS_RPC_RES:
		return monitor.SecureHandler(ctx)
	default:
		log.Print(ctx)
		return errors.New("unexpected monitor call")
	}

	return
}
