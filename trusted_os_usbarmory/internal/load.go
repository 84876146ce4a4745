// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm
// +build tamago,arm

package gotee

import (
	"fmt"
	"log"

	"github.com/usbarmory/tamago/arm"

	"github.com/usbarmory/GoTEE/monitor"

	"github.com/usbarmory/armory-boot/exec"

	"github.com/usbarmory/u5-secure-boot/gateway"
	"github.com/usbarmory/u5-secure-boot/image"
	"github.com/usbarmory/u5-secure-boot/mem"
	"github.com/usbarmory/u5-secure-boot/util"
)

// loadNonSecure loads the Non-secure OS, after checking it against the
// digest held by the non-secure primary slot image.
func (d *Device) loadNonSecure() (os *monitor.ExecCtx, err error) {
	p := d.Platform

	slot, err := p.Layout.Slot(mem.NonSecureImage, mem.Primary)

	if err != nil {
		return
	}

	img, _, err := p.Slots.Validate(slot)

	if err != nil {
		return
	}

	if err = img.VerifyExternal(OS); err != nil {
		return nil, fmt.Errorf("SM Non-secure OS authentication failed, %v", err)
	}

	elf := &exec.ELFImage{
		Region: mem.NonSecureRegion,
		ELF:    OS,
	}

	if err = elf.Load(); err != nil {
		return
	}

	if os, err = monitor.Load(elf.Entry(), elf.Region, false); err != nil {
		return nil, fmt.Errorf("SM could not load kernel, %v", err)
	}

	log.Printf("SM loaded kernel addr:%#x entry:%#x size:%d version:%s", os.Memory.Start(), os.R15, len(OS), img.Header.Version)

	if err = configureTrustZone(true); err != nil {
		return nil, fmt.Errorf("SM could not configure TrustZone, %v", err)
	}

	// set kernel as ELF debugging target
	util.SetDebugTarget(elf.ELF)

	rpc := &gateway.RPC{Gateway: p.Gateway}

	if err = os.Server.Register(rpc); err != nil {
		return
	}

	os.Handler = d.handler

	return
}

func run(ctx *monitor.ExecCtx) {
	mode := arm.ModeName(int(ctx.SPSR) & 0x1f)
	ns := ctx.NonSecure()

	log.Printf("SM starting mode:%s sp:%#.8x pc:%#.8x ns:%v", mode, ctx.R13, ctx.R15, ns)

	err := ctx.Run()

	log.Printf("SM stopped mode:%s sp:%#.8x lr:%#.8x pc:%#.8x ns:%v err:%v", mode, ctx.R13, ctx.R14, ctx.R15, ns, err)

	if err != nil {
		pcLine, _ := util.PCToLine(uint64(ctx.R15))
		lrLine, _ := util.PCToLine(uint64(ctx.R14))

		if pcLine != "" || lrLine != "" {
			log.Printf("stack trace:\n  %s\n  %s", pcLine, lrLine)
		}
	}
}
