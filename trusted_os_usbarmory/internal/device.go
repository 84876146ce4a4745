// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm
// +build tamago,arm

// Package gotee implements the USB armory Mk II port of the secure boot
// platform: the boot flow runs in the Secure World against the simulated
// STM32U5 security peripherals, with firmware slots on the eMMC, and hands
// off to a TamaGo unikernel in the Non-secure World which reaches the
// gateway over GoTEE RPC.
package gotee

import (
	"errors"
	"log"
	"sync"

	"golang.org/x/mod/sumdb/note"

	"github.com/usbarmory/u5-secure-boot/boot"
	"github.com/usbarmory/u5-secure-boot/mem"
	"github.com/usbarmory/u5-secure-boot/soc/stm32u5"
	"github.com/usbarmory/u5-secure-boot/util"
)

// OS is the Non-secure OS ELF executable.
var OS []byte

// Console is the console terminal used for world output, when set.
var Console *util.Console

// Abort represents a Non-secure OS data abort.
type Abort struct {
	PC uint32
	LR uint32
	SP uint32
}

// Device represents the port instance.
type Device struct {
	sync.Mutex

	// Config is the boot configuration
	Config boot.Config

	// Sim is the simulated STM32U5
	Sim *stm32u5.Sim
	// Flash is the eMMC backed flash
	Flash *EMMC
	// Platform is the platform instance of the current boot
	Platform *boot.Platform
	// Abort is the last Non-secure OS data abort
	Abort *Abort
}

// New returns the port instance on the board eMMC.
func New(l *mem.Layout, v note.Verifier) (d *Device, err error) {
	if len(OS) == 0 {
		return nil, errors.New("missing Non-secure OS")
	}

	d = &Device{
		Config: boot.Config{
			Layout:   l,
			RDP:      stm32u5.RDP_LEVEL0,
			HDP:      l.HDP,
			Verifier: v,
		},
		Sim:   stm32u5.NewSim(),
		Flash: NewEMMC(),
	}

	// the simulated option bytes are provisioned as expected
	d.Sim.SetOptionBytes(d.Config.Expected())

	return
}

// Boot runs the secure boot flow, the handoff runs the Non-secure OS until
// it exits.
func (d *Device) Boot() (err error) {
	d.Lock()
	defer d.Unlock()

	if d.Platform != nil {
		d.Sim.SoC.SCB.SystemReset()
	}

	in := &Intrinsics{dev: d}

	if d.Platform, err = boot.New(d.Config, d.Sim.SoC, d.Flash, in, &LED{ID: "white"}); err != nil {
		return
	}

	if err = d.Platform.Boot(); err != nil {
		log.Printf("SM boot failed, %v", err)
	}

	return
}
