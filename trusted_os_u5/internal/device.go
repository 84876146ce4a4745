// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package emulator implements an emulated STM32U5 device running the secure
// boot flow on the simulated security peripherals, with persistent storage
// and a WebAssembly non-secure application.
package emulator

import (
	"errors"
	"io"
	"log"
	"sync"

	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/usbarmory/u5-secure-boot/boot"
	"github.com/usbarmory/u5-secure-boot/boot/intrinsics"
	"github.com/usbarmory/u5-secure-boot/flash"
	"github.com/usbarmory/u5-secure-boot/soc/stm32u5"
)

// maxBoots bounds the reboots caused by option bytes programming.
const maxBoots = 2

// Config represents the emulated device configuration.
type Config struct {
	// Bootloader is the bootloader configuration
	Bootloader boot.Config
	// Storage is the device persistent storage
	Storage *Storage
	// NonSecure is the non-secure application (WebAssembly), nil to stop
	// at the handoff
	NonSecure []byte
	// Output is the non-secure application output
	Output io.Writer
}

// Device represents an emulated device.
type Device struct {
	sync.Mutex
	Config

	// Sim is the simulated SoC
	Sim *stm32u5.Sim
	// Intrinsics records jumps and resets
	Intrinsics *intrinsics.Sim
	// Flash is the persistent device flash
	Flash *flash.File
	// Pin is the secure GPIO pin
	Pin *gpiotest.Pin
	// Platform is the platform instance of the current boot
	Platform *boot.Platform
	// World is the running non-secure application
	World *NonSecure
}

// New returns an emulated device in its power-on state.
func New(cfg Config) (d *Device, err error) {
	if cfg.Storage == nil {
		return nil, errors.New("missing storage")
	}

	ob, err := cfg.Storage.LoadOptionBytes()

	if err != nil {
		return
	}

	d = &Device{
		Config:     cfg,
		Sim:        stm32u5.NewSim(),
		Intrinsics: &intrinsics.Sim{},
		Flash:      cfg.Storage.Flash(),
		Pin:        &gpiotest.Pin{N: "PC7", Num: 39},
	}

	d.Sim.SetOptionBytes(ob)
	d.Sim.OnReset = d.reset

	d.Intrinsics.OnReset = d.Sim.SoC.SCB.SystemReset
	d.Intrinsics.OnJump = d.handoff

	if err = d.Flash.Initialize(); err != nil {
		return nil, err
	}

	return
}

// Close releases the device storage.
func (d *Device) Close() error {
	return d.Flash.Uninitialize()
}

// reset persists the option bytes loaded at reset.
func (d *Device) reset(reason string) {
	log.Printf("SM device reset (%s)", reason)

	if err := d.Storage.SaveOptionBytes(d.Sim.ProgrammedOptionBytes()); err != nil {
		log.Printf("SM could not save option bytes, %v", err)
	}
}

// Boot resets the device, when already booted, and runs the secure boot
// flow up to the non-secure application exit.
func (d *Device) Boot() (err error) {
	d.Lock()
	defer d.Unlock()

	if d.Platform != nil {
		d.Sim.SoC.SCB.SystemReset()
	}

	for i := 0; i < maxBoots; i++ {
		d.World = nil

		if d.Platform, err = boot.New(d.Bootloader, d.Sim.SoC, d.Flash, d.Intrinsics, d.Pin); err != nil {
			return
		}

		if err = d.Platform.Boot(); !errors.Is(err, boot.ErrReset) {
			return
		}

		log.Printf("SM option bytes reloaded, rebooting")
	}

	return
}

func (d *Device) handoff(sp uint32, pc uint32) (err error) {
	log.Printf("SM %s image running (sp:%#.8x pc:%#.8x)", d.Platform.Layout.Next, sp, pc)

	if d.NonSecure == nil {
		return
	}

	if d.World, err = NewNonSecure(d, d.NonSecure); err != nil {
		return
	}

	return d.World.Run()
}

// SecureFault raises a SecureFault for an address, as caused by a
// non-secure access, and handles it.
func (d *Device) SecureFault(addr uint32) error {
	if d.Platform == nil {
		return errors.New("device not booted")
	}

	d.Sim.InjectSecureFault(addr)

	return d.Platform.SecureFault()
}

// IllegalAccess raises a GTZC illegal access from a peripheral and handles
// it.
func (d *Device) IllegalAccess(id int) error {
	if d.Platform == nil {
		return errors.New("device not booted")
	}

	d.Sim.InjectIllegalAccess(id)

	return d.Platform.GTZCError()
}

// Deliver runs the non-secure callbacks of the faults raised since the
// last delivery.
func (d *Device) Deliver() error {
	if d.World == nil {
		return nil
	}

	return d.World.Deliver()
}
