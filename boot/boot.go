// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package boot implements the secure boot flow: static protection
// configuration (option bytes), runtime protection apply (SAU, MPU, GTZC),
// firmware slot processing and the handoff to the next image.
//
// The runtime protections follow a one-directional state machine, each
// transition happens exactly once per boot:
//
//	reset -> initialized -> updated -> handoff
//
// Any other sequence is a fatal error.
package boot

import (
	"errors"
	"fmt"
	"log"

	"golang.org/x/mod/sumdb/note"
	"periph.io/x/conn/v3/gpio"

	"github.com/usbarmory/u5-secure-boot/boot/intrinsics"
	"github.com/usbarmory/u5-secure-boot/flash"
	"github.com/usbarmory/u5-secure-boot/gateway"
	"github.com/usbarmory/u5-secure-boot/image"
	"github.com/usbarmory/u5-secure-boot/mem"
	"github.com/usbarmory/u5-secure-boot/soc/stm32u5"
)

// Boot errors
var (
	ErrStaticProtection  = errors.New("static protection mismatch")
	ErrRuntimeProtection = errors.New("runtime protection failure")
	ErrImage             = errors.New("invalid boot image")
	ErrFault             = errors.New("unhandled security fault")

	// ErrReset is returned when the option bytes have been reprogrammed and
	// the device reset to load them.
	ErrReset = errors.New("option bytes reload")
)

// FatalError represents a non-recoverable boot error, the device has been
// reset.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return "fatal: " + e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// DefaultSecurePeripherals lists the peripherals reserved to the secure
// world.
var DefaultSecurePeripherals = []int{
	stm32u5.PERIPH_AES,
	stm32u5.PERIPH_HASH,
	stm32u5.PERIPH_RNG,
	stm32u5.PERIPH_PKA,
	stm32u5.PERIPH_SAES,
}

// Config represents the boot configuration.
type Config struct {
	// Layout is the memory layout profile
	Layout *mem.Layout
	// EnableSetOB allows reprogramming of mismatching option bytes
	EnableSetOB bool
	// RDP is the expected readout protection level
	RDP uint8
	// HDP enables hide protection of the bootloader
	HDP bool
	// Verifier is the image manifest verifier, nil disables signature
	// checks
	Verifier note.Verifier
	// SecurePeripherals lists the TZSC peripheral indices reserved to the
	// secure world
	SecurePeripherals []int
}

type state int

const (
	stateReset state = iota
	stateInitialized
	stateUpdated
	stateHandoff
)

func (s state) String() string {
	return [...]string{"reset", "initialized", "updated", "handoff"}[s]
}

// Platform represents the secure boot platform, it owns the device
// peripherals, the firmware slots and the non-secure callable gateway.
type Platform struct {
	Config

	// SoC is the device security peripherals
	SoC *stm32u5.SoC
	// Flash is the flash device
	Flash flash.Driver
	// Intrinsics implements the final jump and the system reset
	Intrinsics intrinsics.Intrinsics
	// Slots manages the firmware image slots
	Slots *image.Slots
	// Gateway is the non-secure callable service table
	Gateway *gateway.Gateway

	state        state
	measurements []Measurement
}

// New returns a platform instance in its reset state.
func New(cfg Config, soc *stm32u5.SoC, d flash.Driver, in intrinsics.Intrinsics, pin gpio.PinIO) (p *Platform, err error) {
	if cfg.Layout == nil {
		return nil, errors.New("missing layout")
	}

	if err = cfg.Layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s layout, %v", cfg.Layout.Name, err)
	}

	if cfg.SecurePeripherals == nil {
		cfg.SecurePeripherals = DefaultSecurePeripherals
	}

	slots := &image.Slots{
		Flash:    d,
		Layout:   cfg.Layout,
		Verifier: cfg.Verifier,
	}

	p = &Platform{
		Config:     cfg,
		SoC:        soc,
		Flash:      d,
		Intrinsics: in,
		Slots:      slots,
		Gateway: &gateway.Gateway{
			Layout: cfg.Layout,
			Flash:  d,
			Slots:  slots,
			Pin:    pin,
		},
	}

	return
}

// Fatal logs a non-recoverable error and resets the device, on hardware it
// does not return.
func (p *Platform) Fatal(err error) error {
	log.Printf("BL2 fatal error, %v", err)
	p.Intrinsics.Reset()

	return &FatalError{Err: err}
}

// images returns the images booted by the layout, in processing order.
func (p *Platform) images() (ids []mem.ImageID) {
	for _, id := range []mem.ImageID{mem.SecureImage, mem.NonSecureImage} {
		if _, err := p.Layout.Slot(id, mem.Primary); err == nil {
			ids = append(ids, id)
		}
	}

	return
}

// Boot runs the complete boot flow up to the handoff to the next image.
func (p *Platform) Boot() (err error) {
	log.Printf("BL2 booting %s profile", p.Layout.Name)

	if err = p.CheckStaticProtections(); err != nil {
		return
	}

	if err = p.InitProtections(); err != nil {
		return
	}

	if err = p.Flash.Initialize(); err != nil {
		return p.Fatal(fmt.Errorf("flash, %w", err))
	}

	for _, id := range p.images() {
		action, err := p.Slots.Process(id)

		if err != nil {
			return p.Fatal(fmt.Errorf("%s slot processing, %w", id, err))
		}

		if action != image.None {
			log.Printf("BL2 %s image %s", id, action)
		}

		if err = p.Measure(id); err != nil {
			return p.Fatal(err)
		}
	}

	if err = p.WriteSharedData(); err != nil {
		return p.Fatal(err)
	}

	if err = p.UpdateProtections(); err != nil {
		return
	}

	return p.Handoff()
}
