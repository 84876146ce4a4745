// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package gateway implements the secure services exposed to the non-secure
// world through non-secure callable entry points.
//
// Every entry point re-validates its arguments, as it runs on behalf of
// untrusted code. Entry points are serialized with fault dispatch.
package gateway

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"periph.io/x/conn/v3/gpio"

	"github.com/usbarmory/u5-secure-boot/flash"
	"github.com/usbarmory/u5-secure-boot/image"
	"github.com/usbarmory/u5-secure-boot/mem"
)

// Callback identifiers
const (
	SecureFaultCallback = 0x00
	GTZCErrorCallback   = 0x01

	callbacks = 2
)

// ErrInvalidParameter is returned on any argument validation failure.
var ErrInvalidParameter = errors.New("invalid parameter")

// Fault represents a security violation notified to the non-secure world.
type Fault struct {
	// Source is the callback identifier
	Source int
	// Addr is the faulting address (SecureFault only)
	Addr uint32
	// Status is the SAU fault status (SecureFault) or the illegal access
	// source (GTZC)
	Status uint32
}

func (f Fault) String() string {
	switch f.Source {
	case SecureFaultCallback:
		return fmt.Sprintf("secure fault sfsr:%#x sfar:%#.8x", f.Status, f.Addr)
	case GTZCErrorCallback:
		return fmt.Sprintf("illegal access id:%d", f.Status)
	default:
		return fmt.Sprintf("fault source:%d", f.Source)
	}
}

// Callback represents a non-secure fault handler.
type Callback func(Fault)

// Gateway represents the non-secure callable service table.
type Gateway struct {
	sync.Mutex

	// Layout is the active memory layout
	Layout *mem.Layout
	// Flash is the flash device
	Flash flash.Driver
	// Slots manages the firmware image slots
	Slots *image.Slots
	// Pin is the secure-only GPIO
	Pin gpio.PinIO

	callbacks [callbacks]Callback
}

// RegisterCallback registers a non-secure fault handler, each callback can
// only be registered once.
func (g *Gateway) RegisterCallback(id int, fn Callback) error {
	g.Lock()
	defer g.Unlock()

	if id < 0 || id >= callbacks || fn == nil {
		return fmt.Errorf("%w: callback %d", ErrInvalidParameter, id)
	}

	if g.callbacks[id] != nil {
		return fmt.Errorf("%w: callback %d already registered", ErrInvalidParameter, id)
	}

	g.callbacks[id] = fn

	return nil
}

// Dispatch invokes the callback registered for a fault source, it returns
// false when no callback is registered.
func (g *Gateway) Dispatch(f Fault) bool {
	g.Lock()

	var fn Callback

	if f.Source >= 0 && f.Source < callbacks {
		fn = g.callbacks[f.Source]
	}

	g.Unlock()

	if fn == nil {
		log.Printf("gateway unhandled %s", f)
		return false
	}

	fn(f)

	return true
}

// GPIOToggle toggles the secure-only GPIO.
func (g *Gateway) GPIOToggle() error {
	g.Lock()
	defer g.Unlock()

	if g.Pin == nil {
		return fmt.Errorf("%w: no secure GPIO", ErrInvalidParameter)
	}

	return g.Pin.Out(!g.Pin.Read())
}

// ConfirmSecureImage confirms the running secure image, making its
// installation permanent.
func (g *Gateway) ConfirmSecureImage() error {
	g.Lock()
	defer g.Unlock()

	return g.Slots.Confirm(mem.SecureImage)
}

// TriggerInstall validates an image received in the secondary slot of an
// image and requests its installation at the next boot.
func (g *Gateway) TriggerInstall(id mem.ImageID, size uint32) error {
	g.Lock()
	defer g.Unlock()

	if id != mem.SecureImage && id != mem.NonSecureImage {
		return fmt.Errorf("%w: image %s", ErrInvalidParameter, id)
	}

	if _, err := g.Layout.Slot(id, mem.Secondary); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}

	return g.Slots.Install(id, size)
}
