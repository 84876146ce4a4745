// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm
// +build tamago,arm

package gotee

import (
	"errors"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	usbarmory "github.com/usbarmory/tamago/board/usbarmory/mk2"
)

// LED implements gpio.PinIO on a USB armory Mk II LED, output only.
type LED struct {
	sync.Mutex

	// ID is the LED name (white, blue)
	ID string

	level gpio.Level
}

func (l *LED) String() string { return l.ID }

// Halt implements conn.Resource.
func (l *LED) Halt() error { return nil }

// Name implements pin.Pin.
func (l *LED) Name() string { return l.ID }

// Number implements pin.Pin.
func (l *LED) Number() int { return -1 }

// Function implements pin.Pin.
func (l *LED) Function() string { return "Out" }

// In implements gpio.PinIn.
func (l *LED) In(gpio.Pull, gpio.Edge) error {
	return errors.New("LED is output only")
}

// Read implements gpio.PinIn, it returns the last output level.
func (l *LED) Read() gpio.Level {
	l.Lock()
	defer l.Unlock()

	return l.level
}

// WaitForEdge implements gpio.PinIn.
func (l *LED) WaitForEdge(time.Duration) bool { return false }

// Pull implements gpio.PinIn.
func (l *LED) Pull() gpio.Pull { return gpio.PullNoChange }

// DefaultPull implements gpio.PinIn.
func (l *LED) DefaultPull() gpio.Pull { return gpio.PullNoChange }

// Out implements gpio.PinOut.
func (l *LED) Out(level gpio.Level) (err error) {
	l.Lock()
	defer l.Unlock()

	if err = usbarmory.LED(l.ID, bool(level)); err != nil {
		return
	}

	l.level = level

	return
}

// PWM implements gpio.PinOut.
func (l *LED) PWM(gpio.Duty, physic.Frequency) error {
	return errors.New("PWM not supported")
}
