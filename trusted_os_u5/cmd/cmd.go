// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package cmd implements the emulated device console commands.
package cmd

import (
	"errors"

	"golang.org/x/term"

	"github.com/usbarmory/u5-secure-boot/boot"
	"github.com/usbarmory/u5-secure-boot/trusted_os_u5/internal"
	"github.com/usbarmory/u5-secure-boot/util"
)

// Cmd represents a console command.
type Cmd = util.Cmd

var commands = &util.Commands{}

// Device is the emulated device served by the console.
var Device *emulator.Device

// Add registers a console command.
func Add(cmd Cmd) {
	commands.Add(cmd)
}

// Help returns the console help.
func Help(t *term.Terminal) string {
	return commands.Help(t)
}

// Handle executes a console command line.
func Handle(t *term.Terminal, line string) error {
	return commands.Handle(t, line)
}

// platform returns the platform of the current boot, the device lock is
// held until release is called.
func platform() (p *boot.Platform, release func(), err error) {
	if Device == nil {
		return nil, nil, errors.New("no device")
	}

	Device.Lock()

	if Device.Platform == nil {
		Device.Unlock()
		return nil, nil, errors.New("device not booted, type `boot`")
	}

	return Device.Platform, Device.Unlock, nil
}
