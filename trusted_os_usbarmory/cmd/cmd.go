// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm
// +build tamago,arm

// Package cmd implements the USB armory Mk II port console commands.
package cmd

import (
	"io"
	"regexp"

	"golang.org/x/term"

	"github.com/usbarmory/u5-secure-boot/trusted_os_usbarmory/internal"
	"github.com/usbarmory/u5-secure-boot/util"
)

// Cmd represents a console command.
type Cmd = util.Cmd

var commands = &util.Commands{}

// Device is the port instance served by the console.
var Device *gotee.Device

func init() {
	Add(Cmd{
		Name: "help",
		Help: "this help",
		Fn: func(t *term.Terminal, _ []string) (string, error) {
			return Help(t), nil
		},
	})

	Add(Cmd{
		Name:    "exit, quit",
		Args:    1,
		Pattern: regexp.MustCompile(`^(exit|quit)$`),
		Help:    "close session",
		Fn: func(*term.Terminal, []string) (string, error) {
			return "logout", io.EOF
		},
	})
}

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
