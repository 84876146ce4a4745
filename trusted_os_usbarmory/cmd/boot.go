// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm
// +build tamago,arm

package cmd

import (
	"bytes"
	"errors"
	"fmt"

	"golang.org/x/term"

	"github.com/usbarmory/u5-secure-boot/boot"
	"github.com/usbarmory/u5-secure-boot/mem"
)

func init() {
	Add(Cmd{
		Name: "boot",
		Help: "run the boot flow and the Non-secure OS",
		Fn:   bootCmd,
	})

	Add(Cmd{
		Name: "status",
		Help: "show slots and boot measurements",
		Fn:   statusCmd,
	})
}

func bootCmd(_ *term.Terminal, _ []string) (string, error) {
	if Device == nil {
		return "", errors.New("no device")
	}

	return "", Device.Boot()
}

func statusCmd(_ *term.Terminal, _ []string) (res string, err error) {
	if Device == nil {
		return "", errors.New("no device")
	}

	Device.Lock()
	defer Device.Unlock()

	p := Device.Platform

	if p == nil {
		return "", errors.New("not booted, type `boot`")
	}

	var buf bytes.Buffer

	for _, id := range []mem.ImageID{mem.SecureImage, mem.NonSecureImage} {
		primary, secondary, err := p.Slots.Status(id)

		if err != nil {
			continue
		}

		fmt.Fprintf(&buf, "%-9s primary %s\n", id, primary)
		fmt.Fprintf(&buf, "%-9s secondary %s\n", id, secondary)
	}

	shared, err := boot.ReadSharedData(p.SoC.Bus, p.Layout.Shared)

	if err != nil {
		return
	}

	fmt.Fprintf(&buf, "profile:%s lifecycle:%s\n", shared.Profile, shared.Lifecycle)

	for _, m := range shared.Measurements {
		fmt.Fprintf(&buf, "%-9s %s sha256:%x\n", m.Image, m.Version, m.Digest)
	}

	return buf.String(), nil
}
