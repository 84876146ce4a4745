// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"

	"golang.org/x/term"

	"github.com/usbarmory/u5-secure-boot/mem"
)

func init() {
	Add(Cmd{
		Name: "slots",
		Help: "show firmware slots",
		Fn:   slotsCmd,
	})

	Add(Cmd{
		Name:    "install",
		Args:    2,
		Pattern: regexp.MustCompile(`^install (secure|nonsecure) (\d+)$`),
		Syntax:  "<secure|nonsecure> <size>",
		Help:    "request secondary slot installation at next boot",
		Fn:      installCmd,
	})

	Add(Cmd{
		Name: "confirm",
		Help: "confirm running secure image",
		Fn:   confirmCmd,
	})
}

func imageID(name string) mem.ImageID {
	if name == mem.NonSecureImage.String() {
		return mem.NonSecureImage
	}

	return mem.SecureImage
}

func slotsCmd(_ *term.Terminal, _ []string) (res string, err error) {
	p, release, err := platform()

	if err != nil {
		return
	}

	defer release()

	var buf bytes.Buffer

	for _, s := range p.Layout.Slots {
		fmt.Fprintf(&buf, "%-14s %#.8x-%#.8x ", s.Name, s.Offset, s.End())

		if img, _, err := p.Slots.Validate(s); err != nil {
			fmt.Fprintf(&buf, "invalid (%v)\n", err)
		} else {
			d := img.Digest()
			fmt.Fprintf(&buf, "version:%s sha256:%x\n", img.Header.Version, d[:8])
		}
	}

	for _, id := range []mem.ImageID{mem.SecureImage, mem.NonSecureImage} {
		if primary, secondary, err := p.Slots.Status(id); err == nil {
			fmt.Fprintf(&buf, "%s primary %s\n", id, primary)
			fmt.Fprintf(&buf, "%s secondary %s\n", id, secondary)
		}
	}

	return buf.String(), nil
}

func installCmd(_ *term.Terminal, arg []string) (res string, err error) {
	size, err := strconv.ParseUint(arg[1], 10, 32)

	if err != nil {
		return "", fmt.Errorf("invalid size, %v", err)
	}

	p, release, err := platform()

	if err != nil {
		return
	}

	defer release()

	if err = p.Gateway.TriggerInstall(imageID(arg[0]), uint32(size)); err != nil {
		return
	}

	return "installation pending, type `boot`", nil
}

func confirmCmd(_ *term.Terminal, _ []string) (res string, err error) {
	p, release, err := platform()

	if err != nil {
		return
	}

	defer release()

	return "", p.Gateway.ConfirmSecureImage()
}
