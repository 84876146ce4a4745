// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"runtime/pprof"

	"golang.org/x/term"
)

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

	Add(Cmd{
		Name: "layout",
		Help: "memory layout of the boot profile",
		Fn:   layoutCmd,
	})

	Add(Cmd{
		Name: "stackall",
		Help: "stack trace of all goroutines",
		Fn:   stackallCmd,
	})
}

func layoutCmd(_ *term.Terminal, _ []string) (string, error) {
	if Device == nil {
		return "", errors.New("no device")
	}

	l := Device.Bootloader.Layout

	var buf bytes.Buffer

	fmt.Fprintf(&buf, "profile:%s hdp:%v dualbank:%v next:%s\n", l.Name, l.HDP, l.DualBank, l.Next)

	for _, r := range l.Regions() {
		fmt.Fprintln(&buf, r)
	}

	for _, s := range l.Slots {
		fmt.Fprintf(&buf, "%-16s %-9s offset:%#.6x size:%#x\n", s.Name, s.Image, s.Offset, s.Size)
	}

	return buf.String(), nil
}

func stackallCmd(_ *term.Terminal, _ []string) (string, error) {
	buf := new(bytes.Buffer)
	_ = pprof.Lookup("goroutine").WriteTo(buf, 1)

	return buf.String(), nil
}
