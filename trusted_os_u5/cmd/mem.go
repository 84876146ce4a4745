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
)

const maxPeek = 64

func init() {
	Add(Cmd{
		Name:    "probe",
		Args:    1,
		Pattern: regexp.MustCompile(`^probe ([[:xdigit:]]+)$`),
		Syntax:  "<hex addr>",
		Help:    "show secure and non-secure access rights",
		Fn:      probeCmd,
	})

	Add(Cmd{
		Name:    "peek",
		Args:    2,
		Pattern: regexp.MustCompile(`^peek ([[:xdigit:]]+)(?: (\d+))?$`),
		Syntax:  "<hex addr> (words)",
		Help:    "memory display",
		Fn:      peekCmd,
	})

	Add(Cmd{
		Name:    "poke",
		Args:    2,
		Pattern: regexp.MustCompile(`^poke ([[:xdigit:]]+) ([[:xdigit:]]+)$`),
		Syntax:  "<hex addr> <hex value>",
		Help:    "memory write",
		Fn:      pokeCmd,
	})
}

func parseAddr(s string) (addr uint32, err error) {
	v, err := strconv.ParseUint(s, 16, 32)

	if err != nil {
		return 0, fmt.Errorf("invalid address, %v", err)
	}

	if v%4 != 0 {
		return 0, fmt.Errorf("unaligned address %#x", v)
	}

	return uint32(v), nil
}

func probeCmd(_ *term.Terminal, arg []string) (res string, err error) {
	addr, err := strconv.ParseUint(arg[0], 16, 32)

	if err != nil {
		return "", fmt.Errorf("invalid address, %v", err)
	}

	p, release, err := platform()

	if err != nil {
		return
	}

	defer release()

	return fmt.Sprintf("%#.8x %s", addr, p.Probe(uint32(addr))), nil
}

func peekCmd(_ *term.Terminal, arg []string) (res string, err error) {
	addr, err := parseAddr(arg[0])

	if err != nil {
		return
	}

	n := 1

	if len(arg[1]) > 0 {
		if n, err = strconv.Atoi(arg[1]); err != nil {
			return "", fmt.Errorf("invalid size, %v", err)
		}
	}

	if n < 1 || n > maxPeek {
		return "", fmt.Errorf("size must be between 1 and %d", maxPeek)
	}

	_, release, err := platform()

	if err != nil {
		return
	}

	defer release()

	var buf bytes.Buffer

	for i := 0; i < n; i++ {
		if i%4 == 0 {
			if i > 0 {
				buf.WriteByte('\n')
			}

			fmt.Fprintf(&buf, "%.8x:", addr+uint32(i*4))
		}

		fmt.Fprintf(&buf, " %.8x", Device.Sim.Peek(addr+uint32(i*4)))
	}

	return buf.String(), nil
}

func pokeCmd(_ *term.Terminal, arg []string) (res string, err error) {
	addr, err := parseAddr(arg[0])

	if err != nil {
		return
	}

	val, err := strconv.ParseUint(arg[1], 16, 32)

	if err != nil {
		return "", fmt.Errorf("invalid value, %v", err)
	}

	_, release, err := platform()

	if err != nil {
		return
	}

	defer release()

	Device.Sim.Write32(addr, uint32(val))

	return
}
