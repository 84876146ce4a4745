// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm
// +build tamago,arm

package cmd

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"golang.org/x/term"

	layout "github.com/usbarmory/u5-secure-boot/mem"
	"github.com/usbarmory/u5-secure-boot/util"
)

// default stack sweep size
const sweepSize = 1024

func init() {
	Add(Cmd{
		Name:    "abort",
		Args:    1,
		Pattern: regexp.MustCompile(`^abort(?: (\d+))?$`),
		Syntax:  "(sweep bytes)?",
		Help:    "last Non-secure OS data abort with stack return addresses",
		Fn:      abortCmd,
	})
}

func withinNonSecureMemory(ptr uint32, size uint32) bool {
	return ptr >= layout.NonSecureStart && ptr-layout.NonSecureStart <= layout.NonSecureSize-size
}

func textRange() (text uint64, etext uint64, err error) {
	sym, err := util.LookupSym("runtime.text")

	if err != nil {
		return 0, 0, fmt.Errorf("could not find runtime.text symbol, %v", err)
	}

	text = sym.Value

	if sym, err = util.LookupSym("runtime.etext"); err != nil {
		return 0, 0, fmt.Errorf("could not find runtime.etext symbol, %v", err)
	}

	return text, sym.Value, nil
}

// abortCmd reports the last Non-secure OS data abort, the stack above the
// aborted context is swept for values pointing within the Non-secure OS
// text, which are resolved to source lines.
func abortCmd(_ *term.Terminal, arg []string) (res string, err error) {
	size := uint32(sweepSize)

	if len(arg[0]) > 0 {
		n, err := strconv.ParseUint(arg[0], 10, 32)

		if err != nil || n == 0 {
			return "", errors.New("invalid sweep size")
		}

		size = uint32(n) &^ 3
	}

	if Device == nil {
		return "", errors.New("port not initialized")
	}

	Device.Lock()
	a := Device.Abort
	Device.Unlock()

	if a == nil {
		return "no Non-secure OS data abort", nil
	}

	var buf bytes.Buffer

	fmt.Fprintf(&buf, "pc:%#.8x lr:%#.8x sp:%#.8x\n", a.PC, a.LR, a.SP)

	for _, r := range []struct {
		name string
		addr uint32
	}{
		{"pc", a.PC},
		{"lr", a.LR},
	} {
		if l, err := util.PCToLine(uint64(r.addr)); err == nil {
			fmt.Fprintf(&buf, "\t%s\t%s\n", r.name, l)
		}
	}

	if !withinNonSecureMemory(a.SP, size) {
		return buf.String(), fmt.Errorf("stack pointer outside Non-secure memory (%#x)", a.SP)
	}

	text, etext, err := textRange()

	if err != nil {
		return buf.String(), err
	}

	stack := memCopy(uint(a.SP), int(size), nil)

	for i := 0; i < len(stack); i += 4 {
		try := uint64(binary.LittleEndian.Uint32(stack[i : i+4]))

		if try < text || try > etext {
			continue
		}

		if l, err := util.PCToLine(try); err == nil {
			fmt.Fprintf(&buf, "\t%#.8x\t%s\n", try, l)
		}
	}

	return buf.String(), nil
}
