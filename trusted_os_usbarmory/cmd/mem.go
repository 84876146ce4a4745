// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm
// +build tamago,arm

package cmd

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"golang.org/x/term"

	"github.com/usbarmory/tamago/dma"
)

const maxBufferSize = 102400

func init() {
	Add(Cmd{
		Name:    "peek",
		Args:    2,
		Pattern: regexp.MustCompile(`^peek ([[:xdigit:]]+) (\d+)$`),
		Syntax:  "<hex addr> <size>",
		Help:    "Non-secure OS memory display",
		Fn:      memReadCmd,
	})

	Add(Cmd{
		Name:    "poke",
		Args:    2,
		Pattern: regexp.MustCompile(`^poke ([[:xdigit:]]+) ([[:xdigit:]]+)$`),
		Syntax:  "<hex addr> <hex value>",
		Help:    "Non-secure OS memory write",
		Fn:      memWriteCmd,
	})

	Add(Cmd{
		Name:    "probe",
		Args:    1,
		Pattern: regexp.MustCompile(`^probe ([[:xdigit:]]+)$`),
		Syntax:  "<hex addr>",
		Help:    "show STM32U5 secure and non-secure access rights",
		Fn:      probeCmd,
	})
}

func memCopy(start uint, size int, w []byte) (b []byte) {
	mem, err := dma.NewRegion(start, size, true)

	if err != nil {
		panic("could not allocate memory copy DMA")
	}

	start, buf := mem.Reserve(size, 0)
	defer mem.Release(start)

	if len(w) > 0 {
		copy(buf, w)
	} else {
		b = make([]byte, size)
		copy(b, buf)
	}

	return
}

func memReadCmd(_ *term.Terminal, arg []string) (res string, err error) {
	addr, err := strconv.ParseUint(arg[0], 16, 32)

	if err != nil {
		return "", fmt.Errorf("invalid address, %v", err)
	}

	size, err := strconv.ParseUint(arg[1], 10, 32)

	if err != nil {
		return "", fmt.Errorf("invalid size, %v", err)
	}

	if (addr%4) != 0 || (size%4) != 0 {
		return "", fmt.Errorf("only 32-bit aligned accesses are supported")
	}

	if size > maxBufferSize {
		return "", fmt.Errorf("size argument must be <= %d", maxBufferSize)
	}

	if !withinNonSecureMemory(uint32(addr), uint32(size)) {
		return "", fmt.Errorf("%#x-%#x outside Non-secure OS memory", addr, addr+size)
	}

	return hex.Dump(memCopy(uint(addr), int(size), nil)), nil
}

func memWriteCmd(_ *term.Terminal, arg []string) (res string, err error) {
	addr, err := strconv.ParseUint(arg[0], 16, 32)

	if err != nil {
		return "", fmt.Errorf("invalid address, %v", err)
	}

	val, err := strconv.ParseUint(arg[1], 16, 32)

	if err != nil {
		return "", fmt.Errorf("invalid data, %v", err)
	}

	if addr%4 != 0 || !withinNonSecureMemory(uint32(addr), 4) {
		return "", fmt.Errorf("invalid Non-secure OS address %#x", addr)
	}

	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(val))

	memCopy(uint(addr), 4, buf)

	return
}

func probeCmd(_ *term.Terminal, arg []string) (res string, err error) {
	addr, err := strconv.ParseUint(arg[0], 16, 32)

	if err != nil {
		return "", fmt.Errorf("invalid address, %v", err)
	}

	if Device == nil {
		return "", errors.New("no device")
	}

	Device.Lock()
	defer Device.Unlock()

	if Device.Platform == nil {
		return "", errors.New("not booted, type `boot`")
	}

	return fmt.Sprintf("%#.8x %s", addr, Device.Platform.Probe(uint32(addr))), nil
}
