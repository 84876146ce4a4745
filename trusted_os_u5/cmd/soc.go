// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"fmt"
	"regexp"

	"golang.org/x/term"

	"github.com/usbarmory/u5-secure-boot/boot"
	"github.com/usbarmory/u5-secure-boot/soc/stm32u5"
)

func init() {
	Add(Cmd{
		Name: "ob",
		Help: "show option bytes and protection mismatches",
		Fn:   obCmd,
	})

	Add(Cmd{
		Name: "sau",
		Help: "show SAU regions",
		Fn:   sauCmd,
	})

	Add(Cmd{
		Name:    "mpu",
		Args:    1,
		Pattern: regexp.MustCompile(`^mpu (s|ns)$`),
		Syntax:  "<s|ns>",
		Help:    "show secure or non-secure MPU regions",
		Fn:      mpuCmd,
	})

	Add(Cmd{
		Name: "gtzc",
		Help: "show GTZC peripheral and SRAM block attribution",
		Fn:   gtzcCmd,
	})
}

func obCmd(_ *term.Terminal, _ []string) (res string, err error) {
	p, release, err := platform()

	if err != nil {
		return
	}

	defer release()

	var buf bytes.Buffer

	ob := p.SoC.Flash.OptionBytes()
	programmed := Device.Sim.ProgrammedOptionBytes()

	fmt.Fprintf(&buf, "current:    %s\n", &ob)
	fmt.Fprintf(&buf, "programmed: %s\n", &programmed)

	for _, m := range boot.Compare(ob, p.Config.Expected()) {
		fmt.Fprintf(&buf, "mismatch %s settable:%v\n", m, m.Settable)
	}

	return buf.String(), nil
}

func sauCmd(_ *term.Terminal, _ []string) (res string, err error) {
	p, release, err := platform()

	if err != nil {
		return
	}

	defer release()

	var buf bytes.Buffer

	enabled, allNS := p.SoC.SAU.Enabled()
	fmt.Fprintf(&buf, "SAU enabled:%v allns:%v\n", enabled, allNS)

	for n := 0; n < p.SoC.SAU.Regions(); n++ {
		fmt.Fprintf(&buf, "%2d %s\n", n, p.SoC.SAU.Region(n))
	}

	return buf.String(), nil
}

func mpuCmd(_ *term.Terminal, arg []string) (res string, err error) {
	p, release, err := platform()

	if err != nil {
		return
	}

	defer release()

	var buf bytes.Buffer

	mpu := p.SoC.MPU

	if arg[0] == "ns" {
		mpu = p.SoC.MPUNS
	}

	enabled, privDefault := mpu.Enabled()
	fmt.Fprintf(&buf, "MPU secure:%v enabled:%v privdefena:%v\n", mpu.Secure, enabled, privDefault)

	for n := 0; n < mpu.Regions(); n++ {
		fmt.Fprintf(&buf, "%2d %s\n", n, mpu.Region(n))
	}

	return buf.String(), nil
}

func gtzcCmd(_ *term.Terminal, _ []string) (res string, err error) {
	p, release, err := platform()

	if err != nil {
		return
	}

	defer release()

	var buf bytes.Buffer

	gtzc := p.SoC.GTZC

	for _, periph := range p.SecurePeripherals {
		fmt.Fprintf(&buf, "TZSC periph %d secure:%v\n", periph, gtzc.TZSC.Secure(periph))
	}

	fmt.Fprintf(&buf, "TZIC enabled:%v pending:%v\n", gtzc.TZIC.Enabled(), gtzc.TZIC.Pending())

	for _, m := range gtzc.MPCBB {
		secure := 0

		for off := uint32(0); off < m.Size; off += stm32u5.MPCBB_BLOCK {
			if m.Secure(off) {
				secure += 1
			}
		}

		fmt.Fprintf(&buf, "MPCBB %s secure blocks:%d/%d\n", m.Name, secure, m.Blocks())
	}

	return buf.String(), nil
}
