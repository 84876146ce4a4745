// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
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

	"github.com/usbarmory/tamago/bits"
	"github.com/usbarmory/tamago/soc/nxp/csu"
	"github.com/usbarmory/tamago/soc/nxp/imx6ul"
)

func init() {
	Add(Cmd{
		Name: "csl",
		Help: "show config security levels (CSL)",
		Fn:   cslCmd,
	})

	Add(Cmd{
		Name: "sa",
		Help: "show security access (SA)",
		Fn:   saCmd,
	})

	Add(Cmd{
		Name: "dbg",
		Help: "show ARM debug permissions",
		Fn:   dbgCmd,
	})
}

func cslCmd(_ *term.Terminal, _ []string) (string, error) {
	var buf bytes.Buffer

	for i := csu.CSL_MIN; i <= csu.CSL_MAX; i++ {
		csl0, _, _ := imx6ul.CSU.GetSecurityLevel(i, 0)
		csl1, _, _ := imx6ul.CSU.GetSecurityLevel(i, 1)

		fmt.Fprintf(&buf, "CSL%.2d 0:%#.2x 1:%#.2x\n", i, csl0, csl1)
	}

	return buf.String(), nil
}

func saCmd(_ *term.Terminal, _ []string) (string, error) {
	var buf bytes.Buffer

	for i := csu.SA_MIN; i <= csu.SA_MAX; i++ {
		state := "nonsecure"

		if secure, _, _ := imx6ul.CSU.GetAccess(i); secure {
			state = "secure"
		}

		fmt.Fprintf(&buf, "SA%.2d: %s\n", i, state)
	}

	return buf.String(), nil
}

func dbgCmd(_ *term.Terminal, _ []string) (string, error) {
	var buf bytes.Buffer

	if !imx6ul.Native {
		return "", errors.New("unsupported under emulation")
	}

	status := imx6ul.ARM.DebugStatus()

	buf.WriteString("| type                    | implemented | enabled |\n")
	buf.WriteString("|-------------------------|-------------|---------|\n")

	for i, name := range []string{"Secure non-invasive", "Secure invasive", "Non-secure non-invasive", "Non-secure invasive"} {
		pos := 6 - i*2

		fmt.Fprintf(&buf, "| %-23s |           %d |       %d |\n", name,
			bits.GetN(&status, pos+1, 1),
			bits.GetN(&status, pos, 1),
		)
	}

	return buf.String(), nil
}
