// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cmd

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"golang.org/x/term"
)

func init() {
	Add(Cmd{
		Name: "boot",
		Help: "reset the device and run the boot flow",
		Fn:   bootCmd,
	})

	Add(Cmd{
		Name:    "fault",
		Args:    2,
		Pattern: regexp.MustCompile(`^fault (secure|gtzc) ([[:xdigit:]]+)$`),
		Syntax:  "<secure|gtzc> <hex addr|id>",
		Help:    "raise a SecureFault or a GTZC illegal access",
		Fn:      faultCmd,
	})
}

func bootCmd(_ *term.Terminal, _ []string) (res string, err error) {
	if Device == nil {
		return "", errors.New("no device")
	}

	if err = Device.Boot(); err != nil {
		return
	}

	return fmt.Sprintf("%s profile booted, pin %s", Device.Platform.Layout.Name, Device.Pin.Read()), nil
}

func faultCmd(_ *term.Terminal, arg []string) (res string, err error) {
	val, err := strconv.ParseUint(arg[1], 16, 32)

	if err != nil {
		return "", fmt.Errorf("invalid argument, %v", err)
	}

	_, release, err := platform()

	if err != nil {
		return
	}

	defer release()

	switch arg[0] {
	case "secure":
		err = Device.SecureFault(uint32(val))
	case "gtzc":
		err = Device.IllegalAccess(int(val))
	}

	if err != nil {
		return
	}

	return "fault handled", Device.Deliver()
}
