// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm
// +build tamago,arm

// The nonsecure_os_go command is the Non-secure OS of the secure boot
// platform, it exercises the non-secure callable gateway and yields back to
// the Secure Monitor.
package main

import (
	"bytes"
	"log"
	"os"
	"runtime"
	_ "unsafe"

	"github.com/usbarmory/tamago/soc/nxp/imx6ul"

	"github.com/usbarmory/u5-secure-boot/gateway"
	"github.com/usbarmory/u5-secure-boot/mem"
)

//go:linkname ramStart runtime.ramStart
var ramStart uint32 = mem.NonSecureStart

//go:linkname ramSize runtime.ramSize
var ramSize uint32 = mem.NonSecureSize

//go:linkname hwinit runtime.hwinit
func hwinit() {
	imx6ul.Init()
}

//go:linkname printk runtime.printk
func printk(c byte) {
	printSecure(c)
}

func init() {
	log.SetFlags(log.Ltime)
	log.SetOutput(os.Stdout)

	imx6ul.SetARMFreq(900)
}

func testFlash(c *gateway.Client) {
	addr := mem.FlashNS(mem.TFM.NSDataWindow.Start)
	data := bytes.Repeat([]byte{0x5a}, 64)

	log.Printf("NS erasing data window sector %#.8x", addr)

	if err := c.FlashEraseSector(addr); err != nil {
		log.Printf("NS erase failed, %v", err)
		return
	}

	if err := c.FlashProgramData(addr, data); err != nil {
		log.Printf("NS program failed, %v", err)
		return
	}

	log.Printf("NS programmed %d bytes at %#.8x", len(data), addr)

	// outside the data window, this must be rejected
	if err := c.FlashEraseSector(mem.FlashS(0)); err != nil {
		log.Printf("NS secure sector erase rejected (%v)", err)
	} else {
		log.Printf("NS secure sector erase unexpectedly succeeded")
	}
}

func main() {
	log.Printf("%s/%s (%s) • system/supervisor (Non-secure)", runtime.GOOS, runtime.GOARCH, runtime.Version())

	c := &gateway.Client{Call: call}

	for _, id := range []int{gateway.SecureFaultCallback, gateway.GTZCErrorCallback} {
		if err := c.RegisterCallback(id); err != nil {
			log.Printf("NS could not register callback %d, %v", id, err)
		}
	}

	for i := 0; i < 2; i++ {
		if err := c.GPIOToggle(); err != nil {
			log.Printf("NS could not toggle secure GPIO, %v", err)
		}
	}

	testFlash(c)

	if err := c.ConfirmSecureImage(); err != nil {
		log.Printf("NS could not confirm secure image, %v", err)
	} else {
		log.Printf("NS confirmed secure image")
	}

	if faults, err := c.Faults(); err == nil {
		for _, f := range faults {
			log.Printf("NS received %s", f)
		}
	}

	// yield back to secure monitor
	log.Printf("NS is about to yield back")
	exit()

	// this should be unreachable
	log.Printf("NS says goodbye")
}
