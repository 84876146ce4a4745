// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm
// +build tamago,arm

// The trusted_os_usbarmory command runs the secure boot platform on the USB
// armory Mk II, under GoTEE, with the management console served over SSH on
// USB networking.
package main

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"time"
	_ "unsafe"

	"golang.org/x/mod/sumdb/note"

	usbarmory "github.com/usbarmory/tamago/board/usbarmory/mk2"
	"github.com/usbarmory/tamago/dma"
	"github.com/usbarmory/tamago/soc/nxp/imx6ul"

	"github.com/usbarmory/imx-usbnet"

	"github.com/usbarmory/u5-secure-boot/mem"
	"github.com/usbarmory/u5-secure-boot/trusted_os_usbarmory/cmd"
	"github.com/usbarmory/u5-secure-boot/trusted_os_usbarmory/internal"
	"github.com/usbarmory/u5-secure-boot/util"
)

const (
	sshPort = 22
	IP      = "10.0.0.1"
	MAC     = "1a:55:89:a2:69:41"
	hostMAC = "1a:55:89:a2:69:42"
)

// Both assets are generated at build time: the Non-secure OS executable and
// the image manifest verifier key.
var (
	//go:embed assets/nonsecure_os_go.elf
	nonSecureOS []byte

	//go:embed assets/verifier.pub
	verifierKey string
)

//go:linkname ramStart runtime.ramStart
var ramStart uint32 = mem.SecureStart

//go:linkname ramSize runtime.ramSize
var ramSize uint32 = mem.SecureSize

func init() {
	log.SetFlags(log.Ltime)
	log.SetOutput(os.Stdout)

	// Move DMA region to prevent NonSecure access.
	dma.Init(mem.SecureDMAStart, mem.SecureDMASize)
	mem.Init()

	if imx6ul.Native {
		imx6ul.SetARMFreq(900)

		debugConsole, _ := usbarmory.DetectDebugAccessory(250 * time.Millisecond)
		<-debugConsole
	}

	log.Printf("%s/%s (%s) • secure boot platform (Secure World system/monitor)", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func main() {
	defer log.Printf("SM says goodbye")

	v, err := note.NewVerifier(strings.TrimSpace(verifierKey))

	if err != nil {
		log.Fatalf("SM invalid verifier key, %v", err)
	}

	gotee.OS = nonSecureOS

	d, err := gotee.New(mem.TFM, v)

	if err != nil {
		log.Fatalf("SM could not initialize platform, %v", err)
	}

	cmd.Device = d

	if !imx6ul.Native {
		if err = d.Boot(); err != nil {
			log.Fatal(err)
		}

		return
	}

	iface, err := usbnet.Init(IP, MAC, hostMAC, 1)

	if err != nil {
		log.Fatalf("SM could not initialize USB networking, %v", err)
	}

	iface.EnableICMP()

	listener, err := iface.ListenerTCP4(sshPort)

	if err != nil {
		log.Fatalf("SM could not initialize SSH listener, %v", err)
	}

	gotee.Console = &util.Console{
		Banner:   fmt.Sprintf("%s/%s (%s) • secure boot platform (Secure World system/monitor)", runtime.GOOS, runtime.GOARCH, runtime.Version()),
		Help:     cmd.Help,
		Handler:  cmd.Handle,
		Listener: listener,
	}

	if err = gotee.Console.Start(); err != nil {
		log.Fatalf("SM could not initialize SSH server, %v", err)
	}

	usbarmory.USB1.Init()
	usbarmory.USB1.DeviceMode()
	usbarmory.USB1.Reset()

	// never returns
	usbarmory.USB1.Start(iface.NIC.Device)
}
