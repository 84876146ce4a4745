// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// The trusted_os_u5 command runs the secure boot flow on an emulated STM32U5
// device, with persistent flash and option bytes, serving a management
// console over SSH or a serial port.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strings"

	"github.com/tarm/serial"
	"golang.org/x/mod/sumdb/note"

	"github.com/usbarmory/u5-secure-boot/boot"
	"github.com/usbarmory/u5-secure-boot/mem"
	"github.com/usbarmory/u5-secure-boot/soc/stm32u5"
	"github.com/usbarmory/u5-secure-boot/trusted_os_u5/cmd"
	"github.com/usbarmory/u5-secure-boot/trusted_os_u5/internal"
	"github.com/usbarmory/u5-secure-boot/util"
)

const serialBaud = 115200

var (
	dir     = flag.String("dir", "u5-device", "device storage directory")
	profile = flag.String("profile", "tfm", "memory layout profile (tfm|sbsfu|loader)")
	pub     = flag.String("pub", "", "image manifest verifier key file, empty disables signature checks")
	ns      = flag.String("ns", "", "non-secure application (WebAssembly) file")
	setOB   = flag.Bool("setob", true, "program mismatching option bytes")
	rdp     = flag.String("rdp", "0", "expected readout protection level (0|0.5|1|2)")
	hdp     = flag.Bool("hdp", true, "enable bootloader hide protection")
	sshAddr = flag.String("ssh", "127.0.0.1:2222", "SSH console address, empty to disable")
	tty     = flag.String("serial", "", "serial console device")
)

var rdpLevels = map[string]uint8{
	"0":   stm32u5.RDP_LEVEL0,
	"0.5": stm32u5.RDP_LEVEL05,
	"1":   stm32u5.RDP_LEVEL1,
	"2":   stm32u5.RDP_LEVEL2,
}

func init() {
	log.SetFlags(log.Ltime)
	log.SetOutput(os.Stdout)
}

func verifier(path string) (v note.Verifier, err error) {
	if len(path) == 0 {
		log.Printf("SM warning, image signature checks disabled")
		return
	}

	key, err := os.ReadFile(path)

	if err != nil {
		return
	}

	return note.NewVerifier(strings.TrimSpace(string(key)))
}

func config() (cfg emulator.Config, err error) {
	l, err := mem.Lookup(*profile)

	if err != nil {
		return
	}

	level, ok := rdpLevels[*rdp]

	if !ok {
		return cfg, fmt.Errorf("invalid readout protection level %q", *rdp)
	}

	v, err := verifier(*pub)

	if err != nil {
		return cfg, fmt.Errorf("could not load verifier key, %v", err)
	}

	cfg = emulator.Config{
		Bootloader: boot.Config{
			Layout:      l,
			EnableSetOB: *setOB,
			RDP:         level,
			HDP:         *hdp,
			Verifier:    v,
		},
		Storage: &emulator.Storage{Dir: *dir},
	}

	if len(*ns) > 0 {
		if cfg.NonSecure, err = os.ReadFile(*ns); err != nil {
			return
		}
	}

	return
}

func main() {
	flag.Parse()

	banner := fmt.Sprintf("%s/%s (%s) • STM32U5 secure boot emulator", runtime.GOOS, runtime.GOARCH, runtime.Version())
	log.Print(banner)

	defer log.Printf("SM says goodbye")

	cfg, err := config()

	if err != nil {
		log.Fatalf("SM invalid configuration, %v", err)
	}

	if err = os.MkdirAll(*dir, 0700); err != nil {
		log.Fatalf("SM could not create storage, %v", err)
	}

	d, err := emulator.New(cfg)

	if err != nil {
		log.Fatalf("SM could not initialize device, %v", err)
	}

	defer d.Close()

	cmd.Device = d

	if err = d.Boot(); err != nil {
		var fatal *boot.FatalError

		if !errors.As(err, &fatal) {
			log.Fatalf("SM boot error, %v", err)
		}

		log.Printf("SM device halted, %v", err)
	}

	console := &util.Console{
		Banner:  banner,
		Help:    cmd.Help,
		Handler: cmd.Handle,
	}

	if len(*sshAddr) > 0 {
		if console.Listener, err = net.Listen("tcp", *sshAddr); err != nil {
			log.Fatalf("SM could not initialize SSH listener, %v", err)
		}

		if err = console.Start(); err != nil {
			log.Fatalf("SM could not initialize SSH server, %v", err)
		}

		log.Printf("SM console listening on %s", *sshAddr)
	}

	if len(*tty) > 0 {
		port, err := serial.OpenPort(&serial.Config{Name: *tty, Baud: serialBaud})

		if err != nil {
			log.Fatalf("SM could not open %s, %v", *tty, err)
		}

		go func() {
			defer port.Close()

			console.Session(port)
			log.Printf("SM serial console closed")
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	<-sig
	_, _ = io.WriteString(os.Stdout, "\n")
}
