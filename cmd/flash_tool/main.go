// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// The flash_tool command builds signed firmware images and programs them in
// the slots of an emulated device flash.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"golang.org/x/mod/sumdb/note"

	"github.com/usbarmory/u5-secure-boot/flash"
	"github.com/usbarmory/u5-secure-boot/image"
	"github.com/usbarmory/u5-secure-boot/mem"
	"github.com/usbarmory/u5-secure-boot/soc/stm32u5"
)

// flashFile is the flash file name within a device storage directory.
const flashFile = "flash.bin"

var (
	dir     = flag.String("dir", "u5-device", "device storage directory")
	profile = flag.String("profile", "tfm", "memory layout profile (tfm|sbsfu|loader)")
	key     = flag.String("key", "", "signer key file")
	in      = flag.String("in", "", "firmware payload, starting with its vector table")
	id      = flag.String("image", "nonsecure", "image identity (secure|nonsecure|loader)")
	kind    = flag.String("slot", "secondary", "target slot (primary|secondary)")
	version = flag.String("version", "1.0.0", "image version (major.minor.revision+build)")
	install = flag.Bool("install", false, "request installation of a secondary slot image")
	wasm    = flag.Bool("wasm", false, "flag payload as WebAssembly")

	external = flag.Bool("external", false, "authenticate the input executable, loaded outside the slot, with a digest image")
	sp       = flag.Uint("sp", 0, "external image initial stack pointer")
	pc       = flag.Uint("pc", 0, "external image reset handler")
)

func imageID(name string) (mem.ImageID, error) {
	for _, id := range []mem.ImageID{mem.SecureImage, mem.NonSecureImage, mem.LoaderImage} {
		if id.String() == name {
			return id, nil
		}
	}

	return 0, fmt.Errorf("unknown image %q", name)
}

func signer(path string) (s note.Signer, err error) {
	buf, err := os.ReadFile(path)

	if err != nil {
		return
	}

	return note.NewSigner(strings.TrimSpace(string(buf)))
}

// program erases a slot and writes an image at its start.
func program(d flash.Driver, s mem.Slot, buf []byte) (err error) {
	if uint32(len(buf)) > s.Size-image.TrailerSize {
		return fmt.Errorf("%w (%d > %d)", image.ErrTooLarge, len(buf), s.Size-image.TrailerSize)
	}

	info := d.GetInfo()

	if pad := uint32(len(buf)) % info.ProgramUnit; pad != 0 {
		buf = append(buf, bytes.Repeat([]byte{info.ErasedValue}, int(info.ProgramUnit-pad))...)
	}

	if err = flash.EraseRange(d, s.Offset, s.Size); err != nil {
		return
	}

	return d.ProgramData(s.Offset, buf)
}

func run() (err error) {
	l, err := mem.Lookup(*profile)

	if err != nil {
		return
	}

	img, err := imageID(*id)

	if err != nil {
		return
	}

	k := mem.Secondary

	if *kind == "primary" {
		k = mem.Primary
	}

	slot, err := l.Slot(img, k)

	if err != nil {
		return
	}

	v, err := image.ParseVersion(*version)

	if err != nil {
		return
	}

	s, err := signer(*key)

	if err != nil {
		return fmt.Errorf("could not load signer key, %v", err)
	}

	payload, err := os.ReadFile(*in)

	if err != nil {
		return
	}

	h := image.Header{Version: v}

	if *wasm {
		h.Flags |= image.FLAG_WASM
	}

	if *external {
		if *sp == 0 || *pc == 0 {
			return fmt.Errorf("external images require --sp and --pc")
		}

		h.Flags |= image.FLAG_EXTERNAL
		payload = image.External(uint32(*sp), uint32(*pc), payload)
	}

	buf, err := image.Build(h, payload, img, s)

	if err != nil {
		return
	}

	d := flash.NewFile(filepath.Join(*dir, flashFile), stm32u5.Info)

	if err = os.MkdirAll(*dir, 0700); err != nil {
		return
	}

	if err = d.Initialize(); err != nil {
		return
	}

	defer d.Uninitialize()

	if err = program(d, slot, buf); err != nil {
		return
	}

	glog.Infof("programmed %s image %s (%d bytes) in %s", img, v, len(buf), slot.Name)

	if !*install {
		return
	}

	if k != mem.Secondary {
		return fmt.Errorf("installation requires the secondary slot")
	}

	slots := &image.Slots{
		Flash:  d,
		Layout: l,
	}

	if err = slots.Install(img, uint32(len(buf))); err != nil {
		return
	}

	glog.Infof("%s image installation pending", img)

	return
}

func main() {
	flag.Parse()
	defer glog.Flush()

	if len(*key) == 0 || len(*in) == 0 {
		glog.Exit("--key and --in are required")
	}

	if err := run(); err != nil {
		glog.Exit(err)
	}
}
