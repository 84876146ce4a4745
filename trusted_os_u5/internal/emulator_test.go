// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package emulator

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/mod/sumdb/note"
	"periph.io/x/conn/v3/gpio"

	"github.com/usbarmory/u5-secure-boot/boot"
	"github.com/usbarmory/u5-secure-boot/gateway"
	"github.com/usbarmory/u5-secure-boot/image"
	"github.com/usbarmory/u5-secure-boot/mem"
	"github.com/usbarmory/u5-secure-boot/soc/stm32u5"
)

var imports = []wasmImport{
	{gateway.SECURE_GPIO_Toggle, typeVoidI32},
	{gateway.SECURE_RegisterCallback, typeI32I32},
	{gateway.SECURE_TriggerInstall, typeI32x2I32},
	{NS_Read32, typeI32I64},
}

const (
	importToggle = iota
	importRegister
	importInstall
	importRead
)

func TestStorage(t *testing.T) {
	s := &Storage{Dir: t.TempDir()}

	ob, err := s.LoadOptionBytes()

	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(stm32u5.DefaultOptionBytes(), ob); diff != "" {
		t.Errorf("default option bytes diff (-want +got):\n%s", diff)
	}

	ob = boot.Expected(mem.TFM)
	ob.RDP = stm32u5.RDP_LEVEL1

	if err = s.SaveOptionBytes(ob); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadOptionBytes()

	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(ob, loaded); diff != "" {
		t.Errorf("loaded option bytes diff (-want +got):\n%s", diff)
	}
}

type testDevice struct {
	*Device

	signer note.Signer
}

func newTestDevice(t *testing.T, dir string, app []byte) *testDevice {
	t.Helper()

	skey, vkey, err := note.GenerateKey(rand.Reader, "test")

	if err != nil {
		t.Fatal(err)
	}

	signer, err := note.NewSigner(skey)

	if err != nil {
		t.Fatal(err)
	}

	verifier, err := note.NewVerifier(vkey)

	if err != nil {
		t.Fatal(err)
	}

	d, err := New(Config{
		Bootloader: boot.Config{
			Layout:      mem.TFM,
			EnableSetOB: true,
			RDP:         stm32u5.RDP_LEVEL0,
			HDP:         true,
			Verifier:    verifier,
		},
		Storage:   &Storage{Dir: dir},
		NonSecure: app,
		Output:    &bytes.Buffer{},
	})

	if err != nil {
		t.Fatalf("New(): %v", err)
	}

	t.Cleanup(func() { _ = d.Close() })

	td := &testDevice{Device: d, signer: signer}

	td.program(t, mem.SecureImage, 0x30040000, 0x0c018501)
	td.program(t, mem.NonSecureImage, 0x200c0000, 0x08058501)

	return td
}

func (d *testDevice) program(t *testing.T, id mem.ImageID, sp uint32, pc uint32) {
	t.Helper()

	slot, err := mem.TFM.Slot(id, mem.Primary)

	if err != nil {
		t.Fatal(err)
	}

	payload := make([]byte, 0x800)
	binary.LittleEndian.PutUint32(payload[0:], sp)
	binary.LittleEndian.PutUint32(payload[4:], pc)

	buf, err := image.Build(image.Header{Version: image.Version{Major: 1}}, payload, id, d.signer)

	if err != nil {
		t.Fatal(err)
	}

	if pad := len(buf) % mem.ProgramUnit; pad != 0 {
		buf = append(buf, bytes.Repeat([]byte{0xff}, mem.ProgramUnit-pad)...)
	}

	if err = d.Flash.ProgramData(slot.Offset, buf); err != nil {
		t.Fatal(err)
	}
}

func TestBootProvisioning(t *testing.T) {
	dir := t.TempDir()
	d := newTestDevice(t, dir, nil)

	if err := d.Boot(); err != nil {
		t.Fatalf("Boot(): %v", err)
	}

	// option bytes programming on first boot
	if n := d.Sim.Resets(); n != 1 {
		t.Errorf("resets = %d, want 1", n)
	}

	if jumps := d.Intrinsics.Jumps(); len(jumps) != 1 || jumps[0].PC != 0x0c018501 {
		t.Errorf("jumps = %v", jumps)
	}

	ob, err := d.Storage.LoadOptionBytes()

	if err != nil {
		t.Fatal(err)
	}

	if m := boot.Compare(ob, d.Platform.Config.Expected()); len(m) != 0 {
		t.Errorf("persisted option bytes mismatch %v", m)
	}

	if err = d.Close(); err != nil {
		t.Fatal(err)
	}

	// power cycle
	next, err := New(d.Config)

	if err != nil {
		t.Fatal(err)
	}

	defer next.Close()

	if err = next.Boot(); err != nil {
		t.Fatalf("Boot() after power cycle: %v", err)
	}

	if n := next.Sim.Resets(); n != 0 {
		t.Errorf("resets after power cycle = %d, want 0", n)
	}
}

func TestNonSecureGateway(t *testing.T) {
	app := wasmModule(imports, []wasmFunc{
		{
			export: EntryPoint,
			typ:    typeVoidI32,
			code: code(
				call(importToggle), []byte{opDrop},
				// loader images cannot be installed
				i32Const(uint32(mem.LoaderImage)), i32Const(0x1000), call(importInstall),
			),
		},
	})

	d := newTestDevice(t, t.TempDir(), app)

	if err := d.Boot(); err != nil {
		t.Fatalf("Boot(): %v", err)
	}

	if d.Pin.Read() != gpio.High {
		t.Errorf("secure GPIO not toggled")
	}

	if d.World == nil {
		t.Fatalf("non-secure application not started")
	}
}

func TestNonSecureFaultCallback(t *testing.T) {
	app := wasmModule(imports, []wasmFunc{
		{
			export: EntryPoint,
			typ:    typeVoidI32,
			code: code(
				i32Const(gateway.SecureFaultCallback), call(importRegister), []byte{opDrop},
				i32Const(0x0c000000), call(importRead), []byte{opDrop},
				i32Const(0),
			),
		},
		{
			export: SecureFaultExport,
			typ:    typeI32x2Void,
			code:   code(call(importToggle), []byte{opDrop}),
		},
	})

	d := newTestDevice(t, t.TempDir(), app)

	if err := d.Boot(); err != nil {
		t.Fatalf("Boot(): %v", err)
	}

	if d.Pin.Read() != gpio.High {
		t.Errorf("fault callback not delivered")
	}

	if pending := d.World.Pending(); len(pending) != 0 {
		t.Errorf("pending faults %v", pending)
	}

	if sfsr := d.Sim.Peek(stm32u5.SAU_BASE + stm32u5.SAU_SFSR); sfsr != 0 {
		t.Errorf("SFSR %#x not cleared", sfsr)
	}

	// delivered from the console
	if err := d.IllegalAccess(stm32u5.PERIPH_USART1); err == nil {
		t.Errorf("unhandled illegal access not fatal")
	}
}

func TestNonSecureFatalFault(t *testing.T) {
	app := wasmModule(imports, []wasmFunc{
		{
			export: EntryPoint,
			typ:    typeVoidI32,
			code: code(
				i32Const(0x30000000), call(importRead), []byte{opDrop},
				i32Const(0),
			),
		},
	})

	d := newTestDevice(t, t.TempDir(), app)
	err := d.Boot()

	if err == nil {
		t.Fatalf("Boot() succeeded after unhandled SecureFault")
	}

	if d.Intrinsics.Resets() != 1 {
		t.Errorf("intrinsics resets = %d, want 1", d.Intrinsics.Resets())
	}
}

func TestInvalidApplication(t *testing.T) {
	d := newTestDevice(t, t.TempDir(), []byte("not wasm"))

	if err := d.Boot(); err == nil {
		t.Errorf("Boot() with invalid application succeeded")
	}

	unknown := wasmModule([]wasmImport{{"SECURE_Unknown", typeVoidI32}}, []wasmFunc{
		{export: EntryPoint, typ: typeVoidI32, code: code(call(0))},
	})

	if _, err := NewNonSecure(d.Device, unknown); err == nil {
		t.Errorf("NewNonSecure() with unknown import succeeded")
	}
}
