// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package boot

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/mod/sumdb/note"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/usbarmory/u5-secure-boot/boot/intrinsics"
	"github.com/usbarmory/u5-secure-boot/flash"
	"github.com/usbarmory/u5-secure-boot/gateway"
	"github.com/usbarmory/u5-secure-boot/image"
	"github.com/usbarmory/u5-secure-boot/mem"
	"github.com/usbarmory/u5-secure-boot/reg"
	"github.com/usbarmory/u5-secure-boot/soc/stm32u5"
)

type device struct {
	*stm32u5.Sim

	p      *Platform
	in     *intrinsics.Sim
	signer note.Signer
}

func newDevice(t *testing.T, l *mem.Layout) *device {
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

	sim := stm32u5.NewSim()
	in := &intrinsics.Sim{}
	in.OnReset = sim.SoC.SCB.SystemReset

	cfg := Config{
		Layout:   l,
		RDP:      stm32u5.RDP_LEVEL0,
		HDP:      l.HDP,
		Verifier: verifier,
	}

	p, err := New(cfg, sim.SoC, &stm32u5.FlashDriver{Flash: sim.SoC.Flash}, in, &gpiotest.Pin{N: "PC7"})

	if err != nil {
		t.Fatalf("New(): %v", err)
	}

	// provisioned device
	sim.SetOptionBytes(p.Config.Expected())

	return &device{
		Sim:    sim,
		p:      p,
		in:     in,
		signer: signer,
	}
}

// program writes a signed image, with the given vector table, in a slot.
func (d *device) program(t *testing.T, slot mem.Slot, v image.Version, sp uint32, pc uint32) []byte {
	t.Helper()

	payload := make([]byte, 0x1000)
	binary.LittleEndian.PutUint32(payload[0:], sp)
	binary.LittleEndian.PutUint32(payload[4:], pc)

	buf, err := image.Build(image.Header{Version: v}, payload, slot.Image, d.signer)

	if err != nil {
		t.Fatalf("Build(): %v", err)
	}

	if err = d.p.Flash.Initialize(); err != nil {
		t.Fatal(err)
	}

	padded := append([]byte(nil), buf...)

	if pad := len(padded) % mem.ProgramUnit; pad != 0 {
		padded = append(padded, make([]byte, mem.ProgramUnit-pad)...)
	}

	if err = d.p.Flash.ProgramData(slot.Offset, padded); err != nil {
		t.Fatalf("ProgramData(): %v", err)
	}

	return buf
}

func slot(t *testing.T, l *mem.Layout, id mem.ImageID, kind int) mem.Slot {
	t.Helper()

	s, err := l.Slot(id, kind)

	if err != nil {
		t.Fatal(err)
	}

	return s
}

const (
	tfmSP = 0x30040000
	tfmPC = 0x0c018000 + image.DefaultHeaderSize + 0x101
	nsSP  = 0x200c0000
	nsPC  = 0x08058000 + image.DefaultHeaderSize + 0x101
)

func newTFM(t *testing.T) *device {
	d := newDevice(t, mem.TFM)

	d.program(t, slot(t, mem.TFM, mem.SecureImage, mem.Primary), image.Version{Major: 1}, tfmSP, tfmPC)
	d.program(t, slot(t, mem.TFM, mem.NonSecureImage, mem.Primary), image.Version{Major: 1}, nsSP, nsPC)

	return d
}

func assertFatal(t *testing.T, d *device, err error, target error) {
	t.Helper()

	var fatal *FatalError

	if !errors.As(err, &fatal) || !errors.Is(err, target) {
		t.Fatalf("error = %v, want fatal %v", err, target)
	}

	if d.in.Resets() != 1 || d.Resets() != 1 {
		t.Errorf("resets = %d/%d, want 1", d.in.Resets(), d.Resets())
	}

	if len(d.in.Jumps()) != 0 {
		t.Errorf("unexpected jump after fatal error")
	}
}

func TestBootTFM(t *testing.T) {
	d := newTFM(t)

	if err := d.p.Boot(); err != nil {
		t.Fatalf("Boot(): %v", err)
	}

	want := []intrinsics.JumpRecord{{SP: tfmSP, PC: tfmPC}}

	if diff := cmp.Diff(want, d.in.Jumps()); diff != "" {
		t.Errorf("jumps diff (-want +got):\n%s", diff)
	}

	if d.p.state != stateHandoff {
		t.Errorf("state = %s, want %s", d.p.state, stateHandoff)
	}

	if !d.SoC.Flash.HDPAccessDisabled(0) {
		t.Errorf("HDP access not disabled")
	}

	if vtor := d.Peek(stm32u5.SCB_BASE + stm32u5.SCB_VTOR); vtor != 0x0c018000+image.DefaultHeaderSize {
		t.Errorf("VTOR = %#x", vtor)
	}

	shared, err := ReadSharedData(d, mem.TFM.Shared)

	if err != nil {
		t.Fatalf("ReadSharedData(): %v", err)
	}

	if shared.Profile != "tfm" || shared.Lifecycle != "0" || len(shared.Measurements) != 2 {
		t.Errorf("shared data = %+v", shared)
	}

	for _, m := range shared.Measurements {
		if m.Version != "1.0.0+0" || len(m.Digest) != 32 {
			t.Errorf("measurement = %+v", m)
		}
	}

	if d.Resets() != 0 {
		t.Errorf("unexpected reset")
	}
}

func TestBootInstall(t *testing.T) {
	d := newTFM(t)

	update := d.program(t, slot(t, mem.TFM, mem.SecureImage, mem.Secondary), image.Version{Major: 2}, tfmSP, tfmPC+2)

	if err := d.p.Gateway.TriggerInstall(mem.SecureImage, uint32(len(update))); err != nil {
		t.Fatalf("TriggerInstall(): %v", err)
	}

	if err := d.p.Boot(); err != nil {
		t.Fatalf("Boot(): %v", err)
	}

	if jumps := d.in.Jumps(); len(jumps) != 1 || jumps[0].PC != tfmPC+2 {
		t.Errorf("jumps = %v, want updated image", jumps)
	}

	if d.p.measurements[0].Version != "2.0.0+0" {
		t.Errorf("measured version = %s", d.p.measurements[0].Version)
	}

	primary, _, err := d.p.Slots.Status(mem.SecureImage)

	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(image.Trailer{Magic: true, CopyDone: true}, primary); diff != "" {
		t.Errorf("primary trailer diff (-want +got):\n%s", diff)
	}
}

// reboot resets the device and replaces the platform with a new instance.
func (d *device) reboot(t *testing.T) {
	t.Helper()

	d.SoC.SCB.SystemReset()

	p, err := New(d.p.Config, d.SoC, d.p.Flash, d.in, &gpiotest.Pin{N: "PC7"})

	if err != nil {
		t.Fatalf("New(): %v", err)
	}

	d.p = p
}

func TestBootMalformedTrailer(t *testing.T) {
	d := newTFM(t)

	if err := d.p.Flash.Initialize(); err != nil {
		t.Fatal(err)
	}

	junk := bytes.Repeat([]byte{0x5a}, image.FlagSize)

	for _, f := range []struct {
		kind int
		off  uint32
	}{
		{mem.Secondary, image.TrailerSize},
		{mem.Secondary, image.TrailerSize - image.FlagSize},
		{mem.Primary, image.TrailerSize - image.FlagSize},
	} {
		s := slot(t, mem.TFM, mem.NonSecureImage, f.kind)

		if err := d.p.Flash.ProgramData(s.End()-f.off, junk); err != nil {
			t.Fatalf("ProgramData(): %v", err)
		}
	}

	for i := 0; i < 2; i++ {
		if i > 0 {
			d.reboot(t)
		}

		if err := d.p.Boot(); err != nil {
			t.Fatalf("Boot() #%d: %v", i, err)
		}

		if jumps := d.in.Jumps(); len(jumps) != i+1 {
			t.Fatalf("boot #%d jumps = %v", i, jumps)
		}
	}
}

func TestBootRevertLostPrevious(t *testing.T) {
	d := newTFM(t)
	secondary := slot(t, mem.TFM, mem.NonSecureImage, mem.Secondary)

	update := d.program(t, secondary, image.Version{Major: 2}, nsSP, nsPC+2)

	if err := d.p.Gateway.TriggerInstall(mem.NonSecureImage, uint32(len(update))); err != nil {
		t.Fatalf("TriggerInstall(): %v", err)
	}

	if err := d.p.Boot(); err != nil {
		t.Fatalf("Boot(): %v", err)
	}

	// the non-secure application reclaims its update slot before
	// confirming the running image
	if err := flash.EraseRange(d.p.Flash, secondary.Offset, secondary.Size); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		d.reboot(t)

		if err := d.p.Boot(); err != nil {
			t.Fatalf("Boot() #%d: %v", i, err)
		}

		if v := d.p.measurements[1].Version; v != "2.0.0+0" {
			t.Errorf("boot #%d non-secure version = %s, want 2.0.0+0", i, v)
		}
	}

	primary, _, err := d.p.Slots.Status(mem.NonSecureImage)

	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(image.Trailer{Magic: true, ImageOK: true, CopyDone: true}, primary); diff != "" {
		t.Errorf("primary trailer diff (-want +got):\n%s", diff)
	}
}

func TestBootLoader(t *testing.T) {
	d := newDevice(t, mem.Loader)

	sp := uint32(mem.SRAMNS(mem.SRAM3Offset + mem.SRAM3Size))
	pc := uint32(mem.FlashNS(0x10000) + image.DefaultHeaderSize + 1)

	d.program(t, slot(t, mem.Loader, mem.NonSecureImage, mem.Primary), image.Version{Major: 3}, sp, pc)

	if err := d.p.Boot(); err != nil {
		t.Fatalf("Boot(): %v", err)
	}

	want := []intrinsics.JumpRecord{{SP: sp, PC: pc}}

	if diff := cmp.Diff(want, d.in.Jumps()); diff != "" {
		t.Errorf("jumps diff (-want +got):\n%s", diff)
	}

	if d.SoC.Flash.HDPAccessDisabled(0) {
		t.Errorf("HDP access disabled without hide protection")
	}
}

func TestBootInvalidImage(t *testing.T) {
	d := newDevice(t, mem.TFM)

	d.program(t, slot(t, mem.TFM, mem.SecureImage, mem.Primary), image.Version{Major: 1}, tfmSP, tfmPC)

	assertFatal(t, d, d.p.Boot(), ErrImage)
}

func TestHandoffVectorTable(t *testing.T) {
	for _, test := range []struct {
		desc string
		sp   uint32
		pc   uint32
	}{
		{"stack outside secure RAM", 0x20000000, tfmPC},
		{"stack in shared area", mem.SRAMS(0x100), tfmPC},
		{"stack past secure RAM", tfmSP + 4, tfmPC},
		{"reset handler in non-secure code", tfmSP, nsPC},
		{"reset handler in bootloader", tfmSP, mem.FlashS(0x101)},
	} {
		t.Run(test.desc, func(t *testing.T) {
			d := newTFM(t)
			update := d.program(t, slot(t, mem.TFM, mem.SecureImage, mem.Secondary), image.Version{Major: 2}, test.sp, test.pc)

			if err := d.p.Slots.Install(mem.SecureImage, uint32(len(update))); err != nil {
				t.Fatal(err)
			}

			// swap in the invalid vector table
			if action, err := d.p.Slots.Process(mem.SecureImage); err != nil || action != image.Install {
				t.Fatalf("Process() = %v, %v", action, err)
			}

			if err := d.p.InitProtections(); err != nil {
				t.Fatal(err)
			}

			if err := d.p.UpdateProtections(); err != nil {
				t.Fatal(err)
			}

			assertFatal(t, d, d.p.Handoff(), ErrImage)
		})
	}
}

func TestClearRAM(t *testing.T) {
	d := newDevice(t, mem.TFM)
	r := mem.TFM.BootData

	for addr := r.Start - 4; addr <= r.End(); addr += 4 {
		d.Poke(addr, 0xdeadbeef)
	}

	d.p.ClearRAM()

	if n := d.WritesIn(r.Start, r.Size); n != int(r.Size/4) {
		t.Errorf("ClearRAM() wrote %d words, want %d", n, r.Size/4)
	}

	for addr := r.Start; addr < r.End(); addr += 4 {
		if val := d.Peek(addr); val != 0 {
			t.Fatalf("%#x = %#x after ClearRAM()", addr, val)
		}
	}

	for _, addr := range []uint32{r.Start - 4, r.End()} {
		if val := d.Peek(addr); val != 0xdeadbeef {
			t.Errorf("%#x outside cleared area = %#x", addr, val)
		}
	}
}

func TestProbeWindows(t *testing.T) {
	d := newDevice(t, mem.TFM)

	if err := d.p.InitProtections(); err != nil {
		t.Fatal(err)
	}

	if err := d.p.UpdateProtections(); err != nil {
		t.Fatal(err)
	}

	for _, r := range mem.TFM.NonSecure {
		if a := d.p.Probe(r.Last()); !a.Allowed() {
			t.Errorf("%s: Probe(end-1 %#x) = %s, want allowed", r.Name, r.Last(), a)
		}

		if a := d.p.Probe(r.End()); a.Allowed() {
			t.Errorf("%s: Probe(end %#x) = %s, want denied", r.Name, r.End(), a)
		}
	}

	for _, r := range []mem.Region{mem.TFM.Boot, mem.TFM.BootData, mem.TFM.Shared, *mem.TFM.SecureCode} {
		if a := d.p.Probe(r.Start); a.Allowed() {
			t.Errorf("%s: Probe(%#x) = %s, want denied", r.Name, r.Start, a)
		}
	}

	if a := d.p.Probe(mem.FlashNS(0x58000)); a.NS.Write || !a.NS.Exec {
		t.Errorf("non-secure code access = %s", a)
	}

	if a := d.p.Probe(mem.FlashS(0x54000)); !a.NSC || a.NS != (stm32u5.Permissions{Exec: true}) {
		t.Errorf("veneer access = %s", a)
	}

	if a := d.p.Probe(mem.FlashS(0)); a.S.Exec {
		t.Errorf("bootloader code executable after update: %s", a)
	}

	if a := d.p.Probe(mem.FlashS(0x12000)); !a.S.Exec {
		t.Errorf("bootloader jump code not executable after update: %s", a)
	}

	if a := d.p.Probe(mem.TFM.Shared.Start); a.S.Write {
		t.Errorf("shared area writable after update: %s", a)
	}
}

func TestInitProtections(t *testing.T) {
	d := newDevice(t, mem.TFM)

	var masked []bool

	// record the fault interrupt state at SAU enable
	d.Hook(stm32u5.SAU_BASE+stm32u5.SAU_CTRL, func(_ uint32, _ uint32, val uint32) uint32 {
		masked = append(masked, !d.SoC.SCB.SecureFaultEnabled() && !d.SoC.SCB.IRQEnabled(stm32u5.GTZC_IRQ))
		return val
	})

	if err := d.p.InitProtections(); err != nil {
		t.Fatal(err)
	}

	for i, m := range masked {
		if !m {
			t.Errorf("SAU_CTRL write #%d with fault interrupts enabled", i)
		}
	}

	if !d.SoC.SCB.SecureFaultEnabled() || !d.SoC.SCB.IRQEnabled(stm32u5.GTZC_IRQ) {
		t.Errorf("fault interrupts not enabled")
	}

	if enabled, allNS := d.SoC.SAU.Enabled(); !enabled || allNS {
		t.Errorf("SAU enabled:%v allNS:%v", enabled, allNS)
	}

	for _, mpu := range []*stm32u5.MPU{d.SoC.MPU, d.SoC.MPUNS} {
		if enabled, privDefault := mpu.Enabled(); !enabled || privDefault {
			t.Errorf("MPU secure:%v enabled:%v privdefault:%v", mpu.Secure, enabled, privDefault)
		}
	}

	for _, periph := range DefaultSecurePeripherals {
		if !d.SoC.GTZC.TZSC.Secure(periph) {
			t.Errorf("peripheral %d not secure", periph)
		}
	}

	if d.SoC.GTZC.TZSC.Secure(stm32u5.PERIPH_USART1) {
		t.Errorf("USART1 secure")
	}

	if !d.SoC.GTZC.TZIC.Enabled() {
		t.Errorf("illegal access interrupts not enabled")
	}

	sram3 := d.SoC.GTZC.MPCBB[2]

	for off := uint32(0); off < sram3.Size; off += stm32u5.MPCBB_BLOCK {
		if sram3.Secure(off) {
			t.Fatalf("SRAM3 block %#x secure", off)
		}
	}

	if !d.SoC.GTZC.MPCBB[0].Secure(0) {
		t.Errorf("SRAM1 not secure")
	}
}

func TestStateMachine(t *testing.T) {
	for _, test := range []struct {
		desc string
		seq  []func(*Platform) error
	}{
		{
			desc: "update before init",
			seq:  []func(*Platform) error{(*Platform).UpdateProtections},
		},
		{
			desc: "init twice",
			seq:  []func(*Platform) error{(*Platform).InitProtections, (*Platform).InitProtections},
		},
		{
			desc: "update twice",
			seq:  []func(*Platform) error{(*Platform).InitProtections, (*Platform).UpdateProtections, (*Platform).UpdateProtections},
		},
		{
			desc: "handoff before update",
			seq:  []func(*Platform) error{(*Platform).InitProtections, (*Platform).Handoff},
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			d := newTFM(t)

			var err error

			for _, fn := range test.seq {
				if err = fn(d.p); err != nil {
					break
				}
			}

			assertFatal(t, d, err, ErrRuntimeProtection)
		})
	}
}

func TestReadbackMismatch(t *testing.T) {
	for _, addr := range []uint32{
		stm32u5.MPU_S_BASE + stm32u5.MPU_CTRL,
		stm32u5.MPU_NS_BASE + stm32u5.MPU_MAIR0,
		stm32u5.SAU_BASE + stm32u5.SAU_CTRL,
		stm32u5.GTZC_TZSC_BASE + stm32u5.TZSC_SECCFGR1 + 8,
		stm32u5.GTZC_MPCBB3_BASE + stm32u5.MPCBB_SECCFGR,
	} {
		d := newDevice(t, mem.TFM)
		d.Hook(addr, reg.ReadOnly())

		err := d.p.InitProtections()

		assertFatal(t, d, err, ErrRuntimeProtection)

		if d.SoC.SCB.SecureFaultEnabled() {
			t.Errorf("%#x: fault interrupts enabled after failure", addr)
		}
	}
}

func TestFaultDispatch(t *testing.T) {
	d := newDevice(t, mem.TFM)

	var faults []gateway.Fault

	if err := d.p.Gateway.RegisterCallback(gateway.SecureFaultCallback, func(f gateway.Fault) { faults = append(faults, f) }); err != nil {
		t.Fatal(err)
	}

	d.InjectSecureFault(0x0c000100)

	if err := d.p.SecureFault(); err != nil {
		t.Fatalf("SecureFault(): %v", err)
	}

	if d.Peek(stm32u5.SAU_BASE+stm32u5.SAU_SFSR) != 0 {
		t.Errorf("SFSR not cleared")
	}

	d.InjectIllegalAccess(stm32u5.PERIPH_USART1)

	// no GTZC callback
	assertFatal(t, d, d.p.GTZCError(), ErrFault)

	if pending := d.SoC.GTZC.TZIC.Pending(); len(pending) != 0 {
		t.Errorf("pending illegal accesses %v", pending)
	}

	want := []gateway.Fault{{
		Source: gateway.SecureFaultCallback,
		Addr:   0x0c000100,
		Status: 1<<stm32u5.SFSR_AUVIOL | 1<<stm32u5.SFSR_SFARVALID,
	}}

	if diff := cmp.Diff(want, faults); diff != "" {
		t.Errorf("faults diff (-want +got):\n%s", diff)
	}
}

func TestGTZCError(t *testing.T) {
	d := newDevice(t, mem.TFM)

	var ids []uint32

	if err := d.p.Gateway.RegisterCallback(gateway.GTZCErrorCallback, func(f gateway.Fault) { ids = append(ids, f.Status) }); err != nil {
		t.Fatal(err)
	}

	d.InjectIllegalAccess(stm32u5.PERIPH_USART1)
	d.InjectIllegalAccess(stm32u5.PERIPH_AES)

	if err := d.p.GTZCError(); err != nil {
		t.Fatalf("GTZCError(): %v", err)
	}

	if diff := cmp.Diff([]uint32{stm32u5.PERIPH_USART1, stm32u5.PERIPH_AES}, ids); diff != "" {
		t.Errorf("illegal access ids diff (-want +got):\n%s", diff)
	}
}
