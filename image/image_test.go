// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package image

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/mod/sumdb/note"

	"github.com/usbarmory/u5-secure-boot/flash"
	"github.com/usbarmory/u5-secure-boot/mem"
)

var testInfo = flash.Info{
	Size:        mem.FlashSize,
	SectorSize:  mem.PageSize,
	ProgramUnit: mem.ProgramUnit,
	ErasedValue: 0xff,
}

func newKeys(t *testing.T, name string) (note.Signer, note.Verifier) {
	t.Helper()

	skey, vkey, err := note.GenerateKey(rand.Reader, name)

	if err != nil {
		t.Fatalf("GenerateKey(): %v", err)
	}

	s, err := note.NewSigner(skey)

	if err != nil {
		t.Fatalf("NewSigner(): %v", err)
	}

	v, err := note.NewVerifier(vkey)

	if err != nil {
		t.Fatalf("NewVerifier(): %v", err)
	}

	return s, v
}

func testPayload(sp uint32, pc uint32, n int) []byte {
	buf := make([]byte, n)
	binary.LittleEndian.PutUint32(buf[0:], sp)
	binary.LittleEndian.PutUint32(buf[4:], pc)

	for i := VectorTableSize; i < n; i++ {
		buf[i] = byte(i)
	}

	return buf
}

func buildImage(t *testing.T, s note.Signer, id mem.ImageID, v Version, size int) []byte {
	t.Helper()

	buf, err := Build(Header{Version: v}, testPayload(0x30040000, 0x0c018401+uint32(v.Major), size), id, s)

	if err != nil {
		t.Fatalf("Build(): %v", err)
	}

	return buf
}

func newFlash(t *testing.T) *flash.Mem {
	t.Helper()

	d := flash.NewMem(testInfo)

	if err := d.Initialize(); err != nil {
		t.Fatal(err)
	}

	return d
}

// program writes a buffer padded to the program unit.
func program(t *testing.T, d flash.Driver, off uint32, buf []byte) {
	t.Helper()

	if pad := len(buf) % mem.ProgramUnit; pad != 0 {
		buf = append(buf, bytes.Repeat([]byte{0xff}, mem.ProgramUnit-pad)...)
	}

	if err := d.ProgramData(off, buf); err != nil {
		t.Fatalf("ProgramData(%#x): %v", off, err)
	}
}

func TestBuildVerify(t *testing.T) {
	s, v := newKeys(t, "test")
	_, other := newKeys(t, "test")

	version := Version{Major: 1, Minor: 2, Revision: 3, Build: 4}
	buf := buildImage(t, s, mem.SecureImage, version, 1000)

	img, err := Parse(buf)

	if err != nil {
		t.Fatalf("Parse(): %v", err)
	}

	if got, want := img.Size(), uint32(len(buf)); got != want {
		t.Errorf("Size() = %d, want %d", got, want)
	}

	if img.Header.HeaderSize != DefaultHeaderSize {
		t.Errorf("HeaderSize = %#x, want %#x", img.Header.HeaderSize, DefaultHeaderSize)
	}

	m, err := img.Verify(mem.SecureImage, v)

	if err != nil {
		t.Fatalf("Verify(): %v", err)
	}

	want := &Manifest{Image: mem.SecureImage, Version: version, Digest: img.Digest()}

	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("Verify() manifest diff (-want +got):\n%s", diff)
	}

	if sp, pc := img.VectorTable(); sp != 0x30040000 || pc != 0x0c018402 {
		t.Errorf("VectorTable() = %#x, %#x", sp, pc)
	}

	for _, test := range []struct {
		desc string
		id   mem.ImageID
		v    note.Verifier
		mod  func([]byte)
		err  error
	}{
		{
			desc: "wrong image identity",
			id:   mem.NonSecureImage,
			v:    v,
			err:  ErrManifest,
		},
		{
			desc: "unknown signer",
			id:   mem.SecureImage,
			v:    other,
			err:  ErrManifest,
		},
		{
			desc: "tampered payload",
			id:   mem.SecureImage,
			v:    v,
			mod:  func(b []byte) { b[DefaultHeaderSize+100] ^= 0xff },
			err:  ErrHash,
		},
		{
			desc: "tampered header",
			id:   mem.SecureImage,
			v:    nil,
			mod:  func(b []byte) { b[HeaderLength+1] = 0xaa },
			err:  ErrHash,
		},
		{
			desc: "digest only",
			id:   mem.NonSecureImage,
			v:    nil,
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			b := append([]byte(nil), buf...)

			if test.mod != nil {
				test.mod(b)
			}

			img, err := Parse(b)

			if err != nil {
				t.Fatalf("Parse(): %v", err)
			}

			if _, err := img.Verify(test.id, test.v); !errors.Is(err, test.err) {
				t.Errorf("Verify() = %v, want %v", err, test.err)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	s, _ := newKeys(t, "test")
	buf := buildImage(t, s, mem.SecureImage, Version{Major: 1}, 64)

	for _, test := range []struct {
		desc string
		buf  []byte
		err  error
	}{
		{"short header", buf[:10], ErrFormat},
		{"bad magic", append([]byte{0}, buf[1:]...), ErrBadMagic},
		{"truncated payload", buf[:DefaultHeaderSize+10], ErrFormat},
		{"truncated TLV area", buf[:len(buf)-1], ErrFormat},
	} {
		t.Run(test.desc, func(t *testing.T) {
			if _, err := Parse(test.buf); !errors.Is(err, test.err) {
				t.Errorf("Parse() = %v, want %v", err, test.err)
			}
		})
	}
}

func TestExternal(t *testing.T) {
	s, _ := newKeys(t, "test")
	exe := []byte("\x7fELF executable")

	buf, err := Build(Header{Flags: FLAG_EXTERNAL}, External(0x200c0000, 0x08058409, exe), mem.NonSecureImage, s)

	if err != nil {
		t.Fatal(err)
	}

	img, err := Parse(buf)

	if err != nil {
		t.Fatal(err)
	}

	if sp, pc := img.VectorTable(); sp != 0x200c0000 || pc != 0x08058409 {
		t.Errorf("VectorTable() = %#x, %#x", sp, pc)
	}

	if err = img.VerifyExternal(exe); err != nil {
		t.Errorf("VerifyExternal(): %v", err)
	}

	if err = img.VerifyExternal(exe[1:]); !errors.Is(err, ErrHash) {
		t.Errorf("VerifyExternal(modified) = %v, want %v", err, ErrHash)
	}

	img.Header.Flags = 0

	if err = img.VerifyExternal(exe); !errors.Is(err, ErrFormat) {
		t.Errorf("VerifyExternal(no flag) = %v, want %v", err, ErrFormat)
	}
}

func TestParseVersion(t *testing.T) {
	for _, test := range []struct {
		s    string
		want Version
		fail bool
	}{
		{s: "1.2.3+4", want: Version{1, 2, 3, 4}},
		{s: "2.0.0", want: Version{Major: 2}},
		{s: "1.2", fail: true},
		{s: "256.0.0", fail: true},
		{s: "1.0.0+x", fail: true},
	} {
		v, err := ParseVersion(test.s)

		if test.fail {
			if err == nil {
				t.Errorf("ParseVersion(%q) did not fail", test.s)
			}

			continue
		}

		if err != nil {
			t.Errorf("ParseVersion(%q): %v", test.s, err)
		} else if v != test.want {
			t.Errorf("ParseVersion(%q) = %s, want %s", test.s, v, test.want)
		} else if v.String() != test.s && test.want.Build != 0 {
			t.Errorf("String() = %s, want %s", v, test.s)
		}
	}
}

func TestWriteMagicSize(t *testing.T) {
	d := newFlash(t)
	slot := mem.Slot{Name: "test", Image: mem.SecureImage, Kind: mem.Secondary, Offset: 0x100000, Size: 0x4000}

	if err := WriteMagic(d, slot, slot.Size-TrailerSize+1); !errors.Is(err, ErrTooLarge) {
		t.Errorf("WriteMagic(slot_size - trailer + 1) = %v, want %v", err, ErrTooLarge)
	}

	tr, err := ReadTrailer(d, slot)

	if err != nil {
		t.Fatalf("ReadTrailer(): %v", err)
	}

	if tr.Magic {
		t.Fatalf("refused trailer written")
	}

	if err := WriteMagic(d, slot, slot.Size-TrailerSize); err != nil {
		t.Errorf("WriteMagic(slot_size - trailer) = %v", err)
	}

	raw, _ := flash.Read(d, slot.End()-MagicSize, MagicSize)

	want := []byte{0x77, 0xc2, 0x95, 0xf3, 0x60, 0xd2, 0xef, 0x7f, 0x35, 0x52, 0x50, 0x0f, 0x2c, 0xb6, 0x79, 0x80}

	if !bytes.Equal(raw, want) {
		t.Errorf("magic = %x, want %x", raw, want)
	}

	// rewriting the same magic is a no-op
	if err := WriteMagic(d, slot, 16); err != nil {
		t.Errorf("second WriteMagic(): %v", err)
	}
}

func TestConfirmIdempotent(t *testing.T) {
	d := newFlash(t)
	slot := mem.TFM.Slots[0]

	for i := 0; i < 2; i++ {
		if err := Confirm(d, slot); err != nil {
			t.Fatalf("Confirm() #%d: %v", i, err)
		}
	}

	raw, _ := flash.Read(d, slot.End()-32, 16)
	want := append([]byte{0x01}, bytes.Repeat([]byte{0xff}, 15)...)

	if !bytes.Equal(raw, want) {
		t.Errorf("confirm flag = %x, want %x", raw, want)
	}

	tr, err := ReadTrailer(d, slot)

	if err != nil {
		t.Fatalf("ReadTrailer(): %v", err)
	}

	if diff := cmp.Diff(Trailer{ImageOK: true}, tr); diff != "" {
		t.Errorf("ReadTrailer() diff (-want +got):\n%s", diff)
	}
}

func TestConfirmCorrupt(t *testing.T) {
	d := newFlash(t)
	slot := mem.TFM.Slots[0]

	program(t, d, slot.End()-32, bytes.Repeat([]byte{0x5a}, 16))

	if err := Confirm(d, slot); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Confirm() = %v, want %v", err, ErrCorrupt)
	}

	tr, err := ReadTrailer(d, slot)

	if err != nil {
		t.Fatalf("ReadTrailer(): %v", err)
	}

	if tr.ImageOK {
		t.Errorf("malformed image ok flag reads as set")
	}
}

func primaryVersion(t *testing.T, s *Slots, id mem.ImageID) Version {
	t.Helper()

	primary, _ := s.Layout.Slot(id, mem.Primary)
	_, m, err := s.Validate(primary)

	if err != nil {
		t.Fatalf("Validate(primary): %v", err)
	}

	return m.Version
}

func newSlots(t *testing.T) (*Slots, note.Signer) {
	t.Helper()

	signer, v := newKeys(t, "test")

	s := &Slots{
		Flash:    newFlash(t),
		Layout:   mem.TFM,
		Verifier: v,
	}

	primary, _ := mem.TFM.Slot(mem.SecureImage, mem.Primary)
	program(t, s.Flash, primary.Offset, buildImage(t, signer, mem.SecureImage, Version{Major: 1}, 0x3000))

	return s, signer
}

func TestInstallRevert(t *testing.T) {
	s, signer := newSlots(t)
	_, secondary, _ := s.pair(mem.SecureImage)

	update := buildImage(t, signer, mem.SecureImage, Version{Major: 2}, 0x5000)
	program(t, s.Flash, secondary.Offset, update)

	if err := s.Install(mem.SecureImage, uint32(len(update))); err != nil {
		t.Fatalf("Install(): %v", err)
	}

	for i, test := range []struct {
		action  Action
		version uint8
		primary Trailer
	}{
		{Install, 2, Trailer{Magic: true, CopyDone: true}},
		{Revert, 1, Trailer{Magic: true, ImageOK: true, CopyDone: true}},
		{None, 1, Trailer{Magic: true, ImageOK: true, CopyDone: true}},
	} {
		action, err := s.Process(mem.SecureImage)

		if err != nil {
			t.Fatalf("Process() #%d: %v", i, err)
		}

		if action != test.action {
			t.Errorf("Process() #%d = %s, want %s", i, action, test.action)
		}

		if v := primaryVersion(t, s, mem.SecureImage); v.Major != test.version {
			t.Errorf("boot #%d primary version = %s, want %d", i, v, test.version)
		}

		pt, st, err := s.Status(mem.SecureImage)

		if err != nil {
			t.Fatalf("Status(): %v", err)
		}

		if diff := cmp.Diff(test.primary, pt); diff != "" {
			t.Errorf("boot #%d primary trailer diff (-want +got):\n%s", i, diff)
		}

		if st.Magic {
			t.Errorf("boot #%d secondary still pending installation", i)
		}
	}
}

func TestRevertInvalidPrevious(t *testing.T) {
	s, signer := newSlots(t)
	_, secondary, _ := s.pair(mem.SecureImage)

	update := buildImage(t, signer, mem.SecureImage, Version{Major: 2}, 0x800)
	program(t, s.Flash, secondary.Offset, update)

	if err := s.Install(mem.SecureImage, uint32(len(update))); err != nil {
		t.Fatalf("Install(): %v", err)
	}

	if action, err := s.Process(mem.SecureImage); err != nil || action != Install {
		t.Fatalf("Process() = %s, %v, want %s", action, err, Install)
	}

	// previous image lost before confirmation
	if err := flash.EraseRange(s.Flash, secondary.Offset, secondary.Size); err != nil {
		t.Fatal(err)
	}

	for i, want := range []Action{Kept, None, None} {
		action, err := s.Process(mem.SecureImage)

		if err != nil || action != want {
			t.Fatalf("Process() #%d = %s, %v, want %s", i, action, err, want)
		}

		if v := primaryVersion(t, s, mem.SecureImage); v.Major != 2 {
			t.Errorf("boot #%d primary version = %s, want 2", i, v)
		}
	}

	pt, _, err := s.Status(mem.SecureImage)

	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(Trailer{Magic: true, ImageOK: true, CopyDone: true}, pt); diff != "" {
		t.Errorf("primary trailer diff (-want +got):\n%s", diff)
	}
}

func TestInstallConfirm(t *testing.T) {
	s, signer := newSlots(t)
	_, secondary, _ := s.pair(mem.SecureImage)

	update := buildImage(t, signer, mem.SecureImage, Version{Major: 2}, 0x100)
	program(t, s.Flash, secondary.Offset, update)

	if err := s.Install(mem.SecureImage, uint32(len(update))); err != nil {
		t.Fatalf("Install(): %v", err)
	}

	if action, err := s.Process(mem.SecureImage); err != nil || action != Install {
		t.Fatalf("Process() = %s, %v", action, err)
	}

	if err := s.Confirm(mem.SecureImage); err != nil {
		t.Fatalf("Confirm(): %v", err)
	}

	if action, err := s.Process(mem.SecureImage); err != nil || action != None {
		t.Errorf("Process() after Confirm() = %s, %v", action, err)
	}

	if v := primaryVersion(t, s, mem.SecureImage); v.Major != 2 {
		t.Errorf("primary version = %s, want 2", v)
	}
}

func TestInstallRefused(t *testing.T) {
	s, signer := newSlots(t)
	_, secondary, _ := s.pair(mem.SecureImage)

	ns := buildImage(t, signer, mem.NonSecureImage, Version{Major: 2}, 0x100)
	program(t, s.Flash, secondary.Offset, ns)

	for _, test := range []struct {
		desc string
		size uint32
		err  error
	}{
		{"overlapping trailer", secondary.Size - TrailerSize + 1, ErrTooLarge},
		{"wrong image identity", uint32(len(ns)), ErrManifest},
	} {
		t.Run(test.desc, func(t *testing.T) {
			if err := s.Install(mem.SecureImage, test.size); !errors.Is(err, test.err) {
				t.Errorf("Install() = %v, want %v", err, test.err)
			}

			if _, st, _ := s.Status(mem.SecureImage); st.Magic {
				t.Errorf("refused image marked for installation")
			}
		})
	}
}

func TestInstallShortSize(t *testing.T) {
	s, signer := newSlots(t)
	_, secondary, _ := s.pair(mem.SecureImage)

	update := buildImage(t, signer, mem.SecureImage, Version{Major: 2}, 0x100)
	program(t, s.Flash, secondary.Offset, update)

	if err := s.Install(mem.SecureImage, uint32(len(update)-1)); !errors.Is(err, ErrFormat) {
		t.Errorf("Install() = %v, want %v", err, ErrFormat)
	}
}

func TestProcessRejected(t *testing.T) {
	s, signer := newSlots(t)
	_, secondary, _ := s.pair(mem.SecureImage)

	update := buildImage(t, signer, mem.SecureImage, Version{Major: 2}, 0x100)
	update[DefaultHeaderSize+10] ^= 0xff
	program(t, s.Flash, secondary.Offset, update)

	if err := WriteMagic(s.Flash, secondary, uint32(len(update))); err != nil {
		t.Fatalf("WriteMagic(): %v", err)
	}

	action, err := s.Process(mem.SecureImage)

	if err != nil || action != Rejected {
		t.Fatalf("Process() = %s, %v, want %s", action, err, Rejected)
	}

	if v := primaryVersion(t, s, mem.SecureImage); v.Major != 1 {
		t.Errorf("primary version = %s, want 1", v)
	}

	if _, st, _ := s.Status(mem.SecureImage); st.Magic {
		t.Errorf("rejected image still pending installation")
	}
}
