// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package reg

import (
	"testing"
)

func TestRegisterFields(t *testing.T) {
	sim := NewSim()
	r := At(sim, 0x40000000)

	r.Write(0xaa)
	r.SetN(16, 0xff, 0x5a)
	r.Set(31)
	r.Clear(1)

	if got, want := r.Read(), uint32(0x805a00a8); got != want {
		t.Fatalf("Read() = %#x, want %#x", got, want)
	}

	if got := r.Get(16, 0xff); got != 0x5a {
		t.Errorf("Get(16, 0xff) = %#x, want 0x5a", got)
	}

	if !r.IsSet(31) || r.IsSet(1) {
		t.Errorf("unexpected bit state %#x", r.Read())
	}

	r.SetTo(0, true)
	r.SetTo(3, false)

	if got, want := r.Read(), uint32(0x805a00a1); got != want {
		t.Errorf("SetTo: got %#x, want %#x", got, want)
	}
}

func TestOffset(t *testing.T) {
	sim := NewSim()
	base := At(sim, 0x1000)

	base.Offset(0x10).Write(1)

	if got := sim.Peek(0x1010); got != 1 {
		t.Errorf("Peek(0x1010) = %d, want 1", got)
	}
}

func TestSimHooks(t *testing.T) {
	sim := NewSim()

	sim.Hook(0x20, ReadOnly())
	sim.Poke(0x20, 0x1234)
	sim.Hook(0x24, WriteOneToClear())
	sim.Poke(0x24, 0xff)

	if At(sim, 0x20).Verify(0x5678) {
		t.Errorf("Verify succeeded on read-only register")
	}

	At(sim, 0x24).Write(0x0f)

	if got := sim.Peek(0x24); got != 0xf0 {
		t.Errorf("write-one-to-clear: got %#x, want 0xf0", got)
	}

	if got := sim.Writes(0x20); got != 1 {
		t.Errorf("Writes(0x20) = %d, want 1", got)
	}
}

func TestSimMap(t *testing.T) {
	sim := NewSim()
	sim.Map(0x08000000, 0x1000, 0xffffffff, nil)

	if got := sim.Read32(0x08000ffc); got != 0xffffffff {
		t.Errorf("unwritten mapped word = %#x, want fill", got)
	}

	if got := sim.Read32(0x08001000); got != 0 {
		t.Errorf("unmapped word = %#x, want 0", got)
	}

	sim.Write32(0x08000004, 0)
	sim.Write32(0x09000000, 0)

	if got := sim.WritesIn(0x08000000, 0x1000); got != 1 {
		t.Errorf("WritesIn() = %d, want 1", got)
	}
}

func TestWait(t *testing.T) {
	sim := NewSim()
	r := At(sim, 0x30)

	if r.Wait(16, 1, 1, 0) {
		t.Errorf("Wait returned true on clear bit")
	}

	r.Set(16)

	if !r.Wait(16, 1, 1, 0) {
		t.Errorf("Wait returned false on set bit")
	}
}
