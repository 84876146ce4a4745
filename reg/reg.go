// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package reg provides typed access to 32-bit memory-mapped registers.
//
// Registers are addressed through a Bus, which performs volatile reads and
// writes on hardware (see MMIO) or operates on a simulated register space
// (see Sim) on hosts.
package reg

import (
	"time"

	"github.com/usbarmory/tamago/bits"
)

// Bus represents a 32-bit memory-mapped address space.
type Bus interface {
	// Read32 performs a volatile 32-bit read at the given address.
	Read32(addr uint32) uint32
	// Write32 performs a volatile 32-bit write at the given address.
	Write32(addr uint32, val uint32)
}

// Register represents a single 32-bit memory-mapped register.
type Register struct {
	Bus  Bus
	Addr uint32
}

// At returns the register located at the given address of a bus.
func At(bus Bus, addr uint32) Register {
	return Register{
		Bus:  bus,
		Addr: addr,
	}
}

// Offset returns the register located at offset bytes from r.
func (r Register) Offset(off uint32) Register {
	return At(r.Bus, r.Addr+off)
}

// Read returns the register value.
func (r Register) Read() uint32 {
	return r.Bus.Read32(r.Addr)
}

// Write sets the register value.
func (r Register) Write(val uint32) {
	r.Bus.Write32(r.Addr, val)
}

// Get returns the register field at a specific bit position with a bitmask
// applied.
func (r Register) Get(pos int, mask int) uint32 {
	val := r.Read()
	return bits.Get(&val, pos, mask)
}

// IsSet returns whether a specific register bit is set.
func (r Register) IsSet(pos int) bool {
	return r.Get(pos, 1) == 1
}

// Set sets a single register bit (read-modify-write).
func (r Register) Set(pos int) {
	val := r.Read()
	bits.Set(&val, pos)
	r.Write(val)
}

// Clear clears a single register bit (read-modify-write).
func (r Register) Clear(pos int) {
	val := r.Read()
	bits.Clear(&val, pos)
	r.Write(val)
}

// SetTo sets or clears a single register bit (read-modify-write).
func (r Register) SetTo(pos int, set bool) {
	if set {
		r.Set(pos)
	} else {
		r.Clear(pos)
	}
}

// SetN modifies the register field at a specific bit position with a bitmask
// applied (read-modify-write).
func (r Register) SetN(pos int, mask int, field uint32) {
	val := r.Read()
	bits.SetN(&val, pos, mask, field)
	r.Write(val)
}

// Wait polls the register until the field at a specific bit position, with a
// bitmask applied, matches the argument value or the timeout expires, a zero
// timeout polls only once.
func (r Register) Wait(pos int, mask int, field uint32, timeout time.Duration) bool {
	start := time.Now()

	for r.Get(pos, mask) != field {
		if time.Since(start) >= timeout {
			return false
		}
	}

	return true
}

// Verify writes a register value and reads it back, it returns false if the
// value read back does not match.
func (r Register) Verify(val uint32) bool {
	r.Write(val)
	return r.Read() == val
}
