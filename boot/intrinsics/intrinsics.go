// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package intrinsics isolates the processor operations which cannot be
// expressed as register accesses: the final register-clearing jump to the
// next image and the system reset of the fatal path.
package intrinsics

import (
	"fmt"
	"sync"
)

// Intrinsics represents the audited platform operations.
type Intrinsics interface {
	// Jump zeroes the general purpose registers, sets the stack pointer
	// and branches to pc. It does not return on hardware.
	Jump(sp uint32, pc uint32) error
	// Reset requests a system reset. It does not return on hardware.
	Reset()
}

// JumpRecord represents a simulated jump.
type JumpRecord struct {
	SP uint32
	PC uint32
}

func (j JumpRecord) String() string {
	return fmt.Sprintf("sp:%#.8x pc:%#.8x", j.SP, j.PC)
}

// Sim implements Intrinsics on hosts by recording operations, control is
// handed to the OnJump and OnReset functions when set.
type Sim struct {
	sync.Mutex

	// OnJump is invoked on Jump, its error is returned to the caller.
	OnJump func(sp uint32, pc uint32) error
	// OnReset is invoked on Reset.
	OnReset func()

	jumps  []JumpRecord
	resets int
}

// Jump implements Intrinsics.
func (s *Sim) Jump(sp uint32, pc uint32) error {
	s.Lock()
	s.jumps = append(s.jumps, JumpRecord{SP: sp, PC: pc})
	fn := s.OnJump
	s.Unlock()

	if fn != nil {
		return fn(sp, pc)
	}

	return nil
}

// Reset implements Intrinsics.
func (s *Sim) Reset() {
	s.Lock()
	s.resets += 1
	fn := s.OnReset
	s.Unlock()

	if fn != nil {
		fn()
	}
}

// Jumps returns the recorded jumps.
func (s *Sim) Jumps() []JumpRecord {
	s.Lock()
	defer s.Unlock()

	return append([]JumpRecord(nil), s.jumps...)
}

// Resets returns the number of recorded resets.
func (s *Sim) Resets() int {
	s.Lock()
	defer s.Unlock()

	return s.resets
}
