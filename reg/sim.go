// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package reg

import (
	"sync"
)

// WriteHook is invoked on simulated register writes, it receives the current
// and written values and returns the value to be stored.
type WriteHook func(addr uint32, old uint32, val uint32) uint32

// Sim represents a simulated 32-bit address space, unwritten locations read
// as zero unless a fill value is set for the range they belong to.
type Sim struct {
	sync.Mutex

	mem    map[uint32]uint32
	hooks  map[uint32]WriteHook
	ranges []simRange
	writes map[uint32]int
}

type simRange struct {
	start uint32
	end   uint32
	fill  uint32
	hook  WriteHook
}

// NewSim returns an empty simulated address space.
func NewSim() *Sim {
	return &Sim{
		mem:    make(map[uint32]uint32),
		hooks:  make(map[uint32]WriteHook),
		writes: make(map[uint32]int),
	}
}

func (s *Sim) lookup(addr uint32) *simRange {
	for i := range s.ranges {
		if addr >= s.ranges[i].start && addr < s.ranges[i].end {
			return &s.ranges[i]
		}
	}

	return nil
}

// Read32 implements Bus.
func (s *Sim) Read32(addr uint32) uint32 {
	s.Lock()
	defer s.Unlock()

	return s.peek(addr)
}

// Write32 implements Bus.
func (s *Sim) Write32(addr uint32, val uint32) {
	s.Lock()
	hook, ok := s.hooks[addr]

	if !ok {
		if r := s.lookup(addr); r != nil {
			hook = r.hook
		}
	}

	old := s.peek(addr)
	s.writes[addr&^3] += 1
	s.Unlock()

	// hooks run unlocked as they are allowed to access the bus
	if hook != nil {
		val = hook(addr, old, val)
	}

	s.Poke(addr, val)
}

func (s *Sim) peek(addr uint32) uint32 {
	addr &^= 3

	if val, ok := s.mem[addr]; ok {
		return val
	}

	if r := s.lookup(addr); r != nil {
		return r.fill
	}

	return 0
}

// Peek reads a simulated location without side effects.
func (s *Sim) Peek(addr uint32) uint32 {
	s.Lock()
	defer s.Unlock()

	return s.peek(addr)
}

// Poke writes a simulated location bypassing hooks and write accounting.
func (s *Sim) Poke(addr uint32, val uint32) {
	s.Lock()
	defer s.Unlock()

	s.mem[addr&^3] = val
}

// Hook registers a write hook for a single register address.
func (s *Sim) Hook(addr uint32, hook WriteHook) {
	s.Lock()
	defer s.Unlock()

	s.hooks[addr&^3] = hook
}

// Map declares a simulated memory range [start, start+size) whose unwritten
// locations read as fill, an optional hook is invoked on writes within the
// range which do not have a dedicated register hook.
func (s *Sim) Map(start uint32, size uint32, fill uint32, hook WriteHook) {
	s.Lock()
	defer s.Unlock()

	s.ranges = append(s.ranges, simRange{
		start: start,
		end:   start + size,
		fill:  fill,
		hook:  hook,
	})
}

// Writes returns the number of bus writes performed on the word at the given
// address.
func (s *Sim) Writes(addr uint32) int {
	s.Lock()
	defer s.Unlock()

	return s.writes[addr&^3]
}

// WritesIn returns the number of bus writes performed within the range
// [start, start+size).
func (s *Sim) WritesIn(start uint32, size uint32) (n int) {
	s.Lock()
	defer s.Unlock()

	for addr, c := range s.writes {
		if addr >= start && addr-start < size {
			n += c
		}
	}

	return
}

// ReadOnly returns a write hook which discards all writes, it can be used to
// simulate registers which fail to latch a configuration.
func ReadOnly() WriteHook {
	return func(_ uint32, old uint32, _ uint32) uint32 {
		return old
	}
}

// WriteOneToClear returns a write hook implementing write-1-to-clear
// semantics.
func WriteOneToClear() WriteHook {
	return func(_ uint32, old uint32, val uint32) uint32 {
		return old &^ val
	}
}
