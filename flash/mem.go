// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package flash

import (
	"fmt"
	"sync"
)

// Op identifies a flash operation for fault injection.
type Op int

// Flash operations
const (
	OpRead Op = iota
	OpProgram
	OpErase
)

// Mem represents an in-memory flash device with NOR semantics: sectors erase
// to the erased value and each program unit can only be programmed once
// after erasure.
type Mem struct {
	sync.Mutex

	// Fault, when set, is invoked before every operation and its error, if
	// any, aborts it.
	Fault func(op Op, off uint32) error

	info        Info
	data        []byte
	initialized bool
}

// NewMem returns an erased in-memory flash device.
func NewMem(info Info) *Mem {
	m := &Mem{
		info: info,
		data: make([]byte, info.Size),
	}

	for i := range m.data {
		m.data[i] = info.ErasedValue
	}

	return m
}

// Initialize implements Driver.
func (m *Mem) Initialize() error {
	m.Lock()
	defer m.Unlock()

	m.initialized = true

	return nil
}

// Uninitialize implements Driver.
func (m *Mem) Uninitialize() error {
	m.Lock()
	defer m.Unlock()

	m.initialized = false

	return nil
}

// GetInfo implements Driver.
func (m *Mem) GetInfo() Info {
	return m.info
}

func (m *Mem) check(op Op, off uint32) error {
	if !m.initialized {
		return ErrNotInitialized
	}

	if m.Fault != nil {
		if err := m.Fault(op, off); err != nil {
			return err
		}
	}

	return nil
}

// ReadData implements Driver.
func (m *Mem) ReadData(off uint32, buf []byte) (err error) {
	m.Lock()
	defer m.Unlock()

	if err = m.check(OpRead, off); err != nil {
		return
	}

	if err = CheckRange(m.info, off, len(buf), 0); err != nil {
		return
	}

	copy(buf, m.data[off:])

	return
}

// ProgramData implements Driver.
func (m *Mem) ProgramData(off uint32, data []byte) (err error) {
	m.Lock()
	defer m.Unlock()

	if err = m.check(OpProgram, off); err != nil {
		return
	}

	if err = CheckRange(m.info, off, len(data), m.info.ProgramUnit); err != nil {
		return
	}

	if !Erased(m.data[off:off+uint32(len(data))], m.info.ErasedValue) {
		return fmt.Errorf("%w at %#x", ErrNotErased, off)
	}

	copy(m.data[off:], data)

	return
}

// EraseSector implements Driver.
func (m *Mem) EraseSector(off uint32) (err error) {
	m.Lock()
	defer m.Unlock()

	if err = m.check(OpErase, off); err != nil {
		return
	}

	if err = CheckRange(m.info, off, int(m.info.SectorSize), m.info.SectorSize); err != nil {
		return
	}

	for i := off; i < off+m.info.SectorSize; i++ {
		m.data[i] = m.info.ErasedValue
	}

	return
}

// Bytes returns a copy of the device content.
func (m *Mem) Bytes() []byte {
	m.Lock()
	defer m.Unlock()

	return append([]byte(nil), m.data...)
}

// Load replaces the device content, shorter buffers leave the remaining
// flash erased.
func (m *Mem) Load(buf []byte) error {
	m.Lock()
	defer m.Unlock()

	if uint32(len(buf)) > m.info.Size {
		return fmt.Errorf("%w (%d bytes)", ErrRange, len(buf))
	}

	n := copy(m.data, buf)

	for i := n; i < len(m.data); i++ {
		m.data[i] = m.info.ErasedValue
	}

	return nil
}
