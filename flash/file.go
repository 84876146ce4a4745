// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package flash

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// File represents a flash device persisted to a file, the file content is
// loaded on Initialize and every program or erase operation is written
// through.
type File struct {
	*Mem

	// Path is the backing file path
	Path string

	f *os.File
}

// NewFile returns a file backed flash device, the file is created, as an
// erased device, if it does not exist.
func NewFile(path string, info Info) *File {
	return &File{
		Mem:  NewMem(info),
		Path: path,
	}
}

// Initialize implements Driver, it is a no-op on an open device.
func (d *File) Initialize() (err error) {
	if d.f != nil {
		return
	}

	if d.f, err = os.OpenFile(d.Path, os.O_RDWR|os.O_CREATE, 0600); err != nil {
		return
	}

	buf, err := io.ReadAll(d.f)

	if err != nil {
		d.f.Close()
		return
	}

	if len(buf) > 0 && uint32(len(buf)) != d.info.Size {
		d.f.Close()
		return fmt.Errorf("%s: size mismatch (%d != %d)", d.Path, len(buf), d.info.Size)
	}

	if err = d.Mem.Load(buf); err != nil {
		d.f.Close()
		return
	}

	if len(buf) == 0 {
		if _, err = d.f.WriteAt(d.Mem.Bytes(), 0); err != nil {
			d.f.Close()
			return
		}
	}

	return d.Mem.Initialize()
}

// Uninitialize implements Driver.
func (d *File) Uninitialize() (err error) {
	if d.f == nil {
		return ErrNotInitialized
	}

	if err = d.Mem.Uninitialize(); err != nil {
		return
	}

	err = errors.Join(d.f.Sync(), d.f.Close())
	d.f = nil

	return
}

// ProgramData implements Driver.
func (d *File) ProgramData(off uint32, data []byte) (err error) {
	if err = d.Mem.ProgramData(off, data); err != nil {
		return
	}

	_, err = d.f.WriteAt(data, int64(off))

	return
}

// EraseSector implements Driver.
func (d *File) EraseSector(off uint32) (err error) {
	if err = d.Mem.EraseSector(off); err != nil {
		return
	}

	buf := make([]byte, d.info.SectorSize)

	for i := range buf {
		buf[i] = d.info.ErasedValue
	}

	_, err = d.f.WriteAt(buf, int64(off))

	return
}
