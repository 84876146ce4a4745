// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package image

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/usbarmory/u5-secure-boot/flash"
	"github.com/usbarmory/u5-secure-boot/mem"
)

// Slot trailer layout, each field is one program unit located from the slot
// end:
//
//	slot_end - 48: copy done flag
//	slot_end - 32: image ok (confirm) flag
//	slot_end - 16: magic
const (
	MagicSize   = 16
	FlagSize    = 16
	TrailerSize = MagicSize + 2*FlagSize

	magicOffset    = MagicSize
	imageOKOffset  = MagicSize + FlagSize
	copyDoneOffset = MagicSize + 2*FlagSize

	flagSet    = 0x01
	erasedByte = 0xff
)

// Magic is the slot trailer magic, it marks a slot as holding an image
// pending installation.
var Magic = []byte{
	0x77, 0xc2, 0x95, 0xf3,
	0x60, 0xd2, 0xef, 0x7f,
	0x35, 0x52, 0x50, 0x0f,
	0x2c, 0xb6, 0x79, 0x80,
}

// ErrCorrupt is returned when a trailer field to be written holds neither
// the erased nor the requested value.
var ErrCorrupt = errors.New("corrupted slot trailer")

// Trailer represents the state of a slot trailer.
type Trailer struct {
	Magic    bool
	ImageOK  bool
	CopyDone bool
}

func (t Trailer) String() string {
	return fmt.Sprintf("magic:%v image_ok:%v copy_done:%v", t.Magic, t.ImageOK, t.CopyDone)
}

func flag() []byte {
	buf := bytes.Repeat([]byte{erasedByte}, FlagSize)
	buf[0] = flagSet

	return buf
}

func erased(n int) []byte {
	return bytes.Repeat([]byte{erasedByte}, n)
}

// parseFlag reports whether a trailer flag is set, any content other than
// the set pattern reads as unset.
func parseFlag(buf []byte) bool {
	return bytes.Equal(buf, flag())
}

// encode writes the trailer fields at the end of a buffer.
func (t Trailer) encode(buf []byte) {
	end := len(buf)

	copy(buf[end-copyDoneOffset:], erased(TrailerSize))

	if t.CopyDone {
		copy(buf[end-copyDoneOffset:], flag())
	}

	if t.ImageOK {
		copy(buf[end-imageOKOffset:], flag())
	}

	if t.Magic {
		copy(buf[end-magicOffset:], Magic)
	}
}

// ReadTrailer returns the trailer state of a slot, an invalid magic or a
// malformed flag is reported as not set.
func ReadTrailer(d flash.Driver, s mem.Slot) (t Trailer, err error) {
	buf, err := flash.Read(d, s.End()-TrailerSize, TrailerSize)

	if err != nil {
		return
	}

	t.Magic = bytes.Equal(buf[TrailerSize-magicOffset:], Magic)
	t.ImageOK = parseFlag(buf[TrailerSize-imageOKOffset : TrailerSize-imageOKOffset+FlagSize])
	t.CopyDone = parseFlag(buf[:FlagSize])

	return
}

// setField programs a trailer field unless it already holds the requested
// value, making the operation idempotent.
func setField(d flash.Driver, s mem.Slot, offset uint32, val []byte) (err error) {
	off := s.End() - offset

	buf, err := flash.Read(d, off, len(val))

	if err != nil {
		return
	}

	switch {
	case bytes.Equal(buf, val):
		return
	case !flash.Erased(buf, erasedByte):
		return fmt.Errorf("%s at %#x: %w", s.Name, off, ErrCorrupt)
	}

	return d.ProgramData(off, val)
}

// WriteMagic writes the magic trailer of a slot holding an image of the
// given size, it refuses sizes which would overlap the trailer.
func WriteMagic(d flash.Driver, s mem.Slot, size uint32) error {
	if size > s.Size-TrailerSize {
		return fmt.Errorf("%w (%d > %d)", ErrTooLarge, size, s.Size-TrailerSize)
	}

	return setField(d, s, magicOffset, Magic)
}

// Confirm writes the image ok flag of a slot, confirming an image running
// in test mode. Confirming an already confirmed slot has no effect.
func Confirm(d flash.Driver, s mem.Slot) error {
	return setField(d, s, imageOKOffset, flag())
}
