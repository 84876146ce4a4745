// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package image

import (
	"fmt"
	"log"
	"sync"

	"golang.org/x/mod/sumdb/note"

	"github.com/usbarmory/u5-secure-boot/flash"
	"github.com/usbarmory/u5-secure-boot/mem"
)

// Action represents the outcome of slot processing at boot.
type Action int

// Slot processing outcomes
const (
	// no pending operation
	None Action = iota
	// secondary image swapped into the primary slot in test mode
	Install
	// unconfirmed test image swapped back with the previous one
	Revert
	// secondary image pending installation failed validation
	Rejected
	// unconfirmed test image kept as no valid previous image remains
	Kept
)

func (a Action) String() string {
	return [...]string{"none", "install", "revert", "rejected", "kept"}[a]
}

// Slots represents the firmware slots of a layout.
type Slots struct {
	sync.Mutex

	// Flash is the flash device holding the slots
	Flash flash.Driver
	// Layout is the memory layout profile
	Layout *mem.Layout
	// Verifier authenticates image manifests, no manifest is required
	// when nil.
	Verifier note.Verifier
}

func (s *Slots) pair(id mem.ImageID) (primary mem.Slot, secondary mem.Slot, err error) {
	if primary, err = s.Layout.Slot(id, mem.Primary); err != nil {
		return
	}

	if secondary, err = s.Layout.Slot(id, mem.Secondary); err != nil {
		return
	}

	if primary.Size != secondary.Size {
		err = fmt.Errorf("%s slot size mismatch", id)
	}

	return
}

// Validate loads and verifies the image held in a slot.
func (s *Slots) Validate(slot mem.Slot) (img *Image, m *Manifest, err error) {
	if img, err = Load(s.Flash, slot); err != nil {
		return
	}

	if m, err = img.Verify(slot.Image, s.Verifier); err != nil {
		return nil, nil, err
	}

	return
}

// Install validates an image received in the secondary slot and marks it
// for installation at the next boot. The received size must cover the
// whole image and leave room for the slot trailer.
func (s *Slots) Install(id mem.ImageID, size uint32) (err error) {
	s.Lock()
	defer s.Unlock()

	_, secondary, err := s.pair(id)

	if err != nil {
		return
	}

	if size > secondary.Size-TrailerSize {
		return fmt.Errorf("%w (%d > %d)", ErrTooLarge, size, secondary.Size-TrailerSize)
	}

	img, _, err := s.Validate(secondary)

	if err != nil {
		return
	}

	if img.Size() > size {
		return fmt.Errorf("%w: received %d bytes, image is %d", ErrFormat, size, img.Size())
	}

	return WriteMagic(s.Flash, secondary, size)
}

// Confirm confirms the image running from the primary slot.
func (s *Slots) Confirm(id mem.ImageID) (err error) {
	s.Lock()
	defer s.Unlock()

	primary, err := s.Layout.Slot(id, mem.Primary)

	if err != nil {
		return
	}

	return Confirm(s.Flash, primary)
}

// Status returns the trailer state of the slots of an image.
func (s *Slots) Status(id mem.ImageID) (primary Trailer, secondary Trailer, err error) {
	p, sec, err := s.pair(id)

	if err != nil {
		return
	}

	if primary, err = ReadTrailer(s.Flash, p); err != nil {
		return
	}

	secondary, err = ReadTrailer(s.Flash, sec)

	return
}

// Process performs the pending slot operation of an image at boot:
//   - an unconfirmed primary image which already completed a test boot is
//     reverted to the previous image, or confirmed when the previous image
//     no longer validates
//   - a valid secondary image pending installation is swapped into the
//     primary slot, in test mode unless it was marked permanent
//   - an invalid secondary image pending installation is discarded
func (s *Slots) Process(id mem.ImageID) (action Action, err error) {
	s.Lock()
	defer s.Unlock()

	primary, secondary, err := s.pair(id)

	if err != nil {
		return
	}

	pt, err := ReadTrailer(s.Flash, primary)

	if err != nil {
		return
	}

	if pt.Magic && pt.CopyDone && !pt.ImageOK {
		if _, _, err := s.Validate(secondary); err != nil {
			log.Printf("BL2 keeping unconfirmed %s image, previous image invalid (%v)", id, err)

			if err = Confirm(s.Flash, primary); err != nil {
				log.Printf("BL2 could not confirm %s image, %v", id, err)
			}

			return Kept, nil
		}

		log.Printf("BL2 reverting unconfirmed %s image", id)

		// the reverted image was running before the update
		t := Trailer{Magic: true, ImageOK: true, CopyDone: true}

		if err = s.swap(primary, secondary, t, Trailer{}); err != nil {
			return
		}

		return Revert, nil
	}

	st, err := ReadTrailer(s.Flash, secondary)

	if err != nil || !st.Magic {
		return
	}

	if _, _, err = s.Validate(secondary); err != nil {
		log.Printf("BL2 discarding invalid %s update, %v", id, err)

		last := secondary.End() - s.Flash.GetInfo().SectorSize

		if err = s.Flash.EraseSector(last); err != nil {
			return
		}

		return Rejected, nil
	}

	log.Printf("BL2 installing %s update", id)

	t := Trailer{Magic: true, ImageOK: st.ImageOK, CopyDone: true}

	if err = s.swap(primary, secondary, t, Trailer{}); err != nil {
		return
	}

	return Install, nil
}

// swap exchanges the content of two slots sector by sector, replacing the
// trailers with the given states.
//
// The operation is not resumable, an interruption leaves both slots in an
// inconsistent state.
func (s *Slots) swap(a mem.Slot, b mem.Slot, ta Trailer, tb Trailer) (err error) {
	info := s.Flash.GetInfo()
	sectors := a.Size / info.SectorSize

	for i := uint32(0); i < sectors; i++ {
		offA := a.Offset + i*info.SectorSize
		offB := b.Offset + i*info.SectorSize

		bufA, err := flash.Read(s.Flash, offA, int(info.SectorSize))

		if err != nil {
			return err
		}

		bufB, err := flash.Read(s.Flash, offB, int(info.SectorSize))

		if err != nil {
			return err
		}

		if i == sectors-1 {
			ta.encode(bufB)
			tb.encode(bufA)
		}

		if err = rewrite(s.Flash, offA, bufB); err != nil {
			return fmt.Errorf("%s sector %d: %w", a.Name, i, err)
		}

		if err = rewrite(s.Flash, offB, bufA); err != nil {
			return fmt.Errorf("%s sector %d: %w", b.Name, i, err)
		}
	}

	return
}

// rewrite erases a sector and programs its new content, skipping erased
// program units.
func rewrite(d flash.Driver, off uint32, buf []byte) (err error) {
	info := d.GetInfo()

	if err = d.EraseSector(off); err != nil {
		return
	}

	for i := uint32(0); i < uint32(len(buf)); i += info.ProgramUnit {
		unit := buf[i : i+info.ProgramUnit]

		if flash.Erased(unit, info.ErasedValue) {
			continue
		}

		if err = d.ProgramData(off+i, unit); err != nil {
			return
		}
	}

	return
}
