// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package mem describes the flash and RAM layout of the secure boot profiles.
package mem

import (
	"errors"
	"fmt"
)

// Attr represents the access attributes of a memory region.
type Attr uint32

// Region attributes
const (
	Secure Attr = 1 << iota
	NSC
	Read
	Write
	Exec
	Device
	Hidden
	Shared
)

// String returns a compact representation of the attributes.
func (a Attr) String() string {
	s := []byte("-------")

	flags := []struct {
		attr Attr
		c    byte
	}{
		{Secure, 'S'}, {NSC, 'C'}, {Read, 'r'}, {Write, 'w'}, {Exec, 'x'}, {Device, 'd'}, {Hidden, 'h'},
	}

	for i, f := range flags {
		if a&f.attr != 0 {
			s[i] = f.c
		}
	}

	if a&Secure == 0 {
		s[0] = 'N'
	}

	return string(s)
}

// Region represents a memory window and its access attributes.
type Region struct {
	Name  string
	Start uint32
	Size  uint32
	Attr  Attr
}

// End returns the first address past the region.
func (r Region) End() uint32 {
	return r.Start + r.Size
}

// Last returns the last address within the region.
func (r Region) Last() uint32 {
	return r.Start + r.Size - 1
}

// Contains returns whether an address falls within the region.
func (r Region) Contains(addr uint32) bool {
	return addr >= r.Start && addr-r.Start < r.Size
}

// ContainsRange returns whether the range [addr, addr+size) falls entirely
// within the region, empty ranges are never contained.
func (r Region) ContainsRange(addr uint32, size uint32) bool {
	if size == 0 || !r.Contains(addr) {
		return false
	}

	return size <= r.End()-addr
}

// Overlaps returns whether two regions share at least one address.
func (r Region) Overlaps(o Region) bool {
	if r.Size == 0 || o.Size == 0 {
		return false
	}

	return r.Start <= o.Last() && o.Start <= r.Last()
}

func (r Region) String() string {
	return fmt.Sprintf("%-16s %#.8x-%#.8x %s", r.Name, r.Start, r.End(), r.Attr)
}

// ImageID identifies a firmware image.
type ImageID int

// Firmware images
const (
	SecureImage ImageID = iota
	NonSecureImage
	LoaderImage
)

func (id ImageID) String() string {
	switch id {
	case SecureImage:
		return "secure"
	case NonSecureImage:
		return "nonsecure"
	case LoaderImage:
		return "loader"
	default:
		return fmt.Sprintf("image%d", int(id))
	}
}

// Slot kinds
const (
	Primary = iota
	Secondary
)

// Slot represents a firmware image slot within flash.
type Slot struct {
	Name  string
	Image ImageID
	Kind  int
	// Offset is the slot position from the flash base.
	Offset uint32
	Size   uint32
}

// End returns the flash offset past the slot.
func (s Slot) End() uint32 {
	return s.Offset + s.Size
}

// Region returns the slot flash window (secure alias when secure is true).
func (s Slot) Region(secure bool) Region {
	r := Region{
		Name: s.Name,
		Size: s.Size,
		Attr: Read | Write,
	}

	if secure {
		r.Start = FlashS(s.Offset)
		r.Attr |= Secure
	} else {
		r.Start = FlashNS(s.Offset)
	}

	return r
}

// Layout represents a secure boot profile memory layout, it is the
// equivalent of a linker region definition and never changes at runtime.
type Layout struct {
	// Name is the profile name
	Name string

	// Boot is the bootloader code hidden by HDP after handoff.
	Boot Region
	// BootNoHDP is the bootloader code kept executable after HDP is
	// enabled, it holds the handoff routine.
	BootNoHDP Region
	// BootData is the bootloader RAM, cleared before handoff.
	BootData Region
	// Shared is the boot to application communication area.
	Shared Region

	// HDP enables hide protection of the Boot region.
	HDP bool
	// DualBank requires the dual bank flash organization.
	DualBank bool

	// Next is the image the bootloader hands off to.
	Next ImageID

	// Slots lists all firmware slots.
	Slots []Slot

	// SecureCode is the secure image code window (nil when not present).
	SecureCode *Region
	// SecureData is the secure RAM window.
	SecureData Region

	// NonSecure lists the windows granted to the non-secure world.
	NonSecure []Region

	// NSDataWindow is the flash window, as offset from the flash base, which
	// the non-secure world can program through the gateway.
	NSDataWindow Region

	// Peripherals is the secure peripheral window.
	Peripherals Region
}

// Slot returns the slot for an image and kind.
func (l *Layout) Slot(id ImageID, kind int) (s Slot, err error) {
	for _, s = range l.Slots {
		if s.Image == id && s.Kind == kind {
			return
		}
	}

	return Slot{}, fmt.Errorf("no %s slot %d in %s layout", id, kind, l.Name)
}

// NSC returns the non-secure callable window, if any.
func (l *Layout) NSC() (r Region, ok bool) {
	for _, r = range l.NonSecure {
		if r.Attr&NSC != 0 {
			return r, true
		}
	}

	return Region{}, false
}

// Regions returns all regions described by the layout.
func (l *Layout) Regions() (regions []Region) {
	regions = append(regions, l.Boot, l.BootNoHDP, l.BootData, l.Shared)

	if l.SecureCode != nil {
		regions = append(regions, *l.SecureCode)
	}

	regions = append(regions, l.SecureData, l.Peripherals)

	for _, s := range l.Slots {
		regions = append(regions, s.Region(s.Image != NonSecureImage))
	}

	regions = append(regions, l.NonSecure...)

	return
}

// Validate checks that the layout is self-consistent: slots must be page
// aligned and fit in flash without overlapping, and no two regions may
// overlap with conflicting security attributes.
func (l *Layout) Validate() error {
	if l.Boot.Size == 0 || l.BootData.Size == 0 {
		return errors.New("missing bootloader regions")
	}

	if l.NSDataWindow.Size == 0 || l.NSDataWindow.End() > FlashSize {
		return fmt.Errorf("invalid non-secure data window %#x-%#x", l.NSDataWindow.Start, l.NSDataWindow.End())
	}

	if l.NSDataWindow.Start%PageSize != 0 || l.NSDataWindow.Size%PageSize != 0 {
		return errors.New("non-secure data window is not page aligned")
	}

	for i, s := range l.Slots {
		if s.Offset%PageSize != 0 || s.Size%PageSize != 0 {
			return fmt.Errorf("slot %s is not page aligned", s.Name)
		}

		if s.End() > FlashSize {
			return fmt.Errorf("slot %s exceeds flash size", s.Name)
		}

		a := Region{Start: s.Offset, Size: s.Size}

		if a.Overlaps(l.NSDataWindow) {
			return fmt.Errorf("slot %s overlaps non-secure data window", s.Name)
		}

		for _, o := range l.Slots[i+1:] {
			if a.Overlaps(Region{Start: o.Offset, Size: o.Size}) {
				return fmt.Errorf("slot %s overlaps slot %s", s.Name, o.Name)
			}
		}
	}

	if _, err := l.Slot(l.Next, Primary); err != nil {
		return err
	}

	regions := l.Regions()

	for i, r := range regions {
		for _, o := range regions[i+1:] {
			if r.Overlaps(o) && (r.Attr&Secure) != (o.Attr&Secure) {
				return fmt.Errorf("conflicting regions %s and %s", r.Name, o.Name)
			}
		}
	}

	return nil
}

// Lookup returns a layout profile by name.
func Lookup(name string) (*Layout, error) {
	for _, l := range []*Layout{TFM, SBSFU, Loader} {
		if l.Name == name {
			return l, nil
		}
	}

	return nil, fmt.Errorf("unknown layout profile %q", name)
}
