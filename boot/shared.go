// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package boot

import (
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/usbarmory/u5-secure-boot/mem"
	"github.com/usbarmory/u5-secure-boot/reg"
	"github.com/usbarmory/u5-secure-boot/soc/stm32u5"
)

// Measurement represents a booted image measurement.
type Measurement struct {
	Image   mem.ImageID `cbor:"1,keyasint"`
	Version string      `cbor:"2,keyasint"`
	Digest  []byte      `cbor:"3,keyasint"`
}

// SharedData represents the boot information passed to the next image
// through the shared RAM area.
//
// The area holds a little-endian length word followed by the CBOR
// encoding.
type SharedData struct {
	Profile      string        `cbor:"1,keyasint"`
	Lifecycle    string        `cbor:"2,keyasint"`
	Measurements []Measurement `cbor:"3,keyasint"`
}

// Measure validates the primary image of a slot pair and records its
// measurement.
func (p *Platform) Measure(id mem.ImageID) (err error) {
	primary, err := p.Layout.Slot(id, mem.Primary)

	if err != nil {
		return
	}

	img, _, err := p.Slots.Validate(primary)

	if err != nil {
		return fmt.Errorf("%w: %s, %v", ErrImage, primary.Name, err)
	}

	digest := img.Digest()

	m := Measurement{
		Image:   id,
		Version: img.Header.Version.String(),
		Digest:  digest[:],
	}

	for i, prev := range p.measurements {
		if prev.Image == id {
			p.measurements[i] = m
			return
		}
	}

	p.measurements = append(p.measurements, m)

	return
}

// WriteSharedData writes the boot information to the shared RAM area.
func (p *Platform) WriteSharedData() (err error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()

	if err != nil {
		return
	}

	buf, err := enc.Marshal(&SharedData{
		Profile:      p.Layout.Name,
		Lifecycle:    stm32u5.RDPName(p.SoC.Flash.OptionBytes().RDP),
		Measurements: p.measurements,
	})

	if err != nil {
		return
	}

	r := p.Layout.Shared

	if uint32(len(buf))+4 > r.Size {
		return fmt.Errorf("shared data exceeds %s size (%d)", r.Name, len(buf))
	}

	p.SoC.Bus.Write32(r.Start, uint32(len(buf)))

	if pad := len(buf) % 4; pad != 0 {
		buf = append(buf, make([]byte, 4-pad)...)
	}

	for i := 0; i < len(buf); i += 4 {
		p.SoC.Bus.Write32(r.Start+4+uint32(i), binary.LittleEndian.Uint32(buf[i:]))
	}

	return
}

// ReadSharedData reads the boot information from a shared RAM area.
func ReadSharedData(bus reg.Bus, r mem.Region) (d *SharedData, err error) {
	size := bus.Read32(r.Start)

	if size == 0 || size > r.Size-4 {
		return nil, fmt.Errorf("invalid shared data size (%d)", size)
	}

	buf := make([]byte, (size+3)&^3)

	for i := uint32(0); i < uint32(len(buf)); i += 4 {
		binary.LittleEndian.PutUint32(buf[i:], bus.Read32(r.Start+4+i))
	}

	dec, err := cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()

	if err != nil {
		return
	}

	d = &SharedData{}

	if err = dec.Unmarshal(buf[:size], d); err != nil {
		return nil, fmt.Errorf("invalid shared data, %v", err)
	}

	return
}
