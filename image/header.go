// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package image implements the firmware image format and the management of
// firmware image slots: installation triggers (magic trailer), image
// confirmation, swap and revert.
//
// An image is laid out as a fixed header, padded to the header size, the
// payload (starting with the vector table) and a TLV area holding the image
// SHA-256 digest and a signed manifest.
package image

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Image header format
const (
	HeaderMagic       = 0x96f3b83d
	HeaderLength      = 32
	DefaultHeaderSize = 0x400

	TLVInfoMagic  = 0x6907
	TLVInfoLength = 4
	TLVLength     = 4

	// TLV types
	TLV_SHA256   = 0x10
	TLV_MANIFEST = 0xa0

	// header flags
	FLAG_NON_BOOTABLE = 0x00000010
	FLAG_WASM         = 0x00010000
	FLAG_EXTERNAL     = 0x00020000

	// VectorTableSize is the minimum payload size
	VectorTableSize = 8
)

// Image format errors
var (
	ErrBadMagic = errors.New("invalid image magic")
	ErrFormat   = errors.New("invalid image format")
	ErrTooLarge = errors.New("image too large")
	ErrHash     = errors.New("image hash mismatch")
	ErrManifest = errors.New("invalid image manifest")
)

// Version represents an image version.
type Version struct {
	Major    uint8
	Minor    uint8
	Revision uint16
	Build    uint32
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d+%d", v.Major, v.Minor, v.Revision, v.Build)
}

// ParseVersion parses a version in its `major.minor.revision+build` form,
// the build number is optional.
func ParseVersion(s string) (v Version, err error) {
	var build uint64

	if i := strings.IndexByte(s, '+'); i >= 0 {
		if build, err = strconv.ParseUint(s[i+1:], 10, 32); err != nil {
			return v, fmt.Errorf("invalid build number, %v", err)
		}

		s = s[:i]
	}

	f := strings.Split(s, ".")

	if len(f) != 3 {
		return v, fmt.Errorf("invalid version %q", s)
	}

	major, err := strconv.ParseUint(f[0], 10, 8)

	if err != nil {
		return
	}

	minor, err := strconv.ParseUint(f[1], 10, 8)

	if err != nil {
		return
	}

	rev, err := strconv.ParseUint(f[2], 10, 16)

	if err != nil {
		return
	}

	return Version{
		Major:    uint8(major),
		Minor:    uint8(minor),
		Revision: uint16(rev),
		Build:    uint32(build),
	}, nil
}

// Header represents the image header.
type Header struct {
	Magic            uint32
	LoadAddr         uint32
	HeaderSize       uint16
	ProtectedTLVSize uint16
	ImageSize        uint32
	Flags            uint32
	Version          Version
	_                uint32
}

// ParseHeader parses an image header.
func ParseHeader(buf []byte) (h *Header, err error) {
	if len(buf) < HeaderLength {
		return nil, fmt.Errorf("%w: short header", ErrFormat)
	}

	h = &Header{}

	if err = binary.Read(bytes.NewReader(buf[:HeaderLength]), binary.LittleEndian, h); err != nil {
		return nil, err
	}

	if h.Magic != HeaderMagic {
		return nil, fmt.Errorf("%w (%#x)", ErrBadMagic, h.Magic)
	}

	if h.HeaderSize < HeaderLength {
		return nil, fmt.Errorf("%w: header size %d", ErrFormat, h.HeaderSize)
	}

	if h.ImageSize < VectorTableSize {
		return nil, fmt.Errorf("%w: image size %d", ErrFormat, h.ImageSize)
	}

	return
}

// Bytes returns the header encoding, padded to the header size.
func (h *Header) Bytes() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, h)

	if pad := int(h.HeaderSize) - buf.Len(); pad > 0 {
		buf.Write(make([]byte, pad))
	}

	return buf.Bytes()
}

// TLV represents a type-length-value entry of the image TLV area.
type TLV struct {
	Type  uint16
	Value []byte
}

func marshalTLVs(tlvs []TLV) ([]byte, error) {
	var body bytes.Buffer

	for _, t := range tlvs {
		if len(t.Value) > 0xffff {
			return nil, fmt.Errorf("%w: TLV %#x too large", ErrFormat, t.Type)
		}

		binary.Write(&body, binary.LittleEndian, [2]uint16{t.Type, uint16(len(t.Value))})
		body.Write(t.Value)
	}

	total := TLVInfoLength + body.Len()

	if total > 0xffff {
		return nil, fmt.Errorf("%w: TLV area too large", ErrFormat)
	}

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, [2]uint16{TLVInfoMagic, uint16(total)})
	buf.Write(body.Bytes())

	return buf.Bytes(), nil
}

// tlvAreaSize parses the TLV info header and returns the TLV area size.
func tlvAreaSize(info []byte) (int, error) {
	if len(info) < TLVInfoLength || binary.LittleEndian.Uint16(info) != TLVInfoMagic {
		return 0, fmt.Errorf("%w: missing TLV area", ErrFormat)
	}

	size := int(binary.LittleEndian.Uint16(info[2:]))

	if size < TLVInfoLength {
		return 0, fmt.Errorf("%w: TLV area size %d", ErrFormat, size)
	}

	return size, nil
}

func unmarshalTLVs(area []byte) (tlvs []TLV, err error) {
	size, err := tlvAreaSize(area)

	if err != nil {
		return
	}

	if size != len(area) {
		return nil, fmt.Errorf("%w: TLV area length mismatch", ErrFormat)
	}

	for off := TLVInfoLength; off < size; {
		if size-off < TLVLength {
			return nil, fmt.Errorf("%w: truncated TLV", ErrFormat)
		}

		typ := binary.LittleEndian.Uint16(area[off:])
		n := int(binary.LittleEndian.Uint16(area[off+2:]))
		off += TLVLength

		if size-off < n {
			return nil, fmt.Errorf("%w: truncated TLV %#x", ErrFormat, typ)
		}

		tlvs = append(tlvs, TLV{Type: typ, Value: area[off : off+n]})
		off += n
	}

	return
}
