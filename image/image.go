// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package image

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/mod/sumdb/note"

	"github.com/usbarmory/u5-secure-boot/flash"
	"github.com/usbarmory/u5-secure-boot/mem"
)

// ManifestOrigin is the first line of every image manifest.
const ManifestOrigin = "u5-secure-boot image"

// Image represents a firmware image.
type Image struct {
	Header  Header
	Payload []byte
	TLVs    []TLV

	// raw header, including padding, as covered by the digest
	header []byte
}

// Manifest represents the signed statement binding an image digest to its
// identity and version.
type Manifest struct {
	Image   mem.ImageID
	Version Version
	Digest  [sha256.Size]byte
}

func (m *Manifest) text() string {
	return fmt.Sprintf("%s\n%s\n%s\n%x\n", ManifestOrigin, m.Image, m.Version, m.Digest)
}

func parseManifest(text string, m *Manifest) (err error) {
	s := bufio.NewScanner(strings.NewReader(text))
	var lines []string

	for s.Scan() {
		lines = append(lines, s.Text())
	}

	if len(lines) != 4 || lines[0] != ManifestOrigin {
		return fmt.Errorf("%w: malformed text", ErrManifest)
	}

	switch lines[1] {
	case mem.SecureImage.String():
		m.Image = mem.SecureImage
	case mem.NonSecureImage.String():
		m.Image = mem.NonSecureImage
	case mem.LoaderImage.String():
		m.Image = mem.LoaderImage
	default:
		return fmt.Errorf("%w: unknown image %q", ErrManifest, lines[1])
	}

	if _, err = fmt.Sscanf(lines[2], "%d.%d.%d+%d", &m.Version.Major, &m.Version.Minor, &m.Version.Revision, &m.Version.Build); err != nil {
		return fmt.Errorf("%w: version, %v", ErrManifest, err)
	}

	digest, err := hex.DecodeString(lines[3])

	if err != nil || len(digest) != sha256.Size {
		return fmt.Errorf("%w: digest", ErrManifest)
	}

	copy(m.Digest[:], digest)

	return
}

// Build returns a signed image for a payload, the header magic, header size
// and image size are filled in.
func Build(h Header, payload []byte, id mem.ImageID, signer note.Signer) (buf []byte, err error) {
	if len(payload) < VectorTableSize {
		return nil, fmt.Errorf("%w: payload too short", ErrFormat)
	}

	h.Magic = HeaderMagic
	h.ImageSize = uint32(len(payload))

	if h.HeaderSize == 0 {
		h.HeaderSize = DefaultHeaderSize
	}

	if h.HeaderSize < HeaderLength {
		return nil, fmt.Errorf("%w: header size %d", ErrFormat, h.HeaderSize)
	}

	img := &Image{
		Header:  h,
		Payload: payload,
		header:  h.Bytes(),
	}

	digest := img.Digest()

	m := &Manifest{
		Image:   id,
		Version: h.Version,
		Digest:  digest,
	}

	signed, err := note.Sign(&note.Note{Text: m.text()}, signer)

	if err != nil {
		return
	}

	tlvs, err := marshalTLVs([]TLV{
		{Type: TLV_SHA256, Value: digest[:]},
		{Type: TLV_MANIFEST, Value: signed},
	})

	if err != nil {
		return
	}

	buf = append(buf, img.header...)
	buf = append(buf, payload...)
	buf = append(buf, tlvs...)

	return
}

// Parse parses an image from a buffer, trailing data is ignored.
func Parse(buf []byte) (img *Image, err error) {
	h, err := ParseHeader(buf)

	if err != nil {
		return
	}

	end := uint64(h.HeaderSize) + uint64(h.ImageSize)

	if uint64(len(buf)) < end+TLVInfoLength {
		return nil, fmt.Errorf("%w: truncated image", ErrFormat)
	}

	size, err := tlvAreaSize(buf[end:])

	if err != nil {
		return
	}

	if uint64(len(buf)) < end+uint64(size) {
		return nil, fmt.Errorf("%w: truncated TLV area", ErrFormat)
	}

	img = &Image{
		Header:  *h,
		Payload: buf[h.HeaderSize:end],
		header:  buf[:h.HeaderSize],
	}

	if img.TLVs, err = unmarshalTLVs(buf[end : end+uint64(size)]); err != nil {
		return nil, err
	}

	return
}

// Load reads an image from a flash slot, the image and its TLV area must fit
// within the slot leaving room for the slot trailer.
func Load(d flash.Driver, s mem.Slot) (img *Image, err error) {
	limit := s.Size - TrailerSize

	hdr, err := flash.Read(d, s.Offset, HeaderLength)

	if err != nil {
		return
	}

	h, err := ParseHeader(hdr)

	if err != nil {
		return
	}

	end := uint64(h.HeaderSize) + uint64(h.ImageSize)

	if end+TLVInfoLength > uint64(limit) {
		return nil, fmt.Errorf("%w (%d > %d)", ErrTooLarge, end, limit)
	}

	info, err := flash.Read(d, s.Offset+uint32(end), TLVInfoLength)

	if err != nil {
		return
	}

	size, err := tlvAreaSize(info)

	if err != nil {
		return
	}

	total := end + uint64(size)

	if total > uint64(limit) {
		return nil, fmt.Errorf("%w (%d > %d)", ErrTooLarge, total, limit)
	}

	buf, err := flash.Read(d, s.Offset, int(total))

	if err != nil {
		return
	}

	return Parse(buf)
}

// Size returns the total image size including the TLV area.
func (img *Image) Size() uint32 {
	size := uint32(img.Header.HeaderSize) + img.Header.ImageSize + TLVInfoLength

	for _, t := range img.TLVs {
		size += TLVLength + uint32(len(t.Value))
	}

	return size
}

// Digest returns the SHA-256 digest of the header and payload.
func (img *Image) Digest() (digest [sha256.Size]byte) {
	h := sha256.New()
	h.Write(img.header)
	h.Write(img.Payload)
	copy(digest[:], h.Sum(nil))

	return
}

// TLV returns the value of the first TLV entry of a given type.
func (img *Image) TLV(typ uint16) ([]byte, bool) {
	for _, t := range img.TLVs {
		if t.Type == typ {
			return t.Value, true
		}
	}

	return nil, false
}

// Verify checks the image digest and, when a verifier is passed, the signed
// manifest binding the digest to the expected image identity.
func (img *Image) Verify(id mem.ImageID, v note.Verifier) (m *Manifest, err error) {
	digest := img.Digest()
	hash, ok := img.TLV(TLV_SHA256)

	if !ok || !bytes.Equal(hash, digest[:]) {
		return nil, ErrHash
	}

	if v == nil {
		return
	}

	signed, ok := img.TLV(TLV_MANIFEST)

	if !ok {
		return nil, fmt.Errorf("%w: missing", ErrManifest)
	}

	n, err := note.Open(signed, note.VerifierList(v))

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifest, err)
	}

	m = &Manifest{}

	if err = parseManifest(n.Text, m); err != nil {
		return nil, err
	}

	switch {
	case m.Image != id:
		return nil, fmt.Errorf("%w: %s image, expected %s", ErrManifest, m.Image, id)
	case m.Digest != digest:
		return nil, fmt.Errorf("%w: digest mismatch", ErrManifest)
	case m.Version != img.Header.Version:
		return nil, fmt.Errorf("%w: version mismatch", ErrManifest)
	}

	return
}

// VectorTable returns the initial stack pointer and reset handler from the
// payload vector table.
func (img *Image) VectorTable() (sp uint32, pc uint32) {
	sp = binary.LittleEndian.Uint32(img.Payload[0:])
	pc = binary.LittleEndian.Uint32(img.Payload[4:])

	return
}

// External returns the payload of an image authenticating an executable
// loaded from outside the slot: the vector table followed by the executable
// SHA-256 digest. Images built from it carry FLAG_EXTERNAL.
func External(sp uint32, pc uint32, exe []byte) []byte {
	digest := sha256.Sum256(exe)
	payload := make([]byte, VectorTableSize, VectorTableSize+sha256.Size)

	binary.LittleEndian.PutUint32(payload[0:], sp)
	binary.LittleEndian.PutUint32(payload[4:], pc)

	return append(payload, digest[:]...)
}

// VerifyExternal checks an executable against the digest held by an
// FLAG_EXTERNAL image.
func (img *Image) VerifyExternal(exe []byte) error {
	if img.Header.Flags&FLAG_EXTERNAL == 0 || len(img.Payload) < VectorTableSize+sha256.Size {
		return fmt.Errorf("%w: not an external image", ErrFormat)
	}

	digest := sha256.Sum256(exe)

	if !bytes.Equal(digest[:], img.Payload[VectorTableSize:VectorTableSize+sha256.Size]) {
		return ErrHash
	}

	return nil
}
