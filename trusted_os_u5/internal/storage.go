// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package emulator

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"github.com/usbarmory/u5-secure-boot/flash"
	"github.com/usbarmory/u5-secure-boot/soc/stm32u5"
)

// Storage file names
const (
	FlashFile       = "flash.bin"
	OptionBytesFile = "option_bytes.cbor"
)

// Storage represents the persistent state of an emulated device: the flash
// content and the programmed option bytes.
type Storage struct {
	// Dir is the storage directory
	Dir string
}

// Flash returns the device flash, backed by the storage flash file.
func (s *Storage) Flash() *flash.File {
	return flash.NewFile(filepath.Join(s.Dir, FlashFile), stm32u5.Info)
}

// LoadOptionBytes returns the persisted option bytes, or the device
// defaults when none have been programmed.
func (s *Storage) LoadOptionBytes() (ob stm32u5.OptionBytes, err error) {
	buf, err := os.ReadFile(filepath.Join(s.Dir, OptionBytesFile))

	if errors.Is(err, fs.ErrNotExist) {
		return stm32u5.DefaultOptionBytes(), nil
	}

	if err != nil {
		return
	}

	dec, err := cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()

	if err != nil {
		return
	}

	if err = dec.Unmarshal(buf, &ob); err != nil {
		return ob, fmt.Errorf("invalid option bytes file, %v", err)
	}

	return
}

// SaveOptionBytes persists the option bytes.
func (s *Storage) SaveOptionBytes(ob stm32u5.OptionBytes) (err error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()

	if err != nil {
		return
	}

	buf, err := enc.Marshal(&ob)

	if err != nil {
		return
	}

	if err = os.MkdirAll(s.Dir, 0700); err != nil {
		return
	}

	return os.WriteFile(filepath.Join(s.Dir, OptionBytesFile), buf, 0600)
}
