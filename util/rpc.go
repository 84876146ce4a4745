// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package util

// FlashRequest represents an RPC flash programming request.
type FlashRequest struct {
	// Addr is the flash address
	Addr uint32
	// Data is the data to program
	Data []byte
}

// InstallRequest represents an RPC image installation request.
type InstallRequest struct {
	// Image is the image identifier
	Image int
	// Size is the received image size
	Size uint32
}
