// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago || tinygo
// +build tamago tinygo

package reg

import (
	"sync/atomic"
	"unsafe"
)

// MMIO represents the processor physical address space.
type MMIO struct{}

// Read32 implements Bus.
func (MMIO) Read32(addr uint32) uint32 {
	reg := (*uint32)(unsafe.Pointer(uintptr(addr)))
	return atomic.LoadUint32(reg)
}

// Write32 implements Bus.
func (MMIO) Write32(addr uint32, val uint32) {
	reg := (*uint32)(unsafe.Pointer(uintptr(addr)))
	atomic.StoreUint32(reg, val)
}
