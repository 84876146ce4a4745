// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm
// +build tamago,arm

package main

import (
	"errors"
	"io"
	"net/rpc/jsonrpc"
	"unsafe"

	"github.com/usbarmory/GoTEE/syscall"
)

// defined in api_arm.s
func smc(a0 uint32, a1 uint32, a2 uint32) uint32

func printSecure(c byte) {
	smc(syscall.SYS_WRITE, uint32(c), 0)
}

func exit() {
	smc(syscall.SYS_EXIT, 0, 0)
}

// stream implements an RPC transport towards the Secure Monitor, requests
// and responses are exchanged through secure monitor calls.
type stream struct{}

func (s *stream) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}

	smc(syscall.SYS_RPC_REQ, uint32(uintptr(unsafe.Pointer(&b[0]))), uint32(len(b)))

	return len(b), nil
}

func (s *stream) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}

	n := int(smc(syscall.SYS_RPC_RES, uint32(uintptr(unsafe.Pointer(&b[0]))), uint32(len(b))))

	if n < 0 || n > len(b) {
		return 0, errors.New("invalid read")
	}

	if n == 0 {
		return 0, io.EOF
	}

	return n, nil
}

func (s *stream) Close() error {
	return nil
}

// call invokes a Secure Monitor RPC method.
func call(serviceMethod string, args interface{}, reply interface{}) error {
	c := jsonrpc.NewClient(&stream{})
	return c.Call(serviceMethod, args, reply)
}
