// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package emulator

// Minimal WebAssembly module encoder for test applications.

// function types
const (
	typeVoidI32 = iota // () -> i32
	typeI32I32         // (i32) -> i32
	typeI32x2I32       // (i32, i32) -> i32
	typeI32x3I32       // (i32, i32, i32) -> i32
	typeI32I64         // (i32) -> i64
	typeI32x2Void      // (i32, i32) -> ()
)

var funcTypes = [][]byte{
	{0x60, 0x00, 0x01, 0x7f},
	{0x60, 0x01, 0x7f, 0x01, 0x7f},
	{0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f},
	{0x60, 0x03, 0x7f, 0x7f, 0x7f, 0x01, 0x7f},
	{0x60, 0x01, 0x7f, 0x01, 0x7e},
	{0x60, 0x02, 0x7f, 0x7f, 0x00},
}

// instructions
const (
	opEnd      = 0x0b
	opCall     = 0x10
	opDrop     = 0x1a
	opI32Const = 0x41
)

type wasmImport struct {
	field string
	typ   int
}

type wasmFunc struct {
	export string
	typ    int
	code   []byte
}

func uleb(n uint32) (b []byte) {
	for {
		c := byte(n & 0x7f)
		n >>= 7

		if n == 0 {
			return append(b, c)
		}

		b = append(b, c|0x80)
	}
}

func sleb(n int32) (b []byte) {
	for {
		c := byte(n & 0x7f)
		n >>= 7

		if (n == 0 && c&0x40 == 0) || (n == -1 && c&0x40 != 0) {
			return append(b, c)
		}

		b = append(b, c|0x80)
	}
}

func wasmName(s string) []byte {
	return append(uleb(uint32(len(s))), s...)
}

func wasmVec(items [][]byte) (b []byte) {
	b = uleb(uint32(len(items)))

	for _, item := range items {
		b = append(b, item...)
	}

	return
}

func wasmSection(id byte, content []byte) []byte {
	return append(append([]byte{id}, uleb(uint32(len(content)))...), content...)
}

func i32Const(n uint32) []byte {
	return append([]byte{opI32Const}, sleb(int32(n))...)
}

func call(idx int) []byte {
	return append([]byte{opCall}, uleb(uint32(idx))...)
}

func code(parts ...[]byte) (b []byte) {
	for _, p := range parts {
		b = append(b, p...)
	}

	return append(b, opEnd)
}

// wasmModule encodes a module, defined functions are indexed after the
// imports.
func wasmModule(imports []wasmImport, funcs []wasmFunc) []byte {
	var imps, decls, exports, bodies [][]byte

	for _, imp := range imports {
		entry := append(wasmName("env"), wasmName(imp.field)...)
		entry = append(entry, 0x00)
		imps = append(imps, append(entry, uleb(uint32(imp.typ))...))
	}

	for i, fn := range funcs {
		decls = append(decls, uleb(uint32(fn.typ)))

		if fn.export != "" {
			entry := append(wasmName(fn.export), 0x00)
			exports = append(exports, append(entry, uleb(uint32(len(imports)+i))...))
		}

		// no locals
		body := append([]byte{0x00}, fn.code...)
		bodies = append(bodies, append(uleb(uint32(len(body))), body...))
	}

	m := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	m = append(m, wasmSection(1, wasmVec(funcTypes))...)
	m = append(m, wasmSection(2, wasmVec(imps))...)
	m = append(m, wasmSection(3, wasmVec(decls))...)
	m = append(m, wasmSection(7, wasmVec(exports))...)
	m = append(m, wasmSection(10, wasmVec(bodies))...)

	return m
}
