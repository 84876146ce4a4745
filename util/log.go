// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package util

import (
	"bytes"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

const outputLimit = 1024
const flushChr = 0x0a // \n

var output struct {
	sync.Mutex

	secure    bytes.Buffer
	nonSecure bytes.Buffer
}

func buffer(c byte, secure bool) []byte {
	buf := &output.nonSecure

	if secure {
		buf = &output.secure
	}

	buf.WriteByte(c)

	if c != flushChr && buf.Len() <= outputLimit {
		return nil
	}

	line := bytes.Clone(buf.Bytes())
	buf.Reset()

	return line
}

// BufferedStdoutLog buffers a world output character, flushing to stdout
// line by line.
func BufferedStdoutLog(c byte, secure bool) {
	output.Lock()
	defer output.Unlock()

	if line := buffer(c, secure); line != nil {
		os.Stdout.Write(line)
	}
}

// BufferedTermLog buffers a world output character, flushing to a terminal
// line by line (green for the secure world, red for the non-secure one).
func BufferedTermLog(c byte, secure bool, t *term.Terminal) {
	output.Lock()
	defer output.Unlock()

	line := buffer(c, secure)

	if line == nil {
		return
	}

	color := t.Escape.Red

	if secure {
		color = t.Escape.Green
	}

	t.Write(color)
	t.Write(line)
	t.Write(t.Escape.Reset)
}

// WorldWriter returns a writer buffering the output of a world, flushed on
// the terminal returned by t when available and on stdout otherwise.
func WorldWriter(secure bool, t func() *term.Terminal) io.Writer {
	return worldWriter{secure: secure, term: t}
}

type worldWriter struct {
	secure bool
	term   func() *term.Terminal
}

func (w worldWriter) Write(p []byte) (int, error) {
	var t *term.Terminal

	if w.term != nil {
		t = w.term()
	}

	for _, c := range p {
		if t != nil {
			BufferedTermLog(c, w.secure, t)
		} else {
			BufferedStdoutLog(c, w.secure)
		}
	}

	return len(p), nil
}
