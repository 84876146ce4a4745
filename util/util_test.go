// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package util

import (
	"bytes"
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/term"
)

type rw struct {
	io.Reader
	bytes.Buffer
}

func (b *rw) Read(p []byte) (int, error) {
	return b.Reader.Read(p)
}

func (b *rw) Write(p []byte) (int, error) {
	return b.Buffer.Write(p)
}

func testCommands() *Commands {
	c := &Commands{}

	c.Add(Cmd{
		Name: "status",
		Help: "show status",
		Fn: func(*term.Terminal, []string) (string, error) {
			return "ok", nil
		},
	})

	c.Add(Cmd{
		Name:    "peek",
		Args:    2,
		Pattern: regexp.MustCompile(`^peek ([[:xdigit:]]+) (\d+)$`),
		Syntax:  "<hex addr> <words>",
		Help:    "read memory",
		Fn: func(_ *term.Terminal, arg []string) (string, error) {
			return strings.Join(arg, ","), nil
		},
	})

	c.Add(Cmd{
		Name:    "exit, quit",
		Args:    1,
		Pattern: regexp.MustCompile(`^(exit|quit)$`),
		Help:    "close session",
		Fn: func(*term.Terminal, []string) (string, error) {
			return "logout", io.EOF
		},
	})

	return c
}

func TestMatch(t *testing.T) {
	c := testCommands()

	for _, test := range []struct {
		line string
		name string
		arg  []string
	}{
		{"status", "status", []string{}},
		{"peek 0c000000 4", "peek", []string{"0c000000", "4"}},
		{"quit", "exit, quit", []string{"quit"}},
		{"status now", "", nil},
		{"peek zz 4", "", nil},
	} {
		cmd, arg, err := c.Match(test.line)

		if test.name == "" {
			if err == nil {
				t.Errorf("Match(%q) = %s, want error", test.line, cmd.Name)
			}

			continue
		}

		if err != nil {
			t.Errorf("Match(%q): %v", test.line, err)
			continue
		}

		if cmd.Name != test.name {
			t.Errorf("Match(%q) = %s, want %s", test.line, cmd.Name, test.name)
		}

		if diff := cmp.Diff(test.arg, arg); diff != "" {
			t.Errorf("Match(%q) arguments diff (-want +got):\n%s", test.line, diff)
		}
	}
}

func TestHandle(t *testing.T) {
	c := testCommands()
	out := &rw{Reader: strings.NewReader("")}
	tm := term.NewTerminal(out, "")

	if err := c.Handle(tm, "peek 20000000 2"); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(out.String(), "20000000,2") {
		t.Errorf("output %q", out.String())
	}

	if err := c.Handle(tm, "exit"); !errors.Is(err, io.EOF) {
		t.Errorf("Handle(exit) = %v, want EOF", err)
	}

	if err := c.Handle(tm, ""); err != nil {
		t.Errorf("Handle(empty) = %v", err)
	}

	if err := c.Handle(tm, "reboot"); err == nil {
		t.Errorf("Handle(reboot) succeeded")
	}
}

func TestHelp(t *testing.T) {
	help := testCommands().Help(nil)
	lines := strings.Split(strings.TrimSpace(help), "\n")

	if len(lines) != 3 {
		t.Fatalf("help:\n%s", help)
	}

	for i, prefix := range []string{"exit, quit", "peek", "status"} {
		if !strings.HasPrefix(lines[i], prefix) {
			t.Errorf("help line %d %q, want %s", i, lines[i], prefix)
		}
	}

	if !strings.Contains(lines[1], "<hex addr> <words>") || !strings.Contains(lines[1], "# read memory") {
		t.Errorf("help line %q", lines[1])
	}
}

func TestBufferedLog(t *testing.T) {
	output.Lock()
	defer output.Unlock()

	for _, c := range []byte("secure") {
		if line := buffer(c, true); line != nil {
			t.Fatalf("early flush %q", line)
		}
	}

	// interleaved non-secure output is buffered separately
	for _, c := range []byte("ns\n") {
		if line := buffer(c, false); line != nil && string(line) != "ns\n" {
			t.Errorf("non-secure line %q", line)
		}
	}

	if line := buffer('\n', true); string(line) != "secure\n" {
		t.Errorf("secure line %q", line)
	}

	var line []byte

	for i := 0; i <= outputLimit && line == nil; i++ {
		line = buffer('x', false)
	}

	if len(line) != outputLimit+1 {
		t.Errorf("flushed %d bytes at limit", len(line))
	}
}

func TestDebugTarget(t *testing.T) {
	SetDebugTarget(nil)

	if _, err := LookupSym("main.main"); err == nil {
		t.Errorf("LookupSym() without target succeeded")
	}

	SetDebugTarget([]byte("not an ELF"))

	if _, err := PCToLine(0x80010000); err == nil {
		t.Errorf("PCToLine() on invalid target succeeded")
	}

	SetDebugTarget(nil)
}
