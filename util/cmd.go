// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package util

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"text/tabwriter"

	"golang.org/x/term"
)

// CmdFn represents a console command handler.
type CmdFn func(term *term.Terminal, arg []string) (res string, err error)

// Cmd represents a console command.
type Cmd struct {
	Name    string
	Args    int
	Pattern *regexp.Regexp
	Syntax  string
	Help    string
	Fn      CmdFn
}

// Commands represents a console command set.
type Commands struct {
	sync.Mutex

	cmds map[string]*Cmd
}

// Add registers a command, commands without a pattern match their name
// with no arguments.
func (c *Commands) Add(cmd Cmd) {
	c.Lock()
	defer c.Unlock()

	if c.cmds == nil {
		c.cmds = make(map[string]*Cmd)
	}

	if cmd.Pattern == nil {
		cmd.Pattern = regexp.MustCompile(`^` + cmd.Name + `$`)
	}

	c.cmds[cmd.Name] = &cmd
}

func (c *Commands) names() (names []string) {
	for name := range c.cmds {
		names = append(names, name)
	}

	sort.Strings(names)

	return
}

// Help returns the command set help, colored when a terminal is given.
func (c *Commands) Help(t *term.Terminal) string {
	c.Lock()
	defer c.Unlock()

	var help bytes.Buffer
	w := tabwriter.NewWriter(&help, 16, 8, 0, '\t', tabwriter.TabIndent)

	for _, name := range c.names() {
		cmd := c.cmds[name]
		_, _ = fmt.Fprintf(w, "%s\t%s\t # %s\n", cmd.Name, cmd.Syntax, cmd.Help)
	}

	_ = w.Flush()

	if t == nil {
		return help.String()
	}

	return string(t.Escape.Cyan) + help.String() + string(t.Escape.Reset)
}

// Match returns the command matching a line and its arguments.
func (c *Commands) Match(line string) (cmd *Cmd, arg []string, err error) {
	c.Lock()
	defer c.Unlock()

	for _, name := range c.names() {
		cmd = c.cmds[name]

		if m := cmd.Pattern.FindStringSubmatch(line); len(m) > 0 && len(m)-1 == cmd.Args {
			return cmd, m[1:], nil
		}
	}

	return nil, nil, errors.New("unknown command, type `help`")
}

// Handle executes the command matching a line, printing its result on the
// terminal.
func (c *Commands) Handle(t *term.Terminal, line string) (err error) {
	if len(line) == 0 {
		return
	}

	cmd, arg, err := c.Match(line)

	if err != nil {
		return
	}

	res, err := cmd.Fn(t, arg)

	if len(res) > 0 {
		_, _ = fmt.Fprintln(t, res)
	}

	return
}
