// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package util

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"net"

	"golang.org/x/crypto/ssh"
	"golang.org/x/term"
)

// Console represents a terminal console instance, served over SSH or on a
// raw stream (e.g. a serial port).
type Console struct {
	// Banner is the login welcome banner
	Banner string
	// Help returns the `help` command output
	Help func(*term.Terminal) string
	// Handler is the terminal command handler
	Handler func(*term.Terminal, string) error
	// Listener is the SSH server listener
	Listener net.Listener
	// Term is the terminal instance of the last session
	Term *term.Terminal
}

func (c *Console) newTerminal(rw io.ReadWriter) *term.Terminal {
	t := term.NewTerminal(rw, "")
	t.SetPrompt(string(t.Escape.Red) + "> " + string(t.Escape.Reset))

	c.Term = t

	return t
}

func (c *Console) run(t *term.Terminal) {
	w := log.Writer()

	log.SetOutput(io.MultiWriter(w, t))
	defer log.SetOutput(w)

	fmt.Fprintf(t, "%s\n", c.Banner)

	if c.Help != nil {
		fmt.Fprintf(t, "%s\n", c.Help(t))
	}

	for {
		cmd, err := t.ReadLine()

		if err == io.EOF {
			break
		}

		if err != nil {
			log.Printf("readline error: %v", err)
			continue
		}

		err = c.Handler(t, cmd)

		if err == io.EOF {
			break
		}

		if err != nil {
			fmt.Fprintf(t, "error: %v\n", err)
		}
	}
}

// Session runs a console session on the given stream until the client
// exits or the stream is closed.
func (c *Console) Session(rw io.ReadWriter) {
	c.run(c.newTerminal(rw))
}

func (c *Console) handleChannel(newChannel ssh.NewChannel) {
	if t := newChannel.ChannelType(); t != "session" {
		_ = newChannel.Reject(ssh.UnknownChannelType, fmt.Sprintf("unknown channel type: %s", t))
		return
	}

	conn, requests, err := newChannel.Accept()

	if err != nil {
		log.Printf("error accepting channel, %v", err)
		return
	}

	t := c.newTerminal(conn)

	go func() {
		defer conn.Close()

		c.run(t)

		log.Printf("closing ssh connection")
	}()

	go func() {
		for req := range requests {
			reqSize := len(req.Payload)

			switch req.Type {
			case "shell":
				// do not accept payload commands
				if len(req.Payload) == 0 {
					_ = req.Reply(true, nil)
				}
			case "pty-req":
				// p10, 6.2.  Requesting a Pseudo-Terminal, RFC4254
				if reqSize < 4 {
					log.Printf("malformed pty-req request")
					continue
				}

				termVariableSize := int(req.Payload[3])

				if reqSize < 4+termVariableSize+8 {
					log.Printf("malformed pty-req request")
					continue
				}

				w := binary.BigEndian.Uint32(req.Payload[4+termVariableSize:])
				h := binary.BigEndian.Uint32(req.Payload[4+termVariableSize+4:])

				_ = t.SetSize(int(w), int(h))
				_ = req.Reply(true, nil)
			case "window-change":
				// p10, 6.7.  Window Dimension Change Message, RFC4254
				if reqSize < 8 {
					log.Printf("malformed window-change request")
					continue
				}

				w := binary.BigEndian.Uint32(req.Payload)
				h := binary.BigEndian.Uint32(req.Payload[4:])

				_ = t.SetSize(int(w), int(h))
			}
		}
	}()
}

func (c *Console) handleChannels(chans <-chan ssh.NewChannel) {
	for newChannel := range chans {
		go c.handleChannel(newChannel)
	}
}

func (c *Console) listen(srv *ssh.ServerConfig) {
	for {
		conn, err := c.Listener.Accept()

		if err != nil {
			log.Printf("error accepting connection, %v", err)
			continue
		}

		sshConn, chans, reqs, err := ssh.NewServerConn(conn, srv)

		if err != nil {
			log.Printf("error accepting handshake, %v", err)
			continue
		}

		log.Printf("new ssh connection from %s (%s)", sshConn.RemoteAddr(), sshConn.ClientVersion())

		go ssh.DiscardRequests(reqs)
		go c.handleChannels(chans)
	}
}

// Start instantiates an SSH console on the console listener, with an
// ephemeral host key.
func (c *Console) Start() (err error) {
	if c.Listener == nil {
		return fmt.Errorf("missing listener")
	}

	srv := &ssh.ServerConfig{
		NoClientAuth: true,
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)

	if err != nil {
		return fmt.Errorf("private key generation error, %v", err)
	}

	signer, err := ssh.NewSignerFromKey(key)

	if err != nil {
		return fmt.Errorf("key conversion error, %v", err)
	}

	log.Printf("starting ssh server (%s)", ssh.FingerprintSHA256(signer.PublicKey()))

	srv.AddHostKey(signer)

	go c.listen(srv)

	return
}
