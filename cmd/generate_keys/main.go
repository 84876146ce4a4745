// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// The generate_keys command creates the firmware image signing key pair.
package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"
	"golang.org/x/mod/sumdb/note"
)

var (
	keyName = flag.String("key_name", "", "key identity name")
	outPriv = flag.String("out_priv", "", "private (signer) key output file")
	outPub  = flag.String("out_pub", "", "public (verifier) key output file")
)

func main() {
	flag.Parse()

	if len(*keyName) == 0 || len(*outPriv) == 0 || len(*outPub) == 0 {
		glog.Exit("--key_name, --out_priv and --out_pub are required")
	}

	skey, vkey, err := note.GenerateKey(rand.Reader, *keyName)

	if err != nil {
		glog.Exitf("could not generate key, %v", err)
	}

	if err = writeKey(*outPriv, skey); err != nil {
		glog.Exit(err)
	}

	if err = writeKey(*outPub, vkey); err != nil {
		glog.Exit(err)
	}

	glog.Infof("generated %s key pair (%s)", *keyName, *outPub)
}

// writeKey writes a key file, existing files are never overwritten.
func writeKey(name string, key string) (err error) {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)

	if err != nil {
		return fmt.Errorf("could not create key file, %w", err)
	}

	defer f.Close()

	if _, err = fmt.Fprintln(f, key); err != nil {
		return fmt.Errorf("could not write key file %s, %w", name, err)
	}

	return
}
