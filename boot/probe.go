// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package boot

import (
	"fmt"

	"github.com/usbarmory/u5-secure-boot/soc/stm32u5"
)

// Access represents the access rights to an address, as resulting from the
// SAU, MPCBB and MPU configuration.
type Access struct {
	// Secure is the SAU attribution
	Secure bool
	// NSC is set for non-secure callable addresses
	NSC bool
	// SRAM is set for addresses covered by an MPCBB
	SRAM bool
	// SecureBlock is the MPCBB block attribution
	SecureBlock bool

	// S are the permissions of privileged secure accesses
	S stm32u5.Permissions
	// NS are the permissions of privileged non-secure accesses
	NS stm32u5.Permissions
}

// Allowed returns whether the non-secure world has any access.
func (a Access) Allowed() bool {
	return a.NS.Read || a.NS.Write || a.NS.Exec
}

func perm(p stm32u5.Permissions) string {
	s := []byte("---")

	if p.Read {
		s[0] = 'r'
	}

	if p.Write {
		s[1] = 'w'
	}

	if p.Exec {
		s[2] = 'x'
	}

	return string(s)
}

func (a Access) String() string {
	attr := "non-secure"

	switch {
	case a.NSC:
		attr = "nsc"
	case a.Secure:
		attr = "secure"
	}

	if a.SRAM {
		if a.SecureBlock {
			attr += " block:secure"
		} else {
			attr += " block:non-secure"
		}
	}

	return fmt.Sprintf("%s S:%s NS:%s", attr, perm(a.S), perm(a.NS))
}

// Probe evaluates the access rights to an address from the protection
// state read back from the device registers.
//
// Non-secure accesses require a non-secure SAU attribution, a non-secure
// MPCBB block for SRAM addresses and a non-secure MPU region. Non-secure
// callable addresses are only executable, within secure MPU limits.
func (p *Platform) Probe(addr uint32) (a Access) {
	a.Secure, a.NSC = p.SoC.SAU.Attribution(addr)

	if m, off, ok := p.SoC.GTZC.Lookup(addr); ok {
		a.SRAM = true
		a.SecureBlock = m.Secure(off)
	}

	a.S = p.SoC.MPU.Lookup(addr, true)

	switch {
	case a.NSC:
		a.NS.Exec = a.S.Exec
	case a.Secure:
	case a.SRAM && a.SecureBlock:
	default:
		a.NS = p.SoC.MPUNS.Lookup(addr, true)
	}

	return
}
