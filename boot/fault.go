// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package boot

import (
	"fmt"

	"github.com/usbarmory/u5-secure-boot/gateway"
)

// SecureFault handles a SecureFault exception by notifying the registered
// non-secure callback, the fault is fatal when no callback is registered.
func (p *Platform) SecureFault() error {
	sfsr, sfar, _ := p.SoC.SAU.Fault()
	p.SoC.SAU.ClearFault(sfsr)

	f := gateway.Fault{
		Source: gateway.SecureFaultCallback,
		Addr:   sfar,
		Status: sfsr,
	}

	if !p.Gateway.Dispatch(f) {
		return p.Fatal(fmt.Errorf("%w: %s", ErrFault, f))
	}

	return nil
}

// GTZCError handles the GTZC illegal access interrupt by notifying the
// registered non-secure callback of each pending source, the fault is
// fatal when no callback is registered.
func (p *Platform) GTZCError() error {
	tzic := p.SoC.GTZC.TZIC

	for _, id := range tzic.Pending() {
		tzic.Clear(id)

		f := gateway.Fault{
			Source: gateway.GTZCErrorCallback,
			Status: uint32(id),
		}

		if !p.Gateway.Dispatch(f) {
			return p.Fatal(fmt.Errorf("%w: %s", ErrFault, f))
		}
	}

	return nil
}
