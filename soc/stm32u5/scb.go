// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package stm32u5

import (
	"github.com/usbarmory/u5-secure-boot/reg"
)

// SCB registers
const (
	SCB_VTOR = 0x08

	SCB_AIRCR          = 0x0c
	AIRCR_VECTKEY      = 16
	AIRCR_VECTKEY_VAL  = 0x05fa
	AIRCR_SYSRESETREQS = 3
	AIRCR_SYSRESETREQ  = 2

	SCB_SHCSR            = 0x24
	SHCSR_SECUREFAULTENA = 19

	NVIC_ISER = 0x00
	NVIC_ICER = 0x80
)

// SCB represents the System Control Block and the interrupt enables relevant
// to security fault handling.
type SCB struct {
	vtor  reg.Register
	aircr reg.Register
	shcsr reg.Register
	nvic  reg.Register
}

// NewSCB returns the SCB at the given base address.
func NewSCB(bus reg.Bus, base uint32, nvic uint32) *SCB {
	b := reg.At(bus, base)

	return &SCB{
		vtor:  b.Offset(SCB_VTOR),
		aircr: b.Offset(SCB_AIRCR),
		shcsr: b.Offset(SCB_SHCSR),
		nvic:  reg.At(bus, nvic),
	}
}

// SystemReset requests a system reset.
func (hw *SCB) SystemReset() {
	hw.aircr.Write(AIRCR_VECTKEY_VAL<<AIRCR_VECTKEY | 1<<AIRCR_SYSRESETREQ)
}

// SetVectorTable sets the vector table offset register.
func (hw *SCB) SetVectorTable(addr uint32) {
	hw.vtor.Write(addr)
}

// SecureFaultEnabled returns whether the SecureFault exception is enabled.
func (hw *SCB) SecureFaultEnabled() bool {
	return hw.shcsr.IsSet(SHCSR_SECUREFAULTENA)
}

// EnableSecureFault enables or disables the SecureFault exception.
func (hw *SCB) EnableSecureFault(enable bool) {
	hw.shcsr.SetTo(SHCSR_SECUREFAULTENA, enable)
}

// EnableIRQ enables or disables an external interrupt.
func (hw *SCB) EnableIRQ(irq int, enable bool) {
	off := uint32(NVIC_ICER)

	if enable {
		off = NVIC_ISER
	}

	// write-one-to-set and write-one-to-clear registers
	hw.nvic.Offset(off + uint32(irq/32)*4).Write(1 << (irq % 32))
}

// IRQEnabled returns whether an external interrupt is enabled.
func (hw *SCB) IRQEnabled(irq int) bool {
	return hw.nvic.Offset(NVIC_ISER + uint32(irq/32)*4).IsSet(irq % 32)
}
