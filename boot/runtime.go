// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package boot

import (
	"errors"
	"fmt"
	"log"

	"github.com/usbarmory/u5-secure-boot/mem"
	"github.com/usbarmory/u5-secure-boot/soc/stm32u5"
)

// Secure MPU region numbers
const (
	mpuBootCode = iota
	mpuBootNoHDP
	mpuBootData
	mpuShared
	mpuSlots
	mpuPeriph
)

func mpuRegion(r mem.Region, ap uint32, xn bool, attr uint32) stm32u5.MPURegion {
	return stm32u5.MPURegion{
		Start:     r.Start,
		End:       r.End(),
		AP:        ap,
		XN:        xn,
		AttrIndex: attr,
		Enabled:   true,
	}
}

// slotArea returns the secure alias window covering all firmware slots.
func slotArea(l *mem.Layout) (r mem.Region) {
	var start, end uint32 = mem.FlashSize, 0

	for _, s := range l.Slots {
		start = min(start, s.Offset)
		end = max(end, s.End())
	}

	return mem.Region{
		Name:  "slots",
		Start: mem.FlashS(start),
		Size:  end - start,
		Attr:  mem.Secure | mem.Read | mem.Write,
	}
}

// secureRegions returns the secure MPU configuration applied by
// InitProtections, the background region is disabled so that any access
// outside these regions faults.
func secureRegions(l *mem.Layout) map[int]stm32u5.MPURegion {
	return map[int]stm32u5.MPURegion{
		mpuBootCode:  mpuRegion(l.Boot, stm32u5.AP_RO_PRIV, false, stm32u5.ATTR_NORMAL),
		mpuBootNoHDP: mpuRegion(l.BootNoHDP, stm32u5.AP_RO_PRIV, false, stm32u5.ATTR_NORMAL),
		mpuBootData:  mpuRegion(l.BootData, stm32u5.AP_RW_PRIV, true, stm32u5.ATTR_NORMAL),
		mpuShared:    mpuRegion(l.Shared, stm32u5.AP_RW_PRIV, true, stm32u5.ATTR_NORMAL),
		mpuSlots:     mpuRegion(slotArea(l), stm32u5.AP_RW_PRIV, true, stm32u5.ATTR_NORMAL),
		mpuPeriph:    mpuRegion(l.Peripherals, stm32u5.AP_RW_PRIV, true, stm32u5.ATTR_DEVICE),
	}
}

// secureDataWindow returns the secure image RAM, excluding the shared area
// which precedes it.
func secureDataWindow(l *mem.Layout) (r mem.Region, err error) {
	r = l.SecureData

	if r.Overlaps(l.Shared) {
		if l.Shared.Start != r.Start || l.Shared.Size >= r.Size {
			return r, errors.New("shared area must precede the secure image data")
		}

		r.Start = l.Shared.End()
		r.Size -= l.Shared.Size
	}

	return
}

// updatedRegions returns the secure MPU regions modified by
// UpdateProtections.
func updatedRegions(l *mem.Layout) (regions map[int]stm32u5.MPURegion, err error) {
	regions = map[int]stm32u5.MPURegion{
		mpuBootCode: mpuRegion(l.Boot, stm32u5.AP_RO_PRIV, true, stm32u5.ATTR_NORMAL),
		mpuShared:   mpuRegion(l.Shared, stm32u5.AP_RO_PRIV, true, stm32u5.ATTR_NORMAL),
	}

	if l.Next != mem.SecureImage {
		return
	}

	if l.SecureCode == nil {
		return nil, errors.New("missing secure image code region")
	}

	data, err := secureDataWindow(l)

	if err != nil {
		return
	}

	regions[mpuSlots] = mpuRegion(*l.SecureCode, stm32u5.AP_RO_PRIV, false, stm32u5.ATTR_NORMAL)
	regions[mpuBootData] = mpuRegion(data, stm32u5.AP_RW_PRIV, true, stm32u5.ATTR_NORMAL)

	return
}

// nonSecureRegions returns the non-secure MPU configuration.
func nonSecureRegions(l *mem.Layout) (regions []stm32u5.MPURegion) {
	for _, r := range l.NonSecure {
		switch {
		case r.Attr&mem.Secure != 0:
			continue
		case r.Attr&mem.Exec != 0:
			regions = append(regions, mpuRegion(r, stm32u5.AP_RO_ANY, false, stm32u5.ATTR_NORMAL))
		case r.Attr&mem.Device != 0:
			regions = append(regions, mpuRegion(r, stm32u5.AP_RW_ANY, true, stm32u5.ATTR_DEVICE))
		default:
			regions = append(regions, mpuRegion(r, stm32u5.AP_RW_ANY, true, stm32u5.ATTR_NORMAL))
		}
	}

	return
}

func (p *Platform) disableFaultIRQ() {
	p.SoC.SCB.EnableSecureFault(false)
	p.SoC.SCB.EnableIRQ(stm32u5.GTZC_IRQ, false)
}

func (p *Platform) enableFaultIRQ() error {
	p.SoC.SCB.EnableSecureFault(true)
	p.SoC.SCB.EnableIRQ(stm32u5.GTZC_IRQ, true)

	if !p.SoC.SCB.SecureFaultEnabled() || !p.SoC.SCB.IRQEnabled(stm32u5.GTZC_IRQ) {
		return errors.New("fault interrupt enable readback mismatch")
	}

	return nil
}

func (p *Platform) transition(from state, to state) error {
	if p.state != from {
		return p.Fatal(fmt.Errorf("%w: %s transition from %s state", ErrRuntimeProtection, to, p.state))
	}

	p.state = to

	return nil
}

func (p *Platform) configureMPU(mpu *stm32u5.MPU, regions map[int]stm32u5.MPURegion, clear bool) (err error) {
	mpu.Disable()

	if err = mpu.SetDefaultAttributes(); err != nil {
		return
	}

	if clear {
		for n := 0; n < mpu.Regions(); n++ {
			mpu.ClearRegion(n)
		}
	}

	for n, r := range regions {
		if err = mpu.SetRegion(n, r); err != nil {
			return
		}
	}

	return mpu.Enable(false)
}

func (p *Platform) configureSAU() (err error) {
	sau := p.SoC.SAU

	if len(p.Layout.NonSecure) > sau.Regions() {
		return fmt.Errorf("%d non-secure regions exceed %d SAU regions", len(p.Layout.NonSecure), sau.Regions())
	}

	sau.Disable()

	for n := 0; n < sau.Regions(); n++ {
		sau.ClearRegion(n)
	}

	for n, r := range p.Layout.NonSecure {
		if err = sau.SetRegion(n, r.Start, r.End(), r.Attr&mem.NSC != 0); err != nil {
			return
		}
	}

	return sau.Enable(false)
}

// setBlocks sets the MPCBB attribution of the SRAM blocks covered by a
// region.
func (p *Platform) setBlocks(r mem.Region, secure bool) (err error) {
	start := r.Start - mem.SRAMBaseNS

	if r.Attr&mem.Secure != 0 {
		start = r.Start - mem.SRAMBaseS
	}

	end := start + r.Size

	for _, m := range p.SoC.GTZC.MPCBB {
		s := max(start, m.Offset)
		e := min(end, m.Offset+m.Size)

		if s >= e {
			continue
		}

		if err = m.SetSecure(s-m.Offset, e-s, secure); err != nil {
			return
		}
	}

	return
}

func sram(r mem.Region) bool {
	base := r.Start &^ (mem.PeriphSize - 1)
	return base == mem.SRAMBaseNS || base == mem.SRAMBaseS
}

func (p *Platform) configureGTZC() (err error) {
	for _, r := range p.Layout.NonSecure {
		if r.Attr&mem.Secure != 0 || !sram(r) {
			continue
		}

		if err = p.setBlocks(r, false); err != nil {
			return
		}
	}

	for _, periph := range p.SecurePeripherals {
		if err = p.SoC.GTZC.TZSC.SetSecure(periph, true); err != nil {
			return
		}
	}

	return p.SoC.GTZC.TZIC.EnableAll()
}

// InitProtections applies the runtime protections required during boot:
// secure and non-secure MPU with background access denied, SAU windows
// for the non-secure world and its callable veneers, GTZC memory and
// peripheral attribution with illegal access interrupts enabled.
//
// Fault interrupts are masked while the configuration is applied, any
// readback mismatch is fatal.
func (p *Platform) InitProtections() (err error) {
	if err = p.transition(stateReset, stateInitialized); err != nil {
		return
	}

	log.Printf("BL2 applying runtime protections")

	p.disableFaultIRQ()

	steps := []struct {
		name string
		fn   func() error
	}{
		{"secure MPU", func() error { return p.configureMPU(p.SoC.MPU, secureRegions(p.Layout), true) }},
		{"non-secure MPU", p.configureNonSecureMPU},
		{"SAU", p.configureSAU},
		{"GTZC", p.configureGTZC},
		{"fault interrupts", p.enableFaultIRQ},
	}

	for _, step := range steps {
		if err = step.fn(); err != nil {
			return p.Fatal(fmt.Errorf("%w: %s, %v", ErrRuntimeProtection, step.name, err))
		}
	}

	return
}

func (p *Platform) configureNonSecureMPU() error {
	regions := nonSecureRegions(p.Layout)

	if len(regions) > p.SoC.MPUNS.Regions() {
		return fmt.Errorf("%d non-secure regions exceed %d MPU regions", len(regions), p.SoC.MPUNS.Regions())
	}

	m := make(map[int]stm32u5.MPURegion, len(regions))

	for n, r := range regions {
		m[n] = r
	}

	return p.configureMPU(p.SoC.MPUNS, m, true)
}

// UpdateProtections applies the runtime protections required for the
// handoff: the next image code becomes executable, the shared area
// read-only and the bootloader code, except its jump section,
// non-executable. The bootloader hide protection access is disabled last.
func (p *Platform) UpdateProtections() (err error) {
	if err = p.transition(stateInitialized, stateUpdated); err != nil {
		return
	}

	log.Printf("BL2 locking runtime protections")

	regions, err := updatedRegions(p.Layout)

	if err != nil {
		return p.Fatal(fmt.Errorf("%w: %v", ErrRuntimeProtection, err))
	}

	p.disableFaultIRQ()

	if err = p.configureMPU(p.SoC.MPU, regions, false); err != nil {
		return p.Fatal(fmt.Errorf("%w: secure MPU, %v", ErrRuntimeProtection, err))
	}

	if err = p.enableFaultIRQ(); err != nil {
		return p.Fatal(fmt.Errorf("%w: %v", ErrRuntimeProtection, err))
	}

	if !p.Layout.HDP || !p.HDP {
		return
	}

	bank := mem.Bank(p.Layout.Boot.End() - mem.FlashBaseS - 1)

	if err = p.SoC.Flash.HDPAccessDisable(bank); err != nil {
		return p.Fatal(fmt.Errorf("%w: %v", ErrRuntimeProtection, err))
	}

	return
}
