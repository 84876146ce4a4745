// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package boot

import (
	"fmt"
	"log"

	"github.com/usbarmory/u5-secure-boot/mem"
	"github.com/usbarmory/u5-secure-boot/soc/stm32u5"
)

// Expected returns the option bytes required by a layout profile:
//   - secure watermarks covering the bootloader and the secure image slots
//   - write protection of the bootloader code
//   - hide protection of the bootloader code, when the profile uses it
//   - secure boot address set to the bootloader
func Expected(l *mem.Layout) (ob stm32u5.OptionBytes) {
	disabled := stm32u5.WRPArea{Pages: mem.Disabled}

	ob.RDP = stm32u5.RDP_LEVEL0
	ob.TZEN = true
	ob.DualBank = l.DualBank
	ob.SECWM = [2]mem.PageRange{mem.Disabled, mem.Disabled}
	ob.WRPA = [2]stm32u5.WRPArea{disabled, disabled}
	ob.WRPB = [2]stm32u5.WRPArea{disabled, disabled}

	secure := [][2]uint32{
		{l.Boot.Start - mem.FlashBaseS, l.Boot.Size},
		{l.BootNoHDP.Start - mem.FlashBaseS, l.BootNoHDP.Size},
	}

	for _, s := range l.Slots {
		if s.Image != mem.NonSecureImage {
			secure = append(secure, [2]uint32{s.Offset, s.Size})
		}
	}

	for _, r := range secure {
		pages := mem.Pages(r[0], r[1])

		for bank := range ob.SECWM {
			ob.SECWM[bank] = mem.Merge(ob.SECWM[bank], pages[bank])
		}
	}

	boot := l.Boot.Start - mem.FlashBaseS
	wrp := mem.Pages(boot, l.BootNoHDP.End()-l.Boot.Start)

	for bank := range ob.WRPA {
		ob.WRPA[bank].Pages = wrp[bank]
		ob.WRPA[bank].Unlock = wrp[bank].Enabled()
	}

	if l.HDP {
		last := l.Boot.End() - mem.FlashBaseS - 1
		bank := mem.Bank(last)

		ob.HDP[bank] = stm32u5.HDPArea{
			End:     mem.Page(last),
			Enabled: true,
		}
	}

	ob.SecBootAddr0 = l.Boot.Start

	return
}

// Expected returns the option bytes required by the configuration.
func (c *Config) Expected() (ob stm32u5.OptionBytes) {
	ob = Expected(c.Layout)
	ob.RDP = c.RDP

	if !c.HDP {
		ob.HDP = [2]stm32u5.HDPArea{}
	}

	return
}

// Mismatch represents an option byte field differing from its expected
// value.
type Mismatch struct {
	Field    string
	Value    string
	Expected string
	// Settable is false for fields which cannot be reprogrammed by the
	// bootloader
	Settable bool
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s:%s (expected %s)", m.Field, m.Value, m.Expected)
}

// Compare returns the fields of the current option bytes which do not match
// the expected ones, unused hide protection end pages are ignored.
func Compare(ob stm32u5.OptionBytes, want stm32u5.OptionBytes) (m []Mismatch) {
	add := func(field string, val any, exp any, settable bool) {
		v := fmt.Sprint(val)
		e := fmt.Sprint(exp)

		if v != e {
			m = append(m, Mismatch{field, v, e, settable})
		}
	}

	// a higher readout protection level is accepted as is
	if stm32u5.RDPRank(ob.RDP) < stm32u5.RDPRank(want.RDP) {
		add("RDP", stm32u5.RDPName(ob.RDP), stm32u5.RDPName(want.RDP), false)
	}

	add("TZEN", ob.TZEN, want.TZEN, false)
	add("DUALBANK", ob.DualBank, want.DualBank, false)
	add("SWAP_BANK", ob.SwapBank, want.SwapBank, false)

	for bank := range ob.SECWM {
		n := bank + 1

		add(fmt.Sprintf("SECWM%d", n), ob.SECWM[bank], want.SECWM[bank], true)
		add(fmt.Sprintf("HDP%dEN", n), ob.HDP[bank].Enabled, want.HDP[bank].Enabled, true)

		if want.HDP[bank].Enabled {
			add(fmt.Sprintf("HDP%d_PEND", n), ob.HDP[bank].End, want.HDP[bank].End, true)
		}

		add(fmt.Sprintf("WRP%dA", n), ob.WRPA[bank].Pages, want.WRPA[bank].Pages, true)
		add(fmt.Sprintf("WRP%dA_UNLOCK", n), ob.WRPA[bank].Unlock, want.WRPA[bank].Unlock, true)
		add(fmt.Sprintf("WRP%dB", n), ob.WRPB[bank].Pages, want.WRPB[bank].Pages, true)
	}

	add("SECBOOTADD0", fmt.Sprintf("%#.8x", ob.SecBootAddr0), fmt.Sprintf("%#.8x", want.SecBootAddr0), true)

	return
}

// CheckStaticProtections compares the option bytes with the expected
// configuration.
//
// On mismatch the device is reset through the fatal handler, unless
// EnableSetOB is set and all mismatching fields can be reprogrammed: in
// this case the option bytes are programmed and reloaded, which resets the
// device, and ErrReset is returned.
//
// The readout protection level is never lowered, a level below the
// expected one is always fatal.
func (p *Platform) CheckStaticProtections() (err error) {
	ob := p.SoC.Flash.OptionBytes()
	want := p.Config.Expected()

	mismatches := Compare(ob, want)

	if len(mismatches) == 0 {
		return
	}

	settable := p.EnableSetOB

	for _, m := range mismatches {
		log.Printf("BL2 option bytes mismatch %s", m)
		settable = settable && m.Settable
	}

	if stm32u5.RDPRank(ob.RDP) < stm32u5.RDPRank(want.RDP) {
		return p.Fatal(fmt.Errorf("%w: RDP level %s below %s", ErrStaticProtection, stm32u5.RDPName(ob.RDP), stm32u5.RDPName(want.RDP)))
	}

	if !settable {
		return p.Fatal(fmt.Errorf("%w: %d fields", ErrStaticProtection, len(mismatches)))
	}

	set := ob
	set.SECWM = want.SECWM
	set.HDP = want.HDP
	set.WRPA = want.WRPA
	set.WRPB = want.WRPB
	set.SecBootAddr0 = want.SecBootAddr0

	log.Printf("BL2 programming option bytes %s", &set)

	if err = p.SoC.Flash.ProgramOptionBytes(&set); err != nil {
		return p.Fatal(fmt.Errorf("%w: programming failed, %v", ErrStaticProtection, err))
	}

	return ErrReset
}
