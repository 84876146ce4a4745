// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package stm32u5

import (
	"sync"

	"github.com/usbarmory/u5-secure-boot/mem"
	"github.com/usbarmory/u5-secure-boot/reg"
)

// Simulated resources
const (
	SimSAURegions = 8
	SimMPURegions = 8
)

// Sim represents a simulated STM32U5 device, it models the register
// behaviour required by the secure boot flow: windowed SAU/MPU region
// registers, flash controller lock and key sequences, page erase and
// quad-word programming with write protection, option byte programming and
// reload, write-one-to-clear status registers and system resets.
//
// Memory reads and writes are not checked against the configured
// protections, see boot.Platform.Probe for attribution lookups.
type Sim struct {
	*reg.Sim

	// SoC is the device peripherals instance bound to the simulated bus
	SoC *SoC

	// OnReset, when set, is invoked on every simulated system reset.
	OnReset func(reason string)

	mu         sync.Mutex
	resets     int
	programmed map[uint32]uint32
	keys       map[uint32]int
}

// window models a region number selected set of base/limit registers.
type window struct {
	rnr  uint32
	regs [][2]uint32
}

var optionRegisters = []uint32{
	FLASH_OPTR,
	FLASH_NSBOOTADD0R, FLASH_NSBOOTADD1R, FLASH_SECBOOTADD0R,
	FLASH_SECWM1R1, FLASH_SECWM1R2, FLASH_WRP1AR, FLASH_WRP1BR,
	FLASH_SECWM2R1, FLASH_SECWM2R2, FLASH_WRP2AR, FLASH_WRP2BR,
}

// DefaultOptionBytes returns the option bytes of a device with TrustZone
// enabled and no other protection set.
func DefaultOptionBytes() OptionBytes {
	wrp := WRPArea{Pages: mem.Disabled}
	all := mem.PageRange{Start: 0, End: mem.PagesPerBank - 1}

	return OptionBytes{
		RDP:          RDP_LEVEL0,
		TZEN:         true,
		DualBank:     true,
		SECWM:        [2]mem.PageRange{all, all},
		WRPA:         [2]WRPArea{wrp, wrp},
		WRPB:         [2]WRPArea{wrp, wrp},
		NSBootAddr0:  mem.FlashBaseNS,
		NSBootAddr1:  0x0bf90000,
		SecBootAddr0: mem.FlashBaseS,
	}
}

// NewSim returns a simulated device in its reset state with the default
// option bytes.
func NewSim() *Sim {
	s := &Sim{
		Sim:        reg.NewSim(),
		programmed: make(map[uint32]uint32),
		keys:       make(map[uint32]int),
	}

	s.SoC = New(s.Sim)

	s.Poke(SAU_BASE+SAU_TYPE, SimSAURegions)
	s.Poke(MPU_S_BASE+MPU_TYPE, SimMPURegions<<MPU_TYPE_DREGION)
	s.Poke(MPU_NS_BASE+MPU_TYPE, SimMPURegions<<MPU_TYPE_DREGION)

	s.window(SAU_BASE+SAU_RNR, SAU_BASE+SAU_RBAR, SAU_BASE+SAU_RLAR, SimSAURegions)
	s.window(MPU_S_BASE+MPU_RNR, MPU_S_BASE+MPU_RBAR, MPU_S_BASE+MPU_RLAR, SimMPURegions)
	s.window(MPU_NS_BASE+MPU_RNR, MPU_NS_BASE+MPU_RBAR, MPU_NS_BASE+MPU_RLAR, SimMPURegions)

	s.Hook(SAU_BASE+SAU_SFSR, reg.WriteOneToClear())
	s.Hook(SCB_BASE+SCB_AIRCR, s.aircr)

	// NVIC set/clear enable registers
	s.Map(NVIC_BASE+NVIC_ISER, 16*4, 0, func(_ uint32, old uint32, val uint32) uint32 {
		return old | val
	})
	s.Map(NVIC_BASE+NVIC_ICER, 16*4, 0, func(addr uint32, _ uint32, val uint32) uint32 {
		iser := addr - NVIC_ICER + NVIC_ISER
		s.Poke(iser, s.Peek(iser)&^val)
		return 0
	})

	for n := uint32(0); n < TZIC_REGS; n++ {
		sr := GTZC_TZIC_BASE + TZIC_SR1 + n*4
		s.Hook(sr, reg.ReadOnly())
		s.Hook(GTZC_TZIC_BASE+TZIC_FCR1+n*4, func(_ uint32, _ uint32, val uint32) uint32 {
			s.Poke(sr, s.Peek(sr)&^val)
			return 0
		})
	}

	for _, base := range []uint32{GTZC_MPCBB1_BASE, GTZC_MPCBB2_BASE, GTZC_MPCBB3_BASE} {
		// blocks are secure out of reset
		s.Map(base+MPCBB_SECCFGR, 32*4, 0xffffffff, nil)
	}

	s.Hook(FLASH_BASE+FLASH_NSKEYR, s.keyr(FLASH_NSCR, CR_LOCK))
	s.Hook(FLASH_BASE+FLASH_SECKEYR, s.keyr(FLASH_SECCR, CR_LOCK))
	s.Hook(FLASH_BASE+FLASH_OPTKEYR, s.keyr(FLASH_NSCR, CR_OPTLOCK))
	s.Hook(FLASH_BASE+FLASH_NSCR, s.nscr)
	s.Hook(FLASH_BASE+FLASH_SECCR, s.seccr)
	s.Hook(FLASH_BASE+FLASH_NSSR, reg.WriteOneToClear())
	s.Hook(FLASH_BASE+FLASH_SECSR, reg.WriteOneToClear())

	s.Hook(FLASH_BASE+FLASH_SECHDPCR, func(_ uint32, old uint32, val uint32) uint32 {
		// set only until reset
		return old | val
	})

	for _, off := range optionRegisters {
		s.Hook(FLASH_BASE+off, s.option)
	}

	s.Map(mem.FlashBaseS, mem.FlashSize, 0xffffffff, s.program)

	s.SetOptionBytes(DefaultOptionBytes())
	s.lockFlash()

	return s
}

func (s *Sim) window(rnr uint32, rbar uint32, rlar uint32, n int) {
	w := &window{
		regs: make([][2]uint32, n),
	}

	s.Hook(rnr, func(_ uint32, old uint32, val uint32) uint32 {
		s.mu.Lock()
		defer s.mu.Unlock()

		if int(val) >= len(w.regs) {
			return old
		}

		w.rnr = val
		s.Poke(rbar, w.regs[val][0])
		s.Poke(rlar, w.regs[val][1])

		return val
	})

	for i, addr := range []uint32{rbar, rlar} {
		i := i

		s.Hook(addr, func(_ uint32, _ uint32, val uint32) uint32 {
			s.mu.Lock()
			defer s.mu.Unlock()

			w.regs[w.rnr][i] = val

			return val
		})
	}
}

func (s *Sim) aircr(_ uint32, old uint32, val uint32) uint32 {
	if val>>AIRCR_VECTKEY != AIRCR_VECTKEY_VAL {
		return old
	}

	if val&(1<<AIRCR_SYSRESETREQ) != 0 {
		s.reset("SYSRESETREQ")
	}

	return 0
}

// keyr returns a hook implementing a two key unlock sequence of a control
// register bit, an invalid key sequence locks the register until reset.
func (s *Sim) keyr(cr uint32, lock int) func(uint32, uint32, uint32) uint32 {
	key1, key2 := uint32(FLASH_KEY1), uint32(FLASH_KEY2)

	if lock == CR_OPTLOCK {
		key1, key2 = FLASH_OPTKEY1, FLASH_OPTKEY2
	}

	return func(addr uint32, _ uint32, val uint32) uint32 {
		s.mu.Lock()
		defer s.mu.Unlock()

		switch {
		case s.keys[addr] == 0 && val == key1:
			s.keys[addr] = 1
		case s.keys[addr] == 1 && val == key2:
			s.keys[addr] = 0

			// options unlock requires the control register unlocked
			if lock != CR_OPTLOCK || s.Peek(FLASH_BASE+cr)&(1<<CR_LOCK) == 0 {
				s.Poke(FLASH_BASE+cr, s.Peek(FLASH_BASE+cr)&^(1<<lock))
			}
		default:
			s.keys[addr] = -1
		}

		return 0
	}
}

func (s *Sim) nscr(_ uint32, old uint32, val uint32) uint32 {
	if old&(1<<CR_LOCK) != 0 {
		return old
	}

	// lock bits can only be set by software
	val |= old & (1<<CR_LOCK | 1<<CR_OPTLOCK)

	if val&(1<<CR_OPTSTRT) != 0 && old&(1<<CR_OPTLOCK) == 0 {
		s.mu.Lock()
		for _, off := range optionRegisters {
			s.programmed[off] = s.Peek(FLASH_BASE + off)
		}
		s.mu.Unlock()

		val &^= 1 << CR_OPTSTRT
		s.Poke(FLASH_BASE+FLASH_NSSR, s.Peek(FLASH_BASE+FLASH_NSSR)|1<<SR_EOP)
	}

	if val&(1<<CR_OBL_LAUNCH) != 0 && old&(1<<CR_OPTLOCK) == 0 {
		s.reset("OBL_LAUNCH")
		return s.Peek(FLASH_BASE + FLASH_NSCR)
	}

	return val
}

func (s *Sim) option(addr uint32, old uint32, val uint32) uint32 {
	if s.Peek(FLASH_BASE+FLASH_NSCR)&(1<<CR_OPTLOCK) != 0 {
		return old
	}

	return val
}

// writeProtected returns whether a flash offset falls within an active
// write protection area.
func (s *Sim) writeProtected(off uint32) bool {
	ob := s.SoC.Flash.OptionBytes()
	bank := mem.Bank(off)
	page := mem.Page(off)

	for _, a := range []WRPArea{ob.WRPA[bank], ob.WRPB[bank]} {
		if a.Pages.Enabled() && page >= a.Pages.Start && page <= a.Pages.End {
			return true
		}
	}

	return false
}

func (s *Sim) setStatus(bit int) {
	sr := uint32(FLASH_BASE + FLASH_SECSR)
	s.Poke(sr, s.Peek(sr)|1<<bit)
}

func (s *Sim) seccr(_ uint32, old uint32, val uint32) uint32 {
	if old&(1<<CR_LOCK) != 0 {
		return old
	}

	val |= old & (1 << CR_LOCK)

	if val&(1<<CR_STRT) == 0 || val&(1<<CR_PER) == 0 {
		return val
	}

	val &^= 1 << CR_STRT

	bank := (val >> CR_BKER) & 1
	page := (val >> CR_PNB) & AREA_PAGEMASK
	off := bank*mem.BankSize + page*mem.PageSize

	if s.writeProtected(off) {
		s.setStatus(SR_WRPERR)
		return val
	}

	for addr := mem.FlashS(off); addr < mem.FlashS(off+mem.PageSize); addr += 4 {
		s.Poke(addr, 0xffffffff)
	}

	s.setStatus(SR_EOP)

	return val
}

func (s *Sim) program(addr uint32, old uint32, val uint32) uint32 {
	off := addr - mem.FlashBaseS

	switch {
	case s.Peek(FLASH_BASE+FLASH_SECCR)&(1<<CR_PG) == 0:
		s.setStatus(SR_PGSERR)
	case s.writeProtected(off):
		s.setStatus(SR_WRPERR)
	case old != 0xffffffff:
		s.setStatus(SR_PROGERR)
	default:
		return val
	}

	return old
}

func (s *Sim) lockFlash() {
	s.Poke(FLASH_BASE+FLASH_NSCR, 1<<CR_LOCK|1<<CR_OPTLOCK)
	s.Poke(FLASH_BASE+FLASH_SECCR, 1<<CR_LOCK)
}

func (s *Sim) reset(reason string) {
	s.mu.Lock()

	s.resets += 1

	for k := range s.keys {
		delete(s.keys, k)
	}

	for off, val := range s.programmed {
		s.Poke(FLASH_BASE+off, val)
	}

	onReset := s.OnReset
	s.mu.Unlock()

	s.Poke(FLASH_BASE+FLASH_SECHDPCR, 0)
	s.lockFlash()

	if onReset != nil {
		onReset(reason)
	}
}

// Resets returns the number of simulated system resets.
func (s *Sim) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.resets
}

// SetOptionBytes sets both the current and the programmed option bytes, as
// found at power-on.
func (s *Sim) SetOptionBytes(ob OptionBytes) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range ob.encode() {
		s.Poke(FLASH_BASE+r.off, r.val)
		s.programmed[r.off] = r.val
	}
}

// ProgrammedOptionBytes returns the option bytes that will be loaded at the
// next reset.
func (s *Sim) ProgrammedOptionBytes() (ob OptionBytes) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ob.decode(func(off uint32) reg.Register {
		return reg.At(constBus(s.programmed[off]), off)
	})

	return
}

// InjectSecureFault sets the SecureFault status as raised by an access
// violation at the given address.
func (s *Sim) InjectSecureFault(addr uint32) {
	s.Poke(SAU_BASE+SAU_SFAR, addr)
	s.Poke(SAU_BASE+SAU_SFSR, s.Peek(SAU_BASE+SAU_SFSR)|1<<SFSR_AUVIOL|1<<SFSR_SFARVALID)
}

// InjectIllegalAccess sets a TZIC illegal access flag.
func (s *Sim) InjectIllegalAccess(id int) {
	sr := uint32(GTZC_TZIC_BASE + TZIC_SR1 + (id/32)*4)
	s.Poke(sr, s.Peek(sr)|1<<(id%32))
}

// constBus is a bus returning a constant value on all reads.
type constBus uint32

func (b constBus) Read32(uint32) uint32 { return uint32(b) }
func (b constBus) Write32(uint32, uint32) {}
