// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mem

import (
	"fmt"
)

// PageRange represents an inclusive range of flash pages within a bank, as
// used by option byte watermarks, a range with Start > End is disabled.
type PageRange struct {
	Start uint32
	End   uint32
}

// Disabled is the conventional empty page range.
var Disabled = PageRange{Start: PagesPerBank - 1, End: 0}

// Enabled returns whether the range covers at least one page.
func (p PageRange) Enabled() bool {
	return p.Start <= p.End
}

func (p PageRange) String() string {
	if !p.Enabled() {
		return "disabled"
	}

	return fmt.Sprintf("%d-%d", p.Start, p.End)
}

// Bank returns the bank index (0 or 1) of a flash offset.
func Bank(off uint32) int {
	return int(off / BankSize)
}

// Page returns the page number, within its bank, of a flash offset.
func Page(off uint32) uint32 {
	return (off % BankSize) / PageSize
}

// Pages returns, for each bank, the inclusive page range covered by the
// flash window [off, off+size), banks not covered are Disabled.
func Pages(off uint32, size uint32) (banks [2]PageRange) {
	banks[0] = Disabled
	banks[1] = Disabled

	if size == 0 {
		return
	}

	last := off + size - 1

	for b := Bank(off); b <= Bank(last) && b < len(banks); b++ {
		start := uint32(0)
		end := uint32(PagesPerBank - 1)

		if b == Bank(off) {
			start = Page(off)
		}

		if b == Bank(last) {
			end = Page(last)
		}

		banks[b] = PageRange{Start: start, End: end}
	}

	return
}

// Merge returns the smallest page range covering both arguments.
func Merge(a PageRange, b PageRange) PageRange {
	switch {
	case !a.Enabled():
		return b
	case !b.Enabled():
		return a
	}

	if b.Start < a.Start {
		a.Start = b.Start
	}

	if b.End > a.End {
		a.End = b.End
	}

	return a
}

// FlashOffset converts a flash address (either alias) to an offset from the
// flash base, ok is false when the address is outside flash.
func FlashOffset(addr uint32) (off uint32, ok bool) {
	switch {
	case addr >= FlashBaseS && addr-FlashBaseS < FlashSize:
		return addr - FlashBaseS, true
	case addr >= FlashBaseNS && addr-FlashBaseNS < FlashSize:
		return addr - FlashBaseNS, true
	}

	return 0, false
}
