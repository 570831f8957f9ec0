// This file is part of FPBInject.
//
// FPBInject is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// FPBInject is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with FPBInject.  If not, see <https://www.gnu.org/licenses/>.

// Package trampoline implements the Flash-resident stub bank that bridges
// FPB's Code-region-only REMAP destination to an arbitrary RAM payload
// (SPEC_FULL.md §4.5). Each stub is a fixed Flash address, built once at
// link time; this package only owns the writable RAM target table the
// stubs indirect through and the sequencing to point an FPB comparator at
// a stub.
package trampoline

import "github.com/hotpatch/fl/curated"

// ThumbBit marks a target-table entry as a Thumb-mode destination.
const ThumbBit = 0x1

// Bank is the fixed set of Flash stub addresses (assigned by the linker on
// real hardware; passed in explicitly here) paired with the RAM target
// table the stubs read from. The target table models the no-init RAM
// section the source keeps so values survive a warm reset.
type Bank struct {
	stubAddrs []uint32
	targets   []uint32
}

// NewBank creates a Bank with one stub per entry of stubAddrs. The RAM
// target table is sized to match and starts zeroed.
func NewBank(stubAddrs []uint32) *Bank {
	targets := make([]uint32, len(stubAddrs))
	addrs := make([]uint32, len(stubAddrs))
	copy(addrs, stubAddrs)
	return &Bank{stubAddrs: addrs, targets: targets}
}

// Len returns the number of stubs in the bank.
func (b *Bank) Len() int {
	return len(b.stubAddrs)
}

// Valid reports whether k names a stub in the bank.
func (b *Bank) Valid(k int) bool {
	return k >= 0 && k < len(b.stubAddrs)
}

// StubAddr returns the fixed Flash address of stub k.
func (b *Bank) StubAddr(k int) (uint32, error) {
	if !b.Valid(k) {
		return 0, curated.Errorf("invalid trampoline slot: %d", k)
	}
	return b.stubAddrs[k], nil
}

// Target returns the current RAM target word for stub k (0 if cleared).
func (b *Bank) Target(k int) uint32 {
	return b.targets[k]
}

// setTarget writes the RAM target word for stub k, setting the Thumb bit so
// the stub's indirect branch lands in Thumb state.
func (b *Bank) setTarget(k int, addr uint32) error {
	if !b.Valid(k) {
		return curated.Errorf("invalid trampoline slot: %d", k)
	}
	b.targets[k] = addr | ThumbBit
	return nil
}

// clearTarget zeroes the RAM target word for stub k.
func (b *Bank) clearTarget(k int) {
	if b.Valid(k) {
		b.targets[k] = 0
	}
}

// Remapper is the subset of the fpb.Driver interface the trampoline back-end
// needs: pointing a comparator at a fixed Flash destination, and clearing it.
type Remapper interface {
	RemapDirect(k int, original, target uint32) error
	Clear(k int) error
}

// Patcher sequences a trampoline-backed redirection: program the RAM target
// first, then point the FPB comparator at the fixed stub, so that the
// comparator is never enabled ahead of a valid target (SPEC_FULL.md §5
// writer discipline).
type Patcher struct {
	fpb  Remapper
	bank *Bank
}

// NewPatcher binds a Patcher to an FPB comparator driver and a stub bank.
func NewPatcher(fpb Remapper, bank *Bank) *Patcher {
	return &Patcher{fpb: fpb, bank: bank}
}

// SetPatch redirects original (in Flash) to target (arbitrary RAM address,
// Thumb bit assumed clear) via trampoline stub k: the RAM target table entry
// is written first, then the FPB comparator is pointed at the stub's fixed
// Flash address. If hardware programming fails, the RAM target is rolled
// back to zero so the stub cannot be left pointing at a destination no
// comparator enables.
func (p *Patcher) SetPatch(k int, original, target uint32) error {
	stub, err := p.bank.StubAddr(k)
	if err != nil {
		return err
	}

	if err := p.bank.setTarget(k, target); err != nil {
		return err
	}

	if err := p.fpb.RemapDirect(k, original, stub); err != nil {
		p.bank.clearTarget(k)
		return err
	}

	return nil
}

// Clear disables comparator k and zeroes its RAM target.
func (p *Patcher) Clear(k int) error {
	p.bank.clearTarget(k)
	return p.fpb.Clear(k)
}
