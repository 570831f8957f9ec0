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

// Package slot tracks the N active redirections a device has programmed,
// per SPEC_FULL.md §3/§4.2. It owns nothing about the hardware or the
// allocator directly; the command processor is responsible for sequencing
// hardware programming and allocation lifetime around calls to this table.
package slot

// ThumbBit is the least-significant bit that marks an address as a Thumb
// instruction-set target. It is cleared on addresses used for comparison
// and set on addresses used as branch/call targets.
const ThumbBit = 0x1

// Slot is one redirection record: the Flash function that was replaced, the
// RAM code now running in its place, and the allocation that owns that
// RAM.
type Slot struct {
	Active        bool
	OriginalAddr  uint32 // Thumb bit cleared
	TargetAddr    uint32 // Thumb bit set
	CodeSize      uint32
	AllocAddr     uint32 // base of the owned allocation; 0 if unused
}

// Table is a fixed-size array of Slots, one per FPB code comparator.
type Table struct {
	slots []Slot
}

// NewTable creates a Table sized for n comparators (6 for FPB v1, 8 for
// v2).
func NewTable(n int) *Table {
	return &Table{slots: make([]Slot, n)}
}

// Len returns the number of slots in the table.
func (t *Table) Len() int {
	return len(t.slots)
}

// Valid reports whether k names a slot in the table.
func (t *Table) Valid(k int) bool {
	return k >= 0 && k < len(t.slots)
}

// Get returns a copy of the slot at index k.
func (t *Table) Get(k int) Slot {
	return t.slots[k]
}

// Assign records a redirection at index k. It overwrites whatever was there
// before without freeing the prior allocation: per SPEC_FULL.md §4.2 that
// is the caller's responsibility (the command handlers always disable
// hardware and free the previous owner before assigning a fresh one).
func (t *Table) Assign(k int, original, target, codeSize, allocAddr uint32) {
	t.slots[k] = Slot{
		Active:       true,
		OriginalAddr: original &^ ThumbBit,
		TargetAddr:   target | ThumbBit,
		CodeSize:     codeSize,
		AllocAddr:    allocAddr,
	}
}

// Clear deactivates the slot at index k and returns the allocation address
// it owned (0 if none), so the caller can free it.
func (t *Table) Clear(k int) uint32 {
	alloc := t.slots[k].AllocAddr
	t.slots[k] = Slot{}
	return alloc
}

// ClearAll deactivates every slot, even ones already inactive (to guarantee
// hardware disable upstream), and returns the allocation addresses of the
// slots that owned one.
func (t *Table) ClearAll() []uint32 {
	var freed []uint32
	for i := range t.slots {
		if t.slots[i].AllocAddr != 0 {
			freed = append(freed, t.slots[i].AllocAddr)
		}
		t.slots[i] = Slot{}
	}
	return freed
}

// ActiveCount returns the number of currently active slots.
func (t *Table) ActiveCount() int {
	n := 0
	for i := range t.slots {
		if t.slots[i].Active {
			n++
		}
	}
	return n
}

// UsedBytes sums CodeSize over active slots. Per SPEC_FULL.md §9 this is
// slot-level usage, not allocator-level usage (it excludes any internal
// fragmentation the allocator carries) — see DESIGN.md "Open Questions".
func (t *Table) UsedBytes() uint32 {
	var total uint32
	for i := range t.slots {
		if t.slots[i].Active {
			total += t.slots[i].CodeSize
		}
	}
	return total
}

// Each calls fn once per slot, in index order, passing the slot's index and
// a copy of its contents.
func (t *Table) Each(fn func(k int, s Slot)) {
	for i := range t.slots {
		fn(i, t.slots[i])
	}
}
