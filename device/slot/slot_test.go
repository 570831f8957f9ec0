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

package slot_test

import (
	"testing"

	"github.com/hotpatch/fl/device/slot"
	"github.com/hotpatch/fl/test"
)

func TestAssignAndGet(t *testing.T) {
	tb := slot.NewTable(6)

	tb.Assign(0, 0x08001234, 0x20001000, 128, 0x20001000)

	s := tb.Get(0)
	test.Equate(t, s.Active, true)
	test.Equate(t, s.OriginalAddr, uint32(0x08001234))
	test.Equate(t, s.TargetAddr, uint32(0x20001001)) // thumb bit set
	test.Equate(t, s.CodeSize, uint32(128))
	test.Equate(t, s.AllocAddr, uint32(0x20001000))
}

func TestClear(t *testing.T) {
	tb := slot.NewTable(6)
	tb.Assign(2, 0x08001234, 0x20001000, 64, 0x20001000)

	freed := tb.Clear(2)
	test.Equate(t, freed, uint32(0x20001000))
	test.Equate(t, tb.Get(2).Active, false)
}

func TestClearAllFreesOnlyOwnedAllocations(t *testing.T) {
	tb := slot.NewTable(6)
	tb.Assign(0, 0x08001000, 0x20001000, 64, 0x20001000)
	tb.Assign(1, 0x08002000, 0x20002000, 64, 0x20002000)
	// slot 3 is never assigned: AllocAddr stays zero

	freed := tb.ClearAll()
	test.Equate(t, len(freed), 2)

	for i := 0; i < tb.Len(); i++ {
		test.Equate(t, tb.Get(i).Active, false)
	}
}

func TestActiveCountAndUsedBytes(t *testing.T) {
	tb := slot.NewTable(6)
	tb.Assign(0, 0x08001000, 0x20001000, 64, 0x20001000)
	tb.Assign(1, 0x08002000, 0x20002000, 192, 0x20002000)

	test.Equate(t, tb.ActiveCount(), 2)
	test.Equate(t, tb.UsedBytes(), uint32(256))

	tb.Clear(0)
	test.Equate(t, tb.ActiveCount(), 1)
	test.Equate(t, tb.UsedBytes(), uint32(192))
}

func TestValid(t *testing.T) {
	tb := slot.NewTable(6)
	test.Equate(t, tb.Valid(0), true)
	test.Equate(t, tb.Valid(5), true)
	test.Equate(t, tb.Valid(6), false)
	test.Equate(t, tb.Valid(-1), false)
}
