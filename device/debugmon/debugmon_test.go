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

package debugmon_test

import (
	"testing"

	"github.com/hotpatch/fl/device/debugmon"
	"github.com/hotpatch/fl/test"
)

func TestUsesProcessStack(t *testing.T) {
	test.Equate(t, debugmon.UsesProcessStack(0xFFFFFFFD), true)
	test.Equate(t, debugmon.UsesProcessStack(0xFFFFFFF9), false)
}

func TestRegisterAndLookup(t *testing.T) {
	tb := debugmon.NewTable(4)
	err := tb.Register(0, 0x08001234, 0x20001000)
	test.ExpectSuccess(t, err)

	redirect, ok := tb.Lookup(0x08001234)
	test.Equate(t, ok, true)
	test.Equate(t, redirect, uint32(0x20001001)) // thumb bit set

	_, ok = tb.Lookup(0x08009999)
	test.Equate(t, ok, false)
}

func TestLookupIgnoresThumbBitOnQuery(t *testing.T) {
	tb := debugmon.NewTable(4)
	test.ExpectSuccess(t, tb.Register(0, 0x08001234, 0x20001000))

	_, ok := tb.Lookup(0x08001235) // queried with thumb bit set
	test.Equate(t, ok, true)
}

func TestClearDisablesRedirect(t *testing.T) {
	tb := debugmon.NewTable(4)
	test.ExpectSuccess(t, tb.Register(0, 0x08001234, 0x20001000))
	test.ExpectSuccess(t, tb.Clear(0))

	_, ok := tb.Lookup(0x08001234)
	test.Equate(t, ok, false)
}

func TestHandleBreakpointRewritesStackedPC(t *testing.T) {
	tb := debugmon.NewTable(4)
	test.ExpectSuccess(t, tb.Register(0, 0x08001234, 0x20001000))
	h := debugmon.NewHandler(tb)

	frame := make([]uint32, debugmon.FrameWords)
	frame[debugmon.FramePC] = 0x08001234
	frame[debugmon.FrameXPSR] = 0x01000000

	err := h.HandleBreakpoint(frame)
	test.ExpectSuccess(t, err)
	test.Equate(t, frame[debugmon.FramePC], uint32(0x20001001))
	test.Equate(t, frame[debugmon.FrameXPSR], uint32(0x01000000)) // untouched
}

func TestHandleBreakpointReportsUnmatchedAddress(t *testing.T) {
	tb := debugmon.NewTable(4)
	h := debugmon.NewHandler(tb)

	frame := make([]uint32, debugmon.FrameWords)
	frame[debugmon.FramePC] = 0x08001234

	err := h.HandleBreakpoint(frame)
	test.ExpectFailure(t, err)
}

func TestHandleBreakpointRejectsShortFrame(t *testing.T) {
	tb := debugmon.NewTable(4)
	h := debugmon.NewHandler(tb)

	err := h.HandleBreakpoint(make([]uint32, 4))
	test.ExpectFailure(t, err)
}
