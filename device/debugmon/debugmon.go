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

// Package debugmon implements the portable half of the DebugMonitor
// back-end (SPEC_FULL.md §4.6): the redirect table an FPB breakpoint
// consults, and the frame rewrite that retargets execution on exception
// return. The architecture-specific entry stub — reading LR's EXC_RETURN
// value, selecting the Main or Process stack, and locating the exception
// frame — is out of portable code's reach; this package's contract is to
// be called with the frame already located, as a slice of the eight
// stacked words in R0, R1, R2, R3, R12, LR, return-PC, xPSR order.
package debugmon

import "github.com/hotpatch/fl/curated"

// Frame offsets within the eight-word exception stack frame that
// DebugMonitor entry pushes.
const (
	FrameR0 = 0
	FrameR1 = 1
	FrameR2 = 2
	FrameR3 = 3
	FrameR12 = 4
	FrameLR = 5
	FramePC = 6
	FrameXPSR = 7
	FrameWords = 8
)

// ThumbBit marks a redirect target as Thumb-mode.
const ThumbBit = 0x1

// ProcessStackBit is bit 2 of EXC_RETURN: when set, the interrupted code was
// running on the Process stack (PSP); when clear, the Main stack (MSP).
const ProcessStackBit = 1 << 2

// UsesProcessStack reports which stack pointer the entry stub must read the
// frame from, given the EXC_RETURN value captured in LR at exception entry.
func UsesProcessStack(excReturn uint32) bool {
	return excReturn&ProcessStackBit != 0
}

// Redirect is one DebugMonitor redirection: an execution trapped at
// OriginalAddr resumes instead at RedirectAddr.
type Redirect struct {
	OriginalAddr uint32 // Thumb bit cleared
	RedirectAddr uint32 // Thumb bit set
	Enabled      bool
}

// Table is a fixed-size set of redirect entries, one per FPB comparator
// available to the DebugMonitor back-end.
type Table struct {
	redirects []Redirect
}

// NewTable creates a Table sized for n comparators.
func NewTable(n int) *Table {
	return &Table{redirects: make([]Redirect, n)}
}

// Valid reports whether k names an entry in the table.
func (tb *Table) Valid(k int) bool {
	return k >= 0 && k < len(tb.redirects)
}

// Register enables redirect k: execution trapped at original resumes at
// redirect. Both addresses are normalized (Thumb bit stripped from
// original, set on redirect) so Lookup can compare without masking.
func (tb *Table) Register(k int, original, redirect uint32) error {
	if !tb.Valid(k) {
		return curated.Errorf("invalid debugmon slot: %d", k)
	}
	tb.redirects[k] = Redirect{
		OriginalAddr: original &^ ThumbBit,
		RedirectAddr: redirect | ThumbBit,
		Enabled:      true,
	}
	return nil
}

// Clear disables redirect k.
func (tb *Table) Clear(k int) error {
	if !tb.Valid(k) {
		return curated.Errorf("invalid debugmon slot: %d", k)
	}
	tb.redirects[k] = Redirect{}
	return nil
}

// Lookup finds the enabled redirect whose OriginalAddr matches pc (Thumb bit
// ignored on both sides), returning its RedirectAddr.
func (tb *Table) Lookup(pc uint32) (uint32, bool) {
	pc &^= ThumbBit
	for i := range tb.redirects {
		if tb.redirects[i].Enabled && tb.redirects[i].OriginalAddr == pc {
			return tb.redirects[i].RedirectAddr, true
		}
	}
	return 0, false
}

// Get returns a copy of redirect k.
func (tb *Table) Get(k int) Redirect {
	return tb.redirects[k]
}

// Handler is the portable body of the DebugMonitor exception handler: given
// the located stack frame, it rewrites the stacked PC so that exception
// return resumes execution at the registered redirect.
//
// Discipline for the "no redirect matches" edge case (SPEC_FULL.md §4.6):
// this package never enables a comparator's redirect independently of the
// FPB comparator that traps to it — Register and the corresponding
// RemapToBreakpoint call are always sequenced together by the command
// processor (SPEC_FULL.md §4.1 dpatch) — so every enabled comparator has a
// matching entry by construction. HandleBreakpoint still reports the
// violation as an error rather than silently leaving the stacked PC
// unchanged, so a caller that breaks that invariant fails loudly instead of
// re-faulting forever.
type Handler struct {
	table *Table
}

// NewHandler binds a Handler to a redirect table.
func NewHandler(table *Table) *Handler {
	return &Handler{table: table}
}

// HandleBreakpoint rewrites frame[FramePC] to the redirect target for the
// address currently stacked there. frame must have at least FrameWords
// entries, as pushed by DebugMonitor exception entry.
func (h *Handler) HandleBreakpoint(frame []uint32) error {
	if len(frame) < FrameWords {
		return curated.Errorf("short exception frame: %d words", len(frame))
	}

	redirect, ok := h.table.Lookup(frame[FramePC])
	if !ok {
		return curated.Errorf("no DebugMonitor redirect for 0x%08x", frame[FramePC])
	}

	frame[FramePC] = redirect
	return nil
}
