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

// Command fl is the device-side command processor (spec.md §6): invoked as
// `fl --cmd <name> [--flag value]*` for a single dispatch, or with no
// arguments for an interactive REPL on platforms with a usable stdin.
//
// This binary hosts the command processor in a plain Go process rather
// than on a Cortex-M part; the FPB register file it binds to is therefore
// a simulated one (see simRegs below), the same role a real build's
// memory-mapped register access would play. Everything above the register
// file — slot table, allocator, trampoline bank, DebugMonitor table,
// command dispatch — is architecture-independent and runs unmodified on
// real hardware.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/term"

	"github.com/hotpatch/fl/device/alloc"
	"github.com/hotpatch/fl/device/command"
	"github.com/hotpatch/fl/device/debugmon"
	"github.com/hotpatch/fl/device/fpb"
	"github.com/hotpatch/fl/device/shell"
	"github.com/hotpatch/fl/device/slot"
	"github.com/hotpatch/fl/device/trampoline"
	"github.com/hotpatch/fl/device/vfs"
	"github.com/hotpatch/fl/logger"
)

const (
	version   = "1.0.0"
	buildDate = "2026-07-31"

	numSlots  = 6
	poolSize  = 16 * 1024
	baseAddr  = 0x20001000
	lineLimit = 256
)

// simRegs stands in for a Cortex-M part's memory-mapped FP_CTRL/FP_COMP/
// FP_REMAP registers and the DSB/ISB barrier instructions. It implements
// fpb.Regs purely in RAM: correct enough to exercise the whole command
// processor end to end, but it is not a substitute for real hardware
// programming.
type simRegs struct {
	ctrl  uint32
	comp  [8]uint32
	remap uint32
}

func newSimRegs() *simRegs {
	// 6 code comparators, 2 literal comparators, v1 revision: FP_CTRL
	// bits [31:28]=rev, [7:4]=NUM_CODE[3:0], [14:12]=NUM_CODE[6:4],
	// [11:8]=NUM_LIT.
	return &simRegs{ctrl: (numSlots << 4) | (2 << 8)}
}

func (r *simRegs) ReadFPCTRL() uint32          { return r.ctrl }
func (r *simRegs) WriteFPCTRL(v uint32)        { r.ctrl = (r.ctrl &^ 0x3) | (v & 0x3) }
func (r *simRegs) WriteFPCOMP(i int, v uint32) { r.comp[i] = v }
func (r *simRegs) WriteFPREMAP(v uint32)       { r.remap = v }
func (r *simRegs) DSB()                        {}
func (r *simRegs) ISB()                        {}

func buildProcessor() (*command.Processor, error) {
	pool, err := alloc.NewPool(poolSize, alloc.BlockSize)
	if err != nil {
		return nil, err
	}

	slots := slot.NewTable(numSlots)

	fpbDriver := fpb.NewDriver(newSimRegs())
	if err := fpbDriver.Init(); err != nil {
		return nil, err
	}

	stubs := make([]uint32, numSlots)
	for i := range stubs {
		stubs[i] = 0x08010000 + uint32(i)*0x20
	}
	bank := trampoline.NewBank(stubs)
	patcher := trampoline.NewPatcher(fpbDriver, bank)

	dbg := debugmon.NewTable(numSlots)
	fs := vfs.NewMemory()

	return command.NewProcessor(version, buildDate, pool, baseAddr, slots, fpbDriver, patcher, dbg, fs, nil), nil
}

func main() {
	p, err := buildProcessor()
	if err != nil {
		logger.Logf("fl", "startup failed: %v", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}

	if len(os.Args) > 1 {
		p.Dispatch(os.Args[1:], os.Stdout)
		return
	}

	if err := repl(p); err != nil {
		logger.Logf("fl", "repl exited: %v", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}
}

// repl puts stdin into raw mode (the same termios path the host's serial
// and shell packages use, here driving local interactive testing instead
// of a physical UART) and feeds bytes through device/shell's line
// accumulator, dispatching each completed line to the processor.
func repl(p *command.Processor) error {
	t, err := term.Open("/dev/tty", term.RawMode)
	if err != nil {
		return err
	}
	defer t.Close()

	lb := shell.NewLineBuffer(lineLimit)
	buf := make([]byte, 1)
	for {
		n, err := t.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}

		line, dispatch := lb.Feed(buf[0])
		if !dispatch {
			continue
		}
		if line == "" {
			continue
		}

		argv := shell.Split(line)
		p.Dispatch(argv, os.Stdout)
	}
}
