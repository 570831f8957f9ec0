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

package command_test

import (
	"strings"
	"testing"

	"github.com/hotpatch/fl/device/alloc"
	"github.com/hotpatch/fl/device/codec"
	"github.com/hotpatch/fl/device/command"
	"github.com/hotpatch/fl/device/debugmon"
	"github.com/hotpatch/fl/device/fpb"
	"github.com/hotpatch/fl/device/slot"
	"github.com/hotpatch/fl/device/trampoline"
	"github.com/hotpatch/fl/device/vfs"
	"github.com/hotpatch/fl/test"
)

const baseAddr = 0x20001000

// fakeRegs is the same FPB register fake used by package fpb's own tests:
// six code comparators, v1 revision.
type fakeRegs struct {
	ctrl     uint32
	comp     [8]uint32
	remap    uint32
	dsbCount int
	isbCount int
}

func newFakeRegs() *fakeRegs       { return &fakeRegs{ctrl: (6 << 4) | (2 << 8)} }
func (r *fakeRegs) ReadFPCTRL() uint32          { return r.ctrl }
func (r *fakeRegs) WriteFPCTRL(v uint32)        { r.ctrl = (r.ctrl &^ 0x3) | (v & 0x3) }
func (r *fakeRegs) WriteFPCOMP(i int, v uint32) { r.comp[i] = v }
func (r *fakeRegs) WriteFPREMAP(v uint32)       { r.remap = v }
func (r *fakeRegs) DSB()                        { r.dsbCount++ }
func (r *fakeRegs) ISB()                        { r.isbCount++ }

func newProcessor(t *testing.T) (*command.Processor, *fpb.Driver) {
	t.Helper()

	pool, err := alloc.NewPool(4096, alloc.BlockSize)
	test.ExpectSuccess(t, err)

	slots := slot.NewTable(6)

	regs := newFakeRegs()
	fpbDriver := fpb.NewDriver(regs)
	test.ExpectSuccess(t, fpbDriver.Init())

	stubs := []uint32{0x08010000, 0x08010020, 0x08010040, 0x08010060, 0x08010080, 0x080100A0}
	bank := trampoline.NewBank(stubs)
	patcher := trampoline.NewPatcher(fpbDriver, bank)

	dbg := debugmon.NewTable(6)

	fs := vfs.NewMemory()

	p := command.NewProcessor("1.0.0", "2026-07-31", pool, baseAddr, slots, fpbDriver, patcher, dbg, fs, nil)
	return p, fpbDriver
}

func dispatch(p *command.Processor, line string) string {
	var out strings.Builder
	p.Dispatch(strings.Fields(line), &out)
	return out.String()
}

func TestPing(t *testing.T) {
	p, _ := newProcessor(t)
	out := dispatch(p, "--cmd ping")
	test.Equate(t, out, "[FLOK] PONG\n[FLEND]\n")
}

func TestUnknownCommand(t *testing.T) {
	p, _ := newProcessor(t)
	out := dispatch(p, "--cmd nope")
	test.Equate(t, strings.Contains(out, "[FLERR]"), true)
	test.Equate(t, strings.HasSuffix(out, "[FLEND]\n"), true)
}

func TestEchoReportsDecodedLengthAndWireCRC(t *testing.T) {
	p, _ := newProcessor(t)
	const hexStr = "deadbeef"

	out := dispatch(p, "--cmd echo --data "+hexStr)

	crc := codec.CRC16([]byte(hexStr))
	want := "[FLOK] ECHO 4 Bytes, CRC 0x" + hexWord(crc) + "\n[FLEND]\n"
	test.Equate(t, out, want)
}

func TestEchoRejectsOddLengthHex(t *testing.T) {
	p, _ := newProcessor(t)
	out := dispatch(p, "--cmd echo --data abc")
	test.Equate(t, strings.Contains(out, "[FLERR]"), true)
}

func hexWord(v uint16) string {
	const digits = "0123456789abcdef"
	return string([]byte{
		digits[(v>>12)&0xf], digits[(v>>8)&0xf], digits[(v>>4)&0xf], digits[v&0xf],
	})
}

func TestAllocReportsAddressAndUsedBlocks(t *testing.T) {
	p, _ := newProcessor(t)
	out := dispatch(p, "--cmd alloc --size 128")
	test.Equate(t, out, "[FLOK] Allocated 128 at 0x20001000\n[FLEND]\n")

	// the 4096-byte pool holds 62 blocks of 64 bytes; 128 bytes use 2 of them
	test.ExpectSuccess(t, strings.Contains(dispatch(p, "--cmd info"), "\n60 free blocks\n"))
}

func TestUploadThenVerifyCRC(t *testing.T) {
	p, _ := newProcessor(t)
	dispatch(p, "--cmd alloc --size 128")

	out := dispatch(p, "--cmd upload --data 48656c6c6f --addr 0 --crc 0xDADA")
	test.Equate(t, out, "[FLOK] Uploaded 5 bytes to 0x20001000\n[FLEND]\n")
}

func TestUploadCRCMismatchFreesPending(t *testing.T) {
	p, _ := newProcessor(t)
	dispatch(p, "--cmd alloc --size 128")

	out := dispatch(p, "--cmd upload --data 48656c6c6f --addr 0 --crc 0x0000")
	test.Equate(t, out, "[FLERR] CRC mismatch: 0x0000 != 0xdada\n[FLEND]\n")

	// the pending allocation was freed; a fresh alloc reuses the same block
	out = dispatch(p, "--cmd alloc --size 64")
	test.Equate(t, out, "[FLOK] Allocated 64 at 0x20001000\n[FLEND]\n")
}

func TestPatchDirectRemap(t *testing.T) {
	p, _ := newProcessor(t)
	dispatch(p, "--cmd alloc --size 128")
	dispatch(p, "--cmd upload --data 48656c6c6f --addr 0 --crc 0xDADA")

	out := dispatch(p, "--cmd patch --comp 0 --orig 0x08001234 --target 0x20001001")
	test.Equate(t, out, "[FLOK] Patch 0: 0x08001234 -> 0x20001001\n[FLEND]\n")
}

func TestPatchWithoutPendingAllocationFails(t *testing.T) {
	p, _ := newProcessor(t)
	out := dispatch(p, "--cmd patch --comp 0 --orig 0x08001234 --target 0x20001001")
	test.Equate(t, strings.Contains(out, "[FLERR]"), true)
}

func TestUnpatchAll(t *testing.T) {
	p, _ := newProcessor(t)

	patches := []string{
		"--cmd patch --comp 0 --orig 0x08001000 --target 0x20001001",
		"--cmd patch --comp 1 --orig 0x08002000 --target 0x20002001",
		"--cmd patch --comp 2 --orig 0x08003000 --target 0x20003001",
	}
	for _, line := range patches {
		dispatch(p, "--cmd alloc --size 64")
		dispatch(p, line)
	}

	out := dispatch(p, "--cmd unpatch --all")
	test.Equate(t, out, "[FLOK] Cleared all 3 slots, memory freed\n[FLEND]\n")
}

func TestTpatchIndirectsThroughTrampolineTarget(t *testing.T) {
	p, _ := newProcessor(t)
	dispatch(p, "--cmd alloc --size 64")
	out := dispatch(p, "--cmd tpatch --comp 1 --orig 0x08002000 --target 0x20002000")
	test.Equate(t, out, "[FLOK] Patch 1: 0x08002000 -> 0x20002000\n[FLEND]\n")
}

func TestDpatchRegistersDebugMonitorRedirect(t *testing.T) {
	p, _ := newProcessor(t)
	dispatch(p, "--cmd alloc --size 64")
	out := dispatch(p, "--cmd dpatch --comp 0 --orig 0x08001234 --target 0x20001001")
	test.Equate(t, out, "[FLOK] Patch 0: 0x08001234 -> 0x20001001\n[FLEND]\n")
}

func TestInfoReportsActiveSlots(t *testing.T) {
	p, _ := newProcessor(t)
	dispatch(p, "--cmd alloc --size 64")
	dispatch(p, "--cmd patch --comp 0 --orig 0x08001234 --target 0x20001001")

	out := dispatch(p, "--cmd info")
	test.Equate(t, strings.Contains(out, "Slots: 1/6 active"), true)
	test.Equate(t, strings.Contains(out, "0: 0x08001234 -> 0x20001001, 64 bytes"), true)
	test.Equate(t, strings.HasSuffix(out, "[FLOK] Info complete\n[FLEND]\n"), true)
}

func TestFileRoundTrip(t *testing.T) {
	p, _ := newProcessor(t)

	out := dispatch(p, "--cmd fopen --path /note.txt --mode w")
	test.Equate(t, out, "[FLOK] Opened 0\n[FLEND]\n")

	out = dispatch(p, "--cmd fwrite --fd 0 --data 68656c6c6f") // "hello"
	test.Equate(t, out, "[FLOK] Wrote 5 bytes\n[FLEND]\n")

	dispatch(p, "--cmd fclose --fd 0")

	dispatch(p, "--cmd fopen --path /note.txt --mode r")
	out = dispatch(p, "--cmd fread --fd 1 --len 5")
	test.Equate(t, strings.Contains(out, "FREAD 5 bytes"), true)
}
