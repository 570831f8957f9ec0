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

package inject

// CompileRequest describes one compile+link+extract request for the
// replacement function's source, at a device-allocated RAM address
// (spec.md §4.8 step 5).
type CompileRequest struct {
	Source       string   // path to the replacement C source
	LinkAddr     uint32   // -Ttext address, reported by the device's alloc response
	IncludesDefs []string // -I/-D flags inherited from the compile database
}

// CompileResult is the flat Thumb image ready for upload, plus where within
// it the replacement function itself begins (it may not be offset 0, since
// --gc-sections can retain helper symbols ahead of it).
type CompileResult struct {
	Image     []byte
	EntryAddr uint32 // final address of the replacement function, Thumb bit set
	EntryOff  int    // byte offset of EntryAddr within Image
}

// Toolchain is the cross-compiler/linker/objcopy surface the inject
// pipeline drives. Production code shells out via os/exec; tests substitute
// a fake, per SPEC_FULL.md's Non-goals ("actual cross-compiler invocation
// is stubbed behind an interface ... rather than shelling out in tests").
type Toolchain struct {
	Compile func(req CompileRequest) (CompileResult, error)
}

// defaultFlags are the fixed compiler flags spec.md §4.8 step 5 mandates
// for every inject compile, independent of the compile database: position
// independent Thumb code addressable at an arbitrary RAM link address.
var defaultFlags = []string{
	"-mthumb",
	"-fpic",
	"-msingle-pic-base",
	"-mno-pic-data-is-text-relative",
	"-ffunction-sections",
	"-fdata-sections",
	"-Os",
}

// DefaultFlags returns a copy of the fixed compiler flags every inject
// compile uses, for callers building a real Toolchain.Compile around
// os/exec.
func DefaultFlags() []string {
	out := make([]string, len(defaultFlags))
	copy(out, defaultFlags)
	return out
}

// LinkFlags returns the linker flags for linking at addr: a fixed text
// origin plus dead-section stripping, per spec.md §4.8 step 5.
func LinkFlags(addr uint32) []string {
	return []string{
		"-Ttext=0x" + hex32(addr),
		"--gc-sections",
	}
}

func hex32(v uint32) string {
	const digits = "0123456789abcdef"
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = digits[v&0xf]
		v >>= 4
	}
	return string(b)
}
