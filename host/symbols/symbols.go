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

// Package symbols resolves inject targets against an ELF image: its symbol
// table for function addresses/sizes, and its DWARF line program for a build
// timestamp. Both are read with the standard library debug/elf and
// debug/dwarf packages rather than a third-party ELF/DWARF library, the same
// choice the teacher's own coprocessor/developer/dwarf_builder.go makes
// despite an otherwise dependency-heavy go.mod.
package symbols

import (
	"debug/dwarf"
	"debug/elf"
	"time"

	"github.com/hotpatch/fl/curated"
)

// ThumbBit marks a function symbol as Thumb code in its ELF st_value, per
// the ARM EABI convention FPBInject's address resolution must preserve
// (spec.md §4.8 step 1: "preserve Thumb bit").
const ThumbBit = 0x1

// Function is a resolved symbol: its entry address (Thumb bit preserved as
// recorded in the ELF) and its size in bytes, used to size trampoline stubs
// and sanity-check injected replacements.
type Function struct {
	Name string
	Addr uint32
	Size uint32
}

// Image wraps an opened ELF file with the subset of it FPBInject's inject
// pipeline needs: function symbols and a build timestamp recovered from
// DWARF, mirroring the narrow CartCoProcELF-shaped interface the teacher's
// dwarf package builds against rather than consuming the whole debug/elf
// surface directly.
type Image struct {
	ef *elf.File
}

// Open parses path as an ELF32/ELF64 file.
func Open(path string) (*Image, error) {
	ef, err := elf.Open(path)
	if err != nil {
		return nil, curated.Errorf(curated.SymbolError, err)
	}
	return &Image{ef: ef}, nil
}

// Close releases the underlying file.
func (img *Image) Close() error {
	return img.ef.Close()
}

// Function looks up name in the ELF symbol table and returns its resolved
// address and size. The Thumb bit of st_value, if set by the toolchain, is
// preserved verbatim in Addr.
func (img *Image) Function(name string) (Function, error) {
	syms, err := img.ef.Symbols()
	if err != nil {
		return Function{}, curated.Errorf(curated.SymbolError, err)
	}

	for _, s := range syms {
		if s.Name != name {
			continue
		}
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC {
			continue
		}
		return Function{Name: s.Name, Addr: uint32(s.Value), Size: uint32(s.Size)}, nil
	}

	return Function{}, curated.Errorf(curated.SymbolError, "undefined symbol: "+name)
}

// Functions returns every STT_FUNC symbol in the image, for diagnostics and
// for DumpGraph.
func (img *Image) Functions() ([]Function, error) {
	syms, err := img.ef.Symbols()
	if err != nil {
		return nil, curated.Errorf(curated.SymbolError, err)
	}

	var fns []Function
	for _, s := range syms {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC {
			continue
		}
		fns = append(fns, Function{Name: s.Name, Addr: uint32(s.Value), Size: uint32(s.Size)})
	}
	return fns, nil
}

// BuildTimestamp extracts a build timestamp from the DWARF line program: the
// first non-zero file-entry timestamp of the first compile unit that has
// one. Not every toolchain records one; the zero Time and a curated error
// are returned when none is found.
func (img *Image) BuildTimestamp() (time.Time, error) {
	d, err := img.ef.DWARF()
	if err != nil {
		return time.Time{}, curated.Errorf(curated.SymbolError, err)
	}

	r := d.Reader()
	for {
		entry, err := r.Next()
		if err != nil {
			return time.Time{}, curated.Errorf(curated.SymbolError, err)
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			continue
		}
		lr, err := d.LineReader(entry)
		if err != nil || lr == nil {
			continue
		}
		for _, f := range lr.Files() {
			if f != nil && f.Mtime != 0 {
				return time.Unix(int64(f.Mtime), 0), nil
			}
		}
	}

	return time.Time{}, curated.Errorf(curated.SymbolError, "no build timestamp in DWARF data")
}

// IsThumb reports whether addr carries the Thumb bit.
func IsThumb(addr uint32) bool {
	return addr&ThumbBit != 0
}
