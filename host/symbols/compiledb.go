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
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/hotpatch/fl/curated"
)

// CompileEntry is one compile_commands.json entry (spec.md §6 "Compile
// database"). Either Command (a single shell-quoted string) or Arguments (an
// argv array) is present, matching the two forms real compilation databases
// use in the wild.
type CompileEntry struct {
	Directory string   `json:"directory"`
	File      string   `json:"file"`
	Command   string   `json:"command,omitempty"`
	Arguments []string `json:"arguments,omitempty"`
}

// CompileDB is a parsed compile_commands.json, indexed by absolute source
// path for fast lookup.
type CompileDB struct {
	entries []CompileEntry
	byFile  map[string]*CompileEntry
}

// LoadCompileDB reads and parses a JSON array of CompileEntry from path.
func LoadCompileDB(path string) (*CompileDB, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, curated.Errorf(curated.SymbolError, err)
	}

	var entries []CompileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, curated.Errorf(curated.SymbolError, err)
	}

	db := &CompileDB{entries: entries, byFile: make(map[string]*CompileEntry, len(entries))}
	for i := range entries {
		e := &entries[i]
		abs := e.File
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(e.Directory, e.File)
		}
		db.byFile[filepath.Clean(abs)] = e
	}
	return db, nil
}

// Lookup returns the exact entry for sourcePath, if the database has one.
func (db *CompileDB) Lookup(sourcePath string) (CompileEntry, bool) {
	e, ok := db.byFile[filepath.Clean(sourcePath)]
	if !ok {
		return CompileEntry{}, false
	}
	return *e, true
}

// NearestSibling finds the compile entry for the file in the same directory
// as sourcePath whose name is nearest to it by edit distance (an entry's
// relative file is resolved against its directory first), for when sourcePath itself
// has no database entry (it's a new, not-yet-built inject target) but the
// host still needs to inherit -I/-D flags from a compiled peer in the same
// translation unit's directory, per spec.md §4.8 step 5.
func (db *CompileDB) NearestSibling(sourcePath string) (CompileEntry, bool) {
	dir := filepath.Dir(sourcePath)
	base := filepath.Base(sourcePath)

	var best CompileEntry
	found := false
	bestDist := -1

	for _, e := range db.entries {
		abs := e.File
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(e.Directory, e.File)
		}
		if filepath.Dir(abs) != dir {
			continue
		}
		dist := levenshtein(base, filepath.Base(e.File))
		if !found || dist < bestDist {
			best = e
			bestDist = dist
			found = true
		}
	}

	return best, found
}

// Flags returns the entry's argument list, splitting Command on whitespace
// when Arguments wasn't populated directly.
func (e CompileEntry) Flags() []string {
	if len(e.Arguments) > 0 {
		return e.Arguments
	}
	return strings.Fields(e.Command)
}

// IncludesAndDefines extracts just the -I and -D flags from an entry, the
// subset FPBInject's cross-compiler invocation inherits for the inject
// source (spec.md §6: "inherits -I/-D flags").
func (e CompileEntry) IncludesAndDefines() []string {
	var out []string
	args := e.Flags()
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "-I" || a == "-D":
			if i+1 < len(args) {
				out = append(out, a, args[i+1])
				i++
			}
		case strings.HasPrefix(a, "-I") || strings.HasPrefix(a, "-D"):
			out = append(out, a)
		}
	}
	return out
}

// levenshtein is a small edit-distance helper used only to pick the
// textually nearest sibling file name within a directory; no third-party
// string-distance library in the pack covers this narrow a need.
func levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	d := make([][]int, la+1)
	for i := range d {
		d[i] = make([]int, lb+1)
		d[i][0] = i
	}
	for j := 0; j <= lb; j++ {
		d[0][j] = j
	}
	for i := 1; i <= la; i++ {
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := d[i-1][j] + 1
			ins := d[i][j-1] + 1
			sub := d[i-1][j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			d[i][j] = m
		}
	}
	return d[la][lb]
}
