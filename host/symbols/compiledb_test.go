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

package symbols_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hotpatch/fl/host/symbols"
	"github.com/hotpatch/fl/test"
)

const sampleCompileDB = `[
  {"directory": "/proj/src", "file": "motor.c", "arguments": ["cc", "-Imotor_inc", "-DFOO=1", "-c", "motor.c"]},
  {"directory": "/proj/src", "file": "motor_helpers.c", "command": "cc -Imotor_inc -DFOO=1 -c motor_helpers.c"},
  {"directory": "/proj/src", "file": "sensor.c", "arguments": ["cc", "-Isensor_inc", "-c", "sensor.c"]}
]`

func writeCompileDB(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "compile_commands.json")
	test.ExpectSuccess(t, os.WriteFile(path, []byte(sampleCompileDB), 0o644))
	return path
}

func TestLoadCompileDBAndExactLookup(t *testing.T) {
	path := writeCompileDB(t)
	db, err := symbols.LoadCompileDB(path)
	test.ExpectSuccess(t, err)

	e, ok := db.Lookup("/proj/src/motor.c")
	test.Equate(t, ok, true)
	test.Equate(t, e.Directory, "/proj/src")
}

func TestLookupMissingEntryFails(t *testing.T) {
	path := writeCompileDB(t)
	db, err := symbols.LoadCompileDB(path)
	test.ExpectSuccess(t, err)

	_, ok := db.Lookup("/proj/src/not_in_db.c")
	test.Equate(t, ok, false)
}

func TestNearestSiblingPicksClosestNameInSameDir(t *testing.T) {
	path := writeCompileDB(t)
	db, err := symbols.LoadCompileDB(path)
	test.ExpectSuccess(t, err)

	e, ok := db.NearestSibling("/proj/src/motor_new.c")
	test.Equate(t, ok, true)
	test.Equate(t, e.File, "motor.c")
}

func TestFlagsPrefersArgumentsOverCommand(t *testing.T) {
	e := symbols.CompileEntry{Command: "cc -Ix -c f.c", Arguments: []string{"cc", "-Iy", "-c", "f.c"}}
	test.Equate(t, e.Flags(), []string{"cc", "-Iy", "-c", "f.c"})
}

func TestFlagsFallsBackToCommandString(t *testing.T) {
	e := symbols.CompileEntry{Command: "cc -Ix -c f.c"}
	test.Equate(t, e.Flags(), []string{"cc", "-Ix", "-c", "f.c"})
}

func TestIncludesAndDefinesExtractsOnlyIAndD(t *testing.T) {
	e := symbols.CompileEntry{Arguments: []string{"cc", "-I", "inc", "-DFOO=1", "-c", "f.c", "-o", "f.o"}}
	test.Equate(t, e.IncludesAndDefines(), []string{"-I", "inc", "-DFOO=1"})
}

func TestLoadCompileDBRejectsMissingFile(t *testing.T) {
	_, err := symbols.LoadCompileDB("/does/not/exist.json")
	test.ExpectFailure(t, err)
}
