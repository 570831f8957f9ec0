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

package command

import (
	"strconv"
	"strings"

	"github.com/hotpatch/fl/curated"
)

// args is the parsed form of a request line's "--flag value" pairs. A flag
// followed immediately by another flag (or by nothing) is recorded with an
// empty value and is present in the set, modelling boolean switches like
// --all.
type args struct {
	values map[string]string
}

func parseArgs(argv []string) *args {
	a := &args{values: make(map[string]string)}

	i := 0
	for i < len(argv) {
		tok := argv[i]
		if !strings.HasPrefix(tok, "--") {
			i++
			continue
		}
		name := strings.TrimPrefix(tok, "--")
		if i+1 < len(argv) && !strings.HasPrefix(argv[i+1], "--") {
			a.values[name] = argv[i+1]
			i += 2
		} else {
			a.values[name] = ""
			i++
		}
	}
	return a
}

// has reports whether flag was present at all (value or boolean switch).
func (a *args) has(flag string) bool {
	_, ok := a.values[flag]
	return ok
}

// str returns flag's value, or an error if it was not supplied.
func (a *args) str(flag string) (string, error) {
	v, ok := a.values[flag]
	if !ok {
		return "", curated.Errorf(curated.MissingFlag, "--"+flag)
	}
	return v, nil
}

// uint32Flag parses flag's value as a base-10 or 0x-prefixed base-16
// unsigned integer.
func (a *args) uint32Flag(flag string) (uint32, error) {
	v, err := a.str(flag)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(v, 0, 32)
	if err != nil {
		return 0, curated.Errorf(curated.InvalidFlag, "--"+flag, v)
	}
	return uint32(n), nil
}

// intFlag parses flag's value as a base-10 integer.
func (a *args) intFlag(flag string) (int, error) {
	v, err := a.str(flag)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, curated.Errorf(curated.InvalidFlag, "--"+flag, v)
	}
	return n, nil
}
