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

// Package vfs defines the optional file-transfer back-end (SPEC_FULL.md
// §4.7): a small POSIX-like interface the f* command handlers delegate to,
// and an in-memory reference implementation. A real device binds the same
// interface to a POSIX-like layer, libc FILE*, or a FAT driver; none of
// those are reachable from this module, so Memory is both the test double
// and the shipped fallback back-end.
package vfs

import "github.com/hotpatch/fl/curated"

// OpenFlag mirrors the user-facing mode strings (r, w, a, +) the f*
// handlers translate before calling Open.
type OpenFlag int

const (
	FlagRead OpenFlag = 1 << iota
	FlagWrite
	FlagCreate
	FlagAppend
	FlagTruncate
)

// ParseMode translates a user-facing mode string into an OpenFlag bitset.
func ParseMode(mode string) (OpenFlag, error) {
	var flags OpenFlag
	plus := false
	for _, c := range mode {
		switch c {
		case 'r':
			flags |= FlagRead
		case 'w':
			flags |= FlagWrite | FlagCreate | FlagTruncate
		case 'a':
			flags |= FlagWrite | FlagCreate | FlagAppend
		case '+':
			plus = true
		default:
			return 0, curated.Errorf("invalid file mode: %q", mode)
		}
	}
	if flags == 0 {
		return 0, curated.Errorf("invalid file mode: %q", mode)
	}
	if plus {
		flags |= FlagRead | FlagWrite
	}
	return flags, nil
}

// Entry describes one directory member, named after the equivalent
// archivefs concept but reduced to what the flist command reports.
type Entry struct {
	Name  string
	IsDir bool
	Size  int64
}

// Stat describes one file's metadata, as reported by the fstat command.
type Stat struct {
	Size  int64
	IsDir bool
}

// Handle is an opaque open-file reference; back-ends return their own
// concrete type behind this interface so the command processor never
// allocates on behalf of the back-end.
type Handle interface {
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
	Sync() error
	Close() error
}

// FS is the VFS back-end contract. Every method takes a "/"-separated path
// rooted at the back-end's own notion of root; back-ends are free to map
// that however suits their storage.
type FS interface {
	Open(path string, flags OpenFlag) (Handle, error)
	Stat(path string) (Stat, error)
	Unlink(path string) error
	Rmdir(path string) error
	Mkdir(path string) error
	Rename(oldPath, newPath string) error

	// Readdir invokes fn once per entry of path, in implementation-defined
	// order, stopping and returning fn's error if it returns non-nil. This
	// bounds memory for large directories the way SPEC_FULL.md §4.7
	// requires, instead of returning a slice of every entry at once.
	Readdir(path string, fn func(Entry) error) error
}
