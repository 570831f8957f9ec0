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

// Package logger is a simple alternative to the standard library's log
// package. Log entries are kept in memory until Write() or Tail() is called,
// at which point they are written in full to the supplied io.Writer.
//
// The fl and flinject binaries route their diagnostic output through this
// package rather than fmt.Println or the standard library's log package, so
// that a single sink (e.g. the UART's own debug channel, or a host logfile)
// can be swapped in without touching call sites. The device/command and
// host/inject packages do not log through it.
package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

type entry struct {
	tag     string
	message string
}

func (e entry) String() string {
	return fmt.Sprintf("%s: %s", e.tag, e.message)
}

var (
	mu      sync.Mutex
	entries []entry
)

// Log adds an entry to the log, tagged with the originating package/component.
func Log(tag string, message string) {
	mu.Lock()
	defer mu.Unlock()
	entries = append(entries, entry{tag: tag, message: message})
}

// Logf is like Log but accepts a format string.
func Logf(tag string, format string, values ...interface{}) {
	Log(tag, fmt.Sprintf(format, values...))
}

// Clear removes every entry from the log.
func Clear() {
	mu.Lock()
	defer mu.Unlock()
	entries = nil
}

// Write outputs every entry in the log to w, oldest first, one per line.
func Write(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	writeEntries(w, entries)
}

// Tail outputs, at most, the last n entries in the log to w. If n is greater
// than the number of entries available, every entry is written.
func Tail(w io.Writer, n int) {
	mu.Lock()
	defer mu.Unlock()
	if n >= len(entries) {
		writeEntries(w, entries)
		return
	}
	writeEntries(w, entries[len(entries)-n:])
}

func writeEntries(w io.Writer, es []entry) {
	s := make([]string, len(es))
	for i := range es {
		s[i] = es[i].String()
	}
	if len(s) == 0 {
		return
	}
	fmt.Fprintf(w, "%s\n", strings.Join(s, "\n"))
}
