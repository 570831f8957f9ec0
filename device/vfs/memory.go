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

package vfs

import (
	"sort"
	"strings"
	"sync"

	"github.com/hotpatch/fl/curated"
)

// Memory is an in-memory FS back-end: a flat map of path to either file
// bytes or a directory marker. It exists for hosts with no real filesystem
// reachable from the command processor, and doubles as the test double for
// package command.
type Memory struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool
}

// NewMemory creates an empty Memory back-end with just the root directory.
func NewMemory() *Memory {
	return &Memory{
		files: make(map[string][]byte),
		dirs:  map[string]bool{"/": true},
	}
}

func clean(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

func parentOf(path string) string {
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return "/"
	}
	return path[:i]
}

func (m *Memory) parentExists(path string) bool {
	return m.dirs[parentOf(path)]
}

// memHandle is Memory's Handle implementation: a cursor into a []byte the
// Memory back-end owns directly, so writes through the handle mutate the
// back-end's stored content in place.
type memHandle struct {
	m      *Memory
	path   string
	flags  OpenFlag
	offset int64
}

func (m *Memory) Open(path string, flags OpenFlag) (Handle, error) {
	path = clean(path)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dirs[path] {
		return nil, curated.Errorf("is a directory: %s", path)
	}

	_, exists := m.files[path]
	if !exists {
		if flags&FlagCreate == 0 {
			return nil, curated.Errorf("no such file: %s", path)
		}
		if !m.parentExists(path) {
			return nil, curated.Errorf("no such directory: %s", parentOf(path))
		}
		m.files[path] = nil
	} else if flags&FlagTruncate != 0 {
		m.files[path] = nil
	}

	h := &memHandle{m: m, path: path, flags: flags}
	if flags&FlagAppend != 0 {
		h.offset = int64(len(m.files[path]))
	}
	return h, nil
}

func (h *memHandle) Read(buf []byte) (int, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()

	if h.flags&FlagRead == 0 {
		return 0, curated.Errorf("file not open for reading: %s", h.path)
	}

	data := h.m.files[h.path]
	if h.offset >= int64(len(data)) {
		return 0, nil
	}
	n := copy(buf, data[h.offset:])
	h.offset += int64(n)
	return n, nil
}

func (h *memHandle) Write(buf []byte) (int, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()

	if h.flags&FlagWrite == 0 {
		return 0, curated.Errorf("file not open for writing: %s", h.path)
	}

	data := h.m.files[h.path]
	end := h.offset + int64(len(buf))
	if end > int64(len(data)) {
		grown := make([]byte, end)
		copy(grown, data)
		data = grown
	}
	copy(data[h.offset:end], buf)
	h.m.files[h.path] = data
	h.offset = end
	return len(buf), nil
}

func (h *memHandle) Seek(offset int64, whence int) (int64, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()

	var base int64
	switch whence {
	case 0:
		base = 0
	case 1:
		base = h.offset
	case 2:
		base = int64(len(h.m.files[h.path]))
	default:
		return 0, curated.Errorf("invalid seek whence: %d", whence)
	}

	pos := base + offset
	if pos < 0 {
		return 0, curated.Errorf("negative seek position")
	}
	h.offset = pos
	return pos, nil
}

func (h *memHandle) Sync() error {
	return nil
}

func (h *memHandle) Close() error {
	return nil
}

func (m *Memory) Stat(path string) (Stat, error) {
	path = clean(path)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dirs[path] {
		return Stat{IsDir: true}, nil
	}
	if data, ok := m.files[path]; ok {
		return Stat{Size: int64(len(data))}, nil
	}
	return Stat{}, curated.Errorf("no such file: %s", path)
}

func (m *Memory) Unlink(path string) error {
	path = clean(path)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[path]; !ok {
		return curated.Errorf("no such file: %s", path)
	}
	delete(m.files, path)
	return nil
}

func (m *Memory) Mkdir(path string) error {
	path = clean(path)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dirs[path] {
		return curated.Errorf("directory exists: %s", path)
	}
	if !m.parentExists(path) {
		return curated.Errorf("no such directory: %s", parentOf(path))
	}
	m.dirs[path] = true
	return nil
}

func (m *Memory) Rmdir(path string) error {
	path = clean(path)

	m.mu.Lock()
	defer m.mu.Unlock()

	if path == "/" {
		return curated.Errorf("cannot remove root directory")
	}
	if !m.dirs[path] {
		return curated.Errorf("no such directory: %s", path)
	}
	for p := range m.files {
		if parentOf(p) == path {
			return curated.Errorf("directory not empty: %s", path)
		}
	}
	for p := range m.dirs {
		if p != path && parentOf(p) == path {
			return curated.Errorf("directory not empty: %s", path)
		}
	}
	delete(m.dirs, path)
	return nil
}

func (m *Memory) Rename(oldPath, newPath string) error {
	oldPath = clean(oldPath)
	newPath = clean(newPath)

	m.mu.Lock()
	defer m.mu.Unlock()

	if data, ok := m.files[oldPath]; ok {
		m.files[newPath] = data
		delete(m.files, oldPath)
		return nil
	}
	if m.dirs[oldPath] {
		return curated.Errorf("directory rename not supported: %s", oldPath)
	}
	return curated.Errorf("no such file: %s", oldPath)
}

func (m *Memory) Readdir(path string, fn func(Entry) error) error {
	path = clean(path)

	m.mu.Lock()
	if !m.dirs[path] {
		m.mu.Unlock()
		return curated.Errorf("no such directory: %s", path)
	}

	var entries []Entry
	for p, data := range m.files {
		if parentOf(p) == path {
			entries = append(entries, Entry{Name: baseName(p), Size: int64(len(data))})
		}
	}
	for p := range m.dirs {
		if p != path && parentOf(p) == path {
			entries = append(entries, Entry{Name: baseName(p), IsDir: true})
		}
	}
	m.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	for _, e := range entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func baseName(path string) string {
	i := strings.LastIndex(path, "/")
	return path[i+1:]
}
