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

// Package config persists the host's user configuration (serial port, baud,
// compile-database path, chunk size, retry budget, CRC mode) as a JSON file
// (spec.md §6: "Host persists only user configuration in a JSON file").
// Everything else FPBInject needs is either derived at runtime (device
// info) or supplied per-invocation (the inject target), so this is the only
// state that outlives a single run.
package config

import (
	"encoding/json"
	"os"

	"github.com/hotpatch/fl/curated"
)

// Config is the full set of host-side preferences that persist between
// runs.
type Config struct {
	SerialPort    string `json:"serial_port"`
	Baud          int    `json:"baud"`
	CompileDBPath string `json:"compile_db_path"`
	ChunkSize     int    `json:"chunk_size"`
	MaxRetries    int    `json:"max_retries"`
	CRCMode       string `json:"crc_mode"` // "strict" or "off"
}

// Default returns the baseline configuration a fresh install starts from.
func Default() *Config {
	return &Config{
		SerialPort:    "/dev/ttyACM0",
		Baud:          115200,
		CompileDBPath: "compile_commands.json",
		ChunkSize:     128,
		MaxRetries:    3,
		CRCMode:       "strict",
	}
}

// Store loads and saves a Config at a fixed path on disk, the JSON-backed
// analogue of the teacher's prefs.Disk (which persists a custom key=value
// format rather than JSON — this package departs from that format but
// keeps the same Load/Save-a-struct-of-settings shape).
type Store struct {
	path string
}

// NewStore binds a Store to path. The file need not exist yet; Load returns
// Default() in that case.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads and parses the JSON config file, or returns Default() if it
// does not exist yet.
func (s *Store) Load() (*Config, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, curated.Errorf(curated.FilesystemError, err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, curated.Errorf(curated.FilesystemError, err)
	}
	return cfg, nil
}

// Save writes cfg to the store's path as indented JSON.
func (s *Store) Save(cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return curated.Errorf(curated.FilesystemError, err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return curated.Errorf(curated.FilesystemError, err)
	}
	return nil
}
