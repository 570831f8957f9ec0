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

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hotpatch/fl/host/config"
	"github.com/hotpatch/fl/test"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fl.json")
	s := config.NewStore(path)

	cfg, err := s.Load()
	test.ExpectSuccess(t, err)
	test.Equate(t, cfg, config.Default())
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fl.json")
	s := config.NewStore(path)

	cfg := config.Default()
	cfg.SerialPort = "/dev/ttyUSB3"
	cfg.Baud = 230400
	cfg.ChunkSize = 64
	cfg.CRCMode = "off"

	test.ExpectSuccess(t, s.Save(cfg))

	got, err := s.Load()
	test.ExpectSuccess(t, err)
	test.Equate(t, got, cfg)
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fl.json")
	test.ExpectSuccess(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := config.NewStore(path)
	_, err := s.Load()
	test.ExpectFailure(t, err)
}
