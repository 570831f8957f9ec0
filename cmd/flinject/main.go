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

// Command flinject drives the host side of one inject request (spec.md
// §4.8): resolve a function's address in an ELF image, bring the device
// into command mode over a serial port, compile the replacement at a
// device-allocated address, upload it, and patch the chosen redirection
// back-end.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/hotpatch/fl/host/config"
	"github.com/hotpatch/fl/host/inject"
	"github.com/hotpatch/fl/host/serial"
	"github.com/hotpatch/fl/host/symbols"
	"github.com/hotpatch/fl/host/worker"
	"github.com/hotpatch/fl/logger"
)

func main() {
	var (
		configPath = flag.String("config", defaultConfigPath(), "path to the host JSON config file")
		elfPath    = flag.String("elf", "", "ELF image containing the target function")
		source     = flag.String("source", "", "replacement C source file")
		target     = flag.String("target", "", "name of the function to replace")
		comp       = flag.Int("comp", 0, "FPB comparator / slot index")
		backend    = flag.String("backend", "direct", "redirect back-end: direct, trampoline, debugmon")
		verify     = flag.Bool("verify", true, "read back slot occupancy after patching")
		graph      = flag.String("graph", "", "optional .dot file to dump the resolved symbol/compile-db graph to")
		monitor    = flag.String("monitor", "", "optional address to serve live upload stats on, e.g. :18066")
	)
	flag.Parse()

	if *elfPath == "" || *source == "" || *target == "" {
		fmt.Fprintln(os.Stderr, "usage: flinject -elf <path> -source <path> -target <function> [flags]")
		os.Exit(-1)
	}

	cfg, err := config.NewStore(*configPath).Load()
	if err != nil {
		fail(err)
	}

	port, err := serial.Open(cfg.SerialPort, cfg.Baud)
	if err != nil {
		fail(err)
	}
	defer port.Close()

	w := worker.New(1)
	defer w.Shutdown()

	if *monitor != "" {
		counters := &worker.Counters{}
		m := worker.NewMonitor(counters, *monitor)
		m.Start(w)
	}

	var db *symbols.CompileDB
	if cfg.CompileDBPath != "" {
		if loaded, err := symbols.LoadCompileDB(cfg.CompileDBPath); err == nil {
			db = loaded
		} else {
			logger.Logf("flinject", "no compile database at %s: %v", cfg.CompileDBPath, err)
		}
	}

	if *graph != "" {
		if err := dumpGraph(*elfPath, db, *graph); err != nil {
			logger.Logf("flinject", "graph dump failed: %v", err)
		}
	}

	b, err := parseBackend(*backend)
	if err != nil {
		fail(err)
	}

	pipeline := &inject.Pipeline{
		Port:      port,
		Toolchain: gccToolchain(),
		CompileDB: db,
	}

	reqCfg := inject.Config{
		ELFPath:        *elfPath,
		TargetFunction: *target,
		Source:         *source,
		Comp:           *comp,
		Backend:        b,
		ChunkSize:      cfg.ChunkSize,
		MaxRetries:     cfg.MaxRetries,
		Verify:         *verify,
	}

	var result inject.Result
	err = w.Submit(context.Background(), func() error {
		var runErr error
		result, runErr = pipeline.Run(context.Background(), reqCfg)
		return runErr
	})
	if err != nil {
		fail(err)
	}

	fmt.Printf("patched 0x%08x -> 0x%08x (%d bytes, %d chunks, %d retries, verified=%t)\n",
		result.OrigAddr, result.TargetAddr, result.Uploaded, result.Chunks, result.Retries, result.Verified)
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "fl.json"
	}
	return filepath.Join(dir, "fpbinject", "fl.json")
}

func parseBackend(s string) (inject.Backend, error) {
	switch s {
	case "direct":
		return inject.BackendDirect, nil
	case "trampoline":
		return inject.BackendTrampoline, nil
	case "debugmon":
		return inject.BackendDebugMonitor, nil
	default:
		return 0, fmt.Errorf("unknown backend: %s", s)
	}
}

func dumpGraph(elfPath string, db *symbols.CompileDB, out string) error {
	img, err := symbols.Open(elfPath)
	if err != nil {
		return err
	}
	defer img.Close()

	fns, err := img.Functions()
	if err != nil {
		return err
	}
	if db == nil {
		db = &symbols.CompileDB{}
	}
	return symbols.DumpGraph(out, fns, db)
}

// gccToolchain wires inject.Toolchain to a real arm-none-eabi-gcc/objcopy
// invocation. It is the one place this binary shells out; host/inject's
// own tests substitute a fake Toolchain instead (spec.md §1 Non-goals:
// "actual cross-compiler invocation is stubbed behind an interface").
func gccToolchain() inject.Toolchain {
	return inject.Toolchain{
		Compile: func(req inject.CompileRequest) (inject.CompileResult, error) {
			obj := req.Source + ".o"
			elfOut := req.Source + ".elf"
			binOut := req.Source + ".bin"

			args := append(inject.DefaultFlags(), req.IncludesDefs...)
			args = append(args, "-c", req.Source, "-o", obj)
			if err := run("arm-none-eabi-gcc", args...); err != nil {
				return inject.CompileResult{}, err
			}

			linkArgs := append([]string{obj, "-o", elfOut}, inject.LinkFlags(req.LinkAddr)...)
			if err := run("arm-none-eabi-ld", linkArgs...); err != nil {
				return inject.CompileResult{}, err
			}

			if err := run("arm-none-eabi-objcopy", "-O", "binary", elfOut, binOut); err != nil {
				return inject.CompileResult{}, err
			}

			image, err := os.ReadFile(binOut)
			if err != nil {
				return inject.CompileResult{}, err
			}

			linked, err := symbols.Open(elfOut)
			if err != nil {
				return inject.CompileResult{}, err
			}
			defer linked.Close()

			entryName := filepath.Base(req.Source)
			fn, err := linked.Function(entryName)
			if err != nil {
				return inject.CompileResult{Image: image, EntryAddr: req.LinkAddr}, nil
			}

			return inject.CompileResult{
				Image:     image,
				EntryAddr: fn.Addr,
				EntryOff:  int(fn.Addr - req.LinkAddr),
			}, nil
		},
	}
}

func run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(-1)
}
