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

// Package inject drives the host-side end-to-end pipeline (spec.md §4.8):
// resolve a target function's address, bring the device into command mode,
// allocate RAM, compile+link the replacement at that address, upload it in
// CRC-protected chunks with retry, program the chosen redirect back-end,
// and optionally verify.
package inject

import (
	"context"
	"fmt"
	"strings"

	"github.com/hotpatch/fl/curated"
	"github.com/hotpatch/fl/device/codec"
	"github.com/hotpatch/fl/host/serial"
	"github.com/hotpatch/fl/host/symbols"
)

// Backend selects which of the command processor's three redirect
// mechanisms §4.1/§4.8 step 7 programs.
type Backend int

const (
	BackendDirect Backend = iota
	BackendTrampoline
	BackendDebugMonitor
)

func (b Backend) command() string {
	switch b {
	case BackendTrampoline:
		return "tpatch"
	case BackendDebugMonitor:
		return "dpatch"
	default:
		return "patch"
	}
}

// Config describes one inject request.
type Config struct {
	ELFPath        string // the image containing TargetFunction and its symbol table
	TargetFunction string
	Source         string // replacement C source
	Comp           int    // FPB comparator / slot index to occupy
	Backend        Backend
	ChunkSize      int // max payload bytes per upload command
	MaxRetries     int // whole-image re-alloc and re-upload budget on [FLERR]
	Verify         bool
}

// Result summarises a completed inject.
type Result struct {
	OrigAddr   uint32
	TargetAddr uint32
	Uploaded   int
	Chunks     int
	Retries    int
	Verified   bool
}

// Pipeline runs Config values against a device over a serial.Port, using a
// Toolchain for the compile/link/objcopy step.
type Pipeline struct {
	Port      *serial.Port
	Toolchain Toolchain
	CompileDB *symbols.CompileDB
}

// Run executes all 8 steps of spec.md §4.8 for cfg.
func (p *Pipeline) Run(ctx context.Context, cfg Config) (Result, error) {
	// step 1: resolve target address
	img, err := symbols.Open(cfg.ELFPath)
	if err != nil {
		return Result{}, err
	}
	defer img.Close()

	fn, err := img.Function(cfg.TargetFunction)
	if err != nil {
		return Result{}, err
	}

	// step 2: quiesce the device with a single blank line and wait for its
	// framed reply; no further newlines and no shell command are sent
	if _, err := p.Port.Send(ctx, ""); err != nil {
		return Result{}, err
	}

	// step 3: device info
	infoResp, err := p.Port.Send(ctx, "--cmd info")
	if err != nil {
		return Result{}, err
	}
	info := parseInfo(infoResp.Lines)
	if info.TotalSlots != 0 && cfg.Comp >= info.TotalSlots {
		return Result{}, curated.Errorf(curated.DeviceError, "comparator out of range for device")
	}

	// step 4: allocate an upper-bound-sized block on the device
	//
	// the image size is not known until after compile, but compile needs
	// the link address the device hands back from alloc; this pipeline
	// takes the common two-pass shortcut of an initial size probe compile
	// (at address 0) purely to learn the image size, then a second,
	// authoritative compile at the real link address.
	probe, err := p.compile(cfg, 0)
	if err != nil {
		return Result{}, err
	}

	allocResp, err := p.Port.Send(ctx, fmt.Sprintf("--cmd alloc --size %d", len(probe.Image)))
	if err != nil {
		return Result{}, err
	}
	if !allocResp.OK {
		return Result{}, curated.Errorf(curated.DeviceError, allocResp.Message)
	}
	linkAddr, err := parseAllocated(allocResp.Message)
	if err != nil {
		return Result{}, err
	}

	// step 5: compile+link+extract at the device-reported address
	final, err := p.compile(cfg, linkAddr)
	if err != nil {
		return Result{}, err
	}
	entry := final.Image
	entryOff := final.EntryOff

	// step 6: upload in CRC-protected chunks, retrying on mismatch
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 128
	}
	retries, err := p.upload(ctx, entry, linkAddr, chunkSize, cfg.MaxRetries)
	if err != nil {
		return Result{}, err
	}

	// step 7: patch
	targetAddr := final.EntryAddr
	if targetAddr == 0 {
		targetAddr = linkAddr + uint32(entryOff) | symbols.ThumbBit
	}
	patchResp, err := p.Port.Send(ctx, fmt.Sprintf("--cmd %s --comp %d --orig 0x%08x --target 0x%08x",
		cfg.Backend.command(), cfg.Comp, fn.Addr, targetAddr))
	if err != nil {
		return Result{}, err
	}
	if !patchResp.OK {
		return Result{}, curated.Errorf(curated.DeviceError, patchResp.Message)
	}

	result := Result{
		OrigAddr:   fn.Addr,
		TargetAddr: targetAddr,
		Uploaded:   len(entry),
		Chunks:     (len(entry) + chunkSize - 1) / chunkSize,
		Retries:    retries,
	}

	// step 8: optional verify via a subsequent info, confirming slot occupancy
	if cfg.Verify {
		verifyResp, err := p.Port.Send(ctx, "--cmd info")
		if err != nil {
			return result, err
		}
		// the device lists the original with the Thumb bit clear and the
		// target with it set
		marker := fmt.Sprintf("%d: 0x%08x -> 0x%08x", cfg.Comp, fn.Addr&^symbols.ThumbBit, targetAddr|symbols.ThumbBit)
		result.Verified = containsLine(verifyResp.Lines, marker)
		if !result.Verified {
			return result, curated.Errorf(curated.DeviceError, "slot not occupied after patch")
		}
	}

	return result, nil
}

func (p *Pipeline) compile(cfg Config, linkAddr uint32) (CompileResult, error) {
	if p.Toolchain.Compile == nil {
		return CompileResult{}, curated.Errorf(curated.CompileError, "no toolchain configured")
	}

	var flags []string
	if p.CompileDB != nil {
		if e, ok := p.CompileDB.NearestSibling(cfg.Source); ok {
			flags = e.IncludesAndDefines()
		}
	}

	return p.Toolchain.Compile(CompileRequest{
		Source:       cfg.Source,
		LinkAddr:     linkAddr,
		IncludesDefs: flags,
	})
}

// upload splits data into chunkSize pieces and sends each as an upload
// command (spec.md §4.8 step 6). §4.9's retry policy is whole-image, not
// per-chunk: on a [FLERR] the device has already freed the pending
// allocation (device/command.upload calls freePending unconditionally on
// CRC mismatch), so the next attempt against the same offset would only
// get back "no pending allocation" — the client must re-send --cmd alloc
// for the whole image and re-upload every chunk from offset 0 before
// retrying.
// maxRetries bounds how many times the whole image may be re-allocated and
// re-uploaded, not how many times a single chunk may be resent.
func (p *Pipeline) upload(ctx context.Context, data []byte, linkAddr uint32, chunkSize, maxRetries int) (int, error) {
	totalRetries := 0

	for {
		ok, err := p.uploadOnce(ctx, data, chunkSize)
		if err != nil {
			return totalRetries, err
		}
		if ok {
			return totalRetries, nil
		}

		totalRetries++
		if totalRetries > maxRetries {
			return totalRetries, curated.Errorf(curated.DeviceError, "upload exhausted retries")
		}

		reallocResp, err := p.Port.Send(ctx, fmt.Sprintf("--cmd alloc --size %d", len(data)))
		if err != nil {
			return totalRetries, err
		}
		if !reallocResp.OK {
			return totalRetries, curated.Errorf(curated.DeviceError, reallocResp.Message)
		}
		newAddr, err := parseAllocated(reallocResp.Message)
		if err != nil {
			return totalRetries, err
		}
		if newAddr != linkAddr {
			return totalRetries, curated.Errorf(curated.DeviceError, "re-alloc returned a different address than the image was linked for")
		}
	}
}

// uploadOnce sends every chunk of data once, starting at offset 0. It
// returns false (no error) on the first [FLERR] a chunk receives, signalling
// to upload that the pending allocation is gone and a retry needs a fresh
// alloc before it can resume.
func (p *Pipeline) uploadOnce(ctx context.Context, data []byte, chunkSize int) (bool, error) {
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[off:end]
		crc := codec.CRC16(chunk)
		line := fmt.Sprintf("--cmd upload --addr %d --data %s --crc 0x%04x", off, codec.HexEncode(chunk), crc)

		resp, err := p.Port.Send(ctx, line)
		if err != nil {
			return false, err
		}
		if !resp.OK {
			return false, nil
		}
	}
	return true, nil
}

func containsLine(lines []string, substr string) bool {
	for _, l := range lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}
