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

// Package alloc implements the fixed-block pool allocator described in
// SPEC_FULL.md §3/§4.3: a single contiguous buffer divided into a bitmap, a
// size table, and the blocks themselves, with metadata kept strictly out of
// band from user data because the data is arbitrary injected code.
package alloc

import (
	"github.com/hotpatch/fl/curated"
)

// BlockSize is the default fixed block size, in bytes. Every allocation is
// a whole number of blocks, rounded up.
const BlockSize = 64

// maxRun is the largest number of blocks a single allocation may claim; it
// is bounded by the width of a size_table cell (a byte).
const maxRun = 255

// Pool is a fixed-block allocator over a single contiguous buffer. It is
// the device-side analogue of a heap sized for injected code: metadata
// (bitmap, size table) lives outside the region handed back by Alloc, so
// that a buggy or malicious replacement function can never corrupt the
// allocator's own bookkeeping.
type Pool struct {
	buf       []byte
	blockSize int
	nblocks   int

	bitmapOff int
	sizeOff   int
	dataOff   int

	initialized bool
}

// NewPool creates a Pool over a freshly allocated buffer of the given total
// size, using blockSize-byte blocks. It fails if the buffer is too small to
// hold even a single block plus its metadata.
func NewPool(size int, blockSize int) (*Pool, error) {
	if blockSize <= 0 {
		blockSize = BlockSize
	}

	p := &Pool{blockSize: blockSize}
	if err := p.init(make([]byte, size)); err != nil {
		return nil, err
	}
	return p, nil
}

// Init sets up a Pool over caller-supplied storage (e.g. a slice carved out
// of a larger RAM region on the real device). It mirrors the source's
// init(buffer, size) contract.
func (p *Pool) Init(buf []byte, blockSize int) error {
	if blockSize <= 0 {
		blockSize = BlockSize
	}
	p.blockSize = blockSize
	return p.init(buf)
}

func (p *Pool) init(buf []byte) error {
	p.buf = buf

	// work out how many blocks we can fit, starting from an optimistic
	// estimate and backing off until bitmap + size table + blocks fits in
	// the available buffer
	n := len(buf) / p.blockSize
	for n > 0 {
		bitmapBytes := (n + 7) / 8
		sizeBytes := n
		need := bitmapBytes + sizeBytes + n*p.blockSize
		if need <= len(buf) {
			break
		}
		n--
	}
	if n <= 0 {
		return curated.Errorf("allocator buffer too small")
	}

	p.nblocks = n
	p.bitmapOff = 0
	bitmapBytes := (n + 7) / 8
	p.sizeOff = p.bitmapOff + bitmapBytes
	p.dataOff = p.sizeOff + n

	for i := range p.buf[:p.dataOff] {
		p.buf[i] = 0
	}

	p.initialized = true
	return nil
}

// IsValid reports whether the pool has been initialized.
func (p *Pool) IsValid() bool {
	return p.initialized
}

func (p *Pool) bitSet(i int) bool {
	return p.buf[p.bitmapOff+i/8]&(1<<(uint(i)%8)) != 0
}

func (p *Pool) setBit(i int, v bool) {
	mask := byte(1 << (uint(i) % 8))
	if v {
		p.buf[p.bitmapOff+i/8] |= mask
	} else {
		p.buf[p.bitmapOff+i/8] &^= mask
	}
}

func (p *Pool) blockOffset(i int) int {
	return p.dataOff + i*p.blockSize
}

// Alloc finds the first run of consecutive free blocks able to hold n
// bytes and marks them used, returning the offset (from the start of the
// buffer) of the first block's data. It fails if the pool is uninitialized,
// n requires more than 255 blocks, or no sufficiently large free run
// exists.
func (p *Pool) Alloc(n int) (int, error) {
	if !p.initialized {
		return 0, curated.Errorf("allocator not initialized")
	}
	if n < 0 {
		return 0, curated.Errorf("invalid allocation size: %d", n)
	}

	blocksNeeded := (n + p.blockSize - 1) / p.blockSize
	if blocksNeeded == 0 {
		blocksNeeded = 1
	}
	if blocksNeeded > maxRun {
		return 0, curated.Errorf("allocation too large: %d blocks", blocksNeeded)
	}

	start := p.firstFit(blocksNeeded)
	if start < 0 {
		return 0, curated.Errorf("alloc failed")
	}

	for i := start; i < start+blocksNeeded; i++ {
		p.setBit(i, true)
	}
	p.buf[p.sizeOff+start] = byte(blocksNeeded)

	return p.blockOffset(start), nil
}

func (p *Pool) firstFit(blocksNeeded int) int {
	run := 0
	for i := 0; i < p.nblocks; i++ {
		if p.bitSet(i) {
			run = 0
			continue
		}
		run++
		if run == blocksNeeded {
			return i - run + 1
		}
	}
	return -1
}

// blockIndex maps a data offset back to its starting block index, or -1 if
// the offset is not block-aligned and within the data region.
func (p *Pool) blockIndex(offset int) int {
	if offset < p.dataOff {
		return -1
	}
	rel := offset - p.dataOff
	if rel%p.blockSize != 0 {
		return -1
	}
	idx := rel / p.blockSize
	if idx >= p.nblocks {
		return -1
	}
	return idx
}

// Free releases the allocation starting at offset. It validates that the
// offset is block-aligned, that the size table records a run starting
// there, and that every block in that run is currently marked used; any
// violation causes the free to be silently rejected (the allocator state is
// left unchanged) per SPEC_FULL.md §4.3.
func (p *Pool) Free(offset int) bool {
	if !p.initialized {
		return false
	}

	idx := p.blockIndex(offset)
	if idx < 0 {
		return false
	}

	run := int(p.buf[p.sizeOff+idx])
	if run == 0 || idx+run > p.nblocks {
		return false
	}

	for i := idx; i < idx+run; i++ {
		if !p.bitSet(i) {
			return false
		}
	}

	for i := idx; i < idx+run; i++ {
		p.setBit(i, false)
	}
	p.buf[p.sizeOff+idx] = 0

	return true
}

// SizeOf returns the number of bytes owned by the allocation starting at
// offset, or 0 if offset is not the start of a live allocation.
func (p *Pool) SizeOf(offset int) int {
	idx := p.blockIndex(offset)
	if idx < 0 {
		return 0
	}
	run := int(p.buf[p.sizeOff+idx])
	if run == 0 {
		return 0
	}
	return run * p.blockSize
}

// Bytes returns a slice of the pool's data region rooted at offset, clamped
// to the pool's total data size. It does not validate that offset is the
// start of an allocation; use SizeOf/Free for that.
func (p *Pool) Bytes(offset int) []byte {
	if offset < p.dataOff || offset >= len(p.buf) {
		return nil
	}
	return p.buf[offset:]
}

// Stats summarises the pool's block accounting.
type Stats struct {
	Total int // total blocks managed
	Used  int // blocks currently allocated
	Free  int // blocks currently free
}

// Stats reports the pool's current block accounting.
func (p *Pool) Stats() Stats {
	s := Stats{Total: p.nblocks}
	for i := 0; i < p.nblocks; i++ {
		if p.bitSet(i) {
			s.Used++
		}
	}
	s.Free = s.Total - s.Used
	return s
}

// BlockSize returns the pool's fixed block size in bytes.
func (p *Pool) BlockSize() int {
	return p.blockSize
}

// DataOffset returns the buffer offset where the data region (and thus
// every address Alloc can return) begins, after the bitmap and size table.
// Callers that map pool offsets onto device addresses use this to anchor
// their base address at the start of the data region rather than the start
// of the whole buffer.
func (p *Pool) DataOffset() int {
	return p.dataOff
}
