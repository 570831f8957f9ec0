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
	"github.com/hotpatch/fl/curated"
	"github.com/hotpatch/fl/device/codec"
	"github.com/hotpatch/fl/device/vfs"
)

// the f* handlers translate user mode strings and wire-encoded data blocks
// to and from VFS calls (SPEC_FULL.md §4.7). Every one replies
// FilesystemError-tagged on a back-end failure rather than changing any
// local command-processor state.

func (p *Processor) requireFS(r *response) bool {
	if p.fs == nil {
		r.errf(curated.FilesystemError, "no file transfer back-end configured")
		return false
	}
	return true
}

func (p *Processor) fopen(a *args, r *response) {
	if !p.requireFS(r) {
		return
	}
	path, err := a.str("path")
	if err != nil {
		r.err(err)
		return
	}
	mode, err := a.str("mode")
	if err != nil {
		r.err(err)
		return
	}
	flags, err := vfs.ParseMode(mode)
	if err != nil {
		r.err(err)
		return
	}

	h, err := p.fs.Open(path, flags)
	if err != nil {
		r.errf(curated.FilesystemError, err.Error())
		return
	}

	fd := p.nextFD
	p.nextFD++
	p.handles[fd] = h

	r.ok("Opened %d", fd)
}

func (p *Processor) handle(a *args, r *response) (vfs.Handle, int, bool) {
	fd, err := a.intFlag("fd")
	if err != nil {
		r.err(err)
		return nil, 0, false
	}
	h, ok := p.handles[fd]
	if !ok {
		r.errf(curated.FilesystemError, "no such open handle")
		return nil, 0, false
	}
	return h, fd, true
}

func (p *Processor) fwrite(a *args, r *response) {
	if !p.requireFS(r) {
		return
	}
	h, _, ok := p.handle(a, r)
	if !ok {
		return
	}
	data, err := a.str("data")
	if err != nil {
		r.err(err)
		return
	}

	var decoded []byte
	if codec.LooksLikeBase64(data) {
		decoded, err = codec.Base64Decode(data)
	} else {
		decoded, err = codec.HexDecode(data)
	}
	if err != nil {
		r.err(err)
		return
	}

	if a.has("crc") {
		want, err := a.uint32Flag("crc")
		if err != nil {
			r.err(err)
			return
		}
		if got := uint32(codec.CRC16(decoded)); got != want {
			r.errf(curated.CRCMismatch, want, got)
			return
		}
	}

	n, err := h.Write(decoded)
	if err != nil {
		r.errf(curated.FilesystemError, err.Error())
		return
	}

	r.ok("Wrote %d bytes", n)
}

func (p *Processor) fread(a *args, r *response) {
	if !p.requireFS(r) {
		return
	}
	h, _, ok := p.handle(a, r)
	if !ok {
		return
	}
	n, err := a.intFlag("len")
	if err != nil {
		r.err(err)
		return
	}

	buf := make([]byte, n)
	read, err := h.Read(buf)
	if err != nil {
		r.errf(curated.FilesystemError, err.Error())
		return
	}
	buf = buf[:read]

	r.ok("FREAD %d bytes crc=0x%04x data=%s", read, codec.CRC16(buf), codec.Base64Encode(buf))
}

func (p *Processor) fclose(a *args, r *response) {
	if !p.requireFS(r) {
		return
	}
	h, fd, ok := p.handle(a, r)
	if !ok {
		return
	}
	if err := h.Close(); err != nil {
		r.errf(curated.FilesystemError, err.Error())
		return
	}
	delete(p.handles, fd)
	r.ok("Closed %d", fd)
}

func (p *Processor) fseek(a *args, r *response) {
	if !p.requireFS(r) {
		return
	}
	h, _, ok := p.handle(a, r)
	if !ok {
		return
	}
	off, err := a.intFlag("addr")
	if err != nil {
		r.err(err)
		return
	}

	pos, err := h.Seek(int64(off), 0)
	if err != nil {
		r.errf(curated.FilesystemError, err.Error())
		return
	}
	r.ok("Seeked to %d", pos)
}

func (p *Processor) fstat(a *args, r *response) {
	if !p.requireFS(r) {
		return
	}
	path, err := a.str("path")
	if err != nil {
		r.err(err)
		return
	}
	st, err := p.fs.Stat(path)
	if err != nil {
		r.errf(curated.FilesystemError, err.Error())
		return
	}
	r.ok("Size %d, IsDir %t", st.Size, st.IsDir)
}

func (p *Processor) flist(a *args, r *response) {
	if !p.requireFS(r) {
		return
	}
	path, err := a.str("path")
	if err != nil {
		r.err(err)
		return
	}

	err = p.fs.Readdir(path, func(e vfs.Entry) error {
		r.line("%s %d %s", dirMark(e.IsDir), e.Size, e.Name)
		return nil
	})
	if err != nil {
		r.errf(curated.FilesystemError, err.Error())
		return
	}
	r.ok("Listing complete")
}

func dirMark(isDir bool) string {
	if isDir {
		return "d"
	}
	return "-"
}

func (p *Processor) fremove(a *args, r *response) {
	if !p.requireFS(r) {
		return
	}
	path, err := a.str("path")
	if err != nil {
		r.err(err)
		return
	}
	if err := p.fs.Unlink(path); err != nil {
		r.errf(curated.FilesystemError, err.Error())
		return
	}
	r.ok("Removed %s", path)
}

func (p *Processor) fmkdir(a *args, r *response) {
	if !p.requireFS(r) {
		return
	}
	path, err := a.str("path")
	if err != nil {
		r.err(err)
		return
	}
	if err := p.fs.Mkdir(path); err != nil {
		r.errf(curated.FilesystemError, err.Error())
		return
	}
	r.ok("Created %s", path)
}
