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

// Package serial implements the host side of the framed line protocol
// (SPEC_FULL.md §4.9): sending a request line and reading lines up to the
// terminal [FLEND] marker, with a per-line timeout. The transport itself is
// any io.ReadWriter; Open binds one backed by a real serial port via
// github.com/pkg/term, the same termios-driven approach the console
// front-end uses for raw terminal mode.
package serial

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/pkg/term"

	"github.com/hotpatch/fl/curated"
)

// terminator is the exact marker that closes every response, per
// SPEC_FULL.md §4.9 and §6's bit-exact response markers.
const terminator = "[FLEND]"

// Response is one parsed reply: the unprefixed streamed lines, and the
// single terminal [FLOK]/[FLERR] line with its OK flag and message.
type Response struct {
	Lines   []string
	OK      bool
	Message string
}

// Port is a framed-protocol connection over a serial transport.
type Port struct {
	rw     io.ReadWriteCloser
	reader *bufio.Reader
}

// Open opens path as an 8-N-1 serial port at the given baud and wraps it in
// a Port. No flow control is configured, matching SPEC_FULL.md §6.
func Open(path string, baud int) (*Port, error) {
	t, err := term.Open(path, term.Speed(baud), term.RawMode)
	if err != nil {
		return nil, curated.Errorf("open serial port %s: %s", path, err)
	}
	return NewPort(t), nil
}

// NewPort wraps an already-open transport (a real port, or a pipe/buffer in
// tests) in a Port.
func NewPort(rw io.ReadWriteCloser) *Port {
	return &Port{rw: rw, reader: bufio.NewReader(rw)}
}

// Close releases the underlying transport.
func (p *Port) Close() error {
	return p.rw.Close()
}

// Send writes line (without its own newline) terminated by \n, then reads
// lines until the terminal [FLEND] marker or ctx is done. Lines seen before
// the terminal line are never inspected for bracketed markers — only the
// literal [FLEND] line closes a response, per SPEC_FULL.md §9's framing
// discipline.
func (p *Port) Send(ctx context.Context, line string) (Response, error) {
	if _, err := p.rw.Write([]byte(line + "\n")); err != nil {
		return Response{}, curated.Errorf("write request: %s", err)
	}

	var resp Response
	status := "" // a status line, kept as such only if [FLEND] follows it
	for {
		text, err := p.readLine(ctx)
		if err != nil {
			return Response{}, err
		}

		if text == terminator {
			return resp, nil
		}
		if status != "" {
			resp.Lines = append(resp.Lines, status)
			resp.OK, resp.Message, status = false, "", ""
		}

		if strings.HasPrefix(text, "[FLOK] ") {
			resp.OK = true
			resp.Message = strings.TrimPrefix(text, "[FLOK] ")
			status = text
			continue
		}
		if strings.HasPrefix(text, "[FLERR] ") {
			resp.OK = false
			resp.Message = strings.TrimPrefix(text, "[FLERR] ")
			status = text
			continue
		}

		resp.Lines = append(resp.Lines, text)
	}
}

// readLine reads one \n-terminated line, or returns ProtocolTimeout if ctx
// is done first. A timed-out read leaves the underlying reader's buffered
// state alone; the caller is expected to resynchronize on the next
// [FLEND] it sees, per SPEC_FULL.md §5.
func (p *Port) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		line, err := p.reader.ReadString('\n')
		done <- result{line: strings.TrimRight(line, "\r\n"), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", curated.Errorf(curated.ProtocolTimeout)
	case res := <-done:
		if res.err != nil {
			return "", curated.Errorf("read response: %s", res.err)
		}
		return res.line, nil
	}
}

// SendWithTimeout is a convenience wrapper around Send for callers that
// want a plain duration instead of managing a context.
func (p *Port) SendWithTimeout(line string, timeout time.Duration) (Response, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return p.Send(ctx, line)
}
