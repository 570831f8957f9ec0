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

package codec

import (
	"strings"

	"github.com/hotpatch/fl/curated"
)

const hexDigits = "0123456789abcdef"

// HexEncode renders b as lowercase, zero-padded hex, two characters per
// byte. The result round-trips through HexDecode unchanged.
func HexEncode(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0xf]
	}
	return string(out)
}

// HexDecode parses a hex string into bytes. A leading "0x" or "0X" is
// stripped before decoding. An odd number of hex digits (after stripping the
// prefix) is rejected rather than silently padded; see SPEC_FULL.md /
// DESIGN.md for why this open question from the source was resolved this
// way.
func HexDecode(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")

	if len(s)%2 != 0 {
		return nil, curated.Errorf("odd-length hex string: %s", s)
	}

	out := make([]byte, len(s)/2)
	for i := range out {
		hi, ok := hexNibble(s[i*2])
		if !ok {
			return nil, curated.Errorf("invalid hex digit in %s", s)
		}
		lo, ok := hexNibble(s[i*2+1])
		if !ok {
			return nil, curated.Errorf("invalid hex digit in %s", s)
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// IsHexDigit reports whether c is a valid hex digit (upper or lower case).
func IsHexDigit(c byte) bool {
	_, ok := hexNibble(c)
	return ok
}
