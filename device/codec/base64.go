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

import "encoding/base64"

// Base64Encode renders b as standard base64 (with padding).
func Base64Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Base64Decode parses a standard base64 string into bytes. Padding must be
// well formed: a '=' may only appear as a trailing run, never interleaved
// with data characters (e.g. "X=Y=" is rejected, "XY==" is not). This
// resolves the source's ambiguity (SPEC_FULL.md §9 / DESIGN.md) by deferring
// to the standard encoding's own padding rules rather than a bespoke
// per-character check.
func Base64Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// LooksLikeBase64 implements the upload command's encoding-sniffing
// heuristic (§4.1/§9): a payload is treated as base64 if its length is a
// multiple of 4 and it contains at least one character that could not
// appear in a hex string (a lowercase a-f is ambiguous with hex and is not
// by itself enough; a base64-only character is).
func LooksLikeBase64(s string) bool {
	if len(s) == 0 || len(s)%4 != 0 {
		return false
	}

	sawB64Only := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		case c == '+' || c == '/' || c == '=':
			sawB64Only = true
		case (c >= 'g' && c <= 'z') || (c >= 'G' && c <= 'Z'):
			sawB64Only = true
		default:
			return false
		}
	}
	return sawB64Only
}
