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

package codec_test

import (
	"testing"

	"github.com/hotpatch/fl/device/codec"
	"github.com/hotpatch/fl/test"
)

func TestCRC16Vectors(t *testing.T) {
	test.Equate(t, codec.CRC16([]byte("")), uint16(0xFFFF))
	test.Equate(t, codec.CRC16([]byte("123456789")), uint16(0x29B1))
}

func TestHexRoundTrip(t *testing.T) {
	vectors := [][]byte{
		{},
		{0x00},
		{0xde, 0xad, 0xbe, 0xef},
		[]byte("Hello"),
	}
	for _, v := range vectors {
		h := codec.HexEncode(v)
		got, err := codec.HexDecode(h)
		test.ExpectSuccess(t, err)
		test.Equate(t, got, v)
	}
}

func TestHexDecodeLowercaseCanonical(t *testing.T) {
	b, err := codec.HexDecode("48656C6C6F")
	test.ExpectSuccess(t, err)
	test.Equate(t, string(b), "Hello")
	test.Equate(t, codec.HexEncode(b), "48656c6c6f")
}

func TestHexDecodeOddLength(t *testing.T) {
	_, err := codec.HexDecode("abc")
	test.ExpectFailure(t, err)
}

func TestHexDecodePrefix(t *testing.T) {
	b, err := codec.HexDecode("0x48656c6c6f")
	test.ExpectSuccess(t, err)
	test.Equate(t, string(b), "Hello")
}

func TestBase64RoundTrip(t *testing.T) {
	vectors := [][]byte{
		{},
		{0x00},
		[]byte("Hello, world!"),
		{0xff, 0xee, 0xdd},
	}
	for _, v := range vectors {
		e := codec.Base64Encode(v)
		got, err := codec.Base64Decode(e)
		test.ExpectSuccess(t, err)
		test.Equate(t, got, v)
	}
}

func TestBase64RejectsMisplacedPadding(t *testing.T) {
	_, err := codec.Base64Decode("X=Y=")
	test.ExpectFailure(t, err)
}

func TestLooksLikeBase64(t *testing.T) {
	test.Equate(t, codec.LooksLikeBase64("48656c6c6f"), false)
	test.Equate(t, codec.LooksLikeBase64("SGVsbG8="), true)
	test.Equate(t, codec.LooksLikeBase64("deadbeef"), false)
	test.Equate(t, codec.LooksLikeBase64("abc"), false)
}
