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

// Package codec implements the wire encodings shared by the device command
// processor and the host serial protocol: hex/base64 byte encoding and the
// CRC-16/CCITT checksum used for upload and echo integrity checks.
package codec

// CRC16 computes CRC-16/CCITT (polynomial 0x1021, initial value 0xFFFF, no
// input/output reflection, no final XOR) over b.
//
// The echo command (§4.1) computes this over the ASCII hex string rather
// than the decoded bytes; that asymmetry lives in the caller, not here.
func CRC16(b []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, c := range b {
		crc ^= uint16(c) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
