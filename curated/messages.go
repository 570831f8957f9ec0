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

package curated

// Patterns shared by curated errors raised across the device and host
// packages, grouped by the error taxonomy each belongs to. Using a shared
// pattern string lets callers test for a specific failure with Is()/Has()
// instead of string-matching Error().
const (
	// command parsing (InvalidArgument)
	UnknownCommand  = "unknown command: %s"
	MissingFlag     = "missing %s"
	InvalidFlag     = "invalid %s: %s"
	InputEmpty      = "empty input"

	// allocator / slot table (ResourceExhausted)
	AllocFailed    = "alloc failed"
	InvalidComp    = "invalid comp: %d"
	InvalidAlloc   = "alloc not valid"
	NoPendingAlloc = "no pending allocation"

	// integrity (IntegrityFailure)
	CRCMismatch = "CRC mismatch: 0x%04x != 0x%04x"

	// hardware (HardwareUnavailable)
	FPBUnavailable       = "FPB unavailable: %s"
	DebugMonitorDisabled = "DebugMonitor unavailable: %s"

	// filesystem (FilesystemError)
	FilesystemError = "filesystem error: %s"

	// host protocol (ProtocolTimeout)
	ProtocolTimeout  = "timeout waiting for response"
	UnexpectedReply  = "unexpected reply: %s"
	DeviceError      = "device error: %s"

	// host compile/link (CompileError)
	CompileError = "compile error: %s"
	LinkError    = "link error: %s"
	SymbolError  = "symbol error: %s"
)
