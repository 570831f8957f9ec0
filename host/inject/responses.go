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

package inject

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hotpatch/fl/curated"
)

// parseAllocated extracts the allocation address from the command
// processor's "Allocated N at 0xAAAA" [FLOK] message (spec.md §4.8 step 4).
func parseAllocated(msg string) (uint32, error) {
	var n int
	var addrStr string
	if _, err := fmt.Sscanf(msg, "Allocated %d at %s", &n, &addrStr); err != nil {
		return 0, curated.Errorf(curated.UnexpectedReply, msg)
	}
	addr, err := strconv.ParseUint(strings.TrimPrefix(addrStr, "0x"), 16, 32)
	if err != nil {
		return 0, curated.Errorf(curated.UnexpectedReply, msg)
	}
	return uint32(addr), nil
}

// DeviceInfo is the subset of the "info" response the pipeline needs to
// decide how to proceed: the device version, its active and total slot
// counts, and its free allocator blocks (spec.md §4.8 step 3). File-transfer
// availability is not parsed.
type DeviceInfo struct {
	Version     string
	TotalSlots  int
	ActiveSlots int
	FreeBlocks  int
}

// parseInfo scans an info response's streamed lines for the fields the
// pipeline cares about; any line it doesn't recognise is ignored, since
// info's exact line set is a device-side presentation detail.
func parseInfo(lines []string) DeviceInfo {
	var info DeviceInfo
	for _, l := range lines {
		switch {
		case strings.HasPrefix(l, "FPBInject v"):
			info.Version = strings.TrimPrefix(l, "FPBInject v")
		case strings.Contains(l, "Slots:") && strings.Contains(l, "active"):
			fmt.Sscanf(l, "Slots: %d/%d active", &info.ActiveSlots, &info.TotalSlots)
		case strings.Contains(l, "free blocks"):
			fmt.Sscanf(l, "%d free blocks", &info.FreeBlocks)
		}
	}
	return info
}
