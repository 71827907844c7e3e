//go:build windows

package fsutil

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// DiskSpace returns usage for the volume holding path.
func DiskSpace(path string) (*DiskSpaceInfo, error) {
	pathPtr, err := windows.UTF16PtrFromString(statTarget(path))
	if err != nil {
		return nil, fmt.Errorf("fsutil: failed to convert path: %w", err)
	}

	var freeBytesAvailable, totalBytes, totalFreeBytes uint64
	if err := windows.GetDiskFreeSpaceEx(pathPtr, &freeBytesAvailable, &totalBytes, &totalFreeBytes); err != nil {
		return nil, fmt.Errorf("fsutil: failed to get disk stats: %w", err)
	}

	usedPct := 0
	if totalBytes > 0 {
		usedPct = int(100 * (totalBytes - totalFreeBytes) / totalBytes)
	}

	return &DiskSpaceInfo{
		Total:     totalBytes,
		Free:      totalFreeBytes,
		Available: freeBytesAvailable,
		UsedPct:   usedPct,
	}, nil
}
