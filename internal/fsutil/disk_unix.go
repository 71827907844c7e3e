//go:build !windows

package fsutil

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DiskSpace returns usage for the filesystem holding path.
func DiskSpace(path string) (*DiskSpaceInfo, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(statTarget(path), &stat); err != nil {
		return nil, fmt.Errorf("fsutil: failed to get disk stats: %w", err)
	}

	bsize := uint64(stat.Bsize)
	total := uint64(stat.Blocks) * bsize
	free := uint64(stat.Bfree) * bsize
	available := uint64(stat.Bavail) * bsize

	usedPct := 0
	if total > 0 {
		usedPct = int(100 * (total - free) / total)
	}

	return &DiskSpaceInfo{
		Total:     total,
		Free:      free,
		Available: available,
		UsedPct:   usedPct,
	}, nil
}
