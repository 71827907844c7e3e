//go:build !windows

package mcp

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

// openPolicyFile opens path without following a final symlink.
func openPolicyFile(path string) (*os.File, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	switch {
	case err == nil:
		return os.NewFile(uintptr(fd), path), nil
	case errors.Is(err, unix.ENOENT):
		return nil, ErrPolicyNotFound
	case errors.Is(err, unix.ELOOP):
		return nil, ErrPolicySymlink
	default:
		return nil, &fs.PathError{Op: "open", Path: path, Err: err}
	}
}

// checkFileOwnership requires the open policy file to belong to the
// current user.
func checkFileOwnership(f *os.File) error {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return fmt.Errorf("failed to stat policy file: %w", err)
	}
	if st.Uid != uint32(unix.Getuid()) {
		return ErrPolicyNotOwnedByUser
	}
	return nil
}
