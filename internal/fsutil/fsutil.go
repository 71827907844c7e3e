// Package fsutil holds the small filesystem helpers shared by the vault,
// the audit log and the backup writer.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// Permission bits for everything locknote writes.
const (
	FileMode os.FileMode = 0600
	DirMode  os.FileMode = 0700
)

// DiskSpaceInfo describes the filesystem that holds a path.
type DiskSpaceInfo struct {
	Total     uint64
	Free      uint64
	Available uint64
	UsedPct   int
}

// EnsureDir creates dir (and parents) with DirMode.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, DirMode); err != nil {
		return fmt.Errorf("fsutil: failed to create %s: %w", dir, err)
	}
	return nil
}

// WriteFileAtomic writes data next to path and renames it into place, so a
// reader sees either the old file or the complete new one.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("fsutil: failed to create temp file: %w", err)
	}
	tmp := f.Name()

	cleanup := func() {
		f.Close()
		os.Remove(tmp)
	}

	if err := f.Chmod(FileMode); err != nil {
		cleanup()
		return fmt.Errorf("fsutil: failed to set permissions: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("fsutil: failed to write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsutil: failed to sync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("fsutil: failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("fsutil: failed to rename into %s: %w", path, err)
	}
	return nil
}

// CheckFreeSpace fails when the filesystem holding path has fewer than
// need bytes available. Stat failures are reported to the caller.
func CheckFreeSpace(path string, need uint64) error {
	info, err := DiskSpace(path)
	if err != nil {
		return err
	}
	if info.Available < need {
		return fmt.Errorf("fsutil: insufficient disk space: %d bytes available, need at least %d", info.Available, need)
	}
	return nil
}

// statTarget returns path if it exists and its nearest existing parent otherwise.
func statTarget(path string) string {
	for p := path; ; p = filepath.Dir(p) {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		if parent := filepath.Dir(p); parent == p {
			return p
		}
	}
}
