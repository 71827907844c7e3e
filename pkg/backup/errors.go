// Package backup writes and reads locknote archives: single-file encrypted
// snapshots of a vault that either of its secrets can open.
package backup

import "errors"

var (
	// ErrInvalidMagic indicates the file is not a locknote archive.
	ErrInvalidMagic = errors.New("backup: invalid archive: magic number mismatch")

	// ErrUnsupportedVersion indicates an archive written by a newer format.
	ErrUnsupportedVersion = errors.New("backup: unsupported archive format version")

	// ErrTruncated indicates the archive ends before its declared length.
	ErrTruncated = errors.New("backup: archive truncated")

	// ErrIntegrityFailed indicates the archive HMAC did not verify.
	ErrIntegrityFailed = errors.New("backup: integrity check failed: HMAC mismatch")

	// ErrDecryptionFailed indicates the payload did not authenticate.
	ErrDecryptionFailed = errors.New("backup: payload decryption failed")

	// ErrForeignArchive indicates an archive made by a different vault.
	ErrForeignArchive = errors.New("backup: archive belongs to a different vault")
)
