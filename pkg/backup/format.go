package backup

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/JackyZhang8/locknote/pkg/vault"
)

// MagicNumber opens every archive.
var MagicNumber = [8]byte{'L', 'N', 'B', 'A', 'C', 'K', 'U', 'P'}

// FormatVersion is the archive layout written by this package.
const FormatVersion = 1

// FileExt is the extension of archives written to the backup directory.
const FileExt = ".lnbak"

// maxHeaderLength bounds the header a reader will allocate.
const maxHeaderLength = 1024 * 1024

// Header is the plaintext part of an archive. It carries the vault's own
// key wraps so the archive opens with the password or the data key that
// were current when it was written.
type Header struct {
	Version      int               `json:"version"`
	CreatedAt    time.Time         `json:"created_at"`
	VaultID      string            `json:"vault_id"`
	NoteCount    int               `json:"note_count"`
	Hint         string            `json:"hint,omitempty"`
	PasswordWrap *vault.WrappedKey `json:"password_wrap"`
	DataKeyWrap  *vault.WrappedKey `json:"data_key_wrap"`
}

// WriteHeader writes the magic number, header length and header.
func WriteHeader(w io.Writer, header *Header) error {
	if _, err := w.Write(MagicNumber[:]); err != nil {
		return fmt.Errorf("backup: failed to write magic number: %w", err)
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("backup: failed to marshal header: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(headerJSON))); err != nil {
		return fmt.Errorf("backup: failed to write header length: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("backup: failed to write header: %w", err)
	}
	return nil
}

// ReadHeader reads and validates the magic number and header.
func ReadHeader(r io.Reader) (*Header, error) {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, ErrInvalidMagic
	}
	if magic != MagicNumber {
		return nil, ErrInvalidMagic
	}

	var headerLen uint32
	if err := binary.Read(r, binary.BigEndian, &headerLen); err != nil {
		return nil, ErrTruncated
	}
	if headerLen > maxHeaderLength {
		return nil, fmt.Errorf("backup: header too large: %d bytes", headerLen)
	}

	headerJSON := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, ErrTruncated
	}

	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, fmt.Errorf("backup: failed to unmarshal header: %w", err)
	}
	if header.Version > FormatVersion {
		return nil, fmt.Errorf("%w: got %d, max supported %d",
			ErrUnsupportedVersion, header.Version, FormatVersion)
	}
	return &header, nil
}

// archive is a parsed archive file. signed is the prefix covered by mac.
type archive struct {
	header     *Header
	ciphertext []byte
	signed     []byte
	mac        []byte
}

func encodeArchive(header *Header, ciphertext, macKey []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteHeader(&buf, header); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(ciphertext))); err != nil {
		return nil, fmt.Errorf("backup: failed to write ciphertext length: %w", err)
	}
	buf.Write(ciphertext)
	buf.Write(computeHMAC(buf.Bytes(), macKey))
	return buf.Bytes(), nil
}

func parseArchive(data []byte) (*archive, error) {
	if len(data) < len(MagicNumber)+4+HMACLength {
		return nil, ErrInvalidMagic
	}

	reader := bytes.NewReader(data)
	header, err := ReadHeader(reader)
	if err != nil {
		return nil, err
	}

	var ciphertextLen uint32
	if err := binary.Read(reader, binary.BigEndian, &ciphertextLen); err != nil {
		return nil, ErrTruncated
	}
	if reader.Len() != int(ciphertextLen)+HMACLength {
		return nil, ErrTruncated
	}

	signedLen := len(data) - HMACLength
	return &archive{
		header:     header,
		ciphertext: data[signedLen-int(ciphertextLen) : signedLen],
		signed:     data[:signedLen],
		mac:        data[signedLen:],
	}, nil
}
