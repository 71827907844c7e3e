package backup

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/JackyZhang8/locknote/pkg/crypto"
)

// HMACLength is the length of the trailing HMAC-SHA256.
const HMACLength = 32

// HKDF info strings for the archive keys.
const (
	hkdfInfoEncryption = "locknote-backup-enc-v1"
	hkdfInfoMAC        = "locknote-backup-mac-v1"
)

var payloadAAD = []byte("locknote/backup/payload")

// archiveKeys are the per-vault keys that seal and sign archives.
type archiveKeys struct {
	enc []byte
	mac []byte
}

func (k *archiveKeys) wipe() {
	crypto.SecureWipe(k.enc)
	crypto.SecureWipe(k.mac)
}

// deriveKeys derives the archive keys with derive, which is either the
// CryptoStore of an unlocked vault or a direct HKDF over a foreign key.
func deriveKeys(derive func(info string) ([]byte, error)) (*archiveKeys, error) {
	enc, err := derive(hkdfInfoEncryption)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to derive encryption key: %w", err)
	}
	mac, err := derive(hkdfInfoMAC)
	if err != nil {
		crypto.SecureWipe(enc)
		return nil, fmt.Errorf("backup: failed to derive MAC key: %w", err)
	}
	return &archiveKeys{enc: enc, mac: mac}, nil
}

func keysFromMaster(masterKey []byte) (*archiveKeys, error) {
	return deriveKeys(func(info string) ([]byte, error) {
		return crypto.DeriveSubKey(masterKey, info)
	})
}

func computeHMAC(data, key []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func verifyHMAC(data, expected, key []byte) bool {
	return hmac.Equal(computeHMAC(data, key), expected)
}

// open verifies the archive HMAC and decrypts the payload.
func (a *archive) open(keys *archiveKeys) ([]byte, error) {
	if !verifyHMAC(a.signed, a.mac, keys.mac) {
		return nil, ErrIntegrityFailed
	}
	plaintext, err := crypto.Open(keys.enc, a.ciphertext, payloadAAD)
	if err != nil {
		if errors.Is(err, crypto.ErrDecryptionFailed) || errors.Is(err, crypto.ErrCiphertextTooShort) {
			return nil, ErrDecryptionFailed
		}
		return nil, err
	}
	return plaintext, nil
}
