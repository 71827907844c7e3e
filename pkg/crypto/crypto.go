// Package crypto provides the cryptographic primitives for locknote.
//
// Every record in a vault is sealed with AES-256-GCM under a single random
// master key. The master key itself is wrapped by key-encryption keys that
// are derived from secrets (the password, the recovery data key) with Argon2id.
//
// # Security Features
//
//   - AES-256-GCM authenticated encryption with associated data
//   - Argon2id key derivation (64MB memory, 3 iterations, 4 threads by default)
//   - A fresh random nonce generated inside every Seal call
//   - HKDF-SHA256 sub-key derivation for purpose-bound keys
//   - Secure memory wiping for sensitive data
//
// # Example Usage
//
//	salt, _ := crypto.GenerateSalt()
//	kek := crypto.DeriveKey([]byte("password"), salt, crypto.DefaultKDFParams)
//
//	sealed, err := crypto.Seal(kek, masterKey, []byte("wrap/password"))
//	masterKey, err := crypto.Open(kek, sealed, []byte("wrap/password"))
//
//	crypto.SecureWipe(kek)
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// Argon2id parameters following OWASP recommendations.
const (
	// Argon2Memory is the memory cost in KiB (64MB).
	Argon2Memory = 64 * 1024

	// Argon2Time is the number of iterations.
	Argon2Time = 3

	// Argon2Threads is the degree of parallelism.
	Argon2Threads = 4

	// KeyLength is the length of encryption keys in bytes (256 bits).
	KeyLength = 32

	// NonceLength is the length of GCM nonces in bytes (96 bits).
	NonceLength = 12

	// SaltLength is the length of KDF salts in bytes.
	SaltLength = 16
)

// Sentinel errors returned by crypto functions.
var (
	// ErrInvalidKeyLength indicates the key is not 32 bytes.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length, must be 32 bytes")

	// ErrDecryptionFailed indicates decryption or authentication tag verification failed.
	ErrDecryptionFailed = errors.New("crypto: decryption failed, authentication tag verification failed")

	// ErrCiphertextTooShort indicates the sealed blob cannot hold a nonce and a tag.
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")

	// ErrInvalidKDFParams indicates KDF parameters outside the accepted range.
	ErrInvalidKDFParams = errors.New("crypto: invalid KDF parameters")
)

// KDFParams are the Argon2id cost parameters. They are persisted next to
// every wrapped key so a vault keeps opening after the defaults change.
type KDFParams struct {
	Memory      uint32 `json:"memory"`
	Iterations  uint32 `json:"iterations"`
	Parallelism uint8  `json:"parallelism"`
}

// DefaultKDFParams are the parameters used for new vaults.
var DefaultKDFParams = KDFParams{
	Memory:      Argon2Memory,
	Iterations:  Argon2Time,
	Parallelism: Argon2Threads,
}

// Validate rejects parameters that are zero or absurdly large.
func (p KDFParams) Validate() error {
	if p.Memory < 8*1024 || p.Memory > 4*1024*1024 || p.Iterations == 0 || p.Iterations > 64 || p.Parallelism == 0 {
		return fmt.Errorf("%w: memory=%d iterations=%d parallelism=%d",
			ErrInvalidKDFParams, p.Memory, p.Iterations, p.Parallelism)
	}
	return nil
}

// DeriveKey derives a 256-bit key from a secret using Argon2id.
//
// The salt should be SaltLength bytes of cryptographically secure random data.
func DeriveKey(secret, salt []byte, p KDFParams) []byte {
	return argon2.IDKey(secret, salt, p.Iterations, p.Memory, p.Parallelism, KeyLength)
}

// DeriveSubKey derives a purpose-bound 256-bit key from secret using HKDF-SHA256.
func DeriveSubKey(secret []byte, info string) ([]byte, error) {
	key := make([]byte, KeyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("crypto: failed to derive sub-key: %w", err)
	}
	return key, nil
}

// GenerateSalt returns SaltLength random bytes.
func GenerateSalt() ([]byte, error) {
	return randomBytes(SaltLength)
}

// GenerateKey returns a random 256-bit key.
func GenerateKey() ([]byte, error) {
	return randomBytes(KeyLength)
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("crypto: failed to read random bytes: %w", err)
	}
	return b, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext with AES-256-GCM and binds aad to the result.
//
// The returned blob is nonce || ciphertext || tag. The nonce is generated
// here on every call and is never supplied by the caller.
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceLength, NonceLength+len(plaintext)+gcm.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, aad), nil
}

// Open reverses Seal. Any tag mismatch, including one caused by a
// different aad, returns ErrDecryptionFailed.
func Open(key, sealed, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(sealed) < NonceLength+gcm.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := gcm.Open(nil, sealed[:NonceLength], sealed[NonceLength:], aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
