package vault

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JackyZhang8/locknote/pkg/crypto"
)

// CryptoStore seals and opens records under the master key it was created
// with. It is only handed out by Update and View, which hold the vault lock
// for as long as the store is usable.
type CryptoStore struct {
	key []byte
}

// AAD returns the associated data that binds a record to its row.
func AAD(table, id string) string { return table + "/" + id }

// Seal encrypts plaintext and binds it to aad. Every call draws a new nonce.
func (s CryptoStore) Seal(aad string, plaintext []byte) ([]byte, error) {
	if len(s.key) == 0 {
		return nil, lockedErr("crypto.Seal")
	}
	blob, err := crypto.Seal(s.key, plaintext, []byte(aad))
	if err != nil {
		return nil, fmt.Errorf("vault: failed to seal %s: %w", aad, err)
	}
	return blob, nil
}

// Open decrypts blob sealed with aad. Tag mismatches surface as IntegrityError.
func (s CryptoStore) Open(aad string, blob []byte) ([]byte, error) {
	if len(s.key) == 0 {
		return nil, lockedErr("crypto.Open")
	}
	plaintext, err := crypto.Open(s.key, blob, []byte(aad))
	if err != nil {
		if errors.Is(err, crypto.ErrDecryptionFailed) || errors.Is(err, crypto.ErrCiphertextTooShort) {
			return nil, &IntegrityError{Op: "crypto.Open", Record: aad, Err: ErrTampered}
		}
		return nil, err
	}
	return plaintext, nil
}

// SealRecord marshals v as JSON and seals it for table/id.
func (s CryptoStore) SealRecord(table, id string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to encode %s record: %w", table, err)
	}
	defer crypto.SecureWipe(data)
	return s.Seal(AAD(table, id), data)
}

// OpenRecord opens a table/id blob and unmarshals it into v.
func (s CryptoStore) OpenRecord(table, id string, blob []byte, v any) error {
	data, err := s.Open(AAD(table, id), blob)
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(data)
	if err := json.Unmarshal(data, v); err != nil {
		return &IntegrityError{Op: "crypto.OpenRecord", Record: AAD(table, id), Err: err}
	}
	return nil
}

// DeriveKey returns a purpose-bound sub-key of the master key.
func (s CryptoStore) DeriveKey(info string) ([]byte, error) {
	if len(s.key) == 0 {
		return nil, lockedErr("crypto.DeriveKey")
	}
	return crypto.DeriveSubKey(s.key, info)
}

// Tx is one database transaction with the CryptoStore of the unlocked vault.
type Tx struct {
	*sql.Tx
	CryptoStore

	op  string
	now time.Time
}

// Op names the operation the transaction belongs to.
func (t *Tx) Op() string { return t.op }

// Now is the timestamp shared by everything written in this transaction.
func (t *Tx) Now() time.Time { return t.now }

// PutRecord upserts a sealed (id, body) row.
func (t *Tx) PutRecord(table, id string, v any) error {
	body, err := t.SealRecord(table, id, v)
	if err != nil {
		return err
	}
	_, err = t.Exec(`INSERT INTO `+table+` (id, body) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET body = excluded.body`, id, body)
	if err != nil {
		return fmt.Errorf("vault: failed to write %s: %w", AAD(table, id), err)
	}
	return nil
}

// GetRecord loads and opens one sealed row. A missing row returns
// a ValidationError wrapping ErrNotFound.
func (t *Tx) GetRecord(table, id string, v any) error {
	var body []byte
	err := t.QueryRow(`SELECT body FROM `+table+` WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return NotFound(t.op, table, id)
	}
	if err != nil {
		return fmt.Errorf("vault: failed to read %s: %w", AAD(table, id), err)
	}
	return t.OpenRecord(table, id, body, v)
}

// Meta returns the vault metadata as seen by this transaction.
func (t *Tx) Meta() (*Meta, error) {
	return loadMeta(t)
}

// CheckRowsAffected reports an update or delete that touched no row as
// not found.
func CheckRowsAffected(op, what, id string, result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("vault: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return NotFound(op, what, id)
	}
	return nil
}
