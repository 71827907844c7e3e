package vault

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// FormatVersion is the vault_meta layout version.
const FormatVersion = 1

// Meta is the non-secret metadata of a vault: the two wrapped copies of the
// master key and the password hint. It never contains the master key.
type Meta struct {
	VaultID      string      `json:"vault_id"`
	Version      int         `json:"version"`
	PasswordWrap *WrappedKey `json:"password_wrap"`
	DataKeyWrap  *WrappedKey `json:"data_key_wrap"`
	Hint         string      `json:"hint,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

type querier interface {
	QueryRow(query string, args ...any) *sql.Row
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func loadMeta(q querier) (*Meta, error) {
	var (
		m                    Meta
		pwJSON, dkJSON       []byte
		createdAt, updatedAt int64
	)
	err := q.QueryRow(`SELECT vault_id, format_version, password_wrap, datakey_wrap, hint, created_at, updated_at
		FROM vault_meta WHERE id = 1`).Scan(&m.VaultID, &m.Version, &pwJSON, &dkJSON, &m.Hint, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("vault: failed to read metadata: %w", err)
	}

	if err := json.Unmarshal(pwJSON, &m.PasswordWrap); err != nil {
		return nil, &IntegrityError{Op: "vault.loadMeta", Record: "vault_meta/password_wrap", Err: err}
	}
	if err := json.Unmarshal(dkJSON, &m.DataKeyWrap); err != nil {
		return nil, &IntegrityError{Op: "vault.loadMeta", Record: "vault_meta/datakey_wrap", Err: err}
	}
	m.CreatedAt = time.UnixMilli(createdAt).UTC()
	m.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &m, nil
}

// saveMeta replaces the single vault_meta row.
func saveMeta(e execer, m *Meta) error {
	pwJSON, err := json.Marshal(m.PasswordWrap)
	if err != nil {
		return fmt.Errorf("vault: failed to encode password wrap: %w", err)
	}
	dkJSON, err := json.Marshal(m.DataKeyWrap)
	if err != nil {
		return fmt.Errorf("vault: failed to encode data key wrap: %w", err)
	}

	_, err = e.Exec(`INSERT INTO vault_meta (id, vault_id, format_version, password_wrap, datakey_wrap, hint, created_at, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			vault_id = excluded.vault_id,
			format_version = excluded.format_version,
			password_wrap = excluded.password_wrap,
			datakey_wrap = excluded.datakey_wrap,
			hint = excluded.hint,
			updated_at = excluded.updated_at`,
		m.VaultID, m.Version, pwJSON, dkJSON, m.Hint, m.CreatedAt.UnixMilli(), m.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("vault: failed to write metadata: %w", err)
	}
	return nil
}
