package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JackyZhang8/locknote/internal/fsutil"
	"github.com/JackyZhang8/locknote/pkg/audit"
	"github.com/JackyZhang8/locknote/pkg/crypto"
	"github.com/JackyZhang8/locknote/pkg/notes"
	"github.com/JackyZhang8/locknote/pkg/vault"
)

// DefaultDirName is the backup directory inside the vault directory.
const DefaultDirName = "backups"

// Manager creates, restores and imports archives for one vault.
type Manager struct {
	repo *notes.Repository
	v    *vault.Vault
	dir  string
	log  *zap.Logger
	now  func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithDir sets the directory for default archive paths and listings.
func WithDir(dir string) Option {
	return func(m *Manager) {
		if dir != "" {
			m.dir = dir
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager returns a manager for the vault behind repo.
func NewManager(repo *notes.Repository, opts ...Option) *Manager {
	m := &Manager{
		repo: repo,
		v:    repo.Vault(),
		dir:  filepath.Join(repo.Vault().Path(), DefaultDirName),
		log:  zap.NewNop(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dir returns the backup directory.
func (m *Manager) Dir() string { return m.dir }

// VerifyResult describes an archive check.
type VerifyResult struct {
	Valid     bool      `json:"valid"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	VaultID   string    `json:"vault_id"`
	NoteCount int       `json:"note_count"`
	Error     string    `json:"error,omitempty"`
}

// Info describes an archive in the backup directory.
type Info struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	VaultID   string    `json:"vault_id"`
	NoteCount int       `json:"note_count"`
}

// CreateBackup writes an archive of the vault and returns its path. An
// empty outputPath, or an existing directory, selects a timestamped name.
func (m *Manager) CreateBackup(outputPath string) (string, error) {
	const op = "backup.CreateBackup"

	path, err := m.outputPath(outputPath)
	if err != nil {
		return "", vault.IO(op, err)
	}

	var data []byte
	err = m.v.View(op, func(tx *vault.Tx) error {
		meta, err := tx.Meta()
		if err != nil {
			return err
		}
		snap, err := notes.ReadSnapshot(tx)
		if err != nil {
			return err
		}
		keys, err := deriveKeys(tx.DeriveKey)
		if err != nil {
			return err
		}
		defer keys.wipe()

		payload, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("backup: failed to marshal payload: %w", err)
		}
		defer crypto.SecureWipe(payload)

		ciphertext, err := crypto.Seal(keys.enc, payload, payloadAAD)
		if err != nil {
			return fmt.Errorf("backup: failed to encrypt payload: %w", err)
		}

		header := &Header{
			Version:      FormatVersion,
			CreatedAt:    m.now().UTC(),
			VaultID:      meta.VaultID,
			NoteCount:    len(snap.Notes),
			Hint:         meta.Hint,
			PasswordWrap: meta.PasswordWrap,
			DataKeyWrap:  meta.DataKeyWrap,
		}
		data, err = encodeArchive(header, ciphertext, keys.mac)
		return err
	})
	if err != nil {
		return "", err
	}

	if err := fsutil.CheckFreeSpace(filepath.Dir(path), uint64(len(data))); err != nil {
		err = vault.IO(op, err)
		m.v.Audit(audit.OpBackupCreate, filepath.Base(path), err)
		return "", err
	}
	if err := fsutil.WriteFileAtomic(path, data); err != nil {
		err = vault.IO(op, err)
		m.v.Audit(audit.OpBackupCreate, filepath.Base(path), err)
		return "", err
	}

	m.v.Audit(audit.OpBackupCreate, filepath.Base(path), nil)
	m.log.Info("backup created", zap.String("path", path), zap.Int("bytes", len(data)))
	return path, nil
}

func (m *Manager) outputPath(outputPath string) (string, error) {
	dir := m.dir
	if outputPath != "" {
		info, err := os.Stat(outputPath)
		if err != nil || !info.IsDir() {
			if err := fsutil.EnsureDir(filepath.Dir(outputPath)); err != nil {
				return "", err
			}
			return outputPath, nil
		}
		dir = outputPath
	}
	if err := fsutil.EnsureDir(dir); err != nil {
		return "", err
	}

	base := "locknote-" + m.now().Format("20060102-150405")
	path := filepath.Join(dir, base+FileExt)
	for i := 2; ; i++ {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
		path = filepath.Join(dir, fmt.Sprintf("%s-%d%s", base, i, FileExt))
	}
}

func readArchive(op, path string) (*archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, vault.IO(op, fmt.Errorf("backup: failed to read archive: %w", err))
	}
	a, err := parseArchive(data)
	if err != nil {
		if errors.Is(err, ErrInvalidMagic) || errors.Is(err, ErrUnsupportedVersion) {
			return nil, vault.Validation(op, err)
		}
		return nil, &vault.IntegrityError{Op: op, Record: path, Err: err}
	}
	return a, nil
}

func decodeSnapshot(op, path string, plaintext []byte) (*notes.Snapshot, error) {
	defer crypto.SecureWipe(plaintext)
	var snap notes.Snapshot
	if err := json.Unmarshal(plaintext, &snap); err != nil {
		return nil, &vault.IntegrityError{Op: op, Record: path, Err: err}
	}
	return &snap, nil
}

// RestoreBackup replaces all notes, tags, notebooks, smart views and
// settings with the content of an archive written by this vault. Nothing
// changes unless the archive verifies and the whole replacement succeeds.
func (m *Manager) RestoreBackup(path string) error {
	const op = "backup.RestoreBackup"

	a, err := readArchive(op, path)
	if err != nil {
		m.v.Audit(audit.OpBackupRestore, filepath.Base(path), err)
		return err
	}

	var restored int
	err = m.v.Update(op, func(tx *vault.Tx) error {
		meta, err := tx.Meta()
		if err != nil {
			return err
		}
		keys, err := deriveKeys(tx.DeriveKey)
		if err != nil {
			return err
		}
		defer keys.wipe()

		plaintext, err := a.open(keys)
		if err != nil {
			if a.header.VaultID != meta.VaultID {
				return &vault.AuthError{Op: op, Err: ErrForeignArchive}
			}
			return &vault.IntegrityError{Op: op, Record: path, Err: err}
		}
		snap, err := decodeSnapshot(op, path, plaintext)
		if err != nil {
			return err
		}
		restored = len(snap.Notes)
		return notes.ReplaceAll(tx, snap)
	})
	m.v.Audit(audit.OpBackupRestore, filepath.Base(path), err)
	if err != nil {
		return err
	}
	m.log.Info("backup restored", zap.Int("notes", restored))
	return nil
}

// RestoreVault recovers an archive into a vault that has not been set up,
// unlocking it with the password that was current when the archive was
// written. The restored vault keeps the archive's password and data key.
func (m *Manager) RestoreVault(path, password string) error {
	const op = "backup.RestoreVault"

	if m.v.IsInitialized() {
		return vault.State(op, vault.ErrAlreadyInitialized)
	}
	a, err := readArchive(op, path)
	if err != nil {
		return err
	}

	pw := vault.PasswordWrap(password, crypto.DefaultKDFParams)
	defer pw.Wipe()
	key, err := pw.Unwrap(a.header.PasswordWrap)
	if err != nil {
		if errors.Is(err, vault.ErrWrongSecret) {
			return vault.Auth(op)
		}
		return &vault.IntegrityError{Op: op, Record: path, Err: err}
	}

	snap, err := openWithMaster(op, path, a, key)
	if err != nil {
		crypto.SecureWipe(key)
		return err
	}

	h := a.header
	meta := &vault.Meta{
		VaultID:      h.VaultID,
		Version:      vault.FormatVersion,
		PasswordWrap: h.PasswordWrap,
		DataKeyWrap:  h.DataKeyWrap,
		Hint:         h.Hint,
		CreatedAt:    h.CreatedAt,
		UpdatedAt:    m.now().UTC(),
	}
	err = m.v.Adopt(meta, key, func(tx *vault.Tx) error {
		return notes.ReplaceAll(tx, snap)
	})
	if err != nil {
		crypto.SecureWipe(key)
		return err
	}
	m.log.Info("vault restored from backup", zap.String("vault_id", h.VaultID), zap.Int("notes", len(snap.Notes)))
	return nil
}

func openWithMaster(op, path string, a *archive, masterKey []byte) (*notes.Snapshot, error) {
	keys, err := keysFromMaster(masterKey)
	if err != nil {
		return nil, err
	}
	defer keys.wipe()

	plaintext, err := a.open(keys)
	if err != nil {
		return nil, &vault.IntegrityError{Op: op, Record: path, Err: err}
	}
	return decodeSnapshot(op, path, plaintext)
}

// unwrapDataKey recovers an archive's master key with its data key.
func unwrapDataKey(op string, a *archive, dataKey string) ([]byte, error) {
	dk, err := vault.DataKeyWrap(dataKey, crypto.DefaultKDFParams)
	if err != nil {
		return nil, vault.Validation(op, err)
	}
	defer dk.Wipe()

	key, err := dk.Unwrap(a.header.DataKeyWrap)
	if err != nil {
		if errors.Is(err, vault.ErrWrongSecret) {
			return nil, vault.Auth(op)
		}
		return nil, vault.Validation(op, err)
	}
	return key, nil
}

// ImportBackupWithKey merges the notes of another vault's archive into
// this vault, opening it with that vault's data key. Imported notes, tags,
// notebooks, versions and smart views get fresh ids. It returns the number
// of notes imported.
func (m *Manager) ImportBackupWithKey(path, dataKey string) (int, error) {
	const op = "backup.ImportBackupWithKey"

	if !m.v.IsUnlocked() {
		return 0, vault.State(op, vault.ErrVaultLocked)
	}
	if _, err := crypto.NormalizeDataKey(dataKey); err != nil {
		return 0, vault.Validation(op, vault.ErrInvalidDataKey)
	}

	a, err := readArchive(op, path)
	if err != nil {
		m.v.Audit(audit.OpBackupImport, filepath.Base(path), err)
		return 0, err
	}
	foreignKey, err := unwrapDataKey(op, a, dataKey)
	if err != nil {
		m.v.Audit(audit.OpBackupImport, filepath.Base(path), err)
		return 0, err
	}
	snap, err := openWithMaster(op, path, a, foreignKey)
	crypto.SecureWipe(foreignKey)
	if err != nil {
		m.v.Audit(audit.OpBackupImport, filepath.Base(path), err)
		return 0, err
	}

	var count int
	err = m.v.Update(op, func(tx *vault.Tx) error {
		var err error
		count, err = notes.Merge(tx, snap)
		return err
	})
	m.v.Audit(audit.OpBackupImport, filepath.Base(path), err)
	if err != nil {
		return 0, err
	}
	m.log.Info("backup imported", zap.Int("notes", count))
	return count, nil
}

// VerifyBackup checks an archive without changing the vault. With an
// empty dataKey the archive is checked against the unlocked vault's own
// key. Verification failures are reported in the result; the error is
// reserved for an unreadable file or a locked vault.
func (m *Manager) VerifyBackup(path, dataKey string) (*VerifyResult, error) {
	const op = "backup.VerifyBackup"

	a, err := readArchive(op, path)
	if err != nil {
		var ioe *vault.IOError
		if errors.As(err, &ioe) {
			return nil, err
		}
		return &VerifyResult{Valid: false, Error: err.Error()}, nil
	}

	result := &VerifyResult{
		Version:   a.header.Version,
		CreatedAt: a.header.CreatedAt,
		VaultID:   a.header.VaultID,
		NoteCount: a.header.NoteCount,
	}

	var snap *notes.Snapshot
	if dataKey == "" {
		err = m.v.View(op, func(tx *vault.Tx) error {
			keys, err := deriveKeys(tx.DeriveKey)
			if err != nil {
				return err
			}
			defer keys.wipe()
			plaintext, err := a.open(keys)
			if err != nil {
				return &vault.IntegrityError{Op: op, Record: path, Err: err}
			}
			snap, err = decodeSnapshot(op, path, plaintext)
			return err
		})
		var se *vault.StateError
		if errors.As(err, &se) {
			return nil, err
		}
	} else {
		var key []byte
		key, err = unwrapDataKey(op, a, dataKey)
		if err == nil {
			snap, err = openWithMaster(op, path, a, key)
			crypto.SecureWipe(key)
		}
	}

	if err != nil {
		result.Error = err.Error()
		return result, nil
	}
	if len(snap.Notes) != a.header.NoteCount {
		result.Error = fmt.Sprintf("note count mismatch: header %d, payload %d", a.header.NoteCount, len(snap.Notes))
		return result, nil
	}
	result.Valid = true
	return result, nil
}

// ListBackups returns the archives in the backup directory, newest first.
// Files that do not parse as archives are skipped.
func (m *Manager) ListBackups() ([]*Info, error) {
	const op = "backup.ListBackups"

	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []*Info{}, nil
	}
	if err != nil {
		return nil, vault.IO(op, err)
	}

	infos := []*Info{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), FileExt) {
			continue
		}
		path := filepath.Join(m.dir, entry.Name())
		info, err := readInfo(path)
		if err != nil {
			m.log.Warn("skipping unreadable archive", zap.String("path", path), zap.Error(err))
			continue
		}
		infos = append(infos, info)
	}

	sort.SliceStable(infos, func(i, j int) bool {
		if !infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].CreatedAt.After(infos[j].CreatedAt)
		}
		return infos[i].Path > infos[j].Path
	})
	return infos, nil
}

func readInfo(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	header, err := ReadHeader(f)
	if err != nil {
		return nil, err
	}
	return &Info{
		Path:      path,
		Size:      stat.Size(),
		CreatedAt: header.CreatedAt,
		VaultID:   header.VaultID,
		NoteCount: header.NoteCount,
	}, nil
}

// PruneBackups deletes all but the newest keep archives in the backup
// directory and returns the deleted paths.
func (m *Manager) PruneBackups(keep int) ([]string, error) {
	const op = "backup.PruneBackups"
	if keep < 0 {
		return nil, vault.Validation(op, fmt.Errorf("backup: keep must not be negative, got %d", keep))
	}

	infos, err := m.ListBackups()
	if err != nil {
		return nil, err
	}

	removed := []string{}
	for i := keep; i < len(infos); i++ {
		if err := os.Remove(infos[i].Path); err != nil {
			return removed, vault.IO(op, err)
		}
		removed = append(removed, infos[i].Path)
	}
	if len(removed) > 0 {
		m.log.Info("old backups removed", zap.Int("count", len(removed)))
	}
	return removed, nil
}
