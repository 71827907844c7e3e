// Package vault owns the master key of a locknote vault and the encrypted
// record store it protects.
//
// A vault moves through Uninitialized -> Locked <-> Unlocked. Setup creates a
// random master key and wraps it twice: once under a key derived from the
// password and once under a key derived from a recovery data key. Either
// secret unwraps the same master key. While unlocked, Update and View hand
// out transactions whose CryptoStore seals and opens records; Lock zeroes the
// key and waits for any transaction in flight.
package vault

import (
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JackyZhang8/locknote/internal/fsutil"
	"github.com/JackyZhang8/locknote/pkg/audit"
	"github.com/JackyZhang8/locknote/pkg/crypto"
)

const (
	// MinPasswordLength is the shortest password Setup and password changes accept.
	MinPasswordLength = 6

	// MinDiskSpaceBytes is the free space required to create a vault.
	MinDiskSpaceBytes = 10 * 1024 * 1024
)

// Vault is a single-user encrypted note vault stored in one directory.
type Vault struct {
	path string
	db   *sql.DB

	mu        sync.RWMutex
	masterKey []byte

	kdf    crypto.KDFParams
	audit  *audit.Logger
	source string
	log    *zap.Logger
	now    func() time.Time

	hooksMu   sync.Mutex
	lockHooks []func()
}

// Option configures a Vault.
type Option func(*Vault)

// WithKDFParams sets the Argon2id parameters used for new key wraps.
func WithKDFParams(p crypto.KDFParams) Option {
	return func(v *Vault) { v.kdf = p }
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(v *Vault) { v.log = l }
}

// WithAuditLogger records security events to l. source names the caller
// (audit.SourceCLI, audit.SourceMCP).
func WithAuditLogger(l *audit.Logger, source string) Option {
	return func(v *Vault) {
		v.audit = l
		v.source = source
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) { v.now = now }
}

// Open opens the vault at path, creating the directory and database on
// first use. The returned vault is locked.
func Open(path string, opts ...Option) (*Vault, error) {
	v := &Vault{
		path:   path,
		kdf:    crypto.DefaultKDFParams,
		source: audit.SourceCLI,
		log:    zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	if err := v.kdf.Validate(); err != nil {
		return nil, Validation("vault.Open", err)
	}

	if err := fsutil.EnsureDir(path); err != nil {
		return nil, IO("vault.Open", err)
	}
	v.checkAndWarnPermissions()

	db, err := openDB(path)
	if err != nil {
		return nil, IO("vault.Open", err)
	}
	v.db = db
	return v, nil
}

// Close locks the vault and closes the database.
func (v *Vault) Close() error {
	v.Lock()
	if err := v.db.Close(); err != nil {
		return IO("vault.Close", err)
	}
	return nil
}

// Path returns the vault directory.
func (v *Vault) Path() string {
	return v.path
}

// AuditLogger returns the attached audit logger, or nil.
func (v *Vault) AuditLogger() *audit.Logger {
	return v.audit
}

// IsInitialized reports whether Setup has completed for this vault.
func (v *Vault) IsInitialized() bool {
	_, err := loadMeta(v.db)
	return err == nil
}

func (v *Vault) checkAndWarnPermissions() {
	info, err := os.Stat(v.path)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		v.log.Warn("vault directory is accessible by other users",
			zap.String("path", v.path), zap.String("mode", fmt.Sprintf("%o", perm)))
	}
}

func validatePassword(op, password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return Validation(op, ErrPasswordTooShort)
	}
	return nil
}

// Setup initializes an empty vault. It returns the recovery data key in
// display form; the key is not stored and cannot be retrieved again.
// On success the vault is unlocked.
func (v *Vault) Setup(password, hint string) (string, error) {
	const op = "vault.Setup"
	if err := validatePassword(op, password); err != nil {
		return "", err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if _, err := loadMeta(v.db); err == nil {
		return "", State(op, ErrAlreadyInitialized)
	} else if !errors.Is(err, ErrNotInitialized) {
		return "", IO(op, err)
	}

	if err := fsutil.CheckFreeSpace(v.path, MinDiskSpaceBytes); err != nil {
		return "", IO(op, fmt.Errorf("%w: %v", ErrInsufficientDisk, err))
	}

	masterKey, err := crypto.GenerateKey()
	if err != nil {
		return "", err
	}
	dataKey, err := crypto.GenerateDataKey()
	if err != nil {
		crypto.SecureWipe(masterKey)
		return "", err
	}

	meta, err := v.wrapNew(masterKey, password, dataKey, hint)
	if err != nil {
		crypto.SecureWipe(masterKey)
		return "", err
	}

	err = v.inTx(op, masterKey, func(tx *Tx) error {
		if err := saveMeta(tx, meta); err != nil {
			return err
		}
		return tx.PutRecord(TableSettings, settingsID, DefaultSettings())
	})
	if err != nil {
		crypto.SecureWipe(masterKey)
		return "", err
	}

	v.masterKey = masterKey
	v.onUnlocked(audit.OpVaultSetup)
	v.log.Info("vault initialized", zap.String("vault_id", meta.VaultID))
	return dataKey, nil
}

// wrapNew builds fresh metadata with both wraps of masterKey.
func (v *Vault) wrapNew(masterKey []byte, password, dataKey, hint string) (*Meta, error) {
	pw := PasswordWrap(password, v.kdf)
	defer pw.Wipe()
	dk, err := DataKeyWrap(dataKey, v.kdf)
	if err != nil {
		return nil, err
	}
	defer dk.Wipe()

	pwWrapped, err := pw.Wrap(masterKey)
	if err != nil {
		return nil, err
	}
	dkWrapped, err := dk.Wrap(masterKey)
	if err != nil {
		return nil, err
	}

	now := v.now().UTC()
	return &Meta{
		VaultID:      uuid.NewString(),
		Version:      FormatVersion,
		PasswordWrap: pwWrapped,
		DataKeyWrap:  dkWrapped,
		Hint:         hint,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// VerifyDataKey reports whether candidate unwraps the stored master key.
// It performs the full unwrap rather than comparing strings.
func (v *Vault) VerifyDataKey(candidate string) bool {
	dk, err := DataKeyWrap(candidate, v.kdf)
	if err != nil {
		return false
	}
	defer dk.Wipe()

	v.mu.RLock()
	meta, err := loadMeta(v.db)
	v.mu.RUnlock()
	if err != nil {
		return false
	}

	key, err := dk.Unwrap(meta.DataKeyWrap)
	if err != nil {
		return false
	}
	crypto.SecureWipe(key)
	return true
}

// Unlock unwraps the master key with password. A wrong password returns
// false with a nil error; the error is reserved for a vault that cannot be
// read at all.
func (v *Vault) Unlock(password string) (bool, error) {
	const op = "vault.Unlock"

	v.mu.Lock()
	defer v.mu.Unlock()

	meta, err := loadMeta(v.db)
	if errors.Is(err, ErrNotInitialized) {
		return false, State(op, err)
	}
	if err != nil {
		return false, IO(op, err)
	}

	pw := PasswordWrap(password, v.kdf)
	defer pw.Wipe()

	key, err := pw.Unwrap(meta.PasswordWrap)
	if err != nil {
		v.log.Debug("unlock rejected", zap.Error(err))
		v.logAudit(audit.OpVaultUnlockFailed, audit.ResultError)
		return false, nil
	}

	if v.masterKey != nil {
		crypto.SecureWipe(v.masterKey)
	}
	v.masterKey = key
	v.onUnlocked(audit.OpVaultUnlock)
	return true, nil
}

// Lock zeroes the master key. It waits for running transactions, is always
// safe to call and does nothing when already locked.
func (v *Vault) Lock() {
	v.mu.Lock()
	wasUnlocked := v.masterKey != nil
	if wasUnlocked {
		v.logAudit(audit.OpVaultLock, audit.ResultSuccess)
		crypto.SecureWipe(v.masterKey)
		v.masterKey = nil
	}
	v.mu.Unlock()

	if wasUnlocked {
		v.log.Info("vault locked")
		v.runLockHooks()
	}
}

// IsUnlocked reports whether the master key is held.
func (v *Vault) IsUnlocked() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.masterKey != nil
}

// OnLock registers fn to run after every transition to Locked.
func (v *Vault) OnLock(fn func()) {
	v.hooksMu.Lock()
	defer v.hooksMu.Unlock()
	v.lockHooks = append(v.lockHooks, fn)
}

func (v *Vault) runLockHooks() {
	v.hooksMu.Lock()
	hooks := append([]func(){}, v.lockHooks...)
	v.hooksMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// GetPasswordHint returns the stored hint. It works while locked and
// returns "" for a vault that has not been set up.
func (v *Vault) GetPasswordHint() (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	meta, err := loadMeta(v.db)
	if errors.Is(err, ErrNotInitialized) {
		return "", nil
	}
	if err != nil {
		return "", IO("vault.GetPasswordHint", err)
	}
	return meta.Hint, nil
}

// ChangePassword re-verifies oldPassword and rewraps the master key under
// newPassword with a new salt. The data key wrap is left untouched, so the
// existing recovery key keeps working. On success the vault is unlocked.
func (v *Vault) ChangePassword(oldPassword, newPassword, newHint string) error {
	const op = "vault.ChangePassword"
	if err := validatePassword(op, newPassword); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	meta, err := v.loadMetaFor(op)
	if err != nil {
		return err
	}

	oldWrap := PasswordWrap(oldPassword, v.kdf)
	defer oldWrap.Wipe()
	key, err := oldWrap.Unwrap(meta.PasswordWrap)
	if err != nil {
		v.logAudit(audit.OpPasswordChange, audit.ResultError)
		return Auth(op)
	}
	if v.masterKey != nil && subtle.ConstantTimeCompare(key, v.masterKey) != 1 {
		crypto.SecureWipe(key)
		return &IntegrityError{Op: op, Record: "vault_meta/password_wrap", Err: ErrTampered}
	}

	if err := v.rewrapPassword(op, meta, key, newPassword, newHint); err != nil {
		crypto.SecureWipe(key)
		return err
	}

	wasLocked := v.masterKey == nil
	v.adoptKey(key)
	if wasLocked {
		v.onUnlocked(audit.OpPasswordChange)
		return nil
	}
	v.logAudit(audit.OpPasswordChange, audit.ResultSuccess)
	return nil
}

// ResetPasswordWithDataKey replaces the password wrap using the recovery
// data key instead of the old password. On success the vault is unlocked.
func (v *Vault) ResetPasswordWithDataKey(dataKey, newPassword, newHint string) error {
	const op = "vault.ResetPasswordWithDataKey"
	if err := validatePassword(op, newPassword); err != nil {
		return err
	}
	dk, err := DataKeyWrap(dataKey, v.kdf)
	if err != nil {
		return Validation(op, err)
	}
	defer dk.Wipe()

	v.mu.Lock()
	defer v.mu.Unlock()

	meta, err := v.loadMetaFor(op)
	if err != nil {
		return err
	}

	key, err := dk.Unwrap(meta.DataKeyWrap)
	if err != nil {
		v.logAudit(audit.OpPasswordReset, audit.ResultError)
		return Auth(op)
	}

	if err := v.rewrapPassword(op, meta, key, newPassword, newHint); err != nil {
		crypto.SecureWipe(key)
		return err
	}

	wasLocked := v.masterKey == nil
	v.adoptKey(key)
	if wasLocked {
		v.onUnlocked(audit.OpPasswordReset)
		return nil
	}
	v.logAudit(audit.OpPasswordReset, audit.ResultSuccess)
	return nil
}

func (v *Vault) loadMetaFor(op string) (*Meta, error) {
	meta, err := loadMeta(v.db)
	if errors.Is(err, ErrNotInitialized) {
		return nil, State(op, err)
	}
	if err != nil {
		return nil, IO(op, err)
	}
	return meta, nil
}

// rewrapPassword stores a new password wrap of key. Caller holds v.mu.
func (v *Vault) rewrapPassword(op string, meta *Meta, key []byte, newPassword, newHint string) error {
	pw := PasswordWrap(newPassword, v.kdf)
	defer pw.Wipe()

	wrapped, err := pw.Wrap(key)
	if err != nil {
		return err
	}
	meta.PasswordWrap = wrapped
	meta.Hint = newHint
	meta.UpdatedAt = v.now().UTC()

	if err := saveMeta(v.db, meta); err != nil {
		return IO(op, err)
	}
	return nil
}

// adoptKey makes key the held master key. Caller holds v.mu.
func (v *Vault) adoptKey(key []byte) {
	if v.masterKey != nil {
		crypto.SecureWipe(v.masterKey)
	}
	v.masterKey = key
}

// onUnlocked keys the audit chain and records op. Caller holds v.mu.
func (v *Vault) onUnlocked(op string) {
	if v.audit != nil {
		if err := v.audit.SetHMACKey(v.masterKey); err != nil {
			v.log.Warn("audit key setup failed", zap.Error(err))
		}
	}
	v.logAudit(op, audit.ResultSuccess)
}

func (v *Vault) logAudit(op, result string) {
	if v.audit == nil || !v.audit.Ready() {
		return
	}
	if err := v.audit.Log(op, v.source, result, "", nil, nil); err != nil {
		v.log.Warn("audit write failed", zap.String("op", op), zap.Error(err))
	}
}

// Audit records a non-vault operation (backup, export) in the audit log.
func (v *Vault) Audit(op, subject string, opErr error) {
	if v.audit == nil || !v.audit.Ready() {
		return
	}
	var err error
	if opErr != nil {
		err = v.audit.LogError(op, v.source, subject, fmt.Sprintf("%T", opErr), opErr.Error())
	} else {
		err = v.audit.LogSuccess(op, v.source, subject)
	}
	if err != nil {
		v.log.Warn("audit write failed", zap.String("op", op), zap.Error(err))
	}
}

// Update runs fn in a read-write transaction while holding the vault
// exclusively. An error from fn, or a failed commit, rolls everything back.
func (v *Vault) Update(op string, fn func(*Tx) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.masterKey == nil {
		return lockedErr(op)
	}
	return v.inTx(op, v.masterKey, fn)
}

// View runs fn in a transaction that is always rolled back. Views may run
// concurrently with each other but never with Update or Lock.
func (v *Vault) View(op string, fn func(*Tx) error) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.masterKey == nil {
		return lockedErr(op)
	}

	sqlTx, err := v.db.Begin()
	if err != nil {
		return IO(op, fmt.Errorf("vault: failed to begin transaction: %w", err))
	}
	defer sqlTx.Rollback()

	return IO(op, fn(v.newTx(op, sqlTx, v.masterKey)))
}

func (v *Vault) inTx(op string, key []byte, fn func(*Tx) error) error {
	sqlTx, err := v.db.Begin()
	if err != nil {
		return IO(op, fmt.Errorf("vault: failed to begin transaction: %w", err))
	}
	defer sqlTx.Rollback()

	if err := fn(v.newTx(op, sqlTx, key)); err != nil {
		return IO(op, err)
	}
	if err := sqlTx.Commit(); err != nil {
		return IO(op, fmt.Errorf("vault: failed to commit: %w", err))
	}
	return nil
}

func (v *Vault) newTx(op string, sqlTx *sql.Tx, key []byte) *Tx {
	return &Tx{
		Tx:          sqlTx,
		CryptoStore: CryptoStore{key: key},
		op:          op,
		now:         v.now().UTC(),
	}
}

// Adopt installs foreign metadata and master key into an uninitialized
// vault and runs fn in the same transaction. It is the disaster recovery
// path of a backup restore. On success the vault is unlocked with key.
func (v *Vault) Adopt(meta *Meta, key []byte, fn func(*Tx) error) error {
	const op = "vault.Adopt"
	if len(key) != crypto.KeyLength {
		return Validation(op, crypto.ErrInvalidKeyLength)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if _, err := loadMeta(v.db); err == nil {
		return State(op, ErrAlreadyInitialized)
	} else if !errors.Is(err, ErrNotInitialized) {
		return IO(op, err)
	}

	err := v.inTx(op, key, func(tx *Tx) error {
		if err := saveMeta(tx, meta); err != nil {
			return err
		}
		return fn(tx)
	})
	if err != nil {
		return err
	}

	v.adoptKey(key)
	v.onUnlocked(audit.OpBackupRestore)
	return nil
}
