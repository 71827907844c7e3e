// Package audit records security-relevant vault operations in an
// append-only JSONL log whose records are chained with HMAC-SHA256.
//
// The HMAC key is derived from the vault master key, so the chain can only
// be extended or verified while the vault is unlocked. Subjects (note ids,
// backup file names) are stored as keyed hashes, never in clear.
package audit

import (
	"bufio"
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JackyZhang8/locknote/internal/fsutil"
	"github.com/JackyZhang8/locknote/pkg/crypto"
)

// DirName is the audit directory inside a vault directory.
const DirName = "audit"

// MinAuditDiskSpace is the free space required before appending a record.
const MinAuditDiskSpace = 1024 * 1024

// Operation types.
const (
	OpVaultSetup        = "vault.setup"
	OpVaultUnlock       = "vault.unlock"
	OpVaultUnlockFailed = "vault.unlock_failed"
	OpVaultLock         = "vault.lock"
	OpPasswordChange    = "vault.password_change"
	OpPasswordReset     = "vault.password_reset"

	OpNotePurge      = "note.purge"
	OpNoteExport     = "note.export_markdown"
	OpNoteImport     = "note.import_markdown"
	OpBackupCreate   = "backup.create"
	OpBackupRestore  = "backup.restore"
	OpBackupImport   = "backup.import"
	OpMCPSessionOpen = "mcp.session_open"
)

// Sources identify where an operation originated.
const (
	SourceCLI = "cli"
	SourceMCP = "mcp"
)

// Results.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

const genesis = "genesis"

// ErrKeyNotSet is returned when writing or verifying before SetHMACKey.
var ErrKeyNotSet = errors.New("audit: HMAC key not set")

// Event is a single audit record.
type Event struct {
	Version   int            `json:"v"`
	ID        string         `json:"id"`
	Timestamp string         `json:"ts"`
	Operation string         `json:"op"`
	Subject   string         `json:"subject,omitempty"`
	Source    string         `json:"source"`
	SessionID string         `json:"session_id"`
	Result    string         `json:"result"`
	Error     *ErrorInfo     `json:"error,omitempty"`
	Context   map[string]any `json:"ctx,omitempty"`
	Chain     Chain          `json:"chain"`
}

// ErrorInfo contains error details.
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Chain links a record to its predecessor.
type Chain struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

// Logger appends chained records to monthly files under path.
type Logger struct {
	path      string
	mu        sync.Mutex
	hmacKey   []byte
	sequence  int64
	prevHash  string
	sessionID string
	now       func() time.Time
}

// NewLogger returns a logger writing under path. It cannot write until
// SetHMACKey is called.
func NewLogger(path string) *Logger {
	return &Logger{
		path:      path,
		prevHash:  genesis,
		sessionID: uuid.NewString(),
		now:       time.Now,
	}
}

// Path returns the audit log directory.
func (l *Logger) Path() string { return l.path }

// Ready reports whether the HMAC key is set.
func (l *Logger) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hmacKey != nil
}

// SetHMACKey derives the chain key from the vault master key and reloads
// the persisted chain head.
func (l *Logger) SetHMACKey(masterKey []byte) error {
	key, err := crypto.DeriveSubKey(masterKey, "locknote-audit-v1")
	if err != nil {
		return fmt.Errorf("audit: failed to derive HMAC key: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey != nil {
		crypto.SecureWipe(l.hmacKey)
	}
	l.hmacKey = key
	if err := l.loadChainState(); err != nil {
		l.sequence = 0
		l.prevHash = genesis
	}
	return nil
}

// Log appends one record.
func (l *Logger) Log(op, source, result, subject string, errInfo *ErrorInfo, ctx map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey == nil {
		return ErrKeyNotSet
	}
	if err := fsutil.EnsureDir(l.path); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	if info, err := fsutil.DiskSpace(l.path); err == nil && info.Available < MinAuditDiskSpace {
		return fmt.Errorf("audit: insufficient disk space: only %d bytes available", info.Available)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("audit: failed to generate event id: %w", err)
	}

	event := Event{
		Version:   1,
		ID:        id.String(),
		Timestamp: l.now().UTC().Format(time.RFC3339Nano),
		Operation: op,
		Source:    source,
		SessionID: l.sessionID,
		Result:    result,
		Error:     errInfo,
		Context:   ctx,
	}
	if subject != "" {
		event.Subject = l.keyedHash(subject)
	}

	event.Chain.Sequence = l.sequence + 1
	event.Chain.PrevHash = l.prevHash
	event.Chain.HMAC = l.sign(&event)

	if err := l.writeEvent(&event); err != nil {
		return err
	}
	l.sequence = event.Chain.Sequence
	l.prevHash = event.Chain.HMAC
	return l.saveChainState()
}

// LogSuccess records a successful operation.
func (l *Logger) LogSuccess(op, source, subject string) error {
	return l.Log(op, source, ResultSuccess, subject, nil, nil)
}

// LogError records a failed operation.
func (l *Logger) LogError(op, source, subject, code, msg string) error {
	return l.Log(op, source, ResultError, subject, &ErrorInfo{Code: code, Message: msg}, nil)
}

func (l *Logger) keyedHash(s string) string {
	mac := hmac.New(sha256.New, l.hmacKey)
	mac.Write([]byte(s))
	return hex.EncodeToString(mac.Sum(nil))
}

// sign computes the HMAC over every field except the HMAC itself.
func (l *Logger) sign(event *Event) string {
	errorData := ""
	if event.Error != nil {
		errorData = event.Error.Code + "|" + event.Error.Message
	}

	keys := make([]string, 0, len(event.Context))
	for k := range event.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var ctx strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&ctx, "%s=%v|", k, event.Context[k])
	}

	data := fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s|%s|%s|%s|%d|%s",
		event.Version, event.ID, event.Timestamp, event.Operation, event.Subject,
		event.Source, event.SessionID, event.Result, errorData, ctx.String(),
		event.Chain.Sequence, event.Chain.PrevHash)

	mac := hmac.New(sha256.New, l.hmacKey)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

func (l *Logger) writeEvent(event *Event) error {
	name := filepath.Join(l.path, l.now().UTC().Format("2006-01")+".jsonl")
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, fsutil.FileMode)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}
	return nil
}

type chainState struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
}

func (l *Logger) metaPath() string { return filepath.Join(l.path, "audit.meta") }

func (l *Logger) loadChainState() error {
	data, err := os.ReadFile(l.metaPath())
	if err != nil {
		return err
	}
	var state chainState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	l.sequence = state.Sequence
	l.prevHash = state.PrevHash
	return nil
}

func (l *Logger) saveChainState() error {
	data, err := json.Marshal(chainState{Sequence: l.sequence, PrevHash: l.prevHash})
	if err != nil {
		return fmt.Errorf("audit: failed to marshal chain state: %w", err)
	}
	if err := fsutil.WriteFileAtomic(l.metaPath(), data); err != nil {
		return fmt.Errorf("audit: failed to save chain state: %w", err)
	}
	return nil
}

// VerifyResult contains the result of chain verification.
type VerifyResult struct {
	Valid        bool     `json:"valid"`
	RecordsTotal int      `json:"records_total"`
	Errors       []string `json:"errors,omitempty"`
}

// Verify walks every record in order and checks sequence, linkage and HMAC.
func (l *Logger) Verify() (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey == nil {
		return nil, ErrKeyNotSet
	}

	events, err := l.readAll()
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Valid: true, RecordsTotal: len(events)}
	expectedPrev := genesis
	expectedSeq := int64(1)
	for i := range events {
		event := &events[i]
		if event.Chain.Sequence != expectedSeq {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"sequence gap at record %s: expected %d, got %d", event.ID, expectedSeq, event.Chain.Sequence))
		}
		if event.Chain.PrevHash != expectedPrev {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("chain broken at record %s", event.ID))
		}
		if !hmac.Equal([]byte(event.Chain.HMAC), []byte(l.sign(event))) {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("HMAC mismatch at record %s: possible tampering", event.ID))
		}
		expectedPrev = event.Chain.HMAC
		expectedSeq = event.Chain.Sequence + 1
	}
	return result, nil
}

// ListEvents returns events newer than since (zero means all), keeping at
// most the last limit (0 means all).
func (l *Logger) ListEvents(limit int, since time.Time) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.readAll()
	if err != nil {
		return nil, err
	}

	var filtered []Event
	for _, event := range events {
		if !since.IsZero() {
			ts, err := time.Parse(time.RFC3339Nano, event.Timestamp)
			if err != nil || !ts.After(since) {
				continue
			}
		}
		filtered = append(filtered, event)
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered, nil
}

// Prune removes monthly files whose newest record is older than olderThan
// and returns how many records went with them. A pruned log no longer
// starts at genesis, so Verify reports the first surviving record as a
// chain break.
func (l *Logger) Prune(olderThan time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-olderThan)
	files, err := l.logFiles()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, file := range files {
		events, err := readLogFile(file)
		if err != nil {
			return removed, err
		}
		if len(events) == 0 {
			continue
		}
		last, err := time.Parse(time.RFC3339Nano, events[len(events)-1].Timestamp)
		if err != nil || !last.Before(cutoff) {
			continue
		}
		if err := os.Remove(file); err != nil {
			return removed, fmt.Errorf("audit: failed to delete %s: %w", file, err)
		}
		removed += len(events)
	}
	return removed, nil
}

func (l *Logger) logFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(l.path, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func (l *Logger) readAll() ([]Event, error) {
	files, err := l.logFiles()
	if err != nil {
		return nil, err
	}
	var all []Event
	for _, file := range files {
		events, err := readLogFile(file)
		if err != nil {
			return nil, err
		}
		all = append(all, events...)
	}
	return all, nil
}

func readLogFile(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to read %s: %w", path, err)
	}

	var events []Event
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("audit: failed to parse %s: %w", path, err)
		}
		events = append(events, event)
	}
	return events, scanner.Err()
}
