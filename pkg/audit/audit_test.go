package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	l := NewLogger(t.TempDir())
	if err := l.SetHMACKey(testKey()); err != nil {
		t.Fatalf("SetHMACKey() error = %v", err)
	}
	return l
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger(dir)
	if l.Path() != dir {
		t.Errorf("Path() = %q, want %q", l.Path(), dir)
	}
	if l.Ready() {
		t.Error("new logger should not be ready before SetHMACKey")
	}
	if l.sessionID == "" {
		t.Error("session id should be set")
	}
}

func TestLogWithoutHMACKey(t *testing.T) {
	l := NewLogger(t.TempDir())
	if err := l.LogSuccess(OpVaultUnlock, SourceCLI, ""); err != ErrKeyNotSet {
		t.Errorf("LogSuccess() error = %v, want ErrKeyNotSet", err)
	}
}

func TestLogSuccess(t *testing.T) {
	l := newTestLogger(t)
	if err := l.LogSuccess(OpBackupCreate, SourceCLI, "locknote-20260101-000000.lnbak"); err != nil {
		t.Fatalf("LogSuccess() error = %v", err)
	}

	events, err := l.ListEvents(0, time.Time{})
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	e := events[0]
	if e.Operation != OpBackupCreate || e.Result != ResultSuccess || e.Source != SourceCLI {
		t.Errorf("unexpected event %+v", e)
	}
	if e.Chain.Sequence != 1 || e.Chain.PrevHash != genesis {
		t.Errorf("first record chain = %+v", e.Chain)
	}
	if strings.Contains(e.Subject, "lnbak") {
		t.Error("subject must be stored hashed")
	}
}

func TestLogError(t *testing.T) {
	l := newTestLogger(t)
	if err := l.LogError(OpBackupImport, SourceCLI, "", "AuthError", "wrong key"); err != nil {
		t.Fatalf("LogError() error = %v", err)
	}
	events, _ := l.ListEvents(0, time.Time{})
	if len(events) != 1 || events[0].Error == nil || events[0].Error.Code != "AuthError" {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestChainIntegrity(t *testing.T) {
	l := newTestLogger(t)
	for _, op := range []string{OpVaultSetup, OpVaultLock, OpVaultUnlock, OpPasswordChange} {
		if err := l.LogSuccess(op, SourceCLI, ""); err != nil {
			t.Fatalf("LogSuccess(%s) error = %v", op, err)
		}
	}

	result, err := l.Verify()
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !result.Valid || result.RecordsTotal != 4 {
		t.Errorf("Verify() = %+v", result)
	}
}

func TestChainPersistence(t *testing.T) {
	dir := t.TempDir()
	l1 := NewLogger(dir)
	_ = l1.SetHMACKey(testKey())
	_ = l1.LogSuccess(OpVaultUnlock, SourceCLI, "")
	_ = l1.LogSuccess(OpVaultLock, SourceCLI, "")

	l2 := NewLogger(dir)
	if err := l2.SetHMACKey(testKey()); err != nil {
		t.Fatal(err)
	}
	if l2.sequence != 2 {
		t.Errorf("reloaded sequence = %d, want 2", l2.sequence)
	}
	_ = l2.LogSuccess(OpVaultUnlock, SourceMCP, "")

	result, err := l2.Verify()
	if err != nil {
		t.Fatal(err)
	}
	if !result.Valid || result.RecordsTotal != 3 {
		t.Errorf("Verify() = %+v", result)
	}
}

func TestTamperingDetection(t *testing.T) {
	l := newTestLogger(t)
	_ = l.LogSuccess(OpVaultUnlock, SourceCLI, "")
	_ = l.LogSuccess(OpNoteExport, SourceCLI, "note-1")

	files, _ := filepath.Glob(filepath.Join(l.path, "*.jsonl"))
	if len(files) != 1 {
		t.Fatalf("expected one log file, got %v", files)
	}
	data, _ := os.ReadFile(files[0])
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")

	var e Event
	if err := json.Unmarshal([]byte(lines[1]), &e); err != nil {
		t.Fatal(err)
	}
	e.Result = ResultError
	tampered, _ := json.Marshal(e)
	lines[1] = string(tampered)
	if err := os.WriteFile(files[0], []byte(strings.Join(lines, "\n")+"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	result, err := l.Verify()
	if err != nil {
		t.Fatal(err)
	}
	if result.Valid {
		t.Error("tampered log should not verify")
	}
}

func TestVerifyWrongKey(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger(dir)
	_ = l.SetHMACKey(testKey())
	_ = l.LogSuccess(OpVaultUnlock, SourceCLI, "")

	other := NewLogger(dir)
	otherKey := testKey()
	otherKey[0] ^= 0xff
	_ = other.SetHMACKey(otherKey)
	result, err := other.Verify()
	if err != nil {
		t.Fatal(err)
	}
	if result.Valid {
		t.Error("log should not verify under a different key")
	}
}

func TestVerifyEmptyLog(t *testing.T) {
	l := newTestLogger(t)
	result, err := l.Verify()
	if err != nil {
		t.Fatal(err)
	}
	if !result.Valid || result.RecordsTotal != 0 {
		t.Errorf("Verify() = %+v", result)
	}
}

func TestListEvents(t *testing.T) {
	l := newTestLogger(t)
	for i := 0; i < 5; i++ {
		_ = l.LogSuccess(OpVaultUnlock, SourceCLI, "")
	}

	events, err := l.ListEvents(2, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[1].Chain.Sequence != 5 {
		t.Errorf("limit should keep the newest records, got seq %d", events[1].Chain.Sequence)
	}

	events, _ = l.ListEvents(0, time.Now().Add(time.Hour))
	if len(events) != 0 {
		t.Errorf("since in the future should filter everything, got %d", len(events))
	}
}

func TestPrune(t *testing.T) {
	l := newTestLogger(t)
	old := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return old }
	_ = l.LogSuccess(OpVaultUnlock, SourceCLI, "")
	_ = l.LogSuccess(OpVaultLock, SourceCLI, "")

	l.now = time.Now
	_ = l.LogSuccess(OpVaultUnlock, SourceCLI, "")

	removed, err := l.Prune(30 * 24 * time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("Prune() removed %d, want 2", removed)
	}
	events, _ := l.ListEvents(0, time.Time{})
	if len(events) != 1 {
		t.Errorf("remaining events = %d, want 1", len(events))
	}
}
