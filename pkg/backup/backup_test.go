package backup

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JackyZhang8/locknote/pkg/crypto"
	"github.com/JackyZhang8/locknote/pkg/notes"
	"github.com/JackyZhang8/locknote/pkg/vault"
)

const testPassword = "correct horse"

var testKDF = crypto.KDFParams{Memory: 8 * 1024, Iterations: 1, Parallelism: 1}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func openVault(t *testing.T) *vault.Vault {
	t.Helper()
	v, err := vault.Open(t.TempDir(), vault.WithKDFParams(testKDF))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = v.Close() })
	return v
}

// newTestManager returns a manager over a vault that is set up and
// unlocked, and the vault's data key.
func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	v := openVault(t)
	dataKey, err := v.Setup(testPassword, "horse")
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	clock := &stepClock{now: time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)}
	return NewManager(notes.New(v), WithClock(clock.Now)), dataKey
}

func seed(t *testing.T, r *notes.Repository) {
	t.Helper()
	work, err := r.CreateTag("work", "")
	if err != nil {
		t.Fatalf("CreateTag failed: %v", err)
	}
	nb, err := r.CreateNotebook("Projects", "")
	if err != nil {
		t.Fatalf("CreateNotebook failed: %v", err)
	}
	a, err := r.CreateNote("Plan", "ship it")
	if err != nil {
		t.Fatalf("CreateNote failed: %v", err)
	}
	if _, err := r.CreateNote("Groceries", "milk\neggs"); err != nil {
		t.Fatalf("CreateNote failed: %v", err)
	}
	if err := r.AddTagToNote(a.ID, work.ID); err != nil {
		t.Fatalf("AddTagToNote failed: %v", err)
	}
	if err := r.SetNoteNotebook(a.ID, nb.ID); err != nil {
		t.Fatalf("SetNoteNotebook failed: %v", err)
	}
}

// contents renders every active note as "id|title|content|tags".
func contents(t *testing.T, r *notes.Repository, withIDs bool) []string {
	t.Helper()
	list, err := r.ListNotes()
	if err != nil {
		t.Fatalf("ListNotes failed: %v", err)
	}
	out := make([]string, 0, len(list))
	for _, n := range list {
		var tags []string
		for _, tag := range n.Tags {
			tags = append(tags, tag.Name)
		}
		line := n.Title + "|" + n.Content + "|" + strings.Join(tags, ",")
		if withIDs {
			line = n.ID + "|" + line
		}
		out = append(out, line)
	}
	sort.Strings(out)
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCreateRestoreRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	seed(t, m.repo)
	before := contents(t, m.repo, true)

	path, err := m.CreateBackup("")
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}
	if filepath.Dir(path) != m.Dir() || filepath.Ext(path) != FileExt {
		t.Errorf("unexpected archive path %q", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("archive missing: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("archive mode = %o, want 600", info.Mode().Perm())
	}

	// Diverge from the archive in every way ReplaceAll has to undo.
	list, _ := m.repo.ListNotes()
	if err := m.repo.SoftDeleteNote(list[0].ID); err != nil {
		t.Fatalf("SoftDeleteNote failed: %v", err)
	}
	if _, err := m.repo.CreateNote("Extra", "not in the archive"); err != nil {
		t.Fatalf("CreateNote failed: %v", err)
	}
	tags, _ := m.repo.ListTags()
	if _, err := m.repo.UpdateTag(tags[0].ID, "renamed", ""); err != nil {
		t.Fatalf("UpdateTag failed: %v", err)
	}

	if err := m.RestoreBackup(path); err != nil {
		t.Fatalf("RestoreBackup failed: %v", err)
	}
	after := contents(t, m.repo, true)
	if !equalStrings(before, after) {
		t.Errorf("restored notes differ:\nbefore %q\nafter  %q", before, after)
	}
	trash, _ := m.repo.ListDeletedNotes()
	if len(trash) != 0 {
		t.Errorf("trash should be empty after restore, got %d", len(trash))
	}
	notebooks, _ := m.repo.ListNotebooks()
	if len(notebooks) != 1 || notebooks[0].Name != "Projects" {
		t.Errorf("notebooks not restored: %+v", notebooks)
	}
}

func TestCreateBackup_ExplicitPathAndDir(t *testing.T) {
	m, _ := newTestManager(t)
	seed(t, m.repo)

	out := filepath.Join(t.TempDir(), "nested", "mine.lnbak")
	path, err := m.CreateBackup(out)
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}
	if path != out {
		t.Errorf("path = %q, want %q", path, out)
	}

	dir := t.TempDir()
	p1, err := m.CreateBackup(dir)
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}
	p2, err := m.CreateBackup(dir)
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}
	if filepath.Dir(p1) != dir || p1 == p2 {
		t.Errorf("expected two distinct archives in %s, got %q and %q", dir, p1, p2)
	}
}

func TestCreateBackup_UniqueDefaultName(t *testing.T) {
	m, _ := newTestManager(t)
	fixed := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	p1, err := m.CreateBackup("")
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}
	p2, err := m.CreateBackup("")
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}
	if filepath.Base(p1) != "locknote-20260402-100000.lnbak" {
		t.Errorf("unexpected name %q", filepath.Base(p1))
	}
	if filepath.Base(p2) != "locknote-20260402-100000-2.lnbak" {
		t.Errorf("unexpected name %q", filepath.Base(p2))
	}
}

func TestCreateBackup_Locked(t *testing.T) {
	m, _ := newTestManager(t)
	m.v.Lock()

	_, err := m.CreateBackup("")
	var se *vault.StateError
	if !errors.As(err, &se) || !errors.Is(err, vault.ErrVaultLocked) {
		t.Fatalf("expected locked StateError, got %v", err)
	}
}

func TestRestoreBackup_Tampered(t *testing.T) {
	m, _ := newTestManager(t)
	seed(t, m.repo)
	path, err := m.CreateBackup("")
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}
	if _, err := m.repo.CreateNote("after", "backup"); err != nil {
		t.Fatalf("CreateNote failed: %v", err)
	}
	before := contents(t, m.repo, true)

	data, _ := os.ReadFile(path)
	data[len(data)-HMACLength-5] ^= 0xFF
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	err = m.RestoreBackup(path)
	var ie *vault.IntegrityError
	if !errors.As(err, &ie) || !errors.Is(err, ErrIntegrityFailed) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}
	if after := contents(t, m.repo, true); !equalStrings(before, after) {
		t.Error("a failed restore must leave the vault unchanged")
	}
}

func TestRestoreBackup_Truncated(t *testing.T) {
	m, _ := newTestManager(t)
	path, err := m.CreateBackup("")
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if err := os.WriteFile(path, data[:len(data)-10], 0600); err != nil {
		t.Fatal(err)
	}

	err = m.RestoreBackup(path)
	var ie *vault.IntegrityError
	if !errors.As(err, &ie) || !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected truncated IntegrityError, got %v", err)
	}
}

func TestRestoreBackup_NotAnArchive(t *testing.T) {
	m, _ := newTestManager(t)
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte(strings.Repeat("plain text, not an archive\n", 4)), 0600); err != nil {
		t.Fatal(err)
	}

	err := m.RestoreBackup(path)
	var ve *vault.ValidationError
	if !errors.As(err, &ve) || !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	err = m.RestoreBackup(filepath.Join(t.TempDir(), "missing.lnbak"))
	var ioe *vault.IOError
	if !errors.As(err, &ioe) {
		t.Fatalf("expected IOError for a missing file, got %v", err)
	}
}

func TestRestoreBackup_ForeignArchive(t *testing.T) {
	mine, _ := newTestManager(t)
	other, _ := newTestManager(t)
	seed(t, other.repo)

	path, err := other.CreateBackup("")
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}

	err = mine.RestoreBackup(path)
	var ae *vault.AuthError
	if !errors.As(err, &ae) || !errors.Is(err, ErrForeignArchive) {
		t.Fatalf("expected foreign archive AuthError, got %v", err)
	}
}

func TestRestoreBackup_AfterPasswordReset(t *testing.T) {
	m, dataKey := newTestManager(t)
	seed(t, m.repo)
	before := contents(t, m.repo, true)

	path, err := m.CreateBackup("")
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}
	if err := m.v.ResetPasswordWithDataKey(dataKey, "new password", ""); err != nil {
		t.Fatalf("ResetPasswordWithDataKey failed: %v", err)
	}
	if _, err := m.repo.CreateNote("later", ""); err != nil {
		t.Fatalf("CreateNote failed: %v", err)
	}

	if err := m.RestoreBackup(path); err != nil {
		t.Fatalf("RestoreBackup failed: %v", err)
	}
	if after := contents(t, m.repo, true); !equalStrings(before, after) {
		t.Errorf("restored notes differ:\nbefore %q\nafter  %q", before, after)
	}
}

func TestImportBackupWithKey(t *testing.T) {
	mine, _ := newTestManager(t)
	if _, err := mine.repo.CreateNote("Local", "stays"); err != nil {
		t.Fatalf("CreateNote failed: %v", err)
	}
	other, otherKey := newTestManager(t)
	seed(t, other.repo)
	path, err := other.CreateBackup("")
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}

	count, err := mine.ImportBackupWithKey(path, crypto.FormatDataKey(otherKey))
	if err != nil {
		t.Fatalf("ImportBackupWithKey failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	got := contents(t, mine.repo, false)
	want := append(contents(t, other.repo, false), "Local|stays|")
	sort.Strings(want)
	if !equalStrings(got, want) {
		t.Errorf("merged notes:\ngot  %q\nwant %q", got, want)
	}

	otherIDs := map[string]bool{}
	list, _ := other.repo.ListNotes()
	for _, n := range list {
		otherIDs[n.ID] = true
	}
	list, _ = mine.repo.ListNotes()
	for _, n := range list {
		if otherIDs[n.ID] {
			t.Errorf("imported note kept foreign id %s", n.ID)
		}
	}
}

func TestImportBackupWithKey_Errors(t *testing.T) {
	mine, _ := newTestManager(t)
	other, _ := newTestManager(t)
	path, err := other.CreateBackup("")
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}

	_, err = mine.ImportBackupWithKey(path, "not a key")
	var ve *vault.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("expected ValidationError for a malformed key, got %v", err)
	}

	wrong, _ := crypto.GenerateDataKey()
	_, err = mine.ImportBackupWithKey(path, wrong)
	var ae *vault.AuthError
	if !errors.As(err, &ae) {
		t.Errorf("expected AuthError for the wrong key, got %v", err)
	}

	mine.v.Lock()
	_, err = mine.ImportBackupWithKey(path, wrong)
	var se *vault.StateError
	if !errors.As(err, &se) {
		t.Errorf("expected StateError while locked, got %v", err)
	}
}

func TestRestoreVault(t *testing.T) {
	src, dataKey := newTestManager(t)
	seed(t, src.repo)
	want := contents(t, src.repo, true)
	path, err := src.CreateBackup("")
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}

	fresh := openVault(t)
	m := NewManager(notes.New(fresh))

	err = m.RestoreVault(path, "wrong password")
	var ae *vault.AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if fresh.IsInitialized() {
		t.Fatal("a failed restore must leave the vault uninitialized")
	}

	if err := m.RestoreVault(path, testPassword); err != nil {
		t.Fatalf("RestoreVault failed: %v", err)
	}
	if !fresh.IsUnlocked() {
		t.Fatal("restored vault should be unlocked")
	}
	if got := contents(t, m.repo, true); !equalStrings(got, want) {
		t.Errorf("restored notes differ:\ngot  %q\nwant %q", got, want)
	}

	fresh.Lock()
	ok, err := fresh.Unlock(testPassword)
	if err != nil || !ok {
		t.Fatalf("Unlock with the archived password: ok=%v err=%v", ok, err)
	}
	if !fresh.VerifyDataKey(dataKey) {
		t.Error("restored vault should accept the archived data key")
	}
	hint, _ := fresh.GetPasswordHint()
	if hint != "horse" {
		t.Errorf("hint = %q, want horse", hint)
	}

	err = m.RestoreVault(path, testPassword)
	var se *vault.StateError
	if !errors.As(err, &se) || !errors.Is(err, vault.ErrAlreadyInitialized) {
		t.Errorf("expected StateError on an initialized vault, got %v", err)
	}
}

func TestVerifyBackup(t *testing.T) {
	m, dataKey := newTestManager(t)
	seed(t, m.repo)
	path, err := m.CreateBackup("")
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}

	for _, key := range []string{"", dataKey} {
		result, err := m.VerifyBackup(path, key)
		if err != nil {
			t.Fatalf("VerifyBackup failed: %v", err)
		}
		if !result.Valid || result.NoteCount != 2 || result.Version != FormatVersion {
			t.Errorf("unexpected result with key %q: %+v", key, result)
		}
	}

	data, _ := os.ReadFile(path)
	data[len(data)-1] ^= 0x01
	_ = os.WriteFile(path, data, 0600)

	result, err := m.VerifyBackup(path, "")
	if err != nil {
		t.Fatalf("VerifyBackup failed: %v", err)
	}
	if result.Valid || result.Error == "" {
		t.Errorf("tampered archive should not verify: %+v", result)
	}

	if _, err := m.VerifyBackup(filepath.Join(t.TempDir(), "missing"), ""); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestListAndPruneBackups(t *testing.T) {
	m, _ := newTestManager(t)

	list, err := m.ListBackups()
	if err != nil || len(list) != 0 {
		t.Fatalf("empty listing: %v %v", list, err)
	}

	var paths []string
	for i := 0; i < 3; i++ {
		p, err := m.CreateBackup("")
		if err != nil {
			t.Fatalf("CreateBackup failed: %v", err)
		}
		paths = append(paths, p)
	}
	if err := os.WriteFile(filepath.Join(m.Dir(), "junk"+FileExt), []byte("junk"), 0600); err != nil {
		t.Fatal(err)
	}

	list, err = m.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 archives, got %d", len(list))
	}
	if list[0].Path != paths[2] || list[2].Path != paths[0] {
		t.Errorf("listing should be newest first: %v", list)
	}

	removed, err := m.PruneBackups(1)
	if err != nil {
		t.Fatalf("PruneBackups failed: %v", err)
	}
	if len(removed) != 2 {
		t.Errorf("removed %d archives, want 2", len(removed))
	}
	if _, err := os.Stat(paths[2]); err != nil {
		t.Error("newest archive should be kept")
	}

	_, err = m.PruneBackups(-1)
	var ve *vault.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestParseArchive(t *testing.T) {
	key := make([]byte, crypto.KeyLength)
	header := &Header{Version: FormatVersion, VaultID: "v1", NoteCount: 1}
	data, err := encodeArchive(header, []byte("ciphertext"), key)
	if err != nil {
		t.Fatalf("encodeArchive failed: %v", err)
	}

	a, err := parseArchive(data)
	if err != nil {
		t.Fatalf("parseArchive failed: %v", err)
	}
	if a.header.VaultID != "v1" || string(a.ciphertext) != "ciphertext" {
		t.Errorf("unexpected archive: %+v", a.header)
	}
	if !verifyHMAC(a.signed, a.mac, key) {
		t.Error("HMAC should verify")
	}

	if _, err := parseArchive(append(data, 0)); !errors.Is(err, ErrTruncated) {
		t.Errorf("trailing bytes: expected ErrTruncated, got %v", err)
	}

	future := &Header{Version: FormatVersion + 1}
	data, _ = encodeArchive(future, []byte("x"), key)
	if _, err := parseArchive(data); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("expected ErrUnsupportedVersion, got %v", err)
	}
}
