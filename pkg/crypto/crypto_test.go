package crypto

import (
	"bytes"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
)

// testKDF keeps Argon2id cheap in tests.
var testKDF = KDFParams{Memory: 8 * 1024, Iterations: 1, Parallelism: 1}

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key
}

// TestDeriveKey tests the Argon2id key derivation function
func TestDeriveKey(t *testing.T) {
	password := []byte("test-password-123")
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}
	if len(salt) != SaltLength {
		t.Fatalf("GenerateSalt() length = %d, want %d", len(salt), SaltLength)
	}

	key := DeriveKey(password, salt, testKDF)
	if len(key) != KeyLength {
		t.Errorf("DeriveKey() returned key of length %d, want %d", len(key), KeyLength)
	}

	if !bytes.Equal(key, DeriveKey(password, salt, testKDF)) {
		t.Error("DeriveKey() with same inputs should produce identical keys")
	}

	if bytes.Equal(key, DeriveKey([]byte("different-password"), salt, testKDF)) {
		t.Error("DeriveKey() with different password should produce different key")
	}

	otherSalt, _ := GenerateSalt()
	if bytes.Equal(key, DeriveKey(password, otherSalt, testKDF)) {
		t.Error("DeriveKey() with different salt should produce different key")
	}

	heavier := testKDF
	heavier.Iterations = 2
	if bytes.Equal(key, DeriveKey(password, salt, heavier)) {
		t.Error("DeriveKey() with different params should produce different key")
	}
}

// TestDefaultKDFParams verifies Argon2id defaults match OWASP recommendations
func TestDefaultKDFParams(t *testing.T) {
	if DefaultKDFParams.Memory != 64*1024 {
		t.Errorf("Memory = %d, want %d (64MB)", DefaultKDFParams.Memory, 64*1024)
	}
	if DefaultKDFParams.Iterations != 3 {
		t.Errorf("Iterations = %d, want 3", DefaultKDFParams.Iterations)
	}
	if DefaultKDFParams.Parallelism != 4 {
		t.Errorf("Parallelism = %d, want 4", DefaultKDFParams.Parallelism)
	}
	if err := DefaultKDFParams.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestKDFParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  KDFParams
		wantErr bool
	}{
		{"defaults", DefaultKDFParams, false},
		{"test params", testKDF, false},
		{"zero memory", KDFParams{Memory: 0, Iterations: 1, Parallelism: 1}, true},
		{"zero iterations", KDFParams{Memory: 8 * 1024, Iterations: 0, Parallelism: 1}, true},
		{"zero parallelism", KDFParams{Memory: 8 * 1024, Iterations: 1, Parallelism: 0}, true},
		{"huge memory", KDFParams{Memory: 8 * 1024 * 1024, Iterations: 1, Parallelism: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidKDFParams) {
				t.Errorf("Validate() error = %v, want ErrInvalidKDFParams", err)
			}
		})
	}
}

func TestSealOpen(t *testing.T) {
	key := randomKey(t)
	aad := []byte("notes/abc")

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"short", []byte("hello")},
		{"unicode", []byte("日本語のメモ 📓")},
		{"large", bytes.Repeat([]byte("x"), 1<<16)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := Seal(key, tt.plaintext, aad)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			if len(sealed) != NonceLength+len(tt.plaintext)+16 {
				t.Errorf("Seal() length = %d, want %d", len(sealed), NonceLength+len(tt.plaintext)+16)
			}
			got, err := Open(key, sealed, aad)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if !bytes.Equal(got, tt.plaintext) {
				t.Error("Open() did not return the original plaintext")
			}
		})
	}
}

func TestSealInvalidKeyLength(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33} {
		if _, err := Seal(make([]byte, n), []byte("x"), nil); !errors.Is(err, ErrInvalidKeyLength) {
			t.Errorf("Seal() with %d-byte key error = %v, want ErrInvalidKeyLength", n, err)
		}
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	sealed, err := Seal(randomKey(t), []byte("secret"), nil)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if _, err := Open(randomKey(t), sealed, nil); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("Open() error = %v, want ErrDecryptionFailed", err)
	}
}

func TestOpenRejectsWrongAAD(t *testing.T) {
	key := randomKey(t)
	sealed, err := Seal(key, []byte("secret"), []byte("notes/a"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if _, err := Open(key, sealed, []byte("notes/b")); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("Open() error = %v, want ErrDecryptionFailed", err)
	}
}

func TestOpenTamperedCiphertext(t *testing.T) {
	key := randomKey(t)
	sealed, err := Seal(key, []byte("secret data"), nil)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	for i := range sealed {
		tampered := append([]byte(nil), sealed...)
		tampered[i] ^= 0x01
		if _, err := Open(key, tampered, nil); !errors.Is(err, ErrDecryptionFailed) {
			t.Fatalf("Open() with byte %d flipped error = %v, want ErrDecryptionFailed", i, err)
		}
	}
}

func TestOpenTooShort(t *testing.T) {
	if _, err := Open(randomKey(t), make([]byte, NonceLength+15), nil); !errors.Is(err, ErrCiphertextTooShort) {
		t.Errorf("Open() error = %v, want ErrCiphertextTooShort", err)
	}
}

func TestSealProducesUniqueNonce(t *testing.T) {
	key := randomKey(t)
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		sealed, err := Seal(key, []byte("same"), nil)
		if err != nil {
			t.Fatalf("Seal() error = %v", err)
		}
		nonce := string(sealed[:NonceLength])
		if seen[nonce] {
			t.Fatalf("nonce reused after %d seals", i)
		}
		seen[nonce] = true
	}
}

func TestDeriveSubKey(t *testing.T) {
	secret := randomKey(t)

	enc, err := DeriveSubKey(secret, "enc")
	if err != nil {
		t.Fatalf("DeriveSubKey() error = %v", err)
	}
	mac, err := DeriveSubKey(secret, "mac")
	if err != nil {
		t.Fatalf("DeriveSubKey() error = %v", err)
	}
	if len(enc) != KeyLength {
		t.Errorf("DeriveSubKey() length = %d, want %d", len(enc), KeyLength)
	}
	if bytes.Equal(enc, mac) {
		t.Error("different info strings should produce different keys")
	}
	again, _ := DeriveSubKey(secret, "enc")
	if !bytes.Equal(enc, again) {
		t.Error("DeriveSubKey() should be deterministic")
	}
}

// TestSecureWipe tests secure memory wiping
func TestSecureWipe(t *testing.T) {
	data := []byte("sensitive data that should be wiped")
	SecureWipe(data)
	for i, b := range data {
		if b != 0 {
			t.Errorf("SecureWipe() byte at index %d = %d, want 0", i, b)
		}
	}
	SecureWipe(nil)
	SecureWipe([]byte{})
}

func TestGenerateDataKey(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		display, err := GenerateDataKey()
		if err != nil {
			t.Fatalf("GenerateDataKey() error = %v", err)
		}
		if len(display) != DataKeyLength+3 || strings.Count(display, "-") != 3 {
			t.Fatalf("GenerateDataKey() = %q, want XXXX-XXXX-XXXX-XXXX", display)
		}
		key, err := NormalizeDataKey(display)
		if err != nil {
			t.Fatalf("NormalizeDataKey(%q) error = %v", display, err)
		}
		for _, r := range key {
			if !strings.ContainsRune(DataKeyAlphabet, r) {
				t.Fatalf("data key %q contains %q outside the alphabet", key, r)
			}
		}
		if seen[key] {
			t.Fatalf("duplicate data key %q", key)
		}
		seen[key] = true
	}
}

func TestNormalizeDataKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"display form", "ABCD-EFGH-1234-5678", "ABCDEFGH12345678", false},
		{"lower case", "abcd-efgh-1234-5678", "ABCDEFGH12345678", false},
		{"no separators", "ABCDEFGH12345678", "ABCDEFGH12345678", false},
		{"spaces and underscores", " ABCD EFGH_1234 5678 ", "ABCDEFGH12345678", false},
		{"fullwidth", "ＡＢＣＤ－ＥＦＧＨ－１２３４－５６７８", "ABCDEFGH12345678", false},
		{"too short", "ABCD-EFGH-1234", "", true},
		{"too long", "ABCD-EFGH-1234-5678-9", "", true},
		{"invalid char", "ABCD-EFGH-1234-567!", "", true},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDataKey(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeDataKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidDataKey) {
				t.Errorf("NormalizeDataKey() error = %v, want ErrInvalidDataKey", err)
			}
			if got != tt.want {
				t.Errorf("NormalizeDataKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatDataKey(t *testing.T) {
	if got := FormatDataKey("ABCDEFGH12345678"); got != "ABCD-EFGH-1234-5678" {
		t.Errorf("FormatDataKey() = %q", got)
	}
}
