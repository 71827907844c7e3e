package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	// DataKeyLength is the number of significant characters in a data key.
	DataKeyLength = 16

	// DataKeyAlphabet is the character set data keys are drawn from.
	DataKeyAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	dataKeyGroup = 4
)

// ErrInvalidDataKey indicates a data key with the wrong length or characters.
var ErrInvalidDataKey = errors.New("crypto: malformed data key")

// GenerateDataKey returns a new random recovery key in display form
// (XXXX-XXXX-XXXX-XXXX).
func GenerateDataKey() (string, error) {
	radix := big.NewInt(int64(len(DataKeyAlphabet)))
	var sb strings.Builder
	sb.Grow(DataKeyLength)
	for i := 0; i < DataKeyLength; i++ {
		n, err := rand.Int(rand.Reader, radix)
		if err != nil {
			return "", fmt.Errorf("crypto: failed to generate data key: %w", err)
		}
		sb.WriteByte(DataKeyAlphabet[n.Int64()])
	}
	return FormatDataKey(sb.String()), nil
}

// NormalizeDataKey maps user input onto the canonical 16-character form.
// Width variants are folded with NFKC, separators are dropped and letters
// are upper-cased.
func NormalizeDataKey(input string) (string, error) {
	folded := norm.NFKC.String(input)

	var sb strings.Builder
	for _, r := range folded {
		switch {
		case r == '-' || r == '_' || r == ' ' || r == '\t':
			continue
		case r >= 'a' && r <= 'z':
			sb.WriteRune(r - 'a' + 'A')
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			sb.WriteRune(r)
		default:
			return "", ErrInvalidDataKey
		}
	}

	key := sb.String()
	if len(key) != DataKeyLength {
		return "", ErrInvalidDataKey
	}
	return key, nil
}

// FormatDataKey groups a normalized key into blocks of four for display.
func FormatDataKey(key string) string {
	var parts []string
	for i := 0; i < len(key); i += dataKeyGroup {
		end := i + dataKeyGroup
		if end > len(key) {
			end = len(key)
		}
		parts = append(parts, key[i:end])
	}
	return strings.Join(parts, "-")
}
