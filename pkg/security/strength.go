// Package security rates vault passwords. Ratings are advisory: any
// password the vault accepts can be used regardless of its rating.
package security

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// PasswordStrength represents the strength level of a password.
type PasswordStrength int

const (
	// PasswordWeak is shorter than 8 characters or trivially guessable.
	PasswordWeak PasswordStrength = iota
	PasswordFair
	PasswordGood
	PasswordStrong
)

// String returns a human-readable representation of the password strength.
func (s PasswordStrength) String() string {
	switch s {
	case PasswordWeak:
		return "Weak"
	case PasswordFair:
		return "Fair"
	case PasswordGood:
		return "Good"
	case PasswordStrong:
		return "Strong"
	default:
		return "Unknown"
	}
}

// Warnings reported by Assess.
const (
	WarnShort       = "password is shorter than 8 characters"
	WarnRepeated    = "password repeats a single character"
	WarnHintReveals = "hint contains the password"
)

// Assessment is the result of Assess.
type Assessment struct {
	Strength PasswordStrength `json:"strength"`
	Warnings []string         `json:"warnings,omitempty"`
}

// Assess rates a new vault password and checks it against its hint.
// Length is the primary factor per NIST SP 800-63B; composition rules are
// not applied. Length is counted in characters after NFC normalization.
func Assess(password, hint string) Assessment {
	password = norm.NFC.String(password)
	a := Assessment{Strength: calculatePasswordStrength(password)}

	if utf8.RuneCountInString(password) < 8 {
		a.Warnings = append(a.Warnings, WarnShort)
	}
	if isRepeated(password) {
		a.Strength = PasswordWeak
		a.Warnings = append(a.Warnings, WarnRepeated)
	}
	if password != "" && strings.Contains(strings.ToLower(norm.NFC.String(hint)), strings.ToLower(password)) {
		a.Strength = PasswordWeak
		a.Warnings = append(a.Warnings, WarnHintReveals)
	}
	return a
}

func calculatePasswordStrength(value string) PasswordStrength {
	length := utf8.RuneCountInString(value)

	switch {
	case length >= 20:
		return PasswordStrong
	case length >= 14:
		return PasswordGood
	case length >= 8:
		return PasswordFair
	default:
		return PasswordWeak
	}
}

func isRepeated(s string) bool {
	first, size := utf8.DecodeRuneInString(s)
	if size == 0 || len(s) == size {
		return false
	}
	return strings.Trim(s, string(first)) == ""
}
