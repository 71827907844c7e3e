package security

import (
	"slices"
	"testing"
)

func TestPasswordStrength_String(t *testing.T) {
	tests := []struct {
		strength PasswordStrength
		want     string
	}{
		{PasswordWeak, "Weak"},
		{PasswordFair, "Fair"},
		{PasswordGood, "Good"},
		{PasswordStrong, "Strong"},
		{PasswordStrength(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.strength.String(); got != tt.want {
				t.Errorf("PasswordStrength.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAssess_Length(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  PasswordStrength
	}{
		{"empty", "", PasswordWeak},
		{"6_chars", "abc123", PasswordWeak},
		{"7_chars", "abc1234", PasswordWeak},
		{"8_chars", "abc12345", PasswordFair},
		{"13_chars", "1234567890abc", PasswordFair},
		{"14_chars", "1234567890abcd", PasswordGood},
		{"19_chars", "1234567890abcdefghi", PasswordGood},
		{"20_chars", "1234567890abcdefghij", PasswordStrong},
		// Counted in characters, not bytes.
		{"cjk_8_chars", "密码密码安全笔记", PasswordFair},
		{"cjk_7_chars", "密码密码安全笔", PasswordWeak},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Assess(tt.value, "").Strength
			if got != tt.want {
				t.Errorf("Assess(%q).Strength = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestAssess_Warnings(t *testing.T) {
	tests := []struct {
		name     string
		password string
		hint     string
		want     []string
	}{
		{"clean", "correct horse battery", "favourite comic", nil},
		{"short", "abc123", "", []string{WarnShort}},
		{"repeated", "aaaaaaaaaaaaaaaaaaaaaaa", "", []string{WarnRepeated}},
		{"hint reveals", "correct horse battery", "it is Correct Horse Battery", []string{WarnHintReveals}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Assess(tt.password, tt.hint)
			if !slices.Equal(a.Warnings, tt.want) {
				t.Errorf("Warnings = %v, want %v", a.Warnings, tt.want)
			}
			if len(tt.want) > 0 && a.Strength != PasswordWeak {
				t.Errorf("Strength = %v, want Weak", a.Strength)
			}
		})
	}
}
