package main

import (
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/JackyZhang8/locknote/pkg/security"
)

func success() string { return color.GreenString("✓") }
func failure() string { return color.RedString("✗") }

func warning(s string) string   { return color.YellowString(s) }
func highlight(s string) string { return color.CyanString(s) }

func strengthLabel(s security.PasswordStrength) string {
	switch s {
	case security.PasswordWeak:
		return color.RedString(s.String())
	case security.PasswordFair:
		return color.YellowString(s.String())
	default:
		return color.GreenString(s.String())
	}
}

// withSpinner runs fn behind a spinner on stderr. The spinner is skipped
// when stderr is not a terminal.
func withSpinner(message string, fn func() error) error {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return fn()
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + message
	if err := s.Color("cyan"); err != nil {
		log.Debug("failed to set spinner color")
	}
	s.Start()
	err := fn()
	if err != nil {
		s.FinalMSG = failure() + " " + strings.TrimSuffix(message, "...") + "\n"
	}
	s.Stop()
	return err
}
