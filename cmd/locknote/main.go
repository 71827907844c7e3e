package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/JackyZhang8/locknote/pkg/vault"
)

func main() {
	// Flags are defined by every file's init, so completions are wired last.
	registerCompletionFunctions()

	err := rootCmd.Execute()
	// PersistentPostRunE is skipped when a command fails.
	_ = closeVault()
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps the error categories to distinct process exit codes so that
// scripts can tell a wrong password from a damaged vault.
func exitCode(err error) int {
	var (
		authErr       *vault.AuthError
		validationErr *vault.ValidationError
		stateErr      *vault.StateError
		integrityErr  *vault.IntegrityError
		ioErr         *vault.IOError
	)
	switch {
	case errors.As(err, &authErr):
		return 2
	case errors.As(err, &validationErr):
		return 3
	case errors.As(err, &stateErr):
		return 4
	case errors.As(err, &integrityErr):
		return 5
	case errors.As(err, &ioErr):
		return 6
	default:
		return 1
	}
}
