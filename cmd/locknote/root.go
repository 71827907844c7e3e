// Package main provides the locknote CLI application.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/JackyZhang8/locknote/internal/config"
	"github.com/JackyZhang8/locknote/internal/logging"
	"github.com/JackyZhang8/locknote/pkg/audit"
	"github.com/JackyZhang8/locknote/pkg/backup"
	"github.com/JackyZhang8/locknote/pkg/crypto"
	"github.com/JackyZhang8/locknote/pkg/notes"
	"github.com/JackyZhang8/locknote/pkg/security"
	"github.com/JackyZhang8/locknote/pkg/vault"
)

var (
	configPath string
	dataDir    string

	cfg  *config.Config
	log  *zap.Logger
	v    *vault.Vault
	repo *notes.Repository
	mgr  *backup.Manager

	// stdin is swapped out by tests.
	stdin io.Reader = os.Stdin
)

var rootCmd = &cobra.Command{
	Use:           "locknote",
	Short:         "locknote is an encrypted, local-first note vault",
	Long:          `Keep notes in an encrypted vault on your own disk.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	// PersistentPreRunE opens the vault for every command except completion.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "completion" || cmd.Name() == "mcp-server" {
			return loadConfig()
		}
		if err := loadConfig(); err != nil {
			return err
		}
		return openVault()
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeVault()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <data-dir>/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Vault directory (default: ~/.locknote)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(checkCmd)
}

func loadConfig() error {
	if dataDir != "" {
		os.Setenv(config.EnvDataDir, dataDir)
	}
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	log, err = logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	return nil
}

func openVault() error {
	auditLog := audit.NewLogger(filepath.Join(cfg.DataDir, audit.DirName))
	var err error
	v, err = vault.Open(cfg.DataDir,
		vault.WithKDFParams(cfg.KDFParams()),
		vault.WithLogger(log),
		vault.WithAuditLogger(auditLog, audit.SourceCLI),
	)
	if err != nil {
		return err
	}
	repo = notes.New(v,
		notes.WithLogger(log),
		notes.WithMaxVersions(cfg.History.MaxVersions),
		notes.WithMinVersionInterval(cfg.History.MinInterval),
	)
	mgr = backup.NewManager(repo, backup.WithDir(cfg.BackupDir()), backup.WithLogger(log))
	return nil
}

func closeVault() error {
	if v == nil {
		return nil
	}
	err := v.Close()
	v, repo, mgr = nil, nil, nil
	if log != nil {
		_ = log.Sync()
	}
	return err
}

// initCmd sets up a new vault
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Set up a new vault",
	Long: `Set up a new vault with a master password.

The command prints a data key once. It is the only way to reset a forgotten
password and to import backups into another vault. Store it somewhere safe.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if v.IsInitialized() {
			return fmt.Errorf("vault already set up at %s", cfg.DataDir)
		}

		password, err := promptNewPassword("Enter master password: ", "Confirm master password: ")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(password)

		fmt.Print("Password hint (optional, stored unencrypted): ")
		hint, err := readLine()
		if err != nil {
			return err
		}

		if err := reportStrength(string(password), hint); err != nil {
			return err
		}

		var dataKey string
		err = withSpinner("Deriving keys...", func() error {
			var err error
			dataKey, err = v.Setup(string(password), hint)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to set up vault: %w", err)
		}
		v.Lock()

		fmt.Printf("%s Vault set up at %s\n", success(), cfg.DataDir)
		fmt.Println()
		fmt.Println("Your data key:")
		fmt.Println()
		fmt.Println("  " + highlight(dataKey))
		fmt.Println()
		fmt.Println(warning("Write it down. It is shown only once and cannot be recovered."))
		fmt.Println()

		if confirmDataKey(v.VerifyDataKey) {
			fmt.Printf("%s Data key confirmed\n", success())
		} else {
			fmt.Println(warning("Data key not confirmed. Without it a forgotten password cannot be reset."))
		}
		return nil
	},
}

// dataKeyAttempts bounds the confirmation prompt after init.
const dataKeyAttempts = 3

// confirmDataKey asks the user to type the data key back until check
// accepts it. An empty answer skips the confirmation.
func confirmDataKey(check func(string) bool) bool {
	for i := 0; i < dataKeyAttempts; i++ {
		fmt.Print("Re-enter the data key to confirm (empty to skip): ")
		entered, err := readLine()
		if err != nil || strings.TrimSpace(entered) == "" {
			return false
		}
		if check(entered) {
			return true
		}
		fmt.Printf("%s That does not match the data key\n", failure())
	}
	return false
}

// statusCmd reports where the vault lives and whether it is set up.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vault status",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Vault:  %s\n", cfg.DataDir)
		if cfg.Path != "" {
			fmt.Printf("Config: %s\n", cfg.Path)
		}
		if !v.IsInitialized() {
			fmt.Println("State:  not set up (run 'locknote init')")
			return nil
		}
		fmt.Println("State:  set up")
		version, err := v.SchemaVersion()
		if err != nil {
			return err
		}
		fmt.Printf("Schema: %d\n", version)
		return nil
	},
}

// checkCmd runs the vault integrity check.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify every encrypted record in the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		var report *vault.IntegrityReport
		err := withSpinner("Checking vault...", func() error {
			var err error
			report, err = v.CheckIntegrity()
			return err
		})
		if err != nil {
			return err
		}

		fmt.Printf("Database: %s\n", report.DatabaseMessage)
		fmt.Printf("Records checked: %d\n", report.RecordsChecked)
		if report.OK() {
			fmt.Printf("%s Vault verified\n", success())
			return nil
		}
		for _, f := range report.Failures {
			fmt.Printf("  %s %s\n", failure(), f.Record)
		}
		return &vault.IntegrityError{Op: "check", Err: vault.ErrTampered}
	},
}

// ensureUnlocked ensures the vault is unlocked.
// If locked, prompts for password and attempts to unlock.
func ensureUnlocked() error {
	if v.IsUnlocked() {
		return nil
	}
	if !v.IsInitialized() {
		return errors.New("vault is not set up (run 'locknote init')")
	}

	password, err := readSecret("Enter master password: ")
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(password)

	ok, err := v.Unlock(string(password))
	if err != nil {
		return fmt.Errorf("failed to unlock vault: %w", err)
	}
	if !ok {
		if hint, _ := v.GetPasswordHint(); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		return &vault.AuthError{Op: "unlock", Err: vault.ErrWrongSecret}
	}
	return nil
}

var stdinReader *bufio.Reader

func reader() *bufio.Reader {
	if stdinReader == nil {
		stdinReader = bufio.NewReader(stdin)
	}
	return stdinReader
}

// readSecret reads a password without echo when stdin is a terminal and a
// plain line otherwise.
func readSecret(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Println()
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		return pw, nil
	}
	line, err := readLine()
	if err != nil {
		return nil, err
	}
	return []byte(line), nil
}

// readLine reads a single line from stdin, trimming trailing newline
func readLine() (string, error) {
	line, err := reader().ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	value := strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(value, "\r"), nil
}

// readAll reads note content from stdin until EOF.
func readAll() (string, error) {
	data, err := io.ReadAll(reader())
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return string(data), nil
}

func promptNewPassword(prompt, confirm string) ([]byte, error) {
	password1, err := readSecret(prompt)
	if err != nil {
		return nil, err
	}
	password2, err := readSecret(confirm)
	defer crypto.SecureWipe(password2)
	if err != nil {
		crypto.SecureWipe(password1)
		return nil, err
	}
	if string(password1) != string(password2) {
		crypto.SecureWipe(password1)
		return nil, errors.New("passwords do not match")
	}
	return password1, nil
}

// reportStrength prints the strength of a new password. Too-short
// passwords are rejected; everything else is advisory.
func reportStrength(password, hint string) error {
	if len([]rune(password)) < vault.MinPasswordLength {
		return &vault.ValidationError{Op: "password", Err: vault.ErrPasswordTooShort}
	}
	a := security.Assess(password, hint)
	fmt.Printf("Password strength: %s\n", strengthLabel(a.Strength))
	for _, w := range a.Warnings {
		fmt.Println(warning("Warning: " + w))
	}
	return nil
}

func confirm(prompt string) bool {
	fmt.Print(prompt + " [y/N]: ")
	response, err := readLine()
	if err != nil {
		return false
	}
	response = strings.TrimSpace(response)
	return response == "y" || response == "Y"
}

// parseDuration parses a duration string like "30d", "1y", "24h"
func parseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("duration too short: %s", s)
	}

	unit := s[len(s)-1]
	valueStr := s[:len(s)-1]

	var value int
	if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
		return time.ParseDuration(s)
	}

	switch unit {
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(value) * 7 * 24 * time.Hour, nil
	case 'y':
		return time.Duration(value) * 365 * 24 * time.Hour, nil
	default:
		return time.ParseDuration(s)
	}
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}
