package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/JackyZhang8/locknote/pkg/backup"
	"github.com/JackyZhang8/locknote/pkg/crypto"
)

var (
	backupOutput  string
	backupKeep    int
	backupWithKey bool
	backupForce   bool
	backupJSON    bool
)

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupCreateCmd, backupRestoreCmd, backupImportCmd,
		backupVerifyCmd, backupListCmd, backupPruneCmd)

	backupCreateCmd.Flags().StringVarP(&backupOutput, "output", "o", "", "Output file or directory (default: backup directory)")
	backupRestoreCmd.Flags().BoolVarP(&backupForce, "force", "f", false, "Skip confirmation prompt")
	backupVerifyCmd.Flags().BoolVar(&backupWithKey, "data-key", false, "Verify with a data key instead of the vault password")
	backupVerifyCmd.Flags().BoolVar(&backupJSON, "json", false, "Output in JSON format")
	backupListCmd.Flags().BoolVar(&backupJSON, "json", false, "Output in JSON format")
	backupPruneCmd.Flags().IntVar(&backupKeep, "keep", 0, "Number of newest archives to keep (default: backup.keep from config)")
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Encrypted backup operations",
	Long: `Create and restore encrypted backups of the vault.

Archives are sealed with keys derived from the vault's master key and carry
both wrapped copies of it, so an archive can be opened with the password
that was current when it was written or with the data key.`,
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an encrypted backup",
	Long: `Create an encrypted backup of all active notes, notebooks, tags and smart views.

Examples:
  # Backup into the backup directory with a timestamped name
  locknote backup create

  # Backup to a file
  locknote backup create -o notes` + backup.FileExt,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		var path string
		err := withSpinner("Creating backup...", func() error {
			var err error
			path, err = mgr.CreateBackup(backupOutput)
			return err
		})
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		fmt.Printf("%s Backup created: %s\n", success(), path)

		if backupOutput == "" && cfg.Backup.Keep > 0 {
			removed, err := mgr.PruneBackups(cfg.Backup.Keep)
			if err != nil {
				return err
			}
			for _, p := range removed {
				fmt.Printf("  removed %s\n", p)
			}
		}
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <backup-file>",
	Short: "Replace the vault contents with a backup",
	Long: `Replace the vault contents with a backup.

On a vault that is set up, the archive must belong to this vault and every
note, notebook, tag and smart view is replaced. On a vault that has not
been set up yet, the vault is recreated from the archive and unlocks with
the password that was current when the archive was written.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("backup file not found: %s", path)
		}

		if !v.IsInitialized() {
			password, err := readSecret("Enter the archive's password: ")
			if err != nil {
				return err
			}
			defer crypto.SecureWipe(password)
			err = withSpinner("Restoring vault...", func() error {
				return mgr.RestoreVault(path, string(password))
			})
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}
			v.Lock()
			fmt.Printf("%s Vault restored to %s\n", success(), cfg.DataDir)
			return nil
		}

		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		if !backupForce && !confirm("This replaces every note in the vault with the backup.") {
			fmt.Println("Aborted")
			return nil
		}
		err := withSpinner("Restoring backup...", func() error {
			return mgr.RestoreBackup(path)
		})
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}
		fmt.Printf("%s Backup restored\n", success())
		return nil
	},
}

var backupImportCmd = &cobra.Command{
	Use:   "import <backup-file>",
	Short: "Merge notes from another vault's backup",
	Long: `Merge the notes of a backup from any vault into this one.

The archive is opened with its vault's data key. Imported notes, notebooks,
tags and smart views get new ids; nothing in this vault is changed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		dataKey, err := readSecret("Enter the archive's data key: ")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(dataKey)

		var n int
		err = withSpinner("Importing backup...", func() error {
			var err error
			n, err = mgr.ImportBackupWithKey(args[0], string(dataKey))
			return err
		})
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		fmt.Printf("%s Imported %d note(s)\n", success(), n)
		return nil
	},
}

var backupVerifyCmd = &cobra.Command{
	Use:   "verify <backup-file>",
	Short: "Verify a backup without changing the vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var dataKey string
		if backupWithKey {
			key, err := readSecret("Enter the archive's data key: ")
			if err != nil {
				return err
			}
			defer crypto.SecureWipe(key)
			dataKey = string(key)
		} else {
			if err := ensureUnlocked(); err != nil {
				return err
			}
			defer v.Lock()
		}

		result, err := mgr.VerifyBackup(args[0], dataKey)
		if err != nil {
			return err
		}
		if backupJSON {
			return printJSON(result)
		}
		if !result.Valid {
			fmt.Printf("%s Backup verification FAILED: %s\n", failure(), result.Error)
			return fmt.Errorf("backup integrity check failed")
		}
		fmt.Printf("%s Backup verified\n", success())
		fmt.Printf("  Created: %s\n", formatTime(result.CreatedAt))
		fmt.Printf("  Vault:   %s\n", result.VaultID)
		fmt.Printf("  Notes:   %d\n", result.NoteCount)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archives in the backup directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := mgr.ListBackups()
		if err != nil {
			return err
		}
		if backupJSON {
			return printJSON(list)
		}
		if len(list) == 0 {
			fmt.Printf("No backups in %s\n", mgr.Dir())
			return nil
		}
		for _, b := range list {
			fmt.Printf("%s  %8s  %4d notes  %s\n", formatTime(b.CreatedAt), humanize.Bytes(uint64(b.Size)), b.NoteCount, b.Path)
		}
		return nil
	},
}

var backupPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest archives",
	RunE: func(cmd *cobra.Command, args []string) error {
		keep := backupKeep
		if keep == 0 {
			keep = cfg.Backup.Keep
		}
		if keep <= 0 {
			return fmt.Errorf("--keep is required when backup.keep is not configured")
		}
		removed, err := mgr.PruneBackups(keep)
		if err != nil {
			return err
		}
		for _, p := range removed {
			fmt.Printf("  removed %s\n", p)
		}
		fmt.Printf("%s Removed %d archive(s)\n", success(), len(removed))
		return nil
	},
}
