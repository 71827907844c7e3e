package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JackyZhang8/locknote/pkg/crypto"
	"github.com/JackyZhang8/locknote/pkg/vault"
)

func init() {
	rootCmd.AddCommand(passwordCmd)
	passwordCmd.AddCommand(passwordChangeCmd, passwordResetCmd, passwordHintCmd)
}

// passwordCmd is the parent command for password operations.
var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Master password operations",
}

// passwordChangeCmd changes the master password.
var passwordChangeCmd = &cobra.Command{
	Use:   "change",
	Short: "Change the master password",
	Long: `Change the master password by re-wrapping the master key.

Notes are not re-encrypted and the data key stays valid. The change is
atomic: either fully succeeds or has no effect.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		current, err := readSecret("Enter current password: ")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(current)

		newPassword, hint, err := promptReplacement()
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(newPassword)

		err = withSpinner("Changing password...", func() error {
			return v.ChangePassword(string(current), string(newPassword), hint)
		})
		if err != nil {
			if errors.Is(err, vault.ErrWrongSecret) {
				return &vault.AuthError{Op: "password change", Err: errors.New("current password is incorrect")}
			}
			return fmt.Errorf("failed to change password: %w", err)
		}
		fmt.Printf("%s Password changed\n", success())
		return nil
	},
}

// passwordResetCmd sets a new password using the data key.
var passwordResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Set a new master password using the data key",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataKey, err := readSecret("Enter data key: ")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(dataKey)

		if !v.VerifyDataKey(string(dataKey)) {
			return &vault.AuthError{Op: "password reset", Err: vault.ErrWrongSecret}
		}

		newPassword, hint, err := promptReplacement()
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(newPassword)

		err = withSpinner("Resetting password...", func() error {
			return v.ResetPasswordWithDataKey(string(dataKey), string(newPassword), hint)
		})
		if err != nil {
			return fmt.Errorf("failed to reset password: %w", err)
		}
		v.Lock()
		fmt.Printf("%s Password reset\n", success())
		return nil
	},
}

var passwordHintCmd = &cobra.Command{
	Use:   "hint",
	Short: "Show the password hint",
	RunE: func(cmd *cobra.Command, args []string) error {
		hint, err := v.GetPasswordHint()
		if err != nil {
			return err
		}
		if hint == "" {
			fmt.Println("No hint set")
			return nil
		}
		fmt.Println(hint)
		return nil
	},
}

func promptReplacement() ([]byte, string, error) {
	newPassword, err := promptNewPassword("Enter new password: ", "Confirm new password: ")
	if err != nil {
		return nil, "", err
	}
	fmt.Print("New password hint (optional): ")
	hint, err := readLine()
	if err != nil {
		crypto.SecureWipe(newPassword)
		return nil, "", err
	}
	if err := reportStrength(string(newPassword), hint); err != nil {
		crypto.SecureWipe(newPassword)
		return nil, "", err
	}
	return newPassword, hint, nil
}
