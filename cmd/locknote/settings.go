package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd, settingsConfigCmd)

	f := settingsSetCmd.Flags()
	f.Int("auto-lock", 0, "Minutes of inactivity before locking (0 disables)")
	f.Bool("lock-on-minimize", false, "Lock when the window is minimized")
	f.Bool("lock-on-sleep", false, "Lock when the system sleeps")
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Vault preferences",
	Long: `Show and change the preferences stored encrypted in the vault.

Process configuration such as log level and KDF cost lives in config.yaml;
see 'locknote settings config'.`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show vault preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		s, err := v.Settings()
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(s)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change vault preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.NFlag() == 0 {
			return fmt.Errorf("nothing to change")
		}
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		s, err := v.Settings()
		if err != nil {
			return err
		}
		if flags.Changed("auto-lock") {
			s.AutoLockMinutes, _ = flags.GetInt("auto-lock")
		}
		if flags.Changed("lock-on-minimize") {
			s.LockOnMinimize, _ = flags.GetBool("lock-on-minimize")
		}
		if flags.Changed("lock-on-sleep") {
			s.LockOnSleep, _ = flags.GetBool("lock-on-sleep")
		}
		if err := v.UpdateSettings(s); err != nil {
			return err
		}
		fmt.Printf("%s Settings saved\n", success())
		return nil
	},
}

var settingsConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective process configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := cfg.Marshal()
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}
