package main

import (
	"os"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate completion script for your shell",
	Long: `To load completions:

Bash:
  $ source <(locknote completion bash)

  # To load for each session (Linux):
  $ locknote completion bash > ~/.local/share/bash-completion/completions/locknote

Zsh:
  # Ensure completion is enabled:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  $ locknote completion zsh > ~/.zsh/completions/_locknote

Fish:
  $ locknote completion fish > ~/.config/fish/completions/locknote.fish

PowerShell:
  PS> locknote completion powershell >> $PROFILE

Dynamic completion (note ids):
  Set LOCKNOTE_COMPLETION_ENABLED=1 and LOCKNOTE_PASSWORD to complete note,
  notebook and tag ids. Completion never prompts for a password.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			return cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			return cmd.Root().GenFishCompletion(os.Stdout, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
