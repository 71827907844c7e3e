package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JackyZhang8/locknote/internal/config"
	"github.com/JackyZhang8/locknote/internal/mcp"
	"github.com/JackyZhang8/locknote/pkg/notes"
	"github.com/JackyZhang8/locknote/pkg/vault"
)

const envCompletionEnabled = "LOCKNOTE_COMPLETION_ENABLED"

// isDynamicCompletionEnabled checks if dynamic completion is opt-in enabled.
// Dynamic completion is disabled by default to prevent vault unlock prompts
// during tab completion.
func isDynamicCompletionEnabled() bool {
	return os.Getenv(envCompletionEnabled) == "1"
}

// completionCandidate is one id offered to the shell with a description.
type completionCandidate struct {
	id, label string
}

// withCompletionRepo opens and unlocks the vault from the environment
// password. Completion runs without the persistent hooks and must never
// prompt, so anything missing yields no candidates.
func withCompletionRepo(fn func(r *notes.Repository) ([]completionCandidate, error)) ([]completionCandidate, error) {
	password := os.Getenv(mcp.EnvPassword)
	if password == "" {
		return nil, nil
	}
	c, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cv, err := vault.Open(c.DataDir, vault.WithKDFParams(c.KDFParams()))
	if err != nil {
		return nil, err
	}
	defer cv.Close()

	ok, err := cv.Unlock(password)
	if err != nil || !ok {
		return nil, err
	}
	return fn(notes.New(cv))
}

func complete(prefix string, fn func(r *notes.Repository) ([]completionCandidate, error)) ([]string, cobra.ShellCompDirective) {
	// Only provide dynamic completion if explicitly enabled
	if !isDynamicCompletionEnabled() {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	candidates, err := withCompletionRepo(fn)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}

	var out []string
	for _, c := range candidates {
		if strings.HasPrefix(c.id, prefix) {
			out = append(out, c.id+"\t"+c.label)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// completeNoteIDs completes the first argument with active note ids.
func completeNoteIDs(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return complete(toComplete, func(r *notes.Repository) ([]completionCandidate, error) {
		list, err := r.ListNotes()
		if err != nil {
			return nil, err
		}
		out := make([]completionCandidate, 0, len(list))
		for _, n := range list {
			out = append(out, completionCandidate{n.ID, n.Title})
		}
		return out, nil
	})
}

func completeNotebookIDs(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return complete(toComplete, func(r *notes.Repository) ([]completionCandidate, error) {
		list, err := r.ListNotebooks()
		if err != nil {
			return nil, err
		}
		out := make([]completionCandidate, 0, len(list))
		for _, nb := range list {
			out = append(out, completionCandidate{nb.ID, nb.Name})
		}
		return out, nil
	})
}

func completeTagIDs(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return complete(toComplete, func(r *notes.Repository) ([]completionCandidate, error) {
		tags, err := r.ListTags()
		if err != nil {
			return nil, err
		}
		out := make([]completionCandidate, 0, len(tags))
		for _, t := range tags {
			out = append(out, completionCandidate{t.ID, t.Name})
		}
		return out, nil
	})
}

// registerCompletionFunctions registers ValidArgsFunction for commands that support
// dynamic completion.
func registerCompletionFunctions() {
	for _, c := range []*cobra.Command{noteShowCmd, noteEditCmd, noteRmCmd, noteRestoreCmd,
		notePinCmd, noteUnpinCmd, noteMoveCmd, noteTagCmd, noteUntagCmd, noteHistoryCmd,
		noteRevertCmd, exportCmd} {
		c.ValidArgsFunction = completeNoteIDs
	}
	for _, c := range []*cobra.Command{notebookRenameCmd, notebookDeleteCmd, notebookPinCmd} {
		c.ValidArgsFunction = completeNotebookIDs
	}
	for _, c := range []*cobra.Command{tagUpdateCmd, tagDeleteCmd} {
		c.ValidArgsFunction = completeTagIDs
	}

	for _, c := range []*cobra.Command{noteListCmd, noteNewCmd, viewCreateCmd} {
		_ = c.RegisterFlagCompletionFunc("notebook", completeNotebookIDs)
		_ = c.RegisterFlagCompletionFunc("tag", completeTagIDs)
	}
}
