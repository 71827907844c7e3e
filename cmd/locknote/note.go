package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JackyZhang8/locknote/pkg/notes"
)

const maxPageSize = 1000

// Note command flags
var (
	noteListNotebook string
	noteListTag      string
	noteListLimit    int
	noteListOffset   int
	noteJSON         bool

	noteNewNotebook string
	noteNewTags     []string

	noteEditTitle string
	noteEditStdin bool

	noteRmPurge bool
)

func init() {
	rootCmd.AddCommand(noteCmd)
	rootCmd.AddCommand(trashCmd)

	noteCmd.AddCommand(noteListCmd, noteShowCmd, noteNewCmd, noteEditCmd, noteRmCmd,
		noteRestoreCmd, notePinCmd, noteUnpinCmd, noteMoveCmd, noteTagCmd, noteUntagCmd,
		noteHistoryCmd, noteRevertCmd)
	trashCmd.AddCommand(trashListCmd, trashEmptyCmd)

	noteListCmd.Flags().StringVar(&noteListNotebook, "notebook", "", "Only notes in this notebook")
	noteListCmd.Flags().StringVar(&noteListTag, "tag", "", "Only notes with this tag")
	noteListCmd.Flags().IntVar(&noteListLimit, "limit", 0, "Maximum number of notes to show")
	noteListCmd.Flags().IntVar(&noteListOffset, "offset", 0, "Skip this many notes")
	noteListCmd.Flags().BoolVar(&noteJSON, "json", false, "Output in JSON format")
	noteShowCmd.Flags().BoolVar(&noteJSON, "json", false, "Output in JSON format")
	noteHistoryCmd.Flags().BoolVar(&noteJSON, "json", false, "Output in JSON format")
	trashListCmd.Flags().BoolVar(&noteJSON, "json", false, "Output in JSON format")

	noteNewCmd.Flags().StringVar(&noteNewNotebook, "notebook", "", "File the note into this notebook")
	noteNewCmd.Flags().StringArrayVar(&noteNewTags, "tag", nil, "Tag id to add (can be repeated)")

	noteEditCmd.Flags().StringVar(&noteEditTitle, "title", "", "New title")
	noteEditCmd.Flags().BoolVar(&noteEditStdin, "stdin", false, "Replace the content with standard input")

	noteRmCmd.Flags().BoolVar(&noteRmPurge, "purge", false, "Delete permanently instead of moving to trash")
}

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "Note operations",
}

var trashCmd = &cobra.Command{
	Use:   "trash",
	Short: "Trash operations",
}

var noteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if noteListNotebook != "" && noteListTag != "" {
			return fmt.Errorf("--notebook and --tag are mutually exclusive")
		}
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		var (
			list  []*notes.Note
			total int
			err   error
		)
		switch {
		case noteListNotebook != "":
			list, err = repo.ListNotesInNotebook(noteListNotebook)
			total = len(list)
		case noteListTag != "":
			list, err = repo.ListNotesWithTag(noteListTag)
			total = len(list)
		case noteListLimit == 0 && noteListOffset == 0:
			list, err = repo.ListNotes()
			total = len(list)
		default:
			limit := noteListLimit
			if limit == 0 {
				limit = maxPageSize
			}
			var page *notes.Page
			page, err = repo.ListNotesPage(limit, noteListOffset)
			if err == nil {
				list, total = page.Notes, page.Total
			}
		}
		if err != nil {
			return fmt.Errorf("failed to list notes: %w", err)
		}
		return printNotes(list, total)
	},
}

func printNotes(list []*notes.Note, total int) error {
	if noteJSON {
		return printJSON(list)
	}
	if len(list) == 0 {
		fmt.Println("No notes found")
		return nil
	}
	for _, n := range list {
		line := fmt.Sprintf("%s  %s  %s", n.ID, formatTime(n.UpdatedAt), n.Title)
		if n.Pinned {
			line += " " + highlight("[pinned]")
		}
		if len(n.Tags) > 0 {
			names := make([]string, 0, len(n.Tags))
			for _, t := range n.Tags {
				names = append(names, t.Name)
			}
			line += fmt.Sprintf(" [%s]", strings.Join(names, ","))
		}
		fmt.Println(line)
	}
	if total > len(list) {
		fmt.Printf("\nShowing %d of %d notes\n", len(list), total)
	}
	return nil
}

func printJSON(value any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

var noteShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		n, err := repo.GetNote(args[0])
		if err != nil {
			return err
		}
		if noteJSON {
			return printJSON(n)
		}
		fmt.Println(highlight(n.Title))
		if n.IsDeleted() {
			fmt.Println(warning("(in trash)"))
		}
		fmt.Println()
		fmt.Println(n.Content)
		return nil
	},
}

var noteNewCmd = &cobra.Command{
	Use:   "new [title]",
	Short: "Create a note from standard input",
	Long: `Create a note. The content is read from standard input.

Examples:
  echo "buy milk" | locknote note new "Groceries"
  locknote note new "Plan" --notebook <id> --tag <id> < plan.txt`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		var title string
		if len(args) == 1 {
			title = args[0]
		}
		content, err := readAll()
		if err != nil {
			return err
		}

		n, err := repo.CreateNote(title, content)
		if err != nil {
			return fmt.Errorf("failed to create note: %w", err)
		}
		if noteNewNotebook != "" {
			if err := repo.SetNoteNotebook(n.ID, noteNewNotebook); err != nil {
				return err
			}
		}
		for _, tagID := range noteNewTags {
			if err := repo.AddTagToNote(n.ID, tagID); err != nil {
				return err
			}
		}
		fmt.Printf("%s Note created: %s\n", success(), n.ID)
		return nil
	},
}

var noteEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change a note's title or content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if noteEditTitle == "" && !noteEditStdin {
			return fmt.Errorf("nothing to change (use --title or --stdin)")
		}
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		n, err := repo.GetNote(args[0])
		if err != nil {
			return err
		}
		title, content := n.Title, n.Content
		if noteEditTitle != "" {
			title = noteEditTitle
		}
		if noteEditStdin {
			if content, err = readAll(); err != nil {
				return err
			}
		}
		if _, err := repo.UpdateNote(n.ID, title, content); err != nil {
			return fmt.Errorf("failed to update note: %w", err)
		}
		fmt.Printf("%s Note updated\n", success())
		return nil
	},
}

var noteRmCmd = &cobra.Command{
	Use:   "rm <id>...",
	Short: "Move notes to the trash",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		if noteRmPurge {
			for _, id := range args {
				if err := repo.DeleteNote(id); err != nil {
					return err
				}
			}
			fmt.Printf("%s Deleted %d note(s) permanently\n", success(), len(args))
			return nil
		}
		if err := repo.BatchDeleteNotes(args); err != nil {
			return err
		}
		fmt.Printf("%s Moved %d note(s) to trash\n", success(), len(args))
		return nil
	},
}

var noteRestoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Restore a note from the trash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		if err := repo.RestoreNote(args[0]); err != nil {
			return err
		}
		fmt.Printf("%s Note restored\n", success())
		return nil
	},
}

func pinCommand(use, short string, pinned bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ensureUnlocked(); err != nil {
				return err
			}
			defer v.Lock()
			return repo.SetNotePinned(args[0], pinned)
		},
	}
}

var (
	notePinCmd   = pinCommand("pin", "Pin a note", true)
	noteUnpinCmd = pinCommand("unpin", "Unpin a note", false)
)

var noteMoveCmd = &cobra.Command{
	Use:   "move <id> [notebook-id]",
	Short: "File a note into a notebook, or out of any notebook",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		var notebookID string
		if len(args) == 2 {
			notebookID = args[1]
		}
		return repo.SetNoteNotebook(args[0], notebookID)
	},
}

var noteTagCmd = &cobra.Command{
	Use:   "tag <id> <tag-id>",
	Short: "Add a tag to a note",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()
		return repo.AddTagToNote(args[0], args[1])
	},
}

var noteUntagCmd = &cobra.Command{
	Use:   "untag <id> <tag-id>",
	Short: "Remove a tag from a note",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()
		return repo.RemoveTagFromNote(args[0], args[1])
	},
}

var noteHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "List earlier versions of a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		versions, err := repo.GetNoteHistory(args[0])
		if err != nil {
			return err
		}
		if noteJSON {
			return printJSON(versions)
		}
		if len(versions) == 0 {
			fmt.Println("No history")
			return nil
		}
		for _, ver := range versions {
			fmt.Printf("%s  %s  %s\n", ver.ID, formatTime(ver.CreatedAt), ver.Title)
		}
		return nil
	},
}

var noteRevertCmd = &cobra.Command{
	Use:   "revert <id> <version-id>",
	Short: "Restore a note to an earlier version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		if _, err := repo.RestoreNoteFromHistory(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("%s Note reverted\n", success())
		return nil
	},
}

var trashListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes in the trash",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		list, err := repo.ListDeletedNotes()
		if err != nil {
			return err
		}
		return printNotes(list, len(list))
	},
}

var trashEmptyCmd = &cobra.Command{
	Use:   "empty",
	Short: "Permanently delete every note in the trash",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		if !confirm("This permanently deletes every note in the trash.") {
			fmt.Println("Aborted")
			return nil
		}
		n, err := repo.EmptyTrash()
		if err != nil {
			return err
		}
		fmt.Printf("%s Deleted %d note(s)\n", success(), n)
		return nil
	},
}
