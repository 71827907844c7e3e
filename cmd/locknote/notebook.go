package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Notebook and tag command flags
var (
	notebookIcon string
	tagColor     string
	listJSON     bool
)

func init() {
	rootCmd.AddCommand(notebookCmd)
	rootCmd.AddCommand(tagCmd)

	notebookCmd.AddCommand(notebookCreateCmd, notebookListCmd, notebookRenameCmd,
		notebookDeleteCmd, notebookPinCmd, notebookReorderCmd)
	tagCmd.AddCommand(tagCreateCmd, tagListCmd, tagUpdateCmd, tagDeleteCmd)

	notebookCreateCmd.Flags().StringVar(&notebookIcon, "icon", "", "Notebook icon")
	notebookRenameCmd.Flags().StringVar(&notebookIcon, "icon", "", "Notebook icon")
	notebookListCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	notebookPinCmd.Flags().Bool("off", false, "Unpin instead")

	tagCreateCmd.Flags().StringVar(&tagColor, "color", "", "Tag color (e.g. #10b981)")
	tagUpdateCmd.Flags().StringVar(&tagColor, "color", "", "Tag color (e.g. #10b981)")
	tagListCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
}

// notebookCmd is the parent command for notebook operations.
var notebookCmd = &cobra.Command{
	Use:   "notebook",
	Short: "Notebook operations",
	Long: `Manage notebooks for organizing notes.

A note belongs to at most one notebook. Deleting a notebook keeps its notes
and leaves them uncategorized.`,
}

var notebookCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new notebook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		nb, err := repo.CreateNotebook(args[0], notebookIcon)
		if err != nil {
			return fmt.Errorf("failed to create notebook: %w", err)
		}
		fmt.Printf("%s Notebook created: %s (%s)\n", success(), nb.Name, nb.ID)
		return nil
	},
}

var notebookListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notebooks",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		list, err := repo.ListNotebooks()
		if err != nil {
			return err
		}
		if listJSON {
			return printJSON(list)
		}
		if len(list) == 0 {
			fmt.Println("No notebooks")
			return nil
		}
		for _, nb := range list {
			line := fmt.Sprintf("%s  %s %s", nb.ID, nb.Icon, nb.Name)
			if nb.Pinned {
				line += " " + highlight("[pinned]")
			}
			fmt.Println(line)
		}
		return nil
	},
}

var notebookRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a notebook",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		if _, err := repo.UpdateNotebook(args[0], args[1], notebookIcon); err != nil {
			return err
		}
		fmt.Printf("%s Notebook renamed\n", success())
		return nil
	},
}

var notebookDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a notebook and keep its notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		if err := repo.DeleteNotebook(args[0]); err != nil {
			return err
		}
		fmt.Printf("%s Notebook deleted\n", success())
		return nil
	},
}

var notebookPinCmd = &cobra.Command{
	Use:   "pin <id>",
	Short: "Pin a notebook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		off, _ := cmd.Flags().GetBool("off")
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()
		return repo.SetNotebookPinned(args[0], !off)
	},
}

var notebookReorderCmd = &cobra.Command{
	Use:   "reorder <id>...",
	Short: "Set the display order of notebooks",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()
		return repo.ReorderNotebooks(args)
	},
}

// tagCmd is the parent command for tag operations.
var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Tag operations",
}

var tagCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		t, err := repo.CreateTag(args[0], tagColor)
		if err != nil {
			return fmt.Errorf("failed to create tag: %w", err)
		}
		fmt.Printf("%s Tag created: %s (%s)\n", success(), t.Name, t.ID)
		return nil
	},
}

var tagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tags",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		tags, err := repo.ListTags()
		if err != nil {
			return err
		}
		if listJSON {
			return printJSON(tags)
		}
		if len(tags) == 0 {
			fmt.Println("No tags")
			return nil
		}
		for _, t := range tags {
			fmt.Printf("%s  %s  %s\n", t.ID, t.Color, t.Name)
		}
		return nil
	},
}

var tagUpdateCmd = &cobra.Command{
	Use:   "update <id> <name>",
	Short: "Rename or recolor a tag",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		if _, err := repo.UpdateTag(args[0], args[1], tagColor); err != nil {
			return err
		}
		fmt.Printf("%s Tag updated\n", success())
		return nil
	},
}

var tagDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a tag and remove it from every note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		if err := repo.DeleteTag(args[0]); err != nil {
			return err
		}
		fmt.Printf("%s Tag deleted\n", success())
		return nil
	},
}
