package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var exportOutput string

func init() {
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file or directory (default: current directory)")
}

var importCmd = &cobra.Command{
	Use:   "import <file-or-dir>",
	Short: "Import Markdown files as notes",
	Long: `Import a Markdown file, or every Markdown file in a directory, as notes.

A leading "# " heading becomes the title; otherwise the file name does.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		info, err := os.Stat(args[0])
		if err != nil {
			return fmt.Errorf("cannot access %s: %w", args[0], err)
		}
		if !info.IsDir() {
			n, err := mgr.ImportMarkdown(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s Imported %q (%s)\n", success(), n.Title, n.ID)
			return nil
		}

		imported, err := mgr.ImportMarkdownDir(args[0])
		for _, n := range imported {
			fmt.Printf("  %s %s\n", success(), n.Title)
		}
		if err != nil {
			return fmt.Errorf("import stopped after %d note(s): %w", len(imported), err)
		}
		fmt.Printf("%s Imported %d note(s)\n", success(), len(imported))
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <note-id>",
	Short: "Export a note as a Markdown file",
	Long: `Export a note as a Markdown file. The file is written unencrypted.

Examples:
  locknote export <id>
  locknote export <id> -o ~/Desktop
  locknote export <id> -o plan.md`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		path, err := mgr.ExportNoteAsMarkdown(args[0], exportOutput)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, warning("Warning: the exported file is not encrypted."))
		fmt.Printf("%s Exported to %s\n", success(), path)
		return nil
	},
}
