package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JackyZhang8/locknote/pkg/notes"
)

// Smart view flags
var (
	viewIcon     string
	viewTags     []string
	viewNotebook string
	viewDays     int
	viewPinned   bool
	viewSearch   string
)

func init() {
	rootCmd.AddCommand(viewCmd)
	viewCmd.AddCommand(viewCreateCmd, viewListCmd, viewShowCmd, viewDeleteCmd)

	f := viewCreateCmd.Flags()
	f.StringVar(&viewIcon, "icon", "", "View icon")
	f.StringArrayVar(&viewTags, "tag", nil, "Match notes with any of these tag ids (can be repeated)")
	f.StringVar(&viewNotebook, "notebook", "", "Match notes in this notebook")
	f.IntVar(&viewDays, "days", 0, "Match notes updated in the last N days")
	f.BoolVar(&viewPinned, "pinned", false, "Match pinned notes only")
	f.StringVar(&viewSearch, "search", "", "Saved search text")
	viewShowCmd.Flags().BoolVar(&noteJSON, "json", false, "Output in JSON format")
}

// viewCmd is the parent command for smart views.
var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Smart view operations",
	Long: `Smart views are saved filters over notes. A note matches when it is
active and satisfies every filter that is set.`,
}

var viewCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a smart view",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		filter := notes.Filter{TagIDs: viewTags, PinnedOnly: viewPinned}
		if viewNotebook != "" {
			filter.NotebookID = &viewNotebook
		}
		if viewDays > 0 {
			filter.DaysRecent = &viewDays
		}
		if viewSearch != "" {
			filter.SearchQuery = &viewSearch
		}

		sv, err := repo.CreateSmartView(args[0], viewIcon, filter)
		if err != nil {
			return fmt.Errorf("failed to create smart view: %w", err)
		}
		fmt.Printf("%s Smart view created: %s (%s)\n", success(), sv.Name, sv.ID)
		return nil
	},
}

var viewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List smart views",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		views, err := repo.ListSmartViews()
		if err != nil {
			return err
		}
		if len(views) == 0 {
			fmt.Println("No smart views")
			return nil
		}
		for _, sv := range views {
			fmt.Printf("%s  %s %s\n", sv.ID, sv.Icon, sv.Name)
		}
		return nil
	},
}

var viewShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "List the notes a smart view matches",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		list, err := repo.EvaluateSmartView(args[0])
		if err != nil {
			return err
		}
		return printNotes(list, len(list))
	},
}

var viewDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a smart view",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		if err := repo.DeleteSmartView(args[0]); err != nil {
			return err
		}
		fmt.Printf("%s Smart view deleted\n", success())
		return nil
	},
}
