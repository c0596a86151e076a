package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"backoffice/internal/tui"
)

var browsePageSize int

var browseCmd = &cobra.Command{
	Use:   "browse <kind>",
	Short: "Browse and edit records in the terminal",
	Long: `Browse opens a full-screen table: / to search, 1-9 to sort by column
(ascending, descending, off), ←/→ to page, e to edit, n to add, d to delete.`,
	Args: cobra.ExactArgs(1),
	RunE: runBrowse,
}

func init() {
	browseCmd.Flags().IntVar(&browsePageSize, "page-size", 15, "rows per page")
}

func runBrowse(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, st, err := openStore(ctx, args[0])
	if err != nil {
		return err
	}
	defer a.Close()

	m := tui.New(ctx, st,
		tui.WithNotices(a.notices),
		tui.WithPageSize(browsePageSize),
		tui.WithFormOptions(a.formOptions()...),
	)
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
