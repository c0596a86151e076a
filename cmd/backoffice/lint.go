package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"backoffice/internal/schema"
)

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Check entity schemas for contradictions",
	Long: `Lint loads the built-in schemas plus --schema-dir and --catalogs-dir
and reports contradictions (unknown featured field, select without options, ...).
Exits non-zero when issues are found.`,
	Args: cobra.NoArgs,
	RunE: runLint,
}

func runLint(cmd *cobra.Command, args []string) error {
	reg, err := schema.Load(cfg.Schema.Dir, cfg.Schema.Catalogs)
	if err != nil {
		return err
	}
	issues := reg.Lint()
	out := cmd.OutOrStdout()

	if flagJSON {
		if issues == nil {
			issues = []schema.Issue{}
		}
		if err := writeJSON(out, map[string]any{"ok": len(issues) == 0, "issues": issues, "entities": len(reg.Kinds())}); err != nil {
			return err
		}
	} else if len(issues) == 0 {
		fmt.Fprintf(out, "ok: %d entities, %d catalogs\n", len(reg.Kinds()), len(reg.Catalogs()))
	} else {
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ENTITY\tFIELD\tCODE\tMESSAGE")
		for _, is := range issues {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", is.Kind, is.Field, is.Code, is.Message)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(issues) > 0 {
		return fmt.Errorf("%d schema issue(s)", len(issues))
	}
	return nil
}
