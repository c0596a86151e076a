package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"backoffice/internal/entity"
	"backoffice/internal/form"
	"backoffice/internal/schema"
	"backoffice/internal/store"
	"backoffice/internal/syncer"
	"backoffice/internal/table"
)

// ==== list ====

var (
	listQuery    string
	listSort     string
	listDir      string
	listPage     int
	listPageSize int
)

var listCmd = &cobra.Command{
	Use:   "list <kind>",
	Short: "List records with search, sorting and paging",
	Long: `List fetches the collection (or the local mirror when the remote is down)
and prints one page of the table.

Example:
  backoffice list startups
  backoffice list startups --q fintech --sort founded --dir desc
  backoffice list blog-posts --page 2 --page-size 20 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listQuery, "q", "", "search term (case-insensitive, over table columns)")
	listCmd.Flags().StringVar(&listSort, "sort", "", "column key to sort by")
	listCmd.Flags().StringVar(&listDir, "dir", "asc", "sort direction: asc or desc")
	listCmd.Flags().IntVar(&listPage, "page", 1, "page number")
	listCmd.Flags().IntVar(&listPageSize, "page-size", table.DefaultPageSize, "rows per page")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, st, err := openStore(ctx, args[0])
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := st.FetchAll(ctx); err != nil {
		return err
	}

	view := table.NewView(st.Schema().Columns, st.All(), nil)
	state := table.State{Term: listQuery, Page: listPage, PageSize: listPageSize}
	if listSort != "" {
		state.Sort = table.SortState{Key: listSort, Dir: table.ParseDirection(listDir)}
	}
	view.Apply(state)

	out := cmd.OutOrStdout()
	if flagJSON {
		return writeJSON(out, map[string]any{"items": orEmpty(view.Rows()), "page": view.Page(), "degraded": st.Degraded()})
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	cols := view.Columns()
	head := make([]string, 0, len(cols)+1)
	head = append(head, "ID")
	for _, c := range cols {
		head = append(head, strings.ToUpper(c.Label))
	}
	fmt.Fprintln(tw, strings.Join(head, "\t"))
	for _, e := range view.Rows() {
		row := make([]string, 0, len(cols)+1)
		id := e.ID.Value
		if e.ID.Provisional {
			id += "*"
		}
		row = append(row, id)
		for _, c := range cols {
			row = append(row, c.Display(e))
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	p := view.Page()
	fmt.Fprintf(out, "\npage %d/%d, %d-%d of %d\n", p.Current, p.TotalPages, p.StartItem, p.EndItem, p.Total)
	if st.Degraded() {
		fmt.Fprintln(out, "(remote unavailable: showing the local copy)")
	}
	return nil
}

// ==== add / edit ====

var addCmd = &cobra.Command{
	Use:   "add <kind> field=value...",
	Short: "Create a record through the form engine",
	Long: `Add validates the values against the schema and creates the record.
When the remote service is unreachable the record is kept locally with a
provisional id.

Multi-select values are comma-separated; blob fields take @path to upload a file.

Example:
  backoffice add startups name="Acme" industry=Fintech employees=12
  backoffice add startups name=Acme industry=AI logo=@./logo.png`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

var editCmd = &cobra.Command{
	Use:   "edit <kind> <id> field=value...",
	Short: "Update a record; unspecified fields keep their values",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runEdit,
}

func runAdd(cmd *cobra.Command, args []string) error {
	return submit(cmd, args[0], "", args[1:])
}

func runEdit(cmd *cobra.Command, args []string) error {
	return submit(cmd, args[0], args[1], args[2:])
}

func submit(cmd *cobra.Command, kind, id string, assignments []string) error {
	ctx := cmd.Context()
	a, st, err := openStore(ctx, kind)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := st.FetchAll(ctx); err != nil {
		return err
	}

	var existing *entity.Entity
	if id != "" {
		e, ok := st.ByID(id)
		if !ok {
			return &entity.NotFoundError{Kind: st.Kind(), ID: id}
		}
		existing = &e
	}

	f := form.New(st.Schema(), existing, a.formOptions()...)
	if err := bindAssignments(f, assignments); err != nil {
		return err
	}

	var env entity.Envelope
	err = f.Submit(ctx, func(ctx context.Context, attrs map[string]any) error {
		var err error
		if existing != nil {
			env, err = st.Edit(ctx, id, attrs)
		} else {
			env, err = st.Add(ctx, attrs)
		}
		return err
	})
	var ve *form.ValidationError
	if errors.As(err, &ve) {
		for _, fe := range ve.Errors {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", fe.Field, fe.Message)
		}
		return errors.New("validation failed")
	}
	if err != nil {
		return err
	}
	return printEnvelope(cmd.OutOrStdout(), st, env)
}

// bindAssignments разбирает field=value; @path у blob-поля: файл для загрузки.
func bindAssignments(f *form.Form, assignments []string) error {
	values := map[string]any{}
	for _, arg := range assignments {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return fmt.Errorf("invalid assignment %q (expected field=value)", arg)
		}
		fd, known := f.Schema().Field(name)
		switch {
		case known && fd.Kind == schema.KindBlob && strings.HasPrefix(value, "@"):
			path := strings.TrimPrefix(value, "@")
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			if err := f.AttachBlob(name, form.BlobHandle{Name: filepath.Base(path), Data: data}); err != nil {
				return err
			}
		case known && fd.Kind == schema.KindMultiSelect:
			var list []string
			for _, p := range strings.Split(value, ",") {
				if p = strings.TrimSpace(p); p != "" {
					list = append(list, p)
				}
			}
			values[name] = list
		default:
			values[name] = value
		}
	}
	if errs := f.Bind(values); len(errs) > 0 {
		names := make([]string, 0, len(errs))
		for _, fe := range errs {
			names = append(names, fe.Field)
		}
		return fmt.Errorf("unknown field(s): %s", strings.Join(names, ", "))
	}
	return nil
}

func printEnvelope(w io.Writer, st *store.Store, env entity.Envelope) error {
	if flagJSON {
		return writeJSON(w, map[string]any{"outcome": env.Outcome, "entity": env.Entity})
	}
	switch env.Outcome {
	case entity.LocalFallback:
		fmt.Fprintf(w, "%s #%s: %s\n", st.Schema().Labels.Singular, env.Entity.ID.Value, syncer.MsgSavedLocally)
	default:
		fmt.Fprintf(w, "%s #%s saved\n", st.Schema().Labels.Singular, env.Entity.ID.Value)
	}
	return nil
}

// ==== remove ====

var removeCmd = &cobra.Command{
	Use:     "remove <kind> <id>",
	Aliases: []string{"rm", "delete"},
	Short:   "Delete a record",
	Args:    cobra.ExactArgs(2),
	RunE:    runRemove,
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, st, err := openStore(ctx, args[0])
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := st.FetchAll(ctx); err != nil {
		return err
	}
	res, err := st.Remove(ctx, args[1])
	if flagJSON {
		if werr := writeJSON(cmd.OutOrStdout(), res); werr != nil {
			return werr
		}
	} else if res.Success {
		fmt.Fprintln(cmd.OutOrStdout(), res.Message)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", res.Message, err)
	}
	return nil
}

// ==== helpers ====

func openStore(ctx context.Context, kind string) (*app, *store.Store, error) {
	a, err := openApp(ctx)
	if err != nil {
		return nil, nil, err
	}
	st, err := a.store(kind)
	if err != nil {
		_ = a.Close()
		return nil, nil, err
	}
	return a, st, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orEmpty(items []entity.Entity) []entity.Entity {
	if items == nil {
		return []entity.Entity{}
	}
	return items
}
