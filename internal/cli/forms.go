package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/formforge/internal/form"
	"github.com/roach88/formforge/internal/schema"
	"github.com/roach88/formforge/internal/session"
)

// SaveOptions holds flags for the save command.
type SaveOptions struct {
	*RootOptions
	Name        string
	Description string
	File        string // session snapshot file (YAML or JSON)
	Session     string // stored session id
}

// FormSummary is the result of save and list.
type FormSummary struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Alias   string   `json:"alias"`
	Table   string   `json:"table"`
	Fields  []string `json:"fields,omitempty"` // aliases in order
	Actions int      `json:"actions"`
}

func (s FormSummary) String() string {
	return fmt.Sprintf("form %d %q (%s): %d fields [%s], %d actions, table %s",
		s.ID, s.Name, s.Alias, len(s.Fields), strings.Join(s.Fields, ", "), s.Actions, s.Table)
}

func summarize(f *form.Form) FormSummary {
	s := FormSummary{ID: f.ID, Name: f.Name, Alias: f.Alias, Table: schema.TableName(f.ID, f.Alias)}
	if f.Fields != nil {
		for _, fld := range f.Fields.All() {
			s.Fields = append(s.Fields, fld.Alias)
		}
	}
	if f.Actions != nil {
		s.Actions = f.Actions.Len()
	}
	return s
}

// NewSaveCommand creates the save command.
func NewSaveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SaveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "save [form-id]",
		Short: "Save a form from an editing session",
		Long: `Save a form definition from an editing session and synchronize its
results table.

Without a form id a new form is created and --name is required. Updating an
existing form requires --file or --session, since an empty session would
remove every field.

Example:
  formforge save --name "Contact us" --file contact.yaml
  formforge save 12 --session 12`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSave(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "form name (required for new forms)")
	cmd.Flags().StringVar(&opts.Description, "description", "", "form description")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "session snapshot file")
	cmd.Flags().StringVar(&opts.Session, "session", "", "stored editing session id")
	cmd.MarkFlagsMutuallyExclusive("file", "session")

	return cmd
}

func runSave(opts *SaveOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	var snap *session.Snapshot
	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read session file", err)
		}
		if snap, err = session.DecodeYAML(data); err != nil {
			return WrapExitError(ExitCommandError, "invalid session file", err)
		}
		formatter.VerboseLog("Read %d field(s), %d action(s) from %s", len(snap.Fields), len(snap.Actions), opts.File)
	}

	a, err := openApp(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	var f *form.Form
	if len(args) == 0 {
		if opts.Name == "" {
			return NewExitError(ExitCommandError, "--name is required when creating a form")
		}
		f = form.New(opts.Name)
	} else {
		id, err := parseFormID(args[0])
		if err != nil {
			return err
		}
		if snap == nil && opts.Session == "" {
			return NewExitError(ExitCommandError, "--file or --session is required when updating a form")
		}
		if f, err = a.builder.Load(ctx, id); err != nil {
			return WrapExitError(ExitFailure, "failed to load form", err)
		}
		if opts.Name != "" {
			f.Name = opts.Name
		}
	}
	if cmd.Flags().Changed("description") {
		f.Description = opts.Description
	}

	var saved *form.Form
	if opts.Session != "" {
		saved, err = a.builder.SaveWithSession(ctx, f, opts.Session)
	} else {
		saved, err = a.builder.Save(ctx, f, snap)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "save failed", err)
	}
	return formatter.Success(summarize(saved))
}

// FormList is the result of list.
type FormList []FormSummary

func (l FormList) String() string {
	if len(l) == 0 {
		return "no forms"
	}
	var b strings.Builder
	for i, s := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-6d %-24s %s", s.ID, s.Alias, s.Name)
	}
	return b.String()
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored forms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			forms, err := a.builder.List(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list forms", err)
			}
			out := make(FormList, 0, len(forms))
			for _, f := range forms {
				out = append(out, summarize(f))
			}
			return rootOpts.formatter(cmd).Success(out)
		},
	}
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <form-id>",
		Short: "Show a stored form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFormID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := a.builder.Load(cmd.Context(), id)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to load form", err)
			}
			formatter := rootOpts.formatter(cmd)
			if formatter.Format == "json" {
				return formatter.Success(f)
			}
			return formatter.Success(summarize(f))
		},
	}
}

// ColumnList is the result of columns.
type ColumnList struct {
	Table   string              `json:"table"`
	Columns []schema.ColumnSpec `json:"columns"`
}

func (c ColumnList) String() string {
	var b strings.Builder
	b.WriteString(c.Table)
	for _, col := range c.Columns {
		null := "NOT NULL"
		if col.Nullable {
			null = "NULL"
		}
		fmt.Fprintf(&b, "\n  %-32s %-8s %s", col.Name, col.Kind, null)
	}
	return b.String()
}

// NewColumnsCommand creates the columns command.
func NewColumnsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "columns <form-id>",
		Short: "Show the results columns a form requires",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFormID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := a.builder.Load(cmd.Context(), id)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to load form", err)
			}
			return rootOpts.formatter(cmd).Success(ColumnList{
				Table:   schema.TableName(f.ID, f.Alias),
				Columns: schema.ComputeColumns(f),
			})
		},
	}
}

// DeleteResult is the result of delete.
type DeleteResult struct {
	Deleted []int64 `json:"deleted"`
}

func (d DeleteResult) String() string {
	if len(d.Deleted) == 0 {
		return "nothing deleted"
	}
	ids := make([]string, len(d.Deleted))
	for i, id := range d.Deleted {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return "deleted forms " + strings.Join(ids, ", ")
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <form-id>...",
		Short: "Delete forms and drop their results tables",
		Long: `Delete forms and drop their results tables in one transaction.
Unknown ids are skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := parseFormID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}

			a, err := openApp(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			deleted, err := a.builder.DeleteMany(cmd.Context(), ids)
			if err != nil {
				return WrapExitError(ExitFailure, "delete failed", err)
			}
			if deleted == nil {
				deleted = []int64{}
			}
			return rootOpts.formatter(cmd).Success(DeleteResult{Deleted: deleted})
		},
	}
}

// RebuildResult is the result of rebuild.
type RebuildResult struct {
	Table   string `json:"table"`
	Dropped bool   `json:"dropped"`
}

func (r RebuildResult) String() string {
	return "rebuilt " + r.Table
}

// NewRebuildCommand creates the rebuild command.
func NewRebuildCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "rebuild <form-id>",
		Short: "Drop and recreate a form's results table",
		Long: `Drop and recreate a form's results table from its current fields.
Every stored submission of the form is lost; pass --yes to confirm.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFormID(args[0])
			if err != nil {
				return err
			}
			if !yes {
				return NewExitError(ExitCommandError, "rebuild deletes all submissions; pass --yes to confirm")
			}
			a, err := openApp(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.builder.Rebuild(cmd.Context(), id)
			if err != nil {
				return WrapExitError(ExitFailure, "rebuild failed", err)
			}
			return rootOpts.formatter(cmd).Success(RebuildResult{Table: res.Table, Dropped: res.Dropped})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm that stored submissions may be lost")
	return cmd
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <form-id>",
		Short: "Write a form's fields and actions as a session file",
		Long: `Write a stored form's fields and actions as a session snapshot that
save --file accepts. Edit the file and save it back to change the form.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFormID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := a.builder.Load(cmd.Context(), id)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to load form", err)
			}
			data, err := session.EncodeYAML(session.FromForm(f))
			if err != nil {
				return WrapExitError(ExitFailure, "failed to encode session", err)
			}

			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return WrapExitError(ExitCommandError, "failed to write session file", err)
			}
			rootOpts.formatter(cmd).VerboseLog("Wrote %s", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func parseFormID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid form id %q", arg))
	}
	return id, nil
}
