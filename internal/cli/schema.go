package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Blockzilla101/sqlite-orm/internal/codec"
	"github.com/Blockzilla101/sqlite-orm/internal/declfile"
	"github.com/Blockzilla101/sqlite-orm/internal/reconcile"
	"github.com/Blockzilla101/sqlite-orm/internal/sqlbuild"
	"github.com/Blockzilla101/sqlite-orm/internal/store"
)

// SchemaOptions holds flags for the schema command.
type SchemaOptions struct {
	*RootOptions
	Database string // optional database to plan against
}

// schemaPlan is the per-table output of the schema command.
type schemaPlan struct {
	Table      string   `json:"table"`
	Statements []string `json:"statements"`
	Unmanaged  []string `json:"unmanaged,omitempty"`
	Drift      []string `json:"drift,omitempty"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SchemaOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schema <decl-file>",
		Short: "Render CREATE TABLE statements or a migration plan",
		Long: `Render the SQL a declaration file implies. Without --db, prints one
CREATE TABLE per declared table. With --db, introspects the live
database and prints the minimal additive migration plan instead.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "database file to plan against")

	return cmd
}

func runSchema(opts *SchemaOptions, declPath string, cmd *cobra.Command) error {
	f, err := declfile.Load(declPath)
	if err != nil {
		return err
	}
	cdc := codec.New(codec.NewRegistry())

	var st *store.Store
	if opts.Database != "" {
		st, err = store.Open(opts.Database)
		if err != nil {
			return err
		}
		defer st.Close()
	}

	plans := make([]schemaPlan, 0, len(f.Tables))
	for _, t := range f.Tables {
		p := schemaPlan{Table: t.Name}
		if st == nil {
			stmt, err := sqlbuild.CreateTable(t, cdc)
			if err != nil {
				return err
			}
			p.Statements = []string{stmt}
		} else {
			live, err := st.TableInfo(cmd.Context(), t.Name)
			if err != nil {
				return err
			}
			plan, err := reconcile.Plan(t, live, cdc)
			if err != nil {
				return err
			}
			p.Statements = plan.Statements
			p.Unmanaged = plan.Unmanaged
			for _, d := range plan.Drift {
				p.Drift = append(p.Drift,
					fmt.Sprintf("%s: declared %s %s, live %s", d.Column, d.Kind, d.Declared, d.Live))
			}
		}
		plans = append(plans, p)
	}

	if opts.Format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(plans)
	}

	for _, p := range plans {
		fmt.Fprintf(cmd.OutOrStdout(), "-- %s\n", p.Table)
		if len(p.Statements) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "-- up to date")
		}
		for _, s := range p.Statements {
			fmt.Fprintf(cmd.OutOrStdout(), "%s;\n", s)
		}
		for _, d := range p.Drift {
			fmt.Fprintf(cmd.OutOrStdout(), "-- drift: %s\n", d)
		}
		for _, u := range p.Unmanaged {
			fmt.Fprintf(cmd.OutOrStdout(), "-- unmanaged column: %s\n", u)
		}
	}
	return nil
}
