package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Blockzilla101/sqlite-orm/internal/declfile"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <decl-file>",
		Short: "Validate a table declaration file",
		Long: `Validate a YAML table declaration file against the declaration schema
and the table invariants (single primary key, unique column names,
known column types).`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := declfile.Load(args[0])
			if err != nil {
				return err
			}

			if rootOpts.Format == "json" {
				out := map[string]any{"valid": true, "tables": len(f.Tables)}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d table(s) valid\n", args[0], len(f.Tables))
			for _, t := range f.Tables {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s (%d columns)\n", t.Name, len(t.Columns))
			}
			return nil
		},
	}
}
