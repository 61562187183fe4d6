package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Blockzilla101/sqlite-orm/internal/schema"
	"github.com/Blockzilla101/sqlite-orm/internal/store"
)

// SnapshotOptions holds flags for the snapshot command.
type SnapshotOptions struct {
	*RootOptions
	Write bool // rewrite the file in the current versioned form
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshot <snapshot-file>",
		Short: "Dump or upgrade a schema snapshot file",
		Long: `Dump a schema snapshot file in its current versioned form. Legacy
unversioned snapshots are upgraded on load; --write persists the
upgraded form back to the file.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Write, "write", false, "rewrite the snapshot file in versioned form")

	return cmd
}

func runSnapshot(opts *SnapshotOptions, path string, cmd *cobra.Command) error {
	blobs := store.FileBlobStore{}
	data, ok, err := blobs.Load(path)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("snapshot file not found: %s", path)
	}

	snap, err := schema.DecodeSnapshot(data)
	if err != nil {
		return err
	}

	encoded, err := snap.Encode()
	if err != nil {
		return err
	}
	if opts.Write {
		if err := blobs.Save(path, encoded); err != nil {
			return err
		}
		if opts.Verbose {
			fmt.Fprintf(cmd.ErrOrStderr(), "rewrote %s at version %d\n", path, snap.Version)
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return nil
}
