package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"advisory.org/internal/consult"
)

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Show the stored schema version and migration history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return rootOpts.withStore(cmd.Context(), func(st *consult.Store) error {
				meta := st.Schema()
				return f.Success(meta, func(w io.Writer) error { return writeSchema(w, meta) })
			})
		},
	}
}

func writeSchema(w io.Writer, meta consult.SchemaMeta) error {
	fmt.Fprintf(w, "schema version %d (binary %d)\n", meta.Version, consult.CurrentSchemaVersion)
	if len(meta.Migrations) == 0 {
		_, err := fmt.Fprintln(w, "no migrations applied")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "from\tto\tname\trecords\tapplied at")
	for _, m := range meta.Migrations {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%d\t%s\n", m.From, m.To, m.Name, m.Records,
			time.Unix(0, int64(m.AppliedAt)).UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}
