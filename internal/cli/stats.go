package cli

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"advisory.org/internal/consult"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show record counts, counters and partition sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return rootOpts.withStore(cmd.Context(), func(st *consult.Store) error {
				stats := st.Stats()
				return f.Success(stats, func(w io.Writer) error { return writeStats(w, stats) })
			})
		},
	}
}

func writeStats(w io.Writer, s consult.Stats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "schema version\t%d\n", s.SchemaVersion)
	fmt.Fprintf(tw, "bucket pages\t%d\n", s.BucketPages)
	fmt.Fprintf(tw, "last advisor id\t%d\n", s.LastAdvisorID)
	fmt.Fprintf(tw, "last consultation id\t%d\n", s.LastConsultationID)
	fmt.Fprintf(tw, "last event id\t%d\n", s.LastEventID)
	fmt.Fprintln(tw, "\t")
	fmt.Fprintln(tw, "collection\trecords")
	for _, name := range sortedKeys(s.Records) {
		fmt.Fprintf(tw, "%s\t%d\n", name, s.Records[name])
	}
	fmt.Fprintln(tw, "\t")
	fmt.Fprintln(tw, "partition\tpages")
	for _, name := range sortedKeys(s.PartitionPages) {
		fmt.Fprintf(tw, "%s\t%d\n", name, s.PartitionPages[name])
	}
	return tw.Flush()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
