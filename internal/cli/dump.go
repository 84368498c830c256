package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"advisory.org/internal/consult"
)

// Collections that dump can print.
var Collections = []string{"advisors", "consultations", "feedback", "timeline"}

// NewDumpCommand creates the dump command. Records are printed as JSON
// lines in key order regardless of --format.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "dump <collection>",
		Short:     "Print every record of a collection as JSON lines",
		Args:      cobra.ExactArgs(1),
		ValidArgs: Collections,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withStore(cmd.Context(), func(st *consult.Store) error {
				var records []any
				switch args[0] {
				case "advisors":
					records = toAny(st.Advisors())
				case "consultations":
					records = toAny(st.Consultations())
				case "feedback":
					records = toAny(st.Feedback())
				case "timeline":
					records = toAny(st.Timeline())
				default:
					return NewExitError(ExitCommandError, fmt.Sprintf("unknown collection %q: must be one of %v", args[0], Collections))
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, r := range records {
					if err := enc.Encode(r); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func toAny[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
