package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"advisory.org/internal/config"
	"advisory.org/internal/consult"
	"advisory.org/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format      string // "json" | "text"
	Backend     string
	Region      string
	DSN         string
	Name        string
	BucketPages uint16
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of advisoryctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "advisoryctl",
		Short: "Inspect an advisory registry region",
		Long:  "Administrative tool that opens an advisory registry region directly and reports on its records, counters and schema.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", config.BackendFile, "region backend (memory|file|postgres)")
	cmd.PersistentFlags().StringVar(&opts.Region, "region", "advisory.region", "region file for the file backend")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", "", "PostgreSQL DSN for the postgres backend")
	cmd.PersistentFlags().StringVar(&opts.Name, "name", "advisory", "region name for the postgres backend")
	cmd.PersistentFlags().Uint16Var(&opts.BucketPages, "bucket-pages", 128, "bucket size when formatting a new region")

	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewDumpCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

func (o *RootOptions) regionConfig() config.RegionConfig {
	return config.RegionConfig{
		Backend:     o.Backend,
		Path:        o.Region,
		DSN:         o.DSN,
		Name:        o.Name,
		BucketPages: o.BucketPages,
	}
}

// withStore opens the region, runs fn and closes the region again.
func (o *RootOptions) withStore(ctx context.Context, fn func(*consult.Store) error) error {
	backing, err := store.Open(ctx, o.regionConfig())
	if err != nil {
		return WrapExitError(ExitCommandError, "open region", err)
	}
	st, err := backing.OpenStore(ctx, o.BucketPages)
	if err != nil {
		_ = backing.Close()
		return WrapExitError(ExitCommandError, "open store", err)
	}
	ferr := fn(st)
	if err := backing.Close(); err != nil && ferr == nil {
		return WrapExitError(ExitCommandError, "close region", err)
	}
	return ferr
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
