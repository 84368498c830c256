package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"advisory.org/internal/auth"
)

type tokenOutput struct {
	Token     string    `json:"token"`
	Identity  string    `json:"identity"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewTokenCommand creates the token command. The signing secret comes from
// ADVISORY_AUTH_SECRET.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <identity>",
		Short: "Issue a development bearer token for an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			if !auth.SupportsTokens() {
				return f.Failure(NewExitError(ExitCommandError, auth.ErrTokensDisabled.Error()))
			}
			identity := auth.Identity(args[0])
			if identity == auth.Anonymous {
				return f.Failure(NewExitError(ExitCommandError, "anonymous identity cannot hold a token"))
			}
			token, err := auth.GenerateToken(identity, ttl)
			if err != nil {
				return f.Failure(WrapExitError(ExitFailure, "generate token", err))
			}
			out := tokenOutput{Token: token, Identity: identity.String(), ExpiresAt: time.Now().UTC().Add(ttl)}
			return f.Success(out, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, token)
				return err
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
