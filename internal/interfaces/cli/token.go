package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/erp/customs/internal/infrastructure/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd(g *globalFlags) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator token for the admin API",
		Long:  "token signs a bearer token with auth.secret. The API requires it on cache clears and batch start or cancel.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			tokens, err := auth.NewOperatorTokenService(cfg.Auth)
			if errors.Is(err, auth.ErrAuthDisabled) {
				return errors.New("auth.secret is not set; the admin API accepts anonymous operators")
			}
			if err != nil {
				return err
			}

			token, claims, err := tokens.Issue(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "subject %s, expires %s\n",
				claims.Subject, claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Operator name recorded in the token (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default auth.token_ttl)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
