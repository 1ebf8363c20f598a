// Package cli implements the taxbatch command line: batch valuation of quote
// worklists and one-off minimum valuation conversions.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var version = "dev"

type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "taxbatch",
		Short:         "Customs and destination tax valuation for quote worklists",
		Long:          "taxbatch values every item of a quote worklist against the reference database and live exchange rates.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "TOML config file (default ./config.toml, then /etc/customs/config.toml)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")

	cmd.AddCommand(newRunCmd(g))
	cmd.AddCommand(newConvertCmd(g))
	cmd.AddCommand(newTokenCmd(g))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "taxbatch "+version)
		},
	}
}

// Execute runs the root command; ctx is cancelled on interrupt
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}
