package cli

import (
	"context"
	"encoding/json"
	"fmt"

	appcustoms "github.com/erp/customs/internal/application/customs"
	"github.com/erp/customs/internal/domain/shared/valueobject"
	"github.com/spf13/cobra"
)

func newConvertCmd(g *globalFlags) *cobra.Command {
	var (
		usd        string
		country    string
		rounding   string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a USD minimum valuation into an origin currency",
		Example: "  taxbatch convert --usd 10 --country NP\n" +
			"  taxbatch convert --usd 2 --country IN --rounding down",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			amount, err := valueobject.ParseAmount(usd)
			if err != nil {
				return err
			}
			origin, err := valueobject.ParseCountryCode(country)
			if err != nil {
				return err
			}
			var opts []appcustoms.ConvertOption
			if rounding != "" {
				method, err := valueobject.ParseRoundingMethod(rounding)
				if err != nil {
					return err
				}
				opts = append(opts, appcustoms.WithRounding(method))
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			env, err := openEnvironment(ctx, g)
			if err != nil {
				return err
			}
			defer env.Close()

			result, err := env.engine.Conversions.ConvertMinimumValuation(ctx, amount, origin, opts...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			fmt.Fprintln(out, renderConversion(result))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&usd, "usd", "", "Amount in USD (required)")
	flags.StringVar(&country, "country", "", "ISO 3166-1 alpha-2 origin country (required)")
	flags.StringVar(&rounding, "rounding", "", "Rounding method: up, down or nearest (default from config)")
	flags.BoolVar(&jsonOutput, "json", false, "Print the conversion as JSON")
	_ = cmd.MarkFlagRequired("usd")
	_ = cmd.MarkFlagRequired("country")
	return cmd
}
