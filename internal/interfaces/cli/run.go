package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/customs/internal/bootstrap"
	"github.com/erp/customs/internal/domain/customs"
	"github.com/erp/customs/internal/infrastructure/batch"
	"github.com/erp/customs/internal/infrastructure/persistence"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runFlags struct {
	worklist    string
	seedFile    string
	concurrency int
	retries     int
	retryDelay  time.Duration
	unitTimeout time.Duration
	jsonOutput  bool
	quiet       bool
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Value every quote in a JSON worklist",
		Long: "Loads quotes from a worklist file and values them with bounded concurrency and per-quote retry.\n" +
			"Progress is written to stderr; the per-quote table (or JSON with --json) to stdout.\n" +
			"An interrupt cancels the run after in-flight quotes finish.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorklist(cmd, g, f)
		},
	}

	defaults := batch.DefaultOptions()
	flags := cmd.Flags()
	flags.StringVarP(&f.worklist, "worklist", "w", "", "JSON worklist of quotes (required)")
	flags.StringVar(&f.seedFile, "seed", "", "Reference data JSON to upsert before the run")
	flags.IntVarP(&f.concurrency, "concurrency", "c", defaults.Concurrency, "Maximum quotes valued at once")
	flags.IntVar(&f.retries, "retries", defaults.RetryAttempts, "Retries per quote after the first failed attempt")
	flags.DurationVar(&f.retryDelay, "retry-delay", defaults.RetryDelay, "Wait between attempts of one quote")
	flags.DurationVar(&f.unitTimeout, "unit-timeout", 0, "Bound on each attempt (0 = none)")
	flags.BoolVar(&f.jsonOutput, "json", false, "Print valuation results as JSON")
	flags.BoolVarP(&f.quiet, "quiet", "q", false, "Suppress progress lines")
	_ = cmd.MarkFlagRequired("worklist")
	return cmd
}

// options starts from the configured batch defaults; explicit flags win
func (f *runFlags) options(cmd *cobra.Command, base batch.Options) (batch.Options, error) {
	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		base.Concurrency = f.concurrency
	}
	if flags.Changed("retries") {
		base.RetryAttempts = f.retries
	}
	if flags.Changed("retry-delay") {
		base.RetryDelay = f.retryDelay
	}
	if flags.Changed("unit-timeout") {
		base.UnitTimeout = f.unitTimeout
	}

	switch {
	case base.Concurrency < 1:
		return base, fmt.Errorf("--concurrency must be at least 1, got %d", base.Concurrency)
	case base.RetryAttempts < 0:
		return base, fmt.Errorf("--retries cannot be negative, got %d", base.RetryAttempts)
	case base.RetryDelay < 0:
		return base, fmt.Errorf("--retry-delay cannot be negative, got %s", base.RetryDelay)
	case base.UnitTimeout < 0:
		return base, fmt.Errorf("--unit-timeout cannot be negative, got %s", base.UnitTimeout)
	}
	return base, nil
}

func runWorklist(cmd *cobra.Command, g *globalFlags, f *runFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	env, err := openEnvironment(ctx, g, bootstrap.WithSchema(true))
	if err != nil {
		return err
	}
	defer env.Close()

	if f.seedFile != "" {
		if err := env.seed(ctx, f.seedFile); err != nil {
			return fmt.Errorf("seeding reference data: %w", err)
		}
	}

	quotes, err := persistence.NewJSONQuoteWorklist(f.worklist).LoadQuotes(ctx)
	if err != nil {
		return fmt.Errorf("loading worklist: %w", err)
	}
	opts, err := f.options(cmd, env.engine.Defaults)
	if err != nil {
		return err
	}

	driver := env.engine.Driver
	progress, unsubscribe := driver.Subscribe(16)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for p := range progress {
			if !f.quiet {
				fmt.Fprintln(cmd.ErrOrStderr(), renderProgress(p))
			}
		}
	}()

	// an interrupt stops scheduling but keeps finished quotes
	stopWatch := context.AfterFunc(ctx, func() {
		if driver.Cancel() {
			env.log.Warn("Interrupt received, cancelling batch run")
		}
	})
	defer stopWatch()

	results, err := driver.Start(context.WithoutCancel(ctx), quotes, opts)
	unsubscribe()
	<-printed
	if err != nil {
		return err
	}

	snapshot := driver.Snapshot()
	valuations := env.engine.Results.Results(snapshot.RunID)
	env.log.Info("Batch run finished",
		zap.String("run_id", snapshot.RunID),
		zap.String("state", string(snapshot.State)),
		zap.Int("processed", snapshot.ProcessedUnits),
		zap.Int("failed", snapshot.FailedUnits),
	)

	out := cmd.OutOrStdout()
	if f.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(runReport{Progress: snapshot, Units: results, Valuations: valuations}); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out, renderResults(results, valuations))
		fmt.Fprintln(out, renderSummary(snapshot, valuations))
	}

	switch {
	case snapshot.State == batch.StateCancelled:
		return fmt.Errorf("run cancelled after %d of %d quotes", snapshot.ProcessedUnits, snapshot.TotalUnits)
	case snapshot.FailedUnits > 0:
		return fmt.Errorf("%d of %d quotes failed", snapshot.FailedUnits, snapshot.TotalUnits)
	}
	return nil
}

type runReport struct {
	Progress   batch.Progress           `json:"progress"`
	Units      []batch.UnitResult       `json:"units"`
	Valuations []customs.QuoteTaxResult `json:"valuations"`
}
