// Package scheduler runs background jobs on a fixed interval.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/erp/customs/internal/domain/exchange"
	"github.com/erp/customs/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RateRefreshSource re-reads a live exchange rate into the rate cache
type RateRefreshSource interface {
	RefreshRate(ctx context.Context, country valueobject.CountryCode) (exchange.ExchangeRate, error)
}

// RateRefresherConfig holds refresher configuration
type RateRefresherConfig struct {
	Countries []valueobject.CountryCode
	// Interval should be shorter than the cache TTL so entries never expire between passes
	Interval time.Duration
	// PassTimeout bounds one refresh pass over all countries
	PassTimeout time.Duration
}

// RefreshPass is the outcome of one pass
type RefreshPass struct {
	ID          uuid.UUID
	StartedAt   time.Time
	CompletedAt time.Time
	Refreshed   int
	Failed      map[valueobject.CountryCode]string
}

// RateRefresher keeps the rate cache warm for a fixed set of origin countries
type RateRefresher struct {
	config RateRefresherConfig
	source RateRefreshSource
	logger *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	lastPass  *RefreshPass
	nextRunAt time.Time
}

// NewRateRefresher creates a refresher
func NewRateRefresher(config RateRefresherConfig, source RateRefreshSource, logger *zap.Logger) *RateRefresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	return &RateRefresher{
		config: config,
		source: source,
		logger: logger.Named("rate_refresher"),
	}
}

// Start runs one pass immediately, then one per interval until Stop
func (r *RateRefresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = true
	r.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.runLoop(ctx)

	r.logger.Info("Rate refresher started",
		zap.Int("countries", len(r.config.Countries)),
		zap.Duration("interval", r.config.Interval),
	)
	return nil
}

// Stop stops the loop and waits for an in-flight pass, bounded by ctx
func (r *RateRefresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("Rate refresher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *RateRefresher) runLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce refreshes every configured country sequentially.
// A failed country is logged and retried on the next pass.
func (r *RateRefresher) RunOnce(ctx context.Context) RefreshPass {
	pass := RefreshPass{
		ID:        uuid.New(),
		StartedAt: time.Now(),
		Failed:    make(map[valueobject.CountryCode]string),
	}
	if r.config.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.PassTimeout)
		defer cancel()
	}

	for _, country := range r.config.Countries {
		if ctx.Err() != nil {
			pass.Failed[country] = ctx.Err().Error()
			continue
		}
		rate, err := r.source.RefreshRate(ctx, country)
		if err != nil {
			pass.Failed[country] = err.Error()
			r.logger.Warn("Rate refresh failed",
				zap.String("pass_id", pass.ID.String()),
				zap.String("country", string(country)),
				zap.Error(err),
			)
			continue
		}
		pass.Refreshed++
		r.logger.Debug("Rate refreshed",
			zap.String("country", string(country)),
			zap.String("currency", string(rate.Currency)),
			zap.String("rate", rate.RateFromUSD.String()),
		)
	}
	pass.CompletedAt = time.Now()

	r.mu.Lock()
	r.lastPass = &pass
	r.nextRunAt = pass.CompletedAt.Add(r.config.Interval)
	r.mu.Unlock()

	r.logger.Info("Rate refresh pass completed",
		zap.String("pass_id", pass.ID.String()),
		zap.Int("refreshed", pass.Refreshed),
		zap.Int("failed", len(pass.Failed)),
		zap.Duration("duration", pass.CompletedAt.Sub(pass.StartedAt)),
	)
	return pass
}

// GetStatus returns the refresher state for the system endpoints
func (r *RateRefresher) GetStatus() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	countries := make([]string, len(r.config.Countries))
	for i, c := range r.config.Countries {
		countries[i] = string(c)
	}
	status := map[string]any{
		"is_running": r.isRunning,
		"interval":   r.config.Interval.String(),
		"countries":  countries,
	}
	if r.lastPass != nil {
		status["last_run_at"] = r.lastPass.CompletedAt
		status["next_run_at"] = r.nextRunAt
		status["last_refreshed"] = r.lastPass.Refreshed
		status["last_failed"] = r.lastPass.Failed
	}
	return status
}
