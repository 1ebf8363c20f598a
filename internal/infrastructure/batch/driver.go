package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erp/customs/internal/infrastructure/logger"
	"github.com/erp/customs/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Option configures a Driver
type Option func(*settings)

type settings struct {
	logger  *zap.Logger
	metrics *telemetry.CustomsMetrics
	clock   func() time.Time
}

// WithLogger sets the driver logger
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(m *telemetry.CustomsMetrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}

// WithClock overrides time.Now
func WithClock(clock func() time.Time) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// Driver runs one batch at a time over a bounded worker pool.
//
// State machine: Idle -> Running -> Completed | Cancelled | Failed. A finished
// driver can be started again; Start while Running returns ErrBatchAlreadyRunning.
type Driver[T WorkUnit] struct {
	processor Processor[T]
	logger    *zap.Logger
	metrics   *telemetry.CustomsMetrics
	now       func() time.Time
	inFlight  atomic.Int64

	mu              sync.Mutex
	state           State
	phase           Phase
	runID           string
	total           int
	processed       int
	successful      int
	failed          int
	startedAt       time.Time
	finishedAt      time.Time
	results         []UnitResult
	stop            chan struct{}
	done            chan struct{}
	cancelRequested bool
	subscribers     map[int]chan Progress
	nextSubscriber  int
}

type run struct {
	id   string
	stop <-chan struct{}
}

// NewDriver creates an idle driver
func NewDriver[T WorkUnit](processor Processor[T], opts ...Option) *Driver[T] {
	s := settings{logger: zap.NewNop(), clock: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	done := make(chan struct{})
	close(done)
	return &Driver[T]{
		processor:   processor,
		logger:      s.logger.Named("batch"),
		metrics:     s.metrics,
		now:         s.clock,
		state:       StateIdle,
		phase:       PhaseIdle,
		done:        done,
		subscribers: make(map[int]chan Progress),
	}
}

// Start runs units to completion and returns their results in completion order.
// A cancelled run returns the results gathered so far and no error.
// If ctx ends before every unit finished, the run is Failed and the error wraps ErrRunAborted.
func (d *Driver[T]) Start(ctx context.Context, units []T, opts Options) ([]UnitResult, error) {
	r, err := d.begin(units)
	if err != nil {
		return nil, err
	}
	return d.execute(ctx, r, units, opts)
}

// Go starts a run in the background and returns its run ID.
// Use Done, Snapshot and Results to follow it.
func (d *Driver[T]) Go(ctx context.Context, units []T, opts Options) (string, error) {
	r, err := d.begin(units)
	if err != nil {
		return "", err
	}
	go func() {
		_, _ = d.execute(ctx, r, units, opts)
	}()
	return r.id, nil
}

// Cancel asks the running batch to stop scheduling units.
// In-flight attempts finish; units waiting for a retry are recorded as failed.
// Returns false when no run is active or cancel was already requested.
func (d *Driver[T]) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateRunning || d.cancelRequested {
		return false
	}
	d.cancelRequested = true
	close(d.stop)
	d.phase = PhaseCancelling
	d.publishLocked()

	d.logger.Info("Batch cancellation requested",
		zap.String("run_id", d.runID),
		zap.Int("processed_units", d.processed),
		zap.Int("total_units", d.total),
	)
	return true
}

// State returns the current run state
func (d *Driver[T]) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Snapshot returns the progress of the current or last run
func (d *Driver[T]) Snapshot() Progress {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.progressLocked()
}

// Results returns a copy of the results of the current or last run
func (d *Driver[T]) Results() []UnitResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]UnitResult, len(d.results))
	copy(out, d.results)
	return out
}

// Done returns a channel closed when the current run finishes.
// With no run started it is already closed.
func (d *Driver[T]) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Subscribe returns a channel receiving a snapshot after every state change and finished unit.
// Sends never block the driver: when the buffer is full the oldest snapshot is dropped.
// Call the returned function to unsubscribe; it closes the channel.
func (d *Driver[T]) Subscribe(buffer int) (<-chan Progress, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Progress, buffer)

	d.mu.Lock()
	id := d.nextSubscriber
	d.nextSubscriber++
	d.subscribers[id] = ch
	d.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			if c, ok := d.subscribers[id]; ok {
				delete(d.subscribers, id)
				close(c)
			}
		})
	}
}

// OnProgress calls fn from its own goroutine for each delivered snapshot.
// A slow fn skips intermediate snapshots and never delays the driver.
func (d *Driver[T]) OnProgress(fn func(Progress)) func() {
	ch, unsubscribe := d.Subscribe(16)
	go func() {
		for p := range ch {
			fn(p)
		}
	}()
	return unsubscribe
}

// Close unsubscribes every progress observer
func (d *Driver[T]) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, ch := range d.subscribers {
		delete(d.subscribers, id)
		close(ch)
	}
}

func (d *Driver[T]) begin(units []T) (run, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.processor == nil {
		return run{}, ErrNoProcessor
	}
	if d.state == StateRunning {
		return run{}, ErrBatchAlreadyRunning
	}

	d.runID = uuid.NewString()
	d.state = StateRunning
	d.phase = PhaseProcessing
	d.total = len(units)
	d.processed = 0
	d.successful = 0
	d.failed = 0
	d.startedAt = d.now()
	d.finishedAt = time.Time{}
	d.results = make([]UnitResult, 0, len(units))
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	d.cancelRequested = false
	d.publishLocked()

	return run{id: d.runID, stop: d.stop}, nil
}

func (d *Driver[T]) execute(ctx context.Context, r run, units []T, opts Options) ([]UnitResult, error) {
	ctx = logger.WithRunID(logger.WithContext(ctx, d.logger), r.id)
	ctx, span := telemetry.StartSpan(ctx, "batch.run",
		telemetry.WithAttribute(telemetry.SpanAttrRunID, r.id),
		telemetry.WithAttribute("unit_count", len(units)),
	)
	defer span.End()

	workers := opts.workers(len(units))
	logger.L(ctx).Info("Batch run started",
		zap.Int("units", len(units)),
		zap.Int("workers", workers),
		zap.Int("retry_attempts", opts.RetryAttempts),
		zap.Duration("retry_delay", opts.RetryDelay),
	)

	if len(units) > 0 && ctx.Err() == nil {
		jobs := make(chan T)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go d.worker(ctx, r, jobs, opts, &wg)
		}

	feed:
		for _, unit := range units {
			select {
			case <-ctx.Done():
				break feed
			case <-r.stop:
				break feed
			case jobs <- unit:
			}
		}
		close(jobs)
		wg.Wait()
	}

	results, state := d.finish(ctx)
	telemetry.SetAttributes(span, "state", string(state), "results", len(results))

	if state == StateFailed {
		err := fmt.Errorf("%w: %w", ErrRunAborted, ctx.Err())
		telemetry.RecordError(span, err)
		return results, err
	}
	telemetry.SetOK(span)
	return results, nil
}

func (d *Driver[T]) worker(ctx context.Context, r run, jobs <-chan T, opts Options, wg *sync.WaitGroup) {
	defer wg.Done()
	for unit := range jobs {
		// drain without starting once the run is stopping
		if stopped(r.stop) || ctx.Err() != nil {
			continue
		}
		d.runUnit(ctx, r, unit, opts)
	}
}

func (d *Driver[T]) runUnit(ctx context.Context, r run, unit T, opts Options) {
	unitID := unit.UnitID()
	unitCtx := logger.WithUnitID(ctx, unitID)
	start := d.now()

	d.metrics.RecordUnitsInFlight(ctx, d.inFlight.Add(1))
	defer func() {
		d.metrics.RecordUnitsInFlight(ctx, d.inFlight.Add(-1))
	}()

	var (
		report   UnitReport
		err      error
		attempts int
	)
	for {
		attempts++
		report, err = d.attempt(unitCtx, unit, opts.UnitTimeout)
		if err == nil || IsPermanent(err) || attempts > opts.RetryAttempts {
			break
		}
		logger.L(unitCtx).Warn("Retrying unit",
			zap.Int("attempt", attempts),
			zap.Int("retry_attempts", opts.RetryAttempts),
			zap.Duration("retry_delay", opts.RetryDelay),
			zap.Error(err),
		)
		if !waitRetry(ctx, r.stop, opts.RetryDelay) {
			if ctx.Err() == nil {
				err = fmt.Errorf("%w: %w", ErrCancelledBeforeRetry, err)
			}
			break
		}
	}

	result := UnitResult{
		UnitID:          unitID,
		Success:         err == nil,
		ItemsProcessed:  report.ItemsProcessed,
		ItemsSuccessful: report.ItemsSuccessful,
		Attempts:        attempts,
		Duration:        d.now().Sub(start),
	}
	status := "success"
	if err != nil {
		status = "failed"
		result.Err = err
		result.Error = err.Error()
		logger.L(unitCtx).Error("Unit failed",
			zap.Int("attempts", attempts),
			zap.Bool("permanent", IsPermanent(err)),
			zap.Error(err),
		)
	} else {
		logger.L(unitCtx).Debug("Unit completed",
			zap.Int("attempts", attempts),
			zap.Int("items", report.ItemsProcessed),
		)
	}
	d.metrics.RecordBatchUnit(ctx, status, result.Duration)
	d.record(result)
}

func (d *Driver[T]) attempt(ctx context.Context, unit T, timeout time.Duration) (report UnitReport, err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if rec := recover(); rec != nil {
			logger.L(ctx).Error("Panic recovered in unit", zap.Any("error", rec), zap.Stack("stacktrace"))
			err = fmt.Errorf("unit %s panicked: %v", unit.UnitID(), rec)
		}
	}()
	return d.processor.Process(ctx, unit)
}

func (d *Driver[T]) record(result UnitResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.results = append(d.results, result)
	d.processed++
	if result.Success {
		d.successful++
	} else {
		d.failed++
	}
	d.publishLocked()
}

func (d *Driver[T]) finish(ctx context.Context) ([]UnitResult, State) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case ctx.Err() != nil && d.processed < d.total:
		d.state = StateFailed
	case d.cancelRequested:
		d.state = StateCancelled
	default:
		d.state = StateCompleted
	}
	d.phase = PhaseDone
	d.finishedAt = d.now()
	d.publishLocked()

	d.logger.Info("Batch run finished",
		zap.String("run_id", d.runID),
		zap.String("state", string(d.state)),
		zap.Int("total_units", d.total),
		zap.Int("processed_units", d.processed),
		zap.Int("successful_units", d.successful),
		zap.Int("failed_units", d.failed),
		zap.Duration("elapsed", d.finishedAt.Sub(d.startedAt)),
	)
	close(d.done)

	out := make([]UnitResult, len(d.results))
	copy(out, d.results)
	return out, d.state
}

func (d *Driver[T]) progressLocked() Progress {
	p := Progress{
		RunID:           d.runID,
		State:           d.state,
		CurrentPhase:    d.phase,
		TotalUnits:      d.total,
		ProcessedUnits:  d.processed,
		SuccessfulUnits: d.successful,
		FailedUnits:     d.failed,
	}
	switch {
	case d.startedAt.IsZero():
	case d.finishedAt.IsZero():
		p.TimeElapsed = d.now().Sub(d.startedAt)
	default:
		p.TimeElapsed = d.finishedAt.Sub(d.startedAt)
	}
	return p
}

// publishLocked offers the current snapshot to every subscriber. Caller holds d.mu.
func (d *Driver[T]) publishLocked() {
	if len(d.subscribers) == 0 {
		return
	}
	p := d.progressLocked()
	for _, ch := range d.subscribers {
		offer(ch, p)
	}
}

func offer(ch chan Progress, p Progress) {
	select {
	case ch <- p:
		return
	default:
	}
	// full: drop the oldest snapshot so the latest is always delivered
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- p:
	default:
	}
}

func waitRetry(ctx context.Context, stop <-chan struct{}, delay time.Duration) bool {
	if delay <= 0 {
		return !stopped(stop) && ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	}
}

func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
