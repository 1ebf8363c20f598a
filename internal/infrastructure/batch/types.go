// Package batch runs independent work units over a bounded worker pool with
// per-unit retry, progress reporting and cooperative cancellation.
package batch

import (
	"context"
	"time"
)

// State is the lifecycle state of the driver's current run
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// IsTerminal reports whether a run in this state has finished
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Phase describes what a running batch is doing right now
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseProcessing Phase = "processing"
	PhaseCancelling Phase = "cancelling"
	PhaseDone       Phase = "done"
)

// WorkUnit is anything the driver can schedule. UnitID keys results.
type WorkUnit interface {
	UnitID() string
}

// UnitReport is what a processor reports about one attempt
type UnitReport struct {
	ItemsProcessed  int
	ItemsSuccessful int
}

// Processor executes one work unit. Returning an error wrapped with Permanent skips retries.
type Processor[T WorkUnit] interface {
	Process(ctx context.Context, unit T) (UnitReport, error)
}

// ProcessorFunc adapts a function to Processor
type ProcessorFunc[T WorkUnit] func(ctx context.Context, unit T) (UnitReport, error)

// Process calls f(ctx, unit)
func (f ProcessorFunc[T]) Process(ctx context.Context, unit T) (UnitReport, error) {
	return f(ctx, unit)
}

// UnitResult is appended once per finished unit, in completion order
type UnitResult struct {
	UnitID          string        `json:"unit_id"`
	Success         bool          `json:"success"`
	ItemsProcessed  int           `json:"items_processed"`
	ItemsSuccessful int           `json:"items_successful"`
	Attempts        int           `json:"attempts"`
	Duration        time.Duration `json:"duration"`
	Err             error         `json:"-"`
	Error           string        `json:"error,omitempty"`
}

// Progress is a point-in-time view of a run
type Progress struct {
	RunID           string        `json:"run_id"`
	State           State         `json:"state"`
	CurrentPhase    Phase         `json:"current_phase"`
	TotalUnits      int           `json:"total_units"`
	ProcessedUnits  int           `json:"processed_units"`
	SuccessfulUnits int           `json:"successful_units"`
	FailedUnits     int           `json:"failed_units"`
	TimeElapsed     time.Duration `json:"time_elapsed"`
}

// Options controls one run
type Options struct {
	// Concurrency bounds the worker pool. Zero or negative means DefaultConcurrency.
	Concurrency int
	// RetryAttempts is the number of retries after the first failed attempt
	RetryAttempts int
	// RetryDelay is waited between attempts of one unit
	RetryDelay time.Duration
	// UnitTimeout bounds each attempt; zero means no per-attempt bound
	UnitTimeout time.Duration
}

// DefaultConcurrency is the worker pool size used when Options.Concurrency is unset
const DefaultConcurrency = 50

// DefaultOptions returns the options used by the batch CLI when nothing is configured
func DefaultOptions() Options {
	return Options{
		Concurrency:   DefaultConcurrency,
		RetryAttempts: 2,
		RetryDelay:    time.Second,
	}
}

func (o Options) workers(units int) int {
	n := o.Concurrency
	if n <= 0 {
		n = DefaultConcurrency
	}
	if n > units {
		n = units
	}
	return n
}
