package customs

import (
	"context"
	"sync"

	"github.com/erp/customs/internal/domain/customs"
	"github.com/erp/customs/internal/infrastructure/logger"
)

// RunResultStore keeps the quote results of the most recent batch run.
// Its Record method is a QuoteResultHandler; results produced outside a run are ignored.
type RunResultStore struct {
	mu      sync.RWMutex
	runID   string
	results []customs.QuoteTaxResult
}

// NewRunResultStore creates an empty store
func NewRunResultStore() *RunResultStore {
	return &RunResultStore{}
}

// Record stores a result under the run ID carried by ctx.
// A result from a newer run replaces everything kept for the previous one.
func (s *RunResultStore) Record(ctx context.Context, result customs.QuoteTaxResult) {
	runID := logger.GetRunID(ctx)
	if runID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if runID != s.runID {
		s.runID = runID
		s.results = nil
	}
	s.results = append(s.results, result)
}

// Results returns a copy of the results recorded for runID, in completion order
func (s *RunResultStore) Results(runID string) []customs.QuoteTaxResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if runID == "" || runID != s.runID {
		return nil
	}
	out := make([]customs.QuoteTaxResult, len(s.results))
	copy(out, s.results)
	return out
}
