package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/erp/customs/internal/domain/exchange"
	"github.com/erp/customs/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type countingSource struct {
	mu     sync.Mutex
	calls  map[valueobject.CountryCode]int
	broken map[valueobject.CountryCode]bool
}

func newCountingSource(broken ...valueobject.CountryCode) *countingSource {
	s := &countingSource{calls: make(map[valueobject.CountryCode]int), broken: make(map[valueobject.CountryCode]bool)}
	for _, c := range broken {
		s.broken[c] = true
	}
	return s
}

func (s *countingSource) RefreshRate(_ context.Context, country valueobject.CountryCode) (exchange.ExchangeRate, error) {
	s.mu.Lock()
	s.calls[country]++
	s.mu.Unlock()
	if s.broken[country] {
		return exchange.ExchangeRate{}, exchange.ErrExchangeRateUnavailable
	}
	return exchange.NewExchangeRate(country, valueobject.NPR, decimal.NewFromInt(133), time.Now())
}

func (s *countingSource) count(country valueobject.CountryCode) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[country]
}

func TestRateRefresher_RunOnce(t *testing.T) {
	source := newCountingSource("IN")
	r := NewRateRefresher(RateRefresherConfig{
		Countries: []valueobject.CountryCode{"NP", "IN"},
		Interval:  time.Hour,
	}, source, zaptest.NewLogger(t))

	pass := r.RunOnce(context.Background())

	assert.Equal(t, 1, pass.Refreshed)
	require.Contains(t, pass.Failed, valueobject.CountryCode("IN"))
	assert.NotContains(t, pass.Failed, valueobject.CountryCode("NP"))
	assert.False(t, pass.CompletedAt.Before(pass.StartedAt))

	status := r.GetStatus()
	assert.Equal(t, false, status["is_running"])
	assert.Equal(t, 1, status["last_refreshed"])
	assert.Equal(t, []string{"NP", "IN"}, status["countries"])
}

func TestRateRefresher_CancelledPassSkipsRemaining(t *testing.T) {
	source := newCountingSource()
	r := NewRateRefresher(RateRefresherConfig{Countries: []valueobject.CountryCode{"NP", "IN"}}, source, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pass := r.RunOnce(ctx)

	assert.Zero(t, pass.Refreshed)
	assert.Len(t, pass.Failed, 2)
	assert.Zero(t, source.count("NP"))
}

func TestRateRefresher_StartStop(t *testing.T) {
	source := newCountingSource()
	r := NewRateRefresher(RateRefresherConfig{
		Countries: []valueobject.CountryCode{"NP"},
		Interval:  10 * time.Millisecond,
	}, source, zaptest.NewLogger(t))

	require.NoError(t, r.Start(context.Background()))
	// a second Start is a no-op
	require.NoError(t, r.Start(context.Background()))

	assert.Eventually(t, func() bool { return source.count("NP") >= 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, true, r.GetStatus()["is_running"])

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Stop(stopCtx))
	require.NoError(t, r.Stop(stopCtx))

	calls := source.count("NP")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, source.count("NP"))
}
