// Package exchangerate fetches live USD exchange rates over HTTP.
package exchangerate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/erp/customs/internal/domain/exchange"
	"github.com/erp/customs/internal/domain/shared/valueobject"
	"github.com/erp/customs/internal/infrastructure/config"
	"github.com/erp/customs/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultBaseURL is an exchangerate-api compatible endpoint
	DefaultBaseURL = "https://open.er-api.com/v6/latest"
	// DefaultTimeout bounds one HTTP request
	DefaultTimeout  = 10 * time.Second
	maxResponseSize = 1 << 20
)

// latestResponse is the exchangerate-api "latest" payload. Rates are kept as json.Number
// so they convert to decimals without a float round trip.
type latestResponse struct {
	Result             string                 `json:"result"`
	BaseCode           string                 `json:"base_code"`
	TimeLastUpdateUnix int64                  `json:"time_last_update_unix"`
	Rates              map[string]json.Number `json:"rates"`
	ErrorType          string                 `json:"error-type"`
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Client is an exchange.ExchangeRateSource backed by an exchangerate-api style service.
// Every failure is reported as exchange.ErrExchangeRateUnavailable so callers can fall back.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
	now     func() time.Time
	fetches singleflight.Group
}

// NewClient creates a client
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("exchangerate")
	return c
}

// NewClientFromConfig creates a client from the exchange_rate config section
func NewClientFromConfig(cfg config.ExchangeRateConfig, opts ...Option) *Client {
	return NewClient(cfg.BaseURL, cfg.Timeout, opts...)
}

// GetRate returns how many units of the country's currency one USD buys
func (c *Client) GetRate(ctx context.Context, country valueobject.CountryCode) (exchange.RateQuote, error) {
	ctx, span := telemetry.StartSpan(ctx, "exchangerate.get_rate",
		telemetry.WithAttribute(telemetry.SpanAttrCountry, string(country)),
	)
	defer span.End()

	currency, err := valueobject.CurrencyForCountry(country)
	if err != nil {
		telemetry.RecordError(span, err)
		return exchange.RateQuote{}, exchange.ErrExchangeRateUnavailable.Wrap(err)
	}

	latest, err := c.latest(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return exchange.RateQuote{}, err
	}

	raw, ok := latest.Rates[string(currency)]
	if !ok {
		err := exchange.ErrExchangeRateUnavailable.WithMessage(fmt.Sprintf("no USD rate for %s", currency))
		telemetry.RecordError(span, err)
		return exchange.RateQuote{}, err
	}
	value, err := decimal.NewFromString(raw.String())
	if err != nil {
		return exchange.RateQuote{}, exchange.ErrExchangeRateUnavailable.Wrap(fmt.Errorf("decode %s rate %q: %w", currency, raw, err))
	}

	retrievedAt := c.now()
	if latest.TimeLastUpdateUnix > 0 {
		retrievedAt = time.Unix(latest.TimeLastUpdateUnix, 0).UTC()
	}
	rate, err := exchange.NewExchangeRate(country, currency, value, retrievedAt)
	if err != nil {
		telemetry.RecordError(span, err)
		return exchange.RateQuote{}, err
	}

	telemetry.SetAttributes(span, telemetry.SpanAttrCurrency, string(currency))
	telemetry.SetOK(span)
	return exchange.RateQuote{Rate: rate, Source: exchange.CacheSourceLive}, nil
}

// latest fetches the USD table, sharing one request between concurrent callers.
// The request outlives a cancelled caller and is bounded by the HTTP client timeout.
func (c *Client) latest(ctx context.Context) (*latestResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, exchange.ErrExchangeRateUnavailable.Wrap(err)
	}
	detached := context.WithoutCancel(ctx)
	ch := c.fetches.DoChan("USD", func() (any, error) {
		return c.fetch(detached)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*latestResponse), nil
	case <-ctx.Done():
		return nil, exchange.ErrExchangeRateUnavailable.Wrap(ctx.Err())
	}
}

func (c *Client) fetch(ctx context.Context) (*latestResponse, error) {
	url := c.baseURL + "/USD"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, exchange.ErrExchangeRateUnavailable.Wrap(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, exchange.ErrExchangeRateUnavailable.Wrap(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, exchange.ErrExchangeRateUnavailable.Wrap(fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, exchange.ErrExchangeRateUnavailable.WithMessage(fmt.Sprintf("GET %s: HTTP %d", url, resp.StatusCode))
	}

	var latest latestResponse
	if err := json.Unmarshal(body, &latest); err != nil {
		return nil, exchange.ErrExchangeRateUnavailable.Wrap(fmt.Errorf("decode response: %w", err))
	}
	if latest.Result != "" && latest.Result != "success" {
		return nil, exchange.ErrExchangeRateUnavailable.WithMessage(
			fmt.Sprintf("rate service returned %q (%s)", latest.Result, latest.ErrorType))
	}
	if len(latest.Rates) == 0 {
		return nil, exchange.ErrExchangeRateUnavailable.Wrap(errors.New("response has no rates"))
	}

	c.logger.Debug("Fetched USD exchange rates",
		zap.Int("currencies", len(latest.Rates)),
		zap.Duration("duration", c.now().Sub(start)),
	)
	return &latest, nil
}

var _ exchange.ExchangeRateSource = (*Client)(nil)
