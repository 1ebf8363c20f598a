package dto

import (
	"fmt"
	"time"

	"github.com/erp/customs/internal/domain/customs"
	"github.com/erp/customs/internal/domain/exchange"
	"github.com/erp/customs/internal/domain/shared"
	"github.com/erp/customs/internal/domain/shared/valueobject"
	"github.com/erp/customs/internal/infrastructure/batch"
	"github.com/shopspring/decimal"
)

// Amounts travel as decimal strings so they never pass through float64.

// ConvertRequest asks for one minimum-valuation conversion
type ConvertRequest struct {
	USDAmount      string `json:"usd_amount" binding:"required,decimal"`
	OriginCountry  string `json:"origin_country" binding:"required,len=2"`
	RoundingMethod string `json:"rounding_method" binding:"omitempty,oneof=up down nearest"`
}

// ConvertBatchRequest converts several amounts in one call
type ConvertBatchRequest struct {
	Conversions    []ConvertBatchEntry `json:"conversions" binding:"required,min=1,max=500,dive"`
	RoundingMethod string              `json:"rounding_method" binding:"omitempty,oneof=up down nearest"`
}

// ConvertBatchEntry is one entry of ConvertBatchRequest
type ConvertBatchEntry struct {
	ItemID        string `json:"item_id" binding:"required"`
	USDAmount     string `json:"usd_amount" binding:"required,decimal"`
	OriginCountry string `json:"origin_country" binding:"required,len=2"`
}

// ValidateConversionRequest compares a conversion with an expected figure
type ValidateConversionRequest struct {
	USDAmount      string `json:"usd_amount" binding:"required,decimal"`
	OriginCountry  string `json:"origin_country" binding:"required,len=2"`
	ExpectedAmount string `json:"expected_amount" binding:"required,decimal"`
	TolerancePct   string `json:"tolerance_pct" binding:"omitempty,decimal"`
}

// DefaultTolerancePct applies when ValidateConversionRequest omits tolerance_pct
var DefaultTolerancePct = decimal.NewFromInt(1)

// QuoteRequest is one quote submitted for calculation
type QuoteRequest struct {
	ID                 string            `json:"id" binding:"required,max=128"`
	OriginCountry      string            `json:"origin_country" binding:"required,len=2"`
	DestinationCountry string            `json:"destination_country" binding:"required,len=2"`
	RoundingMethod     string            `json:"rounding_method" binding:"omitempty,oneof=up down nearest"`
	RegimeOverrides    map[string]string `json:"regime_overrides"`
	Items              []QuoteItemInput  `json:"items" binding:"required,min=1,dive"`
}

// QuoteItemInput is one line of QuoteRequest
type QuoteItemInput struct {
	ID                 string `json:"id" binding:"required"`
	Name               string `json:"name"`
	Price              string `json:"price_origin_currency" binding:"required,decimal"`
	ClassificationCode string `json:"classification_code" binding:"required"`
}

// StartBatchRequest submits quotes to the batch driver
type StartBatchRequest struct {
	Quotes        []QuoteRequest `json:"quotes" binding:"required,dive"`
	Concurrency   int            `json:"concurrency" binding:"omitempty,min=1,max=1000"`
	RetryAttempts *int           `json:"retry_attempts" binding:"omitempty,min=0,max=10"`
	RetryDelay    string         `json:"retry_delay" binding:"omitempty"`
}

// ConversionBatchResponse lists conversions in request order
type ConversionBatchResponse struct {
	Conversions []exchange.ConversionResult `json:"conversions"`
}

// QuoteTaxResponse is the outcome of one quote calculation
type QuoteTaxResponse struct {
	customs.QuoteTaxResult
	Complete bool `json:"complete"`
}

// BatchStartedResponse is returned when a batch run was accepted
type BatchStartedResponse struct {
	RunID      string `json:"run_id"`
	TotalUnits int    `json:"total_units"`
}

// BatchStatusResponse is the current batch view
type BatchStatusResponse struct {
	Progress batch.Progress           `json:"progress"`
	Results  []BatchUnitResponse      `json:"results"`
	Quotes   []customs.QuoteTaxResult `json:"quotes,omitempty"`
}

// BatchUnitResponse is one finished unit
type BatchUnitResponse struct {
	UnitID          string `json:"unit_id"`
	Success         bool   `json:"success"`
	ItemsProcessed  int    `json:"items_processed"`
	ItemsSuccessful int    `json:"items_successful"`
	Attempts        int    `json:"attempts"`
	DurationMs      int64  `json:"duration_ms"`
	Error           string `json:"error,omitempty"`
}

// CacheClearedResponse reports the cache state after a clear
type CacheClearedResponse struct {
	Cleared bool                `json:"cleared"`
	Stats   exchange.CacheStats `json:"stats"`
}

// ToBatchUnitResponses converts driver results
func ToBatchUnitResponses(results []batch.UnitResult) []BatchUnitResponse {
	out := make([]BatchUnitResponse, len(results))
	for i, r := range results {
		out[i] = BatchUnitResponse{
			UnitID:          r.UnitID,
			Success:         r.Success,
			ItemsProcessed:  r.ItemsProcessed,
			ItemsSuccessful: r.ItemsSuccessful,
			Attempts:        r.Attempts,
			DurationMs:      r.Duration.Milliseconds(),
			Error:           r.Error,
		}
	}
	return out
}

// ParseRounding returns the requested rounding method; empty stays empty
func ParseRounding(s string) (valueobject.RoundingMethod, error) {
	if s == "" {
		return "", nil
	}
	method, err := valueobject.ParseRoundingMethod(s)
	if err != nil {
		return "", shared.ErrInvalidInput.Wrap(err)
	}
	return method, nil
}

// ToRequests converts the batch entries to domain conversion requests
func (r ConvertBatchRequest) ToRequests() ([]exchange.ConversionRequest, error) {
	out := make([]exchange.ConversionRequest, 0, len(r.Conversions))
	for _, e := range r.Conversions {
		amount, err := valueobject.ParseAmount(e.USDAmount)
		if err != nil {
			return nil, err
		}
		country, err := valueobject.ParseCountryCode(e.OriginCountry)
		if err != nil {
			return nil, err
		}
		out = append(out, exchange.ConversionRequest{
			USDAmount:     amount,
			OriginCountry: country,
			ItemID:        e.ItemID,
		})
	}
	return out, nil
}

// ToDomain validates the request into a customs.Quote
func (q QuoteRequest) ToDomain() (customs.Quote, error) {
	origin, err := valueobject.ParseCountryCode(q.OriginCountry)
	if err != nil {
		return customs.Quote{}, err
	}
	destination, err := valueobject.ParseCountryCode(q.DestinationCountry)
	if err != nil {
		return customs.Quote{}, err
	}
	rounding, err := ParseRounding(q.RoundingMethod)
	if err != nil {
		return customs.Quote{}, err
	}

	tctx := customs.TaxCalculationContext{
		OriginCountry:      origin,
		DestinationCountry: destination,
		RoundingMethod:     rounding,
	}
	if len(q.RegimeOverrides) > 0 {
		tctx.RegimeOverrides = make(map[valueobject.CountryCode]customs.TaxSystem, len(q.RegimeOverrides))
		for country, name := range q.RegimeOverrides {
			code, err := valueobject.ParseCountryCode(country)
			if err != nil {
				return customs.Quote{}, err
			}
			system, err := customs.ParseTaxSystem(name)
			if err != nil {
				return customs.Quote{}, err
			}
			tctx.RegimeOverrides[code] = system
		}
	}

	items := make([]customs.QuoteItem, 0, len(q.Items))
	for _, it := range q.Items {
		price, err := valueobject.ParseAmount(it.Price)
		if err != nil {
			return customs.Quote{}, err
		}
		item, err := customs.NewQuoteItem(it.ID, it.Name, price, it.ClassificationCode)
		if err != nil {
			return customs.Quote{}, err
		}
		items = append(items, item)
	}
	return customs.Quote{ID: q.ID, Items: items, Context: tctx}, nil
}

// ToQuotes validates every quote. IDs must be unique within the request.
func (r StartBatchRequest) ToQuotes() ([]customs.Quote, error) {
	quotes := make([]customs.Quote, 0, len(r.Quotes))
	seen := make(map[string]struct{}, len(r.Quotes))
	for _, q := range r.Quotes {
		if _, dup := seen[q.ID]; dup {
			return nil, shared.ErrInvalidInput.WithMessage(fmt.Sprintf("duplicate quote id %s", q.ID))
		}
		seen[q.ID] = struct{}{}
		quote, err := q.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("quote %s: %w", q.ID, err)
		}
		quotes = append(quotes, quote)
	}
	return quotes, nil
}

// Options merges the request overrides into defaults
func (r StartBatchRequest) Options(defaults batch.Options) (batch.Options, error) {
	opts := defaults
	if r.Concurrency > 0 {
		opts.Concurrency = r.Concurrency
	}
	if r.RetryAttempts != nil {
		opts.RetryAttempts = *r.RetryAttempts
	}
	if r.RetryDelay != "" {
		d, err := time.ParseDuration(r.RetryDelay)
		if err != nil || d < 0 {
			return batch.Options{}, shared.ErrInvalidInput.WithMessage(fmt.Sprintf("invalid retry_delay %q", r.RetryDelay))
		}
		opts.RetryDelay = d
	}
	return opts, nil
}
