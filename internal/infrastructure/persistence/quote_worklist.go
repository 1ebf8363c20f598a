package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/erp/customs/internal/domain/customs"
	"github.com/erp/customs/internal/domain/shared"
	"github.com/erp/customs/internal/domain/shared/valueobject"
)

// worklistFile is the on-disk layout of a quote worklist
type worklistFile struct {
	Quotes []worklistQuote `json:"quotes"`
}

type worklistQuote struct {
	ID                 string            `json:"id"`
	OriginCountry      string            `json:"origin_country"`
	DestinationCountry string            `json:"destination_country"`
	RoundingMethod     string            `json:"rounding_method,omitempty"`
	RegimeOverrides    map[string]string `json:"regime_overrides,omitempty"`
	Items              []worklistItem    `json:"items"`
}

// worklistItem carries the price as a string so it never passes through float64
type worklistItem struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Price              string `json:"price_origin_currency"`
	ClassificationCode string `json:"classification_code"`
}

// JSONQuoteWorklist reads quotes from a JSON file
type JSONQuoteWorklist struct {
	path string
}

// NewJSONQuoteWorklist creates a worklist backed by the file at path
func NewJSONQuoteWorklist(path string) *JSONQuoteWorklist {
	return &JSONQuoteWorklist{path: path}
}

// LoadQuotes reads and validates every quote in the file
func (w *JSONQuoteWorklist) LoadQuotes(ctx context.Context) ([]customs.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(w.path)
	if err != nil {
		return nil, fmt.Errorf("open worklist: %w", err)
	}
	defer f.Close()

	quotes, err := ReadQuotes(f)
	if err != nil {
		return nil, fmt.Errorf("worklist %s: %w", w.path, err)
	}
	return quotes, nil
}

// ReadQuotes decodes a worklist document. Quote IDs must be unique.
func ReadQuotes(r io.Reader) ([]customs.Quote, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var doc worklistFile
	if err := dec.Decode(&doc); err != nil {
		return nil, shared.ErrInvalidInput.Wrap(fmt.Errorf("decode worklist: %w", err))
	}

	quotes := make([]customs.Quote, 0, len(doc.Quotes))
	seen := make(map[string]struct{}, len(doc.Quotes))
	for i, q := range doc.Quotes {
		quote, err := q.toDomain()
		if err != nil {
			return nil, fmt.Errorf("quote %d: %w", i, err)
		}
		if _, dup := seen[quote.ID]; dup {
			return nil, shared.ErrInvalidInput.WithMessage(fmt.Sprintf("duplicate quote id %s", quote.ID))
		}
		seen[quote.ID] = struct{}{}
		quotes = append(quotes, quote)
	}
	return quotes, nil
}

func (q worklistQuote) toDomain() (customs.Quote, error) {
	if q.ID == "" {
		return customs.Quote{}, shared.ErrInvalidInput.WithMessage("quote id cannot be empty")
	}

	origin, err := valueobject.ParseCountryCode(q.OriginCountry)
	if err != nil {
		return customs.Quote{}, fmt.Errorf("quote %s origin: %w", q.ID, err)
	}
	destination, err := valueobject.ParseCountryCode(q.DestinationCountry)
	if err != nil {
		return customs.Quote{}, fmt.Errorf("quote %s destination: %w", q.ID, err)
	}

	tctx := customs.TaxCalculationContext{
		OriginCountry:      origin,
		DestinationCountry: destination,
	}
	if q.RoundingMethod != "" {
		method, err := valueobject.ParseRoundingMethod(q.RoundingMethod)
		if err != nil {
			return customs.Quote{}, shared.ErrInvalidInput.Wrap(fmt.Errorf("quote %s: %w", q.ID, err))
		}
		tctx.RoundingMethod = method
	}
	if len(q.RegimeOverrides) > 0 {
		tctx.RegimeOverrides = make(map[valueobject.CountryCode]customs.TaxSystem, len(q.RegimeOverrides))
		for country, name := range q.RegimeOverrides {
			code, err := valueobject.ParseCountryCode(country)
			if err != nil {
				return customs.Quote{}, fmt.Errorf("quote %s override: %w", q.ID, err)
			}
			system, err := customs.ParseTaxSystem(name)
			if err != nil {
				return customs.Quote{}, fmt.Errorf("quote %s override for %s: %w", q.ID, code, err)
			}
			tctx.RegimeOverrides[code] = system
		}
	}

	items := make([]customs.QuoteItem, 0, len(q.Items))
	for _, it := range q.Items {
		price, err := valueobject.ParseAmount(it.Price)
		if err != nil {
			return customs.Quote{}, fmt.Errorf("quote %s item %s: %w", q.ID, it.ID, err)
		}
		item, err := customs.NewQuoteItem(it.ID, it.Name, price, it.ClassificationCode)
		if err != nil {
			return customs.Quote{}, fmt.Errorf("quote %s: %w", q.ID, err)
		}
		items = append(items, item)
	}

	return customs.Quote{ID: q.ID, Items: items, Context: tctx}, nil
}

var _ customs.QuoteWorklist = (*JSONQuoteWorklist)(nil)
