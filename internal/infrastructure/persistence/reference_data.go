package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/erp/customs/internal/domain/customs"
	"github.com/erp/customs/internal/domain/shared"
	"github.com/erp/customs/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// referenceData is the seed document for the classification and regime tables
type referenceData struct {
	Classifications []referenceClassification `json:"classifications"`
	// Regimes maps destination country to tax system name
	Regimes map[string]string `json:"regimes"`
}

type referenceClassification struct {
	Code                       string  `json:"code"`
	Category                   string  `json:"category"`
	MinimumValuationUSD        *string `json:"minimum_valuation_usd"`
	RequiresCurrencyConversion bool    `json:"requires_currency_conversion"`
	CustomsPct                 string  `json:"customs_pct"`
	GSTPct                     *string `json:"gst_pct"`
	VATPct                     *string `json:"vat_pct"`
	SalesTaxPct                *string `json:"sales_tax_pct"`
	Confidence                 float64 `json:"classification_confidence"`
}

// SeedResult reports how many rows a seed wrote
type SeedResult struct {
	Classifications int
	Regimes         int
}

// SeedReferenceData validates a seed document and upserts it in one transaction.
// Nothing is written if any record is malformed.
func SeedReferenceData(ctx context.Context, db *Database, r io.Reader, logger *zap.Logger) (SeedResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var doc referenceData
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return SeedResult{}, shared.ErrInvalidInput.Wrap(fmt.Errorf("decode reference data: %w", err))
	}

	classifications := make([]*customs.TaxClassification, 0, len(doc.Classifications))
	for _, rc := range doc.Classifications {
		c, err := rc.toDomain()
		if err != nil {
			return SeedResult{}, err
		}
		classifications = append(classifications, c)
	}

	type regime struct {
		country valueobject.CountryCode
		system  customs.TaxSystem
	}
	regimes := make([]regime, 0, len(doc.Regimes))
	for country, name := range doc.Regimes {
		code, err := valueobject.ParseCountryCode(country)
		if err != nil {
			return SeedResult{}, err
		}
		system, err := customs.ParseTaxSystem(name)
		if err != nil {
			return SeedResult{}, fmt.Errorf("regime for %s: %w", code, err)
		}
		regimes = append(regimes, regime{country: code, system: system})
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		classSource := NewGormTaxClassificationSource(tx, logger)
		for _, c := range classifications {
			if err := classSource.Save(ctx, c); err != nil {
				return fmt.Errorf("save classification %s: %w", c.Code, err)
			}
		}
		regimeSource := NewGormDestinationTaxRegimeSource(tx, logger)
		for _, r := range regimes {
			if err := regimeSource.Save(ctx, r.country, r.system); err != nil {
				return fmt.Errorf("save regime for %s: %w", r.country, err)
			}
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, err
	}

	logger.Info("Seeded reference data",
		zap.Int("classifications", len(classifications)),
		zap.Int("regimes", len(regimes)),
	)
	return SeedResult{Classifications: len(classifications), Regimes: len(regimes)}, nil
}

func (rc referenceClassification) toDomain() (*customs.TaxClassification, error) {
	customsPct, err := valueobject.ParseAmount(rc.CustomsPct)
	if err != nil {
		return nil, fmt.Errorf("classification %s customs_pct: %w", rc.Code, err)
	}
	optional := func(field string, s *string) (*decimal.Decimal, error) {
		if s == nil {
			return nil, nil
		}
		d, err := valueobject.ParseAmount(*s)
		if err != nil {
			return nil, fmt.Errorf("classification %s %s: %w", rc.Code, field, err)
		}
		return &d, nil
	}
	minimum, err := optional("minimum_valuation_usd", rc.MinimumValuationUSD)
	if err != nil {
		return nil, err
	}
	gst, err := optional("gst_pct", rc.GSTPct)
	if err != nil {
		return nil, err
	}
	vat, err := optional("vat_pct", rc.VATPct)
	if err != nil {
		return nil, err
	}
	salesTax, err := optional("sales_tax_pct", rc.SalesTaxPct)
	if err != nil {
		return nil, err
	}
	return customs.NewTaxClassification(rc.Code, rc.Category, minimum, rc.RequiresCurrencyConversion,
		customs.TaxRates{CustomsPct: customsPct, GSTPct: gst, VATPct: vat, SalesTaxPct: salesTax},
		rc.Confidence)
}
