package models

import (
	"fmt"
	"strings"

	"github.com/erp/customs/internal/domain/customs"
	"github.com/erp/customs/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// TaxClassificationModel is the persistence model for one product classification
type TaxClassificationModel struct {
	TimestampModel
	Code                       string           `gorm:"type:varchar(32);primaryKey"`
	Category                   string           `gorm:"type:varchar(200);not null;default:''"`
	MinimumValuationUSD        *decimal.Decimal `gorm:"column:minimum_valuation_usd;type:numeric(18,4)"`
	RequiresCurrencyConversion bool             `gorm:"not null;default:false"`
	CustomsPct                 decimal.Decimal  `gorm:"type:numeric(9,4);not null;default:0"`
	GSTPct                     *decimal.Decimal `gorm:"column:gst_pct;type:numeric(9,4)"`
	VATPct                     *decimal.Decimal `gorm:"column:vat_pct;type:numeric(9,4)"`
	SalesTaxPct                *decimal.Decimal `gorm:"type:numeric(9,4)"`
	Confidence                 float64          `gorm:"column:classification_confidence;not null;default:1"`
}

// TableName returns the table name for GORM
func (TaxClassificationModel) TableName() string {
	return "tax_classifications"
}

// ToDomain validates the row into a TaxClassification
func (m *TaxClassificationModel) ToDomain() (*customs.TaxClassification, error) {
	return customs.NewTaxClassification(
		m.Code,
		m.Category,
		m.MinimumValuationUSD,
		m.RequiresCurrencyConversion,
		customs.TaxRates{
			CustomsPct:  m.CustomsPct,
			GSTPct:      m.GSTPct,
			VATPct:      m.VATPct,
			SalesTaxPct: m.SalesTaxPct,
		},
		m.Confidence,
	)
}

// TaxClassificationModelFromDomain converts a domain classification to its row
func TaxClassificationModelFromDomain(c *customs.TaxClassification) *TaxClassificationModel {
	return &TaxClassificationModel{
		Code:                       c.Code,
		Category:                   c.Category,
		MinimumValuationUSD:        c.MinimumValuationUSD,
		RequiresCurrencyConversion: c.RequiresCurrencyConversion,
		CustomsPct:                 c.Rates.CustomsPct,
		GSTPct:                     c.Rates.GSTPct,
		VATPct:                     c.Rates.VATPct,
		SalesTaxPct:                c.Rates.SalesTaxPct,
		Confidence:                 c.Confidence,
	}
}

// DestinationTaxRegimeModel maps a destination country to its value-added tax system
type DestinationTaxRegimeModel struct {
	TimestampModel
	CountryCode string `gorm:"type:char(2);primaryKey"`
	TaxSystem   string `gorm:"type:varchar(16);not null"`
}

// TableName returns the table name for GORM
func (DestinationTaxRegimeModel) TableName() string {
	return "destination_tax_regimes"
}

// ToDomain validates the row's tax system
func (m *DestinationTaxRegimeModel) ToDomain() (customs.TaxSystem, error) {
	if strings.TrimSpace(m.TaxSystem) == "" {
		return "", customs.ErrInvalidRegime.WithMessage(fmt.Sprintf("regime for %s has no tax system", m.CountryCode))
	}
	system, err := customs.ParseTaxSystem(m.TaxSystem)
	if err != nil {
		return "", fmt.Errorf("regime for %s: %w", m.CountryCode, err)
	}
	return system, nil
}

// DestinationTaxRegimeModelFromDomain builds the row for a country's regime
func DestinationTaxRegimeModelFromDomain(country valueobject.CountryCode, system customs.TaxSystem) *DestinationTaxRegimeModel {
	return &DestinationTaxRegimeModel{
		CountryCode: strings.ToUpper(string(country)),
		TaxSystem:   string(system),
	}
}
