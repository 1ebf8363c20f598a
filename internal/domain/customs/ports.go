package customs

import (
	"context"

	"github.com/erp/customs/internal/domain/shared/valueobject"
)

// TaxClassificationSource looks up classification records.
// A missing code is reported with an error wrapping ErrClassificationNotFound.
type TaxClassificationSource interface {
	GetClassification(ctx context.Context, code string) (*TaxClassification, error)
}

// DestinationTaxRegimeSource returns the tax system of a destination country.
// Countries without a record resolve to TaxSystemNone.
type DestinationTaxRegimeSource interface {
	GetRegime(ctx context.Context, country valueobject.CountryCode) (TaxSystem, error)
}

// QuoteWorklist provides the quotes a batch run processes
type QuoteWorklist interface {
	LoadQuotes(ctx context.Context) ([]Quote, error)
}
