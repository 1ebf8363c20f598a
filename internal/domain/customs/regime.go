package customs

import (
	"fmt"
	"strings"

	"github.com/erp/customs/internal/domain/shared"
)

// ErrInvalidRegime is returned for unknown tax systems
var ErrInvalidRegime = shared.NewDomainError("INVALID_TAX_REGIME", "Invalid tax regime")

// TaxSystem is the single value-added layer a destination applies
type TaxSystem string

const (
	TaxSystemGST      TaxSystem = "gst"
	TaxSystemVAT      TaxSystem = "vat"
	TaxSystemSalesTax TaxSystem = "sales_tax"
	TaxSystemNone     TaxSystem = "none"
)

// AllTaxSystems returns all valid tax systems
func AllTaxSystems() []TaxSystem {
	return []TaxSystem{TaxSystemGST, TaxSystemVAT, TaxSystemSalesTax, TaxSystemNone}
}

// ParseTaxSystem parses a tax system name, case-insensitively
func ParseTaxSystem(s string) (TaxSystem, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch normalized {
	case "gst":
		return TaxSystemGST, nil
	case "vat":
		return TaxSystemVAT, nil
	case "sales_tax", "salestax":
		return TaxSystemSalesTax, nil
	case "none", "":
		return TaxSystemNone, nil
	default:
		return "", ErrInvalidRegime.WithMessage(fmt.Sprintf("unknown tax system %q", s))
	}
}

// IsValid checks if the tax system is valid
func (s TaxSystem) IsValid() bool {
	switch s {
	case TaxSystemGST, TaxSystemVAT, TaxSystemSalesTax, TaxSystemNone:
		return true
	default:
		return false
	}
}

// String returns the string representation of the tax system
func (s TaxSystem) String() string {
	return string(s)
}

// IsDestinationTax reports whether the system is recorded as destination tax (GST or VAT)
func (s TaxSystem) IsDestinationTax() bool {
	return s == TaxSystemGST || s == TaxSystemVAT
}
