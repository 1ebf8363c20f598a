package valueobject

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// RoundingMethod selects how a converted amount is brought to the currency's smallest unit
type RoundingMethod string

const (
	// RoundingUp rounds toward positive infinity (ceiling)
	RoundingUp RoundingMethod = "up"
	// RoundingDown rounds toward negative infinity (floor)
	RoundingDown RoundingMethod = "down"
	// RoundingNearest rounds half away from zero
	RoundingNearest RoundingMethod = "nearest"
)

// DefaultRoundingMethod never under-declares a taxable value
const DefaultRoundingMethod = RoundingUp

// ParseRoundingMethod parses a rounding method name. Empty input yields the default.
func ParseRoundingMethod(s string) (RoundingMethod, error) {
	switch RoundingMethod(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultRoundingMethod, nil
	case RoundingUp:
		return RoundingUp, nil
	case RoundingDown:
		return RoundingDown, nil
	case RoundingNearest:
		return RoundingNearest, nil
	default:
		return "", fmt.Errorf("unknown rounding method %q", s)
	}
}

// IsValid returns true for the three supported methods
func (r RoundingMethod) IsValid() bool {
	switch r {
	case RoundingUp, RoundingDown, RoundingNearest:
		return true
	default:
		return false
	}
}

// Apply rounds amount to the given number of decimal places.
// An unknown method falls back to the default.
func (r RoundingMethod) Apply(amount decimal.Decimal, places int32) decimal.Decimal {
	switch r {
	case RoundingDown:
		return amount.RoundFloor(places)
	case RoundingNearest:
		return amount.Round(places)
	default:
		return amount.RoundCeil(places)
	}
}
