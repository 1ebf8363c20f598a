package customs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/erp/customs/internal/domain/shared"
	"github.com/erp/customs/internal/domain/shared/valueobject"
)

// ItemFailure is one item whose calculation did not complete
type ItemFailure struct {
	ItemID string `json:"item_id"`
	Err    error  `json:"-"`
}

// Error implements the error interface
func (f ItemFailure) Error() string {
	return fmt.Sprintf("item %s: %v", f.ItemID, f.Err)
}

// Unwrap returns the underlying error
func (f ItemFailure) Unwrap() error {
	return f.Err
}

// Permanent reports whether recalculating the item cannot succeed without new input
func (f ItemFailure) Permanent() bool {
	return IsPermanentItemError(f.Err)
}

// MarshalText lets failures appear in JSON payloads
func (f ItemFailure) MarshalText() ([]byte, error) {
	return []byte(f.Error()), nil
}

// ItemErrors collects the failures of a multi-item calculation.
// errors.Is and errors.As look through every collected failure.
type ItemErrors []ItemFailure

// Error implements the error interface
func (e ItemErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	parts := make([]string, len(e))
	for i, f := range e {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("%d items failed: %s", len(e), strings.Join(parts, "; "))
}

// Unwrap exposes every failure to errors.Is / errors.As
func (e ItemErrors) Unwrap() []error {
	errs := make([]error, len(e))
	for i, f := range e {
		errs[i] = f
	}
	return errs
}

// AllPermanent reports whether no failure is worth retrying
func (e ItemErrors) AllPermanent() bool {
	for _, f := range e {
		if !f.Permanent() {
			return false
		}
	}
	return true
}

// IsPermanentItemError reports whether err comes from bad input rather than an unavailable source
func IsPermanentItemError(err error) bool {
	return errors.Is(err, ErrClassificationNotFound) ||
		errors.Is(err, ErrInvalidClassification) ||
		errors.Is(err, ErrInvalidRegime) ||
		errors.Is(err, shared.ErrInvalidInput) ||
		errors.Is(err, valueobject.ErrInvalidAmount) ||
		errors.Is(err, valueobject.ErrInvalidCountry) ||
		errors.Is(err, valueobject.ErrInvalidCurrency)
}
