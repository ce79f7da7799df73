package normalizer

import (
	"errors"
	"fmt"
	"strings"

	"djeworker/internal/models"
)

// Validation errors.
var (
	ErrIncompleteSpan   = errors.New("span is incomplete")
	ErrEmptySpan        = errors.New("span has no text")
	ErrMissingDate      = errors.New("record missing filing date")
	ErrNegativeAmount   = errors.New("record has a negative amount")
	ErrMissingDefendant = errors.New("record missing defendant")
)

// Validator checks the structural invariants of spans and records.
type Validator struct{}

// NewValidator creates a new validator instance.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateSpan rejects spans that must never become records.
func (v *Validator) ValidateSpan(span models.RecordSpan) error {
	if !span.Complete() {
		return ErrIncompleteSpan
	}

	if strings.TrimSpace(span.Text) == "" {
		return ErrEmptySpan
	}

	return nil
}

// ValidateRecord checks a transformed record.
func (v *Validator) ValidateRecord(record *models.CaseRecord) error {
	if record.FilingDate.IsZero() {
		return ErrMissingDate
	}

	if record.Defendant == "" {
		return ErrMissingDefendant
	}

	amounts := map[string]struct {
		valid    bool
		negative bool
	}{
		"principal": {record.Principal.Valid, record.Principal.Decimal.IsNegative()},
		"interest":  {record.Interest.Valid, record.Interest.Decimal.IsNegative()},
		"fees":      {record.Fees.Valid, record.Fees.Decimal.IsNegative()},
	}

	for name, a := range amounts {
		if a.valid && a.negative {
			return fmt.Errorf("%w: %s", ErrNegativeAmount, name)
		}
	}

	return nil
}
