package models

import "github.com/shopspring/decimal"

// Fields holds what the field extractor found in one record's text.
// Every field is optional; a miss leaves the zero value.
type Fields struct {
	CaseNumber             *string
	Plaintiff              *string
	Principal              decimal.NullDecimal
	Interest               decimal.NullDecimal
	Fees                   decimal.NullDecimal
	Attorneys              []string
	InterestState          InterestState
	PlaintiffLowConfidence bool
}
