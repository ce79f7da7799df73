package normalizer

import (
	"errors"
	"time"

	"djeworker/internal/models"
)

// ErrEmptyText is returned when a span carries no text.
var ErrEmptyText = errors.New("span text is empty")

// Transformer builds case records from spans and extracted fields.
type Transformer struct {
	defendant     string
	maxTextLength int
}

// NewTransformer creates a new transformer instance.
func NewTransformer(defendant string, maxTextLength int) *Transformer {
	if defendant == "" {
		defendant = models.DefaultDefendant
	}

	if maxTextLength <= 0 {
		maxTextLength = DefaultMaxTextLength
	}

	return &Transformer{
		defendant:     defendant,
		maxTextLength: maxTextLength,
	}
}

// Transform converts a span and its fields into a case record.
func (t *Transformer) Transform(span models.RecordSpan, fields models.Fields, filingDate time.Time) (*models.CaseRecord, error) {
	if span.Text == "" {
		return nil, ErrEmptyText
	}

	text, _ := CapText(span.Text, t.maxTextLength)

	y, m, d := filingDate.Date()

	record := &models.CaseRecord{
		CaseNumber:             fields.CaseNumber,
		FilingDate:             time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Plaintiff:              fields.Plaintiff,
		PlaintiffLowConfidence: fields.PlaintiffLowConfidence,
		Defendant:              t.defendant,
		Attorneys:              fields.Attorneys,
		Principal:              fields.Principal,
		Interest:               fields.Interest,
		InterestState:          fields.InterestState,
		Fees:                   fields.Fees,
		FullText:               text,
		Source:                 span.Pages,
	}

	if record.Attorneys == nil {
		record.Attorneys = []string{}
	}

	return record, nil
}
