// Package normalizer turns completed record spans into normalized case records.
package normalizer

import (
	"fmt"
	"time"

	"djeworker/internal/models"
)

// FieldExtractor populates structured fields from one record's text.
type FieldExtractor interface {
	Extract(text string) models.Fields
}

// Processor handles span validation and record transformation.
type Processor struct {
	extractor   FieldExtractor
	validator   *Validator
	transformer *Transformer
}

// NewProcessor creates a processor with the default defendant and text cap.
func NewProcessor(extractor FieldExtractor) *Processor {
	return NewProcessorWithOptions(extractor, models.DefaultDefendant, DefaultMaxTextLength)
}

// NewProcessorWithOptions creates a processor with a custom defendant and text cap.
func NewProcessorWithOptions(extractor FieldExtractor, defendant string, maxTextLength int) *Processor {
	return &Processor{
		extractor:   extractor,
		validator:   NewValidator(),
		transformer: NewTransformer(defendant, maxTextLength),
	}
}

// Process extracts and normalizes one span into a case record dated filingDate.
func (p *Processor) Process(span models.RecordSpan, filingDate time.Time) (*models.CaseRecord, error) {
	// 1. Only completed spans become records
	if err := p.validator.ValidateSpan(span); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	// 2. Extract fields
	fields := p.extractor.Extract(span.Text)

	// 3. Transform into the record
	record, err := p.transformer.Transform(span, fields, filingDate)
	if err != nil {
		return nil, fmt.Errorf("transformation failed: %w", err)
	}

	if err := p.validator.ValidateRecord(record); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return record, nil
}
