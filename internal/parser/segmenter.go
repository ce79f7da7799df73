package parser

import (
	"iter"
	"slices"

	"djeworker/internal/models"
)

// Segmenter splits one page of text into record spans.
type Segmenter struct {
	anchors *Anchors
}

// NewSegmenter creates a segmenter over the given anchors.
func NewSegmenter(anchors *Anchors) *Segmenter {
	if anchors == nil {
		anchors = DefaultAnchors()
	}

	return &Segmenter{anchors: anchors}
}

// Spans lazily yields the record spans of text in order. Each span runs from a
// start anchor to the first end anchor after it; a record lacking its own end
// anchor is absorbed by the span that reaches the next one. If start anchors
// remain with no end anchor after them, a single INCOMPLETE span beginning at
// the last of them is yielded at the tail. The sequence may be ranged over
// more than once.
func (s *Segmenter) Spans(text string) iter.Seq[models.RecordSpan] {
	return func(yield func(models.RecordSpan) bool) {
		pos := 0

		for pos < len(text) {
			rel := s.anchors.FirstStart(text[pos:])
			if rel < 0 {
				return
			}

			start := pos + rel

			endRel := s.anchors.EndAfter(text[start:])
			if endRel < 0 {
				tail := start + s.anchors.LastStart(text[start:])
				yield(models.RecordSpan{
					Start: tail,
					Text:  text[tail:],
					State: models.SpanIncomplete,
				})

				return
			}

			end := start + endRel
			if !yield(models.RecordSpan{
				Start: start,
				Text:  text[start:end],
				State: models.SpanComplete,
			}) {
				return
			}

			pos = end
		}
	}
}

// Segment collects every span of text.
func (s *Segmenter) Segment(text string) []models.RecordSpan {
	return slices.Collect(s.Spans(text))
}

// Tail returns the trailing INCOMPLETE span of text, if any.
func (s *Segmenter) Tail(text string) (models.RecordSpan, bool) {
	var tail models.RecordSpan

	found := false

	for span := range s.Spans(text) {
		if !span.Complete() {
			tail = span
			found = true
		}
	}

	return tail, found
}
