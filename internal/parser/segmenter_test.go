package parser

import (
	"strings"
	"testing"

	"djeworker/internal/models"
)

func TestSegmenter_Segment_CompleteAndTail(t *testing.T) {
	text := "Cabeçalho do caderno. " +
		"Processo 1 - Ana - Vistos. ADV: X (OAB 1/SP) " +
		"Processo 2 - Bia - Vistos. ADV: Y (OAB 2/SP) " +
		"Processo 3 - Caio - inicio sem fim"

	spans := NewSegmenter(nil).Segment(text)

	if len(spans) != 3 {
		t.Fatalf("Expected 3 spans, got %d", len(spans))
	}

	if spans[0].Text != "Processo 1 - Ana - Vistos. ADV: X (OAB 1/SP)" {
		t.Errorf("Unexpected first span: %q", spans[0].Text)
	}

	if !spans[0].Complete() || !spans[1].Complete() {
		t.Errorf("Expected first two spans to be complete")
	}

	if spans[2].Complete() {
		t.Errorf("Expected tail span to be incomplete")
	}

	if spans[2].Text != "Processo 3 - Caio - inicio sem fim" {
		t.Errorf("Unexpected tail span: %q", spans[2].Text)
	}

	if spans[2].Start != strings.Index(text, "Processo 3") {
		t.Errorf("Expected tail start %d, got %d", strings.Index(text, "Processo 3"), spans[2].Start)
	}
}

func TestSegmenter_Segment_RecordWithoutEndIsAbsorbed(t *testing.T) {
	text := "Processo 1 sem advogado. Processo 2 - Bia - Vistos. ADV: Y (OAB 2/SP)"

	spans := NewSegmenter(nil).Segment(text)

	if len(spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(spans))
	}

	if spans[0].Text != text {
		t.Errorf("Expected span to cover both records, got %q", spans[0].Text)
	}
}

func TestSegmenter_Segment_TailStartsAtLastAnchor(t *testing.T) {
	text := "Processo 1 texto solto Processo 2 mais texto"

	spans := NewSegmenter(nil).Segment(text)

	if len(spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(spans))
	}

	if spans[0].Text != "Processo 2 mais texto" {
		t.Errorf("Expected tail at last anchor, got %q", spans[0].Text)
	}
}

func TestSegmenter_Segment_NoAnchors(t *testing.T) {
	spans := NewSegmenter(nil).Segment("Intimações diversas sem registro.")

	if len(spans) != 0 {
		t.Errorf("Expected 0 spans, got %d", len(spans))
	}
}

func TestSegmenter_Spans_StopsEarly(t *testing.T) {
	text := "Processo 1 ADV: X (OAB 1/SP) Processo 2 ADV: Y (OAB 2/SP)"

	count := 0
	for range NewSegmenter(nil).Spans(text) {
		count++
		break
	}

	if count != 1 {
		t.Errorf("Expected 1 iteration, got %d", count)
	}
}

func TestSegmenter_Tail(t *testing.T) {
	s := NewSegmenter(nil)

	if _, ok := s.Tail("Processo 1 ADV: X (OAB 1/SP)"); ok {
		t.Errorf("Expected no tail for a fully closed page")
	}

	tail, ok := s.Tail("Processo 1 ADV: X (OAB 1/SP) Processo 2 aberto")
	if !ok {
		t.Fatalf("Expected a tail")
	}

	if tail.State != models.SpanIncomplete {
		t.Errorf("Expected INCOMPLETE, got %s", tail.State)
	}
}

func TestNewAnchors_Invalid(t *testing.T) {
	if _, err := NewAnchors("(", ""); err == nil {
		t.Errorf("Expected error for invalid start anchor")
	}

	a, err := NewAnchors("", "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if a.FirstStart("abc Processo") != 4 {
		t.Errorf("Expected default start anchor at 4, got %d", a.FirstStart("abc Processo"))
	}
}
