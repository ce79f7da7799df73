package metadata

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSign_Verify(t *testing.T) {
	generated := time.Date(2024, 11, 4, 12, 0, 0, 0, time.UTC)
	body := "# Publicações\n\n| Processo |\n| --- |\n| 1 |\n"

	signed := Sign(body, Metadata{GeneratedAt: generated, Source: "dje", Records: 1, Validated: true})

	ok, err := Verify(signed)
	if err != nil || !ok {
		t.Fatalf("Expected valid signature, got %v (%v)", ok, err)
	}

	meta, clean := Extract(signed)
	if meta == nil {
		t.Fatalf("Expected signature block")
	}

	if clean != strings.TrimRight(body, "\n") {
		t.Errorf("Expected body unchanged, got %q", clean)
	}

	if !meta.GeneratedAt.Equal(generated) || meta.Records != 1 || !meta.Validated || meta.Source != "dje" {
		t.Errorf("Unexpected metadata %+v", meta)
	}
}

func TestSign_Resign(t *testing.T) {
	first := Sign("content", Metadata{Records: 1})
	second := Sign(first, Metadata{Records: 2})

	if strings.Count(second, TagStart) != 1 {
		t.Errorf("Expected a single signature block after resigning")
	}

	meta, _ := Extract(second)
	if meta.Records != 2 {
		t.Errorf("Expected 2 records, got %d", meta.Records)
	}

	if meta.GeneratedAt.IsZero() {
		t.Errorf("Expected generation time to be stamped")
	}
}

func TestVerify_Errors(t *testing.T) {
	if _, err := Verify("no block here"); !errors.Is(err, ErrNoSignature) {
		t.Errorf("Expected ErrNoSignature, got %v", err)
	}

	noHash := "body\n\n" + TagStart + "\nRECORDS: 1\n" + TagEnd
	if _, err := Verify(noHash); !errors.Is(err, ErrNoHashFound) {
		t.Errorf("Expected ErrNoHashFound, got %v", err)
	}

	tampered := strings.Replace(Sign("| 1500,00 |", Metadata{}), "1500,00", "9500,00", 1)
	if _, err := Verify(tampered); !errors.Is(err, ErrHashMismatch) {
		t.Errorf("Expected ErrHashMismatch, got %v", err)
	}
}
