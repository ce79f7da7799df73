package validator

import (
	"strings"
	"testing"
)

func TestFold(t *testing.T) {
	if got := Fold("  Requisição de PAGAMENTO  "); got != "requisicao de pagamento" {
		t.Errorf("Expected requisicao de pagamento, got %q", got)
	}
}

func TestKeywordValidator_Validate(t *testing.T) {
	v, err := NewKeywordValidator(nil)
	if err != nil {
		t.Fatalf("NewKeywordValidator failed: %v", err)
	}

	tests := []struct {
		name    string
		text    string
		ok      bool
		missing int
	}{
		{"exact phrases", "Expeça-se RPV. Aguarde-se o pagamento pelo INSS.", true, 0},
		{"case and spacing", "expeça-se rpv; PAGAMENTO\n  pelo inss", true, 0},
		{"reworded", "Expeça-se RPV. Intime-se o INSS para efetuar o respectivo pagamento.", true, 0},
		{"insurer before payment", "RPV expedida. O INSS comprovou o pagamento.", true, 0},
		{"missing rpv", "Aguarde-se o pagamento pelo INSS.", false, 1},
		{"missing both", "Cite-se o réu.", false, 2},
		{"repeated rpv only", "RPV RPV RPV RPV", false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.text)

			if res.OK != tt.ok {
				t.Errorf("Expected OK %v, got %v (missing %v)", tt.ok, res.OK, res.Missing)
			}

			if len(res.Missing) != tt.missing {
				t.Errorf("Expected %d missing, got %v", tt.missing, res.Missing)
			}
		})
	}
}

func TestKeywordValidator_RepeatedTokenDoesNotCompensate(t *testing.T) {
	v, err := NewKeywordValidator(nil)
	if err != nil {
		t.Fatalf("NewKeywordValidator failed: %v", err)
	}

	res := v.Validate(strings.Repeat("Expeça-se RPV. ", 50))

	if res.OK {
		t.Errorf("Expected rejection without %q", KeywordPaymentByInsurer)
	}

	if len(res.Missing) != 1 || res.Missing[0] != KeywordPaymentByInsurer {
		t.Errorf("Expected missing [%s], got %v", KeywordPaymentByInsurer, res.Missing)
	}
}

func TestKeywordValidator_AccentInsensitive(t *testing.T) {
	v, err := NewKeywordValidator([]string{"requisição"})
	if err != nil {
		t.Fatalf("NewKeywordValidator failed: %v", err)
	}

	if !v.Validate("REQUISICAO de pequeno valor").OK {
		t.Errorf("Expected accent-insensitive match")
	}
}

func TestNewKeywordValidator_Blank(t *testing.T) {
	if _, err := NewKeywordValidator([]string{" "}); err == nil {
		t.Errorf("Expected error for blank keywords")
	}
}
