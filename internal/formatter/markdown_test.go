package formatter

import (
	"strings"
	"testing"

	"djeworker/pkg/metadata"
)

func TestFormatMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name: "Accented cells",
			input: `
| Processo | Autor |
| --- | --- |
| 0001 | João da Silva |
`,
			expected: `
| Processo | Autor         |
| -------- | ------------- |
| 0001     | João da Silva |
`,
		},
		{
			name: "Wide runes",
			input: `
| Réu | Valor |
| ------------------- | - |
| ＩＮＳＳ | 1.500,00 |
`,
			expected: `
| Réu      | Valor    |
| -------- | -------- |
| ＩＮＳＳ | 1.500,00 |
`,
		},
		{
			name: "Text around table",
			input: `
# Publicações

| A | B |
| - | - |
| x | y |

Fim do relatório.
`,
			expected: `
# Publicações

| A   | B   |
| --- | --- |
| x   | y   |

Fim do relatório.
`,
		},
		{
			name: "Escaped pipe",
			input: `
| X | Y |
| --- | --- |
| A \| B | C |
`,
			expected: `
| X      | Y   |
| ------ | --- |
| A \| B | C   |
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatMarkdown(strings.TrimSpace(tt.input))
			if err != nil {
				t.Fatalf("FormatMarkdown() error = %v", err)
			}

			if strings.TrimSpace(got) != strings.TrimSpace(tt.expected) {
				t.Errorf("FormatMarkdown() = \n%v\nwant \n%v", got, tt.expected)
			}
		})
	}
}

func TestFormatMarkdown_Resigns(t *testing.T) {
	signed := metadata.Sign("| A | B |\n| - | - |\n| x | y |", metadata.Metadata{Records: 1, Validated: true})

	got, err := FormatMarkdown(signed)
	if err != nil {
		t.Fatalf("FormatMarkdown() error = %v", err)
	}

	if ok, err := metadata.Verify(got); !ok || err != nil {
		t.Fatalf("Expected re-signed document to verify, got %v (%v)", ok, err)
	}

	meta, body := metadata.Extract(got)
	if meta.Records != 1 || !meta.Validated {
		t.Errorf("Expected metadata to survive formatting, got %+v", meta)
	}

	if !strings.Contains(body, "| x   | y   |") {
		t.Errorf("Expected aligned table, got \n%s", body)
	}
}

func TestTable(t *testing.T) {
	got := Table(
		[]string{"Processo", "Autor"},
		[][]string{{"0001", "Maria | Souza"}, {"0002", "Ana\n  Lima"}},
		0,
	)

	expected := strings.Join([]string{
		"| Processo | Autor          |",
		"| -------- | -------------- |",
		"| 0001     | Maria \\| Souza |",
		"| 0002     | Ana Lima       |",
	}, "\n")

	if got != expected {
		t.Errorf("Table() = \n%v\nwant \n%v", got, expected)
	}
}

func TestTable_Truncates(t *testing.T) {
	got := Table([]string{"Conteúdo"}, [][]string{{"Trata-se de expedição de RPV"}}, 10)

	lines := strings.Split(got, "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d", len(lines))
	}

	if !strings.Contains(lines[2], "Trata-") || !strings.Contains(lines[2], "…") {
		t.Errorf("Expected truncated cell, got %q", lines[2])
	}

	if strings.Contains(lines[2], "RPV") {
		t.Errorf("Expected tail to be cut, got %q", lines[2])
	}
}
