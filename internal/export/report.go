package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"djeworker/internal/formatter"
	"djeworker/internal/models"
	"djeworker/pkg/metadata"
)

// maxCellWidth caps free-text columns in the markdown table.
const maxCellWidth = 48

var reportHeaders = []string{
	"Processo",
	"Disponibilização",
	"Autor",
	"Advogado",
	"Principal",
	"Juros",
	"Honorários",
	"Status",
}

// MarkdownReport builds a signed markdown report of pubs. meta supplies the
// generation time and source; Records and Hash are filled in here.
func MarkdownReport(pubs []models.Publication, meta metadata.Metadata) (string, error) {
	if meta.GeneratedAt.IsZero() {
		meta.GeneratedAt = time.Now()
	}

	rows := make([][]string, 0, len(pubs))

	for _, p := range pubs {
		rows = append(rows, []string{
			p.CaseNumberOrEmpty(),
			p.FilingDate.Format("02/01/2006"),
			deref(p.Plaintiff),
			deref(p.Attorney),
			FormatBRL(p.Principal),
			FormatBRL(p.Interest),
			FormatBRL(p.Fees),
			string(p.Status),
		})
	}

	var sb strings.Builder

	sb.WriteString("# Publicações RPV\n\n")
	fmt.Fprintf(&sb, "Gerado em %s. Total de publicações: %d.\n\n", meta.GeneratedAt.Format("02/01/2006 15:04"), len(pubs))

	if total := sumPrincipal(pubs); total.Valid {
		fmt.Fprintf(&sb, "Valor principal total: R$ %s.\n\n", FormatBRL(total))
	}

	sb.WriteString(formatter.Table(reportHeaders, rows, maxCellWidth))
	sb.WriteString("\n")

	formatted, err := formatter.FormatMarkdown(sb.String())
	if err != nil {
		return "", fmt.Errorf("format report: %w", err)
	}

	meta.Records = len(pubs)

	return metadata.Sign(formatted, meta), nil
}

// HTMLReport renders a markdown report as a standalone HTML page. The
// signature block is carried over as a comment.
func HTMLReport(markdown string) (string, error) {
	meta, body := metadata.Extract(markdown)

	var content bytes.Buffer

	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(body), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}

	var sb strings.Builder

	sb.WriteString("<!doctype html><html><head><meta charset='utf-8'><title>Publicações RPV</title><style>")
	sb.WriteString("body{font-family:sans-serif;margin:2rem;}table{border-collapse:collapse;}")
	sb.WriteString("th,td{border:1px solid #ccc;padding:0.3rem 0.6rem;}th{background:#f3f3f3;}")
	sb.WriteString("</style></head><body>\n")
	sb.WriteString(content.String())
	sb.WriteString("</body></html>\n")

	if meta != nil {
		fmt.Fprintf(&sb, "<!-- report hash %s, %d records -->\n", meta.Hash, meta.Records)
	}

	return sb.String(), nil
}

// FormatBRL renders an amount with Brazilian separators ("1.234,56"), or "-"
// when absent.
func FormatBRL(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}

	fixed := d.Decimal.StringFixed(2)

	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}

	whole, frac, _ := strings.Cut(fixed, ".")

	var sb strings.Builder

	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			sb.WriteByte('.')
		}

		sb.WriteRune(r)
	}

	return sign + sb.String() + "," + frac
}

func sumPrincipal(pubs []models.Publication) decimal.NullDecimal {
	var total decimal.NullDecimal

	for _, p := range pubs {
		if !p.Principal.Valid {
			continue
		}

		total = decimal.NewNullDecimal(total.Decimal.Add(p.Principal.Decimal))
	}

	return total
}
