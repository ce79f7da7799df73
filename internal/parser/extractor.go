package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"djeworker/internal/logger"
	"djeworker/internal/models"
	"djeworker/internal/normalizer"

	"github.com/shopspring/decimal"
)

// Plaintiff plausibility bounds, in characters.
const (
	minPlaintiffLength = 3
	maxPlaintiffLength = 50
)

// Extractor populates structured fields from a single record's text.
type Extractor struct {
	logger *logger.Logger
	// Field cascades
	caseNumber Cascade
	plaintiff  Cascade
	// Plaintiff checks
	nonNamePattern *regexp.Regexp
	// Attorney patterns
	attorneyPattern    *regexp.Regexp
	attorneyAltPattern *regexp.Regexp
	attorneySplit      *regexp.Regexp
	// Monetary patterns
	summaryPattern   *regexp.Regexp
	principalPattern *regexp.Regexp
	interestPattern  *regexp.Regexp
	waivedPattern    *regexp.Regexp
	feesPattern      *regexp.Regexp
}

// NewExtractor creates an extractor with the TJSP field grammar.
func NewExtractor(log *logger.Logger) *Extractor {
	insurerPrefix := regexp.MustCompile(`(?i)^(INSS|Instituto Nacional)`)
	notInsurer := func(v string) bool {
		return utf8.RuneCountInString(v) > 3 && !insurerPrefix.MatchString(v)
	}

	return &Extractor{
		logger: log,
		caseNumber: captures(
			// CNJ unified numbering
			`\b(\d{7}-\d{2}\.\d{4}\.\d\.\d{2}\.\d{4})\b`,
			`Processo\s+(\d+[-./]\d+[^-\s]*)`,
			`[Pp]rocesso\s+[Nn][º°]?\s*:\s*(\d{7}-\d{2}\.\d{4}\.\d\.\d{2}\.\d{4})`,
			`[Pp]rocesso\s+[Nn][º°]?\s*[.:]\s*(\d{20})`,
			`[Pp]rocesso\s+(\d{20})`,
			`[Pp]rocesso\s+[Nn][º°]?\s*[.:]\s*(\d+[-./]\d+[-./]\d+)`,
			`[Pp]rocesso\s+[Nn][º°]?\s*[.:]\s*(\d+[-./]\d+)`,
			`[Pp]rocesso\s+[Nn][º°]?\s*[.:]\s*(\d+)`,
			`(?:Autos|Número|Numeração)[^:]*:\s*(\d+[-./]?\d*[-./]?\d*[-./]?\d*[-./]?\d*)`,
			// Spaced table layouts
			`Processo\s+.*?(\d{7}-\d{2}\.\d{4}\.\d\.\d{2}\.\d{4})`,
		),
		plaintiff: append(
			captures(
				// Name right before "- Vistos", after the case type
				`(?:Permanent[e]|Espécie|Acidente|Fazenda Pública|Art\. 86|\))?\s*-\s*([^-]+?)\s+-\s+Vistos`,
				// Name after one to three type segments
				`Processo\s+\d+[-./\d\s()]+(?: - [^-]+){1,3} - ([^-]+) -`,
			),
			accepting(capture(regexp.MustCompile(`(?i)(?:Auxílio-Acidente|Benefícios em Espécie|Procedimento Comum)\s*\([^)]*\)\s*-\s*([^-]+?)\s*-\s*Vistos`)), notInsurer),
			accepting(capture(regexp.MustCompile(`(?i)(?:Auxílio-Acidente|Benefícios em Espécie|Incapacidade Laborativa)\s*(?:Permanente)?(?:\([^)]*\))?\s*-\s*([^-]+?)\s*-\s*Vistos`)), notInsurer),
			accepting(capture(regexp.MustCompile(`(?i)\([^)]*Art\.\s*86[^)]*\)\s*-\s*([^-]+?)\s*-\s*Vistos`)), notInsurer),
		),
		nonNamePattern:     regexp.MustCompile(`(?i)outorgando poderes|advogado|advocacia|requisição|crédito|despacho|decisão`),
		attorneyPattern:    regexp.MustCompile(`(?i)ADV:\s+([^(]+)\s*(\(OAB [^)]+\))`),
		attorneyAltPattern: regexp.MustCompile(`(?i)(?:ADVS|ADVOGAD[OA]S?)\s*:\s*([^(]+)\s*(\(OAB[^)]+\))`),
		attorneySplit:      regexp.MustCompile(`,\s*|\s+[eE]\s+`),
		summaryPattern:     regexp.MustCompile(`(?is)homologo os cálculos[^.]*correspondem ao[^R$]*(.+?)\.\s*Os valores`),
		principalPattern:   regexp.MustCompile(`(?i)R\$\s*([0-9.,]+)[^;,$]*(?:principal\s*bruto(?:/l[íi]quido)?|bruto/l[íi]quido)`),
		interestPattern:    regexp.MustCompile(`(?i)R\$\s*([0-9.,]+)[^;,$]*juros\s*morat[óo]rios`),
		waivedPattern:      regexp.MustCompile(`(?i)sem\s*-\s*juros\s*morat[óo]rios`),
		feesPattern:        regexp.MustCompile(`(?i)R\$\s*([0-9.,]+)[^;,$]*honor[áa]rios\s*advocat[íi]cios`),
	}
}

// Extract populates every field independently; a miss on one never blocks the others.
func (e *Extractor) Extract(text string) models.Fields {
	normalized := normalizer.CollapseWhitespace(text)

	var fields models.Fields

	fields.CaseNumber = e.CaseNumber(normalized)
	fields.Plaintiff, fields.PlaintiffLowConfidence = e.Plaintiff(normalized)
	fields.Attorneys = e.Attorneys(normalized)

	section := e.SummarySection(normalized)
	fields.Principal = e.amount(e.principalPattern, section, normalized)
	fields.Interest, fields.InterestState = e.Interest(section, normalized)
	fields.Fees = e.amount(e.feesPattern, section, normalized)

	if e.logger != nil {
		e.logger.Debug("Fields extracted",
			"case_number", deref(fields.CaseNumber),
			"plaintiff", deref(fields.Plaintiff),
			"attorneys", len(fields.Attorneys),
			"interest", fields.InterestState.String(),
		)
	}

	return fields
}

// CaseNumber returns the case number with all whitespace removed.
func (e *Extractor) CaseNumber(text string) *string {
	v, ok := e.caseNumber.First(text)
	if !ok {
		return nil
	}

	v = strings.Join(strings.Fields(v), "")

	return &v
}

// Plaintiff returns the plaintiff name and whether it came from the
// low-confidence dash split heuristic.
func (e *Extractor) Plaintiff(text string) (*string, bool) {
	v, ok := e.plaintiff.First(text)
	if !ok {
		return nil, false
	}

	if e.plausibleName(v) {
		return &v, false
	}

	if e.logger != nil {
		e.logger.Debug("Discarding implausible plaintiff", "value", v)
	}

	if fallback, ok := e.dashSplitPlaintiff(text); ok {
		return &fallback, true
	}

	return nil, false
}

func (e *Extractor) plausibleName(v string) bool {
	n := utf8.RuneCountInString(v)

	return n >= minPlaintiffLength && n <= maxPlaintiffLength && !e.nonNamePattern.MatchString(v)
}

// dashSplitPlaintiff takes the dash delimited segment right before the one holding "Vistos".
func (e *Extractor) dashSplitPlaintiff(text string) (string, bool) {
	parts := strings.Split(text, " - ")

	for i := 1; i < len(parts)-1; i++ {
		if !strings.Contains(parts[i+1], "Vistos") {
			continue
		}

		candidate := strings.TrimSpace(parts[i])
		n := utf8.RuneCountInString(candidate)

		if n > minPlaintiffLength && n < maxPlaintiffLength && !e.nonNamePattern.MatchString(candidate) {
			return candidate, true
		}
	}

	return "", false
}

// Attorneys returns every "name (OAB code)" entry, split and deduplicated.
// The alternate marker is only tried when the primary one finds nothing.
func (e *Extractor) Attorneys(text string) []string {
	found := e.collectAttorneys(e.attorneyPattern, text)
	if len(found) == 0 {
		found = e.collectAttorneys(e.attorneyAltPattern, text)
	}

	return found
}

func (e *Extractor) collectAttorneys(re *regexp.Regexp, text string) []string {
	found := []string{}
	seen := make(map[string]bool)

	add := func(entry string) {
		entry = normalizer.CollapseWhitespace(entry)
		if utf8.RuneCountInString(entry) <= 3 || seen[entry] {
			return
		}

		seen[entry] = true
		found = append(found, entry)
	}

	for _, m := range re.FindAllStringSubmatch(text, -1) {
		entry := strings.TrimSpace(m[1]) + " " + strings.TrimSpace(m[2])

		if strings.Contains(entry, ",") || strings.Contains(strings.ToUpper(entry), " E ") {
			for _, part := range e.attorneySplit.Split(entry, -1) {
				add(part)
			}

			continue
		}

		add(entry)
	}

	return found
}

// SummarySection returns the computation summary that follows
// "homologo os cálculos", or an empty string.
func (e *Extractor) SummarySection(text string) string {
	m := e.summaryPattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}

	return strings.TrimSpace(m[1])
}

// Interest resolves the moratory interest. An explicit "sem - juros
// moratórios" is reported as waived, distinct from never mentioned.
func (e *Extractor) Interest(section, text string) (decimal.NullDecimal, models.InterestState) {
	for _, scope := range []string{section, text} {
		if scope == "" {
			continue
		}

		if e.waivedPattern.MatchString(scope) {
			return decimal.NullDecimal{}, models.InterestWaived
		}

		if v := e.match(e.interestPattern, scope); v.Valid {
			return v, models.InterestStated
		}
	}

	return decimal.NullDecimal{}, models.InterestNotMentioned
}

// amount searches the summary section first and the whole text second.
func (e *Extractor) amount(re *regexp.Regexp, section, text string) decimal.NullDecimal {
	for _, scope := range []string{section, text} {
		if scope == "" {
			continue
		}

		if v := e.match(re, scope); v.Valid {
			return v
		}
	}

	return decimal.NullDecimal{}
}

func (e *Extractor) match(re *regexp.Regexp, scope string) decimal.NullDecimal {
	m := re.FindStringSubmatch(scope)
	if len(m) < 2 {
		return decimal.NullDecimal{}
	}

	return normalizer.ParseNullAmount(m[1])
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
