package validator

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"djeworker/internal/models"
	"djeworker/pkg/metadata"
)

// Report table columns, in the order the export writes them.
const (
	colCaseNumber = iota
	colFilingDate
	colPlaintiff
	colAttorney
	colPrincipal
	colInterest
	colFees
	colStatus
	reportColumns
)

var (
	caseNumberPattern = regexp.MustCompile(`^\d{7}-\d{2}\.\d{4}\.\d\.\d{2}\.\d{4}$`)
	brlPattern        = regexp.MustCompile(`^-?\d{1,3}(\.\d{3})*,\d{2}$`)
)

// ValidationError is one problem found in a report.
type ValidationError struct {
	Field   string
	Value   string
	Message string
	Line    int
}

// ValidationResult is the outcome of validating a report.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []string
	Stats    ValidationStats
	IsValid  bool
}

// ValidationStats counts the rows of the publications table.
type ValidationStats struct {
	TotalRows   int
	ValidRows   int
	InvalidRows int
}

// ReportValidator checks the publications table of a markdown report.
type ReportValidator struct {
	// RequireCaseNumber rejects rows without a case number.
	RequireCaseNumber bool
}

// NewReportValidator creates a report validator.
func NewReportValidator() *ReportValidator {
	return &ReportValidator{}
}

// ValidateReport checks every row of the table whose header starts with
// "Processo" and ends with "Status".
func (v *ReportValidator) ValidateReport(markdown string) *ValidationResult {
	result := &ValidationResult{IsValid: true}

	_, body := metadata.Extract(markdown)
	inTable := false
	found := false

	for i, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)

		if !strings.HasPrefix(line, "|") {
			inTable = false

			continue
		}

		cells := splitRow(line)

		if !inTable {
			inTable = isReportHeader(cells)
			found = found || inTable

			continue
		}

		if isSeparatorRow(cells) {
			continue
		}

		result.Stats.TotalRows++

		if errs := v.validateRow(cells, i+1); len(errs) > 0 {
			result.IsValid = false
			result.Stats.InvalidRows++
			result.Errors = append(result.Errors, errs...)
		} else {
			result.Stats.ValidRows++
		}
	}

	if !found {
		result.IsValid = false
		result.Errors = append(result.Errors, ValidationError{Message: "publications table not found"})
	} else if result.Stats.TotalRows == 0 {
		result.Warnings = append(result.Warnings, "publications table is empty")
	}

	return result
}

// ValidateIntegrity checks the report against its signature.
func (v *ReportValidator) ValidateIntegrity(content string) *ValidationResult {
	result := &ValidationResult{IsValid: true}

	if valid, err := metadata.Verify(content); !valid {
		result.IsValid = false
		result.Errors = append(result.Errors, ValidationError{
			Message: fmt.Sprintf("integrity check failed: %v", err),
		})
	}

	return result
}

func (v *ReportValidator) validateRow(cells []string, line int) []ValidationError {
	if len(cells) != reportColumns {
		return []ValidationError{{
			Line:    line,
			Message: fmt.Sprintf("expected %d columns, got %d", reportColumns, len(cells)),
		}}
	}

	var errs []ValidationError

	fail := func(field, value, msg string) {
		errs = append(errs, ValidationError{Line: line, Field: field, Value: value, Message: msg})
	}

	switch number := cells[colCaseNumber]; {
	case number == "" && v.RequireCaseNumber:
		fail("processo", number, "case number is empty")
	case number != "" && !caseNumberPattern.MatchString(number):
		fail("processo", number, "case number is not NNNNNNN-DD.AAAA.J.TR.OOOO")
	}

	if _, err := time.Parse("02/01/2006", cells[colFilingDate]); err != nil {
		fail("disponibilizacao", cells[colFilingDate], "filing date is not DD/MM/AAAA")
	}

	for _, c := range []struct {
		field string
		col   int
	}{{"principal", colPrincipal}, {"juros", colInterest}, {"honorarios", colFees}} {
		if val := cells[c.col]; val != "-" && !brlPattern.MatchString(val) {
			fail(c.field, val, "amount is not formatted as 1.234,56")
		}
	}

	if _, err := models.ParseStatus(cells[colStatus]); err != nil {
		fail("status", cells[colStatus], "unknown status")
	}

	return errs
}

// splitRow splits a table line into trimmed cells, keeping escaped pipes.
func splitRow(line string) []string {
	inner := strings.TrimSuffix(strings.TrimPrefix(line, "|"), "|")

	var (
		cells []string
		cell  strings.Builder
	)

	for i := 0; i < len(inner); i++ {
		switch {
		case inner[i] == '\\' && i+1 < len(inner) && inner[i+1] == '|':
			cell.WriteByte('|')
			i++
		case inner[i] == '|':
			cells = append(cells, strings.TrimSpace(cell.String()))
			cell.Reset()
		default:
			cell.WriteByte(inner[i])
		}
	}

	return append(cells, strings.TrimSpace(cell.String()))
}

func isReportHeader(cells []string) bool {
	return len(cells) == reportColumns &&
		strings.EqualFold(cells[colCaseNumber], "Processo") &&
		strings.EqualFold(cells[colStatus], "Status")
}

func isSeparatorRow(cells []string) bool {
	for _, c := range cells {
		if strings.Trim(c, "-: ") != "" {
			return false
		}
	}

	return true
}

// String returns a one-line summary.
func (r *ValidationResult) String() string {
	status := "✅ VALID"
	if !r.IsValid {
		status = "❌ INVALID"
	}

	return fmt.Sprintf(
		"%s | Total: %d | Valid: %d | Invalid: %d | Warnings: %d",
		status,
		r.Stats.TotalRows,
		r.Stats.ValidRows,
		r.Stats.InvalidRows,
		len(r.Warnings),
	)
}

// WriteErrors prints the errors and warnings in readable form.
func (r *ValidationResult) WriteErrors(w io.Writer) {
	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "❌ Validation Errors:")
	}

	for _, err := range r.Errors {
		if err.Line == 0 {
			fmt.Fprintf(w, "  %s\n", err.Message)

			continue
		}

		fmt.Fprintf(w, "  Line %d", err.Line)

		if err.Field != "" {
			fmt.Fprintf(w, " [%s]", err.Field)
		}

		fmt.Fprintf(w, ": %s\n", err.Message)

		if err.Value != "" {
			fmt.Fprintf(w, "    Found: %q\n", err.Value)
		}
	}

	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, "⚠️  Validation Warnings:")
	}

	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "  %s\n", warn)
	}
}
