package crawler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDF extraction errors.
var (
	ErrNotPDF       = errors.New("response is not a PDF document")
	ErrPDFMalformed = errors.New("malformed PDF document")
)

var pdfMagic = []byte("%PDF")

// IsPDF reports whether data starts with the PDF signature.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, "\r\n\t "), pdfMagic)
}

// ExtractPDFText returns the plain text of every page of a PDF document,
// pages separated by a newline.
func ExtractPDFText(data []byte) (text string, err error) {
	if !IsPDF(data) {
		return "", ErrNotPDF
	}

	// The reader panics on some truncated xref tables.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: %v", ErrPDFMalformed, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPDFMalformed, err)
	}

	var sb strings.Builder

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}

		if sb.Len() > 0 {
			sb.WriteString("\n")
		}

		sb.WriteString(pageText)
	}

	if sb.Len() == 0 {
		// Some single-page prints carry no page tree; fall back to the whole document.
		plain, err := reader.GetPlainText()
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrPDFMalformed, err)
		}

		raw, err := io.ReadAll(plain)
		if err != nil {
			return "", fmt.Errorf("read plain text: %w", err)
		}

		return string(raw), nil
	}

	return sb.String(), nil
}
