package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// ErrNoReadableText is returned when an HTML page has no extractable body text.
var ErrNoReadableText = errors.New("no readable text in HTML")

// pdfFramePattern finds the PDF frame of the DJE page viewer.
var pdfFramePattern = regexp.MustCompile(`getPaginaDoDiario\.do\?[^'"\s<>]+`)

// ExtractHTMLText returns the main text content of an HTML page.
func ExtractHTMLText(html, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		u = &url.URL{}
	}

	article, err := readability.FromReader(strings.NewReader(html), u)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return "", ErrNoReadableText
	}

	return text, nil
}

// FramePDFLink returns the getPaginaDoDiario.do link embedded in a viewer
// page, if present.
func FramePDFLink(html string) (string, bool) {
	m := pdfFramePattern.FindString(html)
	if m == "" {
		return "", false
	}

	return strings.ReplaceAll(m, "&amp;", "&"), true
}
