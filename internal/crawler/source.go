// Package crawler acquires gazette page text from the DJE website or local files.
package crawler

import (
	"context"
	"errors"

	"djeworker/internal/models"
)

// Acquisition errors. ErrPageAbsent lets a run skip one page; ErrUnrecoverable aborts it.
var (
	ErrPageAbsent    = errors.New("page absent")
	ErrUnrecoverable = errors.New("source unrecoverable")
)

// PageSource yields page text and knows which page follows a given one.
type PageSource interface {
	// FetchPage returns the text of the page at loc.
	FetchPage(ctx context.Context, loc models.Locator) (string, error)
	// Advance returns the locator after loc; false when loc is the last page.
	Advance(loc models.Locator) (models.Locator, bool)
}
