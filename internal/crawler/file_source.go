package crawler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"djeworker/internal/models"
)

// PageBreak separates pages inside a single text file, as pdftotext emits them.
const PageBreak = "\f"

// ErrNoPages is returned when a file source holds no page.
var ErrNoPages = errors.New("no pages found")

// FileSource serves pages from local text files. A directory yields one page
// per .txt file in lexical order; a single file is split on form feeds.
// Locator.Page is the 1-based page index.
type FileSource struct {
	path  string
	pages []string
}

// NewFileSource loads every page under path.
func NewFileSource(path string) (*FileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	var pages []string

	if info.IsDir() {
		pages, err = readPageDir(path)
	} else {
		pages, err = readPageFile(path)
	}

	if err != nil {
		return nil, err
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPages, path)
	}

	return &FileSource{path: path, pages: pages}, nil
}

func readPageDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var names []string

	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".txt") {
			continue
		}

		names = append(names, e.Name())
	}

	sort.Strings(names)

	pages := make([]string, 0, len(names))

	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read local file %s: %w", name, err)
		}

		pages = append(pages, string(content))
	}

	return pages, nil
}

func readPageFile(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read local file %s: %w", path, err)
	}

	pages := strings.Split(string(content), PageBreak)

	// pdftotext ends the last page with a form feed too.
	if len(pages) > 1 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}

	return pages, nil
}

// First returns the locator of the first page.
func (f *FileSource) First() models.Locator {
	return models.Locator{Path: f.path, Page: 1}
}

// Len returns the number of pages.
func (f *FileSource) Len() int {
	return len(f.pages)
}

// FetchPage returns the text of the page at loc.
func (f *FileSource) FetchPage(ctx context.Context, loc models.Locator) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if loc.Path != f.path || loc.Page < 1 || loc.Page > len(f.pages) {
		return "", fmt.Errorf("%w: %s", ErrPageAbsent, loc)
	}

	return f.pages[loc.Page-1], nil
}

// Advance returns the next page of the same source.
func (f *FileSource) Advance(loc models.Locator) (models.Locator, bool) {
	if loc.Path != f.path || loc.Page >= len(f.pages) {
		return models.Locator{}, false
	}

	return Next(loc), true
}
