package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"djeworker/internal/models"
	"djeworker/internal/storage"
)

// Sink receives the publications of a run. Insert returns storage.ErrDuplicate
// for a publication already present.
type Sink interface {
	Exists(ctx context.Context, caseNumber string, filingDate time.Time) (bool, error)
	Insert(ctx context.Context, p *models.Publication) (int64, error)
}

// ContentChecker is implemented by sinks that can look a publication up by its
// text hash.
type ContentChecker interface {
	ExistsByContent(ctx context.Context, text string) (bool, error)
}

// MemorySink keeps publications in memory, deduplicating like the database
// does. It backs offline runs and tests.
type MemorySink struct {
	items  []models.Publication
	keys   map[string]bool
	hashes map[string]bool
	mu     sync.Mutex
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		keys:   make(map[string]bool),
		hashes: make(map[string]bool),
	}
}

func naturalKey(caseNumber string, filingDate time.Time) string {
	return caseNumber + "|" + filingDate.Format(time.DateOnly)
}

// Exists reports whether the natural key was inserted.
func (m *MemorySink) Exists(_ context.Context, caseNumber string, filingDate time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.keys[naturalKey(caseNumber, filingDate)], nil
}

// ExistsByContent reports whether a publication with the same text was inserted.
func (m *MemorySink) ExistsByContent(_ context.Context, text string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.hashes[storage.ContentHash(text)], nil
}

// Insert stores a copy of p.
func (m *MemorySink) Insert(_ context.Context, p *models.Publication) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash := storage.ContentHash(p.FullText)

	key := ""
	if p.CaseNumber != nil && *p.CaseNumber != "" {
		key = naturalKey(*p.CaseNumber, p.FilingDate)
	}

	if (key != "" && m.keys[key]) || m.hashes[hash] {
		return 0, fmt.Errorf("%w: %s", storage.ErrDuplicate, p.CaseNumberOrEmpty())
	}

	if key != "" {
		m.keys[key] = true
	}

	m.hashes[hash] = true

	stored := *p
	stored.ID = int64(len(m.items) + 1)
	m.items = append(m.items, stored)

	return stored.ID, nil
}

// Publications returns the stored publications in insertion order.
func (m *MemorySink) Publications() []models.Publication {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]models.Publication(nil), m.items...)
}
