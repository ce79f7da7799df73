package pipeline

import (
	"fmt"
	"time"
)

// Report summarizes one pipeline run.
type Report struct {
	StartedAt        time.Time `json:"startedAt"`
	FinishedAt       time.Time `json:"finishedAt"`
	RunID            string    `json:"runId"`
	State            State     `json:"state"`
	PagesFetched     int       `json:"pagesFetched"`
	PagesSkipped     int       `json:"pagesSkipped"`
	SpansComplete    int       `json:"spansComplete"`
	SpansDropped     int       `json:"spansDropped"`
	RecordsExtracted int       `json:"recordsExtracted"`
	LowConfidence    int       `json:"lowConfidence"`
	Rejected         int       `json:"rejected"`
	Inserted         int       `json:"inserted"`
	Duplicate        int       `json:"duplicate"`
	Failed           int       `json:"failed"`
}

// Duration returns how long the run took.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}

	return r.FinishedAt.Sub(r.StartedAt)
}

// String returns a one-line summary.
func (r *Report) String() string {
	return fmt.Sprintf(
		"run %s %s in %s | pages: %d fetched, %d skipped | spans: %d complete, %d dropped | records: %d extracted, %d rejected, %d inserted, %d duplicate, %d failed",
		r.RunID,
		r.State,
		r.Duration().Round(time.Millisecond),
		r.PagesFetched,
		r.PagesSkipped,
		r.SpansComplete,
		r.SpansDropped,
		r.RecordsExtracted,
		r.Rejected,
		r.Inserted,
		r.Duplicate,
		r.Failed,
	)
}
