package crawler

import (
	"fmt"
	"sync"
	"time"

	"djeworker/internal/logger"
)

// AttemptResult records the result of one text extraction attempt.
type AttemptResult struct {
	Timestamp  time.Time
	URL        string
	Strategy   string
	Error      string
	Attempt    int
	Duration   time.Duration
	StatusCode int
	Success    bool
}

// AttemptLog keeps every extraction attempt of a run, keyed by page.
type AttemptLog struct {
	attempts map[string][]AttemptResult
	order    []string
	mu       sync.Mutex
}

// NewAttemptLog creates an empty attempt log.
func NewAttemptLog() *AttemptLog {
	return &AttemptLog{
		attempts: make(map[string][]AttemptResult),
	}
}

// RecordAttempt records the result of a fetch attempt for page key.
func (a *AttemptLog) RecordAttempt(key, url, strategy string, success bool, err error, statusCode int, duration time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.attempts[key]; !ok {
		a.order = append(a.order, key)
	}

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}

	a.attempts[key] = append(a.attempts[key], AttemptResult{
		URL:        url,
		Strategy:   strategy,
		Attempt:    len(a.attempts[key]) + 1,
		Success:    success,
		Error:      errMsg,
		Timestamp:  time.Now(),
		Duration:   duration,
		StatusCode: statusCode,
	})
}

// Attempts returns the attempts recorded for page key.
func (a *AttemptLog) Attempts(key string) []AttemptResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]AttemptResult(nil), a.attempts[key]...)
}

// Stats returns statistics about fetch attempts.
func (a *AttemptLog) Stats() AttemptStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := AttemptStats{
		TotalPages:        len(a.attempts),
		StrategySuccesses: make(map[string]int),
	}

	for _, results := range a.attempts {
		stats.TotalAttempts += len(results)

		pageSuccess := false

		for _, result := range results {
			if result.Success {
				stats.SuccessfulAttempts++
				stats.StrategySuccesses[result.Strategy]++
				pageSuccess = true
			} else {
				stats.FailedAttempts++
			}
		}

		if pageSuccess {
			stats.SuccessfulPages++
		} else {
			stats.FailedPages++
		}
	}

	return stats
}

// AttemptStats contains statistics about fetch attempts.
type AttemptStats struct {
	StrategySuccesses  map[string]int
	TotalPages         int
	SuccessfulPages    int
	FailedPages        int
	TotalAttempts      int
	SuccessfulAttempts int
	FailedAttempts     int
}

// String returns a string representation of attempt stats.
func (s AttemptStats) String() string {
	return fmt.Sprintf(
		"Pages: %d total, %d success, %d failed | Attempts: %d total, %d success, %d failed",
		s.TotalPages,
		s.SuccessfulPages,
		s.FailedPages,
		s.TotalAttempts,
		s.SuccessfulAttempts,
		s.FailedAttempts,
	)
}

// LogSummary logs the failed pages and overall statistics.
func (a *AttemptLog) LogSummary(l *logger.Logger) {
	a.mu.Lock()
	order := append([]string(nil), a.order...)
	a.mu.Unlock()

	l.Info("📊 Fetch Attempt Summary:")

	for _, key := range order {
		results := a.Attempts(key)
		last := results[len(results)-1]

		if last.Success {
			continue
		}

		for _, result := range results {
			l.Info(fmt.Sprintf("   ❌ %s via %s: %s (%.2fs)", key, result.Strategy, result.Error, result.Duration.Seconds()))
		}
	}

	l.Info(fmt.Sprintf("Overall: %s", a.Stats()))
}

// Reset clears the log.
func (a *AttemptLog) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.attempts = make(map[string][]AttemptResult)
	a.order = nil
}
