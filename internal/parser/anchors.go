// Package parser splits gazette page text into case records and extracts their fields.
package parser

import (
	"errors"
	"fmt"
	"regexp"
)

// Default anchor patterns for TJSP gazette records.
const (
	DefaultStartAnchor = `Processo`
	DefaultEndAnchor   = `(?s)ADV:.*?\(OAB.*?\)`
)

// ErrInvalidAnchor is returned when an anchor pattern does not compile.
var ErrInvalidAnchor = errors.New("invalid anchor pattern")

// Anchors delimit case records: Start opens a record, End closes it with the
// attorney registration block.
type Anchors struct {
	start *regexp.Regexp
	end   *regexp.Regexp
}

// DefaultAnchors returns the anchors used by the DJE caderno judicial.
func DefaultAnchors() *Anchors {
	return &Anchors{
		start: regexp.MustCompile(DefaultStartAnchor),
		end:   regexp.MustCompile(DefaultEndAnchor),
	}
}

// NewAnchors compiles custom anchor patterns. Empty patterns fall back to the defaults.
func NewAnchors(start, end string) (*Anchors, error) {
	if start == "" {
		start = DefaultStartAnchor
	}

	if end == "" {
		end = DefaultEndAnchor
	}

	startRe, err := regexp.Compile(start)
	if err != nil {
		return nil, fmt.Errorf("%w: start: %w", ErrInvalidAnchor, err)
	}

	endRe, err := regexp.Compile(end)
	if err != nil {
		return nil, fmt.Errorf("%w: end: %w", ErrInvalidAnchor, err)
	}

	return &Anchors{start: startRe, end: endRe}, nil
}

// FirstStart returns the offset of the first start anchor in text, or -1.
func (a *Anchors) FirstStart(text string) int {
	loc := a.start.FindStringIndex(text)
	if loc == nil {
		return -1
	}

	return loc[0]
}

// LastStart returns the offset of the last start anchor in text, or -1.
func (a *Anchors) LastStart(text string) int {
	all := a.start.FindAllStringIndex(text, -1)
	if len(all) == 0 {
		return -1
	}

	return all[len(all)-1][0]
}

// EndAfter returns the offset just past the first end anchor in text, or -1.
func (a *Anchors) EndAfter(text string) int {
	loc := a.end.FindStringIndex(text)
	if loc == nil {
		return -1
	}

	return loc[1]
}

// HasEnd reports whether text contains an end anchor.
func (a *Anchors) HasEnd(text string) bool {
	return a.end.MatchString(text)
}
