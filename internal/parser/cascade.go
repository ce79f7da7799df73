package parser

import (
	"regexp"
	"strings"
)

// Matcher extracts one candidate value from normalized record text.
type Matcher func(text string) (string, bool)

// Cascade is an ordered list of matchers; the first that succeeds wins.
type Cascade []Matcher

// First runs the matchers in order and returns the first value found.
func (c Cascade) First(text string) (string, bool) {
	for _, m := range c {
		if v, ok := m(text); ok {
			return v, true
		}
	}

	return "", false
}

// capture matches re and returns its first group, trimmed.
func capture(re *regexp.Regexp) Matcher {
	return func(text string) (string, bool) {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 {
			return "", false
		}

		v := strings.TrimSpace(m[1])

		return v, v != ""
	}
}

// accepting wraps m so that values failing accept count as misses.
func accepting(m Matcher, accept func(string) bool) Matcher {
	return func(text string) (string, bool) {
		v, ok := m(text)
		if !ok || !accept(v) {
			return "", false
		}

		return v, true
	}
}

// captures compiles each pattern into a capture matcher.
func captures(patterns ...string) Cascade {
	c := make(Cascade, 0, len(patterns))
	for _, p := range patterns {
		c = append(c, capture(regexp.MustCompile(p)))
	}

	return c
}
