// Package validator checks that case records carry the keywords that make them relevant.
package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Default required keywords for INSS small claim payments.
const (
	KeywordRPV              = "RPV"
	KeywordPaymentByInsurer = "pagamento pelo INSS"
)

// ErrNoKeywords is returned when a validator is built without keywords.
var ErrNoKeywords = errors.New("no keywords configured")

// DefaultKeywords returns the keywords every stored record must contain.
func DefaultKeywords() []string {
	return []string{KeywordRPV, KeywordPaymentByInsurer}
}

// paymentAlternates also accept the usual rewordings of "pagamento pelo INSS".
var paymentAlternates = []string{
	`pagamento\s+pelo\s+inss`,
	`inss\s+.{0,30}?\s+pagamento`,
	`pagamento\s+.{0,30}?\s+inss`,
	`inss\s+.{0,30}?\s+efetuar\s+.{0,10}?\s+pagamento`,
	`inss\s+.{0,30}?\s+realizar\s+.{0,10}?\s+pagamento`,
}

// KeywordResult is the outcome of validating one text.
type KeywordResult struct {
	Missing []string
	OK      bool
}

type keyword struct {
	name     string
	patterns []*regexp.Regexp
}

// KeywordValidator requires every configured keyword to occur in a text,
// ignoring case and accents.
type KeywordValidator struct {
	keywords []keyword
}

// NewKeywordValidator compiles the given keywords. An empty list selects DefaultKeywords.
func NewKeywordValidator(keywords []string) (*KeywordValidator, error) {
	if len(keywords) == 0 {
		keywords = DefaultKeywords()
	}

	v := &KeywordValidator{}

	for _, kw := range keywords {
		folded := Fold(kw)
		if folded == "" {
			continue
		}

		sources := []string{tokenPattern(folded)}
		if folded == Fold(KeywordPaymentByInsurer) {
			sources = paymentAlternates
		}

		k := keyword{name: kw}

		for _, src := range sources {
			re, err := regexp.Compile(`(?s)` + src)
			if err != nil {
				return nil, fmt.Errorf("compile keyword %q: %w", kw, err)
			}

			k.patterns = append(k.patterns, re)
		}

		v.keywords = append(v.keywords, k)
	}

	if len(v.keywords) == 0 {
		return nil, ErrNoKeywords
	}

	return v, nil
}

// Validate reports which keywords are missing from text.
func (v *KeywordValidator) Validate(text string) KeywordResult {
	folded := Fold(text)
	result := KeywordResult{Missing: []string{}}

	for _, k := range v.keywords {
		if !k.matches(folded) {
			result.Missing = append(result.Missing, k.name)
		}
	}

	result.OK = len(result.Missing) == 0

	return result
}

// Keywords returns the configured keyword names.
func (v *KeywordValidator) Keywords() []string {
	names := make([]string, 0, len(v.keywords))
	for _, k := range v.keywords {
		names = append(names, k.name)
	}

	return names
}

func (k keyword) matches(folded string) bool {
	for _, re := range k.patterns {
		if re.MatchString(folded) {
			return true
		}
	}

	return false
}

// Fold lowercases s and strips diacritics.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}

	return strings.ToLower(strings.TrimSpace(out))
}

// tokenPattern matches the words of kw separated by any whitespace.
func tokenPattern(kw string) string {
	words := strings.Fields(kw)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}

	return strings.Join(words, `\s+`)
}
