package models

import "fmt"

// Locator identifies one page of a gazette issue.
// Remote pages are addressed by the DJE query parameters; local pages by Path and Page index.
type Locator struct {
	Path    string `json:"path,omitempty"`
	Volume  int    `json:"cdVolume"`
	Issue   int    `json:"nuDiario"`
	Section int    `json:"cdCaderno"`
	Page    int    `json:"nuSeqpagina"`
}

// IsLocal reports whether the locator points at a local file source.
func (l Locator) IsLocal() bool {
	return l.Path != ""
}

// Key returns a stable identity used for visited-page bookkeeping.
func (l Locator) Key() string {
	if l.IsLocal() {
		return fmt.Sprintf("file:%s#%d", l.Path, l.Page)
	}

	return fmt.Sprintf("dje:%d/%d/%d/%d", l.Volume, l.Issue, l.Section, l.Page)
}

// String returns a readable representation of the locator.
func (l Locator) String() string {
	if l.IsLocal() {
		return fmt.Sprintf("%s[%d]", l.Path, l.Page)
	}

	return fmt.Sprintf("vol=%d diario=%d caderno=%d pagina=%d", l.Volume, l.Issue, l.Section, l.Page)
}

// Page is the raw text of one fetched page.
type Page struct {
	Locator  Locator
	Text     string
	Sequence int
}

// SpanState is the completion state of a record span.
type SpanState int

// Span states.
const (
	SpanIncomplete SpanState = iota
	SpanComplete
)

// String returns the state name.
func (s SpanState) String() string {
	if s == SpanComplete {
		return "COMPLETE"
	}

	return "INCOMPLETE"
}

// RecordSpan is a text region believed to delimit one case record.
// Text may cover more than one page once stitched.
type RecordSpan struct {
	Text  string
	Pages []Locator
	Start int
	State SpanState
}

// Complete reports whether the span ends with its end anchor.
func (s RecordSpan) Complete() bool {
	return s.State == SpanComplete
}
