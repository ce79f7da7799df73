package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"djeworker/internal/models"
)

// DJE endpoints, relative to the base URL.
const (
	pathIndex  = "index.do"
	pathSearch = "consultaAvancada.do"
	pathPage   = "consultaSimples.do"
	pathPDF    = "getPaginaDoDiario.do"
)

// Locator query parameters.
const (
	paramVolume  = "cdVolume"
	paramIssue   = "nuDiario"
	paramSection = "cdCaderno"
	paramPage    = "nuSeqpagina"
)

// Locator errors.
var (
	ErrInvalidBaseURL = errors.New("invalid base URL")
	ErrInvalidLocator = errors.New("invalid page locator")
)

// Endpoints builds DJE URLs from a base such as https://dje.tjsp.jus.br/cdje/.
type Endpoints struct {
	base *url.URL
}

// NewEndpoints parses the base URL. A missing trailing slash is added.
func NewEndpoints(baseURL string) (*Endpoints, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}

	if u.Path == "" || u.Path[len(u.Path)-1] != '/' {
		u.Path += "/"
	}

	return &Endpoints{base: u}, nil
}

// Base returns the base URL.
func (e *Endpoints) Base() *url.URL {
	return e.base
}

// Index returns the landing page that issues the session cookies.
func (e *Endpoints) Index() string {
	return e.resolve(pathIndex, nil)
}

// Search returns the advanced search form action.
func (e *Endpoints) Search() string {
	return e.resolve(pathSearch, nil)
}

// Page returns the HTML viewer URL of a page.
func (e *Endpoints) Page(loc models.Locator) string {
	return e.resolve(pathPage, locatorQuery(loc))
}

// PDF returns the single-page PDF URL of a page.
func (e *Endpoints) PDF(loc models.Locator) string {
	return e.resolve(pathPDF, locatorQuery(loc))
}

// Resolve turns a link found in a DJE page into an absolute URL.
func (e *Endpoints) Resolve(ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse link %q: %w", ref, err)
	}

	return e.base.ResolveReference(r).String(), nil
}

func (e *Endpoints) resolve(path string, q url.Values) string {
	u := e.base.ResolveReference(&url.URL{Path: path})
	if q != nil {
		u.RawQuery = q.Encode()
	}

	return u.String()
}

func locatorQuery(loc models.Locator) url.Values {
	q := url.Values{}
	q.Set(paramVolume, strconv.Itoa(loc.Volume))
	q.Set(paramIssue, strconv.Itoa(loc.Issue))
	q.Set(paramSection, strconv.Itoa(loc.Section))
	q.Set(paramPage, strconv.Itoa(loc.Page))

	return q
}

// ParseLocator reads the page identity from a consultaSimples.do or
// getPaginaDoDiario.do URL.
func ParseLocator(rawURL string) (models.Locator, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return models.Locator{}, fmt.Errorf("%w: %w", ErrInvalidLocator, err)
	}

	q := u.Query()

	var loc models.Locator

	fields := []struct {
		dst  *int
		name string
	}{
		{&loc.Volume, paramVolume},
		{&loc.Issue, paramIssue},
		{&loc.Section, paramSection},
		{&loc.Page, paramPage},
	}

	for _, f := range fields {
		n, err := strconv.Atoi(q.Get(f.name))
		if err != nil {
			return models.Locator{}, fmt.Errorf("%w: %s missing in %q", ErrInvalidLocator, f.name, rawURL)
		}

		*f.dst = n
	}

	return loc, nil
}

// Next returns the locator of the following page of the same issue.
func Next(loc models.Locator) models.Locator {
	loc.Page++

	return loc
}
