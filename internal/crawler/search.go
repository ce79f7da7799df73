package crawler

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"djeworker/internal/logger"
	"djeworker/internal/models"
)

// Search form fields of consultaAvancada.do.
const (
	formStartDate = "dadosConsulta.dtInicio"
	formEndDate   = "dadosConsulta.dtFim"
	formSection   = "dadosConsulta.cdCaderno"
	formQuery     = "dadosConsulta.pesquisaLivre"
	formPage      = "pagina"
	formDate      = "02/01/2006"
)

// ErrInvalidWindow is returned when a search window ends before it starts.
var ErrInvalidWindow = errors.New("search window ends before it starts")

var popupPattern = regexp.MustCompile(`popup\('([^']+)'\)`)

// Hit is one search result: a page holding at least one matching publication.
type Hit struct {
	URL     string
	Locator models.Locator
}

// SearchQuery describes one advanced search.
type SearchQuery struct {
	From    time.Time
	To      time.Time
	Terms   string
	Section int
}

// Searcher runs the DJE advanced search and collects the pages it points to.
type Searcher struct {
	scraper   *Scraper
	endpoints *Endpoints
	logger    *logger.Logger
	maxPages  int
}

// NewSearcher creates a searcher. maxPages bounds the result pages followed.
func NewSearcher(scraper *Scraper, endpoints *Endpoints, maxPages int, log *logger.Logger) *Searcher {
	if maxPages <= 0 {
		maxPages = 50
	}

	return &Searcher{
		scraper:   scraper,
		endpoints: endpoints,
		logger:    log,
		maxPages:  maxPages,
	}
}

// Search submits the query and follows result pages until one yields no new
// hit. Hits are returned in discovery order without duplicates.
func (s *Searcher) Search(ctx context.Context, q SearchQuery) ([]Hit, error) {
	if q.To.Before(q.From) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidWindow, q.From.Format(time.DateOnly), q.To.Format(time.DateOnly))
	}

	seen := make(map[string]bool)

	var hits []Hit

	for page := 1; page <= s.maxPages; page++ {
		res, err := s.scraper.PostForm(ctx, s.endpoints.Search(), searchForm(q, page))
		if err != nil {
			return hits, fmt.Errorf("search page %d: %w", page, err)
		}

		found := s.ParseResults(string(res.Body))

		fresh := 0

		for _, h := range found {
			key := h.Locator.Key()
			if seen[key] {
				continue
			}

			seen[key] = true
			hits = append(hits, h)
			fresh++
		}

		if s.logger != nil {
			s.logger.Debug("Search results page parsed", "page", page, "links", len(found), "new", fresh)
		}

		if fresh == 0 {
			break
		}
	}

	if s.logger != nil {
		s.logger.Info("Search finished", "from", q.From.Format(time.DateOnly), "to", q.To.Format(time.DateOnly), "hits", len(hits))
	}

	return hits, nil
}

// ParseResults extracts the page links of a results page. Links that do not
// identify a page are skipped.
func (s *Searcher) ParseResults(body string) []Hit {
	var hits []Hit

	for _, m := range popupPattern.FindAllStringSubmatch(body, -1) {
		ref := html.UnescapeString(m[1])

		abs, err := s.endpoints.Resolve(ref)
		if err != nil {
			continue
		}

		loc, err := ParseLocator(abs)
		if err != nil {
			if s.logger != nil {
				s.logger.Debug("Skipping result link", "link", ref, "error", err)
			}

			continue
		}

		hits = append(hits, Hit{URL: abs, Locator: loc})
	}

	return hits
}

func searchForm(q SearchQuery, page int) url.Values {
	form := url.Values{}
	form.Set(formStartDate, q.From.Format(formDate))
	form.Set(formEndDate, q.To.Format(formDate))
	form.Set(formSection, strconv.Itoa(q.Section))
	form.Set(formQuery, q.Terms)
	form.Set(formPage, strconv.Itoa(page))

	return form
}
