package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func resultsPage(pages ...int) string {
	var sb strings.Builder

	sb.WriteString(`<div id="divResultadosInferior"><table>`)

	for _, p := range pages {
		fmt.Fprintf(&sb, `<tr class="fundocinza1"><td><a href="#" onclick="return popup('/cdje/consultaSimples.do?cdVolume=19&amp;nuDiario=4199&amp;cdCaderno=12&amp;nuSeqpagina=%d');">ver</a></td></tr>`, p)
	}

	sb.WriteString(`<a onclick="popup('/cdje/ajuda.do')">ajuda</a></table></div>`)

	return sb.String()
}

func TestSearcher_Search_FollowsResultPages(t *testing.T) {
	var forms []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/consultaAvancada.do") {
			w.WriteHeader(http.StatusNotFound)

			return
		}

		_ = r.ParseForm()
		forms = append(forms, r.PostForm.Encode())

		switch r.PostForm.Get("pagina") {
		case "1":
			_, _ = w.Write([]byte(resultsPage(10, 11)))
		case "2":
			_, _ = w.Write([]byte(resultsPage(11, 40)))
		default:
			_, _ = w.Write([]byte(resultsPage(40)))
		}
	}))
	defer server.Close()

	endpoints, err := NewEndpoints(server.URL + "/cdje/")
	if err != nil {
		t.Fatalf("NewEndpoints failed: %v", err)
	}

	s := NewSearcher(NewScraperWithConfig(fastRetry(), 64, ""), endpoints, 10, nil)

	day := time.Date(2024, 11, 4, 0, 0, 0, 0, time.UTC)

	hits, err := s.Search(context.Background(), SearchQuery{From: day, To: day, Section: 12, Terms: `"RPV" e "pagamento pelo INSS"`})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(hits) != 3 {
		t.Fatalf("Expected 3 hits, got %d", len(hits))
	}

	if hits[0].Locator.Page != 10 || hits[2].Locator.Page != 40 {
		t.Errorf("Unexpected hit order: %v", hits)
	}

	if len(forms) != 3 {
		t.Errorf("Expected 3 result pages requested, got %d", len(forms))
	}

	if !strings.Contains(forms[0], "dadosConsulta.dtInicio=04%2F11%2F2024") {
		t.Errorf("Expected dd/MM/yyyy start date in form, got %s", forms[0])
	}
}

func TestSearcher_Search_InvalidWindow(t *testing.T) {
	endpoints, _ := NewEndpoints("https://dje.tjsp.jus.br/cdje/")
	s := NewSearcher(NewScraper(), endpoints, 1, nil)

	from := time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC)

	if _, err := s.Search(context.Background(), SearchQuery{From: from, To: from.AddDate(0, 0, -1)}); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("Expected ErrInvalidWindow, got %v", err)
	}
}
