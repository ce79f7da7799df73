package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"djeworker/internal/models"
	"djeworker/internal/storage"
)

// dateRangePageSize is the default page size of the date range listing.
const dateRangePageSize = 20

// pagination is the paging block of list responses.
type pagination struct {
	Total       int `json:"total"`
	TotalPages  int `json:"totalPages"`
	CurrentPage int `json:"currentPage"`
	Limit       int `json:"limit"`
}

type listResponse struct {
	Timestamp  time.Time            `json:"timestamp"`
	Filters    *appliedFilters      `json:"filtrosAplicados,omitempty"`
	Status     models.Status        `json:"status,omitempty"`
	Items      []models.Publication `json:"publicacoes"`
	Pagination pagination           `json:"pagination"`
	Success    bool                 `json:"success"`
}

type appliedFilters struct {
	Search *string `json:"textoPesquisa"`
	From   *string `json:"dataInicio"`
	To     *string `json:"dataFim"`
}

type publicationResponse struct {
	Timestamp   time.Time           `json:"timestamp"`
	Publication *models.Publication `json:"publicacao"`
	Message     string              `json:"message,omitempty"`
	Success     bool                `json:"success"`
}

type createRequest struct {
	CaseNumber string              `json:"numeroProcesso"`
	FilingDate string              `json:"dataDisponibilizacao"`
	Plaintiff  *string             `json:"autor"`
	Defendant  string              `json:"reu"`
	Attorney   *string             `json:"advogado"`
	FullText   string              `json:"conteudoCompleto"`
	Principal  decimal.NullDecimal `json:"valorPrincipal"`
	Interest   decimal.NullDecimal `json:"valorJurosMoratorios"`
	Fees       decimal.NullDecimal `json:"honorariosAdvocaticios"`
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) registerPublications(g *echo.Group) {
	g.GET("", s.listPublications)
	g.POST("", s.createPublication)
	g.GET("/estatisticas", s.publicationStats)
	g.GET("/status/:status", s.publicationsByStatus)
	g.GET("/data", s.publicationsByDate)
	g.GET("/data/:inicio/:fim", s.publicationsByDate)
	g.GET("/processo/:numero", s.publicationsByCaseNumber)
	g.GET("/:id", s.getPublication)
	g.PATCH("/:id/status", s.updatePublicationStatus)
	g.PUT("/:id/status", s.updatePublicationStatus)
	g.DELETE("/:id", s.deletePublication)
}

func (s *Server) listPublications(c echo.Context) error {
	page, limit := s.paging(c, storage.DefaultPageSize)

	res, err := s.repo.List(c.Request().Context(), storage.ListQuery{
		Sort:  c.QueryParam("sort"),
		Order: c.QueryParam("order"),
		Page:  page,
		Limit: limit,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, newListResponse(res))
}

func (s *Server) publicationsByStatus(c echo.Context) error {
	status, err := models.ParseStatus(c.Param("status"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, invalidStatusMessage())
	}

	from, err := queryDate(c, "dataInicio")
	if err != nil {
		return err
	}

	to, err := queryDate(c, "dataFim")
	if err != nil {
		return err
	}

	page, limit := s.paging(c, storage.DefaultPageSize)
	search := strings.TrimSpace(c.QueryParam("textoPesquisa"))

	res, err := s.repo.List(c.Request().Context(), storage.ListQuery{
		Status: status,
		Search: search,
		From:   from,
		To:     to,
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		return err
	}

	body := newListResponse(res)
	body.Status = status
	body.Filters = &appliedFilters{
		Search: optional(search),
		From:   optionalDate(from),
		To:     optionalDate(to),
	}

	return c.JSON(http.StatusOK, body)
}

func (s *Server) publicationsByDate(c echo.Context) error {
	rawFrom, rawTo := c.Param("inicio"), c.Param("fim")
	if rawFrom == "" && rawTo == "" {
		rawFrom, rawTo = c.QueryParam("dataInicio"), c.QueryParam("dataFim")
	}

	from, errFrom := parseDate(rawFrom)
	to, errTo := parseDate(rawTo)

	if errFrom != nil || errTo != nil || from.IsZero() || to.IsZero() {
		return echo.NewHTTPError(http.StatusBadRequest, "Formato de data inválido. Use YYYY-MM-DD")
	}

	page, limit := s.paging(c, dateRangePageSize)

	res, err := s.repo.FindByDateRange(c.Request().Context(), from, to, page, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, newListResponse(res))
}

func (s *Server) publicationsByCaseNumber(c echo.Context) error {
	items, err := s.repo.FindByCaseNumber(c.Request().Context(), c.Param("numero"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"publicacoes": items})
}

func (s *Server) getPublication(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	p, err := s.repo.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, publicationResponse{Success: true, Publication: p, Timestamp: time.Now().UTC()})
}

func (s *Server) createPublication(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Corpo da requisição inválido").SetInternal(err)
	}

	if strings.TrimSpace(req.CaseNumber) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Número do processo é obrigatório")
	}

	filed, err := parseDate(req.FilingDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Formato de data inválido. Use YYYY-MM-DD")
	}

	number := strings.TrimSpace(req.CaseNumber)
	p := &models.Publication{
		CaseNumber: &number,
		FilingDate: filed,
		Plaintiff:  req.Plaintiff,
		Defendant:  req.Defendant,
		Attorney:   req.Attorney,
		FullText:   req.FullText,
		Principal:  req.Principal,
		Interest:   req.Interest,
		Fees:       req.Fees,
	}

	if _, err := s.repo.Insert(c.Request().Context(), p); err != nil {
		return err
	}

	s.logger.Info("Publication created", "id", p.ID, "case_number", number, "by", Subject(c))

	return c.JSON(http.StatusCreated, publicationResponse{
		Success:     true,
		Message:     "Publicação criada com sucesso",
		Publication: p,
		Timestamp:   time.Now().UTC(),
	})
}

func (s *Server) updatePublicationStatus(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, invalidStatusMessage()).SetInternal(err)
	}

	status, err := models.ParseStatus(req.Status)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, invalidStatusMessage())
	}

	p, err := s.repo.UpdateStatus(c.Request().Context(), id, status)
	if err != nil {
		return err
	}

	s.logger.Info("Publication status updated", "id", id, "status", status, "by", Subject(c))

	return c.JSON(http.StatusOK, publicationResponse{
		Success:     true,
		Message:     "Status da publicação atualizado com sucesso",
		Publication: p,
		Timestamp:   time.Now().UTC(),
	})
}

func (s *Server) deletePublication(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(c.Request().Context(), id); err != nil {
		return err
	}

	s.logger.Info("Publication deleted", "id", id, "by", Subject(c))

	return c.JSON(http.StatusOK, map[string]any{"success": true, "message": "Publicação excluída com sucesso"})
}

func (s *Server) publicationStats(c echo.Context) error {
	stats, err := s.repo.Stats(c.Request().Context())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, stats)
}

// paging reads pagina/page and limite/limit, clamping the limit to the
// configured maximum.
func (s *Server) paging(c echo.Context, defaultLimit int) (int, int) {
	page := firstInt(c, 1, "pagina", "page")
	limit := firstInt(c, defaultLimit, "limite", "limit")

	if page < 1 {
		page = 1
	}

	if limit < 1 {
		limit = defaultLimit
	}

	if s.maxLimit > 0 && limit > s.maxLimit {
		limit = s.maxLimit
	}

	return page, limit
}

func firstInt(c echo.Context, def int, names ...string) int {
	for _, name := range names {
		if raw := c.QueryParam(name); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil {
				return n
			}
		}
	}

	return def
}

func newListResponse(res *storage.ListResult) listResponse {
	return listResponse{
		Success: true,
		Items:   res.Items,
		Pagination: pagination{
			Total:       res.Total,
			TotalPages:  res.Pages,
			CurrentPage: res.Page,
			Limit:       res.Limit,
		},
		Timestamp: time.Now().UTC(),
	}
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "ID inválido")
	}

	return id, nil
}

// parseDate reads YYYY-MM-DD. An empty value yields the zero time.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}

	return time.Parse(time.DateOnly, raw)
}

func queryDate(c echo.Context, name string) (time.Time, error) {
	t, err := parseDate(c.QueryParam(name))
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "Formato de data inválido. Use YYYY-MM-DD")
	}

	return t, nil
}

func invalidStatusMessage() string {
	names := make([]string, 0, len(models.Statuses()))
	for _, st := range models.Statuses() {
		names = append(names, string(st))
	}

	return "Status inválido. Valores aceitos: " + strings.Join(names, ", ")
}

func optional(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

func optionalDate(t time.Time) *string {
	if t.IsZero() {
		return nil
	}

	return optional(t.Format(time.DateOnly))
}
