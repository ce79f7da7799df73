package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"djeworker/internal/logger"
	"djeworker/internal/models"
	"djeworker/internal/normalizer"
)

// Repository errors.
var (
	ErrDuplicate = errors.New("publication already stored")
	ErrNotFound  = errors.New("publication not found")
)

// List defaults, following the publications API.
const (
	DefaultPageSize = 50
	DefaultSort     = "data_criacao"
)

const publicationColumns = `id, numero_processo, data_disponibilizacao, autor, reu, advogado,
	valor_principal, valor_juros_moratorios, honorarios_advocaticios,
	conteudo_completo, status, data_criacao, data_atualizacao`

// sortColumns maps accepted sort keys, API or column names, to columns.
var sortColumns = map[string]string{
	"id":                     "id",
	"numeroProcesso":         "numero_processo",
	"numero_processo":        "numero_processo",
	"dataDisponibilizacao":   "data_disponibilizacao",
	"data_disponibilizacao":  "data_disponibilizacao",
	"autor":                  "autor",
	"valorPrincipal":         "valor_principal",
	"valor_principal":        "valor_principal",
	"status":                 "status",
	"dataCriacao":            "data_criacao",
	"data_criacao":           "data_criacao",
	"dataAtualizacao":        "data_atualizacao",
	"data_atualizacao":       "data_atualizacao",
	"honorariosAdvocaticios": "honorarios_advocaticios",
}

// ListQuery filters and pages a publication listing. Zero values mean no filter.
type ListQuery struct {
	From   time.Time
	To     time.Time
	Status models.Status
	Search string
	Sort   string
	Order  string
	Page   int
	Limit  int
}

// ListResult is one page of publications.
type ListResult struct {
	Items []models.Publication `json:"publicacoes"`
	Total int                  `json:"total"`
	Page  int                  `json:"page"`
	Limit int                  `json:"limit"`
	Pages int                  `json:"pages"`
}

// StatusCount is the number of publications in one status.
type StatusCount struct {
	Status models.Status `db:"status" json:"status"`
	Total  int           `db:"total" json:"total"`
}

// Stats summarizes the stored publications.
type Stats struct {
	ByStatus  []StatusCount `json:"totalPorStatus"`
	Total     int           `json:"totalGeral"`
	LastMonth int           `json:"ultimosMes"`
}

// Repository reads and writes the publicacoes table.
type Repository struct {
	db            *DB
	logger        *logger.Logger
	maxTextLength int
}

// NewRepository creates a repository. maxTextLength caps stored full text.
func NewRepository(db *DB, maxTextLength int, log *logger.Logger) *Repository {
	if maxTextLength <= 0 {
		maxTextLength = normalizer.DefaultMaxTextLength
	}

	return &Repository{db: db, logger: log, maxTextLength: maxTextLength}
}

// DB returns the underlying handle.
func (r *Repository) DB() *DB {
	return r.db
}

// Exists reports whether a publication with the natural key is stored.
func (r *Repository) Exists(ctx context.Context, caseNumber string, filingDate time.Time) (bool, error) {
	var id int64

	err := r.db.GetContext(ctx, &id, r.db.Rebind(
		`SELECT id FROM publicacoes WHERE numero_processo = ? AND data_disponibilizacao = ? LIMIT 1`),
		caseNumber, dateOnly(filingDate))

	return found(err)
}

// ExistsByContent reports whether a publication with the same full text is stored.
func (r *Repository) ExistsByContent(ctx context.Context, text string) (bool, error) {
	capped, _ := normalizer.CapText(text, r.maxTextLength)

	var id int64

	err := r.db.GetContext(ctx, &id, r.db.Rebind(
		`SELECT id FROM publicacoes WHERE md5(conteudo_completo) = ? LIMIT 1`),
		ContentHash(capped))

	return found(err)
}

// Insert stores p with status nova and returns its id. Full text over the cap
// is truncated, a missing defendant is defaulted and a missing filing date
// becomes today. A natural key conflict returns ErrDuplicate.
func (r *Repository) Insert(ctx context.Context, p *models.Publication) (int64, error) {
	text, truncated := normalizer.CapText(p.FullText, r.maxTextLength)
	if truncated {
		r.logger.Warn("Publication text truncated", "case_number", p.CaseNumberOrEmpty(), "max_length", r.maxTextLength)
	}

	defendant := p.Defendant
	if defendant == "" {
		defendant = models.DefaultDefendant
	}

	status := p.Status
	if status == "" {
		status = models.StatusNew
	}

	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	filing := p.FilingDate
	if filing.IsZero() {
		filing = created
	}

	var id int64

	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`INSERT INTO publicacoes (
		numero_processo, data_disponibilizacao, autor, reu, advogado,
		valor_principal, valor_juros_moratorios, honorarios_advocaticios,
		conteudo_completo, status, data_criacao
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		p.CaseNumber, dateOnly(filing), p.Plaintiff, defendant, p.Attorney,
		p.Principal, p.Interest, p.Fees,
		text, string(status), created,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrDuplicate, p.CaseNumberOrEmpty())
		}

		return 0, fmt.Errorf("insert publication: %w", err)
	}

	p.ID = id
	p.FullText = text
	p.Defendant = defendant
	p.Status = status
	p.CreatedAt = created
	p.FilingDate = dateOnly(filing)

	r.logger.Debug("Publication inserted", "id", id, "case_number", p.CaseNumberOrEmpty())

	return id, nil
}

// IsEmpty reports whether no publication is stored yet.
func (r *Repository) IsEmpty(ctx context.Context) (bool, error) {
	var n int

	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM publicacoes`); err != nil {
		return false, fmt.Errorf("count publications: %w", err)
	}

	return n == 0, nil
}

// Get returns the publication with id.
func (r *Repository) Get(ctx context.Context, id int64) (*models.Publication, error) {
	var p models.Publication

	err := r.db.GetContext(ctx, &p, r.db.Rebind(`SELECT `+publicationColumns+` FROM publicacoes WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("get publication %d: %w", id, err)
	}

	return &p, nil
}

// List returns one page of publications matching q.
func (r *Repository) List(ctx context.Context, q ListQuery) (*ListResult, error) {
	page := max(q.Page, 1)

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}

	where, args := r.filters(q)

	var total int

	if err := r.db.GetContext(ctx, &total, r.db.Rebind(`SELECT COUNT(*) FROM publicacoes`+where), args...); err != nil {
		return nil, fmt.Errorf("count publications: %w", err)
	}

	query := `SELECT ` + publicationColumns + ` FROM publicacoes` + where +
		` ORDER BY ` + orderBy(q.Sort, q.Order) + ` LIMIT ? OFFSET ?`

	items := []models.Publication{}

	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(query), append(args, limit, (page-1)*limit)...); err != nil {
		return nil, fmt.Errorf("list publications: %w", err)
	}

	return &ListResult{
		Items: items,
		Total: total,
		Page:  page,
		Limit: limit,
		Pages: int(math.Ceil(float64(total) / float64(limit))),
	}, nil
}

func (r *Repository) filters(q ListQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if q.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(q.Status))
	}

	if !q.From.IsZero() {
		conds = append(conds, "data_disponibilizacao >= ?")
		args = append(args, dateOnly(q.From))
	}

	if !q.To.IsZero() {
		conds = append(conds, "data_disponibilizacao <= ?")
		args = append(args, dateOnly(q.To))
	}

	if s := strings.TrimSpace(q.Search); s != "" {
		like := r.likeOperator()
		pattern := "%" + s + "%"

		var ors []string

		for _, col := range []string{"numero_processo", "autor", "reu", "advogado", "conteudo_completo"} {
			ors = append(ors, col+" "+like+" ?")
			args = append(args, pattern)
		}

		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}

	if len(conds) == 0 {
		return "", nil
	}

	return " WHERE " + strings.Join(conds, " AND "), args
}

// likeOperator returns the case-insensitive LIKE of the dialect. SQLite LIKE
// already ignores ASCII case.
func (r *Repository) likeOperator() string {
	if r.db.IsPostgres() {
		return "ILIKE"
	}

	return "LIKE"
}

func orderBy(sort, order string) string {
	col, ok := sortColumns[sort]
	if !ok {
		col = DefaultSort
	}

	dir := "DESC"
	if strings.EqualFold(order, "asc") {
		dir = "ASC"
	}

	return col + " " + dir + ", id " + dir
}

// UpdateStatus moves a publication to status and stamps data_atualizacao.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status models.Status) (*models.Publication, error) {
	if _, err := models.ParseStatus(string(status)); err != nil {
		return nil, err
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE publicacoes SET status = ?, data_atualizacao = ? WHERE id = ?`),
		string(status), time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("update status of %d: %w", id, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	return r.Get(ctx, id)
}

// Delete removes the publication with id.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM publicacoes WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete publication %d: %w", id, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	return nil
}

// FindByDateRange returns one page of publications filed between from and to,
// newest filing first.
func (r *Repository) FindByDateRange(ctx context.Context, from, to time.Time, page, limit int) (*ListResult, error) {
	return r.List(ctx, ListQuery{
		From:  from,
		To:    to,
		Sort:  "data_disponibilizacao",
		Order: "desc",
		Page:  page,
		Limit: limit,
	})
}

// FindByCaseNumber returns publications whose case number contains number.
func (r *Repository) FindByCaseNumber(ctx context.Context, number string) ([]models.Publication, error) {
	items := []models.Publication{}

	err := r.db.SelectContext(ctx, &items, r.db.Rebind(
		`SELECT `+publicationColumns+` FROM publicacoes WHERE numero_processo `+r.likeOperator()+` ? ORDER BY data_criacao DESC, id DESC`),
		"%"+strings.TrimSpace(number)+"%")
	if err != nil {
		return nil, fmt.Errorf("find by case number: %w", err)
	}

	return items, nil
}

// Stats counts publications per status, overall and created in the last 30 days.
func (r *Repository) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByStatus: []StatusCount{}}

	if err := r.db.SelectContext(ctx, &stats.ByStatus,
		`SELECT status, COUNT(*) AS total FROM publicacoes GROUP BY status ORDER BY status`); err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}

	if err := r.db.GetContext(ctx, &stats.Total, `SELECT COUNT(*) FROM publicacoes`); err != nil {
		return nil, fmt.Errorf("count publications: %w", err)
	}

	if err := r.db.GetContext(ctx, &stats.LastMonth, r.db.Rebind(
		`SELECT COUNT(*) FROM publicacoes WHERE data_criacao >= ?`),
		time.Now().UTC().AddDate(0, 0, -30)); err != nil {
		return nil, fmt.Errorf("count recent publications: %w", err)
	}

	return stats, nil
}

// CleanupIdleConnections terminates sessions of this database that have sat
// idle in a transaction for longer than olderThan. It returns how many were
// terminated. SQLite has no such sessions.
func (r *Repository) CleanupIdleConnections(ctx context.Context, olderThan time.Duration) (int, error) {
	if !r.db.IsPostgres() {
		return 0, nil
	}

	var pids []int

	err := r.db.SelectContext(ctx, &pids, `SELECT pid FROM pg_stat_activity
		WHERE state = 'idle in transaction'
		AND datname = $1
		AND now() - query_start > make_interval(secs => $2)`,
		r.db.name, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("list idle sessions: %w", err)
	}

	for _, pid := range pids {
		r.logger.Warn("Terminating idle session", "pid", pid, "idle_for", olderThan.String())

		if _, err := r.db.ExecContext(ctx, `SELECT pg_terminate_backend($1)`, pid); err != nil {
			r.logger.Warn("Failed to terminate idle session", "pid", pid, "error", err)
		}
	}

	if len(pids) > 0 {
		r.logger.Info("Idle sessions terminated", "count", len(pids))
	}

	return len(pids), nil
}

// dateOnly drops the clock of a filing date so keys compare by day.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()

	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func found(err error) (bool, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("lookup publication: %w", err)
	}

	return true, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			strings.Contains(liteErr.Error(), "UNIQUE constraint failed")
	}

	return false
}
