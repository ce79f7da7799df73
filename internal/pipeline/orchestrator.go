package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"djeworker/internal/crawler"
	"djeworker/internal/logger"
	"djeworker/internal/models"
	"djeworker/internal/parser"
	"djeworker/internal/storage"
	"djeworker/internal/telemetry"
	"djeworker/internal/validator"
)

// ErrExtractionPanic wraps a panic recovered while extracting one record.
var ErrExtractionPanic = errors.New("extraction panicked")

// RecordProcessor turns a complete span into a case record.
type RecordProcessor interface {
	Process(span models.RecordSpan, filingDate time.Time) (*models.CaseRecord, error)
}

// KeywordChecker decides whether a record mentions every required keyword.
type KeywordChecker interface {
	Validate(text string) validator.KeywordResult
}

// Metrics receives run counters. *telemetry.Metrics implements it.
type Metrics interface {
	PageFetched()
	PageSkipped()
	SpanDropped()
	Record(outcome string)
	RunFinished(state string, d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) PageFetched()                      {}
func (nopMetrics) PageSkipped()                      {}
func (nopMetrics) SpanDropped()                      {}
func (nopMetrics) Record(string)                     {}
func (nopMetrics) RunFinished(string, time.Duration) {}

// Components are the collaborators of an Orchestrator.
type Components struct {
	Source    crawler.PageSource
	Anchors   *parser.Anchors
	Processor RecordProcessor
	Keywords  KeywordChecker
	Sink      Sink
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics reports run counters to m.
func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer records a span per run and per page.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithFilingDate sets the filing date given to every record of a run.
// The default is the current day.
func WithFilingDate(fn func() time.Time) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.filingDate = fn
		}
	}
}

// Orchestrator runs the page state machine:
// FETCHING, SEGMENTING, STITCHING, EXTRACTING, VALIDATING, EMITTING.
// It is safe to start several runs; each owns its cursor and visited set.
type Orchestrator struct {
	source     crawler.PageSource
	segmenter  *parser.Segmenter
	resolver   *parser.Resolver
	processor  RecordProcessor
	keywords   KeywordChecker
	sink       Sink
	logger     *logger.Logger
	metrics    Metrics
	tracer     trace.Tracer
	filingDate func() time.Time
}

// NewOrchestrator wires the components. maxContinuation bounds how many pages a
// record may spill into.
func NewOrchestrator(c Components, maxContinuation int, log *logger.Logger, opts ...Option) *Orchestrator {
	anchors := c.Anchors
	if anchors == nil {
		anchors = parser.DefaultAnchors()
	}

	if log == nil {
		log = logger.Discard()
	}

	o := &Orchestrator{
		source:     c.Source,
		segmenter:  parser.NewSegmenter(anchors),
		resolver:   parser.NewResolver(anchors, c.Source, maxContinuation, log),
		processor:  c.Processor,
		keywords:   c.Keywords,
		sink:       c.Sink,
		logger:     log,
		metrics:    nopMetrics{},
		tracer:     noop.NewTracerProvider().Tracer("pipeline"),
		filingDate: time.Now,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Run processes pages from start, following Advance until the source has no
// further page. It returns the report and, for an aborted run, the cause.
func (o *Orchestrator) Run(ctx context.Context, start models.Locator) (*Report, error) {
	r := o.newRun(ctx, "run")
	defer r.end()

	loc := start

	for {
		if err := ctx.Err(); err != nil {
			return r.abort(err)
		}

		if !r.visited.Seen(loc) {
			last, err := r.page(ctx, loc)
			if err != nil {
				return r.abort(err)
			}

			loc = last
		}

		next, ok := o.source.Advance(loc)
		if !ok {
			return r.done()
		}

		loc = next
	}
}

// RunHits processes each search hit page. Following pages are only fetched to
// complete a record that spills over; pages already consumed are not processed
// again.
func (o *Orchestrator) RunHits(ctx context.Context, hits []models.Locator) (*Report, error) {
	r := o.newRun(ctx, "run_hits")
	defer r.end()

	for _, hit := range hits {
		if err := ctx.Err(); err != nil {
			return r.abort(err)
		}

		if r.visited.Seen(hit) {
			r.log.Debug("Hit already consumed", "page", hit.String())

			continue
		}

		if _, err := r.page(ctx, hit); err != nil {
			return r.abort(err)
		}
	}

	return r.done()
}

// run is the state of one Run or RunHits call.
type run struct {
	o          *Orchestrator
	ctx        context.Context
	span       trace.Span
	log        *logger.Logger
	visited    parser.Visited
	report     *Report
	filingDate time.Time
	state      State
	seq        int
}

func (o *Orchestrator) newRun(ctx context.Context, name string) *run {
	id := uuid.NewString()

	ctx, span := o.tracer.Start(ctx, "pipeline."+name, trace.WithAttributes(attribute.String("run_id", id)))

	r := &run{
		o:          o,
		ctx:        ctx,
		span:       span,
		log:        o.logger.With("run_id", id),
		visited:    make(parser.Visited),
		filingDate: o.filingDate(),
		report: &Report{
			RunID:     id,
			StartedAt: time.Now(),
			State:     StateIdle,
		},
	}

	r.log.Info("Run started", "filing_date", r.filingDate.Format(time.DateOnly))

	return r
}

func (r *run) transition(s State) {
	if r.state == s {
		return
	}

	r.state = s
	r.report.State = s
}

func (r *run) done() (*Report, error) {
	r.transition(StateDone)
	r.log.Info("Run finished", "summary", r.report.String())

	return r.report, nil
}

func (r *run) abort(cause error) (*Report, error) {
	r.transition(StateAborted)
	r.span.RecordError(cause)
	r.span.SetStatus(codes.Error, cause.Error())
	r.log.Error("Run aborted", "error", cause, "summary", r.report.String())

	return r.report, fmt.Errorf("run %s aborted: %w", r.report.RunID, cause)
}

func (r *run) end() {
	r.report.FinishedAt = time.Now()
	r.o.metrics.RunFinished(r.report.State.String(), r.report.Duration())
	r.span.SetAttributes(
		attribute.Int("pages_fetched", r.report.PagesFetched),
		attribute.Int("records_inserted", r.report.Inserted),
	)
	r.span.End()
}

// page fetches loc and processes it together with any page its trailing record
// spills into. It returns the last page consumed. Only an unrecoverable source
// or a cancelled context is reported as an error.
func (r *run) page(ctx context.Context, loc models.Locator) (models.Locator, error) {
	ctx, span := r.o.tracer.Start(ctx, "pipeline.page", trace.WithAttributes(attribute.String("page", loc.Key())))
	defer span.End()

	r.transition(StateFetching)
	r.visited.Mark(loc)

	text, err := r.o.source.FetchPage(ctx, loc)
	if err != nil {
		if fatal(ctx, err) {
			return loc, err
		}

		r.skip(loc, err)

		return loc, nil
	}

	r.fetched()

	page := models.Page{Locator: loc, Text: text, Sequence: r.seq}

	for {
		tail, hasTail := r.segment(ctx, page)
		if err := ctx.Err(); err != nil {
			return page.Locator, err
		}

		if !hasTail {
			return page.Locator, nil
		}

		r.transition(StateStitching)

		st := r.o.resolver.Resolve(ctx, tail, page.Locator, r.visited)
		for range st.Pages {
			r.fetched()
		}

		if err := ctx.Err(); err != nil {
			return st.Last, err
		}

		if st.Span.Complete() {
			r.report.SpansComplete++
			r.emit(ctx, st.Span)
		} else {
			r.drop(st)
		}

		if st.FetchFailed {
			if errors.Is(st.Err, crawler.ErrUnrecoverable) {
				return st.Last, st.Err
			}

			r.skip(st.Last, st.Err)

			return st.Last, nil
		}

		rem, ok := st.Remainder()
		if !ok {
			return page.Locator, nil
		}

		page = rem
	}
}

// segment emits every complete span of page and returns its incomplete tail.
func (r *run) segment(ctx context.Context, page models.Page) (models.RecordSpan, bool) {
	r.transition(StateSegmenting)

	for span := range r.o.segmenter.Spans(page.Text) {
		if ctx.Err() != nil {
			break
		}

		span.Pages = []models.Locator{page.Locator}

		if !span.Complete() {
			return span, true
		}

		r.report.SpansComplete++
		r.emit(ctx, span)
	}

	return models.RecordSpan{}, false
}

func (r *run) emit(ctx context.Context, span models.RecordSpan) {
	r.transition(StateExtracting)

	rec, err := r.extract(span)
	if err != nil {
		r.report.Failed++
		r.o.metrics.Record(telemetry.OutcomeFailed)
		r.log.Warn("Record extraction failed", "page", span.Pages[0].String(), "error", err)

		return
	}

	r.report.RecordsExtracted++
	r.o.metrics.Record(telemetry.OutcomeExtracted)

	if rec.PlaintiffLowConfidence {
		r.report.LowConfidence++
	}

	r.transition(StateValidating)

	if res := r.o.keywords.Validate(span.Text); !res.OK {
		r.report.Rejected++
		r.o.metrics.Record(telemetry.OutcomeRejected)
		r.log.Debug("Record rejected", "case_number", deref(rec.CaseNumber), "missing", res.Missing)

		return
	}

	rec.Valid = true

	if ctx.Err() != nil {
		return
	}

	r.transition(StateEmitting)
	r.store(ctx, rec)
}

// extract runs the processor, turning a panic into an error.
func (r *run) extract(span models.RecordSpan) (rec *models.CaseRecord, err error) {
	defer func() {
		if p := recover(); p != nil {
			rec = nil
			err = fmt.Errorf("%w: %v", ErrExtractionPanic, p)
		}
	}()

	return r.o.processor.Process(span, r.filingDate)
}

func (r *run) store(ctx context.Context, rec *models.CaseRecord) {
	pub := models.NewPublication(rec)

	exists, err := r.stored(ctx, rec, pub)
	if err != nil {
		r.failed(rec, err)

		return
	}

	if exists {
		r.duplicate(rec)

		return
	}

	id, err := r.o.sink.Insert(ctx, pub)

	switch {
	case errors.Is(err, storage.ErrDuplicate):
		r.duplicate(rec)
	case err != nil:
		r.failed(rec, err)
	default:
		r.report.Inserted++
		r.o.metrics.Record(telemetry.OutcomeInserted)
		r.log.Info("Publication stored", "id", id, "case_number", deref(rec.CaseNumber), "pages", len(rec.Source))
	}
}

// stored checks the natural key first, then the content hash when the sink
// can answer it. The same record filed under another date is still a duplicate.
func (r *run) stored(ctx context.Context, rec *models.CaseRecord, pub *models.Publication) (bool, error) {
	if rec.HasNaturalKey() {
		exists, err := r.o.sink.Exists(ctx, *rec.CaseNumber, rec.FilingDate)
		if err != nil || exists {
			return exists, err
		}
	}

	if checker, ok := r.o.sink.(ContentChecker); ok {
		return checker.ExistsByContent(ctx, pub.FullText)
	}

	return false, nil
}

func (r *run) duplicate(rec *models.CaseRecord) {
	r.report.Duplicate++
	r.o.metrics.Record(telemetry.OutcomeDuplicate)
	r.log.Debug("Publication already stored", "case_number", deref(rec.CaseNumber))
}

func (r *run) failed(rec *models.CaseRecord, err error) {
	r.report.Failed++
	r.o.metrics.Record(telemetry.OutcomeFailed)
	r.log.Error("Failed to store publication", "case_number", deref(rec.CaseNumber), "error", err)
}

func (r *run) fetched() {
	r.seq++
	r.report.PagesFetched++
	r.o.metrics.PageFetched()
}

func (r *run) skip(loc models.Locator, err error) {
	r.report.PagesSkipped++
	r.o.metrics.PageSkipped()

	if errors.Is(err, crawler.ErrPageAbsent) {
		r.log.Debug("Page absent", "page", loc.String(), "error", err)

		return
	}

	r.log.Warn("Page skipped", "page", loc.String(), "error", err)
}

func (r *run) drop(st parser.Stitch) {
	r.report.SpansDropped++
	r.o.metrics.SpanDropped()
	r.log.Debug("Incomplete span dropped", "from", st.Span.Pages[0].String(), "last", st.Last.String(), "reason", st.Err)
}

func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, crawler.ErrUnrecoverable)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
