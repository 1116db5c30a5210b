package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/claimcheck/internal/decision"
	"github.com/ppiankov/claimcheck/internal/extract"
	"github.com/ppiankov/claimcheck/internal/history"
	"github.com/ppiankov/claimcheck/internal/ingest"
	"github.com/ppiankov/claimcheck/internal/model"
	"github.com/ppiankov/claimcheck/internal/validate"
	"go.uber.org/zap"
)

const (
	DefaultTopK             = 3
	DefaultRetrievalTimeout = 30 * time.Second
)

// ErrNoIngestor is returned by Setup when no ingestion collaborator is configured.
var ErrNoIngestor = errors.New("no document ingestor configured")

// Searcher retrieves policy clauses most similar to a query, best first.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, filter map[string]string) ([]model.RetrievedClause, error)
}

// Counter reports how many clauses the searcher holds.
type Counter interface {
	Count() int
}

// ResultCache memoizes processed queries. Clear drops every entry.
type ResultCache interface {
	Get(query string, topK int) (*model.QueryResult, bool)
	Set(query string, topK int, result *model.QueryResult)
	Clear()
}

// HistoryRecorder stores processed queries.
type HistoryRecorder interface {
	Append(ctx context.Context, e history.Entry) error
}

// Ingestor indexes a policy document.
type Ingestor interface {
	Setup(ctx context.Context, path string, reset bool) (*ingest.SetupResult, error)
}

// Pipeline orchestrates extraction, validation, retrieval and decision
type Pipeline struct {
	extractor        *extract.EntityExtractor
	searcher         Searcher
	engine           *decision.Engine
	cache            ResultCache
	history          HistoryRecorder
	ingestor         Ingestor
	now              func() time.Time
	retrievalTimeout time.Duration
	logger           *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithCache enables result caching.
func WithCache(c ResultCache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithHistory records every processed query.
func WithHistory(h HistoryRecorder) Option {
	return func(p *Pipeline) { p.history = h }
}

// WithIngestor enables Setup.
func WithIngestor(i Ingestor) Option {
	return func(p *Pipeline) { p.ingestor = i }
}

// WithClock replaces time.Now for timestamps and timing.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithRetrievalTimeout bounds each clause search.
func WithRetrievalTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.retrievalTimeout = d
		}
	}
}

// New creates a pipeline. A nil extractor or engine gets a default one.
func New(extractor *extract.EntityExtractor, searcher Searcher, engine *decision.Engine, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor:        extractor,
		searcher:         searcher,
		engine:           engine,
		now:              time.Now,
		retrievalTimeout: DefaultRetrievalTimeout,
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.extractor == nil {
		p.extractor = extract.NewEntityExtractor(extract.WithLogger(p.logger))
	}
	if p.engine == nil {
		p.engine = decision.NewEngine(nil, decision.WithLogger(p.logger))
	}
	return p
}

// Process runs one query end to end. Incomplete attributes never block;
// only a retrieval failure is returned as an error.
func (p *Pipeline) Process(ctx context.Context, query string, topK int) (*model.QueryResult, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	start := p.now()

	if p.cache != nil {
		if cached, ok := p.cache.Get(query, topK); ok {
			p.logger.Debug("cache hit", zap.String("query", query))
			// The entry describes this request, not the one that filled the cache.
			end := p.now()
			entry := history.NewEntry(cached, topK, true)
			entry.Timestamp = end.UTC()
			entry.ProcessingTimeSeconds = end.Sub(start).Seconds()
			p.record(ctx, entry)
			return cached, nil
		}
	}

	attrs := p.extractor.Extract(query)
	completeness := validate.Validate(attrs)
	if !completeness.IsComplete {
		p.logger.Info("incomplete claim attributes",
			zap.Strings("missing_fields", completeness.MissingFields),
		)
	}

	clauses, err := p.retrieve(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve clauses: %w", err)
	}

	verdict := p.engine.MakeDecision(ctx, attrs, clauses)
	end := p.now()

	result := &model.QueryResult{
		Query:                 query,
		Attributes:            attrs,
		Validation:            completeness,
		RetrievedClauses:      clauses,
		Verdict:               verdict,
		ProcessingTimeSeconds: end.Sub(start).Seconds(),
		Timestamp:             end,
	}

	p.logger.Info("query processed",
		zap.Bool("approved", verdict.Approved),
		zap.String("confidence", string(verdict.Confidence)),
		zap.Int("clauses", len(clauses)),
		zap.Float64("seconds", result.ProcessingTimeSeconds),
	)

	if p.cache != nil {
		p.cache.Set(query, topK, result)
	}
	p.record(ctx, history.NewEntry(result, topK, false))
	return result, nil
}

func (p *Pipeline) retrieve(ctx context.Context, query string, topK int) ([]model.RetrievedClause, error) {
	if p.searcher == nil {
		return nil, errors.New("no clause searcher configured")
	}
	ctx, cancel := context.WithTimeout(ctx, p.retrievalTimeout)
	defer cancel()

	clauses, err := p.searcher.Search(ctx, query, topK, nil)
	if err != nil {
		return nil, err
	}
	if len(clauses) > topK {
		clauses = clauses[:topK]
	}
	if clauses == nil {
		clauses = []model.RetrievedClause{}
	}
	return clauses, nil
}

func (p *Pipeline) record(ctx context.Context, entry history.Entry) {
	if p.history == nil {
		return
	}
	if err := p.history.Append(ctx, entry); err != nil {
		p.logger.Warn("history append failed", zap.Error(err))
	}
}

// BatchProcess runs queries one after another. The result always has one
// item per query, in input order; failures become error items.
func (p *Pipeline) BatchProcess(ctx context.Context, queries []string, topK int) []model.BatchItem {
	items := make([]model.BatchItem, len(queries))
	for i, q := range queries {
		items[i] = model.BatchItem{Query: q}
		if err := ctx.Err(); err != nil {
			items[i].Error = err.Error()
			continue
		}
		result, err := p.Process(ctx, q, topK)
		if err != nil {
			p.logger.Warn("batch query failed", zap.Int("index", i), zap.Error(err))
			items[i].Error = err.Error()
			continue
		}
		items[i].Success = true
		items[i].Result = result
	}
	return items
}

// Validate reports which decision-relevant attributes are present.
func (p *Pipeline) Validate(attrs model.ClaimAttributes) model.Completeness {
	return validate.Validate(attrs)
}

// MissingFields lists absent decision-relevant attributes.
func (p *Pipeline) MissingFields(attrs model.ClaimAttributes) []string {
	return validate.MissingFields(attrs)
}

// Extract exposes attribute extraction without retrieval or reasoning.
func (p *Pipeline) Extract(query string) model.ClaimAttributes {
	return p.extractor.Extract(query)
}

// TestConnection reports whether the reasoning provider answers.
func (p *Pipeline) TestConnection(ctx context.Context) bool {
	return p.engine.TestConnection(ctx)
}

// ProviderAvailable reports whether the reasoning provider is configured
// and reachable. Unlike TestConnection no prompt is sent.
func (p *Pipeline) ProviderAvailable(ctx context.Context) bool {
	return p.engine.Available(ctx)
}

// Status describes the pipeline's collaborators.
type Status struct {
	IsSetup             bool   `json:"is_setup"`
	TotalDocuments      int    `json:"total_documents"`
	LLMProvider         string `json:"llm_provider"`
	LLMModel            string `json:"llm_model"`
	SupportedLocations  int    `json:"supported_locations"`
	SupportedProcedures int    `json:"supported_procedures"`
}

// Status reports provider, model, document count and the gazetteer sizes.
func (p *Pipeline) Status(ctx context.Context) Status {
	s := Status{
		LLMProvider:         p.engine.ProviderName(),
		LLMModel:            p.engine.Model(),
		SupportedLocations:  len(extract.KnownLocations()),
		SupportedProcedures: len(extract.KnownProcedures()),
	}
	if c, ok := p.searcher.(Counter); ok {
		s.TotalDocuments = c.Count()
		s.IsSetup = s.TotalDocuments > 0
	}
	return s
}

// Setup indexes the document at path through the configured ingestor.
func (p *Pipeline) Setup(ctx context.Context, path string, reset bool) (*ingest.SetupResult, error) {
	if p.ingestor == nil {
		return nil, ErrNoIngestor
	}
	result, err := p.ingestor.Setup(ctx, path, reset)
	if err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}
	// Cached verdicts cite clauses from the previous index.
	if p.cache != nil {
		p.cache.Clear()
		p.logger.Info("response cache cleared after setup")
	}
	return result, nil
}
