package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/claimcheck/internal/cache"
	"github.com/ppiankov/claimcheck/internal/decision"
	"github.com/ppiankov/claimcheck/internal/history"
	"github.com/ppiankov/claimcheck/internal/ingest"
	"github.com/ppiankov/claimcheck/internal/llm"
	"github.com/ppiankov/claimcheck/internal/model"
	"github.com/ppiankov/claimcheck/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const approvedJSON = `{"approved": true, "amount": 150000, "reasoning": "Knee surgery is covered after the waiting period.", "relevant_clauses": ["SURGICAL COVERAGE"], "confidence": "high", "risk_factors": []}`

type stubProvider struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (s *stubProvider) Name() string                     { return "stub" }
func (s *stubProvider) Model() string                    { return "stub-model" }
func (s *stubProvider) IsAvailable(context.Context) bool { return s.err == nil }

func (s *stubProvider) Complete(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Text: s.text}, nil
}

type stubSearcher struct {
	clauses []model.RetrievedClause
	failOn  map[string]error
	queries []string
	lastK   int
	count   int
}

func (s *stubSearcher) Search(ctx context.Context, query string, topK int, _ map[string]string) ([]model.RetrievedClause, error) {
	s.queries = append(s.queries, query)
	s.lastK = topK
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("search called without deadline")
	}
	if err, ok := s.failOn[query]; ok {
		return nil, err
	}
	return s.clauses, nil
}

func (s *stubSearcher) Count() int { return s.count }

type memHistory struct {
	entries []history.Entry
	err     error
}

func (h *memHistory) Append(_ context.Context, e history.Entry) error {
	if h.err != nil {
		return h.err
	}
	h.entries = append(h.entries, e)
	return nil
}

type stubIngestor struct {
	path  string
	reset bool
	err   error
}

func (s *stubIngestor) Setup(_ context.Context, path string, reset bool) (*ingest.SetupResult, error) {
	s.path, s.reset = path, reset
	if s.err != nil {
		return nil, s.err
	}
	return &ingest.SetupResult{DocumentPath: path, TotalChunks: 4}, nil
}

func policyClauses() []model.RetrievedClause {
	return []model.RetrievedClause{
		{Text: "Knee surgery is covered after 90 days.", Section: "SURGICAL COVERAGE", Similarity: 0.82, ChunkID: "chunk_4"},
		{Text: "Emergency care waives waiting periods.", Section: "EMERGENCY", Similarity: 0.61, ChunkID: "chunk_7"},
	}
}

type steppingClock struct {
	t    time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

func newPipeline(provider llm.Provider, searcher Searcher, opts ...Option) *Pipeline {
	return New(nil, searcher, decision.NewEngine(provider), opts...)
}

func TestProcess_CompleteScenario(t *testing.T) {
	clock := &steppingClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC), step: 1500 * time.Millisecond}
	searcher := &stubSearcher{clauses: policyClauses(), count: 12}
	p := newPipeline(&stubProvider{text: approvedJSON}, searcher, WithClock(clock.Now))

	res, err := p.Process(context.Background(), "46M knee surgery Pune 3 month policy", 3)
	require.NoError(t, err)

	assert.Equal(t, "46M knee surgery Pune 3 month policy", res.Query)
	require.NotNil(t, res.Attributes.Age)
	assert.Equal(t, 46, *res.Attributes.Age)
	assert.Equal(t, "male", *res.Attributes.Gender)
	assert.Equal(t, "knee surgery", *res.Attributes.Procedure)
	assert.Equal(t, "Pune", *res.Attributes.Location)
	assert.Equal(t, 3, *res.Attributes.PolicyDurationMonths)

	assert.True(t, res.Validation.IsComplete)
	assert.Empty(t, res.Validation.MissingFields)
	assert.Len(t, res.RetrievedClauses, 2)

	assert.True(t, res.Verdict.Approved)
	require.NotNil(t, res.Verdict.Amount)
	assert.Equal(t, 150000, *res.Verdict.Amount)
	assert.Equal(t, model.ConfidenceHigh, res.Verdict.Confidence)

	assert.InDelta(t, 1.5, res.ProcessingTimeSeconds, 0.001)
	assert.Equal(t, time.Date(2026, 5, 1, 9, 0, 1, 500_000_000, time.UTC), res.Timestamp)
	assert.Equal(t, 3, searcher.lastK)
}

func TestProcess_SparseScenario(t *testing.T) {
	p := newPipeline(&stubProvider{text: "I cannot decide."}, &stubSearcher{clauses: policyClauses()})

	res, err := p.Process(context.Background(), "patient needs urgent care", 3)
	require.NoError(t, err)

	assert.True(t, res.Attributes.IsEmergency)
	assert.False(t, res.Validation.IsComplete)
	assert.Equal(t, []string{validate.FieldAge, validate.FieldProcedure, validate.FieldLocation, validate.FieldPolicyDuration},
		res.Validation.MissingFields)

	assert.False(t, res.Verdict.Approved)
	assert.Equal(t, model.ConfidenceLow, res.Verdict.Confidence)
	assert.NotEmpty(t, res.Verdict.Reasoning)
	assert.NotNil(t, res.Verdict.RelevantClauses)
	assert.NotEmpty(t, res.Verdict.RiskFactors)
}

func TestProcess_ProviderFailureStillSucceeds(t *testing.T) {
	p := newPipeline(&stubProvider{err: errors.New("connection refused")}, &stubSearcher{clauses: policyClauses()})

	res, err := p.Process(context.Background(), "46M knee surgery Pune 3 month policy", 3)
	require.NoError(t, err)
	assert.False(t, res.Verdict.Approved)
	assert.Contains(t, res.Verdict.Reasoning, "connection refused")
}

func TestProcess_RetrievalFailure(t *testing.T) {
	searcher := &stubSearcher{failOn: map[string]error{"q fails": errors.New("index offline")}}
	provider := &stubProvider{text: approvedJSON}
	p := newPipeline(provider, searcher)

	_, err := p.Process(context.Background(), "q fails", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retrieve clauses")
	assert.Contains(t, err.Error(), "index offline")
	assert.Zero(t, provider.calls, "no reasoning call after retrieval failure")
}

func TestProcess_NoSearcher(t *testing.T) {
	p := newPipeline(&stubProvider{text: approvedJSON}, nil)
	_, err := p.Process(context.Background(), "knee surgery", 3)
	assert.Error(t, err)
}

func TestProcess_TruncatesAndDefaultsTopK(t *testing.T) {
	searcher := &stubSearcher{clauses: policyClauses()}
	p := newPipeline(&stubProvider{text: approvedJSON}, searcher)

	res, err := p.Process(context.Background(), "knee surgery", 1)
	require.NoError(t, err)
	assert.Len(t, res.RetrievedClauses, 1)

	_, err = p.Process(context.Background(), "knee surgery", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, searcher.lastK)
}

func TestProcess_EmptyRetrievalIsNotNil(t *testing.T) {
	p := newPipeline(&stubProvider{text: approvedJSON}, &stubSearcher{})
	res, err := p.Process(context.Background(), "knee surgery", 3)
	require.NoError(t, err)
	assert.NotNil(t, res.RetrievedClauses)
	assert.Empty(t, res.RetrievedClauses)
}

func TestBatchProcess_FailureAtIndex(t *testing.T) {
	queries := []string{
		"46M knee surgery Pune 3 month policy",
		"30F cataract surgery Mumbai 12 month policy",
		"broken retrieval query",
		"patient needs urgent care",
	}
	const failing = 2
	searcher := &stubSearcher{
		clauses: policyClauses(),
		failOn:  map[string]error{queries[failing]: errors.New("index offline")},
	}
	p := newPipeline(&stubProvider{text: approvedJSON}, searcher)

	items := p.BatchProcess(context.Background(), queries, 3)
	require.Len(t, items, len(queries))

	for i, item := range items {
		assert.Equal(t, queries[i], item.Query)
		if i == failing {
			assert.False(t, item.Success)
			assert.Nil(t, item.Result)
			assert.Contains(t, item.Error, "index offline")
			continue
		}
		assert.True(t, item.Success, "item %d", i)
		require.NotNil(t, item.Result)
		assert.Equal(t, queries[i], item.Result.Query)
		assert.Empty(t, item.Error)
	}
	assert.Equal(t, queries, searcher.queries, "queries run sequentially in order")
}

func TestBatchProcess_Empty(t *testing.T) {
	p := newPipeline(&stubProvider{text: approvedJSON}, &stubSearcher{})
	items := p.BatchProcess(context.Background(), nil, 3)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestBatchProcess_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newPipeline(&stubProvider{text: approvedJSON}, &stubSearcher{})
	items := p.BatchProcess(ctx, []string{"a", "b"}, 3)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.False(t, item.Success)
		assert.NotEmpty(t, item.Error)
	}
}

func TestProcess_CacheHit(t *testing.T) {
	provider := &stubProvider{text: approvedJSON}
	searcher := &stubSearcher{clauses: policyClauses()}
	rec := &memHistory{}
	p := newPipeline(provider, searcher, WithCache(cache.NewResponseCache(nil)), WithHistory(rec))

	first, err := p.Process(context.Background(), "46M knee surgery Pune 3 month policy", 3)
	require.NoError(t, err)
	second, err := p.Process(context.Background(), "  46m KNEE surgery pune 3 month policy ", 3)
	require.NoError(t, err)

	assert.Equal(t, 1, provider.calls)
	assert.Len(t, searcher.queries, 1)
	assert.Equal(t, first.Verdict, second.Verdict)

	require.Len(t, rec.entries, 2)
	assert.False(t, rec.entries[0].FromCache)
	assert.True(t, rec.entries[1].FromCache)
	assert.True(t, rec.entries[0].Approved)
	assert.Equal(t, 3, rec.entries[0].TopK)
}

func TestProcess_CacheHitRecordsItsOwnTiming(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := &steppingClock{t: base, step: 2 * time.Second}
	rec := &memHistory{}
	p := newPipeline(&stubProvider{text: approvedJSON}, &stubSearcher{clauses: policyClauses()},
		WithCache(cache.NewResponseCache(nil)), WithHistory(rec), WithClock(clock.Now))

	// miss: start at +0s, end at +2s
	first, err := p.Process(context.Background(), "46M knee surgery Pune 3 month policy", 3)
	require.NoError(t, err)
	assert.Equal(t, 2.0, first.ProcessingTimeSeconds)

	// hit: start at +4s, end at +6s
	cached, err := p.Process(context.Background(), "46M knee surgery Pune 3 month policy", 3)
	require.NoError(t, err)
	assert.True(t, first.Timestamp.Equal(cached.Timestamp), "cached result keeps its original timestamp")

	require.Len(t, rec.entries, 2)
	hit := rec.entries[1]
	assert.True(t, hit.FromCache)
	assert.True(t, base.Add(6*time.Second).Equal(hit.Timestamp), "got %v", hit.Timestamp)
	assert.Equal(t, 2.0, hit.ProcessingTimeSeconds)
	assert.True(t, base.Add(2*time.Second).Equal(rec.entries[0].Timestamp), "got %v", rec.entries[0].Timestamp)
}

func TestSetup_ClearsResponseCache(t *testing.T) {
	provider := &stubProvider{text: approvedJSON}
	p := newPipeline(provider, &stubSearcher{clauses: policyClauses()},
		WithCache(cache.NewResponseCache(nil)), WithIngestor(&stubIngestor{}))

	_, err := p.Process(context.Background(), "46M knee surgery Pune 3 month policy", 3)
	require.NoError(t, err)
	_, err = p.Setup(context.Background(), "policy.txt", true)
	require.NoError(t, err)
	_, err = p.Process(context.Background(), "46M knee surgery Pune 3 month policy", 3)
	require.NoError(t, err)

	assert.Equal(t, 2, provider.calls)
}

func TestProviderAvailable(t *testing.T) {
	assert.True(t, newPipeline(&stubProvider{}, &stubSearcher{}).ProviderAvailable(context.Background()))
	assert.False(t, newPipeline(&stubProvider{err: errors.New("down")}, &stubSearcher{}).ProviderAvailable(context.Background()))
	assert.False(t, newPipeline(nil, &stubSearcher{}).ProviderAvailable(context.Background()))
}

func TestProcess_HistoryFailureIsNotReturned(t *testing.T) {
	p := newPipeline(&stubProvider{text: approvedJSON}, &stubSearcher{clauses: policyClauses()},
		WithHistory(&memHistory{err: errors.New("disk full")}))
	_, err := p.Process(context.Background(), "knee surgery", 3)
	assert.NoError(t, err)
}

func TestValidateAndMissingFields(t *testing.T) {
	p := newPipeline(nil, &stubSearcher{})
	attrs := p.Extract("46M knee surgery Pune")

	c := p.Validate(attrs)
	assert.False(t, c.IsComplete)
	assert.Equal(t, []string{validate.FieldPolicyDuration}, p.MissingFields(attrs))
}

func TestStatus(t *testing.T) {
	p := newPipeline(&stubProvider{}, &stubSearcher{count: 42})
	s := p.Status(context.Background())

	assert.True(t, s.IsSetup)
	assert.Equal(t, 42, s.TotalDocuments)
	assert.Equal(t, "stub", s.LLMProvider)
	assert.Equal(t, "stub-model", s.LLMModel)
	assert.Positive(t, s.SupportedLocations)
	assert.Positive(t, s.SupportedProcedures)

	empty := newPipeline(nil, &stubSearcher{}).Status(context.Background())
	assert.False(t, empty.IsSetup)
	assert.Equal(t, "none", empty.LLMProvider)
}

func TestSetup(t *testing.T) {
	p := newPipeline(nil, &stubSearcher{})
	_, err := p.Setup(context.Background(), "policy.txt", true)
	assert.ErrorIs(t, err, ErrNoIngestor)

	ing := &stubIngestor{}
	p = newPipeline(nil, &stubSearcher{}, WithIngestor(ing))
	res, err := p.Setup(context.Background(), "policy.txt", true)
	require.NoError(t, err)
	assert.Equal(t, 4, res.TotalChunks)
	assert.Equal(t, "policy.txt", ing.path)
	assert.True(t, ing.reset)

	ing.err = ingest.ErrUnsupportedFormat
	_, err = p.Setup(context.Background(), "policy.pdf", false)
	assert.ErrorIs(t, err, ingest.ErrUnsupportedFormat)
	assert.True(t, strings.HasPrefix(err.Error(), "setup:"))
}

func TestTestConnection(t *testing.T) {
	assert.True(t, newPipeline(&stubProvider{text: "Hello, I am working!"}, &stubSearcher{}).TestConnection(context.Background()))
	assert.False(t, newPipeline(&stubProvider{err: errors.New("down")}, &stubSearcher{}).TestConnection(context.Background()))
	assert.False(t, newPipeline(nil, &stubSearcher{}).TestConnection(context.Background()))
}
