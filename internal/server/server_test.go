package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ppiankov/claimcheck/internal/cache"
	"github.com/ppiankov/claimcheck/internal/history"
	"github.com/ppiankov/claimcheck/internal/ingest"
	"github.com/ppiankov/claimcheck/internal/model"
	"github.com/ppiankov/claimcheck/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	setup      bool
	processErr error
	setupErr   error
	working    bool
	lastTopK   int
	setupPath  string
}

func (f *fakeService) Process(_ context.Context, query string, topK int) (*model.QueryResult, error) {
	f.lastTopK = topK
	if f.processErr != nil {
		return nil, f.processErr
	}
	return &model.QueryResult{
		Query:            query,
		RetrievedClauses: []model.RetrievedClause{},
		Verdict: model.Verdict{
			Approved:        true,
			Reasoning:       "Covered under surgical benefits.",
			RelevantClauses: []string{"SURGICAL COVERAGE"},
			Confidence:      model.ConfidenceHigh,
			RiskFactors:     []string{},
		},
	}, nil
}

func (f *fakeService) BatchProcess(ctx context.Context, queries []string, topK int) []model.BatchItem {
	items := make([]model.BatchItem, len(queries))
	for i, q := range queries {
		items[i] = model.BatchItem{Query: q}
		if strings.Contains(q, "fail") {
			items[i].Error = "retrieve clauses: index offline"
			continue
		}
		res, _ := f.Process(ctx, q, topK)
		items[i].Success = true
		items[i].Result = res
	}
	return items
}

func (f *fakeService) Status(context.Context) pipeline.Status {
	s := pipeline.Status{LLMProvider: "stub", LLMModel: "stub-model", SupportedLocations: 40, SupportedProcedures: 9}
	if f.setup {
		s.IsSetup = true
		s.TotalDocuments = 12
	}
	return s
}

func (f *fakeService) Setup(_ context.Context, path string, reset bool) (*ingest.SetupResult, error) {
	f.setupPath = path
	if f.setupErr != nil {
		return nil, f.setupErr
	}
	return &ingest.SetupResult{DocumentPath: path, TotalChunks: 12, DocumentsStored: 12, SetupTimeSeconds: 0.5}, nil
}

func (f *fakeService) TestConnection(context.Context) bool { return f.working }

func (f *fakeService) ProviderAvailable(context.Context) bool { return f.working }

type fakeHistory struct {
	entries []history.Entry
	err     error
	limit   int
	offset  int
}

func (h *fakeHistory) List(_ context.Context, limit, offset int, _ bool) ([]history.Entry, error) {
	h.limit, h.offset = limit, offset
	return h.entries, h.err
}

func (h *fakeHistory) Get(_ context.Context, id string) (*history.Entry, error) {
	if h.err != nil {
		return nil, h.err
	}
	for i := range h.entries {
		if h.entries[i].ID == id {
			return &h.entries[i], nil
		}
	}
	return nil, history.ErrNotFound
}

func (h *fakeHistory) Analytics(context.Context) (history.Analytics, error) {
	return history.Analytics{TotalQueries: 4, ApprovedCount: 3, RejectedCount: 1, ApprovalRate: 75}, h.err
}

type fakeCache struct{}

func (fakeCache) Stats() cache.Stats { return cache.Stats{Entries: 7} }

type denyLimiter struct{}

func (denyLimiter) Allow(string) bool { return false }

func newTestServer(t *testing.T, svc Service, opts ...Option) *Server {
	t.Helper()
	s, err := New(svc, Config{DocumentPath: "data/raw/policy.txt", CORSOrigins: []string{"http://localhost:3000"}}, opts...)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestNew_RequiresService(t *testing.T) {
	_, err := New(nil, Config{})
	assert.Error(t, err)
}

func TestHandleHealth(t *testing.T) {
	rec := do(t, newTestServer(t, &fakeService{}), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "healthy", body["status"])
}

func TestHandleStatus(t *testing.T) {
	rec := do(t, newTestServer(t, &fakeService{setup: true}), http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["is_setup"])
	assert.Equal(t, float64(12), body["total_documents"])
	assert.Equal(t, "stub", body["llm_provider"])
	assert.Equal(t, float64(40), body["supported_locations"])
}

func TestHandleQuery(t *testing.T) {
	svc := &fakeService{setup: true}
	rec := do(t, newTestServer(t, svc), http.MethodPost, "/api/query",
		`{"query": "46M knee surgery Pune 3 month policy", "top_k": 5}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "46M knee surgery Pune 3 month policy", body["query"])
	verdict := body["verdict"].(map[string]any)
	assert.Equal(t, true, verdict["approved"])
	assert.Equal(t, 5, svc.lastTopK)
}

func TestHandleQuery_DefaultTopK(t *testing.T) {
	svc := &fakeService{setup: true}
	rec := do(t, newTestServer(t, svc), http.MethodPost, "/api/query", `{"query": "knee surgery in Pune"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pipeline.DefaultTopK, svc.lastTopK)
}

func TestHandleQuery_Validation(t *testing.T) {
	s := newTestServer(t, &fakeService{setup: true})
	tests := []struct {
		name string
		body string
	}{
		{"short query", `{"query": "knee", "top_k": 3}`},
		{"blank query", `{"query": "       ", "top_k": 3}`},
		{"top_k zero", `{"query": "knee surgery", "top_k": 0}`},
		{"top_k too large", `{"query": "knee surgery", "top_k": 11}`},
		{"malformed", `{"query": `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/query", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestHandleQuery_NotSetup(t *testing.T) {
	rec := do(t, newTestServer(t, &fakeService{}), http.MethodPost, "/api/query", `{"query": "knee surgery", "top_k": 3}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "not setup")
}

func TestHandleQuery_ProcessError(t *testing.T) {
	svc := &fakeService{setup: true, processErr: errors.New("retrieve clauses: index offline")}
	rec := do(t, newTestServer(t, svc), http.MethodPost, "/api/query", `{"query": "knee surgery", "top_k": 3}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "index offline")
}

func TestHandleBatch(t *testing.T) {
	rec := do(t, newTestServer(t, &fakeService{setup: true}), http.MethodPost, "/api/batch",
		`{"queries": ["knee surgery Pune", "this one will fail", "cataract Mumbai"], "top_k": 2}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Items, 3)
	assert.Equal(t, "this one will fail", resp.Items[1].Query)
	assert.False(t, resp.Items[1].Success)
}

func TestHandleBatch_Validation(t *testing.T) {
	s := newTestServer(t, &fakeService{setup: true})
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/batch", `{"queries": []}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/batch", `{"queries": ["a query"], "top_k": 20}`).Code)

	many := make([]string, MaxBatchSize+1)
	for i := range many {
		many[i] = "knee surgery"
	}
	data, _ := json.Marshal(BatchRequest{Queries: many})
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/batch", string(data)).Code)
}

func TestHandleUpload(t *testing.T) {
	svc := &fakeService{}
	rec := do(t, newTestServer(t, svc), http.MethodPost, "/api/upload", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(12), body["total_chunks"])
	assert.Equal(t, "data/raw/policy.txt", svc.setupPath)

	svc.setupErr = ingest.ErrUnsupportedFormat
	rec = do(t, newTestServer(t, svc), http.MethodPost, "/api/upload", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleUpload_NoDocument(t *testing.T) {
	s, err := New(&fakeService{}, Config{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodPost, "/api/upload", "").Code)
}

func TestHandleTestLLM(t *testing.T) {
	rec := do(t, newTestServer(t, &fakeService{working: true}), http.MethodGet, "/api/test-llm", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["llm_working"])
	assert.Equal(t, true, body["llm_available"])
	assert.Equal(t, "stub", body["provider"])
	assert.Equal(t, "stub-model", body["model"])
}

func TestHandleHistory(t *testing.T) {
	h := &fakeHistory{entries: []history.Entry{{ID: "a", Query: "knee surgery"}}}
	s := newTestServer(t, &fakeService{}, WithHistory(h))

	rec := do(t, s, http.MethodGet, "/api/history?limit=10&offset=5", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, h.limit)
	assert.Equal(t, 5, h.offset)
	entries := decode(t, rec)["entries"].([]any)
	assert.Len(t, entries, 1)

	do(t, s, http.MethodGet, "/api/history", "")
	assert.Equal(t, history.DefaultListLimit, h.limit)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/history?limit=0", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/history?limit=abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/history?offset=-1", "").Code)

	h.err = errors.New("database locked")
	assert.Equal(t, http.StatusInternalServerError, do(t, s, http.MethodGet, "/api/history", "").Code)
}

func TestHandleHistoryEntry(t *testing.T) {
	h := &fakeHistory{entries: []history.Entry{{ID: "3f2a", Query: "cataract Mumbai", Approved: true}}}
	s := newTestServer(t, &fakeService{}, WithHistory(h))

	rec := do(t, s, http.MethodGet, "/api/history/3f2a", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	entry := decode(t, rec)["entry"].(map[string]any)
	assert.Equal(t, "cataract Mumbai", entry["query"])

	rec = do(t, s, http.MethodGet, "/api/history/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])

	assert.Equal(t, http.StatusServiceUnavailable,
		do(t, newTestServer(t, &fakeService{}), http.MethodGet, "/api/history/3f2a", "").Code)
}

func TestHandleHistory_Disabled(t *testing.T) {
	s := newTestServer(t, &fakeService{})
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/api/history", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/api/analytics", "").Code)
}

func TestHandleAnalytics(t *testing.T) {
	s := newTestServer(t, &fakeService{}, WithHistory(&fakeHistory{}), WithCacheStats(fakeCache{}))
	rec := do(t, s, http.MethodGet, "/api/analytics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(4), body["total_queries"])
	assert.Equal(t, float64(75), body["approval_rate"])
	assert.Equal(t, float64(7), body["cache_size"])
}

func TestHandleReport(t *testing.T) {
	s := newTestServer(t, &fakeService{setup: true})

	rec := do(t, s, http.MethodPost, "/api/report", `{"query": "46M knee surgery Pune", "top_k": 3}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/markdown"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "claim-report.md")
	assert.Contains(t, rec.Body.String(), "# Insurance Claim Analysis Report")
	assert.Contains(t, rec.Body.String(), "**APPROVED**")

	given := `{"result": {"query": "stored query", "verdict": {"approved": false, "reasoning": "Waiting period not met.", "confidence": "low"}}}`
	rec = do(t, s, http.MethodPost, "/api/report", given)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "> stored query")
	assert.Contains(t, rec.Body.String(), "**REJECTED**")

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/report", `{"query": "abc"}`).Code)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, &fakeService{}, WithRateLimiter(denyLimiter{}))
	rec := do(t, s, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, &fakeService{})
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	rec := do(t, newTestServer(t, &fakeService{}), http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
