// Package server provides the HTTP API for claim analysis.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/ppiankov/claimcheck/internal/cache"
	"github.com/ppiankov/claimcheck/internal/history"
	"github.com/ppiankov/claimcheck/internal/ingest"
	"github.com/ppiankov/claimcheck/internal/model"
	"github.com/ppiankov/claimcheck/internal/pipeline"
	"github.com/ppiankov/claimcheck/internal/report"
	"go.uber.org/zap"
)

const (
	MinQueryLength = 5
	MinTopK        = 1
	MaxTopK        = 10
	MaxBatchSize   = 50
	MaxHistoryPage = 500
)

// Service is the claim pipeline as seen by the API.
type Service interface {
	Process(ctx context.Context, query string, topK int) (*model.QueryResult, error)
	BatchProcess(ctx context.Context, queries []string, topK int) []model.BatchItem
	Status(ctx context.Context) pipeline.Status
	Setup(ctx context.Context, path string, reset bool) (*ingest.SetupResult, error)
	TestConnection(ctx context.Context) bool
	ProviderAvailable(ctx context.Context) bool
}

// HistoryReader exposes stored queries.
type HistoryReader interface {
	List(ctx context.Context, limit, offset int, withResult bool) ([]history.Entry, error)
	Get(ctx context.Context, id string) (*history.Entry, error)
	Analytics(ctx context.Context) (history.Analytics, error)
}

// CacheStats reports response cache counters.
type CacheStats interface {
	Stats() cache.Stats
}

// RateLimiter admits or rejects a request for key.
type RateLimiter interface {
	Allow(key string) bool
}

// Config holds HTTP server configuration.
type Config struct {
	Addr         string
	CORSOrigins  []string
	DocumentPath string
}

// Server serves the claim analysis API.
type Server struct {
	echo     *echo.Echo
	service  Service
	history  HistoryReader
	cache    CacheStats
	limiter  RateLimiter
	renderer *report.Renderer
	logger   *zap.Logger
	config   Config
}

// Option configures a Server.
type Option func(*Server)

// WithHistory enables the history and analytics endpoints.
func WithHistory(h HistoryReader) Option {
	return func(s *Server) { s.history = h }
}

// WithCacheStats adds cache figures to analytics.
func WithCacheStats(c CacheStats) Option {
	return func(s *Server) { s.cache = c }
}

// WithRateLimiter throttles API requests per client IP.
func WithRateLimiter(l RateLimiter) Option {
	return func(s *Server) { s.limiter = l }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a server around service.
func New(service Service, cfg Config, opts ...Option) (*Server, error) {
	if service == nil {
		return nil, errors.New("service cannot be nil")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}

	s := &Server{
		service:  service,
		renderer: report.NewRenderer(true),
		logger:   zap.NewNop(),
		config:   cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger)
	if len(cfg.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.CORSOrigins,
			AllowCredentials: true,
		}))
	}

	s.echo = e
	s.registerRoutes()
	return s, nil
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		s.logger.Info("http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		)
		return nil
	}
}

func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.limiter != nil && !s.limiter.Allow(c.RealIP()) {
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		}
		return next(c)
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/", s.handleRoot)

	api := s.echo.Group("/api", s.rateLimit)
	api.GET("/health", s.handleHealth)
	api.GET("/status", s.handleStatus)
	api.POST("/query", s.handleQuery)
	api.POST("/batch", s.handleBatch)
	api.POST("/upload", s.handleUpload)
	api.GET("/test-llm", s.handleTestLLM)
	api.GET("/history", s.handleHistory)
	api.GET("/history/:id", s.handleHistoryEntry)
	api.GET("/analytics", s.handleAnalytics)
	api.POST("/report", s.handleReport)
}

// ServeHTTP lets the server be mounted or tested as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.config.Addr))
	return s.echo.Start(s.config.Addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := "internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	} else {
		s.logger.Error("request failed", zap.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, ErrorResponse{Success: false, Error: msg})
}

// QueryRequest is the body of POST /api/query and POST /api/report.
// A missing top_k means pipeline.DefaultTopK.
type QueryRequest struct {
	Query string `json:"query"`
	TopK  *int   `json:"top_k"`
}

// QueryResponse wraps a processed result.
type QueryResponse struct {
	Success bool `json:"success"`
	*model.QueryResult
}

// BatchRequest is the body of POST /api/batch.
type BatchRequest struct {
	Queries []string `json:"queries"`
	TopK    *int     `json:"top_k"`
}

// BatchResponse carries one item per submitted query.
type BatchResponse struct {
	Success   bool              `json:"success"`
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Items     []model.BatchItem `json:"items"`
}

// ReportRequest renders a given result, or processes the query first.
type ReportRequest struct {
	QueryRequest
	Result *model.QueryResult `json:"result"`
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Claim analysis API",
		"health":  "/api/health",
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"status":  "healthy",
		"message": "Claim analysis API is running",
	})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, struct {
		Success bool `json:"success"`
		pipeline.Status
	}{true, s.service.Status(c.Request().Context())})
}

func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	topK, err := validateQuery(req.Query, req.TopK)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	if !s.service.Status(ctx).IsSetup {
		return echo.NewHTTPError(http.StatusServiceUnavailable,
			"System not setup. Please upload a policy document first.")
	}

	result, err := s.service.Process(ctx, req.Query, topK)
	if err != nil {
		s.logger.Error("query failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Error processing query: "+err.Error())
	}
	return c.JSON(http.StatusOK, QueryResponse{Success: true, QueryResult: result})
}

func (s *Server) handleBatch(c echo.Context) error {
	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Queries) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "queries must not be empty")
	}
	if len(req.Queries) > MaxBatchSize {
		return echo.NewHTTPError(http.StatusBadRequest,
			"at most "+strconv.Itoa(MaxBatchSize)+" queries per batch")
	}
	topK, err := validateTopK(req.TopK)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	if !s.service.Status(ctx).IsSetup {
		return echo.NewHTTPError(http.StatusServiceUnavailable,
			"System not setup. Please upload a policy document first.")
	}

	items := s.service.BatchProcess(ctx, req.Queries, topK)
	resp := BatchResponse{Success: true, Total: len(items), Items: items}
	for _, item := range items {
		if item.Success {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleUpload(c echo.Context) error {
	if s.config.DocumentPath == "" {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no policy document configured")
	}

	result, err := s.service.Setup(c.Request().Context(), s.config.DocumentPath, true)
	if err != nil {
		s.logger.Error("setup failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Error uploading document: "+err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":                true,
		"message":                "Document uploaded and processed successfully",
		"total_chunks":           result.TotalChunks,
		"total_documents_stored": result.DocumentsStored,
		"setup_time_seconds":     result.SetupTimeSeconds,
	})
}

func (s *Server) handleTestLLM(c echo.Context) error {
	ctx := c.Request().Context()
	status := s.service.Status(ctx)
	return c.JSON(http.StatusOK, map[string]any{
		"success":       true,
		"llm_available": s.service.ProviderAvailable(ctx),
		"llm_working":   s.service.TestConnection(ctx),
		"provider":      status.LLMProvider,
		"model":         status.LLMModel,
	})
}

func (s *Server) handleHistory(c echo.Context) error {
	if s.history == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "history is disabled")
	}

	limit, err := intParam(c, "limit", history.DefaultListLimit)
	if err != nil {
		return err
	}
	offset, err := intParam(c, "offset", 0)
	if err != nil {
		return err
	}
	if limit < 1 || limit > MaxHistoryPage {
		return echo.NewHTTPError(http.StatusBadRequest,
			"limit must be between 1 and "+strconv.Itoa(MaxHistoryPage))
	}
	if offset < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "offset must not be negative")
	}

	entries, err := s.history.List(c.Request().Context(), limit, offset, false)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"entries": entries,
	})
}

func (s *Server) handleHistoryEntry(c echo.Context) error {
	if s.history == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "history is disabled")
	}

	entry, err := s.history.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, history.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "history entry not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"entry":   entry,
	})
}

func (s *Server) handleAnalytics(c echo.Context) error {
	if s.history == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "history is disabled")
	}

	a, err := s.history.Analytics(c.Request().Context())
	if err != nil {
		return err
	}
	cacheSize := 0
	if s.cache != nil {
		cacheSize = s.cache.Stats().Entries
	}
	return c.JSON(http.StatusOK, struct {
		Success bool `json:"success"`
		history.Analytics
		CacheSize int `json:"cache_size"`
	}{true, a, cacheSize})
}

func (s *Server) handleReport(c echo.Context) error {
	var req ReportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result := req.Result
	if result == nil {
		topK, err := validateQuery(req.Query, req.TopK)
		if err != nil {
			return err
		}
		result, err = s.service.Process(c.Request().Context(), req.Query, topK)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Error processing query: "+err.Error())
		}
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="claim-report.md"`)
	return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(s.renderer.Markdown(result)))
}

func validateQuery(query string, topK *int) (int, error) {
	if utf8.RuneCountInString(strings.TrimSpace(query)) < MinQueryLength {
		return 0, echo.NewHTTPError(http.StatusBadRequest,
			"query must be at least "+strconv.Itoa(MinQueryLength)+" characters")
	}
	return validateTopK(topK)
}

func validateTopK(topK *int) (int, error) {
	if topK == nil {
		return pipeline.DefaultTopK, nil
	}
	if *topK < MinTopK || *topK > MaxTopK {
		return 0, echo.NewHTTPError(http.StatusBadRequest,
			"top_k must be between "+strconv.Itoa(MinTopK)+" and "+strconv.Itoa(MaxTopK))
	}
	return *topK, nil
}

func intParam(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be an integer")
	}
	return v, nil
}
