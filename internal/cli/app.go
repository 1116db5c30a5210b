package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/claimcheck/internal/cache"
	"github.com/ppiankov/claimcheck/internal/decision"
	"github.com/ppiankov/claimcheck/internal/extract"
	"github.com/ppiankov/claimcheck/internal/history"
	"github.com/ppiankov/claimcheck/internal/ingest"
	"github.com/ppiankov/claimcheck/internal/llm"
	"github.com/ppiankov/claimcheck/internal/model"
	"github.com/ppiankov/claimcheck/internal/pipeline"
	"github.com/ppiankov/claimcheck/internal/retrieval"
	"github.com/ppiankov/claimcheck/internal/worker"
	"go.uber.org/zap"
)

// app holds every long-lived component a command may need.
type app struct {
	cfg      model.Config
	logger   *zap.Logger
	store    *retrieval.ChromemStore
	cache    *cache.ResponseCache
	history  *history.SQLiteStore
	pipeline *pipeline.Pipeline
}

// newApp wires provider, engine, vector store, ingestor, cache and history
// into a pipeline.
func newApp(cfg model.Config, logger *zap.Logger) (*app, error) {
	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM, logger))
	if err != nil {
		return nil, fmt.Errorf("create llm provider: %w", err)
	}

	engineOpts := []decision.Option{
		decision.WithLogger(logger),
		decision.WithLimiter(worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)),
		decision.WithMaxTokens(cfg.LLM.MaxTokens),
		decision.WithTemperature(cfg.LLM.Temperature),
	}
	if cfg.LLM.Timeout > 0 {
		engineOpts = append(engineOpts, decision.WithTimeout(time.Duration(cfg.LLM.Timeout)*time.Second))
	}
	engine := decision.NewEngine(provider, engineOpts...)

	embedding, err := retrieval.NewEmbeddingFunc(cfg.Retrieval)
	if err != nil {
		return nil, fmt.Errorf("create embedding function: %w", err)
	}
	store, err := retrieval.NewChromemStore(retrieval.ConfigFromModel(cfg.Retrieval), embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, store: store}

	chunker := ingest.NewChunker(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap, ingest.WithChunkerLogger(logger))
	ingestOpts := []ingest.Option{ingest.WithLogger(logger)}
	if cfg.Ingest.ChunksPath != "" {
		ingestOpts = append(ingestOpts, ingest.WithChunksPath(cfg.Ingest.ChunksPath))
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithIngestor(ingest.NewIngestor(chunker, store, ingestOpts...)),
	}
	if cfg.Retrieval.Timeout > 0 {
		opts = append(opts, pipeline.WithRetrievalTimeout(time.Duration(cfg.Retrieval.Timeout)*time.Second))
	}

	if cfg.Cache.Enabled {
		a.cache = cache.NewResponseCache(nil,
			cache.WithTTL(time.Duration(cfg.Cache.TTL)*time.Second),
			cache.WithMaxEntries(cfg.Cache.MaxEntries),
			cache.WithLogger(logger),
		)
		opts = append(opts, pipeline.WithCache(a.cache))
	}

	if cfg.History.Enabled {
		h, err := history.Open(cfg.History.Path, cfg.History.MaxEntries)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("open history: %w", err)
		}
		a.history = h
		opts = append(opts, pipeline.WithHistory(h))
	}

	extractor := extract.NewEntityExtractor(extract.WithLogger(logger))
	a.pipeline = pipeline.New(extractor, store, engine, opts...)
	return a, nil
}

// Close releases the history database and the vector store.
func (a *app) Close() error {
	var errs []error
	if a.history != nil {
		errs = append(errs, a.history.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

// setupApp loads config, builds the logger and wires the app.
func setupApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	a, err := newApp(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}
