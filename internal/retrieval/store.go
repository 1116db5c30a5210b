package retrieval

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/ppiankov/claimcheck/internal/ingest"
	"github.com/ppiankov/claimcheck/internal/model"
	"go.uber.org/zap"
)

// DefaultCollection holds policy chunks.
const DefaultCollection = "policy_documents"

var (
	// ErrNotInitialized is returned when the collection is unavailable.
	ErrNotInitialized = errors.New("vector store not initialized")
)

// Config holds configuration for the chromem-go vector store.
type Config struct {
	// Path is the directory for persistent storage; empty keeps the
	// database in memory.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collection defaults to DefaultCollection.
	Collection string
}

// ConfigFromModel maps the retrieval section of the app config.
func ConfigFromModel(cfg model.RetrievalConfig) Config {
	return Config{
		Path:       cfg.DBPath,
		Compress:   cfg.Compress,
		Collection: cfg.Collection,
	}
}

// Stats describes the collection contents.
type Stats struct {
	TotalDocuments int      `json:"total_documents"`
	CollectionName string   `json:"collection_name"`
	PersistPath    string   `json:"persist_directory"`
	SampleSections []string `json:"sample_sections"`
}

// ChromemStore indexes policy chunks in a chromem-go collection.
type ChromemStore struct {
	db        *chromem.DB
	embedding chromem.EmbeddingFunc
	config    Config
	logger    *zap.Logger

	mu         sync.RWMutex
	collection *chromem.Collection
}

// NewChromemStore opens (or creates) the store and its collection.
func NewChromemStore(config Config, embedding chromem.EmbeddingFunc, logger *zap.Logger) (*ChromemStore, error) {
	if embedding == nil {
		return nil, fmt.Errorf("embedding function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Collection == "" {
		config.Collection = DefaultCollection
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		expanded, err := expandPath(config.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(expanded, 0755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", expanded, err)
		}
		db, err = chromem.NewPersistentDB(expanded, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
		config.Path = expanded
	}

	s := &ChromemStore{
		db:        db,
		embedding: embedding,
		config:    config,
		logger:    logger,
	}
	if err := s.openCollection(); err != nil {
		return nil, err
	}

	logger.Info("vector store initialized",
		zap.String("path", config.Path),
		zap.String("collection", config.Collection),
		zap.Int("documents", s.Count()),
	)
	return s, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func (s *ChromemStore) openCollection() error {
	collection, err := s.db.GetOrCreateCollection(s.config.Collection, nil, s.embedding)
	if err != nil {
		return fmt.Errorf("getting/creating collection %s: %w", s.config.Collection, err)
	}
	s.mu.Lock()
	s.collection = collection
	s.mu.Unlock()
	return nil
}

func (s *ChromemStore) current() *chromem.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection
}

// AddChunks embeds and stores chunks. Existing ids are overwritten.
func (s *ChromemStore) AddChunks(ctx context.Context, chunks []ingest.Chunk) error {
	collection := s.current()
	if collection == nil {
		return ErrNotInitialized
	}
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(chunks))
	for i, ch := range chunks {
		docs[i] = chromem.Document{
			ID:      ch.ID,
			Content: ch.Text,
			Metadata: map[string]string{
				"section":     ch.Section,
				"chunk_index": strconv.Itoa(ch.Index),
				"char_start":  strconv.Itoa(ch.CharStart),
				"char_end":    strconv.Itoa(ch.CharEnd),
				"text_length": strconv.Itoa(len(ch.Text)),
			},
		}
	}

	if err := collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}

	s.logger.Info("added chunks to vector store",
		zap.Int("added", len(docs)),
		zap.Int("total", collection.Count()),
	)
	return nil
}

// Search returns up to topK clauses most similar to query, best first.
// A non-nil filter restricts results by exact metadata match.
func (s *ChromemStore) Search(ctx context.Context, query string, topK int, filter map[string]string) ([]model.RetrievedClause, error) {
	collection := s.current()
	if collection == nil {
		return nil, ErrNotInitialized
	}
	if topK <= 0 {
		return nil, fmt.Errorf("top_k must be positive, got %d", topK)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	// chromem requires nResults <= document count
	count := collection.Count()
	if count == 0 {
		return []model.RetrievedClause{}, nil
	}
	if topK > count {
		topK = count
	}

	results, err := collection.Query(ctx, query, topK, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	clauses := make([]model.RetrievedClause, len(results))
	for i, r := range results {
		clauses[i] = model.RetrievedClause{
			Text:       r.Content,
			Section:    r.Metadata["section"],
			Similarity: model.ClampSimilarity(float64(r.Similarity)),
			ChunkID:    r.ID,
		}
	}

	s.logger.Debug("searched vector store",
		zap.Int("k", topK),
		zap.Int("results", len(clauses)),
	)
	return clauses, nil
}

// Count returns the number of stored chunks.
func (s *ChromemStore) Count() int {
	collection := s.current()
	if collection == nil {
		return 0
	}
	return collection.Count()
}

// Reset deletes every chunk by recreating the collection.
func (s *ChromemStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.collection = nil
	s.mu.Unlock()

	if err := s.db.DeleteCollection(s.config.Collection); err != nil {
		return fmt.Errorf("deleting collection %s: %w", s.config.Collection, err)
	}
	if err := s.openCollection(); err != nil {
		return err
	}

	s.logger.Info("vector store reset", zap.String("collection", s.config.Collection))
	return nil
}

// Stats reports the document count and up to ten section names.
func (s *ChromemStore) Stats(ctx context.Context) (Stats, error) {
	collection := s.current()
	if collection == nil {
		return Stats{}, ErrNotInitialized
	}

	stats := Stats{
		TotalDocuments: collection.Count(),
		CollectionName: s.config.Collection,
		PersistPath:    s.config.Path,
		SampleSections: []string{},
	}

	seen := make(map[string]bool)
	for i := 0; i < stats.TotalDocuments && len(seen) < 10; i++ {
		doc, err := collection.GetByID(ctx, "chunk_"+strconv.Itoa(i))
		if err != nil {
			continue
		}
		if section := doc.Metadata["section"]; section != "" && !seen[section] {
			seen[section] = true
			stats.SampleSections = append(stats.SampleSections, section)
		}
	}
	sort.Strings(stats.SampleSections)
	return stats, nil
}

// Close releases the store. chromem persists on write so nothing is flushed.
func (s *ChromemStore) Close() error {
	s.logger.Info("vector store closed")
	return nil
}
