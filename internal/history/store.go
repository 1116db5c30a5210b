package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/ppiankov/claimcheck/internal/model"
)

const (
	DefaultMaxEntries = 5000
	DefaultListLimit  = 50
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("history entry not found")

// Entry is one processed query.
type Entry struct {
	ID                    string             `json:"id"`
	Query                 string             `json:"query"`
	TopK                  int                `json:"top_k"`
	Approved              bool               `json:"approved"`
	Confidence            model.Confidence   `json:"confidence"`
	ProcessingTimeSeconds float64            `json:"processing_time_seconds"`
	FromCache             bool               `json:"from_cache"`
	Timestamp             time.Time          `json:"timestamp"`
	Result                *model.QueryResult `json:"result,omitempty"`
}

// NewEntry builds an entry from a processed result.
func NewEntry(result *model.QueryResult, topK int, fromCache bool) Entry {
	e := Entry{
		ID:        uuid.NewString(),
		TopK:      topK,
		FromCache: fromCache,
		Timestamp: time.Now().UTC(),
	}
	if result != nil {
		e.Query = result.Query
		e.Approved = result.Verdict.Approved
		e.Confidence = result.Verdict.Confidence
		e.ProcessingTimeSeconds = result.ProcessingTimeSeconds
		e.Result = result
		if !result.Timestamp.IsZero() {
			e.Timestamp = result.Timestamp.UTC()
		}
	}
	return e
}

// Analytics aggregates the history.
type Analytics struct {
	TotalQueries             int     `json:"total_queries"`
	ApprovedCount            int     `json:"approved_count"`
	RejectedCount            int     `json:"rejected_count"`
	ApprovalRate             float64 `json:"approval_rate"`
	AvgProcessingTimeSeconds float64 `json:"avg_processing_time_seconds"`
	CacheHits                int     `json:"cache_hits"`
}

const schema = `
CREATE TABLE IF NOT EXISTS query_history (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	query TEXT NOT NULL,
	top_k INTEGER NOT NULL,
	approved INTEGER NOT NULL,
	confidence TEXT NOT NULL,
	processing_time REAL NOT NULL,
	from_cache INTEGER NOT NULL,
	timestamp TEXT NOT NULL,
	result TEXT
);
CREATE INDEX IF NOT EXISTS idx_query_history_timestamp ON query_history(timestamp);
`

// SQLiteStore persists query history in a SQLite database.
type SQLiteStore struct {
	db         *sql.DB
	path       string
	maxEntries int
}

// Open creates or opens the history database at path. The ":memory:" path
// keeps history for the life of the process.
func Open(path string, maxEntries int) (*SQLiteStore, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	dsn := path
	if path != ":memory:" {
		expanded, err := expandPath(path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(expanded), 0700); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
		path = expanded
		dsn = expanded + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Each connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path, maxEntries: maxEntries}, nil
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

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Append records an entry and trims the oldest rows past the retention limit.
func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var result sql.NullString
	if e.Result != nil {
		data, err := json.Marshal(e.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		result = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO query_history (id, query, top_k, approved, confidence, processing_time, from_cache, timestamp, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Query, e.TopK, e.Approved, string(e.Confidence), e.ProcessingTimeSeconds,
		e.FromCache, e.Timestamp.UTC().Format(time.RFC3339Nano), result,
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM query_history WHERE seq NOT IN (
			SELECT seq FROM query_history ORDER BY seq DESC LIMIT ?
		)`, s.maxEntries)
	if err != nil {
		return fmt.Errorf("trim history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history entry: %w", err)
	}
	return nil
}

// List returns entries newest first. Results are included when withResult is set.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int, withResult bool) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query, top_k, approved, confidence, processing_time, from_cache, timestamp, result
		FROM query_history ORDER BY seq DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e          Entry
			confidence string
			timestamp  string
			result     sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Query, &e.TopK, &e.Approved, &confidence,
			&e.ProcessingTimeSeconds, &e.FromCache, &timestamp, &result); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		e.Confidence = model.Confidence(confidence)
		if ts, err := time.Parse(time.RFC3339Nano, timestamp); err == nil {
			e.Timestamp = ts
		}
		if withResult && result.Valid {
			var qr model.QueryResult
			if err := json.Unmarshal([]byte(result.String), &qr); err == nil {
				e.Result = &qr
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

// Get returns the entry with id, including its result.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Entry, error) {
	var (
		e          Entry
		confidence string
		timestamp  string
		result     sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, query, top_k, approved, confidence, processing_time, from_cache, timestamp, result
		FROM query_history WHERE id = ?`, id).
		Scan(&e.ID, &e.Query, &e.TopK, &e.Approved, &confidence,
			&e.ProcessingTimeSeconds, &e.FromCache, &timestamp, &result)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get history entry %s: %w", id, err)
	}
	e.Confidence = model.Confidence(confidence)
	if ts, err := time.Parse(time.RFC3339Nano, timestamp); err == nil {
		e.Timestamp = ts
	}
	if result.Valid {
		var qr model.QueryResult
		if err := json.Unmarshal([]byte(result.String), &qr); err == nil {
			e.Result = &qr
		}
	}
	return &e, nil
}

// Analytics computes approval and timing figures over all stored entries.
func (s *SQLiteStore) Analytics(ctx context.Context) (Analytics, error) {
	var (
		a       Analytics
		avgTime sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(approved), 0),
			AVG(processing_time),
			COALESCE(SUM(from_cache), 0)
		FROM query_history`).Scan(&a.TotalQueries, &a.ApprovedCount, &avgTime, &a.CacheHits)
	if err != nil {
		return Analytics{}, fmt.Errorf("compute analytics: %w", err)
	}

	a.RejectedCount = a.TotalQueries - a.ApprovedCount
	if a.TotalQueries > 0 {
		a.ApprovalRate = round(100*float64(a.ApprovedCount)/float64(a.TotalQueries), 2)
	}
	if avgTime.Valid {
		a.AvgProcessingTimeSeconds = round(avgTime.Float64, 3)
	}
	return a, nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
