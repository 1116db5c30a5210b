package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/claimcheck/internal/model"
)

// Processor runs one claim query end to end
type Processor interface {
	Process(ctx context.Context, query string, topK int) (*model.QueryResult, error)
}

// QueryJob is one query of a concurrent batch
type QueryJob struct {
	Index     int
	Query     string
	TopK      int
	Processor Processor
}

// Execute executes the query job
func (j *QueryJob) Execute(ctx context.Context) Result {
	result, err := j.Processor.Process(ctx, j.Query, j.TopK)
	return &QueryResult{Index: j.Index, Query: j.Query, Result: result, Error: err}
}

// QueryResult is the outcome of a QueryJob
type QueryResult struct {
	Index  int
	Query  string
	Result *model.QueryResult
	Error  error
}

// GetError returns the error from the query result
func (r *QueryResult) GetError() error {
	return r.Error
}

// BatchProcessor processes multiple queries concurrently
type BatchProcessor struct {
	processor   Processor
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(processor Processor, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		processor:   processor,
		concurrency: concurrency,
	}
}

// ProcessQueries runs every query and returns one item per query in input
// order. A failed or cancelled query becomes an error item.
func (b *BatchProcessor) ProcessQueries(ctx context.Context, queries []string, topK int) []model.BatchItem {
	items := make([]model.BatchItem, len(queries))
	if len(queries) == 0 {
		return items
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for i, q := range queries {
		items[i] = model.BatchItem{Query: q, Success: false, Error: "query not processed"}
		if err := pool.Submit(&QueryJob{Index: i, Query: q, TopK: topK, Processor: b.processor}); err != nil {
			items[i].Error = fmt.Sprintf("query not processed: %v", err)
		}
	}

	for _, r := range pool.Wait() {
		qr := r.(*QueryResult)
		switch {
		case qr.Error != nil:
			items[qr.Index] = model.BatchItem{Query: qr.Query, Success: false, Error: qr.Error.Error()}
		case qr.Result == nil:
			items[qr.Index] = model.BatchItem{Query: qr.Query, Success: false, Error: "empty result"}
		default:
			items[qr.Index] = model.BatchItem{Query: qr.Query, Success: true, Result: qr.Result}
		}
	}

	return items
}

// ProcessFile reads queries from a file and processes them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string, topK int) ([]model.BatchItem, error) {
	queries, err := ReadQueriesFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}

	return b.ProcessQueries(ctx, queries, topK), nil
}

// ReadQueriesFromFile reads queries from a file, one per line. Blank lines
// and lines starting with # are skipped; duplicates are kept.
func ReadQueriesFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var queries []string

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		queries = append(queries, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return queries, nil
}
