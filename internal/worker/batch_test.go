package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/claimcheck/internal/model"
)

type mockProcessor struct {
	failOn map[string]bool
	calls  atomic.Int32
}

func (m *mockProcessor) Process(ctx context.Context, query string, topK int) (*model.QueryResult, error) {
	m.calls.Add(1)
	// Stagger completion so results arrive out of input order
	time.Sleep(time.Duration(len(query)%3) * time.Millisecond)
	if m.failOn[query] {
		return nil, errors.New("retrieve clauses: index offline")
	}
	return &model.QueryResult{Query: query}, nil
}

func TestBatchProcessor_ProcessQueries_PreservesOrder(t *testing.T) {
	proc := &mockProcessor{failOn: map[string]bool{"bad query": true}}
	b := NewBatchProcessor(proc, 4)

	queries := []string{"46M knee surgery", "bad query", "30F maternity Delhi", "cataract", "hip"}
	items := b.ProcessQueries(context.Background(), queries, 3)

	if len(items) != len(queries) {
		t.Fatalf("expected %d items, got %d", len(queries), len(items))
	}
	for i, item := range items {
		if item.Query != queries[i] {
			t.Errorf("item %d: expected query %q, got %q", i, queries[i], item.Query)
		}
	}

	if items[1].Success || items[1].Result != nil || items[1].Error == "" {
		t.Errorf("expected error item at index 1, got %+v", items[1])
	}
	for _, i := range []int{0, 2, 3, 4} {
		if !items[i].Success || items[i].Result == nil {
			t.Errorf("expected success at index %d, got %+v", i, items[i])
		}
	}
}

func TestBatchProcessor_ProcessQueries_Empty(t *testing.T) {
	b := NewBatchProcessor(&mockProcessor{}, 2)
	items := b.ProcessQueries(context.Background(), nil, 3)
	if items == nil || len(items) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", items)
	}
}

func TestBatchProcessor_ProcessQueries_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewBatchProcessor(&mockProcessor{}, 2)
	items := b.ProcessQueries(ctx, []string{"a", "b", "c"}, 3)

	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for _, item := range items {
		if item.Success && item.Result == nil {
			t.Errorf("success item without result: %+v", item)
		}
		if !item.Success && item.Error == "" {
			t.Errorf("failed item without error: %+v", item)
		}
	}
}

func TestReadQueriesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.txt")
	content := "# sample claims\n46M knee surgery Pune 3 month policy\n\n  30F maternity Delhi  \n46M knee surgery Pune 3 month policy\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	queries, err := ReadQueriesFromFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"46M knee surgery Pune 3 month policy",
		"30F maternity Delhi",
		"46M knee surgery Pune 3 month policy",
	}
	if len(queries) != len(want) {
		t.Fatalf("expected %d queries, got %d: %v", len(want), len(queries), queries)
	}
	for i := range want {
		if queries[i] != want[i] {
			t.Errorf("query %d: expected %q, got %q", i, want[i], queries[i])
		}
	}
}

func TestReadQueriesFromFile_NonExistent(t *testing.T) {
	if _, err := ReadQueriesFromFile("/nonexistent/queries.txt"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestBatchProcessor_ProcessFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.txt")
	if err := os.WriteFile(path, []byte("one\ntwo\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	proc := &mockProcessor{}
	items, err := NewBatchProcessor(proc, 2).ProcessFile(context.Background(), path, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 || items[0].Query != "one" || items[1].Query != "two" {
		t.Errorf("unexpected items: %+v", items)
	}
	if proc.calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", proc.calls.Load())
	}
}

func TestQueryResult_GetError(t *testing.T) {
	r := &QueryResult{Error: errors.New("boom")}
	if r.GetError() == nil {
		t.Error("expected error")
	}
}
