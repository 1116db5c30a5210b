package worker

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_New(t *testing.T) {
	l := NewLimiter(10, 0)
	if l.defaultBurst != 5 {
		t.Errorf("expected default burst 5, got %d", l.defaultBurst)
	}
	if l.defaultRate != 10 {
		t.Errorf("expected rate 10, got %v", l.defaultRate)
	}
}

func TestLimiter_Wait(t *testing.T) {
	l := NewLimiter(100, 1)
	if err := l.Wait(context.Background(), "groq"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLimiter_RateLimit(t *testing.T) {
	l := NewLimiter(1, 1)

	if !l.Allow("groq") {
		t.Fatal("first request should be allowed")
	}
	if l.Allow("groq") {
		t.Error("second immediate request should be throttled")
	}

	// Keys are limited independently
	if !l.Allow("openai") {
		t.Error("a different key should have its own bucket")
	}
}

func TestLimiter_WaitCancelled(t *testing.T) {
	l := NewLimiter(0.1, 1)
	_ = l.Allow("ollama")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx, "ollama"); err == nil {
		t.Error("expected cancellation error while waiting for a token")
	}
}

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(0, 1)
	for i := 0; i < 100; i++ {
		if !l.Allow("groq") {
			t.Fatalf("request %d throttled with limiting disabled", i)
		}
	}
}

func TestLimiter_SetRate(t *testing.T) {
	l := NewLimiter(1, 1)
	l.SetRate("gemini", 1000, 10)

	for i := 0; i < 10; i++ {
		if !l.Allow("gemini") {
			t.Fatalf("request %d should be allowed by custom burst", i)
		}
	}
}
