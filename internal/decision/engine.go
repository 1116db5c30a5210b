package decision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/claimcheck/internal/llm"
	"github.com/ppiankov/claimcheck/internal/model"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a single reasoning-service call
const DefaultTimeout = 60 * time.Second

const connectionTestPrompt = "Say 'Hello, I am working!' in exactly those words."

var errNoProvider = errors.New("no reasoning provider configured")

// Limiter throttles reasoning calls per key. worker.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// Outcome is a verdict together with how it was obtained
type Outcome struct {
	Verdict model.Verdict
	Stage   Stage
	Path    []Stage // Every stage passed through, Idle to Done
	Raw     string // Reasoning-service text, empty on transport failure
	Err     error  // Transport or provider error that forced the default verdict
}

// Engine turns claim attributes and policy clauses into a verdict using an
// LLM provider
type Engine struct {
	provider    llm.Provider
	logger      *zap.Logger
	timeout     time.Duration
	limiter     Limiter
	maxTokens   int
	temperature float64
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTimeout overrides DefaultTimeout
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLimiter throttles provider calls, keyed by provider name
func WithLimiter(l Limiter) Option {
	return func(e *Engine) { e.limiter = l }
}

// WithMaxTokens sets the response token limit
func WithMaxTokens(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature
func WithTemperature(t float64) Option {
	return func(e *Engine) {
		if t >= 0 {
			e.temperature = t
		}
	}
}

// NewEngine creates a decision engine around provider
func NewEngine(provider llm.Provider, opts ...Option) *Engine {
	e := &Engine{
		provider:    provider,
		logger:      zap.NewNop(),
		timeout:     DefaultTimeout,
		maxTokens:   llm.DefaultMaxTokens,
		temperature: llm.DefaultTemperature,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProviderName returns the provider name, or "none"
func (e *Engine) ProviderName() string {
	if e.provider == nil {
		return "none"
	}
	return e.provider.Name()
}

// Model returns the provider's default model
func (e *Engine) Model() string {
	if e.provider == nil {
		return ""
	}
	return e.provider.Model()
}

// MakeDecision returns a fully populated verdict. It never fails: transport
// errors and unusable output both yield a conservative rejection.
func (e *Engine) MakeDecision(ctx context.Context, attrs model.ClaimAttributes, clauses []model.RetrievedClause) model.Verdict {
	return e.Decide(ctx, attrs, clauses).Verdict
}

// Decide is MakeDecision with the terminal stage and raw response exposed
func (e *Engine) Decide(ctx context.Context, attrs model.ClaimAttributes, clauses []model.RetrievedClause) (out Outcome) {
	log := e.logger.With(zap.String("provider", e.ProviderName()))

	path := []Stage{StageIdle}
	advance := func(s Stage) {
		path = append(path, s)
		log.Debug("decision stage", zap.String("stage", string(s)))
	}
	finish := func(o Outcome) Outcome {
		advance(o.Stage)
		advance(StageDone)
		o.Path = path
		return o
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("provider panic: %v", r)
			log.Error("decision failed", zap.Error(err))
			out = finish(Outcome{Verdict: serviceFailureVerdict(err), Stage: StageParsedDefault, Err: err})
		}
	}()

	prompt := BuildPrompt(attrs, clauses)
	advance(StagePromptBuilt)
	log.Debug("prompt built", zap.Int("clauses", len(clauses)), zap.Int("prompt_chars", len(prompt)))

	advance(StageAwaitingResponse)
	text, err := e.call(ctx, llm.CompletionRequest{
		System:      SystemInstruction,
		Prompt:      prompt,
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
	})
	if err != nil {
		log.Warn("reasoning service call failed", zap.Error(err))
		return finish(Outcome{Verdict: serviceFailureVerdict(err), Stage: StageParsedDefault, Err: err})
	}

	verdict, stage := ParseResponse(text)
	switch stage {
	case StageParsedStrict:
		log.Info("decision made",
			zap.Bool("approved", verdict.Approved),
			zap.String("confidence", string(verdict.Confidence)))
	default:
		log.Warn("reasoning response needed recovery",
			zap.String("stage", string(stage)),
			zap.String("response", truncate(text, 500)))
	}

	return finish(Outcome{Verdict: verdict, Stage: stage, Raw: text})
}

// Available asks the provider whether it is configured and reachable,
// without sending a prompt
func (e *Engine) Available(ctx context.Context) bool {
	if e.provider == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.provider.IsAvailable(ctx)
}

// TestConnection sends a trivial prompt and reports whether a reply came back
func (e *Engine) TestConnection(ctx context.Context) bool {
	text, err := e.call(ctx, llm.CompletionRequest{
		Prompt:      connectionTestPrompt,
		Temperature: e.temperature,
		MaxTokens:   50,
	})
	if err != nil {
		e.logger.Warn("connection test failed", zap.String("provider", e.ProviderName()), zap.Error(err))
		return false
	}
	e.logger.Info("connection test succeeded",
		zap.String("provider", e.ProviderName()),
		zap.String("response", truncate(text, 100)))
	return true
}

func (e *Engine) call(ctx context.Context, req llm.CompletionRequest) (string, error) {
	if e.provider == nil {
		return "", errNoProvider
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, e.provider.Name()); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}
	}

	resp, err := e.provider.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", llm.ErrEmptyResponse
	}
	return resp.Text, nil
}

// truncate keeps the first n runes of s
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
