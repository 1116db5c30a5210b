package decision

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/claimcheck/internal/model"
)

// Stage is a step of a single decision. Decide reports the terminal
// parse stage reached.
type Stage string

const (
	StageIdle             Stage = "idle"
	StagePromptBuilt      Stage = "prompt_built"
	StageAwaitingResponse Stage = "awaiting_response"
	StageParsedStrict     Stage = "parsed_strict"
	StageParsedFallback   Stage = "parsed_fallback"
	StageParsedDefault    Stage = "parsed_default"
	StageDone             Stage = "done"
)

// Risk factors attached by the recovery stages
const (
	RiskFallbackParsing    = "Fallback parsing used"
	RiskParsingFailed      = "Response parsing failed"
	RiskServiceUnavailable = "Reasoning service unavailable"
)

const parseFailureReasoning = "Unable to parse reasoning-service response. Manual review required."

var (
	fallbackApproved  = regexp.MustCompile(`(?i)"approved"\s*:\s*true`)
	fallbackReasoning = regexp.MustCompile(`"reasoning"\s*:\s*"([^"]*)"`)
)

// rawVerdict mirrors the requested JSON shape with optional fields so that
// missing keys can be told apart from zero values
type rawVerdict struct {
	Approved        *bool           `json:"approved"`
	Amount          json.RawMessage `json:"amount"`
	Reasoning       *string         `json:"reasoning"`
	RelevantClauses []string        `json:"relevant_clauses"`
	Confidence      *string         `json:"confidence"`
	RiskFactors     []string        `json:"risk_factors"`
}

// ParseResponse turns reasoning-service text into a verdict. It tries a
// strict JSON parse, then a regex fallback, and finally returns the
// conservative parse-failure verdict. It never fails.
func ParseResponse(text string) (model.Verdict, Stage) {
	if v, err := parseStrict(text); err == nil {
		return v, StageParsedStrict
	}
	if v, ok := parseFallback(text); ok {
		return v, StageParsedFallback
	}
	return parseFailureVerdict(), StageParsedDefault
}

func parseStrict(text string) (model.Verdict, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end < start {
		return model.Verdict{}, errors.New("no JSON object in response")
	}

	var raw rawVerdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return model.Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}

	if raw.Approved == nil {
		return model.Verdict{}, errors.New("approved is required")
	}
	if raw.Reasoning == nil || utf8.RuneCountInString(*raw.Reasoning) < model.MinReasoningLength {
		return model.Verdict{}, fmt.Errorf("reasoning must be at least %d characters", model.MinReasoningLength)
	}
	if raw.Confidence == nil {
		return model.Verdict{}, errors.New("confidence is required")
	}
	confidence, ok := model.ParseConfidence(*raw.Confidence)
	if !ok {
		return model.Verdict{}, fmt.Errorf("invalid confidence %q", *raw.Confidence)
	}
	amount, err := parseAmount(raw.Amount)
	if err != nil {
		return model.Verdict{}, err
	}

	return model.Verdict{
		Approved:        *raw.Approved,
		Amount:          amount,
		Reasoning:       *raw.Reasoning,
		RelevantClauses: raw.RelevantClauses,
		Confidence:      confidence,
		RiskFactors:     raw.RiskFactors,
	}.Normalize(), nil
}

// parseAmount accepts null, a non-negative integral number, or a string
// holding one
func parseAmount(raw json.RawMessage) (*int, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil, nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return nil, fmt.Errorf("amount must be a number: %s", s)
		}
		if f, err = strconv.ParseFloat(strings.TrimSpace(str), 64); err != nil {
			return nil, fmt.Errorf("amount must be a number: %s", s)
		}
	}

	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return nil, fmt.Errorf("amount must be a non-negative integer: %s", s)
	}
	return model.IntPtr(int(f)), nil
}

func parseFallback(text string) (model.Verdict, bool) {
	m := fallbackReasoning.FindStringSubmatch(text)
	if m == nil || utf8.RuneCountInString(m[1]) < model.MinReasoningLength {
		return model.Verdict{}, false
	}

	return model.Verdict{
		Approved:        fallbackApproved.MatchString(text),
		Amount:          nil,
		Reasoning:       m[1],
		RelevantClauses: []string{},
		Confidence:      model.ConfidenceLow,
		RiskFactors:     []string{RiskFallbackParsing},
	}, true
}

func parseFailureVerdict() model.Verdict {
	return model.Verdict{
		Approved:        false,
		Reasoning:       parseFailureReasoning,
		RelevantClauses: []string{},
		Confidence:      model.ConfidenceLow,
		RiskFactors:     []string{RiskParsingFailed},
	}
}

func serviceFailureVerdict(err error) model.Verdict {
	return model.Verdict{
		Approved:        false,
		Reasoning:       fmt.Sprintf("Error processing claim: %v", err),
		RelevantClauses: []string{},
		Confidence:      model.ConfidenceLow,
		RiskFactors:     []string{RiskServiceUnavailable},
	}
}
