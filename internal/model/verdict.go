package model

import "strings"

// MinReasoningLength is the shortest reasoning text a verdict may carry
const MinReasoningLength = 10

// Confidence classifies how sure the reasoning service is about a verdict
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParseConfidence case-folds s and reports whether it names a known level
func ParseConfidence(s string) (Confidence, bool) {
	switch c := Confidence(strings.ToLower(strings.TrimSpace(s))); c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return c, true
	default:
		return "", false
	}
}

// Verdict is the approve/reject decision for a claim
type Verdict struct {
	Approved        bool       `json:"approved"`
	Amount          *int       `json:"amount"` // Non-negative or nil
	Reasoning       string     `json:"reasoning"`
	RelevantClauses []string   `json:"relevant_clauses"`
	Confidence      Confidence `json:"confidence"`
	RiskFactors     []string   `json:"risk_factors"`
}

// Normalize replaces nil lists with empty ones so the verdict always
// serializes with arrays
func (v Verdict) Normalize() Verdict {
	if v.RelevantClauses == nil {
		v.RelevantClauses = []string{}
	}
	if v.RiskFactors == nil {
		v.RiskFactors = []string{}
	}
	if v.Confidence == "" {
		v.Confidence = ConfidenceLow
	}
	return v
}
