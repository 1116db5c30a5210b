package model

import "time"

// Completeness reports which decision-relevant attributes are present
type Completeness struct {
	HasAge            bool     `json:"has_age"`
	HasProcedure      bool     `json:"has_procedure"`
	HasLocation       bool     `json:"has_location"`
	HasPolicyDuration bool     `json:"has_policy_duration"`
	IsComplete        bool     `json:"is_complete"`
	MissingFields     []string `json:"missing_fields"`
}

// QueryResult is the full outcome of processing one claim query
type QueryResult struct {
	Query                 string            `json:"query"`
	Attributes            ClaimAttributes   `json:"attributes"`
	Validation            Completeness      `json:"validation"`
	RetrievedClauses      []RetrievedClause `json:"retrieved_clauses"`
	Verdict               Verdict           `json:"verdict"`
	ProcessingTimeSeconds float64           `json:"processing_time_seconds"`
	Timestamp             time.Time         `json:"timestamp"`
}

// BatchItem is one entry of a batch run. Failed items carry Error and no Result.
type BatchItem struct {
	Query   string       `json:"query"`
	Success bool         `json:"success"`
	Result  *QueryResult `json:"result"`
	Error   string       `json:"error"`
}
