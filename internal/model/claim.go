package model

import (
	"strings"
	"unicode"
)

// ClaimAttributes holds the structured facts extracted from a free-text claim query
type ClaimAttributes struct {
	Age                  *int    `json:"age"`                    // 0..120 or nil
	Gender               *string `json:"gender"`                 // "male", "female" or nil
	Procedure            *string `json:"procedure"`              // Canonical tag or free-text label
	Location             *string `json:"location"`               // Title-cased city name
	PolicyDurationMonths *int    `json:"policy_duration_months"` // 0..120 or nil
	IsEmergency          bool    `json:"is_emergency"`
	RawQuery             string  `json:"raw_query"`
}

const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// NormalizeGender maps common spellings onto "male" or "female".
// Unknown values are returned lowercased and trimmed.
func NormalizeGender(g string) string {
	switch v := strings.ToLower(strings.TrimSpace(g)); v {
	case "m", "male", "man", "boy", "gentleman", "mr":
		return GenderMale
	case "f", "female", "woman", "girl", "lady", "mrs", "ms":
		return GenderFemale
	default:
		return v
	}
}

// TitleCase upper-cases the first letter of every space-separated word
// and lower-cases the rest. Applying it twice yields the same string.
func TitleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int { return &v }

// StringPtr returns a pointer to v
func StringPtr(v string) *string { return &v }
