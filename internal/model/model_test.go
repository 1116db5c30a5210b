package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeGender(t *testing.T) {
	tests := map[string]string{
		"M":      GenderMale,
		" male ": GenderMale,
		"Man":    GenderMale,
		"f":      GenderFemale,
		"WOMAN":  GenderFemale,
		"Mr":     GenderMale,
		"lady":   GenderFemale,
		"Other":  "other",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeGender(in), in)
	}
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "New Delhi", TitleCase("new DELHI"))
	assert.Equal(t, "Pune", TitleCase("  pune "))
	assert.Equal(t, "", TitleCase(""))
	assert.Equal(t, TitleCase("navi mumbai"), TitleCase(TitleCase("navi mumbai")))
}

func TestTitleCase_MultiByteLetters(t *testing.T) {
	assert.Equal(t, "Évora", TitleCase("éVORA"))
	assert.Equal(t, "Ørsted Øst", TitleCase("ørsted øST"))
	assert.Equal(t, "₹500 Cap", TitleCase("₹500 cap"))
}

func TestClampSimilarity(t *testing.T) {
	assert.Equal(t, 0.0, ClampSimilarity(-0.2))
	assert.Equal(t, 0.42, ClampSimilarity(0.42))
	assert.Equal(t, 1.0, ClampSimilarity(1.7))
}

func TestParseConfidence(t *testing.T) {
	c, ok := ParseConfidence(" HIGH ")
	assert.True(t, ok)
	assert.Equal(t, ConfidenceHigh, c)

	_, ok = ParseConfidence("certain")
	assert.False(t, ok)
}

func TestVerdictNormalize(t *testing.T) {
	v := Verdict{Reasoning: "Waiting period not met."}.Normalize()
	assert.NotNil(t, v.RelevantClauses)
	assert.NotNil(t, v.RiskFactors)
	assert.Equal(t, ConfidenceLow, v.Confidence)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OLLAMA_BASE_URL", "http://gpu-box:11434")

	cfg := DefaultConfig()
	cfg.ApplyEnv()
	assert.Equal(t, "gsk-test", cfg.LLM.APIKey)
	assert.Equal(t, "http://gpu-box:11434", cfg.Retrieval.EmbeddingBaseURL)
	assert.Empty(t, cfg.Retrieval.EmbeddingAPIKey)

	cfg = DefaultConfig()
	cfg.LLM.Provider = "ollama"
	cfg.LLM.APIKey = "explicit"
	cfg.Retrieval.EmbeddingProvider = "openai"
	cfg.ApplyEnv()
	assert.Equal(t, "explicit", cfg.LLM.APIKey)
	assert.Equal(t, "http://gpu-box:11434", cfg.LLM.BaseURL)
	assert.Equal(t, "sk-test", cfg.Retrieval.EmbeddingAPIKey)
}
