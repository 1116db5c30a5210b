package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 100.0, Similarity("", ""))
	assert.Equal(t, 100.0, Similarity("pune", "pune"))
	assert.Equal(t, 0.0, Similarity("abc", ""))
	assert.Equal(t, 0.0, Similarity("abc", "xyz"))
	assert.InDelta(t, 83.3, Similarity("mumbai", "mumbay"), 0.1)
	assert.Less(t, Similarity("patient", "patna"), FuzzyThreshold)
}

func TestSimilarity_Symmetric(t *testing.T) {
	pairs := [][2]string{{"hyderbad", "hyderabad"}, {"surgry", "surgery"}, {"kochi", "kolkata"}}
	for _, p := range pairs {
		assert.Equal(t, Similarity(p[0], p[1]), Similarity(p[1], p[0]))
	}
}

func TestBestMatch_TiesKeepFirst(t *testing.T) {
	best, score := bestMatch([]string{"abcd"}, []string{"abce", "abcf"})
	assert.Equal(t, "abce", best)
	assert.Equal(t, 75.0, score)
}
