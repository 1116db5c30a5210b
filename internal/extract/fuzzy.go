package extract

// FuzzyThreshold is the minimum Similarity score accepted as a fuzzy match
const FuzzyThreshold = 80.0

// Similarity scores two strings on a 0..100 scale using the normalized
// insertion/deletion distance: 100 * 2*LCS / (len(a)+len(b)).
// Two empty strings are identical.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 100
	}
	return 100 * float64(2*lcsLength(ra, rb)) / float64(total)
}

// lcsLength returns the longest common subsequence length using two rows
func lcsLength(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// bestMatch returns the candidate with the highest similarity to any of the
// tokens. Earlier tokens and earlier candidates win ties.
func bestMatch(tokens, candidates []string) (string, float64) {
	best, bestScore := "", 0.0
	for _, tok := range tokens {
		for _, cand := range candidates {
			if score := Similarity(tok, cand); score > bestScore {
				best, bestScore = cand, score
			}
		}
	}
	return best, bestScore
}
