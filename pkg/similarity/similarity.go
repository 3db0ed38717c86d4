package similarity

import "github.com/kumarabd/ingestion-plane/miner/pkg/token"

// Scorer computes normalized longest-common-subsequence similarity between texts
type Scorer struct {
	tok *token.Tokenizer
}

// New creates a scorer that tokenizes with tok, or the default tokenizer when tok is nil
func New(tok *token.Tokenizer) *Scorer {
	if tok == nil {
		tok = token.Default()
	}
	return &Scorer{tok: tok}
}

// Score tokenizes both texts and returns 2*LCS / (|a|+|b|)
func (s *Scorer) Score(a, b string) float64 {
	return Tokens(s.tok.Fields(a), s.tok.Fields(b))
}

// Tokens returns 2*LCS / (|a|+|b|) for two token sequences. Two empty sequences score 1.
func Tokens(a, b []string) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 1
	}
	return 2 * float64(LCS(a, b)) / float64(total)
}

// LCS returns the length of the longest common subsequence of a and b
func LCS(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	// Two rolling rows of the classic dp table
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
