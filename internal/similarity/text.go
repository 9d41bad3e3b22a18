// Package similarity scores how alike two raw field values are. All
// functions are pure; the clustering engine is the only consumer.
package similarity

import "strings"

// normalize case-folds, trims, and collapses inner whitespace so that
// cosmetic differences never count as edits.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Text returns a similarity in [0,1] between two strings: 1 for strings that
// are identical after normalization (including both empty), 0 when exactly
// one side is empty, otherwise 1 - editDistance/maxLen.
func Text(a, b string) float64 {
	a, b = normalize(a), normalize(b)
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	return 1 - float64(levenshtein(ra, rb))/float64(maxLen)
}

// TextWithin is Text with an early exit: when the length gap alone proves the
// similarity cannot reach threshold, it returns 0 without computing the DP
// table.
func TextWithin(a, b string, threshold float64) float64 {
	na, nb := normalize(a), normalize(b)
	if na == nb {
		return 1
	}
	if na == "" || nb == "" {
		return 0
	}
	la, lb := len([]rune(na)), len([]rune(nb))
	maxLen, minLen := la, lb
	if lb > la {
		maxLen, minLen = lb, la
	}
	// Edit distance is at least the length difference.
	if 1-float64(maxLen-minLen)/float64(maxLen) < threshold {
		return 0
	}
	return Text(a, b)
}

// levenshtein computes the classic unit-cost edit distance with two rolling
// rows instead of the full matrix.
func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			curr[j] = m
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
