package facet

import (
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeLabel reduces a display label to its comparison form: NFC,
// Unicode case folded, with every run of whitespace and punctuation
// collapsed to a single space and the ends trimmed.
//
// "Special  Schools" and "special-schools" normalize to "special schools".
func NormalizeLabel(label string) string {
	folded := cases.Fold().String(norm.NFC.String(label))

	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range folded {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			pendingSpace = b.Len() > 0
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SimilarLabels reports whether two labels plausibly name the same option.
// Labels are similar when their normalized forms are equal, when they hold
// the same words in any order, or when both are at least six runes long and
// at most two edits apart.
func SimilarLabels(a, b string) bool {
	na, nb := NormalizeLabel(a), NormalizeLabel(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	if sameWords(na, nb) {
		return true
	}
	ra, rb := []rune(na), []rune(nb)
	if len(ra) < 6 || len(rb) < 6 {
		return false
	}
	return editDistance(ra, rb, 2) <= 2
}

func sameWords(a, b string) bool {
	wa, wb := strings.Fields(a), strings.Fields(b)
	if len(wa) != len(wb) {
		return false
	}
	slices.Sort(wa)
	slices.Sort(wb)
	return slices.Equal(wa, wb)
}

// editDistance is the Levenshtein distance between a and b. It stops early
// and returns limit+1 once every cell of a row exceeds limit.
func editDistance(a, b []rune, limit int) int {
	if d := len(a) - len(b); d > limit || -d > limit {
		return limit + 1
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			rowMin = min(rowMin, curr[j])
		}
		if rowMin > limit {
			return limit + 1
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
