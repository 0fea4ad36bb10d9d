package contract

import "strings"

// negationTokens mark a statement as prohibitive or negative.
var negationTokens = []string{
	"don't", "do not", "never", "won't", "will not",
	"can't", "cannot", "shouldn't", "should not", "not",
}

// NegationConflicts detects contradictions between same-type memories by
// polarity: one statement negated, the other not, over substantially the
// same words. Insert uses it to deactivate memories the new statement
// overturns ("I love mornings" vs "I don't love mornings").
type NegationConflicts struct {
	// Overlap is the minimum Jaccard similarity of the non-negation word
	// sets for the two statements to be about the same thing.
	Overlap float64
}

// DefaultConflictOverlap is deliberately looser than the merge threshold:
// a contradiction rewords more than a duplicate does.
const DefaultConflictOverlap = 0.5

func NewNegationConflicts() *NegationConflicts {
	return &NegationConflicts{Overlap: DefaultConflictOverlap}
}

// Conflicts reports whether candidate contradicts existing. The two must
// differ in polarity and share most of their remaining words.
func (d *NegationConflicts) Conflicts(existing, candidate string) bool {
	existingNeg := isNegated(existing)
	candidateNeg := isNegated(candidate)
	if existingNeg == candidateNeg {
		return false
	}

	a := contentWords(existing)
	b := contentWords(candidate)
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return jaccard(a, b) >= d.Overlap
}

func isNegated(s string) bool {
	lower := " " + strings.ToLower(s) + " "
	for _, tok := range negationTokens {
		if strings.Contains(lower, " "+tok+" ") {
			return true
		}
	}
	return false
}

// contentWords is the lower-cased word set with negation tokens removed,
// so polarity does not count toward overlap.
func contentWords(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?;:")
		if w == "" || isNegationWord(w) {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}

func isNegationWord(w string) bool {
	switch w {
	case "don't", "do", "not", "never", "won't", "will",
		"can't", "cannot", "shouldn't", "should":
		return true
	}
	return false
}
