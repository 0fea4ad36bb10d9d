package service

import (
	"regexp"
	"sort"
	"strings"

	"github.com/memkeep/memkeep/internal/contract"
	"github.com/memkeep/memkeep/internal/domain"
)

var (
	tokenPattern  = regexp.MustCompile(`\b\w+\b`)
	entityPattern = regexp.MustCompile(`\b[A-Z][a-z]+\b`)
	namePattern   = regexp.MustCompile(`(?i)my name is\s+([a-zA-Z]+(?:\s+[a-zA-Z]+)?)`)
	iAmNamePat    = regexp.MustCompile(`(?i:i(?:'m| am))\s+([A-Z][a-z]+)`)
)

// Per-type weights applied to the composite relevance score. Facts and
// constraints rank slightly above the rest.
var relevanceWeights = map[domain.MemoryType]float64{
	domain.MemoryTypeFact:         1.2,
	domain.MemoryTypeConstraint:   1.15,
	domain.MemoryTypePreference:   1.1,
	domain.MemoryTypeGoal:         1.0,
	domain.MemoryTypeRelationship: 1.0,
	domain.MemoryTypeCommitment:   0.9,
}

var retrievalStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
	"are": true, "were": true, "been": true, "be": true, "have": true,
	"has": true, "had": true, "do": true, "does": true, "did": true,
	"will": true, "would": true, "could": true, "should": true, "may": true,
	"might": true, "can": true, "this": true, "that": true, "these": true,
	"those": true, "i": true, "you": true, "he": true, "she": true, "it": true,
	"we": true, "they": true, "what": true, "which": true, "who": true,
	"when": true, "where": true, "why": true, "how": true, "all": true,
	"each": true, "every": true, "both": true, "few": true, "more": true,
	"most": true, "other": true, "some": true, "such": true, "no": true,
	"nor": true, "not": true, "only": true, "own": true, "same": true,
	"so": true, "than": true, "too": true, "very": true, "just": true,
	"my": true,
}

// Words that match the "I am X" name pattern but are not names.
var nameFalsePositives = map[string]bool{
	"Going": true, "Working": true, "Living": true, "From": true,
}

// RetrievalEngine ranks a user's active memories against a query. It is
// read-only: the caller fetches the active set from the store and hands it
// in, and any reinforcement of the returned memories happens elsewhere.
type RetrievalEngine struct{}

func NewRetrievalEngine() *RetrievalEngine {
	return &RetrievalEngine{}
}

// RetrieveRelevant scores every memory against the query and returns up to
// topK results whose score strictly exceeds minScore, sorted by relevance
// then confidence, both descending.
func (e *RetrievalEngine) RetrieveRelevant(query string, memories []domain.Memory, topK int, minScore float64) []domain.RankedMemory {
	if len(memories) == 0 {
		return nil
	}

	queryWords := filterStopWords(tokenize(query))
	if len(queryWords) == 0 {
		return nil
	}

	ranked := make([]domain.RankedMemory, 0, len(memories))
	for _, m := range memories {
		contentWords := filterStopWords(tokenize(m.Content))
		score := relevanceScore(queryWords, contentWords, &m, query, m.Content)
		if score > minScore {
			ranked = append(ranked, domain.RankedMemory{Memory: m, Relevance: score})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Relevance != ranked[j].Relevance {
			return ranked[i].Relevance > ranked[j].Relevance
		}
		return ranked[i].Confidence > ranked[j].Confidence
	})

	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

func relevanceScore(queryWords, contentWords []string, m *domain.Memory, rawQuery, rawContent string) float64 {
	if len(queryWords) == 0 || len(contentWords) == 0 {
		return 0
	}

	querySet := toSet(queryWords)
	contentSet := toSet(contentWords)

	shared := make([]string, 0, len(querySet))
	union := len(contentSet)
	for w := range querySet {
		if contentSet[w] {
			shared = append(shared, w)
		} else {
			union++
		}
	}

	jaccard := 0.0
	if union > 0 {
		jaccard = float64(len(shared)) / float64(union)
	}

	queryCounts := countTokens(queryWords)
	contentCounts := countTokens(contentWords)
	tfScore := 0.0
	for _, w := range shared {
		queryTF := float64(queryCounts[w]) / float64(len(queryWords))
		contentTF := float64(contentCounts[w]) / float64(len(contentWords))
		tfScore += queryTF * contentTF
	}

	// Adjacent query bigrams found verbatim in the content signal a phrase
	// match; only checked once the query is long enough to have real phrases.
	phraseBonus := 0.0
	if len(queryWords) >= 3 {
		contentLower := strings.ToLower(rawContent)
		for i := 0; i < len(queryWords)-1; i++ {
			if strings.Contains(contentLower, queryWords[i]+" "+queryWords[i+1]) {
				phraseBonus += 0.2
			}
		}
	}

	// Capitalized words shared between raw query and content are treated as
	// named entities (people, places).
	queryEntities := toSet(entityPattern.FindAllString(rawQuery, -1))
	contentEntities := toSet(entityPattern.FindAllString(rawContent, -1))
	entityBonus := 0.0
	for w := range queryEntities {
		if contentEntities[w] {
			entityBonus += 0.3
		}
	}

	weight, ok := relevanceWeights[m.Type]
	if !ok {
		weight = 1.0
	}

	usageBonus := float64(m.UseCount) * 0.02
	if usageBonus > 0.2 {
		usageBonus = 0.2
	}

	score := (jaccard*0.4+tfScore*0.4+phraseBonus+entityBonus)*weight*m.Confidence + usageBonus
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// ByType filters the active set to one type, highest confidence first.
func (e *RetrievalEngine) ByType(memories []domain.Memory, t domain.MemoryType) []domain.Memory {
	out := make([]domain.Memory, 0)
	for _, m := range memories {
		if m.Type == t {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

// Recent returns the n most recently used memories.
func (e *RetrievalEngine) Recent(memories []domain.Memory, n int) []domain.Memory {
	out := make([]domain.Memory, len(memories))
	copy(out, memories)
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastUsedTurn > out[j].LastUsedTurn })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Search returns memories whose content contains the term,
// case-insensitively, highest confidence first.
func (e *RetrievalEngine) Search(memories []domain.Memory, term string) []domain.Memory {
	needle := strings.ToLower(term)
	out := make([]domain.Memory, 0)
	for _, m := range memories {
		if strings.Contains(strings.ToLower(m.Content), needle) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

// UserName scans fact memories for a name introduction and returns the
// name, or "User" when none is found.
func (e *RetrievalEngine) UserName(memories []domain.Memory) string {
	for _, m := range memories {
		if m.Type != domain.MemoryTypeFact {
			continue
		}
		if strings.Contains(strings.ToLower(m.Content), "my name is") {
			if match := namePattern.FindStringSubmatch(m.Content); match != nil {
				return strings.TrimSpace(match[1])
			}
		}
		if match := iAmNamePat.FindStringSubmatch(m.Content); match != nil {
			if !nameFalsePositives[match[1]] {
				return match[1]
			}
		}
	}
	return "User"
}

// Summarize aggregates the active set for the response path and the
// memories listing endpoint.
func (e *RetrievalEngine) Summarize(memories []domain.Memory) *domain.MemorySummary {
	summary := &domain.MemorySummary{
		Total:  len(memories),
		ByType: make(map[domain.MemoryType]int),
	}
	if len(memories) == 0 {
		summary.Quality = "none"
		return summary
	}

	total := 0.0
	for _, m := range memories {
		summary.ByType[m.Type]++
		total += m.Confidence
		if m.Confidence > contract.HighConfidence {
			summary.HighConfidenceCount++
		}
	}
	summary.AvgConfidence = total / float64(len(memories))

	highRatio := float64(summary.HighConfidenceCount) / float64(len(memories))
	switch {
	case summary.AvgConfidence > 0.9 && highRatio > 0.5:
		summary.Quality = "excellent"
	case summary.AvgConfidence > 0.85:
		summary.Quality = "good"
	case summary.AvgConfidence > 0.75:
		summary.Quality = "fair"
	default:
		summary.Quality = "poor"
	}
	return summary
}

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

func filterStopWords(words []string) []string {
	out := words[:0:0]
	for _, w := range words {
		if len(w) > 2 && !retrievalStopWords[w] {
			out = append(out, w)
		}
	}
	return out
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

func countTokens(words []string) map[string]int {
	counts := make(map[string]int, len(words))
	for _, w := range words {
		counts[w]++
	}
	return counts
}

func contentContainsAny(content string, keywords []string) bool {
	lower := strings.ToLower(content)
	for _, k := range keywords {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
