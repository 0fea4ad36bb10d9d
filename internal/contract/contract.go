// Package contract is the single source of truth for what is allowed to
// become a memory and for the scoring constants shared by the decay and
// retrieval engines.
package contract

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/memkeep/memkeep/internal/domain"
)

const (
	// MinConfidence is the floor below which a memory is deactivated.
	MinConfidence = 0.7
	// HighConfidence marks a memory as firmly established.
	HighConfidence = 0.9

	// DecayRate is the per-turn linear decay base.
	DecayRate = 0.008
	// MinAgeForDecay protects memories newer than this many turns.
	MinAgeForDecay = 2

	// MergeSimilarity is the Jaccard threshold above which two same-type
	// memories are considered duplicates.
	MergeSimilarity = 0.7

	MinContentLength = 3
	MaxContentLength = 500

	// MaxActiveMemories is the default pruning cap per user.
	MaxActiveMemories = 100
)

// decayMultipliers scales the base decay rate per type. Lower means the
// type persists longer.
var decayMultipliers = map[domain.MemoryType]float64{
	domain.MemoryTypeConstraint:   0.3,
	domain.MemoryTypeGoal:         0.4,
	domain.MemoryTypeFact:         0.5,
	domain.MemoryTypeRelationship: 0.6,
	domain.MemoryTypePreference:   1.0,
	domain.MemoryTypeCommitment:   1.5,
}

// priorityWeights favors types worth keeping when pruning. Commitments are
// time-sensitive and rank lowest.
var priorityWeights = map[domain.MemoryType]float64{
	domain.MemoryTypeFact:         1.2,
	domain.MemoryTypePreference:   1.0,
	domain.MemoryTypeConstraint:   1.3,
	domain.MemoryTypeCommitment:   0.8,
	domain.MemoryTypeGoal:         1.1,
	domain.MemoryTypeRelationship: 1.0,
}

// ValidationError reports the first contract rule a candidate violated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid memory: %s: %s", e.Field, e.Reason)
}

// Validate checks a candidate against every contract rule and fails closed:
// any violation rejects the whole record. Callers must not persist a memory
// that fails validation.
func Validate(m *domain.Memory) error {
	if m == nil {
		return &ValidationError{Field: "memory", Reason: "nil record"}
	}
	if m.ID == uuid.Nil {
		return &ValidationError{Field: "id", Reason: "missing id"}
	}
	if m.UserID == "" {
		return &ValidationError{Field: "user_id", Reason: "missing user id"}
	}
	if !domain.ValidMemoryType(string(m.Type)) {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown type %q", m.Type)}
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return &ValidationError{Field: "confidence", Reason: fmt.Sprintf("confidence %.3f outside [0,1]", m.Confidence)}
	}
	if m.Confidence < MinConfidence {
		return &ValidationError{Field: "confidence", Reason: fmt.Sprintf("confidence %.3f below minimum %.2f", m.Confidence, MinConfidence)}
	}
	content := strings.TrimSpace(m.Content)
	if len(content) < MinContentLength {
		return &ValidationError{Field: "content", Reason: fmt.Sprintf("shorter than %d characters", MinContentLength)}
	}
	if len(content) > MaxContentLength {
		return &ValidationError{Field: "content", Reason: fmt.Sprintf("longer than %d characters", MaxContentLength)}
	}
	if m.CreatedTurn < 0 {
		return &ValidationError{Field: "created_turn", Reason: "negative turn counter"}
	}
	return nil
}

// DecayAmount computes how much confidence a memory of the given type loses
// at the given age. Memories younger than MinAgeForDecay never decay. Old
// memories decay progressively faster: 1.5x past 50 turns and a further
// 2x past 100 turns. The result is capped so one step can never push the
// memory more than a hair below the deactivation threshold.
func DecayAmount(t domain.MemoryType, age int, baseConfidence float64) float64 {
	if age < MinAgeForDecay {
		return 0
	}

	multiplier, ok := decayMultipliers[t]
	if !ok {
		multiplier = 1.0
	}
	decay := DecayRate * multiplier * float64(age)

	if age > 50 {
		decay *= 1.5
	}
	if age > 100 {
		decay *= 2.0
	}

	cap := baseConfidence - MinConfidence + 0.01
	if decay > cap {
		return cap
	}
	return decay
}

// ShouldMerge reports whether two memories are near-duplicates: same type
// and word-set Jaccard similarity above MergeSimilarity. Symmetric by
// construction.
func ShouldMerge(a, b *domain.Memory) bool {
	if a.Type != b.Type {
		return false
	}
	return SimilarContent(a.Content, b.Content)
}

// SimilarContent applies the merge similarity test to raw content strings.
func SimilarContent(a, b string) bool {
	aWords := wordSet(a)
	bWords := wordSet(b)
	if len(aWords) == 0 || len(bWords) == 0 {
		return false
	}
	return jaccard(aWords, bWords) > MergeSimilarity
}

// Priority scores how much a memory is worth keeping. Higher is safer from
// pruning; confidence dominates, weighted by type and discounted by age.
func Priority(t domain.MemoryType, confidence float64, age int) float64 {
	weight, ok := priorityWeights[t]
	if !ok {
		weight = 1.0
	}
	recency := 1 - float64(age)*0.01
	if recency < 0 {
		recency = 0
	}
	return confidence * weight * (0.3 + 0.7*recency)
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	var intersection int
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
