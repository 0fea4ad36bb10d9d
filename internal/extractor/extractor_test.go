package extractor

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/memkeep/memkeep/internal/domain"
)

func newTestExtractor() *Extractor {
	return New(zap.NewNop())
}

func TestExtract_TeaPreference(t *testing.T) {
	e := newTestExtractor()

	m := e.Extract("I prefer tea in the morning", 1, "u1")
	require.NotNil(t, m)
	assert.Equal(t, domain.MemoryTypePreference, m.Type)
	assert.Equal(t, "I prefer tea in the morning.", m.Content)
	assert.Equal(t, 0.88, m.Confidence)
	assert.Equal(t, "u1", m.UserID)
	assert.Equal(t, 1, m.CreatedTurn)
	assert.Equal(t, 1, m.LastUsedTurn)
	assert.Equal(t, 1, m.UseCount)
	assert.True(t, m.Active)
	assert.NotEqual(t, uuid.Nil, m.ID)
}

func TestExtract_TypeAssignment(t *testing.T) {
	e := newTestExtractor()

	tests := []struct {
		message  string
		wantType domain.MemoryType
		wantConf float64
	}{
		{"My name is Alice", domain.MemoryTypeFact, 0.95},
		{"I work at Initech", domain.MemoryTypeFact, 0.95},
		{"I live in Berlin", domain.MemoryTypeFact, 0.95},
		{"I can't attend meetings on Fridays, never schedule them", domain.MemoryTypeConstraint, 0.92},
		{"Remind me to submit the report", domain.MemoryTypeCommitment, 0.85},
		{"My goal is to learn Spanish", domain.MemoryTypeGoal, 0.87},
		{"My wife is named Dana", domain.MemoryTypeRelationship, 0.90},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			m := e.Extract(tt.message, 3, "u1")
			require.NotNil(t, m)
			assert.Equal(t, tt.wantType, m.Type)
			assert.Equal(t, tt.wantConf, m.Confidence)
		})
	}
}

func TestExtract_KeywordGateBlocksPatternPass(t *testing.T) {
	e := newTestExtractor()

	// "I am trying to improve" would match a goal pattern, but none of the
	// goal keywords appear, so the type is never pattern-matched. The fact
	// rules admit it instead via "i am".
	m := e.Extract("I am trying to improve", 1, "u1")
	require.NotNil(t, m)
	assert.Equal(t, domain.MemoryTypeFact, m.Type)
}

func TestExtract_TemporalPreferenceFallback(t *testing.T) {
	e := newTestExtractor()

	m := e.Extract("Tea works best for me during the morning", 1, "u1")
	require.NotNil(t, m)
	assert.Equal(t, domain.MemoryTypePreference, m.Type)
	assert.Equal(t, 0.88, m.Confidence)
}

func TestExtract_NegationFallback(t *testing.T) {
	e := newTestExtractor()

	// No type keywords beyond the negation token, but the negation fallback
	// still classifies it as a constraint at reduced confidence.
	m := e.Extract("Meat is not for me", 1, "u1")
	require.NotNil(t, m)
	assert.Equal(t, domain.MemoryTypeConstraint, m.Type)
	assert.Equal(t, 0.85, m.Confidence)
}

func TestExtract_NothingToExtract(t *testing.T) {
	e := newTestExtractor()

	assert.Nil(t, e.Extract("The weather seemed fine", 1, "u1"))
	assert.Nil(t, e.Extract("ok", 1, "u1"))
	assert.Nil(t, e.Extract("   ", 1, "u1"))
}

func TestExtract_DropsOverlongCandidate(t *testing.T) {
	e := newTestExtractor()

	m := e.Extract("I prefer "+strings.Repeat("tea ", 200), 1, "u1")
	assert.Nil(t, m, "content over the length limit fails validation")
}

func TestExtractAll_SplitsSentences(t *testing.T) {
	e := newTestExtractor()

	memories := e.ExtractAll("My name is Alice. I prefer tea in the morning! Ok.", 2, "u1")
	require.Len(t, memories, 2)
	assert.Equal(t, domain.MemoryTypeFact, memories[0].Type)
	assert.Equal(t, "My name is Alice.", memories[0].Content)
	assert.Equal(t, domain.MemoryTypePreference, memories[1].Type)
	assert.Equal(t, "I prefer tea in the morning.", memories[1].Content)
	for _, m := range memories {
		assert.Equal(t, 2, m.CreatedTurn)
	}
}

func TestNormalize(t *testing.T) {
	e := newTestExtractor()

	assert.Equal(t, "I prefer tea.", e.normalize("  i prefer   tea  "))
	assert.Equal(t, "Really?", e.normalize("really?"))
	assert.Equal(t, "Great!", e.normalize("great!"))
}

func TestExtractName(t *testing.T) {
	e := newTestExtractor()

	tests := []struct {
		message string
		want    string
	}{
		{"My name is Alice", "Alice"},
		{"my name is john smith", "John Smith"},
		{"I am Bob", "Bob"},
		{"Call me Ishmael", "Ishmael"},
		{"I am going to the store", ""},
		{"I am from Portland", ""},
		{"Nothing to see here", ""},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.want, e.ExtractName(tt.message))
		})
	}
}
