package responder

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/memkeep/memkeep/internal/domain"
)

func newTestResponder() *Responder {
	return New(rand.New(rand.NewSource(1)))
}

func ranked(t domain.MemoryType, content string, relevance float64) domain.RankedMemory {
	return domain.RankedMemory{
		Memory: domain.Memory{
			ID:         uuid.New(),
			UserID:     "u1",
			Type:       t,
			Content:    content,
			Confidence: 0.9,
			Active:     true,
		},
		Relevance: relevance,
	}
}

func TestGenerate_GreetingUsesName(t *testing.T) {
	r := newTestResponder()
	reply := r.Generate(Input{Message: "Hello!", UserName: "Alice"})
	assert.Contains(t, reply, "Alice")
}

func TestGenerate_GreetingWithoutName(t *testing.T) {
	r := newTestResponder()
	reply := r.Generate(Input{Message: "hey", UserName: "User"})
	assert.NotEmpty(t, reply)
	assert.NotContains(t, reply, "User")
}

func TestGenerate_NameIntroduction(t *testing.T) {
	r := newTestResponder()
	reply := r.Generate(Input{Message: "My name is Alice", UserName: "Alice"})
	assert.Contains(t, reply, "Alice")
}

func TestGenerate_NameIntroductionBeforeExtraction(t *testing.T) {
	r := newTestResponder()
	reply := r.Generate(Input{Message: "My name is Alice", UserName: ""})
	assert.Equal(t, "Thanks for the introduction! I'll remember that.", reply)
}

func TestGenerate_AcknowledgesNewMemory(t *testing.T) {
	r := newTestResponder()

	pref := ranked(domain.MemoryTypePreference, "I prefer tea in the morning.", 0.5).Memory
	reply := r.Generate(Input{Message: "I prefer tea in the morning.", UserName: "User", NewMemory: &pref})
	assert.Contains(t, reply, "tea")

	constraint := ranked(domain.MemoryTypeConstraint, "I can't eat meat.", 0.5).Memory
	reply = r.Generate(Input{Message: "I can't eat meat.", UserName: "User", NewMemory: &constraint})
	assert.Contains(t, templates["constraint_noted"], reply)

	fact := ranked(domain.MemoryTypeFact, "I work at Acme.", 0.5).Memory
	reply = r.Generate(Input{Message: "I work at Acme.", UserName: "User", NewMemory: &fact})
	assert.Equal(t, "Thanks for sharing! I've noted that information.", reply)
}

func TestGenerate_AnswersNameQuestion(t *testing.T) {
	r := newTestResponder()

	reply := r.Generate(Input{Message: "What is my name?", UserName: "Alice"})
	assert.Equal(t, "Your name is Alice!", reply)

	reply = r.Generate(Input{Message: "What is my name?", UserName: "User"})
	assert.Equal(t, "I don't know your name yet. What should I call you?", reply)
}

func TestGenerate_AnswersPreferenceQuestion(t *testing.T) {
	r := newTestResponder()

	in := Input{
		Message:  "What do I like to drink?",
		UserName: "User",
		Relevant: []domain.RankedMemory{ranked(domain.MemoryTypePreference, "I prefer tea in the morning.", 0.6)},
	}
	reply := r.Generate(in)
	assert.Contains(t, reply, "i prefer tea in the morning.")

	reply = r.Generate(Input{Message: "What do I like to drink?", UserName: "User"})
	assert.Contains(t, templates["no_memory_yet"], reply)
}

func TestGenerate_AnswersTaskQuestion(t *testing.T) {
	r := newTestResponder()

	in := Input{
		Message:  "What tasks do I have?",
		UserName: "User",
		Relevant: []domain.RankedMemory{ranked(domain.MemoryTypeCommitment, "Remind me to call the dentist.", 0.6)},
	}
	reply := r.Generate(in)
	assert.Contains(t, reply, "Remind me to call the dentist.")

	reply = r.Generate(Input{Message: "What tasks do I have?", UserName: "User"})
	assert.Equal(t, "You don't have any tasks or commitments recorded yet.", reply)
}

func TestGenerate_SchedulingWithPreferenceContext(t *testing.T) {
	r := newTestResponder()

	in := Input{
		Message:  "Let's book a meeting for tomorrow",
		UserName: "User",
		Relevant: []domain.RankedMemory{ranked(domain.MemoryTypePreference, "I prefer meetings after 2pm.", 0.6)},
	}
	reply := r.Generate(in)
	assert.Equal(t, "Based on your preferences, I can help with that! When would work best for you?", reply)

	reply = r.Generate(Input{Message: "Let's book a meeting for tomorrow", UserName: "User"})
	assert.Equal(t, "Sure! When would you like to schedule that?", reply)
}

func TestGenerate_Goodbye(t *testing.T) {
	r := newTestResponder()
	reply := r.Generate(Input{Message: "bye for now", UserName: "Alice"})
	assert.Contains(t, reply, "Alice")
}

func TestGenerate_DefaultFallsBackToName(t *testing.T) {
	r := newTestResponder()

	reply := r.Generate(Input{Message: "The weather turned cold today", UserName: "Alice"})
	assert.Contains(t, reply, "Alice")

	reply = r.Generate(Input{Message: "The weather turned cold today", UserName: "User"})
	assert.Contains(t, templates["default"], reply)
}
