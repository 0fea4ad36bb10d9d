package domain

import (
	"time"

	"github.com/google/uuid"
)

type MemoryType string

const (
	MemoryTypePreference   MemoryType = "preference"
	MemoryTypeFact         MemoryType = "fact"
	MemoryTypeConstraint   MemoryType = "constraint"
	MemoryTypeCommitment   MemoryType = "commitment"
	MemoryTypeGoal         MemoryType = "goal"
	MemoryTypeRelationship MemoryType = "relationship"
)

// MemoryTypes lists every valid type in stable order.
var MemoryTypes = []MemoryType{
	MemoryTypePreference,
	MemoryTypeFact,
	MemoryTypeConstraint,
	MemoryTypeCommitment,
	MemoryTypeGoal,
	MemoryTypeRelationship,
}

func ValidMemoryType(t string) bool {
	switch MemoryType(t) {
	case MemoryTypePreference, MemoryTypeFact, MemoryTypeConstraint,
		MemoryTypeCommitment, MemoryTypeGoal, MemoryTypeRelationship:
		return true
	}
	return false
}

// InitialConfidence returns the fixed confidence assigned to a freshly
// extracted memory of this type.
func (t MemoryType) InitialConfidence() float64 {
	switch t {
	case MemoryTypeFact:
		return 0.95
	case MemoryTypeConstraint:
		return 0.92
	case MemoryTypeRelationship:
		return 0.90
	case MemoryTypePreference:
		return 0.88
	case MemoryTypeGoal:
		return 0.87
	case MemoryTypeCommitment:
		return 0.85
	default:
		return 0.85
	}
}

// Memory is a single remembered fact, preference, constraint, commitment,
// goal, or relationship about one user. Age and decay are measured in
// logical conversation turns, not wall-clock time.
type Memory struct {
	ID           uuid.UUID  `json:"id"`
	UserID       string     `json:"user_id"`
	Type         MemoryType `json:"type"`
	Content      string     `json:"content"`
	Confidence   float64    `json:"confidence"`
	CreatedTurn  int        `json:"created_turn"`
	LastUsedTurn int        `json:"last_used_turn"`
	UseCount     int        `json:"use_count"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type HistoryAction string

const (
	ActionCreated     HistoryAction = "created"
	ActionReinforced  HistoryAction = "reinforced"
	ActionDecayed     HistoryAction = "decayed"
	ActionDeactivated HistoryAction = "deactivated"
	ActionMerged      HistoryAction = "merged"
	ActionPruned      HistoryAction = "pruned"
)

// HistoryEntry is one row of the append-only audit ledger. The engine only
// ever writes these; nothing in the engine reads them back.
type HistoryEntry struct {
	ID            int64         `json:"id"`
	MemoryID      uuid.UUID     `json:"memory_id"`
	Action        HistoryAction `json:"action"`
	OldConfidence *float64      `json:"old_confidence,omitempty"`
	NewConfidence float64       `json:"new_confidence"`
	CreatedAt     time.Time     `json:"created_at"`
}

// RankedMemory is a memory paired with its relevance score for one query.
type RankedMemory struct {
	Memory
	Relevance float64 `json:"relevance"`
}

// MemorySummary describes the shape of a retrieved memory set.
type MemorySummary struct {
	Total               int                `json:"total"`
	ByType              map[MemoryType]int `json:"by_type"`
	AvgConfidence       float64            `json:"avg_confidence"`
	HighConfidenceCount int                `json:"high_confidence_count"`
	Quality             string             `json:"memory_quality"`
}
