package domain

import (
	"context"

	"github.com/google/uuid"
)

// InsertResult reports what Insert actually did with a candidate.
type InsertResult struct {
	Created       bool      `json:"created"`
	Reinforced    bool      `json:"reinforced"`
	MemoryID      uuid.UUID `json:"memory_id"`
	Deactivated   int       `json:"deactivated_conflicts"`
	NewConfidence float64   `json:"new_confidence"`
}

// MemoryStore owns persisted memory rows. Insert is merge-aware: a candidate
// that near-duplicates an existing active row of the same user and type
// reinforces that row instead of creating a new one. The whole similarity
// search / conflict resolution / write sequence runs inside a single
// transaction serialized per (user_id, type).
type MemoryStore interface {
	Insert(ctx context.Context, m *Memory) (*InsertResult, error)
	FetchActive(ctx context.Context, userID string, limit int) ([]Memory, error)
	UpdateConfidence(ctx context.Context, id uuid.UUID, confidence float64) error
	UpdateLastUsed(ctx context.Context, id uuid.UUID, turn int) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	CountActive(ctx context.Context, userID string) (int, error)
	TotalActive(ctx context.Context) (int, error)
}

// HistoryStore is the append-only audit ledger.
type HistoryStore interface {
	Append(ctx context.Context, e *HistoryEntry) error
}

// ConflictDetector decides whether a new statement contradicts an existing
// memory of the same type. Implementations live in the contract package.
type ConflictDetector interface {
	Conflicts(existing, candidate string) bool
}

// SessionTracker owns the per-user logical turn counters.
type SessionTracker interface {
	Touch(userID string) int
	Advance(userID string)
	ActiveSessions() int
}
