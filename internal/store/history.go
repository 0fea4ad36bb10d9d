package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memkeep/memkeep/internal/domain"
)

// HistoryStore appends to the audit ledger. The engine never reads the
// ledger back; it exists for offline inspection only.
type HistoryStore struct {
	db *pgxpool.Pool
}

func NewHistoryStore(db *pgxpool.Pool) *HistoryStore {
	return &HistoryStore{db: db}
}

func (s *HistoryStore) Append(ctx context.Context, e *domain.HistoryEntry) error {
	if err := s.db.QueryRow(ctx,
		`INSERT INTO memory_history (memory_id, action, old_confidence, new_confidence)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		e.MemoryID, e.Action, e.OldConfidence, e.NewConfidence,
	).Scan(&e.ID, &e.CreatedAt); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}
