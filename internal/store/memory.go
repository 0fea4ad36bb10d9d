package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/memkeep/memkeep/internal/contract"
	"github.com/memkeep/memkeep/internal/domain"
)

const memoryColumns = `id, user_id, type, content, confidence, created_turn, last_used_turn, use_count, active, created_at, updated_at`

// ReinforcedConfidenceCap bounds confidence after merge reinforcement.
const ReinforcedConfidenceCap = 0.99

type MemoryStore struct {
	db        *pgxpool.Pool
	conflicts domain.ConflictDetector
	logger    *zap.Logger
}

func NewMemoryStore(db *pgxpool.Pool, conflicts domain.ConflictDetector, logger *zap.Logger) *MemoryStore {
	return &MemoryStore{db: db, conflicts: conflicts, logger: logger}
}

// Insert persists a candidate memory with merge-on-insert semantics. The
// similarity search, conflict resolution, and write all happen inside one
// transaction holding an advisory lock keyed on (user_id, type), so two
// concurrent inserts of near-duplicates cannot both conclude "no duplicate
// exists".
func (s *MemoryStore) Insert(ctx context.Context, m *domain.Memory) (*domain.InsertResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin insert tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`,
		m.UserID+"|"+string(m.Type),
	); err != nil {
		return nil, fmt.Errorf("acquire insert lock: %w", err)
	}

	siblings, err := fetchActiveByType(ctx, tx, m.UserID, m.Type)
	if err != nil {
		return nil, err
	}

	// Near-duplicate: reinforce the existing row instead of creating one.
	for _, existing := range siblings {
		if !contract.SimilarContent(existing.Content, m.Content) {
			continue
		}
		newConfidence := (existing.Confidence+m.Confidence)/2 + 0.05
		if newConfidence > ReinforcedConfidenceCap {
			newConfidence = ReinforcedConfidenceCap
		}

		if _, err := tx.Exec(ctx,
			`UPDATE memories
			 SET confidence = $1, last_used_turn = $2, use_count = use_count + 1, updated_at = NOW()
			 WHERE id = $3`,
			newConfidence, m.CreatedTurn, existing.ID,
		); err != nil {
			return nil, fmt.Errorf("reinforce memory: %w", err)
		}
		if err := appendHistory(ctx, tx, existing.ID, domain.ActionReinforced, &existing.Confidence, newConfidence); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit reinforce: %w", err)
		}
		return &domain.InsertResult{
			Reinforced:    true,
			MemoryID:      existing.ID,
			NewConfidence: newConfidence,
		}, nil
	}

	// Deactivate memories the new statement contradicts.
	var deactivated int
	if s.conflicts != nil {
		for _, existing := range siblings {
			if !s.conflicts.Conflicts(existing.Content, m.Content) {
				continue
			}
			if _, err := tx.Exec(ctx,
				`UPDATE memories SET active = FALSE, updated_at = NOW() WHERE id = $1`,
				existing.ID,
			); err != nil {
				return nil, fmt.Errorf("deactivate conflicting memory: %w", err)
			}
			if err := appendHistory(ctx, tx, existing.ID, domain.ActionDeactivated, &existing.Confidence, existing.Confidence); err != nil {
				return nil, err
			}
			deactivated++
		}
	}

	if err := tx.QueryRow(ctx,
		`INSERT INTO memories (id, user_id, type, content, confidence, created_turn, last_used_turn, use_count, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at`,
		m.ID, m.UserID, m.Type, m.Content, m.Confidence, m.CreatedTurn, m.LastUsedTurn, m.UseCount, m.Active,
	).Scan(&m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}
	if err := appendHistory(ctx, tx, m.ID, domain.ActionCreated, nil, m.Confidence); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit insert: %w", err)
	}
	if deactivated > 0 {
		s.logger.Info("deactivated conflicting memories",
			zap.String("user_id", m.UserID),
			zap.String("type", string(m.Type)),
			zap.Int("count", deactivated))
	}
	return &domain.InsertResult{
		Created:       true,
		MemoryID:      m.ID,
		Deactivated:   deactivated,
		NewConfidence: m.Confidence,
	}, nil
}

func fetchActiveByType(ctx context.Context, tx pgx.Tx, userID string, t domain.MemoryType) ([]domain.Memory, error) {
	rows, err := tx.Query(ctx,
		`SELECT `+memoryColumns+`
		 FROM memories WHERE user_id = $1 AND type = $2 AND active`,
		userID, t,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch same-type memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func appendHistory(ctx context.Context, tx pgx.Tx, memoryID uuid.UUID, action domain.HistoryAction, oldConf *float64, newConf float64) error {
	if _, err := tx.Exec(ctx,
		`INSERT INTO memory_history (memory_id, action, old_confidence, new_confidence)
		 VALUES ($1, $2, $3, $4)`,
		memoryID, action, oldConf, newConf,
	); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// FetchActive returns a user's active memories ordered by confidence then
// recency of use. limit <= 0 means no limit.
func (s *MemoryStore) FetchActive(ctx context.Context, userID string, limit int) ([]domain.Memory, error) {
	query := `SELECT ` + memoryColumns + `
		 FROM memories
		 WHERE user_id = $1 AND active
		 ORDER BY confidence DESC, last_used_turn DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch active memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func scanMemories(rows pgx.Rows) ([]domain.Memory, error) {
	var memories []domain.Memory
	for rows.Next() {
		var m domain.Memory
		if err := rows.Scan(&m.ID, &m.UserID, &m.Type, &m.Content, &m.Confidence,
			&m.CreatedTurn, &m.LastUsedTurn, &m.UseCount, &m.Active,
			&m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

func (s *MemoryStore) UpdateConfidence(ctx context.Context, id uuid.UUID, confidence float64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE memories SET confidence = $1, updated_at = NOW() WHERE id = $2 AND active`,
		confidence, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateLastUsed records a use: bumps last_used_turn and use_count.
func (s *MemoryStore) UpdateLastUsed(ctx context.Context, id uuid.UUID, turn int) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE memories
		 SET last_used_turn = $1, use_count = use_count + 1, updated_at = NOW()
		 WHERE id = $2 AND active`,
		turn, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Deactivate soft-deletes a memory. There is no hard-delete path.
func (s *MemoryStore) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE memories SET active = FALSE, updated_at = NOW() WHERE id = $1 AND active`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MemoryStore) CountActive(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM memories WHERE user_id = $1 AND active`,
		userID,
	).Scan(&count)
	return count, err
}

func (s *MemoryStore) TotalActive(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM memories WHERE active`).Scan(&count)
	return count, err
}
