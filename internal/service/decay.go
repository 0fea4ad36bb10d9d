package service

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/memkeep/memkeep/internal/contract"
	"github.com/memkeep/memkeep/internal/domain"
)

const (
	// ConsolidationInterval gates the merge pass to every Nth turn.
	ConsolidationInterval = 10
	// PruningInterval gates the prune pass to every Nth turn.
	PruningInterval = 20
	// MergeConfidenceBoost is added to the surviving side of a merge.
	MergeConfidenceBoost = 0.05
	// MaxBoostedConfidence is the ceiling for any reinforcement path.
	MaxBoostedConfidence = 0.99
)

// MaintenanceResult summarizes one turn's maintenance pass.
type MaintenanceResult struct {
	Decayed     int `json:"decayed"`
	Deactivated int `json:"deactivated"`
	Merged      int `json:"merged"`
	Pruned      int `json:"pruned"`
}

// DecayEngine ages, consolidates, and prunes a user's active memory set.
// All passes run synchronously within the request that advances the turn
// counter and are best-effort: a store failure on one record is logged and
// does not abort the pass.
type DecayEngine struct {
	memories domain.MemoryStore
	history  domain.HistoryStore
	logger   *zap.Logger

	// MaxActive is the pruning cap on active memories per user.
	MaxActive int
}

func NewDecayEngine(ms domain.MemoryStore, hs domain.HistoryStore, logger *zap.Logger) *DecayEngine {
	return &DecayEngine{
		memories:  ms,
		history:   hs,
		logger:    logger,
		MaxActive: contract.MaxActiveMemories,
	}
}

// RunTurnMaintenance executes the per-turn sequence for one user: aging
// every turn, consolidation every 10th, pruning every 20th. Each pass works
// over its own snapshot of the active set at pass start.
func (e *DecayEngine) RunTurnMaintenance(ctx context.Context, userID string, turn int) *MaintenanceResult {
	result := &MaintenanceResult{}

	e.agingPass(ctx, userID, turn, result)

	if turn%ConsolidationInterval == 0 {
		e.consolidate(ctx, userID, result)
	}
	if turn%PruningInterval == 0 {
		e.prune(ctx, userID, result)
	}

	if result.Decayed > 0 || result.Deactivated > 0 || result.Merged > 0 || result.Pruned > 0 {
		e.logger.Info("turn maintenance complete",
			zap.String("user_id", userID),
			zap.Int("turn", turn),
			zap.Int("decayed", result.Decayed),
			zap.Int("deactivated", result.Deactivated),
			zap.Int("merged", result.Merged),
			zap.Int("pruned", result.Pruned))
	}
	return result
}

func (e *DecayEngine) agingPass(ctx context.Context, userID string, turn int, result *MaintenanceResult) {
	memories, err := e.memories.FetchActive(ctx, userID, 0)
	if err != nil {
		e.logger.Error("aging pass: fetch active failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	for _, m := range memories {
		age := turn - m.LastUsedTurn
		if age < contract.MinAgeForDecay {
			continue
		}

		decay := contract.DecayAmount(m.Type, age, m.Confidence)
		if decay <= 0 {
			continue
		}

		// Frequently used memories decay up to 10% slower.
		if m.UseCount > 1 {
			retention := float64(m.UseCount) * 0.01
			if retention > 0.1 {
				retention = 0.1
			}
			decay *= 1 - retention
		}

		newConfidence := m.Confidence - decay
		if newConfidence < 0 {
			newConfidence = 0
		}

		if newConfidence < contract.MinConfidence {
			if err := e.memories.Deactivate(ctx, m.ID); err != nil {
				e.logger.Warn("failed to deactivate decayed memory",
					zap.String("memory_id", m.ID.String()), zap.Error(err))
				continue
			}
			e.record(ctx, m.ID, domain.ActionDeactivated, m.Confidence, newConfidence)
			result.Deactivated++
			continue
		}

		if err := e.memories.UpdateConfidence(ctx, m.ID, newConfidence); err != nil {
			e.logger.Warn("failed to update decayed confidence",
				zap.String("memory_id", m.ID.String()), zap.Error(err))
			continue
		}
		e.record(ctx, m.ID, domain.ActionDecayed, m.Confidence, newConfidence)
		result.Decayed++
	}
}

// consolidate merges near-duplicate same-type memories pairwise, keeping
// the higher-confidence side. Each memory participates in at most one merge
// per pass.
func (e *DecayEngine) consolidate(ctx context.Context, userID string, result *MaintenanceResult) {
	memories, err := e.memories.FetchActive(ctx, userID, 0)
	if err != nil {
		e.logger.Error("consolidation: fetch active failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	mergedAway := make(map[uuid.UUID]bool)

	for i := range memories {
		if mergedAway[memories[i].ID] {
			continue
		}
		for j := i + 1; j < len(memories); j++ {
			if mergedAway[memories[j].ID] {
				continue
			}
			if !contract.ShouldMerge(&memories[i], &memories[j]) {
				continue
			}

			keep, drop := &memories[i], &memories[j]
			if drop.Confidence > keep.Confidence {
				keep, drop = drop, keep
			}

			if e.merge(ctx, keep, drop) {
				mergedAway[drop.ID] = true
				result.Merged++
			}
			if drop.ID == memories[i].ID {
				break
			}
		}
	}
}

func (e *DecayEngine) merge(ctx context.Context, keep, drop *domain.Memory) bool {
	newConfidence := keep.Confidence + MergeConfidenceBoost
	if newConfidence > MaxBoostedConfidence {
		newConfidence = MaxBoostedConfidence
	}

	if err := e.memories.UpdateConfidence(ctx, keep.ID, newConfidence); err != nil {
		e.logger.Warn("failed to boost merge survivor",
			zap.String("memory_id", keep.ID.String()), zap.Error(err))
		return false
	}
	if err := e.memories.Deactivate(ctx, drop.ID); err != nil {
		e.logger.Warn("failed to deactivate merged memory",
			zap.String("memory_id", drop.ID.String()), zap.Error(err))
		return false
	}

	e.record(ctx, keep.ID, domain.ActionMerged, keep.Confidence, newConfidence)
	e.record(ctx, drop.ID, domain.ActionDeactivated, drop.Confidence, drop.Confidence)
	keep.Confidence = newConfidence
	return true
}

// prune deactivates the lowest-priority memories when the active count
// exceeds the cap, never cutting below the cap in one pass.
func (e *DecayEngine) prune(ctx context.Context, userID string, result *MaintenanceResult) {
	count, err := e.memories.CountActive(ctx, userID)
	if err != nil {
		e.logger.Error("pruning: count active failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if count <= e.MaxActive {
		return
	}

	memories, err := e.memories.FetchActive(ctx, userID, 0)
	if err != nil {
		e.logger.Error("pruning: fetch active failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	type scored struct {
		m        domain.Memory
		priority float64
	}
	ranked := make([]scored, 0, len(memories))
	for _, m := range memories {
		age := m.LastUsedTurn - m.CreatedTurn
		ranked = append(ranked, scored{m: m, priority: contract.Priority(m.Type, m.Confidence, age)})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].priority < ranked[j].priority })

	excess := len(memories) - e.MaxActive
	for _, candidate := range ranked[:excess] {
		if err := e.memories.Deactivate(ctx, candidate.m.ID); err != nil {
			e.logger.Warn("failed to prune memory",
				zap.String("memory_id", candidate.m.ID.String()), zap.Error(err))
			continue
		}
		e.record(ctx, candidate.m.ID, domain.ActionPruned, candidate.m.Confidence, candidate.m.Confidence)
		result.Pruned++
	}
}

// Refresh records a use of a memory: bumps last_used_turn and use_count,
// and optionally boosts confidence up to the reinforcement ceiling.
func (e *DecayEngine) Refresh(ctx context.Context, m *domain.Memory, turn int, boost float64) {
	if err := e.memories.UpdateLastUsed(ctx, m.ID, turn); err != nil {
		e.logger.Warn("failed to refresh memory",
			zap.String("memory_id", m.ID.String()), zap.Error(err))
		return
	}

	if boost <= 0 {
		return
	}
	newConfidence := m.Confidence + boost
	if newConfidence > MaxBoostedConfidence {
		newConfidence = MaxBoostedConfidence
	}
	if newConfidence == m.Confidence {
		return
	}
	if err := e.memories.UpdateConfidence(ctx, m.ID, newConfidence); err != nil {
		e.logger.Warn("failed to boost refreshed memory",
			zap.String("memory_id", m.ID.String()), zap.Error(err))
		return
	}
	e.record(ctx, m.ID, domain.ActionReinforced, m.Confidence, newConfidence)
}

// BoostRelated boosts and refreshes every active memory whose content
// contains any of the supplied keywords, case-insensitively.
func (e *DecayEngine) BoostRelated(ctx context.Context, userID string, turn int, keywords []string, amount float64) {
	if len(keywords) == 0 || amount <= 0 {
		return
	}
	memories, err := e.memories.FetchActive(ctx, userID, 0)
	if err != nil {
		e.logger.Warn("boost related: fetch active failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	for i := range memories {
		if !contentContainsAny(memories[i].Content, keywords) {
			continue
		}
		e.Refresh(ctx, &memories[i], turn, amount)
	}
}

func (e *DecayEngine) record(ctx context.Context, id uuid.UUID, action domain.HistoryAction, oldConf, newConf float64) {
	entry := &domain.HistoryEntry{
		MemoryID:      id,
		Action:        action,
		OldConfidence: &oldConf,
		NewConfidence: newConf,
	}
	if err := e.history.Append(ctx, entry); err != nil {
		e.logger.Warn("failed to append history entry",
			zap.String("memory_id", id.String()),
			zap.String("action", string(action)),
			zap.Error(err))
	}
}
