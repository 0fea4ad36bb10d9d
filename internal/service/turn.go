package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/memkeep/memkeep/internal/domain"
	"github.com/memkeep/memkeep/internal/responder"
)

const (
	// DefaultTopK bounds the memory context handed to the responder.
	DefaultTopK = 5
	// DefaultMinRelevance is the retrieval score floor for context injection.
	DefaultMinRelevance = 0.1
	// RetrievalBoost is the confidence boost applied to each retrieved memory.
	RetrievalBoost = 0.01
	// DefaultStoreTimeout bounds each store-backed phase of a turn.
	DefaultStoreTimeout = 5 * time.Second
)

// Extractor produces candidate memories from a raw message.
type Extractor interface {
	ExtractAll(message string, turn int, userID string) []domain.Memory
}

// ReplyGenerator produces the chat reply for one turn.
type ReplyGenerator interface {
	Generate(in responder.Input) string
}

// TurnResult is everything one processed turn reports back.
type TurnResult struct {
	Reply           string                `json:"response"`
	Turn            int                   `json:"turn"`
	MemoriesCreated int                   `json:"memories_created"`
	Relevant        []domain.RankedMemory `json:"relevant_memories"`
	Summary         *domain.MemorySummary `json:"memory_summary"`
	UserName        string                `json:"user_name"`
	Maintenance     *MaintenanceResult    `json:"maintenance"`
}

// HealthStats is the engine-level health report.
type HealthStats struct {
	TotalActiveMemories int `json:"total_active_memories"`
	ActiveSessions      int `json:"active_sessions"`
}

// UserMemories is the listing view over one user's active set.
type UserMemories struct {
	UserName string                `json:"user_name"`
	Memories []domain.Memory       `json:"memories"`
	Summary  *domain.MemorySummary `json:"summary"`
}

// TurnService runs the full per-turn pipeline: extract, persist, maintain,
// retrieve, reinforce, respond, advance. Everything after extraction is
// best-effort; a failing store phase degrades the turn (no new memories or
// an empty context) rather than failing it.
type TurnService struct {
	extractor Extractor
	memories  domain.MemoryStore
	decay     *DecayEngine
	retrieval *RetrievalEngine
	sessions  domain.SessionTracker
	replies   ReplyGenerator
	logger    *zap.Logger

	// StoreTimeout bounds each store-backed phase so a slow database cannot
	// stall the turn pipeline indefinitely.
	StoreTimeout time.Duration
}

func NewTurnService(
	ex Extractor,
	ms domain.MemoryStore,
	decay *DecayEngine,
	retrieval *RetrievalEngine,
	sessions domain.SessionTracker,
	replies ReplyGenerator,
	logger *zap.Logger,
) *TurnService {
	return &TurnService{
		extractor:    ex,
		memories:     ms,
		decay:        decay,
		retrieval:    retrieval,
		sessions:     sessions,
		replies:      replies,
		logger:       logger,
		StoreTimeout: DefaultStoreTimeout,
	}
}

// ProcessTurn handles one conversational turn for a user.
func (s *TurnService) ProcessTurn(ctx context.Context, userID, message string) (*TurnResult, error) {
	turn := s.sessions.Touch(userID)

	candidates := s.extractor.ExtractAll(message, turn, userID)

	created := 0
	var firstNew *domain.Memory
	for i := range candidates {
		result, err := s.insertBounded(ctx, &candidates[i])
		if err != nil {
			s.logger.Warn("memory not created",
				zap.String("user_id", userID),
				zap.String("type", string(candidates[i].Type)),
				zap.Error(err))
			continue
		}
		created++
		if firstNew == nil && result.Created {
			firstNew = &candidates[i]
		}
	}

	maintCtx, cancel := context.WithTimeout(ctx, s.StoreTimeout)
	maintenance := s.decay.RunTurnMaintenance(maintCtx, userID, turn)
	cancel()

	active, err := s.fetchBounded(ctx, userID)
	if err != nil {
		s.logger.Error("fetch active failed, responding without context",
			zap.String("user_id", userID), zap.Error(err))
		active = nil
	}

	relevant := s.retrieval.RetrieveRelevant(message, active, DefaultTopK, DefaultMinRelevance)

	boostCtx, cancel := context.WithTimeout(ctx, s.StoreTimeout)
	s.decay.BoostRelated(boostCtx, userID, turn, significantWords(message), RetrievalBoost)
	for i := range relevant {
		s.decay.Refresh(boostCtx, &relevant[i].Memory, turn, RetrievalBoost)
	}
	cancel()

	userName := s.retrieval.UserName(active)
	reply := s.replies.Generate(responder.Input{
		Message:   message,
		UserName:  userName,
		NewMemory: firstNew,
		Relevant:  relevant,
	})

	s.sessions.Advance(userID)

	return &TurnResult{
		Reply:           reply,
		Turn:            turn,
		MemoriesCreated: created,
		Relevant:        relevant,
		Summary:         s.retrieval.Summarize(active),
		UserName:        userName,
		Maintenance:     maintenance,
	}, nil
}

// Memories returns a user's full active set with its summary.
func (s *TurnService) Memories(ctx context.Context, userID string) (*UserMemories, error) {
	active, err := s.fetchBounded(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UserMemories{
		UserName: s.retrieval.UserName(active),
		Memories: active,
		Summary:  s.retrieval.Summarize(active),
	}, nil
}

// MemoriesOfType returns the user's active memories of one type, highest
// confidence first.
func (s *TurnService) MemoriesOfType(ctx context.Context, userID string, t domain.MemoryType) ([]domain.Memory, error) {
	active, err := s.fetchBounded(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.retrieval.ByType(active, t), nil
}

// SearchMemories returns active memories containing the term.
func (s *TurnService) SearchMemories(ctx context.Context, userID, term string) ([]domain.Memory, error) {
	active, err := s.fetchBounded(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.retrieval.Search(active, term), nil
}

// RecentMemories returns the n most recently used active memories.
func (s *TurnService) RecentMemories(ctx context.Context, userID string, n int) ([]domain.Memory, error) {
	active, err := s.fetchBounded(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.retrieval.Recent(active, n), nil
}

// Health reports aggregate engine stats.
func (s *TurnService) Health(ctx context.Context) (*HealthStats, error) {
	total, err := s.memories.TotalActive(ctx)
	if err != nil {
		return nil, err
	}
	return &HealthStats{
		TotalActiveMemories: total,
		ActiveSessions:      s.sessions.ActiveSessions(),
	}, nil
}

func (s *TurnService) insertBounded(ctx context.Context, m *domain.Memory) (*domain.InsertResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.StoreTimeout)
	defer cancel()
	return s.memories.Insert(ctx, m)
}

func (s *TurnService) fetchBounded(ctx context.Context, userID string) ([]domain.Memory, error) {
	ctx, cancel := context.WithTimeout(ctx, s.StoreTimeout)
	defer cancel()
	return s.memories.FetchActive(ctx, userID, 0)
}

// significantWords feeds BoostRelated with the message's longer words.
func significantWords(message string) []string {
	words := tokenize(message)
	out := words[:0:0]
	for _, w := range words {
		if len(w) > 3 {
			out = append(out, w)
		}
	}
	return out
}
