package service

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/memkeep/memkeep/internal/domain"
	"github.com/memkeep/memkeep/internal/extractor"
	"github.com/memkeep/memkeep/internal/responder"
)

func newTestTurnService(ms *mockMemoryStore, hs *mockHistoryStore) (*TurnService, *SessionTracker) {
	logger := zap.NewNop()
	sessions := NewSessionTracker(time.Hour, logger)
	svc := NewTurnService(
		extractor.New(logger),
		ms,
		NewDecayEngine(ms, hs, logger),
		NewRetrievalEngine(),
		sessions,
		responder.New(rand.New(rand.NewSource(1))),
		logger,
	)
	return svc, sessions
}

func TestProcessTurn_CreatesPreferenceMemory(t *testing.T) {
	ms := newMockMemoryStore()
	svc, _ := newTestTurnService(ms, newMockHistoryStore())

	result, err := svc.ProcessTurn(context.Background(), "u1", "I prefer tea in the morning.")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Turn)
	assert.Equal(t, 1, result.MemoriesCreated)
	assert.Contains(t, result.Reply, "tea")
	require.NotNil(t, result.Maintenance)
	require.NotNil(t, result.Summary)
	assert.Equal(t, 1, result.Summary.Total)

	active, err := ms.FetchActive(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, domain.MemoryTypePreference, active[0].Type)
	assert.Equal(t, "I prefer tea in the morning.", active[0].Content)
}

func TestProcessTurn_RemembersUserName(t *testing.T) {
	ms := newMockMemoryStore()
	svc, _ := newTestTurnService(ms, newMockHistoryStore())
	ctx := context.Background()

	first, err := svc.ProcessTurn(ctx, "u1", "My name is Alice")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Turn)
	assert.Equal(t, 1, first.MemoriesCreated)
	assert.Equal(t, "Alice", first.UserName)
	assert.Contains(t, first.Reply, "Alice")

	second, err := svc.ProcessTurn(ctx, "u1", "Who am I?")
	require.NoError(t, err)
	assert.Equal(t, 2, second.Turn)
	assert.Equal(t, 0, second.MemoriesCreated)
	assert.Equal(t, "Alice", second.UserName)
	assert.Equal(t, "Your name is Alice!", second.Reply)
}

func TestProcessTurn_RepeatedStatementReinforces(t *testing.T) {
	ms := newMockMemoryStore()
	svc, _ := newTestTurnService(ms, newMockHistoryStore())
	ctx := context.Background()

	_, err := svc.ProcessTurn(ctx, "u1", "I prefer tea in the morning.")
	require.NoError(t, err)

	result, err := svc.ProcessTurn(ctx, "u1", "I prefer tea in the morning.")
	require.NoError(t, err)
	assert.Equal(t, 1, result.MemoriesCreated)

	active, err := ms.FetchActive(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Greater(t, active[0].Confidence, domain.MemoryTypePreference.InitialConfidence())
	assert.Greater(t, active[0].UseCount, 1)
}

func TestProcessTurn_InsertFailureDegrades(t *testing.T) {
	ms := newMockMemoryStore()
	ms.failInsert = true
	svc, _ := newTestTurnService(ms, newMockHistoryStore())

	result, err := svc.ProcessTurn(context.Background(), "u1", "I prefer tea in the morning.")
	require.NoError(t, err)
	assert.Equal(t, 0, result.MemoriesCreated)
	assert.NotEmpty(t, result.Reply)

	total, err := ms.TotalActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestProcessTurn_FetchFailureDegrades(t *testing.T) {
	ms := newMockMemoryStore()
	ms.add(testMemory("u1", domain.MemoryTypeFact, "My name is Alice.", 0.95, 1, 1))
	ms.failFetch = true
	svc, _ := newTestTurnService(ms, newMockHistoryStore())

	result, err := svc.ProcessTurn(context.Background(), "u1", "Hello")
	require.NoError(t, err)
	assert.Empty(t, result.Relevant)
	assert.Equal(t, "User", result.UserName)
	assert.Equal(t, "none", result.Summary.Quality)
	assert.NotEmpty(t, result.Reply)
}

func TestTurnService_Memories(t *testing.T) {
	ms := newMockMemoryStore()
	ms.add(testMemory("u1", domain.MemoryTypeFact, "My name is Alice.", 0.95, 1, 1))
	ms.add(testMemory("u1", domain.MemoryTypePreference, "I prefer tea in the morning.", 0.88, 2, 4))
	ms.add(testMemory("u2", domain.MemoryTypeFact, "I work at Acme.", 0.95, 1, 1))
	svc, _ := newTestTurnService(ms, newMockHistoryStore())
	ctx := context.Background()

	view, err := svc.Memories(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", view.UserName)
	assert.Len(t, view.Memories, 2)
	assert.Equal(t, 2, view.Summary.Total)

	facts, err := svc.MemoriesOfType(ctx, "u1", domain.MemoryTypeFact)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "My name is Alice.", facts[0].Content)

	found, err := svc.SearchMemories(ctx, "u1", "tea")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, domain.MemoryTypePreference, found[0].Type)

	recent, err := svc.RecentMemories(ctx, "u1", 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 4, recent[0].LastUsedTurn)
}

func TestTurnService_Health(t *testing.T) {
	ms := newMockMemoryStore()
	ms.add(testMemory("u1", domain.MemoryTypeFact, "My name is Alice.", 0.95, 1, 1))
	ms.add(testMemory("u2", domain.MemoryTypeFact, "I work at Acme.", 0.95, 1, 1))
	svc, sessions := newTestTurnService(ms, newMockHistoryStore())
	sessions.Touch("u1")
	sessions.Touch("u2")

	stats, err := svc.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalActiveMemories)
	assert.Equal(t, 2, stats.ActiveSessions)
}
