package service

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/memkeep/memkeep/internal/contract"
	"github.com/memkeep/memkeep/internal/domain"
	"github.com/memkeep/memkeep/internal/store"
)

// mockMemoryStore implements domain.MemoryStore in memory, honoring the
// same merge-on-insert contract as the real store.
type mockMemoryStore struct {
	mu       sync.Mutex
	memories map[uuid.UUID]*domain.Memory

	failInsert bool
	failFetch  bool
}

func newMockMemoryStore() *mockMemoryStore {
	return &mockMemoryStore{memories: make(map[uuid.UUID]*domain.Memory)}
}

func (m *mockMemoryStore) add(mem domain.Memory) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := mem
	m.memories[mem.ID] = &copied
	return mem.ID
}

func (m *mockMemoryStore) get(id uuid.UUID) *domain.Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.memories[id]
}

func (m *mockMemoryStore) Insert(ctx context.Context, mem *domain.Memory) (*domain.InsertResult, error) {
	if m.failInsert {
		return nil, context.DeadlineExceeded
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.memories {
		if !existing.Active || existing.UserID != mem.UserID || existing.Type != mem.Type {
			continue
		}
		if contract.SimilarContent(existing.Content, mem.Content) {
			merged := (existing.Confidence+mem.Confidence)/2 + 0.05
			if merged > 0.99 {
				merged = 0.99
			}
			existing.Confidence = merged
			existing.LastUsedTurn = mem.CreatedTurn
			existing.UseCount++
			return &domain.InsertResult{
				Reinforced:    true,
				MemoryID:      existing.ID,
				NewConfidence: merged,
			}, nil
		}
	}

	copied := *mem
	m.memories[mem.ID] = &copied
	return &domain.InsertResult{
		Created:       true,
		MemoryID:      mem.ID,
		NewConfidence: mem.Confidence,
	}, nil
}

func (m *mockMemoryStore) FetchActive(ctx context.Context, userID string, limit int) ([]domain.Memory, error) {
	if m.failFetch {
		return nil, context.DeadlineExceeded
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Memory
	for _, mem := range m.memories {
		if mem.Active && mem.UserID == userID {
			out = append(out, *mem)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].LastUsedTurn > out[j].LastUsedTurn
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockMemoryStore) UpdateConfidence(ctx context.Context, id uuid.UUID, confidence float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mem, ok := m.memories[id]
	if !ok || !mem.Active {
		return store.ErrNotFound
	}
	mem.Confidence = confidence
	return nil
}

func (m *mockMemoryStore) UpdateLastUsed(ctx context.Context, id uuid.UUID, turn int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mem, ok := m.memories[id]
	if !ok || !mem.Active {
		return store.ErrNotFound
	}
	mem.LastUsedTurn = turn
	mem.UseCount++
	return nil
}

func (m *mockMemoryStore) Deactivate(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mem, ok := m.memories[id]
	if !ok || !mem.Active {
		return store.ErrNotFound
	}
	mem.Active = false
	return nil
}

func (m *mockMemoryStore) CountActive(ctx context.Context, userID string) (int, error) {
	active, err := m.FetchActive(ctx, userID, 0)
	if err != nil {
		return 0, err
	}
	return len(active), nil
}

func (m *mockMemoryStore) TotalActive(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, mem := range m.memories {
		if mem.Active {
			total++
		}
	}
	return total, nil
}

// mockHistoryStore records appended entries in order.
type mockHistoryStore struct {
	mu      sync.Mutex
	entries []domain.HistoryEntry
}

func newMockHistoryStore() *mockHistoryStore {
	return &mockHistoryStore{}
}

func (m *mockHistoryStore) Append(ctx context.Context, e *domain.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *mockHistoryStore) actions(id uuid.UUID) []domain.HistoryAction {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.HistoryAction
	for _, e := range m.entries {
		if e.MemoryID == id {
			out = append(out, e.Action)
		}
	}
	return out
}

func testMemory(userID string, t domain.MemoryType, content string, confidence float64, createdTurn, lastUsedTurn int) domain.Memory {
	return domain.Memory{
		ID:           uuid.New(),
		UserID:       userID,
		Type:         t,
		Content:      content,
		Confidence:   confidence,
		CreatedTurn:  createdTurn,
		LastUsedTurn: lastUsedTurn,
		UseCount:     1,
		Active:       true,
	}
}
