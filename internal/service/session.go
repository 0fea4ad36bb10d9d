package service

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultSessionTTL is how long an idle session survives before the
// sweeper evicts it.
const DefaultSessionTTL = 60 * time.Minute

const sweepInterval = 5 * time.Minute

type session struct {
	turn       int
	lastActive time.Time
}

// SessionTracker holds per-user logical turn counters in process memory.
// Sessions are created on first touch at turn 1 and evicted by a background
// sweeper after a period of inactivity; a returning user simply starts a
// fresh session at turn 1.
type SessionTracker struct {
	mu       sync.Mutex
	sessions map[string]*session

	ttl    time.Duration
	logger *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewSessionTracker(ttl time.Duration, logger *zap.Logger) *SessionTracker {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionTracker{
		sessions: make(map[string]*session),
		ttl:      ttl,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Touch returns the user's current turn number, creating the session at
// turn 1 when absent, and marks the session active.
func (t *SessionTracker) Touch(userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[userID]
	if !ok {
		s = &session{turn: 1}
		t.sessions[userID] = s
	}
	s.lastActive = time.Now()
	return s.turn
}

// Advance increments the user's turn counter after a completed turn.
func (t *SessionTracker) Advance(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.sessions[userID]; ok {
		s.turn++
		s.lastActive = time.Now()
	}
}

// ActiveSessions reports how many sessions are currently tracked.
func (t *SessionTracker) ActiveSessions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Start launches the eviction sweeper.
func (t *SessionTracker) Start() {
	t.wg.Add(1)
	go t.run()
	t.logger.Info("session tracker started", zap.Duration("ttl", t.ttl))
}

// Stop terminates the sweeper and waits for it to exit.
func (t *SessionTracker) Stop() {
	close(t.stopCh)
	t.wg.Wait()
	t.logger.Info("session tracker stopped")
}

func (t *SessionTracker) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

func (t *SessionTracker) sweep() {
	cutoff := time.Now().Add(-t.ttl)

	t.mu.Lock()
	evicted := 0
	for userID, s := range t.sessions {
		if s.lastActive.Before(cutoff) {
			delete(t.sessions, userID)
			evicted++
		}
	}
	t.mu.Unlock()

	if evicted > 0 {
		t.logger.Info("evicted idle sessions", zap.Int("count", evicted))
	}
}
