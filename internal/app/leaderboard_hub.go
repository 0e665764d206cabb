package app

import (
	"sync"
	"time"

	"assessment-service/internal/domain"
)

// SessionRepository abstracts where live leaderboard sessions are kept (in-memory, Redis-marked).
type SessionRepository interface {
	GetOrCreate(gameID string) *Session
	Get(gameID string) (*Session, bool)
	DeleteIfEmpty(gameID string)
}

// Session is the live leaderboard of one puzzle game shared by its connected players.
type Session struct {
	id          string
	createdAt   time.Time
	now         func() time.Time
	mu          sync.RWMutex
	viewers     map[string]int
	latest      domain.Leaderboard
	subscribers map[chan domain.Leaderboard]struct{}
}

// NewSession is exported for infrastructure layers that keep sessions.
func NewSession(gameID string) *Session {
	return NewSessionWithClock(gameID, time.Now)
}

// NewSessionWithClock allows deterministic timestamps in tests.
func NewSessionWithClock(gameID string, now func() time.Time) *Session {
	return &Session{
		id:          gameID,
		createdAt:   now(),
		now:         now,
		viewers:     make(map[string]int),
		latest:      domain.Leaderboard{GameID: gameID, Entries: []domain.LeaderboardEntry{}, UpdatedAt: now()},
		subscribers: make(map[chan domain.Leaderboard]struct{}),
	}
}

// join counts connections per user; one user may watch from several tabs.
func (s *Session) join(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewers[userID]++
}

func (s *Session) leave(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.viewers[userID] <= 1 {
		delete(s.viewers, userID)
		return
	}
	s.viewers[userID]--
}

// IsEmpty reports whether nobody is watching the session.
func (s *Session) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.viewers) == 0
}

// Snapshot returns the last published leaderboard.
func (s *Session) Snapshot() domain.Leaderboard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

func (s *Session) subscribe() (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	initial := s.latest
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// publish replaces the snapshot and fans it out to subscribers.
func (s *Session) publish(entries []domain.LeaderboardEntry) domain.Leaderboard {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := append([]domain.LeaderboardEntry(nil), entries...)
	domain.SortLeaderboard(sorted)
	s.latest = domain.Leaderboard{GameID: s.id, Entries: sorted, UpdatedAt: s.now()}

	for ch := range s.subscribers {
		select {
		case ch <- s.latest:
		default:
			// Slow subscriber: drop its stale snapshot so the broadcast never blocks.
			select {
			case <-ch:
			default:
			}
			ch <- s.latest
		}
	}
	return s.latest
}
