package redis

import (
	"context"
	"sync"
	"time"

	"assessment-service/internal/app"
	"github.com/golang/glog"
	"github.com/redis/go-redis/v9"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Leaderboard sessions and their subscribers stay in process; Redis only marks
// which games have live viewers so other instances and the report command can see them.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(gameID string) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[gameID]; ok {
		return session
	}
	session := app.NewSession(gameID)
	s.sessions[gameID] = session
	// best-effort liveness marker
	if err := s.client.Set(context.Background(), SessionKey(gameID), "1", s.ttl).Err(); err != nil {
		glog.V(2).Infof("mark session %s: %v", gameID, err)
	}
	return session
}

func (s *SessionStore) Get(gameID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[gameID]
	return session, ok
}

func (s *SessionStore) DeleteIfEmpty(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[gameID]
	if !ok {
		return
	}
	if session.IsEmpty() {
		delete(s.sessions, gameID)
		if err := s.client.Del(context.Background(), SessionKey(gameID)).Err(); err != nil {
			glog.Warningf("clear session marker %s: %v", gameID, err)
		}
	}
}

// LiveGames lists games with a liveness marker on any instance.
func LiveGames(ctx context.Context, client *redis.Client) ([]string, error) {
	var games []string
	iter := client.Scan(ctx, 0, sessionPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		games = append(games, iter.Val()[len(sessionPrefix):])
	}
	return games, iter.Err()
}

const sessionPrefix = "puzzle:session:"

func SessionKey(gameID string) string {
	return sessionPrefix + gameID
}
