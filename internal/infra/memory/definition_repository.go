package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"assessment-service/internal/app"
	"assessment-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// DefinitionRepository caches exam, quiz and puzzle definitions with TTL to avoid repeated DB hits.
// Definitions are immutable once published, so a stale entry is never wrong for long.
type DefinitionRepository struct {
	loader app.DefinitionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedDefinition
}

type cachedDefinition struct {
	value     interface{}
	expiresAt time.Time
}

var _ app.DefinitionRepository = (*DefinitionRepository)(nil)

func NewDefinitionRepository(loader app.DefinitionLoader, ttl time.Duration) *DefinitionRepository {
	return &DefinitionRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedDefinition),
	}
}

// WithClock is test-only.
func (r *DefinitionRepository) WithClock(clock func() time.Time) *DefinitionRepository {
	r.clock = clock
	return r
}

func (r *DefinitionRepository) GetExam(ctx context.Context, examID string) (domain.ExamDefinition, error) {
	v, err := r.get(ctx, "exam:"+examID, func() (interface{}, error) {
		return r.loader.LoadExam(ctx, examID)
	})
	if err != nil {
		return domain.ExamDefinition{}, err
	}
	return v.(domain.ExamDefinition), nil
}

func (r *DefinitionRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	v, err := r.get(ctx, "quiz:"+quizID, func() (interface{}, error) {
		return r.loader.LoadQuiz(ctx, quizID)
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return v.(domain.Quiz), nil
}

func (r *DefinitionRepository) GetPuzzle(ctx context.Context, gameID string) (domain.PuzzleGame, error) {
	v, err := r.get(ctx, "puzzle:"+gameID, func() (interface{}, error) {
		return r.loader.LoadPuzzle(ctx, gameID)
	})
	if err != nil {
		return domain.PuzzleGame{}, err
	}
	return v.(domain.PuzzleGame), nil
}

func (r *DefinitionRepository) get(_ context.Context, key string, load func() (interface{}, error)) (interface{}, error) {
	if v, ok := r.lookup(key, r.clock()); ok {
		return v, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		now := r.clock()
		if v, ok := r.lookup(key, now); ok {
			return v, nil
		}

		v, err := load()
		if err != nil {
			return nil, err
		}

		expiresAt := now.Add(r.ttlWithJitter())
		r.mu.Lock()
		r.cache[key] = cachedDefinition{value: v, expiresAt: expiresAt}
		r.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *DefinitionRepository) lookup(key string, now time.Time) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[key]
	if !ok || !entry.expiresAt.After(now) {
		return nil, false
	}
	return entry.value, true
}

func (r *DefinitionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
