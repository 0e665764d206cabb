package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"assessment-service/internal/app"
	"assessment-service/internal/domain"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// DefinitionRepository caches definitions in Redis as JSON documents and falls back to a loader on cache miss.
// Keys: definition:exam:{id}, definition:quiz:{id}, definition:puzzle:{id}
type DefinitionRepository struct {
	client *redis.Client
	loader app.DefinitionLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

var _ app.DefinitionRepository = (*DefinitionRepository)(nil)

func NewDefinitionRepository(client *redis.Client, loader app.DefinitionLoader, ttl time.Duration) *DefinitionRepository {
	return &DefinitionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *DefinitionRepository) GetExam(ctx context.Context, examID string) (domain.ExamDefinition, error) {
	var def domain.ExamDefinition
	err := r.get(ctx, definitionKey("exam", examID), &def, func() (interface{}, error) {
		return r.loader.LoadExam(ctx, examID)
	})
	return def, err
}

func (r *DefinitionRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := r.get(ctx, definitionKey("quiz", quizID), &quiz, func() (interface{}, error) {
		return r.loader.LoadQuiz(ctx, quizID)
	})
	return quiz, err
}

func (r *DefinitionRepository) GetPuzzle(ctx context.Context, gameID string) (domain.PuzzleGame, error) {
	var game domain.PuzzleGame
	err := r.get(ctx, definitionKey("puzzle", gameID), &game, func() (interface{}, error) {
		return r.loader.LoadPuzzle(ctx, gameID)
	})
	return game, err
}

// get decodes the cached document into out, loading and caching it on a miss.
// A Redis outage degrades to loading from the backing store.
func (r *DefinitionRepository) get(ctx context.Context, key string, out interface{}, load func() (interface{}, error)) error {
	if ok := r.fromCache(ctx, key, out); ok {
		return nil
	}

	raw, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if data, err := r.client.Get(ctx, key).Bytes(); err == nil {
			return data, nil
		}

		v, err := load()
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrapf(err, "encode %s", key)
		}
		if err := r.client.Set(ctx, key, data, r.ttlWithJitter()).Err(); err != nil {
			glog.Warningf("cache %s: %v", key, err)
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	return errors.Wrapf(json.Unmarshal(raw.([]byte), out), "decode %s", key)
}

func (r *DefinitionRepository) fromCache(ctx context.Context, key string, out interface{}) bool {
	data, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == redis.Nil:
		return false
	case err != nil:
		glog.V(2).Infof("cache read %s: %v", key, err)
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		glog.Warningf("drop corrupt cache entry %s: %v", key, err)
		_ = r.client.Del(ctx, key).Err()
		return false
	}
	return true
}

func definitionKey(kind, id string) string {
	return "definition:" + kind + ":" + id
}

func (r *DefinitionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
