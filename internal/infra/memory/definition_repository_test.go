package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"assessment-service/internal/domain"
)

type stubLoader struct {
	calls int32
	delay time.Duration
}

func (l *stubLoader) LoadExam(_ context.Context, examID string) (domain.ExamDefinition, error) {
	atomic.AddInt32(&l.calls, 1)
	return domain.ExamDefinition{}, domain.ErrExamNotFound
}

func (l *stubLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	atomic.AddInt32(&l.calls, 1)
	time.Sleep(l.delay)
	return domain.Quiz{ID: quizID, Title: "cached"}, nil
}

func (l *stubLoader) LoadPuzzle(_ context.Context, gameID string) (domain.PuzzleGame, error) {
	atomic.AddInt32(&l.calls, 1)
	return domain.PuzzleGame{ID: gameID}, nil
}

func TestDefinitionRepositoryCachesUntilExpiry(t *testing.T) {
	ctx := context.Background()
	loader := &stubLoader{}
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	repo := NewDefinitionRepository(loader, time.Minute).WithClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		quiz, err := repo.GetQuiz(ctx, "quiz-1")
		if err != nil {
			t.Fatalf("get quiz: %v", err)
		}
		if quiz.ID != "quiz-1" {
			t.Fatalf("unexpected quiz %+v", quiz)
		}
	}
	if got := atomic.LoadInt32(&loader.calls); got != 1 {
		t.Fatalf("expected 1 load, got %d", got)
	}

	// a puzzle with the same id lives under its own key
	if _, err := repo.GetPuzzle(ctx, "quiz-1"); err != nil {
		t.Fatalf("get puzzle: %v", err)
	}
	if got := atomic.LoadInt32(&loader.calls); got != 2 {
		t.Fatalf("expected 2 loads, got %d", got)
	}

	// ttl plus at most 10% jitter
	now = now.Add(67 * time.Second)
	if _, err := repo.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if got := atomic.LoadInt32(&loader.calls); got != 3 {
		t.Fatalf("expected reload after expiry, got %d loads", got)
	}
}

func TestDefinitionRepositoryDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	loader := &stubLoader{}
	repo := NewDefinitionRepository(loader, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := repo.GetExam(ctx, "missing"); !errors.Is(err, domain.ErrExamNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	}
	if got := atomic.LoadInt32(&loader.calls); got != 2 {
		t.Fatalf("expected every miss to reach the loader, got %d", got)
	}
}

func TestDefinitionRepositoryCollapsesConcurrentLoads(t *testing.T) {
	ctx := context.Background()
	loader := &stubLoader{delay: 50 * time.Millisecond}
	repo := NewDefinitionRepository(loader, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.GetQuiz(ctx, "quiz-1"); err != nil {
				t.Errorf("get quiz: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := atomic.LoadInt32(&loader.calls); got != 1 {
		t.Fatalf("expected a single load, got %d", got)
	}
}
