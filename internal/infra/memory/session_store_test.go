package memory

import (
	"testing"
	"time"
)

func TestSessionStoreLifecycle(t *testing.T) {
	created := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	store := NewSessionStore().WithClock(func() time.Time { return created })

	session := store.GetOrCreate("sudoku-demo")
	if session == nil {
		t.Fatalf("expected session")
	}
	if again := store.GetOrCreate("sudoku-demo"); again != session {
		t.Fatalf("expected the same session for one game")
	}
	if _, ok := store.Get("sudoku-demo"); !ok {
		t.Fatalf("expected session present")
	}
	if got := session.Snapshot().UpdatedAt; !got.Equal(created) {
		t.Fatalf("expected snapshot stamped by store clock, got %v", got)
	}
	store.GetOrCreate("word-demo")
	if store.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", store.Len())
	}

	store.DeleteIfEmpty("sudoku-demo")
	if _, ok := store.Get("sudoku-demo"); ok {
		t.Fatalf("expected session removed when empty")
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 session left, got %d", store.Len())
	}
}
