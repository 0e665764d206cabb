package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleGame(policy TimeoutPolicy) PuzzleGame {
	return PuzzleGame{
		ID:               "game-1",
		Title:            "Daily logic",
		Type:             PuzzleLogic,
		InitialState:     json.RawMessage(`{"a":""}`),
		Solution:         json.RawMessage(`{"a":"x"}`),
		MaxScore:         100,
		TimeLimitSeconds: 1800,
		HintPenalty:      15,
		MaxHints:         3,
		TimeoutPolicy:    policy,
	}
}

func TestScoreForAppliesHintPenalty(t *testing.T) {
	game := sampleGame(TimeoutAutoSolve)
	assert.Equal(t, 100, game.ScoreFor(0))
	assert.Equal(t, 70, game.ScoreFor(2))
	assert.Equal(t, 0, game.ScoreFor(7))

	assert.True(t, game.HintAllowed(2))
	assert.False(t, game.HintAllowed(3))
	game.MaxHints = 0
	assert.True(t, game.HintAllowed(50))
}

func TestPuzzleExpiryPolicies(t *testing.T) {
	start := time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)
	late := start.Add(1801 * time.Second)

	game := sampleGame(TimeoutAutoSolve)
	a := NewPuzzleAttempt(game, "pa-1", "u1", start)
	assert.False(t, a.Expire(game, start.Add(10*time.Minute)))
	require.True(t, a.Expire(game, late))
	assert.Equal(t, PuzzleAutoSolved, a.Status)
	assert.JSONEq(t, `{"a":"x"}`, string(a.CurrentState))
	assert.Equal(t, 0, a.Score)
	assert.Equal(t, 1800, a.TimeTakenSeconds)

	game = sampleGame(TimeoutAbandon)
	a = NewPuzzleAttempt(game, "pa-2", "u1", start)
	require.True(t, a.Expire(game, late))
	assert.Equal(t, PuzzleAbandoned, a.Status)
	assert.JSONEq(t, `{"a":""}`, string(a.CurrentState))

	game.TimeLimitSeconds = 0
	a = NewPuzzleAttempt(game, "pa-3", "u1", start)
	assert.False(t, a.Expire(game, start.Add(24*time.Hour)))
	_, timed := a.Remaining(game, start)
	assert.False(t, timed)
}

func TestCompleteRecordsTime(t *testing.T) {
	start := time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)
	game := sampleGame(TimeoutAutoSolve)
	a := NewPuzzleAttempt(game, "pa-1", "u1", start)
	a.HintsUsed = 1

	a.Complete(game, start.Add(95*time.Second))
	assert.Equal(t, PuzzleCompleted, a.Status)
	assert.Equal(t, 85, a.Score)
	assert.Equal(t, 95, a.TimeTakenSeconds)
	assert.False(t, a.Active())
}

func TestLeaderboardRecordCompletion(t *testing.T) {
	now := time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)
	e := LeaderboardEntry{GameID: "game-1", UserID: "u1", TotalAttempts: 3}

	assert.True(t, e.RecordCompletion(70, 300, now))
	assert.False(t, e.RecordCompletion(60, 200, now))
	assert.True(t, e.RecordCompletion(90, 400, now))

	assert.Equal(t, 90, e.BestScore)
	assert.Equal(t, 200, e.BestTimeSeconds)
	assert.Equal(t, 3, e.CompletedAttempts)
	assert.Equal(t, 3, e.TotalAttempts)
}

func TestSortLeaderboard(t *testing.T) {
	now := time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)
	entries := []LeaderboardEntry{
		{UserID: "c", BestScore: 80, BestTimeSeconds: 100, UpdatedAt: now},
		{UserID: "a", BestScore: 90, BestTimeSeconds: 300, UpdatedAt: now},
		{UserID: "b", BestScore: 80, BestTimeSeconds: 90, UpdatedAt: now},
	}
	SortLeaderboard(entries)
	assert.Equal(t, "a", entries[0].UserID)
	assert.Equal(t, "b", entries[1].UserID)
	assert.Equal(t, "c", entries[2].UserID)
}
