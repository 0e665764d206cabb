package domain

import (
	"encoding/json"
	"sort"
	"time"
)

type PuzzleType string

const (
	PuzzleSudoku PuzzleType = "Sudoku"
	PuzzleWord   PuzzleType = "WordPuzzle"
	PuzzleLogic  PuzzleType = "LogicPuzzle"
)

// TimeoutPolicy decides what happens to an unsolved attempt past the time limit.
type TimeoutPolicy string

const (
	TimeoutAutoSolve TimeoutPolicy = "autosolve"
	TimeoutAbandon   TimeoutPolicy = "abandon"
)

// PuzzleGame is a static definition. InitialState and Solution are encoded
// per Type by the puzzlestate package.
type PuzzleGame struct {
	ID               string          `json:"id" validate:"required"`
	Title            string          `json:"title" validate:"required,max=200"`
	Type             PuzzleType      `json:"type" validate:"required,oneof=Sudoku WordPuzzle LogicPuzzle"`
	InitialState     json.RawMessage `json:"initialState" validate:"required"`
	Solution         json.RawMessage `json:"solution" validate:"required"`
	MaxScore         int             `json:"maxScore" validate:"gt=0"`
	TimeLimitSeconds int             `json:"timeLimitSeconds" validate:"gte=0"`
	HintPenalty      int             `json:"hintPenalty" validate:"gte=0"`
	MaxHints         int             `json:"maxHints" validate:"gte=0"`
	TimeoutPolicy    TimeoutPolicy   `json:"timeoutPolicy" validate:"omitempty,oneof=autosolve abandon"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// TimeLimit returns zero when the game is untimed.
func (g PuzzleGame) TimeLimit() time.Duration {
	return time.Duration(g.TimeLimitSeconds) * time.Second
}

// ScoreFor applies the hint penalty: MaxScore - hints*HintPenalty, floored at zero.
func (g PuzzleGame) ScoreFor(hints int) int {
	score := g.MaxScore - hints*g.HintPenalty
	if score < 0 {
		return 0
	}
	return score
}

// HintAllowed reports whether another hint fits under MaxHints (0 means unlimited).
func (g PuzzleGame) HintAllowed(used int) bool {
	return g.MaxHints == 0 || used < g.MaxHints
}

type PuzzleStatus string

const (
	PuzzleInProgress PuzzleStatus = "InProgress"
	PuzzleCompleted  PuzzleStatus = "Completed"
	PuzzleAbandoned  PuzzleStatus = "Abandoned"
	PuzzleAutoSolved PuzzleStatus = "AutoSolved"
)

// PuzzleAttempt is one play session of a user on a game.
type PuzzleAttempt struct {
	ID               string          `json:"id"`
	GameID           string          `json:"gameId"`
	UserID           string          `json:"userId"`
	CurrentState     json.RawMessage `json:"currentState"`
	Status           PuzzleStatus    `json:"status"`
	Score            int             `json:"score"`
	HintsUsed        int             `json:"hintsUsed"`
	MovesCount       int             `json:"movesCount"`
	StartedAt        time.Time       `json:"startedAt"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
	TimeTakenSeconds int             `json:"timeTakenSeconds"`
}

// NewPuzzleAttempt starts from the game's initial state.
func NewPuzzleAttempt(game PuzzleGame, id, userID string, now time.Time) PuzzleAttempt {
	return PuzzleAttempt{
		ID:           id,
		GameID:       game.ID,
		UserID:       userID,
		CurrentState: append(json.RawMessage(nil), game.InitialState...),
		Status:       PuzzleInProgress,
		StartedAt:    now,
	}
}

func (a PuzzleAttempt) Active() bool { return a.Status == PuzzleInProgress }

// Elapsed is the play time up to now, or up to completion for finished attempts.
func (a PuzzleAttempt) Elapsed(now time.Time) time.Duration {
	end := now
	if a.CompletedAt != nil {
		end = *a.CompletedAt
	}
	if end.Before(a.StartedAt) {
		return 0
	}
	return end.Sub(a.StartedAt)
}

// Remaining returns the time left, ok is false for untimed games.
func (a PuzzleAttempt) Remaining(game PuzzleGame, now time.Time) (time.Duration, bool) {
	limit := game.TimeLimit()
	if limit <= 0 {
		return 0, false
	}
	left := limit - a.Elapsed(now)
	if left < 0 {
		left = 0
	}
	return left, true
}

// Expired reports whether an active attempt ran past the game's time limit.
func (a PuzzleAttempt) Expired(game PuzzleGame, now time.Time) bool {
	limit := game.TimeLimit()
	return a.Active() && limit > 0 && a.Elapsed(now) > limit
}

// Expire applies the game's timeout policy. It returns false when the attempt is not expired.
func (a *PuzzleAttempt) Expire(game PuzzleGame, now time.Time) bool {
	if !a.Expired(game, now) {
		return false
	}
	deadline := a.StartedAt.Add(game.TimeLimit())
	switch game.TimeoutPolicy {
	case TimeoutAbandon:
		a.Status = PuzzleAbandoned
	default:
		a.Status = PuzzleAutoSolved
		a.CurrentState = append(json.RawMessage(nil), game.Solution...)
	}
	a.Score = 0
	a.finish(deadline)
	return true
}

// Complete marks a solved attempt and applies the hint penalty.
func (a *PuzzleAttempt) Complete(game PuzzleGame, now time.Time) {
	a.Status = PuzzleCompleted
	a.Score = game.ScoreFor(a.HintsUsed)
	a.finish(now)
}

// Abandon is the owner giving up.
func (a *PuzzleAttempt) Abandon(now time.Time) {
	a.Status = PuzzleAbandoned
	a.Score = 0
	a.finish(now)
}

func (a *PuzzleAttempt) finish(at time.Time) {
	a.CompletedAt = timePtr(at)
	a.TimeTakenSeconds = int(a.Elapsed(at) / time.Second)
}

// PuzzleMove is an append-only audit record of a state transition.
type PuzzleMove struct {
	ID         string          `json:"id"`
	AttemptID  string          `json:"attemptId"`
	Seq        int             `json:"seq"`
	MoveData   json.RawMessage `json:"moveData,omitempty"`
	StateAfter json.RawMessage `json:"stateAfter"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// LeaderboardEntry is the best-score aggregate for one (game, user).
type LeaderboardEntry struct {
	GameID            string    `json:"gameId"`
	UserID            string    `json:"userId"`
	BestScore         int       `json:"bestScore"`
	BestTimeSeconds   int       `json:"bestTimeSeconds"`
	CompletedAttempts int       `json:"completedAttempts"`
	TotalAttempts     int       `json:"totalAttempts"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// RecordCompletion folds a completed attempt into the aggregate and reports a personal best.
func (e *LeaderboardEntry) RecordCompletion(score, seconds int, now time.Time) bool {
	first := e.CompletedAttempts == 0
	improved := first || score > e.BestScore
	if improved {
		e.BestScore = score
	}
	if first || seconds < e.BestTimeSeconds {
		e.BestTimeSeconds = seconds
	}
	e.CompletedAttempts++
	e.UpdatedAt = now
	return improved
}

// Leaderboard captures the ordered scoreboard of a game.
type Leaderboard struct {
	GameID    string             `json:"gameId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// SortLeaderboard orders by best score, then best time, then who got there first.
func SortLeaderboard(entries []LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.BestScore != b.BestScore {
			return a.BestScore > b.BestScore
		}
		if a.BestTimeSeconds != b.BestTimeSeconds {
			return a.BestTimeSeconds < b.BestTimeSeconds
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		return a.UserID < b.UserID
	})
}
