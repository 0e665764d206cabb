package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"assessment-service/internal/domain"
	"assessment-service/internal/puzzlestate"
	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// PuzzleService contains the puzzle play use cases.
type PuzzleService struct {
	store    Store
	games    DefinitionRepository
	sessions SessionRepository
	feed     *ActivityFeed
	now      func() time.Time
}

func NewPuzzleService(store Store, games DefinitionRepository, sessions SessionRepository, feed *ActivityFeed) *PuzzleService {
	return &PuzzleService{store: store, games: games, sessions: sessions, feed: feed, now: time.Now}
}

// WithClock is test-only for deterministic timestamps.
func (s *PuzzleService) WithClock(now func() time.Time) *PuzzleService {
	s.now = now
	return s
}

// PuzzleView is the read model of a puzzle attempt.
type PuzzleView struct {
	domain.PuzzleAttempt
	RemainingSeconds *int64 `json:"remainingSeconds,omitempty"`
}

// MoveInput carries the client's opaque move and the state it produced.
type MoveInput struct {
	MoveData json.RawMessage `json:"moveData"`
	State    json.RawMessage `json:"state"`
}

// CheckResult reports whether the checked state solves the puzzle.
type CheckResult struct {
	Solved  bool       `json:"solved"`
	Attempt PuzzleView `json:"attempt"`
}

// HintResult carries the revealed element and the updated attempt.
type HintResult struct {
	Hint    puzzlestate.Hint `json:"hint"`
	Attempt PuzzleView       `json:"attempt"`
}

// Start returns the caller's in-progress attempt or creates one.
// An expired in-progress attempt is finalized first.
func (s *PuzzleService) Start(ctx context.Context, actor domain.Actor, gameID string) (PuzzleView, error) {
	game, err := s.games.GetPuzzle(ctx, gameID)
	if err != nil {
		return PuzzleView{}, err
	}
	var view PuzzleView
	err = s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Lock(ctx, puzzleKey(gameID, actor.UserID)); err != nil {
			return err
		}
		now := s.now()
		current, err := tx.ActivePuzzleAttempt(ctx, gameID, actor.UserID)
		switch {
		case err == nil:
			if !current.Expire(game, now) {
				view = puzzleView(game, current, now)
				return nil
			}
			if err := tx.UpdatePuzzleAttempt(ctx, current); err != nil {
				return err
			}
		case !isNotFound(err):
			return err
		}

		a := domain.NewPuzzleAttempt(game, uuid.NewString(), actor.UserID, now)
		if err := tx.InsertPuzzleAttempt(ctx, a); err != nil {
			return err
		}
		entry, err := s.entry(ctx, tx, gameID, actor.UserID)
		if err != nil {
			return err
		}
		entry.TotalAttempts++
		entry.UpdatedAt = now
		if err := tx.UpsertLeaderboardEntry(ctx, entry); err != nil {
			return err
		}
		view = puzzleView(game, a, now)
		return nil
	})
	return view, err
}

// Move validates the new state against the puzzle type and appends it to the move log.
func (s *PuzzleService) Move(ctx context.Context, actor domain.Actor, attemptID string, in MoveInput) (PuzzleView, error) {
	if len(in.MoveData) > 0 && !json.Valid(in.MoveData) {
		return PuzzleView{}, domain.NewValidationError(errors.New("malformed move data"),
			domain.FieldError{Field: "moveData", Error: "must be valid JSON"})
	}
	return s.play(ctx, actor, attemptID, func(ctx context.Context, tx Tx, game domain.PuzzleGame, a *domain.PuzzleAttempt, now time.Time) error {
		state, err := puzzlestate.Normalize(game.Type, in.State)
		if err != nil {
			return err
		}
		a.CurrentState = state
		a.MovesCount++
		return s.appendMove(ctx, tx, a, in.MoveData, now)
	})
}

// CheckSolution compares the current state, or the submitted one, with the solution.
func (s *PuzzleService) CheckSolution(ctx context.Context, actor domain.Actor, attemptID string, state json.RawMessage) (CheckResult, error) {
	var (
		solved     bool
		activities []domain.Activity
		completed  bool
	)
	view, err := s.play(ctx, actor, attemptID, func(ctx context.Context, tx Tx, game domain.PuzzleGame, a *domain.PuzzleAttempt, now time.Time) error {
		if len(state) > 0 {
			normalized, err := puzzlestate.Normalize(game.Type, state)
			if err != nil {
				return err
			}
			a.CurrentState = normalized
			if err := s.appendMove(ctx, tx, a, json.RawMessage(`{"action":"check"}`), now); err != nil {
				return err
			}
		}
		a.MovesCount++
		ok, err := puzzlestate.Solved(game.Type, a.CurrentState, game.Solution)
		if err != nil {
			return err
		}
		solved = ok
		if !solved {
			return nil
		}
		a.Complete(game, now)
		completed = true
		activities, err = s.recordCompletion(ctx, tx, game, *a, now)
		return err
	})
	if err != nil {
		return CheckResult{}, err
	}
	if completed {
		s.feed.deliver(ctx, activities)
		s.broadcast(ctx, view.GameID)
	}
	return CheckResult{Solved: solved, Attempt: view}, nil
}

// Hint reveals one element of the solution and costs HintPenalty points on completion.
func (s *PuzzleService) Hint(ctx context.Context, actor domain.Actor, attemptID string) (HintResult, error) {
	var hint puzzlestate.Hint
	view, err := s.play(ctx, actor, attemptID, func(ctx context.Context, tx Tx, game domain.PuzzleGame, a *domain.PuzzleAttempt, now time.Time) error {
		if !game.HintAllowed(a.HintsUsed) {
			return domain.ErrHintLimit
		}
		next, revealed, ok, err := puzzlestate.RevealOne(game.Type, a.CurrentState, game.Solution)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNothingToReveal
		}
		hint = revealed
		a.CurrentState = next
		a.HintsUsed++
		data, err := json.Marshal(map[string]interface{}{"action": "hint", "hint": revealed})
		if err != nil {
			return errors.Wrap(err, "encode hint move")
		}
		return s.appendMove(ctx, tx, a, data, now)
	})
	if err != nil {
		return HintResult{}, err
	}
	return HintResult{Hint: hint, Attempt: view}, nil
}

// Abandon ends the caller's attempt without a score.
func (s *PuzzleService) Abandon(ctx context.Context, actor domain.Actor, attemptID string) (PuzzleView, error) {
	return s.play(ctx, actor, attemptID, func(_ context.Context, _ Tx, _ domain.PuzzleGame, a *domain.PuzzleAttempt, now time.Time) error {
		a.Abandon(now)
		return nil
	})
}

// Attempt returns the read model, applying the timeout policy when the limit passed.
func (s *PuzzleService) Attempt(ctx context.Context, actor domain.Actor, attemptID string) (PuzzleView, error) {
	var view PuzzleView
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		a, err := tx.PuzzleAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if a.UserID != actor.UserID && actor.Role != domain.RoleAdmin {
			return domain.ErrForbidden
		}
		game, err := s.games.GetPuzzle(ctx, a.GameID)
		if err != nil {
			return err
		}
		now := s.now()
		if a.Expire(game, now) {
			if err := tx.UpdatePuzzleAttempt(ctx, a); err != nil {
				return err
			}
		}
		view = puzzleView(game, a, now)
		return nil
	})
	return view, err
}

// Moves returns the audit trail of an attempt.
func (s *PuzzleService) Moves(ctx context.Context, actor domain.Actor, attemptID string) ([]domain.PuzzleMove, error) {
	var moves []domain.PuzzleMove
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		a, err := tx.PuzzleAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if a.UserID != actor.UserID && actor.Role != domain.RoleAdmin {
			return domain.ErrForbidden
		}
		moves, err = tx.PuzzleMoves(ctx, attemptID)
		return err
	})
	return moves, err
}

// play loads the caller's active attempt, applies the timeout policy, then step.
// A step on an attempt that just expired is rejected after the expiry is committed.
func (s *PuzzleService) play(ctx context.Context, actor domain.Actor, attemptID string,
	step func(ctx context.Context, tx Tx, game domain.PuzzleGame, a *domain.PuzzleAttempt, now time.Time) error) (PuzzleView, error) {
	var (
		view    PuzzleView
		expired bool
	)
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		a, err := tx.PuzzleAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if a.UserID != actor.UserID {
			return domain.ErrForbidden
		}
		if err := tx.Lock(ctx, puzzleKey(a.GameID, a.UserID)); err != nil {
			return err
		}
		game, err := s.games.GetPuzzle(ctx, a.GameID)
		if err != nil {
			return err
		}
		now := s.now()
		if a.Expire(game, now) {
			expired = true
			view = puzzleView(game, a, now)
			return tx.UpdatePuzzleAttempt(ctx, a)
		}
		if !a.Active() {
			return domain.ErrAttemptCompleted
		}
		if err := step(ctx, tx, game, &a, now); err != nil {
			return err
		}
		if err := tx.UpdatePuzzleAttempt(ctx, a); err != nil {
			return err
		}
		view = puzzleView(game, a, now)
		return nil
	})
	if err != nil {
		return PuzzleView{}, err
	}
	if expired {
		return view, domain.ErrPuzzleTimeExpired
	}
	return view, nil
}

func (s *PuzzleService) appendMove(ctx context.Context, tx Tx, a *domain.PuzzleAttempt, data json.RawMessage, now time.Time) error {
	moves, err := tx.PuzzleMoves(ctx, a.ID)
	if err != nil {
		return err
	}
	return tx.InsertPuzzleMove(ctx, domain.PuzzleMove{
		ID:         uuid.NewString(),
		AttemptID:  a.ID,
		Seq:        len(moves) + 1,
		MoveData:   data,
		StateAfter: a.CurrentState,
		CreatedAt:  now,
	})
}

// recordCompletion folds a completed attempt into the leaderboard and derives achievements.
func (s *PuzzleService) recordCompletion(ctx context.Context, tx Tx, game domain.PuzzleGame, a domain.PuzzleAttempt, now time.Time) ([]domain.Activity, error) {
	entry, err := s.entry(ctx, tx, game.ID, a.UserID)
	if err != nil {
		return nil, err
	}
	firstCompletion := entry.CompletedAttempts == 0
	best := entry.RecordCompletion(a.Score, a.TimeTakenSeconds, now)
	if err := tx.UpsertLeaderboardEntry(ctx, entry); err != nil {
		return nil, err
	}

	var activities []domain.Activity
	act, err := s.feed.record(ctx, tx, domain.ActivityPuzzleCompleted, a.UserID, a.ID,
		fmt.Sprintf("Solved %q in %ds for %d points", game.Title, a.TimeTakenSeconds, a.Score))
	if err != nil {
		return nil, err
	}
	activities = append(activities, act)
	if best && !firstCompletion {
		act, err := s.feed.record(ctx, tx, domain.ActivityPuzzlePersonalBest, a.UserID, a.ID,
			fmt.Sprintf("New personal best on %q: %d points", game.Title, entry.BestScore))
		if err != nil {
			return nil, err
		}
		activities = append(activities, act)
	}
	return activities, nil
}

func (s *PuzzleService) entry(ctx context.Context, tx Tx, gameID, userID string) (domain.LeaderboardEntry, error) {
	entry, err := tx.LeaderboardEntry(ctx, gameID, userID)
	if isNotFound(err) {
		return domain.LeaderboardEntry{GameID: gameID, UserID: userID}, nil
	}
	return entry, err
}

// Leaderboard returns the ranked entries of a game.
func (s *PuzzleService) Leaderboard(ctx context.Context, gameID string, limit int) (domain.Leaderboard, error) {
	if _, err := s.games.GetPuzzle(ctx, gameID); err != nil {
		return domain.Leaderboard{}, err
	}
	var entries []domain.LeaderboardEntry
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		entries, err = tx.Leaderboard(ctx, gameID, limit)
		return err
	})
	if err != nil {
		return domain.Leaderboard{}, err
	}
	domain.SortLeaderboard(entries)
	return domain.Leaderboard{GameID: gameID, Entries: entries, UpdatedAt: s.now()}, nil
}

// Watch registers a viewer of a game's live leaderboard. The caller must invoke
// the returned cancel function to avoid leaks.
func (s *PuzzleService) Watch(ctx context.Context, gameID, userID string) (<-chan domain.Leaderboard, func(), error) {
	lb, err := s.Leaderboard(ctx, gameID, leaderboardSize)
	if err != nil {
		return nil, nil, err
	}
	session := s.joinSession(gameID, userID)
	session.publish(lb.Entries)
	ch, unsubscribe := session.subscribe()
	cancel := func() {
		unsubscribe()
		session.leave(userID)
		if session.IsEmpty() {
			s.sessions.DeleteIfEmpty(gameID)
		}
	}
	return ch, cancel, nil
}

const leaderboardSize = 20

// joinSession adds the viewer to the registered session of the game. A session
// dropped by DeleteIfEmpty between lookup and join is left and looked up again.
func (s *PuzzleService) joinSession(gameID, userID string) *Session {
	for {
		session := s.sessions.GetOrCreate(gameID)
		session.join(userID)
		if current, ok := s.sessions.Get(gameID); ok && current == session {
			return session
		}
		session.leave(userID)
	}
}

// broadcast pushes a fresh leaderboard to live viewers, if any.
func (s *PuzzleService) broadcast(ctx context.Context, gameID string) {
	session, ok := s.sessions.Get(gameID)
	if !ok {
		return
	}
	lb, err := s.Leaderboard(ctx, gameID, leaderboardSize)
	if err != nil {
		glog.Warningf("broadcast leaderboard %s: %v", gameID, err)
		return
	}
	session.publish(lb.Entries)
}

// SweepExpired applies the timeout policy to every active attempt past its limit.
func (s *PuzzleService) SweepExpired(ctx context.Context) (int, error) {
	expired := 0
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		active, err := tx.ActivePuzzleAttempts(ctx)
		if err != nil {
			return err
		}
		now := s.now()
		for _, a := range active {
			game, err := s.games.GetPuzzle(ctx, a.GameID)
			if err != nil {
				return err
			}
			if !a.Expire(game, now) {
				continue
			}
			if err := tx.UpdatePuzzleAttempt(ctx, a); err != nil {
				return err
			}
			expired++
		}
		return nil
	})
	return expired, err
}

func puzzleView(game domain.PuzzleGame, a domain.PuzzleAttempt, now time.Time) PuzzleView {
	v := PuzzleView{PuzzleAttempt: a}
	if !a.Active() {
		return v
	}
	if left, ok := a.Remaining(game, now); ok {
		secs := int64(left / time.Second)
		v.RemainingSeconds = &secs
	}
	return v
}

func puzzleKey(gameID, userID string) string {
	return "puzzle:" + gameID + ":" + userID
}
