package app

import (
	"context"
	"fmt"
	"time"

	"assessment-service/internal/domain"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// QuizService contains the quiz attempt use cases.
type QuizService struct {
	store   Store
	quizzes DefinitionRepository
	feed    *ActivityFeed
	now     func() time.Time
}

func NewQuizService(store Store, quizzes DefinitionRepository, feed *ActivityFeed) *QuizService {
	return &QuizService{store: store, quizzes: quizzes, feed: feed, now: time.Now}
}

// WithClock is test-only for deterministic timestamps.
func (s *QuizService) WithClock(now func() time.Time) *QuizService {
	s.now = now
	return s
}

// QuizResult is the read model of a quiz attempt.
type QuizResult struct {
	Attempt domain.QuizAttempt     `json:"attempt"`
	Answers []domain.StudentAnswer `json:"answers"`
}

// Start returns the student's in-progress attempt or creates one.
func (s *QuizService) Start(ctx context.Context, actor domain.Actor, quizID string) (domain.QuizAttempt, error) {
	// Preload quiz into cache; students cannot start unknown quizzes.
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return domain.QuizAttempt{}, err
	}

	var attempt domain.QuizAttempt
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Lock(ctx, "quiz:"+quizID+":"+actor.UserID); err != nil {
			return err
		}
		existing, err := tx.QuizAttempts(ctx, quizID, actor.UserID)
		if err != nil {
			return err
		}
		for _, a := range existing {
			if a.Status == domain.QuizAttemptInProgress {
				attempt = a
				return nil
			}
		}
		attempt = domain.QuizAttempt{
			ID:          uuid.NewString(),
			QuizID:      quizID,
			StudentID:   actor.UserID,
			Status:      domain.QuizAttemptInProgress,
			AttemptedAt: s.now(),
		}
		return tx.InsertQuizAttempt(ctx, attempt)
	})
	return attempt, err
}

// Submit scores a batch of answers and completes the attempt. Any invalid
// submission rejects the whole batch.
func (s *QuizService) Submit(ctx context.Context, actor domain.Actor, attemptID string, submissions []domain.AnswerSubmission) (QuizResult, error) {
	var (
		result     QuizResult
		activities []domain.Activity
	)
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		attempt, err := tx.QuizAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if attempt.StudentID != actor.UserID {
			return domain.ErrForbidden
		}
		if err := tx.Lock(ctx, "quiz:"+attempt.QuizID+":"+attempt.StudentID); err != nil {
			return err
		}
		if attempt.Status != domain.QuizAttemptInProgress {
			return domain.ErrAttemptCompleted
		}
		quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
		if err != nil {
			return err
		}

		answers, score, err := scoreBatch(quiz, attempt.ID, submissions)
		if err != nil {
			return err
		}
		if err := tx.InsertStudentAnswers(ctx, answers); err != nil {
			return err
		}

		now := s.now()
		total := quiz.TotalPoints()
		attempt.Status = domain.QuizAttemptCompleted
		attempt.CompletedAt = &now
		attempt.Score = score
		attempt.TotalPoints = total
		attempt.Percentage = domain.Percentage(float64(score), float64(total))
		attempt.IsPassed = attempt.Percentage >= quiz.PassingScore
		if err := tx.UpdateQuizAttempt(ctx, attempt); err != nil {
			return err
		}

		if attempt.IsPassed {
			a, err := s.feed.record(ctx, tx, domain.ActivityQuizPassed, attempt.StudentID, quiz.ID,
				fmt.Sprintf("Passed quiz %q with %.2f%%", quiz.Title, attempt.Percentage))
			if err != nil {
				return err
			}
			activities = append(activities, a)
		}
		result = QuizResult{Attempt: attempt, Answers: answers}
		return nil
	})
	if err != nil {
		return QuizResult{}, err
	}
	s.feed.deliver(ctx, activities)
	return result, nil
}

// Result returns an attempt with its stored answers.
func (s *QuizService) Result(ctx context.Context, actor domain.Actor, attemptID string) (QuizResult, error) {
	var result QuizResult
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		attempt, err := tx.QuizAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if attempt.StudentID != actor.UserID && actor.Role == domain.RoleStudent {
			return domain.ErrForbidden
		}
		answers, err := tx.StudentAnswers(ctx, attemptID)
		if err != nil {
			return err
		}
		result = QuizResult{Attempt: attempt, Answers: answers}
		return nil
	})
	return result, err
}

// scoreBatch validates every submission before any answer is kept.
func scoreBatch(quiz domain.Quiz, attemptID string, submissions []domain.AnswerSubmission) ([]domain.StudentAnswer, int, error) {
	if len(submissions) == 0 {
		return nil, 0, domain.NewValidationError(errors.New("no answers submitted"),
			domain.FieldError{Field: "answers", Error: "at least one answer is required"})
	}
	seen := make(map[string]struct{}, len(submissions))
	answers := make([]domain.StudentAnswer, 0, len(submissions))
	score := 0
	for _, sub := range submissions {
		if err := domain.ValidateStruct(sub); err != nil {
			return nil, 0, err
		}
		if _, dup := seen[sub.QuestionID]; dup {
			return nil, 0, errors.Wrapf(domain.ErrAnswerExists, "question %s", sub.QuestionID)
		}
		seen[sub.QuestionID] = struct{}{}

		correct, points, err := scoreSubmission(quiz, sub)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "question %s", sub.QuestionID)
		}
		score += points
		answers = append(answers, domain.StudentAnswer{
			AttemptID:        attemptID,
			QuestionID:       sub.QuestionID,
			SelectedAnswerID: sub.OptionID,
			IsCorrect:        correct,
			Points:           points,
		})
	}
	return answers, score, nil
}

// scoreSubmission validates the answer against quiz content and returns (correct, points).
func scoreSubmission(quiz domain.Quiz, submission domain.AnswerSubmission) (bool, int, error) {
	var question *domain.Question
	for i := range quiz.Questions {
		if quiz.Questions[i].ID == submission.QuestionID {
			question = &quiz.Questions[i]
			break
		}
	}
	if question == nil {
		return false, 0, domain.ErrQuestionNotFound
	}

	var selected *domain.Option
	for i := range question.Options {
		if question.Options[i].ID == submission.OptionID {
			selected = &question.Options[i]
			break
		}
	}
	if selected == nil {
		return false, 0, domain.ErrOptionNotFound
	}

	if selected.Correct {
		return true, question.EffectivePoints(), nil
	}
	return false, 0, nil
}
