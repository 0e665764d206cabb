package app

import (
	"context"

	"assessment-service/internal/domain"
)

// Store abstracts the transactional record store (in-memory, Postgres).
type Store interface {
	// Atomically runs fn in one transaction. Returning an error rolls everything back.
	Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of repositories visible inside a transaction. Lookups of a
// single record return a domain not-found error when it is absent.
type Tx interface {
	// Lock serializes check-then-insert sequences on key until the transaction ends.
	Lock(ctx context.Context, key string) error

	CatalogRepository
	ExamRepository
	QuizAttemptRepository
	PuzzleRepository
	PaymentRepository
	ActivityRepository
}

type CatalogRepository interface {
	Category(ctx context.Context, id string) (domain.Category, error)
	InsertCategory(ctx context.Context, c domain.Category) error
	Course(ctx context.Context, id string) (domain.Course, error)
	InsertCourse(ctx context.Context, c domain.Course) error

	ExamDefinition(ctx context.Context, examID string) (domain.ExamDefinition, error)
	InsertExamDefinition(ctx context.Context, def domain.ExamDefinition) error
	Quiz(ctx context.Context, quizID string) (domain.Quiz, error)
	InsertQuiz(ctx context.Context, quiz domain.Quiz) error
	PuzzleGame(ctx context.Context, gameID string) (domain.PuzzleGame, error)
	InsertPuzzleGame(ctx context.Context, game domain.PuzzleGame) error
}

type ExamRepository interface {
	Verification(ctx context.Context, examID, studentID string) (domain.ExamVerification, error)
	UpsertVerification(ctx context.Context, v domain.ExamVerification) error

	Schedules(ctx context.Context, examID, studentID string) ([]domain.ExamSchedule, error)
	InsertSchedule(ctx context.Context, s domain.ExamSchedule) error

	// ExamAttempts returns a student's attempts ordered by attempt number.
	ExamAttempts(ctx context.Context, examID, studentID string) ([]domain.ExamAttempt, error)
	ExamAttemptsByExam(ctx context.Context, examID string) ([]domain.ExamAttempt, error)
	ActiveExamAttempts(ctx context.Context) ([]domain.ExamAttempt, error)
	ExamAttempt(ctx context.Context, id string) (domain.ExamAttempt, error)
	// InsertExamAttempt fails with ErrDuplicateAttempt when the student already has an active attempt.
	InsertExamAttempt(ctx context.Context, a domain.ExamAttempt) error
	UpdateExamAttempt(ctx context.Context, a domain.ExamAttempt) error

	ExamAnswers(ctx context.Context, attemptID string) ([]domain.ExamAnswer, error)
	// InsertExamAnswer fails with ErrAnswerExists for a second answer to the same question.
	InsertExamAnswer(ctx context.Context, a domain.ExamAnswer) error

	InternalMark(ctx context.Context, examID, studentID string) (domain.InternalMark, error)
	UpsertInternalMark(ctx context.Context, m domain.InternalMark) error

	CertificateByAttempt(ctx context.Context, attemptID string) (domain.ExamCertificate, error)
	InsertCertificate(ctx context.Context, c domain.ExamCertificate) error

	MissedRequests(ctx context.Context, examID, studentID string) ([]domain.MissedExamRequest, error)
	PendingMissedRequests(ctx context.Context, examID string) ([]domain.MissedExamRequest, error)
	MissedRequest(ctx context.Context, id string) (domain.MissedExamRequest, error)
	InsertMissedRequest(ctx context.Context, r domain.MissedExamRequest) error
	UpdateMissedRequest(ctx context.Context, r domain.MissedExamRequest) error
}

type QuizAttemptRepository interface {
	QuizAttempts(ctx context.Context, quizID, studentID string) ([]domain.QuizAttempt, error)
	QuizAttempt(ctx context.Context, id string) (domain.QuizAttempt, error)
	InsertQuizAttempt(ctx context.Context, a domain.QuizAttempt) error
	UpdateQuizAttempt(ctx context.Context, a domain.QuizAttempt) error
	StudentAnswers(ctx context.Context, attemptID string) ([]domain.StudentAnswer, error)
	InsertStudentAnswers(ctx context.Context, answers []domain.StudentAnswer) error
}

type PuzzleRepository interface {
	ActivePuzzleAttempt(ctx context.Context, gameID, userID string) (domain.PuzzleAttempt, error)
	ActivePuzzleAttempts(ctx context.Context) ([]domain.PuzzleAttempt, error)
	PuzzleAttempt(ctx context.Context, id string) (domain.PuzzleAttempt, error)
	InsertPuzzleAttempt(ctx context.Context, a domain.PuzzleAttempt) error
	UpdatePuzzleAttempt(ctx context.Context, a domain.PuzzleAttempt) error
	PuzzleMoves(ctx context.Context, attemptID string) ([]domain.PuzzleMove, error)
	InsertPuzzleMove(ctx context.Context, m domain.PuzzleMove) error

	LeaderboardEntry(ctx context.Context, gameID, userID string) (domain.LeaderboardEntry, error)
	UpsertLeaderboardEntry(ctx context.Context, e domain.LeaderboardEntry) error
	// Leaderboard returns the top entries in leaderboard order; limit <= 0 means all.
	Leaderboard(ctx context.Context, gameID string, limit int) ([]domain.LeaderboardEntry, error)
}

type PaymentRepository interface {
	// InsertPayment fails with ErrPaymentExists when the transaction id was already recorded.
	InsertPayment(ctx context.Context, p domain.Payment) error
	UpdatePayment(ctx context.Context, p domain.Payment) error
	Payments(ctx context.Context, examID, studentID string, purpose domain.PaymentPurpose) ([]domain.Payment, error)
}

type ActivityRepository interface {
	InsertActivity(ctx context.Context, a domain.Activity) error
	Activities(ctx context.Context, userID string, limit int) ([]domain.Activity, error)
}

// DefinitionLoader fetches definitions from a backing store.
type DefinitionLoader interface {
	LoadExam(ctx context.Context, examID string) (domain.ExamDefinition, error)
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	LoadPuzzle(ctx context.Context, gameID string) (domain.PuzzleGame, error)
}

// DefinitionRepository serves definitions, usually from a cache in front of a DefinitionLoader.
type DefinitionRepository interface {
	GetExam(ctx context.Context, examID string) (domain.ExamDefinition, error)
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	GetPuzzle(ctx context.Context, gameID string) (domain.PuzzleGame, error)
}
