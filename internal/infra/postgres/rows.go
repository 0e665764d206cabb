package postgres

import (
	"time"

	"assessment-service/internal/domain"
	"github.com/uptrace/bun"
)

// Each table keeps the columns that queries filter, order or constrain on,
// plus the full record as JSONB.

type categoryRow struct {
	bun.BaseModel `bun:"table:categories"`
	ID            string          `bun:"id,pk"`
	Data          domain.Category `bun:"data,type:jsonb"`
}

type courseRow struct {
	bun.BaseModel `bun:"table:courses"`
	ID            string        `bun:"id,pk"`
	CategoryID    string        `bun:"category_id"`
	Data          domain.Course `bun:"data,type:jsonb"`
}

type examRow struct {
	bun.BaseModel `bun:"table:exams"`
	ID            string                `bun:"id,pk"`
	CourseID      string                `bun:"course_id"`
	Data          domain.ExamDefinition `bun:"data,type:jsonb"`
}

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes"`
	ID            string      `bun:"id,pk"`
	Data          domain.Quiz `bun:"data,type:jsonb"`
}

type puzzleGameRow struct {
	bun.BaseModel `bun:"table:puzzle_games"`
	ID            string            `bun:"id,pk"`
	Data          domain.PuzzleGame `bun:"data,type:jsonb"`
}

type verificationRow struct {
	bun.BaseModel `bun:"table:exam_verifications"`
	ExamID        string                  `bun:"exam_id,pk"`
	StudentID     string                  `bun:"student_id,pk"`
	Data          domain.ExamVerification `bun:"data,type:jsonb"`
}

type scheduleRow struct {
	bun.BaseModel `bun:"table:exam_schedules"`
	ID            string              `bun:"id,pk"`
	ExamID        string              `bun:"exam_id"`
	StudentID     string              `bun:"student_id"`
	SlotStart     time.Time           `bun:"slot_start"`
	Data          domain.ExamSchedule `bun:"data,type:jsonb"`
}

type examAttemptRow struct {
	bun.BaseModel `bun:"table:exam_attempts"`
	ID            string             `bun:"id,pk"`
	ExamID        string             `bun:"exam_id"`
	StudentID     string             `bun:"student_id"`
	AttemptNumber int                `bun:"attempt_number"`
	Active        bool               `bun:"active"`
	StartedAt     time.Time          `bun:"started_at"`
	ScheduleID    string             `bun:"schedule_id"`
	Data          domain.ExamAttempt `bun:"data,type:jsonb"`
}

func newExamAttemptRow(a domain.ExamAttempt) *examAttemptRow {
	return &examAttemptRow{
		ID:            a.ID,
		ExamID:        a.ExamID,
		StudentID:     a.StudentID,
		AttemptNumber: a.AttemptNumber,
		Active:        a.Active(),
		StartedAt:     a.StartedAt,
		ScheduleID:    a.ScheduleID,
		Data:          a,
	}
}

type examAnswerRow struct {
	bun.BaseModel `bun:"table:exam_answers"`
	AttemptID     string            `bun:"attempt_id,pk"`
	QuestionID    string            `bun:"question_id,pk"`
	SubmittedAt   time.Time         `bun:"submitted_at"`
	Data          domain.ExamAnswer `bun:"data,type:jsonb"`
}

type internalMarkRow struct {
	bun.BaseModel `bun:"table:internal_marks"`
	ExamID        string              `bun:"exam_id,pk"`
	StudentID     string              `bun:"student_id,pk"`
	Data          domain.InternalMark `bun:"data,type:jsonb"`
}

type certificateRow struct {
	bun.BaseModel     `bun:"table:exam_certificates"`
	ID                string                 `bun:"id,pk"`
	AttemptID         string                 `bun:"attempt_id"`
	CertificateNumber string                 `bun:"certificate_number"`
	Data              domain.ExamCertificate `bun:"data,type:jsonb"`
}

type missedRequestRow struct {
	bun.BaseModel `bun:"table:missed_exam_requests"`
	ID            string                   `bun:"id,pk"`
	ExamID        string                   `bun:"exam_id"`
	StudentID     string                   `bun:"student_id"`
	Status        string                   `bun:"status"`
	SubmittedAt   time.Time                `bun:"submitted_at"`
	Data          domain.MissedExamRequest `bun:"data,type:jsonb"`
}

func newMissedRequestRow(r domain.MissedExamRequest) *missedRequestRow {
	return &missedRequestRow{
		ID:          r.ID,
		ExamID:      r.ExamID,
		StudentID:   r.StudentID,
		Status:      string(r.Status),
		SubmittedAt: r.SubmittedAt,
		Data:        r,
	}
}

type paymentRow struct {
	bun.BaseModel `bun:"table:payments"`
	ID            string         `bun:"id,pk"`
	ExamID        string         `bun:"exam_id"`
	StudentID     string         `bun:"student_id"`
	Purpose       string         `bun:"purpose"`
	TransactionID string         `bun:"transaction_id"`
	RecordedAt    time.Time      `bun:"recorded_at"`
	Data          domain.Payment `bun:"data,type:jsonb"`
}

func newPaymentRow(p domain.Payment) *paymentRow {
	return &paymentRow{
		ID:            p.ID,
		ExamID:        p.ExamID,
		StudentID:     p.StudentID,
		Purpose:       string(p.Purpose),
		TransactionID: p.TransactionID,
		RecordedAt:    p.RecordedAt,
		Data:          p,
	}
}

type quizAttemptRow struct {
	bun.BaseModel `bun:"table:quiz_attempts"`
	ID            string             `bun:"id,pk"`
	QuizID        string             `bun:"quiz_id"`
	StudentID     string             `bun:"student_id"`
	AttemptedAt   time.Time          `bun:"attempted_at"`
	Data          domain.QuizAttempt `bun:"data,type:jsonb"`
}

func newQuizAttemptRow(a domain.QuizAttempt) *quizAttemptRow {
	return &quizAttemptRow{ID: a.ID, QuizID: a.QuizID, StudentID: a.StudentID, AttemptedAt: a.AttemptedAt, Data: a}
}

type studentAnswerRow struct {
	bun.BaseModel `bun:"table:student_answers"`
	AttemptID     string               `bun:"attempt_id,pk"`
	QuestionID    string               `bun:"question_id,pk"`
	Data          domain.StudentAnswer `bun:"data,type:jsonb"`
}

type puzzleAttemptRow struct {
	bun.BaseModel `bun:"table:puzzle_attempts"`
	ID            string               `bun:"id,pk"`
	GameID        string               `bun:"game_id"`
	UserID        string               `bun:"user_id"`
	Active        bool                 `bun:"active"`
	StartedAt     time.Time            `bun:"started_at"`
	Data          domain.PuzzleAttempt `bun:"data,type:jsonb"`
}

func newPuzzleAttemptRow(a domain.PuzzleAttempt) *puzzleAttemptRow {
	return &puzzleAttemptRow{
		ID:        a.ID,
		GameID:    a.GameID,
		UserID:    a.UserID,
		Active:    a.Active(),
		StartedAt: a.StartedAt,
		Data:      a,
	}
}

type puzzleMoveRow struct {
	bun.BaseModel `bun:"table:puzzle_moves"`
	AttemptID     string            `bun:"attempt_id,pk"`
	Seq           int               `bun:"seq,pk"`
	Data          domain.PuzzleMove `bun:"data,type:jsonb"`
}

type leaderboardRow struct {
	bun.BaseModel     `bun:"table:leaderboard_entries"`
	GameID            string                  `bun:"game_id,pk"`
	UserID            string                  `bun:"user_id,pk"`
	BestScore         int                     `bun:"best_score"`
	BestTimeSeconds   int                     `bun:"best_time_seconds"`
	CompletedAttempts int                     `bun:"completed_attempts"`
	UpdatedAt         time.Time               `bun:"updated_at"`
	Data              domain.LeaderboardEntry `bun:"data,type:jsonb"`
}

func newLeaderboardRow(e domain.LeaderboardEntry) *leaderboardRow {
	return &leaderboardRow{
		GameID:            e.GameID,
		UserID:            e.UserID,
		BestScore:         e.BestScore,
		BestTimeSeconds:   e.BestTimeSeconds,
		CompletedAttempts: e.CompletedAttempts,
		UpdatedAt:         e.UpdatedAt,
		Data:              e,
	}
}

type activityRow struct {
	bun.BaseModel `bun:"table:activities"`
	ID            string          `bun:"id,pk"`
	UserID        string          `bun:"user_id"`
	CreatedAt     time.Time       `bun:"created_at"`
	Data          domain.Activity `bun:"data,type:jsonb"`
}
