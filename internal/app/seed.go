package app

import (
	"context"
	"encoding/json"
	"time"

	"assessment-service/internal/domain"
	"assessment-service/internal/puzzlestate"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// SeedReport lists what a seed run inserted and what already existed.
type SeedReport struct {
	Inserted []string `json:"inserted"`
	Skipped  []string `json:"skipped"`
}

const (
	DemoInstructorID = "instructor-demo"
	DemoCourseID     = "course-demo"
	DemoExamID       = "exam-demo"
	DemoQuizID       = "quiz-demo"
)

// Seed inserts the fixed catalog and demo definitions that are absent. Running it again is a no-op.
func Seed(ctx context.Context, store Store, now time.Time) (SeedReport, error) {
	var report SeedReport
	err := store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Lock(ctx, "seed"); err != nil {
			return err
		}
		report = SeedReport{}
		for _, c := range seedCategories() {
			if err := seedOne(ctx, &report, "category "+c.ID,
				func() error { _, err := tx.Category(ctx, c.ID); return err },
				func() error { return tx.InsertCategory(ctx, c) }); err != nil {
				return err
			}
		}

		course := domain.Course{ID: DemoCourseID, CategoryID: "programming", Title: "Go fundamentals", InstructorID: DemoInstructorID}
		if err := seedOne(ctx, &report, "course "+course.ID,
			func() error { _, err := tx.Course(ctx, course.ID); return err },
			func() error { return tx.InsertCourse(ctx, course) }); err != nil {
			return err
		}

		exam := demoExam(now)
		if err := exam.Validate(); err != nil {
			return errors.Wrap(err, "demo exam")
		}
		if err := seedOne(ctx, &report, "exam "+exam.Exam.ID,
			func() error { _, err := tx.ExamDefinition(ctx, exam.Exam.ID); return err },
			func() error { return tx.InsertExamDefinition(ctx, exam) }); err != nil {
			return err
		}

		quiz := demoQuiz()
		if err := seedOne(ctx, &report, "quiz "+quiz.ID,
			func() error { _, err := tx.Quiz(ctx, quiz.ID); return err },
			func() error { return tx.InsertQuiz(ctx, quiz) }); err != nil {
			return err
		}

		for _, game := range demoPuzzles(now) {
			game := game
			if err := puzzlestate.ValidateGame(game); err != nil {
				return errors.Wrapf(err, "demo puzzle %s", game.ID)
			}
			if err := seedOne(ctx, &report, "puzzle "+game.ID,
				func() error { _, err := tx.PuzzleGame(ctx, game.ID); return err },
				func() error { return tx.InsertPuzzleGame(ctx, game) }); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return SeedReport{}, err
	}
	glog.Infof("seed: %d inserted, %d already present", len(report.Inserted), len(report.Skipped))
	return report, nil
}

func seedOne(_ context.Context, report *SeedReport, name string, lookup, insert func() error) error {
	err := lookup()
	switch {
	case err == nil:
		report.Skipped = append(report.Skipped, name)
		return nil
	case !isNotFound(err):
		return errors.Wrapf(err, "lookup %s", name)
	}
	if err := insert(); err != nil {
		return errors.Wrapf(err, "insert %s", name)
	}
	report.Inserted = append(report.Inserted, name)
	return nil
}

func seedCategories() []domain.Category {
	return []domain.Category{
		{ID: "programming", Name: "Programming"},
		{ID: "mathematics", Name: "Mathematics"},
		{ID: "languages", Name: "Languages"},
		{ID: "science", Name: "Science"},
		{ID: "brain-games", Name: "Brain games"},
	}
}

func demoExam(now time.Time) domain.ExamDefinition {
	start := now.UTC().Truncate(time.Hour)
	return domain.ExamDefinition{
		Exam: domain.Exam{
			ID:                      DemoExamID,
			CourseID:                DemoCourseID,
			InstructorID:            DemoInstructorID,
			Title:                   "Go fundamentals final",
			ScheduledStartTime:      start,
			ScheduledEndTime:        start.AddDate(0, 0, 30),
			DurationMinutes:         120,
			PatternType:             domain.PatternMixed,
			PartAMarks:              50,
			PartBMarks:              30,
			InternalMarks:           20,
			TotalMarks:              100,
			PassingPercentage:       60,
			PartATimeLimitMinutes:   45,
			PartBTimeLimitMinutes:   75,
			ReExamFee:               25,
			CertificateFee:          10,
			CertificateValidityDays: 730,
			IsApproved:              true,
			IsActive:                true,
			CreatedAt:               now,
		},
		Questions: []domain.ExamQuestion{
			{ID: "exam-demo-q1", ExamID: DemoExamID, Part: domain.PartA, Text: "Which keyword starts a goroutine?", Points: 25,
				Options: []domain.ExamQuestionOption{
					{ID: "exam-demo-q1-a", Text: "go", IsCorrect: true},
					{ID: "exam-demo-q1-b", Text: "async"},
					{ID: "exam-demo-q1-c", Text: "spawn"},
				}},
			{ID: "exam-demo-q2", ExamID: DemoExamID, Part: domain.PartA, Text: "What does a nil map read return?", Points: 25,
				Options: []domain.ExamQuestionOption{
					{ID: "exam-demo-q2-a", Text: "a panic"},
					{ID: "exam-demo-q2-b", Text: "the zero value", IsCorrect: true},
				}},
			{ID: "exam-demo-q3", ExamID: DemoExamID, Part: domain.PartB, Text: "Explain how context cancellation propagates.", Points: 30},
		},
	}
}

func demoQuiz() domain.Quiz {
	return domain.Quiz{
		ID:           DemoQuizID,
		CourseID:     DemoCourseID,
		Title:        "Go basics warm-up",
		PassingScore: 50,
		Questions: []domain.Question{
			{
				ID:     "q1",
				Prompt: "What is 2 + 2?",
				Options: []domain.Option{
					{ID: "o1", Text: "3", Correct: false},
					{ID: "o2", Text: "4", Correct: true},
					{ID: "o3", Text: "5", Correct: false},
				},
				Points: 10,
			},
			{
				ID:     "q2",
				Prompt: "Which type is a reference type?",
				Options: []domain.Option{
					{ID: "o1", Text: "int", Correct: false},
					{ID: "o2", Text: "map", Correct: true},
				},
				Points: 10,
			},
		},
	}
}

func demoPuzzles(now time.Time) []domain.PuzzleGame {
	return []domain.PuzzleGame{
		{
			ID:               "sudoku-demo",
			Title:            "Mini sudoku",
			Type:             domain.PuzzleSudoku,
			InitialState:     json.RawMessage(`{"grid":[[1,0,0,4],[0,4,1,0],[2,0,4,0],[0,3,0,1]]}`),
			Solution:         json.RawMessage(`{"grid":[[1,2,3,4],[3,4,1,2],[2,1,4,3],[4,3,2,1]]}`),
			MaxScore:         100,
			TimeLimitSeconds: 1800,
			HintPenalty:      10,
			MaxHints:         3,
			TimeoutPolicy:    domain.TimeoutAutoSolve,
			CreatedAt:        now,
		},
		{
			ID:               "word-demo",
			Title:            "Go keywords",
			Type:             domain.PuzzleWord,
			InitialState:     json.RawMessage(`{"grid":["GOXD","FUNC","MAPS","CHAN"],"found":[]}`),
			Solution:         json.RawMessage(`{"grid":["GOXD","FUNC","MAPS","CHAN"],"found":["GO","FUNC","MAP","CHAN"]}`),
			MaxScore:         60,
			TimeLimitSeconds: 600,
			HintPenalty:      15,
			MaxHints:         2,
			TimeoutPolicy:    domain.TimeoutAbandon,
			CreatedAt:        now,
		},
		{
			ID:            "logic-demo",
			Title:         "Who owns the gopher?",
			Type:          domain.PuzzleLogic,
			InitialState:  json.RawMessage(`{"alice":"","bob":"","carol":""}`),
			Solution:      json.RawMessage(`{"alice":"cat","bob":"gopher","carol":"dog"}`),
			MaxScore:      80,
			HintPenalty:   20,
			TimeoutPolicy: domain.TimeoutAutoSolve,
			CreatedAt:     now,
		},
	}
}
