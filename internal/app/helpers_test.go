package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"assessment-service/internal/app"
	"assessment-service/internal/domain"
	"assessment-service/internal/infra/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingNotifier keeps delivered activities for assertions.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Activity
}

func (n *recordingNotifier) Notify(_ context.Context, a domain.Activity) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, a)
	return nil
}

func (n *recordingNotifier) kinds() []domain.ActivityKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.ActivityKind, 0, len(n.sent))
	for _, a := range n.sent {
		out = append(out, a.Kind)
	}
	return out
}

type harness struct {
	store    *memory.Store
	clock    *fakeClock
	notifier *recordingNotifier
	feed     *app.ActivityFeed
	exams    *app.ExamService
	quizzes  *app.QuizService
	puzzles  *app.PuzzleService
	sessions *memory.SessionStore
}

func newHarness(t *testing.T, start time.Time) *harness {
	t.Helper()
	store := memory.NewStore()
	clock := newClock(start)
	if _, err := app.Seed(context.Background(), store, start); err != nil {
		t.Fatalf("seed: %v", err)
	}
	defs := memory.NewDefinitionRepository(store, time.Minute).WithClock(clock.Now)
	notifier := &recordingNotifier{}
	feed := app.NewActivityFeed(store, notifier).WithClock(clock.Now)
	sessions := memory.NewSessionStore().WithClock(clock.Now)
	return &harness{
		store:    store,
		clock:    clock,
		notifier: notifier,
		feed:     feed,
		exams:    app.NewExamService(store, defs, feed, app.ExamOptions{DefaultCertificateValidityDays: 365}).WithClock(clock.Now),
		quizzes:  app.NewQuizService(store, defs, feed).WithClock(clock.Now),
		puzzles:  app.NewPuzzleService(store, defs, sessions, feed).WithClock(clock.Now),
		sessions: sessions,
	}
}

func (h *harness) insertExam(t *testing.T, def domain.ExamDefinition) {
	t.Helper()
	if err := def.Validate(); err != nil {
		t.Fatalf("invalid exam fixture: %v", err)
	}
	err := h.store.Atomically(context.Background(), func(ctx context.Context, tx app.Tx) error {
		return tx.InsertExamDefinition(ctx, def)
	})
	if err != nil {
		t.Fatalf("insert exam: %v", err)
	}
}

var (
	instructor = domain.Actor{UserID: "teacher-1", Role: domain.RoleInstructor}
	admin      = domain.Actor{UserID: "admin-1", Role: domain.RoleAdmin}
	student    = domain.Actor{UserID: "student-1", Role: domain.RoleStudent}
	student2   = domain.Actor{UserID: "student-2", Role: domain.RoleStudent}
)

// day is the exam day used by the fixtures; the window is 10:00 to 12:00 UTC.
var day = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// mixedExam allocates 50/30/20 with part A questions worth 20, 15, 10 and 5.
func mixedExam(id string) domain.ExamDefinition {
	mcq := func(qid string, points int) domain.ExamQuestion {
		return domain.ExamQuestion{
			ID: qid, ExamID: id, Part: domain.PartA, Text: "question " + qid, Points: points,
			Options: []domain.ExamQuestionOption{
				{ID: qid + "-right", Text: "right", IsCorrect: true},
				{ID: qid + "-wrong", Text: "wrong"},
			},
		}
	}
	return domain.ExamDefinition{
		Exam: domain.Exam{
			ID:                      id,
			CourseID:                app.DemoCourseID,
			InstructorID:            instructor.UserID,
			Title:                   "Distributed systems",
			ScheduledStartTime:      at(10, 0),
			ScheduledEndTime:        at(12, 0),
			PatternType:             domain.PatternMixed,
			PartAMarks:              50,
			PartBMarks:              30,
			InternalMarks:           20,
			TotalMarks:              100,
			PassingPercentage:       75,
			PartATimeLimitMinutes:   30,
			PartBTimeLimitMinutes:   45,
			ReExamFee:               50,
			CertificateValidityDays: 0,
			IsApproved:              true,
			IsActive:                true,
		},
		Questions: []domain.ExamQuestion{
			mcq("a1", 20), mcq("a2", 15), mcq("a3", 10), mcq("a4", 5),
			{ID: "b1", ExamID: id, Part: domain.PartB, Text: "Explain consensus.", Points: 30},
		},
	}
}

// mcqExam is a single-question MCQOnly exam without internal marks.
func mcqExam(id string) domain.ExamDefinition {
	return domain.ExamDefinition{
		Exam: domain.Exam{
			ID:                 id,
			CourseID:           app.DemoCourseID,
			InstructorID:       instructor.UserID,
			Title:              "Quick check",
			ScheduledStartTime: at(10, 0),
			ScheduledEndTime:   at(12, 0),
			PatternType:        domain.PatternMCQOnly,
			PartAMarks:         10,
			TotalMarks:         10,
			PassingPercentage:  50,
			ReExamFee:          50,
			CertificateFee:     20,
			IsApproved:         true,
			IsActive:           true,
		},
		Questions: []domain.ExamQuestion{{
			ID: "q1", ExamID: id, Part: domain.PartA, Text: "2 + 2?", Points: 10,
			Options: []domain.ExamQuestionOption{
				{ID: "q1-right", Text: "4", IsCorrect: true},
				{ID: "q1-wrong", Text: "5"},
			},
		}},
	}
}
