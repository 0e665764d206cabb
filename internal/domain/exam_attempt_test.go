package domain

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var examStart = time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)

func mixedExam() Exam {
	return Exam{
		ID:                    "exam-1",
		CourseID:              "course-1",
		InstructorID:          "inst-1",
		Title:                 "Networks final",
		ScheduledStartTime:    examStart,
		ScheduledEndTime:      examStart.Add(2 * time.Hour),
		DurationMinutes:       120,
		PatternType:           PatternMixed,
		PartAMarks:            50,
		PartBMarks:            30,
		InternalMarks:         20,
		TotalMarks:            100,
		PassingPercentage:     75,
		PartATimeLimitMinutes: 30,
		PartBTimeLimitMinutes: 60,
		IsApproved:            true,
		IsActive:              true,
	}
}

func mcqExam() Exam {
	e := mixedExam()
	e.PatternType = PatternMCQOnly
	e.PartBMarks = 0
	e.InternalMarks = 0
	e.TotalMarks = 50
	e.PassingPercentage = 60
	return e
}

func TestScoredAttemptTotalsAllComponents(t *testing.T) {
	exam := mixedExam()
	a := NewExamAttempt(exam, "att-1", "stu-1", "", 1, examStart, exam.ScheduledEndTime)

	require.NoError(t, a.StartPart(exam, PartA, examStart))
	assert.Equal(t, StagePartAInProgress, a.Stage)

	require.NoError(t, a.CompletePart(exam, PartA, 45, examStart.Add(20*time.Minute), false))
	assert.Equal(t, StagePartACompleted, a.Stage)

	require.NoError(t, a.StartPart(exam, PartB, examStart.Add(25*time.Minute)))
	assert.Equal(t, StagePartBInProgress, a.Stage)

	finished := examStart.Add(70 * time.Minute)
	require.NoError(t, a.CompletePart(exam, PartB, 45, finished, false))
	assert.Equal(t, StagePartBCompleted, a.Stage)
	require.NotNil(t, a.CompletedAt)
	assert.True(t, a.CompletedAt.Equal(finished))

	require.NoError(t, a.GradePartB(exam, 25))
	assert.Equal(t, StageAwaitingInternal, a.Stage)
	assert.False(t, a.IsPassed)

	require.NoError(t, a.AssignInternal(exam, 18))
	assert.Equal(t, StageScored, a.Stage)
	assert.Equal(t, 88.0, a.TotalScore)
	assert.Equal(t, 88.0, a.Percentage)
	assert.True(t, a.IsPassed)
	assert.Equal(t, a.PartAScore+*a.PartBScore+*a.InternalScore, a.TotalScore)

	require.NoError(t, a.Publish(exam, finished.Add(time.Hour)))
	assert.Equal(t, StageResultPublished, a.Stage)
	assert.True(t, a.ResultPublished())

	require.NoError(t, a.MarkCertified(exam, "cert-1"))
	assert.Equal(t, StageCertified, a.Stage)
}

func TestMixedPartsInEitherOrder(t *testing.T) {
	exam := mixedExam()
	a := NewExamAttempt(exam, "att-1", "stu-1", "", 1, examStart, exam.ScheduledEndTime)

	require.NoError(t, a.StartPart(exam, PartB, examStart))
	err := a.StartPart(exam, PartA, examStart.Add(time.Minute))
	assert.True(t, errors.Is(err, ErrPartInProgress), "got %v", err)

	require.NoError(t, a.CompletePart(exam, PartB, 0, examStart.Add(10*time.Minute), false))
	assert.Equal(t, StagePartBCompleted, a.Stage)

	require.NoError(t, a.StartPart(exam, PartA, examStart.Add(11*time.Minute)))
	assert.Equal(t, StagePartAInProgress, a.Stage)

	err = a.StartPart(exam, PartB, examStart.Add(12*time.Minute))
	assert.True(t, errors.Is(err, ErrPartClosed), "got %v", err)
}

func TestMCQOnlySkipsPartB(t *testing.T) {
	exam := mcqExam()
	a := NewExamAttempt(exam, "att-1", "stu-1", "", 1, examStart, exam.ScheduledEndTime)

	assert.True(t, a.PartBCompleted())
	assert.Nil(t, a.PartBScore)

	err := a.StartPart(exam, PartB, examStart)
	assert.True(t, errors.Is(err, ErrPartNotInPattern), "got %v", err)

	require.NoError(t, a.CompletePart(exam, PartA, 40, examStart.Add(15*time.Minute), false))
	assert.Equal(t, StageScored, a.Stage)
	assert.Equal(t, 40.0, a.TotalScore)
	assert.Equal(t, 80.0, a.Percentage)
	assert.True(t, a.IsPassed)
	assert.True(t, a.PartBCompleted())

	err = a.GradePartB(exam, 10)
	assert.True(t, errors.Is(err, ErrPartNotInPattern), "got %v", err)
}

func TestInternalMarkBeforeAnyPart(t *testing.T) {
	exam := mixedExam()
	a := NewExamAttempt(exam, "att-1", "stu-1", "", 1, examStart, exam.ScheduledEndTime)

	require.NoError(t, a.AssignInternal(exam, 15))
	assert.Equal(t, StageNotStarted, a.Stage)
	assert.True(t, a.InternalAssigned())

	err := a.AssignInternal(exam, 21)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestRescoreIsIdempotent(t *testing.T) {
	exam := mcqExam()
	a := NewExamAttempt(exam, "att-1", "stu-1", "", 1, examStart, exam.ScheduledEndTime)
	require.NoError(t, a.CompletePart(exam, PartA, 20, examStart.Add(time.Minute), false))

	require.NoError(t, a.Rescore(exam, 30))
	first := a
	require.NoError(t, a.Rescore(exam, 30))
	assert.Equal(t, first.TotalScore, a.TotalScore)
	assert.Equal(t, first.Percentage, a.Percentage)
	assert.Equal(t, first.IsPassed, a.IsPassed)
	assert.Equal(t, 30.0, a.TotalScore)
}

func TestPublishedResultIsLocked(t *testing.T) {
	exam := mcqExam()
	a := NewExamAttempt(exam, "att-1", "stu-1", "", 1, examStart, exam.ScheduledEndTime)

	err := a.Publish(exam, examStart)
	assert.True(t, errors.Is(err, ErrNotScored), "got %v", err)

	require.NoError(t, a.CompletePart(exam, PartA, 20, examStart.Add(time.Minute), false))
	require.NoError(t, a.Publish(exam, examStart.Add(time.Hour)))

	assert.True(t, errors.Is(a.Rescore(exam, 50), ErrResultPublished))
	assert.True(t, errors.Is(a.Publish(exam, examStart.Add(2*time.Hour)), ErrResultPublished))
	assert.Equal(t, 20.0, a.TotalScore)

	// 40% is below the passing mark.
	assert.True(t, errors.Is(a.MarkCertified(exam, "cert-1"), ErrNotEligible))
}

func TestGradePartBRequiresSubmission(t *testing.T) {
	exam := mixedExam()
	a := NewExamAttempt(exam, "att-1", "stu-1", "", 1, examStart, exam.ScheduledEndTime)
	require.NoError(t, a.StartPart(exam, PartB, examStart))

	err := a.GradePartB(exam, 10)
	assert.True(t, errors.Is(err, ErrPartBNotGradable), "got %v", err)

	require.NoError(t, a.CompletePart(exam, PartB, 0, examStart.Add(time.Minute), false))
	err = a.GradePartB(exam, 31)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestExpirePartsForceCompletesAtDeadline(t *testing.T) {
	exam := mixedExam()
	a := NewExamAttempt(exam, "att-1", "stu-1", "", 1, examStart, exam.ScheduledEndTime)
	require.NoError(t, a.StartPart(exam, PartA, examStart))

	deadline, ok := a.Deadline(exam, PartA)
	require.True(t, ok)
	assert.True(t, deadline.Equal(examStart.Add(30*time.Minute)))

	closed, err := a.ExpireParts(exam, 10, examStart.Add(31*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []Part{PartA}, closed)
	assert.True(t, a.PartA.ForceCompleted)
	assert.True(t, a.PartA.CompletedAt.Equal(deadline))
	assert.Equal(t, 10.0, a.PartAScore)
	assert.Equal(t, PartPending, a.PartB.State)

	closed, err = a.ExpireParts(exam, 10, examStart.Add(2*time.Hour+time.Second))
	require.NoError(t, err)
	assert.Equal(t, []Part{PartB}, closed)
	assert.False(t, a.Active())
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Stage
		want     bool
	}{
		{StageNotStarted, StagePartAInProgress, true},
		{StageNotStarted, StageScored, true},
		{StagePartBCompleted, StagePartAInProgress, true},
		{StageAwaitingInternal, StageScored, true},
		{StageScored, StageResultPublished, true},
		{StageScored, StagePartAInProgress, false},
		{StageResultPublished, StageScored, false},
		{StageCertified, StageResultPublished, false},
		{StageCertified, StageCertified, true},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestExamValidate(t *testing.T) {
	exam := mixedExam()
	require.NoError(t, exam.Validate())

	exam.TotalMarks = 90
	err := exam.Validate()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "totalMarks", verr.Fields[0].Field)

	exam = mcqExam()
	exam.PartBMarks = 10
	exam.TotalMarks = 60
	assert.Equal(t, KindValidation, KindOf(exam.Validate()))

	exam = mixedExam()
	exam.ScheduledEndTime = exam.ScheduledStartTime.Add(-time.Minute)
	require.True(t, errors.As(exam.Validate(), &verr))
	assert.Equal(t, "scheduledEndTime", verr.Fields[0].Field)
}

func TestExamDefinitionValidate(t *testing.T) {
	exam := mcqExam()
	def := ExamDefinition{
		Exam: exam,
		Questions: []ExamQuestion{
			{ID: "q1", Part: PartA, Text: "2+2", Points: 50, Options: []ExamQuestionOption{
				{ID: "o1", Text: "3"}, {ID: "o2", Text: "4", IsCorrect: true},
			}},
		},
	}
	require.NoError(t, def.Validate())

	def.Questions[0].Points = 40
	assert.Equal(t, KindValidation, KindOf(def.Validate()))

	def.Questions[0].Points = 50
	def.Questions[0].Options[0].IsCorrect = true
	assert.Equal(t, KindValidation, KindOf(def.Validate()))

	def.Questions[0].Options[0].IsCorrect = false
	def.Questions = append(def.Questions, ExamQuestion{ID: "q2", Part: PartB, Text: "Explain", Points: 10})
	assert.Equal(t, KindValidation, KindOf(def.Validate()))
}

func TestExamWindow(t *testing.T) {
	e := mixedExam()
	assert.False(t, e.IsTimeActive(examStart.Add(-time.Second)))
	assert.True(t, e.IsTimeActive(examStart))
	assert.True(t, e.IsTimeActive(e.ScheduledEndTime), "the window end is inclusive")
	assert.False(t, e.IsTimeActive(e.ScheduledEndTime.Add(5*time.Minute)))

	late := e.ScheduledEndTime.Add(5 * time.Minute)
	assert.True(t, IsExamMissed(e, nil, late))
	assert.False(t, IsExamMissed(e, nil, examStart.Add(time.Hour)))
	used := []ExamAttempt{NewExamAttempt(e, "a1", "s1", "", 1, examStart, e.ScheduledEndTime)}
	assert.False(t, IsExamMissed(e, used, late))
}
