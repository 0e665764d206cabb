package domain

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// Stage is the lifecycle position of an exam attempt. It is recomputed from
// part progress, grades and publication after every event.
type Stage string

const (
	StageNotStarted       Stage = "NotStarted"
	StagePartAInProgress  Stage = "PartAInProgress"
	StagePartACompleted   Stage = "PartACompleted"
	StagePartBInProgress  Stage = "PartBInProgress"
	StagePartBCompleted   Stage = "PartBCompleted"
	StageAwaitingInternal Stage = "AwaitingInternal"
	StageScored           Stage = "Scored"
	StageResultPublished  Stage = "ResultPublished"
	StageCertified        Stage = "Certified"
)

// transitions lists the stages reachable from each stage. Staying put is always allowed.
var transitions = map[Stage][]Stage{
	StageNotStarted: {
		StagePartAInProgress, StagePartBInProgress, StagePartACompleted,
		StagePartBCompleted, StageAwaitingInternal, StageScored,
	},
	StagePartAInProgress:  {StagePartACompleted, StagePartBCompleted, StageAwaitingInternal, StageScored},
	StagePartACompleted:   {StagePartBInProgress, StagePartBCompleted, StageAwaitingInternal, StageScored},
	StagePartBInProgress:  {StagePartBCompleted, StageAwaitingInternal, StageScored},
	StagePartBCompleted:   {StagePartAInProgress, StagePartACompleted, StageAwaitingInternal, StageScored},
	StageAwaitingInternal: {StageScored},
	StageScored:           {StageResultPublished},
	StageResultPublished:  {StageCertified},
	StageCertified:        {},
}

// CanTransition reports whether an attempt may move from one stage to another.
func CanTransition(from, to Stage) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// PartState is the progress of one exam part.
type PartState string

const (
	PartNotRequired PartState = "not_required"
	PartPending     PartState = "pending"
	PartInProgress  PartState = "in_progress"
	PartCompleted   PartState = "completed"
)

type PartProgress struct {
	State          PartState  `json:"state"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	ForceCompleted bool       `json:"forceCompleted,omitempty"`
}

// Done reports whether the part no longer accepts answers.
func (p PartProgress) Done() bool {
	return p.State == PartCompleted || p.State == PartNotRequired
}

// ExamAttempt is one student's attempt at one exam.
type ExamAttempt struct {
	ID                string       `json:"id"`
	ExamID            string       `json:"examId"`
	StudentID         string       `json:"studentId"`
	ScheduleID        string       `json:"scheduleId,omitempty"`
	AttemptNumber     int          `json:"attemptNumber"`
	Stage             Stage        `json:"stage"`
	PartA             PartProgress `json:"partA"`
	PartB             PartProgress `json:"partB"`
	PartAScore        float64      `json:"partAScore"`
	PartBScore        *float64     `json:"partBScore,omitempty"`
	InternalScore     *float64     `json:"internalScore,omitempty"`
	TotalScore        float64      `json:"totalScore"`
	Percentage        float64      `json:"percentage"`
	IsPassed          bool         `json:"isPassed"`
	StartedAt         time.Time    `json:"startedAt"`
	WindowEnd         time.Time    `json:"windowEnd"`
	CompletedAt       *time.Time   `json:"completedAt,omitempty"`
	ResultPublishedAt *time.Time   `json:"resultPublishedAt,omitempty"`
	CertificateID     string       `json:"certificateId,omitempty"`
}

// NewExamAttempt creates an attempt whose parts follow the exam pattern.
func NewExamAttempt(exam Exam, id, studentID, scheduleID string, number int, now, windowEnd time.Time) ExamAttempt {
	a := ExamAttempt{
		ID:            id,
		ExamID:        exam.ID,
		StudentID:     studentID,
		ScheduleID:    scheduleID,
		AttemptNumber: number,
		Stage:         StageNotStarted,
		PartA:         PartProgress{State: PartNotRequired},
		PartB:         PartProgress{State: PartNotRequired},
		StartedAt:     now,
		WindowEnd:     windowEnd,
	}
	if exam.Requires(PartA) {
		a.PartA.State = PartPending
	}
	if exam.Requires(PartB) {
		a.PartB.State = PartPending
	}
	return a
}

func (a *ExamAttempt) part(p Part) *PartProgress {
	if p == PartA {
		return &a.PartA
	}
	return &a.PartB
}

// Progress returns the progress of part p.
func (a ExamAttempt) Progress(p Part) PartProgress {
	return *a.part(p)
}

// PartACompleted is true once part A is submitted or when the pattern skips it.
func (a ExamAttempt) PartACompleted() bool { return a.PartA.Done() }

// PartBCompleted is true once part B is submitted or when the pattern skips it.
func (a ExamAttempt) PartBCompleted() bool { return a.PartB.Done() }

// InternalAssigned reports whether an internal mark has been applied.
func (a ExamAttempt) InternalAssigned() bool { return a.InternalScore != nil }

// ResultPublished reports whether the result is locked.
func (a ExamAttempt) ResultPublished() bool { return a.ResultPublishedAt != nil }

// Active reports whether the student can still answer in this attempt.
func (a ExamAttempt) Active() bool { return !a.PartACompleted() || !a.PartBCompleted() }

// Scored reports whether every required score component is present.
func (a ExamAttempt) Scored() bool {
	switch a.Stage {
	case StageScored, StageResultPublished, StageCertified:
		return true
	}
	return false
}

// Failed reports whether a scored attempt fell below the passing percentage.
func (a ExamAttempt) Failed() bool { return a.Scored() && !a.IsPassed }

// Deadline returns when part p must be completed. ok is false when nothing bounds it.
func (a ExamAttempt) Deadline(exam Exam, p Part) (deadline time.Time, ok bool) {
	consider := func(t time.Time) {
		if !ok || t.Before(deadline) {
			deadline, ok = t, true
		}
	}
	if !a.WindowEnd.IsZero() {
		consider(a.WindowEnd)
	}
	if d := exam.Duration(); d > 0 {
		consider(a.StartedAt.Add(d))
	}
	prog := a.Progress(p)
	if limit := exam.PartTimeLimit(p); limit > 0 && prog.StartedAt != nil {
		consider(prog.StartedAt.Add(limit))
	}
	return deadline, ok
}

// StartPart moves part p into progress. The first answer of a part starts it.
func (a *ExamAttempt) StartPart(exam Exam, p Part, now time.Time) error {
	if a.ResultPublished() {
		return ErrResultPublished
	}
	prog := a.part(p)
	switch prog.State {
	case PartNotRequired:
		return ErrPartNotInPattern
	case PartCompleted:
		return ErrPartClosed
	case PartInProgress:
		return nil
	}
	other := PartB
	if p == PartB {
		other = PartA
	}
	if a.part(other).State == PartInProgress {
		return ErrPartInProgress
	}
	return a.apply(exam, func() {
		prog.State = PartInProgress
		prog.StartedAt = timePtr(now)
	})
}

// CompletePart submits part p. forced marks a completion triggered by a deadline.
// partAScore is the score recomputed from stored Part A answers.
func (a *ExamAttempt) CompletePart(exam Exam, p Part, partAScore float64, now time.Time, forced bool) error {
	if a.ResultPublished() {
		return ErrResultPublished
	}
	prog := a.part(p)
	switch prog.State {
	case PartNotRequired:
		return ErrPartNotInPattern
	case PartCompleted:
		return ErrPartClosed
	}
	return a.apply(exam, func() {
		if prog.StartedAt == nil {
			prog.StartedAt = timePtr(now)
		}
		prog.State = PartCompleted
		prog.CompletedAt = timePtr(now)
		prog.ForceCompleted = forced
		if p == PartA {
			a.PartAScore = partAScore
		}
	})
}

// ExpireParts force-completes every open part whose deadline passed.
// It returns the parts that were closed.
func (a *ExamAttempt) ExpireParts(exam Exam, partAScore float64, now time.Time) ([]Part, error) {
	var closed []Part
	for _, p := range []Part{PartA, PartB} {
		prog := a.Progress(p)
		if prog.Done() {
			continue
		}
		deadline, ok := a.Deadline(exam, p)
		if !ok || !now.After(deadline) {
			continue
		}
		if err := a.CompletePart(exam, p, partAScore, deadline, true); err != nil {
			return closed, err
		}
		closed = append(closed, p)
	}
	return closed, nil
}

// Rescore recomputes part A from stored answers. Published results are locked.
func (a *ExamAttempt) Rescore(exam Exam, partAScore float64) error {
	if a.ResultPublished() {
		return ErrResultPublished
	}
	return a.apply(exam, func() {
		if a.PartA.State == PartCompleted {
			a.PartAScore = partAScore
		}
	})
}

// GradePartB records the instructor's score for the written part.
func (a *ExamAttempt) GradePartB(exam Exam, score float64) error {
	if a.ResultPublished() {
		return ErrResultPublished
	}
	if a.PartB.State == PartNotRequired {
		return ErrPartNotInPattern
	}
	if a.PartB.State != PartCompleted {
		return ErrPartBNotGradable
	}
	if score < 0 || score > float64(exam.PartBMarks) {
		return fieldViolation("score", "must be between 0 and partBMarks")
	}
	return a.apply(exam, func() { a.PartBScore = floatPtr(score) })
}

// AssignInternal applies the internal mark. It may happen at any stage before publication.
func (a *ExamAttempt) AssignInternal(exam Exam, score float64) error {
	if a.ResultPublished() {
		return ErrResultPublished
	}
	if err := ValidateInternalScore(exam, score); err != nil {
		return err
	}
	return a.apply(exam, func() { a.InternalScore = floatPtr(score) })
}

// ValidateInternalScore checks score against the exam's internal allocation.
func ValidateInternalScore(exam Exam, score float64) error {
	if !exam.RequiresInternal() {
		return fieldViolation("score", "exam has no internal marks")
	}
	if score < 0 || score > float64(exam.InternalMarks) {
		return fieldViolation("score", "must be between 0 and internalMarks")
	}
	return nil
}

// Publish locks the result.
func (a *ExamAttempt) Publish(exam Exam, now time.Time) error {
	if a.ResultPublished() {
		return ErrResultPublished
	}
	if a.Stage != StageScored {
		return ErrNotScored
	}
	return a.apply(exam, func() { a.ResultPublishedAt = timePtr(now) })
}

// MarkCertified links the issued certificate.
func (a *ExamAttempt) MarkCertified(exam Exam, certificateID string) error {
	if a.Stage != StageResultPublished || !a.IsPassed {
		return ErrNotEligible
	}
	return a.apply(exam, func() { a.CertificateID = certificateID })
}

// apply runs mutate on a copy, recomputes totals and stage, and commits only valid transitions.
func (a *ExamAttempt) apply(exam Exam, mutate func()) error {
	before := *a
	mutate()
	a.recompute(exam)
	if !CanTransition(before.Stage, a.Stage) {
		to := a.Stage
		*a = before
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", before.Stage, to)
	}
	return nil
}

func (a *ExamAttempt) recompute(exam Exam) {
	var partB, internal float64
	if a.PartBScore != nil {
		partB = *a.PartBScore
	}
	if a.InternalScore != nil {
		internal = *a.InternalScore
	}
	a.TotalScore = round2(a.PartAScore + partB + internal)
	if exam.TotalMarks > 0 {
		a.Percentage = round2(a.TotalScore / float64(exam.TotalMarks) * 100)
	}
	a.Stage = a.deriveStage(exam)
	a.IsPassed = a.Scored() && a.Percentage >= exam.PassingPercentage
	if !a.Active() && a.CompletedAt == nil {
		a.CompletedAt = latest(a.PartA.CompletedAt, a.PartB.CompletedAt)
	}
}

func (a ExamAttempt) deriveStage(exam Exam) Stage {
	switch {
	case a.CertificateID != "":
		return StageCertified
	case a.ResultPublishedAt != nil:
		return StageResultPublished
	case a.PartA.State == PartInProgress:
		return StagePartAInProgress
	case a.PartB.State == PartInProgress:
		return StagePartBInProgress
	}
	if a.Active() {
		switch {
		case a.PartB.State == PartCompleted:
			return StagePartBCompleted
		case a.PartA.State == PartCompleted:
			return StagePartACompleted
		}
		return StageNotStarted
	}
	if a.PartB.State == PartCompleted && a.PartBScore == nil {
		return StagePartBCompleted
	}
	if exam.RequiresInternal() && a.InternalScore == nil {
		return StageAwaitingInternal
	}
	return StageScored
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func latest(ts ...*time.Time) *time.Time {
	var out *time.Time
	for _, t := range ts {
		if t != nil && (out == nil || t.After(*out)) {
			out = timePtr(*t)
		}
	}
	return out
}

func timePtr(t time.Time) *time.Time { return &t }

func floatPtr(f float64) *float64 { return &f }
