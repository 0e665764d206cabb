package domain

import (
	"fmt"
	"time"
)

// PatternType decides which exam parts an attempt must complete.
type PatternType string

const (
	PatternTheoryOnly PatternType = "TheoryOnly"
	PatternMCQOnly    PatternType = "MCQOnly"
	PatternMixed      PatternType = "Mixed"
)

// Part identifies the MCQ (A) or written (B) half of an exam.
type Part string

const (
	PartA Part = "A"
	PartB Part = "B"
)

// Exam is an exam definition owned by an instructor and scoped to a course.
type Exam struct {
	ID                      string      `json:"id" validate:"required"`
	CourseID                string      `json:"courseId" validate:"required"`
	InstructorID            string      `json:"instructorId" validate:"required"`
	Title                   string      `json:"title" validate:"required,max=200"`
	ScheduledStartTime      time.Time   `json:"scheduledStartTime" validate:"required"`
	ScheduledEndTime        time.Time   `json:"scheduledEndTime" validate:"required,gtfield=ScheduledStartTime"`
	DurationMinutes         int         `json:"durationMinutes" validate:"gte=0"`
	PatternType             PatternType `json:"patternType" validate:"required,oneof=TheoryOnly MCQOnly Mixed"`
	PartAMarks              int         `json:"partAMarks" validate:"gte=0"`
	PartBMarks              int         `json:"partBMarks" validate:"gte=0"`
	InternalMarks           int         `json:"internalMarks" validate:"gte=0"`
	TotalMarks              int         `json:"totalMarks" validate:"gt=0"`
	PassingPercentage       float64     `json:"passingPercentage" validate:"gte=0,lte=100"`
	PartATimeLimitMinutes   int         `json:"partATimeLimitMinutes" validate:"gte=0"`
	PartBTimeLimitMinutes   int         `json:"partBTimeLimitMinutes" validate:"gte=0"`
	ReExamFee               float64     `json:"reExamFee" validate:"gte=0"`
	CertificateFee          float64     `json:"certificateFee" validate:"gte=0"`
	CertificateValidityDays int         `json:"certificateValidityDays" validate:"gte=0"`
	IsApproved              bool        `json:"isApproved"`
	IsActive                bool        `json:"isActive"`
	CreatedAt               time.Time   `json:"createdAt"`
}

// Validate checks field ranges and the mark allocation invariant.
func (e Exam) Validate() error {
	if err := ValidateStruct(e); err != nil {
		return err
	}
	if e.PartAMarks+e.PartBMarks+e.InternalMarks != e.TotalMarks {
		return fieldViolation("totalMarks", fmt.Sprintf("must equal partAMarks + partBMarks + internalMarks (%d)", e.PartAMarks+e.PartBMarks+e.InternalMarks))
	}
	switch e.PatternType {
	case PatternMCQOnly:
		if e.PartBMarks != 0 {
			return fieldViolation("partBMarks", "must be 0 for an MCQOnly exam")
		}
	case PatternTheoryOnly:
		if e.PartAMarks != 0 {
			return fieldViolation("partAMarks", "must be 0 for a TheoryOnly exam")
		}
	}
	return nil
}

// Requires reports whether the exam pattern includes part p.
func (e Exam) Requires(p Part) bool {
	switch p {
	case PartA:
		return e.PatternType == PatternMCQOnly || e.PatternType == PatternMixed
	case PartB:
		return e.PatternType == PatternTheoryOnly || e.PatternType == PatternMixed
	}
	return false
}

// RequiresInternal reports whether an internal mark must be assigned before scoring.
func (e Exam) RequiresInternal() bool { return e.InternalMarks > 0 }

// PartTimeLimit returns the per-part limit, zero when unbounded.
func (e Exam) PartTimeLimit(p Part) time.Duration {
	switch p {
	case PartA:
		return time.Duration(e.PartATimeLimitMinutes) * time.Minute
	case PartB:
		return time.Duration(e.PartBTimeLimitMinutes) * time.Minute
	}
	return 0
}

// Duration returns the overall attempt duration, zero when unbounded.
func (e Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// IsTimeActive reports whether now falls inside the scheduled window (inclusive).
func (e Exam) IsTimeActive(now time.Time) bool {
	return !now.Before(e.ScheduledStartTime) && !now.After(e.ScheduledEndTime)
}

// IsExamMissed reports whether the exam window closed without the student using it.
// Any attempt, in progress or completed, means the window was used.
func IsExamMissed(exam Exam, attempts []ExamAttempt, now time.Time) bool {
	return now.After(exam.ScheduledEndTime) && len(attempts) == 0
}

// ExamQuestionOption is an MCQ option; only Part A questions carry options.
type ExamQuestionOption struct {
	ID        string `json:"id" validate:"required"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

type ExamQuestion struct {
	ID      string               `json:"id" validate:"required"`
	ExamID  string               `json:"examId"`
	Part    Part                 `json:"part" validate:"required,oneof=A B"`
	Text    string               `json:"text" validate:"required"`
	Points  int                  `json:"points" validate:"gt=0"`
	Options []ExamQuestionOption `json:"options,omitempty" validate:"dive"`
}

// CorrectOption returns the id of the option flagged correct.
func (q ExamQuestion) CorrectOption() (string, bool) {
	for _, opt := range q.Options {
		if opt.IsCorrect {
			return opt.ID, true
		}
	}
	return "", false
}

// HasOption reports whether id is one of the question's options.
func (q ExamQuestion) HasOption(id string) bool {
	for _, opt := range q.Options {
		if opt.ID == id {
			return true
		}
	}
	return false
}

// ExamDefinition bundles an exam with its question bank.
type ExamDefinition struct {
	Exam      Exam           `json:"exam"`
	Questions []ExamQuestion `json:"questions"`
}

// Question looks up a question by id.
func (d ExamDefinition) Question(id string) (ExamQuestion, bool) {
	for _, q := range d.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return ExamQuestion{}, false
}

// Validate checks the exam and that the question bank fits its pattern and marks.
func (d ExamDefinition) Validate() error {
	if err := d.Exam.Validate(); err != nil {
		return err
	}
	counts := map[Part]int{}
	partAPoints := 0
	seen := make(map[string]struct{}, len(d.Questions))
	for _, q := range d.Questions {
		if err := ValidateStruct(q); err != nil {
			return err
		}
		if _, dup := seen[q.ID]; dup {
			return fieldViolation("questions", "duplicate question id "+q.ID)
		}
		seen[q.ID] = struct{}{}
		if !d.Exam.Requires(q.Part) {
			return fieldViolation("questions", fmt.Sprintf("question %s belongs to part %s which the %s pattern excludes", q.ID, q.Part, d.Exam.PatternType))
		}
		counts[q.Part]++
		switch q.Part {
		case PartA:
			partAPoints += q.Points
			if len(q.Options) < 2 {
				return fieldViolation("questions", "MCQ question "+q.ID+" needs at least two options")
			}
			correct := 0
			for _, opt := range q.Options {
				if opt.IsCorrect {
					correct++
				}
			}
			if correct != 1 {
				return fieldViolation("questions", "MCQ question "+q.ID+" needs exactly one correct option")
			}
		case PartB:
			if len(q.Options) > 0 {
				return fieldViolation("questions", "written question "+q.ID+" cannot carry options")
			}
		}
	}
	for _, p := range []Part{PartA, PartB} {
		if d.Exam.Requires(p) && counts[p] == 0 {
			return fieldViolation("questions", "part "+string(p)+" needs at least one question")
		}
	}
	if d.Exam.Requires(PartA) && partAPoints != d.Exam.PartAMarks {
		return fieldViolation("questions", fmt.Sprintf("part A points sum to %d, expected %d", partAPoints, d.Exam.PartAMarks))
	}
	return nil
}

// ExamVerification records whether a student passed identity checks for an exam.
type ExamVerification struct {
	ExamID     string     `json:"examId"`
	StudentID  string     `json:"studentId"`
	IsVerified bool       `json:"isVerified"`
	VerifiedBy string     `json:"verifiedBy,omitempty"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
}

// ExamSchedule assigns one student to a time slot for an exam.
type ExamSchedule struct {
	ID              string    `json:"id"`
	ExamID          string    `json:"examId"`
	StudentID       string    `json:"studentId"`
	SlotStart       time.Time `json:"slotStart"`
	SlotEnd         time.Time `json:"slotEnd"`
	IsAssigned      bool      `json:"isAssigned"`
	MissedRequestID string    `json:"missedRequestId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Contains reports whether now falls inside the slot (inclusive).
func (s ExamSchedule) Contains(now time.Time) bool {
	return !now.Before(s.SlotStart) && !now.After(s.SlotEnd)
}

// ExamAnswer is immutable once stored. IsCorrect stays nil for written answers.
type ExamAnswer struct {
	AttemptID        string    `json:"attemptId"`
	QuestionID       string    `json:"questionId"`
	Part             Part      `json:"part"`
	AnswerText       string    `json:"answerText,omitempty"`
	SelectedOptionID string    `json:"selectedOptionId,omitempty"`
	IsCorrect        *bool     `json:"isCorrect,omitempty"`
	Points           float64   `json:"points"`
	SubmittedAt      time.Time `json:"submittedAt"`
}

// InternalMark is coursework credit assigned by an instructor, possibly before any attempt.
type InternalMark struct {
	ExamID     string    `json:"examId"`
	StudentID  string    `json:"studentId"`
	Score      float64   `json:"score"`
	AssignedBy string    `json:"assignedBy"`
	AssignedAt time.Time `json:"assignedAt"`
}

type ExamCertificate struct {
	ID                string     `json:"id"`
	AttemptID         string     `json:"attemptId"`
	ExamID            string     `json:"examId"`
	StudentID         string     `json:"studentId"`
	CertificateNumber string     `json:"certificateNumber"`
	IssuedAt          time.Time  `json:"issuedAt"`
	ValidUntil        *time.Time `json:"validUntil,omitempty"`
}

type MissedRequestStatus string

const (
	MissedRequestPending  MissedRequestStatus = "pending"
	MissedRequestApproved MissedRequestStatus = "approved"
	MissedRequestRejected MissedRequestStatus = "rejected"
)

// MissedExamRequest is a student excuse for a missed window; approval allows one make-up schedule.
type MissedExamRequest struct {
	ID          string              `json:"id"`
	ExamID      string              `json:"examId"`
	StudentID   string              `json:"studentId"`
	Reason      string              `json:"reason"`
	Status      MissedRequestStatus `json:"status"`
	SubmittedAt time.Time           `json:"submittedAt"`
	ReviewedBy  string              `json:"reviewedBy,omitempty"`
	ReviewedAt  *time.Time          `json:"reviewedAt,omitempty"`
	ReviewNote  string              `json:"reviewNote,omitempty"`
	ScheduleID  string              `json:"scheduleId,omitempty"`
}
