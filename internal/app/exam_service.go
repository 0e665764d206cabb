package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"assessment-service/internal/domain"
	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ExamOptions carries the configurable defaults of the exam lifecycle.
type ExamOptions struct {
	// DefaultCertificateValidityDays applies when an exam does not set its own validity.
	// Zero issues certificates without expiry.
	DefaultCertificateValidityDays int
}

// ExamService contains the exam attempt lifecycle use cases.
type ExamService struct {
	store Store
	exams DefinitionRepository
	feed  *ActivityFeed
	opts  ExamOptions
	now   func() time.Time
}

func NewExamService(store Store, exams DefinitionRepository, feed *ActivityFeed, opts ExamOptions) *ExamService {
	return &ExamService{store: store, exams: exams, feed: feed, opts: opts, now: time.Now}
}

// WithClock is test-only for deterministic timestamps.
func (s *ExamService) WithClock(now func() time.Time) *ExamService {
	s.now = now
	return s
}

// AttemptView is the read model of an exam attempt.
type AttemptView struct {
	domain.ExamAttempt
	PartARemainingSeconds *int64              `json:"partARemainingSeconds,omitempty"`
	PartBRemainingSeconds *int64              `json:"partBRemainingSeconds,omitempty"`
	Answers               []domain.ExamAnswer `json:"answers,omitempty"`
}

// AnswerInput is one answer to an exam question.
type AnswerInput struct {
	QuestionID       string `json:"questionId" validate:"required"`
	SelectedOptionID string `json:"selectedOptionId"`
	AnswerText       string `json:"answerText" validate:"max=20000"`
}

// ScheduleInput assigns a slot. MissedRequestID links a make-up session to an approved request.
type ScheduleInput struct {
	ExamID          string    `json:"examId" validate:"required"`
	StudentID       string    `json:"studentId" validate:"required"`
	SlotStart       time.Time `json:"slotStart" validate:"required"`
	SlotEnd         time.Time `json:"slotEnd" validate:"required,gtfield=SlotStart"`
	MissedRequestID string    `json:"missedRequestId"`
}

func (s *ExamService) exam(ctx context.Context, examID string) (domain.ExamDefinition, error) {
	return s.exams.GetExam(ctx, examID)
}

func (s *ExamService) manage(ctx context.Context, actor domain.Actor, examID string) (domain.ExamDefinition, error) {
	def, err := s.exam(ctx, examID)
	if err != nil {
		return def, err
	}
	if !actor.CanManage(def.Exam.InstructorID) {
		return def, domain.ErrForbidden
	}
	return def, nil
}

// VerifyStudent records the identity check that gates attempt creation.
func (s *ExamService) VerifyStudent(ctx context.Context, actor domain.Actor, examID, studentID string, verified bool) (domain.ExamVerification, error) {
	if _, err := s.manage(ctx, actor, examID); err != nil {
		return domain.ExamVerification{}, err
	}
	now := s.now()
	v := domain.ExamVerification{ExamID: examID, StudentID: studentID, IsVerified: verified, VerifiedBy: actor.UserID, VerifiedAt: &now}
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		return tx.UpsertVerification(ctx, v)
	})
	return v, err
}

// StartAttempt creates a new attempt once every gate passes: exam available,
// student verified, prior attempts settled (re-exam paid), and inside the window.
func (s *ExamService) StartAttempt(ctx context.Context, actor domain.Actor, examID string) (AttemptView, error) {
	def, err := s.exam(ctx, examID)
	if err != nil {
		return AttemptView{}, err
	}
	exam := def.Exam
	if !exam.IsApproved || !exam.IsActive {
		return AttemptView{}, domain.ErrExamNotAvailable
	}
	studentID := actor.UserID
	now := s.now()

	var view AttemptView
	err = s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Lock(ctx, attemptKey(examID, studentID)); err != nil {
			return err
		}
		ver, err := tx.Verification(ctx, examID, studentID)
		if err != nil && !isNotFound(err) {
			return err
		}
		if err != nil || !ver.IsVerified {
			return domain.ErrNotVerified
		}

		attempts, err := tx.ExamAttempts(ctx, examID, studentID)
		if err != nil {
			return err
		}
		payment, err := s.reExamPayment(ctx, tx, exam, attempts)
		if err != nil {
			return err
		}
		windowEnd, scheduleID, err := s.effectiveWindow(ctx, tx, exam, studentID, attempts, now)
		if err != nil {
			return err
		}

		a := domain.NewExamAttempt(exam, uuid.NewString(), studentID, scheduleID, len(attempts)+1, now, windowEnd)
		mark, err := tx.InternalMark(ctx, examID, studentID)
		switch {
		case err == nil:
			if err := a.AssignInternal(exam, mark.Score); err != nil {
				return err
			}
		case !isNotFound(err):
			return err
		}
		if err := tx.InsertExamAttempt(ctx, a); err != nil {
			return err
		}
		if payment != nil {
			payment.ConsumedByAttemptID = a.ID
			if err := tx.UpdatePayment(ctx, *payment); err != nil {
				return err
			}
		}
		view = s.view(exam, a, nil, now)
		return nil
	})
	if err != nil {
		return AttemptView{}, err
	}
	glog.V(2).Infof("exam %s: student %s started attempt %d", examID, studentID, view.AttemptNumber)
	return view, nil
}

// reExamPayment checks prior attempts and returns the payment unlocking a re-exam, if one is needed.
func (s *ExamService) reExamPayment(ctx context.Context, tx Tx, exam domain.Exam, attempts []domain.ExamAttempt) (*domain.Payment, error) {
	if len(attempts) == 0 {
		return nil, nil
	}
	for _, a := range attempts {
		if a.Active() {
			return nil, domain.ErrDuplicateAttempt
		}
		if a.IsPassed {
			return nil, domain.ErrAlreadyPassed
		}
	}
	last := attempts[len(attempts)-1]
	if !last.Scored() {
		return nil, domain.ErrAwaitingResult
	}
	payments, err := tx.Payments(ctx, exam.ID, last.StudentID, domain.PaymentReExam)
	if err != nil {
		return nil, err
	}
	for i := range payments {
		if payments[i].AttemptID == last.ID && payments[i].Usable() {
			return &payments[i], nil
		}
	}
	return nil, errors.Wrapf(domain.ErrPaymentRequired, "re-exam after attempt %d", last.AttemptNumber)
}

// effectiveWindow picks an assigned, unused schedule containing now, else the exam window.
func (s *ExamService) effectiveWindow(ctx context.Context, tx Tx, exam domain.Exam, studentID string, attempts []domain.ExamAttempt, now time.Time) (time.Time, string, error) {
	schedules, err := tx.Schedules(ctx, exam.ID, studentID)
	if err != nil {
		return time.Time{}, "", err
	}
	open := unusedSchedules(schedules, attempts)
	for _, sch := range open {
		if sch.Contains(now) {
			return sch.SlotEnd, sch.ID, nil
		}
	}
	if exam.IsTimeActive(now) {
		return exam.ScheduledEndTime, "", nil
	}
	if now.Before(exam.ScheduledStartTime) {
		return time.Time{}, "", domain.ErrExamNotOpen
	}
	for _, sch := range open {
		if now.Before(sch.SlotStart) {
			return time.Time{}, "", domain.ErrExamNotOpen
		}
	}
	return time.Time{}, "", domain.ErrExamMissed
}

// windowForfeited reports a student who let the exam window and every open slot pass unused.
func windowForfeited(exam domain.Exam, attempts []domain.ExamAttempt, schedules []domain.ExamSchedule, now time.Time) bool {
	// Any attempt, including one still running, means the window was used.
	if !domain.IsExamMissed(exam, attempts, now) {
		return false
	}
	for _, sch := range unusedSchedules(schedules, attempts) {
		if !now.After(sch.SlotEnd) {
			return false
		}
	}
	return true
}

func unusedSchedules(schedules []domain.ExamSchedule, attempts []domain.ExamAttempt) []domain.ExamSchedule {
	used := make(map[string]struct{}, len(attempts))
	for _, a := range attempts {
		if a.ScheduleID != "" {
			used[a.ScheduleID] = struct{}{}
		}
	}
	out := make([]domain.ExamSchedule, 0, len(schedules))
	for _, sch := range schedules {
		if _, ok := used[sch.ID]; ok || !sch.IsAssigned {
			continue
		}
		out = append(out, sch)
	}
	return out
}

// StartPart opens a part explicitly; submitting the first answer does the same.
func (s *ExamService) StartPart(ctx context.Context, actor domain.Actor, attemptID string, part domain.Part) (AttemptView, error) {
	if err := validatePart(part); err != nil {
		return AttemptView{}, err
	}
	return s.studentStep(ctx, actor, attemptID, part, func(exam domain.Exam, a *domain.ExamAttempt, _ []domain.ExamAnswer, now time.Time) error {
		return a.StartPart(exam, part, now)
	})
}

// SubmitPart closes a part. Part A is scored from the stored answers.
func (s *ExamService) SubmitPart(ctx context.Context, actor domain.Actor, attemptID string, part domain.Part) (AttemptView, error) {
	if err := validatePart(part); err != nil {
		return AttemptView{}, err
	}
	return s.studentStep(ctx, actor, attemptID, part, func(exam domain.Exam, a *domain.ExamAttempt, answers []domain.ExamAnswer, now time.Time) error {
		return a.CompletePart(exam, part, partAScore(answers), now, false)
	})
}

// studentStep loads the caller's attempt, force-completes expired parts and applies step.
// A step on a part that just expired is rejected after the expiry is committed.
func (s *ExamService) studentStep(ctx context.Context, actor domain.Actor, attemptID string, part domain.Part,
	step func(exam domain.Exam, a *domain.ExamAttempt, answers []domain.ExamAnswer, now time.Time) error) (AttemptView, error) {
	var (
		view    AttemptView
		expired bool
	)
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		a, err := tx.ExamAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if a.StudentID != actor.UserID {
			return domain.ErrForbidden
		}
		def, err := s.exam(ctx, a.ExamID)
		if err != nil {
			return err
		}
		exam := def.Exam
		now := s.now()
		answers, err := tx.ExamAnswers(ctx, a.ID)
		if err != nil {
			return err
		}
		closed, err := s.expire(ctx, tx, exam, &a, answers, now)
		if err != nil {
			return err
		}
		view = s.view(exam, a, answers, now)
		if containsPart(closed, part) {
			expired = true
			return nil
		}
		if err := step(exam, &a, answers, now); err != nil {
			return err
		}
		if err := tx.UpdateExamAttempt(ctx, a); err != nil {
			return err
		}
		view = s.view(exam, a, answers, now)
		return nil
	})
	if err != nil {
		return AttemptView{}, err
	}
	if expired {
		return view, domain.ErrPartTimeExpired
	}
	return view, nil
}

// SubmitAnswer stores one answer. Part A answers are scored on insert.
func (s *ExamService) SubmitAnswer(ctx context.Context, actor domain.Actor, attemptID string, in AnswerInput) (domain.ExamAnswer, error) {
	if err := domain.ValidateStruct(in); err != nil {
		return domain.ExamAnswer{}, err
	}
	var (
		answer  domain.ExamAnswer
		expired bool
	)
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		a, err := tx.ExamAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if a.StudentID != actor.UserID {
			return domain.ErrForbidden
		}
		def, err := s.exam(ctx, a.ExamID)
		if err != nil {
			return err
		}
		exam := def.Exam
		q, ok := def.Question(in.QuestionID)
		if !ok {
			return domain.ErrQuestionNotFound
		}
		if !a.Active() {
			return domain.ErrAttemptCompleted
		}
		now := s.now()
		answers, err := tx.ExamAnswers(ctx, a.ID)
		if err != nil {
			return err
		}
		closed, err := s.expire(ctx, tx, exam, &a, answers, now)
		if err != nil {
			return err
		}
		if containsPart(closed, q.Part) {
			expired = true
			return nil
		}
		if err := a.StartPart(exam, q.Part, now); err != nil {
			return err
		}

		answer, err = buildAnswer(a.ID, q, in, now)
		if err != nil {
			return err
		}
		if err := tx.InsertExamAnswer(ctx, answer); err != nil {
			return err
		}
		return tx.UpdateExamAttempt(ctx, a)
	})
	if err != nil {
		return domain.ExamAnswer{}, err
	}
	if expired {
		return domain.ExamAnswer{}, domain.ErrPartTimeExpired
	}
	return answer, nil
}

func buildAnswer(attemptID string, q domain.ExamQuestion, in AnswerInput, now time.Time) (domain.ExamAnswer, error) {
	ans := domain.ExamAnswer{AttemptID: attemptID, QuestionID: q.ID, Part: q.Part, SubmittedAt: now}
	switch q.Part {
	case domain.PartA:
		if in.SelectedOptionID == "" {
			return ans, domain.NewValidationError(errors.New("missing option"),
				domain.FieldError{Field: "selectedOptionId", Error: "this field is required"})
		}
		if !q.HasOption(in.SelectedOptionID) {
			return ans, domain.ErrOptionNotFound
		}
		correctID, _ := q.CorrectOption()
		correct := in.SelectedOptionID == correctID
		ans.SelectedOptionID = in.SelectedOptionID
		ans.IsCorrect = &correct
		if correct {
			ans.Points = float64(q.Points)
		}
	default:
		if strings.TrimSpace(in.AnswerText) == "" {
			return ans, domain.NewValidationError(errors.New("missing answer text"),
				domain.FieldError{Field: "answerText", Error: "this field is required"})
		}
		ans.AnswerText = in.AnswerText
	}
	return ans, nil
}

// GradePartB records the grader's score for the written part.
func (s *ExamService) GradePartB(ctx context.Context, actor domain.Actor, attemptID string, score float64) (AttemptView, error) {
	return s.staffStep(ctx, actor, attemptID, func(exam domain.Exam, a *domain.ExamAttempt, _ []domain.ExamAnswer, _ time.Time) error {
		return a.GradePartB(exam, score)
	})
}

// Rescore recomputes part A from the stored answers. Running it twice changes nothing.
func (s *ExamService) Rescore(ctx context.Context, actor domain.Actor, attemptID string) (AttemptView, error) {
	return s.staffStep(ctx, actor, attemptID, func(exam domain.Exam, a *domain.ExamAttempt, answers []domain.ExamAnswer, _ time.Time) error {
		return a.Rescore(exam, partAScore(answers))
	})
}

// PublishResult locks the score and announces it to the student.
func (s *ExamService) PublishResult(ctx context.Context, actor domain.Actor, attemptID string) (AttemptView, error) {
	var activities []domain.Activity
	view, err := s.staffStepTx(ctx, actor, attemptID, func(ctx context.Context, tx Tx, exam domain.Exam, a *domain.ExamAttempt, _ []domain.ExamAnswer, now time.Time) error {
		if err := a.Publish(exam, now); err != nil {
			return err
		}
		act, err := s.feed.record(ctx, tx, domain.ActivityExamResultPublished, a.StudentID, a.ID,
			fmt.Sprintf("Result published for %q: %.2f%%", exam.Title, a.Percentage))
		if err != nil {
			return err
		}
		activities = append(activities, act)
		if a.IsPassed {
			act, err := s.feed.record(ctx, tx, domain.ActivityExamPassed, a.StudentID, a.ID,
				fmt.Sprintf("Passed %q", exam.Title))
			if err != nil {
				return err
			}
			activities = append(activities, act)
		}
		return nil
	})
	if err != nil {
		return AttemptView{}, err
	}
	s.feed.deliver(ctx, activities)
	return view, nil
}

func (s *ExamService) staffStep(ctx context.Context, actor domain.Actor, attemptID string,
	step func(exam domain.Exam, a *domain.ExamAttempt, answers []domain.ExamAnswer, now time.Time) error) (AttemptView, error) {
	return s.staffStepTx(ctx, actor, attemptID, func(_ context.Context, _ Tx, exam domain.Exam, a *domain.ExamAttempt, answers []domain.ExamAnswer, now time.Time) error {
		return step(exam, a, answers, now)
	})
}

// staffStepTx applies a grading step for the exam's instructor or an admin.
// Expired parts are closed first so grading sees the final answers.
func (s *ExamService) staffStepTx(ctx context.Context, actor domain.Actor, attemptID string,
	step func(ctx context.Context, tx Tx, exam domain.Exam, a *domain.ExamAttempt, answers []domain.ExamAnswer, now time.Time) error) (AttemptView, error) {
	var view AttemptView
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		a, err := tx.ExamAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		def, err := s.manage(ctx, actor, a.ExamID)
		if err != nil {
			return err
		}
		exam := def.Exam
		now := s.now()
		answers, err := tx.ExamAnswers(ctx, a.ID)
		if err != nil {
			return err
		}
		if _, err := s.expire(ctx, tx, exam, &a, answers, now); err != nil {
			return err
		}
		if err := step(ctx, tx, exam, &a, answers, now); err != nil {
			return err
		}
		if err := tx.UpdateExamAttempt(ctx, a); err != nil {
			return err
		}
		view = s.view(exam, a, answers, now)
		return nil
	})
	return view, err
}

// AssignInternalMarks stores the coursework mark and applies it to the
// student's latest unpublished attempt. It may run before any attempt exists.
func (s *ExamService) AssignInternalMarks(ctx context.Context, actor domain.Actor, examID, studentID string, score float64) (domain.InternalMark, error) {
	def, err := s.manage(ctx, actor, examID)
	if err != nil {
		return domain.InternalMark{}, err
	}
	exam := def.Exam
	if err := domain.ValidateInternalScore(exam, score); err != nil {
		return domain.InternalMark{}, err
	}
	mark := domain.InternalMark{ExamID: examID, StudentID: studentID, Score: score, AssignedBy: actor.UserID, AssignedAt: s.now()}
	err = s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Lock(ctx, attemptKey(examID, studentID)); err != nil {
			return err
		}
		if err := tx.UpsertInternalMark(ctx, mark); err != nil {
			return err
		}
		attempts, err := tx.ExamAttempts(ctx, examID, studentID)
		if err != nil || len(attempts) == 0 {
			return err
		}
		latest := attempts[len(attempts)-1]
		if latest.ResultPublished() {
			// Published results stay locked; the mark carries over to the next attempt.
			return nil
		}
		if err := latest.AssignInternal(exam, score); err != nil {
			return err
		}
		return tx.UpdateExamAttempt(ctx, latest)
	})
	if err != nil {
		return domain.InternalMark{}, err
	}
	return mark, nil
}

// IssueCertificate returns the attempt's certificate, creating it on first call.
func (s *ExamService) IssueCertificate(ctx context.Context, actor domain.Actor, attemptID string) (domain.ExamCertificate, error) {
	var (
		cert       domain.ExamCertificate
		activities []domain.Activity
	)
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		a, err := tx.ExamAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if a.StudentID != actor.UserID && actor.Role != domain.RoleAdmin {
			return domain.ErrForbidden
		}
		if err := tx.Lock(ctx, "certificate:"+attemptID); err != nil {
			return err
		}
		existing, err := tx.CertificateByAttempt(ctx, attemptID)
		if err == nil {
			cert = existing
			return nil
		}
		if !isNotFound(err) {
			return err
		}

		def, err := s.exam(ctx, a.ExamID)
		if err != nil {
			return err
		}
		exam := def.Exam
		if !a.ResultPublished() || !a.IsPassed {
			return domain.ErrNotEligible
		}
		if exam.CertificateFee > 0 {
			paid, err := s.hasCompletedPayment(ctx, tx, a, domain.PaymentCertificate)
			if err != nil {
				return err
			}
			if !paid {
				return errors.Wrapf(domain.ErrPaymentRequired, "certificate fee %.2f", exam.CertificateFee)
			}
		}

		now := s.now()
		cert = domain.ExamCertificate{
			ID:                uuid.NewString(),
			AttemptID:         a.ID,
			ExamID:            a.ExamID,
			StudentID:         a.StudentID,
			CertificateNumber: certificateNumber(now),
			IssuedAt:          now,
		}
		days := exam.CertificateValidityDays
		if days == 0 {
			days = s.opts.DefaultCertificateValidityDays
		}
		if days > 0 {
			until := now.AddDate(0, 0, days)
			cert.ValidUntil = &until
		}
		if err := tx.InsertCertificate(ctx, cert); err != nil {
			return err
		}
		if err := a.MarkCertified(exam, cert.ID); err != nil {
			return err
		}
		if err := tx.UpdateExamAttempt(ctx, a); err != nil {
			return err
		}
		act, err := s.feed.record(ctx, tx, domain.ActivityCertificateIssued, a.StudentID, cert.ID,
			fmt.Sprintf("Certificate %s issued for %q", cert.CertificateNumber, exam.Title))
		if err != nil {
			return err
		}
		activities = append(activities, act)
		return nil
	})
	if err != nil {
		return domain.ExamCertificate{}, err
	}
	s.feed.deliver(ctx, activities)
	return cert, nil
}

func (s *ExamService) hasCompletedPayment(ctx context.Context, tx Tx, a domain.ExamAttempt, purpose domain.PaymentPurpose) (bool, error) {
	payments, err := tx.Payments(ctx, a.ExamID, a.StudentID, purpose)
	if err != nil {
		return false, err
	}
	for _, p := range payments {
		if p.AttemptID == a.ID && p.Status == domain.PaymentCompleted {
			return true, nil
		}
	}
	return false, nil
}

// certificateNumber formats CERT-YYYYMMDD-XXXXXXXX.
func certificateNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "CERT-" + now.UTC().Format("20060102") + "-" + suffix
}

// RecordPayment stores a gateway result. The gateway has already verified it.
func (s *ExamService) RecordPayment(ctx context.Context, actor domain.Actor, p domain.Payment) (domain.Payment, error) {
	if actor.Role != domain.RoleAdmin && actor.UserID != p.StudentID {
		return domain.Payment{}, domain.ErrForbidden
	}
	p.ID = uuid.NewString()
	p.RecordedAt = s.now()
	p.ConsumedByAttemptID = ""
	if err := domain.ValidateStruct(p); err != nil {
		return domain.Payment{}, err
	}
	def, err := s.exam(ctx, p.ExamID)
	if err != nil {
		return domain.Payment{}, err
	}
	fee := def.Exam.ReExamFee
	if p.Purpose == domain.PaymentCertificate {
		fee = def.Exam.CertificateFee
	}
	if p.Status == domain.PaymentCompleted && p.Amount < fee {
		return domain.Payment{}, domain.NewValidationError(errors.New("payment below fee"),
			domain.FieldError{Field: "amount", Error: fmt.Sprintf("must be at least %.2f", fee)})
	}
	err = s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		a, err := tx.ExamAttempt(ctx, p.AttemptID)
		if err != nil {
			return err
		}
		if a.ExamID != p.ExamID || a.StudentID != p.StudentID {
			return domain.NewValidationError(errors.New("attempt does not match payment"),
				domain.FieldError{Field: "attemptId", Error: "must be an attempt of this student on this exam"})
		}
		return tx.InsertPayment(ctx, p)
	})
	if err != nil {
		return domain.Payment{}, err
	}
	return p, nil
}

// RequestMissedExam lets a student explain a missed window. One request may be pending at a time.
func (s *ExamService) RequestMissedExam(ctx context.Context, actor domain.Actor, examID, reason string) (domain.MissedExamRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" || len(reason) > 2000 {
		return domain.MissedExamRequest{}, domain.NewValidationError(errors.New("invalid reason"),
			domain.FieldError{Field: "reason", Error: "must be between 1 and 2000 characters"})
	}
	def, err := s.exam(ctx, examID)
	if err != nil {
		return domain.MissedExamRequest{}, err
	}
	exam := def.Exam
	studentID := actor.UserID
	now := s.now()

	var req domain.MissedExamRequest
	err = s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Lock(ctx, attemptKey(examID, studentID)); err != nil {
			return err
		}
		attempts, err := tx.ExamAttempts(ctx, examID, studentID)
		if err != nil {
			return err
		}
		schedules, err := tx.Schedules(ctx, examID, studentID)
		if err != nil {
			return err
		}
		if !windowForfeited(exam, attempts, schedules, now) {
			return domain.ErrNotMissed
		}
		existing, err := tx.MissedRequests(ctx, examID, studentID)
		if err != nil {
			return err
		}
		for _, r := range existing {
			if r.Status == domain.MissedRequestPending {
				return domain.ErrRequestPending
			}
		}
		req = domain.MissedExamRequest{
			ID:          uuid.NewString(),
			ExamID:      examID,
			StudentID:   studentID,
			Reason:      reason,
			Status:      domain.MissedRequestPending,
			SubmittedAt: now,
		}
		return tx.InsertMissedRequest(ctx, req)
	})
	if err != nil {
		return domain.MissedExamRequest{}, err
	}
	return req, nil
}

// ReviewMissedRequest approves or rejects a pending request.
func (s *ExamService) ReviewMissedRequest(ctx context.Context, actor domain.Actor, requestID string, approve bool, note string) (domain.MissedExamRequest, error) {
	var req domain.MissedExamRequest
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		r, err := tx.MissedRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if _, err := s.manage(ctx, actor, r.ExamID); err != nil {
			return err
		}
		if r.Status != domain.MissedRequestPending {
			return domain.ErrRequestReviewed
		}
		now := s.now()
		r.Status = domain.MissedRequestRejected
		if approve {
			r.Status = domain.MissedRequestApproved
		}
		r.ReviewedBy = actor.UserID
		r.ReviewedAt = &now
		r.ReviewNote = strings.TrimSpace(note)
		req = r
		return tx.UpdateMissedRequest(ctx, r)
	})
	return req, err
}

// PendingMissedRequests lists requests awaiting review for an exam.
func (s *ExamService) PendingMissedRequests(ctx context.Context, actor domain.Actor, examID string) ([]domain.MissedExamRequest, error) {
	if _, err := s.manage(ctx, actor, examID); err != nil {
		return nil, err
	}
	var out []domain.MissedExamRequest
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.PendingMissedRequests(ctx, examID)
		return err
	})
	return out, err
}

// AssignSchedule creates a slot for a student. A make-up slot consumes its approved request,
// and a forfeited window only reopens through one.
func (s *ExamService) AssignSchedule(ctx context.Context, actor domain.Actor, in ScheduleInput) (domain.ExamSchedule, error) {
	if err := domain.ValidateStruct(in); err != nil {
		return domain.ExamSchedule{}, err
	}
	def, err := s.manage(ctx, actor, in.ExamID)
	if err != nil {
		return domain.ExamSchedule{}, err
	}
	now := s.now()
	sch := domain.ExamSchedule{
		ID:              uuid.NewString(),
		ExamID:          in.ExamID,
		StudentID:       in.StudentID,
		SlotStart:       in.SlotStart,
		SlotEnd:         in.SlotEnd,
		IsAssigned:      true,
		MissedRequestID: in.MissedRequestID,
		CreatedAt:       now,
	}
	err = s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Lock(ctx, attemptKey(in.ExamID, in.StudentID)); err != nil {
			return err
		}
		if in.MissedRequestID == "" {
			attempts, err := tx.ExamAttempts(ctx, in.ExamID, in.StudentID)
			if err != nil {
				return err
			}
			schedules, err := tx.Schedules(ctx, in.ExamID, in.StudentID)
			if err != nil {
				return err
			}
			if windowForfeited(def.Exam, attempts, schedules, now) {
				return domain.ErrMissedRequestRequired
			}
		} else {
			if err := tx.Lock(ctx, "missed:"+in.MissedRequestID); err != nil {
				return err
			}
			r, err := tx.MissedRequest(ctx, in.MissedRequestID)
			if err != nil {
				return err
			}
			if r.ExamID != in.ExamID || r.StudentID != in.StudentID {
				return domain.NewValidationError(errors.New("request does not match schedule"),
					domain.FieldError{Field: "missedRequestId", Error: "must belong to this exam and student"})
			}
			if r.Status != domain.MissedRequestApproved || r.ScheduleID != "" {
				return domain.ErrRequestNotApproved
			}
			r.ScheduleID = sch.ID
			if err := tx.UpdateMissedRequest(ctx, r); err != nil {
				return err
			}
		}
		return tx.InsertSchedule(ctx, sch)
	})
	if err != nil {
		return domain.ExamSchedule{}, err
	}
	return sch, nil
}

// Attempt returns the read model, closing parts whose deadline passed.
func (s *ExamService) Attempt(ctx context.Context, actor domain.Actor, attemptID string) (AttemptView, error) {
	var view AttemptView
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		a, err := tx.ExamAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		def, err := s.exam(ctx, a.ExamID)
		if err != nil {
			return err
		}
		if a.StudentID != actor.UserID && !actor.CanManage(def.Exam.InstructorID) {
			return domain.ErrForbidden
		}
		now := s.now()
		answers, err := tx.ExamAnswers(ctx, a.ID)
		if err != nil {
			return err
		}
		if _, err := s.expire(ctx, tx, def.Exam, &a, answers, now); err != nil {
			return err
		}
		view = s.view(def.Exam, a, answers, now)
		return nil
	})
	return view, err
}

// StudentAttempts lists the caller's attempts at an exam.
func (s *ExamService) StudentAttempts(ctx context.Context, actor domain.Actor, examID string) ([]domain.ExamAttempt, error) {
	var out []domain.ExamAttempt
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.ExamAttempts(ctx, examID, actor.UserID)
		return err
	})
	return out, err
}

// ExamAttempts lists every attempt at an exam for its instructor.
func (s *ExamService) ExamAttempts(ctx context.Context, actor domain.Actor, examID string) ([]domain.ExamAttempt, error) {
	if _, err := s.manage(ctx, actor, examID); err != nil {
		return nil, err
	}
	var out []domain.ExamAttempt
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.ExamAttemptsByExam(ctx, examID)
		return err
	})
	return out, err
}

// SweepExpired force-completes parts of active attempts whose deadline passed.
// It returns the number of attempts touched.
func (s *ExamService) SweepExpired(ctx context.Context) (int, error) {
	touched := 0
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		active, err := tx.ActiveExamAttempts(ctx)
		if err != nil {
			return err
		}
		now := s.now()
		for i := range active {
			a := active[i]
			def, err := s.exam(ctx, a.ExamID)
			if err != nil {
				return err
			}
			answers, err := tx.ExamAnswers(ctx, a.ID)
			if err != nil {
				return err
			}
			closed, err := s.expire(ctx, tx, def.Exam, &a, answers, now)
			if err != nil {
				return err
			}
			if len(closed) > 0 {
				touched++
			}
		}
		return nil
	})
	return touched, err
}

// expire force-completes parts past their deadline and persists the attempt when anything closed.
func (s *ExamService) expire(ctx context.Context, tx Tx, exam domain.Exam, a *domain.ExamAttempt, answers []domain.ExamAnswer, now time.Time) ([]domain.Part, error) {
	if !a.Active() {
		return nil, nil
	}
	closed, err := a.ExpireParts(exam, partAScore(answers), now)
	if err != nil {
		return nil, err
	}
	if len(closed) == 0 {
		return nil, nil
	}
	glog.V(2).Infof("attempt %s: force-completed parts %v", a.ID, closed)
	return closed, tx.UpdateExamAttempt(ctx, *a)
}

func (s *ExamService) view(exam domain.Exam, a domain.ExamAttempt, answers []domain.ExamAnswer, now time.Time) AttemptView {
	return AttemptView{
		ExamAttempt:           a,
		PartARemainingSeconds: remainingSeconds(exam, a, domain.PartA, now),
		PartBRemainingSeconds: remainingSeconds(exam, a, domain.PartB, now),
		Answers:               answers,
	}
}

func remainingSeconds(exam domain.Exam, a domain.ExamAttempt, p domain.Part, now time.Time) *int64 {
	if a.Progress(p).Done() {
		return nil
	}
	deadline, ok := a.Deadline(exam, p)
	if !ok {
		return nil
	}
	secs := int64(deadline.Sub(now) / time.Second)
	if secs < 0 {
		secs = 0
	}
	return &secs
}

// partAScore sums the points of stored part A answers.
func partAScore(answers []domain.ExamAnswer) float64 {
	total := 0.0
	for _, ans := range answers {
		if ans.Part == domain.PartA {
			total += ans.Points
		}
	}
	return total
}

func containsPart(parts []domain.Part, p domain.Part) bool {
	for _, candidate := range parts {
		if candidate == p {
			return true
		}
	}
	return false
}

func validatePart(p domain.Part) error {
	if p != domain.PartA && p != domain.PartB {
		return domain.NewValidationError(errors.Errorf("unknown part %q", p),
			domain.FieldError{Field: "part", Error: "must be one of: A B"})
	}
	return nil
}

func attemptKey(examID, studentID string) string {
	return "exam:" + examID + ":" + studentID
}

func isNotFound(err error) bool {
	return domain.KindOf(err) == domain.KindNotFound
}
