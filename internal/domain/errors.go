package domain

import (
	"github.com/pkg/errors"
)

// Kind classifies a rejection so callers can react without matching every sentinel.
type Kind int

const (
	// KindInternal covers dependency failures (storage, cache, mail).
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindTimeGate
	KindPaymentRequired
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTimeGate:
		return "time_gate"
	case KindPaymentRequired:
		return "payment_required"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Error is a rejection that names the invariant that failed.
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

var (
	// ErrExamNotFound indicates the exam definition could not be loaded.
	ErrExamNotFound = newError(KindNotFound, "exam_not_found", "exam not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = newError(KindNotFound, "quiz_not_found", "quiz not found")
	// ErrPuzzleNotFound indicates the puzzle game could not be loaded.
	ErrPuzzleNotFound = newError(KindNotFound, "puzzle_not_found", "puzzle game not found")
	// ErrAttemptNotFound is returned for unknown exam, quiz or puzzle attempts.
	ErrAttemptNotFound = newError(KindNotFound, "attempt_not_found", "attempt not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = newError(KindValidation, "question_not_found", "question not found")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound     = newError(KindValidation, "option_not_found", "option not found")
	ErrRequestNotFound    = newError(KindNotFound, "missed_request_not_found", "missed exam request not found")
	ErrPaymentNotFound    = newError(KindNotFound, "payment_not_found", "payment not found")
	ErrCertificateMissing = newError(KindNotFound, "certificate_not_found", "certificate not found")
	ErrNotFound           = newError(KindNotFound, "not_found", "record not found")

	ErrExamNotAvailable   = newError(KindConflict, "exam_not_available", "exam is not approved or not active")
	ErrNotVerified        = newError(KindForbidden, "verification_missing", "student has not been verified for this exam")
	ErrForbidden          = newError(KindForbidden, "forbidden", "actor is not allowed to perform this action")
	ErrDuplicateAttempt   = newError(KindConflict, "duplicate_attempt", "an active attempt already exists")
	ErrAlreadyPassed      = newError(KindConflict, "already_passed", "a passed attempt already exists")
	ErrAwaitingResult     = newError(KindConflict, "awaiting_result", "previous attempt has not been scored yet")
	ErrAttemptCompleted   = newError(KindConflict, "attempt_completed", "attempt is already completed")
	ErrPartNotInPattern   = newError(KindConflict, "part_not_in_pattern", "exam pattern does not include this part")
	ErrPartClosed         = newError(KindConflict, "part_closed", "exam part is already completed")
	ErrPartInProgress     = newError(KindConflict, "other_part_in_progress", "another exam part is in progress")
	ErrAnswerExists       = newError(KindConflict, "answer_already_submitted", "question already answered in this attempt")
	ErrPartBNotGradable   = newError(KindConflict, "part_b_not_submitted", "part B has not been submitted yet")
	ErrNotScored          = newError(KindConflict, "not_scored", "attempt is not fully scored")
	ErrResultPublished    = newError(KindConflict, "result_published", "result is published and locked")
	ErrNotEligible        = newError(KindConflict, "certificate_not_eligible", "certificate requires a published, passed result")
	ErrInvalidTransition  = newError(KindConflict, "invalid_transition", "invalid attempt state transition")
	ErrScheduleUsed       = newError(KindConflict, "schedule_used", "schedule already backs an attempt")
	ErrRequestPending     = newError(KindConflict, "missed_request_pending", "a missed exam request is already pending")
	ErrRequestReviewed    = newError(KindConflict, "missed_request_reviewed", "missed exam request was already reviewed")
	ErrRequestNotApproved = newError(KindConflict, "missed_request_not_approved", "missed exam request is not approved or already used")
	ErrNotMissed          = newError(KindConflict, "exam_not_missed", "exam was not missed")
	ErrHintLimit          = newError(KindConflict, "hint_limit", "hint limit reached")
	ErrNothingToReveal    = newError(KindConflict, "nothing_to_reveal", "state already matches the solution")
	ErrPaymentExists      = newError(KindConflict, "payment_exists", "payment transaction already recorded")
	ErrCertificateExists  = newError(KindConflict, "certificate_exists", "certificate already issued for this attempt")

	ErrExamNotOpen           = newError(KindTimeGate, "exam_not_open", "exam window has not opened yet")
	ErrExamMissed            = newError(KindTimeGate, "exam_missed", "exam window has closed")
	ErrMissedRequestRequired = newError(KindTimeGate, "missed_request_required", "a missed exam needs an approved missed exam request")
	ErrPartTimeExpired       = newError(KindTimeGate, "part_time_expired", "time limit for this part has expired")
	ErrPuzzleTimeExpired     = newError(KindTimeGate, "puzzle_time_expired", "puzzle time limit has expired")

	ErrPaymentRequired = newError(KindPaymentRequired, "payment_required", "a completed payment is required")
)

// KindOf reports the kind of err, KindInternal when err is not a domain rejection.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	return KindInternal
}

// CodeOf returns the invariant code carried by err.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return "validation_failed"
	}
	return "internal"
}

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

func (err *ValidationError) Error() string {
	if err.Err == nil {
		return "validation failed"
	}
	return err.Err.Error()
}

func (err *ValidationError) Unwrap() error { return err.Err }
