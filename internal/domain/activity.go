package domain

import "time"

type ActivityKind string

const (
	ActivityExamPassed          ActivityKind = "exam_passed"
	ActivityExamResultPublished ActivityKind = "exam_result_published"
	ActivityCertificateIssued   ActivityKind = "certificate_issued"
	ActivityQuizPassed          ActivityKind = "quiz_passed"
	ActivityPuzzleCompleted     ActivityKind = "puzzle_completed"
	ActivityPuzzlePersonalBest  ActivityKind = "puzzle_personal_best"
)

// Activity is an append-only achievement derived from an attempt outcome.
type Activity struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId"`
	Kind      ActivityKind `json:"kind"`
	SubjectID string       `json:"subjectId"`
	Message   string       `json:"message"`
	CreatedAt time.Time    `json:"createdAt"`
}
