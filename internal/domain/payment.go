package domain

import "time"

// PaymentPurpose separates re-exam fees from certificate fees.
type PaymentPurpose string

const (
	PaymentReExam      PaymentPurpose = "reexam"
	PaymentCertificate PaymentPurpose = "certificate"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Payment is a gateway result recorded as trusted input. AttemptID names the
// failed attempt (re-exam) or the passed attempt (certificate) it pays for.
type Payment struct {
	ID                  string         `json:"id"`
	Purpose             PaymentPurpose `json:"purpose" validate:"required,oneof=reexam certificate"`
	ExamID              string         `json:"examId" validate:"required"`
	StudentID           string         `json:"studentId" validate:"required"`
	AttemptID           string         `json:"attemptId" validate:"required"`
	TransactionID       string         `json:"transactionId" validate:"required,max=100"`
	Amount              float64        `json:"amount" validate:"gte=0"`
	Status              PaymentStatus  `json:"status" validate:"required,oneof=pending completed failed"`
	RecordedAt          time.Time      `json:"recordedAt"`
	ConsumedByAttemptID string         `json:"consumedByAttemptId,omitempty"`
}

// Usable reports whether the payment can still unlock something.
func (p Payment) Usable() bool {
	return p.Status == PaymentCompleted && p.ConsumedByAttemptID == ""
}
