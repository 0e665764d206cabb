package domain

import "time"

// Role is resolved by the external identity directory.
type Role string

const (
	RoleAdmin      Role = "Admin"
	RoleInstructor Role = "Instructor"
	RoleStudent    Role = "Student"
)

// Actor is the authenticated caller of a use case.
type Actor struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// CanManage reports whether the actor may grade or publish for an exam owned by instructorID.
func (a Actor) CanManage(instructorID string) bool {
	return a.Role == RoleAdmin || (a.Role == RoleInstructor && a.UserID == instructorID)
}

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []Option `json:"options"`
	Points  int      `json:"points"` // defaults to 1 if zero
}

// EffectivePoints applies the one-point default.
func (q Question) EffectivePoints() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// Quiz is a collection of questions.
type Quiz struct {
	ID           string     `json:"id"`
	CourseID     string     `json:"courseId"`
	Title        string     `json:"title"`
	PassingScore float64    `json:"passingScore"`
	Questions    []Question `json:"questions"`
}

// TotalPoints is the denominator of the quiz percentage.
func (q Quiz) TotalPoints() int {
	total := 0
	for _, question := range q.Questions {
		total += question.EffectivePoints()
	}
	return total
}

// Percentage returns score/total*100 rounded to two decimals, zero for an empty total.
func Percentage(score, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return round2(score / total * 100)
}

type QuizAttemptStatus string

const (
	QuizAttemptInProgress QuizAttemptStatus = "InProgress"
	QuizAttemptCompleted  QuizAttemptStatus = "Completed"
)

// QuizAttempt is scored in a single batch; AttemptedAt to CompletedAt is informational.
type QuizAttempt struct {
	ID          string            `json:"id"`
	QuizID      string            `json:"quizId"`
	StudentID   string            `json:"studentId"`
	Status      QuizAttemptStatus `json:"status"`
	AttemptedAt time.Time         `json:"attemptedAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
	Score       int               `json:"score"`
	TotalPoints int               `json:"totalPoints"`
	Percentage  float64           `json:"percentage"`
	IsPassed    bool              `json:"isPassed"`
}

// AnswerSubmission models the scoring signal from clients.
type AnswerSubmission struct {
	QuestionID string `json:"questionId" validate:"required"`
	OptionID   string `json:"optionId" validate:"required"`
}

// StudentAnswer is the stored, scored form of an AnswerSubmission.
type StudentAnswer struct {
	AttemptID        string `json:"attemptId"`
	QuestionID       string `json:"questionId"`
	SelectedAnswerID string `json:"selectedAnswerId"`
	IsCorrect        bool   `json:"isCorrect"`
	Points           int    `json:"points"`
}

// Category and Course are catalog references created by the seed step.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Course struct {
	ID           string `json:"id"`
	CategoryID   string `json:"categoryId"`
	Title        string `json:"title"`
	InstructorID string `json:"instructorId"`
}
