package postgres

import (
	"context"
	"database/sql"

	"assessment-service/internal/app"
	"assessment-service/internal/domain"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Store is the Postgres app.Store. Every Atomically call is one database
// transaction; uniqueness lives in table constraints.
type Store struct {
	db *bun.DB
}

var _ app.Store = (*Store)(nil)

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Atomically(ctx context.Context, fn func(ctx context.Context, tx app.Tx) error) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// constraint name to domain error
var uniqueViolations = map[string]error{
	"exam_attempts_active_idx":         domain.ErrDuplicateAttempt,
	"exam_attempts_number_key":         domain.ErrDuplicateAttempt,
	"exam_attempts_schedule_idx":       domain.ErrScheduleUsed,
	"puzzle_attempts_active_idx":       domain.ErrDuplicateAttempt,
	"exam_answers_pkey":                domain.ErrAnswerExists,
	"student_answers_pkey":             domain.ErrAnswerExists,
	"exam_certificates_attempt_id_key": domain.ErrCertificateExists,
	"exam_certificates_number_key":     domain.ErrCertificateExists,
	"payments_transaction_id_key":      domain.ErrPaymentExists,
}

func mapErr(err error, notFound error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) && notFound != nil {
		return notFound
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.IntegrityViolation() {
		if mapped, ok := uniqueViolations[pgErr.Field('n')]; ok {
			return mapped
		}
	}
	return errors.Wrap(err, op)
}

type txRepo struct {
	tx bun.Tx
}

var _ app.Tx = (*txRepo)(nil)

// Lock takes a transaction-scoped advisory lock, released on commit or rollback.
func (r *txRepo) Lock(ctx context.Context, key string) error {
	_, err := r.tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", key)
	return mapErr(err, nil, "advisory lock")
}

func (r *txRepo) insert(ctx context.Context, model interface{}, op string) error {
	_, err := r.tx.NewInsert().Model(model).Exec(ctx)
	return mapErr(err, nil, op)
}

func (r *txRepo) update(ctx context.Context, model interface{}, notFound error, op string) error {
	res, err := r.tx.NewUpdate().Model(model).WherePK().Exec(ctx)
	if err != nil {
		return mapErr(err, nil, op)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound
	}
	return nil
}

// catalog

func (r *txRepo) Category(ctx context.Context, id string) (domain.Category, error) {
	var row categoryRow
	err := r.tx.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	return row.Data, mapErr(err, domain.ErrNotFound, "select category")
}

func (r *txRepo) InsertCategory(ctx context.Context, c domain.Category) error {
	return r.insert(ctx, &categoryRow{ID: c.ID, Data: c}, "insert category")
}

func (r *txRepo) Course(ctx context.Context, id string) (domain.Course, error) {
	var row courseRow
	err := r.tx.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	return row.Data, mapErr(err, domain.ErrNotFound, "select course")
}

func (r *txRepo) InsertCourse(ctx context.Context, c domain.Course) error {
	return r.insert(ctx, &courseRow{ID: c.ID, CategoryID: c.CategoryID, Data: c}, "insert course")
}

func (r *txRepo) ExamDefinition(ctx context.Context, examID string) (domain.ExamDefinition, error) {
	var row examRow
	err := r.tx.NewSelect().Model(&row).Where("id = ?", examID).Scan(ctx)
	return row.Data, mapErr(err, domain.ErrExamNotFound, "select exam")
}

func (r *txRepo) InsertExamDefinition(ctx context.Context, def domain.ExamDefinition) error {
	return r.insert(ctx, &examRow{ID: def.Exam.ID, CourseID: def.Exam.CourseID, Data: def}, "insert exam")
}

func (r *txRepo) Quiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var row quizRow
	err := r.tx.NewSelect().Model(&row).Where("id = ?", quizID).Scan(ctx)
	return row.Data, mapErr(err, domain.ErrQuizNotFound, "select quiz")
}

func (r *txRepo) InsertQuiz(ctx context.Context, quiz domain.Quiz) error {
	return r.insert(ctx, &quizRow{ID: quiz.ID, Data: quiz}, "insert quiz")
}

func (r *txRepo) PuzzleGame(ctx context.Context, gameID string) (domain.PuzzleGame, error) {
	var row puzzleGameRow
	err := r.tx.NewSelect().Model(&row).Where("id = ?", gameID).Scan(ctx)
	return row.Data, mapErr(err, domain.ErrPuzzleNotFound, "select puzzle game")
}

func (r *txRepo) InsertPuzzleGame(ctx context.Context, game domain.PuzzleGame) error {
	return r.insert(ctx, &puzzleGameRow{ID: game.ID, Data: game}, "insert puzzle game")
}

// exams

func (r *txRepo) Verification(ctx context.Context, examID, studentID string) (domain.ExamVerification, error) {
	var row verificationRow
	err := r.tx.NewSelect().Model(&row).
		Where("exam_id = ? AND student_id = ?", examID, studentID).
		Scan(ctx)
	return row.Data, mapErr(err, domain.ErrNotFound, "select verification")
}

func (r *txRepo) UpsertVerification(ctx context.Context, v domain.ExamVerification) error {
	_, err := r.tx.NewInsert().
		Model(&verificationRow{ExamID: v.ExamID, StudentID: v.StudentID, Data: v}).
		On("CONFLICT (exam_id, student_id) DO UPDATE").
		Set("data = EXCLUDED.data").
		Exec(ctx)
	return mapErr(err, nil, "upsert verification")
}

func (r *txRepo) Schedules(ctx context.Context, examID, studentID string) ([]domain.ExamSchedule, error) {
	var rows []scheduleRow
	err := r.tx.NewSelect().Model(&rows).
		Where("exam_id = ? AND student_id = ?", examID, studentID).
		Order("slot_start ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapErr(err, nil, "select schedules")
	}
	out := make([]domain.ExamSchedule, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Data)
	}
	return out, nil
}

func (r *txRepo) InsertSchedule(ctx context.Context, s domain.ExamSchedule) error {
	return r.insert(ctx, &scheduleRow{
		ID:        s.ID,
		ExamID:    s.ExamID,
		StudentID: s.StudentID,
		SlotStart: s.SlotStart,
		Data:      s,
	}, "insert schedule")
}

func (r *txRepo) examAttempts(ctx context.Context, q func(*bun.SelectQuery) *bun.SelectQuery) ([]domain.ExamAttempt, error) {
	var rows []examAttemptRow
	if err := q(r.tx.NewSelect().Model(&rows)).Scan(ctx); err != nil {
		return nil, mapErr(err, nil, "select exam attempts")
	}
	out := make([]domain.ExamAttempt, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Data)
	}
	return out, nil
}

func (r *txRepo) ExamAttempts(ctx context.Context, examID, studentID string) ([]domain.ExamAttempt, error) {
	return r.examAttempts(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("exam_id = ? AND student_id = ?", examID, studentID).Order("attempt_number ASC")
	})
}

func (r *txRepo) ExamAttemptsByExam(ctx context.Context, examID string) ([]domain.ExamAttempt, error) {
	return r.examAttempts(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("exam_id = ?", examID).Order("student_id ASC", "attempt_number ASC")
	})
}

func (r *txRepo) ActiveExamAttempts(ctx context.Context) ([]domain.ExamAttempt, error) {
	return r.examAttempts(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("active").Order("started_at ASC")
	})
}

func (r *txRepo) ExamAttempt(ctx context.Context, id string) (domain.ExamAttempt, error) {
	var row examAttemptRow
	err := r.tx.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	return row.Data, mapErr(err, domain.ErrAttemptNotFound, "select exam attempt")
}

func (r *txRepo) InsertExamAttempt(ctx context.Context, a domain.ExamAttempt) error {
	return r.insert(ctx, newExamAttemptRow(a), "insert exam attempt")
}

func (r *txRepo) UpdateExamAttempt(ctx context.Context, a domain.ExamAttempt) error {
	return r.update(ctx, newExamAttemptRow(a), domain.ErrAttemptNotFound, "update exam attempt")
}

func (r *txRepo) ExamAnswers(ctx context.Context, attemptID string) ([]domain.ExamAnswer, error) {
	var rows []examAnswerRow
	err := r.tx.NewSelect().Model(&rows).
		Where("attempt_id = ?", attemptID).
		Order("submitted_at ASC", "question_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapErr(err, nil, "select exam answers")
	}
	out := make([]domain.ExamAnswer, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Data)
	}
	return out, nil
}

func (r *txRepo) InsertExamAnswer(ctx context.Context, a domain.ExamAnswer) error {
	return r.insert(ctx, &examAnswerRow{
		AttemptID:   a.AttemptID,
		QuestionID:  a.QuestionID,
		SubmittedAt: a.SubmittedAt,
		Data:        a,
	}, "insert exam answer")
}

func (r *txRepo) InternalMark(ctx context.Context, examID, studentID string) (domain.InternalMark, error) {
	var row internalMarkRow
	err := r.tx.NewSelect().Model(&row).
		Where("exam_id = ? AND student_id = ?", examID, studentID).
		Scan(ctx)
	return row.Data, mapErr(err, domain.ErrNotFound, "select internal mark")
}

func (r *txRepo) UpsertInternalMark(ctx context.Context, m domain.InternalMark) error {
	_, err := r.tx.NewInsert().
		Model(&internalMarkRow{ExamID: m.ExamID, StudentID: m.StudentID, Data: m}).
		On("CONFLICT (exam_id, student_id) DO UPDATE").
		Set("data = EXCLUDED.data").
		Exec(ctx)
	return mapErr(err, nil, "upsert internal mark")
}

func (r *txRepo) CertificateByAttempt(ctx context.Context, attemptID string) (domain.ExamCertificate, error) {
	var row certificateRow
	err := r.tx.NewSelect().Model(&row).Where("attempt_id = ?", attemptID).Scan(ctx)
	return row.Data, mapErr(err, domain.ErrCertificateMissing, "select certificate")
}

func (r *txRepo) InsertCertificate(ctx context.Context, c domain.ExamCertificate) error {
	return r.insert(ctx, &certificateRow{
		ID:                c.ID,
		AttemptID:         c.AttemptID,
		CertificateNumber: c.CertificateNumber,
		Data:              c,
	}, "insert certificate")
}

func (r *txRepo) missedRequests(ctx context.Context, q func(*bun.SelectQuery) *bun.SelectQuery) ([]domain.MissedExamRequest, error) {
	var rows []missedRequestRow
	if err := q(r.tx.NewSelect().Model(&rows)).Order("submitted_at ASC").Scan(ctx); err != nil {
		return nil, mapErr(err, nil, "select missed requests")
	}
	out := make([]domain.MissedExamRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Data)
	}
	return out, nil
}

func (r *txRepo) MissedRequests(ctx context.Context, examID, studentID string) ([]domain.MissedExamRequest, error) {
	return r.missedRequests(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("exam_id = ? AND student_id = ?", examID, studentID)
	})
}

func (r *txRepo) PendingMissedRequests(ctx context.Context, examID string) ([]domain.MissedExamRequest, error) {
	return r.missedRequests(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("exam_id = ? AND status = ?", examID, string(domain.MissedRequestPending))
	})
}

func (r *txRepo) MissedRequest(ctx context.Context, id string) (domain.MissedExamRequest, error) {
	var row missedRequestRow
	err := r.tx.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	return row.Data, mapErr(err, domain.ErrRequestNotFound, "select missed request")
}

func (r *txRepo) InsertMissedRequest(ctx context.Context, req domain.MissedExamRequest) error {
	return r.insert(ctx, newMissedRequestRow(req), "insert missed request")
}

func (r *txRepo) UpdateMissedRequest(ctx context.Context, req domain.MissedExamRequest) error {
	return r.update(ctx, newMissedRequestRow(req), domain.ErrRequestNotFound, "update missed request")
}

// quizzes

func (r *txRepo) QuizAttempts(ctx context.Context, quizID, studentID string) ([]domain.QuizAttempt, error) {
	var rows []quizAttemptRow
	err := r.tx.NewSelect().Model(&rows).
		Where("quiz_id = ? AND student_id = ?", quizID, studentID).
		Order("attempted_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapErr(err, nil, "select quiz attempts")
	}
	out := make([]domain.QuizAttempt, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Data)
	}
	return out, nil
}

func (r *txRepo) QuizAttempt(ctx context.Context, id string) (domain.QuizAttempt, error) {
	var row quizAttemptRow
	err := r.tx.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	return row.Data, mapErr(err, domain.ErrAttemptNotFound, "select quiz attempt")
}

func (r *txRepo) InsertQuizAttempt(ctx context.Context, a domain.QuizAttempt) error {
	return r.insert(ctx, newQuizAttemptRow(a), "insert quiz attempt")
}

func (r *txRepo) UpdateQuizAttempt(ctx context.Context, a domain.QuizAttempt) error {
	return r.update(ctx, newQuizAttemptRow(a), domain.ErrAttemptNotFound, "update quiz attempt")
}

func (r *txRepo) StudentAnswers(ctx context.Context, attemptID string) ([]domain.StudentAnswer, error) {
	var rows []studentAnswerRow
	err := r.tx.NewSelect().Model(&rows).
		Where("attempt_id = ?", attemptID).
		OrderExpr("seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapErr(err, nil, "select student answers")
	}
	out := make([]domain.StudentAnswer, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Data)
	}
	return out, nil
}

func (r *txRepo) InsertStudentAnswers(ctx context.Context, answers []domain.StudentAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	rows := make([]studentAnswerRow, 0, len(answers))
	for _, a := range answers {
		rows = append(rows, studentAnswerRow{AttemptID: a.AttemptID, QuestionID: a.QuestionID, Data: a})
	}
	return r.insert(ctx, &rows, "insert student answers")
}

// puzzles

func (r *txRepo) ActivePuzzleAttempt(ctx context.Context, gameID, userID string) (domain.PuzzleAttempt, error) {
	var row puzzleAttemptRow
	err := r.tx.NewSelect().Model(&row).
		Where("game_id = ? AND user_id = ? AND active", gameID, userID).
		Scan(ctx)
	return row.Data, mapErr(err, domain.ErrAttemptNotFound, "select active puzzle attempt")
}

func (r *txRepo) ActivePuzzleAttempts(ctx context.Context) ([]domain.PuzzleAttempt, error) {
	var rows []puzzleAttemptRow
	if err := r.tx.NewSelect().Model(&rows).Where("active").Order("started_at ASC").Scan(ctx); err != nil {
		return nil, mapErr(err, nil, "select active puzzle attempts")
	}
	out := make([]domain.PuzzleAttempt, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Data)
	}
	return out, nil
}

func (r *txRepo) PuzzleAttempt(ctx context.Context, id string) (domain.PuzzleAttempt, error) {
	var row puzzleAttemptRow
	err := r.tx.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	return row.Data, mapErr(err, domain.ErrAttemptNotFound, "select puzzle attempt")
}

func (r *txRepo) InsertPuzzleAttempt(ctx context.Context, a domain.PuzzleAttempt) error {
	return r.insert(ctx, newPuzzleAttemptRow(a), "insert puzzle attempt")
}

func (r *txRepo) UpdatePuzzleAttempt(ctx context.Context, a domain.PuzzleAttempt) error {
	return r.update(ctx, newPuzzleAttemptRow(a), domain.ErrAttemptNotFound, "update puzzle attempt")
}

func (r *txRepo) PuzzleMoves(ctx context.Context, attemptID string) ([]domain.PuzzleMove, error) {
	var rows []puzzleMoveRow
	err := r.tx.NewSelect().Model(&rows).Where("attempt_id = ?", attemptID).Order("seq ASC").Scan(ctx)
	if err != nil {
		return nil, mapErr(err, nil, "select puzzle moves")
	}
	out := make([]domain.PuzzleMove, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Data)
	}
	return out, nil
}

func (r *txRepo) InsertPuzzleMove(ctx context.Context, m domain.PuzzleMove) error {
	return r.insert(ctx, &puzzleMoveRow{AttemptID: m.AttemptID, Seq: m.Seq, Data: m}, "insert puzzle move")
}

func (r *txRepo) LeaderboardEntry(ctx context.Context, gameID, userID string) (domain.LeaderboardEntry, error) {
	var row leaderboardRow
	err := r.tx.NewSelect().Model(&row).
		Where("game_id = ? AND user_id = ?", gameID, userID).
		Scan(ctx)
	return row.Data, mapErr(err, domain.ErrNotFound, "select leaderboard entry")
}

func (r *txRepo) UpsertLeaderboardEntry(ctx context.Context, e domain.LeaderboardEntry) error {
	_, err := r.tx.NewInsert().
		Model(newLeaderboardRow(e)).
		On("CONFLICT (game_id, user_id) DO UPDATE").
		Set("best_score = EXCLUDED.best_score").
		Set("best_time_seconds = EXCLUDED.best_time_seconds").
		Set("completed_attempts = EXCLUDED.completed_attempts").
		Set("updated_at = EXCLUDED.updated_at").
		Set("data = EXCLUDED.data").
		Exec(ctx)
	return mapErr(err, nil, "upsert leaderboard entry")
}

func (r *txRepo) Leaderboard(ctx context.Context, gameID string, limit int) ([]domain.LeaderboardEntry, error) {
	var rows []leaderboardRow
	q := r.tx.NewSelect().Model(&rows).
		Where("game_id = ? AND completed_attempts > 0", gameID).
		Order("best_score DESC", "best_time_seconds ASC", "updated_at ASC", "user_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, mapErr(err, nil, "select leaderboard")
	}
	out := make([]domain.LeaderboardEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Data)
	}
	return out, nil
}

// payments

func (r *txRepo) InsertPayment(ctx context.Context, p domain.Payment) error {
	return r.insert(ctx, newPaymentRow(p), "insert payment")
}

func (r *txRepo) UpdatePayment(ctx context.Context, p domain.Payment) error {
	return r.update(ctx, newPaymentRow(p), domain.ErrPaymentNotFound, "update payment")
}

func (r *txRepo) Payments(ctx context.Context, examID, studentID string, purpose domain.PaymentPurpose) ([]domain.Payment, error) {
	var rows []paymentRow
	err := r.tx.NewSelect().Model(&rows).
		Where("exam_id = ? AND student_id = ? AND purpose = ?", examID, studentID, string(purpose)).
		Order("recorded_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapErr(err, nil, "select payments")
	}
	out := make([]domain.Payment, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Data)
	}
	return out, nil
}

// activities

func (r *txRepo) InsertActivity(ctx context.Context, a domain.Activity) error {
	return r.insert(ctx, &activityRow{ID: a.ID, UserID: a.UserID, CreatedAt: a.CreatedAt, Data: a}, "insert activity")
}

func (r *txRepo) Activities(ctx context.Context, userID string, limit int) ([]domain.Activity, error) {
	var rows []activityRow
	q := r.tx.NewSelect().Model(&rows).
		Where("user_id = ?", userID).
		OrderExpr("created_at DESC, seq DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, mapErr(err, nil, "select activities")
	}
	out := make([]domain.Activity, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Data)
	}
	return out, nil
}
