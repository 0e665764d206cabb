package memory

import (
	"context"
	"sort"
	"sync"

	"assessment-service/internal/app"
	"assessment-service/internal/domain"
)

// Store is an in-memory app.Store. Transactions run one at a time against a
// copy of the committed state, which replaces it on success.
type Store struct {
	txMu sync.Mutex

	mu    sync.RWMutex
	state *state
}

type pair struct{ a, b string }

type state struct {
	categories map[string]domain.Category
	courses    map[string]domain.Course
	exams      map[string]domain.ExamDefinition
	quizzes    map[string]domain.Quiz
	puzzles    map[string]domain.PuzzleGame

	verifications map[pair]domain.ExamVerification
	schedules     map[string]domain.ExamSchedule
	examAttempts  map[string]domain.ExamAttempt
	examAnswers   map[string][]domain.ExamAnswer
	internalMarks map[pair]domain.InternalMark
	certificates  map[string]domain.ExamCertificate
	missed        map[string]domain.MissedExamRequest

	quizAttempts   map[string]domain.QuizAttempt
	studentAnswers map[string][]domain.StudentAnswer

	puzzleAttempts map[string]domain.PuzzleAttempt
	puzzleMoves    map[string][]domain.PuzzleMove
	leaderboard    map[pair]domain.LeaderboardEntry

	payments   map[string]domain.Payment
	activities map[string][]domain.Activity
}

func NewStore() *Store {
	return &Store{state: &state{
		categories:     map[string]domain.Category{},
		courses:        map[string]domain.Course{},
		exams:          map[string]domain.ExamDefinition{},
		quizzes:        map[string]domain.Quiz{},
		puzzles:        map[string]domain.PuzzleGame{},
		verifications:  map[pair]domain.ExamVerification{},
		schedules:      map[string]domain.ExamSchedule{},
		examAttempts:   map[string]domain.ExamAttempt{},
		examAnswers:    map[string][]domain.ExamAnswer{},
		internalMarks:  map[pair]domain.InternalMark{},
		certificates:   map[string]domain.ExamCertificate{},
		missed:         map[string]domain.MissedExamRequest{},
		quizAttempts:   map[string]domain.QuizAttempt{},
		studentAnswers: map[string][]domain.StudentAnswer{},
		puzzleAttempts: map[string]domain.PuzzleAttempt{},
		puzzleMoves:    map[string][]domain.PuzzleMove{},
		leaderboard:    map[pair]domain.LeaderboardEntry{},
		payments:       map[string]domain.Payment{},
		activities:     map[string][]domain.Activity{},
	}}
}

// Atomically serializes transactions, so Lock inside them never blocks.
func (s *Store) Atomically(ctx context.Context, fn func(ctx context.Context, tx app.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	working := s.state.clone()
	s.mu.RUnlock()

	if err := fn(ctx, &tx{s: working}); err != nil {
		return err
	}
	s.mu.Lock()
	s.state = working
	s.mu.Unlock()
	return nil
}

// LoadExam, LoadQuiz and LoadPuzzle read committed definitions so the store
// can back a definition cache (app.DefinitionLoader).
func (s *Store) LoadExam(_ context.Context, examID string) (domain.ExamDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if def, ok := s.state.exams[examID]; ok {
		return def, nil
	}
	return domain.ExamDefinition{}, domain.ErrExamNotFound
}

func (s *Store) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if quiz, ok := s.state.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

func (s *Store) LoadPuzzle(_ context.Context, gameID string) (domain.PuzzleGame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if game, ok := s.state.puzzles[gameID]; ok {
		return game, nil
	}
	return domain.PuzzleGame{}, domain.ErrPuzzleNotFound
}

// clone copies every map. Slices inside are replaced, never appended in place.
func (st *state) clone() *state {
	return &state{
		categories:     copyMap(st.categories),
		courses:        copyMap(st.courses),
		exams:          copyMap(st.exams),
		quizzes:        copyMap(st.quizzes),
		puzzles:        copyMap(st.puzzles),
		verifications:  copyMap(st.verifications),
		schedules:      copyMap(st.schedules),
		examAttempts:   copyMap(st.examAttempts),
		examAnswers:    copyMap(st.examAnswers),
		internalMarks:  copyMap(st.internalMarks),
		certificates:   copyMap(st.certificates),
		missed:         copyMap(st.missed),
		quizAttempts:   copyMap(st.quizAttempts),
		studentAnswers: copyMap(st.studentAnswers),
		puzzleAttempts: copyMap(st.puzzleAttempts),
		puzzleMoves:    copyMap(st.puzzleMoves),
		leaderboard:    copyMap(st.leaderboard),
		payments:       copyMap(st.payments),
		activities:     copyMap(st.activities),
	}
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// appendCopy never writes into the backing array of a committed slice.
func appendCopy[T any](in []T, v ...T) []T {
	out := make([]T, 0, len(in)+len(v))
	out = append(out, in...)
	return append(out, v...)
}

type tx struct {
	s *state
}

var _ app.Tx = (*tx)(nil)

func (t *tx) Lock(ctx context.Context, _ string) error { return ctx.Err() }

// catalog

func (t *tx) Category(_ context.Context, id string) (domain.Category, error) {
	if c, ok := t.s.categories[id]; ok {
		return c, nil
	}
	return domain.Category{}, domain.ErrNotFound
}

func (t *tx) InsertCategory(_ context.Context, c domain.Category) error {
	t.s.categories[c.ID] = c
	return nil
}

func (t *tx) Course(_ context.Context, id string) (domain.Course, error) {
	if c, ok := t.s.courses[id]; ok {
		return c, nil
	}
	return domain.Course{}, domain.ErrNotFound
}

func (t *tx) InsertCourse(_ context.Context, c domain.Course) error {
	t.s.courses[c.ID] = c
	return nil
}

func (t *tx) ExamDefinition(_ context.Context, examID string) (domain.ExamDefinition, error) {
	if def, ok := t.s.exams[examID]; ok {
		return def, nil
	}
	return domain.ExamDefinition{}, domain.ErrExamNotFound
}

func (t *tx) InsertExamDefinition(_ context.Context, def domain.ExamDefinition) error {
	t.s.exams[def.Exam.ID] = def
	return nil
}

func (t *tx) Quiz(_ context.Context, quizID string) (domain.Quiz, error) {
	if q, ok := t.s.quizzes[quizID]; ok {
		return q, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

func (t *tx) InsertQuiz(_ context.Context, quiz domain.Quiz) error {
	t.s.quizzes[quiz.ID] = quiz
	return nil
}

func (t *tx) PuzzleGame(_ context.Context, gameID string) (domain.PuzzleGame, error) {
	if g, ok := t.s.puzzles[gameID]; ok {
		return g, nil
	}
	return domain.PuzzleGame{}, domain.ErrPuzzleNotFound
}

func (t *tx) InsertPuzzleGame(_ context.Context, game domain.PuzzleGame) error {
	t.s.puzzles[game.ID] = game
	return nil
}

// exams

func (t *tx) Verification(_ context.Context, examID, studentID string) (domain.ExamVerification, error) {
	if v, ok := t.s.verifications[pair{examID, studentID}]; ok {
		return v, nil
	}
	return domain.ExamVerification{}, domain.ErrNotFound
}

func (t *tx) UpsertVerification(_ context.Context, v domain.ExamVerification) error {
	t.s.verifications[pair{v.ExamID, v.StudentID}] = v
	return nil
}

func (t *tx) Schedules(_ context.Context, examID, studentID string) ([]domain.ExamSchedule, error) {
	var out []domain.ExamSchedule
	for _, s := range t.s.schedules {
		if s.ExamID == examID && s.StudentID == studentID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotStart.Before(out[j].SlotStart) })
	return out, nil
}

func (t *tx) InsertSchedule(_ context.Context, s domain.ExamSchedule) error {
	t.s.schedules[s.ID] = s
	return nil
}

func (t *tx) ExamAttempts(_ context.Context, examID, studentID string) ([]domain.ExamAttempt, error) {
	var out []domain.ExamAttempt
	for _, a := range t.s.examAttempts {
		if a.ExamID == examID && a.StudentID == studentID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber < out[j].AttemptNumber })
	return out, nil
}

func (t *tx) ExamAttemptsByExam(_ context.Context, examID string) ([]domain.ExamAttempt, error) {
	var out []domain.ExamAttempt
	for _, a := range t.s.examAttempts {
		if a.ExamID == examID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StudentID != out[j].StudentID {
			return out[i].StudentID < out[j].StudentID
		}
		return out[i].AttemptNumber < out[j].AttemptNumber
	})
	return out, nil
}

func (t *tx) ActiveExamAttempts(_ context.Context) ([]domain.ExamAttempt, error) {
	var out []domain.ExamAttempt
	for _, a := range t.s.examAttempts {
		if a.Active() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (t *tx) ExamAttempt(_ context.Context, id string) (domain.ExamAttempt, error) {
	if a, ok := t.s.examAttempts[id]; ok {
		return a, nil
	}
	return domain.ExamAttempt{}, domain.ErrAttemptNotFound
}

func (t *tx) InsertExamAttempt(_ context.Context, a domain.ExamAttempt) error {
	for _, existing := range t.s.examAttempts {
		if existing.ExamID == a.ExamID && existing.StudentID == a.StudentID &&
			(existing.Active() || existing.AttemptNumber == a.AttemptNumber) {
			return domain.ErrDuplicateAttempt
		}
		if a.ScheduleID != "" && existing.ScheduleID == a.ScheduleID {
			return domain.ErrScheduleUsed
		}
	}
	t.s.examAttempts[a.ID] = a
	return nil
}

func (t *tx) UpdateExamAttempt(_ context.Context, a domain.ExamAttempt) error {
	if _, ok := t.s.examAttempts[a.ID]; !ok {
		return domain.ErrAttemptNotFound
	}
	t.s.examAttempts[a.ID] = a
	return nil
}

func (t *tx) ExamAnswers(_ context.Context, attemptID string) ([]domain.ExamAnswer, error) {
	return appendCopy(t.s.examAnswers[attemptID]), nil
}

func (t *tx) InsertExamAnswer(_ context.Context, a domain.ExamAnswer) error {
	for _, existing := range t.s.examAnswers[a.AttemptID] {
		if existing.QuestionID == a.QuestionID {
			return domain.ErrAnswerExists
		}
	}
	t.s.examAnswers[a.AttemptID] = appendCopy(t.s.examAnswers[a.AttemptID], a)
	return nil
}

func (t *tx) InternalMark(_ context.Context, examID, studentID string) (domain.InternalMark, error) {
	if m, ok := t.s.internalMarks[pair{examID, studentID}]; ok {
		return m, nil
	}
	return domain.InternalMark{}, domain.ErrNotFound
}

func (t *tx) UpsertInternalMark(_ context.Context, m domain.InternalMark) error {
	t.s.internalMarks[pair{m.ExamID, m.StudentID}] = m
	return nil
}

func (t *tx) CertificateByAttempt(_ context.Context, attemptID string) (domain.ExamCertificate, error) {
	for _, c := range t.s.certificates {
		if c.AttemptID == attemptID {
			return c, nil
		}
	}
	return domain.ExamCertificate{}, domain.ErrCertificateMissing
}

func (t *tx) InsertCertificate(_ context.Context, c domain.ExamCertificate) error {
	for _, existing := range t.s.certificates {
		if existing.AttemptID == c.AttemptID || existing.CertificateNumber == c.CertificateNumber {
			return domain.ErrCertificateExists
		}
	}
	t.s.certificates[c.ID] = c
	return nil
}

func (t *tx) MissedRequests(_ context.Context, examID, studentID string) ([]domain.MissedExamRequest, error) {
	return t.filterMissed(func(r domain.MissedExamRequest) bool {
		return r.ExamID == examID && r.StudentID == studentID
	}), nil
}

func (t *tx) PendingMissedRequests(_ context.Context, examID string) ([]domain.MissedExamRequest, error) {
	return t.filterMissed(func(r domain.MissedExamRequest) bool {
		return r.ExamID == examID && r.Status == domain.MissedRequestPending
	}), nil
}

func (t *tx) filterMissed(keep func(domain.MissedExamRequest) bool) []domain.MissedExamRequest {
	var out []domain.MissedExamRequest
	for _, r := range t.s.missed {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}

func (t *tx) MissedRequest(_ context.Context, id string) (domain.MissedExamRequest, error) {
	if r, ok := t.s.missed[id]; ok {
		return r, nil
	}
	return domain.MissedExamRequest{}, domain.ErrRequestNotFound
}

func (t *tx) InsertMissedRequest(_ context.Context, r domain.MissedExamRequest) error {
	t.s.missed[r.ID] = r
	return nil
}

func (t *tx) UpdateMissedRequest(_ context.Context, r domain.MissedExamRequest) error {
	if _, ok := t.s.missed[r.ID]; !ok {
		return domain.ErrRequestNotFound
	}
	t.s.missed[r.ID] = r
	return nil
}

// quizzes

func (t *tx) QuizAttempts(_ context.Context, quizID, studentID string) ([]domain.QuizAttempt, error) {
	var out []domain.QuizAttempt
	for _, a := range t.s.quizAttempts {
		if a.QuizID == quizID && a.StudentID == studentID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptedAt.Before(out[j].AttemptedAt) })
	return out, nil
}

func (t *tx) QuizAttempt(_ context.Context, id string) (domain.QuizAttempt, error) {
	if a, ok := t.s.quizAttempts[id]; ok {
		return a, nil
	}
	return domain.QuizAttempt{}, domain.ErrAttemptNotFound
}

func (t *tx) InsertQuizAttempt(_ context.Context, a domain.QuizAttempt) error {
	t.s.quizAttempts[a.ID] = a
	return nil
}

func (t *tx) UpdateQuizAttempt(_ context.Context, a domain.QuizAttempt) error {
	if _, ok := t.s.quizAttempts[a.ID]; !ok {
		return domain.ErrAttemptNotFound
	}
	t.s.quizAttempts[a.ID] = a
	return nil
}

func (t *tx) StudentAnswers(_ context.Context, attemptID string) ([]domain.StudentAnswer, error) {
	return appendCopy(t.s.studentAnswers[attemptID]), nil
}

func (t *tx) InsertStudentAnswers(_ context.Context, answers []domain.StudentAnswer) error {
	for _, a := range answers {
		for _, existing := range t.s.studentAnswers[a.AttemptID] {
			if existing.QuestionID == a.QuestionID {
				return domain.ErrAnswerExists
			}
		}
		t.s.studentAnswers[a.AttemptID] = appendCopy(t.s.studentAnswers[a.AttemptID], a)
	}
	return nil
}

// puzzles

func (t *tx) ActivePuzzleAttempt(_ context.Context, gameID, userID string) (domain.PuzzleAttempt, error) {
	for _, a := range t.s.puzzleAttempts {
		if a.GameID == gameID && a.UserID == userID && a.Active() {
			return a, nil
		}
	}
	return domain.PuzzleAttempt{}, domain.ErrAttemptNotFound
}

func (t *tx) ActivePuzzleAttempts(_ context.Context) ([]domain.PuzzleAttempt, error) {
	var out []domain.PuzzleAttempt
	for _, a := range t.s.puzzleAttempts {
		if a.Active() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (t *tx) PuzzleAttempt(_ context.Context, id string) (domain.PuzzleAttempt, error) {
	if a, ok := t.s.puzzleAttempts[id]; ok {
		return a, nil
	}
	return domain.PuzzleAttempt{}, domain.ErrAttemptNotFound
}

func (t *tx) InsertPuzzleAttempt(_ context.Context, a domain.PuzzleAttempt) error {
	for _, existing := range t.s.puzzleAttempts {
		if existing.GameID == a.GameID && existing.UserID == a.UserID && existing.Active() {
			return domain.ErrDuplicateAttempt
		}
	}
	t.s.puzzleAttempts[a.ID] = a
	return nil
}

func (t *tx) UpdatePuzzleAttempt(_ context.Context, a domain.PuzzleAttempt) error {
	if _, ok := t.s.puzzleAttempts[a.ID]; !ok {
		return domain.ErrAttemptNotFound
	}
	t.s.puzzleAttempts[a.ID] = a
	return nil
}

func (t *tx) PuzzleMoves(_ context.Context, attemptID string) ([]domain.PuzzleMove, error) {
	return appendCopy(t.s.puzzleMoves[attemptID]), nil
}

func (t *tx) InsertPuzzleMove(_ context.Context, m domain.PuzzleMove) error {
	t.s.puzzleMoves[m.AttemptID] = appendCopy(t.s.puzzleMoves[m.AttemptID], m)
	return nil
}

func (t *tx) LeaderboardEntry(_ context.Context, gameID, userID string) (domain.LeaderboardEntry, error) {
	if e, ok := t.s.leaderboard[pair{gameID, userID}]; ok {
		return e, nil
	}
	return domain.LeaderboardEntry{}, domain.ErrNotFound
}

func (t *tx) UpsertLeaderboardEntry(_ context.Context, e domain.LeaderboardEntry) error {
	t.s.leaderboard[pair{e.GameID, e.UserID}] = e
	return nil
}

// Leaderboard lists users with at least one completion.
func (t *tx) Leaderboard(_ context.Context, gameID string, limit int) ([]domain.LeaderboardEntry, error) {
	var out []domain.LeaderboardEntry
	for k, e := range t.s.leaderboard {
		if k.a == gameID && e.CompletedAttempts > 0 {
			out = append(out, e)
		}
	}
	domain.SortLeaderboard(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// payments

func (t *tx) InsertPayment(_ context.Context, p domain.Payment) error {
	for _, existing := range t.s.payments {
		if existing.TransactionID == p.TransactionID {
			return domain.ErrPaymentExists
		}
	}
	t.s.payments[p.ID] = p
	return nil
}

func (t *tx) UpdatePayment(_ context.Context, p domain.Payment) error {
	if _, ok := t.s.payments[p.ID]; !ok {
		return domain.ErrPaymentNotFound
	}
	t.s.payments[p.ID] = p
	return nil
}

func (t *tx) Payments(_ context.Context, examID, studentID string, purpose domain.PaymentPurpose) ([]domain.Payment, error) {
	var out []domain.Payment
	for _, p := range t.s.payments {
		if p.ExamID == examID && p.StudentID == studentID && p.Purpose == purpose {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out, nil
}

// activities

func (t *tx) InsertActivity(_ context.Context, a domain.Activity) error {
	t.s.activities[a.UserID] = appendCopy(t.s.activities[a.UserID], a)
	return nil
}

// Activities returns newest first.
func (t *tx) Activities(_ context.Context, userID string, limit int) ([]domain.Activity, error) {
	all := t.s.activities[userID]
	out := make([]domain.Activity, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
