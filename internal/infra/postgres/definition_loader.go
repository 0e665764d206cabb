package postgres

import (
	"context"
	"encoding/json"

	"assessment-service/internal/app"
	"assessment-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
)

// DefinitionLoader loads exam, quiz and puzzle JSONB documents from Postgres
// for the definition caches. It reads outside the store's transactions.
type DefinitionLoader struct {
	pool *pgxpool.Pool
}

var _ app.DefinitionLoader = (*DefinitionLoader)(nil)

func NewDefinitionLoader(pool *pgxpool.Pool) *DefinitionLoader {
	return &DefinitionLoader{pool: pool}
}

func (l *DefinitionLoader) LoadExam(ctx context.Context, examID string) (domain.ExamDefinition, error) {
	var def domain.ExamDefinition
	err := l.load(ctx, `SELECT data FROM exams WHERE id=$1`, examID, domain.ErrExamNotFound, &def)
	return def, err
}

func (l *DefinitionLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := l.load(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID, domain.ErrQuizNotFound, &quiz)
	return quiz, err
}

func (l *DefinitionLoader) LoadPuzzle(ctx context.Context, gameID string) (domain.PuzzleGame, error) {
	var game domain.PuzzleGame
	err := l.load(ctx, `SELECT data FROM puzzle_games WHERE id=$1`, gameID, domain.ErrPuzzleNotFound, &game)
	return game, err
}

func (l *DefinitionLoader) load(ctx context.Context, query, id string, notFound error, dst interface{}) error {
	var raw []byte
	err := l.pool.QueryRow(ctx, query, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	if err != nil {
		return errors.Wrapf(err, "load definition %s", id)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.Wrapf(err, "unmarshal definition %s", id)
	}
	return nil
}
