package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"assessment-service/internal/app"
	"assessment-service/internal/domain"
	"assessment-service/internal/infra/postgres"
	infraredis "assessment-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type stack struct {
	exams   *app.ExamService
	quizzes *app.QuizService
	puzzles *app.PuzzleService
	feed    *app.ActivityFeed
}

func newStack(t *testing.T, ctx context.Context) stack {
	t.Helper()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	t.Cleanup(pgCleanup)
	redisURL, redisCleanup := startRedis(t, ctx)
	t.Cleanup(redisCleanup)

	db := postgres.OpenDB(pgURL)
	t.Cleanup(func() { _ = db.Close() })
	if _, err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := postgres.NewStore(db)
	if _, err := app.Seed(ctx, store, time.Now()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	t.Cleanup(pool.Close)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = redisClient.Close() })

	defs := infraredis.NewDefinitionRepository(redisClient, postgres.NewDefinitionLoader(pool), 5*time.Minute)
	sessions := infraredis.NewSessionStore(redisClient, 5*time.Minute)
	feed := app.NewActivityFeed(store, nil)
	return stack{
		exams:   app.NewExamService(store, defs, feed, app.ExamOptions{DefaultCertificateValidityDays: 365}),
		quizzes: app.NewQuizService(store, defs, feed),
		puzzles: app.NewPuzzleService(store, defs, sessions, feed),
		feed:    feed,
	}
}

func TestSeedIsIdempotentAgainstPostgres(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)
	pgURL, cleanup := startPostgres(t, ctx)
	defer cleanup()

	db := postgres.OpenDB(pgURL)
	defer db.Close()
	if _, err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	applied, err := postgres.Migrate(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, applied, "second run has nothing to apply")

	store := postgres.NewStore(db)
	_, err = app.Seed(ctx, store, time.Now())
	require.NoError(t, err)
	report, err := app.Seed(ctx, store, time.Now())
	require.NoError(t, err)
	assert.Empty(t, report.Inserted)
}

func TestQuizAndPuzzleEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)
	student := domain.Actor{UserID: "u1", Role: domain.RoleStudent}

	attempt, err := s.quizzes.Start(ctx, student, app.DemoQuizID)
	require.NoError(t, err)
	result, err := s.quizzes.Submit(ctx, student, attempt.ID, []domain.AnswerSubmission{
		{QuestionID: "q1", OptionID: "o2"},
		{QuestionID: "q2", OptionID: "o1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 10, result.Attempt.Score)
	assert.Equal(t, 50.0, result.Attempt.Percentage)
	assert.True(t, result.Attempt.IsPassed)

	_, err = s.quizzes.Submit(ctx, student, attempt.ID, []domain.AnswerSubmission{{QuestionID: "q1", OptionID: "o2"}})
	assert.Error(t, err, "a completed attempt takes no more answers")

	play, err := s.puzzles.Start(ctx, student, "logic-demo")
	require.NoError(t, err)
	check, err := s.puzzles.CheckSolution(ctx, student, play.ID,
		json.RawMessage(`{"alice":"cat","bob":"gopher","carol":"dog"}`))
	require.NoError(t, err)
	assert.True(t, check.Solved)
	assert.Equal(t, 80, check.Attempt.Score)

	lb, err := s.puzzles.Leaderboard(ctx, "logic-demo", 10)
	require.NoError(t, err)
	require.Len(t, lb.Entries, 1)
	assert.Equal(t, "u1", lb.Entries[0].UserID)

	feed, err := s.feed.List(ctx, student, 10)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.Equal(t, domain.ActivityPuzzleCompleted, feed[0].Kind)
	assert.Equal(t, domain.ActivityQuizPassed, feed[1].Kind)
}

func TestConcurrentExamStartCreatesOneAttempt(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)
	instructor := domain.Actor{UserID: app.DemoInstructorID, Role: domain.RoleInstructor}
	student := domain.Actor{UserID: "u1", Role: domain.RoleStudent}

	_, err := s.exams.VerifyStudent(ctx, instructor, app.DemoExamID, student.UserID, true)
	require.NoError(t, err)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.exams.StartAttempt(ctx, student, app.DemoExamID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case domain.KindOf(err) == domain.KindConflict:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)

	attempts, err := s.exams.StudentAttempts(ctx, student, app.DemoExamID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, 1, attempts[0].AttemptNumber)
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "assess", "POSTGRES_PASSWORD": "assesspass", "POSTGRES_DB": "assessdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://assess:assesspass@%s:%s/assessdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
