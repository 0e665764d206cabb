package cli

import (
	"context"
	"time"

	"assessment-service/internal/app"
	"assessment-service/internal/config"
	"assessment-service/internal/infra/memory"
	"assessment-service/internal/infra/postgres"
	infraredis "assessment-service/internal/infra/redis"
	"assessment-service/internal/notify"
	"github.com/golang/glog"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
)

// services holds the wired use cases and the resources backing them.
type services struct {
	store    app.Store
	durable  bool
	exams    *app.ExamService
	quizzes  *app.QuizService
	puzzles  *app.PuzzleService
	feed     *app.ActivityFeed
	closeFns []func()
}

func (s *services) Close() {
	for i := len(s.closeFns) - 1; i >= 0; i-- {
		s.closeFns[i]()
	}
}

// openStore picks Postgres when configured and an in-memory store otherwise.
func openStore(ctx context.Context, cfg config.Config) (app.Store, app.DefinitionLoader, []func(), error) {
	if cfg.Postgres.URL == "" {
		glog.Warning("postgres url not configured; state lives in memory only")
		store := memory.NewStore()
		return store, store, nil, nil
	}
	db := postgres.OpenDB(cfg.Postgres.URL)
	if _, err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		db.Close()
		return nil, nil, nil, errors.Wrap(err, "connect definition pool")
	}
	closers := []func(){func() { _ = db.Close() }, pool.Close}
	return postgres.NewStore(db), postgres.NewDefinitionLoader(pool), closers, nil
}

func openRedis(cfg config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func newNotifier(cfg config.Config) app.Notifier {
	notifiers := notify.Multi{notify.LogNotifier{}}
	if cfg.Notify.SendGridKey != "" {
		notifiers = append(notifiers, notify.NewSendGridNotifier(cfg.Notify.SendGridKey,
			cfg.Notify.FromName, cfg.Notify.FromEmail, cfg.Notify.EmailDomain))
	}
	return notifiers
}

// loadServices reads the config and wires the services; requireDurable rejects the in-memory store.
func loadServices(ctx context.Context, configPath string, requireDurable bool) (config.Config, *services, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, err
	}
	if requireDurable && cfg.Postgres.URL == "" {
		return cfg, nil, errors.New("postgres url not configured")
	}
	s, err := buildServices(ctx, cfg)
	return cfg, s, err
}

func buildServices(ctx context.Context, cfg config.Config) (*services, error) {
	store, loader, closers, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &services{store: store, durable: cfg.Postgres.URL != "", closeFns: closers}

	cacheTTL := config.TTLDuration(cfg.Cache.TTL, 10*time.Minute)
	sessionTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var (
		defs     app.DefinitionRepository
		sessions app.SessionRepository
	)
	if client := openRedis(cfg); client != nil {
		s.closeFns = append(s.closeFns, func() { _ = client.Close() })
		defs = infraredis.NewDefinitionRepository(client, loader, cacheTTL)
		sessions = infraredis.NewSessionStore(client, sessionTTL)
	} else {
		defs = memory.NewDefinitionRepository(loader, cacheTTL)
		sessions = memory.NewSessionStore()
	}

	s.feed = app.NewActivityFeed(store, newNotifier(cfg))
	s.exams = app.NewExamService(store, defs, s.feed, app.ExamOptions{
		DefaultCertificateValidityDays: cfg.Certificates.DefaultValidityDays,
	})
	s.quizzes = app.NewQuizService(store, defs, s.feed)
	s.puzzles = app.NewPuzzleService(store, defs, sessions, s.feed)
	return s, nil
}

// openDurable opens Postgres for commands that have nothing to act on in memory.
func openDurable(configPath string) (config.Config, *bun.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, err
	}
	if cfg.Postgres.URL == "" {
		return cfg, nil, errors.New("postgres url not configured")
	}
	return cfg, postgres.OpenDB(cfg.Postgres.URL), nil
}
