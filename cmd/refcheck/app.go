package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/diagnosis/refcheck/internal/database"
	"github.com/diagnosis/refcheck/internal/http/middleware"
	"github.com/diagnosis/refcheck/internal/links"
	"github.com/diagnosis/refcheck/internal/platform/mailer"
	"github.com/diagnosis/refcheck/internal/repo"
	"github.com/diagnosis/refcheck/internal/repo/memory"
	"github.com/diagnosis/refcheck/internal/repo/postgres"
	"github.com/diagnosis/refcheck/internal/requests"
	"github.com/diagnosis/refcheck/internal/respond"
	"github.com/diagnosis/refcheck/internal/snapshot"
	"github.com/diagnosis/refcheck/internal/tokens"
	"github.com/diagnosis/refcheck/internal/wizard"
	"github.com/diagnosis/refcheck/pkg/auth"
	"github.com/diagnosis/refcheck/pkg/config"
	pgdb "github.com/diagnosis/refcheck/pkg/database"
	"github.com/diagnosis/refcheck/pkg/events"
	"github.com/diagnosis/refcheck/pkg/logger"
)

// app holds every wired component. Optional backends fall back to in-memory
// versions when their URL is not configured.
type app struct {
	cfg *config.Config

	pool  *pgxpool.Pool
	redis *redis.Client
	bus   events.EventBus

	store   snapshot.Store
	limiter middleware.Limiter
	users   *auth.Directory
	links   *links.Builder
	mailer  *mailer.Mailer

	tokenRepo    repo.TokenRepository
	requestRepo  repo.RequestRepository
	responseRepo repo.ResponseRepository
	rejections   repo.RejectionRepository
	submissions  repo.SubmissionRepository

	tokens   *tokens.Service
	wizards  *wizard.Registry
	requests *requests.Service
	respond  *respond.Service
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	if err := a.connectDatabase(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.connectRedis(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.connectBus(); err != nil {
		a.Close()
		return nil, err
	}

	builder, err := links.NewBuilder(cfg.App.PublicBaseURL, "email")
	if err != nil {
		a.Close()
		return nil, err
	}
	a.links = builder
	a.mailer = mailer.New(newSender(cfg.Email), cfg.App.Name)

	a.users = auth.NewDirectory()
	if cfg.Auth.DemoEmail != "" {
		if err := a.users.Add(auth.User{
			ID:    "demo-hr",
			Email: cfg.Auth.DemoEmail,
			Name:  cfg.Auth.DemoName,
			Role:  auth.RoleHR,
		}, cfg.Auth.DemoPassword); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.tokens = tokens.NewService(a.tokenRepo, a.rejections, tokens.WithTTL(cfg.Tokens.TTL))
	a.wizards = wizard.NewRegistry(a.store)
	a.requests = requests.NewService(a.requestRepo, a.responseRepo, a.submissions, a.tokens, a.wizards, a.mailer, a.links, a.bus,
		requests.WithFailureRate(cfg.Wizard.SubmitFailureRate, nil))
	a.respond = respond.NewService(a.tokens, a.requestRepo, a.submissions, a.store, a.requests, a.bus)
	return a, nil
}

func (a *app) connectDatabase(ctx context.Context) error {
	if a.cfg.Database.URL == "" {
		logger.Warn("DATABASE_URL not set, keeping requests in memory")
		tr, rr, sr := memory.NewTokenRepo(), memory.NewRequestRepo(), memory.NewResponseRepo()
		a.tokenRepo, a.requestRepo, a.responseRepo = tr, rr, sr
		a.submissions = memory.NewSubmissionRepo(rr, tr, sr)
		a.rejections = memory.NewRejectionRepo()
		return nil
	}

	pool, err := pgdb.Connect(ctx, a.cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.pool = pool
	a.tokenRepo = postgres.NewTokenRepo(pool)
	a.requestRepo = postgres.NewRequestRepo(pool)
	a.responseRepo = postgres.NewResponseRepo(pool)
	a.rejections = postgres.NewRejectionRepo(pool)
	a.submissions = postgres.NewSubmissionRepo(pool)
	return nil
}

func (a *app) connectRedis(ctx context.Context) error {
	if a.cfg.Redis.URL == "" {
		logger.Warn("REDIS_URL not set, using in-process snapshots and rate limits")
		a.store = snapshot.NewMemoryStore()
		a.limiter = middleware.NewMemoryLimiter()
		return nil
	}

	opts, err := redis.ParseURL(a.cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	if a.cfg.Redis.Password != "" {
		opts.Password = a.cfg.Redis.Password
	}
	if a.cfg.Redis.DB != 0 {
		opts.DB = a.cfg.Redis.DB
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("ping redis: %w", err)
	}
	a.redis = client
	a.store = snapshot.NewRedisStore(client)
	a.limiter = middleware.NewRedisLimiter(client)
	return nil
}

func (a *app) connectBus() error {
	if a.cfg.NATS.URL == "" {
		a.bus = events.NewLogBus()
		return nil
	}
	bus, err := events.NewNATSEventBus(a.cfg.NATS.URL, a.cfg.App.Name)
	if err != nil {
		return err
	}
	a.bus = bus
	return nil
}

func newSender(cfg config.EmailConfig) mailer.Sender {
	switch {
	case cfg.DevMode:
		return mailer.NewDevSender(os.Stdout)
	case cfg.MailerSendKey != "":
		return mailer.NewMailerSendSender(cfg.MailerSendKey, cfg.FromName, cfg.SMTPFrom)
	default:
		return mailer.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPUseTLS)
	}
}

func (a *app) migrate(ctx context.Context) error {
	if a.pool == nil {
		return errors.New("DATABASE_URL is required to migrate")
	}
	return database.Migrate(ctx, a.pool)
}

func (a *app) Close() {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			logger.Error("Event bus close failed", "error", err)
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func addr(port string) string {
	if _, err := strconv.Atoi(port); err == nil {
		return ":" + port
	}
	return port
}
