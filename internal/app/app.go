// Package app wires the configured components shared by the api, worker and
// digestctl binaries.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/notify-digest/internal/archive"
	"github.com/jwalitptl/notify-digest/internal/composer"
	"github.com/jwalitptl/notify-digest/internal/config"
	"github.com/jwalitptl/notify-digest/internal/digest"
	"github.com/jwalitptl/notify-digest/internal/email"
	"github.com/jwalitptl/notify-digest/internal/handler/health"
	"github.com/jwalitptl/notify-digest/internal/repository/postgres"
	"github.com/jwalitptl/notify-digest/internal/service/settings"
	"github.com/jwalitptl/notify-digest/internal/worker"
	"github.com/jwalitptl/notify-digest/pkg/lock"
	"github.com/jwalitptl/notify-digest/pkg/logger"
	"github.com/jwalitptl/notify-digest/pkg/messaging"
	"github.com/jwalitptl/notify-digest/pkg/messaging/redis"
	"github.com/jwalitptl/notify-digest/pkg/metrics"
	"github.com/jwalitptl/notify-digest/pkg/timezone"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "notify_digest"

type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *sqlx.DB
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	// Redis and Broker are nil in single-instance mode.
	Redis  *goredis.Client
	Broker messaging.Broker

	Dispatcher    *email.SMTPDispatcher
	Orchestrator  *digest.Orchestrator
	DigestWorker  *worker.DigestWorker
	LedgerCleanup *worker.LedgerCleanupWorker
	Settings      settings.Service
}

// NewLogger builds the process logger and installs it as the zerolog global
// so package-level log calls share its level and format.
func NewLogger(cfg config.LogConfig) *logger.Logger {
	l := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.JSON,
	})
	log.Logger = *l.Zerolog()
	return l
}

// New connects to the database and, when configured, Redis, then assembles
// the digest engine. Call Close when done.
func New(ctx context.Context, cfg *config.Config, l *logger.Logger) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   l,
		Registry: prometheus.NewRegistry(),
		Metrics:  metrics.New(MetricsNamespace),
	}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics.MustRegister(a.Registry)

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.DB = db

	var locker lock.Locker = lock.NewLocal()
	if cfg.Redis.URL != "" {
		client, err := redis.NewClient(ctx, cfg.Redis.ToBrokerConfig())
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Redis = client
		a.Broker = redis.NewRedisBroker(client, l.Zerolog())
		locker = lock.NewRedis(client, cfg.Redis.LockPrefix)
	} else {
		l.Warn("REDIS_URL not set, using in-process cycle lock")
	}

	base := postgres.NewBaseRepository(db, a.Metrics)
	users := postgres.NewUserRepository(base)
	settingsRepo := postgres.NewSettingsRepository(base)
	notifications := postgres.NewNotificationRepository(base)
	announcements := postgres.NewAnnouncementRepository(base)
	deliveries := postgres.NewDeliveryRepository(base)

	zones := timezone.NewCache(cfg.Digest.DefaultTimezone, time.Hour)
	comp, err := composer.New(notifications, zones, cfg.Digest.Brand)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build composer: %w", err)
	}

	archiver, err := a.archiver()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Dispatcher = email.NewSMTPDispatcher(cfg.SMTP.ToSMTPConfig(), l)
	a.Orchestrator = digest.NewOrchestrator(digest.Dependencies{
		Settings:      settingsRepo,
		Users:         users,
		Notifications: notifications,
		Announcements: announcements,
		Ledger:        deliveries,
		Composer:      comp,
		Dispatcher:    a.Dispatcher,
		Archiver:      archiver,
		Logger:        l,
		Metrics:       a.Metrics,
	}, cfg.Digest.ToDigestConfig())

	a.DigestWorker = worker.NewDigestWorker(a.Orchestrator, locker, cfg.Worker.ToWorkerConfig(), l)
	a.LedgerCleanup = worker.NewLedgerCleanupWorker(deliveries, cfg.Worker.LedgerRetention, cfg.Worker.CleanupInterval, l)
	a.Settings = settings.NewService(users, settingsRepo)
	return a, nil
}

func (a *App) archiver() (digest.Archiver, error) {
	var sinks archive.Multi
	if a.Config.Archive.Dir != "" {
		fa, err := archive.NewFileArchiver(a.Config.Archive.Dir)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fa)
	}
	if a.Config.Archive.Publish {
		if a.Broker == nil {
			a.Logger.Warn("archive.publish is set but Redis is not configured, skipping broker archive")
		} else {
			sinks = append(sinks, archive.NewBrokerArchiver(a.Broker))
		}
	}

	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	}
	return sinks, nil
}

// HealthChecks covers the database, Redis when configured, and whether the
// SMTP transport has what it needs to send.
func (a *App) HealthChecks() map[string]health.Check {
	checks := map[string]health.Check{"database": a.DB.PingContext}
	checks["dispatcher"] = func(context.Context) error {
		return a.Dispatcher.Ready()
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		}
	}
	return checks
}

func (a *App) Close() {
	if a.Broker != nil {
		if err := a.Broker.Close(); err != nil {
			a.Logger.Warn("Failed to close broker", "error", err.Error())
		}
	} else if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn("Failed to close database", "error", err.Error())
		}
	}
}
