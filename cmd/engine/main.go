// Package main - точка входа движка прогресса.
//
// Engine отвечает за периодические задачи:
// - Применение каталога достижений при старте
// - Оценку достижений для недавно активных учеников
// - Подготовку ежедневных отчётов
//
// С ENGINE_POLL_INTERVAL=0 каждый job выполняется один раз, после чего процесс завершается.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/alem-hub/progress-engine/config"
	"github.com/alem-hub/progress-engine/internal/application/query"
	"github.com/alem-hub/progress-engine/internal/application/saga"
	"github.com/alem-hub/progress-engine/internal/domain/achievement"
	"github.com/alem-hub/progress-engine/internal/domain/activity"
	"github.com/alem-hub/progress-engine/internal/domain/report"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
	"github.com/alem-hub/progress-engine/internal/infrastructure/catalog"
	"github.com/alem-hub/progress-engine/internal/infrastructure/metrics"
	"github.com/alem-hub/progress-engine/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/progress-engine/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/progress-engine/internal/infrastructure/scheduler"
	"github.com/alem-hub/progress-engine/internal/infrastructure/scheduler/jobs"
	"github.com/alem-hub/progress-engine/pkg/circuitbreaker"
	"github.com/alem-hub/progress-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	// Контекст отменяется по сигналу завершения
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	defer func() { _ = log.Sync() }()

	log.Info("starting progress engine",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Timezone),
		logger.Duration("poll_interval", cfg.Engine.PollInterval),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnection(ctx, postgresConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. МИГРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	applied, err := postgres.NewMigrator(dbConn).Migrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date", logger.Int("applied", applied))

	activityRepo := postgres.NewActivityRepository(dbConn)
	achievementRepo := postgres.NewAchievementRepository(dbConn)
	reportRepo := postgres.NewReportRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. КАТАЛОГ ДОСТИЖЕНИЙ
	// ─────────────────────────────────────────────────────────────────────────
	registry := achievement.DefaultRegistry()
	defs, err := catalog.LoadFile(cfg.Engine.CatalogFile, registry)
	if err != nil {
		return fmt.Errorf("failed to load achievement catalog: %w", err)
	}
	if err := achievementRepo.UpsertDefinitions(ctx, defs); err != nil {
		return fmt.Errorf("failed to seed achievement catalog: %w", err)
	}
	log.Info("achievement catalog seeded", logger.Int("definitions", len(defs)))

	// ─────────────────────────────────────────────────────────────────────────
	// 6. REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		reportCache query.ReportCache
		locker      jobs.Locker
	)
	if !cfg.Redis.Disabled {
		cache, err := redis.NewCache(ctx, redisConfig(cfg))
		if err != nil {
			log.Warn("failed to connect to Redis, caching disabled", logger.Err(err))
		} else {
			defer func() { _ = cache.Close() }()
			breaker := circuitbreaker.ForCache("report-cache", shared.IsStoreUnavailable, func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			})
			reportCache = &gatedCache{cache: redis.NewReportCache(cache).WithBreaker(breaker), features: cfg.Features}
			locker = cache
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. МЕТРИКИ
	// ─────────────────────────────────────────────────────────────────────────
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewCollectors(promRegistry)

	if cfg.Observability.MetricsEnabled {
		srv := metricsServer(cfg, promRegistry, dbConn)
		go func() {
			log.Info("metrics server listening", logger.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", logger.Err(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. СЦЕНАРИИ
	// ─────────────────────────────────────────────────────────────────────────
	loader := query.NewLearnerLoader(activityRepo, activityRepo, achievementRepo, recorder)

	flowCfg := saga.DefaultAchievementFlowConfig()
	flowCfg.Location = cfg.App.Location
	flow := saga.NewAchievementFlow(loader, achievementRepo, achievement.NewEngine(registry), flowCfg, log, recorder)

	reportCfg := query.DefaultGetDailyReportConfig()
	reportCfg.Location = cfg.App.Location
	reportCfg.Freshness = cfg.Engine.ReportFreshness
	reportCfg.Options = report.Options{
		StrugglingThreshold: cfg.Engine.StrugglingThreshold,
		StaleAfter:          cfg.Engine.StaleAfter,
		NeedsWorkLimit:      cfg.Engine.NeedsWorkLimit,
		RecentQuizCount:     cfg.Engine.RecentQuizCount,
	}
	reports := query.NewGetDailyReportHandler(loader, reportRepo, reportCache, query.UUIDGenerator{}, reportCfg, log, recorder)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	learnerIDs := make([]activity.LearnerID, 0, len(cfg.Engine.LearnerIDs))
	for _, id := range cfg.Engine.LearnerIDs {
		learnerIDs = append(learnerIDs, activity.LearnerID(id))
	}

	job := jobs.NewProcessLearnersJob(activityRepo, flow, reports, locker, cfg.Features, jobs.ProcessLearnersConfig{
		Lookback:    cfg.Engine.Lookback,
		Concurrency: cfg.Engine.Concurrency,
		LockTTL:     cfg.Engine.LockTTL,
		Owner:       instanceID(),
		LearnerIDs:  learnerIDs,
	})

	sched := scheduler.New(scheduler.Config{Logger: log})
	if err := sched.Register(job, scheduler.Every(cfg.Engine.PollInterval)); err != nil {
		return fmt.Errorf("failed to register job: %w", err)
	}

	if cfg.Engine.PollInterval == 0 {
		log.Info("running jobs once")
		return sched.RunAll(ctx)
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	log.Info("progress engine is running")

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("received shutdown signal, stopping...", logger.Duration("timeout", cfg.App.ShutdownTimeout))

	done := make(chan error, 1)
	go func() { done <- sched.Stop() }()

	select {
	case err := <-done:
		if err != nil {
			log.Warn("scheduler stop failed", logger.Err(err))
		}
	case <-time.After(cfg.App.ShutdownTimeout):
		log.Warn("shutdown timeout exceeded, exiting with jobs still running")
	}

	log.Info("shutdown completed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.Observability.LogFormat == string(logger.FormatConsole) {
		opts.Format = logger.FormatConsole
	}
	return logger.New(opts).With(logger.String("app", cfg.App.Name))
}

func postgresConfig(cfg *config.Config) postgres.Config {
	pg := postgres.DefaultConfig(cfg.Database.URL)
	pg.MaxConns = int32(cfg.Database.MaxConns)
	pg.MinConns = int32(cfg.Database.MinConns)
	pg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	return pg
}

func redisConfig(cfg *config.Config) redis.Config {
	rc := redis.DefaultConfig(cfg.Redis.Addr())
	rc.Password = cfg.Redis.Password
	rc.DB = cfg.Redis.DB
	rc.PoolSize = cfg.Redis.PoolSize
	rc.DialTimeout = cfg.Redis.DialTimeout
	rc.ReadTimeout = cfg.Redis.ReadTimeout
	rc.WriteTimeout = cfg.Redis.WriteTimeout
	return rc
}

// metricsServer serves /metrics and a database-backed /healthz.
func metricsServer(cfg *config.Config, gatherer prometheus.Gatherer, db *postgres.Connection) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(gatherer))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Observability.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "engine"
	}
	return host + "-" + uuid.NewString()
}

// gatedCache applies the report cache feature flag per learner.
type gatedCache struct {
	cache    *redis.ReportCache
	features *config.FeatureFlags
}

func (c *gatedCache) Get(ctx context.Context, learnerID activity.LearnerID, date string) (*report.DailyReport, error) {
	if !c.features.IsEnabled(config.FeatureReportCache, learnerID.String()) {
		return nil, shared.NewDomainError("report_cache", "Get", shared.ErrNotFound, "cache disabled for learner")
	}
	return c.cache.Get(ctx, learnerID, date)
}

func (c *gatedCache) Set(ctx context.Context, r *report.DailyReport, ttl time.Duration) error {
	if !c.features.IsEnabled(config.FeatureReportCache, r.LearnerID.String()) {
		return nil
	}
	return c.cache.Set(ctx, r, ttl)
}

func (c *gatedCache) Invalidate(ctx context.Context, learnerID activity.LearnerID, date string) error {
	return c.cache.Invalidate(ctx, learnerID, date)
}
