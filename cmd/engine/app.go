package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alem-hub/progress-engine/config"
	"github.com/alem-hub/progress-engine/internal/application/command"
	"github.com/alem-hub/progress-engine/internal/application/eventhandler"
	"github.com/alem-hub/progress-engine/internal/application/query"
	"github.com/alem-hub/progress-engine/internal/application/rewards"
	"github.com/alem-hub/progress-engine/internal/domain/curriculum"
	"github.com/alem-hub/progress-engine/internal/domain/learner"
	"github.com/alem-hub/progress-engine/internal/domain/notification"
	"github.com/alem-hub/progress-engine/internal/domain/relevance"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
	"github.com/alem-hub/progress-engine/internal/infrastructure/messaging"
	"github.com/alem-hub/progress-engine/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/progress-engine/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/progress-engine/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/progress-engine/internal/infrastructure/scheduler/jobs"
	"github.com/alem-hub/progress-engine/internal/infrastructure/service"
	"github.com/alem-hub/progress-engine/internal/infrastructure/tuning"
	"github.com/alem-hub/progress-engine/internal/interface/http/handlers"
	"github.com/alem-hub/progress-engine/pkg/circuitbreaker"
	"github.com/alem-hub/progress-engine/pkg/timeutil"
)

// App holds the wired components shared by all subcommands.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	// Infrastructure
	db    *postgres.Connection
	cache *redis.Cache
	bus   *messaging.InMemoryEventBus

	// Repositories
	catalog       curriculum.CatalogRepository
	progress      curriculum.ProgressRepository
	learners      learner.Repository
	stats         learner.StatsReader
	profiles      relevance.ProfileReader
	projects      relevance.ProjectReader
	notifications notification.Repository

	// Application
	engine           *rewards.Engine
	completeActivity *command.CompleteActivityHandler
	access           *query.ModuleAccessQuery
	overview         *query.ProgressOverviewQuery
	recommend        *query.RecommendProjectsHandler
	reconcile        *jobs.ReconcileAchievementsJob
	health           *handlers.CompositeHealthChecker
}

// newApp wires storage, the event bus and the application layer.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	app := &App{
		cfg:    cfg,
		logger: log,
		health: handlers.NewCompositeHealthChecker(cfg.App.Version),
	}
	clock := timeutil.SystemClock{}
	ids := service.NewIDGenerator()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	switch cfg.Database.Driver {
	case config.DriverMemory:
		if err := app.wireMemory(); err != nil {
			return nil, err
		}
	default:
		if err := app.wirePostgres(ctx); err != nil {
			return nil, err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	app.wireRedis(ctx)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. EVENT BUS (synchronous, handler errors reach the publisher)
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	app.bus = messaging.NewInMemoryEventBus(busCfg)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REWARDS ENGINE
	// ─────────────────────────────────────────────────────────────────────────
	app.engine = rewards.NewEngine(
		app.learners,
		app.stats,
		app.bus,
		ids,
		clock,
		rewards.Config{Location: cfg.App.Location},
		log,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. NOTIFICATIONS
	// ─────────────────────────────────────────────────────────────────────────
	dispatcher := service.NewNotificationDispatcher(
		app.notifications,
		ids,
		circuitbreaker.NotificationSinkBreaker(app.logBreakerChange),
		cfg.Features,
		service.DispatcherConfig{
			RateLimit:    cfg.Notifications.RateLimit,
			Burst:        cfg.Notifications.Burst,
			WriteTimeout: cfg.Notifications.WriteTimeout,
			Features: map[notification.NotificationType]string{
				notification.NotificationTypeAchievement:     config.FeatureNotifyAchievement,
				notification.NotificationTypeLevelUp:         config.FeatureNotifyLevelUp,
				notification.NotificationTypeStreakMilestone: config.FeatureNotifyStreakMilestone,
				notification.NotificationTypeModuleCompleted: config.FeatureNotifyModuleCompleted,
			},
		},
		log,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	onCompleted := eventhandler.NewOnActivityCompletedHandler(app.engine, eventhandler.ActivityCompletedConfig{
		ActivityXP: cfg.Rewards.ActivityXP,
		ModuleXP:   cfg.Rewards.ModuleXP,
	}, log)
	if err := app.bus.Subscribe(shared.EventActivityCompleted, onCompleted.Handle); err != nil {
		return nil, fmt.Errorf("subscribe completion handler: %w", err)
	}

	onReward := eventhandler.NewOnRewardGrantedHandler(dispatcher, log)
	for _, t := range onReward.EventTypes() {
		if err := app.bus.Subscribe(t, onReward.Handle); err != nil {
			return nil, fmt.Errorf("subscribe reward handler: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. COMMANDS & QUERIES
	// ─────────────────────────────────────────────────────────────────────────
	app.completeActivity = command.NewCompleteActivityHandler(app.catalog, app.progress, app.learners, app.bus, clock, log)
	app.access = query.NewModuleAccessQuery(app.catalog, app.progress, app.learners)
	app.overview = query.NewProgressOverviewQuery(app.catalog, app.progress, app.learners, clock)

	tables, err := tuning.LoadKeywordTables(cfg.Relevance.KeywordsFile)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("load keyword tables: %w", err)
	}
	app.recommend = query.NewRecommendProjectsHandler(
		app.profiles,
		app.projects,
		relevance.NewMatcher(tables),
		cfg.Relevance.DefaultLimit,
		log,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. JOBS
	// ─────────────────────────────────────────────────────────────────────────
	var locker jobs.Locker
	if app.cache != nil {
		locker = app.cache
	}
	app.reconcile = jobs.NewReconcileAchievementsJob(
		app.learners,
		app.engine,
		locker,
		clock,
		log,
		jobs.ReconcileAchievementsConfig{
			Lookback:    cfg.Scheduler.ReconcileLookback,
			Concurrency: cfg.Scheduler.ReconcileConcurrency,
		},
	)

	return app, nil
}

func (a *App) wireMemory() error {
	catalog, err := tuning.LoadCatalog(a.cfg.Database.CatalogFile)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	store := memory.NewStore()
	store.Seed(catalog)

	a.catalog = memory.NewCatalogRepository(store)
	a.progress = memory.NewProgressRepository(store)
	a.learners = memory.NewLearnerRepository(store)
	a.stats = memory.NewStatsReader(store)
	relevanceRepo := memory.NewRelevanceRepository(store)
	a.profiles = relevanceRepo
	a.projects = relevanceRepo
	a.notifications = memory.NewNotificationRepository(store)

	a.logger.Warn("using in-memory storage, state is lost on exit",
		"modules", len(catalog.Modules),
		"activities", len(catalog.Activities),
		"projects", len(catalog.Projects),
	)
	return nil
}

func (a *App) wirePostgres(ctx context.Context) error {
	a.logger.Info("connecting to database...")
	db, err := postgres.NewConnectionFromURL(ctx, a.cfg.Database.URL, postgres.PoolSettings{
		MaxConns:          a.cfg.Database.MaxConns,
		MinConns:          a.cfg.Database.MinConns,
		MaxConnLifetime:   a.cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime:   a.cfg.Database.ConnMaxIdleTime,
		HealthCheckPeriod: postgres.DefaultPoolSettings().HealthCheckPeriod,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	a.db = db
	a.health.AddCheck("postgres", handlers.NewPingCheck(db))

	a.catalog = postgres.NewCatalogRepository(db)
	a.progress = postgres.NewProgressRepository(db)
	a.learners = postgres.NewLearnerRepository(db)
	a.stats = postgres.NewStatsRepository(db)
	relevanceRepo := postgres.NewRelevanceRepository(db)
	a.profiles = relevanceRepo
	a.projects = relevanceRepo
	a.notifications = postgres.NewNotificationRepository(db)

	a.logger.Info("database connection established")
	return nil
}

func (a *App) wireRedis(ctx context.Context) {
	if a.cfg.Redis.Disabled {
		a.logger.Info("redis disabled")
		return
	}

	redisCfg := redis.DefaultConfig()
	redisCfg.URL = a.cfg.Redis.URL
	redisCfg.Addr = a.cfg.Redis.Addr()
	redisCfg.Password = a.cfg.Redis.Password
	redisCfg.DB = a.cfg.Redis.DB
	redisCfg.PoolSize = a.cfg.Redis.PoolSize
	redisCfg.DialTimeout = a.cfg.Redis.DialTimeout
	redisCfg.ReadTimeout = a.cfg.Redis.ReadTimeout
	redisCfg.WriteTimeout = a.cfg.Redis.WriteTimeout

	cache, err := redis.NewCache(ctx, redisCfg)
	if err != nil {
		a.logger.Warn("failed to connect to Redis, caching disabled", "error", err)
		return
	}
	a.cache = cache
	a.health.AddCheck("redis", handlers.NewPingCheck(cache))

	if a.cfg.Features.IsEnabled(config.FeatureProfileCache, "") {
		a.profiles = redis.NewProfileCache(
			a.profiles,
			cache,
			circuitbreaker.ProfileCacheBreaker(a.logBreakerChange),
			a.cfg.Redis.ProfileTTL,
			a.logger,
		)
	}
	a.logger.Info("redis connection established")
}

func (a *App) logBreakerChange(name string, from, to circuitbreaker.State) {
	a.logger.Warn("circuit breaker state changed",
		"breaker", name,
		"from", from.String(),
		"to", to.String(),
	)
}

// Close releases connections.
func (a *App) Close() {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.logger.Warn("failed to close event bus", "error", err)
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("failed to close redis", "error", err)
		}
	}
	if a.db != nil {
		a.logger.Info("closing database connection...")
		a.db.Close()
	}
}
