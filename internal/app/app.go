package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	// Domains
	"github.com/uniedit/payflow/internal/domain/idempotency"
	"github.com/uniedit/payflow/internal/domain/payment"
	"github.com/uniedit/payflow/internal/domain/webhook"

	// Inbound adapters (HTTP handlers)
	ginadapter "github.com/uniedit/payflow/internal/adapter/inbound/gin"

	// Outbound ports and adapters
	"github.com/uniedit/payflow/internal/adapter/outbound/memory"
	"github.com/uniedit/payflow/internal/adapter/outbound/postgres"
	redisadapter "github.com/uniedit/payflow/internal/adapter/outbound/redis"
	s3adapter "github.com/uniedit/payflow/internal/adapter/outbound/s3"
	"github.com/uniedit/payflow/internal/port/outbound"

	// Shared infrastructure
	"github.com/uniedit/payflow/internal/infra/config"
	"github.com/uniedit/payflow/internal/infra/events"
	sharedcache "github.com/uniedit/payflow/internal/shared/cache"
	"github.com/uniedit/payflow/internal/shared/database"
	"github.com/uniedit/payflow/internal/shared/logger"
	"github.com/uniedit/payflow/internal/utils/metrics"
	"github.com/uniedit/payflow/internal/utils/middleware"
)

// App wires the payment, webhook and idempotency domains to their adapters.
type App struct {
	config *config.Config
	db     *gorm.DB
	redis  goredis.UniversalClient
	router *gin.Engine
	logger *zap.Logger

	// Observability
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	// Event infrastructure
	eventBus *events.Bus

	// Outbound adapters
	payments         payment.Repository
	transactions     payment.TransactionRepository
	webhookEvents    webhook.Repository
	idempotencyStore idempotency.Store
	rateLimiter      outbound.RateLimiterPort
	archive          outbound.DeadLetterArchivePort
	providers        outbound.PaymentProviderRegistryPort

	// Domain services
	paymentDomain payment.PaymentDomain
	webhookDomain webhook.WebhookDomain
	guard         *idempotency.Guard

	// Background workers
	scheduler *webhook.RetryScheduler
	janitor   *idempotency.Janitor

	// Cleanup functions, run in reverse order by Stop
	cleanupFuncs []func()
}

// Option customizes an App before its components are built.
type Option func(*App)

// WithLogger replaces the logger built from configuration.
func WithLogger(l *zap.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithProviders replaces the provider registry built from configuration.
func WithProviders(registry outbound.PaymentProviderRegistryPort) Option {
	return func(a *App) { a.providers = registry }
}

// New creates a new application instance.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	app := &App{
		config:       cfg,
		cleanupFuncs: make([]func(), 0),
	}
	for _, opt := range opts {
		opt(app)
	}

	if app.logger == nil {
		app.logger = logger.New(&logger.Config{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
		})
	}

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = metrics.NewWithRegisterer("payflow", app.registry)

	if err := app.applyMoneyPolicy(); err != nil {
		return nil, err
	}

	// Initialize infrastructure
	if err := app.initInfrastructure(ctx); err != nil {
		app.Stop()
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	if err := app.initStores(ctx); err != nil {
		app.Stop()
		return nil, fmt.Errorf("init stores: %w", err)
	}

	if app.providers == nil {
		registry, err := app.buildProviderRegistry()
		if err != nil {
			app.Stop()
			return nil, fmt.Errorf("init payment providers: %w", err)
		}
		app.providers = registry
	}

	// Event bus with its statically known subscribers
	app.eventBus = events.NewBus(app.logger)
	app.registerEventHandlers()

	// Initialize domains with adapters
	app.initDomains()

	// Initialize router
	app.router = app.setupRouter()
	app.registerRoutes()

	return app, nil
}

func (a *App) applyMoneyPolicy() error {
	maxAmount := decimal.Zero
	if a.config.Payment.MaxAmount != "" {
		d, err := decimal.NewFromString(a.config.Payment.MaxAmount)
		if err != nil {
			return fmt.Errorf("invalid payment.max_amount %q: %w", a.config.Payment.MaxAmount, err)
		}
		maxAmount = d
	}
	payment.SetMoneyPolicy(payment.NewMoneyPolicy(maxAmount, a.config.Payment.Currencies))
	return nil
}

// initInfrastructure initializes database and cache connections. Both are
// optional: without a database host the in-memory stores are used.
func (a *App) initInfrastructure(ctx context.Context) error {
	if a.config.Database.Enabled() {
		db, err := database.New(ctx, &a.config.Database, a.logger)
		if err != nil {
			return fmt.Errorf("init database: %w", err)
		}
		a.db = db
		a.cleanupFuncs = append(a.cleanupFuncs, func() { _ = database.Close(db) })

		if a.config.Database.AutoMigrate {
			if err := postgres.AutoMigrate(db); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}
		}
	}

	if a.config.Redis.Address != "" {
		client, err := sharedcache.NewRedisClient(ctx, &a.config.Redis)
		switch {
		case err == nil:
			a.redis = client
			a.cleanupFuncs = append(a.cleanupFuncs, func() { _ = client.Close() })
		case a.config.Idempotency.Store == "redis":
			return fmt.Errorf("init redis: %w", err)
		default:
			a.logger.Warn("Redis connection failed, continuing without rate limits", zap.Error(err))
		}
	}

	return nil
}

// initStores selects the persistence adapters.
func (a *App) initStores(ctx context.Context) error {
	if a.db != nil {
		a.payments = postgres.NewPaymentAdapter(a.db)
		a.transactions = postgres.NewTransactionAdapter(a.db)
		a.webhookEvents = postgres.NewWebhookEventStore(a.db)
	} else {
		a.logger.Warn("no database configured, using in-memory stores")
		paymentStore := memory.NewPaymentStore()
		a.payments = paymentStore
		a.transactions = paymentStore.Transactions()
		a.webhookEvents = memory.NewWebhookEventStore()
	}

	switch a.config.Idempotency.Store {
	case "postgres":
		a.idempotencyStore = postgres.NewIdempotencyStore(a.db)
	case "redis":
		a.idempotencyStore = redisadapter.NewIdempotencyStore(a.redis)
	default:
		a.idempotencyStore = memory.NewIdempotencyStore()
	}

	if a.redis != nil {
		a.rateLimiter = redisadapter.NewRateLimiter(a.redis)
	}

	if a.config.Archive.Bucket != "" {
		client, err := s3adapter.NewClient(ctx, s3adapter.Config{
			Endpoint:        a.config.Archive.Endpoint,
			Region:          a.config.Archive.Region,
			AccessKeyID:     a.config.Archive.AccessKeyID,
			SecretAccessKey: a.config.Archive.SecretAccessKey,
			Bucket:          a.config.Archive.Bucket,
		})
		if err != nil {
			return fmt.Errorf("init dead-letter archive: %w", err)
		}
		a.archive = s3adapter.NewDeadLetterArchive(client, a.config.Archive.Bucket, a.config.Archive.Prefix)
	}

	return nil
}

// initDomains initializes the domain services and background workers.
func (a *App) initDomains() {
	a.paymentDomain = payment.NewPaymentDomain(
		a.payments,
		a.transactions,
		a.providers,
		a.eventBus,
		a.config.Payment.DefaultProvider,
		a.logger,
	)

	webhookOpts := []webhook.Option{webhook.WithRecorder(a.metrics)}
	if a.archive != nil {
		webhookOpts = append(webhookOpts, webhook.WithArchive(a.archive))
	}
	if a.rateLimiter != nil {
		webhookOpts = append(webhookOpts, webhook.WithReplayLimiter(a.rateLimiter))
	}

	a.webhookDomain = webhook.NewWebhookDomain(
		a.webhookEvents,
		a.paymentDomain,
		a.providers,
		webhook.NewBackoff(a.config.Webhook.BaseDelay, a.config.Webhook.MaxDelay),
		webhook.Config{
			MaxRetries:        a.config.Webhook.MaxRetries,
			ProcessingTimeout: a.config.Webhook.ProcessingTimeout,
			ReplayLimit:       a.config.Webhook.ReplayLimit,
			ReplayWindow:      a.config.Webhook.ReplayWindow,
		},
		a.logger,
		webhookOpts...,
	)

	a.scheduler = webhook.NewRetryScheduler(
		a.webhookEvents,
		a.webhookDomain,
		webhook.SchedulerConfig{
			Interval:    a.config.Webhook.PollInterval,
			BatchSize:   a.config.Webhook.BatchSize,
			Concurrency: a.config.Webhook.Concurrency,
			StaleAfter:  a.config.Webhook.StaleAfter,
		},
		a.logger,
	)

	a.guard = idempotency.NewGuard(a.idempotencyStore, a.config.Idempotency.TTL, a.logger)
	a.janitor = idempotency.NewJanitor(a.guard, a.config.Idempotency.JanitorInterval, a.metrics, a.logger)
}

// setupRouter creates and configures the Gin router.
func (a *App) setupRouter() *gin.Engine {
	// Set Gin mode based on environment
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Apply global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.Metrics(a.metrics))
	r.Use(middleware.CORS(middleware.CORSConfig{AllowOrigins: a.config.CORS.AllowOrigins}))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"providers": a.providers.List(),
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	return r
}

// registerRoutes registers all HTTP routes.
func (a *App) registerRoutes() {
	v1 := a.router.Group("/api/v1")

	idempotent := middleware.Idempotency(a.guard, middleware.IdempotencyConfig{
		TTL:      a.config.Idempotency.TTL,
		Recorder: a.metrics,
		Logger:   a.logger,
	})
	ginadapter.RegisterPaymentRoutes(v1, ginadapter.NewPaymentAdapter(a.paymentDomain, ginadapter.PaymentDefaults{
		ReturnURL: a.config.Payment.ReturnURL,
		CancelURL: a.config.Payment.CancelURL,
	}), idempotent)

	var webhookMiddleware []gin.HandlerFunc
	if a.rateLimiter != nil && a.config.Webhook.RateLimit > 0 {
		webhookMiddleware = append(webhookMiddleware,
			middleware.RateLimitWebhooks(a.rateLimiter, a.config.Webhook.RateLimit, time.Minute, a.logger))
	}
	ginadapter.RegisterWebhookRoutes(v1, ginadapter.NewWebhookAdapter(a.webhookDomain), webhookMiddleware...)

	var validator *middleware.JWTValidator
	if a.config.Admin.JWTSecret != "" {
		validator = middleware.NewJWTValidator(a.config.Admin.JWTSecret)
	} else {
		a.logger.Warn("admin.jwt_secret is empty, dead-letter endpoints reject every request")
	}
	ginadapter.RegisterDeadLetterRoutes(v1, ginadapter.NewDeadLetterAdapter(a.webhookDomain), middleware.AdminAuth(validator))
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Start launches the background workers.
func (a *App) Start(ctx context.Context) {
	a.scheduler.Start(ctx)
	a.janitor.Start(ctx)
}

// Stop stops the background workers and releases resources.
func (a *App) Stop() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.janitor != nil {
		a.janitor.Stop()
	}

	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i]()
	}
	a.cleanupFuncs = nil

	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
