package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/salon-pos/internal/domain/promotion"
	"github.com/xenking/salon-pos/internal/domain/session"
	"github.com/xenking/salon-pos/internal/draftstore"
	"github.com/xenking/salon-pos/internal/handler"
	"github.com/xenking/salon-pos/internal/jobs"
	"github.com/xenking/salon-pos/internal/repository"
	"github.com/xenking/salon-pos/pkg/health"
	"github.com/xenking/salon-pos/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Draft store: Redis when configured, in-process otherwise.
	var drafts session.DraftStore
	if cfg.RedisURL != "" {
		client, err := draftstore.Dial(ctx, cfg.RedisURL)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = client.Close() }()

		store := draftstore.NewRedis(client)
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck(store))
		drafts = store
	} else {
		lg.Warn("Redis URL not set, drafts are kept in memory")
		drafts = draftstore.NewMemory()
	}

	// Repositories.
	promotions := promotion.NewCache(repository.NewPromotionRepository(pool), lg.Named("promotions"))

	manager, err := session.NewManager(lg.Named("session"), session.Deps{
		Catalog:    repository.NewCatalogRepository(pool),
		Promotions: promotions,
		Customers:  repository.NewCustomerRepository(pool),
		Settings:   repository.NewSettingsRepository(pool),
		Bridge:     repository.NewSaleRepository(pool),
		Drafts:     drafts,
		Meter:      m.MeterProvider(),
	}, session.Options{
		DraftTTL:      cfg.DraftTTL,
		SubmitTimeout: cfg.SubmitTimeout,
	})
	if err != nil {
		return errors.Wrap(err, "create session manager")
	}

	scheduler, err := jobs.NewScheduler(lg.Named("jobs"))
	if err != nil {
		return err
	}
	if err := scheduler.AddPromotionRefresh(ctx, promotions, cfg.PromotionRefresh); err != nil {
		return err
	}
	scheduler.Start()

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Router: health endpoints + API routes on one server.
	router := handler.New(manager).Router()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	routeFinder := httpmiddleware.MakeRouteFinder(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.SubmitTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", httpmiddleware.TerminalHeader, httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.TerminalOrIP,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("pos-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		if err := scheduler.Shutdown(); err != nil {
			lg.Error("Scheduler shutdown error", zap.Error(err))
		}
		manager.Shutdown(shutdownCtx)
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
