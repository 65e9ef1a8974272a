package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/pos-checkout/internal/adapter"
	"github.com/xenking/pos-checkout/internal/checkout"
	"github.com/xenking/pos-checkout/internal/handler"
	"github.com/xenking/pos-checkout/internal/storage/memory"
	"github.com/xenking/pos-checkout/internal/storage/postgres"
	"github.com/xenking/pos-checkout/pkg/health"
	"github.com/xenking/pos-checkout/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.Duration("idempotency_retention", cfg.IdempotencyRetention),
		zap.Bool("persistent_store", cfg.DatabaseURL != ""),
	)

	healthSvc := health.New()

	// Outcome store: PostgreSQL when configured, in-memory otherwise. Both
	// enforce the same retention window and run their own expiry cleanup.
	var outcomes checkout.Store
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return errors.Wrap(err, "create db pool")
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}

		repo := postgres.NewOutcomeRepository(pool, cfg.IdempotencyRetention)
		repo.StartCleanup(ctx)
		outcomes = repo

		healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
			return pool.Ping(ctx)
		})
	} else {
		store := memory.NewOutcomeStore(cfg.IdempotencyRetention)
		store.StartCleanup(ctx)
		outcomes = store
	}

	// Capability adapters and readiness probes for both dependencies.
	inventoryClient := adapter.NewInventoryClient(cfg.Inventory.URL, cfg.Inventory.Timeout)
	paymentClient := adapter.NewPaymentClient(cfg.Payment.URL, cfg.Payment.Timeout)
	healthSvc.AddReadinessCheck("inventory", 5*time.Second, health.HTTPDependencyCheck(nil, cfg.Inventory.URL+"/healthz"))
	healthSvc.AddReadinessCheck("payment", 5*time.Second, health.HTTPDependencyCheck(nil, cfg.Payment.URL+"/healthz"))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Orchestrator.
	orchestrator := checkout.New(
		inventoryClient,
		paymentClient,
		outcomes,
		checkout.NewLogAlertSink(lg.Named("compensation_alerts")),
		m.TracerProvider().Tracer("checkout"),
	)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	handler.NewHandler(orchestrator).Register(mux)

	instrumented := otelhttp.NewHandler(mux, "checkout-api",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	)

	// A submission spans up to two inventory calls (reserve, release) and one
	// charge; the write timeout must not cut the sequence's response short.
	writeTimeout := 2*cfg.Inventory.Timeout + cfg.Payment.Timeout + 5*time.Second

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(instrumented,
			httpmiddleware.Recovery(),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
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
