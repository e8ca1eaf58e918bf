package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	tfhttp "github.com/Strob0t/TenantForge/internal/adapter/http"
	tfotel "github.com/Strob0t/TenantForge/internal/adapter/otel"
	"github.com/Strob0t/TenantForge/internal/adapter/postgres"
	"github.com/Strob0t/TenantForge/internal/config"
	"github.com/Strob0t/TenantForge/internal/logger"
	"github.com/Strob0t/TenantForge/internal/middleware"
	"github.com/Strob0t/TenantForge/internal/secrets"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// reconcileBatch bounds how many orphaned captured payments startup repairs.
const reconcileBatch = 100

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
		"nats_stream", cfg.NATS.Stream,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---

	shutdownOtel, err := tfotel.Init(ctx, tfotel.Config{
		Enabled:     cfg.Otel.Enabled,
		Endpoint:    cfg.Otel.Endpoint,
		ServiceName: cfg.Logging.Service,
		Insecure:    cfg.Otel.Insecure,
		SampleRate:  cfg.Otel.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(flushCtx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	metrics, err := tfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	vault, err := loadVault(cfg)
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	slog.Info("secrets loaded", "keys", vault.Keys())

	// --- Infrastructure ---

	pool, store, err := connectStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := connectQueue(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = queue.Close() }()

	dedupe, closeCache, err := dedupeCache(ctx, cfg, queue)
	if err != nil {
		return err
	}
	defer closeCache()

	// --- Services ---

	svc := buildServices(cfg, vault, store, queue, dedupe, metrics)

	stopWorker, err := newMailWorker(cfg, vault, queue, metrics).Start(ctx)
	if err != nil {
		return fmt.Errorf("mail worker: %w", err)
	}
	defer stopWorker()

	// --- HTTP ---

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	tenantRouter := middleware.NewTenantRouter(store, cfg.Routing.LegacyOwnerID, cfg.Routing.Paths)
	if cfg.Routing.LegacyOwnerID == "" {
		slog.Warn("no legacy owner configured, the legacy prefix only redirects")
	}

	handlers := &tfhttp.Handlers{
		Intents:   svc.registrar,
		Events:    svc.events,
		Activator: svc.activator,
		Resender:  svc.resender,
		Auth:      svc.auth,
		Store:     store,
		Queue:     queue,
		Cookie:    tfhttp.SessionCookie{Name: cfg.Session.CookieName, Secure: cfg.Session.CookieSecure},
		Version:   version,
	}

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(tfotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(tfhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(tfhttp.SecurityHeaders)
	r.Use(tfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(chimw.Timeout(30 * time.Second))

	tfhttp.MountRoutes(r, handlers, tfhttp.Guards{
		RateLimit:    limiter.Handler,
		Authenticate: middleware.Authenticate(svc.sessions),
		TenantRouter: tenantRouter.Handler,
	}, cfg.Routing.Paths)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		if err := queue.Drain(); err != nil {
			slog.Warn("nats drain", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		limiter.StartCleanup(gctx, cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
		return nil
	})

	g.Go(func() error {
		reloadSecretsOnHangup(gctx, vault)
		return nil
	})

	g.Go(func() error {
		n, err := svc.provisioner.Reconcile(gctx, reconcileBatch)
		if err != nil {
			slog.Error("startup reconcile failed", "error", err)
			return nil
		}
		if n > 0 {
			slog.Info("startup reconcile linked orphaned payments", "count", n)
		}
		return nil
	})

	return g.Wait()
}

// reloadSecretsOnHangup reloads the vault on every SIGHUP until ctx is done.
func reloadSecretsOnHangup(ctx context.Context, vault *secrets.Vault) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := vault.Reload(); err != nil {
				slog.Error("secret reload failed, keeping previous values", "error", err)
				continue
			}
			slog.Info("secrets reloaded", "keys", vault.Keys())
		}
	}
}
