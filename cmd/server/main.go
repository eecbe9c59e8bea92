package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/orderdesk/orderdesk-backend/internal/api/middleware"
	"github.com/orderdesk/orderdesk-backend/internal/api/rest"
	"github.com/orderdesk/orderdesk-backend/internal/api/websocket"
	"github.com/orderdesk/orderdesk-backend/internal/config"
	"github.com/orderdesk/orderdesk-backend/internal/pkg/logger"
	"github.com/orderdesk/orderdesk-backend/internal/pkg/tracing"
	"github.com/orderdesk/orderdesk-backend/internal/repository"
	"github.com/orderdesk/orderdesk-backend/internal/service"
	"github.com/orderdesk/orderdesk-backend/migrations"
)

const serviceName = "orderdesk-backend"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "orderdesk-backend: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Info("🚀 orderdesk backend starting", "port", cfg.Port, "driver", cfg.DatabaseDriver)

	shutdownTracing, err := tracing.Init(serviceName, cfg.OTLPEndpoint, cfg.TraceSamplingRate)
	if err != nil {
		log.Warn("tracing disabled", "error", err)
		shutdownTracing = func() {}
	}
	defer shutdownTracing()

	repo, err := openRepository(cfg, log)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifier := service.NewNotifier(cfg, log)
	notifier.Start(ctx)
	defer notifier.Stop()

	poller := service.NewOrderPoller(repo, notifier, cfg, log)
	poller.Start(ctx)
	defer poller.Stop()

	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Tracing(serviceName))
	router.Use(middleware.StructuredLog)
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RateLimit(cfg.APIRateLimitPerSec, cfg.APIRateLimitBurst))

	healthz := rest.NewHealthzHandler(repo)
	router.HandleFunc("/health", healthz.Live).Methods("GET")
	router.HandleFunc("/healthz/live", healthz.Live).Methods("GET")
	router.HandleFunc("/healthz/ready", healthz.Ready).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	handler := rest.NewHandler(repo, notifier, poller, cfg, log)
	rest.SetupRoutes(apiRouter, handler)

	wsHandler := websocket.NewHandler(notifier, cfg, log)
	router.HandleFunc("/ws/notifications", wsHandler.ServeWS).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      c.Handler(router),
		ReadTimeout:  time.Duration(cfg.RequestTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.RequestTimeoutSec) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("🌐 server listening",
			"addr", srv.Addr,
			"api", fmt.Sprintf("http://localhost:%d/api/v1", cfg.Port),
			"ws", fmt.Sprintf("ws://localhost:%d/ws/notifications", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-quit:
			log.Info("🛑 shutdown signal received", "signal", sig.String())
		case <-gctx.Done():
			return gctx.Err()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.ShutdownTimeoutSec)*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}

	log.Info("✅ server exited gracefully")
	return nil
}

// openRepository selects the driver, connects, and applies embedded
// migrations. SQLite is the default for the desktop sidecar deployment;
// Postgres serves multi-workstation shops.
func openRepository(cfg *config.Config, log *slog.Logger) (repository.OrderRepository, error) {
	switch cfg.DatabaseDriver {
	case "postgres":
		repo, err := repository.NewPostgresRepository(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := migrate(repo, "postgres"); err != nil {
			log.Warn("migrations failed", "driver", "postgres", "error", err)
		}
		return repo, nil
	case "sqlite", "":
		repo, err := repository.NewSQLiteRepository(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		if err := migrate(repo, "sqlite"); err != nil {
			log.Warn("migrations failed", "driver", "sqlite", "error", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown database driver: %q", cfg.DatabaseDriver)
	}
}

type migrator interface {
	RunMigrations(migrationSQL string) error
}

func migrate(repo migrator, driver string) error {
	entries, err := migrations.FS.ReadDir(driver)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		sqlBytes, err := migrations.FS.ReadFile(driver + "/" + entry.Name())
		if err != nil {
			return err
		}
		if err := repo.RunMigrations(string(sqlBytes)); err != nil {
			return fmt.Errorf("%s: %w", entry.Name(), err)
		}
	}
	return nil
}
