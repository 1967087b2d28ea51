// cissyncd serves the CIS reconciliation API: it pulls operational records
// from the legacy Oracle CIS into the local Postgres store on demand.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rutthawitc/meterinstallbackend/cissync"
	"github.com/rutthawitc/meterinstallbackend/orareader"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pool.Close()

	if err := cissync.InitializeSchema(ctx, pool); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	store, err := cissync.NewPgStore(pool, logger)
	if err != nil {
		log.Fatalf("Failed to create store: %v", err)
	}

	source, err := orareader.Open(cfg.OracleDSN, logger)
	if err != nil {
		log.Fatalf("Failed to open Oracle source: %v", err)
	}
	defer source.Close()

	service, err := cissync.NewSyncService(store, source, &cissync.ServiceConfig{
		AppName:         "cissyncd",
		BatchSize:       cfg.BatchSize,
		StaleRunMaxAge:  time.Duration(cfg.StaleRunMaxAge),
		LogStageTimings: cfg.LogStageTiming,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to create sync service: %v", err)
	}

	// Runs left in running state by a crashed daemon are failed on startup.
	if n, err := service.ReapStaleRuns(ctx, 0); err != nil {
		logger.Warn("startup stale-run reap failed", "error", err)
	} else if n > 0 {
		logger.Info("reaped stale runs from previous process", "count", n)
	}

	jwtAuth := cissync.NewJWTAuth(cfg.JWTSecret)
	handlers := cissync.NewHTTPSyncHandlers(service, jwtAuth, logger)

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 15 * time.Minute, // synchronous full-sync runs are slow
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting cissyncd", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	logger.Info("server exited")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
