package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"peopledesk/internal/audit"
	auditpg "peopledesk/internal/audit/store/postgres"
	"peopledesk/internal/platform/config"
	"peopledesk/internal/platform/database"
	"peopledesk/internal/platform/logger"
	transport "peopledesk/internal/transport/http"
	"peopledesk/pkg/platform/middleware/metadata"
)

// main wires the compliance view server: config, logger, store handle,
// migrations and the read-only audit endpoints. The write side (gateway +
// change tracker) is a library contract consumed by the upstream HR
// application; it has no routes here.
func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database open failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	queries := audit.NewQueryService(auditpg.New(db))

	router := chi.NewRouter()
	router.Use(metadata.ClientMetadata)
	router.Use(transport.Identity)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Group(transport.NewHandler(queries, log).Routes)

	srv := &http.Server{Addr: cfg.Addr, Handler: router}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting peopledesk", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
