package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/erazemk/webventory/internal/api"
	"github.com/erazemk/webventory/internal/charts"
	"github.com/erazemk/webventory/internal/db"
	"github.com/erazemk/webventory/internal/insights"
	"github.com/erazemk/webventory/internal/metrics"
	"github.com/erazemk/webventory/internal/store"
	"github.com/erazemk/webventory/internal/web"
)

func serveCmd(a *app, flags *pflag.FlagSet) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(a)
		},
	}
	cmd.Flags().AddFlagSet(flags)
	return cmd
}

// openDatabase opens the database and makes sure its schema is current.
func openDatabase(path string) (*sql.DB, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return database, nil
}

func runServe(a *app) error {
	cfg := a.cfg

	database, err := openDatabase(cfg.DB)
	if err != nil {
		return err
	}
	defer database.Close()
	slog.Info("database ready", "path", cfg.DB)

	// Load JWT secret from database (auto-generated on first run).
	jwtSecret, err := store.GetJWTSecret(context.Background(), database)
	if err != nil {
		return fmt.Errorf("getting JWT secret: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	cache, err := charts.OpenCache(charts.CacheOptions{
		Dir:      cfg.Charts.Dir,
		InMemory: cfg.Charts.InMemory,
		TTL:      cfg.Charts.TTL,
		Metrics:  m,
	})
	if err != nil {
		return err
	}
	defer cache.Close()
	slog.Info("chart cache ready", "dir", cfg.Charts.Dir, "in_memory", cfg.Charts.InMemory, "ttl", cfg.Charts.TTL)

	svc := &insights.Service{
		DB:             database,
		Cache:          cache,
		Renderer:       charts.Renderer{Width: cfg.Charts.Width, Height: cfg.Charts.Height},
		KeepZeroValues: cfg.Charts.KeepZeroValues,
	}

	// Set up routers.
	apiRouter := api.NewRouter(api.Options{
		DB:          database,
		JWTSecret:   jwtSecret,
		SessionTTL:  cfg.Session.TTL,
		Insights:    svc,
		Metrics:     m,
		CORSOrigins: cfg.API.CORSOrigins,
	})
	webRouter, err := web.NewRouter(web.Options{
		DB:         database,
		JWTSecret:  jwtSecret,
		SessionTTL: cfg.Session.TTL,
		Insights:   svc,
		Metrics:    m,
	})
	if err != nil {
		return fmt.Errorf("setting up web router: %w", err)
	}

	// Combine: API routes take priority, web routes handle the rest.
	mux := http.NewServeMux()
	mux.Handle("/api/", apiRouter)
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}
	mux.Handle("/", webRouter)

	handler := api.LoggingMiddleware(m.Middleware(mux))

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Addr, "version", version, "metrics", m != nil)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("server stopped, closing database")
	return nil
}
