// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/arbor/internal/api"
	"github.com/starford/arbor/internal/index"
	"github.com/starford/arbor/internal/mcpserver"
	"github.com/starford/arbor/internal/schema"
	"github.com/starford/arbor/internal/sse"
	"github.com/starford/arbor/internal/storage"
	"github.com/starford/arbor/internal/vault"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout, version: "dev"}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newLogger initializes the structured JSON logger.
func (a *application) newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
}

// openVault wires storage, the SQLite cache, and the vault service, then
// builds the trees. A vault that fails to build falls back to the last good
// build kept in the cache.
func openVault(ctx context.Context, cfg *Config, logger *slog.Logger, extra ...vault.Option) (*vault.Service, *index.DB, error) {
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init index: %w", err)
	}

	opts := append([]vault.Option{
		vault.WithCache(db),
		vault.WithLogger(logger),
		vault.WithMatchOptions(
			schema.WithMatchNamespace(cfg.Schema.MatchNamespace),
			schema.WithMatchPrefix(cfg.Schema.MatchPrefix),
		),
		vault.WithTemplates(cfg.Schema.ApplyTemplates),
		vault.WithWorkers(cfg.Vault.Workers),
	}, extra...)
	svc := vault.New(store, opts...)

	if err := svc.Load(ctx); err != nil {
		logger.Warn("vault load failed, restoring last good build", slog.String("error", err.Error()))
		if rerr := svc.Restore(ctx); rerr != nil {
			db.Close()
			return nil, nil, fmt.Errorf("open vault: %w", errors.Join(err, rerr))
		}
	}
	return svc, db, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := app.newLogger()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	svc, db, err := openVault(ctx, cfg, logger, vault.WithPublisher(broker))
	if err != nil {
		return err
	}
	defer db.Close()

	stats := svc.Stats()
	logger.Info("Vault ready",
		slog.Int("notes", stats.Notes),
		slog.Int("stubs", stats.Stubs),
		slog.Int("schemas", stats.Schemas))

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Reload the trees on file changes.
	if cfg.Vault.Watch {
		g.Go(func() error {
			if err := svc.Watch(gCtx, cfg.Vault.Path, cfg.Vault.Debounce); err != nil {
				logger.Error("watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group context so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdio. Logs go to the configured log
// output, which must not be stdout.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := app.newLogger()
	slog.SetDefault(logger)

	svc, db, err := openVault(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if app.config.Vault.Watch {
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := svc.Watch(watchCtx, app.config.Vault.Path, app.config.Vault.Debounce); err != nil {
				logger.Error("watcher failed", slog.String("error", err.Error()))
			}
		}()
	}

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(svc, app.version).ServeStdio()
}

// WriteTree prints the note hierarchy under fname ("" for the whole vault)
// to w, marking stubs.
func WriteTree(ctx context.Context, w io.Writer, fname string, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	svc, db, err := openVault(ctx, app.config, app.newLogger())
	if err != nil {
		return err
	}
	defer db.Close()
	return svc.WriteOutline(w, fname)
}

// WriteMatch prints the schema fname resolves to.
func WriteMatch(ctx context.Context, w io.Writer, fname string, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	svc, db, err := openVault(ctx, app.config, app.newLogger())
	if err != nil {
		return err
	}
	defer db.Close()

	sch, err := svc.MatchSchema(ctx, fname)
	if err != nil {
		return err
	}
	if sch.Unknown {
		_, err = fmt.Fprintf(w, "%s\t%s\n", fname, schema.UnknownSchemaID)
		return err
	}
	_, err = fmt.Fprintf(w, "%s\t%s#%s", fname, sch.Module, sch.ID)
	if err == nil && sch.Pattern != "" {
		_, err = fmt.Fprintf(w, "\t%s", sch.Pattern)
	}
	if err == nil {
		_, err = fmt.Fprintln(w)
	}
	return err
}
