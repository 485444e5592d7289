// Package internal provides the main application initialization and runtime logic.
package internal

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
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/pinpress/internal/api"
	"github.com/starford/pinpress/internal/ipfs"
	"github.com/starford/pinpress/internal/mcpserver"
	"github.com/starford/pinpress/internal/publish"
	"github.com/starford/pinpress/internal/records"
	"github.com/starford/pinpress/internal/render"
	"github.com/starford/pinpress/internal/settings"
	"github.com/starford/pinpress/internal/sse"
	"github.com/starford/pinpress/internal/storage"
)

// App is the assembled publish pipeline.
type App struct {
	Service *publish.Service
	Logger  *slog.Logger

	config     *Config
	kv         storage.KV
	settingsKV *settings.KV
}

// Close releases the storage backend.
func (a *App) Close() error {
	if c, ok := a.kv.(storage.Closer); ok {
		return c.Close()
	}
	return nil
}

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

// Open builds the publish pipeline without starting any server.
func Open(opts ...Option) (*App, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	return app.open(nil)
}

func (a *application) open(notifier publish.Notifier) (*App, error) {
	cfg := a.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	// Initialize storage.
	kv, err := storage.Open(cfg.Storage.Options())
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	out := &App{Logger: logger, config: cfg, kv: kv}

	var provider ipfs.SettingsProvider
	switch cfg.Settings.Source {
	case SettingsSourceFile:
		provider = settings.NewFile(cfg.Settings.Path)
	default:
		out.settingsKV = settings.NewKV(kv)
		provider = out.settingsKV
	}

	loc, err := cfg.Render.Location()
	if err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("init renderer: %w", err)
	}
	renderer := render.New(
		render.WithLocale(render.Locale(cfg.Render.Locale)),
		render.WithLocation(loc),
	)
	client := ipfs.NewClient(provider,
		ipfs.WithDefaults(cfg.IPFS.Defaults()),
		ipfs.WithLogger(logger),
	)
	out.Service = publish.NewService(renderer, client, records.NewStore(kv), notifier, logger)

	logger.Info("Configuration loaded",
		slog.String("storage_driver", cfg.Storage.Driver),
		slog.String("storage_path", cfg.Storage.Path),
		slog.String("settings_source", cfg.Settings.Source),
		slog.String("ipfs_api", cfg.IPFS.APIEndpoint),
		slog.String("log_level", cfg.App.LogLevel.String()))

	return out, nil
}

// RunMCP serves the MCP tools on stdin/stdout until the client disconnects.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	a, err := app.open(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	a.Logger.Info("MCP server starting on stdio")
	return mcpserver.New(a.Service, app.version).ServeStdio()
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	a, err := app.open(broker)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.Logger

	apiRouter := api.NewRouter(a.Service, a.settingsKV, broker,
		cfg.Auth.AuthEnabled(), cfg.Auth.Token, cfg.CORS.AllowedOrigins)

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
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := a.Service.List(req.Context()); err != nil {
			logger.Warn("readiness check failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"storage unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the settings file so open pages learn about endpoint changes.
	if cfg.Settings.Source == SettingsSourceFile {
		g.Go(func() error {
			err := settings.Watch(gCtx, cfg.Settings.Path, logger, func(path string) {
				broker.PublishSettingsChanged(path)
			})
			if err != nil {
				logger.Warn("settings watcher stopped", slog.String("error", err.Error()))
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

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
