package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NoahCxrest/wakatime-stats-proxy/internal/cache"
	"github.com/NoahCxrest/wakatime-stats-proxy/internal/cache/redisstore"
	"github.com/NoahCxrest/wakatime-stats-proxy/internal/config"
	"github.com/NoahCxrest/wakatime-stats-proxy/internal/logger"
	"github.com/NoahCxrest/wakatime-stats-proxy/internal/server"
	"github.com/NoahCxrest/wakatime-stats-proxy/internal/stats"
	"github.com/NoahCxrest/wakatime-stats-proxy/internal/transport"
	"github.com/NoahCxrest/wakatime-stats-proxy/internal/upstream"
)

type snapshotStore interface {
	cache.Store
	Close() error
}

// App wires configuration, dependencies, and the HTTP server together.
type App struct {
	cfg     config.Config
	logger  *slog.Logger
	store   snapshotStore
	handler http.Handler
	httpSrv *http.Server
}

// New creates a fully initialised application.
func New(cfg config.Config) (*App, error) {
	return NewWithLogger(cfg, logger.New(cfg.LogLevel))
}

// NewWithLogger is New with a caller-supplied logger.
func NewWithLogger(cfg config.Config, log *slog.Logger) (*App, error) {
	endpoints, err := upstream.ParseEndpoints(cfg.CodingActivityURL, cfg.LanguagesURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstreams: %w", err)
	}

	store, err := newStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("setup cache: %w", err)
	}

	cacheDuration, err := cfg.CacheDuration()
	if err != nil {
		// Reported to clients as an error envelope on every request.
		log.Error("invalid cache duration", slog.String("error", err.Error()))
		cacheDuration = 0
	}

	httpClient := transport.NewHTTPClient(cfg)
	svc := stats.New(
		upstream.NewClient(httpClient, endpoints, log),
		store,
		stats.Options{
			CacheDuration:  cacheDuration,
			StaleRetry:     cfg.StaleRetryDuration(),
			RefreshTimeout: cfg.RequestTimeout,
		},
		log,
	)

	gin.SetMode(gin.ReleaseMode)
	handler := server.NewHandler(cfg.AllowOrigins, log, svc)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + cfg.TransportTimeout,
		IdleTimeout:       cfg.IdleConnTimeout,
	}

	log.Info("application configured",
		slog.Duration("cache_duration", cacheDuration),
		slog.Bool("languages", endpoints.Languages != nil),
		slog.Bool("redis", cfg.RedisURL != ""))

	return &App{
		cfg:     cfg,
		logger:  log,
		store:   store,
		handler: handler,
		httpSrv: httpSrv,
	}, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run blocks until the server shuts down or the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	defer func() {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("cache close failed", slog.String("error", err.Error()))
		}
	}()

	go func() {
		a.logger.Info("stats proxy starting", slog.String("addr", a.cfg.ListenAddr))
		err := a.httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		} else {
			errCh <- nil
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("stats proxy shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newStore(cfg config.Config) (snapshotStore, error) {
	if cfg.RedisURL == "" {
		return cache.NewMemory(), nil
	}

	store, err := redisstore.New(cfg.RedisURL, cfg.RedisKey)
	if err != nil {
		return nil, fmt.Errorf("setup redis: %w", err)
	}
	return store, nil
}
