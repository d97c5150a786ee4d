// Package app assembles the explainer, its caches and the result store from configuration.
// The HTTP server, the MCP server and the CLI share this wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/medreport-explainer/internal/database"
	"github.com/medreport-explainer/internal/domain"
	"github.com/medreport-explainer/internal/metrics"
	"github.com/medreport-explainer/internal/safety"
	"github.com/medreport-explainer/internal/service"
	"github.com/medreport-explainer/internal/storage"
	"github.com/medreport-explainer/pkg/external"
)

// Storage drivers
const (
	StorageNone     = "none"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// App holds the wired components. Metrics and Store may be nil.
type App struct {
	Explainer *service.ExplainerService
	Store     storage.Store
	Metrics   *metrics.Metrics
	Logger    *logrus.Logger

	closers []func() error
}

// Option configures New.
type Option func(*options)

type options struct {
	metrics     bool
	store       bool
	modelClient domain.ModelClient
}

// WithMetrics records model, cache and safety activity in Prometheus collectors.
func WithMetrics() Option {
	return func(o *options) { o.metrics = true }
}

// WithStore opens the configured result store.
func WithStore() Option {
	return func(o *options) { o.store = true }
}

// WithModelClient replaces the Gemini adapter.
func WithModelClient(client domain.ModelClient) Option {
	return func(o *options) { o.modelClient = client }
}

// New builds the application from cfg. Close must be called to release connections.
func New(ctx context.Context, cfg *domain.Config, logger *logrus.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Logger: logger}
	if o.metrics {
		a.Metrics = metrics.New()
	}

	explainer, err := a.buildExplainer(cfg, o.modelClient)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Explainer = explainer

	if o.store {
		store, err := a.openStore(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Store = store
	}

	return a, nil
}

func (a *App) buildExplainer(cfg *domain.Config, client domain.ModelClient) (*service.ExplainerService, error) {
	var filterOpts []safety.Option
	if a.Metrics != nil {
		filterOpts = append(filterOpts, safety.WithObserver(a.Metrics.SafetyRemoval))
	}
	filter, err := safety.NewFilter(safety.PolicyFromConfig(cfg.Safety), filterOpts...)
	if err != nil {
		return nil, fmt.Errorf("building safety filter: %w", err)
	}

	if client == nil {
		client = external.NewGeminiClient(cfg.Models, a.Logger)
	}

	var (
		cache  domain.DefinitionCache
		remote service.RemoteDefinitionStore
	)
	if cfg.Cache.Enabled {
		if cfg.Cache.RedisURL != "" {
			cacheClient, err := external.NewCacheClient(cfg.Cache)
			if err != nil {
				// The memory tier is enough to serve requests.
				a.Logger.WithError(err).Warn("Redis definition cache unavailable, using memory only")
			} else {
				remote = cacheClient
				a.closers = append(a.closers, cacheClient.Close)
			}
		}
		cache = service.NewDefinitionCache(cfg.Cache.MemorySize, cfg.Cache.TTL, remote, a.Logger)
	}

	previewInvoker := service.NewModelInvoker(client, cfg.Models.Preview, a.Logger)
	fullInvoker := service.NewModelInvoker(client, cfg.Models.Full, a.Logger)

	explainer := service.NewExplainerService(
		service.NewPreviewAnalyzer(previewInvoker, filter, cfg.Analysis, a.Logger),
		service.NewFullAnalyzer(fullInvoker, cache, filter, cfg.Analysis, a.Logger),
		a.Logger,
	)
	if a.Metrics != nil {
		explainer.SetRecorder(a.Metrics)
	}

	a.Logger.WithFields(logrus.Fields{
		"preview_models": strings.Join(cfg.Models.Preview, ","),
		"full_models":    strings.Join(cfg.Models.Full, ","),
		"cache_enabled":  cache != nil,
		"redis_cache":    remote != nil,
	}).Info("Explainer initialized")
	return explainer, nil
}

func (a *App) openStore(ctx context.Context, cfg *domain.Config) (storage.Store, error) {
	switch strings.ToLower(cfg.Storage.Driver) {
	case "", StorageNone:
		return nil, nil
	case StorageSQLite:
		store, err := storage.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening SQLite store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.Logger.WithField("path", store.Path()).Info("SQLite result store opened")
		return store, nil
	case StoragePostgres:
		return a.openPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func (a *App) openPostgres(ctx context.Context, cfg *domain.Config) (storage.Store, error) {
	dbConfig := database.ConfigFromDomain(cfg.Database)

	if cfg.Storage.RunMigrations {
		if err := Migrate(dbConfig, a.Logger); err != nil {
			return nil, err
		}
	}

	db, err := database.NewConnection(ctx, dbConfig, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	a.closers = append(a.closers, func() error {
		db.Close()
		return nil
	})

	store, err := storage.NewPostgresStore(ctx, db.SQLDB())
	if err != nil {
		return nil, fmt.Errorf("opening PostgreSQL store: %w", err)
	}
	// Runs before the pool closer.
	a.closers = append(a.closers, store.Close)
	return store, nil
}

// Migrate applies the embedded schema migrations to the configured PostgreSQL database.
func Migrate(dbConfig database.Config, logger *logrus.Logger) error {
	sqlDB, err := database.OpenSQL(dbConfig)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	runner, err := database.NewMigrationRunner(sqlDB, logger)
	if err != nil {
		return err
	}
	defer runner.Close()

	return runner.Up()
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
