// Package app builds the long-lived services from configuration, acting as
// the dependency injection container for the commands.
package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/flare-crawler/internal/api"
	"github.com/JakeFAU/flare-crawler/internal/archive"
	"github.com/JakeFAU/flare-crawler/internal/clock/system"
	"github.com/JakeFAU/flare-crawler/internal/config"
	"github.com/JakeFAU/flare-crawler/internal/controller"
	"github.com/JakeFAU/flare-crawler/internal/crawler"
	"github.com/JakeFAU/flare-crawler/internal/id/uuid"
	"github.com/JakeFAU/flare-crawler/internal/ingest"
	"github.com/JakeFAU/flare-crawler/internal/navigator"
	"github.com/JakeFAU/flare-crawler/internal/navigator/headless"
	"github.com/JakeFAU/flare-crawler/internal/navigator/rodnav"
	"github.com/JakeFAU/flare-crawler/internal/parser"
	pubmemory "github.com/JakeFAU/flare-crawler/internal/publisher/memory"
	pubsubpub "github.com/JakeFAU/flare-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/flare-crawler/internal/storage/gcs"
	"github.com/JakeFAU/flare-crawler/internal/storage/local"
	"github.com/JakeFAU/flare-crawler/internal/storage/memory"
	"github.com/JakeFAU/flare-crawler/internal/storage/postgres"
)

// App holds all the shared, long-lived services for the process.
type App struct {
	Config     config.Config
	Logger     *zap.Logger
	Store      crawler.Store
	Pipeline   *ingest.Pipeline
	Controller *controller.Controller
	Server     *api.Server

	closers []func()
}

// New initializes every service named by cfg. It fails fast when a
// critical dependency cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}
	if err := a.init(ctx); err != nil {
		a.release()
		return nil, err
	}
	logger.Info("application services initialized",
		zap.String("db_provider", cfg.DB.Provider),
		zap.String("browser_driver", cfg.Browser.Driver),
		zap.String("archive_provider", cfg.Archive.Provider),
		zap.String("notify_provider", cfg.Notify.Provider),
	)
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	a.Store = store

	navigators, err := NewNavigatorFactory(cfg, a.Logger)
	if err != nil {
		return err
	}
	archiver, err := a.openArchiver(ctx)
	if err != nil {
		return err
	}
	notifier, err := a.openNotifier(ctx)
	if err != nil {
		return err
	}

	reconciler, err := ingest.NewReconciler(store, ingest.ReconcilerConfig{
		PlaceholderCoordinates: cfg.Ingest.PlaceholderCoordinates,
		CacheSize:              cfg.Ingest.CacheSize,
	}, a.Logger.Named("reconciler"))
	if err != nil {
		return fmt.Errorf("init reconciler: %w", err)
	}
	ingestor, err := ingest.NewIngestor(store)
	if err != nil {
		return fmt.Errorf("init ingestor: %w", err)
	}
	a.Pipeline, err = ingest.NewPipeline(parser.Normalize, reconciler, ingestor)
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}

	deps := controller.Dependencies{
		Navigators: navigators,
		Extractor:  parser.NewExtractor(cfg.Target.RowSelector),
		Rows:       a.Pipeline,
		Notifier:   notifier,
		Clock:      system.New(),
		IDs:        uuid.New(),
		Logger:     a.Logger,
	}
	if archiver != nil {
		deps.Archiver = archiver
	}
	a.Controller, err = controller.New(controller.Config{
		PageInterval:  cfg.Crawler.PageInterval,
		MaxPages:      cfg.Crawler.MaxPages,
		NotifyTimeout: cfg.Crawler.NotifyTimeout,
	}, deps)
	if err != nil {
		return fmt.Errorf("init controller: %w", err)
	}

	a.Server = api.NewServer(a.Controller, store, a.Pipeline, store, api.Options{
		CORSOrigin: cfg.Server.CORSOrigin,
	}, a.Logger.Named("api"))
	return nil
}

func (a *App) openStore(ctx context.Context) (crawler.Store, error) {
	cfg := a.Config.DB
	switch cfg.Provider {
	case "memory":
		a.Logger.Warn("using in-memory store; flares are lost on exit")
		return memory.New(), nil
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.DSN,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		if err := store.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		if cfg.AutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("ensure schema: %w", err)
			}
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown db provider: %s", cfg.Provider)
	}
}

// NewNavigatorFactory returns the browser driver selected by cfg.
func NewNavigatorFactory(cfg config.Config, logger *zap.Logger) (crawler.NavigatorFactory, error) {
	navCfg := navigator.Config{
		URL:             cfg.Target.URL,
		SearchSelector:  cfg.Target.SearchSelector,
		ResultsSelector: cfg.Target.ResultsSelector,
		NextSelector:    cfg.Target.NextSelector,
		Timeout:         cfg.Browser.Timeout,
		SettleDelay:     cfg.Browser.SettleDelay,
		PollInterval:    cfg.Browser.PollInterval,
		UserAgent:       cfg.Browser.UserAgent,
		Headless:        cfg.Browser.Headless,
		RemoteURL:       cfg.Browser.RemoteURL,
	}
	switch cfg.Browser.Driver {
	case "chromedp":
		return headless.NewFactory(navCfg, logger)
	case "rod":
		return rodnav.NewFactory(navCfg, logger)
	default:
		return nil, fmt.Errorf("unknown browser driver: %s", cfg.Browser.Driver)
	}
}

func (a *App) openArchiver(ctx context.Context) (*archive.Archiver, error) {
	cfg := a.Config.Archive
	var pages archive.PageWriter
	switch cfg.Provider {
	case "none", "":
		return nil, nil
	case "local":
		store, err := local.New(local.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		pages = store
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		pages = store
	default:
		return nil, fmt.Errorf("unknown archive provider: %s", cfg.Provider)
	}
	archiver, err := archive.New(pages, cfg.Prefix)
	if err != nil {
		return nil, fmt.Errorf("init archiver: %w", err)
	}
	return archiver, nil
}

func (a *App) openNotifier(ctx context.Context) (crawler.RunNotifier, error) {
	cfg := a.Config.Notify
	switch cfg.Provider {
	case "none", "":
		return nil, nil
	case "memory":
		return pubmemory.New(), nil
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		publisher := pubsubpub.New(client.Topic(cfg.TopicName))
		a.closers = append(a.closers, func() {
			publisher.Stop()
			_ = client.Close()
		})
		return publisher, nil
	default:
		return nil, fmt.Errorf("unknown notify provider: %s", cfg.Provider)
	}
}

// Close stops any active run, waits for it within ctx, and releases every
// client opened by New.
func (a *App) Close(ctx context.Context) error {
	var err error
	if a.Controller != nil {
		if cerr := a.Controller.Close(ctx); cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = fmt.Errorf("close controller: %w", cerr)
		}
	}
	a.release()
	return err
}

func (a *App) release() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
