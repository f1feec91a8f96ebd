// Package server builds the application's dependency graph and runs the
// HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/crossword-scraper/internal/api"
	"github.com/JakeFAU/crossword-scraper/internal/clock/system"
	"github.com/JakeFAU/crossword-scraper/internal/config"
	collyfetcher "github.com/JakeFAU/crossword-scraper/internal/fetcher/colly"
	commandfetcher "github.com/JakeFAU/crossword-scraper/internal/fetcher/command"
	headlessfetcher "github.com/JakeFAU/crossword-scraper/internal/fetcher/headless"
	"github.com/JakeFAU/crossword-scraper/internal/grid"
	"github.com/JakeFAU/crossword-scraper/internal/hash/sha256"
	"github.com/JakeFAU/crossword-scraper/internal/id/uuid"
	"github.com/JakeFAU/crossword-scraper/internal/locator"
	"github.com/JakeFAU/crossword-scraper/internal/logging"
	"github.com/JakeFAU/crossword-scraper/internal/metrics"
	"github.com/JakeFAU/crossword-scraper/internal/pipeline"
	"github.com/JakeFAU/crossword-scraper/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/crossword-scraper/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/crossword-scraper/internal/publisher/pubsub"
	"github.com/JakeFAU/crossword-scraper/internal/puzzle"
	gcsstorage "github.com/JakeFAU/crossword-scraper/internal/storage/gcs"
	localstorage "github.com/JakeFAU/crossword-scraper/internal/storage/local"
	memorystorage "github.com/JakeFAU/crossword-scraper/internal/storage/memory"
	pgstore "github.com/JakeFAU/crossword-scraper/internal/storage/postgres"
	"github.com/JakeFAU/crossword-scraper/internal/telemetry"
	"github.com/JakeFAU/crossword-scraper/internal/transport"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg            *config.Config
	logger         *zap.Logger
	pipeline       *pipeline.Service
	apiServer      *api.Server
	headless       *headlessfetcher.Fetcher
	pubsubClient   *pubsub.Client
	pubsubTopic    *pubsub.Topic
	storage        *storage.Client
	retrievalStore puzzle.RetrievalStore
	tracerShutdown func(context.Context) error
}

// Puzzles returns the puzzle service, for one-shot commands.
func (a *App) Puzzles() api.PuzzleService {
	return a.pipeline
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Run serves HTTP until ctx is canceled or a termination signal arrives.
// The caller still owns Close.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases every client the App opened.
func (a *App) Close(ctx context.Context) {
	a.closeInfrastructure()
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure() {
	if a.headless != nil {
		a.headless.Close()
	}
	if a.pubsubTopic != nil {
		a.pubsubTopic.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.retrievalStore != nil {
		if err := a.retrievalStore.Close(); err != nil {
			a.logger.Warn("retrieval store close failed", zap.Error(err))
		}
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("headless", cfg.Headless.Enabled),
		zap.Bool("command", cfg.Transport.CommandEnabled),
	)

	if cfg.Tracing.Enabled {
		if err := setupTracing(ctx, app); err != nil {
			return nil, err
		}
	}

	decoder, err := setupTransport(app)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}

	ids := uuid.New()
	artifacts, err := setupArtifacts(ctx, app)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	reconstructor, err := grid.New(grid.Config{
		Downloader: decoder,
		Artifacts:  artifacts,
		Hasher:     sha256.New(),
		IDs:        ids,
		Logger:     logger.Named("grid"),
	})
	if err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("grid init failed: %w", err)
	}

	if err = setupDatabase(ctx, app); err != nil {
		app.Close(ctx)
		return nil, err
	}

	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}

	app.pipeline, err = pipeline.New(pipeline.Config{
		Documents: decoder,
		Locator: locator.New(locator.Config{
			FeedURL: cfg.Source.FeedURL,
			BaseURL: cfg.Source.BaseURL,
		}, decoder, logger.Named("locator")),
		Grid:       reconstructor,
		Retrievals: app.retrievalStore,
		Publisher:  publisher,
		Topic:      cfg.PubSub.TopicName,
		Clock:      system.New(),
		IDs:        ids,
		Logger:     logger.Named("pipeline"),
	})
	if err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}

	app.apiServer = api.NewServer(app.pipeline, *cfg, logger.Named("api"))
	return app, nil
}

// setupTracing batches spans to Cloud Trace when a project is known and to
// stderr otherwise.
func setupTracing(ctx context.Context, app *App) error {
	cfg := app.cfg
	kind := cfg.TraceExporter()
	exp, err := telemetry.NewExporter(telemetry.ExporterConfig{
		Kind:      kind,
		ProjectID: cfg.TraceProjectID(),
	})
	if err != nil {
		return fmt.Errorf("trace exporter init failed: %w", err)
	}
	tp, err := telemetry.InitTracerProvider(ctx, cfg.Tracing.ServiceName,
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exp),
	)
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown
	app.logger.Info("tracing initialized", zap.String("exporter", kind))
	return nil
}

// setupTransport builds the primary colly fetcher and its escalations. The
// command fetcher returns the verbatim body, so it also serves image
// downloads.
func setupTransport(app *App) (*transport.Decoder, error) {
	cfg := app.cfg
	primary := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})
	app.logger.Info("using colly fetcher", zap.Duration("timeout", cfg.FetchTimeout()))

	var escalations []transport.Escalation
	if cfg.Transport.CommandEnabled {
		escalations = append(escalations, transport.Escalation{
			Name: "command",
			Fetcher: commandfetcher.New(commandfetcher.Config{
				Path:    cfg.Transport.CommandPath,
				Timeout: cfg.CommandTimeout(),
			}, nil),
			Raw: true,
		})
		app.logger.Info("command escalation enabled", zap.String("path", cfg.Transport.CommandPath))
	}
	if cfg.Headless.Enabled {
		headless, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.HTTP.UserAgent,
			NavigationTimeout: cfg.NavTimeout(),
		})
		if err != nil {
			app.logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			app.headless = headless
			escalations = append(escalations, transport.Escalation{Name: "headless", Fetcher: headless})
			app.logger.Info("headless escalation enabled", zap.Int("max_parallel", cfg.Headless.MaxParallel))
		}
	}

	decoder, err := transport.New(transport.Config{
		Primary:       primary,
		Escalations:   escalations,
		BrotliEnabled: cfg.Transport.BrotliEnabled,
		Limiter: ratelimit.New(ratelimit.Config{
			RPS:   cfg.Transport.RequestsPerSecond,
			Burst: cfg.Transport.Burst,
		}),
		Logger: app.logger.Named("transport"),
	})
	if err != nil {
		return nil, fmt.Errorf("transport init failed: %w", err)
	}
	return decoder, nil
}

// setupArtifacts returns nil unless grid debug output is enabled.
func setupArtifacts(ctx context.Context, app *App) (puzzle.BlobStore, error) {
	if !app.cfg.Grid.DebugEnabled {
		return nil, nil
	}
	storageCfg := app.cfg.Storage
	switch storageCfg.Backend {
	case config.StorageGCS:
		var err error
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobStore, err := gcsstorage.New(app.storage, gcsstorage.Config{
			Bucket: storageCfg.Bucket,
			Prefix: storageCfg.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Info("grid artifacts on GCS", zap.String("bucket", storageCfg.Bucket))
		return blobStore, nil
	case config.StorageLocal:
		blobStore, err := localstorage.New(localstorage.Config{
			BaseDir: storageCfg.Local.BaseDir,
			Prefix:  storageCfg.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("grid artifacts on local disk", zap.String("path", storageCfg.Local.BaseDir))
		return blobStore, nil
	default:
		app.logger.Info("grid artifacts in memory", zap.Int("max_objects", memorystorage.DefaultMaxObjects))
		return memorystorage.NewBoundedBlobStore(storageCfg.Prefix, memorystorage.DefaultMaxObjects), nil
	}
}

func setupDatabase(ctx context.Context, app *App) error {
	dbCfg := app.cfg.Database
	if dbCfg.DSN == "" {
		app.logger.Warn("no DSN specified for database, skipping retrieval log")
		return nil
	}
	store, err := pgstore.NewRetrievalStore(ctx, pgstore.RetrievalStoreConfig{
		DSN:             dbCfg.DSN,
		Table:           dbCfg.Table,
		MaxConns:        dbCfg.MaxConns,
		MinConns:        dbCfg.MinConns,
		MaxConnLifetime: time.Duration(dbCfg.MaxConnLifetimeMinutes) * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("retrieval store init failed: %w", err)
	}
	app.retrievalStore = store
	if dbCfg.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("retrieval schema: %w", err)
		}
	}
	app.logger.Info("retrieval store initialized", zap.String("table", dbCfg.Table))
	return nil
}

func setupPublisher(ctx context.Context, app *App) (puzzle.Publisher, error) {
	psCfg := app.cfg.PubSub
	if psCfg.ProjectID == "" {
		app.logger.Warn("no Pub/Sub project configured, using in-memory publisher",
			zap.Int("limit", memorypublisher.DefaultLimit))
		return memorypublisher.NewWithLimit(memorypublisher.DefaultLimit), nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, psCfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubTopic = app.pubsubClient.Topic(psCfg.TopicName)
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", psCfg.ProjectID),
		zap.String("topic", psCfg.TopicName),
	)
	return gcppublisher.New(app.pubsubTopic), nil
}
