// Package app builds the service's long-lived dependencies from config and
// owns their startup and shutdown order.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/fleetwatch/internal/api"
	"github.com/JakeFAU/fleetwatch/internal/clock/system"
	"github.com/JakeFAU/fleetwatch/internal/config"
	"github.com/JakeFAU/fleetwatch/internal/events"
	"github.com/JakeFAU/fleetwatch/internal/events/sinks"
	"github.com/JakeFAU/fleetwatch/internal/export"
	"github.com/JakeFAU/fleetwatch/internal/generator"
	"github.com/JakeFAU/fleetwatch/internal/id/uuid"
	"github.com/JakeFAU/fleetwatch/internal/logging"
	"github.com/JakeFAU/fleetwatch/internal/metrics"
	"github.com/JakeFAU/fleetwatch/internal/notify"
	"github.com/JakeFAU/fleetwatch/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/fleetwatch/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/fleetwatch/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/fleetwatch/internal/storage/gcs"
	localstorage "github.com/JakeFAU/fleetwatch/internal/storage/local"
	memorystorage "github.com/JakeFAU/fleetwatch/internal/storage/memory"
	pgstore "github.com/JakeFAU/fleetwatch/internal/storage/postgres"
	"github.com/JakeFAU/fleetwatch/internal/telemetry"
)

const serviceName = "fleetwatch"

// publisher is the alert transport plus its lifecycle.
type publisher interface {
	sinks.Publisher
	Close() error
}

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	registry  *prometheus.Registry
	store     *notify.Store
	hub       *events.Hub
	generator *generator.Generator
	apiServer *api.Server
	publisher publisher
	blobs     export.BlobStore
	gcsStore  *gcsstorage.BlobStore
	archive   *pgstore.ArchiveStore

	tracerShutdown func(context.Context) error
	closed         bool
}

// NewApp creates an empty App with the given configuration.
func NewApp(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	type sanitizedConfig struct {
		ServerPort     int    `json:"server_port"`
		AuthEnabled    bool   `json:"auth_enabled"`
		AlertPublisher string `json:"alert_publisher,omitempty"`
		ExportBackend  string `json:"export_backend,omitempty"`
		ArchiveEnabled bool   `json:"archive_enabled"`
	}
	safeCfg := sanitizedConfig{
		ServerPort:     cfg.Server.Port,
		AuthEnabled:    cfg.Auth.Enabled,
		AlertPublisher: cfg.Alerts.Publisher,
		ExportBackend:  cfg.Export.Backend,
		ArchiveEnabled: cfg.Archive.Enabled(),
	}
	logger.Info("creating application", zap.Any("config", safeCfg))
	return &App{cfg: cfg, logger: logger}, nil
}

// Build creates the application's dependencies. On error everything built so
// far is released.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}
	if err := app.build(ctx); err != nil {
		_ = app.Close(context.Background())
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	tp, err := telemetry.InitTracerProvider(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	a.tracerShutdown = tp.Shutdown

	if a.cfg.Metrics.Enabled {
		a.registry = metrics.NewRegistry()
	}
	if err := a.setupArchive(ctx); err != nil {
		return err
	}
	if err := a.setupPublisher(ctx); err != nil {
		return err
	}
	sinkList, err := a.setupSinks()
	if err != nil {
		return err
	}
	a.hub = events.NewHub(events.Config{
		BufferSize:     a.cfg.Events.BufferSize,
		MaxBatchEvents: a.cfg.Events.BatchSize,
		MaxBatchWait:   a.cfg.Events.BatchWait,
		SinkTimeout:    a.cfg.Events.SinkTimeout,
		Logger:         a.logger.Named("events"),
	}, sinkList...)
	a.logger.Info("event hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", a.cfg.Events.BufferSize),
		zap.Int("batch_size", a.cfg.Events.BatchSize),
		zap.Duration("batch_wait", a.cfg.Events.BatchWait),
	)

	clk := system.New()
	ids := uuid.New()
	a.store = notify.NewStore(notify.Options{
		Clock:      clk,
		IDs:        ids,
		MaxEntries: a.cfg.Store.MaxEntries,
		Emitter:    a.hub,
		Logger:     a.logger.Named("store"),
	})

	if a.cfg.Generator.Enabled {
		a.generator = generator.New(a.store, clk, generator.NewRandom(a.cfg.Generator.RandomSeed), generator.Config{
			Interval:    a.cfg.Generator.Interval,
			Probability: a.cfg.Generator.Probability,
			Seed:        a.cfg.Generator.Seed,
		}, a.logger.Named("generator"))
	}

	exporter, err := a.setupExport(ctx, clk, ids)
	if err != nil {
		return err
	}

	opts := api.Options{
		Store:            a.store,
		Logger:           a.logger.Named("api"),
		RequestTimeout:   a.cfg.Server.RequestTimeout,
		StreamPing:       a.cfg.Server.StreamPing,
		SubscriberBuffer: a.cfg.Store.SubscriberBuffer,
	}
	if exporter != nil {
		opts.Exporter = exporter
	}
	if a.archive != nil {
		opts.Archive = a.archive
	}
	if a.cfg.Auth.Enabled {
		opts.APIKey = a.cfg.Auth.APIKey
	}
	if a.cfg.Server.RateLimit > 0 {
		opts.RateLimiter = ratelimit.New(ratelimit.Config{
			RPS:   a.cfg.Server.RateLimit,
			Burst: a.cfg.Server.RateBurst,
		})
		a.logger.Info("API rate limiting enabled",
			zap.Float64("rps", a.cfg.Server.RateLimit),
			zap.Int("burst", a.cfg.Server.RateBurst),
		)
	}
	if a.registry != nil {
		opts.Metrics = metrics.NewHTTP(a.registry)
		opts.Gatherer = a.registry
	}
	a.apiServer = api.NewServer(opts)
	return nil
}

func (a *App) setupArchive(ctx context.Context) error {
	if !a.cfg.Archive.Enabled() {
		a.logger.Warn("no archive DSN specified, audit trail disabled")
		return nil
	}
	store, err := pgstore.NewArchiveStore(ctx, pgstore.ArchiveStoreConfig{
		DSN:             a.cfg.Archive.DSN,
		Table:           a.cfg.Archive.Table,
		MaxConns:        a.cfg.Archive.MaxConns,
		MinConns:        a.cfg.Archive.MinConns,
		MaxConnLifetime: a.cfg.Archive.MaxConnLifetime,
		EnsureSchema:    a.cfg.Archive.EnsureSchema,
	})
	if err != nil {
		return fmt.Errorf("archive store init failed: %w", err)
	}
	a.archive = store
	a.logger.Info("archive store initialized", zap.String("table", a.cfg.Archive.Table))
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if !a.cfg.Alerts.Enabled {
		a.logger.Info("alerts disabled")
		return nil
	}
	switch a.cfg.Alerts.Publisher {
	case "pubsub":
		client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.publisher = gcppublisher.New(client, map[string]string{"source": serviceName})
		a.logger.Info("Pub/Sub alert publisher initialized",
			zap.String("project", a.cfg.PubSub.ProjectID),
			zap.String("topic", a.cfg.Alerts.Topic),
		)
	default:
		a.logger.Info("using in-memory alert publisher")
		a.publisher = memorypublisher.New()
	}
	return nil
}

func (a *App) setupSinks() ([]events.Sink, error) {
	var sinkList []events.Sink
	if a.cfg.Events.LogEvents {
		sinkList = append(sinkList, sinks.NewLogSink(a.logger.Named("event_log")))
	}
	if a.registry != nil {
		promSink, err := sinks.NewPrometheusSink(a.registry)
		if err != nil {
			return nil, fmt.Errorf("prometheus sink init failed: %w", err)
		}
		sinkList = append(sinkList, promSink)
	}
	if a.publisher != nil {
		var limiter *rate.Limiter
		if a.cfg.Alerts.RateLimit > 0 {
			limiter = rate.NewLimiter(rate.Limit(a.cfg.Alerts.RateLimit), max(a.cfg.Alerts.Burst, 1))
		}
		alertSink, err := sinks.NewAlertSink(a.publisher, a.cfg.Alerts.Topic, limiter, a.logger.Named("alerts"))
		if err != nil {
			return nil, fmt.Errorf("alert sink init failed: %w", err)
		}
		sinkList = append(sinkList, alertSink)
	}
	if a.archive != nil {
		archiveSink, err := sinks.NewArchiveSink(a.archive)
		if err != nil {
			return nil, fmt.Errorf("archive sink init failed: %w", err)
		}
		sinkList = append(sinkList, archiveSink)
	}
	return sinkList, nil
}

func (a *App) setupExport(ctx context.Context, clk notify.Clock, ids notify.IDGenerator) (*export.Exporter, error) {
	switch a.cfg.Export.Backend {
	case "":
		a.logger.Info("exports disabled")
		return nil, nil
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsStore, err = gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Export.GCSBucket})
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.blobs = a.gcsStore
		a.logger.Info("using GCS export backend", zap.String("bucket", a.cfg.Export.GCSBucket))
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Export.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.blobs = store
		a.logger.Info("using local export backend", zap.String("path", a.cfg.Export.LocalDir))
	default:
		a.logger.Info("using in-memory export backend")
		a.blobs = memorystorage.NewBlobStore()
	}
	exporter, err := export.New(a.store, a.blobs, clk, ids, a.cfg.Export.Prefix)
	if err != nil {
		return nil, fmt.Errorf("exporter init failed: %w", err)
	}
	return exporter, nil
}

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Store exposes the notification store.
func (a *App) Store() *notify.Store {
	return a.store
}

// Run starts the generator and HTTP server and blocks until ctx is canceled
// or a termination signal arrives, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(a.cfg.Server.Port)))
	if err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
		defer cancel()
		return errors.Join(fmt.Errorf("listen: %w", err), a.Close(closeCtx))
	}
	return a.serve(ctx, stop, ln)
}

func (a *App) serve(ctx context.Context, stop context.CancelFunc, ln net.Listener) error {
	a.logger.Info("application started")

	genCtx, stopGenerator := context.WithCancel(ctx)
	genDone := make(chan struct{})
	go func() {
		defer close(genDone)
		if a.generator == nil {
			return
		}
		a.logger.Info("generator started")
		a.generator.Run(genCtx)
	}()

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()

	stopGenerator()
	<-genDone
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	closeErr := a.Close(shutdownCtx)
	select {
	case err := <-serveErr:
		return errors.Join(err, closeErr)
	default:
		return closeErr
	}
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}

// Close releases every dependency. Streams are closed first, then the hub
// drains pending events into the sinks before their backends go away.
func (a *App) Close(ctx context.Context) error {
	if a.closed {
		return nil
	}
	a.closed = true
	err := a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return err
}

func (a *App) closeInfrastructure(ctx context.Context) error {
	var errs []error
	if a.store != nil {
		a.store.Close()
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("event hub close failed", zap.Error(err))
			errs = append(errs, err)
		}
		stats := a.hub.Stats()
		a.logger.Info("event hub drained",
			zap.Int64("delivered", stats.Delivered),
			zap.Int64("dropped", stats.Dropped),
			zap.Int64("sink_errors", stats.SinkErrors),
		)
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("alert publisher close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if a.gcsStore != nil {
		if err := a.gcsStore.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if a.archive != nil {
		a.archive.Close()
	}
	return errors.Join(errs...)
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	// Sync fails on non-file sinks such as stderr; nothing useful to do about it.
	_ = a.logger.Sync()
}
