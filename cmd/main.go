package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/starboard/internal/adapters/http/api"
	"github.com/okian/starboard/internal/adapters/http/swagger"
	"github.com/okian/starboard/internal/adapters/mq/queue"
	"github.com/okian/starboard/internal/adapters/mq/worker"
	"github.com/okian/starboard/internal/adapters/repository"
	service "github.com/okian/starboard/internal/app"
	"github.com/okian/starboard/internal/config"
	"github.com/okian/starboard/internal/roster"
	"github.com/okian/starboard/pkg/logger"
	"github.com/okian/starboard/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Our registry carries its own system gauges.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "starboard stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

// run wires the store, change feed, engine and HTTP server and blocks until
// ctx is cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	metrics.Init(
		metrics.WithMetricsEnabled(cfg.MetricsEnabled),
		metrics.WithRefreshInterval(cfg.MetricsRefreshInterval()),
		metrics.WithCustomLabels(cfg.MetricsLabels),
	)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "store close failed", logger.Error(err))
		}
	}()

	if cfg.RosterFile != "" {
		if err := seedRoster(ctx, store, cfg.RosterFile); err != nil {
			return err
		}
		log.Info(ctx, "roster seeded", logger.String("file", cfg.RosterFile))
	}

	feed := queue.NewInMemoryQueue(queue.WithCapacity(cfg.FeedQueueSize))
	pool := worker.NewPool(feed,
		[]worker.Sink{worker.MetricsSink{}, worker.LogSink{Logger: log.Named("feed")}},
		worker.WithWorkerCount(cfg.FeedWorkerCount),
		worker.WithLogger(log),
	)
	pool.Start(ctx)

	engine := newEngine(cfg, store, feed, log)
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	if metrics.Enabled() {
		go startSystemMetricsUpdater(ctx, metrics.RefreshInterval())
		go startServiceMetricsUpdater(ctx, engine, metrics.RefreshInterval())
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, cfg, engine, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			engine.Stop()
			_ = pool.Shutdown(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	engine.Stop()
	if err := pool.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "feed shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped",
		logger.Any("feed_processed", pool.Processed()),
		logger.Any("feed_failed", pool.Failed()),
	)
	return nil
}

// openStore opens the configured persistence backend.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		s, err := repository.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	default:
		return repository.NewMemoryStore(ctx, repository.WithShardCount(cfg.ShardCount)), nil
	}
}

func seedRoster(ctx context.Context, store repository.RosterStore, path string) error {
	r, err := roster.Load(path)
	if err != nil {
		return err
	}
	if err := roster.Seed(ctx, store, r, time.Now().UTC()); err != nil {
		return fmt.Errorf("seed roster: %w", err)
	}
	return nil
}

func newEngine(cfg *config.Config, store repository.Store, feed service.Publisher, log logger.Logger) *service.Engine {
	return service.New(store,
		service.WithLogger(log),
		service.WithPublisher(feed),
		service.WithConflictRetries(cfg.ConflictRetries),
		service.WithShareDefaults(cfg.AllianceShare, cfg.MissionShare),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithSweepInterval(cfg.SweepInterval()),
	)
}

// newMux registers the docs and the engine API.
func newMux(ctx context.Context, cfg *config.Config, engine *service.Engine, log logger.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(engine, engine,
		api.WithMaxLogLimit(cfg.MaxLogLimit),
		api.WithMaxStandingsLimit(cfg.MaxStandingsLimit),
		api.WithLogger(log.Named("http")),
	).Register(ctx, mux)
	return mux
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater mirrors engine counters into gauges.
func startServiceMetricsUpdater(ctx context.Context, engine *service.Engine, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(engine)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics updates service-level metrics.
func updateServiceMetrics(engine *service.Engine) {
	stats := engine.GetStats()
	if n, ok := stats["feedLength"].(int); ok {
		metrics.UpdateQueueSize(n)
	}
}
