/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the farm reporting server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load YAML config
  2. Build the logger
  3. Initialize SQLite store
  4. Build the report cache, attach the invalidator to the store hooks
  5. Start the cache janitor
  6. Configure HTTP router and start the server

COMMAND-LINE FLAGS:
  -config  YAML config path (default: config.yaml; missing file = defaults)
  -port    HTTP server port, overrides server.port
  -db      SQLite database path, overrides database.path
           Use ":memory:" for in-memory database
  -write-config  Write the effective config (defaults + file + flags)
                 to the given path and exit

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (server.shutdown_timeout)
  3. Stop the janitor
  4. Close database connection

EXAMPLES:
  ./server -config=/etc/poultry/config.yaml
  ./server -db=":memory:" -port=3000

SEE ALSO:
  - config/config.go: Configuration sections and defaults
  - api/server.go: Router configuration
  - report/service.go: Cached report entry points
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/warp/poultry-reports/analytics"
	"github.com/warp/poultry-reports/api"
	"github.com/warp/poultry-reports/cache"
	"github.com/warp/poultry-reports/config"
	"github.com/warp/poultry-reports/logging"
	"github.com/warp/poultry-reports/report"
	"github.com/warp/poultry-reports/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "config.yaml", "YAML config path")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	writeConfig := flag.String("write-config", "", "Write the effective config to this path and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *writeConfig != "" {
		if err := cfg.Save(*writeConfig); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		return
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}

	if code := exitCode(logger, run(cfg, logger)); code != 0 {
		os.Exit(code)
	}
}

// exitCode logs a run failure and flushes the logger. run has already
// returned, so its deferred janitor stop and store close have happened.
func exitCode(logger *zap.Logger, err error) int {
	if err != nil {
		logger.Error("server failed", zap.Error(err))
	}
	_ = logger.Sync()
	if err != nil {
		return 1
	}
	return 0
}

func run(cfg *config.Config, logger *zap.Logger) error {
	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	// Report cache
	clock := clockwork.NewRealClock()
	cs := cache.New(cfg.Cache.MaxSize, cfg.Cache.DefaultTTL,
		cache.WithClock(clock), cache.WithLogger(logger))

	registry := prometheus.NewRegistry()
	if cfg.Cache.Metrics {
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if err := cs.RegisterMetrics(registry, "reports"); err != nil {
			return fmt.Errorf("register cache metrics: %w", err)
		}
	}

	reportCache := report.NewCache(cs, logger)
	report.NewInvalidator(reportCache, logger).Attach(store)

	ttls, err := reportTTLs(cfg.Reports)
	if err != nil {
		return err
	}
	opts := []report.ServiceOption{report.WithTTLs(ttls), report.WithLogger(logger)}
	if cfg.Cache.SingleFlight {
		opts = append(opts, report.WithSingleFlight())
	}
	service := report.NewService(analytics.NewEngine(store), reportCache, opts...)

	if cfg.Cache.SweepInterval > 0 {
		janitor := cache.NewJanitor(cs, cfg.Cache.SweepInterval, logger)
		janitor.Start()
		defer janitor.Stop()
	}

	// Router
	handler := api.NewHandler(store, service, cfg.Currencies, logger)
	routerOpts := api.RouterOptions{AllowedOrigins: cfg.Server.AllowedOrigins}
	if cfg.Cache.Metrics {
		routerOpts.Gatherer = registry
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handler, routerOpts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("database", cfg.Database.Path),
			zap.Int("cache_max_size", cfg.Cache.MaxSize),
			zap.Duration("cache_default_ttl", cfg.Cache.DefaultTTL),
			zap.Bool("single_flight", cfg.Cache.SingleFlight))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// reportTTLs converts the per-kind TTL map, rejecting unknown kind names.
func reportTTLs(cfg config.ReportsConfig) (map[report.Kind]time.Duration, error) {
	ttls := make(map[report.Kind]time.Duration, len(cfg.TTL))
	for name, ttl := range cfg.TTL {
		kind, err := report.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("reports.ttl: %w", err)
		}
		ttls[kind] = ttl
	}
	return ttls, nil
}
