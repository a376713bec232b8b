// margind runs the margin engine as a service: it opens the state store,
// serves the WebSocket API, publishes events on NATS, and exposes Prometheus
// metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luxfi/database"
	"github.com/luxfi/database/manager"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/helios-fi/margin/internal/bus"
	"github.com/helios-fi/margin/internal/config"
	"github.com/helios-fi/margin/pkg/api"
	"github.com/helios-fi/margin/pkg/margin"
)

func main() {
	configPath := flag.String("config", "", "Path to margind.toml (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	level, _ := log.ToLevel(cfg.LogLevel)
	logger := log.NewTestLogger(level)

	if err := run(cfg, logger); err != nil {
		logger.Error("margind exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(cfg, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	opts := []margin.Option{margin.WithMetrics(registry)}

	var publisher *bus.Publisher
	if cfg.Nats.Enabled {
		publisher, err = bus.Connect(bus.Options{
			URL:           cfg.Nats.URL,
			SubjectPrefix: cfg.Nats.SubjectPrefix,
			MaxReconnects: cfg.Nats.MaxReconnects,
			ReconnectWait: cfg.Nats.ReconnectWait.Duration,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer publisher.Close()
		logger.Info("event bus connected", "url", cfg.Nats.URL, "prefix", cfg.Nats.SubjectPrefix)
	}

	// Events fan out to the WebSocket subscribers and, when enabled, NATS.
	// The server is built after the engine, so the sink closes over a pointer
	// filled in below.
	var server *api.Server
	sink := margin.EventSinkFunc(func(ev margin.Event) {
		server.Publish(ev)
		if publisher != nil {
			publisher.Publish(ev)
		}
	})
	opts = append(opts, margin.WithEventSink(sink))

	engine := margin.NewEngine(db, logger, opts...)
	server = api.NewServer(api.ServerConfig{
		Engine:            engine,
		Logger:            logger,
		TelemetryInterval: cfg.Telemetry.VaultInterval.Duration,
	})
	for label, addr := range cfg.Telemetry.Vaults {
		server.TrackVault(label, margin.AddressFromString(addr))
	}
	server.Start()
	defer server.Shutdown()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Server.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", server.HandleConnection)
		g.Go(func() error {
			return serveHTTP(ctx, cfg.Server.ListenAddr, mux, logger, "websocket api")
		})
	}

	if cfg.Telemetry.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		g.Go(func() error {
			return serveHTTP(ctx, cfg.Telemetry.MetricsAddr, mux, logger, "metrics")
		})
	}

	logger.Info("margind started")
	return g.Wait()
}

func openDatabase(cfg *config.Config, logger log.Logger) (database.Database, error) {
	if cfg.Database.Dir == "" {
		logger.Info("using in-memory database")
		return margin.NewMemDB(), nil
	}

	if err := os.MkdirAll(cfg.Database.Dir, 0o755); err != nil {
		return nil, err
	}
	dbManager := manager.NewManager(cfg.Database.Dir, nil)
	dbConfig := manager.DefaultBadgerDBConfig("badgerdb")
	dbConfig.Namespace = "margind"
	db, err := dbManager.New(dbConfig)
	if err != nil {
		return nil, err
	}
	logger.Info("database opened", "dir", cfg.Database.Dir)
	return db, nil
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger log.Logger, name string) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(name+" listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
