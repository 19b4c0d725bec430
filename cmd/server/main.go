// Package main is the entry point for the order feed ingestion service.
// It wires configuration, the storage and bus backends, the feed/query
// coordinators, and the HTTP adapter, then serves until signaled.
package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/arkbound/orderfeed/internal/feed/coordinator"
	"github.com/arkbound/orderfeed/internal/feed/domain"
	"github.com/arkbound/orderfeed/internal/feed/persistence"
	"github.com/arkbound/orderfeed/internal/feed/persistence/postgresstore"
	"github.com/arkbound/orderfeed/internal/feed/persistence/spannerstore"
	"github.com/arkbound/orderfeed/internal/feed/sequence"
	ingresshttp "github.com/arkbound/orderfeed/internal/ingress/http"
	"github.com/arkbound/orderfeed/internal/platform/config"
	"github.com/arkbound/orderfeed/internal/platform/eventbus"
	"github.com/arkbound/orderfeed/internal/platform/eventbus/amqpbus"
	"github.com/arkbound/orderfeed/internal/platform/httpserver"
	"github.com/arkbound/orderfeed/internal/platform/logging"
	"github.com/arkbound/orderfeed/internal/platform/metrics"
	"github.com/arkbound/orderfeed/internal/platform/snapshot"
	platformspanner "github.com/arkbound/orderfeed/internal/platform/spanner"
)

func main() {
	logger := logging.Setup()
	logger.Info("starting order feed service")

	cfg := config.Load()
	ctx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelBoot()

	orders, errs, closeStore, err := buildStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize storage backend", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	bus, closeBus, err := buildBus(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize event bus", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeBus()

	registry := metrics.NewRegistry()
	metricsSub := metrics.NewSubscriber(registry)
	bus.Subscribe(eventbus.KindValidOrder, metricsSub)
	bus.Subscribe(eventbus.KindErrorOrder, metricsSub)
	bus.Subscribe(eventbus.KindValidOrder, coordinator.NewOrderPersistenceSubscriber(orders))
	bus.Subscribe(eventbus.KindErrorOrder, coordinator.NewErrorPersistenceSubscriber(errs, logger))

	var sequencePath string
	var sequenceDebouncer *snapshot.Debouncer
	if cfg.SnapshotDir != "" {
		sequencePath = cfg.SnapshotDir + "/sequences.json"
		sequenceDebouncer = snapshot.NewDebouncer(snapshot.NewWriter(sequencePath), cfg.SnapshotDelay, logger)
	}
	sequences := sequence.NewInMemoryGenerator(sequencePath, sequenceDebouncer, faultReporter{bus: bus}, logger)

	feed := coordinator.NewFeedCoordinator(bus, sequences, orders, duplicatePolicy(cfg.DuplicatePolicy))
	query := coordinator.NewQueryCoordinator(orders, errs)

	mux := http.NewServeMux()
	authCfg := ingresshttp.AuthConfig{Enabled: cfg.APIKey != "", MasterKey: cfg.APIKey}
	ingresshttp.RegisterRoutes(mux, feed, query, ingresshttp.FeedAuth(authCfg))

	handler := httpserver.Middleware(mux,
		httpserver.Recovery(logger),
		httpserver.RequestID(),
		httpserver.Logging(logger),
		httpserver.CORS(cfg.AllowedOrigins),
	)

	server := httpserver.New(httpServerConfig(cfg.HTTPListenAddr), handler, logger)
	metricsServer := httpserver.New(httpServerConfig(cfg.MetricsListenAddr), registry.Handler(), logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("http server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()
	go func() {
		if err := metricsServer.Start(); err != nil {
			logger.Error("metrics server error", slog.Any("error", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", slog.Any("error", err))
	}
	sequences.Flush()

	logger.Info("stopped")
}

// buildStores constructs the order/error repositories for the backend
// named by cfg.StoreBackend. The in-memory backend is restored from and
// debounced back to snapshot files; spanner/postgres own their durability.
func buildStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (persistence.OrderRepository, persistence.ErrorRepository, func(), error) {
	switch cfg.StoreBackend {
	case "spanner":
		client, err := platformspanner.NewClient(ctx, platformspanner.Config{
			ProjectID:  getEnv("SPANNER_PROJECT_ID", "local-project"),
			InstanceID: getEnv("SPANNER_INSTANCE_ID", "local-instance"),
			DatabaseID: cfg.SpannerDB,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return spannerstore.NewOrderStore(client), spannerstore.NewErrorStore(client), func() { client.Close() }, nil

	case "postgres":
		pool, err := postgresstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		return postgresstore.NewOrderStore(pool), postgresstore.NewErrorStore(pool), pool.Close, nil

	default:
		var ordersPath, errorsPath string
		var orderDebouncer, errorDebouncer *snapshot.Debouncer
		if cfg.SnapshotDir != "" {
			ordersPath = cfg.SnapshotDir + "/orders.json"
			errorsPath = cfg.SnapshotDir + "/errors.json"
			orderDebouncer = snapshot.NewDebouncer(snapshot.NewWriter(ordersPath), cfg.SnapshotDelay, logger)
			errorDebouncer = snapshot.NewDebouncer(snapshot.NewWriter(errorsPath), cfg.SnapshotDelay, logger)
		}
		orders := persistence.NewInMemoryOrderStore(ordersPath, orderDebouncer, logger)
		errs := persistence.NewInMemoryErrorStore(errorsPath, errorDebouncer, logger)
		return orders, errs, func() {}, nil
	}
}

// buildBus constructs the event bus named by cfg.BusBackend.
func buildBus(ctx context.Context, cfg config.Config, logger *slog.Logger) (eventbus.Bus, func(), error) {
	if cfg.BusBackend == "amqp" {
		bus, err := amqpbus.Connect(ctx, cfg.AMQPURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return bus, func() { bus.Close() }, nil
	}
	return eventbus.New(logger), func() {}, nil
}

// faultReporter adapts the event bus to sequence.FaultSink, so a failed
// sequence snapshot flush surfaces as an INTERNAL_ERROR on the error
// stream instead of silently disappearing.
type faultReporter struct {
	bus eventbus.Bus
}

func (f faultReporter) ReportFault(event domain.ErrorEvent) {
	f.bus.Emit(context.Background(), eventbus.KindErrorOrder, event)
}

func duplicatePolicy(name string) coordinator.DuplicatePolicy {
	if name == "reject" {
		return coordinator.DuplicateReject
	}
	return coordinator.DuplicateAllow
}

func httpServerConfig(addr string) httpserver.Config {
	cfg := httpserver.DefaultConfig()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return cfg
	}
	if port, err := strconv.Atoi(portStr); err == nil {
		cfg.Host, cfg.Port = host, port
	}
	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
