package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	healthcheck "github.com/vladislavdragonenkov/marketplace/internal/health"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/httpapi"
	"github.com/vladislavdragonenkov/marketplace/internal/service/idempotency"
	"github.com/vladislavdragonenkov/marketplace/internal/service/inventory"
	"github.com/vladislavdragonenkov/marketplace/internal/service/orders"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
	"github.com/vladislavdragonenkov/marketplace/internal/service/payment"
	"github.com/vladislavdragonenkov/marketplace/internal/service/payment/zalopay"
	"github.com/vladislavdragonenkov/marketplace/internal/service/report"
	"github.com/vladislavdragonenkov/marketplace/internal/version"
)

// serviceName — имя сервиса в grpc.health.v1.
const serviceName = "marketplace.Marketplace"

// App — собранный сервис: хранилище, бизнес-сервисы, воркеры и серверы.
type App struct {
	cfg      Config
	logger   *log.Entry
	storage  *storageRuntime
	kafka    *kafkaRuntime
	api      http.Handler
	health   *healthcheck.Handler
	ops      *opsServer
	outbox   *outbox.Worker
	cleanup  *idempotency.CleanupWorker
	gatherer prometheus.Gatherer
}

// New собирает App по конфигурации. Close освобождает ресурсы, если Run
// так и не был вызван.
func New(ctx context.Context, cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := log.WithField("component", "app")
	storage, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := seedCatalog(ctx, cfg.SeedFile, storage.seeder, logger); err != nil {
		_ = storage.close()
		return nil, err
	}
	if !cfg.ZaloPayEnabled() {
		logger.Warn("zalopay is not configured, gateway payments will be rejected upstream")
	}

	registerer := prometheus.DefaultRegisterer
	marketplaceMetrics := metrics.NewMarketplaceMetricsWithRegisterer(registerer)

	adjuster := inventory.NewAdjuster(
		inventory.WithLogger(log.WithField("component", "inventory")),
		inventory.WithMetrics(marketplaceMetrics),
	)
	orderSvc := orders.NewService(storage.uow,
		orders.WithLogger(log.WithField("component", "orders")),
		orders.WithMetrics(marketplaceMetrics),
		orders.WithAdjuster(adjuster),
	)
	gateway := zalopay.NewClient(cfg.ZaloPay, zalopay.WithLogger(log.WithField("component", "zalopay")))
	paymentSvc := payment.NewService(storage.uow, gateway, orderSvc,
		payment.WithLogger(log.WithField("component", "payment")),
		payment.WithMetrics(marketplaceMetrics),
	)

	kafkaRT, err := initKafka(cfg, paymentSvc, logger)
	if err != nil {
		_ = storage.close()
		return nil, err
	}

	api := httpapi.New(httpapi.Config{
		Orders:         orderSvc,
		Payments:       paymentSvc,
		Inventory:      inventory.NewService(storage.uow, adjuster),
		Reports:        report.NewService(storage.uow.Orders(), report.WithLogger(log.WithField("component", "report"))),
		Idempotency:    storage.idempotency,
		IdempotencyTTL: cfg.IdempotencyTTL,
		Logger:         log.WithField("component", "http"),
	})

	worker := outbox.NewWorker(storage.uow.Outbox(), kafkaRT.publisher,
		outbox.WithLogger(log.WithField("component", "outbox-worker")),
		outbox.WithDLQPublisher(kafkaRT.dlq),
		outbox.WithMetrics(metrics.NewOutboxMetrics(registerer)),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
	cleanup := idempotency.NewCleanupWorker(storage.idempotency,
		idempotency.WithLogger(log.WithField("component", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
		idempotency.WithMetrics(metrics.NewCleanupMetrics(registerer)),
	)

	outboxRepo := storage.uow.Outbox()
	healthHandler := healthcheck.NewHandler(version.Current().Version)
	healthHandler.RegisterChecker("storage", healthcheck.NewStorageChecker("storage", storage.pinger))
	healthHandler.RegisterChecker("outbox", healthcheck.NewBacklogChecker("outbox",
		func(ctx context.Context) (int, time.Time, error) {
			stats, err := outboxRepo.Stats(ctx)
			return stats.PendingCount, stats.OldestPendingAt, err
		},
		cfg.OutboxMaxPending, cfg.OutboxMaxAge,
	))

	return &App{
		cfg:      cfg,
		logger:   logger,
		storage:  storage,
		kafka:    kafkaRT,
		api:      api.Handler(),
		health:   healthHandler,
		ops:      newOpsServer(registerer, log.WithField("component", "ops-grpc")),
		outbox:   worker,
		cleanup:  cleanup,
		gatherer: prometheus.DefaultGatherer,
	}, nil
}

// Handler возвращает REST-обработчик.
func (a *App) Handler() http.Handler { return a.api }

// OpsHandler возвращает обработчик /metrics и health-проб.
func (a *App) OpsHandler() http.Handler { return opsMux(a.gatherer, a.health) }

// Run обслуживает HTTP, ops gRPC и воркеры до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	httpLis, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	metricsLis, err := net.Listen("tcp", a.cfg.MetricsAddr)
	if err != nil {
		_ = httpLis.Close()
		return fmt.Errorf("listen metrics: %w", err)
	}
	grpcLis, err := net.Listen("tcp", a.cfg.GRPCAddr)
	if err != nil {
		_ = httpLis.Close()
		_ = metricsLis.Close()
		return fmt.Errorf("listen grpc: %w", err)
	}

	a.logger.WithFields(log.Fields{
		"version":      version.String(),
		"http_addr":    httpLis.Addr().String(),
		"metrics_addr": metricsLis.Addr().String(),
		"grpc_addr":    grpcLis.Addr().String(),
		"storage":      a.cfg.StorageDriver,
	}).Info("marketplace service starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveHTTP(gctx, httpLis, a.api, a.cfg.ShutdownTimeout, a.logger.WithField("server", "api"))
	})
	g.Go(func() error {
		return serveHTTP(gctx, metricsLis, a.OpsHandler(), a.cfg.ShutdownTimeout, a.logger.WithField("server", "ops"))
	})
	g.Go(func() error {
		return a.ops.serve(gctx, grpcLis, a.cfg.ShutdownTimeout)
	})
	g.Go(func() error {
		a.outbox.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.cleanup.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return a.kafka.runConsumer(gctx)
	})
	a.ops.setServing(true)

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("marketplace service stopped")
	return ctx.Err()
}

// Close закрывает брокер и хранилище. Повторный вызов безопасен.
func (a *App) Close() {
	if a.kafka != nil {
		a.kafka.close(a.logger)
		a.kafka = nil
	}
	if a.storage != nil {
		if err := a.storage.close(); err != nil {
			a.logger.WithError(err).Warn("failed to close storage")
		}
		a.storage = nil
	}
}

// Run собирает сервис по cfg и обслуживает его до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}
