package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/rfs/internal/health"
	"github.com/vladislavdragonenkov/rfs/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/rfs/internal/server"
	"github.com/vladislavdragonenkov/rfs/internal/service/counter"
	"github.com/vladislavdragonenkov/rfs/internal/service/dispatcher"
	"github.com/vladislavdragonenkov/rfs/internal/service/outbox"
	"github.com/vladislavdragonenkov/rfs/internal/service/reconcile"
	"github.com/vladislavdragonenkov/rfs/internal/service/saga"
	"github.com/vladislavdragonenkov/rfs/internal/version"
)

// Run собирает приложение и блокируется до отмены ctx.
//
// Порядок остановки зеркален запуску: сначала закрывается входной HTTP,
// затем фоновые воркеры, затем диспетчер дообрабатывает очередь событий
// (graceful drain) и только после этого закрываются внешние подключения.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	logger.Info(version.String())

	deps, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close(logger)

	bus := dispatcher.New(dispatcher.WithLogger(log.WithField("component", "dispatcher")))
	counters := counter.NewController(deps.Counters, nil)

	orchestrator := saga.NewOrchestrator(saga.Deps{
		Orders:      deps.Orders,
		Payments:    deps.Payments,
		Coupons:     deps.Coupons,
		Counters:    counters,
		Users:       deps.Users,
		Cards:       deps.Cards,
		Gateway:     deps.Gateway,
		Outbox:      deps.Outbox,
		Bus:         bus,
		CallbackURL: cfg.CallbackURL,
	}, log.WithField("component", "saga"))
	if err := orchestrator.Register(bus); err != nil {
		return err
	}

	// Диспетчеру нужен контекст, переживающий drain: обработчики хвоста
	// саг работают уже после остановки фоновых воркеров.
	busCtx, stopBus := context.WithCancel(context.Background())
	defer stopBus()
	bus.Start(busCtx)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	sweeper := reconcile.NewSweeper(
		deps.Payments,
		deps.Gateway,
		bus,
		reconcile.WithInterval(cfg.ReconcileInterval),
	)
	if !cfg.ReconcileEnabled {
		sweeper.Pause()
	}
	go sweeper.Run(workerCtx)

	var outboxWorker *outbox.Worker
	if deps.KafkaProducer != nil {
		publisher := kafka.NewOutboxPublisher(deps.KafkaProducer, kafka.TopicAnalyticsEvents)
		dlq := kafka.NewOutboxPublisher(deps.KafkaProducer, kafka.TopicDeadLetterQueue)
		outboxWorker = outbox.NewWorker(deps.Outbox, publisher, outbox.WithDLQPublisher(dlq))
		go outboxWorker.Run(workerCtx)
	} else {
		logger.Warn("kafka is not configured, analytics events stay in the outbox")
	}

	httpSrv := server.New(cfg.HTTPAddr, deps.Orders, deps.Payments, bus, sweeper, log.WithField("component", "http-server"))
	httpSrv.Start()

	healthHandler := healthcheck.NewHandler(version.String())
	if deps.PGStore != nil {
		healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return deps.PGStore.Ping(pingCtx)
		}))
	}
	metricsSrv := startMetricsServer(cfg.MetricsAddr, logger, healthHandler)

	<-ctx.Done()
	logger.Info("получен сигнал остановки")

	httpSrv.Shutdown()
	stopWorkers()
	bus.Stop()
	stopBus()
	shutdownHTTP(metricsSrv, logger)

	return ctx.Err()
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(addr string, logger *log.Entry, healthHandler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez", addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
