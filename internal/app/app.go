package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/qrpro/internal/catalog"
	healthcheck "github.com/vladislavdragonenkov/qrpro/internal/health"
	"github.com/vladislavdragonenkov/qrpro/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/qrpro/internal/metrics"
	"github.com/vladislavdragonenkov/qrpro/internal/notification"
	"github.com/vladislavdragonenkov/qrpro/internal/service/cart"
	"github.com/vladislavdragonenkov/qrpro/internal/service/idempotency"
	"github.com/vladislavdragonenkov/qrpro/internal/service/orders"
	"github.com/vladislavdragonenkov/qrpro/internal/service/outbox"
	"github.com/vladislavdragonenkov/qrpro/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/qrpro/internal/version"
)

const readHeaderTimeout = 10 * time.Second

// application — собранный граф зависимостей сервиса.
type application struct {
	cfg    Config
	logger *log.Entry

	deps     *runtimeDependencies
	carts    *cartDependencies
	producer *kafka.Producer

	orders  *orders.Service
	cart    *cart.Service
	api     *httpapi.Server
	health  *healthcheck.Handler
	worker  *outbox.Worker
	sweeper *idempotency.Sweeper
}

// newApplication открывает хранилища и связывает сервисы. При ошибке уже открытые ресурсы закрываются.
func newApplication(ctx context.Context, cfg Config, logger *log.Entry) (_ *application, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &application{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()

	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		return nil, err
	}

	if a.deps, err = initRuntimeDependencies(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if a.carts, err = initCartStore(ctx, cfg, logger); err != nil {
		return nil, err
	}
	authn, err := initAuthenticator(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	mailer, err := initMailer(cfg, logger)
	if err != nil {
		return nil, err
	}

	orderMetrics := metrics.NewOrderMetrics()
	dispatcher := notification.NewDispatcher(a.deps.outbox, logger.WithField("component", "notification-dispatcher"))

	a.orders = orders.NewService(a.deps.orders, a.deps.timeline, cat,
		orders.WithNotifier(dispatcher),
		orders.WithMetrics(orderMetrics),
		orders.WithLogger(logger.WithField("component", "order-service")),
	)
	a.cart = cart.NewService(a.carts.store, cat, a.orders,
		cart.WithMetrics(orderMetrics),
		cart.WithLogger(logger.WithField("component", "cart-service")),
	)

	a.health = healthcheck.NewHandler(version.GetVersion())
	a.health.RegisterChecker("storage", a.deps.storageChecker)
	a.health.RegisterChecker("outbox", healthcheck.NewOutboxChecker(a.deps.outbox, cfg.OutboxMaxLag))
	if a.carts.checker != nil {
		a.health.RegisterChecker("cart_store", a.carts.checker)
	}

	a.api = httpapi.NewServer(a.orders, a.cart, cat, authn,
		httpapi.WithIdempotency(a.deps.idempotency, cfg.IdempotencyTTL),
		httpapi.WithHealth(a.health),
		httpapi.WithMetrics(metrics.NewHTTPMetrics(prometheus.DefaultRegisterer)),
		httpapi.WithLogger(logger.WithField("component", "http")),
	)

	workerOpts := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "notification-outbox")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryBaseDelay),
	}
	var dlq *kafka.DLQPublisher
	a.producer, dlq = initKafkaDLQ(cfg, logger)
	if dlq != nil {
		workerOpts = append(workerOpts, outbox.WithDLQPublisher(dlq))
	}
	a.worker = outbox.NewWorker(a.deps.outbox, notification.NewEmailPublisher(mailer), workerOpts...)

	a.sweeper = idempotency.NewSweeper(a.deps.idempotency,
		idempotency.WithLogger(logger.WithField("component", "idempotency-sweeper")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	return a, nil
}

// close освобождает соединения с хранилищами и Kafka.
func (a *application) close() error {
	closeKafkaProducer(a.producer, a.logger)
	a.producer = nil

	var closers []func() error
	if a.deps != nil {
		closers = append(closers, a.deps.close)
	}
	if a.carts != nil {
		closers = append(closers, a.carts.closeFn)
	}
	return closeAll(closers...)
}

// Run запускает API, сервер метрик и фоновые воркеры до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	a, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	lis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err)
	}

	// Воркеры живут дольше API, чтобы успеть забрать письма последних запросов.
	workerCtx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		a.worker.Run(workerCtx)
	}()
	go func() {
		defer workers.Done()
		a.sweeper.Run(workerCtx)
	}()

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, a.health)

	apiSrv := &http.Server{
		Handler:           a.api.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", lis.Addr())
		errCh <- apiSrv.Serve(lis)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP API")
		shutdownHTTP(apiSrv, cfg.ShutdownTimeout, logger)
		runErr = ctx.Err()
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	shutdownWorkers(stopWorkers, &workers, cfg.ShutdownTimeout, logger)
	shutdownHTTP(metricsSrv, cfg.ShutdownTimeout, logger)
	return runErr
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus и проверки здоровья.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/version", version.Handler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, 5*time.Second, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

// shutdownWorkers отменяет контекст воркеров и ждёт их завершения не дольше timeout.
func shutdownWorkers(cancel context.CancelFunc, wg *sync.WaitGroup, timeout time.Duration, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if wg == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warn("background workers did not stop in time")
	}
}
