// Package app собирает терминал: хранилище, клиент backend, черновики,
// сервисы, gRPC и служебный HTTP.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/alebrije/pos/internal/client"
	"github.com/alebrije/pos/internal/draft"
	healthcheck "github.com/alebrije/pos/internal/health"
	"github.com/alebrije/pos/internal/messaging/kafka"
	"github.com/alebrije/pos/internal/metrics"
	"github.com/alebrije/pos/internal/service/checkout"
	grpcsvc "github.com/alebrije/pos/internal/service/grpc"
	"github.com/alebrije/pos/internal/service/history"
	"github.com/alebrije/pos/internal/service/outbox"
	"github.com/alebrije/pos/internal/service/scan"
	"github.com/alebrije/pos/internal/service/session"
	"github.com/alebrije/pos/internal/service/snapshot"
	"github.com/alebrije/pos/internal/version"
)

const (
	shutdownTimeout     = 5 * time.Second
	sessionCheckTimeout = 10 * time.Second
)

// Run запускает терминал и блокируется до отмены ctx или падения gRPC сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	loc, err := cfg.location()
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	posMetrics := metrics.NewPOSMetricsWithRegisterer(registry)

	backend, err := client.New(client.Config{
		BaseURL:   cfg.APIURL,
		Timeout:   cfg.APITimeout,
		CSRFToken: cfg.CSRFToken,
		UserAgent: version.UserAgent("pos-terminal"),
	}, client.WithLogger(logger.WithField("layer", "backend")), client.WithMetrics(posMetrics))
	if err != nil {
		return err
	}
	logger.WithField("api_url", backend.BaseURL()).Info("backend client configured")

	sess := session.New(client.NewAuth(backend), deps.kv,
		session.WithProfiles(client.NewUsers(backend)),
		session.WithLogger(logger.WithField("layer", "session")),
	)
	go restoreSession(ctx, sess, logger)

	writer := snapshot.NewWriter(deps.kv,
		snapshot.WithQueueSize(cfg.SnapshotQueue),
		snapshot.WithLogger(logger.WithField("layer", "snapshot")),
		snapshot.WithMetrics(posMetrics),
	)
	drafts := draft.NewStore(
		draft.WithMaxDrafts(cfg.MaxDrafts),
		draft.WithLogger(logger.WithField("layer", "drafts")),
		draft.WithMetrics(posMetrics),
		draft.WithObserver(writer),
	)
	if _, err := snapshot.Restore(ctx, deps.kv, drafts, logger.WithField("layer", "snapshot")); err != nil {
		logger.WithError(err).Warn("failed to restore draft snapshots, starting empty")
	}
	writerCancel, writerDone := startSnapshotWriter(writer)
	defer shutdownSnapshotWriter(writerCancel, writerDone, logger)

	// Без Kafka продажи проходят, но события не публикуются.
	producer, _ := initKafkaProducer(cfg.KafkaBrokers, cfg.TerminalID, logger)
	defer closeKafkaProducer(producer, logger)

	checkoutOpts := []checkout.Option{
		checkout.WithLogger(logger.WithField("layer", "checkout")),
		checkout.WithMetrics(posMetrics),
	}
	if producer != nil {
		checkoutOpts = append(checkoutOpts, checkout.WithOutbox(deps.outboxRepo))
		outboxCancel, outboxDone := startOutboxWorker(ctx, cfg, deps, producer, registry, logger)
		defer shutdownOutboxWorker(outboxCancel, outboxDone, logger)
	}

	products := client.NewProducts(backend)
	sales := client.NewSales(backend)
	scanner := scan.New(products, drafts,
		scan.WithAppID(cfg.AppID),
		scan.WithLogger(logger.WithField("layer", "scan")),
		scan.WithMetrics(posMetrics),
	)
	checkoutSvc := checkout.New(sales, drafts, deps.kv, checkoutOpts...)
	historySvc := history.New(sales, deps.kv,
		history.WithLocation(loc),
		history.WithLogger(logger.WithField("layer", "history")),
	)
	draftService := grpcsvc.NewDraftService(drafts, scanner, checkoutSvc, historySvc, sess,
		logger.WithField("layer", "grpc"),
		grpcsvc.WithAppID(cfg.AppID),
		grpcsvc.WithLocation(loc),
	)

	grpcMetrics := promgrpc.NewServerMetrics()
	registry.MustRegister(grpcMetrics)
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	grpcsvc.RegisterDraftServiceServer(grpcServer, draftService)
	grpcMetrics.InitializeMetrics(grpcServer)
	reflection.Register(grpcServer)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcsvc.ServiceName, healthpb.HealthCheckResponse_SERVING)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.storageChecker != nil {
		healthHandler.RegisterChecker("storage", deps.storageChecker)
	}
	healthHandler.RegisterChecker("backend", healthcheck.NewOptionalChecker("backend", backend.Ping))

	opsSrv := startOpsServer(ctx, cfg.MetricsAddr, logger, healthHandler, registry)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(opsSrv, logger)
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC сервер слушает %s", lis.Addr())
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем gRPC сервер")
		healthServer.Shutdown()
		stopGRPC(grpcServer, logger)
		shutdownHTTP(opsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(opsSrv, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// restoreSession поднимает сохранённую авторизацию в фоне: недоступный backend
// не должен задерживать старт терминала.
func restoreSession(ctx context.Context, sess *session.Session, logger *log.Entry) {
	checkCtx, cancel := context.WithTimeout(ctx, sessionCheckTimeout)
	defer cancel()

	res, err := sess.CheckAuth(checkCtx)
	if err != nil {
		logger.WithError(err).Info("no active session, seller must log in")
		return
	}
	if res.User != nil {
		logger.WithField("user_id", res.User.ID).Info("session restored")
	}
}

func startSnapshotWriter(writer *snapshot.Writer) (context.CancelFunc, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		writer.Run(ctx)
	}()
	return cancel, done
}

func startOutboxWorker(
	ctx context.Context,
	cfg Config,
	deps runtimeDependencies,
	producer *kafka.Producer,
	registerer prometheus.Registerer,
	logger *log.Entry,
) (context.CancelFunc, <-chan struct{}) {
	worker := outbox.NewWorker(deps.outboxRepo,
		kafka.NewOutboxPublisher(producer, cfg.SaleTopic, cfg.TerminalID),
		outbox.WithLogger(logger.WithField("layer", "outbox")),
		outbox.WithMetrics(outbox.NewMetrics(registerer)),
		outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue, cfg.TerminalID)),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)

	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(workerCtx)
	}()
	return cancel, done
}

// shutdownOutboxWorker останавливает воркер и ждёт завершения текущего батча.
func shutdownOutboxWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel == nil {
		return
	}
	cancel()
	waitDone(done, "outbox worker", logger)
}

// shutdownSnapshotWriter останавливает запись снимков; оставшаяся очередь дописывается.
func shutdownSnapshotWriter(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel == nil {
		return
	}
	cancel()
	waitDone(done, "snapshot writer", logger)
}

func waitDone(done <-chan struct{}, name string, logger *log.Entry) {
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		logger.WithField("worker", name).Warn("worker did not stop in time")
	}
}

func stopGRPC(srv *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		srv.Stop()
	}
}

// startOpsServer запускает служебный HTTP: метрики и health-пробы.
func startOpsServer(
	ctx context.Context,
	addr string,
	logger *log.Entry,
	healthHandler *healthcheck.Handler,
	gatherer prometheus.Gatherer,
) *http.Server {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.Handle("/healthz", healthHandler).Methods(http.MethodGet)
	router.HandleFunc("/livez", healthcheck.LivenessHandler).Methods(http.MethodGet)
	router.HandleFunc("/readyz", healthHandler.ReadinessHandler).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("ops server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("ops server shutdown with error")
	}
}
