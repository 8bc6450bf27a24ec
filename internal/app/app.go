package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/finalize"
	"github.com/vladislavdragonenkov/storefront/internal/service/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/service/notify"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/service/payout"
	"github.com/vladislavdragonenkov/storefront/internal/service/refund"
	"github.com/vladislavdragonenkov/storefront/internal/service/sweeper"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// Run собирает зависимости и держит приложение до отмены контекста.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	healthRegistry := healthcheck.NewRegistry(version.GetVersion())

	// Хранилище: PostgreSQL при заданном DSN, иначе in-memory.
	var repos Repositories
	if cfg.PostgresDSN != "" {
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer func() {
			_ = store.Close()
		}()
		if err := store.MigrateUp(ctx, 0); err != nil {
			return err
		}
		repos = NewPostgresRepositories(store, logger)
		healthRegistry.Register("postgres", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return store.Ping(pingCtx)
		})
	} else {
		logger.Info("using in-memory storage")
		repos = NewMemoryRepositories()
	}

	producer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(producer, logger)

	notifier := notify.NewLogNotifier(logger.WithField("component", "email-notifier"))
	provider := payment.NewMockProvider(cfg.WebhookSecret)

	payoutEngine := payout.NewEngine(
		repos.Orders, repos.Payouts, repos.Rules,
		payout.WithLogger(logger.WithField("component", "payout-engine")),
	)

	var orchestrator finalize.Orchestrator
	if producer != nil {
		orchestrator = finalize.NewOrchestratorWithKafka(
			repos.Orders, repos.Products, repos.Ledger, repos.Events, repos.Audit,
			payoutEngine, notifier, producer, logger.WithField("component", "finalize"),
		)
	} else {
		orchestrator = finalize.NewOrchestrator(
			repos.Orders, repos.Products, repos.Ledger, repos.Events, repos.Audit,
			payoutEngine, notifier, logger.WithField("component", "finalize"),
		)
	}

	refundSvc := refund.NewServiceWithKafka(
		repos.Orders, repos.Ledger, repos.Events, repos.Payouts, repos.Audit,
		producer, logger.WithField("component", "refund"),
	)
	checkoutSvc := checkout.NewServiceWithKafka(
		repos.Orders, repos.Products, repos.Audit,
		producer, logger.WithField("component", "checkout"),
	)

	apiServer := httpapi.NewServer(httpapi.Deps{
		Orders:     repos.Orders,
		Products:   repos.Products,
		Ledger:     repos.Ledger,
		Events:     repos.Events,
		Payouts:    repos.Payouts,
		Rules:      repos.Rules,
		Audit:      repos.Audit,
		Checkout:   checkoutSvc,
		Finalize:   orchestrator,
		Refunds:    refundSvc,
		Provider:   provider,
		Notifier:   notifier,
		AdminToken: cfg.AdminToken,
		Logger:     logger.WithField("component", "httpapi"),
	})

	sweepWorker := sweeper.NewWorker(
		repos.Orders,
		sweeper.WithLogger(logger.WithField("component", "sweeper")),
		sweeper.WithInterval(cfg.SweepInterval),
		sweeper.WithMaxOrderAge(cfg.MaxOrderAge),
		sweeper.WithProducer(producer),
	)
	go sweepWorker.Run(ctx)

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthRegistry)

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP сервер слушает %s", cfg.HTTPAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdownHTTP(httpSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		// Даём отцепленным побочным эффектам завершиться до закрытия producer'а.
		orchestrator.Wait()
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		orchestrator.Wait()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, health *healthcheck.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", health)
	mux.HandleFunc("/readyz", health.Ready)
	mux.HandleFunc("/livez", healthcheck.Alive)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
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
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
