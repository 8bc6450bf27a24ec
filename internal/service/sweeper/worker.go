package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

const (
	defaultSweepInterval = 1 * time.Hour
	defaultMaxOrderAge   = 24 * time.Hour
)

var (
	sweeperRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_sweeper_runs_total",
		Help: "Total number of abandoned-order sweeps grouped by result.",
	}, []string{"result"})
	sweeperCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_sweeper_cancelled_total",
		Help: "Total number of abandoned orders cancelled by the sweeper.",
	})
	sweeperLastCancelled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_sweeper_last_cancelled",
		Help: "Number of orders cancelled during the last sweep.",
	})
)

// Options задаёт параметры sweeper'а брошенных заказов.
type Options struct {
	Logger   *log.Entry
	Interval time.Duration
	// MaxOrderAge — возраст, после которого неоплаченный заказ считается брошенным.
	MaxOrderAge time.Duration
	Producer    *kafka.Producer
}

// Option настраивает Worker.
type Option func(*Options)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithInterval задаёт интервал между проходами.
func WithInterval(interval time.Duration) Option {
	return func(opts *Options) {
		opts.Interval = interval
	}
}

// WithMaxOrderAge задаёт возраст, после которого заказ подлежит отмене.
func WithMaxOrderAge(age time.Duration) Option {
	return func(opts *Options) {
		opts.MaxOrderAge = age
	}
}

// WithProducer задаёт Kafka producer для публикации событий отмены.
func WithProducer(producer *kafka.Producer) Option {
	return func(opts *Options) {
		opts.Producer = producer
	}
}

// Worker периодически отменяет зависшие неоплаченные заказы, чтобы они не
// оставались навсегда в неоднозначном состоянии по стоку и ledger'у.
//
// Отмена — один bulk-условный UPDATE: предикат (pending, unpaid, не COD,
// сток не списан, старше порога) вычисляется тем же атомарным statement'ом,
// что и запись. Заказ, оплаченный между выборкой и коммитом, просто не
// проходит предикат — гонки с финализацией нет.
type Worker struct {
	orders   domain.OrderRepository
	logger   *log.Entry
	interval time.Duration
	maxAge   time.Duration
	producer *kafka.Producer
}

// NewWorker создаёт sweeper брошенных заказов.
func NewWorker(orders domain.OrderRepository, options ...Option) *Worker {
	opts := Options{
		Interval:    defaultSweepInterval,
		MaxOrderAge: defaultMaxOrderAge,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "abandoned-order-sweeper")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultSweepInterval
	}
	if opts.MaxOrderAge <= 0 {
		opts.MaxOrderAge = defaultMaxOrderAge
	}

	return &Worker{
		orders:   orders,
		logger:   logger,
		interval: opts.Interval,
		maxAge:   opts.MaxOrderAge,
		producer: opts.Producer,
	}
}

// Run запускает периодические проходы до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.orders == nil {
		w.logger.Warn("abandoned-order sweeper is disabled: orders repo is nil")
		return
	}

	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	cancelled, err := w.Sweep()
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		sweeperRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("abandoned-order sweep failed")
		return
	}

	sweeperRunsTotal.WithLabelValues("ok").Inc()
	sweeperLastCancelled.Set(float64(cancelled))
	if cancelled > 0 {
		sweeperCancelledTotal.Add(float64(cancelled))
		w.logger.WithField("cancelled", cancelled).Info("abandoned orders cancelled")
	}
}

// Sweep выполняет один проход и возвращает число отменённых заказов.
func (w *Worker) Sweep() (int, error) {
	cutoff := time.Now().UTC().Add(-w.maxAge)
	cancelled, err := w.orders.CancelAbandoned(cutoff)
	if err != nil {
		return 0, err
	}

	if cancelled > 0 && w.producer != nil {
		// Идентификаторы отменённых заказов bulk-UPDATE не возвращает;
		// публикуем агрегатное событие прохода.
		if pubErr := w.producer.PublishOrderEvent(kafka.EventTypeOrderSwept, "sweep", map[string]interface{}{
			"cancelled": cancelled,
			"cutoff":    cutoff.Format(time.RFC3339),
		}); pubErr != nil {
			w.logger.WithError(pubErr).Warn("failed to publish sweep event to kafka")
		}
	}

	return cancelled, nil
}
