package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FinalizeMetrics содержит метрики пайплайна финализации оплат.
type FinalizeMetrics struct {
	// Счётчики финализаций
	finalizeStarted   prometheus.Counter
	finalizeCompleted prometheus.Counter
	finalizeDuplicate prometheus.Counter
	finalizeFailed    prometheus.Counter

	// Гистограмма времени выполнения
	finalizeDuration prometheus.Histogram

	// Счётчики стока
	stockDeductions   *prometheus.CounterVec
	stockShortfall    prometheus.Counter
	stockCommitClaims prometheus.Counter

	// Побочные эффекты
	payoutsGenerated   prometheus.Counter
	sideEffectFailures *prometheus.CounterVec
}

// NewFinalizeMetrics создаёт новый экземпляр метрик финализации.
func NewFinalizeMetrics() *FinalizeMetrics {
	return newFinalizeMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newFinalizeMetricsWithRegisterer(registerer prometheus.Registerer) *FinalizeMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &FinalizeMetrics{
		finalizeStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_finalize_started_total",
			Help: "Total number of order finalization attempts",
		}),
		finalizeCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_finalize_completed_total",
			Help: "Total number of finalizations that produced the sale ledger entry",
		}),
		finalizeDuplicate: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_finalize_duplicate_total",
			Help: "Total number of finalization attempts short-circuited as already finalized",
		}),
		finalizeFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_finalize_failed_total",
			Help: "Total number of failed finalization attempts",
		}),
		finalizeDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_finalize_duration_seconds",
			Help:    "Duration of finalization attempts in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stockDeductions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_stock_deduct_items_total",
			Help: "Total number of per-item stock deduction attempts grouped by result",
		}, []string{"result"}),
		stockShortfall: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_stock_shortfall_orders_total",
			Help: "Total number of paid orders flagged for manual review due to stock shortfall",
		}),
		stockCommitClaims: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_stock_commit_claims_total",
			Help: "Total number of successful stock_deducted_at claims",
		}),
		payoutsGenerated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_payouts_generated_total",
			Help: "Total number of payout rows created",
		}),
		sideEffectFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_side_effect_failures_total",
			Help: "Total number of failed best-effort side effects grouped by effect",
		}, []string{"effect"}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordFinalizeStarted увеличивает счётчик попыток финализации.
func (m *FinalizeMetrics) RecordFinalizeStarted() {
	m.finalizeStarted.Inc()
}

// RecordFinalizeCompleted увеличивает счётчик успешных финализаций.
func (m *FinalizeMetrics) RecordFinalizeCompleted() {
	m.finalizeCompleted.Inc()
}

// RecordFinalizeDuplicate увеличивает счётчик идемпотентных повторов.
func (m *FinalizeMetrics) RecordFinalizeDuplicate() {
	m.finalizeDuplicate.Inc()
}

// RecordFinalizeFailed увеличивает счётчик неуспешных финализаций.
func (m *FinalizeMetrics) RecordFinalizeFailed() {
	m.finalizeFailed.Inc()
}

// RecordFinalizeDuration фиксирует длительность финализации.
func (m *FinalizeMetrics) RecordFinalizeDuration(d time.Duration) {
	m.finalizeDuration.Observe(d.Seconds())
}

// RecordStockDeduction фиксирует результат списания одной позиции.
func (m *FinalizeMetrics) RecordStockDeduction(result string) {
	m.stockDeductions.WithLabelValues(result).Inc()
}

// RecordStockShortfall увеличивает счётчик заказов с нехваткой стока.
func (m *FinalizeMetrics) RecordStockShortfall() {
	m.stockShortfall.Inc()
}

// RecordStockCommitClaim увеличивает счётчик успешных захватов маркера списания.
func (m *FinalizeMetrics) RecordStockCommitClaim() {
	m.stockCommitClaims.Inc()
}

// RecordPayoutsGenerated увеличивает счётчик созданных выплат на n.
func (m *FinalizeMetrics) RecordPayoutsGenerated(n int) {
	m.payoutsGenerated.Add(float64(n))
}

// RecordSideEffectFailure фиксирует сбой best-effort побочного эффекта.
func (m *FinalizeMetrics) RecordSideEffectFailure(effect string) {
	m.sideEffectFailures.WithLabelValues(effect).Inc()
}
