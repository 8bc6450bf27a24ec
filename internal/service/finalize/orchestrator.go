package finalize

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/payout"
)

// Orchestrator — единая идемпотентная точка входа для «заказ оплачен».
// Вызывается избыточно из webhook-обработчика и из verify-endpoint'а:
// N вызовов, последовательных или конкурентных, дают ровно одну
// sale-запись в ledger и ровно одно списание стока.
type Orchestrator interface {
	// CommitStock списывает сток по заказу не более одного раза,
	// под защитой маркера stock_deducted_at.
	CommitStock(orderID string) (StockCommitResult, error)
	// Finalize проводит финансовую часть: ledger, выплаты, аудит, письмо.
	Finalize(orderID, provider, providerEventID string, metadata map[string]string) (Result, error)
	// Wait дожидается завершения отцепленных побочных эффектов
	// (graceful shutdown и тесты).
	Wait()
}

// Result описывает исход вызова Finalize.
type Result struct {
	// AlreadyFinalized — sale-запись уже существовала; никакие шаги не выполнялись
	// либо конкурент выиграл гонку за unique constraint.
	AlreadyFinalized bool
	Order            domain.Order
}

// StockCommitResult описывает исход попытки списания стока.
type StockCommitResult struct {
	// AlreadyCommitted — маркер уже стоял; списание не повторялось.
	AlreadyCommitted bool
	// Shortages — позиции, по которым остатка не хватило. Заказ при этом
	// остаётся оплаченным: деньги уже захвачены провайдером, нехватка стока —
	// операционный алерт, а не откат заказа.
	Shortages []domain.StockShortage
}

// AllDeducted сообщает, списались ли все позиции без нехваток.
func (r StockCommitResult) AllDeducted() bool {
	return len(r.Shortages) == 0
}

type orchestrator struct {
	orders   domain.OrderRepository
	products domain.ProductRepository
	ledger   domain.LedgerRepository
	events   domain.EventRepository
	audit    domain.AuditRepository
	payouts  *payout.Engine
	notifier domain.EmailNotifier
	logger   *log.Entry
	metrics  *metrics.FinalizeMetrics
	producer *kafka.Producer // опциональный Kafka producer

	sideEffects sync.WaitGroup
}

// NewOrchestrator создаёт рабочий экземпляр оркестратора финализации.
func NewOrchestrator(
	orders domain.OrderRepository,
	products domain.ProductRepository,
	ledger domain.LedgerRepository,
	events domain.EventRepository,
	audit domain.AuditRepository,
	payouts *payout.Engine,
	notifier domain.EmailNotifier,
	logger *log.Entry,
) Orchestrator {
	return newOrchestrator(orders, products, ledger, events, audit, payouts, notifier, nil, logger, metrics.NewFinalizeMetrics())
}

// NewOrchestratorWithKafka создаёт оркестратор, публикующий события заказов в Kafka.
func NewOrchestratorWithKafka(
	orders domain.OrderRepository,
	products domain.ProductRepository,
	ledger domain.LedgerRepository,
	events domain.EventRepository,
	audit domain.AuditRepository,
	payouts *payout.Engine,
	notifier domain.EmailNotifier,
	producer *kafka.Producer,
	logger *log.Entry,
) Orchestrator {
	return newOrchestrator(orders, products, ledger, events, audit, payouts, notifier, producer, logger, metrics.NewFinalizeMetrics())
}

// NewOrchestratorWithoutMetrics создаёт оркестратор без метрик (для тестов).
func NewOrchestratorWithoutMetrics(
	orders domain.OrderRepository,
	products domain.ProductRepository,
	ledger domain.LedgerRepository,
	events domain.EventRepository,
	audit domain.AuditRepository,
	payouts *payout.Engine,
	notifier domain.EmailNotifier,
	logger *log.Entry,
) Orchestrator {
	return newOrchestrator(orders, products, ledger, events, audit, payouts, notifier, nil, logger, nil)
}

func newOrchestrator(
	orders domain.OrderRepository,
	products domain.ProductRepository,
	ledger domain.LedgerRepository,
	events domain.EventRepository,
	audit domain.AuditRepository,
	payouts *payout.Engine,
	notifier domain.EmailNotifier,
	producer *kafka.Producer,
	logger *log.Entry,
	m *metrics.FinalizeMetrics,
) *orchestrator {
	if logger == nil {
		logger = log.New().WithField("component", "finalize")
	}
	return &orchestrator{
		orders:   orders,
		products: products,
		ledger:   ledger,
		events:   events,
		audit:    audit,
		payouts:  payouts,
		notifier: notifier,
		producer: producer,
		logger:   logger,
		metrics:  m,
	}
}

// CommitStock списывает сток по всем позициям заказа ровно один раз.
//
// Сначала условной записью захватывается маркер stock_deducted_at: только
// захвативший вызов продолжает списание, остальные возвращаются с
// AlreadyCommitted. Маркер ставится до per-item декрементов, поэтому попытка
// (успешная или частичная) автоматически не повторяется — как того требует
// политика «одно списание на заказ».
func (o *orchestrator) CommitStock(orderID string) (StockCommitResult, error) {
	order, err := o.orders.Get(orderID)
	if err != nil {
		return StockCommitResult{}, fmt.Errorf("load order for stock commit: %w", err)
	}

	claimed, err := o.orders.MarkStockDeducted(orderID, time.Now().UTC())
	if err != nil {
		return StockCommitResult{}, fmt.Errorf("claim stock deduction marker: %w", err)
	}
	if !claimed {
		o.logger.WithField("order_id", orderID).Debug("stock already deducted, skipping")
		return StockCommitResult{AlreadyCommitted: true}, nil
	}
	if o.metrics != nil {
		o.metrics.RecordStockCommitClaim()
	}

	var shortages []domain.StockShortage
	for _, item := range order.Items {
		err := o.products.DeductStock(item.ProductID, item.Qty)
		switch {
		case err == nil:
			if o.metrics != nil {
				o.metrics.RecordStockDeduction("ok")
			}
		case errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrProductNotFound):
			if o.metrics != nil {
				o.metrics.RecordStockDeduction("shortage")
			}
			shortages = append(shortages, domain.StockShortage{
				ProductID: item.ProductID,
				Requested: item.Qty,
			})
		default:
			// Инфраструктурный сбой хранилища: позиция не списана, но маркер
			// уже стоит. Фиксируем как нехватку — разбор ручной, как и при
			// обычном шортфолле.
			o.logger.WithError(err).WithFields(log.Fields{
				"order_id":   orderID,
				"product_id": item.ProductID,
			}).Error("stock deduction failed")
			if o.metrics != nil {
				o.metrics.RecordStockDeduction("error")
			}
			shortages = append(shortages, domain.StockShortage{
				ProductID: item.ProductID,
				Requested: item.Qty,
			})
		}
	}

	if len(shortages) > 0 {
		o.flagShortfall(orderID, shortages)
	}

	return StockCommitResult{Shortages: shortages}, nil
}

// flagShortfall помечает оплаченный заказ на ручной разбор: деньги уже
// списаны с клиента, автоматический реверс — худший исход, чем алерт человеку.
func (o *orchestrator) flagShortfall(orderID string, shortages []domain.StockShortage) {
	if o.metrics != nil {
		o.metrics.RecordStockShortfall()
	}

	failed := make([]string, 0, len(shortages))
	for _, s := range shortages {
		failed = append(failed, fmt.Sprintf("%s x%d", s.ProductID, s.Requested))
	}
	note := "stock shortfall after payment: " + strings.Join(failed, ", ")

	review := true
	if err := o.orders.Update(orderID, domain.OrderPatch{
		ManualReview:     &review,
		ManualReviewNote: &note,
	}); err != nil {
		o.logger.WithError(err).WithField("order_id", orderID).Error("failed to flag order for manual review")
	}

	o.appendAudit(domain.AuditEntry{
		Action:     "stock.shortfall",
		EntityType: "order",
		EntityID:   orderID,
		Metadata:   map[string]string{"failed_items": strings.Join(failed, ", ")},
		Severity:   domain.AuditSeverityImportant,
	})
	o.publishOrderEvent(kafka.EventTypeOrderManualReview, orderID, map[string]interface{}{
		"reason": note,
	})

	o.logger.WithFields(log.Fields{
		"order_id":     orderID,
		"failed_items": failed,
	}).Warn("stock shortfall after captured payment, order flagged for manual review")
}

// Finalize проводит финансовую сторону подтверждённой оплаты.
//
// Ключ идемпотентности — детерминированный dedupe key sale-записи; событие
// провайдера используется только для трассировки. Каждый шаг независимо
// идемпотентен, поэтому операция безопасно повторяется любым из двух
// вызывающих путей в любом порядке.
func (o *orchestrator) Finalize(orderID, provider, providerEventID string, metadata map[string]string) (Result, error) {
	start := time.Now()
	if o.metrics != nil {
		o.metrics.RecordFinalizeStarted()
	}
	defer func() {
		if o.metrics != nil {
			o.metrics.RecordFinalizeDuration(time.Since(start))
		}
	}()

	logger := o.logger.WithFields(log.Fields{
		"order_id": orderID,
		"provider": provider,
		"event_id": providerEventID,
	})

	// Шаг 1: быстрая проверка — sale-запись уже есть, делать нечего.
	dedupeKey := domain.SaleDedupeKey(orderID)
	if _, err := o.ledger.GetByDedupeKey(dedupeKey); err == nil {
		logger.Debug("order already finalized, skipping")
		order, getErr := o.orders.Get(orderID)
		if getErr != nil {
			if o.metrics != nil {
				o.metrics.RecordFinalizeFailed()
			}
			return Result{}, fmt.Errorf("load finalized order: %w", getErr)
		}
		if o.metrics != nil {
			o.metrics.RecordFinalizeDuplicate()
		}
		return Result{AlreadyFinalized: true, Order: order}, nil
	} else if !errors.Is(err, domain.ErrLedgerEntryNotFound) {
		if o.metrics != nil {
			o.metrics.RecordFinalizeFailed()
		}
		return Result{}, fmt.Errorf("check existing sale entry: %w", err)
	}

	// Шаг 2: журналируем триггер. Дубликат или сбой здесь не фатален —
	// журнал событий нужен для трассировки, дедуп финансов держит ledger.
	if _, err := o.events.Record(domain.OrderEvent{
		OrderID:         orderID,
		Provider:        provider,
		ProviderEventID: providerEventID,
		Type:            EventTypeForTrigger(metadata),
	}); err != nil && !errors.Is(err, domain.ErrEventDuplicate) {
		logger.WithError(err).Warn("failed to record trigger event")
	}

	// Шаг 3: заказ обязан существовать; слепой retry тут не поможет.
	order, err := o.orders.Get(orderID)
	if err != nil {
		logger.WithError(err).Warn("order not found for finalization")
		if o.metrics != nil {
			o.metrics.RecordFinalizeFailed()
		}
		return Result{}, err
	}

	// Шаг 4: sale-запись. Настоящая защита от гонки — unique constraint
	// на dedupe key: проигравший конкурент получает duplicate и выходит.
	entry := domain.LedgerEntry{
		ID:          uuid.NewString(),
		OrderID:     order.ID,
		Type:        domain.LedgerEntrySale,
		Direction:   domain.LedgerDirectionIn,
		AmountMinor: order.AmountMinor,
		Currency:    order.Currency,
		Metadata:    mergeMetadata(metadata, provider, providerEventID),
		DedupeKey:   dedupeKey,
	}
	if _, err := o.ledger.Append(entry); err != nil {
		if errors.Is(err, domain.ErrLedgerDuplicate) {
			logger.Debug("concurrent finalization won the ledger insert")
			if o.metrics != nil {
				o.metrics.RecordFinalizeDuplicate()
			}
			return Result{AlreadyFinalized: true, Order: order}, nil
		}
		if o.metrics != nil {
			o.metrics.RecordFinalizeFailed()
		}
		return Result{}, fmt.Errorf("append sale ledger entry: %w", err)
	}

	order = o.markPaid(order, logger)

	// Шаг 5: выплаты — отцепленный побочный эффект со своей границей ошибок.
	o.spawn("payouts", orderID, func() error {
		payouts, err := o.payouts.Generate(orderID)
		if err != nil {
			return err
		}
		if o.metrics != nil {
			o.metrics.RecordPayoutsGenerated(len(payouts))
		}
		return nil
	})

	// Шаг 6: аудит и письмо — best-effort, никогда не валят финализацию.
	o.appendAudit(domain.AuditEntry{
		Action:     "order.finalized",
		EntityType: "order",
		EntityID:   order.ID,
		Metadata:   mergeMetadata(metadata, provider, providerEventID),
		Severity:   domain.AuditSeverityInfo,
	})

	if o.notifier != nil {
		confirmed := order
		o.spawn("email", orderID, func() error {
			return o.notifier.SendOrderConfirmation(confirmed)
		})
	}

	o.publishOrderEvent(kafka.EventTypeOrderFinalized, order.ID, map[string]interface{}{
		"amount":   order.AmountMinor,
		"currency": order.Currency,
		"provider": provider,
	})

	logger.Info("order finalized")
	if o.metrics != nil {
		o.metrics.RecordFinalizeCompleted()
	}

	return Result{Order: order}, nil
}

// markPaid переводит заказ в confirmed/paid с явным намерением: отменённый
// или возвращённый заказ не воскрешается, а помечается на ручной разбор.
func (o *orchestrator) markPaid(order domain.Order, logger *log.Entry) domain.Order {
	paid := domain.PaymentStatusPaid
	patch := domain.OrderPatch{PaymentStatus: &paid}

	if order.CanTransitionTo(domain.OrderStatusConfirmed) {
		confirmed := domain.OrderStatusConfirmed
		patch.Status = &confirmed
		order.Status = confirmed
	} else if order.Status != domain.OrderStatusConfirmed {
		review := true
		note := fmt.Sprintf("payment captured for order in status %q", order.Status)
		patch.ManualReview = &review
		patch.ManualReviewNote = &note
		order.ManualReview = true
		order.ManualReviewNote = note
		logger.WithField("status", order.Status).Warn("payment captured for non-pending order")
	}

	if err := o.orders.Update(order.ID, patch); err != nil {
		logger.WithError(err).Error("failed to mark order paid")
	}
	order.PaymentStatus = paid
	return order
}

// Wait блокируется до завершения всех отцепленных побочных эффектов.
func (o *orchestrator) Wait() {
	o.sideEffects.Wait()
}

// spawn запускает best-effort побочный эффект в отдельной горутине с
// собственной границей ошибок: паника и ошибка логируются и попадают в
// метрики, но вызывающий код их не ждёт и не видит.
func (o *orchestrator) spawn(effect, orderID string, fn func() error) {
	o.sideEffects.Add(1)
	go func() {
		defer o.sideEffects.Done()
		defer func() {
			if r := recover(); r != nil {
				o.logger.WithFields(log.Fields{
					"effect":   effect,
					"order_id": orderID,
					"panic":    r,
				}).Error("side effect panicked")
				if o.metrics != nil {
					o.metrics.RecordSideEffectFailure(effect)
				}
			}
		}()

		if err := fn(); err != nil {
			o.logger.WithError(err).WithFields(log.Fields{
				"effect":   effect,
				"order_id": orderID,
			}).Warn("side effect failed")
			if o.metrics != nil {
				o.metrics.RecordSideEffectFailure(effect)
			}
		}
	}()
}

func (o *orchestrator) appendAudit(entry domain.AuditEntry) {
	if o.audit == nil {
		return
	}
	if err := o.audit.Append(entry); err != nil {
		o.logger.WithError(err).WithFields(log.Fields{
			"action":    entry.Action,
			"entity_id": entry.EntityID,
		}).Warn("failed to append audit entry")
		if o.metrics != nil {
			o.metrics.RecordSideEffectFailure("audit")
		}
	}
}

func (o *orchestrator) publishOrderEvent(eventType kafka.EventType, orderID string, metadata map[string]interface{}) {
	if o.producer == nil {
		return
	}
	if err := o.producer.PublishOrderEvent(eventType, orderID, metadata); err != nil {
		o.logger.WithError(err).WithFields(log.Fields{
			"event_type": eventType,
			"order_id":   orderID,
		}).Warn("failed to publish order event to kafka")
		if o.metrics != nil {
			o.metrics.RecordSideEffectFailure("kafka")
		}
	}
}

// EventTypeForTrigger достаёт тип события из метаданных триггера,
// по умолчанию считая его подтверждением оплаты.
func EventTypeForTrigger(metadata map[string]string) string {
	if metadata != nil {
		if t, ok := metadata["event_type"]; ok && t != "" {
			return t
		}
	}
	return domain.EventPaymentSucceeded
}

func mergeMetadata(metadata map[string]string, provider, providerEventID string) map[string]string {
	merged := make(map[string]string, len(metadata)+2)
	for k, v := range metadata {
		merged[k] = v
	}
	merged["provider"] = provider
	merged["provider_event_id"] = providerEventID
	return merged
}

var _ Orchestrator = (*orchestrator)(nil)
