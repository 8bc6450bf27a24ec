package refund

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// Service применяет возвраты и chargeback'и, никогда не удаляя исходный
// заказ или sale-запись: деньги движутся только компенсирующими записями.
type Service struct {
	orders   domain.OrderRepository
	ledger   domain.LedgerRepository
	events   domain.EventRepository
	payouts  domain.PayoutRepository
	audit    domain.AuditRepository
	logger   *log.Entry
	producer *kafka.Producer // опциональный Kafka producer
}

// NewService создаёт сервис возвратов.
func NewService(
	orders domain.OrderRepository,
	ledger domain.LedgerRepository,
	events domain.EventRepository,
	payouts domain.PayoutRepository,
	audit domain.AuditRepository,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "refund")
	}
	return &Service{
		orders:  orders,
		ledger:  ledger,
		events:  events,
		payouts: payouts,
		audit:   audit,
		logger:  logger,
	}
}

// NewServiceWithKafka создаёт сервис возвратов с публикацией событий в Kafka.
func NewServiceWithKafka(
	orders domain.OrderRepository,
	ledger domain.LedgerRepository,
	events domain.EventRepository,
	payouts domain.PayoutRepository,
	audit domain.AuditRepository,
	producer *kafka.Producer,
	logger *log.Entry,
) *Service {
	s := NewService(orders, ledger, events, payouts, audit, logger)
	s.producer = producer
	return s
}

// ApplyRefund проводит возврат по заказу.
//
// Идемпотентность — по журналу событий (provider=manual, providerEventID):
// уже обработанный возврат возвращает успех без повторного применения.
// Сумма валидируется до любых записей: 0 < amount <= total.
func (s *Service) ApplyRefund(orderID string, amountMinor int64, providerEventID, reason string) error {
	logger := s.logger.WithFields(log.Fields{
		"order_id": orderID,
		"event_id": providerEventID,
	})

	if _, err := s.events.Get(domain.ProviderManual, providerEventID); err == nil {
		logger.Debug("refund already processed")
		return nil
	} else if !errors.Is(err, domain.ErrEventNotFound) {
		return fmt.Errorf("check refund event: %w", err)
	}

	order, err := s.orders.Get(orderID)
	if err != nil {
		return err
	}

	// Возвращать можно только захваченный платёж: без него отрицательная
	// запись в ledger не имеет парной продажи, а переход в refunded
	// разрешён только из оплаченных статусов.
	if order.PaymentStatus != domain.PaymentStatusPaid {
		return fmt.Errorf("%w: payment status %q", domain.ErrOrderNotRefundable, order.PaymentStatus)
	}

	if amountMinor <= 0 || amountMinor > order.AmountMinor {
		return fmt.Errorf("%w: got %d, order total %d", domain.ErrRefundAmountInvalid, amountMinor, order.AmountMinor)
	}

	if _, err := s.events.Record(domain.OrderEvent{
		OrderID:         orderID,
		Provider:        domain.ProviderManual,
		ProviderEventID: providerEventID,
		Type:            domain.EventRefundRequested,
	}); err != nil {
		if errors.Is(err, domain.ErrEventDuplicate) {
			// Конкурентный вызов записал событие первым — возврат уже в работе.
			logger.Debug("concurrent refund recorded the event first")
			return nil
		}
		return fmt.Errorf("record refund event: %w", err)
	}

	entry := domain.LedgerEntry{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		Type:        domain.LedgerEntryRefund,
		Direction:   domain.LedgerDirectionOut,
		AmountMinor: -amountMinor,
		Currency:    order.Currency,
		Metadata:    map[string]string{"reason": reason},
		DedupeKey:   domain.RefundDedupeKey(orderID, providerEventID),
	}
	if _, err := s.ledger.Append(entry); err != nil && !errors.Is(err, domain.ErrLedgerDuplicate) {
		return fmt.Errorf("append refund ledger entry: %w", err)
	}

	if cancelled, err := s.payouts.CancelPending(orderID); err != nil {
		logger.WithError(err).Warn("failed to cancel pending payouts")
	} else if cancelled > 0 {
		logger.WithField("cancelled", cancelled).Info("pending payouts cancelled")
	}

	refunded := domain.OrderStatusRefunded
	if err := s.orders.Update(orderID, domain.OrderPatch{
		Status:            &refunded,
		RefundAmountMinor: &amountMinor,
		RefundReason:      &reason,
	}); err != nil {
		logger.WithError(err).Error("failed to mark order refunded")
	}

	s.appendAudit(domain.AuditEntry{
		Action:     "order.refunded",
		EntityType: "order",
		EntityID:   orderID,
		Metadata: map[string]string{
			"amount_minor": fmt.Sprintf("%d", amountMinor),
			"reason":       reason,
		},
		Severity: domain.AuditSeverityImportant,
	})
	s.publishOrderEvent(kafka.EventTypeOrderRefunded, orderID, map[string]interface{}{
		"amount": amountMinor,
		"reason": reason,
	})

	logger.WithField("amount_minor", amountMinor).Info("refund applied")
	return nil
}

// ApplyChargeback фиксирует диспут провайдера: отрицательные записи ledger
// на сумму и комиссию, флаг ручного разбора, критический аудит.
//
// Выплаты не отменяются и сток не возвращается автоматически —
// chargeback требует решения человека; пути «отклонить chargeback» нет.
func (s *Service) ApplyChargeback(orderID, providerEventID string, amountMinor, feeMinor int64) error {
	logger := s.logger.WithFields(log.Fields{
		"order_id": orderID,
		"event_id": providerEventID,
	})

	if _, err := s.events.Get(domain.ProviderStripe, providerEventID); err == nil {
		logger.Debug("chargeback already processed")
		return nil
	} else if !errors.Is(err, domain.ErrEventNotFound) {
		return fmt.Errorf("check chargeback event: %w", err)
	}

	order, err := s.orders.Get(orderID)
	if err != nil {
		return err
	}

	if _, err := s.events.Record(domain.OrderEvent{
		OrderID:         orderID,
		Provider:        domain.ProviderStripe,
		ProviderEventID: providerEventID,
		Type:            domain.EventChargebackCreated,
	}); err != nil {
		if errors.Is(err, domain.ErrEventDuplicate) {
			logger.Debug("concurrent chargeback recorded the event first")
			return nil
		}
		return fmt.Errorf("record chargeback event: %w", err)
	}

	chargeback := domain.LedgerEntry{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		Type:        domain.LedgerEntryChargeback,
		Direction:   domain.LedgerDirectionOut,
		AmountMinor: -amountMinor,
		Currency:    order.Currency,
		Metadata:    map[string]string{"provider_event_id": providerEventID},
		DedupeKey:   domain.ChargebackDedupeKey(orderID, providerEventID),
	}
	if _, err := s.ledger.Append(chargeback); err != nil && !errors.Is(err, domain.ErrLedgerDuplicate) {
		return fmt.Errorf("append chargeback ledger entry: %w", err)
	}

	if feeMinor > 0 {
		fee := domain.LedgerEntry{
			ID:          uuid.NewString(),
			OrderID:     orderID,
			Type:        domain.LedgerEntryChargebackFee,
			Direction:   domain.LedgerDirectionOut,
			AmountMinor: -feeMinor,
			Currency:    order.Currency,
			Metadata:    map[string]string{"provider_event_id": providerEventID},
			DedupeKey:   domain.ChargebackFeeDedupeKey(orderID, providerEventID),
		}
		if _, err := s.ledger.Append(fee); err != nil && !errors.Is(err, domain.ErrLedgerDuplicate) {
			return fmt.Errorf("append chargeback fee ledger entry: %w", err)
		}
	}

	review := true
	note := fmt.Sprintf("chargeback received (event %s)", providerEventID)
	if err := s.orders.Update(orderID, domain.OrderPatch{
		ManualReview:     &review,
		ManualReviewNote: &note,
	}); err != nil {
		logger.WithError(err).Error("failed to flag order after chargeback")
	}

	s.appendAudit(domain.AuditEntry{
		Action:     "order.chargeback",
		EntityType: "order",
		EntityID:   orderID,
		Metadata: map[string]string{
			"amount_minor": fmt.Sprintf("%d", amountMinor),
			"fee_minor":    fmt.Sprintf("%d", feeMinor),
		},
		Severity: domain.AuditSeverityCritical,
	})
	s.publishOrderEvent(kafka.EventTypeOrderChargeback, orderID, map[string]interface{}{
		"amount": amountMinor,
		"fee":    feeMinor,
	})

	logger.WithFields(log.Fields{
		"amount_minor": amountMinor,
		"fee_minor":    feeMinor,
	}).Warn("chargeback recorded, order flagged for manual review")
	return nil
}

func (s *Service) appendAudit(entry domain.AuditEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(entry); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"action":    entry.Action,
			"entity_id": entry.EntityID,
		}).Warn("failed to append audit entry")
	}
}

func (s *Service) publishOrderEvent(eventType kafka.EventType, orderID string, metadata map[string]interface{}) {
	if s.producer == nil {
		return
	}
	if err := s.producer.PublishOrderEvent(eventType, orderID, metadata); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"event_type": eventType,
			"order_id":   orderID,
		}).Warn("failed to publish order event to kafka")
	}
}
