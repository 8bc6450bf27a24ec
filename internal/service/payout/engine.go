package payout

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// FaultInjector позволяет тестовым сборкам симулировать сбой генерации
// выплат. Передаётся явно через опцию, а не через глобальный флаг.
type FaultInjector func(orderID string) error

// Options задаёт параметры Engine.
type Options struct {
	Logger *log.Entry
	Fault  FaultInjector
}

// Option настраивает Engine.
type Option func(*Options)

// WithLogger задаёт logger для движка выплат.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithFaultInjector задаёт инжектор сбоев для тестов.
func WithFaultInjector(fault FaultInjector) Option {
	return func(opts *Options) {
		opts.Fault = fault
	}
}

// Engine вычисляет и сохраняет партнёрские выплаты по подтверждённому заказу.
//
// Идемпотентность — pre-check по существующим выплатам заказа, не unique
// constraint: гонка двух конкурентных генераций может дать дубль, который
// разбирается операционно. Для строк ledger такой слабины нет — их движок
// не пишет вовсе, единственный источник sale-записи — оркестратор финализации.
type Engine struct {
	orders  domain.OrderRepository
	payouts domain.PayoutRepository
	rules   domain.PayoutRuleRepository
	logger  *log.Entry
	fault   FaultInjector
}

// NewEngine создаёт движок выплат.
func NewEngine(
	orders domain.OrderRepository,
	payouts domain.PayoutRepository,
	rules domain.PayoutRuleRepository,
	options ...Option,
) *Engine {
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "payout-engine")
	}

	return &Engine{
		orders:  orders,
		payouts: payouts,
		rules:   rules,
		logger:  logger,
		fault:   opts.Fault,
	}
}

// Generate создаёт pending-выплаты для заказа по действующим правилам.
// Повторный вызов для заказа с уже существующими выплатами — no-op,
// возвращающий существующий набор.
func (e *Engine) Generate(orderID string) ([]domain.Payout, error) {
	if e.fault != nil {
		if err := e.fault(orderID); err != nil {
			return nil, fmt.Errorf("payout fault injected: %w", err)
		}
	}

	existing, err := e.payouts.ListByOrder(orderID)
	if err != nil {
		return nil, fmt.Errorf("check existing payouts: %w", err)
	}
	if len(existing) > 0 {
		e.logger.WithField("order_id", orderID).Debug("payouts already exist, skipping generation")
		return existing, nil
	}

	order, err := e.orders.Get(orderID)
	if err != nil {
		return nil, fmt.Errorf("load order for payouts: %w", err)
	}

	now := time.Now().UTC()
	rules, err := e.rules.ListActive(now)
	if err != nil {
		return nil, fmt.Errorf("load payout rules: %w", err)
	}

	effective := domain.EffectiveRules(rules, now)
	if len(effective) == 0 {
		e.logger.WithField("order_id", orderID).Debug("no payout rules in effect")
		return nil, nil
	}

	payouts := make([]domain.Payout, 0, len(effective))
	for _, rule := range effective {
		amount := rule.Amount(order.AmountMinor)
		if amount <= 0 {
			continue
		}
		payouts = append(payouts, domain.Payout{
			ID:          uuid.NewString(),
			OrderID:     order.ID,
			PartnerCode: rule.PartnerCode,
			RuleID:      rule.ID,
			AmountMinor: amount,
			Currency:    order.Currency,
			Status:      domain.PayoutStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	if len(payouts) == 0 {
		return nil, nil
	}

	if err := e.payouts.CreateBatch(payouts); err != nil {
		return nil, fmt.Errorf("persist payouts: %w", err)
	}

	e.logger.WithFields(log.Fields{
		"order_id": orderID,
		"count":    len(payouts),
	}).Info("payouts generated")

	return payouts, nil
}
