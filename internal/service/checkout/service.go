package checkout

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// ItemInput — запрошенная позиция при оформлении заказа.
type ItemInput struct {
	ProductID string
	Qty       int32
	Size      string
}

// CreateOrderInput — черновик заказа от витрины.
type CreateOrderInput struct {
	Customer      domain.Customer
	Items         []ItemInput
	Shipping      *domain.ShippingInfo
	PaymentMethod domain.PaymentMethod
	Currency      string
}

// Service принимает черновики заказов. Проверка стока при создании —
// только чтение: списание откладывается до подтверждения оплаты.
type Service struct {
	orders   domain.OrderRepository
	products domain.ProductRepository
	audit    domain.AuditRepository
	logger   *log.Entry
	producer *kafka.Producer // опциональный Kafka producer
}

// NewService создаёт сервис оформления заказов.
func NewService(
	orders domain.OrderRepository,
	products domain.ProductRepository,
	audit domain.AuditRepository,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}
	return &Service{
		orders:   orders,
		products: products,
		audit:    audit,
		logger:   logger,
	}
}

// NewServiceWithKafka создаёт сервис оформления с публикацией событий в Kafka.
func NewServiceWithKafka(
	orders domain.OrderRepository,
	products domain.ProductRepository,
	audit domain.AuditRepository,
	producer *kafka.Producer,
	logger *log.Entry,
) *Service {
	s := NewService(orders, products, audit, logger)
	s.producer = producer
	return s
}

// CreateOrder создаёт заказ в статусе pending/unpaid, фиксируя цены на
// момент оформления. Недоступный товар отклоняет заказ целиком.
func (s *Service) CreateOrder(input CreateOrderInput) (domain.Order, error) {
	if len(input.Items) == 0 {
		return domain.Order{}, domain.ErrItemsRequired
	}

	currency := input.Currency
	if currency == "" {
		currency = "CZK"
	}
	method := input.PaymentMethod
	if method == "" {
		method = domain.PaymentMethodCard
	}

	items := make([]domain.LineItem, 0, len(input.Items))
	var total int64
	for _, req := range input.Items {
		if req.Qty <= 0 {
			return domain.Order{}, domain.ErrItemQtyInvalid
		}
		product, err := s.products.Get(req.ProductID)
		if err != nil {
			return domain.Order{}, fmt.Errorf("look up product %s: %w", req.ProductID, err)
		}
		// Read-only проверка доступности; резервирования здесь нет.
		if product.Stock < int64(req.Qty) {
			return domain.Order{}, fmt.Errorf("product %s: %w", req.ProductID, domain.ErrInsufficientStock)
		}
		items = append(items, domain.LineItem{
			ProductID:      product.ID,
			Name:           product.Name,
			Size:           req.Size,
			Qty:            req.Qty,
			UnitPriceMinor: product.PriceMinor,
		})
		total += int64(req.Qty) * product.PriceMinor
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:            uuid.NewString(),
		Customer:      input.Customer,
		Items:         items,
		Shipping:      input.Shipping,
		AmountMinor:   total,
		Currency:      currency,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusUnpaid,
		PaymentMethod: method,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errs[0]
	}

	if err := s.orders.Create(order); err != nil {
		return domain.Order{}, fmt.Errorf("persist order: %w", err)
	}

	if s.audit != nil {
		if err := s.audit.Append(domain.AuditEntry{
			Action:     "order.created",
			EntityType: "order",
			EntityID:   order.ID,
			Metadata: map[string]string{
				"amount_minor": fmt.Sprintf("%d", order.AmountMinor),
				"items":        fmt.Sprintf("%d", len(order.Items)),
			},
			Severity: domain.AuditSeverityInfo,
		}); err != nil {
			s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to append audit entry")
		}
	}

	if s.producer != nil {
		if err := s.producer.PublishOrderEvent(kafka.EventTypeOrderCreated, order.ID, map[string]interface{}{
			"amount":   order.AmountMinor,
			"currency": order.Currency,
		}); err != nil {
			s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to publish order event to kafka")
		}
	}

	s.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"amount_minor": order.AmountMinor,
	}).Info("order created")

	return order, nil
}
