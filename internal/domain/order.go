package domain

import "time"

// OrderStatus описывает жизненный цикл заказа в витрине.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, оплата ещё не подтверждена.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed — оплата подтверждена, заказ финализирован.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ доставлен клиенту.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён до оплаты (вручную или sweeper'ом).
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded — по заказу проведён возврат средств.
	OrderStatusRefunded OrderStatus = "refunded"
)

// PaymentStatus описывает состояние оплаты заказа.
type PaymentStatus string

const (
	PaymentStatusUnpaid    PaymentStatus = "unpaid"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// PaymentMethod описывает способ оплаты заказа.
type PaymentMethod string

const (
	// PaymentMethodCard — онлайн-оплата через платёжного провайдера.
	PaymentMethodCard PaymentMethod = "card"
	// PaymentMethodCOD — оплата при получении; такие заказы sweeper не трогает.
	PaymentMethodCOD PaymentMethod = "cod"
)

// withdrawalWindow — срок отказа от договора по праву ЕС (14 дней с момента создания).
const withdrawalWindow = 14 * 24 * time.Hour

// Customer хранит контактные и доставочные данные покупателя.
type Customer struct {
	Name    string
	Email   string
	Phone   string
	Street  string
	City    string
	Zip     string
	Country string
}

// Order агрегирует состояние заказа: позиции, суммы, статусы и маркер списания стока.
type Order struct {
	ID       string
	Customer Customer
	// Items — позиции заказа, декодированные из версионированного JSON-payload.
	Items []LineItem
	// Shipping присутствует только у заказов с payload схемы v2.
	Shipping *ShippingInfo
	// AmountMinor — итоговая сумма в минимальных денежных единицах (геллеры).
	AmountMinor int64
	Currency    string

	Status        OrderStatus
	PaymentStatus PaymentStatus
	PaymentMethod PaymentMethod
	// PaymentIntentID — внешний идентификатор платежа у провайдера.
	PaymentIntentID string

	// StockDeductedAt устанавливается не более одного раза и никогда не сбрасывается.
	// Его наличие — единственный источник истины о том, что сток по заказу списан.
	StockDeductedAt *time.Time

	// ManualReview поднимается, когда заказ требует ручного разбора
	// (нехватка стока после захвата платежа, chargeback).
	ManualReview     bool
	ManualReviewNote string

	RefundAmountMinor int64
	RefundReason      string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StockCommitted сообщает, был ли сток по заказу уже списан.
func (o *Order) StockCommitted() bool {
	return o.StockDeductedAt != nil
}

// WithdrawalDeadline возвращает крайний срок отказа от заказа по 14-дневному
// правилу ЕС. Срок информационный и программно не энфорсится.
func (o *Order) WithdrawalDeadline() time.Time {
	return o.CreatedAt.Add(withdrawalWindow)
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.Customer.Email == "" {
		errs = append(errs, ErrCustomerEmailRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	// Сверяем сумму заказа с суммой позиций: qty * price.
	var calc int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += int64(item.Qty) * item.UnitPriceMinor
	}
	if calc != o.AmountMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// CanTransitionTo проверяет допустимость перехода статуса заказа.
// Отменённый или возвращённый заказ нельзя неявно воскресить.
func (o *Order) CanTransitionTo(next OrderStatus) bool {
	switch o.Status {
	case OrderStatusPending:
		return next == OrderStatusConfirmed || next == OrderStatusCancelled
	case OrderStatusConfirmed:
		return next == OrderStatusShipped || next == OrderStatusRefunded
	case OrderStatusShipped:
		return next == OrderStatusDelivered || next == OrderStatusRefunded
	case OrderStatusDelivered:
		return next == OrderStatusRefunded
	default:
		return false
	}
}

// OrderPatch описывает частичное обновление заказа: меняются только
// заполненные поля. Update никогда не трогает stock_deducted_at —
// для маркера есть отдельная условная запись MarkStockDeducted.
type OrderPatch struct {
	Status            *OrderStatus
	PaymentStatus     *PaymentStatus
	PaymentIntentID   *string
	ManualReview      *bool
	ManualReviewNote  *string
	RefundAmountMinor *int64
	RefundReason      *string
}

// OrderFilter задаёт фильтры операционной выборки заказов.
type OrderFilter struct {
	Status        OrderStatus
	PaymentStatus PaymentStatus
	ManualReview  *bool
	Limit         int
	Offset        int
}
