package domain

import "time"

// Провайдеры внешних событий. Рефанды проводятся вручную оператором,
// поэтому используют собственный псевдо-провайдер.
const (
	ProviderStripe = "stripe"
	ProviderManual = "manual"
)

// Типы внешних событий, принимаемых от платёжного провайдера.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventPaymentSucceeded  = "payment_intent.succeeded"
	EventPaymentFailed     = "payment_intent.payment_failed"
	EventChargebackCreated = "charge.dispute.created"
	EventRefundRequested   = "refund.requested"
)

// OrderEvent — append-only запись принятого внешнего события.
// Уникальность пары (provider, provider_event_id) — граница идемпотентности
// для side effects, запускаемых напрямую callback'ами провайдера:
// повторная запись того же события — no-op, а не ошибка.
type OrderEvent struct {
	ID              string
	OrderID         string
	Provider        string
	ProviderEventID string
	Type            string
	Payload         []byte
	CreatedAt       time.Time
}

// ValidateInvariants проверяет обязательные поля события.
func (e *OrderEvent) ValidateInvariants() []error {
	var errs []error

	if e.Provider == "" {
		errs = append(errs, ErrEventProviderRequired)
	}
	if e.ProviderEventID == "" {
		errs = append(errs, ErrEventProviderIDRequired)
	}
	if e.Type == "" {
		errs = append(errs, ErrEventTypeRequired)
	}

	return errs
}
