package domain

// WebhookEvent — нормализованное событие платёжного провайдера.
// Подпись payload уже проверена провайдерским клиентом: сюда попадают
// только доверенные события.
type WebhookEvent struct {
	Provider        string
	ID              string
	Type            string
	OrderID         string
	PaymentIntentID string
	AmountMinor     int64
	// FeeMinor заполняется для chargeback-событий (комиссия за диспут).
	FeeMinor int64
	Currency string
	Raw      []byte
}

// SessionStatus — ответ провайдера на запрос состояния checkout-сессии.
type SessionStatus struct {
	SessionID       string
	OrderID         string
	PaymentIntentID string
	// EventID — детерминированный идентификатор для журнала событий,
	// выводится провайдером из сессии (у одного poll'а и webhook'а он разный,
	// но ledger dedupe key всё равно один на заказ).
	EventID string
	Paid    bool
}

// PaymentProvider описывает взаимодействие с платёжным провайдером.
// Доставка webhook'ов at-least-once, возможны дубликаты и нарушение порядка.
type PaymentProvider interface {
	// ParseWebhook проверяет подпись и разбирает payload callback'а.
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
	// VerifySession спрашивает провайдера, оплачена ли checkout-сессия.
	VerifySession(sessionID string) (SessionStatus, error)
}

// EmailNotifier отправляет письма покупателю. Вызовы fire-and-forget:
// сбой логируется и никогда не блокирует переходы состояния заказа.
type EmailNotifier interface {
	// SendOrderConfirmation отправляет подтверждение финализированного заказа.
	SendOrderConfirmation(order Order) error
	// SendStatusUpdate отправляет уведомление о смене статуса.
	SendStatusUpdate(order Order, previous OrderStatus) error
}
