package domain

import "errors"

var (
	// Ошибка отсутствующего email покупателя.
	ErrCustomerEmailRequired = errors.New("customer email is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match items sum")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderAlreadyExists возвращается при создании заказа с занятым ID.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrTransitionInvalid — недопустимый переход статуса заказа.
	ErrTransitionInvalid = errors.New("invalid order status transition")

	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrInsufficientStock — остатка не хватило для условного декремента.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrLedgerDuplicate — запись с таким dedupe key уже существует.
	// Это не сбой: конкурирующая финализация уже провела запись.
	ErrLedgerDuplicate = errors.New("ledger entry with dedupe key already exists")
	// ErrLedgerDedupeKeyRequired — запись без ключа идемпотентности.
	ErrLedgerDedupeKeyRequired = errors.New("ledger dedupe key is required")
	// ErrLedgerDirectionInvalid — неизвестное направление движения средств.
	ErrLedgerDirectionInvalid = errors.New("ledger direction must be in or out")
	// ErrLedgerAmountSignMismatch — знак суммы не согласован с направлением.
	ErrLedgerAmountSignMismatch = errors.New("ledger amount sign does not match direction")
	// ErrLedgerEntryNotFound возвращается, если запись ledger не найдена.
	ErrLedgerEntryNotFound = errors.New("ledger entry not found")

	// ErrEventDuplicate — событие (provider, provider_event_id) уже записано.
	ErrEventDuplicate = errors.New("order event already recorded")
	// ErrEventNotFound возвращается, если событие не найдено в журнале.
	ErrEventNotFound = errors.New("order event not found")
	// ErrEventProviderRequired — событие без имени провайдера.
	ErrEventProviderRequired = errors.New("event provider is required")
	// ErrEventProviderIDRequired — событие без идентификатора провайдера.
	ErrEventProviderIDRequired = errors.New("provider event id is required")
	// ErrEventTypeRequired — событие без типа.
	ErrEventTypeRequired = errors.New("event type is required")

	// ErrPayoutNotFound возвращается, если выплата не найдена.
	ErrPayoutNotFound = errors.New("payout not found")

	// ErrRefundAmountInvalid — сумма возврата вне диапазона (0, total].
	ErrRefundAmountInvalid = errors.New("refund amount must be positive and not exceed order total")
	// ErrOrderNotRefundable — возврат по заказу без подтверждённой оплаты.
	ErrOrderNotRefundable = errors.New("order has no captured payment to refund")

	// Ошибки версионированного payload позиций заказа.
	ErrLineItemsPayloadEmpty   = errors.New("line items payload is empty")
	ErrLineItemsPayloadInvalid = errors.New("line items payload is neither array nor object")
	ErrLineItemsVersionUnknown = errors.New("unknown line items schema version")
)

// IsDuplicate проверяет, является ли ошибка дубликатом идемпотентной записи.
// Дубликат означает "кто-то уже сделал эту работу" и трактуется как успех.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrLedgerDuplicate) || errors.Is(err, ErrEventDuplicate)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}
