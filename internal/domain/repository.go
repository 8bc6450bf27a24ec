package domain

import "time"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ErrOrderAlreadyExists, если ID занят.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// ListByCustomer возвращает заказы покупателя по email, новые первыми.
	ListByCustomer(email string, limit int) ([]Order, error)
	// List возвращает отфильтрованную выборку для операционной панели.
	List(filter OrderFilter) ([]Order, error)
	// Update применяет частичный patch: меняются только заполненные поля.
	Update(id string, patch OrderPatch) error
	// MarkStockDeducted условно устанавливает stock_deducted_at одной атомарной
	// записью: только если маркер ещё NULL. Возвращает true, если маркер
	// установил именно этот вызов; false — маркер уже стоял.
	MarkStockDeducted(id string, at time.Time) (bool, error)
	// CancelAbandoned отменяет брошенные заказы одним bulk-условным UPDATE:
	// pending, unpaid, не COD, сток не списан, созданы раньше createdBefore.
	// Фильтр вычисляется тем же атомарным statement'ом, что и запись, поэтому
	// заказ, оплаченный между выборкой и коммитом, под условие не попадает.
	CancelAbandoned(createdBefore time.Time) (int, error)
}

// ProductRepository описывает хранилище товаров и их остатков.
type ProductRepository interface {
	Create(product Product) error
	// Get возвращает товар или ErrProductNotFound.
	Get(id string) (Product, error)
	// DeductStock выполняет атомарный условный декремент остатка: списывает
	// qty только если текущий остаток >= qty, одним compare-and-decrement
	// statement'ом. Возвращает ErrInsufficientStock, если условие не выполнено.
	DeductStock(productID string, qty int32) error
	// Restock атомарно увеличивает остаток (приёмка товара, ручная коррекция).
	Restock(productID string, qty int32) error
}

// LedgerRepository описывает append-only хранилище денежных движений.
// Записи никогда не обновляются и не удаляются.
type LedgerRepository interface {
	// Append добавляет запись. Уникальность dedupe key энфорсится хранилищем;
	// коллизия возвращается как ErrLedgerDuplicate и трактуется вызывающим
	// кодом как "конкурент уже финализировал", не как сбой.
	Append(entry LedgerEntry) (LedgerEntry, error)
	// GetByDedupeKey возвращает запись по ключу или ErrLedgerEntryNotFound.
	GetByDedupeKey(key string) (LedgerEntry, error)
	// ListByOrder возвращает записи заказа, новые первыми.
	ListByOrder(orderID string) ([]LedgerEntry, error)
	// ListAll возвращает записи для экспорта, новые первыми.
	ListAll(limit int) ([]LedgerEntry, error)
}

// EventRepository описывает append-only журнал принятых внешних событий.
type EventRepository interface {
	// Record сохраняет событие insert-if-absent по (provider, provider_event_id).
	// Повторная запись возвращает ErrEventDuplicate.
	Record(event OrderEvent) (OrderEvent, error)
	// Get возвращает событие по паре (provider, provider_event_id).
	Get(provider, providerEventID string) (OrderEvent, error)
	// ListByOrder возвращает события заказа, новые первыми.
	ListByOrder(orderID string) ([]OrderEvent, error)
}

// PayoutRepository описывает хранилище партнёрских выплат.
type PayoutRepository interface {
	// CreateBatch сохраняет набор выплат одного заказа.
	CreateBatch(payouts []Payout) error
	// ListByOrder возвращает выплаты заказа.
	ListByOrder(orderID string) ([]Payout, error)
	// CancelPending переводит все pending-выплаты заказа в cancelled и
	// возвращает число затронутых строк.
	CancelPending(orderID string) (int, error)
	// MarkPaid помечает выплату оплаченной.
	MarkPaid(id string) error
	// ListAll возвращает выплаты для экспорта, новые первыми.
	ListAll(limit int) ([]Payout, error)
}

// PayoutRuleRepository описывает append-only набор правил распределения выручки.
type PayoutRuleRepository interface {
	Create(rule PayoutRule) error
	// ListActive возвращает правила с valid_from <= at; выбор действующего
	// правила на партнёра делает domain.EffectiveRules.
	ListActive(at time.Time) ([]PayoutRule, error)
}

// AuditRepository описывает append-only журнал аудита.
type AuditRepository interface {
	Append(entry AuditEntry) error
	ListByEntity(entityType, entityID string, limit int) ([]AuditEntry, error)
}
