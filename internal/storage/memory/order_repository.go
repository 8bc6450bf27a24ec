package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// orderRepositoryInMemory — простая in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Order
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items: make(map[string]domain.Order),
	}
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *orderRepositoryInMemory) Create(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.ErrOrderAlreadyExists
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.items[order.ID] = order
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

// ListByCustomer возвращает заказы покупателя, новые первыми.
func (r *orderRepositoryInMemory) ListByCustomer(email string, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if order.Customer.Email != email {
			continue
		}
		result = append(result, order)
	}

	sortOrders(result)

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// List возвращает выборку по операционным фильтрам.
func (r *orderRepositoryInMemory) List(filter domain.OrderFilter) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if filter.PaymentStatus != "" && order.PaymentStatus != filter.PaymentStatus {
			continue
		}
		if filter.ManualReview != nil && order.ManualReview != *filter.ManualReview {
			continue
		}
		result = append(result, order)
	}

	sortOrders(result)

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []domain.Order{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}

	return result, nil
}

// Update применяет частичный patch к заказу.
func (r *orderRepositoryInMemory) Update(id string, patch domain.OrderPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[id]
	if !ok {
		return domain.ErrOrderNotFound
	}

	if patch.Status != nil {
		order.Status = *patch.Status
	}
	if patch.PaymentStatus != nil {
		order.PaymentStatus = *patch.PaymentStatus
	}
	if patch.PaymentIntentID != nil {
		order.PaymentIntentID = *patch.PaymentIntentID
	}
	if patch.ManualReview != nil {
		order.ManualReview = *patch.ManualReview
	}
	if patch.ManualReviewNote != nil {
		order.ManualReviewNote = *patch.ManualReviewNote
	}
	if patch.RefundAmountMinor != nil {
		order.RefundAmountMinor = *patch.RefundAmountMinor
	}
	if patch.RefundReason != nil {
		order.RefundReason = *patch.RefundReason
	}

	order.Version++
	order.UpdatedAt = time.Now().UTC()
	r.items[id] = order
	return nil
}

// MarkStockDeducted условно устанавливает маркер списания стока.
// Проверка и запись выполняются под одной блокировкой, повторяя семантику
// условного UPDATE в PostgreSQL.
func (r *orderRepositoryInMemory) MarkStockDeducted(id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[id]
	if !ok {
		return false, domain.ErrOrderNotFound
	}
	if order.StockDeductedAt != nil {
		return false, nil
	}

	stamp := at
	order.StockDeductedAt = &stamp
	order.Version++
	order.UpdatedAt = time.Now().UTC()
	r.items[id] = order
	return true, nil
}

// CancelAbandoned отменяет брошенные заказы. Предикат и запись выполняются
// под одной блокировкой — как единый атомарный statement в PostgreSQL.
func (r *orderRepositoryInMemory) CancelAbandoned(createdBefore time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cancelled := 0
	now := time.Now().UTC()
	for id, order := range r.items {
		if order.Status != domain.OrderStatusPending {
			continue
		}
		if order.PaymentStatus != domain.PaymentStatusUnpaid {
			continue
		}
		if order.PaymentMethod == domain.PaymentMethodCOD {
			continue
		}
		if order.StockDeductedAt != nil {
			continue
		}
		if !order.CreatedAt.Before(createdBefore) {
			continue
		}

		order.Status = domain.OrderStatusCancelled
		order.PaymentStatus = domain.PaymentStatusCancelled
		order.Version++
		order.UpdatedAt = now
		r.items[id] = order
		cancelled++
	}

	return cancelled, nil
}

func sortOrders(orders []domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
