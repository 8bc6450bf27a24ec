package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// payoutRepositoryInMemory — in-memory реализация PayoutRepository.
type payoutRepositoryInMemory struct {
	mu    sync.Mutex
	items map[string]domain.Payout
}

// NewPayoutRepository возвращает in-memory репозиторий выплат.
func NewPayoutRepository() domain.PayoutRepository {
	return &payoutRepositoryInMemory{
		items: make(map[string]domain.Payout),
	}
}

// CreateBatch сохраняет набор выплат одного заказа.
func (r *payoutRepositoryInMemory) CreateBatch(payouts []domain.Payout) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	for _, payout := range payouts {
		if payout.ID == "" {
			payout.ID = uuid.NewString()
		}
		if payout.CreatedAt.IsZero() {
			payout.CreatedAt = now
		}
		payout.UpdatedAt = payout.CreatedAt
		r.items[payout.ID] = payout
	}
	return nil
}

// ListByOrder возвращает выплаты заказа.
func (r *payoutRepositoryInMemory) ListByOrder(orderID string) ([]domain.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.Payout, 0)
	for _, payout := range r.items {
		if payout.OrderID == orderID {
			result = append(result, payout)
		}
	}
	sortPayouts(result)
	return result, nil
}

// CancelPending отменяет все pending-выплаты заказа.
func (r *payoutRepositoryInMemory) CancelPending(orderID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cancelled := 0
	now := time.Now().UTC()
	for id, payout := range r.items {
		if payout.OrderID != orderID || payout.Status != domain.PayoutStatusPending {
			continue
		}
		payout.Status = domain.PayoutStatusCancelled
		payout.UpdatedAt = now
		r.items[id] = payout
		cancelled++
	}
	return cancelled, nil
}

// MarkPaid помечает выплату оплаченной.
func (r *payoutRepositoryInMemory) MarkPaid(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	payout, ok := r.items[id]
	if !ok {
		return domain.ErrPayoutNotFound
	}
	payout.Status = domain.PayoutStatusPaid
	payout.UpdatedAt = time.Now().UTC()
	r.items[id] = payout
	return nil
}

// ListAll возвращает выплаты для экспорта, новые первыми.
func (r *payoutRepositoryInMemory) ListAll(limit int) ([]domain.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.Payout, 0, len(r.items))
	for _, payout := range r.items {
		result = append(result, payout)
	}
	sortPayouts(result)

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func sortPayouts(payouts []domain.Payout) {
	sort.Slice(payouts, func(i, j int) bool {
		if !payouts[i].CreatedAt.Equal(payouts[j].CreatedAt) {
			return payouts[i].CreatedAt.After(payouts[j].CreatedAt)
		}
		return payouts[i].PartnerCode < payouts[j].PartnerCode
	})
}

var _ domain.PayoutRepository = (*payoutRepositoryInMemory)(nil)
