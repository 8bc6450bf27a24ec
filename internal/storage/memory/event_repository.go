package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// eventRepositoryInMemory — in-memory журнал внешних событий.
// Уникальность (provider, provider_event_id) проверяется под блокировкой,
// как unique constraint в PostgreSQL.
type eventRepositoryInMemory struct {
	mu     sync.Mutex
	events []domain.OrderEvent
	byKey  map[eventKey]int
}

type eventKey struct {
	provider        string
	providerEventID string
}

// NewEventRepository возвращает in-memory журнал событий.
func NewEventRepository() domain.EventRepository {
	return &eventRepositoryInMemory{
		byKey: make(map[eventKey]int),
	}
}

// Record сохраняет событие insert-if-absent; дубликат — ErrEventDuplicate.
func (r *eventRepositoryInMemory) Record(event domain.OrderEvent) (domain.OrderEvent, error) {
	if errs := event.ValidateInvariants(); len(errs) > 0 {
		return domain.OrderEvent{}, errs[0]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := eventKey{provider: event.Provider, providerEventID: event.ProviderEventID}
	if _, exists := r.byKey[key]; exists {
		return domain.OrderEvent{}, domain.ErrEventDuplicate
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	r.byKey[key] = len(r.events)
	r.events = append(r.events, event)
	return event, nil
}

// Get возвращает событие по паре (provider, provider_event_id).
func (r *eventRepositoryInMemory) Get(provider, providerEventID string) (domain.OrderEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.byKey[eventKey{provider: provider, providerEventID: providerEventID}]
	if !ok {
		return domain.OrderEvent{}, domain.ErrEventNotFound
	}
	return r.events[idx], nil
}

// ListByOrder возвращает события заказа, новые первыми.
func (r *eventRepositoryInMemory) ListByOrder(orderID string) ([]domain.OrderEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.OrderEvent, 0)
	for _, event := range r.events {
		if event.OrderID == orderID {
			result = append(result, event)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

var _ domain.EventRepository = (*eventRepositoryInMemory)(nil)
