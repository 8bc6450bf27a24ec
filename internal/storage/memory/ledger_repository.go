package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ledgerRepositoryInMemory — in-memory реализация LedgerRepository.
// Уникальность dedupe key проверяется под блокировкой, повторяя семантику
// unique constraint в PostgreSQL: проигравший конкурент получает
// ErrLedgerDuplicate, а не вторую строку.
type ledgerRepositoryInMemory struct {
	mu      sync.Mutex
	entries []domain.LedgerEntry
	byKey   map[string]int
}

// NewLedgerRepository возвращает in-memory ledger для тестов и локальной разработки.
func NewLedgerRepository() domain.LedgerRepository {
	return &ledgerRepositoryInMemory{
		byKey: make(map[string]int),
	}
}

// Append добавляет запись; коллизия dedupe key — ErrLedgerDuplicate.
func (r *ledgerRepositoryInMemory) Append(entry domain.LedgerEntry) (domain.LedgerEntry, error) {
	if entry.DedupeKey == "" {
		return domain.LedgerEntry{}, domain.ErrLedgerDedupeKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKey[entry.DedupeKey]; exists {
		return domain.LedgerEntry{}, domain.ErrLedgerDuplicate
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	r.byKey[entry.DedupeKey] = len(r.entries)
	r.entries = append(r.entries, entry)
	return entry, nil
}

// GetByDedupeKey возвращает запись по ключу идемпотентности.
func (r *ledgerRepositoryInMemory) GetByDedupeKey(key string) (domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.byKey[key]
	if !ok {
		return domain.LedgerEntry{}, domain.ErrLedgerEntryNotFound
	}
	return r.entries[idx], nil
}

// ListByOrder возвращает записи заказа, новые первыми.
func (r *ledgerRepositoryInMemory) ListByOrder(orderID string) ([]domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.LedgerEntry, 0)
	for _, entry := range r.entries {
		if entry.OrderID == orderID {
			result = append(result, entry)
		}
	}
	sortLedgerEntries(result)
	return result, nil
}

// ListAll возвращает записи для экспорта, новые первыми.
func (r *ledgerRepositoryInMemory) ListAll(limit int) ([]domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.LedgerEntry, len(r.entries))
	copy(result, r.entries)
	sortLedgerEntries(result)

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func sortLedgerEntries(entries []domain.LedgerEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID > entries[j].ID
	})
}

var _ domain.LedgerRepository = (*ledgerRepositoryInMemory)(nil)
