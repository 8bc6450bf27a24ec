package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// auditRepositoryInMemory — in-memory журнал аудита.
type auditRepositoryInMemory struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

// NewAuditRepository возвращает in-memory журнал аудита.
func NewAuditRepository() domain.AuditRepository {
	return &auditRepositoryInMemory{}
}

// Append добавляет запись аудита.
func (r *auditRepositoryInMemory) Append(entry domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	r.entries = append(r.entries, entry)
	return nil
}

// ListByEntity возвращает записи по сущности, новые первыми.
func (r *auditRepositoryInMemory) ListByEntity(entityType, entityID string, limit int) ([]domain.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.AuditEntry, 0)
	for _, entry := range r.entries {
		if entry.EntityType == entityType && entry.EntityID == entityID {
			result = append(result, entry)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ domain.AuditRepository = (*auditRepositoryInMemory)(nil)
