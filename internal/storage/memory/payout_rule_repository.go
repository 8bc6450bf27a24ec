package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// payoutRuleRepositoryInMemory — in-memory реализация PayoutRuleRepository.
// Набор правил append-only: обновлений и удалений нет.
type payoutRuleRepositoryInMemory struct {
	mu    sync.Mutex
	rules []domain.PayoutRule
}

// NewPayoutRuleRepository возвращает in-memory репозиторий правил выплат.
func NewPayoutRuleRepository() domain.PayoutRuleRepository {
	return &payoutRuleRepositoryInMemory{}
}

// Create добавляет правило.
func (r *payoutRuleRepositoryInMemory) Create(rule domain.PayoutRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	r.rules = append(r.rules, rule)
	return nil
}

// ListActive возвращает правила с valid_from <= at.
func (r *payoutRuleRepositoryInMemory) ListActive(at time.Time) ([]domain.PayoutRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.PayoutRule, 0, len(r.rules))
	for _, rule := range r.rules {
		if !rule.ValidFrom.After(at) {
			result = append(result, rule)
		}
	}
	return result, nil
}

var _ domain.PayoutRuleRepository = (*payoutRuleRepositoryInMemory)(nil)
