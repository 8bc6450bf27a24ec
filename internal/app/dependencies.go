package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

// Repositories группирует хранилища всех агрегатов под одним типом:
// in-memory и postgres собираются в одинаковую структуру.
type Repositories struct {
	Orders   domain.OrderRepository
	Products domain.ProductRepository
	Ledger   domain.LedgerRepository
	Events   domain.EventRepository
	Payouts  domain.PayoutRepository
	Rules    domain.PayoutRuleRepository
	Audit    domain.AuditRepository
}

// NewMemoryRepositories собирает in-memory хранилища
// (локальная разработка, тесты).
func NewMemoryRepositories() Repositories {
	return Repositories{
		Orders:   memory.NewOrderRepository(),
		Products: memory.NewProductRepository(),
		Ledger:   memory.NewLedgerRepository(),
		Events:   memory.NewEventRepository(),
		Payouts:  memory.NewPayoutRepository(),
		Rules:    memory.NewPayoutRuleRepository(),
		Audit:    memory.NewAuditRepository(),
	}
}

// NewPostgresRepositories собирает PostgreSQL-хранилища поверх одного стора.
func NewPostgresRepositories(store *postgres.Store, logger *log.Entry) Repositories {
	if logger != nil {
		logger.Info("using postgres storage")
	}
	return Repositories{
		Orders:   postgres.NewOrderRepository(store),
		Products: postgres.NewProductRepository(store),
		Ledger:   postgres.NewLedgerRepository(store),
		Events:   postgres.NewEventRepository(store),
		Payouts:  postgres.NewPayoutRepository(store),
		Rules:    postgres.NewPayoutRuleRepository(store),
		Audit:    postgres.NewAuditRepository(store),
	}
}
