package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type payoutRuleRepository struct {
	db *sql.DB
}

// NewPayoutRuleRepository создаёт PostgreSQL-реализацию PayoutRuleRepository.
func NewPayoutRuleRepository(store *Store) domain.PayoutRuleRepository {
	return &payoutRuleRepository{db: store.DB()}
}

func (r *payoutRuleRepository) Create(rule domain.PayoutRule) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payout_rules (id, partner_code, percent, valid_from, priority, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, rule.ID, rule.PartnerCode, rule.Percent.String(), rule.ValidFrom, rule.Priority)
	if err != nil {
		return fmt.Errorf("insert payout rule: %w", err)
	}

	return nil
}

func (r *payoutRuleRepository) ListActive(at time.Time) ([]domain.PayoutRule, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, partner_code, percent, valid_from, priority, created_at
		FROM payout_rules
		WHERE valid_from <= $1
		ORDER BY valid_from DESC, priority ASC
	`, at)
	if err != nil {
		return nil, fmt.Errorf("list payout rules: %w", err)
	}
	defer rows.Close()

	rules := make([]domain.PayoutRule, 0)
	for rows.Next() {
		var (
			rule    domain.PayoutRule
			percent string
		)
		if err := rows.Scan(&rule.ID, &rule.PartnerCode, &percent, &rule.ValidFrom, &rule.Priority, &rule.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payout rule row: %w", err)
		}
		rule.Percent, err = decimal.NewFromString(percent)
		if err != nil {
			return nil, fmt.Errorf("parse payout rule percent: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payout rule rows: %w", err)
	}

	return rules, nil
}

var _ domain.PayoutRuleRepository = (*payoutRuleRepository)(nil)
