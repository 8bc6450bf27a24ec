package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type payoutRepository struct {
	db *sql.DB
}

// NewPayoutRepository создаёт PostgreSQL-реализацию PayoutRepository.
func NewPayoutRepository(store *Store) domain.PayoutRepository {
	return &payoutRepository{db: store.DB()}
}

// CreateBatch вставляет выплаты одного заказа в одной транзакции:
// либо весь набор, либо ничего.
func (r *payoutRepository) CreateBatch(payouts []domain.Payout) error {
	if len(payouts) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, payout := range payouts {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO payouts (id, order_id, partner_code, rule_id, amount_minor, currency, status, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW())
		`,
			payout.ID, payout.OrderID, payout.PartnerCode, payout.RuleID,
			payout.AmountMinor, payout.Currency, string(payout.Status),
		); err != nil {
			return fmt.Errorf("insert payout: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit payout batch: %w", err)
	}

	return nil
}

func (r *payoutRepository) ListByOrder(orderID string) ([]domain.Payout, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, partner_code, rule_id, amount_minor, currency, status, created_at, updated_at
		FROM payouts
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	defer rows.Close()

	return collectPayouts(rows)
}

// CancelPending переводит pending-выплаты заказа в cancelled одним
// условным UPDATE: уже оплаченные строки предикат не затрагивает.
func (r *payoutRepository) CancelPending(orderID string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE payouts
		SET status = $1,
		    updated_at = NOW()
		WHERE order_id = $2
		  AND status = $3
	`, string(domain.PayoutStatusCancelled), orderID, string(domain.PayoutStatusPending))
	if err != nil {
		return 0, fmt.Errorf("cancel pending payouts: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return int(affected), nil
}

func (r *payoutRepository) MarkPaid(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE payouts
		SET status = $1,
		    updated_at = NOW()
		WHERE id = $2
	`, string(domain.PayoutStatusPaid), id)
	if err != nil {
		return fmt.Errorf("mark payout paid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrPayoutNotFound
	}

	return nil
}

func (r *payoutRepository) ListAll(limit int) ([]domain.Payout, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT id, order_id, partner_code, rule_id, amount_minor, currency, status, created_at, updated_at
		FROM payouts
		ORDER BY created_at DESC, id DESC`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $1", limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("list all payouts: %w", err)
	}
	defer rows.Close()

	return collectPayouts(rows)
}

func collectPayouts(rows *sql.Rows) ([]domain.Payout, error) {
	payouts := make([]domain.Payout, 0)
	for rows.Next() {
		var (
			payout domain.Payout
			status string
		)
		if err := rows.Scan(
			&payout.ID, &payout.OrderID, &payout.PartnerCode, &payout.RuleID,
			&payout.AmountMinor, &payout.Currency, &status, &payout.CreatedAt, &payout.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan payout row: %w", err)
		}
		payout.Status = domain.PayoutStatus(status)
		payouts = append(payouts, payout)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payout rows: %w", err)
	}

	return payouts, nil
}

var _ domain.PayoutRepository = (*payoutRepository)(nil)
