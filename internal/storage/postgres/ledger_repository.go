package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type ledgerRepository struct {
	db *sql.DB
}

// NewLedgerRepository создаёт PostgreSQL-реализацию LedgerRepository.
func NewLedgerRepository(store *Store) domain.LedgerRepository {
	return &ledgerRepository{db: store.DB()}
}

// Append вставляет запись под защитой unique constraint на dedupe_key.
// 23505 транслируется в ErrLedgerDuplicate: для вызывающего кода это
// «конкурент уже провёл», не сбой.
func (r *ledgerRepository) Append(entry domain.LedgerEntry) (domain.LedgerEntry, error) {
	if errs := entry.ValidateInvariants(); len(errs) > 0 {
		return domain.LedgerEntry{}, errs[0]
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	metadata, err := marshalMetadata(entry.Metadata)
	if err != nil {
		return domain.LedgerEntry{}, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (
			id, order_id, entry_type, direction, amount_minor, currency, metadata, dedupe_key, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		entry.ID, entry.OrderID, string(entry.Type), string(entry.Direction),
		entry.AmountMinor, entry.Currency, metadata, entry.DedupeKey, entry.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.LedgerEntry{}, domain.ErrLedgerDuplicate
		}
		return domain.LedgerEntry{}, fmt.Errorf("insert ledger entry: %w", err)
	}

	return entry, nil
}

func (r *ledgerRepository) GetByDedupeKey(key string) (domain.LedgerEntry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, entry_type, direction, amount_minor, currency, metadata, dedupe_key, created_at
		FROM ledger_entries
		WHERE dedupe_key = $1
	`, key)

	entry, err := scanLedgerEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.LedgerEntry{}, domain.ErrLedgerEntryNotFound
		}
		return domain.LedgerEntry{}, fmt.Errorf("select ledger entry: %w", err)
	}

	return entry, nil
}

func (r *ledgerRepository) ListByOrder(orderID string) ([]domain.LedgerEntry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, entry_type, direction, amount_minor, currency, metadata, dedupe_key, created_at
		FROM ledger_entries
		WHERE order_id = $1
		ORDER BY created_at DESC, id DESC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	return collectLedgerEntries(rows)
}

func (r *ledgerRepository) ListAll(limit int) ([]domain.LedgerEntry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT id, order_id, entry_type, direction, amount_minor, currency, metadata, dedupe_key, created_at
		FROM ledger_entries
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
		return nil, fmt.Errorf("list all ledger entries: %w", err)
	}
	defer rows.Close()

	return collectLedgerEntries(rows)
}

func scanLedgerEntry(row rowScanner) (domain.LedgerEntry, error) {
	var (
		entry     domain.LedgerEntry
		entryType string
		direction string
		metadata  []byte
	)

	err := row.Scan(
		&entry.ID, &entry.OrderID, &entryType, &direction,
		&entry.AmountMinor, &entry.Currency, &metadata, &entry.DedupeKey, &entry.CreatedAt,
	)
	if err != nil {
		return domain.LedgerEntry{}, err
	}

	entry.Type = domain.LedgerEntryType(entryType)
	entry.Direction = domain.LedgerDirection(direction)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
			return domain.LedgerEntry{}, fmt.Errorf("decode ledger metadata: %w", err)
		}
	}

	return entry, nil
}

func collectLedgerEntries(rows *sql.Rows) ([]domain.LedgerEntry, error) {
	entries := make([]domain.LedgerEntry, 0)
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}

	return entries, nil
}

func marshalMetadata(metadata map[string]string) ([]byte, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return data, nil
}

var _ domain.LedgerRepository = (*ledgerRepository)(nil)
