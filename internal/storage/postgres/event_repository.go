package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type eventRepository struct {
	db *sql.DB
}

// NewEventRepository создаёт PostgreSQL-реализацию EventRepository.
func NewEventRepository(store *Store) domain.EventRepository {
	return &eventRepository{db: store.DB()}
}

// Record — insert-if-absent по (provider, provider_event_id); повтор события
// детектируется unique constraint'ом и возвращается как ErrEventDuplicate.
func (r *eventRepository) Record(event domain.OrderEvent) (domain.OrderEvent, error) {
	if errs := event.ValidateInvariants(); len(errs) > 0 {
		return domain.OrderEvent{}, errs[0]
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO order_events (id, order_id, provider, provider_event_id, event_type, payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		event.ID, event.OrderID, event.Provider, event.ProviderEventID,
		event.Type, event.Payload, event.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.OrderEvent{}, domain.ErrEventDuplicate
		}
		return domain.OrderEvent{}, fmt.Errorf("insert order event: %w", err)
	}

	return event, nil
}

func (r *eventRepository) Get(provider, providerEventID string) (domain.OrderEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var event domain.OrderEvent
	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, provider, provider_event_id, event_type, payload, created_at
		FROM order_events
		WHERE provider = $1 AND provider_event_id = $2
	`, provider, providerEventID).Scan(
		&event.ID, &event.OrderID, &event.Provider, &event.ProviderEventID,
		&event.Type, &event.Payload, &event.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.OrderEvent{}, domain.ErrEventNotFound
		}
		return domain.OrderEvent{}, fmt.Errorf("select order event: %w", err)
	}

	return event, nil
}

func (r *eventRepository) ListByOrder(orderID string) ([]domain.OrderEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, provider, provider_event_id, event_type, payload, created_at
		FROM order_events
		WHERE order_id = $1
		ORDER BY created_at DESC, id DESC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.OrderEvent, 0)
	for rows.Next() {
		var event domain.OrderEvent
		if err := rows.Scan(
			&event.ID, &event.OrderID, &event.Provider, &event.ProviderEventID,
			&event.Type, &event.Payload, &event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}

	return events, nil
}

var _ domain.EventRepository = (*eventRepository)(nil)
