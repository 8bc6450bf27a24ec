package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type auditRepository struct {
	db *sql.DB
}

// NewAuditRepository создаёт PostgreSQL-реализацию AuditRepository.
func NewAuditRepository(store *Store) domain.AuditRepository {
	return &auditRepository{db: store.DB()}
}

func (r *auditRepository) Append(entry domain.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	metadata, err := marshalMetadata(entry.Metadata)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor, action, entity_type, entity_id, metadata, severity, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		entry.ID, entry.Actor, entry.Action, entry.EntityType, entry.EntityID,
		metadata, string(entry.Severity), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	return nil
}

func (r *auditRepository) ListByEntity(entityType, entityID string, limit int) ([]domain.AuditEntry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT id, actor, action, entity_type, entity_id, metadata, severity, created_at
		FROM audit_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC, id DESC`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $3", entityType, entityID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, entityType, entityID)
	}
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.AuditEntry, 0)
	for rows.Next() {
		var (
			entry    domain.AuditEntry
			metadata []byte
			severity string
		)
		if err := rows.Scan(
			&entry.ID, &entry.Actor, &entry.Action, &entry.EntityType, &entry.EntityID,
			&metadata, &severity, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		entry.Severity = domain.AuditSeverity(severity)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}

	return entries, nil
}

var _ domain.AuditRepository = (*auditRepository)(nil)
