package domain

import "time"

// AuditSeverity описывает важность записи аудита.
type AuditSeverity string

const (
	AuditSeverityInfo      AuditSeverity = "info"
	AuditSeverityImportant AuditSeverity = "important"
	AuditSeverityCritical  AuditSeverity = "critical"
)

// AuditEntry — append-only запись действия для операционного следа.
// Запись аудита best-effort: её сбой логируется, но никогда не блокирует
// основную операцию.
type AuditEntry struct {
	ID string
	// Actor пуст для действий, инициированных системой.
	Actor      string
	Action     string
	EntityType string
	EntityID   string
	Metadata   map[string]string
	Severity   AuditSeverity
	CreatedAt  time.Time
}
