package domain

import "time"

// AuditEntry records one mutating action against an entity for the
// audit_log table (entity, entity_id, created_at index).
type AuditEntry struct {
	ID         int64
	Entity     string
	EntityID   string
	Action     string
	ActorID    string
	Detail     string
	CreatedAt  time.Time
}
