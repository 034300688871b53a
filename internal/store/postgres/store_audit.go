package postgres

import (
	"context"

	"github.com/brightline-ops/bookcore/internal/apperrors"
	"github.com/brightline-ops/bookcore/internal/domain"
)

func (s *Store) AuditAppend(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO audit_log (entity, entity_id, action, actor_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, created_at
	`, entry.Entity, entry.EntityID, entry.Action, entry.ActorID, entry.Detail,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return domain.AuditEntry{}, apperrors.StoreError("audit_append", err)
	}
	return entry, nil
}
