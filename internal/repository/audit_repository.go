package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/officeflow/procurement-service/internal/database"
	"github.com/officeflow/procurement-service/internal/errors"
)

// AuditRepository appends and reads immutable audit log entries. Entries for
// multi-row mutations are written by the owning repository inside the same
// transaction via insertAudit; Append exists for standalone records such as
// batch failure markers.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// insertAudit writes one audit entry within an existing transaction.
func insertAudit(ctx context.Context, tx pgx.Tx, e *AuditLogEntry) error {
	query := `
		INSERT INTO audit_log
		    (id, action, entity, entity_id, performed_by, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := tx.Exec(ctx, query,
		e.ID,
		e.Action,
		e.Entity,
		e.EntityID,
		e.PerformedBy,
		e.Details,
		e.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert audit entry")
	}
	return nil
}

// AppendAudit inserts one standalone audit entry.
func (r *AuditRepository) AppendAudit(ctx context.Context, e *AuditLogEntry) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		return insertAudit(ctx, tx, e)
	})
}

// ListAuditLog returns audit entries newest-first with optional entity filters.
func (r *AuditRepository) ListAuditLog(ctx context.Context, f AuditFilter) ([]*AuditLogEntry, error) {
	query := `
		SELECT id, action, entity, entity_id, performed_by, details, created_at
		FROM audit_log
		WHERE 1 = 1
	`

	args := []any{}
	argCount := 1

	if f.Entity != nil {
		query += fmt.Sprintf(" AND entity = $%d", argCount)
		args = append(args, *f.Entity)
		argCount++
	}
	if f.EntityID != nil {
		query += fmt.Sprintf(" AND entity_id = $%d", argCount)
		args = append(args, *f.EntityID)
		argCount++
	}

	query += " ORDER BY created_at DESC"

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list audit log")
	}
	defer rows.Close()

	var entries []*AuditLogEntry
	for rows.Next() {
		e := &AuditLogEntry{}
		err := rows.Scan(
			&e.ID,
			&e.Action,
			&e.Entity,
			&e.EntityID,
			&e.PerformedBy,
			&e.Details,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
		}
		entries = append(entries, e)
	}
	return entries, nil
}
