package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/officeflow/procurement-service/internal/database"
	"github.com/officeflow/procurement-service/internal/errors"
)

// ApprovalRepository applies approval decisions. Approval rows are created by
// RequestRepository when the chain is seeded; this repository only mutates
// the current level and the owning request, atomically.
type ApprovalRepository struct {
	db *database.DB
}

// NewApprovalRepository creates a new ApprovalRepository.
func NewApprovalRepository(db *database.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// ApplyDecision commits one approve/reject decision: optional approver
// reassignment, the approval's new state, the request's new status and the
// audit entries, in one transaction. Every update is guarded on the state it
// expects, so a concurrent duplicate decision fails with Conflict and leaves
// no partial mutation.
func (r *ApprovalRepository) ApplyDecision(ctx context.Context, d *ApprovalDecision) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if d.ReassignTo != nil {
			reassignQuery := `
				UPDATE approvals
				SET approver_id = $2,
				    updated_at  = NOW()
				WHERE id = $1
				  AND status = 'PENDING'::approval_status
				RETURNING id
			`

			var returnedID string
			err := tx.QueryRow(ctx, reassignQuery, d.ApprovalID, *d.ReassignTo).Scan(&returnedID)
			if err == pgx.ErrNoRows {
				return errors.Conflict("approval is no longer pending")
			}
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to reassign approval")
			}
		}

		decideQuery := `
			UPDATE approvals
			SET status     = $2::approval_status,
			    comments   = $3,
			    decided_at = $4,
			    updated_at = NOW()
			WHERE id = $1
			  AND status = 'PENDING'::approval_status
			RETURNING id
		`

		var returnedID string
		err := tx.QueryRow(ctx, decideQuery,
			d.ApprovalID,
			d.NewApprovalStatus,
			d.Comments,
			d.DecidedAt,
		).Scan(&returnedID)
		if err == pgx.ErrNoRows {
			return errors.Conflict("approval has already been decided")
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update approval")
		}

		requestQuery := `
			UPDATE requests
			SET status     = $2::request_status,
			    updated_at = NOW()
			WHERE id = $1
			  AND status IN ('PENDING'::request_status, 'IN_PROGRESS'::request_status)
			RETURNING id
		`

		err = tx.QueryRow(ctx, requestQuery, d.RequestID, d.NewRequestStatus).Scan(&returnedID)
		if err == pgx.ErrNoRows {
			return errors.Conflict("request is no longer in flight")
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update request status")
		}

		for _, audit := range d.Audits {
			if err := insertAudit(ctx, tx, audit); err != nil {
				return err
			}
		}
		return nil
	})
}

// PendingApprovalsForUser returns approvals awaiting action where the user is
// the bound approver, on requests still in flight, lowest level first.
func (r *ApprovalRepository) PendingApprovalsForUser(ctx context.Context, userID string) ([]*Approval, error) {
	query := `
		SELECT a.id, a.request_id, a.approver_id, a.required_role, a.level, a.status,
		       a.comments, a.decided_at, a.created_at, a.updated_at
		FROM approvals a
		JOIN requests r ON r.id = a.request_id
		WHERE a.approver_id = $1
		  AND a.status = 'PENDING'::approval_status
		  AND r.status IN ('PENDING'::request_status, 'IN_PROGRESS'::request_status)
		  AND a.level = (
		      SELECT MIN(level) FROM approvals
		      WHERE request_id = a.request_id AND status = 'PENDING'::approval_status
		  )
		ORDER BY a.created_at ASC, a.level ASC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get pending approvals")
	}
	defer rows.Close()

	approvals := make([]*Approval, 0)
	for rows.Next() {
		a := &Approval{}
		err := rows.Scan(
			&a.ID,
			&a.RequestID,
			&a.ApproverID,
			&a.RequiredRole,
			&a.Level,
			&a.Status,
			&a.Comments,
			&a.DecidedAt,
			&a.CreatedAt,
			&a.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, fmt.Sprintf("failed to scan approval for user %s", userID))
		}
		approvals = append(approvals, a)
	}
	return approvals, nil
}
