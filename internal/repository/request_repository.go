package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/officeflow/procurement-service/internal/database"
	"github.com/officeflow/procurement-service/internal/errors"
)

// RequestRepository persists purchase requests together with their lines and
// approval chains. Creation inserts the request, its lines, its approvals and
// the audit entry in one transaction.
type RequestRepository struct {
	db *database.DB
}

// NewRequestRepository creates a new RequestRepository.
func NewRequestRepository(db *database.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// CreateRequest inserts a request with lines, seeded approvals and audit
// entry atomically.
func (r *RequestRepository) CreateRequest(ctx context.Context, req *Request, audit *AuditLogEntry) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		reqQuery := `
			INSERT INTO requests
			    (id, title, department_id, requester_id, status, total_amount_cents,
			     created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5::request_status, $6, $7, $8)
		`

		_, err := tx.Exec(ctx, reqQuery,
			req.ID,
			req.Title,
			req.DepartmentID,
			req.RequesterID,
			req.Status,
			toCents(req.TotalAmount),
			req.CreatedAt,
			req.UpdatedAt,
		)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create request")
		}

		lineQuery := `
			INSERT INTO request_lines
			    (id, request_id, item_id, quantity, unit_price_cents, line_total_cents)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		for _, line := range req.Lines {
			line.RequestID = req.ID
			_, err := tx.Exec(ctx, lineQuery,
				line.ID,
				line.RequestID,
				line.ItemID,
				line.Quantity,
				toCents(line.UnitPrice),
				toCents(line.LineTotal),
			)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create request line")
			}
		}

		approvalQuery := `
			INSERT INTO approvals
			    (id, request_id, approver_id, required_role, level, status,
			     created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6::approval_status, $7, $8)
		`
		for _, a := range req.Approvals {
			a.RequestID = req.ID
			_, err := tx.Exec(ctx, approvalQuery,
				a.ID,
				a.RequestID,
				a.ApproverID,
				a.RequiredRole,
				a.Level,
				a.Status,
				a.CreatedAt,
				a.UpdatedAt,
			)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval")
			}
		}

		return insertAudit(ctx, tx, audit)
	})
}

// GetRequest retrieves a request with its lines and approvals (level order).
func (r *RequestRepository) GetRequest(ctx context.Context, id string) (*Request, error) {
	query := `
		SELECT id, title, department_id, requester_id, status, total_amount_cents,
		       created_at, updated_at
		FROM requests
		WHERE id = $1
	`

	req := &Request{}
	var cents int64
	err := r.db.QueryRow(ctx, query, id).Scan(
		&req.ID,
		&req.Title,
		&req.DepartmentID,
		&req.RequesterID,
		&req.Status,
		&cents,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("request", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get request")
	}
	req.TotalAmount = fromCents(cents)

	if req.Lines, err = r.getLines(ctx, id); err != nil {
		return nil, err
	}
	if req.Approvals, err = r.getApprovals(ctx, id); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *RequestRepository) getLines(ctx context.Context, requestID string) ([]*RequestLine, error) {
	query := `
		SELECT id, request_id, item_id, quantity, unit_price_cents, line_total_cents
		FROM request_lines
		WHERE request_id = $1
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get request lines")
	}
	defer rows.Close()

	lines := make([]*RequestLine, 0)
	for rows.Next() {
		line := &RequestLine{}
		var unit, total int64
		err := rows.Scan(&line.ID, &line.RequestID, &line.ItemID, &line.Quantity, &unit, &total)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan request line")
		}
		line.UnitPrice = fromCents(unit)
		line.LineTotal = fromCents(total)
		lines = append(lines, line)
	}
	return lines, nil
}

func (r *RequestRepository) getApprovals(ctx context.Context, requestID string) ([]*Approval, error) {
	query := `
		SELECT id, request_id, approver_id, required_role, level, status,
		       comments, decided_at, created_at, updated_at
		FROM approvals
		WHERE request_id = $1
		ORDER BY level ASC
	`

	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approvals")
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
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval")
		}
		approvals = append(approvals, a)
	}
	return approvals, nil
}

// ListRequests returns requests matching the filter, newest first, without
// their lines and approvals.
func (r *RequestRepository) ListRequests(ctx context.Context, f RequestFilter) ([]*Request, error) {
	query := `
		SELECT id, title, department_id, requester_id, status, total_amount_cents,
		       created_at, updated_at
		FROM requests
		WHERE 1 = 1
	`

	args := []any{}
	argCount := 1

	if f.DepartmentID != nil {
		query += fmt.Sprintf(" AND department_id = $%d", argCount)
		args = append(args, *f.DepartmentID)
		argCount++
	}
	if f.RequesterID != nil {
		query += fmt.Sprintf(" AND requester_id = $%d", argCount)
		args = append(args, *f.RequesterID)
		argCount++
	}
	if f.Status != nil {
		query += fmt.Sprintf(" AND status = $%d::request_status", argCount)
		args = append(args, *f.Status)
		argCount++
	}

	query += " ORDER BY created_at DESC"

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list requests")
	}
	defer rows.Close()

	requests := make([]*Request, 0)
	for rows.Next() {
		req := &Request{}
		var cents int64
		err := rows.Scan(
			&req.ID,
			&req.Title,
			&req.DepartmentID,
			&req.RequesterID,
			&req.Status,
			&cents,
			&req.CreatedAt,
			&req.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan request")
		}
		req.TotalAmount = fromCents(cents)
		requests = append(requests, req)
	}
	return requests, nil
}

// CompleteRequest moves an APPROVED request to COMPLETED. The status guard is
// a conditional update; an existing request in any other state is a conflict.
func (r *RequestRepository) CompleteRequest(ctx context.Context, id string, audit *AuditLogEntry) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE requests
			SET status     = 'COMPLETED'::request_status,
			    updated_at = NOW()
			WHERE id = $1
			  AND status = 'APPROVED'::request_status
			RETURNING id
		`

		var returnedID string
		err := tx.QueryRow(ctx, query, id).Scan(&returnedID)
		if err == pgx.ErrNoRows {
			return r.completeConflict(ctx, tx, id)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to complete request")
		}

		return insertAudit(ctx, tx, audit)
	})
}

// completeConflict distinguishes NotFound from Conflict after a guarded
// update matched no rows.
func (r *RequestRepository) completeConflict(ctx context.Context, tx pgx.Tx, id string) error {
	var status RequestStatus
	err := tx.QueryRow(ctx, `SELECT status FROM requests WHERE id = $1`, id).Scan(&status)
	if err == pgx.ErrNoRows {
		return errors.NotFound("request", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to check request status")
	}
	return errors.Conflict(fmt.Sprintf("request is %s, only APPROVED requests can be completed", status))
}
