package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/officeflow/procurement-service/internal/database"
	"github.com/officeflow/procurement-service/internal/errors"
)

// DepartmentRepository reads departments and their manager pools and applies
// manager assignment changes.
type DepartmentRepository struct {
	db *database.DB
}

// NewDepartmentRepository creates a new DepartmentRepository.
func NewDepartmentRepository(db *database.DB) *DepartmentRepository {
	return &DepartmentRepository{db: db}
}

// GetDepartment retrieves a department by id.
func (r *DepartmentRepository) GetDepartment(ctx context.Context, id string) (*Department, error) {
	query := `
		SELECT id, code, name, budget_cents, manager_id, parent_id, status,
		       created_at, updated_at
		FROM departments
		WHERE id = $1
	`

	dep := &Department{}
	var cents int64
	err := r.db.QueryRow(ctx, query, id).Scan(
		&dep.ID,
		&dep.Code,
		&dep.Name,
		&cents,
		&dep.ManagerID,
		&dep.ParentID,
		&dep.Status,
		&dep.CreatedAt,
		&dep.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("department", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get department")
	}
	dep.Budget = fromCents(cents)
	return dep, nil
}

// ListActiveDepartments returns all ACTIVE departments.
func (r *DepartmentRepository) ListActiveDepartments(ctx context.Context) ([]*Department, error) {
	query := `
		SELECT id, code, name, budget_cents, manager_id, parent_id, status,
		       created_at, updated_at
		FROM departments
		WHERE status = 'ACTIVE'
		ORDER BY code ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list departments")
	}
	defer rows.Close()

	departments := make([]*Department, 0)
	for rows.Next() {
		dep := &Department{}
		var cents int64
		err := rows.Scan(
			&dep.ID,
			&dep.Code,
			&dep.Name,
			&cents,
			&dep.ManagerID,
			&dep.ParentID,
			&dep.Status,
			&dep.CreatedAt,
			&dep.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan department")
		}
		dep.Budget = fromCents(cents)
		departments = append(departments, dep)
	}
	return departments, nil
}

// ActiveManagers returns the department's manager pool: ACTIVE users with
// role MANAGER whose department is this one.
func (r *DepartmentRepository) ActiveManagers(ctx context.Context, departmentID string) ([]*User, error) {
	query := `
		SELECT id, name, email, role, status, department_id, created_at, updated_at
		FROM users
		WHERE department_id = $1
		  AND role = 'MANAGER'
		  AND status = 'ACTIVE'
		ORDER BY name ASC
	`

	rows, err := r.db.Query(ctx, query, departmentID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list department managers")
	}
	defer rows.Close()

	return scanUsers(rows)
}

// SetManager updates a department's manager reference (nil clears it) and
// writes the audit entry in the same transaction.
func (r *DepartmentRepository) SetManager(ctx context.Context, departmentID string, managerID *string, audit *AuditLogEntry) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE departments
			SET manager_id = $2,
			    updated_at = NOW()
			WHERE id = $1
			RETURNING id
		`

		var returnedID string
		err := tx.QueryRow(ctx, query, departmentID, managerID).Scan(&returnedID)
		if err == pgx.ErrNoRows {
			return errors.NotFound("department", departmentID)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to set department manager")
		}

		return insertAudit(ctx, tx, audit)
	})
}
