package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/officeflow/procurement-service/internal/database"
	"github.com/officeflow/procurement-service/internal/errors"
)

// NotificationRepository persists notification rows. Payloads are structured
// maps in the service layer and serialized to JSONB only here.
type NotificationRepository struct {
	db *database.DB
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db *database.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const insertNotification = `
	INSERT INTO notifications
	    (id, type, title, message, payload, priority,
	     target_role, target_user_id, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::notification_status, $10)
`

// CreateNotification inserts a notification unconditionally.
func (r *NotificationRepository) CreateNotification(ctx context.Context, n *Notification) error {
	payload, err := marshalPayload(n.Payload)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, insertNotification,
		n.ID, n.Type, n.Title, n.Message, payload, n.Priority,
		n.TargetRole, n.TargetUserID, n.Status, n.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create notification")
	}
	return nil
}

// CreateIfAbsent inserts a notification unless an UNREAD one of the same type
// and scenario already references the department in its payload. Returns
// whether a row was created. The dedup check and insert are a single
// statement, so concurrent resolvers cannot both insert.
func (r *NotificationRepository) CreateIfAbsent(ctx context.Context, n *Notification, departmentID, scenario string) (bool, error) {
	payload, err := marshalPayload(n.Payload)
	if err != nil {
		return false, err
	}

	query := `
		INSERT INTO notifications
		    (id, type, title, message, payload, priority,
		     target_role, target_user_id, status, created_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9::notification_status, $10
		WHERE NOT EXISTS (
		    SELECT 1 FROM notifications
		    WHERE type = $2
		      AND status = 'UNREAD'::notification_status
		      AND payload->>'department_id' = $11
		      AND payload->>'scenario' = $12
		)
	`

	tag, err := r.db.Exec(ctx, query,
		n.ID, n.Type, n.Title, n.Message, payload, n.Priority,
		n.TargetRole, n.TargetUserID, n.Status, n.CreatedAt,
		departmentID, scenario,
	)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to create notification")
	}
	return tag.RowsAffected() > 0, nil
}

// MarkNotificationRead moves an UNREAD notification to READ.
func (r *NotificationRepository) MarkNotificationRead(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE notifications
		SET status  = 'READ'::notification_status,
		    read_at = $2
		WHERE id = $1
		  AND status = 'UNREAD'::notification_status
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, at).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		var exists bool
		checkErr := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1)`, id).Scan(&exists)
		if checkErr != nil {
			return errors.Wrap(checkErr, errors.ErrCodeInternal, "failed to check notification")
		}
		if !exists {
			return errors.NotFound("notification", id)
		}
		return errors.Conflict("notification is not unread")
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to mark notification read")
	}
	return nil
}

// ListNotifications returns notifications for a role or user, newest first.
func (r *NotificationRepository) ListNotifications(ctx context.Context, targetRole *Role, targetUserID *string, onlyUnread bool) ([]*Notification, error) {
	query := `
		SELECT id, type, title, message, payload, priority,
		       target_role, target_user_id, status, created_at, read_at
		FROM notifications
		WHERE (($1::text IS NOT NULL AND target_role = $1)
		    OR ($2::text IS NOT NULL AND target_user_id = $2))
	`
	if onlyUnread {
		query += ` AND status = 'UNREAD'::notification_status`
	}
	query += ` ORDER BY created_at DESC LIMIT 200`

	rows, err := r.db.Query(ctx, query, targetRole, targetUserID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list notifications")
	}
	defer rows.Close()

	notifications := make([]*Notification, 0)
	for rows.Next() {
		n := &Notification{}
		var payload []byte
		err := rows.Scan(
			&n.ID,
			&n.Type,
			&n.Title,
			&n.Message,
			&payload,
			&n.Priority,
			&n.TargetRole,
			&n.TargetUserID,
			&n.Status,
			&n.CreatedAt,
			&n.ReadAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan notification")
		}
		if payload != nil {
			if err := json.Unmarshal(payload, &n.Payload); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal notification payload")
			}
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

func marshalPayload(payload map[string]any) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal notification payload")
	}
	return data, nil
}
