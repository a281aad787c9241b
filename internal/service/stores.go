package service

import (
	"context"
	"time"

	"github.com/officeflow/procurement-service/internal/repository"
)

// Store interfaces consumed by the engines. The pgx repositories implement
// them against Postgres; the tests implement them in memory. Each method that
// takes a composite update struct is atomic: either every row it describes is
// applied, or none are.

// RequestStore persists purchase requests and their approval chains.
type RequestStore interface {
	CreateRequest(ctx context.Context, req *repository.Request, audit *repository.AuditLogEntry) error
	GetRequest(ctx context.Context, id string) (*repository.Request, error)
	ListRequests(ctx context.Context, f repository.RequestFilter) ([]*repository.Request, error)
	CompleteRequest(ctx context.Context, id string, audit *repository.AuditLogEntry) error
}

// ApprovalStore applies approval decisions.
type ApprovalStore interface {
	ApplyDecision(ctx context.Context, d *repository.ApprovalDecision) error
	PendingApprovalsForUser(ctx context.Context, userID string) ([]*repository.Approval, error)
}

// OrderStore persists purchase orders and applies lifecycle transitions.
type OrderStore interface {
	CreateOrder(ctx context.Context, po *repository.PurchaseOrder, audit *repository.AuditLogEntry) error
	GetOrder(ctx context.Context, id string) (*repository.PurchaseOrder, error)
	ListOrdersDue(ctx context.Context, from, to time.Time) ([]*repository.PurchaseOrder, error)
	MarkOrdered(ctx context.Context, id string, audit *repository.AuditLogEntry) error
	CancelOrder(ctx context.Context, id string, audit *repository.AuditLogEntry) error
	ReceiveOrder(ctx context.Context, receipt *repository.OrderReceipt) error
}

// ItemStore reads items and applies guarded stock adjustments.
type ItemStore interface {
	GetItem(ctx context.Context, id string) (*repository.Item, error)
	AdjustStock(ctx context.Context, adj *repository.StockAdjustment) error
	ListMovements(ctx context.Context, itemID string) ([]*repository.StockMovement, error)
}

// DepartmentStore reads departments and manager pools and applies manager
// assignment changes.
type DepartmentStore interface {
	GetDepartment(ctx context.Context, id string) (*repository.Department, error)
	ListActiveDepartments(ctx context.Context) ([]*repository.Department, error)
	ActiveManagers(ctx context.Context, departmentID string) ([]*repository.User, error)
	SetManager(ctx context.Context, departmentID string, managerID *string, audit *repository.AuditLogEntry) error
}

// UserStore reads the identity projection.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*repository.User, error)
}

// NotificationStore persists notification rows.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *repository.Notification) error
	CreateIfAbsent(ctx context.Context, n *repository.Notification, departmentID, scenario string) (bool, error)
	MarkNotificationRead(ctx context.Context, id string, at time.Time) error
	ListNotifications(ctx context.Context, targetRole *repository.Role, targetUserID *string, onlyUnread bool) ([]*repository.Notification, error)
}

// AuditStore appends standalone audit entries and serves the audit trail.
type AuditStore interface {
	AppendAudit(ctx context.Context, e *repository.AuditLogEntry) error
	ListAuditLog(ctx context.Context, f repository.AuditFilter) ([]*repository.AuditLogEntry, error)
}

// EventPublisher mirrors notifications onto the event bus. Implementations
// must be non-fatal: publish failures are logged, never returned.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType, resourceID string, payload map[string]any)
}
