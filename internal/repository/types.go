package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// ── Status vocabularies ───────────────────────────────────────────────────────

// RequestStatus is the purchase request lifecycle. PENDING and IN_PROGRESS
// are in flight; APPROVED and REJECTED are terminal for the approval chain;
// COMPLETED marks an approved request consumed by order generation.
type RequestStatus string

const (
	RequestPending    RequestStatus = "PENDING"
	RequestInProgress RequestStatus = "IN_PROGRESS"
	RequestApproved   RequestStatus = "APPROVED"
	RequestRejected   RequestStatus = "REJECTED"
	RequestCompleted  RequestStatus = "COMPLETED"
)

// Terminal reports whether the approval chain can still act on the request.
func (s RequestStatus) Terminal() bool {
	return s == RequestApproved || s == RequestRejected || s == RequestCompleted
}

// ApprovalStatus is the per-level approval state.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// OrderStatus is the purchase order lifecycle. Transitions are forward-only:
// DRAFT → ORDERED → RECEIVED, with CANCELLED reachable from DRAFT.
type OrderStatus string

const (
	OrderDraft     OrderStatus = "DRAFT"
	OrderOrdered   OrderStatus = "ORDERED"
	OrderReceived  OrderStatus = "RECEIVED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// MovementType carries the sign semantics of a stock movement. Quantities are
// stored positive; INBOUND and RETURN add to stock, OUTBOUND subtracts,
// ADJUSTMENT carries its sign in the delta that produced it.
type MovementType string

const (
	MovementInbound    MovementType = "INBOUND"
	MovementOutbound   MovementType = "OUTBOUND"
	MovementReturn     MovementType = "RETURN"
	MovementAdjustment MovementType = "ADJUSTMENT"
)

// NotificationStatus is the read-state of a persisted notification.
type NotificationStatus string

const (
	NotificationUnread    NotificationStatus = "UNREAD"
	NotificationRead      NotificationStatus = "READ"
	NotificationDismissed NotificationStatus = "DISMISSED"
)

// Role is a user's global role.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleManager  Role = "MANAGER"
	RoleEmployee Role = "EMPLOYEE"
)

// UserStatus is a user's account state.
type UserStatus string

const (
	UserActive   UserStatus = "ACTIVE"
	UserInactive UserStatus = "INACTIVE"
)

// ── Entities ──────────────────────────────────────────────────────────────────

// User is a minimal projection of the identity collaborator's user record.
type User struct {
	ID           string
	Name         string
	Email        string
	Role         Role
	Status       UserStatus
	DepartmentID *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Department groups users and scopes request approval authority. ManagerID,
// when set, references an ACTIVE MANAGER user belonging to this department.
type Department struct {
	ID        string
	Code      string
	Name      string
	Budget    decimal.Decimal
	ManagerID *string
	ParentID  *string
	Status    string // ACTIVE | INACTIVE
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Request is a purchase request with its line items and approval chain.
// TotalAmount always equals the sum of line totals; it is recomputed
// server-side on creation and never trusted from the client.
type Request struct {
	ID           string
	Title        string
	DepartmentID string
	RequesterID  string
	Status       RequestStatus
	TotalAmount  decimal.Decimal
	Lines        []*RequestLine
	Approvals    []*Approval
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RequestLine is one item on a purchase request.
type RequestLine struct {
	ID        string
	RequestID string
	ItemID    string
	Quantity  int64
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// Approval is one ordered step in a request's approval chain. Levels are
// contiguous starting at 1. ApproverID may be nil for a level bound only to
// a role; it is filled in (and audited) when a stand-in acts.
type Approval struct {
	ID           string
	RequestID    string
	ApproverID   *string
	RequiredRole Role
	Level        int
	Status       ApprovalStatus
	Comments     *string
	DecidedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PurchaseOrder is a consolidated order sent to a supplier. ReceivedDate is
// set if and only if Status is RECEIVED.
type PurchaseOrder struct {
	ID           string
	OrderNumber  string
	SupplierID   string
	Status       OrderStatus
	TotalAmount  decimal.Decimal
	OrderDate    time.Time
	ExpectedDate *time.Time
	ReceivedDate *time.Time
	Notes        *string
	Lines        []*POLine
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// POLine is one item on a purchase order.
type POLine struct {
	ID        string
	OrderID   string
	ItemID    string
	Quantity  int64
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// Item is a stocked supply item. CurrentStock never goes negative; all
// writers go through atomic increments, never blind overwrites.
type Item struct {
	ID           string
	SKU          string
	Name         string
	Unit         string
	CurrentStock int64
	MinStock     int64
	Price        decimal.Decimal
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SignedQuantity returns the stock delta a movement represents.
func (m *StockMovement) SignedQuantity() int64 {
	if m.Type == MovementOutbound {
		return -m.Quantity
	}
	return m.Quantity
}

// StockMovement is one immutable inventory-affecting event. For every item,
// initial stock plus the sum of signed quantities equals current stock.
type StockMovement struct {
	ID        string
	ItemID    string
	Type      MovementType
	Quantity  int64 // stored positive; see SignedQuantity
	Reason    string
	Reference *string // e.g. purchase order number
	ActorID   string
	CreatedAt time.Time
}

// AuditLogEntry is one immutable record of a state-changing operation. It is
// written in the same transaction as the mutation it describes.
type AuditLogEntry struct {
	ID          string
	Action      string
	Entity      string
	EntityID    string
	PerformedBy string
	Details     string
	CreatedAt   time.Time
}

// Audit actions recorded by this service.
const (
	ActionCreateRequest         = "CREATE_REQUEST"
	ActionApproveRequest        = "APPROVE_REQUEST"
	ActionRejectRequest         = "REJECT_REQUEST"
	ActionReassignApproval      = "REASSIGN_APPROVAL"
	ActionCompleteRequest       = "COMPLETE_REQUEST"
	ActionCreateOrder           = "CREATE_ORDER"
	ActionSendOrder             = "SEND_ORDER"
	ActionReceiveOrder          = "RECEIVE_ORDER"
	ActionAutoReceiveFailed     = "AUTO_RECEIVE_FAILED"
	ActionProcessReturn         = "PROCESS_RETURN"
	ActionManagerAutoAssigned   = "MANAGER_AUTO_ASSIGNED"
	ActionManagerManualAssigned = "MANAGER_MANUALLY_ASSIGNED"
	ActionManagerCleared        = "MANAGER_CLEARED"
)

// Notification is a persisted notification row. Payload is structured in the
// service layer and serialized to JSONB only at the storage boundary.
type Notification struct {
	ID           string
	Type         string
	Title        string
	Message      string
	Payload      map[string]any
	Priority     string // LOW | NORMAL | HIGH
	TargetRole   *Role
	TargetUserID *string
	Status       NotificationStatus
	CreatedAt    time.Time
	ReadAt       *time.Time
}

// Notification types produced by this service.
const (
	NotificationManagerAssignment = "MANAGER_ASSIGNMENT"
	NotificationRequestDecided    = "REQUEST_DECIDED"
)

// Manager-assignment notification scenarios.
const (
	ScenarioNoManagers       = "NO_MANAGERS"
	ScenarioMultipleManagers = "MULTIPLE_MANAGERS"
)

// ── Composite transactional updates ──────────────────────────────────────────
//
// Each struct below describes one atomic multi-row mutation. The pgx
// repositories apply them inside a single transaction; the in-memory test
// ledger applies them under one lock.

// ApprovalDecision applies one approve/reject decision: the acted approval's
// new state, the request's new status, an optional audited reassignment, and
// the audit entries describing it all.
type ApprovalDecision struct {
	RequestID         string
	ApprovalID        string
	ReassignTo        *string // set when a stand-in takes over the level
	NewApprovalStatus ApprovalStatus
	Comments          *string
	DecidedAt         time.Time
	NewRequestStatus  RequestStatus
	Audits            []*AuditLogEntry
}

// StockDelta is one atomic increment against an item's stock counter.
type StockDelta struct {
	ItemID   string
	Quantity int64
}

// OrderReceipt applies the receive transition: the status guard
// (ORDERED → RECEIVED), per-line stock increments, movement rows and the
// audit entry, all or nothing.
type OrderReceipt struct {
	OrderID    string
	ReceivedAt time.Time
	Deltas     []StockDelta
	Movements  []*StockMovement
	Audit      *AuditLogEntry
}

// StockAdjustment applies one guarded stock change (returns, adjustments)
// with its movement and audit rows.
type StockAdjustment struct {
	ItemID   string
	Delta    int64
	Movement *StockMovement
	Audit    *AuditLogEntry
}

// RequestFilter narrows request listings.
type RequestFilter struct {
	DepartmentID *string
	RequesterID  *string
	Status       *RequestStatus
	Limit        int
	Offset       int
}

// AuditFilter narrows audit log listings.
type AuditFilter struct {
	Entity   *string
	EntityID *string
	Limit    int
	Offset   int
}
