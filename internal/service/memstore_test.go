package service_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/officeflow/procurement-service/internal/errors"
	"github.com/officeflow/procurement-service/internal/logger"
	"github.com/officeflow/procurement-service/internal/repository"
)

// memStore is an in-memory implementation of every store interface the
// services consume. Composite updates are applied under one lock with the
// same guards the SQL repositories enforce, so guard-miss behavior (Conflict
// vs NotFound) matches production.
type memStore struct {
	mu sync.Mutex

	requests      map[string]*repository.Request
	orders        map[string]*repository.PurchaseOrder
	items         map[string]*repository.Item
	departments   map[string]*repository.Department
	users         map[string]*repository.User
	movements     []*repository.StockMovement
	audits        []*repository.AuditLogEntry
	notifications []*repository.Notification
}

func newMemStore() *memStore {
	return &memStore{
		requests:    map[string]*repository.Request{},
		orders:      map[string]*repository.PurchaseOrder{},
		items:       map[string]*repository.Item{},
		departments: map[string]*repository.Department{},
		users:       map[string]*repository.User{},
	}
}

func testLogger() *logger.Logger {
	return &logger.Logger{Logger: zerolog.Nop()}
}

// capturingPublisher records published events for assertions.
type capturingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	EventType  string
	ResourceID string
	Payload    map[string]any
}

func (p *capturingPublisher) PublishEvent(_ context.Context, eventType, resourceID string, payload map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{EventType: eventType, ResourceID: resourceID, Payload: payload})
}

// ── RequestStore ──────────────────────────────────────────────────────────────

func (s *memStore) CreateRequest(_ context.Context, req *repository.Request, audit *repository.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = cloneRequest(req)
	s.audits = append(s.audits, audit)
	return nil
}

func (s *memStore) GetRequest(_ context.Context, id string) (*repository.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, errors.NotFound("request", id)
	}
	return cloneRequest(req), nil
}

func (s *memStore) ListRequests(_ context.Context, f repository.RequestFilter) ([]*repository.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repository.Request
	for _, req := range s.requests {
		if f.DepartmentID != nil && req.DepartmentID != *f.DepartmentID {
			continue
		}
		if f.RequesterID != nil && req.RequesterID != *f.RequesterID {
			continue
		}
		if f.Status != nil && req.Status != *f.Status {
			continue
		}
		out = append(out, cloneRequest(req))
	}
	return out, nil
}

func (s *memStore) CompleteRequest(_ context.Context, id string, audit *repository.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return errors.NotFound("request", id)
	}
	if req.Status != repository.RequestApproved {
		return errors.Conflict(fmt.Sprintf("request is %s, only APPROVED requests can be completed", req.Status))
	}
	req.Status = repository.RequestCompleted
	req.UpdatedAt = time.Now().UTC()
	s.audits = append(s.audits, audit)
	return nil
}

// ── ApprovalStore ─────────────────────────────────────────────────────────────

func (s *memStore) ApplyDecision(_ context.Context, d *repository.ApprovalDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[d.RequestID]
	if !ok {
		return errors.NotFound("request", d.RequestID)
	}

	var approval *repository.Approval
	for _, a := range req.Approvals {
		if a.ID == d.ApprovalID {
			approval = a
		}
	}
	if approval == nil {
		return errors.NotFound("approval", d.ApprovalID)
	}
	if approval.Status != repository.ApprovalPending {
		return errors.Conflict("approval has already been decided")
	}
	if req.Status != repository.RequestPending && req.Status != repository.RequestInProgress {
		return errors.Conflict(fmt.Sprintf("request is already %s", req.Status))
	}

	if d.ReassignTo != nil {
		approval.ApproverID = d.ReassignTo
	}
	approval.Status = d.NewApprovalStatus
	approval.Comments = d.Comments
	decidedAt := d.DecidedAt
	approval.DecidedAt = &decidedAt
	approval.UpdatedAt = d.DecidedAt

	req.Status = d.NewRequestStatus
	req.UpdatedAt = d.DecidedAt

	s.audits = append(s.audits, d.Audits...)
	return nil
}

func (s *memStore) PendingApprovalsForUser(_ context.Context, userID string) ([]*repository.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repository.Approval
	for _, req := range s.requests {
		if req.Status != repository.RequestPending && req.Status != repository.RequestInProgress {
			continue
		}
		current := minPendingLevel(req)
		for _, a := range req.Approvals {
			if a.Status == repository.ApprovalPending &&
				a.Level == current &&
				a.ApproverID != nil && *a.ApproverID == userID {
				c := *a
				out = append(out, &c)
			}
		}
	}
	return out, nil
}

func minPendingLevel(req *repository.Request) int {
	min := 0
	for _, a := range req.Approvals {
		if a.Status != repository.ApprovalPending {
			continue
		}
		if min == 0 || a.Level < min {
			min = a.Level
		}
	}
	return min
}

// ── OrderStore ────────────────────────────────────────────────────────────────

func (s *memStore) CreateOrder(_ context.Context, po *repository.PurchaseOrder, audit *repository.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[po.ID] = cloneOrder(po)
	s.audits = append(s.audits, audit)
	return nil
}

func (s *memStore) GetOrder(_ context.Context, id string) (*repository.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	po, ok := s.orders[id]
	if !ok {
		return nil, errors.NotFound("purchase order", id)
	}
	return cloneOrder(po), nil
}

func (s *memStore) ListOrdersDue(_ context.Context, from, to time.Time) ([]*repository.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repository.PurchaseOrder
	for _, po := range s.orders {
		if po.Status != repository.OrderOrdered || po.ExpectedDate == nil {
			continue
		}
		if po.ExpectedDate.Before(from) || po.ExpectedDate.After(to) {
			continue
		}
		out = append(out, cloneOrder(po))
	}
	return out, nil
}

func (s *memStore) MarkOrdered(_ context.Context, id string, audit *repository.AuditLogEntry) error {
	return s.transitionOrder(id, repository.OrderDraft, repository.OrderOrdered, audit)
}

func (s *memStore) CancelOrder(_ context.Context, id string, audit *repository.AuditLogEntry) error {
	return s.transitionOrder(id, repository.OrderDraft, repository.OrderCancelled, audit)
}

func (s *memStore) transitionOrder(id string, from, to repository.OrderStatus, audit *repository.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	po, ok := s.orders[id]
	if !ok {
		return errors.NotFound("purchase order", id)
	}
	if po.Status != from {
		return errors.Conflict(fmt.Sprintf("order is %s, expected %s", po.Status, from))
	}
	po.Status = to
	po.UpdatedAt = time.Now().UTC()
	s.audits = append(s.audits, audit)
	return nil
}

func (s *memStore) ReceiveOrder(_ context.Context, receipt *repository.OrderReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.orders[receipt.OrderID]
	if !ok {
		return errors.NotFound("purchase order", receipt.OrderID)
	}
	if po.Status != repository.OrderOrdered {
		return errors.Conflict(fmt.Sprintf("order is %s, only ORDERED orders can be received", po.Status))
	}
	for _, delta := range receipt.Deltas {
		if _, ok := s.items[delta.ItemID]; !ok {
			return errors.NotFound("item", delta.ItemID)
		}
	}

	po.Status = repository.OrderReceived
	receivedAt := receipt.ReceivedAt
	po.ReceivedDate = &receivedAt
	po.UpdatedAt = receipt.ReceivedAt
	for _, delta := range receipt.Deltas {
		s.items[delta.ItemID].CurrentStock += delta.Quantity
	}
	s.movements = append(s.movements, receipt.Movements...)
	s.audits = append(s.audits, receipt.Audit)
	return nil
}

// ── ItemStore ─────────────────────────────────────────────────────────────────

func (s *memStore) GetItem(_ context.Context, id string) (*repository.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, errors.NotFound("item", id)
	}
	c := *item
	return &c, nil
}

func (s *memStore) AdjustStock(_ context.Context, adj *repository.StockAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[adj.ItemID]
	if !ok {
		return errors.NotFound("item", adj.ItemID)
	}
	if item.CurrentStock+adj.Delta < 0 {
		return errors.Conflict("adjustment would drive stock negative")
	}
	item.CurrentStock += adj.Delta
	s.movements = append(s.movements, adj.Movement)
	s.audits = append(s.audits, adj.Audit)
	return nil
}

func (s *memStore) ListMovements(_ context.Context, itemID string) ([]*repository.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repository.StockMovement
	for _, m := range s.movements {
		if m.ItemID == itemID {
			out = append(out, m)
		}
	}
	return out, nil
}

// ── DepartmentStore / UserStore ───────────────────────────────────────────────

func (s *memStore) GetDepartment(_ context.Context, id string) (*repository.Department, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dep, ok := s.departments[id]
	if !ok {
		return nil, errors.NotFound("department", id)
	}
	c := *dep
	return &c, nil
}

func (s *memStore) ListActiveDepartments(_ context.Context) ([]*repository.Department, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repository.Department
	for _, dep := range s.departments {
		if dep.Status == "ACTIVE" {
			c := *dep
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *memStore) ActiveManagers(_ context.Context, departmentID string) ([]*repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repository.User
	for _, u := range s.users {
		if u.Role == repository.RoleManager &&
			u.Status == repository.UserActive &&
			u.DepartmentID != nil && *u.DepartmentID == departmentID {
			c := *u
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *memStore) SetManager(_ context.Context, departmentID string, managerID *string, audit *repository.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dep, ok := s.departments[departmentID]
	if !ok {
		return errors.NotFound("department", departmentID)
	}
	dep.ManagerID = managerID
	dep.UpdatedAt = time.Now().UTC()
	s.audits = append(s.audits, audit)
	return nil
}

func (s *memStore) GetUser(_ context.Context, id string) (*repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errors.NotFound("user", id)
	}
	c := *u
	return &c, nil
}

// ── NotificationStore ─────────────────────────────────────────────────────────

func (s *memStore) CreateNotification(_ context.Context, n *repository.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	return nil
}

func (s *memStore) CreateIfAbsent(_ context.Context, n *repository.Notification, departmentID, scenario string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.notifications {
		if existing.Type != n.Type || existing.Status != repository.NotificationUnread {
			continue
		}
		if existing.Payload["department_id"] == departmentID && existing.Payload["scenario"] == scenario {
			return false, nil
		}
	}
	s.notifications = append(s.notifications, n)
	return true, nil
}

func (s *memStore) MarkNotificationRead(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if n.ID == id {
			if n.Status != repository.NotificationUnread {
				return errors.Conflict("notification has already been read")
			}
			n.Status = repository.NotificationRead
			n.ReadAt = &at
			return nil
		}
	}
	return errors.NotFound("notification", id)
}

func (s *memStore) ListNotifications(_ context.Context, targetRole *repository.Role, targetUserID *string, onlyUnread bool) ([]*repository.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repository.Notification
	for _, n := range s.notifications {
		if onlyUnread && n.Status != repository.NotificationUnread {
			continue
		}
		matchRole := targetRole != nil && n.TargetRole != nil && *n.TargetRole == *targetRole
		matchUser := targetUserID != nil && n.TargetUserID != nil && *n.TargetUserID == *targetUserID
		if matchRole || matchUser {
			out = append(out, n)
		}
	}
	return out, nil
}

// ── AuditStore ────────────────────────────────────────────────────────────────

func (s *memStore) AppendAudit(_ context.Context, e *repository.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, e)
	return nil
}

func (s *memStore) ListAuditLog(_ context.Context, f repository.AuditFilter) ([]*repository.AuditLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repository.AuditLogEntry
	for _, e := range s.audits {
		if f.Entity != nil && e.Entity != *f.Entity {
			continue
		}
		if f.EntityID != nil && e.EntityID != *f.EntityID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// auditActions returns the recorded actions for an entity id, in order.
func (s *memStore) auditActions(entityID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.audits {
		if e.EntityID == entityID {
			out = append(out, e.Action)
		}
	}
	return out
}

// ── clone helpers ─────────────────────────────────────────────────────────────

func cloneRequest(req *repository.Request) *repository.Request {
	c := *req
	c.Lines = make([]*repository.RequestLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lc := *line
		c.Lines = append(c.Lines, &lc)
	}
	c.Approvals = make([]*repository.Approval, 0, len(req.Approvals))
	for _, a := range req.Approvals {
		ac := *a
		c.Approvals = append(c.Approvals, &ac)
	}
	return &c
}

func cloneOrder(po *repository.PurchaseOrder) *repository.PurchaseOrder {
	c := *po
	c.Lines = make([]*repository.POLine, 0, len(po.Lines))
	for _, line := range po.Lines {
		lc := *line
		c.Lines = append(c.Lines, &lc)
	}
	return &c
}
