package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/officeflow/procurement-service/internal/errors"
	"github.com/officeflow/procurement-service/internal/logger"
	"github.com/officeflow/procurement-service/internal/repository"
)

// RequestService creates purchase requests and seeds their approval chains.
type RequestService struct {
	requests    RequestStore
	departments DepartmentStore
	log         *logger.Logger
}

// NewRequestService creates a new RequestService.
func NewRequestService(requests RequestStore, departments DepartmentStore, log *logger.Logger) *RequestService {
	return &RequestService{
		requests:    requests,
		departments: departments,
		log:         log,
	}
}

// RequestLineInput is one line of a create-request call.
type RequestLineInput struct {
	ItemID    string
	Quantity  int64
	UnitPrice decimal.Decimal
}

// CreateRequestInput is the create-request call.
type CreateRequestInput struct {
	Title        string
	DepartmentID string
	Lines        []RequestLineInput
}

// CreateRequest validates the input, recomputes all totals server-side,
// seeds the approval chain for the department and persists everything
// atomically. The request starts PENDING with the level-1 approval current.
func (s *RequestService) CreateRequest(ctx context.Context, actor Actor, input CreateRequestInput) (*repository.Request, error) {
	if input.Title == "" {
		return nil, errors.InvalidInput("title", "title is required")
	}
	if len(input.Lines) == 0 {
		return nil, errors.InvalidInput("lines", "at least one line is required")
	}
	for i, line := range input.Lines {
		if line.ItemID == "" {
			return nil, errors.InvalidInput("lines", fmt.Sprintf("line %d: item id is required", i+1))
		}
		if line.Quantity <= 0 {
			return nil, errors.InvalidInput("lines", fmt.Sprintf("line %d: quantity must be positive", i+1))
		}
		if line.UnitPrice.IsNegative() {
			return nil, errors.InvalidInput("lines", fmt.Sprintf("line %d: unit price cannot be negative", i+1))
		}
	}

	dep, err := s.departments.GetDepartment(ctx, input.DepartmentID)
	if err != nil {
		return nil, err
	}
	if actor.Role != repository.RoleAdmin {
		if actor.DepartmentID == nil || *actor.DepartmentID != dep.ID {
			return nil, errors.Forbidden("requests can only be created for your own department")
		}
	}

	now := time.Now().UTC()
	req := &repository.Request{
		ID:           uuid.NewString(),
		Title:        input.Title,
		DepartmentID: dep.ID,
		RequesterID:  actor.ID,
		Status:       repository.RequestPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	total := decimal.Zero
	for _, line := range input.Lines {
		lineTotal := line.UnitPrice.Mul(decimal.NewFromInt(line.Quantity))
		total = total.Add(lineTotal)
		req.Lines = append(req.Lines, &repository.RequestLine{
			ID:        uuid.NewString(),
			RequestID: req.ID,
			ItemID:    line.ItemID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: lineTotal,
		})
	}
	req.TotalAmount = total
	req.Approvals = s.buildApprovalChain(req.ID, dep, now)

	audit := &repository.AuditLogEntry{
		ID:          uuid.NewString(),
		Action:      repository.ActionCreateRequest,
		Entity:      "Request",
		EntityID:    req.ID,
		PerformedBy: actor.ID,
		Details:     fmt.Sprintf("Created request: %s - Amount: $%s - %d levels", req.Title, req.TotalAmount.StringFixed(2), len(req.Approvals)),
		CreatedAt:   now,
	}

	if err := s.requests.CreateRequest(ctx, req, audit); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", req.ID).
		Str("department_id", dep.ID).
		Str("requester_id", actor.ID).
		Int("levels", len(req.Approvals)).
		Msg("Request created")

	return req, nil
}

// buildApprovalChain seeds the chain: level 1 is the department manager,
// level 2 an unbound admin level. A department without a resolved manager
// gets a single admin-only level so the request is never stuck unactionable.
func (s *RequestService) buildApprovalChain(requestID string, dep *repository.Department, now time.Time) []*repository.Approval {
	newApproval := func(level int, approverID *string, role repository.Role) *repository.Approval {
		return &repository.Approval{
			ID:           uuid.NewString(),
			RequestID:    requestID,
			ApproverID:   approverID,
			RequiredRole: role,
			Level:        level,
			Status:       repository.ApprovalPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}

	if dep.ManagerID == nil {
		return []*repository.Approval{
			newApproval(1, nil, repository.RoleAdmin),
		}
	}
	return []*repository.Approval{
		newApproval(1, dep.ManagerID, repository.RoleManager),
		newApproval(2, nil, repository.RoleAdmin),
	}
}

// GetRequest returns a request with its lines and approvals.
func (s *RequestService) GetRequest(ctx context.Context, id string) (*repository.Request, error) {
	return s.requests.GetRequest(ctx, id)
}

// ListRequests returns requests matching the filter. Non-admin callers are
// scoped to their own department.
func (s *RequestService) ListRequests(ctx context.Context, actor Actor, f repository.RequestFilter) ([]*repository.Request, error) {
	if actor.Role != repository.RoleAdmin {
		f.DepartmentID = actor.DepartmentID
	}
	return s.requests.ListRequests(ctx, f)
}

// CompleteRequest marks an APPROVED request COMPLETED once its demand has
// been consolidated into a purchase order.
func (s *RequestService) CompleteRequest(ctx context.Context, actor Actor, id string) error {
	if actor.Role != repository.RoleAdmin && actor.ID != SystemActorID {
		return errors.Forbidden("only admins can complete requests")
	}

	audit := &repository.AuditLogEntry{
		ID:          uuid.NewString(),
		Action:      repository.ActionCompleteRequest,
		Entity:      "Request",
		EntityID:    id,
		PerformedBy: actor.ID,
		Details:     "Request completed after order generation",
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.requests.CompleteRequest(ctx, id, audit); err != nil {
		return err
	}

	s.log.Info().Str("request_id", id).Msg("Request completed")
	return nil
}
