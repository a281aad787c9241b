package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/officeflow/procurement-service/internal/errors"
	"github.com/officeflow/procurement-service/internal/logger"
	"github.com/officeflow/procurement-service/internal/repository"
)

// Decision is an approve/reject verdict on the current approval level.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// ApprovalService drives requests through their approval chains one level at
// a time.
type ApprovalService struct {
	requests      RequestStore
	approvals     ApprovalStore
	notifications NotificationStore
	policy        ApprovalPolicy
	events        EventPublisher
	log           *logger.Logger
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(
	requests RequestStore,
	approvals ApprovalStore,
	notifications NotificationStore,
	events EventPublisher,
	log *logger.Logger,
) *ApprovalService {
	return &ApprovalService{
		requests:      requests,
		approvals:     approvals,
		notifications: notifications,
		events:        events,
		log:           log,
	}
}

// SubmitDecision applies one decision to the request's current approval
// level. Rejection is terminal at any level; approval either advances the
// chain (IN_PROGRESS) or, on the final level, approves the request. The
// approval update, request status change, optional reassignment and audit
// entries commit atomically; deciding an already-decided level fails with
// Conflict and has no side effects.
func (s *ApprovalService) SubmitDecision(ctx context.Context, actor Actor, requestID string, decision Decision, comments *string) (*repository.Request, error) {
	if decision != DecisionApprove && decision != DecisionReject {
		return nil, errors.InvalidInput("decision", "must be APPROVE or REJECT")
	}
	if decision == DecisionReject && (comments == nil || *comments == "") {
		return nil, errors.InvalidInput("comments", "comments are required when rejecting a request")
	}

	req, err := s.requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, errors.Conflict(fmt.Sprintf("request is already %s", req.Status))
	}

	current := currentApproval(req)
	if current == nil {
		return nil, errors.Conflict("request has no pending approval")
	}

	now := time.Now().UTC()
	d := &repository.ApprovalDecision{
		RequestID:  req.ID,
		ApprovalID: current.ID,
		Comments:   comments,
		DecidedAt:  now,
	}

	switch {
	case s.policy.IsBoundApprover(actor, current):
		// act directly
	case s.policy.CanStandIn(actor, current, req.DepartmentID):
		d.ReassignTo = &actor.ID
		d.Audits = append(d.Audits, &repository.AuditLogEntry{
			ID:          uuid.NewString(),
			Action:      repository.ActionReassignApproval,
			Entity:      "Approval",
			EntityID:    current.ID,
			PerformedBy: actor.ID,
			Details:     fmt.Sprintf("Level %d of request %q reassigned to stand-in %s (%s)", current.Level, req.Title, actor.ID, actor.Role),
			CreatedAt:   now,
		})
	default:
		return nil, errors.Forbidden("you are not assigned to approve this request")
	}

	if decision == DecisionReject {
		d.NewApprovalStatus = repository.ApprovalRejected
		d.NewRequestStatus = repository.RequestRejected
	} else {
		d.NewApprovalStatus = repository.ApprovalApproved
		if current.Level == highestLevel(req) {
			d.NewRequestStatus = repository.RequestApproved
		} else {
			d.NewRequestStatus = repository.RequestInProgress
		}
	}

	action := repository.ActionApproveRequest
	if decision == DecisionReject {
		action = repository.ActionRejectRequest
	}
	details := fmt.Sprintf("%s request: %s (level %d)", verb(decision), req.Title, current.Level)
	if comments != nil && *comments != "" {
		details += " - Comments: " + *comments
	}
	d.Audits = append(d.Audits, &repository.AuditLogEntry{
		ID:          uuid.NewString(),
		Action:      action,
		Entity:      "Request",
		EntityID:    req.ID,
		PerformedBy: actor.ID,
		Details:     details,
		CreatedAt:   now,
	})

	if err := s.approvals.ApplyDecision(ctx, d); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", req.ID).
		Str("actor_id", actor.ID).
		Int("level", current.Level).
		Str("decision", string(decision)).
		Str("new_status", string(d.NewRequestStatus)).
		Msg("Approval decision applied")

	if d.NewRequestStatus == repository.RequestApproved || d.NewRequestStatus == repository.RequestRejected {
		s.notifyRequester(ctx, req, d.NewRequestStatus, actor, comments)
	}

	return s.requests.GetRequest(ctx, req.ID)
}

// PendingApprovals returns the approvals currently awaiting the user.
func (s *ApprovalService) PendingApprovals(ctx context.Context, userID string) ([]*repository.Approval, error) {
	return s.approvals.PendingApprovalsForUser(ctx, userID)
}

// notifyRequester records a terminal-decision notification for the requester
// and mirrors it onto the event bus. Both are side effects of an already
// committed decision; failures are logged, never returned.
func (s *ApprovalService) notifyRequester(ctx context.Context, req *repository.Request, status repository.RequestStatus, actor Actor, comments *string) {
	title := fmt.Sprintf("Request %q approved", req.Title)
	eventType := "request_approved"
	if status == repository.RequestRejected {
		title = fmt.Sprintf("Request %q rejected", req.Title)
		eventType = "request_rejected"
	}

	message := fmt.Sprintf("Your request %q has been %s.", req.Title, verbPast(status))
	if comments != nil && *comments != "" {
		message += " Comments: " + *comments
	}

	payload := map[string]any{
		"request_id": req.ID,
		"status":     string(status),
		"decided_by": actor.ID,
	}

	n := &repository.Notification{
		ID:           uuid.NewString(),
		Type:         repository.NotificationRequestDecided,
		Title:        title,
		Message:      message,
		Payload:      payload,
		Priority:     "NORMAL",
		TargetUserID: &req.RequesterID,
		Status:       repository.NotificationUnread,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.notifications.CreateNotification(ctx, n); err != nil {
		s.log.Warn().Err(err).Str("request_id", req.ID).Msg("Failed to create requester notification")
	}

	if s.events != nil {
		s.events.PublishEvent(ctx, eventType, req.ID, payload)
	}
}

// currentApproval returns the lowest-level approval still PENDING, or nil.
func currentApproval(req *repository.Request) *repository.Approval {
	var current *repository.Approval
	for _, a := range req.Approvals {
		if a.Status != repository.ApprovalPending {
			continue
		}
		if current == nil || a.Level < current.Level {
			current = a
		}
	}
	return current
}

// highestLevel returns the final level of the chain.
func highestLevel(req *repository.Request) int {
	max := 0
	for _, a := range req.Approvals {
		if a.Level > max {
			max = a.Level
		}
	}
	return max
}

func verb(d Decision) string {
	if d == DecisionReject {
		return "Rejected"
	}
	return "Approved"
}

func verbPast(s repository.RequestStatus) string {
	if s == repository.RequestRejected {
		return "rejected"
	}
	return "approved"
}
