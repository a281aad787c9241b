package service

import "github.com/officeflow/procurement-service/internal/repository"

// Actor is the already-verified caller identity supplied by the
// authorization collaborator.
type Actor struct {
	ID           string
	Role         repository.Role
	DepartmentID *string
}

// SystemActorID marks mutations performed by the service itself (scheduled
// jobs, auto-assignment).
const SystemActorID = "SYSTEM"

// ApprovalPolicy decides who may act on an approval level. Kept as an
// explicit object so the rule is testable rather than scattered through
// handler conditionals.
//
// Rules:
//   - the bound approver always acts on their own level;
//   - an ADMIN may stand in for any pending level, bound or not;
//   - a MANAGER may stand in only for an unbound MANAGER level of a request
//     in their own department.
//
// A stand-in decision rebinds the level to the stand-in, and that rebinding
// is audited.
type ApprovalPolicy struct{}

// IsBoundApprover reports whether the actor is the level's bound approver.
func (ApprovalPolicy) IsBoundApprover(actor Actor, a *repository.Approval) bool {
	return a.ApproverID != nil && *a.ApproverID == actor.ID
}

// CanStandIn reports whether the actor may take over the level.
func (ApprovalPolicy) CanStandIn(actor Actor, a *repository.Approval, requestDepartmentID string) bool {
	if actor.Role == repository.RoleAdmin {
		return true
	}
	if actor.Role == repository.RoleManager &&
		a.ApproverID == nil &&
		a.RequiredRole == repository.RoleManager &&
		actor.DepartmentID != nil &&
		*actor.DepartmentID == requestDepartmentID {
		return true
	}
	return false
}
