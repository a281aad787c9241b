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

// Resolution actions reported by Resolve.
const (
	ResolutionAssigned = "ASSIGNED"
	ResolutionNotified = "NOTIFICATION_SENT"
	ResolutionNoAction = "NO_ACTION"
)

// ResolveResult describes what Resolve did for one department.
type ResolveResult struct {
	DepartmentID        string
	Action              string
	AssignedManagerID   *string
	NotificationCreated bool
}

// ResolveAllSummary aggregates a sweep over every active department.
type ResolveAllSummary struct {
	DepartmentsChecked   int
	ManagersAssigned     int
	NotificationsCreated int
	Failures             int
}

// AssignmentService keeps Department.managerId consistent with the pool of
// ACTIVE managers belonging to each department.
type AssignmentService struct {
	departments   DepartmentStore
	users         UserStore
	notifications NotificationStore
	log           *logger.Logger
}

// NewAssignmentService creates a new AssignmentService.
func NewAssignmentService(
	departments DepartmentStore,
	users UserStore,
	notifications NotificationStore,
	log *logger.Logger,
) *AssignmentService {
	return &AssignmentService{
		departments:   departments,
		users:         users,
		notifications: notifications,
		log:           log,
	}
}

// Resolve classifies the department's manager pool and acts on it:
//
//	0 managers: clear a stale assignment and notify admins (deduplicated);
//	1 manager:  assign it (idempotent no-op when already assigned);
//	N managers: keep a valid existing assignment but raise a HIGH-priority
//	            advisory either way; never auto-select among candidates.
func (s *AssignmentService) Resolve(ctx context.Context, departmentID string) (*ResolveResult, error) {
	dep, err := s.departments.GetDepartment(ctx, departmentID)
	if err != nil {
		return nil, err
	}

	managers, err := s.departments.ActiveManagers(ctx, departmentID)
	if err != nil {
		return nil, err
	}

	result := &ResolveResult{DepartmentID: departmentID, Action: ResolutionNoAction}

	switch len(managers) {
	case 0:
		if dep.ManagerID != nil {
			if err := s.clearManager(ctx, dep); err != nil {
				return nil, err
			}
		}
		created, err := s.notifyAdmins(ctx, dep, repository.ScenarioNoManagers, managers)
		if err != nil {
			return nil, err
		}
		result.Action = ResolutionNotified
		result.NotificationCreated = created

	case 1:
		m := managers[0]
		if dep.ManagerID != nil && *dep.ManagerID == m.ID {
			return result, nil
		}
		if err := s.assignManager(ctx, dep, m, SystemActorID, repository.ActionManagerAutoAssigned); err != nil {
			return nil, err
		}
		result.Action = ResolutionAssigned
		result.AssignedManagerID = &m.ID

	default:
		created, err := s.notifyAdmins(ctx, dep, repository.ScenarioMultipleManagers, managers)
		if err != nil {
			return nil, err
		}
		result.Action = ResolutionNotified
		result.NotificationCreated = created
	}

	return result, nil
}

// ResolveAll sweeps every ACTIVE department. Failures are isolated per
// department and counted, not propagated.
func (s *AssignmentService) ResolveAll(ctx context.Context) (*ResolveAllSummary, error) {
	departments, err := s.departments.ListActiveDepartments(ctx)
	if err != nil {
		return nil, err
	}

	summary := &ResolveAllSummary{}
	for _, dep := range departments {
		summary.DepartmentsChecked++
		result, err := s.Resolve(ctx, dep.ID)
		if err != nil {
			summary.Failures++
			s.log.Warn().Err(err).Str("department_id", dep.ID).Msg("Manager resolution failed")
			continue
		}
		if result.Action == ResolutionAssigned {
			summary.ManagersAssigned++
		}
		if result.NotificationCreated {
			summary.NotificationsCreated++
		}
	}

	s.log.Info().
		Int("departments", summary.DepartmentsChecked).
		Int("assigned", summary.ManagersAssigned).
		Int("notifications", summary.NotificationsCreated).
		Int("failures", summary.Failures).
		Msg("Manager resolution sweep completed")

	return summary, nil
}

// ManualAssign lets an admin bind a specific manager to a department. The
// manager must be an ACTIVE MANAGER belonging to that department.
func (s *AssignmentService) ManualAssign(ctx context.Context, actor Actor, departmentID, managerID string) error {
	if actor.Role != repository.RoleAdmin {
		return errors.Forbidden("only admins can assign managers")
	}

	dep, err := s.departments.GetDepartment(ctx, departmentID)
	if err != nil {
		return err
	}

	manager, err := s.users.GetUser(ctx, managerID)
	if err != nil {
		return err
	}
	if manager.Role != repository.RoleManager || manager.Status != repository.UserActive {
		return errors.InvalidInput("manager_id", "user is not an active manager")
	}
	if manager.DepartmentID == nil || *manager.DepartmentID != departmentID {
		return errors.InvalidInput("manager_id", "manager does not belong to this department")
	}

	return s.assignManager(ctx, dep, manager, actor.ID, repository.ActionManagerManualAssigned)
}

func (s *AssignmentService) assignManager(ctx context.Context, dep *repository.Department, m *repository.User, actorID, action string) error {
	audit := &repository.AuditLogEntry{
		ID:          uuid.NewString(),
		Action:      action,
		Entity:      "Department",
		EntityID:    dep.ID,
		PerformedBy: actorID,
		Details:     fmt.Sprintf("Manager %s assigned to department %s", m.Name, dep.Name),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.departments.SetManager(ctx, dep.ID, &m.ID, audit); err != nil {
		return err
	}

	s.log.Info().
		Str("department_id", dep.ID).
		Str("manager_id", m.ID).
		Str("action", action).
		Msg("Department manager assigned")
	return nil
}

func (s *AssignmentService) clearManager(ctx context.Context, dep *repository.Department) error {
	audit := &repository.AuditLogEntry{
		ID:          uuid.NewString(),
		Action:      repository.ActionManagerCleared,
		Entity:      "Department",
		EntityID:    dep.ID,
		PerformedBy: SystemActorID,
		Details:     fmt.Sprintf("Manager assignment cleared for department %s: no active managers remain", dep.Name),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.departments.SetManager(ctx, dep.ID, nil, audit); err != nil {
		return err
	}

	s.log.Info().Str("department_id", dep.ID).Msg("Department manager cleared")
	return nil
}

// notifyAdmins raises a manager-assignment notification for the department,
// skipping creation when an UNREAD one for the same department and scenario
// already exists.
func (s *AssignmentService) notifyAdmins(ctx context.Context, dep *repository.Department, scenario string, managers []*repository.User) (bool, error) {
	available := make([]map[string]any, 0, len(managers))
	for _, m := range managers {
		available = append(available, map[string]any{
			"id":    m.ID,
			"name":  m.Name,
			"email": m.Email,
		})
	}

	payload := map[string]any{
		"department_id":      dep.ID,
		"department_name":    dep.Name,
		"department_code":    dep.Code,
		"scenario":           scenario,
		"available_managers": available,
	}

	title := fmt.Sprintf("No manager available for %s", dep.Name)
	message := fmt.Sprintf("Department %q has no active managers. Create a new manager or move one from another department.", dep.Name)
	if scenario == repository.ScenarioMultipleManagers {
		title = fmt.Sprintf("Multiple managers available for %s", dep.Name)
		if dep.ManagerID != nil {
			message = fmt.Sprintf("Department %q has %d active managers but only one is assigned. Review and reassign if needed.", dep.Name, len(managers))
		} else {
			message = fmt.Sprintf("Department %q has %d active managers. Select which one should be assigned.", dep.Name, len(managers))
		}
	}

	adminRole := repository.RoleAdmin
	n := &repository.Notification{
		ID:         uuid.NewString(),
		Type:       repository.NotificationManagerAssignment,
		Title:      title,
		Message:    message,
		Payload:    payload,
		Priority:   "HIGH",
		TargetRole: &adminRole,
		Status:     repository.NotificationUnread,
		CreatedAt:  time.Now().UTC(),
	}

	created, err := s.notifications.CreateIfAbsent(ctx, n, dep.ID, scenario)
	if err != nil {
		return false, err
	}
	if created {
		s.log.Info().
			Str("department_id", dep.ID).
			Str("scenario", scenario).
			Msg("Manager assignment notification created")
	}
	return created, nil
}
