package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/officeflow/procurement-service/internal/errors"
	"github.com/officeflow/procurement-service/internal/repository"
	"github.com/officeflow/procurement-service/internal/service"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	deptEngineering = "dept-eng"
	deptSales       = "dept-sales"
	managerAlice    = "user-alice"
	adminRoot       = "user-root"
	employeeBob     = "user-bob"
)

func seedOrg(store *memStore) {
	now := time.Now().UTC()

	store.departments[deptEngineering] = &repository.Department{
		ID:        deptEngineering,
		Code:      "ENG",
		Name:      "Engineering",
		ManagerID: strPtr(managerAlice),
		Status:    "ACTIVE",
		CreatedAt: now,
		UpdatedAt: now,
	}
	store.departments[deptSales] = &repository.Department{
		ID:        deptSales,
		Code:      "SAL",
		Name:      "Sales",
		Status:    "ACTIVE",
		CreatedAt: now,
		UpdatedAt: now,
	}

	store.users[managerAlice] = &repository.User{
		ID: managerAlice, Name: "Alice", Email: "alice@example.com",
		Role: repository.RoleManager, Status: repository.UserActive, DepartmentID: strPtr(deptEngineering),
	}
	store.users[adminRoot] = &repository.User{
		ID: adminRoot, Name: "Root", Email: "root@example.com",
		Role: repository.RoleAdmin, Status: repository.UserActive,
	}
	store.users[employeeBob] = &repository.User{
		ID: employeeBob, Name: "Bob", Email: "bob@example.com",
		Role: repository.RoleEmployee, Status: repository.UserActive, DepartmentID: strPtr(deptEngineering),
	}
}

func strPtr(s string) *string { return &s }

func employeeActor() service.Actor {
	dep := deptEngineering
	return service.Actor{ID: employeeBob, Role: repository.RoleEmployee, DepartmentID: &dep}
}

func adminActor() service.Actor {
	return service.Actor{ID: adminRoot, Role: repository.RoleAdmin}
}

func newRequestService(store *memStore) *service.RequestService {
	return service.NewRequestService(store, store, testLogger())
}

func validInput() service.CreateRequestInput {
	return service.CreateRequestInput{
		Title:        "Office chairs",
		DepartmentID: deptEngineering,
		Lines: []service.RequestLineInput{
			{ItemID: "item-chair", Quantity: 3, UnitPrice: decimal.RequireFromString("129.99")},
			{ItemID: "item-desk", Quantity: 2, UnitPrice: decimal.RequireFromString("250.00")},
		},
	}
}

// =============================================================================
// CREATE REQUEST
// =============================================================================

func TestCreateRequest_TotalsRecomputedFromLines(t *testing.T) {
	// GIVEN: two lines priced 3x129.99 and 2x250.00
	// WHEN: creating a request
	// THEN: total is 889.97 regardless of anything the client claims

	store := newMemStore()
	seedOrg(store)
	svc := newRequestService(store)

	req, err := svc.CreateRequest(context.Background(), employeeActor(), validInput())
	require.NoError(t, err)

	assert.True(t, req.TotalAmount.Equal(decimal.RequireFromString("889.97")),
		"expected 889.97, got %s", req.TotalAmount)
	assert.True(t, req.Lines[0].LineTotal.Equal(decimal.RequireFromString("389.97")))
	assert.True(t, req.Lines[1].LineTotal.Equal(decimal.RequireFromString("500.00")))
}

func TestCreateRequest_ChainSeededFromDepartmentManager(t *testing.T) {
	// GIVEN: a department with a resolved manager
	// WHEN: creating a request
	// THEN: level 1 is the manager, level 2 an unbound admin slot, all PENDING

	store := newMemStore()
	seedOrg(store)
	svc := newRequestService(store)

	req, err := svc.CreateRequest(context.Background(), employeeActor(), validInput())
	require.NoError(t, err)

	require.Len(t, req.Approvals, 2)
	assert.Equal(t, repository.RequestPending, req.Status)

	level1 := req.Approvals[0]
	assert.Equal(t, 1, level1.Level)
	require.NotNil(t, level1.ApproverID)
	assert.Equal(t, managerAlice, *level1.ApproverID)
	assert.Equal(t, repository.RoleManager, level1.RequiredRole)
	assert.Equal(t, repository.ApprovalPending, level1.Status)

	level2 := req.Approvals[1]
	assert.Equal(t, 2, level2.Level)
	assert.Nil(t, level2.ApproverID)
	assert.Equal(t, repository.RoleAdmin, level2.RequiredRole)
}

func TestCreateRequest_NoManagerDepartment_GetsAdminOnlyChain(t *testing.T) {
	// GIVEN: a department without a resolved manager
	// WHEN: an admin creates a request for it
	// THEN: the chain is a single unbound admin level, never unactionable

	store := newMemStore()
	seedOrg(store)
	svc := newRequestService(store)

	input := validInput()
	input.DepartmentID = deptSales

	req, err := svc.CreateRequest(context.Background(), adminActor(), input)
	require.NoError(t, err)

	require.Len(t, req.Approvals, 1)
	assert.Nil(t, req.Approvals[0].ApproverID)
	assert.Equal(t, repository.RoleAdmin, req.Approvals[0].RequiredRole)
}

func TestCreateRequest_OtherDepartment_Forbidden(t *testing.T) {
	// GIVEN: an employee of Engineering
	// WHEN: creating a request for Sales
	// THEN: forbidden

	store := newMemStore()
	seedOrg(store)
	svc := newRequestService(store)

	input := validInput()
	input.DepartmentID = deptSales

	_, err := svc.CreateRequest(context.Background(), employeeActor(), input)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeForbidden, errors.CodeOf(err))
}

func TestCreateRequest_Validation(t *testing.T) {
	store := newMemStore()
	seedOrg(store)
	svc := newRequestService(store)
	ctx := context.Background()

	noTitle := validInput()
	noTitle.Title = ""
	_, err := svc.CreateRequest(ctx, employeeActor(), noTitle)
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))

	noLines := validInput()
	noLines.Lines = nil
	_, err = svc.CreateRequest(ctx, employeeActor(), noLines)
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))

	badQty := validInput()
	badQty.Lines[0].Quantity = 0
	_, err = svc.CreateRequest(ctx, employeeActor(), badQty)
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))

	negPrice := validInput()
	negPrice.Lines[0].UnitPrice = decimal.RequireFromString("-1")
	_, err = svc.CreateRequest(ctx, employeeActor(), negPrice)
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))
}

func TestCreateRequest_WritesAuditEntry(t *testing.T) {
	store := newMemStore()
	seedOrg(store)
	svc := newRequestService(store)

	req, err := svc.CreateRequest(context.Background(), employeeActor(), validInput())
	require.NoError(t, err)

	actions := store.auditActions(req.ID)
	assert.Equal(t, []string{repository.ActionCreateRequest}, actions)
}

// =============================================================================
// LIST / COMPLETE
// =============================================================================

func TestListRequests_NonAdminScopedToOwnDepartment(t *testing.T) {
	// GIVEN: requests in two departments
	// WHEN: an Engineering employee lists with a Sales filter
	// THEN: the filter is overridden to their own department

	store := newMemStore()
	seedOrg(store)
	svc := newRequestService(store)
	ctx := context.Background()

	_, err := svc.CreateRequest(ctx, employeeActor(), validInput())
	require.NoError(t, err)

	salesInput := validInput()
	salesInput.DepartmentID = deptSales
	_, err = svc.CreateRequest(ctx, adminActor(), salesInput)
	require.NoError(t, err)

	sales := deptSales
	listed, err := svc.ListRequests(ctx, employeeActor(), repository.RequestFilter{DepartmentID: &sales})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, deptEngineering, listed[0].DepartmentID)
}

func TestCompleteRequest_OnlyFromApproved(t *testing.T) {
	// GIVEN: a freshly created (PENDING) request
	// WHEN: an admin tries to complete it
	// THEN: conflict; after forcing APPROVED, completion succeeds and audits

	store := newMemStore()
	seedOrg(store)
	svc := newRequestService(store)
	ctx := context.Background()

	req, err := svc.CreateRequest(ctx, employeeActor(), validInput())
	require.NoError(t, err)

	err = svc.CompleteRequest(ctx, adminActor(), req.ID)
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))

	store.requests[req.ID].Status = repository.RequestApproved

	require.NoError(t, svc.CompleteRequest(ctx, adminActor(), req.ID))
	got, err := svc.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.RequestCompleted, got.Status)
	assert.Contains(t, store.auditActions(req.ID), repository.ActionCompleteRequest)
}

func TestCompleteRequest_NonAdminForbidden(t *testing.T) {
	store := newMemStore()
	seedOrg(store)
	svc := newRequestService(store)

	err := svc.CompleteRequest(context.Background(), employeeActor(), "req-any")
	assert.Equal(t, errors.ErrCodeForbidden, errors.CodeOf(err))
}
