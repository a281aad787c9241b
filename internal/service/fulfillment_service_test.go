package service_test

import (
	"context"
	"fmt"
	"strings"
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

func seedItems(store *memStore) {
	now := time.Now().UTC()
	store.items["item-chair"] = &repository.Item{
		ID: "item-chair", SKU: "CHAIR-01", Name: "Office Chair", Unit: "EA",
		CurrentStock: 10, MinStock: 5, CreatedAt: now, UpdatedAt: now,
	}
	store.items["item-desk"] = &repository.Item{
		ID: "item-desk", SKU: "DESK-01", Name: "Standing Desk", Unit: "EA",
		CurrentStock: 4, MinStock: 2, CreatedAt: now, UpdatedAt: now,
	}
}

func newFulfillment(store *memStore, events *capturingPublisher) *service.FulfillmentService {
	return service.NewFulfillmentService(store, store, store, events, testLogger())
}

func orderInput() service.CreateOrderInput {
	return service.CreateOrderInput{
		SupplierID: "supplier-acme",
		Lines: []service.OrderLineInput{
			{ItemID: "item-chair", Quantity: 5, UnitPrice: decimal.RequireFromString("120.00")},
			{ItemID: "item-desk", Quantity: 2, UnitPrice: decimal.RequireFromString("300.50")},
		},
	}
}

// createOrdered creates and sends an order so it sits in ORDERED.
func createOrdered(t *testing.T, svc *service.FulfillmentService, input service.CreateOrderInput) *repository.PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	po, err := svc.CreateOrder(ctx, adminActor(), input)
	require.NoError(t, err)
	require.NoError(t, svc.SendOrder(ctx, adminActor(), po.ID))
	return po
}

// =============================================================================
// ORDER LIFECYCLE
// =============================================================================

func TestCreateOrder_DraftWithRecomputedTotals(t *testing.T) {
	// GIVEN: lines 5x120.00 and 2x300.50
	// WHEN: creating an order
	// THEN: DRAFT, total 1201.00, order number PO-<date>-<suffix>

	store := newMemStore()
	seedItems(store)
	svc := newFulfillment(store, &capturingPublisher{})

	po, err := svc.CreateOrder(context.Background(), adminActor(), orderInput())
	require.NoError(t, err)

	assert.Equal(t, repository.OrderDraft, po.Status)
	assert.True(t, po.TotalAmount.Equal(decimal.RequireFromString("1201.00")),
		"expected 1201.00, got %s", po.TotalAmount)
	assert.True(t, strings.HasPrefix(po.OrderNumber, "PO-"), "order number %s", po.OrderNumber)
	assert.Contains(t, store.auditActions(po.ID), repository.ActionCreateOrder)
}

func TestCreateOrder_UnknownItemRejected(t *testing.T) {
	store := newMemStore()
	seedItems(store)
	svc := newFulfillment(store, &capturingPublisher{})

	input := orderInput()
	input.Lines[0].ItemID = "item-ghost"
	_, err := svc.CreateOrder(context.Background(), adminActor(), input)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
}

func TestCreateOrder_NonAdminForbidden(t *testing.T) {
	store := newMemStore()
	seedItems(store)
	svc := newFulfillment(store, &capturingPublisher{})

	_, err := svc.CreateOrder(context.Background(), employeeActor(), orderInput())
	assert.Equal(t, errors.ErrCodeForbidden, errors.CodeOf(err))
}

func TestSendOrder_OnlyFromDraft(t *testing.T) {
	store := newMemStore()
	seedItems(store)
	svc := newFulfillment(store, &capturingPublisher{})
	ctx := context.Background()

	po := createOrdered(t, svc, orderInput())

	err := svc.SendOrder(ctx, adminActor(), po.ID)
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
}

func TestCancelOrder_OnlyFromDraft(t *testing.T) {
	store := newMemStore()
	seedItems(store)
	svc := newFulfillment(store, &capturingPublisher{})
	ctx := context.Background()

	po, err := svc.CreateOrder(ctx, adminActor(), orderInput())
	require.NoError(t, err)
	require.NoError(t, svc.CancelOrder(ctx, adminActor(), po.ID))

	got, err := svc.GetOrder(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.OrderCancelled, got.Status)

	sent := createOrdered(t, svc, orderInput())
	err = svc.CancelOrder(ctx, adminActor(), sent.ID)
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
}

// =============================================================================
// RECEIVING
// =============================================================================

func TestReceiveOrder_BooksStockMovementsAndAudit(t *testing.T) {
	// GIVEN: an ORDERED order for 5 chairs and 2 desks
	// WHEN: receiving it
	// THEN: stock increments once per line, one INBOUND movement per line
	//       referencing the order number, RECEIVED status and receive audit

	store := newMemStore()
	seedItems(store)
	events := &capturingPublisher{}
	svc := newFulfillment(store, events)
	ctx := context.Background()

	po := createOrdered(t, svc, orderInput())

	got, err := svc.ReceiveOrder(ctx, adminActor(), po.ID)
	require.NoError(t, err)

	assert.Equal(t, repository.OrderReceived, got.Status)
	require.NotNil(t, got.ReceivedDate)

	assert.Equal(t, int64(15), store.items["item-chair"].CurrentStock)
	assert.Equal(t, int64(6), store.items["item-desk"].CurrentStock)

	chairMoves, err := store.ListMovements(ctx, "item-chair")
	require.NoError(t, err)
	require.Len(t, chairMoves, 1)
	assert.Equal(t, repository.MovementInbound, chairMoves[0].Type)
	assert.Equal(t, int64(5), chairMoves[0].Quantity)
	require.NotNil(t, chairMoves[0].Reference)
	assert.Equal(t, po.OrderNumber, *chairMoves[0].Reference)

	assert.Contains(t, store.auditActions(po.ID), repository.ActionReceiveOrder)
	require.Len(t, events.events, 1)
	assert.Equal(t, "order_received", events.events[0].EventType)
}

func TestReceiveOrder_Idempotent_SecondReceiveConflicts(t *testing.T) {
	// GIVEN: an order already received
	// WHEN: receiving it again
	// THEN: conflict, and stock counters are unchanged

	store := newMemStore()
	seedItems(store)
	svc := newFulfillment(store, &capturingPublisher{})
	ctx := context.Background()

	po := createOrdered(t, svc, orderInput())
	_, err := svc.ReceiveOrder(ctx, adminActor(), po.ID)
	require.NoError(t, err)

	_, err = svc.ReceiveOrder(ctx, adminActor(), po.ID)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))

	assert.Equal(t, int64(15), store.items["item-chair"].CurrentStock)
	assert.Equal(t, int64(6), store.items["item-desk"].CurrentStock)

	moves, err := store.ListMovements(ctx, "item-chair")
	require.NoError(t, err)
	assert.Len(t, moves, 1)
}

func TestReceiveOrder_DraftOrderConflicts(t *testing.T) {
	store := newMemStore()
	seedItems(store)
	svc := newFulfillment(store, &capturingPublisher{})
	ctx := context.Background()

	po, err := svc.CreateOrder(ctx, adminActor(), orderInput())
	require.NoError(t, err)

	_, err = svc.ReceiveOrder(ctx, adminActor(), po.ID)
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
}

// =============================================================================
// AUTO-RECEIVE
// =============================================================================

func TestAutoReceiveDue_PartialFailureIsolated(t *testing.T) {
	// GIVEN: five ORDERED orders due today, one referencing a missing item
	// WHEN: the scheduled run executes
	// THEN: four are received, the bad one is audited AUTO_RECEIVE_FAILED and
	//       the rest of the batch is unaffected

	store := newMemStore()
	seedItems(store)
	svc := newFulfillment(store, &capturingPublisher{})
	ctx := context.Background()

	today := time.Date(2026, time.August, 31, 0, 0, 0, 0, time.UTC)
	due := today.Add(9 * time.Hour)

	var badOrderID string
	for i := 0; i < 5; i++ {
		input := orderInput()
		input.ExpectedDate = &due
		po := createOrdered(t, svc, input)
		if i == 2 {
			badOrderID = po.ID
			// the item vanishes after the order was sent
			store.orders[po.ID].Lines[0].ItemID = "item-ghost"
		}
	}

	summary, err := svc.AutoReceiveDue(ctx, today)
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Processed)
	assert.Equal(t, 4, summary.Received)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Errors, 1)

	assert.Contains(t, store.auditActions(badOrderID), repository.ActionAutoReceiveFailed)

	bad, err := svc.GetOrder(ctx, badOrderID)
	require.NoError(t, err)
	assert.Equal(t, repository.OrderOrdered, bad.Status, "failed order stays ORDERED")

	// 4 received orders x 5 chairs on top of the initial 10
	assert.Equal(t, int64(30), store.items["item-chair"].CurrentStock)
}

func TestAutoReceiveDue_IgnoresOrdersOutsideWindow(t *testing.T) {
	store := newMemStore()
	seedItems(store)
	svc := newFulfillment(store, &capturingPublisher{})
	ctx := context.Background()

	today := time.Date(2026, time.August, 31, 0, 0, 0, 0, time.UTC)
	tomorrow := today.AddDate(0, 0, 1)

	input := orderInput()
	input.ExpectedDate = &tomorrow
	po := createOrdered(t, svc, input)

	summary, err := svc.AutoReceiveDue(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Processed)

	got, err := svc.GetOrder(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.OrderOrdered, got.Status)
}

// =============================================================================
// RETURNS
// =============================================================================

func TestProcessReturn_AddsStockAndMovement(t *testing.T) {
	// GIVEN: 10 chairs in stock
	// WHEN: processing a return of 2
	// THEN: stock is 12 with a RETURN movement and audit entry

	store := newMemStore()
	seedItems(store)
	svc := newFulfillment(store, &capturingPublisher{})
	ctx := context.Background()

	err := svc.ProcessReturn(ctx, adminActor(), "item-chair", 2, "unused after team move")
	require.NoError(t, err)

	assert.Equal(t, int64(12), store.items["item-chair"].CurrentStock)

	moves, err := store.ListMovements(ctx, "item-chair")
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, repository.MovementReturn, moves[0].Type)
	assert.Equal(t, int64(2), moves[0].Quantity)

	assert.Contains(t, store.auditActions("item-chair"), repository.ActionProcessReturn)
}

func TestProcessReturn_Validation(t *testing.T) {
	store := newMemStore()
	seedItems(store)
	svc := newFulfillment(store, &capturingPublisher{})
	ctx := context.Background()

	err := svc.ProcessReturn(ctx, adminActor(), "item-chair", 0, "reason")
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))

	err = svc.ProcessReturn(ctx, adminActor(), "item-chair", 2, "")
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))

	err = svc.ProcessReturn(ctx, adminActor(), "item-ghost", 2, "reason")
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))

	err = svc.ProcessReturn(ctx, employeeActor(), "item-chair", 2, "reason")
	assert.Equal(t, errors.ErrCodeForbidden, errors.CodeOf(err))
}

// movement ledger consistency: initial stock plus signed movement quantities
// always equals current stock.
func TestMovementLedger_SumsToCurrentStock(t *testing.T) {
	store := newMemStore()
	seedItems(store)
	svc := newFulfillment(store, &capturingPublisher{})
	ctx := context.Background()

	po := createOrdered(t, svc, orderInput())
	_, err := svc.ReceiveOrder(ctx, adminActor(), po.ID)
	require.NoError(t, err)
	require.NoError(t, svc.ProcessReturn(ctx, adminActor(), "item-chair", 3, "customer return"))

	moves, err := store.ListMovements(ctx, "item-chair")
	require.NoError(t, err)

	var sum int64
	for _, m := range moves {
		sum += m.SignedQuantity()
	}
	initial := int64(10)
	assert.Equal(t, store.items["item-chair"].CurrentStock, initial+sum,
		fmt.Sprintf("ledger drift: initial %d + sum %d", initial, sum))
}
