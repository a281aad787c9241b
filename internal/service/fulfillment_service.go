package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/officeflow/procurement-service/internal/errors"
	"github.com/officeflow/procurement-service/internal/logger"
	"github.com/officeflow/procurement-service/internal/repository"
)

// FulfillmentService drives purchase orders from DRAFT through ORDERED to
// RECEIVED and keeps item stock and the movement ledger consistent with every
// receipt and return.
type FulfillmentService struct {
	orders OrderStore
	items  ItemStore
	audits AuditStore
	events EventPublisher
	log    *logger.Logger
}

// NewFulfillmentService creates a new FulfillmentService.
func NewFulfillmentService(
	orders OrderStore,
	items ItemStore,
	audits AuditStore,
	events EventPublisher,
	log *logger.Logger,
) *FulfillmentService {
	return &FulfillmentService{
		orders: orders,
		items:  items,
		audits: audits,
		events: events,
		log:    log,
	}
}

// OrderLineInput is one line of a create-order call.
type OrderLineInput struct {
	ItemID    string
	Quantity  int64
	UnitPrice decimal.Decimal
}

// CreateOrderInput is the create-order call.
type CreateOrderInput struct {
	SupplierID   string
	ExpectedDate *time.Time
	Notes        *string
	Lines        []OrderLineInput
}

// AutoReceiveSummary reports one scheduled auto-receive run. Orders are
// processed in isolation: a failed order is recorded and skipped without
// affecting the rest of the batch.
type AutoReceiveSummary struct {
	Processed int
	Received  int
	Failed    int
	Errors    []string
}

// CreateOrder validates the input, recomputes all totals server-side and
// persists the order as DRAFT with a generated order number.
func (s *FulfillmentService) CreateOrder(ctx context.Context, actor Actor, input CreateOrderInput) (*repository.PurchaseOrder, error) {
	if actor.Role != repository.RoleAdmin {
		return nil, errors.Forbidden("only admins can create purchase orders")
	}
	if input.SupplierID == "" {
		return nil, errors.InvalidInput("supplier_id", "supplier id is required")
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
		if _, err := s.items.GetItem(ctx, line.ItemID); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	po := &repository.PurchaseOrder{
		ID:           uuid.NewString(),
		OrderNumber:  newOrderNumber(now),
		SupplierID:   input.SupplierID,
		Status:       repository.OrderDraft,
		OrderDate:    now,
		ExpectedDate: input.ExpectedDate,
		Notes:        input.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	total := decimal.Zero
	for _, line := range input.Lines {
		lineTotal := line.UnitPrice.Mul(decimal.NewFromInt(line.Quantity))
		total = total.Add(lineTotal)
		po.Lines = append(po.Lines, &repository.POLine{
			ID:        uuid.NewString(),
			OrderID:   po.ID,
			ItemID:    line.ItemID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: lineTotal,
		})
	}
	po.TotalAmount = total

	audit := &repository.AuditLogEntry{
		ID:          uuid.NewString(),
		Action:      repository.ActionCreateOrder,
		Entity:      "PurchaseOrder",
		EntityID:    po.ID,
		PerformedBy: actor.ID,
		Details:     fmt.Sprintf("Created order %s - Supplier: %s - Amount: $%s - %d items", po.OrderNumber, po.SupplierID, po.TotalAmount.StringFixed(2), len(po.Lines)),
		CreatedAt:   now,
	}

	if err := s.orders.CreateOrder(ctx, po, audit); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("order_id", po.ID).
		Str("order_number", po.OrderNumber).
		Str("supplier_id", po.SupplierID).
		Int("lines", len(po.Lines)).
		Msg("Purchase order created")

	return po, nil
}

// GetOrder returns an order with its lines.
func (s *FulfillmentService) GetOrder(ctx context.Context, id string) (*repository.PurchaseOrder, error) {
	return s.orders.GetOrder(ctx, id)
}

// SendOrder transitions a DRAFT order to ORDERED.
func (s *FulfillmentService) SendOrder(ctx context.Context, actor Actor, id string) error {
	if actor.Role != repository.RoleAdmin {
		return errors.Forbidden("only admins can send purchase orders")
	}

	audit := &repository.AuditLogEntry{
		ID:          uuid.NewString(),
		Action:      repository.ActionSendOrder,
		Entity:      "PurchaseOrder",
		EntityID:    id,
		PerformedBy: actor.ID,
		Details:     "Order sent to supplier",
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.orders.MarkOrdered(ctx, id, audit); err != nil {
		return err
	}

	s.log.Info().Str("order_id", id).Msg("Purchase order sent")
	return nil
}

// CancelOrder cancels a DRAFT order. Orders already sent to the supplier
// cannot be cancelled here.
func (s *FulfillmentService) CancelOrder(ctx context.Context, actor Actor, id string) error {
	if actor.Role != repository.RoleAdmin {
		return errors.Forbidden("only admins can cancel purchase orders")
	}

	audit := &repository.AuditLogEntry{
		ID:          uuid.NewString(),
		Action:      "CANCEL_ORDER",
		Entity:      "PurchaseOrder",
		EntityID:    id,
		PerformedBy: actor.ID,
		Details:     "Draft order cancelled",
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.orders.CancelOrder(ctx, id, audit); err != nil {
		return err
	}

	s.log.Info().Str("order_id", id).Msg("Purchase order cancelled")
	return nil
}

// ReceiveOrder marks an ORDERED order RECEIVED and books its goods into
// stock: per-line atomic increments, one INBOUND movement per line referencing
// the order number, and the audit entry, all in one transaction. Receiving the
// same order twice fails with Conflict and changes nothing.
func (s *FulfillmentService) ReceiveOrder(ctx context.Context, actor Actor, id string) (*repository.PurchaseOrder, error) {
	if actor.Role != repository.RoleAdmin && actor.ID != SystemActorID {
		return nil, errors.Forbidden("only admins can receive purchase orders")
	}

	po, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if po.Status != repository.OrderOrdered {
		return nil, errors.Conflict(fmt.Sprintf("order %s is %s, only ORDERED orders can be received", po.OrderNumber, po.Status))
	}

	now := time.Now().UTC()
	receipt := &repository.OrderReceipt{
		OrderID:    po.ID,
		ReceivedAt: now,
	}
	for _, line := range po.Lines {
		receipt.Deltas = append(receipt.Deltas, repository.StockDelta{
			ItemID:   line.ItemID,
			Quantity: line.Quantity,
		})
		receipt.Movements = append(receipt.Movements, &repository.StockMovement{
			ID:        uuid.NewString(),
			ItemID:    line.ItemID,
			Type:      repository.MovementInbound,
			Quantity:  line.Quantity,
			Reason:    "Purchase order received",
			Reference: &po.OrderNumber,
			ActorID:   actor.ID,
			CreatedAt: now,
		})
	}
	receipt.Audit = &repository.AuditLogEntry{
		ID:          uuid.NewString(),
		Action:      repository.ActionReceiveOrder,
		Entity:      "PurchaseOrder",
		EntityID:    po.ID,
		PerformedBy: actor.ID,
		Details:     fmt.Sprintf("Received order %s - Supplier: %s - Amount: $%s - %d items booked into stock", po.OrderNumber, po.SupplierID, po.TotalAmount.StringFixed(2), len(po.Lines)),
		CreatedAt:   now,
	}

	if err := s.orders.ReceiveOrder(ctx, receipt); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("order_id", po.ID).
		Str("order_number", po.OrderNumber).
		Int("lines", len(po.Lines)).
		Msg("Purchase order received")

	if s.events != nil {
		s.events.PublishEvent(ctx, "order_received", po.ID, map[string]any{
			"order_number": po.OrderNumber,
			"supplier_id":  po.SupplierID,
			"received_at":  now.Format(time.RFC3339),
		})
	}

	return s.orders.GetOrder(ctx, po.ID)
}

// AutoReceiveDue receives every ORDERED order whose expected date falls on the
// given day. Each order is processed in isolation; a failure is audited as
// AUTO_RECEIVE_FAILED and counted, and the run continues with the next order.
func (s *FulfillmentService) AutoReceiveDue(ctx context.Context, day time.Time) (*AutoReceiveSummary, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.Add(24*time.Hour - time.Nanosecond)

	due, err := s.orders.ListOrdersDue(ctx, from, to)
	if err != nil {
		return nil, err
	}

	system := Actor{ID: SystemActorID, Role: repository.RoleAdmin}
	summary := &AutoReceiveSummary{}
	for _, po := range due {
		summary.Processed++
		if _, err := s.ReceiveOrder(ctx, system, po.ID); err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %s", po.OrderNumber, errors.MessageOf(err)))
			s.log.Warn().Err(err).
				Str("order_id", po.ID).
				Str("order_number", po.OrderNumber).
				Msg("Auto-receive failed")

			auditErr := s.audits.AppendAudit(ctx, &repository.AuditLogEntry{
				ID:          uuid.NewString(),
				Action:      repository.ActionAutoReceiveFailed,
				Entity:      "PurchaseOrder",
				EntityID:    po.ID,
				PerformedBy: SystemActorID,
				Details:     fmt.Sprintf("Auto-receive of order %s failed: %s", po.OrderNumber, errors.MessageOf(err)),
				CreatedAt:   time.Now().UTC(),
			})
			if auditErr != nil {
				s.log.Error().Err(auditErr).Str("order_id", po.ID).Msg("Failed to record auto-receive failure")
			}
			continue
		}
		summary.Received++
	}

	s.log.Info().
		Int("processed", summary.Processed).
		Int("received", summary.Received).
		Int("failed", summary.Failed).
		Msg("Auto-receive run completed")

	return summary, nil
}

// ProcessReturn books returned goods back into stock as a RETURN movement.
func (s *FulfillmentService) ProcessReturn(ctx context.Context, actor Actor, itemID string, quantity int64, reason string) error {
	if actor.Role != repository.RoleAdmin {
		return errors.Forbidden("only admins can process returns")
	}
	if quantity <= 0 {
		return errors.InvalidInput("quantity", "quantity must be positive")
	}
	if reason == "" {
		return errors.InvalidInput("reason", "reason is required")
	}

	item, err := s.items.GetItem(ctx, itemID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	adj := &repository.StockAdjustment{
		ItemID: item.ID,
		Delta:  quantity,
		Movement: &repository.StockMovement{
			ID:        uuid.NewString(),
			ItemID:    item.ID,
			Type:      repository.MovementReturn,
			Quantity:  quantity,
			Reason:    reason,
			ActorID:   actor.ID,
			CreatedAt: now,
		},
		Audit: &repository.AuditLogEntry{
			ID:          uuid.NewString(),
			Action:      repository.ActionProcessReturn,
			Entity:      "Item",
			EntityID:    item.ID,
			PerformedBy: actor.ID,
			Details:     fmt.Sprintf("Return processed: %d x %s - Reason: %s", quantity, item.Name, reason),
			CreatedAt:   now,
		},
	}

	if err := s.items.AdjustStock(ctx, adj); err != nil {
		return err
	}

	s.log.Info().
		Str("item_id", item.ID).
		Int64("quantity", quantity).
		Msg("Return processed")
	return nil
}

// newOrderNumber builds a human-readable order number like PO-20260831-F3A1B2.
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("PO-%s-%s", now.Format("20060102"), suffix)
}
