package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/officeflow/procurement-service/internal/database"
	"github.com/officeflow/procurement-service/internal/errors"
)

// OrderRepository persists purchase orders and applies their lifecycle
// transitions. Status guards are conditional updates so concurrent calls for
// the same order cannot both succeed; the receive transition additionally
// carries the stock increments and movement rows in the same transaction.
type OrderRepository struct {
	db *database.DB
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(db *database.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateOrder inserts a draft order with lines and audit entry atomically.
func (r *OrderRepository) CreateOrder(ctx context.Context, po *PurchaseOrder, audit *AuditLogEntry) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		orderQuery := `
			INSERT INTO purchase_orders
			    (id, order_number, supplier_id, status, total_amount_cents,
			     order_date, expected_date, received_date, notes, created_at, updated_at)
			VALUES ($1, $2, $3, $4::order_status, $5, $6, $7, $8, $9, $10, $11)
		`

		_, err := tx.Exec(ctx, orderQuery,
			po.ID,
			po.OrderNumber,
			po.SupplierID,
			po.Status,
			toCents(po.TotalAmount),
			po.OrderDate,
			po.ExpectedDate,
			po.ReceivedDate,
			po.Notes,
			po.CreatedAt,
			po.UpdatedAt,
		)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create purchase order")
		}

		lineQuery := `
			INSERT INTO purchase_order_lines
			    (id, order_id, item_id, quantity, unit_price_cents, line_total_cents)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		for _, line := range po.Lines {
			line.OrderID = po.ID
			_, err := tx.Exec(ctx, lineQuery,
				line.ID,
				line.OrderID,
				line.ItemID,
				line.Quantity,
				toCents(line.UnitPrice),
				toCents(line.LineTotal),
			)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create purchase order line")
			}
		}

		return insertAudit(ctx, tx, audit)
	})
}

// GetOrder retrieves an order with its lines.
func (r *OrderRepository) GetOrder(ctx context.Context, id string) (*PurchaseOrder, error) {
	query := `
		SELECT id, order_number, supplier_id, status, total_amount_cents,
		       order_date, expected_date, received_date, notes, created_at, updated_at
		FROM purchase_orders
		WHERE id = $1
	`

	po, err := r.scanOrder(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("purchase order", id)
	}
	if err != nil {
		return nil, err
	}

	if po.Lines, err = r.getLines(ctx, id); err != nil {
		return nil, err
	}
	return po, nil
}

func (r *OrderRepository) getLines(ctx context.Context, orderID string) ([]*POLine, error) {
	query := `
		SELECT id, order_id, item_id, quantity, unit_price_cents, line_total_cents
		FROM purchase_order_lines
		WHERE order_id = $1
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get order lines")
	}
	defer rows.Close()

	lines := make([]*POLine, 0)
	for rows.Next() {
		line := &POLine{}
		var unit, total int64
		err := rows.Scan(&line.ID, &line.OrderID, &line.ItemID, &line.Quantity, &unit, &total)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan order line")
		}
		line.UnitPrice = fromCents(unit)
		line.LineTotal = fromCents(total)
		lines = append(lines, line)
	}
	return lines, nil
}

// ListOrdersDue returns ORDERED orders whose expected date falls within
// [from, to], with their lines.
func (r *OrderRepository) ListOrdersDue(ctx context.Context, from, to time.Time) ([]*PurchaseOrder, error) {
	query := `
		SELECT id, order_number, supplier_id, status, total_amount_cents,
		       order_date, expected_date, received_date, notes, created_at, updated_at
		FROM purchase_orders
		WHERE status = 'ORDERED'::order_status
		  AND expected_date >= $1
		  AND expected_date <= $2
		ORDER BY expected_date ASC
	`

	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list due orders")
	}
	defer rows.Close()

	orders := make([]*PurchaseOrder, 0)
	for rows.Next() {
		po, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, po)
	}
	rows.Close()

	for _, po := range orders {
		if po.Lines, err = r.getLines(ctx, po.ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// MarkOrdered moves a DRAFT order to ORDERED.
func (r *OrderRepository) MarkOrdered(ctx context.Context, id string, audit *AuditLogEntry) error {
	return r.transition(ctx, id, OrderDraft, OrderOrdered, nil, audit)
}

// CancelOrder moves a DRAFT order to CANCELLED.
func (r *OrderRepository) CancelOrder(ctx context.Context, id string, audit *AuditLogEntry) error {
	return r.transition(ctx, id, OrderDraft, OrderCancelled, nil, audit)
}

// transition applies a guarded status change plus its audit entry.
func (r *OrderRepository) transition(ctx context.Context, id string, from, to OrderStatus, receivedAt *time.Time, audit *AuditLogEntry) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if err := transitionOrderTx(ctx, tx, id, from, to, receivedAt); err != nil {
			return err
		}
		return insertAudit(ctx, tx, audit)
	})
}

func transitionOrderTx(ctx context.Context, tx pgx.Tx, id string, from, to OrderStatus, receivedAt *time.Time) error {
	query := `
		UPDATE purchase_orders
		SET status        = $3::order_status,
		    received_date = COALESCE($4, received_date),
		    updated_at    = NOW()
		WHERE id = $1
		  AND status = $2::order_status
		RETURNING id
	`

	var returnedID string
	err := tx.QueryRow(ctx, query, id, from, to, receivedAt).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		var status OrderStatus
		err := tx.QueryRow(ctx, `SELECT status FROM purchase_orders WHERE id = $1`, id).Scan(&status)
		if err == pgx.ErrNoRows {
			return errors.NotFound("purchase order", id)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to check order status")
		}
		return errors.Conflict(fmt.Sprintf("order is %s, expected %s", status, from))
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update order status")
	}
	return nil
}

// ReceiveOrder applies the receive transition: the ORDERED → RECEIVED guard,
// one atomic stock increment per line, the movement rows and the audit
// entry. A failed increment (missing item) rolls back the whole receipt.
func (r *OrderRepository) ReceiveOrder(ctx context.Context, receipt *OrderReceipt) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		at := receipt.ReceivedAt
		if err := transitionOrderTx(ctx, tx, receipt.OrderID, OrderOrdered, OrderReceived, &at); err != nil {
			return err
		}

		incrementQuery := `
			UPDATE items
			SET current_stock = current_stock + $2,
			    updated_at    = NOW()
			WHERE id = $1
			RETURNING id
		`
		for _, delta := range receipt.Deltas {
			var returnedID string
			err := tx.QueryRow(ctx, incrementQuery, delta.ItemID, delta.Quantity).Scan(&returnedID)
			if err == pgx.ErrNoRows {
				return errors.NotFound("item", delta.ItemID)
			}
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to increment stock")
			}
		}

		for _, m := range receipt.Movements {
			if err := insertMovement(ctx, tx, m); err != nil {
				return err
			}
		}

		return insertAudit(ctx, tx, receipt.Audit)
	})
}

type orderScanner interface {
	Scan(dest ...any) error
}

func (r *OrderRepository) scanOrder(row orderScanner) (*PurchaseOrder, error) {
	po := &PurchaseOrder{}
	var cents int64
	err := row.Scan(
		&po.ID,
		&po.OrderNumber,
		&po.SupplierID,
		&po.Status,
		&cents,
		&po.OrderDate,
		&po.ExpectedDate,
		&po.ReceivedDate,
		&po.Notes,
		&po.CreatedAt,
		&po.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan purchase order")
	}
	po.TotalAmount = fromCents(cents)
	return po, nil
}
