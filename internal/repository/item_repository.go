package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/officeflow/procurement-service/internal/database"
	"github.com/officeflow/procurement-service/internal/errors"
)

// ItemRepository reads items and applies guarded stock adjustments. Stock is
// only ever changed by atomic increments; the adjustment guard keeps the
// counter non-negative under concurrent writers.
type ItemRepository struct {
	db *database.DB
}

// NewItemRepository creates a new ItemRepository.
func NewItemRepository(db *database.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// insertMovement writes one stock movement within an existing transaction.
func insertMovement(ctx context.Context, tx pgx.Tx, m *StockMovement) error {
	query := `
		INSERT INTO stock_movements
		    (id, item_id, type, quantity, reason, reference, actor_id, created_at)
		VALUES ($1, $2, $3::movement_type, $4, $5, $6, $7, $8)
	`

	_, err := tx.Exec(ctx, query,
		m.ID,
		m.ItemID,
		m.Type,
		m.Quantity,
		m.Reason,
		m.Reference,
		m.ActorID,
		m.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert stock movement")
	}
	return nil
}

// GetItem retrieves an item by id.
func (r *ItemRepository) GetItem(ctx context.Context, id string) (*Item, error) {
	query := `
		SELECT id, sku, name, unit, current_stock, min_stock, price_cents,
		       created_at, updated_at
		FROM items
		WHERE id = $1
	`

	item := &Item{}
	var cents int64
	err := r.db.QueryRow(ctx, query, id).Scan(
		&item.ID,
		&item.SKU,
		&item.Name,
		&item.Unit,
		&item.CurrentStock,
		&item.MinStock,
		&cents,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("item", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get item")
	}
	item.Price = fromCents(cents)
	return item, nil
}

// AdjustStock applies one guarded stock change with its movement and audit
// rows. The guard rejects any delta that would drive the counter negative.
func (r *ItemRepository) AdjustStock(ctx context.Context, adj *StockAdjustment) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE items
			SET current_stock = current_stock + $2,
			    updated_at    = NOW()
			WHERE id = $1
			  AND current_stock + $2 >= 0
			RETURNING id
		`

		var returnedID string
		err := tx.QueryRow(ctx, query, adj.ItemID, adj.Delta).Scan(&returnedID)
		if err == pgx.ErrNoRows {
			var exists bool
			checkErr := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)`, adj.ItemID).Scan(&exists)
			if checkErr != nil {
				return errors.Wrap(checkErr, errors.ErrCodeInternal, "failed to check item")
			}
			if !exists {
				return errors.NotFound("item", adj.ItemID)
			}
			return errors.Conflict("adjustment would drive stock negative")
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to adjust stock")
		}

		if err := insertMovement(ctx, tx, adj.Movement); err != nil {
			return err
		}
		return insertAudit(ctx, tx, adj.Audit)
	})
}

// ListMovements returns an item's movements oldest-first.
func (r *ItemRepository) ListMovements(ctx context.Context, itemID string) ([]*StockMovement, error) {
	query := `
		SELECT id, item_id, type, quantity, reason, reference, actor_id, created_at
		FROM stock_movements
		WHERE item_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, itemID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list stock movements")
	}
	defer rows.Close()

	movements := make([]*StockMovement, 0)
	for rows.Next() {
		m := &StockMovement{}
		err := rows.Scan(
			&m.ID,
			&m.ItemID,
			&m.Type,
			&m.Quantity,
			&m.Reason,
			&m.Reference,
			&m.ActorID,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan stock movement")
		}
		movements = append(movements, m)
	}
	return movements, nil
}
