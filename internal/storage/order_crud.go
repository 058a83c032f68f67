package storage

import (
	"context"
	"fmt"

	"github.com/aluware/blocklager/internal/transport"
	"github.com/aluware/blocklager/internal/yard"
	"github.com/jackc/pgx/v5"
)

// CreateOrder inserts a new transport order with its first history row.
func (p *PostgresClient) CreateOrder(ctx context.Context, o *transport.Order) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO transport_orders (
			id, transport_no, ingot_id, ingot_no,
			from_yard_id, from_yard_no, from_pile_position,
			to_yard_id, to_yard_no, to_pile_position,
			status, priority, error_message, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, o.ID, o.TransportNo, o.IngotID, o.IngotNo,
		o.FromYardID, o.FromYardNo, o.FromPilePosition,
		o.ToYardID, o.ToYardNo, o.ToPilePosition,
		o.Status, o.Priority, o.ErrorMessage, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order %s: %w", o.TransportNo, err)
	}

	if err := insertHistory(ctx, tx, o); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// SaveOrder updates an order's status and appends a history row.
func (p *PostgresClient) SaveOrder(ctx context.Context, o *transport.Order) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := updateOrder(ctx, tx, o); err != nil {
		return err
	}
	if err := insertHistory(ctx, tx, o); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ApplyCompletion writes the order's terminal status and the ingot's
// new location in one transaction. Slot occupancy and order status can
// never disagree in the database.
func (p *PostgresClient) ApplyCompletion(ctx context.Context, o *transport.Order, ing *yard.Ingot) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := updateOrder(ctx, tx, o); err != nil {
		return err
	}
	if err := insertHistory(ctx, tx, o); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE ingots
		SET stockyard_id = $2, pile_position = $3
		WHERE id = $1
	`, ing.ID, ing.StockyardID, ing.PilePosition)
	if err != nil {
		return fmt.Errorf("failed to update ingot location: %w", err)
	}

	return tx.Commit(ctx)
}

func updateOrder(ctx context.Context, tx pgx.Tx, o *transport.Order) error {
	_, err := tx.Exec(ctx, `
		UPDATE transport_orders
		SET status = $2, to_pile_position = $3, error_message = $4,
		    started_at = $5, completed_at = $6
		WHERE id = $1
	`, o.ID, o.Status, o.ToPilePosition, o.ErrorMessage, o.StartedAt, o.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to update order %s: %w", o.TransportNo, err)
	}
	return nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, o *transport.Order) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transport_order_history (order_id, status, error_message, recorded_at)
		VALUES ($1, $2, $3, now())
	`, o.ID, o.Status, o.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to insert order history: %w", err)
	}
	return nil
}

// LoadOpenOrders returns non-terminal orders, oldest first. Used for
// recovery after a restart.
func (p *PostgresClient) LoadOpenOrders(ctx context.Context) ([]*transport.Order, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, transport_no, ingot_id, ingot_no,
		       from_yard_id, from_yard_no, from_pile_position,
		       to_yard_id, to_yard_no, to_pile_position,
		       status, priority, error_message, created_at, started_at, completed_at
		FROM transport_orders
		WHERE status IN ('PENDING', 'IN_PROGRESS', 'PICKED_UP', 'PAUSED')
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*transport.Order, 0)
	for rows.Next() {
		var o transport.Order
		err := rows.Scan(
			&o.ID, &o.TransportNo, &o.IngotID, &o.IngotNo,
			&o.FromYardID, &o.FromYardNo, &o.FromPilePosition,
			&o.ToYardID, &o.ToYardNo, &o.ToPilePosition,
			&o.Status, &o.Priority, &o.ErrorMessage, &o.CreatedAt, &o.StartedAt, &o.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, &o)
	}

	return orders, nil
}
