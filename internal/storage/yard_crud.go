package storage

import (
	"context"
	"fmt"

	"github.com/aluware/blocklager/internal/yard"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SaveStockyard upserts one slot record.
func (p *PostgresClient) SaveStockyard(ctx context.Context, s *yard.Stockyard) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO stockyards (
			id, yard_number, yard_type, usage, grid_x, grid_y,
			pos_x_mm, pos_y_mm, pos_z_mm, length_mm, width_mm, height_mm,
			max_ingots, to_stock_allowed, from_stock_allowed, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET
			yard_number = EXCLUDED.yard_number,
			yard_type = EXCLUDED.yard_type,
			usage = EXCLUDED.usage,
			grid_x = EXCLUDED.grid_x,
			grid_y = EXCLUDED.grid_y,
			length_mm = EXCLUDED.length_mm,
			max_ingots = EXCLUDED.max_ingots,
			to_stock_allowed = EXCLUDED.to_stock_allowed,
			from_stock_allowed = EXCLUDED.from_stock_allowed,
			updated_at = now()
	`, s.ID, s.YardNumber, s.Type, s.Usage, s.GridX, s.GridY,
		s.PosXMm, s.PosYMm, s.PosZMm, s.LengthMm, s.WidthMm, s.HeightMm,
		s.MaxIngots, s.ToStockAllowed, s.FromStockAllowed, s.CreatedAt, s.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to save stockyard %s: %w", s.YardNumber, err)
	}
	return nil
}

// ApplyMerge persists a merge: the surviving record is updated and the
// absorbed record removed in one transaction.
func (p *PostgresClient) ApplyMerge(ctx context.Context, merged *yard.Stockyard, removedID uuid.UUID) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE stockyards
		SET yard_number = $2, usage = $3, length_mm = $4, max_ingots = $5, updated_at = now()
		WHERE id = $1
	`, merged.ID, merged.YardNumber, merged.Usage, merged.LengthMm, merged.MaxIngots)
	if err != nil {
		return fmt.Errorf("failed to update merged stockyard: %w", err)
	}

	_, err = tx.Exec(ctx, `DELETE FROM stockyards WHERE id = $1`, removedID)
	if err != nil {
		return fmt.Errorf("failed to delete absorbed stockyard: %w", err)
	}

	return tx.Commit(ctx)
}

// ApplySplit persists a split: the original record shrinks, the second
// half is inserted, in one transaction.
func (p *PostgresClient) ApplySplit(ctx context.Context, first, second *yard.Stockyard) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE stockyards
		SET yard_number = $2, usage = $3, length_mm = $4, max_ingots = $5, updated_at = now()
		WHERE id = $1
	`, first.ID, first.YardNumber, first.Usage, first.LengthMm, first.MaxIngots)
	if err != nil {
		return fmt.Errorf("failed to update split stockyard: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO stockyards (
			id, yard_number, yard_type, usage, grid_x, grid_y,
			pos_x_mm, pos_y_mm, pos_z_mm, length_mm, width_mm, height_mm,
			max_ingots, to_stock_allowed, from_stock_allowed, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, second.ID, second.YardNumber, second.Type, second.Usage, second.GridX, second.GridY,
		second.PosXMm, second.PosYMm, second.PosZMm, second.LengthMm, second.WidthMm, second.HeightMm,
		second.MaxIngots, second.ToStockAllowed, second.FromStockAllowed, second.CreatedAt, second.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert split stockyard: %w", err)
	}

	return tx.Commit(ctx)
}

// LoadStockyards returns the persisted slot catalog.
func (p *PostgresClient) LoadStockyards(ctx context.Context) ([]*yard.Stockyard, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, yard_number, yard_type, usage, grid_x, grid_y,
		       pos_x_mm, pos_y_mm, pos_z_mm, length_mm, width_mm, height_mm,
		       max_ingots, to_stock_allowed, from_stock_allowed, created_at, updated_at
		FROM stockyards
		ORDER BY grid_x, grid_y
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stockyards: %w", err)
	}
	defer rows.Close()

	yards := make([]*yard.Stockyard, 0)
	for rows.Next() {
		var s yard.Stockyard
		err := rows.Scan(
			&s.ID, &s.YardNumber, &s.Type, &s.Usage, &s.GridX, &s.GridY,
			&s.PosXMm, &s.PosYMm, &s.PosZMm, &s.LengthMm, &s.WidthMm, &s.HeightMm,
			&s.MaxIngots, &s.ToStockAllowed, &s.FromStockAllowed, &s.CreatedAt, &s.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stockyard: %w", err)
		}
		yards = append(yards, &s)
	}

	return yards, nil
}

// GetStockyardByNumber loads one slot by its human code.
func (p *PostgresClient) GetStockyardByNumber(ctx context.Context, yardNumber string) (*yard.Stockyard, error) {
	var s yard.Stockyard
	err := p.pool.QueryRow(ctx, `
		SELECT id, yard_number, yard_type, usage, grid_x, grid_y,
		       pos_x_mm, pos_y_mm, pos_z_mm, length_mm, width_mm, height_mm,
		       max_ingots, to_stock_allowed, from_stock_allowed, created_at, updated_at
		FROM stockyards
		WHERE yard_number = $1
	`, yardNumber).Scan(
		&s.ID, &s.YardNumber, &s.Type, &s.Usage, &s.GridX, &s.GridY,
		&s.PosXMm, &s.PosYMm, &s.PosZMm, &s.LengthMm, &s.WidthMm, &s.HeightMm,
		&s.MaxIngots, &s.ToStockAllowed, &s.FromStockAllowed, &s.CreatedAt, &s.UpdatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("stockyard not found: %s", yardNumber)
		}
		return nil, fmt.Errorf("failed to load stockyard: %w", err)
	}

	return &s, nil
}
