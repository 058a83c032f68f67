package storage

import (
	"context"
	"fmt"

	"github.com/aluware/blocklager/internal/yard"
)

// CreateIngot inserts a newly registered ingot.
func (p *PostgresClient) CreateIngot(ctx context.Context, ing *yard.Ingot) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO ingots (
			id, ingot_no, product_no, length_mm, width_mm, thickness_mm, weight_kg,
			head_sawn, foot_sawn, scrap, revised, rotated,
			stockyard_id, pile_position, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, ing.ID, ing.IngotNo, ing.ProductNo, ing.LengthMm, ing.WidthMm, ing.ThicknessMm, ing.WeightKg,
		ing.HeadSawn, ing.FootSawn, ing.Scrap, ing.Revised, ing.Rotated,
		ing.StockyardID, ing.PilePosition, ing.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert ingot %s: %w", ing.IngotNo, err)
	}
	return nil
}

// UpdateIngot writes flags and location of an existing ingot.
func (p *PostgresClient) UpdateIngot(ctx context.Context, ing *yard.Ingot) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE ingots
		SET product_no = $2, head_sawn = $3, foot_sawn = $4, scrap = $5,
		    revised = $6, rotated = $7, stockyard_id = $8, pile_position = $9
		WHERE id = $1
	`, ing.ID, ing.ProductNo, ing.HeadSawn, ing.FootSawn, ing.Scrap,
		ing.Revised, ing.Rotated, ing.StockyardID, ing.PilePosition)

	if err != nil {
		return fmt.Errorf("failed to update ingot %s: %w", ing.IngotNo, err)
	}
	return nil
}

// LoadIngots returns all ingots that are still in the warehouse,
// ordered so piles can be rebuilt bottom-up.
func (p *PostgresClient) LoadIngots(ctx context.Context) ([]*yard.Ingot, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, ingot_no, product_no, length_mm, width_mm, thickness_mm, weight_kg,
		       head_sawn, foot_sawn, scrap, revised, rotated,
		       stockyard_id, pile_position, created_at
		FROM ingots
		ORDER BY stockyard_id, pile_position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ingots: %w", err)
	}
	defer rows.Close()

	ingots := make([]*yard.Ingot, 0)
	for rows.Next() {
		var ing yard.Ingot
		err := rows.Scan(
			&ing.ID, &ing.IngotNo, &ing.ProductNo, &ing.LengthMm, &ing.WidthMm,
			&ing.ThicknessMm, &ing.WeightKg,
			&ing.HeadSawn, &ing.FootSawn, &ing.Scrap, &ing.Revised, &ing.Rotated,
			&ing.StockyardID, &ing.PilePosition, &ing.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ingot: %w", err)
		}
		ingots = append(ingots, &ing)
	}

	return ingots, nil
}
