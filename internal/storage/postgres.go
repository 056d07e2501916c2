package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arizent/composer-insights/internal/models"
)

// PostgresBrandRepo implements BrandRepo using PostgreSQL. Schema:
//
//	CREATE TABLE brands (
//	    aid  TEXT PRIMARY KEY,
//	    name TEXT NOT NULL
//	);
type PostgresBrandRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresBrandRepo(pool *pgxpool.Pool) *PostgresBrandRepo {
	return &PostgresBrandRepo{pool: pool}
}

func (r *PostgresBrandRepo) ListBrands(ctx context.Context) ([]models.Brand, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT aid, name FROM brands ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list brands: %w", err)
	}
	defer rows.Close()

	var brands []models.Brand
	for rows.Next() {
		var b models.Brand
		if err := rows.Scan(&b.AID, &b.Name); err != nil {
			return nil, err
		}
		brands = append(brands, b)
	}
	return brands, rows.Err()
}

func (r *PostgresBrandRepo) GetBrand(ctx context.Context, aid string) (*models.Brand, error) {
	var b models.Brand
	err := r.pool.QueryRow(ctx, `
		SELECT aid, name FROM brands WHERE aid = $1
	`, aid).Scan(&b.AID, &b.Name)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get brand: %w", err)
	}
	return &b, nil
}

func (r *PostgresBrandRepo) UpsertBrand(ctx context.Context, b models.Brand) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO brands (aid, name)
		VALUES ($1, $2)
		ON CONFLICT (aid) DO UPDATE SET name = EXCLUDED.name
	`, b.AID, b.Name)
	if err != nil {
		return fmt.Errorf("failed to upsert brand: %w", err)
	}
	return nil
}

// SeedBrands inserts the built-in directory into an empty brands table.
// Existing rows are left untouched.
func (r *PostgresBrandRepo) SeedBrands(ctx context.Context) error {
	for _, b := range defaultBrands {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO brands (aid, name)
			VALUES ($1, $2)
			ON CONFLICT (aid) DO NOTHING
		`, b.AID, b.Name)
		if err != nil {
			return fmt.Errorf("failed to seed brand %s: %w", b.AID, err)
		}
	}
	return nil
}
