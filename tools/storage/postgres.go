package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"plantagent/plant"
)

const recipeQuery = `
SELECT rm.name, rm.tank_number, pr.quantity, pr.unit
FROM product_recipes pr
JOIN raw_materials rm ON pr.material_id = rm.id
JOIN products p ON pr.product_id = p.id
WHERE lower(p.name) = lower($1)
ORDER BY rm.tank_number`

const productExistsQuery = `SELECT 1 FROM products WHERE lower(name) = lower($1)`

// PostgresRecipeSource fetches recipes from the plant database. One pool per
// process; Close releases it.
type PostgresRecipeSource struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPostgresRecipeSource opens a connection pool and verifies the database
// is reachable.
func NewPostgresRecipeSource(ctx context.Context, dsn string, timeout time.Duration) (*PostgresRecipeSource, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, &plant.StoreUnavailableError{Err: err}
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, &plant.StoreUnavailableError{Err: err}
	}
	return &PostgresRecipeSource{pool: pool, timeout: timeout}, nil
}

// Close releases the connection pool.
func (s *PostgresRecipeSource) Close() {
	s.pool.Close()
}

// GetRecipe returns the material requirements for one batch of a product.
func (s *PostgresRecipeSource) GetRecipe(ctx context.Context, product string) (plant.Recipe, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, recipeQuery, product)
	if err != nil {
		return plant.Recipe{}, &plant.StoreUnavailableError{Err: err}
	}
	defer rows.Close()

	recipe := plant.Recipe{Product: product}
	for rows.Next() {
		var req plant.MaterialRequirement
		if err := rows.Scan(&req.Material, &req.Tank, &req.QtyPerBatch, &req.Unit); err != nil {
			return plant.Recipe{}, &plant.StoreUnavailableError{Err: err}
		}
		recipe.Requirements = append(recipe.Requirements, req)
	}
	if err := rows.Err(); err != nil {
		return plant.Recipe{}, &plant.StoreUnavailableError{Err: err}
	}

	if len(recipe.Requirements) == 0 {
		// Distinguish "unknown product" from "product with no requirements".
		var one int
		err := s.pool.QueryRow(ctx, productExistsQuery, product).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return plant.Recipe{}, &plant.NotFoundError{Product: product}
		}
		if err != nil {
			return plant.Recipe{}, &plant.StoreUnavailableError{Err: err}
		}
	}

	return recipe, nil
}
