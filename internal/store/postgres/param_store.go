package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ParamStore implements domain.ParamStore using PostgreSQL.
type ParamStore struct {
	pool *pgxpool.Pool
}

// NewParamStore creates a new ParamStore backed by the given connection pool.
func NewParamStore(pool *pgxpool.Pool) *ParamStore {
	return &ParamStore{pool: pool}
}

// Set upserts a single runtime parameter override.
func (s *ParamStore) Set(ctx context.Context, name, value string) error {
	const query = `
		INSERT INTO strategy_params (name, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET
			value      = EXCLUDED.value,
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, name, value); err != nil {
		return fmt.Errorf("postgres: set param %s: %w", name, err)
	}
	return nil
}

// All returns every persisted parameter override.
func (s *ParamStore) All(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, value FROM strategy_params`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list params: %w", err)
	}
	defer rows.Close()

	params := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("postgres: scan param: %w", err)
		}
		params[name] = value
	}
	return params, rows.Err()
}

// Delete removes a parameter override so the configured default applies again.
func (s *ParamStore) Delete(ctx context.Context, name string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM strategy_params WHERE name = $1`, name); err != nil {
		return fmt.Errorf("postgres: delete param %s: %w", name, err)
	}
	return nil
}
