package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Two consecutive losing stop-loss closes bench a token for one discovery cycle.
const (
	penaltyLossThreshold = 2
	penaltySkipCycles    = 1
)

// PenaltyStore implements domain.PenaltyStore using PostgreSQL.
type PenaltyStore struct {
	pool *pgxpool.Pool
}

// NewPenaltyStore creates a new PenaltyStore backed by the given connection pool.
func NewPenaltyStore(pool *pgxpool.Pool) *PenaltyStore {
	return &PenaltyStore{pool: pool}
}

// SkipCycles returns the remaining discovery cycles the token must sit out.
func (s *PenaltyStore) SkipCycles(ctx context.Context, tokenAddress, chain string) (int, error) {
	const query = `
		SELECT skip_cycles FROM token_penalties
		WHERE token_address = $1 AND chain = $2`

	var skip int
	err := s.pool.QueryRow(ctx, query, tokenAddress, chain).Scan(&skip)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("postgres: skip cycles for %s: %w", tokenAddress, err)
	}
	return skip, nil
}

// RecordLoss increments the token's losing-stop streak and returns the new
// streak. At the threshold the token is benched and the streak resets.
func (s *PenaltyStore) RecordLoss(ctx context.Context, tokenAddress, chain string, at time.Time) (int, error) {
	const query = `
		INSERT INTO token_penalties (token_address, chain, loss_streak, skip_cycles, last_loss_at, updated_at)
		VALUES ($1, $2, 1, 0, $3, NOW())
		ON CONFLICT (token_address, chain) DO UPDATE SET
			loss_streak  = token_penalties.loss_streak + 1,
			last_loss_at = EXCLUDED.last_loss_at,
			updated_at   = NOW()
		RETURNING loss_streak`

	var streak int
	if err := s.pool.QueryRow(ctx, query, tokenAddress, chain, at).Scan(&streak); err != nil {
		return 0, fmt.Errorf("postgres: record loss for %s: %w", tokenAddress, err)
	}

	if streak >= penaltyLossThreshold {
		const bench = `
			UPDATE token_penalties SET
				loss_streak = 0,
				skip_cycles = $3,
				updated_at  = NOW()
			WHERE token_address = $1 AND chain = $2`
		if _, err := s.pool.Exec(ctx, bench, tokenAddress, chain, penaltySkipCycles); err != nil {
			return 0, fmt.Errorf("postgres: bench token %s: %w", tokenAddress, err)
		}
	}
	return streak, nil
}

// Advance decrements every benched token's counter by one discovery cycle.
func (s *PenaltyStore) Advance(ctx context.Context, chain string) (int64, error) {
	const query = `
		UPDATE token_penalties SET
			skip_cycles = skip_cycles - 1,
			updated_at  = NOW()
		WHERE chain = $1 AND skip_cycles > 0`

	tag, err := s.pool.Exec(ctx, query, chain)
	if err != nil {
		return 0, fmt.Errorf("postgres: advance penalties: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Clear resets the penalty state for a single token.
func (s *PenaltyStore) Clear(ctx context.Context, tokenAddress, chain string) error {
	const query = `DELETE FROM token_penalties WHERE token_address = $1 AND chain = $2`
	if _, err := s.pool.Exec(ctx, query, tokenAddress, chain); err != nil {
		return fmt.Errorf("postgres: clear penalty for %s: %w", tokenAddress, err)
	}
	return nil
}
