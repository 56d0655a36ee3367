package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, token_address, symbol, chain,
	entry_price, quantity, notional_usd, stop_price, take_price,
	trailing_stop, high_water, score, dry_run, status, opened_at,
	closed_at, exit_price, realized_pnl_usd, close_reason`

func scanPositionRow(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var status string
	var closeReason *string

	err := row.Scan(
		&p.ID, &p.TokenAddress, &p.Symbol, &p.Chain,
		&p.EntryPrice, &p.Quantity, &p.NotionalUSD, &p.StopPrice, &p.TakePrice,
		&p.TrailingStop, &p.HighWater, &p.Score, &p.DryRun, &status, &p.OpenedAt,
		&p.ClosedAt, &p.ExitPrice, &p.RealizedPnLUSD, &closeReason,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Status = domain.PositionStatus(status)
	if closeReason != nil {
		reason := domain.CloseReason(*closeReason)
		p.CloseReason = &reason
	}
	return p, nil
}

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Insert creates a new open position. A duplicate id, or a second open
// position for the same token on the same chain, fails with ErrDuplicateID.
func (s *PositionStore) Insert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, token_address, symbol, chain,
			entry_price, quantity, notional_usd, stop_price, take_price,
			trailing_stop, high_water, score, dry_run, status, opened_at,
			closed_at, exit_price, realized_pnl_usd, close_reason, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, NOW()
		)`

	var closeReason *string
	if p.CloseReason != nil {
		r := string(*p.CloseReason)
		closeReason = &r
	}

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.TokenAddress, p.Symbol, p.Chain,
		p.EntryPrice, p.Quantity, p.NotionalUSD, p.StopPrice, p.TakePrice,
		p.TrailingStop, p.HighWater, p.Score, p.DryRun, string(p.Status), p.OpenedAt,
		p.ClosedAt, p.ExitPrice, p.RealizedPnLUSD, closeReason,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: insert position %s: %w", p.ID, domain.ErrDuplicateID)
		}
		return fmt.Errorf("postgres: insert position %s: %w", p.ID, err)
	}
	return nil
}

// GetByID retrieves a position by its identifier.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE id = $1`

	p, err := scanPositionRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// GetOpenByToken retrieves the open position for a token, if any.
func (s *PositionStore) GetOpenByToken(ctx context.Context, tokenAddress, chain string) (domain.Position, error) {
	query := `SELECT ` + positionSelectCols + `
		FROM positions WHERE token_address = $1 AND chain = $2 AND status = 'open'`

	p, err := scanPositionRow(s.pool.QueryRow(ctx, query, tokenAddress, chain))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get open position for %s: %w", tokenAddress, err)
	}
	return p, nil
}

// ListOpen returns all open positions in the order they were opened.
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + `
		FROM positions WHERE status = 'open' ORDER BY opened_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

// ListClosed returns recently closed positions, newest first.
func (s *PositionStore) ListClosed(ctx context.Context, limit int) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + `
		FROM positions WHERE status = 'closed' ORDER BY closed_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions: %w", err)
	}
	return positions, nil
}

// CountOpen returns the number of open positions.
func (s *PositionStore) CountOpen(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM positions WHERE status = 'open'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count open positions: %w", err)
	}
	return count, nil
}

// UpdateTrailingStop ratchets the trailing stop and high-water mark inside a
// transaction, re-reading the row first so the monotonic invariant holds
// under concurrent writers.
func (s *PositionStore) UpdateTrailingStop(ctx context.Context, id string, newStop, newHighWater float64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin trailing update %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE id = $1 FOR UPDATE`
	p, err := scanPositionRow(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("postgres: read position %s for trailing update: %w", id, err)
	}

	if err := domain.ValidateTrailingUpdate(p, newStop, newHighWater); err != nil {
		return err
	}

	const update = `
		UPDATE positions SET
			trailing_stop = $2,
			high_water    = $3,
			updated_at    = NOW()
		WHERE id = $1`
	if _, err := tx.Exec(ctx, update, id, newStop, newHighWater); err != nil {
		return fmt.Errorf("postgres: update trailing stop %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit trailing update %s: %w", id, err)
	}
	return nil
}

// Close transitions an open position to closed. A repeat close with the same
// reason is a no-op; a different reason fails with ErrInvalidTransition.
func (s *PositionStore) Close(ctx context.Context, id string, reason domain.CloseReason, exitPrice, realizedPnLUSD float64, closedAt time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin close %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE id = $1 FOR UPDATE`
	p, err := scanPositionRow(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("postgres: read position %s for close: %w", id, err)
	}

	needsWrite, err := domain.ValidateClose(p, reason)
	if err != nil {
		return err
	}
	if !needsWrite {
		return nil
	}

	const update = `
		UPDATE positions SET
			status           = 'closed',
			close_reason     = $2,
			exit_price       = $3,
			realized_pnl_usd = $4,
			closed_at        = $5,
			updated_at       = NOW()
		WHERE id = $1 AND status = 'open'`
	tag, err := tx.Exec(ctx, update, id, string(reason), exitPrice, realizedPnLUSD, closedAt)
	if err != nil {
		return fmt.Errorf("postgres: close position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit close %s: %w", id, err)
	}
	return nil
}

// RealizedPnLSince sums realized PnL over positions closed at or after the cutoff.
func (s *PositionStore) RealizedPnLSince(ctx context.Context, since time.Time) (float64, error) {
	const query = `
		SELECT COALESCE(SUM(realized_pnl_usd), 0)
		FROM positions WHERE status = 'closed' AND closed_at >= $1`

	var total float64
	if err := s.pool.QueryRow(ctx, query, since).Scan(&total); err != nil {
		return 0, fmt.Errorf("postgres: sum realized pnl: %w", err)
	}
	return total, nil
}

// LastEntryTime returns the most recent opened_at for a token across open and
// closed positions, or nil when the token was never held.
func (s *PositionStore) LastEntryTime(ctx context.Context, tokenAddress, chain string) (*time.Time, error) {
	const query = `
		SELECT MAX(opened_at) FROM positions WHERE token_address = $1 AND chain = $2`

	var last *time.Time
	if err := s.pool.QueryRow(ctx, query, tokenAddress, chain).Scan(&last); err != nil {
		return nil, fmt.Errorf("postgres: last entry time for %s: %w", tokenAddress, err)
	}
	return last, nil
}

// DeleteClosed removes all closed positions and returns the count removed.
func (s *PositionStore) DeleteClosed(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE status = 'closed'`)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete closed positions: %w", err)
	}
	return tag.RowsAffected(), nil
}
