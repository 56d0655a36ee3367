package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append writes a new strategy event. The detail map is stored as JSONB.
func (s *EventStore) Append(ctx context.Context, e domain.Event) error {
	detailJSON, err := json.Marshal(e.Detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal event detail: %w", err)
	}

	const query = `
		INSERT INTO strategy_events (kind, position_id, detail, created_at)
		VALUES ($1, $2, $3, $4)`

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx, query, string(e.Kind), e.PositionID, detailJSON, createdAt)
	if err != nil {
		return fmt.Errorf("postgres: append event %s: %w", e.Kind, err)
	}
	return nil
}

// List returns the most recent events, newest first.
func (s *EventStore) List(ctx context.Context, limit int) ([]domain.Event, error) {
	query := `SELECT id, kind, position_id, detail, created_at
		FROM strategy_events ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var kind string
		var detailJSON []byte

		if err := rows.Scan(&e.ID, &kind, &e.PositionID, &detailJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		e.Kind = domain.EventKind(kind)

		if detailJSON != nil {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal event detail: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// LastOfKind returns the timestamp of the most recent event of the given kind.
func (s *EventStore) LastOfKind(ctx context.Context, kind domain.EventKind) (*time.Time, error) {
	const query = `
		SELECT created_at FROM strategy_events
		WHERE kind = $1 ORDER BY created_at DESC LIMIT 1`

	var ts time.Time
	err := s.pool.QueryRow(ctx, query, string(kind)).Scan(&ts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: last event of kind %s: %w", kind, err)
	}
	return &ts, nil
}

// DeleteAll clears the event log and returns the count removed.
func (s *EventStore) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM strategy_events`)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete events: %w", err)
	}
	return tag.RowsAffected(), nil
}
