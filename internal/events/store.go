package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Event is one row of the scheduling event log.
type Event struct {
	ID            int64           `json:"id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	EventType     string          `json:"event_type"`
	AppointmentID *uuid.UUID      `json:"appointment_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OutboxStore reads unpublished event log rows and stamps them once relayed.
type OutboxStore struct {
	pool pgxQuerier
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &OutboxStore{pool: pool}
}

func newOutboxStoreWithQuerier(q pgxQuerier) *OutboxStore {
	return &OutboxStore{pool: q}
}

func (s *OutboxStore) FetchPending(ctx context.Context, limit int) ([]Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, event_type, appointment_id, payload, created_at
		FROM event_logs
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	defer rows.Close()

	var pending []Event
	for rows.Next() {
		var ev Event
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.TenantID, &ev.EventType, &ev.AppointmentID, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan event log: %w", err)
		}
		if len(payload) > 0 {
			ev.Payload = append(json.RawMessage(nil), payload...)
		}
		pending = append(pending, ev)
	}
	return pending, rows.Err()
}

func (s *OutboxStore) MarkPublished(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ct, err := s.pool.Exec(ctx, `
		UPDATE event_logs
		SET published_at = now()
		WHERE id = ANY($1) AND published_at IS NULL
	`, ids)
	if err != nil {
		return 0, fmt.Errorf("events: mark published: %w", err)
	}
	return ct.RowsAffected(), nil
}
