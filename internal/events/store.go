package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noah-isme/motor-valuation/internal/db"
)

// Event is one persisted domain event.
type Event struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	AggregateID string          `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
}

// EventStore defines the persistence operations required by the event bus.
type EventStore interface {
	InsertDomainEvent(ctx context.Context, ev Event) (Event, error)
}

// PGStore writes events to the domain_events table. Pass a transaction to
// record events atomically with the change they describe.
type PGStore struct {
	DB db.DBTX
}

// NewPGStore constructs a PGStore.
func NewPGStore(conn db.DBTX) *PGStore {
	return &PGStore{DB: conn}
}

const insertEventSQL = `
INSERT INTO domain_events (id, topic, aggregate_id, payload)
VALUES ($1, $2, $3, $4)
RETURNING created_at`

// InsertDomainEvent implements EventStore.
func (s *PGStore) InsertDomainEvent(ctx context.Context, ev Event) (Event, error) {
	if err := s.DB.QueryRow(ctx, insertEventSQL, ev.ID, ev.Topic, ev.AggregateID, []byte(ev.Payload)).Scan(&ev.CreatedAt); err != nil {
		return Event{}, fmt.Errorf("insert domain event: %w", err)
	}
	return ev, nil
}
