// Package events records domain events and fans them out to notifiers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/motor-valuation/internal/obs"
)

// Notifier reacts to emitted events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Bus persists domain events and fans them out to downstream handlers.
type Bus struct {
	Store     EventStore
	Notifiers []Notifier
	NewID     func() string
}

// WithStore returns a copy of the bus writing to store, keeping its notifiers.
func (b *Bus) WithStore(store EventStore) *Bus {
	cp := Bus{Store: store, NewID: b.NewID}
	cp.Notifiers = append(cp.Notifiers, b.Notifiers...)
	return &cp
}

// Emit records the event and dispatches it to all configured handlers. A
// notifier failure is returned alongside the persisted event.
func (b *Bus) Emit(ctx context.Context, topic, aggregateID string, payload any) (Event, error) {
	if b == nil || b.Store == nil {
		return Event{}, errors.New("events: store not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errors.New("events: topic is required")
	}
	if strings.TrimSpace(aggregateID) == "" {
		return Event{}, errors.New("events: aggregate id is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	id := uuid.NewString()
	if b.NewID != nil {
		id = b.NewID()
	}
	ev, err := b.Store.InsertDomainEvent(ctx, Event{
		ID:          id,
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     encoded,
	})
	if err != nil {
		return Event{}, fmt.Errorf("events: persist event: %w", err)
	}
	var joined error
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if notifyErr := notifier.Notify(ctx, ev); notifyErr != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", notifyErr))
		}
	}
	return ev, joined
}

// LogNotifier writes each event to the structured log.
type LogNotifier struct {
	Logger *zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, ev Event) error {
	obs.LoggerOrNop(n.Logger).Info().
		Str("event_id", ev.ID).
		Str("topic", ev.Topic).
		Str("aggregate_id", ev.AggregateID).
		Msg("domain event recorded")
	return nil
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	switch v := payload.(type) {
	case json.RawMessage:
		if len(v) == 0 {
			return []byte("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append([]byte(nil), v...), nil
	case []byte:
		return encodePayload(json.RawMessage(v))
	default:
		return json.Marshal(v)
	}
}
