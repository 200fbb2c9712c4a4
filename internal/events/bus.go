// Package events records domain events and fans them out to a broker and
// in-process notifiers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/docstore"
)

// Event is a persisted domain event.
type Event struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	AggregateID string          `json:"aggregateId"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

type eventDoc struct {
	ID          string         `json:"id" bson:"_id,omitempty"`
	Topic       string         `json:"topic" bson:"topic"`
	AggregateID string         `json:"aggregateId" bson:"aggregateId"`
	Payload     map[string]any `json:"payload" bson:"payload"`
	OccurredAt  time.Time      `json:"occurredAt" bson:"occurredAt"`
	Published   bool           `json:"published" bson:"published"`
}

// Publisher ships events to an external broker.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Notifier reacts to emitted events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Bus persists domain events and fans them out to downstream handlers.
type Bus struct {
	Store     docstore.Store
	Publisher Publisher
	Notifiers []Notifier
	Now       func() time.Time
}

// Emit records the event, then publishes and notifies. The event is returned
// once persisted; downstream failures come back joined alongside it.
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
	var body map[string]any
	if err := json.Unmarshal(encoded, &body); err != nil {
		return Event{}, fmt.Errorf("events: payload must be an object: %w", err)
	}

	ev := Event{
		ID:          uuid.NewString(),
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     encoded,
		OccurredAt:  b.now(),
	}
	coll := b.Store.Collection(Collection)
	doc := eventDoc{ID: ev.ID, Topic: topic, AggregateID: aggregateID, Payload: body, OccurredAt: ev.OccurredAt}
	if _, err := coll.Add(ctx, doc); err != nil {
		return Event{}, fmt.Errorf("events: persist event: %w", err)
	}

	var joined error
	if b.Publisher != nil {
		if err := b.Publisher.Publish(ctx, ev); err != nil {
			joined = errors.Join(joined, fmt.Errorf("events: publish: %w", err))
		} else if err := coll.Update(ctx, ev.ID, map[string]any{"published": true}); err != nil {
			joined = errors.Join(joined, fmt.Errorf("events: mark published: %w", err))
		}
	}
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, ev); err != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", err))
		}
	}
	return ev, joined
}

func (b *Bus) now() time.Time {
	if b.Now != nil {
		return b.Now().UTC()
	}
	return time.Now().UTC()
}

func encodePayload(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case nil:
		return []byte("{}"), nil
	case json.RawMessage:
		return validJSON(v)
	case []byte:
		return validJSON(v)
	case string:
		return validJSON([]byte(v))
	default:
		return json.Marshal(v)
	}
}

func validJSON(data []byte) ([]byte, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(data) {
		return nil, errors.New("payload is not valid json")
	}
	return append([]byte(nil), data...), nil
}
