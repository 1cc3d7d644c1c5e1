package domain

import (
	"encoding/json"
	"time"
)

// OutboxEvent is a message recorded in the same transaction as the state change it announces.
// Payload is published verbatim, with "event_id" injected, by the outbox worker.
type OutboxEvent struct {
	ID            int64           `db:"id"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	EventType     string          `db:"event_type"`
	Payload       json.RawMessage `db:"payload"`
	CreatedAt     time.Time       `db:"created_at"`
	PublishedAt   *time.Time      `db:"published_at"`
	Attempts      int64           `db:"attempts"`
	LastError     *string         `db:"last_error"`
	Topic         string          `db:"topic"`
}

// NewOutboxEvent wraps payload in the {"event": ..., "payload": ...} envelope consumers expect.
func NewOutboxEvent(topic, aggregateType, aggregateID, eventType string, payload any) (*OutboxEvent, error) {
	body, err := json.Marshal(map[string]any{
		"event":   eventType,
		"payload": payload,
	})
	if err != nil {
		return nil, err
	}

	return &OutboxEvent{
		Topic:         topic,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
	}, nil
}
