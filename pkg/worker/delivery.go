package worker

import (
	"encoding/json"

	"gitevents/pkg/events"
)

// Delivery is a notification received by the worker.
type Delivery struct {
	// Topic is the topic the message was received on.
	Topic string `json:"topic"`
	// MessageID is the broker message UUID.
	MessageID string `json:"message_id"`
	// Metadata contains message-broker-specific metadata.
	Metadata map[string]string `json:"metadata"`
	// Payload is the raw JSON payload of the message.
	Payload json.RawMessage `json:"payload"`
	// Notification is the decoded payload.
	Notification events.Notification `json:"notification"`
}

// Action is the action of the carried record.
func (d *Delivery) Action() events.Action {
	return d.Notification.Record.Action
}

// RequestID prefers the record's request id and falls back to message metadata.
func (d *Delivery) RequestID() string {
	if id := d.Notification.Record.RequestID; id != nil && *id != "" {
		return *id
	}
	return d.Metadata["request_id"]
}
