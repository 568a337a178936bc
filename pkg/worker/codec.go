package worker

import (
	"encoding/json"
	"fmt"

	"gitevents/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Codec decodes broker messages into deliveries.
type Codec interface {
	Decode(topic string, msg *message.Message) (*Delivery, error)
}

// NotificationCodec decodes the JSON notification published by the webhook
// server. Provider and event fall back to message metadata when the body
// omits them.
type NotificationCodec struct{}

func (NotificationCodec) Decode(topic string, msg *message.Message) (*Delivery, error) {
	var notification events.Notification
	if err := json.Unmarshal(msg.Payload, &notification); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	if !notification.Record.Action.Valid() {
		return nil, fmt.Errorf("decode notification: unknown action %q", notification.Record.Action)
	}

	metadata := make(map[string]string, len(msg.Metadata))
	for key, value := range msg.Metadata {
		metadata[key] = value
	}
	if notification.Provider == "" {
		notification.Provider = msg.Metadata.Get("provider")
	}
	if notification.Event == "" {
		notification.Event = msg.Metadata.Get("event")
	}
	if notification.Topic == "" {
		notification.Topic = topic
	}

	return &Delivery{
		Topic:        topic,
		MessageID:    msg.UUID,
		Metadata:     metadata,
		Payload:      json.RawMessage(msg.Payload),
		Notification: notification,
	}, nil
}
