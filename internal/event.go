package internal

import "gitevents/pkg/events"

// Event is a stored webhook delivery handed to the rule engine and publisher.
type Event struct {
	Provider   string
	Name       string
	RequestID  string
	Record     events.Record
	RawPayload []byte
	RawObject  interface{}
}

// Notification builds the message body published on topic.
func (e Event) Notification(topic string) events.Notification {
	return events.Notification{
		Provider:   e.Provider,
		Event:      e.Name,
		DeliveryID: e.RequestID,
		Topic:      topic,
		Record:     e.Record,
	}
}
