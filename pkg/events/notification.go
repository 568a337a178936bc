package events

// Notification is the message published for every stored record.
type Notification struct {
	Provider   string `json:"provider"`
	Event      string `json:"event"`
	DeliveryID string `json:"delivery_id,omitempty"`
	Topic      string `json:"topic"`
	Record     Record `json:"record"`
}
