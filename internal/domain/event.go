package domain

// StatusTag marks a delivery receipt rather than conversational content.
type StatusTag string

const (
	StatusSent      StatusTag = "sent"
	StatusDelivered StatusTag = "delivered"
	StatusRead      StatusTag = "read"
)

// InboundEvent is the unit of work fed to the conversation engine.
type InboundEvent struct {
	From     string    `json:"from"`
	Text     string    `json:"text"`
	MediaRef string    `json:"media_ref,omitempty"`
	Status   StatusTag `json:"status,omitempty"`
}

// IsStatusOnly reports whether the event is a delivery receipt that must be
// absorbed without touching session state or the transcript.
func (e InboundEvent) IsStatusOnly() bool {
	switch e.Status {
	case StatusSent, StatusDelivered, StatusRead:
		return true
	}
	return false
}

// HasMedia reports whether the event carries a media reference.
func (e InboundEvent) HasMedia() bool {
	return e.MediaRef != ""
}
