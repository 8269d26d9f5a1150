package consumer

import (
	"time"
)

// RegistrationEventType represents the type of registration change event
type RegistrationEventType string

const (
	RegistrationEventCreated RegistrationEventType = "registration.created"
	RegistrationEventUpdated RegistrationEventType = "registration.updated"
	RegistrationEventDeleted RegistrationEventType = "registration.deleted"
)

// RegistrationEvent is a change notification published by the registration
// writers onto the changes topic
type RegistrationEvent struct {
	EventID    string                 `json:"event_id"`
	EventType  RegistrationEventType  `json:"event_type"`
	OccurredAt time.Time              `json:"occurred_at"`
	Version    int                    `json:"version"`
	Data       *RegistrationEventData `json:"data"`
}

// RegistrationEventData identifies the changed registration. Either id
// works; ReconcileOne resolves both.
type RegistrationEventData struct {
	RegistrationID     string `json:"registration_id"`
	ConfirmationNumber string `json:"confirmation_number,omitempty"`
	Source             string `json:"source,omitempty"`
}

// LookupID returns the id to reconcile
func (d *RegistrationEventData) LookupID() string {
	if d.RegistrationID != "" {
		return d.RegistrationID
	}
	return d.ConfirmationNumber
}
