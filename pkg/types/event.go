package types

import (
	"time"

	"github.com/google/uuid"
)

type RegistrationEventType string

const (
	EventRegistered         RegistrationEventType = "REGISTERED"
	EventDeleteRegistration RegistrationEventType = "DELETE_REGISTRATION"
)

// RegistrationEvent is an immutable notification carrying an application snapshot.
type RegistrationEvent struct {
	ID          uuid.UUID             `json:"id"`
	Type        RegistrationEventType `json:"type"`
	Application ClientApplication     `json:"application"`
	OccurredAt  time.Time             `json:"occurred_at"`
}

func NewRegistrationEvent(eventType RegistrationEventType, app *ClientApplication) RegistrationEvent {
	return RegistrationEvent{
		ID:          uuid.New(),
		Type:        eventType,
		Application: *app.Clone(),
		OccurredAt:  time.Now().UTC(),
	}
}
