package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CurrentVersion is stamped on every envelope written by Emit.
const CurrentVersion = 1

// ActorRef identifies who produced the event. System actors carry no user id.
type ActorRef struct {
	UserID *uuid.UUID `json:"userId,omitempty"`
	Role   string     `json:"role"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope unwraps a stored outbox payload.
func DecodeEnvelope(raw json.RawMessage) (PayloadEnvelope, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return PayloadEnvelope{}, err
	}
	if envelope.Version == 0 {
		envelope.Version = CurrentVersion
	}
	return envelope, nil
}
