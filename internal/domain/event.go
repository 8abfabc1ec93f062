package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all outbox event types.
type EventType string

const (
	EventApplicationSubmitted  EventType = "apply.application.submitted"
	EventIdentityAuthenticated EventType = "apply.identity.authenticated"
)

// OutboxEvent is one row of the event_outbox table. Events are written in
// the same transaction as the state change they describe and delivered by
// the notifier poller; a row survives until delivery succeeds.
type OutboxEvent struct {
	SeqID       int64           `json:"-"`
	EventID     uuid.UUID       `json:"event_id"`
	AggregateID string          `json:"aggregate_id"`
	EventType   EventType       `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Attempts    int             `json:"-"`
}

// SubmissionPayload is the webhook body sent when an application is
// submitted. Field names are part of the downstream automation's contract.
type SubmissionPayload struct {
	DiscordID       string             `json:"discord_id"`
	ApplicationData *ApplicationRecord `json:"application_data"`
	Status          SubmissionStatus   `json:"status"`
	SubmitTimestamp time.Time          `json:"submit_timestamp"`
}

// AuthPayload is the webhook body sent when an identity authenticates.
type AuthPayload struct {
	DiscordID        string `json:"discord_id"`
	DiscordUsername  string `json:"discord_username"`
	DiscordEmail     string `json:"discord_email,omitempty"`
	DiscordAvatarURL string `json:"discord_avatar_url,omitempty"`
}

// NewSubmissionEvent builds the outbox event for a completed submission.
func NewSubmissionEvent(discordID string, record *ApplicationRecord, at time.Time) OutboxEvent {
	payload, _ := json.Marshal(SubmissionPayload{
		DiscordID:       discordID,
		ApplicationData: record,
		Status:          StatusSubmitted,
		SubmitTimestamp: at,
	})
	return OutboxEvent{
		EventID:     uuid.New(),
		AggregateID: discordID,
		EventType:   EventApplicationSubmitted,
		Payload:     payload,
		OccurredAt:  at,
	}
}

// NewAuthEvent builds the outbox event for a fresh authentication.
func NewAuthEvent(identity DiscordIdentity, at time.Time) OutboxEvent {
	payload, _ := json.Marshal(AuthPayload{
		DiscordID:        identity.ID,
		DiscordUsername:  identity.Username,
		DiscordEmail:     identity.Email,
		DiscordAvatarURL: identity.AvatarURL(),
	})
	return OutboxEvent{
		EventID:     uuid.New(),
		AggregateID: identity.ID,
		EventType:   EventIdentityAuthenticated,
		Payload:     payload,
		OccurredAt:  at,
	}
}
