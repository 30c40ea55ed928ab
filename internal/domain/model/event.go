// Package model contains domain models passed between layers.
package model

import "time"

// InteractionEvent is one interaction submitted by a client for asynchronous
// recording. Fields mirror the OpenAPI schema for
// POST /v1/users/{userID}/interactions.
type InteractionEvent struct {
	EventID string    // unique id for idempotency
	UserID  string    // Telegram user the profile belongs to
	ItemID  string    // catalog item identifier
	Action  Action    // view, click or favorite
	TS      time.Time // client timestamp, or the time the server accepted it
}

// ChangeReason names the mutation that produced a ProfileChanged.
type ChangeReason string

// Change reasons.
const (
	ChangeInteraction ChangeReason = "interaction"
	ChangeSession     ChangeReason = "session"
	ChangeInterests   ChangeReason = "interests"
	ChangeReset       ChangeReason = "reset"
)

// ProfileChanged is broadcast after every profile save.
type ProfileChanged struct {
	UserID  string       `json:"userId"`
	Reason  ChangeReason `json:"reason"`
	Profile Profile      `json:"profile"`
	At      time.Time    `json:"at"`
}
