// Package realtime is the connection registry and broadcast bus. It tracks
// which sockets this process holds, which named channels they joined, and
// forwards every emit through the bus so a message accepted on one process
// reaches recipients connected to any other.
package realtime

import (
	"encoding/json"
	"fmt"
)

// Envelope is the bidirectional socket frame: a named event, an optional
// JSON payload, and an optional client-supplied acknowledgment id.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID string          `json:"ackId,omitempty"`
}

// AckEvent is the reserved event name for acknowledgment replies.
const AckEvent = "ack"

// NewEnvelope marshals payload into an envelope for the given event.
func NewEnvelope(event string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return Envelope{Event: event, Data: data}, nil
}

// PersonalChannel names the channel scoped to one user, reachable from any
// of their connected sessions on any process.
func PersonalChannel(userID uint) string {
	return fmt.Sprintf("user:%d", userID)
}

// RoomChannel names the channel scoped to one chat room.
func RoomChannel(roomID uint) string {
	return fmt.Sprintf("room:%d", roomID)
}
