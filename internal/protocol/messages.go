// Package protocol defines the WebSocket message types exchanged between the
// chat client and server. All messages are JSON with a type discriminator in
// a consistent envelope.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Client -> Server message types.
const (
	TypeIdentify    = "identify"
	TypeJoinSlot    = "join_slot"
	TypeLeaveSlot   = "leave_slot"
	TypeSendMessage = "send_message"
	TypePing        = "ping"
)

// Server -> Client message types.
const (
	TypeSessionCreated   = "session_created"
	TypeSlotJoined       = "slot_joined"
	TypeSlotLeft         = "slot_left"
	TypeMessageDelivered = "message_delivered"
	TypeMessageRejected  = "message_rejected"
	TypeDeliveryFailed   = "delivery_failed"
	TypeRateLimited      = "rate_limited"
	TypeError            = "error"
	TypePong             = "pong"
)

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field so the rest of the payload can be decoded later into the appropriate
// concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// IdentifyMsg binds the authenticated user's identity to the session.
type IdentifyMsg struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// JoinSlotMsg subscribes the session to a slot's chat room.
type JoinSlotMsg struct {
	Type   string `json:"type"`
	SlotID string `json:"slot_id"`
}

// LeaveSlotMsg unsubscribes the session from a slot's chat room.
type LeaveSlotMsg struct {
	Type   string `json:"type"`
	SlotID string `json:"slot_id"`
}

// SendMessageMsg submits a candidate chat message for moderation and
// delivery to the slot's room.
type SendMessageMsg struct {
	Type     string `json:"type"`
	SlotID   string `json:"slot_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Body     string `json:"body"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// SessionCreatedMsg is sent when a new session is established.
type SessionCreatedMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// SlotJoinedMsg confirms room membership.
type SlotJoinedMsg struct {
	Type    string `json:"type"`
	SlotID  string `json:"slot_id"`
	Members int    `json:"members"`
}

// SlotLeftMsg confirms the session left a room.
type SlotLeftMsg struct {
	Type   string `json:"type"`
	SlotID string `json:"slot_id"`
}

// MessageDeliveredMsg is an accepted message broadcast to every member of the
// slot's room, including the sender. Encouragement is present only when the
// moderation engine attached one.
type MessageDeliveredMsg struct {
	Type          string    `json:"type"`
	SlotID        string    `json:"slot_id"`
	Body          string    `json:"body"`
	SenderID      string    `json:"sender_id"`
	SenderName    string    `json:"sender_name"`
	CreatedAt     time.Time `json:"created_at"`
	Encouragement string    `json:"encouragement,omitempty"`
}

// MessageRejectedMsg is sent privately to the submitter when moderation
// rejects a message. No other room member observes the rejection.
type MessageRejectedMsg struct {
	Type         string  `json:"type"`
	SlotID       string  `json:"slot_id"`
	OriginalBody string  `json:"original_body"`
	Suggestion   string  `json:"suggestion"`
	Confidence   float64 `json:"confidence"`
}

// DeliveryFailedMsg tells the submitter their message was not delivered
// because of an infrastructure failure. The message was withheld from the
// room.
type DeliveryFailedMsg struct {
	Type   string `json:"type"`
	SlotID string `json:"slot_id"`
	Reason string `json:"reason"`
}

// RateLimitedMsg is sent when the client exceeds the message rate limit.
type RateLimitedMsg struct {
	Type       string `json:"type"`
	RetryAfter int    `json:"retry_after"`
}

// ErrorMsg communicates an error condition to the client.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or server-only
// message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeIdentify:
		var m IdentifyMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeJoinSlot:
		var m JoinSlotMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeLeaveSlot:
		var m LeaveSlotMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSendMessage:
		var m SendMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
