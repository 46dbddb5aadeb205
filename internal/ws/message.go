// Package ws implements the websocket transport: connection lifecycle,
// per-user registry and the JSON event framing shared with clients.
package ws

import (
	"encoding/json"
	"fmt"
)

// Inbound event types.
const (
	EventRegister            = "register"
	EventStartSearch         = "start_search"
	EventStopSearch          = "stop_search"
	EventChatMessage         = "chat_message"
	EventTypingStart         = "typing_start"
	EventTypingStop          = "typing_stop"
	EventTyping              = "typing" // legacy alias for typing_start
	EventGameRequest         = "game_request"
	EventGameRequestResponse = "game_request_response"
	EventMove                = "move"
	EventSessionEnd          = "session_end"
	EventPresenceUpdate      = "presence_update"
)

// Outbound event types.
const (
	EventRegistered   = "registered"
	EventMatchFound   = "match_found"
	EventNewMessage   = "new_message"
	EventGameUpdate   = "game_update"
	EventGameResult   = "game_result"
	EventSessionEnded = "session_ended"
	EventError        = "error"
	EventGameError    = "game_error"
)

// Inbound is a single frame received from a client. Type is the event
// discriminator; Raw holds the full frame so the router can decode the
// payload into the matching struct.
type Inbound struct {
	Type string
	Raw  json.RawMessage
}

// ParseInbound extracts the type discriminator from a raw frame.
func ParseInbound(data []byte) (Inbound, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Inbound{}, fmt.Errorf("malformed event: %w", err)
	}
	if head.Type == "" {
		return Inbound{}, fmt.Errorf("event missing type")
	}
	return Inbound{Type: head.Type, Raw: json.RawMessage(data)}, nil
}

// Decode unmarshals the frame payload into v.
func (in Inbound) Decode(v any) error {
	if err := json.Unmarshal(in.Raw, v); err != nil {
		return fmt.Errorf("malformed %s payload: %w", in.Type, err)
	}
	return nil
}

// Outbound is a single frame sent to a client. It marshals flat: the
// payload's fields and the type discriminator end up in one object, so
// clients see {"type":"new_message","message":{...}} rather than a
// nested envelope.
type Outbound struct {
	Type    string
	Payload any
}

// MarshalJSON flattens the payload and injects the type discriminator.
func (o Outbound) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage)
	if o.Payload != nil {
		b, err := json.Marshal(o.Payload)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(b, &fields); err != nil {
			return nil, fmt.Errorf("outbound payload must be an object: %w", err)
		}
	}
	t, err := json.Marshal(o.Type)
	if err != nil {
		return nil, err
	}
	fields["type"] = t
	return json.Marshal(fields)
}

// ErrorPayload is the body of error and game_error events.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Errorf builds an error event for the sender.
func Errorf(format string, args ...any) Outbound {
	return Outbound{Type: EventError, Payload: ErrorPayload{Message: fmt.Sprintf(format, args...)}}
}

// GameErrorf builds a game_error event for the sender.
func GameErrorf(format string, args ...any) Outbound {
	return Outbound{Type: EventGameError, Payload: ErrorPayload{Message: fmt.Sprintf(format, args...)}}
}
