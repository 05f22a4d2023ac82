// Package protocol defines the bidirectional event contract spoken over the
// chat websocket. Every frame is a JSON text message of the form
// {"event": "<name>", "data": {...}}.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Client to server events.
const (
	EventSendMessage       = "send_message"
	EventSwitchModel       = "switch_model"
	EventResetConversation = "reset_conversation"
)

// Server to client events.
const (
	EventMessageReceived   = "message_received"
	EventAgentTyping       = "agent_typing"
	EventMessageStart      = "message_start"
	EventMessageChunk      = "message_chunk"
	EventMessageComplete   = "message_complete"
	EventMessageError      = "message_error"
	EventModelSwitched     = "model_switched"
	EventConversationReset = "conversation_reset"
)

// Sender values.
const (
	SenderUser  = "user"
	SenderAgent = "agent"
)

// ErrMalformedFrame is returned when an inbound frame cannot be decoded.
var ErrMalformedFrame = errors.New("malformed frame")

// Envelope is the outer frame for every event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SendMessage is the payload of send_message.
type SendMessage struct {
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// SwitchModel is the payload of switch_model.
type SwitchModel struct {
	Model string `json:"model"`
}

// MessageReceived echoes an accepted user turn.
type MessageReceived struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Timestamp int64  `json:"timestamp"`
}

// AgentTyping toggles the typing indicator.
type AgentTyping struct {
	IsTyping bool `json:"isTyping"`
}

// MessageStart announces a new stream.
type MessageStart struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Timestamp int64  `json:"timestamp"`
}

// MessageChunk carries one fragment and the running concatenation.
type MessageChunk struct {
	ID       string `json:"id"`
	Chunk    string `json:"chunk"`
	FullText string `json:"fullText"`
}

// MessageComplete carries the final assistant text for a stream.
type MessageComplete struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Timestamp int64  `json:"timestamp"`
}

// MessageError reports a rejected or failed turn.
type MessageError struct {
	Error     string `json:"error"`
	Timestamp int64  `json:"timestamp"`
}

// ModelSwitched acknowledges switch_model.
type ModelSwitched struct {
	Model   string `json:"model"`
	Success bool   `json:"success"`
}

// ConversationReset acknowledges reset_conversation.
type ConversationReset struct {
	Success bool `json:"success"`
}

// Encode marshals an event into a frame.
func Encode(event string, payload any) ([]byte, error) {
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// Decode parses a frame into its envelope.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event name", ErrMalformedFrame)
	}
	return env, nil
}

// DecodeData unmarshals the envelope payload into v. An absent payload
// leaves v untouched.
func (e Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedFrame, e.Event, err)
	}
	return nil
}

// Now returns the current time as Unix milliseconds, the timestamp unit of
// every event.
func Now() int64 {
	return time.Now().UnixMilli()
}
