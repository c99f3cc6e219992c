package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ZUXXSU/chathubserver/internal/identity"
	"github.com/tidwall/gjson"
)

const (
	EventNewMessage      = "new-message"
	EventNewMessageAlert = "new-message-alert"
	EventStartTyping     = "start-typing"
	EventStopTyping      = "stop-typing"
	EventChatJoined      = "chat-joined"
	EventChatLeaved      = "chat-leaved"
	EventOnlineUsers     = "online-users"
	EventAlert           = "alert"
	EventRefetchChats    = "refetch-chats"
	EventNewRequest      = "new-request"
	EventError           = "error"
)

// Envelope is the frame shape in both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessagePayload is sent by a client to post a message.
type NewMessagePayload struct {
	ChatID  string        `json:"chatId" validate:"required"`
	Members []identity.ID `json:"members" validate:"required,min=1,dive,required"`
	Message string        `json:"message"`
}

// TypingPayload is the inbound start-typing/stop-typing shape.
type TypingPayload struct {
	ChatID  string        `json:"chatId" validate:"required"`
	Members []identity.ID `json:"members" validate:"required,min=1"`
}

// MembershipPayload is the inbound chat-joined/chat-leaved shape.
type MembershipPayload struct {
	UserID  identity.ID   `json:"userId" validate:"required"`
	Members []identity.ID `json:"members" validate:"required"`
}

// ChatRef is the outbound typing and alert payload.
type ChatRef struct {
	ChatID string `json:"chatId"`
}

// AlertPayload is the structured form of an alert.
type AlertPayload struct {
	Message string `json:"message"`
	ChatID  string `json:"chatId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

var (
	errMalformedFrame = errors.New("malformed frame")
	errMissingEvent   = errors.New("frame has no event")
)

// Encode builds a frame. A nil payload is omitted.
func Encode(event string, payload any) ([]byte, error) {
	env := Envelope{Event: event}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// sniff pulls the event name and raw payload out of an inbound frame without
// decoding the payload.
func sniff(frame []byte) (string, []byte, error) {
	if !gjson.ValidBytes(frame) {
		return "", nil, errMalformedFrame
	}
	event := gjson.GetBytes(frame, "event")
	if event.Type != gjson.String || event.String() == "" {
		return "", nil, errMissingEvent
	}
	payload := gjson.GetBytes(frame, "payload")
	if !payload.Exists() {
		return event.String(), nil, nil
	}
	return event.String(), []byte(payload.Raw), nil
}
