// Package messaging provides the message envelope carried over the bus.
//
// Messages are built with a fluent builder and carry an arbitrary payload in
// Data. In-process delivery hands the payload over untouched; transports that
// serialize (NATS) deliver it as decoded JSON, so receivers read it back with
// Decode rather than a type assertion.
//
//	msg := messaging.NewRequest(requesterID, targetID, payload).
//	    Topic(string(topic)).
//	    Header(messaging.HeaderReplyTopic, replyTopic).
//	    Build()
package messaging

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageTypeRequest      MessageType = "request"
	MessageTypeResponse     MessageType = "response"
	MessageTypeNotification MessageType = "notification"
)

// Well-known headers.
const (
	HeaderConsultationID = "consultation-id"
	HeaderReplyTopic     = "reply-topic"
	HeaderDepth          = "depth"
)

type Message struct {
	ID        string            `json:"id"`
	From      string            `json:"from"`
	To        string            `json:"to,omitempty"`
	Type      MessageType       `json:"type"`
	Data      any               `json:"data"`
	ReplyTo   string            `json:"reply_to,omitempty"`
	Topic     string            `json:"topic,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Headers   map[string]string `json:"headers,omitempty"`
}

func (msg *Message) IsRequest() bool {
	return msg.Type == MessageTypeRequest
}

func (msg *Message) IsResponse() bool {
	return msg.Type == MessageTypeResponse
}

// Header returns a header value or "".
func (msg *Message) Header(key string) string {
	return msg.Headers[key]
}

func (msg *Message) Clone() *Message {
	clone := *msg
	clone.Headers = maps.Clone(msg.Headers)
	return &clone
}

func (msg *Message) String() string {
	return fmt.Sprintf(
		"Message{ID: %s, From: %s, To: %s, Type: %s, Topic: %s}",
		msg.ID,
		msg.From,
		msg.To,
		msg.Type,
		msg.Topic,
	)
}

// Decode extracts a typed payload. A payload already of type T is returned
// as is; anything else is round-tripped through JSON.
func Decode[T any](msg *Message) (T, error) {
	var out T
	switch v := msg.Data.(type) {
	case T:
		return v, nil
	case *T:
		if v != nil {
			return *v, nil
		}
		return out, fmt.Errorf("decode %s: nil payload", msg.ID)
	}

	raw, err := json.Marshal(msg.Data)
	if err != nil {
		return out, fmt.Errorf("decode %s: %w", msg.ID, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", msg.ID, err)
	}
	return out, nil
}

func generateID() string {
	return uuid.Must(uuid.NewV7()).String()
}
