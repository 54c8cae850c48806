// Package bus provides the publish/subscribe capability used to advertise
// specialists as addressable peers and to carry consultation requests between
// processes.
//
// Two implementations are provided: an in-process bus that delivers through
// buffered channels, and a NATS bus for cross-process deployments. Both are
// injected as the Bus interface; nothing in this module holds a global bus.
package bus

import (
	"context"
	"errors"
	"strings"

	"github.com/tailored-agentic-units/specialists/messaging"
)

// Topic names a delivery subject. Sub-topics are dot-separated.
type Topic string

// Topics used by the specialist subsystems.
const (
	TopicAdvertise      Topic = "specialists.advertise"
	TopicConsultRequest Topic = "consult.request"
	TopicConsultReply   Topic = "consult.reply"
)

// With appends dot-separated parts to the topic.
func (t Topic) With(parts ...string) Topic {
	if len(parts) == 0 {
		return t
	}
	return Topic(string(t) + "." + strings.Join(parts, "."))
}

// Handler consumes a delivered message.
type Handler func(ctx context.Context, msg *messaging.Message)

// Subscription is an active topic registration.
type Subscription interface {
	Unsubscribe() error
}

// Bus publishes messages to topic subscribers.
type Bus interface {
	Publish(ctx context.Context, topic Topic, msg *messaging.Message) error
	Subscribe(topic Topic, handler Handler) (Subscription, error)
	Close() error
}

var (
	ErrClosed     = errors.New("bus closed")
	ErrEmptyTopic = errors.New("empty topic")
	ErrNilHandler = errors.New("nil handler")
	ErrUnknownBus = errors.New("unknown bus backend")
)
