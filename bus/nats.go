package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/tailored-agentic-units/specialists/messaging"
)

// NATS is a Bus backed by a NATS connection. Messages travel as JSON; topics
// map to subjects, optionally under a prefix.
type NATS struct {
	conn   *nats.Conn
	prefix string
	owned  bool

	mu     sync.Mutex
	subs   map[*nats.Subscription]struct{}
	closed bool

	logger  *zap.Logger
	metrics *Metrics
}

// NewNATS wraps an existing connection. The caller keeps ownership of nc.
func NewNATS(nc *nats.Conn, prefix string, logger *zap.Logger) *NATS {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATS{
		conn:    nc,
		prefix:  prefix,
		subs:    make(map[*nats.Subscription]struct{}),
		logger:  logger.Named("bus.nats"),
		metrics: NewMetrics(),
	}
}

func (b *NATS) subject(topic Topic) string {
	if b.prefix == "" {
		return string(topic)
	}
	return b.prefix + "." + string(topic)
}

func (b *NATS) Publish(_ context.Context, topic Topic, msg *messaging.Message) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	out := msg.Clone()
	out.Topic = string(topic)
	data, err := json.Marshal(out)
	if err != nil {
		b.metrics.RecordFailed()
		return fmt.Errorf("marshal message %s: %w", msg.ID, err)
	}

	if err := b.conn.Publish(b.subject(topic), data); err != nil {
		b.metrics.RecordFailed()
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	b.metrics.RecordPublished()
	return nil
}

func (b *NATS) Subscribe(topic Topic, handler Handler) (Subscription, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	if handler == nil {
		return nil, ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	sub, err := b.conn.Subscribe(b.subject(topic), func(m *nats.Msg) {
		var msg messaging.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			b.metrics.RecordFailed()
			b.logger.Warn("dropping undecodable message",
				zap.String("subject", m.Subject),
				zap.Error(err),
			)
			return
		}
		handler(context.Background(), &msg)
		b.metrics.RecordDelivered()
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	b.subs[sub] = struct{}{}
	b.metrics.RecordSubscription(1)
	return &natsSubscription{bus: b, sub: sub}, nil
}

// Flush blocks until the server has processed all buffered publishes.
func (b *NATS) Flush() error {
	return b.conn.Flush()
}

func (b *NATS) Metrics() MetricsSnapshot {
	return b.metrics.Snapshot()
}

// Close removes every subscription made through this bus and closes the
// connection when the bus owns it.
func (b *NATS) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[*nats.Subscription]struct{})
	b.mu.Unlock()

	for sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			b.logger.Debug("unsubscribe on close", zap.Error(err))
		}
	}
	if b.owned {
		b.conn.Close()
	}
	return nil
}

type natsSubscription struct {
	bus *NATS
	sub *nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	_, tracked := s.bus.subs[s.sub]
	delete(s.bus.subs, s.sub)
	s.bus.mu.Unlock()

	if !tracked {
		return nil
	}
	s.bus.metrics.RecordSubscription(-1)
	return s.sub.Unsubscribe()
}
