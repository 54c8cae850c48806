package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tailored-agentic-units/specialists/messaging"
)

type subscriber struct {
	id      string
	topic   Topic
	handler Handler
	channel *MessageChannel[*messaging.Message]
}

// Local is an in-process Bus. Each subscription owns a buffered channel
// drained by its own goroutine, so a slow handler never stalls other topics.
type Local struct {
	name       string
	bufferSize int

	subscriptions map[Topic]map[string]*subscriber
	subsMutex     sync.RWMutex

	logger  *zap.Logger
	metrics *Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLocal creates an in-process bus bound to ctx.
func NewLocal(ctx context.Context, cfg Config, logger *zap.Logger) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ChannelBufferSize <= 0 {
		cfg.ChannelBufferSize = DefaultConfig().ChannelBufferSize
	}
	busCtx, cancel := context.WithCancel(ctx)
	return &Local{
		name:          cfg.Name,
		bufferSize:    cfg.ChannelBufferSize,
		subscriptions: make(map[Topic]map[string]*subscriber),
		logger:        logger.Named("bus"),
		metrics:       NewMetrics(),
		ctx:           busCtx,
		cancel:        cancel,
	}
}

func (b *Local) Subscribe(topic Topic, handler Handler) (Subscription, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	if handler == nil {
		return nil, ErrNilHandler
	}
	if b.ctx.Err() != nil {
		return nil, ErrClosed
	}

	sub := &subscriber{
		id:      uuid.NewString(),
		topic:   topic,
		handler: handler,
		channel: NewMessageChannel[*messaging.Message](b.ctx, b.bufferSize),
	}

	b.subsMutex.Lock()
	if b.subscriptions[topic] == nil {
		b.subscriptions[topic] = make(map[string]*subscriber)
	}
	b.subscriptions[topic][sub.id] = sub
	b.subsMutex.Unlock()

	b.metrics.RecordSubscription(1)
	b.wg.Add(1)
	go b.deliver(sub)

	b.logger.Debug("subscribed",
		zap.String("bus", b.name),
		zap.String("topic", string(topic)),
	)

	return &localSubscription{bus: b, sub: sub}, nil
}

func (b *Local) Publish(ctx context.Context, topic Topic, msg *messaging.Message) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if b.ctx.Err() != nil {
		return ErrClosed
	}

	b.subsMutex.RLock()
	subs := make([]*subscriber, 0, len(b.subscriptions[topic]))
	for _, sub := range b.subscriptions[topic] {
		subs = append(subs, sub)
	}
	b.subsMutex.RUnlock()

	b.metrics.RecordPublished()

	delivered := 0
	for _, sub := range subs {
		out := msg.Clone()
		out.Topic = string(topic)
		if err := sub.channel.Send(ctx, out); err != nil {
			b.metrics.RecordFailed()
			b.logger.Warn("failed to enqueue message",
				zap.String("bus", b.name),
				zap.String("topic", string(topic)),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}

	b.logger.Debug("message published",
		zap.String("bus", b.name),
		zap.String("topic", string(topic)),
		zap.Int("subscribers", len(subs)),
		zap.Int("delivered", delivered),
	)
	return nil
}

func (b *Local) Metrics() MetricsSnapshot {
	return b.metrics.Snapshot()
}

// Close stops delivery and waits for every subscriber goroutine to exit.
func (b *Local) Close() error {
	b.cancel()

	b.subsMutex.Lock()
	for topic, subs := range b.subscriptions {
		for _, sub := range subs {
			sub.channel.Close()
		}
		delete(b.subscriptions, topic)
	}
	b.subsMutex.Unlock()

	b.wg.Wait()
	return nil
}

func (b *Local) deliver(sub *subscriber) {
	defer b.wg.Done()
	for {
		msg, ok := sub.channel.Receive()
		if !ok {
			return
		}
		b.invoke(sub, msg)
		b.metrics.RecordDelivered()
	}
}

func (b *Local) invoke(sub *subscriber, msg *messaging.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked",
				zap.String("topic", string(sub.topic)),
				zap.String("message_id", msg.ID),
				zap.Any("panic", r),
			)
		}
	}()
	sub.handler(b.ctx, msg)
}

func (b *Local) unsubscribe(sub *subscriber) error {
	b.subsMutex.Lock()
	subs, exists := b.subscriptions[sub.topic]
	if exists {
		if _, found := subs[sub.id]; !found {
			exists = false
		}
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(b.subscriptions, sub.topic)
		}
	}
	b.subsMutex.Unlock()

	if !exists {
		return fmt.Errorf("subscription not found: %s", sub.topic)
	}
	sub.channel.Close()
	b.metrics.RecordSubscription(-1)
	return nil
}

type localSubscription struct {
	bus *Local
	sub *subscriber
}

func (s *localSubscription) Unsubscribe() error {
	return s.bus.unsubscribe(s.sub)
}
