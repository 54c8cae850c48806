package consult

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tailored-agentic-units/specialists/bus"
	"github.com/tailored-agentic-units/specialists/messaging"
	"github.com/tailored-agentic-units/specialists/registry"
	"github.com/tailored-agentic-units/specialists/specialist"
)

// askPayload is the wire form of an Ask.
type askPayload struct {
	TargetID    string `json:"targetId"`
	TargetNode  string `json:"targetNode,omitempty"`
	RequesterID string `json:"requesterId,omitempty"`
	Query       string `json:"query"`
	Depth       int    `json:"depth"`
}

type replyPayload struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// BusTransport sends asks over a bus to the Responder serving the target's
// pillar and waits for the reply on this node's reply topic. Each ask is
// tracked by its own call id, carried in the consultation-id header.
type BusTransport struct {
	bus   bus.Bus
	node  string
	reply bus.Topic
	sub   bus.Subscription

	mu      sync.Mutex
	pending map[string]chan replyPayload

	logger *zap.Logger
}

// NewBusTransport subscribes to the reply topic of node. An empty node gets
// a generated name.
func NewBusTransport(b bus.Bus, node string, logger *zap.Logger) (*BusTransport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if node == "" {
		node = uuid.NewString()
	}
	t := &BusTransport{
		bus:     b,
		node:    node,
		reply:   bus.TopicConsultReply.With(node),
		pending: make(map[string]chan replyPayload),
		logger:  logger.Named("consult.bus"),
	}
	sub, err := b.Subscribe(t.reply, t.resolve)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", t.reply, err)
	}
	t.sub = sub
	return t, nil
}

// Ask publishes the request and blocks until the reply arrives or ctx
// ends. An expired deadline resolves to ErrTimeout.
func (t *BusTransport) Ask(ctx context.Context, ask Ask) (string, error) {
	if ask.Target == nil {
		return "", fmt.Errorf("consult %s: nil target", ask.ConsultationID)
	}

	callID := uuid.NewString()
	replyCh := make(chan replyPayload, 1)

	t.mu.Lock()
	t.pending[callID] = replyCh
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, callID)
		t.mu.Unlock()
	}()

	msg := messaging.NewRequest(ask.RequesterID, ask.Target.ID, askPayload{
		TargetID:    ask.Target.ID,
		TargetNode:  ask.Node,
		RequesterID: ask.RequesterID,
		Query:       ask.Query,
		Depth:       ask.Depth,
	}).
		Header(messaging.HeaderConsultationID, callID).
		Header(messaging.HeaderReplyTopic, string(t.reply)).
		Header(messaging.HeaderDepth, strconv.Itoa(ask.Depth)).
		Build()

	topic := bus.TopicConsultRequest.With(ask.Target.Pillar.String())
	if err := t.bus.Publish(ctx, topic, msg); err != nil {
		return "", fmt.Errorf("publish ask %s: %w", callID, err)
	}

	select {
	case r := <-replyCh:
		if r.Error != "" {
			return "", fmt.Errorf("remote %s: %s", ask.Target.ID, r.Error)
		}
		return strings.TrimSpace(r.Text), nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("%w: %s", ErrTimeout, ask.Target.ID)
		}
		return "", ctx.Err()
	}
}

func (t *BusTransport) resolve(_ context.Context, msg *messaging.Message) {
	callID := msg.Header(messaging.HeaderConsultationID)

	t.mu.Lock()
	ch, ok := t.pending[callID]
	t.mu.Unlock()
	if !ok {
		t.logger.Debug("reply without pending ask", zap.String("consultation_id", callID))
		return
	}

	reply, err := messaging.Decode[replyPayload](msg)
	if err != nil {
		reply = replyPayload{Error: err.Error()}
	}
	select {
	case ch <- reply:
	default:
	}
}

// Pending returns the number of asks awaiting a reply.
func (t *BusTransport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Close drops the reply subscription.
func (t *BusTransport) Close() error {
	return t.sub.Unsubscribe()
}

// Responder answers asks for the specialists of one or more pillars held in
// a local registry. Asks addressed to another node are ignored. Each ask is answered on its own goroutine, bounded by
// timeout.
type Responder struct {
	bus      bus.Bus
	registry *registry.Registry
	answer   Transport
	node     string
	timeout  time.Duration

	mu     sync.Mutex
	subs   []bus.Subscription
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewResponder creates a Responder that answers through answer, usually a
// Local transport. A non-positive timeout uses the consultation default.
func NewResponder(b bus.Bus, reg *registry.Registry, answer Transport, node string, timeout time.Duration, logger *zap.Logger) *Responder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	return &Responder{
		bus:      b,
		registry: reg,
		answer:   answer,
		node:     node,
		timeout:  timeout,
		logger:   logger.Named("consult.responder"),
	}
}

// Serve subscribes to the request topic of each pillar.
func (r *Responder) Serve(pillars ...specialist.Pillar) error {
	for _, p := range pillars {
		sub, err := r.bus.Subscribe(bus.TopicConsultRequest.With(p.String()), r.dispatch)
		if err != nil {
			r.Close()
			return fmt.Errorf("serve %s: %w", p, err)
		}
		r.mu.Lock()
		r.subs = append(r.subs, sub)
		r.mu.Unlock()
	}
	return nil
}

func (r *Responder) dispatch(ctx context.Context, msg *messaging.Message) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		r.handle(ctx, msg)
	}()
}

func (r *Responder) handle(ctx context.Context, msg *messaging.Message) {
	callID := msg.Header(messaging.HeaderConsultationID)
	replyTopic := msg.Header(messaging.HeaderReplyTopic)
	if callID == "" || replyTopic == "" {
		r.logger.Warn("ask without routing headers", zap.String("message_id", msg.ID))
		return
	}

	ask, err := messaging.Decode[askPayload](msg)
	if err != nil {
		r.reply(ctx, msg, callID, replyTopic, replyPayload{Error: err.Error()})
		return
	}

	if ask.TargetNode != "" && ask.TargetNode != r.node {
		return
	}
	target, err := r.registry.Get(ask.TargetID)
	if err != nil {
		// Another node holding the same pillar may own the target.
		r.logger.Debug("ask for unknown specialist", zap.String("specialist", ask.TargetID))
		return
	}

	text, err := r.answer.Ask(ctx, Ask{
		ConsultationID: callID,
		RequesterID:    ask.RequesterID,
		Target:         target,
		Query:          ask.Query,
		Depth:          ask.Depth,
	})
	if err != nil {
		r.reply(ctx, msg, callID, replyTopic, replyPayload{Error: err.Error()})
		return
	}
	r.reply(ctx, msg, callID, replyTopic, replyPayload{Text: text})
}

func (r *Responder) reply(ctx context.Context, req *messaging.Message, callID, topic string, payload replyPayload) {
	resp := messaging.NewResponse(r.node, req.From, req.ID, payload).
		Header(messaging.HeaderConsultationID, callID).
		Build()
	if err := r.bus.Publish(ctx, bus.Topic(topic), resp); err != nil {
		r.logger.Warn("reply failed",
			zap.String("consultation_id", callID),
			zap.String("topic", topic),
			zap.Error(err),
		)
	}
}

// Close drops every request subscription and waits for in-flight answers.
func (r *Responder) Close() error {
	r.mu.Lock()
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			r.logger.Debug("unsubscribe", zap.Error(err))
		}
	}
	r.wg.Wait()
	return nil
}
