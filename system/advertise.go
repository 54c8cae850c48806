package system

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tailored-agentic-units/specialists/bus"
	"github.com/tailored-agentic-units/specialists/consult"
	"github.com/tailored-agentic-units/specialists/messaging"
	"github.com/tailored-agentic-units/specialists/observability"
	"github.com/tailored-agentic-units/specialists/registry"
	"github.com/tailored-agentic-units/specialists/specialist"
)

// Advertisement announces a specialist as an addressable peer. Serving is
// set when Node answers consultation requests; Withdrawn retracts an
// earlier advertisement.
type Advertisement struct {
	ID             string            `json:"id"`
	Pillar         specialist.Pillar `json:"pillar"`
	Domain         string            `json:"domain"`
	Specialization string            `json:"specialization,omitempty"`
	Keywords       []string          `json:"keywords,omitempty"`
	Expertise      float64           `json:"expertise"`
	Temperature    float64           `json:"temperature,omitempty"`
	Node           string            `json:"node"`
	Serving        bool              `json:"serving,omitempty"`
	Withdrawn      bool              `json:"withdrawn,omitempty"`
}

func (a Advertisement) peer(seen time.Time) consult.Peer {
	return consult.Peer{
		ID:             a.ID,
		Pillar:         a.Pillar,
		Domain:         a.Domain,
		Specialization: a.Specialization,
		Keywords:       a.Keywords,
		Expertise:      a.Expertise,
		Temperature:    a.Temperature,
		Node:           a.Node,
		Serving:        a.Serving,
		Seen:           seen,
	}
}

// advertiser publishes an advertisement for every registration and a
// withdrawal for every deactivation it observes. With a directory, it also
// records the node's own specialists there before publishing.
type advertiser struct {
	bus      bus.Bus
	node     string
	serving  bool
	registry *registry.Registry
	peers    *consult.Directory
	logger   *zap.Logger
}

func (a *advertiser) OnEvent(ctx context.Context, e observability.Event) {
	id, _ := e.Data["id"].(string)
	switch e.Type {
	case registry.EventRegistered:
		if a.registry == nil {
			return
		}
		if s, err := a.registry.Get(id); err == nil {
			a.publish(ctx, a.advertisementOf(s))
		}
	case registry.EventDeactivated:
		a.withdraw(ctx, id)
	}
}

func (a *advertiser) publish(ctx context.Context, ad Advertisement) {
	if a.peers != nil {
		a.peers.Put(ad.peer(time.Now()))
	}
	a.send(ctx, ad)
}

func (a *advertiser) withdraw(ctx context.Context, id string) {
	if id == "" {
		return
	}
	if a.peers != nil {
		a.peers.Remove(id)
	}
	a.send(ctx, Advertisement{ID: id, Node: a.node, Withdrawn: true})
}

func (a *advertiser) send(ctx context.Context, ad Advertisement) {
	msg := messaging.NewNotification(a.node, "", ad).Build()
	if err := a.bus.Publish(ctx, bus.TopicAdvertise, msg); err != nil {
		a.logger.Debug("advertisement not published", zap.String("specialist", ad.ID), zap.Error(err))
	}
}

// advertiseAll announces every active specialist of the node.
func (a *advertiser) advertiseAll(ctx context.Context) {
	for _, s := range a.registry.ListActive("") {
		a.publish(ctx, a.advertisementOf(s))
	}
}

func (a *advertiser) advertisementOf(s *specialist.Specialist) Advertisement {
	return Advertisement{
		ID:             s.ID,
		Pillar:         s.Pillar,
		Domain:         s.Domain,
		Specialization: s.Specialization,
		Keywords:       s.Keywords,
		Expertise:      s.ExpertiseLevel,
		Temperature:    s.Temperature,
		Node:           a.node,
		Serving:        a.serving,
	}
}
