// Package system composes the specialist subsystems into one runtime:
// storage, registry, routing, genesis, evolution, consultation, and the
// bus that advertises specialists and carries distributed consultations.
//
// A System initializes from configuration via New. Functional options
// replace any config-created collaborator, which is how tests inject an
// in-memory bus or a scripted provider.
//
//	sys, err := system.New(cfg, system.WithProvider(p))
//	report, err := sys.Start(ctx)
//	match, err := sys.Route(ctx, "why does this panic", specialist.PillarLogos, routing.Context{})
//	defer sys.Shutdown(ctx)
package system

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tailored-agentic-units/specialists/bus"
	"github.com/tailored-agentic-units/specialists/consult"
	"github.com/tailored-agentic-units/specialists/evolution"
	"github.com/tailored-agentic-units/specialists/genesis"
	"github.com/tailored-agentic-units/specialists/memory"
	"github.com/tailored-agentic-units/specialists/messaging"
	"github.com/tailored-agentic-units/specialists/metrics"
	"github.com/tailored-agentic-units/specialists/observability"
	"github.com/tailored-agentic-units/specialists/provider"
	"github.com/tailored-agentic-units/specialists/registry"
	"github.com/tailored-agentic-units/specialists/routing"
	"github.com/tailored-agentic-units/specialists/seed"
	"github.com/tailored-agentic-units/specialists/session"
	"github.com/tailored-agentic-units/specialists/specialist"
)

// System event types.
const (
	EventStarted  observability.EventType = "system.started"
	EventSeeded   observability.EventType = "system.seeded"
	EventShutdown observability.EventType = "system.shutdown"
)

type options struct {
	store    memory.Store
	bus      bus.Bus
	provider provider.Provider
	hasProv  bool
	logger   *zap.Logger
	observer observability.Observer
	metrics  *prometheus.Registry
	catalog  *seed.Catalog
}

// Option overrides a config-created collaborator.
type Option func(*options)

func WithStore(s memory.Store) Option {
	return func(o *options) { o.store = s }
}

// WithBus injects a bus. An injected bus is not closed by Shutdown.
func WithBus(b bus.Bus) Option {
	return func(o *options) { o.bus = b }
}

// WithProvider replaces the config-created provider. A nil provider turns
// genesis and evolution into no-ops.
func WithProvider(p provider.Provider) Option {
	return func(o *options) {
		o.provider = p
		o.hasProv = true
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver adds an observer alongside the zap observer.
func WithObserver(obs observability.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithMetricsRegistry registers collectors on reg instead of a private
// registry.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.metrics = reg }
}

func WithCatalog(c *seed.Catalog) Option {
	return func(o *options) { o.catalog = c }
}

// System is the composed specialist runtime.
type System struct {
	cfg  Config
	node string

	store    memory.Store
	bus      bus.Bus
	ownsBus  bool
	provider provider.Provider
	catalog  *seed.Catalog

	registry  *registry.Registry
	router    *routing.Router
	genesis   *genesis.Engine
	evolution *evolution.Monitor
	hub       *consult.Hub
	sessions  *session.Tracker
	transport *consult.BusTransport
	responder *consult.Responder
	peers     *consult.Directory
	adverts   bus.Subscription

	bgMu     sync.Mutex
	bgClosed bool
	bg       sync.WaitGroup

	logger     *zap.Logger
	observer   observability.Observer
	promReg    *prometheus.Registry
	collector  *metrics.Collector
	advertiser *advertiser

	mu       sync.Mutex
	started  bool
	shutdown bool
}

// New creates a System from configuration. cfg is merged over the
// defaults; a nil cfg uses the defaults alone.
func New(cfg *Config, opts ...Option) (*System, error) {
	c := DefaultConfig()
	if cfg != nil {
		c.Merge(cfg)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &System{cfg: c, node: c.Node, catalog: o.catalog}
	if s.node == "" {
		s.node = "node-" + uuid.NewString()[:8]
	}

	s.logger = o.logger
	if s.logger == nil {
		l, err := NewLogger(c.Log)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		s.logger = l
	}
	s.logger = s.logger.With(zap.String("node", s.node))

	s.store = o.store
	if s.store == nil {
		store, err := memory.NewStore(&c.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to create store: %w", err)
		}
		s.store = store
	}

	s.provider = o.provider
	if !o.hasProv {
		p, err := provider.New(&c.Provider)
		if err != nil {
			return nil, fmt.Errorf("failed to create provider: %w", err)
		}
		s.provider = p
	}

	s.bus = o.bus
	if s.bus == nil {
		b, err := bus.New(context.Background(), c.Bus, s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create bus: %w", err)
		}
		s.bus = b
		s.ownsBus = true
	}

	if s.catalog == nil {
		s.catalog = seed.Default()
	}

	s.promReg = o.metrics
	if s.promReg == nil {
		s.promReg = prometheus.NewRegistry()
	}
	s.collector = metrics.NewCollector(c.MetricsNamespace, s.promReg)

	busMode := c.Consult.Transport == consult.TransportBus
	if busMode {
		s.peers = consult.NewDirectory()
	}
	s.advertiser = &advertiser{
		bus:     s.bus,
		node:    s.node,
		serving: busMode && s.provider != nil,
		peers:   s.peers,
		logger:  s.logger.Named("advertise"),
	}
	s.observer = observability.NewMultiObserver(observability.NewZapObserver(s.logger), o.observer, s.advertiser)
	s.sessions = session.New(&c.Session)

	s.registry = registry.New(s.store,
		registry.WithConfig(c.Registry),
		registry.WithCatalog(s.catalog),
		registry.WithGate(s.sessions.Active),
		registry.WithLogger(s.logger),
		registry.WithObserver(s.observer),
		registry.WithMetrics(s.collector),
	)
	s.advertiser.registry = s.registry
	s.genesis = genesis.New(s.registry, s.provider,
		genesis.WithConfig(c.Genesis),
		genesis.WithLogger(s.logger),
		genesis.WithObserver(s.observer),
		genesis.WithMetrics(s.collector),
	)
	s.router = routing.New(s.registry,
		routing.WithConfig(c.Routing),
		routing.WithMissHandler(s.genesis.TrackMiss),
		routing.WithLogger(s.logger),
		routing.WithObserver(s.observer),
		routing.WithMetrics(s.collector),
	)
	s.evolution = evolution.New(s.registry, s.genesis, s.provider,
		evolution.WithConfig(c.Evolution),
		evolution.WithGate(s.sessions.Active),
		evolution.WithLogger(s.logger),
		evolution.WithObserver(s.observer),
		evolution.WithMetrics(s.collector),
	)

	var transport consult.Transport = consult.NewLocal(s.provider)
	hubOpts := []consult.Option{
		consult.WithConfig(c.Consult),
		consult.WithLogger(s.logger),
		consult.WithObserver(s.observer),
		consult.WithMetrics(s.collector),
	}
	if busMode {
		t, err := consult.NewBusTransport(s.bus, s.node, s.logger)
		if err != nil {
			s.closeBus()
			return nil, fmt.Errorf("failed to create consultation transport: %w", err)
		}
		s.transport = t
		transport = t
		hubOpts = append(hubOpts, consult.WithPeers(s.peers, s.node))
	}
	s.hub = consult.New(s.registry, s.router, transport, hubOpts...)

	return s, nil
}

// Start loads the population, seeds an empty one, advertises every active
// specialist, and starts the background loops.
func (s *System) Start(ctx context.Context) (*registry.LoadReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return nil, registry.ErrClosed
	}
	if s.started {
		return nil, fmt.Errorf("system already started")
	}

	if s.peers != nil {
		sub, err := s.bus.Subscribe(bus.TopicAdvertise, s.onAdvertise)
		if err != nil {
			return nil, fmt.Errorf("failed to follow advertisements: %w", err)
		}
		s.adverts = sub
	}

	// A node without a provider asks over the bus but cannot answer.
	if s.transport != nil && s.provider != nil {
		s.responder = consult.NewResponder(s.bus, s.registry, consult.NewLocal(s.provider), s.node, s.cfg.Consult.Timeout, s.logger)
		if err := s.responder.Serve(specialist.Pillars()...); err != nil {
			return nil, fmt.Errorf("failed to serve consultations: %w", err)
		}
	}

	report, err := s.registry.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load specialists: %w", err)
	}

	if s.registry.Stats().Total == 0 {
		if _, err := s.seed(ctx); err != nil {
			return report, err
		}
	} else {
		s.advertiser.advertiseAll(ctx)
	}

	s.registry.Start(ctx)
	s.evolution.Start(ctx)
	s.started = true

	stats := s.registry.Stats()
	observability.Emit(ctx, s.observer, EventStarted, observability.LevelInfo, "system.Start", map[string]any{
		"loaded":      report.Loaded,
		"rebuilt":     report.Rebuilt,
		"quarantined": report.Quarantined,
		"active":      stats.Active,
	})
	return report, nil
}

// Seed spawns one specialist per catalog template plus the configured
// number of procedural ones, then saves. It returns the number spawned.
func (s *System) Seed(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seed(ctx)
}

func (s *System) seed(ctx context.Context) (int, error) {
	now := time.Now()
	spawned := 0

	for _, t := range s.catalog.Templates() {
		if err := s.registry.Register(t.Spawn(now)); err != nil {
			return spawned, fmt.Errorf("failed to seed %s: %w", t.ID, err)
		}
		spawned++
	}

	if n := s.cfg.Seed.ProceduralCount; n > 0 {
		v := s.cfg.Seed.RandomSeed
		if v == 0 {
			v = uint64(now.UnixNano())
		}
		rng := rand.New(rand.NewPCG(v, v^0x9e3779b97f4a7c15))
		for _, t := range seed.Procedural(rng, n) {
			if err := s.registry.SaveTemplate(ctx, t); err != nil {
				return spawned, fmt.Errorf("failed to save template %s: %w", t.ID, err)
			}
			if err := s.registry.Register(t.Spawn(now)); err != nil {
				_ = s.registry.DeleteTemplate(ctx, t.ID)
				return spawned, fmt.Errorf("failed to seed %s: %w", t.ID, err)
			}
			spawned++
		}
	}

	if err := s.registry.Save(ctx); err != nil {
		return spawned, fmt.Errorf("failed to save seeded population: %w", err)
	}
	observability.Emit(ctx, s.observer, EventSeeded, observability.LevelInfo, "system.Seed", map[string]any{
		"spawned": spawned,
	})
	return spawned, nil
}

// Route selects a specialist within pillar. A miss is returned as a
// *routing.MissError and counts toward genesis.
func (s *System) Route(ctx context.Context, query string, pillar specialist.Pillar, rc routing.Context) (*routing.Match, error) {
	return s.router.Route(ctx, query, pillar, rc)
}

// Consult asks peers of req.RequesterID for their perspective.
func (s *System) Consult(ctx context.Context, req consult.Request) *consult.Result {
	return s.hub.Consult(ctx, req)
}

// RecordOutcome feeds back the result of a handled query.
func (s *System) RecordOutcome(id string, o specialist.Outcome) error {
	return s.registry.RecordOutcome(id, o)
}

// BeginSession marks a foreground conversation. Evolution sweeps and
// autosaves defer until every session has ended or gone idle.
func (s *System) BeginSession() session.Session {
	return s.sessions.Begin()
}

func (s *System) Registry() *registry.Registry {
	return s.registry
}

func (s *System) Router() *routing.Router {
	return s.router
}

func (s *System) Genesis() *genesis.Engine {
	return s.genesis
}

func (s *System) Evolution() *evolution.Monitor {
	return s.evolution
}

// Metrics returns the registry the collectors are registered on.
func (s *System) Metrics() *prometheus.Registry {
	return s.promReg
}

func (s *System) Node() string {
	return s.node
}

// Peers returns the directory of advertised specialists, or nil when
// consultations stay in-process.
func (s *System) Peers() *consult.Directory {
	return s.peers
}

// onAdvertise records peers advertised by other nodes. The first
// advertisement from a node triggers a re-advertisement of this node's
// population so that nodes started in any order learn each other.
func (s *System) onAdvertise(ctx context.Context, msg *messaging.Message) {
	ad, err := messaging.Decode[Advertisement](msg)
	if err != nil || ad.ID == "" || ad.Node == s.node {
		return
	}
	if ad.Withdrawn {
		s.peers.Remove(ad.ID)
		return
	}
	if !s.peers.Put(ad.peer(time.Now())) {
		return
	}

	s.bgMu.Lock()
	defer s.bgMu.Unlock()
	if s.bgClosed {
		return
	}
	s.logger.Info("discovered node", zap.String("peer_node", ad.Node))
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		s.advertiser.advertiseAll(ctx)
	}()
}

// Shutdown stops background work, waits for in-flight genesis, saves the
// population, and releases the bus. It is safe to call more than once.
func (s *System) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	s.mu.Unlock()

	s.evolution.Close()
	s.genesis.Wait()

	var errs []error
	if s.adverts != nil {
		errs = append(errs, s.adverts.Unsubscribe())
	}
	s.bgMu.Lock()
	s.bgClosed = true
	s.bgMu.Unlock()
	s.bg.Wait()
	if s.responder != nil {
		errs = append(errs, s.responder.Close())
	}
	if s.transport != nil {
		errs = append(errs, s.transport.Close())
	}
	if err := s.registry.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("final save: %w", err))
	}
	errs = append(errs, s.closeBus())

	observability.Emit(ctx, s.observer, EventShutdown, observability.LevelInfo, "system.Shutdown", nil)
	_ = s.logger.Sync()
	return errors.Join(errs...)
}

func (s *System) closeBus() error {
	if !s.ownsBus {
		return nil
	}
	return s.bus.Close()
}
