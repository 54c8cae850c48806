// Package registry owns the specialist population: registration, lookup,
// per-pillar indexing, outcome recording, and persistence through a
// memory.Store with corruption recovery.
//
// All state sits behind one mutex. Read-then-write sequences that must not
// interleave with other requests run inside Exclusive.
package registry

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tailored-agentic-units/specialists/memory"
	"github.com/tailored-agentic-units/specialists/metrics"
	"github.com/tailored-agentic-units/specialists/observability"
	"github.com/tailored-agentic-units/specialists/specialist"
)

// ErrClosed is returned by operations on a closed registry.
var ErrClosed = errors.New("registry closed")

// Registry is the specialist store.
type Registry struct {
	store    memory.Store
	cfg      Config
	catalog  Catalog
	logger   *zap.Logger
	observer observability.Observer
	metrics  *metrics.Collector
	now      func() time.Time
	busy     func() bool

	mu          sync.Mutex
	specialists map[string]*specialist.Specialist
	byPillar    map[specialist.Pillar]map[string]*specialist.Specialist
	templates   map[string]*specialist.Template
	dirty       map[string]struct{}
	closed      bool

	kick chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// New creates an empty registry backed by store.
func New(store memory.Store, opts ...Option) *Registry {
	r := &Registry{
		store:       store,
		cfg:         DefaultConfig(),
		logger:      zap.NewNop(),
		observer:    observability.NoOpObserver{},
		now:         time.Now,
		busy:        func() bool { return false },
		specialists: make(map[string]*specialist.Specialist),
		byPillar:    make(map[specialist.Pillar]map[string]*specialist.Specialist),
		templates:   make(map[string]*specialist.Template),
		dirty:       make(map[string]struct{}),
		kick:        make(chan struct{}, 1),
		stop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	cfg := DefaultConfig()
	cfg.Merge(&r.cfg)
	r.cfg = cfg
	return r
}

// Register adds a specialist. The record is copied; later mutation of s has
// no effect on the registry.
func (r *Registry) Register(s *specialist.Specialist) error {
	if err := s.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if _, exists := r.specialists[s.ID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", specialist.ErrExists, s.ID)
	}
	r.put(s.Clone())
	r.dirty[s.ID] = struct{}{}
	r.publishPopulation()
	r.mu.Unlock()

	observability.Emit(context.Background(), r.observer, EventRegistered, observability.LevelInfo, "registry.Register", map[string]any{
		"id":     s.ID,
		"pillar": s.Pillar.String(),
		"domain": s.Domain,
	})
	return nil
}

// RegisterTemplate makes a template available for spawning and rebuilds.
func (r *Registry) RegisterTemplate(t *specialist.Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.ID] = t.Clone()
	return nil
}

// SaveTemplate registers a template and persists it under the templates
// namespace.
func (r *Registry) SaveTemplate(ctx context.Context, t *specialist.Template) error {
	if err := r.RegisterTemplate(t); err != nil {
		return err
	}
	data, err := specialist.EncodeTemplate(t)
	if err != nil {
		return err
	}
	return r.store.Save(ctx, memory.Entry{Key: memory.Key(memory.NamespaceTemplates, t.ID), Value: data})
}

// DeleteTemplate forgets a registered template and removes its document.
// Catalog templates are unaffected.
func (r *Registry) DeleteTemplate(ctx context.Context, id string) error {
	r.mu.Lock()
	delete(r.templates, id)
	r.mu.Unlock()
	return r.store.Delete(ctx, memory.Key(memory.NamespaceTemplates, id))
}

// Template resolves a template by id, falling back to the catalog.
func (r *Registry) Template(id string) (*specialist.Template, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.template(id)
}

func (r *Registry) template(id string) (*specialist.Template, bool) {
	if t, ok := r.templates[id]; ok {
		return t.Clone(), true
	}
	if r.catalog != nil {
		if t, ok := r.catalog.Lookup(id); ok {
			return t.Clone(), true
		}
	}
	return nil, false
}

// Templates returns registered templates sorted by id.
func (r *Registry) Templates() []*specialist.Template {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*specialist.Template, 0, len(r.templates))
	for _, id := range slices.Sorted(maps.Keys(r.templates)) {
		out = append(out, r.templates[id].Clone())
	}
	return out
}

// Get returns a copy of the specialist with id.
func (r *Registry) Get(id string) (*specialist.Specialist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.specialists[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", specialist.ErrNotFound, id)
	}
	return s.Clone(), nil
}

// ListActive returns copies of the active specialists in pillar, sorted by
// id. An empty pillar lists every active specialist.
func (r *Registry) ListActive(pillar specialist.Pillar) []*specialist.Specialist {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := r.active(pillar)
	out := make([]*specialist.Specialist, len(active))
	for i, s := range active {
		out[i] = s.Clone()
	}
	return out
}

// List returns copies of every specialist, inactive included, sorted by id.
func (r *Registry) List() []*specialist.Specialist {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*specialist.Specialist, 0, len(r.specialists))
	for _, id := range slices.Sorted(maps.Keys(r.specialists)) {
		out = append(out, r.specialists[id].Clone())
	}
	return out
}

// Update applies fn to the live record under the registry lock. The pillar
// and id may not change.
func (r *Registry) Update(id string, fn func(*specialist.Specialist)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.update(id, fn)
}

func (r *Registry) update(id string, fn func(*specialist.Specialist)) error {
	s, ok := r.specialists[id]
	if !ok {
		return fmt.Errorf("%w: %s", specialist.ErrNotFound, id)
	}
	pillar := s.Pillar
	fn(s)
	s.ID = id
	s.Pillar = pillar
	s.ExpertiseLevel = specialist.ClampExpertise(s.ExpertiseLevel)
	r.reindex(s)
	r.dirty[id] = struct{}{}
	return nil
}

// Touch records that a specialist was selected.
func (r *Registry) Touch(id string) error {
	return r.Update(id, func(s *specialist.Specialist) { s.Touch(r.now()) })
}

// RecordOutcome folds feedback into a specialist's statistics and schedules
// a debounced autosave.
func (r *Registry) RecordOutcome(id string, o specialist.Outcome) error {
	if err := r.Update(id, func(s *specialist.Specialist) { s.RecordOutcome(o, r.now()) }); err != nil {
		return err
	}
	r.scheduleAutosave()
	return nil
}

// Deactivate removes a specialist from routing. Records are never deleted.
func (r *Registry) Deactivate(id string) error {
	r.mu.Lock()
	err := r.update(id, func(s *specialist.Specialist) { s.Active = false })
	if err == nil {
		r.publishPopulation()
	}
	r.mu.Unlock()
	if err != nil {
		return err
	}

	observability.Emit(context.Background(), r.observer, EventDeactivated, observability.LevelInfo, "registry.Deactivate", map[string]any{
		"id": id,
	})
	r.scheduleAutosave()
	return nil
}

// PopulationStats summarizes the registry.
type PopulationStats struct {
	Total     int
	Active    int
	ByPillar  map[specialist.Pillar]int
	Templates int
}

func (r *Registry) Stats() PopulationStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := PopulationStats{
		Total:     len(r.specialists),
		ByPillar:  make(map[specialist.Pillar]int, len(r.byPillar)),
		Templates: len(r.templates),
	}
	for pillar, idx := range r.byPillar {
		stats.ByPillar[pillar] = len(idx)
		stats.Active += len(idx)
	}
	return stats
}

// Tx is the view of the registry available inside Exclusive. Records it
// returns are live and valid only until fn returns.
type Tx struct {
	r *Registry
}

// Active returns the live active records of pillar, sorted by id.
func (tx Tx) Active(pillar specialist.Pillar) []*specialist.Specialist {
	return tx.r.active(pillar)
}

// Get returns the live record with id.
func (tx Tx) Get(id string) (*specialist.Specialist, bool) {
	s, ok := tx.r.specialists[id]
	return s, ok
}

// Touch records selection of id at the registry clock.
func (tx Tx) Touch(id string) error {
	return tx.r.update(id, func(s *specialist.Specialist) { s.Touch(tx.r.now()) })
}

func (tx Tx) Update(id string, fn func(*specialist.Specialist)) error {
	return tx.r.update(id, fn)
}

// Now returns the registry clock.
func (tx Tx) Now() time.Time {
	return tx.r.now()
}

// Exclusive runs fn with the registry locked.
func (r *Registry) Exclusive(fn func(tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(Tx{r: r})
}

func (r *Registry) active(pillar specialist.Pillar) []*specialist.Specialist {
	var out []*specialist.Specialist
	if pillar == "" {
		for _, idx := range r.byPillar {
			out = slices.AppendSeq(out, maps.Values(idx))
		}
	} else {
		out = slices.Collect(maps.Values(r.byPillar[pillar]))
	}
	slices.SortFunc(out, func(a, b *specialist.Specialist) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func (r *Registry) put(s *specialist.Specialist) {
	r.specialists[s.ID] = s
	r.reindex(s)
}

func (r *Registry) reindex(s *specialist.Specialist) {
	for _, idx := range r.byPillar {
		delete(idx, s.ID)
	}
	if !s.Active {
		return
	}
	idx := r.byPillar[s.Pillar]
	if idx == nil {
		idx = make(map[string]*specialist.Specialist)
		r.byPillar[s.Pillar] = idx
	}
	idx[s.ID] = s
}

func (r *Registry) publishPopulation() {
	if r.metrics == nil {
		return
	}
	counts := make(map[string]int, len(specialist.Pillars()))
	for _, p := range specialist.Pillars() {
		counts[p.String()] = len(r.byPillar[p])
	}
	r.metrics.SetPopulation(counts)
}
