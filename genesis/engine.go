// Package genesis invents specialists for needs no existing specialist
// covers. Routing misses are clustered by topic signature; once a bucket
// reaches the threshold, a strategic provider call designs a blueprint and
// a creative call authors its instructions.
package genesis

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

	"github.com/tailored-agentic-units/specialists/metrics"
	"github.com/tailored-agentic-units/specialists/observability"
	"github.com/tailored-agentic-units/specialists/provider"
	"github.com/tailored-agentic-units/specialists/registry"
	"github.com/tailored-agentic-units/specialists/specialist"
)

// Genesis event types.
const (
	EventTriggered observability.EventType = "genesis.triggered"
	EventCreated   observability.EventType = "genesis.created"
	EventFailed    observability.EventType = "genesis.failed"
)

const maxSlugLen = 40

// Pending is an accumulating bucket of unmatched queries.
type Pending struct {
	Pillar    specialist.Pillar
	Signature string
	Hits      int
	Examples  []string
}

type bucketKey struct {
	pillar    specialist.Pillar
	signature string
}

// Seed describes what to construct.
type Seed struct {
	Pillar   specialist.Pillar
	Examples []string
	Hint     string // optional focus, used by mitosis
	ParentID string // optional lineage
}

// Engine tracks misses and constructs specialists.
type Engine struct {
	registry *registry.Registry
	provider provider.Provider
	cfg      Config
	logger   *zap.Logger
	observer observability.Observer
	metrics  *metrics.Collector
	now      func() time.Time

	mu      sync.Mutex
	pending map[bucketKey]*Pending
	wg      sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l.Named("genesis") }
}

func WithObserver(o observability.Observer) Option {
	return func(e *Engine) { e.observer = o }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine. A nil provider leaves tracking active but every
// construction attempt is skipped.
func New(reg *registry.Registry, p provider.Provider, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		provider: p,
		cfg:      DefaultConfig(),
		logger:   zap.NewNop(),
		observer: observability.NoOpObserver{},
		now:      time.Now,
		pending:  make(map[bucketKey]*Pending),
	}
	for _, opt := range opts {
		opt(e)
	}
	cfg := DefaultConfig()
	cfg.Merge(&e.cfg)
	e.cfg = cfg
	return e
}

// Observe records one unmatched query. When its bucket reaches the
// threshold the bucket is cleared and its examples are returned with
// fire set.
func (e *Engine) Observe(pillar specialist.Pillar, query string) (examples []string, fire bool) {
	sig := Signature(query)
	if sig == "" {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	key := bucketKey{pillar, sig}
	p := e.pending[key]
	if p == nil {
		p = &Pending{Pillar: pillar, Signature: sig}
		e.pending[key] = p
	}
	p.Hits++
	p.Examples = append(p.Examples, query)
	if over := len(p.Examples) - e.cfg.MaxExamples; over > 0 {
		p.Examples = slices.Delete(p.Examples, 0, over)
	}

	if p.Hits < e.cfg.Threshold {
		return nil, false
	}
	delete(e.pending, key)
	return p.Examples, true
}

// TrackMiss observes a miss and, when its bucket fires, constructs a
// specialist in the background. Failures are logged; the bucket stays
// cleared either way. Its signature matches routing.MissHandler.
func (e *Engine) TrackMiss(ctx context.Context, pillar specialist.Pillar, query string) {
	examples, fire := e.Observe(pillar, query)
	if !fire {
		return
	}

	observability.Emit(ctx, e.observer, EventTriggered, observability.LevelInfo, "genesis.TrackMiss", map[string]any{
		"pillar":    pillar.String(),
		"signature": Signature(query),
		"examples":  len(examples),
	})

	bg := context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if _, err := e.Create(bg, pillar, examples); err != nil {
			e.logger.Info("genesis skipped",
				zap.String("pillar", pillar.String()),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until background construction started by TrackMiss finishes.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Create constructs a specialist for pillar from example queries.
func (e *Engine) Create(ctx context.Context, pillar specialist.Pillar, examples []string) (*specialist.Specialist, error) {
	return e.Construct(ctx, Seed{Pillar: pillar, Examples: examples})
}

// Construct runs the two-stage protocol and registers the result: design a
// blueprint, author instructions, persist the template, spawn and flush.
// Any failure before registration leaves the registry untouched.
func (e *Engine) Construct(ctx context.Context, seed Seed) (*specialist.Specialist, error) {
	if e.provider == nil {
		e.metrics.RecordGenesis(seed.Pillar.String(), "no_provider")
		return nil, provider.ErrNoProvider
	}
	if !seed.Pillar.Valid() {
		return nil, fmt.Errorf("%w: %q", specialist.ErrInvalidPillar, seed.Pillar)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	s, err := e.construct(ctx, seed)
	if err != nil {
		outcome := "failed"
		if errors.Is(err, ErrGenesisParse) {
			outcome = "parse_error"
		}
		e.metrics.RecordGenesis(seed.Pillar.String(), outcome)
		observability.Emit(ctx, e.observer, EventFailed, observability.LevelWarning, "genesis.Construct", map[string]any{
			"pillar": seed.Pillar.String(),
			"error":  err.Error(),
		})
		return nil, err
	}

	e.metrics.RecordGenesis(seed.Pillar.String(), "created")
	observability.Emit(ctx, e.observer, EventCreated, observability.LevelInfo, "genesis.Construct", map[string]any{
		"pillar":     seed.Pillar.String(),
		"specialist": s.ID,
		"template":   s.TemplateID,
		"parent":     seed.ParentID,
	})
	return s, nil
}

func (e *Engine) construct(ctx context.Context, seed Seed) (*specialist.Specialist, error) {
	design, err := provider.Text(ctx, e.provider, provider.RoleStrategic, designPrompt(seed), provider.Options{Temperature: 0.4})
	if err != nil {
		return nil, fmt.Errorf("design: %w", err)
	}
	bp, err := DecodeBlueprint(design)
	if err != nil {
		return nil, err
	}

	instructions, err := provider.Text(ctx, e.provider, provider.RoleCreative, instructionPrompt(seed.Pillar, bp), provider.Options{Temperature: bp.Temperature})
	if err != nil {
		return nil, fmt.Errorf("instructions: %w", err)
	}

	t := &specialist.Template{
		ID:             e.templateID(seed.Pillar, bp.Specialization),
		Pillar:         seed.Pillar,
		Domain:         bp.Domain,
		Specialization: bp.Specialization,
		Keywords:       bp.Keywords,
		Instructions:   instructions,
		Temperature:    bp.Temperature,
		Synthesized:    true,
	}
	if err := e.registry.SaveTemplate(ctx, t); err != nil {
		return nil, fmt.Errorf("persist template %s: %w", t.ID, err)
	}

	s := t.Spawn(e.now())
	s.ParentSpecialistID = seed.ParentID
	if err := e.registry.Register(s); err != nil {
		if derr := e.registry.DeleteTemplate(ctx, t.ID); derr != nil {
			e.logger.Warn("orphan template left behind", zap.String("template", t.ID), zap.Error(derr))
		}
		return nil, err
	}
	if err := e.registry.Flush(ctx); err != nil {
		e.logger.Warn("flush after genesis failed", zap.String("id", s.ID), zap.Error(err))
	}
	return s, nil
}

// templateID derives a unique "gen_<pillar>_<slug>" id.
func (e *Engine) templateID(pillar specialist.Pillar, specialization string) string {
	slug := specialist.Slug(specialization)
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "_")
	}
	if slug == "" {
		slug = "specialist"
	}
	base := "gen_" + strings.ToLower(pillar.String()) + "_" + slug

	id := base
	for n := 2; ; n++ {
		if _, taken := e.registry.Template(id); !taken {
			return id
		}
		id = fmt.Sprintf("%s_%d", base, n)
	}
}

// Pending returns a snapshot of accumulating buckets, sorted by pillar and
// signature.
func (e *Engine) Pending() []Pending {
	e.mu.Lock()
	defer e.mu.Unlock()

	keys := slices.SortedFunc(maps.Keys(e.pending), func(a, b bucketKey) int {
		if c := strings.Compare(string(a.pillar), string(b.pillar)); c != 0 {
			return c
		}
		return strings.Compare(a.signature, b.signature)
	})
	out := make([]Pending, 0, len(keys))
	for _, k := range keys {
		p := *e.pending[k]
		p.Examples = slices.Clone(p.Examples)
		out = append(out, p)
	}
	return out
}
