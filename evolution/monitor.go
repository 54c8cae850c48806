// Package evolution periodically reshapes the specialist population.
// Mitosis splits saturated specialists into narrower children through the
// genesis protocol; neuroplasticity rewrites the instructions of
// underperforming ones. Sweeps defer while a foreground session is active.
package evolution

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tailored-agentic-units/specialists/genesis"
	"github.com/tailored-agentic-units/specialists/metrics"
	"github.com/tailored-agentic-units/specialists/observability"
	"github.com/tailored-agentic-units/specialists/provider"
	"github.com/tailored-agentic-units/specialists/registry"
	"github.com/tailored-agentic-units/specialists/specialist"
)

// Evolution event types.
const (
	EventSweep     observability.EventType = "evolution.sweep"
	EventDeferred  observability.EventType = "evolution.deferred"
	EventMitosis   observability.EventType = "evolution.mitosis"
	EventOptimized observability.EventType = "evolution.optimized"
	EventRejected  observability.EventType = "evolution.rejected"
)

// SweepReport summarizes one sweep.
type SweepReport struct {
	Deferred  bool
	Examined  int
	Split     map[string][]string // parent id -> child ids
	Optimized []string
	Rejected  []string
	Failed    int
}

// Monitor runs evolution sweeps.
type Monitor struct {
	registry *registry.Registry
	genesis  *genesis.Engine
	provider provider.Provider
	cfg      Config
	busy     func() bool
	logger   *zap.Logger
	observer observability.Observer
	metrics  *metrics.Collector
	now      func() time.Time

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// Option configures a Monitor.
type Option func(*Monitor)

func WithConfig(cfg Config) Option {
	return func(m *Monitor) { m.cfg = cfg }
}

// WithGate defers sweeps while busy reports true.
func WithGate(busy func() bool) Option {
	return func(m *Monitor) { m.busy = busy }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Monitor) { m.logger = l.Named("evolution") }
}

func WithObserver(o observability.Observer) Option {
	return func(m *Monitor) { m.observer = o }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(m *Monitor) { m.metrics = c }
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// New creates a Monitor. With a nil provider every sweep is a no-op; with
// a nil genesis engine mitosis is skipped.
func New(reg *registry.Registry, eng *genesis.Engine, p provider.Provider, opts ...Option) *Monitor {
	m := &Monitor{
		registry: reg,
		genesis:  eng,
		provider: p,
		cfg:      DefaultConfig(),
		busy:     func() bool { return false },
		logger:   zap.NewNop(),
		observer: observability.NoOpObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	cfg := DefaultConfig()
	cfg.Merge(&m.cfg)
	m.cfg = cfg
	return m
}

// Start runs sweeps every Interval until Close or ctx ends.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.loop(ctx, m.stop, m.done)
}

func (m *Monitor) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Close stops the sweep loop and waits for an in-flight sweep to finish.
func (m *Monitor) Close() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	done := m.done
	m.mu.Unlock()
	<-done
}

// Sweep inspects every active specialist once. Mitosis takes precedence
// over neuroplasticity for the same specialist.
func (m *Monitor) Sweep(ctx context.Context) SweepReport {
	report := SweepReport{Split: make(map[string][]string)}
	if m.provider == nil {
		return report
	}
	if m.busy() {
		report.Deferred = true
		observability.Emit(ctx, m.observer, EventDeferred, observability.LevelVerbose, "evolution.Sweep", nil)
		return report
	}

	for _, s := range m.registry.ListActive("") {
		if ctx.Err() != nil {
			break
		}
		if m.busy() {
			report.Deferred = true
			break
		}
		report.Examined++

		switch {
		case m.mitosisDue(s):
			children, err := m.Mitosis(ctx, s)
			if err != nil {
				report.Failed++
				m.logger.Info("mitosis skipped", zap.String("id", s.ID), zap.Error(err))
				continue
			}
			if len(children) > 0 {
				report.Split[s.ID] = children
			}
		case m.optimizeDue(s):
			accepted, err := m.Optimize(ctx, s)
			switch {
			case err != nil:
				report.Failed++
				m.logger.Info("optimization skipped", zap.String("id", s.ID), zap.Error(err))
			case accepted:
				report.Optimized = append(report.Optimized, s.ID)
			default:
				report.Rejected = append(report.Rejected, s.ID)
			}
		}
	}

	observability.Emit(ctx, m.observer, EventSweep, observability.LevelInfo, "evolution.Sweep", map[string]any{
		"examined":  report.Examined,
		"split":     len(report.Split),
		"optimized": len(report.Optimized),
		"rejected":  len(report.Rejected),
		"failed":    report.Failed,
		"deferred":  report.Deferred,
	})
	return report
}

func (m *Monitor) mitosisDue(s *specialist.Specialist) bool {
	return m.genesis != nil &&
		s.Stats.QueriesHandled > m.cfg.MitosisMinQueries &&
		s.ExpertiseLevel > m.cfg.MitosisMinExpertise
}

func (m *Monitor) optimizeDue(s *specialist.Specialist) bool {
	if s.Stats.QueriesHandled <= m.cfg.OptimizeMinQueries || s.Stats.SuccessRate >= m.cfg.OptimizeMaxSuccess {
		return false
	}
	return s.LastOptimization == nil || m.now().Sub(*s.LastOptimization) > m.cfg.OptimizeCooldown
}

// Mitosis asks the provider whether s is too broad and creates one child
// per proposed sub-specialty. The parent stays active with its keywords
// intact; only its query counter resets once the judgement completes.
func (m *Monitor) Mitosis(ctx context.Context, s *specialist.Specialist) ([]string, error) {
	if m.genesis == nil {
		return nil, fmt.Errorf("mitosis requires a genesis engine")
	}

	judgeCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	text, err := provider.Text(judgeCtx, m.provider, provider.RoleStrategic, splitPrompt(s), provider.Options{Temperature: 0.3})
	cancel()
	if err != nil {
		m.metrics.RecordEvolution("mitosis", "failed")
		return nil, err
	}

	plan, err := DecodeSplitPlan(text)
	if err != nil {
		m.metrics.RecordEvolution("mitosis", "parse_error")
		return nil, err
	}

	var children []string
	if plan.Split {
		for _, sub := range plan.SubSpecialties {
			hint := sub.Focus
			if sub.Specialization != "" {
				hint = sub.Specialization + ": " + sub.Focus
			}
			child, err := m.genesis.Construct(ctx, genesis.Seed{
				Pillar:   s.Pillar,
				Examples: syntheticExamples(s, sub),
				Hint:     hint,
				ParentID: s.ID,
			})
			if err != nil {
				m.logger.Info("mitosis child skipped",
					zap.String("parent", s.ID),
					zap.String("focus", sub.Focus),
					zap.Error(err),
				)
				continue
			}
			children = append(children, child.ID)
		}
	}

	if plan.Split && len(children) == 0 {
		m.metrics.RecordEvolution("mitosis", "failed")
		return nil, fmt.Errorf("mitosis of %s created no children", s.ID)
	}

	if err := m.registry.Update(s.ID, func(sp *specialist.Specialist) { sp.Stats.QueriesHandled = 0 }); err != nil {
		return children, err
	}

	outcome := "kept"
	if plan.Split {
		outcome = "split"
	}
	m.metrics.RecordEvolution("mitosis", outcome)
	observability.Emit(ctx, m.observer, EventMitosis, observability.LevelInfo, "evolution.Mitosis", map[string]any{
		"parent":   s.ID,
		"split":    plan.Split,
		"children": children,
		"reason":   plan.Reason,
	})
	return children, nil
}

// Optimize asks the provider to rewrite the instructions of s. The rewrite
// is accepted only when it is longer than MinInstructionLength; a rejected
// rewrite leaves the record unchanged.
func (m *Monitor) Optimize(ctx context.Context, s *specialist.Specialist) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	text, err := provider.Text(ctx, m.provider, provider.RoleCreative, rewritePrompt(s), provider.Options{Temperature: s.Temperature})
	if err != nil {
		m.metrics.RecordEvolution("optimize", "failed")
		return false, err
	}

	text = strings.TrimSpace(text)
	if len(text) <= m.cfg.MinInstructionLength {
		m.metrics.RecordEvolution("optimize", "rejected")
		observability.Emit(ctx, m.observer, EventRejected, observability.LevelWarning, "evolution.Optimize", map[string]any{
			"id":     s.ID,
			"length": len(text),
		})
		return false, nil
	}

	now := m.now()
	err = m.registry.Update(s.ID, func(sp *specialist.Specialist) {
		sp.Instructions = text
		sp.LastOptimization = &now
	})
	if err != nil {
		return false, err
	}

	m.metrics.RecordEvolution("optimize", "accepted")
	observability.Emit(ctx, m.observer, EventOptimized, observability.LevelInfo, "evolution.Optimize", map[string]any{
		"id":     s.ID,
		"length": len(text),
	})
	return true, nil
}
