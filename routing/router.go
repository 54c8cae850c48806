package routing

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tailored-agentic-units/specialists/metrics"
	"github.com/tailored-agentic-units/specialists/observability"
	"github.com/tailored-agentic-units/specialists/registry"
	"github.com/tailored-agentic-units/specialists/specialist"
)

// Router event types.
const (
	EventRouted observability.EventType = "routing.routed"
	EventMiss   observability.EventType = "routing.miss"
)

// Context carries caller details used for history blending.
type Context struct {
	RequesterID string
}

// Candidate is a scored specialist.
type Candidate struct {
	Specialist *specialist.Specialist
	Score      float64
}

// Match is a successful routing decision.
type Match struct {
	Specialist   *specialist.Specialist
	Confidence   float64
	Alternatives []Candidate
}

// MissHandler is told about every routing miss.
type MissHandler func(ctx context.Context, pillar specialist.Pillar, query string)

// Router selects specialists within a pillar.
type Router struct {
	registry *registry.Registry
	history  *History
	cfg      Config
	weights  Weights
	onMiss   MissHandler
	logger   *zap.Logger
	observer observability.Observer
	metrics  *metrics.Collector
}

// Option configures a Router.
type Option func(*Router)

func WithConfig(cfg Config) Option {
	return func(r *Router) { r.cfg = cfg }
}

func WithWeights(w Weights) Option {
	return func(r *Router) { r.weights = w }
}

// WithHistory shares a collaboration table, typically with the consultation hub.
func WithHistory(h *History) Option {
	return func(r *Router) { r.history = h }
}

// WithMissHandler forwards misses, typically to genesis tracking.
func WithMissHandler(fn MissHandler) Option {
	return func(r *Router) { r.onMiss = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Router) { r.logger = l.Named("routing") }
}

func WithObserver(o observability.Observer) Option {
	return func(r *Router) { r.observer = o }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(r *Router) { r.metrics = c }
}

// New creates a Router over reg.
func New(reg *registry.Registry, opts ...Option) *Router {
	r := &Router{
		registry: reg,
		history:  NewHistory(),
		cfg:      DefaultConfig(),
		weights:  DefaultWeights(),
		logger:   zap.NewNop(),
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}
	cfg := DefaultConfig()
	cfg.Merge(&r.cfg)
	r.cfg = cfg
	return r
}

// History returns the collaboration table used for blending.
func (r *Router) History() *History {
	return r.history
}

// Route selects the best active specialist in pillar for query and marks
// it used. Scoring and the last-used update happen under one registry lock.
// When nothing clears the confidence threshold the miss is forwarded to the
// miss handler and a *MissError is returned.
func (r *Router) Route(ctx context.Context, query string, pillar specialist.Pillar, rc Context) (*Match, error) {
	if !pillar.Valid() {
		return nil, fmt.Errorf("%w: %w: %q", specialist.ErrNotFound, specialist.ErrInvalidPillar, pillar)
	}

	var match *Match
	err := r.registry.Exclusive(func(tx registry.Tx) error {
		ranked := r.Rank(query, rc, tx.Active(pillar), tx.Now())
		if len(ranked) == 0 {
			return nil
		}
		if err := tx.Touch(ranked[0].Specialist.ID); err != nil {
			return err
		}

		winner, _ := tx.Get(ranked[0].Specialist.ID)
		match = &Match{
			Specialist: winner.Clone(),
			Confidence: ranked[0].Score,
		}
		for _, alt := range ranked[1:min(len(ranked), r.cfg.Alternatives+1)] {
			match.Alternatives = append(match.Alternatives, Candidate{
				Specialist: alt.Specialist.Clone(),
				Score:      alt.Score,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if match == nil {
		r.metrics.RecordRoute(pillar.String(), false, 0)
		observability.Emit(ctx, r.observer, EventMiss, observability.LevelInfo, "routing.Route", map[string]any{
			"pillar": pillar.String(),
			"query":  query,
		})
		if r.onMiss != nil {
			r.onMiss(ctx, pillar, query)
		}
		return nil, &MissError{Pillar: pillar, Query: query}
	}

	r.metrics.RecordRoute(pillar.String(), true, match.Confidence)
	observability.Emit(ctx, r.observer, EventRouted, observability.LevelVerbose, "routing.Route", map[string]any{
		"pillar":       pillar.String(),
		"specialist":   match.Specialist.ID,
		"confidence":   match.Confidence,
		"alternatives": len(match.Alternatives),
	})
	return match, nil
}

// Rank scores candidates, drops those without any keyword overlap or under
// the confidence threshold, and blends in collaboration history for pairs
// with enough attempts. The result is sorted by descending score with ties
// broken by id.
func (r *Router) Rank(query string, rc Context, candidates []*specialist.Specialist, now time.Time) []Candidate {
	return r.rank(query, rc, candidates, now, r.cfg.MinConfidence, true)
}

// RankAll orders every candidate like Rank without the overlap requirement
// or the confidence threshold. Consultation uses it across pillars, where keyword overlap
// with the asking query is expected to be thin.
func (r *Router) RankAll(query string, rc Context, candidates []*specialist.Specialist, now time.Time) []Candidate {
	return r.rank(query, rc, candidates, now, 0, false)
}

func (r *Router) rank(query string, rc Context, candidates []*specialist.Specialist, now time.Time, floor float64, overlap bool) []Candidate {
	ranked := make([]Candidate, 0, len(candidates))
	for _, s := range candidates {
		score := r.weights.Score(query, s, now)
		s.Runtime.LastScore = score
		if score < floor {
			continue
		}
		// Expertise, recency and success alone can clear the floor.
		if overlap && KeywordOverlap(query, s.Keywords) == 0 {
			continue
		}
		ranked = append(ranked, Candidate{Specialist: s, Score: score})
	}
	sortCandidates(ranked)

	if rc.RequesterID == "" || r.history == nil {
		return ranked
	}

	blended := false
	for i := range ranked {
		p := r.history.Pattern(rc.RequesterID, ranked[i].Specialist.ID)
		if p.Attempts < r.cfg.HistoryMinAttempts {
			continue
		}
		ranked[i].Score = (1-r.cfg.HistoryWeight)*ranked[i].Score + r.cfg.HistoryWeight*p.Rate()
		blended = true
	}
	if blended {
		sortCandidates(ranked)
	}
	return ranked
}

func sortCandidates(c []Candidate) {
	slices.SortStableFunc(c, func(a, b Candidate) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return strings.Compare(a.Specialist.ID, b.Specialist.ID)
		}
	})
}
