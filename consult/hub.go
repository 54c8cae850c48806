// Package consult lets one specialist ask others for their perspective.
//
// A consultation selects up to Fanout candidates outside the requester's own
// pillar, asks them concurrently, and merges whatever answers arrive through
// the consensus package. Depth travels on the context and is the only
// guard against consultation cycles: a hub refuses to consult at or beyond
// MaxDepth, and every downstream ask runs one level deeper.
package consult

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/specialists/consensus"
	"github.com/tailored-agentic-units/specialists/metrics"
	"github.com/tailored-agentic-units/specialists/observability"
	"github.com/tailored-agentic-units/specialists/registry"
	"github.com/tailored-agentic-units/specialists/routing"
	"github.com/tailored-agentic-units/specialists/specialist"
)

// Consultation event types.
const (
	EventStarted   observability.EventType = "consult.started"
	EventCompleted observability.EventType = "consult.completed"
	EventFailed    observability.EventType = "consult.failed"
)

// FailureReason classifies a failed consultation or a failed candidate.
type FailureReason string

const (
	FailureMaxDepth        FailureReason = "max_depth"
	FailureNoCandidates    FailureReason = "no_candidates"
	FailureNoResponses     FailureReason = "no_responses"
	FailureTimeout         FailureReason = "timeout"
	FailureProviderFailure FailureReason = "provider_failure"
)

// Request describes a consultation.
type Request struct {
	RequesterID string
	Query       string
	// Pillars restricts candidates to these pillars. Empty means every pillar
	// except the requester's own.
	Pillars []specialist.Pillar
	// IncludeOwnPillar lets candidates come from the requester's pillar.
	IncludeOwnPillar bool
}

// Response is one usable answer.
type Response struct {
	SpecialistID string            `json:"specialistId"`
	Pillar       specialist.Pillar `json:"pillar"`
	Domain       string            `json:"domain"`
	Expertise    float64           `json:"expertise"`
	Text         string            `json:"text"`
	Latency      time.Duration     `json:"latency"`
}

// CandidateFailure is a candidate that produced no usable answer.
type CandidateFailure struct {
	SpecialistID string        `json:"specialistId"`
	Reason       FailureReason `json:"reason"`
	Error        string        `json:"error"`
}

// Result is the typed outcome of Consult. Failure is empty on success.
type Result struct {
	ConsultationID string             `json:"consultationId"`
	RequesterID    string             `json:"requesterId"`
	Query          string             `json:"query"`
	Depth          int                `json:"depth"`
	Candidates     []string           `json:"candidates"`
	Responses      []Response         `json:"responses"`
	Failures       []CandidateFailure `json:"failures,omitempty"`
	Consensus      *consensus.Result  `json:"consensus,omitempty"`
	Text           string             `json:"text,omitempty"`
	Failure        FailureReason      `json:"failure,omitempty"`
	Started        time.Time          `json:"started"`
	Finished       time.Time          `json:"finished"`
}

// OK reports whether the consultation produced an answer.
func (r *Result) OK() bool {
	return r.Failure == ""
}

// CandidateStats are running consultation statistics for one target.
type CandidateStats struct {
	Count       int
	Successes   int
	AvgLatency  time.Duration
	SuccessRate float64
}

// Hub runs consultations.
type Hub struct {
	registry  *registry.Registry
	router    *routing.Router
	transport Transport
	cfg       Config
	peers     *Directory
	node      string

	statsMu sync.Mutex
	stats   map[string]CandidateStats

	logger   *zap.Logger
	observer observability.Observer
	metrics  *metrics.Collector
	now      func() time.Time
}

// Option configures a Hub.
type Option func(*Hub)

func WithConfig(cfg Config) Option {
	return func(h *Hub) { h.cfg = cfg }
}

func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) { h.logger = l.Named("consult") }
}

func WithObserver(o observability.Observer) Option {
	return func(h *Hub) { h.observer = o }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(h *Hub) { h.metrics = c }
}

func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

// WithPeers draws candidates from advertised peers instead of the local
// registry. Peers advertised by node itself resolve to the live local
// record. Peers whose node does not serve consultations are skipped.
func WithPeers(d *Directory, node string) Option {
	return func(h *Hub) {
		h.peers = d
		h.node = node
	}
}

// New creates a Hub. The router supplies scoring and the collaboration
// history shared with routing.
func New(reg *registry.Registry, router *routing.Router, transport Transport, opts ...Option) *Hub {
	h := &Hub{
		registry:  reg,
		router:    router,
		transport: transport,
		cfg:       DefaultConfig(),
		stats:     make(map[string]CandidateStats),
		logger:    zap.NewNop(),
		observer:  observability.NoOpObserver{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	cfg := DefaultConfig()
	cfg.Merge(&h.cfg)
	h.cfg = cfg
	return h
}

// Consult asks the best candidates for their perspective on req.Query.
// It never returns an error: every failure is reported on the Result.
func (h *Hub) Consult(ctx context.Context, req Request) *Result {
	res := &Result{
		ConsultationID: uuid.NewString(),
		RequesterID:    req.RequesterID,
		Query:          req.Query,
		Depth:          DepthFrom(ctx),
		Started:        h.now(),
	}

	if res.Depth >= h.cfg.MaxDepth {
		return h.fail(ctx, res, FailureMaxDepth)
	}

	candidates := h.candidates(req)
	if len(candidates) == 0 {
		return h.fail(ctx, res, FailureNoCandidates)
	}
	for _, c := range candidates {
		res.Candidates = append(res.Candidates, c.spec.ID)
	}

	observability.Emit(ctx, h.observer, EventStarted, observability.LevelVerbose, "consult.Consult", map[string]any{
		"consultation_id": res.ConsultationID,
		"requester":       req.RequesterID,
		"candidates":      res.Candidates,
		"depth":           res.Depth,
	})

	outcomes := h.fanout(ctx, res, candidates)
	for i, o := range outcomes {
		success := o.err == nil
		c := candidates[i].spec
		h.record(req.RequesterID, c.ID, success, o.latency)
		if !success {
			res.Failures = append(res.Failures, CandidateFailure{
				SpecialistID: c.ID,
				Reason:       classify(o.err),
				Error:        o.err.Error(),
			})
			h.logger.Debug("candidate failed",
				zap.String("consultation_id", res.ConsultationID),
				zap.String("specialist", c.ID),
				zap.Error(o.err),
			)
			continue
		}
		res.Responses = append(res.Responses, Response{
			SpecialistID: c.ID,
			Pillar:       c.Pillar,
			Domain:       c.Domain,
			Expertise:    c.ExpertiseLevel,
			Text:         o.text,
			Latency:      o.latency,
		})
	}

	if len(res.Responses) == 0 {
		return h.fail(ctx, res, FailureNoResponses)
	}

	inputs := make([]consensus.Response, len(res.Responses))
	for i, r := range res.Responses {
		inputs[i] = consensus.Response{
			SpecialistID: r.SpecialistID,
			Domain:       r.Domain,
			Text:         r.Text,
			Expertise:    r.Expertise,
		}
	}
	formed, err := consensus.Form(inputs, h.cfg.ConsensusThreshold)
	if err != nil {
		return h.fail(ctx, res, FailureNoResponses)
	}
	res.Consensus = formed
	res.Text = formed.Text
	res.Finished = h.now()

	h.metrics.RecordConsultation("ok", res.Finished.Sub(res.Started))
	observability.Emit(ctx, h.observer, EventCompleted, observability.LevelInfo, "consult.Consult", map[string]any{
		"consultation_id": res.ConsultationID,
		"responses":       len(res.Responses),
		"failures":        len(res.Failures),
		"strength":        formed.Strength,
		"reached":         formed.Reached,
	})
	return res
}

// target is a selected candidate and the node that answers for it. An
// empty node means the local registry.
type target struct {
	spec *specialist.Specialist
	node string
}

// candidates selects the top Fanout active specialists eligible for req.
func (h *Hub) candidates(req Request) []target {
	own := h.pillarOf(req.RequesterID)

	var pool []*specialist.Specialist
	nodes := make(map[string]string)
	for _, t := range h.pool() {
		s := t.spec
		switch {
		case s.ID == req.RequesterID:
			continue
		case s.ExpertiseLevel < h.cfg.MinExpertise:
			continue
		case len(req.Pillars) > 0 && !slices.Contains(req.Pillars, s.Pillar):
			continue
		case len(req.Pillars) == 0 && !req.IncludeOwnPillar && own != "" && s.Pillar == own:
			continue
		}
		pool = append(pool, s)
		nodes[s.ID] = t.node
	}

	ranked := h.router.RankAll(req.Query, routing.Context{RequesterID: req.RequesterID}, pool, h.now())
	out := make([]target, 0, min(len(ranked), h.cfg.Fanout))
	for _, c := range ranked[:min(len(ranked), h.cfg.Fanout)] {
		out = append(out, target{spec: c.Specialist, node: nodes[c.Specialist.ID]})
	}
	return out
}

func (h *Hub) pool() []target {
	if h.peers == nil {
		local := h.registry.ListActive("")
		out := make([]target, len(local))
		for i, s := range local {
			out[i] = target{spec: s}
		}
		return out
	}

	var out []target
	for _, p := range h.peers.List() {
		if !p.Serving {
			continue
		}
		if p.Node != h.node {
			out = append(out, target{spec: p.Specialist(), node: p.Node})
			continue
		}
		if s, err := h.registry.Get(p.ID); err == nil && s.Active {
			out = append(out, target{spec: s, node: p.Node})
		}
	}
	return out
}

func (h *Hub) pillarOf(id string) specialist.Pillar {
	if id == "" {
		return ""
	}
	if s, err := h.registry.Get(id); err == nil {
		return s.Pillar
	}
	if h.peers != nil {
		if p, ok := h.peers.Get(id); ok {
			return p.Pillar
		}
	}
	return ""
}

type outcome struct {
	text    string
	err     error
	latency time.Duration
}

// fanout asks every candidate concurrently. A failing candidate never
// cancels the others.
func (h *Hub) fanout(ctx context.Context, res *Result, candidates []target) []outcome {
	outcomes := make([]outcome, len(candidates))
	var g errgroup.Group
	for i, c := range candidates {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
			defer cancel()

			start := time.Now()
			text, err := h.transport.Ask(callCtx, Ask{
				ConsultationID: res.ConsultationID,
				RequesterID:    res.RequesterID,
				Target:         c.spec,
				Node:           c.node,
				Query:          res.Query,
				Depth:          res.Depth + 1,
			})
			text = strings.TrimSpace(text)
			if err == nil && text == "" {
				err = errEmptyAnswer
			}
			outcomes[i] = outcome{text: text, err: err, latency: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

var errEmptyAnswer = errors.New("empty answer")

func classify(err error) FailureReason {
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	return FailureProviderFailure
}

func (h *Hub) fail(ctx context.Context, res *Result, reason FailureReason) *Result {
	res.Failure = reason
	res.Finished = h.now()
	h.metrics.RecordConsultation(string(reason), res.Finished.Sub(res.Started))
	observability.Emit(ctx, h.observer, EventFailed, observability.LevelWarning, "consult.Consult", map[string]any{
		"consultation_id": res.ConsultationID,
		"requester":       res.RequesterID,
		"reason":          string(reason),
		"depth":           res.Depth,
	})
	return res
}

// record updates the collaboration history and the running statistics of
// a consulted candidate.
func (h *Hub) record(requester, target string, success bool, latency time.Duration) {
	if requester != "" {
		h.router.History().Record(requester, target, success)
	}

	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	s := h.stats[target]
	s.Count++
	if success {
		s.Successes++
	}
	s.AvgLatency += (latency - s.AvgLatency) / time.Duration(s.Count)
	s.SuccessRate = float64(s.Successes) / float64(s.Count)
	h.stats[target] = s
}

// Stats returns the consultation statistics of a target specialist.
func (h *Hub) Stats(id string) CandidateStats {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	return h.stats[id]
}
