package registry

import (
	"time"

	"go.uber.org/zap"

	"github.com/tailored-agentic-units/specialists/metrics"
	"github.com/tailored-agentic-units/specialists/observability"
	"github.com/tailored-agentic-units/specialists/specialist"
)

// Catalog resolves predefined templates by id. Used to rebuild specialists
// whose persisted documents are unreadable.
type Catalog interface {
	Lookup(templateID string) (*specialist.Template, bool)
}

// Option configures a Registry.
type Option func(*Registry)

func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l.Named("registry") }
}

func WithObserver(o observability.Observer) Option {
	return func(r *Registry) { r.observer = o }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(r *Registry) { r.metrics = c }
}

// WithCatalog sets the template catalog consulted by Load for rebuilds.
func WithCatalog(c Catalog) Option {
	return func(r *Registry) { r.catalog = c }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithGate defers autosave while busy reports true. Explicit saves and the
// final save on Close ignore the gate.
func WithGate(busy func() bool) Option {
	return func(r *Registry) { r.busy = busy }
}

func WithConfig(cfg Config) Option {
	return func(r *Registry) { r.cfg = cfg }
}
