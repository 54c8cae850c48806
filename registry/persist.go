package registry

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/tailored-agentic-units/specialists/memory"
	"github.com/tailored-agentic-units/specialists/observability"
	"github.com/tailored-agentic-units/specialists/specialist"
)

// Save triggers recorded in metrics.
const (
	triggerExplicit = "explicit"
	triggerAutosave = "autosave"
	triggerPeriodic = "periodic"
	triggerShutdown = "shutdown"
)

// LoadReport describes the outcome of Load.
type LoadReport struct {
	Loaded      int
	Templates   int
	Rebuilt     []string
	Quarantined []string
	Skipped     []string
}

// Save persists every specialist as its own document.
func (r *Registry) Save(ctx context.Context) error {
	err := r.persist(ctx, true)
	r.metrics.RecordSave(triggerExplicit, err)
	return err
}

// Flush persists only specialists changed since the last save.
func (r *Registry) Flush(ctx context.Context) error {
	err := r.persist(ctx, false)
	r.metrics.RecordSave(triggerExplicit, err)
	return err
}

func (r *Registry) persist(ctx context.Context, all bool) error {
	r.mu.Lock()
	ids := slices.Sorted(maps.Keys(r.dirty))
	if all {
		ids = slices.Sorted(maps.Keys(r.specialists))
	}
	entries := make([]memory.Entry, 0, len(ids))
	var encodeErrs []error
	for _, id := range ids {
		s, ok := r.specialists[id]
		if !ok {
			continue
		}
		data, err := specialist.Encode(s)
		if err != nil {
			encodeErrs = append(encodeErrs, err)
			continue
		}
		entries = append(entries, memory.Entry{Key: memory.Key(memory.NamespaceSpecialists, id), Value: data})
	}
	clear(r.dirty)
	r.mu.Unlock()

	if len(entries) == 0 {
		return errors.Join(encodeErrs...)
	}

	if err := r.store.Save(ctx, entries...); err != nil {
		r.mu.Lock()
		for _, e := range entries {
			r.dirty[memory.IDFromKey(e.Key)] = struct{}{}
		}
		r.mu.Unlock()

		observability.Emit(ctx, r.observer, EventSaveFailed, observability.LevelError, "registry.Save", map[string]any{
			"documents": len(entries),
			"error":     err.Error(),
		})
		return err
	}

	observability.Emit(ctx, r.observer, EventSaved, observability.LevelVerbose, "registry.Save", map[string]any{
		"documents": len(entries),
	})
	return errors.Join(encodeErrs...)
}

// Load reads templates and specialists from the store into the registry.
// Unreadable specialist documents whose id names a known template are
// rebuilt from it and rewritten; any other unreadable document is
// quarantined. Neither case fails the load, and an empty store is a valid
// empty population.
func (r *Registry) Load(ctx context.Context) (*LoadReport, error) {
	report := &LoadReport{}

	templateKeys, err := memory.ListPrefix(ctx, r.store, memory.NamespaceTemplates)
	if err != nil {
		return nil, err
	}
	for _, key := range templateKeys {
		data, ok := r.read(ctx, key, report)
		if !ok {
			continue
		}
		t, err := specialist.DecodeTemplate(data)
		if err != nil {
			r.quarantine(ctx, key, err, report)
			continue
		}
		if err := r.RegisterTemplate(t); err == nil {
			report.Templates++
		}
	}

	keys, err := memory.ListPrefix(ctx, r.store, memory.NamespaceSpecialists)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		data, ok := r.read(ctx, key, report)
		if !ok {
			continue
		}

		s, decodeErr := specialist.Decode(data)
		if decodeErr == nil {
			r.mu.Lock()
			r.put(s)
			r.mu.Unlock()
			report.Loaded++
			continue
		}

		id := memory.IDFromKey(key)
		if rebuilt := r.rebuild(ctx, id); rebuilt {
			report.Rebuilt = append(report.Rebuilt, id)
			continue
		}
		r.quarantine(ctx, key, decodeErr, report)
	}

	r.mu.Lock()
	r.publishPopulation()
	r.mu.Unlock()

	observability.Emit(ctx, r.observer, EventLoaded, observability.LevelInfo, "registry.Load", map[string]any{
		"loaded":      report.Loaded,
		"templates":   report.Templates,
		"rebuilt":     len(report.Rebuilt),
		"quarantined": len(report.Quarantined),
	})
	return report, nil
}

// read loads one document. Read failures are skipped, not quarantined,
// since the document itself may be intact.
func (r *Registry) read(ctx context.Context, key string, report *LoadReport) ([]byte, bool) {
	entries, err := r.store.Load(ctx, key)
	if err != nil || len(entries) == 0 {
		r.logger.Warn("skipping unreadable document", zap.String("key", key), zap.Error(err))
		report.Skipped = append(report.Skipped, key)
		return nil, false
	}
	return entries[0].Value, true
}

func (r *Registry) rebuild(ctx context.Context, id string) bool {
	templateID, ok := specialist.TemplateIDFrom(id)
	if !ok {
		return false
	}
	t, ok := r.Template(templateID)
	if !ok {
		return false
	}

	s := t.SpawnWithID(id, r.now())
	data, err := specialist.Encode(s)
	if err != nil {
		return false
	}

	r.mu.Lock()
	r.put(s)
	r.mu.Unlock()

	if err := r.store.Save(ctx, memory.Entry{Key: memory.Key(memory.NamespaceSpecialists, id), Value: data}); err != nil {
		r.logger.Warn("rebuilt specialist not rewritten", zap.String("id", id), zap.Error(err))
		r.mu.Lock()
		r.dirty[id] = struct{}{}
		r.mu.Unlock()
	}

	observability.Emit(ctx, r.observer, EventRebuilt, observability.LevelWarning, "registry.Load", map[string]any{
		"id":       id,
		"template": templateID,
	})
	return true
}

func (r *Registry) quarantine(ctx context.Context, key string, cause error, report *LoadReport) {
	if err := r.store.Quarantine(ctx, key); err != nil {
		r.logger.Error("quarantine failed", zap.String("key", key), zap.Error(err))
		report.Skipped = append(report.Skipped, key)
		return
	}
	report.Quarantined = append(report.Quarantined, key)
	observability.Emit(ctx, r.observer, EventQuarantined, observability.LevelWarning, "registry.Load", map[string]any{
		"key":   key,
		"cause": cause.Error(),
	})
}

// Start runs the background persistence loop: a debounced autosave after
// outcome updates and a periodic full save. Stop it with Close.
func (r *Registry) Start(ctx context.Context) {
	r.once.Do(func() {
		r.done = make(chan struct{})
		go r.loop(ctx)
	})
}

func (r *Registry) scheduleAutosave() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

func (r *Registry) loop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.SaveInterval)
	defer ticker.Stop()

	debounce := time.NewTimer(r.cfg.AutosaveDebounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-r.kick:
			debounce.Reset(r.cfg.AutosaveDebounce)
		case <-debounce.C:
			if r.busy() {
				debounce.Reset(r.cfg.AutosaveDebounce)
				continue
			}
			r.background(ctx, triggerAutosave, false)
		case <-ticker.C:
			if r.busy() {
				continue
			}
			r.background(ctx, triggerPeriodic, true)
		}
	}
}

func (r *Registry) background(ctx context.Context, trigger string, all bool) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := r.persist(ctx, all)
	r.metrics.RecordSave(trigger, err)
	if err != nil {
		r.logger.Warn("background save failed", zap.String("trigger", trigger), zap.Error(err))
	}
}

// Close stops the background loop and performs a final full save.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.stop)
	r.once.Do(func() {})
	if r.done != nil {
		<-r.done
	}

	err := r.persist(ctx, true)
	r.metrics.RecordSave(triggerShutdown, err)
	return err
}
