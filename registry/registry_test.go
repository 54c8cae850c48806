package registry_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/goleak"

	"github.com/tailored-agentic-units/specialists/memory"
	"github.com/tailored-agentic-units/specialists/observability"
	"github.com/tailored-agentic-units/specialists/registry"
	"github.com/tailored-agentic-units/specialists/specialist"
)

type catalog map[string]*specialist.Template

func (c catalog) Lookup(id string) (*specialist.Template, bool) {
	t, ok := c[id]
	return t, ok
}

var (
	codeTemplate = &specialist.Template{
		ID:             "logos_code_review",
		Pillar:         specialist.PillarLogos,
		Domain:         "Software",
		Specialization: "Code Review",
		Keywords:       []string{"code", "debug"},
		Instructions:   "Review code carefully.",
	}
	poetryTemplate = &specialist.Template{
		ID:             "aurora_poetry",
		Pillar:         specialist.PillarAurora,
		Domain:         "Literature",
		Specialization: "Poetry",
		Keywords:       []string{"poem", "verse"},
	}
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newRegistry(t *testing.T, store memory.Store, opts ...registry.Option) *registry.Registry {
	t.Helper()
	opts = append([]registry.Option{registry.WithClock(func() time.Time { return fixedNow })}, opts...)
	return registry.New(store, opts...)
}

func TestRegistry_RegisterGetList(t *testing.T) {
	r := newRegistry(t, memory.NewFileStore(t.TempDir()))

	code := codeTemplate.Spawn(fixedNow)
	poem := poetryTemplate.Spawn(fixedNow)
	for _, s := range []*specialist.Specialist{code, poem} {
		if err := r.Register(s); err != nil {
			t.Fatalf("Register(%s) error = %v", s.ID, err)
		}
	}

	if err := r.Register(code); !errors.Is(err, specialist.ErrExists) {
		t.Errorf("duplicate Register() error = %v, want ErrExists", err)
	}

	got, err := r.Get(code.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got.Domain = "mutated"
	if again, _ := r.Get(code.ID); again.Domain != "Software" {
		t.Error("Get() must return a copy")
	}

	if _, err := r.Get("missing-00000000"); !errors.Is(err, specialist.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}

	if n := len(r.ListActive(specialist.PillarLogos)); n != 1 {
		t.Errorf("ListActive(LOGOS) = %d, want 1", n)
	}
	if n := len(r.ListActive(specialist.PillarThalamus)); n != 0 {
		t.Errorf("ListActive(THALAMUS) = %d, want 0", n)
	}
	if n := len(r.ListActive("")); n != 2 {
		t.Errorf("ListActive(all) = %d, want 2", n)
	}
}

func TestRegistry_RegisterInvalid(t *testing.T) {
	r := newRegistry(t, memory.NewFileStore(t.TempDir()))

	bad := codeTemplate.Spawn(fixedNow)
	bad.Pillar = "NOUS"
	if err := r.Register(bad); !errors.Is(err, specialist.ErrInvalidPillar) {
		t.Errorf("Register() error = %v, want ErrInvalidPillar", err)
	}
}

func TestRegistry_Deactivate(t *testing.T) {
	r := newRegistry(t, memory.NewFileStore(t.TempDir()))
	s := codeTemplate.Spawn(fixedNow)
	r.Register(s)

	if err := r.Deactivate(s.ID); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	if n := len(r.ListActive(specialist.PillarLogos)); n != 0 {
		t.Errorf("ListActive() after Deactivate = %d, want 0", n)
	}

	got, err := r.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() after Deactivate error = %v", err)
	}
	if got.Active {
		t.Error("Active should be false")
	}

	stats := r.Stats()
	if stats.Total != 1 || stats.Active != 0 {
		t.Errorf("Stats() = %+v, want 1 total, 0 active", stats)
	}
}

func TestRegistry_RecordOutcomeClamps(t *testing.T) {
	r := newRegistry(t, memory.NewFileStore(t.TempDir()))
	s := codeTemplate.Spawn(fixedNow)
	s.ExpertiseLevel = 0.99
	r.Register(s)

	for range 5 {
		if err := r.RecordOutcome(s.ID, specialist.Outcome{Success: true, Confidence: 0.9, Reward: 1}); err != nil {
			t.Fatalf("RecordOutcome() error = %v", err)
		}
	}

	got, _ := r.Get(s.ID)
	if got.ExpertiseLevel != 1 {
		t.Errorf("ExpertiseLevel = %v, want 1", got.ExpertiseLevel)
	}
	if got.Stats.QueriesHandled != 5 || got.Stats.TotalReward != 5 {
		t.Errorf("Stats = %+v", got.Stats)
	}
}

func TestRegistry_UpdateKeepsIdentity(t *testing.T) {
	r := newRegistry(t, memory.NewFileStore(t.TempDir()))
	s := codeTemplate.Spawn(fixedNow)
	r.Register(s)

	err := r.Update(s.ID, func(sp *specialist.Specialist) {
		sp.Pillar = specialist.PillarAurora
		sp.ID = "other"
		sp.ExpertiseLevel = 7
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, _ := r.Get(s.ID)
	if got.Pillar != specialist.PillarLogos || got.ExpertiseLevel != 1 {
		t.Errorf("after Update: pillar %s expertise %v", got.Pillar, got.ExpertiseLevel)
	}
}

func TestRegistry_Exclusive(t *testing.T) {
	r := newRegistry(t, memory.NewFileStore(t.TempDir()))
	s := codeTemplate.Spawn(fixedNow)
	r.Register(s)

	err := r.Exclusive(func(tx registry.Tx) error {
		active := tx.Active(specialist.PillarLogos)
		if len(active) != 1 {
			t.Fatalf("tx.Active() = %d, want 1", len(active))
		}
		return tx.Touch(active[0].ID)
	})
	if err != nil {
		t.Fatalf("Exclusive() error = %v", err)
	}

	got, _ := r.Get(s.ID)
	if got.Stats.ActivationCount != 1 || !got.Stats.LastUsed.Equal(fixedNow) {
		t.Errorf("Stats after touch = %+v", got.Stats)
	}
}

func TestRegistry_SaveLoadRoundTrip(t *testing.T) {
	store := memory.NewFileStore(t.TempDir())
	r := newRegistry(t, store)

	s := codeTemplate.Spawn(fixedNow)
	s.KnowledgeBase = map[string]string{"lang": "go"}
	opt := fixedNow.Add(-time.Hour)
	s.LastOptimization = &opt
	r.Register(s)
	r.RecordOutcome(s.ID, specialist.Outcome{Success: false, Confidence: 0.2})

	if err := r.Save(context.Background()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	want, _ := r.Get(s.ID)

	reloaded := newRegistry(t, store)
	report, err := reloaded.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if report.Loaded != 1 {
		t.Errorf("Loaded = %d, want 1", report.Loaded)
	}

	got, err := reloaded.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(specialist.Specialist{}, "Runtime")); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_LoadEmptyStore(t *testing.T) {
	r := newRegistry(t, memory.NewFileStore(filepath.Join(t.TempDir(), "none")))

	report, err := r.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if report.Loaded != 0 || len(r.ListActive("")) != 0 {
		t.Errorf("Load() of empty store = %+v", report)
	}
}

func TestRegistry_LoadRecoversCorruptDocuments(t *testing.T) {
	root := t.TempDir()
	store := memory.NewFileStore(root)
	ctx := context.Background()

	good := poetryTemplate.Spawn(fixedNow)
	data, _ := specialist.Encode(good)
	store.Save(ctx,
		memory.Entry{Key: memory.Key(memory.NamespaceSpecialists, good.ID), Value: data},
		memory.Entry{Key: memory.Key(memory.NamespaceSpecialists, "logos_code_review-0a1b2c3d"), Value: []byte("{truncated")},
		memory.Entry{Key: memory.Key(memory.NamespaceSpecialists, "Handwritten Name"), Value: []byte("not json")},
	)

	rec := observability.NewRecorder()
	r := newRegistry(t, store,
		registry.WithCatalog(catalog{codeTemplate.ID: codeTemplate}),
		registry.WithObserver(rec),
	)

	report, err := r.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if report.Loaded != 1 {
		t.Errorf("Loaded = %d, want 1", report.Loaded)
	}
	if len(report.Rebuilt) != 1 || report.Rebuilt[0] != "logos_code_review-0a1b2c3d" {
		t.Errorf("Rebuilt = %v", report.Rebuilt)
	}
	if len(report.Quarantined) != 1 {
		t.Errorf("Quarantined = %v", report.Quarantined)
	}

	rebuilt, err := r.Get("logos_code_review-0a1b2c3d")
	if err != nil {
		t.Fatalf("rebuilt specialist missing: %v", err)
	}
	if rebuilt.TemplateID != codeTemplate.ID || !rebuilt.Active {
		t.Errorf("rebuilt = %+v", rebuilt)
	}

	rewritten, err := os.ReadFile(filepath.Join(root, "specialists", "logos_code_review-0a1b2c3d.json"))
	if err != nil {
		t.Fatalf("rebuilt document not rewritten: %v", err)
	}
	if _, err := specialist.Decode(rewritten); err != nil {
		t.Errorf("rewritten document does not decode: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, memory.QuarantineDir, "specialists", "Handwritten Name.json")); err != nil {
		t.Errorf("quarantined document missing: %v", err)
	}
	if rec.Count(registry.EventQuarantined) != 1 || rec.Count(registry.EventRebuilt) != 1 {
		t.Errorf("events: quarantined %d rebuilt %d", rec.Count(registry.EventQuarantined), rec.Count(registry.EventRebuilt))
	}
}

func TestRegistry_LoadPersistedTemplates(t *testing.T) {
	store := memory.NewFileStore(t.TempDir())
	ctx := context.Background()

	first := newRegistry(t, store)
	synth := poetryTemplate.Clone()
	synth.ID = "gen_aurora_haiku"
	synth.Synthesized = true
	if err := first.SaveTemplate(ctx, synth); err != nil {
		t.Fatalf("SaveTemplate() error = %v", err)
	}

	store.Save(ctx, memory.Entry{Key: memory.Key(memory.NamespaceSpecialists, "gen_aurora_haiku-deadbeef"), Value: []byte("")})

	second := newRegistry(t, store)
	report, err := second.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if report.Templates != 1 || len(report.Rebuilt) != 1 {
		t.Errorf("report = %+v, want 1 template and 1 rebuilt", report)
	}
}

func TestRegistry_Autosave(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	root := t.TempDir()
	r := newRegistry(t, memory.NewFileStore(root),
		registry.WithConfig(registry.Config{AutosaveDebounce: 10 * time.Millisecond, SaveInterval: time.Hour}),
	)
	s := codeTemplate.Spawn(fixedNow)
	r.Register(s)

	ctx := context.Background()
	r.Start(ctx)
	r.RecordOutcome(s.ID, specialist.Outcome{Success: true, Confidence: 0.8})

	path := filepath.Join(root, "specialists", s.ID+".json")
	waitFor(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	})

	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := r.Register(poetryTemplate.Spawn(fixedNow)); !errors.Is(err, registry.ErrClosed) {
		t.Errorf("Register() after Close error = %v, want ErrClosed", err)
	}
}

func TestRegistry_AutosaveDefersWhileBusy(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var busy atomic.Bool
	busy.Store(true)

	root := t.TempDir()
	r := newRegistry(t, memory.NewFileStore(root),
		registry.WithConfig(registry.Config{AutosaveDebounce: 5 * time.Millisecond, SaveInterval: time.Hour}),
		registry.WithGate(busy.Load),
	)
	s := codeTemplate.Spawn(fixedNow)
	r.Register(s)

	ctx := context.Background()
	r.Start(ctx)
	r.RecordOutcome(s.ID, specialist.Outcome{Success: true})

	path := filepath.Join(root, "specialists", s.ID+".json")
	time.Sleep(50 * time.Millisecond)
	if _, err := os.Stat(path); err == nil {
		t.Fatal("autosave ran while the gate was busy")
	}

	busy.Store(false)
	waitFor(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	})
	r.Close(ctx)
}

func TestRegistry_CloseSavesWithoutStart(t *testing.T) {
	root := t.TempDir()
	r := newRegistry(t, memory.NewFileStore(root))
	s := codeTemplate.Spawn(fixedNow)
	r.Register(s)

	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "specialists", s.ID+".json")); err != nil {
		t.Errorf("Close() did not save: %v", err)
	}
	if err := r.Close(context.Background()); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
