package evolution_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/tailored-agentic-units/specialists/evolution"
	"github.com/tailored-agentic-units/specialists/genesis"
	"github.com/tailored-agentic-units/specialists/memory"
	"github.com/tailored-agentic-units/specialists/provider"
	"github.com/tailored-agentic-units/specialists/provider/mock"
	"github.com/tailored-agentic-units/specialists/registry"
	"github.com/tailored-agentic-units/specialists/specialist"
)

var now = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

const splitPlan = `{"split":true,"reason":"too broad","subSpecialties":[` +
	`{"focus":"concurrency bugs","specialization":"Concurrency","keywords":["race","deadlock"]},` +
	`{"focus":"memory leaks","specialization":"Memory","keywords":["leak","heap"]}]}`

func blueprint(specialization string, keywords ...string) string {
	return `{"domain":"Software","specialization":"` + specialization + `","keywords":["` + strings.Join(keywords, `","`) + `"],"rationale":"split","temperature":0.6}`
}

var longRewrite = strings.Repeat("Think carefully about the failing cases and verify each step. ", 4)

type env struct {
	reg     *registry.Registry
	mock    *mock.Provider
	monitor *evolution.Monitor
}

func newEnv(t *testing.T, opts ...evolution.Option) *env {
	t.Helper()
	reg := registry.New(memory.NewFileStore(t.TempDir()), registry.WithClock(func() time.Time { return now }))
	m := mock.New()
	eng := genesis.New(reg, m, genesis.WithClock(func() time.Time { return now }))
	opts = append([]evolution.Option{evolution.WithClock(func() time.Time { return now })}, opts...)
	return &env{reg: reg, mock: m, monitor: evolution.New(reg, eng, m, opts...)}
}

func (e *env) register(t *testing.T, queries int, expertise, success float64, lastOpt *time.Time) *specialist.Specialist {
	t.Helper()
	tmpl := &specialist.Template{
		ID:             "logos_debugging",
		Pillar:         specialist.PillarLogos,
		Domain:         "Software",
		Specialization: "Debugging",
		Keywords:       []string{"debug", "bug"},
		Instructions:   "Find bugs.",
	}
	s := tmpl.Spawn(now)
	s.Stats.QueriesHandled = queries
	s.Stats.SuccessRate = success
	s.ExpertiseLevel = expertise
	s.LastOptimization = lastOpt
	if err := e.reg.Register(s); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return s
}

func TestSweep_Mitosis(t *testing.T) {
	e := newEnv(t)
	parent := e.register(t, 51, 0.7, 0.95, nil)

	e.mock.
		Reply(provider.RoleStrategic, splitPlan, blueprint("Concurrency", "race", "deadlock"), blueprint("Memory", "leak", "heap")).
		Reply(provider.RoleCreative, "You debug concurrency.", "You debug memory.")

	report := e.monitor.Sweep(context.Background())
	children := report.Split[parent.ID]
	if len(children) != 2 {
		t.Fatalf("children = %v, want 2", children)
	}

	for _, id := range children {
		child, err := e.reg.Get(id)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", id, err)
		}
		if child.ParentSpecialistID != parent.ID || child.Pillar != parent.Pillar {
			t.Errorf("child %s = parent %q pillar %s", id, child.ParentSpecialistID, child.Pillar)
		}
	}

	got, _ := e.reg.Get(parent.ID)
	if got.Stats.QueriesHandled != 0 {
		t.Errorf("parent QueriesHandled = %d, want reset to 0", got.Stats.QueriesHandled)
	}
	if !got.Active || strings.Join(got.Keywords, ",") != "debug,bug" {
		t.Errorf("parent changed: active %v keywords %v", got.Active, got.Keywords)
	}
	if e.mock.CallCount(provider.RoleCreative) != 2 {
		t.Errorf("creative calls = %d, want 2", e.mock.CallCount(provider.RoleCreative))
	}
}

func TestSweep_MitosisTakesPrecedence(t *testing.T) {
	e := newEnv(t)
	e.register(t, 60, 0.9, 0.1, nil)

	e.mock.Reply(provider.RoleStrategic, `{"split":false,"reason":"focused enough","subSpecialties":[]}`)

	report := e.monitor.Sweep(context.Background())
	if len(report.Optimized)+len(report.Rejected) != 0 {
		t.Error("optimization ran for a specialist already handled by mitosis")
	}
	if e.mock.CallCount(provider.RoleCreative) != 0 {
		t.Errorf("creative calls = %d, want 0", e.mock.CallCount(provider.RoleCreative))
	}
}

func TestSweep_MitosisNeedsTwoSubSpecialties(t *testing.T) {
	e := newEnv(t)
	parent := e.register(t, 51, 0.7, 0.95, nil)

	e.mock.Reply(provider.RoleStrategic, `{"split":true,"reason":"x","subSpecialties":[{"focus":"only one","specialization":"One","keywords":["a"]}]}`)

	report := e.monitor.Sweep(context.Background())
	if report.Failed != 1 {
		t.Errorf("Failed = %d, want 1", report.Failed)
	}
	got, _ := e.reg.Get(parent.ID)
	if got.Stats.QueriesHandled != 51 {
		t.Errorf("QueriesHandled = %d, want unchanged after a malformed plan", got.Stats.QueriesHandled)
	}
}

func TestSweep_Neuroplasticity(t *testing.T) {
	e := newEnv(t)
	s := e.register(t, 21, 0.5, 0.5, nil)

	e.mock.Reply(provider.RoleCreative, longRewrite)

	report := e.monitor.Sweep(context.Background())
	if len(report.Optimized) != 1 {
		t.Fatalf("Optimized = %v, want 1", report.Optimized)
	}

	got, _ := e.reg.Get(s.ID)
	if got.Instructions != strings.TrimSpace(longRewrite) {
		t.Errorf("Instructions not replaced")
	}
	if got.LastOptimization == nil || !got.LastOptimization.Equal(now) {
		t.Errorf("LastOptimization = %v, want %v", got.LastOptimization, now)
	}

	if report := e.monitor.Sweep(context.Background()); report.Examined != 1 || len(report.Optimized) != 0 {
		t.Errorf("second sweep = %+v, want cooldown to block", report)
	}
	if e.mock.CallCount() != 1 {
		t.Errorf("provider calls = %d, want 1", e.mock.CallCount())
	}
}

func TestSweep_RejectsShortRewrite(t *testing.T) {
	e := newEnv(t)
	s := e.register(t, 25, 0.5, 0.4, nil)

	e.mock.Reply(provider.RoleCreative, "Be better.")

	report := e.monitor.Sweep(context.Background())
	if len(report.Rejected) != 1 {
		t.Fatalf("Rejected = %v, want 1", report.Rejected)
	}
	got, _ := e.reg.Get(s.ID)
	if got.Instructions != "Find bugs." || got.LastOptimization != nil {
		t.Errorf("rejected rewrite changed the record: %+v", got)
	}
}

func TestSweep_CooldownElapsed(t *testing.T) {
	tests := []struct {
		name     string
		lastOpt  time.Duration
		wantCall bool
	}{
		{name: "within cooldown", lastOpt: time.Hour},
		{name: "past cooldown", lastOpt: 25 * time.Hour, wantCall: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			last := now.Add(-tt.lastOpt)
			e.register(t, 30, 0.5, 0.5, &last)
			e.mock.Reply(provider.RoleCreative, longRewrite)

			e.monitor.Sweep(context.Background())
			if got := e.mock.CallCount() == 1; got != tt.wantCall {
				t.Errorf("provider called = %v, want %v", got, tt.wantCall)
			}
		})
	}
}

func TestSweep_NotEligible(t *testing.T) {
	e := newEnv(t)
	e.register(t, 10, 0.9, 0.2, nil)
	e.register(t, 40, 0.5, 0.95, nil)

	report := e.monitor.Sweep(context.Background())
	if report.Examined != 2 || e.mock.CallCount() != 0 {
		t.Errorf("report = %+v, calls = %d", report, e.mock.CallCount())
	}
}

func TestSweep_DefersWhileForeground(t *testing.T) {
	e := newEnv(t, evolution.WithGate(func() bool { return true }))
	e.register(t, 51, 0.7, 0.5, nil)

	report := e.monitor.Sweep(context.Background())
	if !report.Deferred || report.Examined != 0 {
		t.Errorf("report = %+v, want deferred", report)
	}
	if e.mock.CallCount() != 0 {
		t.Errorf("provider calls = %d, want 0", e.mock.CallCount())
	}
}

func TestSweep_NoProvider(t *testing.T) {
	reg := registry.New(memory.NewFileStore(t.TempDir()))
	m := evolution.New(reg, nil, nil)

	report := m.Sweep(context.Background())
	if report.Examined != 0 {
		t.Errorf("report = %+v, want no-op", report)
	}
}

func TestSweep_ProviderFailureSkips(t *testing.T) {
	e := newEnv(t)
	s := e.register(t, 21, 0.5, 0.5, nil)
	e.mock.Fail(provider.RoleCreative, errors.New("unavailable"))

	report := e.monitor.Sweep(context.Background())
	if report.Failed != 1 {
		t.Errorf("Failed = %d, want 1", report.Failed)
	}
	got, _ := e.reg.Get(s.ID)
	if got.LastOptimization != nil {
		t.Error("failed optimization must not stamp LastOptimization")
	}
}

func TestDecodeSplitPlan(t *testing.T) {
	if plan, err := evolution.DecodeSplitPlan(splitPlan); err != nil || len(plan.SubSpecialties) != 2 {
		t.Errorf("DecodeSplitPlan(valid) = %+v, %v", plan, err)
	}
	if _, err := evolution.DecodeSplitPlan(`{"split":true,"subSpecialties":[{"focus":""},{"focus":"b"}]}`); !errors.Is(err, evolution.ErrPlanParse) {
		t.Errorf("empty focus error = %v", err)
	}
	if _, err := evolution.DecodeSplitPlan("nope"); !errors.Is(err, evolution.ErrPlanParse) {
		t.Errorf("no JSON error = %v", err)
	}
	if _, err := evolution.DecodeSplitPlan(`{"split":false,"extra":1}`); !errors.Is(err, evolution.ErrPlanParse) {
		t.Errorf("unknown field error = %v", err)
	}
}

func TestMonitor_StartClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e := newEnv(t, evolution.WithConfig(evolution.Config{Interval: 5 * time.Millisecond}))
	s := e.register(t, 21, 0.5, 0.5, nil)
	e.mock.Reply(provider.RoleCreative, longRewrite)

	e.monitor.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, _ := e.reg.Get(s.ID); got.LastOptimization != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	e.monitor.Close()
	e.monitor.Close()

	if got, _ := e.reg.Get(s.ID); got.LastOptimization == nil {
		t.Error("background sweep never optimized the specialist")
	}
}
