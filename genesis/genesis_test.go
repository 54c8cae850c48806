package genesis_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tailored-agentic-units/specialists/genesis"
	"github.com/tailored-agentic-units/specialists/memory"
	"github.com/tailored-agentic-units/specialists/provider"
	"github.com/tailored-agentic-units/specialists/provider/mock"
	"github.com/tailored-agentic-units/specialists/registry"
	"github.com/tailored-agentic-units/specialists/routing"
	"github.com/tailored-agentic-units/specialists/specialist"
)

const blueprintJSON = "```json\n" + `{"domain":"Physics","specialization":"Quantum Entanglement","keywords":["quantum","entanglement","qubits"],"rationale":"Repeated questions","temperature":0.5}` + "\n```"

func TestSignature(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{query: "Explain quantum entanglement, please!", want: "entanglement_explain_please"},
		{query: "please EXPLAIN quantum entanglement", want: "entanglement_explain_please"},
		{query: "what is it", want: ""},
		{query: "How does photosynthesis work?", want: "photosynthesis"},
		{query: "don't-stop believing", want: "believing_dontstop"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := genesis.Signature(tt.query); got != tt.want {
				t.Errorf("Signature(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}

func TestDecodeBlueprint(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{name: "fenced", text: blueprintJSON},
		{name: "prose around", text: `Sure! {"domain":"D","specialization":"S","keywords":["k"],"rationale":"","temperature":0} Hope that helps.`},
		{name: "no object", text: "I cannot help with that", wantErr: true},
		{name: "unknown field", text: `{"domain":"D","specialization":"S","keywords":["k"],"mood":"happy"}`, wantErr: true},
		{name: "missing keywords", text: `{"domain":"D","specialization":"S","keywords":[" "]}`, wantErr: true},
		{name: "missing domain", text: `{"specialization":"S","keywords":["k"]}`, wantErr: true},
		{name: "bad temperature", text: `{"domain":"D","specialization":"S","keywords":["k"],"temperature":9}`, wantErr: true},
		{name: "wrong type", text: `{"domain":"D","specialization":"S","keywords":"k"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bp, err := genesis.DecodeBlueprint(tt.text)
			if tt.wantErr {
				if !errors.Is(err, genesis.ErrGenesisParse) {
					t.Fatalf("DecodeBlueprint() error = %v, want ErrGenesisParse", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeBlueprint() error = %v", err)
			}
			if bp.Temperature <= 0 {
				t.Errorf("Temperature = %v, want default applied", bp.Temperature)
			}
		})
	}
}

func newEnv(t *testing.T, p provider.Provider) (*genesis.Engine, *registry.Registry, string) {
	t.Helper()
	root := t.TempDir()
	reg := registry.New(memory.NewFileStore(root))
	return genesis.New(reg, p), reg, root
}

func TestEngine_Observe(t *testing.T) {
	e, _, _ := newEnv(t, nil)

	for i := range 2 {
		if _, fire := e.Observe(specialist.PillarLogos, "explain quantum entanglement"); fire {
			t.Fatalf("Observe() #%d fired early", i+1)
		}
	}
	if _, fire := e.Observe(specialist.PillarAurora, "explain quantum entanglement"); fire {
		t.Fatal("buckets must be per pillar")
	}

	examples, fire := e.Observe(specialist.PillarLogos, "Explain quantum entanglement?")
	if !fire || len(examples) != 3 {
		t.Fatalf("third Observe() = %v, %v; want fire with 3 examples", examples, fire)
	}

	pending := e.Pending()
	if len(pending) != 1 || pending[0].Pillar != specialist.PillarAurora {
		t.Errorf("Pending() = %+v, want only the AURORA bucket", pending)
	}
}

func TestEngine_ObserveCapsExamples(t *testing.T) {
	reg := registry.New(memory.NewFileStore(t.TempDir()))
	e := genesis.New(reg, nil, genesis.WithConfig(genesis.Config{Threshold: 10, MaxExamples: 5}))

	for i := range 7 {
		e.Observe(specialist.PillarLogos, "explain quantum entanglement "+string(rune('a'+i)))
	}
	pending := e.Pending()
	if len(pending) != 1 {
		t.Fatalf("Pending() = %d buckets, want 1", len(pending))
	}
	if pending[0].Hits != 7 || len(pending[0].Examples) != 5 {
		t.Errorf("bucket = %d hits, %d examples; want 7, 5", pending[0].Hits, len(pending[0].Examples))
	}
	if pending[0].Examples[0] != "explain quantum entanglement c" {
		t.Errorf("oldest retained = %q, want the third query", pending[0].Examples[0])
	}
}

func TestEngine_AccumulationTriggersOnce(t *testing.T) {
	m := mock.New().
		Reply(provider.RoleStrategic, blueprintJSON).
		Reply(provider.RoleCreative, "You are a quantum entanglement specialist.")
	e, reg, _ := newEnv(t, m)
	ctx := context.Background()

	for range 3 {
		e.TrackMiss(ctx, specialist.PillarLogos, "explain quantum entanglement please")
	}
	e.TrackMiss(ctx, specialist.PillarLogos, "summarize medieval history")
	e.Wait()

	if n := m.CallCount(provider.RoleStrategic); n != 1 {
		t.Errorf("strategic calls = %d, want 1", n)
	}
	if n := len(reg.ListActive(specialist.PillarLogos)); n != 1 {
		t.Errorf("LOGOS population = %d, want 1", n)
	}
}

func TestEngine_Construct(t *testing.T) {
	m := mock.New().
		Reply(provider.RoleStrategic, blueprintJSON).
		Reply(provider.RoleCreative, "You are a quantum entanglement specialist.")
	e, reg, root := newEnv(t, m)

	s, err := e.Construct(context.Background(), genesis.Seed{
		Pillar:   specialist.PillarLogos,
		Examples: []string{"explain entanglement"},
		ParentID: "logos_physics-01234567",
	})
	if err != nil {
		t.Fatalf("Construct() error = %v", err)
	}

	if s.TemplateID != "gen_logos_quantum_entanglement" {
		t.Errorf("TemplateID = %q", s.TemplateID)
	}
	if s.ParentSpecialistID != "logos_physics-01234567" || !s.Active || !s.Spawned {
		t.Errorf("specialist = %+v", s)
	}
	if tid, ok := specialist.TemplateIDFrom(s.ID); !ok || tid != s.TemplateID {
		t.Errorf("id %q does not encode template", s.ID)
	}

	tmpl, ok := reg.Template(s.TemplateID)
	if !ok || !tmpl.Synthesized || tmpl.Instructions == "" {
		t.Errorf("template = %+v, %v", tmpl, ok)
	}
	for _, path := range []string{
		filepath.Join(root, "templates", s.TemplateID+".json"),
		filepath.Join(root, "specialists", s.ID+".json"),
	} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("document not persisted: %v", err)
		}
	}

	m.Reply(provider.RoleStrategic, blueprintJSON).Reply(provider.RoleCreative, "Second author.")
	second, err := e.Create(context.Background(), specialist.PillarLogos, nil)
	if err != nil {
		t.Fatalf("second Create() error = %v", err)
	}
	if second.TemplateID != "gen_logos_quantum_entanglement_2" {
		t.Errorf("second TemplateID = %q, want unique suffix", second.TemplateID)
	}
}

func TestEngine_MalformedDesignLeavesStateUntouched(t *testing.T) {
	m := mock.New().Reply(provider.RoleStrategic, "Here are my thoughts, no JSON.")
	e, reg, _ := newEnv(t, m)

	_, err := e.Create(context.Background(), specialist.PillarAurora, []string{"x"})
	if !errors.Is(err, genesis.ErrGenesisParse) {
		t.Fatalf("Create() error = %v, want ErrGenesisParse", err)
	}
	if m.CallCount(provider.RoleCreative) != 0 {
		t.Error("creative stage should not run after a parse failure")
	}
	if len(reg.List()) != 0 || len(reg.Templates()) != 0 {
		t.Error("registry changed after a failed genesis")
	}
}

func TestEngine_RegisterFailureRemovesTemplate(t *testing.T) {
	m := mock.New().
		Reply(provider.RoleStrategic, blueprintJSON).
		Reply(provider.RoleCreative, "You are a quantum entanglement specialist.")
	e, reg, root := newEnv(t, m)
	if err := reg.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	_, err := e.Create(context.Background(), specialist.PillarLogos, []string{"explain entanglement"})
	if !errors.Is(err, registry.ErrClosed) {
		t.Fatalf("Create() error = %v, want ErrClosed", err)
	}
	if _, ok := reg.Template("gen_logos_quantum_entanglement"); ok {
		t.Error("template still registered after a failed spawn")
	}
	if _, err := os.Stat(filepath.Join(root, "templates", "gen_logos_quantum_entanglement.json")); !os.IsNotExist(err) {
		t.Errorf("template document left behind: %v", err)
	}
}

func TestEngine_ProviderFailureAborts(t *testing.T) {
	m := mock.New().
		Reply(provider.RoleStrategic, blueprintJSON).
		Fail(provider.RoleCreative, errors.New("quota"))
	e, reg, _ := newEnv(t, m)

	if _, err := e.Create(context.Background(), specialist.PillarAurora, nil); err == nil {
		t.Fatal("Create() should fail when the creative stage fails")
	}
	if len(reg.List()) != 0 {
		t.Error("registry changed after a failed genesis")
	}
}

func TestEngine_NoProvider(t *testing.T) {
	e, reg, _ := newEnv(t, nil)

	if _, err := e.Create(context.Background(), specialist.PillarLogos, nil); !errors.Is(err, provider.ErrNoProvider) {
		t.Errorf("Create() error = %v, want ErrNoProvider", err)
	}
	for range 3 {
		e.TrackMiss(context.Background(), specialist.PillarLogos, "explain quantum entanglement")
	}
	e.Wait()
	if len(reg.List()) != 0 {
		t.Error("nil provider should never create specialists")
	}
}

func TestEngine_TimeoutSkipsCycle(t *testing.T) {
	slow := provider.Func(func(ctx context.Context, _ provider.Role, _ string, _ provider.Options) (*provider.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	reg := registry.New(memory.NewFileStore(t.TempDir()))
	e := genesis.New(reg, slow, genesis.WithConfig(genesis.Config{Timeout: 20 * time.Millisecond}))

	if _, err := e.Create(context.Background(), specialist.PillarLogos, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Create() error = %v, want DeadlineExceeded", err)
	}
}

func TestScenarioB_EmptyPillarMisses(t *testing.T) {
	m := mock.New().
		Reply(provider.RoleStrategic, blueprintJSON).
		Reply(provider.RoleCreative, "You are a quantum entanglement specialist.")
	e, reg, _ := newEnv(t, m)
	router := routing.New(reg, routing.WithMissHandler(e.TrackMiss))
	ctx := context.Background()

	for _, q := range []string{
		"explain quantum entanglement",
		"Explain quantum entanglement?",
		"explain QUANTUM entanglement!",
	} {
		if _, err := router.Route(ctx, q, specialist.PillarPrometheus, routing.Context{}); !errors.Is(err, routing.ErrRoutingMiss) {
			t.Fatalf("Route(%q) error = %v, want miss", q, err)
		}
	}
	e.Wait()

	if n := m.CallCount(provider.RoleStrategic); n != 1 {
		t.Errorf("genesis invocations = %d, want 1", n)
	}
	if n := len(reg.ListActive(specialist.PillarPrometheus)); n != 1 {
		t.Errorf("PROMETHEUS population = %d, want 1", n)
	}
}
