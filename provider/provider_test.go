package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tailored-agentic-units/specialists/provider"
	"github.com/tailored-agentic-units/specialists/provider/mock"
)

func TestText(t *testing.T) {
	tests := []struct {
		name    string
		p       provider.Provider
		want    string
		wantErr error
	}{
		{name: "nil provider", p: nil, wantErr: provider.ErrNoProvider},
		{name: "blank text", p: mock.New().Reply(provider.RoleCreative, "   \n"), wantErr: provider.ErrEmptyResponse},
		{name: "trimmed text", p: mock.New().Reply(provider.RoleCreative, "  hello  "), want: "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := provider.Text(context.Background(), tt.p, provider.RoleCreative, "prompt", provider.Options{})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Text() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPersona(t *testing.T) {
	for _, role := range []provider.Role{provider.RoleStrategic, provider.RoleCreative, provider.RoleAnalytical, provider.RoleGuardian} {
		if provider.Persona(role) == "" {
			t.Errorf("Persona(%s) is empty", role)
		}
	}
	if provider.Persona("unknown") != "" {
		t.Error("Persona(unknown) should be empty")
	}
}

func TestMock_ScriptedAndFallback(t *testing.T) {
	m := mock.New().
		Reply(provider.RoleStrategic, "first").
		Fail(provider.RoleStrategic, errors.New("boom"))

	ctx := context.Background()
	resp, err := m.Invoke(ctx, provider.RoleStrategic, "a", provider.Options{})
	if err != nil || resp.Text != "first" {
		t.Fatalf("first Invoke() = %v, %v", resp, err)
	}
	if _, err := m.Invoke(ctx, provider.RoleStrategic, "b", provider.Options{}); err == nil {
		t.Fatal("second Invoke() should return the queued error")
	}
	if _, err := m.Invoke(ctx, provider.RoleStrategic, "c", provider.Options{}); !errors.Is(err, mock.ErrExhausted) {
		t.Fatalf("third Invoke() error = %v, want ErrExhausted", err)
	}

	m.Fallback(func(role provider.Role, prompt string) (string, error) { return "echo:" + prompt, nil })
	resp, err = m.Invoke(ctx, provider.RoleGuardian, "d", provider.Options{})
	if err != nil || resp.Text != "echo:d" {
		t.Fatalf("fallback Invoke() = %v, %v", resp, err)
	}

	if m.CallCount() != 4 {
		t.Errorf("CallCount() = %d, want 4", m.CallCount())
	}
	if m.CallCount(provider.RoleStrategic) != 3 {
		t.Errorf("CallCount(strategic) = %d, want 3", m.CallCount(provider.RoleStrategic))
	}
}

func TestLimited_Timeout(t *testing.T) {
	slow := provider.Func(func(ctx context.Context, role provider.Role, prompt string, opts provider.Options) (*provider.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	l := provider.NewLimited(slow, 0, 0, 20*time.Millisecond)
	_, err := l.Invoke(context.Background(), provider.RoleAnalytical, "x", provider.Options{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Invoke() error = %v, want DeadlineExceeded", err)
	}
}

func TestLimited_RateWaitRespectsContext(t *testing.T) {
	var calls atomic.Int32
	fast := provider.Func(func(ctx context.Context, role provider.Role, prompt string, opts provider.Options) (*provider.Response, error) {
		calls.Add(1)
		return &provider.Response{Text: "ok"}, nil
	})

	l := provider.NewLimited(fast, 0.001, 1, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := l.Invoke(ctx, provider.RoleAnalytical, "x", provider.Options{}); err != nil {
		t.Fatalf("first Invoke() error = %v", err)
	}
	if _, err := l.Invoke(ctx, provider.RoleAnalytical, "x", provider.Options{}); err == nil {
		t.Fatal("second Invoke() should fail waiting for a token")
	}
	if calls.Load() != 1 {
		t.Errorf("underlying calls = %d, want 1", calls.Load())
	}
}

func TestOpenAI_Invoke(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"m1","choices":[{"message":{"role":"assistant","content":"answer"}}]}`))
	}))
	defer srv.Close()

	client := provider.NewOpenAI(srv.URL+"/v1/", "m1", "secret")
	resp, err := client.Invoke(context.Background(), provider.RoleAnalytical, "question", provider.Options{})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if resp.Text != "answer" {
		t.Errorf("Text = %q, want answer", resp.Text)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "question" {
		t.Errorf("request messages = %+v", got.Messages)
	}
}

func TestOpenAI_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"recovered"}}]}`))
	}))
	defer srv.Close()

	client := provider.NewOpenAI(srv.URL, "m", "", provider.WithMaxRetries(1))
	resp, err := client.Invoke(context.Background(), provider.RoleCreative, "x", provider.Options{})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if resp.Text != "recovered" || hits.Load() != 2 {
		t.Errorf("Text = %q after %d hits", resp.Text, hits.Load())
	}
}

func TestOpenAI_ClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := provider.NewOpenAI(srv.URL, "m", "", provider.WithMaxRetries(3))
	if _, err := client.Invoke(context.Background(), provider.RoleCreative, "x", provider.Options{}); err == nil {
		t.Fatal("Invoke() should fail on 400")
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
}

func TestNew(t *testing.T) {
	cfg := provider.DefaultConfig()
	p, err := provider.New(&cfg)
	if err != nil || p != nil {
		t.Fatalf("New(none) = %v, %v; want nil, nil", p, err)
	}

	cfg.Kind = provider.KindOpenAI
	if _, err := provider.New(&cfg); err == nil {
		t.Error("New(openai) without model should fail")
	}

	cfg.Model = "llama3"
	if p, err := provider.New(&cfg); err != nil || p == nil {
		t.Errorf("New(openai) = %v, %v", p, err)
	}

	cfg.Kind = "oracle"
	if _, err := provider.New(&cfg); !errors.Is(err, provider.ErrUnknownKind) {
		t.Errorf("New(oracle) error = %v", err)
	}
}
