// Package mock provides a scripted Provider for tests.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/tailored-agentic-units/specialists/provider"
)

// ErrExhausted is returned when a role has no scripted responses left and
// no fallback is configured.
var ErrExhausted = errors.New("mock provider: no scripted response")

// Call records one invocation.
type Call struct {
	Role    provider.Role
	Prompt  string
	Options provider.Options
}

// Provider replays queued responses per role. Queued errors are returned
// in place of a response. Safe for concurrent use.
type Provider struct {
	mu       sync.Mutex
	queues   map[provider.Role][]result
	fallback func(role provider.Role, prompt string) (string, error)
	calls    []Call
}

type result struct {
	text string
	err  error
}

// New returns an empty mock. Without scripted responses or a fallback every
// call fails with ErrExhausted.
func New() *Provider {
	return &Provider{queues: make(map[provider.Role][]result)}
}

// Reply queues text responses for role.
func (p *Provider) Reply(role provider.Role, texts ...string) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, text := range texts {
		p.queues[role] = append(p.queues[role], result{text: text})
	}
	return p
}

// Fail queues an error for role.
func (p *Provider) Fail(role provider.Role, err error) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queues[role] = append(p.queues[role], result{err: err})
	return p
}

// Fallback answers any call whose role queue is empty.
func (p *Provider) Fallback(fn func(role provider.Role, prompt string) (string, error)) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallback = fn
	return p
}

func (p *Provider) Invoke(ctx context.Context, role provider.Role, prompt string, opts provider.Options) (*provider.Response, error) {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Role: role, Prompt: prompt, Options: opts})

	var next result
	queue := p.queues[role]
	switch {
	case len(queue) > 0:
		next = queue[0]
		p.queues[role] = queue[1:]
	case p.fallback != nil:
		fn := p.fallback
		p.mu.Unlock()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := fn(role, prompt)
		if err != nil {
			return nil, err
		}
		return &provider.Response{Text: text, Model: "mock"}, nil
	default:
		next = result{err: ErrExhausted}
	}
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if next.err != nil {
		return nil, next.err
	}
	return &provider.Response{Text: next.text, Model: "mock"}, nil
}

// Calls returns a copy of every recorded invocation.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount returns how many calls were made, optionally for one role only.
func (p *Provider) CallCount(roles ...provider.Role) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(roles) == 0 {
		return len(p.calls)
	}
	n := 0
	for _, c := range p.calls {
		for _, r := range roles {
			if c.Role == r {
				n++
			}
		}
	}
	return n
}
