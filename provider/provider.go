// Package provider defines the reasoning capability consumed by genesis,
// evolution, and consultation. A Provider accepts a role and a prompt and
// returns text; callers own any structured parsing of that text.
package provider

import (
	"context"
	"errors"
	"strings"
)

// Role selects the reasoning profile used for a call.
type Role string

const (
	RoleStrategic  Role = "strategic"
	RoleCreative   Role = "creative"
	RoleAnalytical Role = "analytical"
	RoleGuardian   Role = "guardian"
)

var (
	// ErrNoProvider is returned when a subsystem needs reasoning but none is configured.
	ErrNoProvider = errors.New("no reasoning provider configured")
	// ErrEmptyResponse is returned when a provider answers with no usable text.
	ErrEmptyResponse = errors.New("empty provider response")
	// ErrUnknownKind is returned by New for an unrecognized provider kind.
	ErrUnknownKind = errors.New("unknown provider kind")
)

// Options tunes a single call. Zero values defer to the provider's defaults.
type Options struct {
	Temperature float64
	MaxTokens   int
	System      string
}

// Response is the text produced by a provider call.
type Response struct {
	Text  string
	Model string
}

// Provider invokes reasoning for a role.
type Provider interface {
	Invoke(ctx context.Context, role Role, prompt string, opts Options) (*Response, error)
}

// Func adapts a plain function to Provider.
type Func func(ctx context.Context, role Role, prompt string, opts Options) (*Response, error)

func (f Func) Invoke(ctx context.Context, role Role, prompt string, opts Options) (*Response, error) {
	return f(ctx, role, prompt, opts)
}

// Text invokes p and returns trimmed text, mapping blank output to
// ErrEmptyResponse.
func Text(ctx context.Context, p Provider, role Role, prompt string, opts Options) (string, error) {
	if p == nil {
		return "", ErrNoProvider
	}
	resp, err := p.Invoke(ctx, role, prompt, opts)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Persona returns the system framing used for a role when the caller does
// not supply one.
func Persona(role Role) string {
	switch role {
	case RoleStrategic:
		return "You are a strategic planner. Reason about structure, scope, and long-range consequences. Answer precisely."
	case RoleCreative:
		return "You are a creative author. Produce vivid, original, well-organized writing."
	case RoleAnalytical:
		return "You are an analytical reasoner. Work step by step, check facts, and state assumptions."
	case RoleGuardian:
		return "You are a careful guardian. Weigh risks, ethics, and safety before recommending anything."
	default:
		return ""
	}
}
