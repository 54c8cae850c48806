package provider

import (
	"fmt"
	"net/http"
	"time"
)

// Provider kinds.
const (
	KindNone   = "none"
	KindOpenAI = "openai"
)

// Config holds reasoning provider initialization parameters.
type Config struct {
	Kind       string        `json:"kind,omitempty"`     // "none" (default) or "openai".
	BaseURL    string        `json:"base_url,omitempty"` // OpenAI-compatible endpoint root.
	Model      string        `json:"model,omitempty"`
	APIKey     string        `json:"api_key,omitempty"`
	Rate       float64       `json:"rate,omitempty"` // calls per second; 0 disables limiting.
	Burst      int           `json:"burst,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty"`
	MaxRetries int           `json:"max_retries,omitempty"`
}

// DefaultConfig returns a configuration with no provider.
func DefaultConfig() Config {
	return Config{
		Kind:       KindNone,
		BaseURL:    "http://localhost:11434/v1",
		Rate:       2,
		Burst:      4,
		Timeout:    30 * time.Second,
		MaxRetries: 2,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Kind != "" {
		c.Kind = source.Kind
	}
	if source.BaseURL != "" {
		c.BaseURL = source.BaseURL
	}
	if source.Model != "" {
		c.Model = source.Model
	}
	if source.APIKey != "" {
		c.APIKey = source.APIKey
	}
	if source.Rate > 0 {
		c.Rate = source.Rate
	}
	if source.Burst > 0 {
		c.Burst = source.Burst
	}
	if source.Timeout > 0 {
		c.Timeout = source.Timeout
	}
	if source.MaxRetries > 0 {
		c.MaxRetries = source.MaxRetries
	}
}

// New creates a Provider from configuration. Kind "none" returns a nil
// Provider and no error; subsystems treat that as "reasoning unavailable".
func New(cfg *Config) (Provider, error) {
	switch cfg.Kind {
	case "", KindNone:
		return nil, nil
	case KindOpenAI:
		if cfg.Model == "" {
			return nil, fmt.Errorf("openai provider requires a model")
		}
		client := NewOpenAI(cfg.BaseURL, cfg.Model, cfg.APIKey,
			WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
			WithMaxRetries(cfg.MaxRetries),
		)
		return NewLimited(client, cfg.Rate, cfg.Burst, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, cfg.Kind)
	}
}
