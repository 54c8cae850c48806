package session

import "time"

// Config holds session tracking parameters.
type Config struct {
	MaxIdle time.Duration `json:"max_idle,omitempty"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{MaxIdle: 30 * time.Minute}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.MaxIdle > 0 {
		c.MaxIdle = source.MaxIdle
	}
}

// New creates a Tracker from configuration.
func New(cfg *Config) *Tracker {
	return NewTracker(cfg.MaxIdle)
}
