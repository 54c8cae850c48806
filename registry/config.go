package registry

import "time"

// Config holds registry persistence parameters.
type Config struct {
	AutosaveDebounce time.Duration `json:"autosave_debounce,omitempty"`
	SaveInterval     time.Duration `json:"save_interval,omitempty"`
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{
		AutosaveDebounce: 5 * time.Second,
		SaveInterval:     5 * time.Minute,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.AutosaveDebounce > 0 {
		c.AutosaveDebounce = source.AutosaveDebounce
	}
	if source.SaveInterval > 0 {
		c.SaveInterval = source.SaveInterval
	}
}
