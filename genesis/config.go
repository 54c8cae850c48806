package genesis

import "time"

// Config holds genesis parameters.
type Config struct {
	Threshold   int           `json:"threshold,omitempty"`
	MaxExamples int           `json:"max_examples,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// DefaultConfig returns the default genesis configuration.
func DefaultConfig() Config {
	return Config{
		Threshold:   3,
		MaxExamples: 5,
		Timeout:     30 * time.Second,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Threshold > 0 {
		c.Threshold = source.Threshold
	}
	if source.MaxExamples > 0 {
		c.MaxExamples = source.MaxExamples
	}
	if source.Timeout > 0 {
		c.Timeout = source.Timeout
	}
}
