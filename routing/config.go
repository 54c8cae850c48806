package routing

// Config holds router parameters.
type Config struct {
	MinConfidence      float64 `json:"min_confidence,omitempty"`
	HistoryMinAttempts int     `json:"history_min_attempts,omitempty"`
	HistoryWeight      float64 `json:"history_weight,omitempty"`
	Alternatives       int     `json:"alternatives,omitempty"`
}

// DefaultConfig returns the default router configuration.
func DefaultConfig() Config {
	return Config{
		MinConfidence:      0.35,
		HistoryMinAttempts: 3,
		HistoryWeight:      0.3,
		Alternatives:       2,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.MinConfidence > 0 {
		c.MinConfidence = source.MinConfidence
	}
	if source.HistoryMinAttempts > 0 {
		c.HistoryMinAttempts = source.HistoryMinAttempts
	}
	if source.HistoryWeight > 0 {
		c.HistoryWeight = source.HistoryWeight
	}
	if source.Alternatives > 0 {
		c.Alternatives = source.Alternatives
	}
}
