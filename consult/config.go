package consult

import "time"

// Transport modes.
const (
	TransportLocal = "local"
	TransportBus   = "bus"
)

// Config holds consultation parameters.
type Config struct {
	MaxDepth           int           `json:"max_depth,omitempty"`
	Timeout            time.Duration `json:"timeout,omitempty"`
	Fanout             int           `json:"fanout,omitempty"`
	MinExpertise       float64       `json:"min_expertise,omitempty"`
	ConsensusThreshold float64       `json:"consensus_threshold,omitempty"`
	Transport          string        `json:"transport,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		MaxDepth:           3,
		Timeout:            10 * time.Second,
		Fanout:             3,
		MinExpertise:       0.3,
		ConsensusThreshold: 0.7,
		Transport:          TransportLocal,
	}
}

func (c *Config) Merge(source *Config) {
	if source.MaxDepth > 0 {
		c.MaxDepth = source.MaxDepth
	}
	if source.Timeout > 0 {
		c.Timeout = source.Timeout
	}
	if source.Fanout > 0 {
		c.Fanout = source.Fanout
	}
	if source.MinExpertise > 0 {
		c.MinExpertise = source.MinExpertise
	}
	if source.ConsensusThreshold > 0 {
		c.ConsensusThreshold = source.ConsensusThreshold
	}
	if source.Transport != "" {
		c.Transport = source.Transport
	}
}
