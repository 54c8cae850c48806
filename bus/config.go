package bus

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Bus backends.
const (
	BackendLocal = "local"
	BackendNATS  = "nats"
)

// Config defines configuration for a Bus.
type Config struct {
	Backend           string `json:"backend,omitempty"`
	Name              string `json:"name,omitempty"`
	ChannelBufferSize int    `json:"channel_buffer_size,omitempty"`
	NATSURL           string `json:"nats_url,omitempty"`
	SubjectPrefix     string `json:"subject_prefix,omitempty"`
}

// DefaultConfig returns a Config for an in-process bus.
func DefaultConfig() Config {
	return Config{
		Backend:           BackendLocal,
		Name:              "specialists",
		ChannelBufferSize: 100,
		NATSURL:           nats.DefaultURL,
	}
}

func (c *Config) Merge(source *Config) {
	if source.Backend != "" {
		c.Backend = source.Backend
	}
	if source.Name != "" {
		c.Name = source.Name
	}
	if source.ChannelBufferSize > 0 {
		c.ChannelBufferSize = source.ChannelBufferSize
	}
	if source.NATSURL != "" {
		c.NATSURL = source.NATSURL
	}
	if source.SubjectPrefix != "" {
		c.SubjectPrefix = source.SubjectPrefix
	}
}

// New creates a Bus from configuration. A NATS bus created here owns its
// connection and closes it on Close.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Bus, error) {
	switch cfg.Backend {
	case "", BackendLocal:
		return NewLocal(ctx, cfg, logger), nil
	case BackendNATS:
		nc, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.Name))
		if err != nil {
			return nil, fmt.Errorf("connect nats %s: %w", cfg.NATSURL, err)
		}
		b := NewNATS(nc, cfg.SubjectPrefix, logger)
		b.owned = true
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBus, cfg.Backend)
	}
}
