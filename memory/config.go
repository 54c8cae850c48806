package memory

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Storage backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Config holds document store initialization parameters.
type Config struct {
	Backend     string `json:"backend,omitempty"`      // "file" (default) or "redis".
	Path        string `json:"path,omitempty"`         // FileStore root directory.
	RedisAddr   string `json:"redis_addr,omitempty"`   // host:port of the Redis server.
	RedisPrefix string `json:"redis_prefix,omitempty"` // hash name prefix.
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		Backend:     BackendFile,
		Path:        "data/specialists",
		RedisPrefix: "specialists",
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Backend != "" {
		c.Backend = source.Backend
	}
	if source.Path != "" {
		c.Path = source.Path
	}
	if source.RedisAddr != "" {
		c.RedisAddr = source.RedisAddr
	}
	if source.RedisPrefix != "" {
		c.RedisPrefix = source.RedisPrefix
	}
}

// NewStore creates a Store from configuration.
func NewStore(cfg *Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("file store requires a path")
		}
		return NewFileStore(cfg.Path), nil
	case BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis store requires redis_addr")
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return NewRedisStore(client, cfg.RedisPrefix), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
}
