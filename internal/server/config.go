// Package server provides configuration helpers that define runtime defaults,
// environment loading, and validation for the relay.
package server

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// Defaults mirror the limits of the classic relay.
const (
	DefaultPort           = "10023"
	DefaultMaxListeners   = 4
	DefaultPoolSize       = 8
	DefaultMaxMessageSize = 128
	DefaultMaxNameLength  = 128
	DefaultWriteTimeout   = 10 * time.Second
	DefaultLookupTimeout  = 2 * time.Second
	DefaultWSMessageSize  = 64 * 1024
)

// RateLimitConfig defines optional per-slot message throttling. A zero Burst
// disables it.
type RateLimitConfig struct {
	Burst          int `validate:"min=0"`
	RefillInterval time.Duration
}

// WebSocketConfig configures the optional WebSocket gateway. An empty Addr
// disables it.
type WebSocketConfig struct {
	Addr           string
	AllowedOrigins []string
	MaxMessageSize int64 `validate:"min=1"`
}

// Config holds the relay configuration.
type Config struct {
	Host           string `validate:"omitempty,hostname_rfc1123|ip"`
	Port           string `validate:"required,max=127"`
	MaxListeners   int    `validate:"min=1,max=16"`
	PoolSize       int    `validate:"min=1,max=1024"`
	MaxMessageSize int    `validate:"min=2,max=65536"`
	MaxNameLength  int    `validate:"min=2,max=1025"`
	WriteTimeout   time.Duration
	LookupTimeout  time.Duration
	RateLimit      RateLimitConfig
	WebSocket      WebSocketConfig
}

// envConfig is the environment view of Config. Unset variables leave the
// defaults untouched.
type envConfig struct {
	Host            string        `env:"CHATSERV_HOST"`
	Port            string        `env:"CHATSERV_PORT"`
	MaxListeners    int           `env:"CHATSERV_MAX_LISTENERS"`
	PoolSize        int           `env:"CHATSERV_POOL_SIZE"`
	MaxMessageSize  int           `env:"CHATSERV_MAX_MESSAGE_SIZE"`
	WriteTimeout    time.Duration `env:"CHATSERV_WRITE_TIMEOUT"`
	LookupTimeout   time.Duration `env:"CHATSERV_LOOKUP_TIMEOUT"`
	RateLimitBurst  int           `env:"CHATSERV_RATE_LIMIT_BURST"`
	RateLimitRefill time.Duration `env:"CHATSERV_RATE_LIMIT_REFILL_INTERVAL"`
	WebSocketAddr   string        `env:"CHATSERV_WS_ADDR"`
	AllowedOrigins  string        `env:"CHATSERV_ALLOWED_ORIGINS"`
}

var validate = validator.New()

func defaultConfig() Config {
	return Config{
		Port:           DefaultPort,
		MaxListeners:   DefaultMaxListeners,
		PoolSize:       DefaultPoolSize,
		MaxMessageSize: DefaultMaxMessageSize,
		MaxNameLength:  DefaultMaxNameLength,
		WriteTimeout:   DefaultWriteTimeout,
		LookupTimeout:  DefaultLookupTimeout,
		RateLimit: RateLimitConfig{
			RefillInterval: time.Second,
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			MaxMessageSize: DefaultWSMessageSize,
		},
	}
}

// sanitizeConfig replaces unset or negative values with defaults.
func sanitizeConfig(cfg Config) Config {
	def := defaultConfig()

	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Port == "" {
		cfg.Port = def.Port
	}
	if cfg.MaxListeners <= 0 {
		cfg.MaxListeners = def.MaxListeners
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = def.PoolSize
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.MaxNameLength <= 0 {
		cfg.MaxNameLength = def.MaxNameLength
	}
	if cfg.WriteTimeout < 0 {
		cfg.WriteTimeout = 0
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = def.LookupTimeout
	}
	if cfg.RateLimit.Burst < 0 {
		cfg.RateLimit.Burst = 0
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if cfg.WebSocket.MaxMessageSize <= 0 {
		cfg.WebSocket.MaxMessageSize = def.WebSocket.MaxMessageSize
	}
	cfg.WebSocket.AllowedOrigins = append([]string(nil), cfg.WebSocket.AllowedOrigins...)

	return cfg
}

// Validate checks every field against its declared bounds.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config from CHATSERV_* environment variables,
// falling back to defaults for anything unset.
func NewConfigFromEnv() (*Config, error) {
	cfg := defaultConfig()

	var e envConfig
	if _, err := env.UnmarshalFromEnviron(&e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	cfg.Host = lo.Ternary(e.Host != "", e.Host, cfg.Host)
	cfg.Port = lo.Ternary(e.Port != "", e.Port, cfg.Port)
	cfg.MaxListeners = positiveOr(e.MaxListeners, cfg.MaxListeners)
	cfg.PoolSize = positiveOr(e.PoolSize, cfg.PoolSize)
	cfg.MaxMessageSize = positiveOr(e.MaxMessageSize, cfg.MaxMessageSize)
	cfg.WriteTimeout = positiveOr(e.WriteTimeout, cfg.WriteTimeout)
	cfg.LookupTimeout = positiveOr(e.LookupTimeout, cfg.LookupTimeout)
	cfg.RateLimit.Burst = positiveOr(e.RateLimitBurst, cfg.RateLimit.Burst)
	cfg.RateLimit.RefillInterval = positiveOr(e.RateLimitRefill, cfg.RateLimit.RefillInterval)
	cfg.WebSocket.Addr = lo.Ternary(e.WebSocketAddr != "", e.WebSocketAddr, cfg.WebSocket.Addr)
	if e.AllowedOrigins != "" {
		cfg.WebSocket.AllowedOrigins = parseOrigins(e.AllowedOrigins)
	}

	return &cfg, nil
}

func positiveOr[T int | time.Duration](value, fallback T) T {
	if value > 0 {
		return value
	}
	return fallback
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return lo.Compact(parts)
}
