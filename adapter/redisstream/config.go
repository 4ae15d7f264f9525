package redisstream

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/trickstertwo/xevent"
)

// Config for the Redis Streams failure sink.
type Config struct {
	// Connection
	Addr          string `env:"ADDR"`
	Username      string `env:"USERNAME"`
	Password      string `env:"PASSWORD"`
	DB            int    `env:"DB"`
	TLS           bool   `env:"TLS"`
	TLSServerName string `env:"TLS_SERVER_NAME"`

	// Stream management
	Stream       string        `env:"STREAM"`
	MaxLenApprox int64         `env:"MAX_LEN_APPROX"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT"`
	// Buffer bounds the records waiting for the writer goroutine.
	Buffer int `env:"BUFFER"`

	// Codec names the xevent codec used for payloads.
	Codec string `env:"CODEC"`
	// IncludeEscalations also records the escalated signal, not only failures.
	IncludeEscalations bool `env:"INCLUDE_ESCALATIONS"`
}

// Defaults returns a Config with production-safe defaults.
func Defaults() Config {
	return Config{
		Addr:         "127.0.0.1:6379",
		Stream:       "xevent:failures",
		MaxLenApprox: 100_000,
		WriteTimeout: 2 * time.Second,
		Buffer:       defaultBuffer,
		Codec:        "json",
	}
}

// Validate checks Config for production readiness.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr required")
	}
	if c.Stream == "" {
		return fmt.Errorf("config: stream required")
	}
	if c.MaxLenApprox < 0 {
		return fmt.Errorf("config: max_len_approx must be >= 0, got %d", c.MaxLenApprox)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("config: write_timeout must be > 0, got %v", c.WriteTimeout)
	}
	if c.Buffer < 0 {
		return fmt.Errorf("config: buffer must be >= 0, got %d", c.Buffer)
	}
	if _, err := xevent.NewCodec(c.Codec); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ConfigFromEnv overlays XEVENT_REDIS_* environment variables on Defaults.
func ConfigFromEnv() (Config, error) {
	c := Defaults()
	if err := env.ParseWithOptions(&c, env.Options{Prefix: "XEVENT_REDIS_"}); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

// ConfigFromMap safely converts generic map to Config with defaults.
func ConfigFromMap(m map[string]any) Config {
	c := Defaults()

	if v, ok := m["addr"].(string); ok && v != "" {
		c.Addr = v
	}
	if v, ok := m["username"].(string); ok {
		c.Username = v
	}
	if v, ok := m["password"].(string); ok {
		c.Password = v
	}
	if v, ok := m["db"].(int); ok {
		c.DB = v
	}
	if v, ok := m["tls"].(bool); ok {
		c.TLS = v
	}
	if v, ok := m["tls_server_name"].(string); ok {
		c.TLSServerName = v
	}
	if v, ok := m["stream"].(string); ok && v != "" {
		c.Stream = v
	}
	if v, ok := m["max_len_approx"].(int64); ok && v >= 0 {
		c.MaxLenApprox = v
	}
	switch v := m["write_timeout"].(type) {
	case time.Duration:
		if v > 0 {
			c.WriteTimeout = v
		}
	case string:
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.WriteTimeout = d
		}
	}
	if v, ok := m["buffer"].(int); ok && v > 0 {
		c.Buffer = v
	}
	if v, ok := m["codec"].(string); ok && v != "" {
		c.Codec = v
	}
	if v, ok := m["include_escalations"].(bool); ok {
		c.IncludeEscalations = v
	}

	return c
}
