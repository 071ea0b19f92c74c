package devserver

import (
	"errors"
	"time"

	"github.com/GoCodeAlone/scriptloader/feeders"
)

var (
	ErrNoRoot       = errors.New("devserver: script root is required")
	ErrInvalidPath  = errors.New("devserver: invalid script path")
	ErrNotListening = errors.New("devserver: server is not listening")
)

// Config controls the development script server.
type Config struct {
	// Root is the directory scripts are served from.
	Root string `yaml:"root" toml:"root" json:"root" hcl:"root" env:"ROOT"`
	Addr string `yaml:"addr" toml:"addr" json:"addr" hcl:"addr" env:"ADDR" default:"127.0.0.1:8087"`
	// FallbackToSource serves name.js for a missing name.min.js.
	FallbackToSource bool `yaml:"fallbackToSource" toml:"fallback_to_source" json:"fallbackToSource" hcl:"fallback_to_source" env:"FALLBACK_TO_SOURCE"`

	ReadTimeout     time.Duration `yaml:"readTimeout" toml:"read_timeout" json:"readTimeout" hcl:"read_timeout" env:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" toml:"write_timeout" json:"writeTimeout" hcl:"write_timeout" env:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idleTimeout" toml:"idle_timeout" json:"idleTimeout" hcl:"idle_timeout" env:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" toml:"shutdown_timeout" json:"shutdownTimeout" hcl:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" default:"5s"`
}

// DefaultConfig returns a Config for root with every default applied.
func DefaultConfig(root string) *Config {
	cfg := &Config{Root: root}
	if err := feeders.ApplyDefaults(cfg); err != nil {
		panic(err)
	}
	return cfg
}
