// Package config loads the gateway's YAML configuration file.
//
// Load follows internal/config/loader.go's shape (os.ReadFile, expand
// environment references, then yaml.Unmarshal) trimmed to a single file
// with no $include resolution, since this gateway's configuration is
// flat enough not to need it.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coderunner/execgw/internal/breaker"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	MetricsPath string `yaml:"metrics_path"`
}

// EngineConfig configures the execution engine.
type EngineConfig struct {
	MaxConcurrent  int           `yaml:"max_concurrent"`
	RunTimeoutMs   int           `yaml:"run_timeout_ms"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	CacheMaxSize   int           `yaml:"cache_max_size"`
	MaxOutputBytes int           `yaml:"max_output_bytes"`
	Breaker        BreakerConfig `yaml:"breaker"`
}

// BreakerConfig mirrors internal/breaker.Config in YAML-friendly form.
type BreakerConfig struct {
	Threshold    int           `yaml:"threshold"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	ProbeCount   int           `yaml:"probe_count"`
}

// ToBreaker converts the YAML-level config to the internal breaker.Config
// it mirrors, applying the documented defaults for any zero field.
func (b BreakerConfig) ToBreaker() breaker.Config {
	cfg := breaker.DefaultConfig()
	if b.Threshold > 0 {
		cfg.Threshold = b.Threshold
	}
	if b.ResetTimeout > 0 {
		cfg.ResetTimeout = b.ResetTimeout
	}
	if b.ProbeCount > 0 {
		cfg.ProbeCount = b.ProbeCount
	}
	return cfg
}

// LoggingConfig configures the ambient logger.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// Config is the gateway's top-level configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Engine  EngineConfig  `yaml:"engine"`
	Logging LoggingConfig `yaml:"logging"`
}

// Default returns the gateway's built-in configuration, used when no
// config file is supplied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			MetricsPath: "/metrics",
		},
		Engine: EngineConfig{
			MaxConcurrent:  100,
			RunTimeoutMs:   10_000,
			CacheTTL:       30 * time.Minute,
			CacheMaxSize:   100_000,
			MaxOutputBytes: 100_000,
			Breaker: BreakerConfig{
				Threshold:    5,
				ResetTimeout: 30 * time.Second,
				ProbeCount:   3,
			},
		},
	}
}

// Load reads path, expands ${VAR}/$VAR environment references, and
// unmarshals it over Default(). An empty path returns Default()
// unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
