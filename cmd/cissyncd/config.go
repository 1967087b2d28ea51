package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// duration adds YAML decoding of Go duration strings ("24h", "90m").
type duration time.Duration

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = duration(parsed)
	return nil
}

// Config is the daemon configuration, loaded from a YAML file with
// environment-variable overrides for the deployment-specific values.
type Config struct {
	ListenAddr     string   `yaml:"listen_addr"`
	DatabaseURL    string   `yaml:"database_url"`
	OracleDSN      string   `yaml:"oracle_dsn"`
	JWTSecret      string   `yaml:"jwt_secret"`
	BatchSize      int      `yaml:"batch_size"`
	StaleRunMaxAge duration `yaml:"stale_run_max_age"`
	LogLevel       string   `yaml:"log_level"`
	LogStageTiming bool     `yaml:"log_stage_timings"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:     ":8080",
		BatchSize:      100,
		StaleRunMaxAge: duration(24 * time.Hour),
		LogLevel:       "info",
	}
}

// LoadConfig reads path (optional) and applies CISSYNC_* env overrides.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv("CISSYNC_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("CISSYNC_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("CISSYNC_ORACLE_DSN"); v != "" {
		cfg.OracleDSN = v
	}
	if v := os.Getenv("CISSYNC_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("CISSYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("database_url is required (or CISSYNC_DATABASE_URL)")
	}
	if cfg.OracleDSN == "" {
		return cfg, fmt.Errorf("oracle_dsn is required (or CISSYNC_ORACLE_DSN)")
	}
	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("jwt_secret is required (or CISSYNC_JWT_SECRET)")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.StaleRunMaxAge <= 0 {
		cfg.StaleRunMaxAge = duration(24 * time.Hour)
	}
	return cfg, nil
}
