package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v8"
)

// Config carries the runtime knobs read from the environment. Operation
// selection (which sync passes to run, rollback target) comes from CLI flags
// and is merged into Ops by main after Load.
type Config struct {
	// Connection documents
	SourceConfigFile string `env:"SOURCE_CONFIG_FILE" envDefault:""`
	SourceType       string `env:"SOURCE_DB_TYPE" envDefault:""`
	TargetConfigFile string `env:"TARGET_CONFIG_FILE" envDefault:""`

	// Execution
	TargetWorkers int           `env:"TARGET_WORKERS" envDefault:"4"`
	ObjectTimeout time.Duration `env:"OBJECT_TIMEOUT" envDefault:"1m"`

	// Retry logic for connection establishment
	MaxRetries    int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryInterval time.Duration `env:"RETRY_INTERVAL" envDefault:"5s"`

	// Connection pool
	ConnPoolSize    int           `env:"CONN_POOL_SIZE" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"1h"`

	// Observability & debugging
	DebugMode         bool `env:"DEBUG_MODE" envDefault:"false"`
	EnableJsonLogging bool `env:"ENABLE_JSON_LOGGING" envDefault:"false"`
	EnablePprof       bool `env:"ENABLE_PPROF" envDefault:"false"`
	MetricsPort       int  `env:"METRICS_PORT" envDefault:"9091"`

	// Vault (optional credential source for connection documents)
	VaultEnabled    bool   `env:"VAULT_ENABLED" envDefault:"false"`
	VaultAddr       string `env:"VAULT_ADDR" envDefault:""`
	VaultToken      string `env:"VAULT_TOKEN" envDefault:""`
	VaultMountPath  string `env:"VAULT_KV_MOUNT_PATH" envDefault:"secret"`
	VaultCACert     string `env:"VAULT_CACERT" envDefault:""`
	VaultSkipVerify bool   `env:"VAULT_SKIP_VERIFY" envDefault:"false"`

	// Ops is populated from CLI flags, never from the environment.
	Ops Operations `env:"-"`
}

// Operations selects what a single invocation actually does. Rollback wins
// over everything else; the sync passes combine freely.
type Operations struct {
	SyncAllTables     bool
	SyncAllViews      bool
	SyncAllProcedures bool
	SyncIndexes       bool
	CreateOnTarget    bool
	AlterSync         bool
	SyncObject        string // single-object pipeline, "type:name"
	Rollback          string // short-circuits sync, "type:name"
}

// Requested reports whether the invocation asked for any work at all.
func (o Operations) Requested() bool {
	return o.SyncAllTables || o.SyncAllViews || o.SyncAllProcedures ||
		o.SyncIndexes || o.SyncObject != "" || o.Rollback != ""
}

func Load() (*Config, error) {
	cfg := &Config{}
	opts := env.Options{RequiredIfNoDef: true}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("config parsing error: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.MetricsPort < 1 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort)
	}
	if cfg.TargetWorkers <= 0 {
		return fmt.Errorf("target workers must be positive")
	}
	if cfg.ObjectTimeout <= 0 {
		return fmt.Errorf("object timeout must be positive")
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if cfg.ConnPoolSize <= 0 {
		return fmt.Errorf("connection pool size must be positive")
	}
	if cfg.VaultEnabled {
		if cfg.VaultAddr == "" {
			return fmt.Errorf("VAULT_ADDR is required when VAULT_ENABLED=true")
		}
		if cfg.VaultToken == "" {
			return fmt.Errorf("VAULT_TOKEN is required when VAULT_ENABLED=true")
		}
	}
	return nil
}
