// Package config provides configuration management for ReliefGrid.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like DATABASE_URL, SERVER_PORT)
// 3. Default values
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store driver names. Exactly one backend is instantiated at process start.
const (
	StoreDriverFile     = "file"
	StoreDriverPostgres = "postgres"
	StoreDriverDisabled = "disabled"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Store     StoreConfig     `mapstructure:"store"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Inbound   InboundConfig   `mapstructure:"inbound"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	Numbering NumberingConfig `mapstructure:"numbering"`
	Log       LogConfig       `mapstructure:"log"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains PostgreSQL connection settings for the relational
// workflow-store backend.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// StoreConfig selects the workflow-store backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // file | postgres | disabled
	Dir    string `mapstructure:"dir"`    // file driver root directory
}

// PolicyConfig contains demand planning policy knobs.
type PolicyConfig struct {
	Preset             string   `mapstructure:"preset"` // v1 | v2
	SafetyFactor       float64  `mapstructure:"safety_factor"`
	HorizonAHours      float64  `mapstructure:"horizon_a_hours"`
	ProcurementModeled bool     `mapstructure:"procurement_modeled"`
	CriticalItems      []string `mapstructure:"critical_items"`
	CriticalCategories []string `mapstructure:"critical_categories"`
}

// InboundConfig lists the externally defined status codes that count as
// confirmed inbound pipeline per channel. Empty lists fall back to the
// built-in defaults with a best-effort warning.
type InboundConfig struct {
	ConfirmedTransferCodes []string `mapstructure:"confirmed_transfer_codes"`
	ConfirmedDonationCodes []string `mapstructure:"confirmed_donation_codes"`
	SpeculativeCodes       []string `mapstructure:"speculative_codes"`
}

// SnapshotConfig locates the stock-state snapshot cache.
type SnapshotConfig struct {
	Dir string `mapstructure:"dir"`
}

// NumberingConfig bounds the record-number collision retry loop.
type NumberingConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize int `mapstructure:"general_pool_size"`
	CalcPoolSize    int `mapstructure:"calc_pool_size"`
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/reliefgrid")

	// Maps nested config: store.driver → STORE_DRIVER
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file is optional, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverFile, StoreDriverPostgres, StoreDriverDisabled:
	default:
		return fmt.Errorf("store.driver must be one of file, postgres, disabled (got %q)", c.Store.Driver)
	}
	if c.Policy.Preset != "v1" && c.Policy.Preset != "v2" {
		return fmt.Errorf("policy.preset must be v1 or v2 (got %q)", c.Policy.Preset)
	}
	if c.Policy.SafetyFactor <= 0 {
		return fmt.Errorf("policy.safety_factor must be positive (got %v)", c.Policy.SafetyFactor)
	}
	if c.Policy.HorizonAHours <= 0 {
		return fmt.Errorf("policy.horizon_a_hours must be positive (got %v)", c.Policy.HorizonAHours)
	}
	if c.Numbering.MaxAttempts < 1 {
		return fmt.Errorf("numbering.max_attempts must be at least 1 (got %d)", c.Numbering.MaxAttempts)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "reliefgrid")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "reliefgrid")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")

	// Workflow store
	v.SetDefault("store.driver", StoreDriverFile)
	v.SetDefault("store.dir", "./data/needslists")

	// Policy
	v.SetDefault("policy.preset", "v1")
	v.SetDefault("policy.safety_factor", 1.25)
	v.SetDefault("policy.horizon_a_hours", 72) // 3 days of near-term transfer coverage
	v.SetDefault("policy.procurement_modeled", true)
	v.SetDefault("policy.critical_items", []string{})
	v.SetDefault("policy.critical_categories", []string{})

	// Inbound status mapping
	v.SetDefault("inbound.confirmed_transfer_codes", []string{})
	v.SetDefault("inbound.confirmed_donation_codes", []string{})
	v.SetDefault("inbound.speculative_codes", []string{})

	// Snapshot cache
	v.SetDefault("snapshot.dir", "./data/snapshots")

	// Numbering
	v.SetDefault("numbering.max_attempts", 5)
	v.SetDefault("numbering.backoff", "50ms")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Worker pools
	v.SetDefault("worker.general_pool_size", 50)
	v.SetDefault("worker.calc_pool_size", 16)
}
