//-------------------------------------------------------------------------
//
// HotDog 2030 Warehouse Sync
//
// Copyright (c) 2026, HotDog 2030 contributors
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package config handles configuration management for hotdog-etl.
// Configuration is loaded from an optional YAML file, a .env file and
// environment variables. Credentials are only ever read from the
// environment or the config file, never from CLI flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for hotdog-etl.
type Config struct {
	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	// LogFormat is "console" for human-readable output or "json".
	LogFormat string `mapstructure:"log_format" validate:"oneof=console json"`

	// Warehouse is the analytical target database (PostgreSQL).
	Warehouse DatabaseConfig `mapstructure:"warehouse"`

	// POS is the point-of-sale source database (MySQL).
	POS DatabaseConfig `mapstructure:"pos"`

	// Mini is the WeChat mini-program source database (MySQL).
	Mini DatabaseConfig `mapstructure:"mini"`

	Load    LoadConfig    `mapstructure:"load"`
	Alerts  AlertConfig   `mapstructure:"alerts"`
	Redis   RedisConfig   `mapstructure:"redis"`
	AMQP    AMQPConfig    `mapstructure:"amqp"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// DatabaseConfig is the host/port/user/password/database quintuple for
// one database role.
type DatabaseConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database" validate:"required"`
}

// LoadConfig tunes the bulk loaders.
type LoadConfig struct {
	// BatchSize is the number of rows per COPY batch.
	BatchSize int `mapstructure:"batch_size" validate:"min=100,max=5000"`

	// Workers is the number of concurrent batch writers for fact tables.
	Workers int `mapstructure:"workers" validate:"min=1,max=8"`

	// BulkTimeout is the per-statement timeout for bulk sessions.
	BulkTimeout time.Duration `mapstructure:"bulk_timeout" validate:"gt=0"`

	// StatementTimeout is the per-statement timeout for regular sessions.
	StatementTimeout time.Duration `mapstructure:"statement_timeout" validate:"gt=0"`

	// DisableIndexes drops non-unique fact indexes during a full load and
	// recreates them afterwards.
	DisableIndexes bool `mapstructure:"disable_indexes"`

	// ConnectAttempts bounds retries of connection errors.
	ConnectAttempts int `mapstructure:"connect_attempts" validate:"min=1,max=10"`
}

// AlertConfig holds the anomaly thresholds used by detect-alerts.
type AlertConfig struct {
	MinRevenue      float64 `mapstructure:"min_revenue" validate:"gte=0"`
	WowDropPct      float64 `mapstructure:"wow_drop_pct" validate:"lt=0"`
	GrossMarginLow  float64 `mapstructure:"gross_margin_low" validate:"gt=0,lt=1"`
	NetReceiptDrop  float64 `mapstructure:"net_receipt_drop_pct" validate:"lt=0"`
	DefaultSeverity int     `mapstructure:"default_severity" validate:"min=1,max=5"`
}

// RedisConfig configures the optional cross-host run lock.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// AMQPConfig configures the optional alert fan-out.
type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// MetricsConfig configures the optional Prometheus Pushgateway.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// envBindings maps config keys to the environment variables that feed them.
var envBindings = map[string]string{
	"log_level":               "LOG_LEVEL",
	"log_format":              "LOG_FORMAT",
	"redis.addr":              "REDIS_ADDR",
	"redis.password":          "REDIS_PASSWORD",
	"amqp.url":                "AMQP_URL",
	"metrics.pushgateway_url": "PUSHGATEWAY_URL",
}

// dbRoles maps database config sections to their environment prefixes.
var dbRoles = map[string]string{
	"warehouse": "WAREHOUSE",
	"pos":       "POS",
	"mini":      "MINI",
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "console",
		Warehouse: DatabaseConfig{Port: 5432},
		POS:       DatabaseConfig{Port: 3306},
		Mini:      DatabaseConfig{Port: 3306},
		Load: LoadConfig{
			BatchSize:        2000,
			Workers:          4,
			BulkTimeout:      600 * time.Second,
			StatementTimeout: 30 * time.Second,
			DisableIndexes:   true,
			ConnectAttempts:  3,
		},
		Alerts: AlertConfig{
			MinRevenue:      1000,
			WowDropPct:      -0.20,
			GrossMarginLow:  0.45,
			NetReceiptDrop:  -0.25,
			DefaultSeverity: 2,
		},
		Redis: RedisConfig{
			LockTTL: 30 * time.Minute,
		},
		AMQP: AMQPConfig{
			Exchange: "hotdog.alerts",
		},
		Metrics: MetricsConfig{
			Job: "hotdog-etl",
		},
	}
}

// Load reads configuration from the environment and config files.
// Sources (later wins):
// 1. Built-in defaults
// 2. ./hotdog-etl.yaml or ~/.config/hotdog-etl/config.yaml (or configFile)
// 3. ./.env
// 4. Process environment
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	v.SetConfigName("hotdog-etl")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "hotdog-etl"))
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := bindEnv(v); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

func bindEnv(v *viper.Viper) error {
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	for section, prefix := range dbRoles {
		fields := map[string]string{
			"host":     "HOST",
			"port":     "PORT",
			"user":     "USER",
			"password": "PASS",
			"database": "DB",
		}
		for field, suffix := range fields {
			env := prefix + "_" + suffix
			if err := v.BindEnv(section+"."+field, env); err != nil {
				return fmt.Errorf("failed to bind %s: %w", env, err)
			}
		}
	}
	return nil
}

var validate = validator.New()

// Validate checks settings shared by every command.
func (c *Config) Validate() error {
	if err := validate.Struct(c.Load); err != nil {
		return fmt.Errorf("invalid load settings: %w", err)
	}
	if err := validate.Struct(c.Alerts); err != nil {
		return fmt.Errorf("invalid alert settings: %w", err)
	}
	if err := validate.Var(c.LogFormat, "oneof=console json"); err != nil {
		return fmt.Errorf("log_format must be 'console' or 'json'")
	}
	return nil
}

// ValidateWarehouse checks configuration required by commands that only
// touch the warehouse.
func (c *Config) ValidateWarehouse() error {
	if err := c.Validate(); err != nil {
		return err
	}
	return validateDatabase("WAREHOUSE", c.Warehouse)
}

// ValidateSources checks configuration required by commands that read the
// source databases as well as the warehouse.
func (c *Config) ValidateSources() error {
	if err := c.ValidateWarehouse(); err != nil {
		return err
	}
	if err := validateDatabase("POS", c.POS); err != nil {
		return err
	}
	return validateDatabase("MINI", c.Mini)
}

// ValidateSeed checks configuration required to seed the source
// databases. The warehouse is not touched.
func (c *Config) ValidateSeed() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := validateDatabase("POS", c.POS); err != nil {
		return err
	}
	return validateDatabase("MINI", c.Mini)
}

func validateDatabase(prefix string, d DatabaseConfig) error {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		missing := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			missing = append(missing, prefix+"_"+envSuffix(fe.Field()))
		}
		return fmt.Errorf("%s database is not configured: check %s",
			strings.ToLower(prefix), strings.Join(missing, ", "))
	}
	return err
}

func envSuffix(field string) string {
	switch field {
	case "Password":
		return "PASS"
	case "Database":
		return "DB"
	default:
		return strings.ToUpper(field)
	}
}
