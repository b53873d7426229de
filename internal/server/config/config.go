// Package config loads the server configuration from the environment and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/systemshift/graphrest/internal/server/subscriptions"
)

// Config holds everything the server needs to start.
type Config struct {
	// File is a YAML file whose values override the environment.
	File string `env:"GRAPHREST_CONFIG" yaml:"-"`

	Addr       string `env:"GRAPHREST_ADDR" envDefault:":8080" yaml:"addr" validate:"required"`
	Backend    string `env:"GRAPHREST_BACKEND" envDefault:"memory" yaml:"backend" validate:"oneof=memory sqlite neo4j"`
	SQLitePath string `env:"GRAPHREST_SQLITE_PATH" envDefault:"graphrest.db" yaml:"sqlitePath" validate:"required_if=Backend sqlite"`

	Neo4j Neo4jConfig `yaml:"neo4j"`

	SchemaFile      string `env:"GRAPHREST_SCHEMA" yaml:"schema"`
	BaseURI         string `env:"GRAPHREST_BASE_URI" yaml:"baseURI" validate:"omitempty,url"`
	IDProperty      string `env:"GRAPHREST_ID_PROPERTY" yaml:"idProperty"`
	DefaultPageSize int    `env:"GRAPHREST_PAGE_SIZE" envDefault:"0" yaml:"defaultPageSize" validate:"gte=0"`
	MaxPageSize     int    `env:"GRAPHREST_MAX_PAGE_SIZE" envDefault:"1000" yaml:"maxPageSize" validate:"gte=0"`
	DefaultPolicy   string `env:"GRAPHREST_DEFAULT_POLICY" envDefault:"allow" yaml:"defaultPolicy" validate:"oneof=allow deny"`

	LogLevel         string `env:"GRAPHREST_LOG_LEVEL" envDefault:"info" yaml:"logLevel" validate:"oneof=debug info warn error"`
	LogFormat        string `env:"GRAPHREST_LOG_FORMAT" envDefault:"json" yaml:"logFormat" validate:"oneof=json console"`
	MetricsNamespace string `env:"GRAPHREST_METRICS_NAMESPACE" envDefault:"graphrest" yaml:"metricsNamespace" validate:"required"`

	ReadTimeout     time.Duration `env:"GRAPHREST_READ_TIMEOUT" envDefault:"15s" yaml:"readTimeout"`
	WriteTimeout    time.Duration `env:"GRAPHREST_WRITE_TIMEOUT" envDefault:"15s" yaml:"writeTimeout"`
	IdleTimeout     time.Duration `env:"GRAPHREST_IDLE_TIMEOUT" envDefault:"60s" yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `env:"GRAPHREST_SHUTDOWN_TIMEOUT" envDefault:"5s" yaml:"shutdownTimeout"`

	Webhooks      WebhookConfig                `yaml:"webhooks"`
	Subscriptions []subscriptions.Subscription `env:"-" yaml:"subscriptions" validate:"dive"`
}

// Neo4jConfig is only read when Backend is neo4j.
type Neo4jConfig struct {
	URI      string `env:"NEO4J_URI" envDefault:"bolt://localhost:7687" yaml:"uri" validate:"required"`
	Username string `env:"NEO4J_USER" envDefault:"neo4j" yaml:"username"`
	Password string `env:"NEO4J_PASSWORD" envDefault:"password" yaml:"password"`
	Database string `env:"NEO4J_DATABASE" envDefault:"neo4j" yaml:"database" validate:"required"`
}

// WebhookConfig tunes subscription delivery.
type WebhookConfig struct {
	Attempts   int           `env:"GRAPHREST_WEBHOOK_ATTEMPTS" envDefault:"3" yaml:"attempts" validate:"gte=1"`
	Backoff    time.Duration `env:"GRAPHREST_WEBHOOK_BACKOFF" envDefault:"1s" yaml:"backoff"`
	Timeout    time.Duration `env:"GRAPHREST_WEBHOOK_TIMEOUT" envDefault:"10s" yaml:"timeout"`
	BufferSize int           `env:"GRAPHREST_EVENT_BUFFER" envDefault:"1000" yaml:"bufferSize" validate:"gte=1"`
}

// Load reads the process environment.
func Load() (*Config, error) {
	return LoadEnv(nil)
}

// LoadEnv reads configuration from environ instead of the process
// environment when environ is not nil.
func LoadEnv(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if cfg.File != "" {
		f, err := os.Open(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("opening config file: %w", err)
		}
		defer f.Close()
		if err := cfg.overlay(f); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlay(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding config file: %w", err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
