package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/pathq/pkg/catalog"
	"github.com/openfroyo/pathq/pkg/engine"
	"github.com/openfroyo/pathq/pkg/errdefs"
	"github.com/openfroyo/pathq/pkg/health"
	"github.com/openfroyo/pathq/pkg/query"
	"github.com/openfroyo/pathq/pkg/telemetry"
)

// Config is the complete coordinator configuration.
type Config struct {
	// Cooldown is the minimum age of a cached endpoint value before it is
	// refreshed.
	Cooldown time.Duration `yaml:"cooldown" validate:"gte=0"`

	// Resolve is the policy used when a query does not name one.
	Resolve engine.Policy `yaml:"resolve"`

	Health health.Settings `yaml:"health"`
	Syntax query.Syntax    `yaml:"syntax"`

	// Catalog is a YAML endpoint catalog. The built-in catalog is used when
	// empty.
	Catalog string `yaml:"catalog"`

	Requirements RequirementsConfig `yaml:"requirements"`
	Store        StoreConfig        `yaml:"store"`
	Vars         VarsConfig         `yaml:"vars"`

	Telemetry *telemetry.Config `yaml:"telemetry"`
}

// RequirementsConfig locates the capability requirements table.
type RequirementsConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// StoreConfig locates the SQLite history database. History is not
// recorded when Path is empty.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// VarsConfig selects the sources of query variables.
type VarsConfig struct {
	// Script is a Starlark file whose globals resolve variables.
	Script string `yaml:"script"`

	// EnvPrefix enables environment lookup, e.g. PATHQ_ makes $accountId
	// read PATHQ_ACCOUNTID.
	EnvPrefix string `yaml:"env_prefix" validate:"omitempty,uppercase"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Cooldown:  engine.DefaultCooldown,
		Resolve:   engine.DefaultPolicy(),
		Health:    health.DefaultSettings(),
		Syntax:    query.DefaultSyntax(),
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.NewConfigurationError("failed to read configuration", err).WithDetail("path", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		var e *errdefs.Error
		if errors.As(err, &e) {
			return nil, e.WithDetail("path", path)
		}
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errdefs.NewConfigurationError("failed to parse configuration", err).
			WithCode(errdefs.ErrCodeInvalidSettings)
	}

	if cfg.Resolve.Mode != "" {
		mode, err := engine.ParseResolveMode(string(cfg.Resolve.Mode))
		if err != nil {
			return nil, err
		}
		cfg.Resolve.Mode = mode
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return invalid("invalid configuration", err)
	}
	if err := c.Resolve.Validate(); err != nil {
		return err
	}
	if err := c.Health.Validate(); err != nil {
		return err
	}
	if err := c.Syntax.Validate(); err != nil {
		return err
	}
	if c.Telemetry == nil {
		return invalid("telemetry section is required", nil)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return invalid("invalid telemetry configuration", err)
	}
	return nil
}

// Parser returns a query parser for the configured syntax.
func (c *Config) Parser() (*query.Parser, error) {
	return query.NewParser(c.Syntax, query.DefaultRegistry())
}

// LoadCatalog returns the configured endpoint catalog, parsed with parser.
func (c *Config) LoadCatalog(parser *query.Parser) (*catalog.Catalog, error) {
	if c.Catalog == "" {
		return catalog.DefaultFor(parser)
	}
	return catalog.Load(c.Catalog, parser)
}

func invalid(message string, err error) error {
	return errdefs.NewConfigurationError(message, err).WithCode(errdefs.ErrCodeInvalidSettings)
}
