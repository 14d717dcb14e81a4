// Package config loads the process configuration from defaults, an
// optional YAML file, and environment variable overrides, in that
// order.
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("snowgate.yaml").
//	    WithEnvPrefix("SNOWGATE").
//	    Load()
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/snowgate/auth"
	"github.com/BaSui01/snowgate/identity"
	"github.com/BaSui01/snowgate/orchestrator"
	"github.com/BaSui01/snowgate/providers"
	"github.com/BaSui01/snowgate/store"
	"github.com/BaSui01/snowgate/types"
)

// Config is the complete process configuration.
type Config struct {
	// Server is the HTTP surface configuration.
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Log configures the zap logger.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Auth selects and parameterizes the caller-facing auth strategy.
	Auth auth.Config `yaml:"auth" env:"AUTH"`

	// Delegation configures identity token exchange.
	Delegation identity.Config `yaml:"delegation" env:"DELEGATION"`

	// Provider is the downstream capability service binding.
	Provider providers.HTTPConfig `yaml:"provider" env:"PROVIDER"`

	// Orchestrator controls branch dispatch.
	Orchestrator orchestrator.Config `yaml:"orchestrator" env:"ORCHESTRATOR"`

	// Tasks controls the submit/poll task manager.
	Tasks orchestrator.ManagerConfig `yaml:"tasks" env:"TASKS"`

	// Store selects the task archive backend.
	Store StoreConfig `yaml:"store" env:"STORE"`

	// RateLimit throttles inbound requests.
	RateLimit RateLimitConfig `yaml:"rate_limit" env:"RATE_LIMIT"`

	// Routing holds the built-in keyword oracle's rules: tag → trigger
	// keywords. YAML only.
	Routing RoutingConfig `yaml:"routing"`

	// Capabilities is the startup capability catalog.
	Capabilities []CapabilityConfig `yaml:"capabilities"`
}

// ServerConfig is the HTTP server configuration.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is json or console.
	Format string `yaml:"format" env:"FORMAT"`
	// EnableCaller adds caller annotations.
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// StoreConfig selects the task archive backend.
type StoreConfig struct {
	// Backend is memory or redis.
	Backend string `yaml:"backend" env:"BACKEND"`

	Redis store.RedisConfig `yaml:"redis" env:"REDIS"`
}

// RateLimitConfig throttles inbound HTTP requests.
type RateLimitConfig struct {
	// Enabled turns rate limiting on.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// RPS is the sustained request rate.
	RPS float64 `yaml:"rps" env:"RPS"`
	// Burst is the short-term burst allowance.
	Burst int `yaml:"burst" env:"BURST"`
}

// RoutingConfig parameterizes the built-in keyword oracle.
type RoutingConfig struct {
	Rules map[string][]string `yaml:"rules"`
}

// CapabilityConfig is one catalog entry.
type CapabilityConfig struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
}

// Capability converts the entry to the domain type.
func (c CapabilityConfig) Capability() types.Capability {
	return types.Capability{
		Name:        c.Name,
		Description: c.Description,
		Tags:        c.Tags,
	}
}

// Loader loads configuration, builder style.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the SNOWGATE env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "SNOWGATE"}
}

// WithConfigPath sets the YAML file path. A missing file is not an
// error; defaults and env apply.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds an extra validation step run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration: defaults → YAML file → env.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, err
		}
	}
	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return types.NewError(types.ErrConfig, "reading config file "+l.configPath).WithCause(err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return types.NewError(types.ErrConfig, "parsing config file "+l.configPath).WithCause(err)
	}
	return nil
}

// setFieldsFromEnv walks the struct and applies PREFIX_FIELD overrides
// based on the env tags.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return types.NewError(types.ErrConfig, "invalid value for "+envKey).WithCause(err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// Comma-separated string slices only.
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}

// MustLoad loads the configuration from path, panicking on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate checks the parts of the configuration that are not validated
// by their owning components at construction time. Strategy-specific
// auth validation happens in auth.Selector.Build; delegation validation
// in identity.NewExchanger; provider validation in
// providers.NewHTTPProvider.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "server.http_port must be in (0, 65535]")
	}
	switch c.Store.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, "store.backend must be memory or redis, have "+c.Store.Backend)
	}
	if c.Store.Backend == "redis" && c.Store.Redis.Addr == "" {
		errs = append(errs, "store.redis.addr is required for the redis backend")
	}
	if err := c.Orchestrator.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, "rate_limit.rps and rate_limit.burst must be positive when enabled")
	}
	for _, entry := range c.Capabilities {
		if err := entry.Capability().Validate(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return types.NewError(types.ErrConfig, strings.Join(errs, "; "))
	}
	return nil
}
