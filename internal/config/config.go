package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/ghost6760/multibackendopenIA-sub001/internal/credential"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/validation"
)

// EnvPrefix prefixes every configuration variable.
const EnvPrefix = "CONSOLE_"

// DefaultEnvFile is the optional dotenv file read from the working directory.
const DefaultEnvFile = ".env"

// Config is the console configuration, parsed from CONSOLE_* variables.
type Config struct {
	BaseURL       string        `env:"BASE_URL"`
	Tenant        string        `env:"TENANT"`
	AdminKey      string        `env:"ADMIN_KEY"`
	Timeout       time.Duration `env:"TIMEOUT" envDefault:"30s"`
	MaxRetries    int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryDelay    time.Duration `env:"RETRY_DELAY" envDefault:"1s"`
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	AdminPrefixes []string      `env:"ADMIN_PREFIXES" envSeparator:","`
	AdminPatterns []string      `env:"ADMIN_PATTERNS" envSeparator:","`
	RedisURL      string        `env:"REDIS_URL"`
	CacheDir      string        `env:"CACHE_DIR"`
	NoCache       bool          `env:"NO_CACHE"`
	OTelEndpoint  string        `env:"OTEL_ENDPOINT"`
	UserAgent     string        `env:"USER_AGENT" envDefault:"consolectl"`
	AllowPrivate  bool          `env:"ALLOW_PRIVATE"`
}

// ErrNoBaseURL is returned when no backend is configured.
var ErrNoBaseURL = errors.New("backend not configured - set CONSOLE_BASE_URL or pass --base-url")

// LoadOptions controls where Load reads from. The zero value reads the
// process environment and ./.env.
type LoadOptions struct {
	EnvFile     string            // "" means DefaultEnvFile; "-" disables
	Environment map[string]string // nil means os.Environ
}

// Load parses the configuration. Values from the dotenv file fill in
// variables the environment leaves unset.
func Load(opts LoadOptions) (Config, error) {
	environ := opts.Environment
	if environ == nil {
		environ = env.ToMap(os.Environ())
	}

	merged, err := withDotenv(environ, opts.EnvFile)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix, Environment: merged}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.BaseURL = validation.NormalizeBaseURL(cfg.BaseURL)
	cfg.Tenant = strings.TrimSpace(cfg.Tenant)
	cfg.AdminPrefixes = compact(cfg.AdminPrefixes)
	cfg.AdminPatterns = compact(cfg.AdminPatterns)
	return cfg, nil
}

func withDotenv(environ map[string]string, path string) (map[string]string, error) {
	if path == "-" {
		return environ, nil
	}
	if path == "" {
		path = DefaultEnvFile
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return environ, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	merged := make(map[string]string, len(environ)+len(values))
	for k, v := range values {
		merged[k] = v
	}
	for k, v := range environ {
		merged[k] = v
	}
	return merged, nil
}

// Validate checks the settings that would otherwise fail on first use.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return ErrNoBaseURL
	}
	if err := validation.ValidateBaseURL(c.BaseURL, c.AllowPrivate); err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if err := validation.ValidateTenantID(c.Tenant); err != nil {
		return err
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("CONSOLE_MAX_RETRIES must be >= 0, got %d", c.MaxRetries)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("CONSOLE_RETRY_DELAY must be >= 0, got %s", c.RetryDelay)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("CONSOLE_TIMEOUT must be >= 0, got %s", c.Timeout)
	}
	if _, err := credential.NewGate(c.Rules()); err != nil {
		return err
	}
	return nil
}

// Rules returns the privileged-path rules, the defaults when none are set.
func (c Config) Rules() credential.Rules {
	if len(c.AdminPrefixes) == 0 && len(c.AdminPatterns) == 0 {
		return credential.DefaultRules()
	}
	return credential.Rules{Prefixes: c.AdminPrefixes, Patterns: c.AdminPatterns}
}

func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
