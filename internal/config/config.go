package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Storage   StorageConfig   `yaml:"storage"`
	Session   SessionConfig   `yaml:"session"`
	Cycle     CycleConfig     `yaml:"cycle"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	Catalog   CatalogConfig   `yaml:"catalog"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// Auth modes.
const (
	AuthJWT       = "jwt"
	AuthTailscale = "tailscale"
	AuthNone      = "none"
)

type AuthConfig struct {
	Mode      string `yaml:"mode"`
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
	// DevUser is the identity used when Mode is "none".
	DevUser string `yaml:"dev_user"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

type StorageConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type SessionConfig struct {
	DraftDebounce      time.Duration `yaml:"draft_debounce"`
	DefaultRestSeconds int           `yaml:"default_rest_seconds"`
	ZeroSetRequiresRPE *bool         `yaml:"zero_set_requires_rpe"`
}

type CycleConfig struct {
	ResetOnConfigChange *bool `yaml:"reset_on_config_change"`
}

type AnalysisConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	Model         string        `yaml:"model"`
	MaxTokens     int           `yaml:"max_tokens"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxAttempts   int           `yaml:"max_attempts"`
	Backoff       time.Duration `yaml:"backoff"`
	MaxBackoff    time.Duration `yaml:"max_backoff"`
	SuggestionTTL time.Duration `yaml:"suggestion_ttl"`
}

type OutboxConfig struct {
	Dir            string        `yaml:"dir"`
	ReplayInterval time.Duration `yaml:"replay_interval"`
}

type CatalogConfig struct {
	// Path is an optional YAML template file. Empty uses the built-in templates.
	Path string `yaml:"path"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Enabled reports whether an analyzer is configured.
func (a AnalysisConfig) Enabled() bool {
	return a.APIKey != ""
}

// RequireZeroSetRPE reports whether zero-set exercises need an RPE entry. Default true.
func (s SessionConfig) RequireZeroSetRPE() bool {
	return s.ZeroSetRequiresRPE == nil || *s.ZeroSetRequiresRPE
}

// ResetOnChange reports whether a selection change discards cycle progress. Default true.
func (c CycleConfig) ResetOnChange() bool {
	return c.ResetOnConfigChange == nil || *c.ResetOnConfigChange
}

// Load reads config from a YAML file, applies defaults, then environment
// variable overrides. Env vars use the prefix FITFORGE_:
//
//	FITFORGE_SERVER_HOST, FITFORGE_SERVER_PORT,
//	FITFORGE_DB_DRIVER, FITFORGE_DB_HOST, FITFORGE_DB_PORT, FITFORGE_DB_NAME,
//	FITFORGE_DB_USER, FITFORGE_DB_PASSWORD, FITFORGE_DB_SSLMODE,
//	FITFORGE_AUTH_MODE, FITFORGE_AUTH_JWT_SECRET,
//	FITFORGE_TAILSCALE_ENABLED, FITFORGE_TAILSCALE_HOSTNAME,
//	FITFORGE_ANTHROPIC_API_KEY, FITFORGE_ANALYSIS_MODEL,
//	FITFORGE_OUTBOX_DIR, FITFORGE_CATALOG_PATH
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	if cfg.Auth.Mode == "" {
		cfg.Auth.Mode = AuthJWT
	}
	if cfg.Auth.DevUser == "" {
		cfg.Auth.DevUser = "dev"
	}
	if cfg.Tailscale.Hostname == "" {
		cfg.Tailscale.Hostname = "fitforge"
	}
	if cfg.Storage.Timeout == 0 {
		cfg.Storage.Timeout = 5 * time.Second
	}
	if cfg.Session.DraftDebounce == 0 {
		cfg.Session.DraftDebounce = time.Second
	}
	if cfg.Session.DefaultRestSeconds == 0 {
		cfg.Session.DefaultRestSeconds = 90
	}
	if cfg.Analysis.Model == "" {
		cfg.Analysis.Model = "claude-sonnet-4-5"
	}
	if cfg.Analysis.Timeout == 0 {
		cfg.Analysis.Timeout = 60 * time.Second
	}
	if cfg.Analysis.MaxAttempts == 0 {
		cfg.Analysis.MaxAttempts = 3
	}
	if cfg.Analysis.Backoff == 0 {
		cfg.Analysis.Backoff = 2 * time.Second
	}
	if cfg.Analysis.MaxBackoff == 0 {
		cfg.Analysis.MaxBackoff = 30 * time.Second
	}
	if cfg.Analysis.SuggestionTTL == 0 {
		cfg.Analysis.SuggestionTTL = 10 * time.Minute
	}
	if cfg.Outbox.Dir == "" {
		cfg.Outbox.Dir = "data"
	}
	if cfg.Outbox.ReplayInterval == 0 {
		cfg.Outbox.ReplayInterval = 30 * time.Second
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FITFORGE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("FITFORGE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FITFORGE_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("FITFORGE_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FITFORGE_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FITFORGE_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FITFORGE_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FITFORGE_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FITFORGE_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("FITFORGE_AUTH_MODE"); v != "" {
		cfg.Auth.Mode = v
	}
	if v := os.Getenv("FITFORGE_AUTH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("FITFORGE_TAILSCALE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = b
		}
	}
	if v := os.Getenv("FITFORGE_TAILSCALE_HOSTNAME"); v != "" {
		cfg.Tailscale.Hostname = v
	}
	if v := os.Getenv("FITFORGE_ANTHROPIC_API_KEY"); v != "" {
		cfg.Analysis.APIKey = v
	}
	if v := os.Getenv("FITFORGE_ANALYSIS_MODEL"); v != "" {
		cfg.Analysis.Model = v
	}
	if v := os.Getenv("FITFORGE_OUTBOX_DIR"); v != "" {
		cfg.Outbox.Dir = v
	}
	if v := os.Getenv("FITFORGE_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 && !c.Tailscale.Enabled {
		return fmt.Errorf("server.port is required")
	}
	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if c.Database.Port == 0 {
			return fmt.Errorf("database.port is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverMemory, c.Database.Driver)
	}
	switch c.Auth.Mode {
	case AuthJWT:
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
		}
	case AuthTailscale:
		if !c.Tailscale.Enabled {
			return fmt.Errorf("auth.mode tailscale requires tailscale.enabled")
		}
	case AuthNone:
	default:
		return fmt.Errorf("auth.mode must be jwt, tailscale or none, got %q", c.Auth.Mode)
	}
	if c.Session.DefaultRestSeconds < 0 {
		return fmt.Errorf("session.default_rest_seconds must not be negative")
	}
	if c.Analysis.MaxAttempts < 1 {
		return fmt.Errorf("analysis.max_attempts must be at least 1")
	}
	if c.Analysis.MaxBackoff < c.Analysis.Backoff {
		return fmt.Errorf("analysis.max_backoff must not be shorter than analysis.backoff")
	}
	return nil
}
