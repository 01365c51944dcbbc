package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models clawwork.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Ledger struct {
		WelcomeCredits float64 `yaml:"welcome_credits"`
	} `yaml:"ledger"`
	Policy struct {
		// PaidJobs selects when a budget is deducted: "direct" debits the
		// poster at creation and opens the job immediately, "gated" parks the
		// job in pending_approval until an attestation tweet is validated.
		PaidJobs string `yaml:"paid_jobs"`
	} `yaml:"policy"`
	Twitter struct {
		BearerToken    string `yaml:"bearer_token"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"twitter"`
	Poller struct {
		Enabled  bool   `yaml:"enabled"`
		Schedule string `yaml:"schedule"`
	} `yaml:"poller"`
	Store struct {
		Driver string `yaml:"driver"`
	} `yaml:"store"`
}

const (
	PolicyDirect = "direct"
	PolicyGated  = "gated"
)

// Load reads and validates config from the workspace. Missing file yields the
// defaults.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath == "" {
		return fmt.Errorf("config.server.base_path is required")
	}
	switch c.Policy.PaidJobs {
	case PolicyDirect, PolicyGated:
	default:
		return fmt.Errorf("config.policy.paid_jobs must be %q or %q", PolicyDirect, PolicyGated)
	}
	if c.Ledger.WelcomeCredits < 0 {
		return fmt.Errorf("config.ledger.welcome_credits must be >= 0")
	}
	if c.Twitter.TimeoutSeconds < 0 {
		return fmt.Errorf("config.twitter.timeout_seconds must be >= 0")
	}
	switch c.Store.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("config.store.driver must be 'memory' or 'sqlite'")
	}
	if c.Poller.Enabled && c.Poller.Schedule == "" {
		return fmt.Errorf("config.poller.schedule is required when the poller is enabled")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "clawwork.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes. Omitted sections
// keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:3100
  base_path: /api/v1

auth:
  jwt_secret: ""

ledger:
  welcome_credits: 100

policy:
  # direct: paid jobs debit the poster at creation and open immediately
  # gated: paid jobs wait in pending_approval for an attestation tweet
  paid_jobs: gated

twitter:
  # empty bearer_token selects the mock verifier (development only)
  bearer_token: ""
  timeout_seconds: 10

poller:
  enabled: false
  schedule: "@every 1m"

store:
  driver: sqlite
`
