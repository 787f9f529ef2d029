// Package harness wires the browser, mock wallet, console capture, page
// object, and artifact store into runnable checks against a bridge
// deployment.
package harness

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level harness configuration.
type Config struct {
	Target    TargetConfig    `yaml:"target"`
	Browser   BrowserConfig   `yaml:"browser"`
	Auth      AuthConfig      `yaml:"auth"`
	Waits     WaitConfig      `yaml:"waits"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
}

// TargetConfig names the deployment under test.
type TargetConfig struct {
	BaseURL  string `yaml:"base_url"`
	PagePath string `yaml:"page_path"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote     string        `yaml:"remote"` // attach to a running Chrome instead of launching
	Headless   bool          `yaml:"headless"`
	NavTimeout time.Duration `yaml:"nav_timeout"`
}

// AuthConfig tunes the wallet sign-in retry loop.
type AuthConfig struct {
	Chain        string        `yaml:"chain"` // near | ethereum
	Attempts     int           `yaml:"attempts"`
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

// WaitConfig holds the condition-polling deadlines.
type WaitConfig struct {
	Quote       time.Duration `yaml:"quote"`
	Transaction time.Duration `yaml:"transaction"`
	WebSocket   time.Duration `yaml:"websocket"`
}

// ArtifactsConfig controls run persistence.
type ArtifactsConfig struct {
	DBPath    string        `yaml:"db_path"`
	DumpDir   string        `yaml:"dump_dir"`
	Retention time.Duration `yaml:"retention"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("harness: read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("harness: parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// DefaultConfig returns a config with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Target.BaseURL == "" {
		c.Target.BaseURL = "http://127.0.0.1:4100"
	}
	if c.Target.PagePath == "" {
		c.Target.PagePath = "/bridge"
	}
	if c.Browser.NavTimeout <= 0 {
		c.Browser.NavTimeout = 30 * time.Second
	}
	if c.Auth.Chain == "" {
		c.Auth.Chain = "near"
	}
	if c.Auth.Attempts <= 0 {
		c.Auth.Attempts = 3
	}
	if c.Auth.CheckTimeout <= 0 {
		c.Auth.CheckTimeout = 10 * time.Second
	}
	if c.Waits.Quote <= 0 {
		c.Waits.Quote = 10 * time.Second
	}
	if c.Waits.Transaction <= 0 {
		c.Waits.Transaction = 30 * time.Second
	}
	if c.Waits.WebSocket <= 0 {
		c.Waits.WebSocket = 10 * time.Second
	}
	if c.Artifacts.DBPath == "" {
		c.Artifacts.DBPath = "bridgecheck.db"
	}
	if c.Artifacts.DumpDir == "" {
		c.Artifacts.DumpDir = "dumps"
	}
	if c.Artifacts.Retention <= 0 {
		c.Artifacts.Retention = 7 * 24 * time.Hour
	}
}

// PageURL joins the target base URL and page path.
func (c *Config) PageURL() string {
	return c.Target.BaseURL + c.Target.PagePath
}
