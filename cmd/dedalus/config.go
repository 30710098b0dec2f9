package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the optional YAML configuration for the CLI. Everything in it can
// also be supplied by flags or environment variables; flags win.
type Config struct {
	BaseURL      string              `yaml:"base_url"`
	APIKey       string              `yaml:"api_key"` //nolint:gosec // configuration field, not a hardcoded secret
	Model        string              `yaml:"model"`
	System       string              `yaml:"system"`
	MCPServers   []string            `yaml:"mcp_servers"` // Hosted server slugs, executed service-side.
	LocalServers []LocalServerConfig `yaml:"local_servers"`
	MaxTurns     int                 `yaml:"max_turns"`
	Retry        RetryConfig         `yaml:"retry"`
}

// LocalServerConfig describes an MCP server run (or reached) locally, whose
// tools the CLI executes itself. Exactly one of Command or URL must be set.
type LocalServerConfig struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	URL     string   `yaml:"url"` // SSE endpoint, alternative to Command.
}

// RetryConfig controls rate limit retries.
type RetryConfig struct {
	MaxRetries int    `yaml:"max_retries"` // Max retries on 429 (default 3).
	BaseDelay  string `yaml:"base_delay"`  // Initial backoff delay as a duration string (e.g. "1s", "500ms").
}

// BaseDelayDuration parses BaseDelay, returning zero for an empty value.
func (r RetryConfig) BaseDelayDuration() (time.Duration, error) {
	if r.BaseDelay == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(r.BaseDelay)
	if err != nil {
		return 0, fmt.Errorf("config: retry.base_delay: %w", err)
	}

	return d, nil
}

// loadConfig reads a YAML file and returns a Config.
// Environment variables referenced as ${VAR} or $VAR in the YAML are expanded
// before parsing. This allows API keys and other secrets to be kept in
// environment variables (e.g. loaded from a .env file) rather than committed
// in the config.
func loadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("config: load: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	slugs := make(map[string]struct{}, len(c.MCPServers))
	for _, s := range c.MCPServers {
		if s == "" {
			return fmt.Errorf("config: mcp_servers: empty slug")
		}
		if _, dup := slugs[s]; dup {
			return fmt.Errorf("config: duplicate mcp server slug %q", s)
		}
		slugs[s] = struct{}{}
	}

	names := make(map[string]struct{}, len(c.LocalServers))
	for _, ls := range c.LocalServers {
		if ls.Name == "" {
			return fmt.Errorf("config: local server name is required")
		}
		if _, dup := names[ls.Name]; dup {
			return fmt.Errorf("config: duplicate local server name %q", ls.Name)
		}
		names[ls.Name] = struct{}{}

		if ls.Command == "" && ls.URL == "" {
			return fmt.Errorf("config: local server %q: command or url is required", ls.Name)
		}
		if ls.Command != "" && ls.URL != "" {
			return fmt.Errorf("config: local server %q: command and url are mutually exclusive", ls.Name)
		}
	}

	if c.MaxTurns < 0 {
		return fmt.Errorf("config: max_turns must not be negative")
	}

	if _, err := c.Retry.BaseDelayDuration(); err != nil {
		return err
	}

	return nil
}
