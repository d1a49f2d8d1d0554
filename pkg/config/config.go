package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig                 `json:"app" yaml:"app"`
	Gateways  map[string]GatewayConfig  `json:"gateways" yaml:"gateways"`
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Server    ServerConfig              `json:"server" yaml:"server"`
	Store     StoreConfig               `json:"store" yaml:"store"`
	Agent     AgentConfig               `json:"agent" yaml:"agent"`
	Vision    VisionConfig              `json:"vision" yaml:"vision"`
}

type AppConfig struct {
	Name string `json:"name" yaml:"name"`
}

type GatewayConfig struct {
	Token   string `json:"token" yaml:"token"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

type ServerConfig struct {
	Addr  string `json:"addr" yaml:"addr"`
	Debug bool   `json:"debug" yaml:"debug"`
}

type StoreConfig struct {
	Path string `json:"path" yaml:"path"`
}

type AgentConfig struct {
	MaxIterations      int     `json:"max_iterations" yaml:"max_iterations"`
	TurnTimeoutSeconds int     `json:"turn_timeout_seconds" yaml:"turn_timeout_seconds"`
	RequestsPerSecond  float64 `json:"requests_per_second" yaml:"requests_per_second"`
	Burst              int     `json:"burst" yaml:"burst"`
	PromptDir          string  `json:"prompt_dir" yaml:"prompt_dir"`
	HistoryLimit       int     `json:"history_limit" yaml:"history_limit"`
	ApprovalTTLMinutes int     `json:"approval_ttl_minutes" yaml:"approval_ttl_minutes"`
	// ReplayGuardMinutes > 0 refuses re-execution of a plan_id for that long.
	ReplayGuardMinutes int  `json:"replay_guard_minutes" yaml:"replay_guard_minutes"`
	WebTools           bool `json:"web_tools" yaml:"web_tools"`
}

type VisionConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Model overrides the chat model for attachment reading.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`
}

// Load reads a .json, .yaml or .yml file, fills defaults and applies
// OPENAI_API_KEY and TELEGRAM_BOT_TOKEN from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv(os.Getenv)
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	cfg.applyEnv(os.Getenv)
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "salesagent"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Store.Path == "" {
		c.Store.Path = "salesagent.db"
	}
	if c.Agent.MaxIterations <= 0 {
		c.Agent.MaxIterations = 10
	}
	if c.Agent.TurnTimeoutSeconds <= 0 {
		c.Agent.TurnTimeoutSeconds = 30
	}
	if c.Agent.PromptDir == "" {
		c.Agent.PromptDir = "./prompts"
	}
	if c.Agent.HistoryLimit <= 0 {
		c.Agent.HistoryLimit = 20
	}
	if c.Agent.ApprovalTTLMinutes <= 0 {
		c.Agent.ApprovalTTLMinutes = 60
	}
	if c.Agent.Burst <= 0 {
		c.Agent.Burst = 1
	}
}

func (c *Config) applyEnv(getenv func(string) string) {
	if key := getenv("OPENAI_API_KEY"); key != "" {
		if c.Providers == nil {
			c.Providers = make(map[string]ProviderConfig)
		}
		p, ok := c.Providers["openai"]
		if !ok {
			p = ProviderConfig{Model: "gpt-4o-mini", Enabled: true}
		}
		p.APIKey = key
		c.Providers["openai"] = p
	}
	if token := getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		if c.Gateways == nil {
			c.Gateways = make(map[string]GatewayConfig)
		}
		c.Gateways["telegram"] = GatewayConfig{Token: token, Enabled: true}
	}
}

func (c *Config) TurnTimeout() time.Duration {
	return time.Duration(c.Agent.TurnTimeoutSeconds) * time.Second
}

func (c *Config) ApprovalTTL() time.Duration {
	return time.Duration(c.Agent.ApprovalTTLMinutes) * time.Minute
}

func (c *Config) ReplayGuard() time.Duration {
	return time.Duration(c.Agent.ReplayGuardMinutes) * time.Minute
}

// GetDefaultProvider returns the first enabled provider
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	for name, p := range c.Providers {
		if p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (GatewayConfig, bool) {
	tg, ok := c.Gateways["telegram"]
	if ok && tg.Enabled && tg.Token != "" {
		return tg, true
	}
	return GatewayConfig{}, false
}
