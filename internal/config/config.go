// Package config loads agentmail settings from ~/.agentmail/config.json, or a
// YAML or TOML file, with environment overrides.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/agusx1211/agentmail/internal/jsonfile"
)

const (
	// EnvBase overrides Config.Base.
	EnvBase = "AGENTMAIL_BASE"
	// EnvAPIKey supplies the engine credential.
	EnvAPIKey = "AGENTMAIL_API_KEY"
	// EnvConfig points at a config file.
	EnvConfig = "AGENTMAIL_CONFIG"

	// DefaultBase is relative to the working directory.
	DefaultBase = ".agentmail"
)

// Duration is a time.Duration written as "500ms" or "30m" in config files.
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.parse(s)
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("duration must be a string like \"500ms\" or milliseconds: %s", data)
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!int" {
		var ms int64
		if err := node.Decode(&ms); err != nil {
			return err
		}
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	return d.parse(string(text))
}

func (d *Duration) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// EngineConfig selects the model engine.
type EngineConfig struct {
	Provider string   `json:"provider,omitempty" yaml:"provider,omitempty" toml:"provider,omitempty"`
	Model    string   `json:"model,omitempty" yaml:"model,omitempty" toml:"model,omitempty"`
	Command  string   `json:"command,omitempty" yaml:"command,omitempty" toml:"command,omitempty"`
	Args     []string `json:"args,omitempty" yaml:"args,omitempty" toml:"args,omitempty"`
	// APIKeyEnv names an environment variable holding the credential,
	// consulted when AGENTMAIL_API_KEY is unset.
	APIKeyEnv string `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty" toml:"api_key_env,omitempty"`
}

// WorkerConfig controls spawned workers.
type WorkerConfig struct {
	// Executable defaults to the running agentmail binary.
	Executable string `json:"executable,omitempty" yaml:"executable,omitempty" toml:"executable,omitempty"`
}

// Config holds user-level settings.
type Config struct {
	Base          string       `json:"base,omitempty" yaml:"base,omitempty" toml:"base,omitempty"`
	PollInterval  Duration     `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty" toml:"poll_interval,omitempty"`
	WaitTimeout   Duration     `json:"wait_timeout,omitempty" yaml:"wait_timeout,omitempty" toml:"wait_timeout,omitempty"`
	SessionTTL    Duration     `json:"session_ttl,omitempty" yaml:"session_ttl,omitempty" toml:"session_ttl,omitempty"`
	SweepInterval Duration     `json:"sweep_interval,omitempty" yaml:"sweep_interval,omitempty" toml:"sweep_interval,omitempty"`
	Watch         bool         `json:"watch,omitempty" yaml:"watch,omitempty" toml:"watch,omitempty"`
	SystemPrompt  string       `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty" toml:"system_prompt,omitempty"`
	Engine        EngineConfig `json:"engine" yaml:"engine" toml:"engine"`
	Worker        WorkerConfig `json:"worker" yaml:"worker" toml:"worker"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Base:          DefaultBase,
		PollInterval:  Duration(500 * time.Millisecond),
		WaitTimeout:   Duration(60 * time.Second),
		SessionTTL:    Duration(30 * time.Minute),
		SweepInterval: Duration(5 * time.Minute),
		Engine:        EngineConfig{Provider: "command"},
	}
}

// Dir returns ~/.agentmail.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".agentmail")
}

// DefaultPath returns ~/.agentmail/config.json.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.json")
}

// Load reads path, or $AGENTMAIL_CONFIG, or the default path. A missing file
// yields the defaults. Unset fields take default values and environment
// overrides are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	default:
		var loaded Config
		switch formatOf(path) {
		case formatYAML:
			err = yaml.Unmarshal(data, &loaded)
		case formatTOML:
			_, err = toml.Decode(string(data), &loaded)
		default:
			err = json.Unmarshal(data, &loaded)
		}
		if err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
		cfg.merge(loaded)
	}

	if v := strings.TrimSpace(os.Getenv(EnvBase)); v != "" {
		cfg.Base = v
	}
	if abs, err := filepath.Abs(cfg.Base); err == nil {
		cfg.Base = abs
	}
	return cfg, nil
}

// Save writes cfg to path in the format its extension names, JSON by default.
func Save(path string, cfg *Config) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	var buf bytes.Buffer
	switch formatOf(path) {
	case formatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
	case formatTOML:
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return err
		}
	default:
		return jsonfile.WriteAtomic(path, cfg)
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// APIKey returns the engine credential from the environment.
func (c *Config) APIKey() string {
	if v := strings.TrimSpace(os.Getenv(EnvAPIKey)); v != "" {
		return v
	}
	if name := strings.TrimSpace(c.Engine.APIKeyEnv); name != "" {
		return strings.TrimSpace(os.Getenv(name))
	}
	return ""
}

func (c *Config) merge(o Config) {
	if o.Base != "" {
		c.Base = o.Base
	}
	if o.PollInterval > 0 {
		c.PollInterval = o.PollInterval
	}
	if o.WaitTimeout > 0 {
		c.WaitTimeout = o.WaitTimeout
	}
	if o.SessionTTL > 0 {
		c.SessionTTL = o.SessionTTL
	}
	if o.SweepInterval > 0 {
		c.SweepInterval = o.SweepInterval
	}
	c.Watch = o.Watch
	if o.SystemPrompt != "" {
		c.SystemPrompt = o.SystemPrompt
	}
	if o.Engine.Provider != "" {
		c.Engine.Provider = o.Engine.Provider
	}
	if o.Engine.Model != "" {
		c.Engine.Model = o.Engine.Model
	}
	if o.Engine.Command != "" {
		c.Engine.Command = o.Engine.Command
	}
	if len(o.Engine.Args) > 0 {
		c.Engine.Args = o.Engine.Args
	}
	if o.Engine.APIKeyEnv != "" {
		c.Engine.APIKeyEnv = o.Engine.APIKeyEnv
	}
	if o.Worker.Executable != "" {
		c.Worker.Executable = o.Worker.Executable
	}
}

type format int

const (
	formatJSON format = iota
	formatYAML
	formatTOML
)

func formatOf(path string) format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	case ".toml":
		return formatTOML
	default:
		return formatJSON
	}
}
