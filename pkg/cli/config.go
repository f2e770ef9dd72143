package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// UserConfig represents ~/.noco/config.yaml.
type UserConfig struct {
	CurrentProfile string             `yaml:"current-profile"`
	Profiles       map[string]Profile `yaml:"profiles"`
}

// Profile represents a single named configuration profile.
type Profile struct {
	Host      string `yaml:"host,omitempty"`
	BaseID    string `yaml:"base-id,omitempty"`
	Token     string `yaml:"token,omitempty"`
	SchemaDoc string `yaml:"schema-doc,omitempty"`
	Output    string `yaml:"output,omitempty"`
}

// lookup returns the profile value backing an environment variable.
func (p Profile) lookup(key string) string {
	switch key {
	case "NOCODB_BASE_URL":
		return p.Host
	case "NOCODB_BASE_ID":
		return p.BaseID
	case "NOCODB_API_TOKEN":
		return p.Token
	case "NOCODB_SCHEMA_DOC":
		return p.SchemaDoc
	default:
		return ""
	}
}

// ActiveProfile returns the profile to use based on the override or current-profile.
func (c *UserConfig) ActiveProfile(override string) Profile {
	if p, ok := c.Profiles[c.profileName(override)]; ok {
		return p
	}
	return Profile{}
}

func (c *UserConfig) profileName(override string) string {
	if override != "" {
		return override
	}
	if c.CurrentProfile != "" {
		return c.CurrentProfile
	}
	return "default"
}

// ConfigDir returns the path to ~/.noco/.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".noco")
}

// ConfigPath returns the path to ~/.noco/config.yaml.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// LoadUserConfig reads ~/.noco/config.yaml.
func LoadUserConfig() (*UserConfig, error) {
	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg UserConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]Profile{}
	}
	return &cfg, nil
}

// loadOrNewUserConfig returns the stored config, or an empty one with a
// "default" profile selected when none can be read.
func loadOrNewUserConfig() *UserConfig {
	cfg, err := LoadUserConfig()
	if err != nil {
		return &UserConfig{
			CurrentProfile: "default",
			Profiles:       map[string]Profile{},
		}
	}
	return cfg
}

// SaveUserConfig writes ~/.noco/config.yaml. The file holds API tokens, so it
// is only readable by the owner.
func SaveUserConfig(cfg *UserConfig) error {
	if err := os.MkdirAll(ConfigDir(), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(ConfigPath(), data, 0o600)
}
