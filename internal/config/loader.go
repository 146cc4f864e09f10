package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds the daemon's runtime settings. Zero values mean
// "unspecified"; main fills in defaults after merging flags.
type Config struct {
	Addr        string `json:"addr" yaml:"addr" toml:"addr"`
	KernelURL   string `json:"kernel_url" yaml:"kernel_url" toml:"kernel_url"`
	KernelToken string `json:"kernel_token" yaml:"kernel_token" toml:"kernel_token"`
	SessionName string `json:"session_name" yaml:"session_name" toml:"session_name"`
	StateFile   string `json:"state_file" yaml:"state_file" toml:"state_file"`

	// AutosaveSeconds <= 0 disables the autosave ticker.
	AutosaveSeconds int `json:"autosave_seconds" yaml:"autosave_seconds" toml:"autosave_seconds"`

	// Timeouts in seconds; 0 means wait forever.
	KernelWaitTimeoutSeconds   int `json:"kernel_wait_timeout_seconds" yaml:"kernel_wait_timeout_seconds" toml:"kernel_wait_timeout_seconds"`
	StateRequestTimeoutSeconds int `json:"state_request_timeout_seconds" yaml:"state_request_timeout_seconds" toml:"state_request_timeout_seconds"`

	DropDefaults bool     `json:"drop_defaults" yaml:"drop_defaults" toml:"drop_defaults"`
	CORSOrigins  []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	LogLevel     string   `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Load parses a config file, picking the codec from its extension.
// Supported: .yaml/.yml, .json and .toml.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	var unmarshal func([]byte, any) error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	case ".json":
		unmarshal = json.Unmarshal
	case ".toml":
		unmarshal = toml.Unmarshal
	default:
		return cfg, fmt.Errorf("unsupported config extension %q", ext)
	}
	if err := unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}
