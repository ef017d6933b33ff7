package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds runtime settings for the snaplens server and CLI.
// Values come from an optional YAML file overridden by environment variables.
type Config struct {
	ListenAddr     string `yaml:"listen_addr"`
	GeminiAPIKey   string `yaml:"-"`
	Model          string `yaml:"model"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	LogLevel       string `yaml:"log_level"`
}

// Defaults returns a Config populated with default values.
func Defaults() *Config {
	return &Config{
		ListenAddr:     ":8888",
		Model:          "gemini-2.5-flash",
		MaxUploadBytes: 10 * 1024 * 1024,
		LogLevel:       "info",
	}
}

// Load builds the runtime configuration. The YAML file is optional; its path
// comes from SNAPLENS_CONFIG, falling back to ./snaplens.yml when that exists.
// Environment variables override file values. A missing GEMINI_API_KEY is not
// an error here; API calls will fail at request time instead.
func Load() (*Config, error) {
	cfg := Defaults()

	path := os.Getenv("SNAPLENS_CONFIG")
	if path == "" {
		if _, err := os.Stat("snaplens.yml"); err == nil {
			path = "snaplens.yml"
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	if v := os.Getenv("SNAPLENS_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("SNAPLENS_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("SNAPLENS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}
