package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

// MCPProtocolVersion is the tool-server protocol revision this client speaks.
const MCPProtocolVersion = "2025-03-26"

// Config holds all application settings.
type Config struct {
	// OpenAI
	OpenAIAPIKey string `yaml:"openai_api_key"`
	OpenAIModel  string `yaml:"openai_model"`

	// Tool server (RapidAPI-hosted MCP endpoint)
	RapidAPIKey  string `yaml:"rapidapi_key"`
	RapidAPIHost string `yaml:"rapidapi_host"`
	MCPServerURL string `yaml:"mcp_server_url"`

	// HTTP server
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variables, in increasing order of precedence. The YAML file is
// read from RAILCHAT_CONFIG if set, otherwise ./railchat.yml if present.
func Load() (*Config, error) {
	cfg := &Config{
		OpenAIModel:  "gpt-4o-mini",
		RapidAPIHost: "irctc1.p.rapidapi.com",
		MCPServerURL: "https://mcp.rapidapi.com",
		Host:         "0.0.0.0",
		Port:         8000,
	}

	path := os.Getenv("RAILCHAT_CONFIG")
	if path == "" {
		path = "railchat.yml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else if os.Getenv("RAILCHAT_CONFIG") != "" {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	applyEnv(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	applyEnv(&cfg.OpenAIModel, "OPENAI_MODEL")
	applyEnv(&cfg.RapidAPIKey, "RAPIDAPI_KEY")
	applyEnv(&cfg.RapidAPIHost, "RAPIDAPI_HOST")
	applyEnv(&cfg.MCPServerURL, "MCP_SERVER_URL")
	applyEnv(&cfg.Host, "HOST")

	if raw := os.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT value %q: %w", raw, err)
		}
		cfg.Port = port
	}

	return cfg, nil
}

// Validate checks that required credentials are present.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY environment variable is required")
	}
	if c.RapidAPIKey == "" {
		return fmt.Errorf("RAPIDAPI_KEY environment variable is required")
	}
	return nil
}

func applyEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
