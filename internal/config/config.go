package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the application configuration
type Config struct {
	API    APIConfig    `json:"api"`
	Image  ImageConfig  `json:"image"`
	Retry  RetryConfig  `json:"retry"`
	Ollama OllamaConfig `json:"ollama"`
	Output OutputConfig `json:"output"`
}

// APIConfig holds configuration for the hosted inference endpoint
type APIConfig struct {
	Endpoint              string `json:"endpoint"`
	TokenEnv              string `json:"token_env"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// ImageConfig holds configuration for upload normalization
type ImageConfig struct {
	MaxDimension int `json:"max_dimension"`
	JPEGQuality  int `json:"jpeg_quality"`
}

// RetryConfig holds configuration for the request retry loop
type RetryConfig struct {
	MaxAttempts          int `json:"max_attempts"`
	DelaySeconds         int `json:"delay_seconds"`
	WarmupBufferSeconds  int `json:"warmup_buffer_seconds"`
	MaxWarmupWaitSeconds int `json:"max_warmup_wait_seconds"`
}

// OllamaConfig holds configuration for the local vision backend
type OllamaConfig struct {
	URL   string `json:"url"`
	Model string `json:"model"`
}

// OutputConfig holds configuration for result persistence
type OutputConfig struct {
	Dir string `json:"dir"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		API: APIConfig{
			Endpoint:              "https://api-inference.huggingface.co/models/mattmdjaga/segformer_b3_clothes",
			TokenEnv:              "HF_TOKEN",
			RequestTimeoutSeconds: 60,
		},
		Image: ImageConfig{
			MaxDimension: 1024,
			JPEGQuality:  85,
		},
		Retry: RetryConfig{
			MaxAttempts:          3,
			DelaySeconds:         5,
			WarmupBufferSeconds:  2,
			MaxWarmupWaitSeconds: 120,
		},
		Ollama: OllamaConfig{
			URL:   "http://localhost:11434",
			Model: "llava",
		},
		Output: OutputConfig{
			Dir: "output",
		},
	}
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.API.Endpoint == "" {
		return fmt.Errorf("api.endpoint cannot be empty")
	}

	if c.API.TokenEnv == "" {
		return fmt.Errorf("api.token_env cannot be empty")
	}

	if c.API.RequestTimeoutSeconds < 1 {
		return fmt.Errorf("api.request_timeout_seconds must be positive")
	}

	if c.Image.MaxDimension < 1 {
		return fmt.Errorf("image.max_dimension must be positive")
	}

	if c.Image.JPEGQuality < 1 || c.Image.JPEGQuality > 100 {
		return fmt.Errorf("image.jpeg_quality must be between 1 and 100")
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be positive")
	}

	if c.Retry.DelaySeconds < 1 {
		return fmt.Errorf("retry.delay_seconds must be positive")
	}

	if c.Retry.MaxWarmupWaitSeconds < c.Retry.DelaySeconds {
		return fmt.Errorf("retry.max_warmup_wait_seconds must not be below retry.delay_seconds")
	}

	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir cannot be empty")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "modetrend", "config.json")
}
