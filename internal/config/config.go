package config

import (
	"encoding/json"
	"fmt"
)

// API environment names selecting the remote host.
const (
	EnvProd = "prod"
	EnvTest = "test"
)

// Config represents the SDK configuration
type Config struct {
	// API holds remote endpoint settings
	API APIConfig `json:"api" mapstructure:"api"`

	// MockDir, when set, replays fixture files instead of live requests
	MockDir string `json:"mock_dir" mapstructure:"mock_dir"`

	// ProjectDir is the local state root; session history lives under
	// <project_dir>/.sfdx/agents/
	ProjectDir string `json:"project_dir" mapstructure:"project_dir"`

	// DataDir holds SDK-owned files (logs, audit trail)
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Test holds evaluation run settings
	Test TestConfig `json:"test" mapstructure:"test"`

	// Retention controls local session history housekeeping
	Retention RetentionConfig `json:"retention" mapstructure:"retention"`
}

// APIConfig holds remote endpoint settings
type APIConfig struct {
	Env        string `json:"env" mapstructure:"env"` // prod, test
	ProdHost   string `json:"prod_host" mapstructure:"prod_host"`
	TestHost   string `json:"test_host" mapstructure:"test_host"`
	RetryCount int    `json:"retry_count" mapstructure:"retry_count"`
	Timeout    int    `json:"timeout" mapstructure:"timeout"` // seconds
}

// Host returns the API host selected by the environment toggle.
func (a APIConfig) Host() string {
	if a.Env == EnvTest {
		return a.TestHost
	}
	return a.ProdHost
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// TestConfig holds evaluation run settings
type TestConfig struct {
	PollInterval int `json:"poll_interval" mapstructure:"poll_interval"` // seconds
	PollTimeout  int `json:"poll_timeout" mapstructure:"poll_timeout"`   // seconds
}

// RetentionConfig controls the local session history sweeper
type RetentionConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Schedule string `json:"schedule" mapstructure:"schedule"` // cron expression
	MaxAge   int    `json:"max_age" mapstructure:"max_age"`   // days
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Env:        EnvProd,
			ProdHost:   "https://api.salesforce.com",
			TestHost:   "https://test.api.salesforce.com",
			RetryCount: 3,
			Timeout:    120,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   50,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Test: TestConfig{
			PollInterval: 2,
			PollTimeout:  600,
		},
		Retention: RetentionConfig{
			Enabled:  false,
			Schedule: "0 3 * * *",
			MaxAge:   30,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.API.Env != EnvProd && c.API.Env != EnvTest {
		return fmt.Errorf("invalid api env %q (must be: prod, test)", c.API.Env)
	}
	if c.API.ProdHost == "" || c.API.TestHost == "" {
		return fmt.Errorf("api hosts must not be empty")
	}
	if c.API.RetryCount < 0 {
		return fmt.Errorf("api retry_count must not be negative")
	}
	if c.Test.PollInterval <= 0 {
		return fmt.Errorf("test poll_interval must be positive")
	}
	if c.Retention.Enabled {
		if c.Retention.Schedule == "" {
			return fmt.Errorf("retention schedule is required when retention is enabled")
		}
		if c.Retention.MaxAge <= 0 {
			return fmt.Errorf("retention max_age must be positive")
		}
	}
	return nil
}
