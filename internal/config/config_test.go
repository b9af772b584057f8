package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, EnvProd, cfg.API.Env)
	assert.Equal(t, "https://api.salesforce.com", cfg.API.ProdHost)
	assert.Equal(t, "https://test.api.salesforce.com", cfg.API.TestHost)
	assert.Equal(t, 3, cfg.API.RetryCount)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Retention.Enabled)
}

func TestDefaultConfig_Validates(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestAPIConfig_Host(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "https://api.salesforce.com", cfg.API.Host())

	cfg.API.Env = EnvTest
	assert.Equal(t, "https://test.api.salesforce.com", cfg.API.Host())
}

func TestValidate_InvalidEnv(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.Env = "staging"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api env")
}

func TestValidate_NegativeRetryCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.RetryCount = -1

	assert.Error(t, cfg.Validate())
}

func TestValidate_RetentionRequiresSchedule(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retention.Enabled = true
	cfg.Retention.Schedule = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retention schedule")
}

func TestValidate_RetentionRequiresPositiveAge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retention.Enabled = true
	cfg.Retention.MaxAge = 0

	assert.Error(t, cfg.Validate())
}

func TestValidate_PollInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Test.PollInterval = 0

	assert.Error(t, cfg.Validate())
}

func TestConfig_String(t *testing.T) {
	s := DefaultConfig().String()
	assert.Contains(t, s, `"api"`)
	assert.Contains(t, s, `"retention"`)
}
