package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completeConfig() *Config {
	return &Config{
		Warehouse: WarehouseConfig{
			Account:   "acct",
			User:      "user",
			Password:  "pass",
			Database:  "FINANCE",
			Schema:    "ACCRUALS",
			Warehouse: "WH",
		},
		RecordStore: RecordStoreConfig{Driver: "snowflake"},
		Anthropic:   AnthropicConfig{Key: "sk-test"},
		Engine:      EngineConfig{MinAccrualAmountUSD: 5000},
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "snowflake", cfg.RecordStore.Driver)
	assert.Equal(t, float64(5000), cfg.Engine.MinAccrualAmountUSD)
	assert.Equal(t, []string{"4550", "6080", "6090", "6092"}, cfg.Engine.ExcludedGLAccounts)
	assert.Equal(t, 3, cfg.Engine.Workers)
	assert.Equal(t, 1.1, cfg.Engine.StaticRates["EUR"])
	assert.Equal(t, int64(4000), cfg.Anthropic.MaxTokens)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestValidateComplete(t *testing.T) {
	assert.NoError(t, completeConfig().Validate())
}

func TestValidateMissingWarehouseCredentials(t *testing.T) {
	cfg := completeConfig()
	cfg.Warehouse.Password = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warehouse")
}

func TestValidateMissingAnthropicKey(t *testing.T) {
	cfg := completeConfig()
	cfg.Anthropic.Key = ""

	assert.Error(t, cfg.Validate())
}

func TestValidateNonPositiveThreshold(t *testing.T) {
	cfg := completeConfig()
	cfg.Engine.MinAccrualAmountUSD = 0

	assert.Error(t, cfg.Validate())
}

func TestValidatePostgresNeedsURL(t *testing.T) {
	cfg := completeConfig()
	cfg.RecordStore.Driver = "postgres"

	assert.Error(t, cfg.Validate())

	cfg.RecordStore.DatabaseURL = "postgres://localhost/accruals"
	assert.NoError(t, cfg.Validate())
}
