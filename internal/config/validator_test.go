package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAPIKey(t *testing.T) {
	v := NewValidator()

	t.Run("should accept well-formed keys", func(t *testing.T) {
		assert.NoError(t, v.ValidateAPIKey("sk-ant-abc123", "anthropic"))
		assert.NoError(t, v.ValidateAPIKey("sk-abc123", "openai"))
	})

	t.Run("should reject empty keys", func(t *testing.T) {
		assert.Error(t, v.ValidateAPIKey("", "openai"))
	})

	t.Run("should reject keys with the wrong prefix", func(t *testing.T) {
		assert.Error(t, v.ValidateAPIKey("abc123", "anthropic"))
		assert.Error(t, v.ValidateAPIKey("abc123", "openai"))
	})
}

func TestValidateProvider(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateProvider("openai"))
	assert.NoError(t, v.ValidateProvider("anthropic"))
	assert.Error(t, v.ValidateProvider("gemini"))
	assert.Error(t, v.ValidateProvider(""))
}

func TestValidateSessionBackend(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateSessionBackend(""))
	assert.NoError(t, v.ValidateSessionBackend("memory"))
	assert.NoError(t, v.ValidateSessionBackend("jsonl"))
	assert.Error(t, v.ValidateSessionBackend("postgres"))
}

func TestValidatePrice(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidatePrice("10000"))
	assert.Error(t, v.ValidatePrice(""))
	assert.Error(t, v.ValidatePrice("0.5"))
	assert.Error(t, v.ValidatePrice("10 MOVE"))
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	for _, level := range []string{"debug", "info", "warn", "error"} {
		assert.NoError(t, v.ValidateLogLevel(level))
	}
	assert.Error(t, v.ValidateLogLevel("verbose"))
}

func TestValidateConfigCollectsErrors(t *testing.T) {
	v := NewValidator()

	cfg := DefaultConfig()
	cfg.AI.Profiles = []AIProfile{
		{ID: "bad", Provider: "openai", APIKey: "not-a-key"},
	}
	cfg.Payment.Enabled = true
	cfg.Payment.Prices["/api/ai-agent"] = PriceConfig{Amount: "free"}
	cfg.Logging.Level = "verbose"

	errs := v.ValidateConfig(cfg)
	assert.GreaterOrEqual(t, len(errs), 3)
}
