package config

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 20, cfg.HistoryLimit)
	assert.Equal(t, 5, cfg.DraftSelectLimit)
	assert.Equal(t, 60, cfg.ImportanceCacheTTLMin)
	assert.Equal(t, 3, cfg.LLMRetryCount)
	assert.Equal(t, 500, cfg.LLMBackoffBaseMS)
	assert.Equal(t, 8000, cfg.LLMBackoffMaxMS)
	assert.Equal(t, "https://api.groq.com/openai/v1", cfg.GroqBaseURL)
	assert.Equal(t, "common", cfg.MicrosoftTenant)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("HISTORY_LIMIT", "8")
	t.Setenv("LLM_RETRY_COUNT", "5")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 8, cfg.HistoryLimit)
	assert.Equal(t, 5, cfg.LLMRetryCount)
}

func TestLoad_InvalidIntFallsBack(t *testing.T) {
	t.Setenv("HISTORY_LIMIT", "not-a-number")

	cfg := Load()
	assert.Equal(t, 20, cfg.HistoryLimit)
}

func TestImportantKeywordList(t *testing.T) {
	t.Setenv("IMPORTANT_KEYWORDS", " Urgent, ASAP ,,deadline ")

	cfg := Load()
	assert.Equal(t, []string{"urgent", "asap", "deadline"}, cfg.ImportantKeywordList())
}

func TestSetupLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	cfg := Load()

	logger := cfg.SetupLogger()
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())

	t.Setenv("LOG_LEVEL", "bogus")
	cfg = Load()
	logger = cfg.SetupLogger()
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}
