package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all configuration for the application
type Config struct {
	Port        string
	DatabaseURL string
	Version     string
	LogLevel    string

	// Model backends. Every backend speaks the OpenAI chat-completions
	// protocol; Groq and OpenRouter differ only in base URL and key.
	OpenAIKey         string
	GroqAPIKey        string
	GroqBaseURL       string
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	Models            string // optional descriptor overrides, see llm.ParseDescriptors

	// Mailbox provider OAuth applications.
	GoogleClientID        string
	GoogleClientSecret    string
	MicrosoftClientID     string
	MicrosoftClientSecret string
	MicrosoftTenant       string
	IMAPTokenURL          string // token endpoint for the generic IMAP provider
	IMAPClientID          string
	IMAPClientSecret      string
	IMAPHost              string
	IMAPPort              int
	SMTPHost              string
	SMTPPort              int

	HistoryLimit          int // conversation turns kept per prompt
	DraftSelectLimit      int // durable drafts addressable by "send draft N"
	ImportanceCacheTTLMin int // importance score cache TTL in minutes
	ImportantKeywords     string
	ClassifierConcurrency int
	LLMRetryCount         int
	LLMBackoffBaseMS      int
	LLMBackoffMaxMS       int
	HTTPTimeoutSeconds    int
}

// Load initializes and returns application configuration
func Load() *Config {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Version:     getEnv("VERSION", "1.0.0"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		GroqAPIKey:        os.Getenv("GROQ_API_KEY"),
		GroqBaseURL:       getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		OpenRouterAPIKey:  os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		Models:            os.Getenv("MODELS"),

		GoogleClientID:        os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:    os.Getenv("GOOGLE_CLIENT_SECRET"),
		MicrosoftClientID:     os.Getenv("MICROSOFT_CLIENT_ID"),
		MicrosoftClientSecret: os.Getenv("MICROSOFT_CLIENT_SECRET"),
		MicrosoftTenant:       getEnv("MICROSOFT_TENANT", "common"),
		IMAPTokenURL:          os.Getenv("IMAP_TOKEN_URL"),
		IMAPClientID:          os.Getenv("IMAP_CLIENT_ID"),
		IMAPClientSecret:      os.Getenv("IMAP_CLIENT_SECRET"),
		IMAPHost:              getEnv("IMAP_HOST", "imap.mail.yahoo.com"),
		IMAPPort:              getEnvInt("IMAP_PORT", 993),
		SMTPHost:              getEnv("SMTP_HOST", "smtp.mail.yahoo.com"),
		SMTPPort:              getEnvInt("SMTP_PORT", 587),

		HistoryLimit:          getEnvInt("HISTORY_LIMIT", 20),
		DraftSelectLimit:      getEnvInt("DRAFT_SELECT_LIMIT", 5),
		ImportanceCacheTTLMin: getEnvInt("IMPORTANCE_CACHE_TTL_MINUTES", 60),
		ImportantKeywords:     getEnv("IMPORTANT_KEYWORDS", "urgent,asap,important,deadline,invoice,interview"),
		ClassifierConcurrency: getEnvInt("CLASSIFIER_CONCURRENCY", 4),
		LLMRetryCount:         getEnvInt("LLM_RETRY_COUNT", 3),
		LLMBackoffBaseMS:      getEnvInt("LLM_BACKOFF_BASE_MS", 500),
		LLMBackoffMaxMS:       getEnvInt("LLM_BACKOFF_MAX_MS", 8000),
		HTTPTimeoutSeconds:    getEnvInt("HTTP_TIMEOUT_SECONDS", 30),
	}

	return config
}

// ImportantKeywordList returns the configured account-level importance
// keywords, lowercased with whitespace trimmed.
func (c *Config) ImportantKeywordList() []string {
	var keywords []string
	for _, k := range strings.Split(c.ImportantKeywords, ",") {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			keywords = append(keywords, k)
		}
	}
	return keywords
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as integer with a default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// SetupLogger configures zerolog with JSON output and single-line format
func (c *Config) SetupLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "mailmind").
		Str("version", c.Version).
		Logger()

	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	return logger
}
