package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all configuration for the application
type Config struct {
	Port               string
	DatabaseURL        string // Primary PostgreSQL store (emails, threads, generations, tasks)
	ArchiveDatabaseURL string // Optional read-only mail archive (MySQL or PostgreSQL)
	RedisURL           string
	Version            string
	LogLevel           string

	OpenAIKey         string
	OpenAIBaseURL     string // Optional OpenAI-compatible endpoint override
	OpenAIFallbackKey string // OpenAI platform key used when the primary endpoint fails
	OpenAITimeout     int    // Completion call timeout in seconds
	EmbeddingModel    string

	SearchBackend  string // qdrant or pgvector
	QdrantHost     string
	QdrantPort     int
	QdrantAPIKey   string
	QdrantUseTLS   bool
	SearchCacheTTL int // seconds, 0 disables the search cache

	ModelsFile         string
	DefaultModel       string // Overrides default_model from the catalogue when set
	AnalysisPromptFile string
	ReplyPromptFile    string

	WorkerCount int
	JobTimeout  int // Per-attempt job timeout in seconds

	SendGridAPIKey string
	NotifyFrom     string

	IMAPHost     string
	IMAPPort     int
	IMAPUseTLS   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMailbox  string
	IMAPBatch    int // messages fetched per run

	EmailImportPath string // directory scanned by the admin mail import

	K8sNamespace string
	JobImage     string
}

// Load initializes and returns application configuration
func Load() *Config {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		ArchiveDatabaseURL: os.Getenv("ARCHIVE_DATABASE_URL"),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379/0"),
		Version:            getEnv("VERSION", "1.0.0"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),

		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     os.Getenv("OPENAI_BASE_URL"),
		OpenAIFallbackKey: os.Getenv("OPENAI_FALLBACK_API_KEY"),
		OpenAITimeout:     getEnvInt("OPENAI_TIMEOUT", 60),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),

		SearchBackend:  getEnv("SEARCH_BACKEND", "qdrant"),
		QdrantHost:     getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:     getEnvInt("QDRANT_PORT", 6334),
		QdrantAPIKey:   os.Getenv("QDRANT_API_KEY"),
		QdrantUseTLS:   getEnvBool("QDRANT_USE_TLS", false),
		SearchCacheTTL: getEnvInt("SEARCH_CACHE_TTL", 300),

		ModelsFile:         os.Getenv("MODELS_FILE"),
		DefaultModel:       os.Getenv("DEFAULT_MODEL"),
		AnalysisPromptFile: os.Getenv("ANALYSIS_PROMPT_FILE"),
		ReplyPromptFile:    os.Getenv("REPLY_PROMPT_FILE"),

		WorkerCount: getEnvInt("WORKER_COUNT", 4),
		JobTimeout:  getEnvInt("JOB_TIMEOUT", 120),

		SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
		NotifyFrom:     getEnv("NOTIFY_FROM", "noreply@support.local"),

		IMAPHost:     os.Getenv("IMAP_HOST"),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPUseTLS:   getEnvBool("IMAP_USE_TLS", true),
		IMAPUser:     os.Getenv("IMAP_USER"),
		IMAPPassword: os.Getenv("IMAP_PASSWORD"),
		IMAPMailbox:  getEnv("IMAP_MAILBOX", "INBOX"),
		IMAPBatch:    getEnvInt("IMAP_BATCH", 50),

		EmailImportPath: getEnv("EMAIL_IMPORT_PATH", "/emails"),

		K8sNamespace: getEnv("K8S_NAMESPACE", "triage"),
		JobImage:     getEnv("JOB_IMAGE", "triage:latest"),
	}

	return config
}

// OpenAITimeoutDuration returns the completion call timeout
func (c *Config) OpenAITimeoutDuration() time.Duration {
	return time.Duration(c.OpenAITimeout) * time.Second
}

// JobTimeoutDuration returns the outer bound for one job attempt
func (c *Config) JobTimeoutDuration() time.Duration {
	return time.Duration(c.JobTimeout) * time.Second
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

// getEnvBool gets an environment variable as boolean with a default fallback
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// SetupLogger configures zerolog with JSON output and single-line format
func (c *Config) SetupLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "triage").
		Str("version", c.Version).
		Logger()

	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	return logger
}
