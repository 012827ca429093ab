// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Neo4j settings
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string

	// Relational store (users + conversations)
	DatabasePath string

	// JWT settings
	JWTSecret     string
	JWTExpiration time.Duration

	// Auth policy: when false the chat surface runs without authentication,
	// balance metering, or ownership checks.
	RequireAuth bool

	// Embedding settings
	EmbeddingProvider string // "gemini" or "openai"
	GeminiAPIKey      string
	EmbeddingModel    string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	ChatModel       string

	// Vector search
	DefaultIndexName string

	// Collaborator call timeout (embedding, retrieval, generation)
	CollaboratorTimeout time.Duration

	// NATS settings (optional usage event stream)
	NATSURL   string
	NATSToken string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from the environment, honoring a local .env file.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// Neo4j
		Neo4jURI:      getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:     getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword: getEnv("NEO4J_PASSWORD", ""),
		Neo4jDatabase: getEnv("NEO4J_DATABASE", ""),

		// Relational store
		DatabasePath: getEnv("DATABASE_PATH", "legal_assistant.db"),

		// JWT
		JWTSecret:     getEnv("JWT_SECRET", "development-secret-change-in-production"),
		JWTExpiration: getDurationEnv("JWT_EXPIRATION", 24*time.Hour),
		RequireAuth:   getBoolEnv("REQUIRE_AUTH", true),

		// Embeddings
		EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "gemini"),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", ""),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		ChatModel:       getEnv("CHAT_MODEL", ""),

		// Vector search
		DefaultIndexName: getEnv("VECTOR_INDEX_NAME", "article_embeddings"),

		CollaboratorTimeout: getDurationEnv("COLLABORATOR_TIMEOUT", 30*time.Second),

		// NATS
		NATSURL:   getEnv("NATS_URL", ""),
		NATSToken: getEnv("NATS_TOKEN", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
