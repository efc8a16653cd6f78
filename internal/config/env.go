package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	Port         string
	JWTSecret    string
	LogLevel     string
	LogFormat    string
	AIAPIKey     string
	GenModel     string
	EmbedModel   string
	EmbedDim     int
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	MaxUploadMB      int
	MaxCompressChars int
	MaxEmbedTokens   int
	DBRetryAttempts  int
	DBRetryBase      time.Duration
	SSEHeartbeat     time.Duration
	PipelineWorkers  int
}

// LoadConfig loads the environment variables and returns the config.
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		Port:         getEnv("PORT", "8080"),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "text"),
		AIAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GenModel:     getEnv("GEN_MODEL", "gemini-1.5-flash"),
		EmbedModel:   getEnv("EMBED_MODEL", "gemini-embedding-001"),
		EmbedDim:     getEnvInt("EMBED_DIM", 1024),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", ""),

		MaxUploadMB:      getEnvInt("MAX_UPLOAD_MB", 10),
		MaxCompressChars: getEnvInt("MAX_COMPRESS_CHARS", 100000),
		MaxEmbedTokens:   getEnvInt("MAX_EMBED_TOKENS", 32000),
		DBRetryAttempts:  getEnvInt("DB_RETRY_ATTEMPTS", 3),
		DBRetryBase:      getEnvDuration("DB_RETRY_BASE", time.Second),
		SSEHeartbeat:     getEnvDuration("SSE_HEARTBEAT", 30*time.Second),
		PipelineWorkers:  getEnvInt("PIPELINE_WORKERS", 4),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}
