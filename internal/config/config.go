package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ClientConfig is the per-client policy block: whether payload fields are
// stored compressed, and the rate-limit budget for outbound remote calls.
type ClientConfig struct {
	CompressionEnabled    bool
	RateLimitMaxAttempts  int
	RateLimitDecaySeconds int
}

type Config struct {
	Clients map[string]ClientConfig

	DefaultCompressionEnabled    bool
	DefaultRateLimitMaxAttempts  int
	DefaultRateLimitDecaySeconds int

	MigrationBatchSize  int
	MigrationRowsPerSec int
	CopyProcessingState bool

	PurgeInterval  time.Duration
	ArchiveEnabled bool

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	ListenAddr      string
	AdminRateLimit  int
	AdminRateWindow time.Duration

	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     string
	PostgresDatabase string
	PostgresSSLMode  string
}

func Load() *Config {
	// Best effort; the environment wins over .env values.
	_ = godotenv.Load()

	cfg := &Config{
		Clients: make(map[string]ClientConfig),

		DefaultCompressionEnabled:    getEnvBool("APICACHE_COMPRESSION_ENABLED", false),
		DefaultRateLimitMaxAttempts:  getEnvInt("APICACHE_RATE_LIMIT_MAX_ATTEMPTS", 1000),
		DefaultRateLimitDecaySeconds: getEnvInt("APICACHE_RATE_LIMIT_DECAY_SECONDS", 60),

		MigrationBatchSize:  getEnvInt("APICACHE_MIGRATION_BATCH_SIZE", 100),
		MigrationRowsPerSec: getEnvInt("APICACHE_MIGRATION_ROWS_PER_SEC", 0),
		CopyProcessingState: getEnvBool("APICACHE_MIGRATION_COPY_PROCESSING_STATE", false),

		PurgeInterval:  getEnvDuration("APICACHE_PURGE_INTERVAL", 30*time.Minute),
		ArchiveEnabled: getEnvBool("APICACHE_ARCHIVE_ENABLED", false),

		S3Bucket:    getEnv("S3_BUCKET", "api-cache-archive"),
		S3Region:    getEnv("AWS_REGION", "us-east-1"),
		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3AccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		S3SecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),

		ListenAddr:      getEnv("APICACHE_LISTEN_ADDR", ":8090"),
		AdminRateLimit:  getEnvInt("APICACHE_ADMIN_RATE_LIMIT", 100),
		AdminRateWindow: getEnvDuration("APICACHE_ADMIN_RATE_WINDOW", time.Minute),

		PostgresUser:     getEnv("POSTGRES_USER", "apicache"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDatabase: getEnv("POSTGRES_DATABASE", "api_cache"),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),
	}

	for _, name := range splitList(getEnv("APICACHE_CLIENTS", "")) {
		cfg.Clients[name] = cfg.loadClient(name)
	}

	if cfg.ArchiveEnabled && (cfg.S3AccessKey == "" || cfg.S3SecretKey == "") {
		panic("AWS credentials must be provided when archiving is enabled")
	}

	return cfg
}

// Client returns the configured block for a client, falling back to the
// process-wide defaults for clients that were never declared.
func (c *Config) Client(name string) ClientConfig {
	if cc, ok := c.Clients[name]; ok {
		return cc
	}
	return ClientConfig{
		CompressionEnabled:    c.DefaultCompressionEnabled,
		RateLimitMaxAttempts:  c.DefaultRateLimitMaxAttempts,
		RateLimitDecaySeconds: c.DefaultRateLimitDecaySeconds,
	}
}

// ClientNames returns the declared client names.
func (c *Config) ClientNames() []string {
	names := make([]string, 0, len(c.Clients))
	for name := range c.Clients {
		names = append(names, name)
	}
	return names
}

func (c *Config) loadClient(name string) ClientConfig {
	prefix := "APICACHE_" + envKey(name) + "_"
	return ClientConfig{
		CompressionEnabled:    getEnvBool(prefix+"COMPRESSION_ENABLED", c.DefaultCompressionEnabled),
		RateLimitMaxAttempts:  getEnvInt(prefix+"RATE_LIMIT_MAX_ATTEMPTS", c.DefaultRateLimitMaxAttempts),
		RateLimitDecaySeconds: getEnvInt(prefix+"RATE_LIMIT_DECAY_SECONDS", c.DefaultRateLimitDecaySeconds),
	}
}

func envKey(client string) string {
	return strings.ToUpper(strings.ReplaceAll(client, "-", "_"))
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
