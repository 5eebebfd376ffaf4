package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis     RedisConfig
	Kafka     KafkaConfig
	RateLimit RateLimitConfig

	SnowflakeNode    int64
	LedgerConfigPath string
	SeedDefaultPlans bool
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PlanCacheTTL time.Duration
}

// Enabled reports whether a redis address was configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// RateLimitConfig bounds API requests per client. A zero rate disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// Enabled reports whether at least one broker was configured.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_NAME", "studioledger"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            strings.ToLower(getenv("DB_TYPE", "postgres")),
		DBHost:            getenv("DB_HOST", "localhost"),
		DBPort:            getenv("DB_PORT", "5432"),
		DBName:            getenv("DB_NAME", "studioledger"),
		DBUser:            getenv("DB_USER", "postgres"),
		DBPassword:        getenv("DB_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DB_SSL_MODE", "disable"),
		DBMaxIdleConn:     getenvInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConn:     getenvInt("DB_MAX_OPEN_CONNS", 50),
		DBConnMaxLifetime: getenvInt("DB_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DB_CONN_MAX_IDLE_TIME", 60),
		Redis: RedisConfig{
			Addr:         strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password:     getenv("REDIS_PASSWORD", ""),
			DB:           getenvInt("REDIS_DB", 0),
			PlanCacheTTL: getenvDuration("PLAN_CACHE_TTL", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:  splitList(getenv("KAFKA_BROKERS", "")),
			Topic:    getenv("KAFKA_TOPIC", "studioledger.events"),
			ClientID: getenv("KAFKA_CLIENT_ID", "studioledger"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getenvFloat("RATE_LIMIT_RPS", 0),
			Burst:             getenvInt("RATE_LIMIT_BURST", 20),
		},
		SnowflakeNode:    getenvInt64("SNOWFLAKE_NODE", 1),
		LedgerConfigPath: strings.TrimSpace(getenv("LEDGER_CONFIG_PATH", "")),
		SeedDefaultPlans: strings.EqualFold(getenv("SEED_DEFAULT_PLANS", "false"), "true"),
	}

	return cfg
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
