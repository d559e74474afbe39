package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Crypto   CryptoConfig
	Realtime RealtimeConfig
	Kafka    KafkaConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// CryptoConfig holds the process-wide key protecting stored credentials.
type CryptoConfig struct {
	CredentialsKey string
}

// RealtimeConfig tunes the WebSocket fan-out.
type RealtimeConfig struct {
	SendBuffer          int
	PingIntervalSeconds int
	WriteTimeoutSeconds int
	RedisChannel        string
	RelayEnabled        bool
}

// KafkaConfig enables exporting domain events; empty brokers disables it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60*24),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Crypto: CryptoConfig{
			CredentialsKey: os.Getenv("CREDENTIALS_ENCRYPTION_KEY"),
		},
		Realtime: RealtimeConfig{
			SendBuffer:          getEnvAsInt("REALTIME_SEND_BUFFER", 32),
			PingIntervalSeconds: getEnvAsInt("REALTIME_PING_INTERVAL_SECONDS", 25),
			WriteTimeoutSeconds: getEnvAsInt("REALTIME_WRITE_TIMEOUT_SECONDS", 10),
			RedisChannel:        getEnv("REALTIME_REDIS_CHANNEL", "helpdesk:realtime"),
			RelayEnabled:        getEnvAsBool("REALTIME_REDIS_RELAY", true),
		},
		Kafka: KafkaConfig{
			Brokers: ParseList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_TOPIC", "helpdesk.ticket-events"),
		},
	}

	return cfg, nil
}

// Validate reports configuration that must abort startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Crypto.CredentialsKey) == "" {
		return errors.New("CREDENTIALS_ENCRYPTION_KEY is required")
	}
	if c.App.Env == "production" && c.Auth.JWTSecret == "dev-secret" {
		return errors.New("AUTH_JWT_SECRET must be set in production")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// PingInterval returns the WebSocket keep-alive interval.
func (r RealtimeConfig) PingInterval() time.Duration {
	if r.PingIntervalSeconds <= 0 {
		return 25 * time.Second
	}
	return time.Duration(r.PingIntervalSeconds) * time.Second
}

// WriteTimeout returns the per-frame write deadline.
func (r RealtimeConfig) WriteTimeout() time.Duration {
	if r.WriteTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(r.WriteTimeoutSeconds) * time.Second
}

// ParseList splits "a,b,c" into trimmed non-empty parts.
func ParseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
