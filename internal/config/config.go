package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	Port               string
	StoreBackend       string
	OpTimeout          time.Duration
	AllowedOrigins     string
	JWTSecret          string
	AckRequireExisting bool
	MaxPayloadBytes    int
	LogLevel           slog.Level

	Database DatabaseConfig
	Redis    RedisConfig
}

type DatabaseConfig struct {
	URL          string
	Host         string
	User         string
	Password     string
	Name         string
	Port         string
	SSLMode      string
	MaxOpenConns int
}

// ConnString prefers URL and falls back to a key/value DSN built from parts.
func (c DatabaseConfig) ConnString() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Port:            "8080",
		StoreBackend:    BackendPostgres,
		OpTimeout:       5 * time.Second,
		MaxPayloadBytes: 1 << 20,
		LogLevel:        slog.LevelInfo,
		Database: DatabaseConfig{
			Host:         "localhost",
			User:         "messaging",
			Password:     "messaging",
			Name:         "messaging",
			Port:         "5432",
			SSLMode:      "disable",
			MaxOpenConns: 10,
		},
	}
}

// Load reads an optional .env file and overlays the environment on Default.
func Load() (Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := Default()
	if err := FromEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// FromEnv overlays environment variables onto cfg.
func FromEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("STORE_BACKEND"); v != "" {
		cfg.StoreBackend = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("OP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid OP_TIMEOUT: %w", err)
		}
		cfg.OpTimeout = d
	}
	cfg.AllowedOrigins = strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS"))
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if v := os.Getenv("ACK_REQUIRE_EXISTING"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid ACK_REQUIRE_EXISTING: %w", err)
		}
		cfg.AckRequireExisting = b
	}
	if v := os.Getenv("MAX_PAYLOAD_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAX_PAYLOAD_BYTES: %w", err)
		}
		cfg.MaxPayloadBytes = n
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
	}

	db := &cfg.Database
	db.URL = os.Getenv("DATABASE_URL")
	setString(&db.Host, "DB_HOST")
	setString(&db.User, "DB_USER")
	setString(&db.Password, "DB_PASSWORD")
	setString(&db.Name, "DB_NAME")
	setString(&db.Port, "DB_PORT")
	setString(&db.SSLMode, "DB_SSLMODE")
	if v := os.Getenv("DB_MAX_OPEN_CONNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
		}
		db.MaxOpenConns = n
	}

	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.Redis.DB = n
	}
	return nil
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.OpTimeout <= 0 {
		return fmt.Errorf("OP_TIMEOUT must be positive, got %s", c.OpTimeout)
	}
	if c.MaxPayloadBytes <= 0 {
		return fmt.Errorf("MAX_PAYLOAD_BYTES must be positive, got %d", c.MaxPayloadBytes)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
