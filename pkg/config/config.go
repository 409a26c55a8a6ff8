package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageRedis    = "redis"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

type Config struct {
	Env string

	API      APIConfig
	List     ListConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Log      LogConfig
	Metrics  MetricsConfig
}

// APIConfig describes the remote REST API.
type APIConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
	RateBurst int
}

// ListConfig tunes list controllers.
type ListConfig struct {
	PageSize     int
	PollInterval time.Duration
}

// StorageConfig selects where session state is persisted.
type StorageConfig struct {
	Driver      string
	FilePath    string
	SQLitePath  string
	Table       string
	RedisPrefix string
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig exposes prometheus metrics when Addr is set.
type MetricsConfig struct {
	Addr string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")

	cfg.API = APIConfig{
		BaseURL:   strings.TrimRight(v.GetString("API_BASE_URL"), "/"),
		Timeout:   parseDuration(v.GetString("API_TIMEOUT"), 0),
		RateLimit: v.GetFloat64("API_RATE_LIMIT"),
		RateBurst: v.GetInt("API_RATE_BURST"),
	}

	pageSize := v.GetInt("LIST_PAGE_SIZE")
	if pageSize <= 0 {
		pageSize = 6
	}
	cfg.List = ListConfig{
		PageSize:     pageSize,
		PollInterval: parseDuration(v.GetString("LIST_POLL_INTERVAL"), 0),
	}

	cfg.Storage = StorageConfig{
		Driver:      strings.ToLower(v.GetString("STORAGE_DRIVER")),
		FilePath:    expandHome(v.GetString("STORAGE_FILE_PATH")),
		SQLitePath:  expandHome(v.GetString("STORAGE_SQLITE_PATH")),
		Table:       v.GetString("STORAGE_TABLE"),
		RedisPrefix: v.GetString("STORAGE_REDIS_PREFIX"),
	}

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Metrics = MetricsConfig{Addr: v.GetString("METRICS_ADDR")}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)

	v.SetDefault("API_BASE_URL", "http://localhost:8000/api")
	v.SetDefault("API_TIMEOUT", "")
	v.SetDefault("API_RATE_LIMIT", 0)
	v.SetDefault("API_RATE_BURST", 1)

	v.SetDefault("LIST_PAGE_SIZE", 6)
	v.SetDefault("LIST_POLL_INTERVAL", "")

	v.SetDefault("STORAGE_DRIVER", StorageFile)
	v.SetDefault("STORAGE_FILE_PATH", "~/.bde-portal/state.yaml")
	v.SetDefault("STORAGE_SQLITE_PATH", "~/.bde-portal/state.db")
	v.SetDefault("STORAGE_TABLE", "client_state")
	v.SetDefault("STORAGE_REDIS_PREFIX", "bde-portal:")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "bde_portal")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 4)
	v.SetDefault("DB_MAX_IDLE_CONNS", 2)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("LOG_LEVEL", "warn")
	v.SetDefault("LOG_FORMAT", "console")

	v.SetDefault("METRICS_ADDR", "")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return strings.TrimPrefix(path, "~/")
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/"))
}
