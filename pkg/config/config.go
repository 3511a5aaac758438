package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	SMTP          SMTPConfig
	Notifications NotificationsConfig
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

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SMTPConfig holds the injected email transport settings. Credentials come
// from the environment store and are never hard-coded.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	SendTimeout time.Duration
}

// Valid reports whether the transport is configured well enough to attempt a send.
func (c SMTPConfig) Valid() bool {
	return c.Host != "" && c.Port > 0 && c.From != ""
}

// NotificationsConfig governs delivery policy and dispatcher behaviour.
type NotificationsConfig struct {
	OptionalEmailEnabled bool
	SuppressionWindow    time.Duration
	DrainBatchSize       int
	DrainInterval        time.Duration
	FailureThreshold     int
	FailureWindow        time.Duration
	DueSoonLeadDays      int
	LowStockThreshold    int
	UnreadCountCacheTTL  time.Duration
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
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

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

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.SMTP = SMTPConfig{
		Host:        v.GetString("SMTP_HOST"),
		Port:        v.GetInt("SMTP_PORT"),
		Username:    v.GetString("SMTP_USERNAME"),
		Password:    v.GetString("SMTP_PASSWORD"),
		From:        v.GetString("SMTP_FROM"),
		SendTimeout: parseDuration(v.GetString("SMTP_SEND_TIMEOUT"), 10*time.Second),
	}

	cfg.Notifications = NotificationsConfig{
		OptionalEmailEnabled: v.GetBool("NOTIFY_OPTIONAL_EMAIL"),
		SuppressionWindow:    parseDuration(v.GetString("NOTIFY_SUPPRESSION_WINDOW"), 24*time.Hour),
		DrainBatchSize:       v.GetInt("NOTIFY_DRAIN_BATCH_SIZE"),
		DrainInterval:        parseDuration(v.GetString("NOTIFY_DRAIN_INTERVAL"), time.Minute),
		FailureThreshold:     v.GetInt("NOTIFY_FAILURE_THRESHOLD"),
		FailureWindow:        parseDuration(v.GetString("NOTIFY_FAILURE_WINDOW"), 15*time.Minute),
		DueSoonLeadDays:      v.GetInt("NOTIFY_DUE_SOON_LEAD_DAYS"),
		LowStockThreshold:    v.GetInt("NOTIFY_LOW_STOCK_THRESHOLD"),
		UnreadCountCacheTTL:  parseDuration(v.GetString("NOTIFY_UNREAD_CACHE_TTL"), 30*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "perpus_sma")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("SMTP_SEND_TIMEOUT", "10s")

	v.SetDefault("NOTIFY_OPTIONAL_EMAIL", false)
	v.SetDefault("NOTIFY_SUPPRESSION_WINDOW", "24h")
	v.SetDefault("NOTIFY_DRAIN_BATCH_SIZE", 25)
	v.SetDefault("NOTIFY_DRAIN_INTERVAL", "1m")
	v.SetDefault("NOTIFY_FAILURE_THRESHOLD", 3)
	v.SetDefault("NOTIFY_FAILURE_WINDOW", "15m")
	v.SetDefault("NOTIFY_DUE_SOON_LEAD_DAYS", 2)
	v.SetDefault("NOTIFY_LOW_STOCK_THRESHOLD", 1)
	v.SetDefault("NOTIFY_UNREAD_CACHE_TTL", "30s")
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

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
