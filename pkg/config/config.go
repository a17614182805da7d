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

	Database    DatabaseConfig
	Redis       RedisConfig
	CORS        CORSConfig
	Log         LogConfig
	Quota       QuotaConfig
	Uploads     UploadsConfig
	Billing     BillingConfig
	Notifier    NotifierConfig
	Blob        BlobConfig
	Maintenance MaintenanceConfig
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

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// QuotaConfig holds plan defaults and the lifecycle windows for overage handling.
type QuotaConfig struct {
	FreeTierBytes      int64
	PremiumTierBytes   int64
	GracePeriod        time.Duration
	EscalationInterval time.Duration
	ArchiveRetention   time.Duration
	UsageCacheTTL      time.Duration
}

// UploadsConfig tunes chunked upload sessions.
type UploadsConfig struct {
	SessionTTL    time.Duration
	MaxChunkBytes int64
}

// BillingConfig points at the external billing service.
type BillingConfig struct {
	BaseURL string
	Timeout time.Duration
}

// NotifierConfig controls the asynchronous notification dispatcher.
type NotifierConfig struct {
	BaseURL    string
	Timeout    time.Duration
	Workers    int
	MaxRetries int
}

// BlobConfig controls blob storage and signed download URLs.
type BlobConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	WriteTimeout    time.Duration
}

// MaintenanceConfig governs the periodic quota sweep.
type MaintenanceConfig struct {
	Enabled  bool
	Interval time.Duration
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

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Quota = QuotaConfig{
		FreeTierBytes:      v.GetInt64("QUOTA_FREE_TIER_BYTES"),
		PremiumTierBytes:   v.GetInt64("QUOTA_PREMIUM_TIER_BYTES"),
		GracePeriod:        parseDuration(v.GetString("QUOTA_GRACE_PERIOD"), 30*24*time.Hour),
		EscalationInterval: parseDuration(v.GetString("QUOTA_ESCALATION_INTERVAL"), 30*24*time.Hour),
		ArchiveRetention:   parseDuration(v.GetString("QUOTA_ARCHIVE_RETENTION"), 90*24*time.Hour),
		UsageCacheTTL:      parseDuration(v.GetString("QUOTA_USAGE_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Uploads = UploadsConfig{
		SessionTTL:    parseDuration(v.GetString("UPLOADS_SESSION_TTL"), 24*time.Hour),
		MaxChunkBytes: v.GetInt64("UPLOADS_MAX_CHUNK_BYTES"),
	}

	cfg.Billing = BillingConfig{
		BaseURL: v.GetString("BILLING_BASE_URL"),
		Timeout: parseDuration(v.GetString("BILLING_TIMEOUT"), 5*time.Second),
	}

	cfg.Notifier = NotifierConfig{
		BaseURL:    v.GetString("NOTIFIER_BASE_URL"),
		Timeout:    parseDuration(v.GetString("NOTIFIER_TIMEOUT"), 5*time.Second),
		Workers:    v.GetInt("NOTIFIER_WORKERS"),
		MaxRetries: v.GetInt("NOTIFIER_MAX_RETRIES"),
	}

	cfg.Blob = BlobConfig{
		StorageDir:      v.GetString("BLOB_STORAGE_DIR"),
		SignedURLSecret: v.GetString("BLOB_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("BLOB_SIGNED_URL_TTL"), 30*time.Minute),
		WriteTimeout:    parseDuration(v.GetString("BLOB_WRITE_TIMEOUT"), 30*time.Second),
	}

	cfg.Maintenance = MaintenanceConfig{
		Enabled:  v.GetBool("ENABLE_MAINTENANCE_SWEEP"),
		Interval: parseDuration(v.GetString("MAINTENANCE_INTERVAL"), time.Hour),
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
	v.SetDefault("DB_NAME", "vidkeep_storage")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("QUOTA_FREE_TIER_BYTES", int64(5)<<30)
	v.SetDefault("QUOTA_PREMIUM_TIER_BYTES", int64(500)<<30)
	v.SetDefault("QUOTA_GRACE_PERIOD", "720h")
	v.SetDefault("QUOTA_ESCALATION_INTERVAL", "720h")
	v.SetDefault("QUOTA_ARCHIVE_RETENTION", "2160h")
	v.SetDefault("QUOTA_USAGE_CACHE_TTL", "5m")

	v.SetDefault("UPLOADS_SESSION_TTL", "24h")
	v.SetDefault("UPLOADS_MAX_CHUNK_BYTES", int64(32)<<20)

	v.SetDefault("BILLING_BASE_URL", "http://localhost:9090")
	v.SetDefault("BILLING_TIMEOUT", "5s")

	v.SetDefault("NOTIFIER_BASE_URL", "http://localhost:9091")
	v.SetDefault("NOTIFIER_TIMEOUT", "5s")
	v.SetDefault("NOTIFIER_WORKERS", 2)
	v.SetDefault("NOTIFIER_MAX_RETRIES", 3)

	v.SetDefault("BLOB_STORAGE_DIR", "./blobs")
	v.SetDefault("BLOB_SIGNED_URL_SECRET", "dev_blob_secret")
	v.SetDefault("BLOB_SIGNED_URL_TTL", "30m")
	v.SetDefault("BLOB_WRITE_TIMEOUT", "30s")

	v.SetDefault("ENABLE_MAINTENANCE_SWEEP", false)
	v.SetDefault("MAINTENANCE_INTERVAL", "1h")
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
