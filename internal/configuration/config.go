package configuration

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	MinIO    MinIOConfig
	Server   ServerConfig
	Signing  SigningConfig
	Throttle ThrottleConfig
	Uploads  UploadsConfig

	Environment string
	NATSURL     string
	CLAMAVURL   string
	OIDCIssuer  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type MinIOConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	BucketName string
	UseSSL     bool
}

type ServerConfig struct {
	Port    string
	BaseURL string
}

type SigningConfig struct {
	// Secret signs the short-lived photo access tokens.
	Secret string
	// TokenTTL is the lifetime of a signed photo URL.
	TokenTTL time.Duration
	// CacheMaxAge is the Cache-Control lifetime sent with signed photo responses.
	CacheMaxAge time.Duration
}

type ThrottleConfig struct {
	Window        time.Duration
	MaxRequests   int
	MaxFailures   int
	BlockDuration time.Duration
	CleanupEvery  time.Duration
}

type UploadsConfig struct {
	// Root is the directory derivatives are written to when the local backend is used.
	Root string
	// Backend selects the blob store implementation: "local" or "minio".
	Backend string
	// MaxUploadBytes bounds the size of a raw photo upload.
	MaxUploadBytes int64
}

func Load() *Config {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	env := getEnv("APP_ENV", "development")

	// Production sits behind an edge cache, so tokens live longer and responses
	// may be cached a bit longer. Development favors a short exposure window.
	defaultTTL := 15 * time.Minute
	defaultCache := 10 * time.Second
	if env == "production" {
		defaultTTL = time.Hour
		defaultCache = 60 * time.Second
	}

	return &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "pesouser"),
			Password: getEnv("DB_PASSWORD", "pesopassword"),
			DBName:   getEnv("DB_NAME", "pesotracker"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		MinIO: MinIOConfig{
			Endpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey:  getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey:  getEnv("MINIO_SECRET_KEY", "minioadmin"),
			BucketName: getEnv("MINIO_BUCKET", "peso-photos"),
			UseSSL:     getEnv("MINIO_USE_SSL", "false") == "true",
		},
		Server: ServerConfig{
			Port:    getEnv("SERVER_PORT", "8080"),
			BaseURL: getEnv("BASE_URL", "http://localhost:8080"),
		},
		Signing: SigningConfig{
			Secret:      getEnv("JWT_SECRET", "dev-secret-change-me"),
			TokenTTL:    getDuration("SIGNED_URL_TTL", defaultTTL),
			CacheMaxAge: getDuration("PHOTO_CACHE_MAX_AGE", defaultCache),
		},
		Throttle: ThrottleConfig{
			Window:        getDuration("THROTTLE_WINDOW", time.Minute),
			MaxRequests:   getInt("THROTTLE_MAX_REQUESTS", 100),
			MaxFailures:   getInt("THROTTLE_MAX_FAILURES", 10),
			BlockDuration: getDuration("THROTTLE_BLOCK_DURATION", 15*time.Minute),
			CleanupEvery:  getDuration("THROTTLE_CLEANUP_INTERVAL", 5*time.Minute),
		},
		Uploads: UploadsConfig{
			Root:           getEnv("UPLOADS_ROOT", "./uploads"),
			Backend:        getEnv("STORAGE_BACKEND", "local"),
			MaxUploadBytes: getInt64("MAX_UPLOAD_BYTES", 10<<20),
		},
		Environment: env,
		NATSURL:     getEnv("NATS_URL", ""),
		CLAMAVURL:   getEnv("CLAMAV_URL", ""),
		OIDCIssuer:  getEnv("OIDC_ISSUER", ""),
	}
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
