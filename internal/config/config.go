package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the vidhive server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Storage    StorageConfig
	Upload     UploadConfig
	Processing ProcessingConfig
	Classifier ClassifierConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type StorageConfig struct {
	Backend string // "local" or "s3"

	LocalPath    string
	LocalBaseURL string

	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKeyID  string
	S3SecretKey    string
	S3UsePathStyle bool
}

type UploadConfig struct {
	MaxBytes      int64
	AcceptedTypes []string
}

type ProcessingConfig struct {
	StageTimeout  time.Duration
	MaxConcurrent int
}

type ClassifierConfig struct {
	Provider string // "rules", "remote", "mock"

	RemoteURL     string
	RemoteTimeout time.Duration

	FlaggedTerms []string
}

var validBackends = map[string]bool{
	"local": true,
	"s3":    true,
}

var validClassifiers = map[string]bool{
	"rules":  true,
	"remote": true,
	"mock":   true,
}

// defaultAcceptedTypes matches the upload media types the service accepts.
var defaultAcceptedTypes = []string{
	"video/mp4",
	"video/webm",
	"video/ogg",
	"video/quicktime",
	"video/x-msvideo",
}

const defaultMaxBytes = 500 << 20 // 500 MiB

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("VIDHIVE_PORT", 8080),
			Env:  envString("VIDHIVE_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Storage: StorageConfig{
			Backend:        envString("STORAGE_BACKEND", "local"),
			LocalPath:      envString("STORAGE_LOCAL_PATH", "data/videos"),
			LocalBaseURL:   envString("STORAGE_LOCAL_BASE_URL", "/media"),
			S3Bucket:       os.Getenv("STORAGE_S3_BUCKET"),
			S3Region:       envString("STORAGE_S3_REGION", "us-east-1"),
			S3Endpoint:     os.Getenv("STORAGE_S3_ENDPOINT"),
			S3AccessKeyID:  os.Getenv("STORAGE_S3_ACCESS_KEY_ID"),
			S3SecretKey:    os.Getenv("STORAGE_S3_SECRET_KEY"),
			S3UsePathStyle: envBool("STORAGE_S3_USE_PATH_STYLE", false),
		},
		Upload: UploadConfig{
			MaxBytes:      envInt64("UPLOAD_MAX_BYTES", defaultMaxBytes),
			AcceptedTypes: envList("UPLOAD_ACCEPTED_TYPES", defaultAcceptedTypes),
		},
		Processing: ProcessingConfig{
			StageTimeout:  envDuration("PROCESSING_STAGE_TIMEOUT", 2*time.Minute),
			MaxConcurrent: envInt("PROCESSING_MAX_CONCURRENT", 8),
		},
		Classifier: ClassifierConfig{
			Provider:      envString("CLASSIFIER_PROVIDER", "rules"),
			RemoteURL:     os.Getenv("CLASSIFIER_REMOTE_URL"),
			RemoteTimeout: envDuration("CLASSIFIER_REMOTE_TIMEOUT", 30*time.Second),
			FlaggedTerms:  envList("CLASSIFIER_FLAGGED_TERMS", nil),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validBackends[c.Storage.Backend] {
		return fmt.Errorf("STORAGE_BACKEND must be one of local, s3; got %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "s3" {
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("STORAGE_S3_BUCKET is required when STORAGE_BACKEND is s3")
		}
		if c.Storage.S3AccessKeyID == "" || c.Storage.S3SecretKey == "" {
			return fmt.Errorf("STORAGE_S3_ACCESS_KEY_ID and STORAGE_S3_SECRET_KEY are required when STORAGE_BACKEND is s3")
		}
	}
	if c.Storage.Backend == "local" && c.Storage.LocalPath == "" {
		return fmt.Errorf("STORAGE_LOCAL_PATH is required when STORAGE_BACKEND is local")
	}

	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive, got %d", c.Upload.MaxBytes)
	}
	if len(c.Upload.AcceptedTypes) == 0 {
		return fmt.Errorf("UPLOAD_ACCEPTED_TYPES must not be empty")
	}

	if c.Processing.StageTimeout <= 0 {
		return fmt.Errorf("PROCESSING_STAGE_TIMEOUT must be positive")
	}
	if c.Processing.MaxConcurrent <= 0 {
		return fmt.Errorf("PROCESSING_MAX_CONCURRENT must be positive")
	}

	if !validClassifiers[c.Classifier.Provider] {
		return fmt.Errorf("CLASSIFIER_PROVIDER must be one of rules, remote, mock; got %q", c.Classifier.Provider)
	}
	if c.Classifier.Provider == "remote" {
		if c.Classifier.RemoteURL == "" {
			return fmt.Errorf("CLASSIFIER_REMOTE_URL is required when CLASSIFIER_PROVIDER is remote")
		}
		if !strings.HasPrefix(c.Classifier.RemoteURL, "http://") && !strings.HasPrefix(c.Classifier.RemoteURL, "https://") {
			return fmt.Errorf("CLASSIFIER_REMOTE_URL must start with http:// or https://, got %q", c.Classifier.RemoteURL)
		}
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
