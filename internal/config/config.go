package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort           = "8000"
	defaultStagingDir     = "tmp/uploads"
	defaultDataDir        = "data"
	defaultWorkers        = 4
	defaultQueueSize      = 64
	defaultMaxAttempts    = 3
	defaultRetryBackoff   = 60 * time.Second
	defaultTaskTimeout    = time.Hour
	defaultReapInterval   = time.Hour
	defaultStaleUploadTTL = 24 * time.Hour
	defaultLLMBaseURL     = "https://api.openai.com/v1"
	defaultLLMModel       = "gpt-4o-mini"
)

// Config captures server runtime configuration.
type Config struct {
	Port        string
	DatabaseURL string

	// StagingDir holds not-yet-assembled chunks; DataDir holds assembled
	// CSVs and, underneath it, the per-user DuckDB databases.
	StagingDir string
	DataDir    string
	DuckDBRoot string

	Workers      int
	QueueSize    int
	MaxAttempts  int
	RetryBackoff time.Duration
	TaskTimeout  time.Duration

	ReapInterval   time.Duration
	StaleUploadTTL time.Duration

	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
}

// Load reads environment variables into a Config structure.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", defaultPort),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StagingDir:     getEnv("UPLOAD_STAGING_DIR", defaultStagingDir),
		DataDir:        getEnv("DATA_DIR", defaultDataDir),
		DuckDBRoot:     getEnv("DUCKDB_DB_ROOT", ""),
		Workers:        parseInt("INGEST_WORKERS", defaultWorkers),
		QueueSize:      parseInt("INGEST_QUEUE_SIZE", defaultQueueSize),
		MaxAttempts:    parseInt("INGEST_MAX_ATTEMPTS", defaultMaxAttempts),
		RetryBackoff:   parseDuration("INGEST_RETRY_BACKOFF", defaultRetryBackoff),
		TaskTimeout:    parseDuration("INGEST_TASK_TIMEOUT", defaultTaskTimeout),
		ReapInterval:   parseDuration("REAPER_INTERVAL", defaultReapInterval),
		StaleUploadTTL: parseDuration("STALE_UPLOAD_TTL", defaultStaleUploadTTL),
		LLMBaseURL:     getEnv("LLM_BASE_URL", defaultLLMBaseURL),
		LLMAPIKey:      os.Getenv("LLM_API_KEY"),
		LLMModel:       getEnv("LLM_MODEL", defaultLLMModel),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.LLMAPIKey == "" {
		return nil, errors.New("LLM_API_KEY is required")
	}

	if cfg.DuckDBRoot == "" {
		cfg.DuckDBRoot = cfg.DataDir
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if !filepath.IsAbs(cfg.StagingDir) {
		cfg.StagingDir = filepath.Join(os.TempDir(), cfg.StagingDir)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func parseInt(key string, fallback int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	dur, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return dur
}
