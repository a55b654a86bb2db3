package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LLM_API_KEY", "k")

	_, err := Load()
	require.ErrorContains(t, err, "DATABASE_URL")
}

func TestLoadRequiresLLMAPIKey(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("LLM_API_KEY", "")

	_, err := Load()
	require.ErrorContains(t, err, "LLM_API_KEY")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("LLM_API_KEY", "k")
	for _, key := range []string{
		"PORT", "UPLOAD_STAGING_DIR", "DATA_DIR", "DUCKDB_DB_ROOT",
		"INGEST_WORKERS", "INGEST_MAX_ATTEMPTS", "INGEST_RETRY_BACKOFF",
		"INGEST_TASK_TIMEOUT", "REAPER_INTERVAL", "STALE_UPLOAD_TTL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.RetryBackoff)
	assert.Equal(t, time.Hour, cfg.TaskTimeout)
	assert.Equal(t, 24*time.Hour, cfg.StaleUploadTTL)
	assert.Equal(t, cfg.DataDir, cfg.DuckDBRoot)
	assert.True(t, len(cfg.StagingDir) > 0)
}

func TestLoadOverridesAndFallbacks(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("LLM_API_KEY", "k")
	t.Setenv("INGEST_RETRY_BACKOFF", "5s")
	t.Setenv("INGEST_WORKERS", "not-a-number")
	t.Setenv("STALE_UPLOAD_TTL", "48h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.RetryBackoff)
	assert.Equal(t, 4, cfg.Workers, "unparsable value falls back to default")
	assert.Equal(t, 48*time.Hour, cfg.StaleUploadTTL)
}
