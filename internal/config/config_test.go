package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.API.Addr)
	assert.Equal(t, int64(10<<20), cfg.API.MaxUploadBytes)
	assert.Equal(t, 10, cfg.API.MaxFilesPerUpload)
	assert.Equal(t, int64(1<<30), cfg.API.StorageQuotaBytes)
	assert.Equal(t, "minio", cfg.Storage.Provider)
	assert.Equal(t, "memory", cfg.RateLimit.Backend)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, "jpeg", cfg.Editor.DefaultFormat)
	assert.Equal(t, 95, cfg.Editor.DefaultQuality)
	assert.Empty(t, cfg.Database.DSN)
	assert.GreaterOrEqual(t, cfg.Worker.MaxActiveJobs, 1)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("PHOTOFLOW_API_ADDR", ":9999")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("STORAGE_PROVIDER", "Azure")
	t.Setenv("AZURE_CONTAINER_NAME", "edits")
	t.Setenv("RATE_LIMIT_WINDOW", "90s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("WEBHOOK_MAX_ATTEMPTS", "7")
	t.Setenv("PHOTOFLOW_STORAGE_QUOTA_BYTES", "5242880")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.API.Addr)
	assert.Equal(t, "redis:6380", cfg.Queue.RedisClientOpt().Addr)
	assert.Equal(t, "azure", cfg.Storage.Provider)
	assert.Equal(t, "edits", cfg.Storage.AzureContainer)
	assert.Equal(t, 90*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 7, cfg.Webhook.MaxAttempts)
	assert.Equal(t, int64(5<<20), cfg.API.StorageQuotaBytes)
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Setenv("STORAGE_PROVIDER", "gcs")

	_, err := load(viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage provider")
}

func TestValidateQuality(t *testing.T) {
	cfg, err := load(viper.New())
	require.NoError(t, err)

	cfg.Editor.DefaultQuality = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateStorageQuota(t *testing.T) {
	cfg, err := load(viper.New())
	require.NoError(t, err)

	cfg.API.StorageQuotaBytes = 0
	assert.ErrorContains(t, cfg.Validate(), "storageQuotaBytes")
}
