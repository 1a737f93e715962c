package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultBroker = "localhost:9092"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "qc-findings", cfg.KafkaFindingsTopic)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, "qc.db", cfg.DBPath)
	assert.False(t, cfg.SaveForecasts)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, 60*time.Second, cfg.CacheTTL)
	assert.Equal(t, "*/15 * * * *", cfg.CheckSchedule)
	assert.Equal(t, "working", cfg.Preset)
	assert.Equal(t, 1, cfg.Parallelism)
	assert.Empty(t, cfg.CountyAPIURL)
	assert.Equal(t, 5*time.Second, cfg.CountyAPITimeout)
	assert.Equal(t, 100, cfg.CountyCacheSize)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_FINDINGS_TOPIC", "custom-findings")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("DB_PATH", "/data/qc.db")
	t.Setenv("SAVE_FORECASTS", "true")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("CACHE_TTL", "2m")
	t.Setenv("CHECK_SCHEDULE", "0 * * * *")
	t.Setenv("QC_PRESET", "legacy")
	t.Setenv("QC_PARALLELISM", "8")
	t.Setenv("COUNTY_API_URL", "http://county.local")
	t.Setenv("COUNTY_API_TIMEOUT", "10s")
	t.Setenv("COUNTY_CACHE_SIZE", "500")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-findings", cfg.KafkaFindingsTopic)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, "/data/qc.db", cfg.DBPath)
	assert.True(t, cfg.SaveForecasts)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 2*time.Minute, cfg.CacheTTL)
	assert.Equal(t, "0 * * * *", cfg.CheckSchedule)
	assert.Equal(t, "legacy", cfg.Preset)
	assert.Equal(t, 8, cfg.Parallelism)
	assert.Equal(t, "http://county.local", cfg.CountyAPIURL)
	assert.Equal(t, 10*time.Second, cfg.CountyAPITimeout)
	assert.Equal(t, 500, cfg.CountyCacheSize)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration"},
		{"SHUTDOWN_TIMEOUT", "-1s"},
		{"CACHE_TTL", "bad"},
		{"CACHE_TTL", "0s"},
		{"COUNTY_API_TIMEOUT", "bad"},
		{"QC_PARALLELISM", "0"},
		{"QC_PARALLELISM", "many"},
		{"CHECK_SCHEDULE", "every now and then"},
		{"QC_PRESET", "bogus"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_EmptyTopicUsesDefault(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_FINDINGS_TOPIC", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "qc-findings", cfg.KafkaFindingsTopic)
}

func TestLoad_InvalidCountyCacheSizeFallsBack(t *testing.T) {
	t.Setenv("COUNTY_CACHE_SIZE", "-5")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.CountyCacheSize)
}
