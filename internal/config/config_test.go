package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "dataset_clima.csv", cfg.DatasetPath)
	assert.Equal(t, "data_stream-moda.csv", cfg.ReanalysisPath)
	assert.Equal(t, "dataset_modelo.csv", cfg.ProbabilityPath)
	assert.Equal(t, "reportes_usuarios.csv", cfg.ReportsPath)
	assert.Equal(t, "gemini-2.5-flash", cfg.GeminiModel)
	assert.Equal(t, 30*time.Second, cfg.ChatTimeout)
	assert.Equal(t, 24*time.Hour, cfg.ChatSessionTTL)
	assert.Equal(t, 1000, cfg.ChatMaxSessions)
	assert.Equal(t, 30*time.Second, cfg.MLTimeout)
	assert.Equal(t, "drought-reports", cfg.KafkaReportsTopic)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "steps", cfg.TrendSpacing)
	assert.Equal(t, 16, cfg.CacheSize)
	assert.Zero(t, cfg.SiteRadiusKm)
	assert.False(t, cfg.ChatEnabled())
	assert.False(t, cfg.ClassifierEnabled())
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("CHAT_TIMEOUT", "5s")
	t.Setenv("CHAT_SESSION_TTL", "2h")
	t.Setenv("CHAT_MAX_SESSIONS", "50")
	t.Setenv("ML_SERVICE_URL", "http://ml:8000/")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("SITE_RADIUS_KM", "25.5")
	t.Setenv("CALIBRATION_START", "1991")
	t.Setenv("CALIBRATION_END", "2020")
	t.Setenv("TREND_SPACING", "calendar")
	t.Setenv("CACHE_SIZE", "4")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.ChatEnabled())
	assert.Equal(t, 5*time.Second, cfg.ChatTimeout)
	assert.Equal(t, 2*time.Hour, cfg.ChatSessionTTL)
	assert.Equal(t, 50, cfg.ChatMaxSessions)
	assert.Equal(t, "http://ml:8000", cfg.MLServiceURL)
	assert.True(t, cfg.ClassifierEnabled())
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.InDelta(t, 25.5, cfg.SiteRadiusKm, 0)
	assert.Equal(t, 1991, cfg.CalibrationStart)
	assert.Equal(t, 2020, cfg.CalibrationEnd)
	assert.Equal(t, "calendar", cfg.TrendSpacing)
	assert.Equal(t, 4, cfg.CacheSize)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"shutdown timeout", "SHUTDOWN_TIMEOUT", "soon"},
		{"chat timeout", "CHAT_TIMEOUT", "-1s"},
		{"ml timeout", "ML_TIMEOUT", "0s"},
		{"session ttl", "CHAT_SESSION_TTL", "forever"},
		{"max sessions", "CHAT_MAX_SESSIONS", "-5"},
		{"radius", "SITE_RADIUS_KM", "-3"},
		{"calibration start", "CALIBRATION_START", "nineteen"},
		{"trend spacing", "TREND_SPACING", "weekly"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_CalibrationOrder(t *testing.T) {
	t.Setenv("CALIBRATION_START", "2020")
	t.Setenv("CALIBRATION_END", "2010")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ExclusiveStores(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/db")
	t.Setenv("SQLITE_PATH", "reports.db")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidCacheSizeFallsBack(t *testing.T) {
	t.Setenv("CACHE_SIZE", "zero")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.CacheSize)
}
