package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "debug", "json")
	logger.Debug("loaded dataset", "rows", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "loaded dataset", entry["msg"])
	assert.Equal(t, "sarida-backend", entry["service"])
	assert.InDelta(t, 3.0, entry["rows"], 0)
}

func TestNewLogger_TextAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "text")
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.Contains(out, "msg=shown"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func TestNewMetricsForTesting_Independent(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()

	a.ReportsSubmitted.Inc()
	a.CacheLookups.WithLabelValues("analysis", "hit").Inc()

	assert.InDelta(t, 1.0, testutil.ToFloat64(a.ReportsSubmitted), 0)
	assert.InDelta(t, 0.0, testutil.ToFloat64(b.ReportsSubmitted), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(a.CacheLookups.WithLabelValues("analysis", "hit")), 0)
}
