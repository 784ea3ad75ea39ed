package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "info", "json")

	logger.Debug("hidden")
	logger.Info("tile extracted", "tile", "E32N31")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "tile extracted", entry["msg"])
	assert.Equal(t, "E32N31", entry["tile"])
}

func TestNewLogger_TextDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "DEBUG", "text")

	logger.Debug("visible")
	assert.Contains(t, buf.String(), "msg=visible")
}

func TestMetrics_RegisterOnFreshRegistry(t *testing.T) {
	m := NewMetricsForTesting()
	reg := prometheus.NewRegistry()
	for _, c := range m.collectors() {
		require.NoError(t, reg.Register(c))
	}

	m.DownloadOutcomes.WithLabelValues("success").Inc()
	m.RowsEnriched.WithLabelValues("resolved").Add(3)
	assert.InDelta(t, 1, testutil.ToFloat64(m.DownloadOutcomes.WithLabelValues("success")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.RowsEnriched.WithLabelValues("resolved")), 0)
}
