// internal/utils/metrics_test.go
package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndGauges(t *testing.T) {
	m := GetMetricsCollector()

	m.IncrementCounter("test_counter_a")
	m.AddCounter("test_counter_a", 4)
	assert.Equal(t, int64(5), m.GetCounterValue("test_counter_a"))
	assert.Equal(t, int64(0), m.GetCounterValue("test_counter_missing"))

	m.SetGauge("test_gauge_a", 7)
	assert.Equal(t, int64(7), m.GetGauge("test_gauge_a"))
	m.SetGauge("test_gauge_a", 3)
	assert.Equal(t, int64(3), m.GetGauge("test_gauge_a"))
}

func TestHistogramTracksBounds(t *testing.T) {
	m := GetMetricsCollector()

	m.RecordHistogram("test_histo", 10)
	m.RecordHistogram("test_histo", 2)
	m.RecordHistogram("test_histo", 30)

	snapshot := m.GetMetrics()
	histograms, ok := snapshot["histograms"].(map[string]map[string]int64)
	require.True(t, ok)
	h := histograms["test_histo"]
	assert.Equal(t, int64(3), h["count"])
	assert.Equal(t, int64(42), h["sum"])
	assert.Equal(t, int64(2), h["min"])
	assert.Equal(t, int64(30), h["max"])
}

func TestPipelineMetricsRecordRun(t *testing.T) {
	pm := NewPipelineMetrics()
	before := pm.metrics.GetCounterValue("runs_completed")

	pm.RecordRun("completed", 5, 3, 2*time.Second)

	assert.Equal(t, before+1, pm.metrics.GetCounterValue("runs_completed"))
	assert.GreaterOrEqual(t, pm.metrics.GetCounterValue("scenes_total"), int64(5))
	assert.GreaterOrEqual(t, pm.metrics.GetCounterValue("video_clips_total"), int64(3))
}
