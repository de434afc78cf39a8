// internal/utils/metrics.go
package utils

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector collects application metrics
type MetricsCollector struct {
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram

	mu sync.RWMutex
}

// Counter metric, atomic value updates
type Counter struct {
	name  string
	value int64
}

// Gauge metric, atomic value updates
type Gauge struct {
	name  string
	value int64
}

// Histogram metric (tracks count, sum, min, max)
type Histogram struct {
	name  string
	count int64
	sum   int64
	min   int64
	max   int64
	mu    sync.Mutex
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

// GetMetricsCollector returns the global metrics collector
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = &MetricsCollector{
			counters:   make(map[string]*Counter),
			gauges:     make(map[string]*Gauge),
			histograms: make(map[string]*Histogram),
		}
	})
	return globalMetrics
}

// IncrementCounter increments a counter metric
func (m *MetricsCollector) IncrementCounter(name string) {
	m.AddCounter(name, 1)
}

// AddCounter adds a value to a counter metric
func (m *MetricsCollector) AddCounter(name string, value int64) {
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()

	if exists {
		atomic.AddInt64(&counter.value, value)
		return
	}

	m.mu.Lock()
	counter, exists = m.counters[name]
	if !exists {
		counter = &Counter{name: name}
		m.counters[name] = counter
	}
	m.mu.Unlock()

	atomic.AddInt64(&counter.value, value)
}

// SetGauge sets a gauge metric
func (m *MetricsCollector) SetGauge(name string, value int64) {
	m.mu.RLock()
	gauge, exists := m.gauges[name]
	m.mu.RUnlock()

	if exists {
		atomic.StoreInt64(&gauge.value, value)
		return
	}

	m.mu.Lock()
	gauge, exists = m.gauges[name]
	if !exists {
		gauge = &Gauge{name: name}
		m.gauges[name] = gauge
	}
	m.mu.Unlock()

	atomic.StoreInt64(&gauge.value, value)
}

// GetGauge gets the current value of a gauge
func (m *MetricsCollector) GetGauge(name string) int64 {
	m.mu.RLock()
	gauge, exists := m.gauges[name]
	m.mu.RUnlock()

	if !exists {
		return 0
	}
	return atomic.LoadInt64(&gauge.value)
}

// GetCounterValue gets the current value of a counter
func (m *MetricsCollector) GetCounterValue(name string) int64 {
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()

	if !exists {
		return 0
	}
	return atomic.LoadInt64(&counter.value)
}

// RecordHistogram records a value in a histogram
func (m *MetricsCollector) RecordHistogram(name string, value int64) {
	m.mu.RLock()
	histogram, exists := m.histograms[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		histogram, exists = m.histograms[name]
		if !exists {
			histogram = &Histogram{name: name, min: value, max: value}
			m.histograms[name] = histogram
		}
		m.mu.Unlock()
	}

	histogram.mu.Lock()
	defer histogram.mu.Unlock()

	histogram.count++
	histogram.sum += value
	if value < histogram.min {
		histogram.min = value
	}
	if value > histogram.max {
		histogram.max = value
	}
}

// GetMetrics returns a snapshot of all metrics
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	metrics := make(map[string]interface{})

	counters := make(map[string]int64)
	for name, counter := range m.counters {
		counters[name] = atomic.LoadInt64(&counter.value)
	}
	metrics["counters"] = counters

	gauges := make(map[string]int64)
	for name, gauge := range m.gauges {
		gauges[name] = atomic.LoadInt64(&gauge.value)
	}
	metrics["gauges"] = gauges

	histograms := make(map[string]map[string]int64)
	for name, histogram := range m.histograms {
		histogram.mu.Lock()
		histograms[name] = map[string]int64{
			"count": histogram.count,
			"sum":   histogram.sum,
			"min":   histogram.min,
			"max":   histogram.max,
		}
		histogram.mu.Unlock()
	}
	metrics["histograms"] = histograms

	return metrics
}

// PipelineMetrics records pipeline-specific metrics
type PipelineMetrics struct {
	metrics *MetricsCollector
}

// NewPipelineMetrics creates a pipeline metrics instance
func NewPipelineMetrics() *PipelineMetrics {
	return &PipelineMetrics{metrics: GetMetricsCollector()}
}

// RecordAPIRequest records one HTTP request
func (pm *PipelineMetrics) RecordAPIRequest(method, path string, statusCode int, duration time.Duration) {
	pm.metrics.IncrementCounter("api_requests_total")
	pm.metrics.IncrementCounter("api_requests_" + method + "_" + path)
	pm.metrics.RecordHistogram("api_response_time_ms", duration.Milliseconds())
}

// RecordStage records one generation stage attempt against a model
func (pm *PipelineMetrics) RecordStage(stage, model string, duration time.Duration, success bool) {
	pm.metrics.IncrementCounter("stage_" + stage + "_total")
	if success {
		pm.metrics.IncrementCounter("stage_" + stage + "_" + model + "_ok")
	} else {
		pm.metrics.IncrementCounter("stage_" + stage + "_failed")
	}
	pm.metrics.RecordHistogram("stage_"+stage+"_duration_ms", duration.Milliseconds())
}

// RecordRun records a finished run
func (pm *PipelineMetrics) RecordRun(status string, scenes, videos int, duration time.Duration) {
	pm.metrics.IncrementCounter("runs_total")
	pm.metrics.IncrementCounter("runs_" + status)
	pm.metrics.AddCounter("scenes_total", int64(scenes))
	pm.metrics.AddCounter("video_clips_total", int64(videos))
	pm.metrics.RecordHistogram("run_duration_ms", duration.Milliseconds())
}
