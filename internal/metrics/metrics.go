// Package metrics is a small in-memory metrics registry exposed on the
// /metrics endpoint.
package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType represents the type of metric.
type MetricType string

const (
	Counter MetricType = "counter"
	Timer   MetricType = "timer"
	Gauge   MetricType = "gauge"
)

// maxTimerSamples bounds the per-timer sample window used for percentiles.
const maxTimerSamples = 1000

// Metric is a counter or gauge with its metadata.
type Metric struct {
	Name       string            `json:"name"`
	Type       MetricType        `json:"type"`
	Value      float64           `json:"value"`
	Labels     map[string]string `json:"labels,omitempty"`
	LastUpdate time.Time         `json:"last_update"`
}

// TimerMetric aggregates timing samples.
type TimerMetric struct {
	Count   int64   `json:"count"`
	Sum     float64 `json:"sum_ms"`
	Min     float64 `json:"min_ms"`
	Max     float64 `json:"max_ms"`
	Average float64 `json:"avg_ms"`
	P95     float64 `json:"p95_ms,omitempty"`
	P99     float64 `json:"p99_ms,omitempty"`
	samples []float64
}

// Registry holds all metrics in memory.
type Registry struct {
	mu        sync.RWMutex
	counters  map[string]*Metric
	timers    map[string]*TimerMetric
	gauges    map[string]*Metric
	startTime time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		counters:  make(map[string]*Metric),
		timers:    make(map[string]*TimerMetric),
		gauges:    make(map[string]*Metric),
		startTime: time.Now(),
	}
}

var globalRegistry = NewRegistry()

// GetRegistry returns the global registry instance.
func GetRegistry() *Registry {
	return globalRegistry
}

// IncrementCounter increments a counter metric.
func (r *Registry) IncrementCounter(name string, labels map[string]string) {
	r.AddToCounter(name, 1, labels)
}

// AddToCounter adds a value to a counter metric.
func (r *Registry) AddToCounter(name string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	if counter, exists := r.counters[key]; exists {
		counter.Value += value
		counter.LastUpdate = time.Now()
		return
	}
	r.counters[key] = &Metric{
		Name:       name,
		Type:       Counter,
		Value:      value,
		Labels:     copyLabels(labels),
		LastUpdate: time.Now(),
	}
}

// RecordTimer records a timing measurement.
func (r *Registry) RecordTimer(name string, duration time.Duration, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	durationMs := float64(duration.Nanoseconds()) / 1e6

	timer, exists := r.timers[key]
	if !exists {
		r.timers[key] = &TimerMetric{
			Count:   1,
			Sum:     durationMs,
			Min:     durationMs,
			Max:     durationMs,
			Average: durationMs,
			samples: []float64{durationMs},
		}
		return
	}

	timer.Count++
	timer.Sum += durationMs
	timer.samples = append(timer.samples, durationMs)
	if durationMs < timer.Min {
		timer.Min = durationMs
	}
	if durationMs > timer.Max {
		timer.Max = durationMs
	}
	timer.Average = timer.Sum / float64(timer.Count)

	if len(timer.samples) > maxTimerSamples {
		timer.samples = timer.samples[len(timer.samples)-maxTimerSamples:]
	}
	if len(timer.samples) >= 10 {
		timer.P95 = percentile(timer.samples, 0.95)
		timer.P99 = percentile(timer.samples, 0.99)
	}
}

// SetGauge sets a gauge metric value.
func (r *Registry) SetGauge(name string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gauges[metricKey(name, labels)] = &Metric{
		Name:       name,
		Type:       Gauge,
		Value:      value,
		Labels:     copyLabels(labels),
		LastUpdate: time.Now(),
	}
}

// GetAllMetrics returns a snapshot of every metric.
func (r *Registry) GetAllMetrics() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counters := make(map[string]*Metric, len(r.counters))
	for key, counter := range r.counters {
		counters[key] = counter
	}
	timers := make(map[string]*TimerMetric, len(r.timers))
	for key, timer := range r.timers {
		timers[key] = timer
	}
	gauges := make(map[string]*Metric, len(r.gauges))
	for key, gauge := range r.gauges {
		gauges[key] = gauge
	}

	return map[string]interface{}{
		"counters":  counters,
		"timers":    timers,
		"gauges":    gauges,
		"uptime_ms": time.Since(r.startTime).Milliseconds(),
		"timestamp": time.Now().Unix(),
	}
}

func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteString("_" + k + ":" + labels[k])
	}
	return b.String()
}

func percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	copied := make(map[string]string, len(labels))
	for k, v := range labels {
		copied[k] = v
	}
	return copied
}

// Convenience functions for the global registry.

func IncrementCounter(name string, labels map[string]string) {
	globalRegistry.IncrementCounter(name, labels)
}

func RecordTimer(name string, duration time.Duration, labels map[string]string) {
	globalRegistry.RecordTimer(name, duration, labels)
}

func SetGauge(name string, value float64, labels map[string]string) {
	globalRegistry.SetGauge(name, value, labels)
}

func GetAllMetrics() map[string]interface{} {
	return globalRegistry.GetAllMetrics()
}
