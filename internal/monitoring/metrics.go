// Package monitoring collects execution metrics for backend operations and
// renders query plans as machine-readable reports.
package monitoring

import (
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"

	dfmem "github.com/vishal-h/explorer/internal/memory"
)

// OperationMetrics represents performance metrics for a single backend operation.
type OperationMetrics struct {
	Operation     string        `json:"operation"`
	Duration      time.Duration `json:"duration"`
	RowsProcessed int64         `json:"rows_processed"`
	MemoryUsed    int64         `json:"memory_used"`
	Parallel      bool          `json:"parallel"`
	Failed        bool          `json:"failed"`
}

// MetricsCollector collects and stores performance metrics for backend operations.
type MetricsCollector struct {
	mu      sync.RWMutex
	metrics []OperationMetrics
	enabled bool
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector(enabled bool) *MetricsCollector {
	return &MetricsCollector{
		metrics: make([]OperationMetrics, 0),
		enabled: enabled,
	}
}

// IsEnabled returns whether metrics collection is enabled.
func (mc *MetricsCollector) IsEnabled() bool {
	if mc == nil {
		return false
	}
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.enabled
}

// RecordOperation executes fn and records its duration.
func (mc *MetricsCollector) RecordOperation(operation string, fn func() error) error {
	if !mc.IsEnabled() {
		return fn()
	}
	start := time.Now()
	err := fn()
	mc.add(OperationMetrics{
		Operation: operation,
		Duration:  time.Since(start),
		Failed:    err != nil,
	})
	return err
}

// Track executes fn and records its duration together with the rows and
// buffer bytes of the record it returns. parallel marks operations that
// fanned out over the worker pool.
func (mc *MetricsCollector) Track(operation string, parallel bool, fn func() (arrow.Record, error)) (arrow.Record, error) {
	if !mc.IsEnabled() {
		return fn()
	}
	start := time.Now()
	rec, err := fn()
	m := OperationMetrics{
		Operation: operation,
		Duration:  time.Since(start),
		Parallel:  parallel,
		Failed:    err != nil,
	}
	if rec != nil {
		m.RowsProcessed = rec.NumRows()
		m.MemoryUsed = dfmem.EstimateRecord(rec)
	}
	mc.add(m)
	return rec, err
}

func (mc *MetricsCollector) add(m OperationMetrics) {
	mc.mu.Lock()
	mc.metrics = append(mc.metrics, m)
	mc.mu.Unlock()
}

// GetMetrics returns a copy of all collected metrics.
func (mc *MetricsCollector) GetMetrics() []OperationMetrics {
	if mc == nil {
		return nil
	}
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	result := make([]OperationMetrics, len(mc.metrics))
	copy(result, mc.metrics)
	return result
}

// Clear removes all collected metrics.
func (mc *MetricsCollector) Clear() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.metrics = mc.metrics[:0]
}

// SetEnabled enables or disables metrics collection.
func (mc *MetricsCollector) SetEnabled(enabled bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.enabled = enabled
}

// GetSummary returns a summary of collected metrics.
func (mc *MetricsCollector) GetSummary() MetricsSummary {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if len(mc.metrics) == 0 {
		return MetricsSummary{}
	}

	var totalDuration time.Duration
	var totalMemory, totalRows int64
	operationCounts := make(map[string]int)
	failures := 0

	for _, metric := range mc.metrics {
		totalDuration += metric.Duration
		totalMemory += metric.MemoryUsed
		totalRows += metric.RowsProcessed
		operationCounts[metric.Operation]++
		if metric.Failed {
			failures++
		}
	}

	return MetricsSummary{
		TotalOperations: len(mc.metrics),
		Failures:        failures,
		TotalDuration:   totalDuration,
		TotalMemory:     totalMemory,
		TotalRows:       totalRows,
		OperationCounts: operationCounts,
		AverageDuration: totalDuration / time.Duration(len(mc.metrics)),
	}
}

// MetricsSummary provides aggregate statistics for collected metrics.
type MetricsSummary struct {
	TotalOperations int            `json:"total_operations"`
	Failures        int            `json:"failures"`
	TotalDuration   time.Duration  `json:"total_duration"`
	TotalMemory     int64          `json:"total_memory"`
	TotalRows       int64          `json:"total_rows"`
	OperationCounts map[string]int `json:"operation_counts"`
	AverageDuration time.Duration  `json:"average_duration"`
}
