package utils

import (
	"sort"
	"sync"
	"time"
)

// maxSamples bounds the latency history kept per operation.
const maxSamples = 1024

// Tracks performance metrics across the system
type MetricsCollector struct {
	mu           sync.RWMutex
	requestCount uint64
	errorCount   uint64

	// Maps operation name to recent latencies in nanoseconds
	operationTimes map[string][]int64

	systemStartTime time.Time
}

// OperationStats summarises the recorded latencies of one operation.
type OperationStats struct {
	Count int           `json:"count"`
	Avg   time.Duration `json:"avgNs"`
	P95   time.Duration `json:"p95Ns"`
}

// MetricsSnapshot is a point-in-time copy served by the health endpoint.
type MetricsSnapshot struct {
	Uptime     time.Duration             `json:"uptimeNs"`
	Requests   uint64                    `json:"requests"`
	Errors     uint64                    `json:"errors"`
	Operations map[string]OperationStats `json:"operations"`
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		operationTimes:  make(map[string][]int64),
		systemStartTime: time.Now(),
	}
}

func (mc *MetricsCollector) IncrementRequests() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.requestCount++
}

func (mc *MetricsCollector) IncrementErrors() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.errorCount++
}

func (mc *MetricsCollector) AddOperationLatency(operationName string, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	samples := append(mc.operationTimes[operationName], duration.Nanoseconds())
	if len(samples) > maxSamples {
		samples = samples[len(samples)-maxSamples:]
	}
	mc.operationTimes[operationName] = samples
}

// Snapshot copies the counters and summarises latencies.
func (mc *MetricsCollector) Snapshot() MetricsSnapshot {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	snap := MetricsSnapshot{
		Uptime:     time.Since(mc.systemStartTime),
		Requests:   mc.requestCount,
		Errors:     mc.errorCount,
		Operations: make(map[string]OperationStats, len(mc.operationTimes)),
	}
	for name, samples := range mc.operationTimes {
		if len(samples) == 0 {
			continue
		}
		sorted := append([]int64(nil), samples...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var total int64
		for _, s := range sorted {
			total += s
		}
		snap.Operations[name] = OperationStats{
			Count: len(sorted),
			Avg:   time.Duration(total / int64(len(sorted))),
			P95:   time.Duration(sorted[(len(sorted)*95)/100]),
		}
	}
	return snap
}
