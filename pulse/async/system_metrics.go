package async

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/waypoint/errors"
)

// SystemMetrics reports scheduler load next to host memory usage
type SystemMetrics struct {
	WorkersActive int     `json:"workers_active"`
	WorkersTotal  int     `json:"workers_total"`
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryTotalGB float64 `json:"memory_total_gb"`
	MemoryPercent float64 `json:"memory_percent"`
	JobsQueued    int     `json:"jobs_queued"`
	JobsRunning   int     `json:"jobs_running"`
}

const bytesPerGB = 1024 * 1024 * 1024

// memoryStats is swapped in tests
var memoryStats = func() (total uint64, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get memory stats")
	}
	return v.Total, v.Available, nil
}

// recommendedWorkers suggests a worker budget for the available memory.
// Geocoding buffers and statistics accumulators stay small, so the budget is
// bounded mostly by SQLite write contention; the cap reflects that.
func recommendedWorkers(availableGB float64) int {
	const memoryPerWorker = 0.5 // GB
	const memoryBuffer = 1.0    // GB kept for the OS and the HTTP server

	if availableGB <= memoryBuffer {
		return 1
	}
	n := int((availableGB - memoryBuffer) / memoryPerWorker)
	if n < 1 {
		return 1
	}
	if n > 8 {
		return 8
	}
	return n
}

// SystemMetrics returns current scheduler and memory figures.
// Memory fields stay zero when the host cannot be queried.
func (m *Manager) SystemMetrics() SystemMetrics {
	m.mu.Lock()
	metrics := SystemMetrics{
		WorkersActive: len(m.running),
		WorkersTotal:  m.maxWorkers,
		JobsQueued:    len(m.queue),
		JobsRunning:   len(m.running),
	}
	m.mu.Unlock()

	total, available, err := memoryStats()
	if err == nil && total > 0 {
		metrics.MemoryTotalGB = float64(total) / bytesPerGB
		metrics.MemoryUsedGB = float64(total-available) / bytesPerGB
		metrics.MemoryPercent = metrics.MemoryUsedGB / metrics.MemoryTotalGB * 100
	}
	return metrics
}

// checkMemoryPressure returns a warning when the worker budget exceeds
// what available memory suggests, or "" when it fits.
func (m *Manager) checkMemoryPressure() string {
	total, available, err := memoryStats()
	if err != nil {
		return ""
	}

	m.mu.Lock()
	workers := m.maxWorkers
	m.mu.Unlock()

	availableGB := float64(available) / bytesPerGB
	totalGB := float64(total) / bytesPerGB
	recommended := recommendedWorkers(availableGB)
	if workers > recommended {
		return fmt.Sprintf(
			"Worker count (%d) exceeds recommended (%d) for available memory (%.1f/%.1fGB). "+
				"Consider lowering pulse.workers.",
			workers, recommended, totalGB-availableGB, totalGB)
	}
	return ""
}
