package testutil

import (
	"fmt"
	"runtime"
	"testing"
	"time"
)

// PerformanceTest checks a codec operation against throughput targets
type PerformanceTest struct {
	t         testing.TB
	name      string
	threshold struct {
		minRowsPerSec float64
		maxMemory     int64 // bytes
	}
}

// NewPerformanceTest creates a new performance test
func NewPerformanceTest(t testing.TB, name string) *PerformanceTest {
	return &PerformanceTest{t: t, name: name}
}

// WithThroughputTarget sets minimum throughput requirement
func (p *PerformanceTest) WithThroughputTarget(rowsPerSec float64) *PerformanceTest {
	p.threshold.minRowsPerSec = rowsPerSec
	return p
}

// WithMemoryTarget sets maximum heap growth
func (p *PerformanceTest) WithMemoryTarget(maxBytes int64) *PerformanceTest {
	p.threshold.maxMemory = maxBytes
	return p
}

// Run executes fn, which reports the rows it processed and how long it took
func (p *PerformanceTest) Run(fn func() (rows int64, duration time.Duration)) {
	p.t.Helper()

	initial := CaptureMemoryProfile()
	rows, duration := fn()
	final := CaptureMemoryProfile()

	if duration <= 0 {
		duration = time.Nanosecond
	}
	throughput := float64(rows) / duration.Seconds()
	memoryUsed := int64(final.TotalAlloc - initial.TotalAlloc)

	p.t.Logf("Performance Test: %s", p.name)
	p.t.Logf("  Rows: %d", rows)
	p.t.Logf("  Duration: %v", duration)
	p.t.Logf("  Throughput: %.0f rows/sec", throughput)
	p.t.Logf("  Allocated: %s", FormatBytes(memoryUsed))

	if p.threshold.minRowsPerSec > 0 && throughput < p.threshold.minRowsPerSec {
		p.t.Errorf("Throughput %.0f rows/sec below target %.0f rows/sec",
			throughput, p.threshold.minRowsPerSec)
	}
	if p.threshold.maxMemory > 0 && memoryUsed > p.threshold.maxMemory {
		p.t.Errorf("Allocated %s exceeds target %s",
			FormatBytes(memoryUsed), FormatBytes(p.threshold.maxMemory))
	}
}

// MemoryProfile captures memory statistics
type MemoryProfile struct {
	AllocBytes uint64
	TotalAlloc uint64
	Mallocs    uint64
	HeapInuse  uint64
}

// CaptureMemoryProfile captures current memory profile
func CaptureMemoryProfile() *MemoryProfile {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return &MemoryProfile{
		AllocBytes: m.Alloc,
		TotalAlloc: m.TotalAlloc,
		Mallocs:    m.Mallocs,
		HeapInuse:  m.HeapInuse,
	}
}

// FormatBytes formats bytes into human-readable string
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
