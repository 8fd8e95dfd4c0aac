package filediff

import (
	"sync/atomic"
	"time"

	"github.com/paulschiretz/pgl-filediff/pkg/plog"
)

// Metrics collects change-detection statistics.
type Metrics interface {
	AddFilesCompared(n int64)
	AddFastPathHits(n int64)
	AddCacheMisses(n int64)
	AddFilesHashed(n int64)
	AddFilesSkipped(n int64)
	AddFilesFailed(n int64)
	LogSummary(msg string)
}

// DetectMetrics holds the atomic counters of one detection run. Workers
// update it concurrently.
type DetectMetrics struct {
	FilesCompared atomic.Int64
	FastPathHits  atomic.Int64
	CacheMisses   atomic.Int64
	FilesHashed   atomic.Int64
	FilesSkipped  atomic.Int64
	FilesFailed   atomic.Int64

	startTime time.Time
}

// NewDetectMetrics returns counters whose summary duration starts now.
func NewDetectMetrics() *DetectMetrics {
	return &DetectMetrics{startTime: time.Now()}
}

func (m *DetectMetrics) AddFilesCompared(n int64) { m.FilesCompared.Add(n) }
func (m *DetectMetrics) AddFastPathHits(n int64)  { m.FastPathHits.Add(n) }
func (m *DetectMetrics) AddCacheMisses(n int64)   { m.CacheMisses.Add(n) }
func (m *DetectMetrics) AddFilesHashed(n int64)   { m.FilesHashed.Add(n) }
func (m *DetectMetrics) AddFilesSkipped(n int64)  { m.FilesSkipped.Add(n) }
func (m *DetectMetrics) AddFilesFailed(n int64)   { m.FilesFailed.Add(n) }

// LogSummary logs all counters at INFO.
func (m *DetectMetrics) LogSummary(msg string) {
	duration := time.Duration(0)
	if !m.startTime.IsZero() {
		duration = time.Since(m.startTime)
	}
	plog.Info(msg,
		"files_compared", m.FilesCompared.Load(),
		"fastpath_hits", m.FastPathHits.Load(),
		"cache_misses", m.CacheMisses.Load(),
		"files_hashed", m.FilesHashed.Load(),
		"files_skipped", m.FilesSkipped.Load(),
		"files_failed", m.FilesFailed.Load(),
		"duration", duration.Round(time.Millisecond),
	)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (m *NoopMetrics) AddFilesCompared(n int64) {}
func (m *NoopMetrics) AddFastPathHits(n int64)  {}
func (m *NoopMetrics) AddCacheMisses(n int64)   {}
func (m *NoopMetrics) AddFilesHashed(n int64)   {}
func (m *NoopMetrics) AddFilesSkipped(n int64)  {}
func (m *NoopMetrics) AddFilesFailed(n int64)   {}
func (m *NoopMetrics) LogSummary(msg string)    {}

var _ Metrics = (*DetectMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
