package pathsync

import (
	"sync/atomic"
	"time"

	"github.com/paulschiretz/pgl-filediff/pkg/plog"
	"github.com/paulschiretz/pgl-filediff/pkg/util"
)

// Metrics defines the interface for collecting and reporting synchronization statistics.
type Metrics interface {
	AddFilesCopied(n int64)
	AddFilesModified(n int64)
	AddFilesTrashed(n int64)
	AddFilesDeleted(n int64)
	AddBytesWritten(n int64)
	AddDirsCreated(n int64)
	AddDirsTrashed(n int64)
	AddDirsDeleted(n int64)
	AddErrors(n int64)
	LogSummary(msg string)

	StartProgress(msg string, interval time.Duration)
	StopProgress()
}

// SyncMetrics holds the atomic counters for tracking the sync operation's progress.
// It is the concrete implementation of the Metrics interface.
type SyncMetrics struct {
	FilesCopied   atomic.Int64
	FilesModified atomic.Int64
	FilesTrashed  atomic.Int64
	FilesDeleted  atomic.Int64
	BytesWritten  atomic.Int64
	DirsCreated   atomic.Int64
	DirsTrashed   atomic.Int64
	DirsDeleted   atomic.Int64
	Errors        atomic.Int64

	stopChan  chan struct{}
	startTime time.Time
}

func (m *SyncMetrics) AddFilesCopied(n int64)   { m.FilesCopied.Add(n) }
func (m *SyncMetrics) AddFilesModified(n int64) { m.FilesModified.Add(n) }
func (m *SyncMetrics) AddFilesTrashed(n int64)  { m.FilesTrashed.Add(n) }
func (m *SyncMetrics) AddFilesDeleted(n int64)  { m.FilesDeleted.Add(n) }
func (m *SyncMetrics) AddBytesWritten(n int64)  { m.BytesWritten.Add(n) }
func (m *SyncMetrics) AddDirsCreated(n int64)   { m.DirsCreated.Add(n) }
func (m *SyncMetrics) AddDirsTrashed(n int64)   { m.DirsTrashed.Add(n) }
func (m *SyncMetrics) AddDirsDeleted(n int64)   { m.DirsDeleted.Add(n) }
func (m *SyncMetrics) AddErrors(n int64)        { m.Errors.Add(n) }

func (m *SyncMetrics) StartProgress(msg string, interval time.Duration) {
	m.startTime = time.Now()
	stop := make(chan struct{})
	m.stopChan = stop
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.LogSummary(msg)
			case <-stop:
				return
			}
		}
	}()
}

func (m *SyncMetrics) StopProgress() {
	if m.stopChan != nil {
		close(m.stopChan)
		m.stopChan = nil
	}
}

// LogSummary prints a summary of the sync operation with a custom message.
// This can be called by a background ticker or at the end of the run.
func (m *SyncMetrics) LogSummary(msg string) {
	duration := time.Duration(0)
	if !m.startTime.IsZero() {
		duration = time.Since(m.startTime)
	}

	plog.Info(msg,
		"bytes_written", util.ByteCountIEC(m.BytesWritten.Load()),
		"files_copied", m.FilesCopied.Load(),
		"files_modified", m.FilesModified.Load(),
		"files_trashed", m.FilesTrashed.Load(),
		"files_deleted", m.FilesDeleted.Load(),
		"dirs_created", m.DirsCreated.Load(),
		"dirs_trashed", m.DirsTrashed.Load(),
		"dirs_deleted", m.DirsDeleted.Load(),
		"errors", m.Errors.Load(),
		"duration", duration.Round(time.Millisecond),
	)
}

// NoopMetrics is an implementation of the Metrics interface that performs no operations.
// It can be used to disable metrics collection without changing the calling code.
type NoopMetrics struct{}

func (m *NoopMetrics) AddFilesCopied(n int64)                           {}
func (m *NoopMetrics) AddFilesModified(n int64)                         {}
func (m *NoopMetrics) AddFilesTrashed(n int64)                          {}
func (m *NoopMetrics) AddFilesDeleted(n int64)                          {}
func (m *NoopMetrics) AddBytesWritten(n int64)                          {}
func (m *NoopMetrics) AddDirsCreated(n int64)                           {}
func (m *NoopMetrics) AddDirsTrashed(n int64)                           {}
func (m *NoopMetrics) AddDirsDeleted(n int64)                           {}
func (m *NoopMetrics) AddErrors(n int64)                                {}
func (m *NoopMetrics) LogSummary(msg string)                            {}
func (m *NoopMetrics) StartProgress(msg string, interval time.Duration) {}
func (m *NoopMetrics) StopProgress()                                    {}

// Statically assert that our types implement the interface.
var _ Metrics = (*SyncMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
