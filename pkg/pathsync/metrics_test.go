package pathsync_test

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/paulschiretz/pgl-filediff/pkg/pathsync"
	"github.com/paulschiretz/pgl-filediff/pkg/plog"
)

func TestSyncMetrics_Adders(t *testing.T) {
	m := &pathsync.SyncMetrics{}

	m.AddFilesCopied(5)
	m.AddFilesModified(2)
	m.AddFilesTrashed(3)
	m.AddFilesDeleted(1)
	m.AddBytesWritten(1024)
	m.AddDirsCreated(4)
	m.AddDirsTrashed(6)
	m.AddDirsDeleted(7)
	m.AddErrors(8)

	testCases := []struct {
		name string
		got  int64
		want int64
	}{
		{"FilesCopied", m.FilesCopied.Load(), 5},
		{"FilesModified", m.FilesModified.Load(), 2},
		{"FilesTrashed", m.FilesTrashed.Load(), 3},
		{"FilesDeleted", m.FilesDeleted.Load(), 1},
		{"BytesWritten", m.BytesWritten.Load(), 1024},
		{"DirsCreated", m.DirsCreated.Load(), 4},
		{"DirsTrashed", m.DirsTrashed.Load(), 6},
		{"DirsDeleted", m.DirsDeleted.Load(), 7},
		{"Errors", m.Errors.Load(), 8},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("expected %s to be %d, got %d", tc.name, tc.want, tc.got)
			}
		})
	}
}

func TestSyncMetrics_Log(t *testing.T) {
	var logBuf bytes.Buffer
	plog.SetOutput(&logBuf)
	t.Cleanup(func() { plog.SetOutput(os.Stderr) })

	m := &pathsync.SyncMetrics{}
	m.AddFilesCopied(10)
	m.AddBytesWritten(500)
	m.StartProgress("Test", time.Hour)
	m.StopProgress()
	m.LogSummary("Test Summary")

	output := logBuf.String()
	for _, want := range []string{
		`msg="Test Summary"`,
		"files_copied=10",
		`bytes_written="500 B"`,
		"files_trashed=0",
		"duration=",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected log output to contain %q, got: %s", want, output)
		}
	}
}

// lockedBuffer is a bytes.Buffer safe for the progress goroutine to write to.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) count(sub string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Count(b.buf.String(), sub)
}

func TestSyncMetrics_ProgressStops(t *testing.T) {
	logBuf := &lockedBuffer{}
	plog.SetOutput(logBuf)
	t.Cleanup(func() { plog.SetOutput(os.Stderr) })

	m := &pathsync.SyncMetrics{}
	for round := 0; round < 2; round++ {
		m.StartProgress("Ticking", time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		m.StopProgress()
	}
	// Let a tick that raced the stop finish.
	time.Sleep(10 * time.Millisecond)

	before := logBuf.count(`msg=Ticking`)
	if before == 0 {
		t.Fatal("expected progress lines while running, got none")
	}
	time.Sleep(30 * time.Millisecond)
	if after := logBuf.count(`msg=Ticking`); after != before {
		t.Errorf("expected no progress after stop, got %d new lines", after-before)
	}

	// A second stop is a no-op.
	m.StopProgress()
}

func TestNoopMetrics(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("NoopMetrics method panicked: %v", r)
		}
	}()

	m := &pathsync.NoopMetrics{}
	m.AddFilesCopied(1)
	m.AddFilesModified(1)
	m.AddFilesTrashed(1)
	m.AddFilesDeleted(1)
	m.AddBytesWritten(1)
	m.AddDirsCreated(1)
	m.AddDirsTrashed(1)
	m.AddDirsDeleted(1)
	m.AddErrors(1)
	m.StartProgress("noop", time.Second)
	m.StopProgress()
	m.LogSummary("noop test")
}
