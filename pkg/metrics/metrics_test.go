package metrics_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulschiretz/pgl-filediff/pkg/filediff"
	"github.com/paulschiretz/pgl-filediff/pkg/metrics"
	"github.com/paulschiretz/pgl-filediff/pkg/pathsync"
)

func TestTextfile_Write(t *testing.T) {
	tf := metrics.NewTextfile()

	sm := &pathsync.SyncMetrics{}
	sm.AddFilesCopied(3)
	dm := filediff.NewDetectMetrics()
	dm.AddFastPathHits(7)

	if err := tf.RegisterSync(sm); err != nil {
		t.Fatalf("RegisterSync failed: %v", err)
	}
	if err := tf.RegisterDetect(dm); err != nil {
		t.Fatalf("RegisterDetect failed: %v", err)
	}
	if err := tf.RegisterRun(func() float64 { return 1700000000 }, func() bool { return true }); err != nil {
		t.Fatalf("RegisterRun failed: %v", err)
	}

	// Values are read at write time.
	sm.AddFilesCopied(1)

	path := filepath.Join(t.TempDir(), "pgl_filediff.prom")
	if err := tf.Write(path); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{
		"# TYPE pgl_filediff_sync_files_copied gauge",
		"pgl_filediff_sync_files_copied 4",
		"pgl_filediff_detect_fastpath_hits 7",
		"pgl_filediff_last_run_success 1",
		"pgl_filediff_last_run_timestamp_seconds 1.7e+09",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected textfile to contain %q, got:\n%s", want, out)
		}
	}
}

func TestTextfile_DuplicateGauge(t *testing.T) {
	tf := metrics.NewTextfile()
	if err := tf.Gauge("x", "y", "help", func() float64 { return 1 }); err != nil {
		t.Fatalf("first Gauge failed: %v", err)
	}
	if err := tf.Gauge("x", "y", "help", func() float64 { return 2 }); err == nil {
		t.Error("expected error for duplicate gauge, got nil")
	}
}
