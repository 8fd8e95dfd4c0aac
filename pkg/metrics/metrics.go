// Package metrics exports run counters as Prometheus gauges in the
// node-exporter textfile format.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/paulschiretz/pgl-filediff/pkg/filediff"
	"github.com/paulschiretz/pgl-filediff/pkg/pathsync"
)

// Namespace prefixes every exported metric.
const Namespace = "pgl_filediff"

// Textfile holds gauges on a private registry so that nothing from the
// default Go collectors ends up in the file.
type Textfile struct {
	reg *prometheus.Registry
}

// NewTextfile returns an empty exporter.
func NewTextfile() *Textfile {
	return &Textfile{reg: prometheus.NewRegistry()}
}

// Gauge registers a gauge whose value is read at write time.
func (t *Textfile) Gauge(subsystem, name, help string, value func() float64) error {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, value)
	if err := t.reg.Register(g); err != nil {
		return fmt.Errorf("failed to register gauge %s_%s: %w", subsystem, name, err)
	}
	return nil
}

// Write atomically replaces path with the current gauge values.
func (t *Textfile) Write(path string) error {
	if err := prometheus.WriteToTextfile(path, t.reg); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	return nil
}

type counter struct {
	name, help string
	load       func() int64
}

func (t *Textfile) registerAll(subsystem string, counters []counter) error {
	for _, c := range counters {
		load := c.load
		if err := t.Gauge(subsystem, c.name, c.help, func() float64 { return float64(load()) }); err != nil {
			return err
		}
	}
	return nil
}

// RegisterDetect exports the change-detection counters.
func (t *Textfile) RegisterDetect(m *filediff.DetectMetrics) error {
	return t.registerAll("detect", []counter{
		{"files_compared", "Files present on both sides that were compared.", m.FilesCompared.Load},
		{"fastpath_hits", "Comparisons answered from cached metadata.", m.FastPathHits.Load},
		{"cache_misses", "Comparisons without a cache entry on one side.", m.CacheMisses.Load},
		{"files_hashed", "Files fingerprinted.", m.FilesHashed.Load},
		{"files_skipped", "Files skipped as reserved or ignored.", m.FilesSkipped.Load},
		{"files_failed", "Files that could not be compared.", m.FilesFailed.Load},
	})
}

// RegisterSync exports the synchronizer counters.
func (t *Textfile) RegisterSync(m *pathsync.SyncMetrics) error {
	return t.registerAll("sync", []counter{
		{"files_copied", "Files added to the sync tree.", m.FilesCopied.Load},
		{"files_modified", "Files overwritten in the sync tree.", m.FilesModified.Load},
		{"files_trashed", "Files moved into the trash.", m.FilesTrashed.Load},
		{"files_deleted", "Files removed without trash.", m.FilesDeleted.Load},
		{"bytes_written", "Bytes copied into the sync tree.", m.BytesWritten.Load},
		{"dirs_created", "Directories created in the sync tree.", m.DirsCreated.Load},
		{"dirs_trashed", "Directories moved into the trash.", m.DirsTrashed.Load},
		{"dirs_deleted", "Directories removed without trash.", m.DirsDeleted.Load},
		{"errors", "Per-path failures.", m.Errors.Load},
	})
}

// RegisterRun exports the outcome of the run: its end time and whether it
// completed.
func (t *Textfile) RegisterRun(finished func() float64, success func() bool) error {
	if err := t.Gauge("", "last_run_timestamp_seconds", "Unix time the run finished.", finished); err != nil {
		return err
	}
	return t.Gauge("", "last_run_success", "1 if the last run completed without failures.", func() float64 {
		if success() {
			return 1
		}
		return 0
	})
}
