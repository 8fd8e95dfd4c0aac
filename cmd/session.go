package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulschiretz/pgl-filediff/pkg/config"
	"github.com/paulschiretz/pgl-filediff/pkg/dircache"
	"github.com/paulschiretz/pgl-filediff/pkg/filediff"
	"github.com/paulschiretz/pgl-filediff/pkg/flagparse"
	"github.com/paulschiretz/pgl-filediff/pkg/fsys"
	"github.com/paulschiretz/pgl-filediff/pkg/hints"
	"github.com/paulschiretz/pgl-filediff/pkg/ignore"
	"github.com/paulschiretz/pgl-filediff/pkg/lockfile"
	"github.com/paulschiretz/pgl-filediff/pkg/metrics"
	"github.com/paulschiretz/pgl-filediff/pkg/pathsync"
	"github.com/paulschiretz/pgl-filediff/pkg/plog"
	"github.com/paulschiretz/pgl-filediff/pkg/preflight"
)

// ErrCanceled is returned when the user declines the directory confirmation.
var ErrCanceled = hints.New("operation canceled by user")

// ErrIncomplete is returned when a sync left changes unapplied.
var ErrIncomplete = errors.New("synchronization incomplete")

// session is the state shared by the diff and sync commands once both
// roots are validated, locked and walked.
type session struct {
	cfg      config.Config
	stat     fsys.Statter
	hasher   fsys.Fingerprinter
	engine   *filediff.Engine
	detect   filediff.Metrics
	mainSide filediff.Side
	syncSide filediff.Side
	locks    []*lockfile.Lock
}

// loadRunConfig loads the configuration stored in the sync root and
// applies the command-line flags over it.
func loadRunConfig(command flagparse.Command, flagMap map[string]any) (config.Config, error) {
	syncPath, ok := flagMap["sync"].(string)
	if !ok || syncPath == "" {
		return config.Config{}, fmt.Errorf("the -sync flag is required for the %s operation", command)
	}
	if main, ok := flagMap["main"].(string); !ok || main == "" {
		return config.Config{}, fmt.Errorf("the -main flag is required for the %s operation", command)
	}

	loaded, err := config.Load(syncPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration from sync root: %w", err)
	}
	runConfig := config.MergeConfigWithFlags(command, loaded, flagMap)
	if err := runConfig.Validate(true); err != nil {
		return config.Config{}, err
	}
	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))
	return runConfig, nil
}

// openSession runs preflight, takes both locks, resolves the ignore list,
// walks both roots and loads their caches. Call close when done.
func openSession(ctx context.Context, command flagparse.Command, cfg config.Config) (*session, error) {
	prompt := fmt.Sprintf("Main directory: %q\nSync directory: %q\nIs this correct?", cfg.MainRoot, cfg.SyncRoot)
	if !confirm(cfg.Runtime.AutoYes, prompt, true) {
		return nil, ErrCanceled
	}

	plan := preflight.Plan{
		RootsAccessible: true,
		RootsDistinct:   true,
		SyncWritable:    command == flagparse.Sync && !cfg.Runtime.DryRun,
	}
	if err := preflight.Run(cfg.MainRoot, cfg.SyncRoot, plan); err != nil {
		return nil, fmt.Errorf("preflight failed: %w", err)
	}

	s := &session{
		cfg:    cfg,
		stat:   fsys.OSStat{},
		hasher: fsys.NewXXHash(cfg.Engine.BufferSizeKB * 1024),
	}
	if cfg.Engine.Metrics || cfg.Runtime.MetricsFile != "" {
		s.detect = filediff.NewDetectMetrics()
	} else {
		s.detect = &filediff.NoopMetrics{}
	}

	for _, root := range []string{cfg.MainRoot, cfg.SyncRoot} {
		lock, err := lockfile.Acquire(ctx, root, command.String())
		if err != nil {
			s.close()
			return nil, fmt.Errorf("failed to acquire lock on %s: %w", root, err)
		}
		s.locks = append(s.locks, lock)
	}

	ignores, err := resolveIgnore(cfg)
	if err != nil {
		s.close()
		return nil, err
	}

	// The trash stays out of the diff whether or not this run trashes, so a
	// -no-trash run never deletes an earlier run's trash.
	trashDir := cfg.Trash.Dir
	s.engine = filediff.New(filediff.Options{
		Workers:  cfg.Engine.Workers,
		UseCache: cfg.Cache.Enabled,
		TrashDir: trashDir,
		Reserved: cfg.ReservedNames(),
		Ignore:   ignores,
	}, s.stat, s.hasher, s.detect)

	if s.mainSide, err = s.walk(cfg.MainRoot, nil); err != nil {
		s.close()
		return nil, err
	}
	var skip []string
	if trashDir != "" {
		skip = []string{trashDir}
	}
	if s.syncSide, err = s.walk(cfg.SyncRoot, skip); err != nil {
		s.close()
		return nil, err
	}
	plog.Info("Directory lists built",
		"main_files", len(s.mainSide.Files), "main_dirs", len(s.mainSide.Dirs),
		"sync_files", len(s.syncSide.Files), "sync_dirs", len(s.syncSide.Dirs))
	return s, nil
}

func (s *session) walk(root string, skipDirs []string) (filediff.Side, error) {
	files, dirs, err := fsys.DirWalker{SkipDirs: skipDirs}.Walk(root)
	if err != nil {
		return filediff.Side{}, err
	}
	side := filediff.Side{Root: root, Files: files, Dirs: dirs}
	if s.cfg.Cache.Enabled {
		side.Cache = dircache.LoadStore(s.cachePath(root), root, s.stat, s.hasher)
	}
	return side, nil
}

func (s *session) cachePath(root string) string {
	return filepath.Join(root, s.cfg.Cache.FileName)
}

// saveCaches persists both stores. Failures are logged; the next run
// simply starts from an older or empty cache.
func (s *session) saveCaches() {
	if !s.cfg.Cache.Enabled || s.cfg.Runtime.DryRun {
		return
	}
	comp := s.cfg.CompressionCodec()
	for _, side := range []filediff.Side{s.mainSide, s.syncSide} {
		if side.Cache == nil {
			continue
		}
		path := s.cachePath(side.Root)
		if err := side.Cache.Save(path, comp); err != nil {
			plog.Warn("Failed to save cache", "path", path, "error", err)
			continue
		}
		dirs, files := side.Cache.Counts()
		plog.Debug("Cache saved", "path", path, "dirs", dirs, "files", files, "compression", comp.String())
	}
}

// rebuildCaches handles cache-only mode.
func (s *session) rebuildCaches(ctx context.Context) error {
	start := time.Now()
	for _, side := range []filediff.Side{s.mainSide, s.syncSide} {
		plog.Info("Rebuilding cache", "root", side.Root, "files", len(side.Files))
		if err := s.engine.RebuildCache(ctx, side); err != nil {
			return err
		}
	}
	s.saveCaches()
	s.detect.LogSummary("Cache rebuild finished")
	plog.Info("Caches rebuilt", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

func (s *session) close() {
	for i := len(s.locks) - 1; i >= 0; i-- {
		s.locks[i].Release()
	}
	s.locks = nil
}

// resolveIgnore combines the configured patterns with the ignore files of
// both roots. When both roots carry one, the sync root's file is only used
// after confirmation.
func resolveIgnore(cfg config.Config) (*ignore.List, error) {
	mainList, mainExists, err := ignore.Load(filepath.Join(cfg.MainRoot, cfg.Ignore.FileName))
	if err != nil {
		return nil, err
	}
	syncList, syncExists, err := ignore.Load(filepath.Join(cfg.SyncRoot, cfg.Ignore.FileName))
	if err != nil {
		return nil, err
	}

	list := mainList
	switch {
	case mainExists && syncExists:
		prompt := fmt.Sprintf("Both directories contain %s. Combine them?", cfg.Ignore.FileName)
		if confirm(cfg.Runtime.AutoYes, prompt, true) {
			list = mainList.Merge(syncList)
		} else {
			plog.Info("Using the main directory ignore file only", "file", cfg.Ignore.FileName)
		}
	case syncExists:
		list = syncList
	}

	if len(cfg.Ignore.Patterns) > 0 {
		extra, err := ignore.Parse(strings.NewReader(strings.Join(cfg.Ignore.Patterns, "\n")))
		if err != nil {
			return nil, err
		}
		list = list.Merge(extra)
	}
	if list.Len() > 0 {
		plog.Info("Ignoring paths", "patterns", list.Len())
		plog.Debug("Ignore patterns", "patterns", list.Patterns())
	}
	return list, nil
}

// exportMetrics writes the textfile when -metrics-file is set.
func exportMetrics(cfg config.Config, detect filediff.Metrics, syncM pathsync.Metrics, success bool) {
	if cfg.Runtime.MetricsFile == "" {
		return
	}
	tf := metrics.NewTextfile()
	finished := time.Now()
	err := tf.RegisterRun(
		func() float64 { return float64(finished.Unix()) },
		func() bool { return success },
	)
	if dm, ok := detect.(*filediff.DetectMetrics); ok && err == nil {
		err = tf.RegisterDetect(dm)
	}
	if sm, ok := syncM.(*pathsync.SyncMetrics); ok && err == nil {
		err = tf.RegisterSync(sm)
	}
	if err == nil {
		err = tf.Write(cfg.Runtime.MetricsFile)
	}
	if err != nil {
		plog.Warn("Failed to export metrics", "path", cfg.Runtime.MetricsFile, "error", err)
		return
	}
	plog.Debug("Metrics written", "path", cfg.Runtime.MetricsFile)
}
