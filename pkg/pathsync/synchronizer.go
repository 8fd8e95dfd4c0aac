// Package pathsync applies a change set to the sync tree: it creates and
// copies what was added or modified in main and moves what was removed into
// a trash directory, keeping the sync-side cache in step.
package pathsync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/paulschiretz/pgl-filediff/pkg/dircache"
	"github.com/paulschiretz/pgl-filediff/pkg/filediff"
	"github.com/paulschiretz/pgl-filediff/pkg/fsys"
	"github.com/paulschiretz/pgl-filediff/pkg/hints"
	"github.com/paulschiretz/pgl-filediff/pkg/plog"
	"github.com/paulschiretz/pgl-filediff/pkg/util"
)

const defaultBufferSize = 256 * 1024

// Options configures a Synchronizer.
type Options struct {
	DryRun bool
	// UseTrash moves deletions into TrashDir instead of removing them.
	UseTrash bool
	TrashDir string
	// Workers bounds concurrent copies. 0 selects runtime.NumCPU().
	Workers    int
	RetryCount int
	RetryWait  time.Duration
	BufferSize int
}

// Result summarizes one Apply call.
type Result struct {
	Applied  int
	Failed   int
	Declined []Category
}

// Complete reports whether everything requested was applied.
func (r Result) Complete() bool {
	return r.Failed == 0 && len(r.Declined) == 0
}

// Synchronizer applies change sets. It is not safe for concurrent Apply
// calls.
type Synchronizer struct {
	opts    Options
	confirm Confirmer
	stat    fsys.Statter
	metrics Metrics

	ioBufferPool *sync.Pool
	dirGroup     singleflight.Group

	errMu sync.Mutex
	errs  map[string]*PathError
}

// New returns a synchronizer. A nil confirm approves everything; stat is
// used to decide whether a main-side cache entry is still current.
func New(opts Options, confirm Confirmer, stat fsys.Statter, m Metrics) *Synchronizer {
	if confirm == nil {
		confirm = AlwaysConfirm
	}
	if m == nil {
		m = &NoopMetrics{}
	}
	if opts.TrashDir == "" {
		opts.TrashDir = filediff.DefaultTrashDir
	}
	bufferSize := opts.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Synchronizer{
		opts:    opts,
		confirm: confirm,
		stat:    stat,
		metrics: m,
		ioBufferPool: &sync.Pool{
			New: func() any {
				b := make([]byte, bufferSize)
				return &b
			},
		},
	}
}

// Apply runs additions, modifications and deletions in that order. Each
// category is confirmed on its own. Per-path failures are collected and
// never abort the run; only a cancelled context returns an error.
func (s *Synchronizer) Apply(ctx context.Context, cs *filediff.ChangeSet, mainSide, syncSide filediff.Side) (Result, error) {
	s.errs = make(map[string]*PathError)
	var res Result

	steps := []struct {
		cat   Category
		count int
		run   func() int
	}{
		{Additions, len(cs.DirAdditions) + len(cs.FileAdditions), func() int { return s.applyAdditions(ctx, cs, mainSide, syncSide) }},
		{Modifications, len(cs.FileModifications), func() int {
			return s.copyAll(ctx, cs.FileModifications, mainSide, syncSide, "MOD", s.metrics.AddFilesModified)
		}},
		{Deletions, len(cs.DirDeletions) + len(cs.FileDeletions), func() int { return s.applyDeletions(ctx, cs, syncSide) }},
	}

	for _, step := range steps {
		if step.count == 0 {
			plog.Info(fmt.Sprintf("No %s, skipping", step.cat))
			continue
		}
		if !s.confirm(step.cat, step.count) {
			plog.Info("Skipping category", "category", step.cat.String(), "count", step.count, "reason", ErrDeclined)
			res.Declined = append(res.Declined, step.cat)
			continue
		}
		res.Applied += step.run()
		if err := ctx.Err(); err != nil {
			res.Failed = len(s.errs)
			return res, fmt.Errorf("synchronization interrupted: %w", err)
		}
	}

	res.Failed = len(s.errs)
	s.logErrors()
	return res, nil
}

func (s *Synchronizer) applyAdditions(ctx context.Context, cs *filediff.ChangeSet, mainSide, syncSide filediff.Side) int {
	applied := 0
	for _, d := range cs.DirAdditions {
		if ctx.Err() != nil {
			return applied
		}
		if s.opts.DryRun {
			plog.Notice("[DRY RUN] MKDIR", "path", d)
			continue
		}
		if err := s.ensureDir(util.DenormalizedAbsPath(syncSide.Root, d)); err != nil {
			s.recordErr(&PathError{Op: "mkdir", Path: d, Err: err})
			continue
		}
		plog.Notice("MKDIR", "path", d)
		s.metrics.AddDirsCreated(1)
		applied++
	}
	return applied + s.copyAll(ctx, cs.FileAdditions, mainSide, syncSide, "ADD", s.metrics.AddFilesCopied)
}

func (s *Synchronizer) workers() int {
	if s.opts.Workers > 0 {
		return s.opts.Workers
	}
	return runtime.NumCPU()
}

// copyAll copies every key from main to sync on a bounded pool.
func (s *Synchronizer) copyAll(ctx context.Context, keys []string, mainSide, syncSide filediff.Side, verb string, count func(int64)) int {
	var applied atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())
	for _, key := range keys {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if s.opts.DryRun {
				plog.Notice("[DRY RUN] "+verb, "path", key)
				return nil
			}
			if err := s.copyOne(gctx, key, mainSide, syncSide); err != nil {
				s.recordErr(&PathError{Op: strings.ToLower(verb), Path: key, Err: err})
				return nil
			}
			plog.Notice(verb, "path", key)
			count(1)
			applied.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(applied.Load())
}

func (s *Synchronizer) copyOne(ctx context.Context, key string, mainSide, syncSide filediff.Side) error {
	src := util.DenormalizedAbsPath(mainSide.Root, key)
	trg := util.DenormalizedAbsPath(syncSide.Root, key)
	if err := s.ensureDir(filepath.Dir(trg)); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	n, err := s.copyFileSafe(ctx, src, trg)
	if err != nil {
		return err
	}
	s.metrics.AddBytesWritten(n)
	s.refreshCaches(key, mainSide, syncSide)
	return nil
}

// refreshCaches records a freshly copied file in the sync cache. The hash
// is taken from the main cache when that entry is still current, so the
// copy is not read back.
func (s *Synchronizer) refreshCaches(key string, mainSide, syncSide filediff.Side) {
	if syncSide.Cache == nil {
		return
	}
	o := &dircache.NodeOverride{}
	if mainSide.Cache != nil {
		if h, ok := s.currentMainHash(key, mainSide); ok {
			o.Hash = &h
		}
	}
	err := syncSide.Cache.UpdCache(key, o)
	if hints.Is(err, dircache.ErrNotFound) {
		err = syncSide.Cache.AddCache(key, o)
	}
	if err != nil {
		plog.Warn("Failed to refresh sync cache entry", "path", key, "error", err)
	}
}

func (s *Synchronizer) currentMainHash(key string, mainSide filediff.Side) (fsys.Hash, bool) {
	if s.stat != nil {
		if a, ok := mainSide.Cache.Lookup(key); ok {
			st, err := s.stat.Stat(util.DenormalizedAbsPath(mainSide.Root, key))
			if err == nil && a.Size == st.Size &&
				dircache.SameInstant(a.Created, st.Created) && dircache.SameInstant(a.Modified, st.Modified) {
				return a.Hash, true
			}
		}
	}
	if err := mainSide.Cache.AddCache(key, nil); err != nil {
		return fsys.Hash{}, false
	}
	a, ok := mainSide.Cache.Lookup(key)
	return a.Hash, ok
}

func (s *Synchronizer) applyDeletions(ctx context.Context, cs *filediff.ChangeSet, syncSide filediff.Side) int {
	var trash *trasher
	if s.opts.UseTrash {
		trash = newTrasher(s, syncSide.Root, s.opts.TrashDir)
	}
	applied := 0
	for _, key := range cs.FileDeletions {
		if ctx.Err() != nil {
			return applied
		}
		if s.deleteEntry(key, false, syncSide, trash) {
			applied++
		}
	}
	for _, key := range cs.DirDeletions {
		if ctx.Err() != nil {
			return applied
		}
		if s.deleteEntry(key, true, syncSide, trash) {
			applied++
		}
	}
	return applied
}

func (s *Synchronizer) deleteEntry(key string, isDir bool, syncSide filediff.Side, trash *trasher) bool {
	abs := util.DenormalizedAbsPath(syncSide.Root, key)
	if _, err := os.Lstat(abs); err != nil {
		if os.IsNotExist(err) {
			plog.Debug("Entry already gone, skipping", "path", key)
			if !s.opts.DryRun {
				s.dropCache(key, syncSide)
			}
			return false
		}
		s.recordErr(&PathError{Op: "stat", Path: key, Err: err})
		return false
	}

	if trash != nil {
		if s.opts.DryRun {
			plog.Notice("[DRY RUN] TRASH", "path", key)
			return false
		}
		dest, err := trash.move(syncSide.Root, key)
		if err != nil {
			s.recordErr(&PathError{Op: "trash", Path: key, Err: err})
			return false
		}
		plog.Notice("TRASH", "path", key, "to", dest)
		if isDir {
			s.metrics.AddDirsTrashed(1)
		} else {
			s.metrics.AddFilesTrashed(1)
		}
	} else {
		if s.opts.DryRun {
			plog.Notice("[DRY RUN] DELETE", "path", key)
			return false
		}
		var err error
		if isDir {
			err = os.RemoveAll(abs)
		} else {
			err = os.Remove(abs)
		}
		if err != nil {
			s.recordErr(&PathError{Op: "delete", Path: key, Err: err})
			return false
		}
		plog.Notice("DELETE", "path", key)
		if isDir {
			s.metrics.AddDirsDeleted(1)
		} else {
			s.metrics.AddFilesDeleted(1)
		}
	}
	s.dropCache(key, syncSide)
	return true
}

func (s *Synchronizer) dropCache(key string, syncSide filediff.Side) {
	if syncSide.Cache == nil {
		return
	}
	if err := syncSide.Cache.DelCache(key); err != nil && !hints.Is(err, dircache.ErrNotFound) {
		plog.Warn("Failed to remove cache entry", "path", key, "error", err)
	}
}

func (s *Synchronizer) recordErr(err *PathError) {
	s.metrics.AddErrors(1)
	s.errMu.Lock()
	defer s.errMu.Unlock()
	s.errs[err.Path] = err
}

// Errors returns the per-path failures of the last Apply.
func (s *Synchronizer) Errors() map[string]error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	out := make(map[string]error, len(s.errs))
	for k, v := range s.errs {
		out[k] = v
	}
	return out
}

// logErrors writes all collected failures as one warning.
func (s *Synchronizer) logErrors() {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if len(s.errs) == 0 {
		return
	}
	paths := make([]string, 0, len(s.errs))
	for p := range s.errs {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d non-fatal errors occurred during synchronization:\n", len(paths)))
	for _, p := range paths {
		sb.WriteString(fmt.Sprintf("  - path: %s, error: %v\n", p, s.errs[p].Err))
	}
	plog.Warn(sb.String())
}
