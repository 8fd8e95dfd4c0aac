// Package filediff computes the change set that turns a sync tree into a
// copy of a main tree. Files present on both sides are compared by a pool
// of workers; a per-root cache lets unchanged files skip hashing.
package filediff

import (
	"context"
	"fmt"
	"path"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/paulschiretz/pgl-filediff/pkg/dircache"
	"github.com/paulschiretz/pgl-filediff/pkg/fsys"
	"github.com/paulschiretz/pgl-filediff/pkg/ignore"
	"github.com/paulschiretz/pgl-filediff/pkg/plog"
	"github.com/paulschiretz/pgl-filediff/pkg/util"
)

// DefaultTrashDir is the directory in the sync root that receives deleted
// entries.
const DefaultTrashDir = ".DiffTrash"

// Options configures an Engine.
type Options struct {
	// Workers is the size of the comparison pool. 0 selects runtime.NumCPU().
	Workers int
	// UseCache enables the metadata fast path. Both sides need a Cache.
	UseCache bool
	// TrashDir is excluded from both sides. Empty disables the exclusion.
	TrashDir string
	// Reserved base names are never reported, e.g. the cache file itself.
	Reserved []string
	Ignore   *ignore.List
}

// Side is one tree: its root, the walked relative keys and its cache.
type Side struct {
	Root  string
	Files []string
	Dirs  []string
	Cache *dircache.Store
}

// ChangeSet is the result of Detect. Every list is sorted.
type ChangeSet struct {
	FileAdditions     []string
	FileDeletions     []string
	FileModifications []string
	DirAdditions      []string
	DirDeletions      []string
}

// IsEmpty reports whether nothing needs to change.
func (c *ChangeSet) IsEmpty() bool {
	return c.Total() == 0
}

// Total is the number of entries across all categories.
func (c *ChangeSet) Total() int {
	return len(c.FileAdditions) + len(c.FileDeletions) + len(c.FileModifications) +
		len(c.DirAdditions) + len(c.DirDeletions)
}

// Engine runs change detection.
type Engine struct {
	opts     Options
	stat     fsys.Statter
	hasher   fsys.Fingerprinter
	metrics  Metrics
	reserved map[string]struct{}
}

// New returns an engine reading live metadata through stat and hasher.
func New(opts Options, stat fsys.Statter, hasher fsys.Fingerprinter, m Metrics) *Engine {
	if m == nil {
		m = &NoopMetrics{}
	}
	reserved := make(map[string]struct{}, len(opts.Reserved))
	for _, r := range opts.Reserved {
		reserved[r] = struct{}{}
	}
	return &Engine{opts: opts, stat: stat, hasher: hasher, metrics: m, reserved: reserved}
}

// Workers returns the effective pool size for n files.
func (e *Engine) Workers(n int) int {
	w := e.opts.Workers
	if w <= 0 {
		w = runtime.NumCPU()
	}
	return max(1, min(w, n))
}

// skip reports whether key is outside the diff: trash, reserved names and
// ignored prefixes.
func (e *Engine) skip(key string) bool {
	if e.opts.TrashDir != "" && util.IsWithin(key, e.opts.TrashDir) {
		return true
	}
	if _, ok := e.reserved[path.Base(key)]; ok {
		return true
	}
	return e.opts.Ignore.Matches(key)
}

// Detect computes the change set from sync to main. Per-path failures are
// logged and leave that path out of the result. Only a cancelled context
// returns an error.
func (e *Engine) Detect(ctx context.Context, main, sync Side) (*ChangeSet, error) {
	if e.opts.UseCache && (main.Cache == nil || sync.Cache == nil) {
		return nil, fmt.Errorf("cache mode requires a cache store for both roots")
	}

	if e.opts.UseCache {
		PruneCache(main)
		PruneCache(sync)
	}

	cs := &ChangeSet{}
	cs.DirAdditions, cs.DirDeletions = diffDirs(main.Dirs, sync.Dirs, e.skip)

	inSync := make(map[string]struct{}, len(sync.Files))
	for _, f := range sync.Files {
		inSync[f] = struct{}{}
	}

	mainFiles := main.Files
	workers := e.Workers(len(mainFiles))
	results := make([]workerResult, workers)

	g, gctx := errgroup.WithContext(ctx)
	for i, r := range partition(len(mainFiles), workers) {
		g.Go(func() error {
			w := &worker{engine: e, main: main, sync: sync}
			for _, key := range mainFiles[r.start:r.end] {
				if err := gctx.Err(); err != nil {
					return err
				}
				w.process(key, inSync)
			}
			results[i] = w.result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("change detection aborted: %w", err)
	}

	for _, r := range results {
		cs.FileAdditions = append(cs.FileAdditions, r.additions...)
		cs.FileModifications = append(cs.FileModifications, r.modifications...)
	}

	inMain := make(map[string]struct{}, len(mainFiles))
	for _, f := range mainFiles {
		inMain[f] = struct{}{}
	}
	for _, f := range sync.Files {
		if _, ok := inMain[f]; ok || e.skip(f) {
			continue
		}
		// The whole directory goes, its files with it.
		if withinAny(f, cs.DirDeletions) {
			continue
		}
		cs.FileDeletions = append(cs.FileDeletions, f)
	}

	slices.Sort(cs.FileAdditions)
	slices.Sort(cs.FileModifications)
	slices.Sort(cs.FileDeletions)
	return cs, nil
}

type span struct{ start, end int }

// partition splits n items into contiguous spans, one per worker. The
// remainder goes to the first worker.
func partition(n, workers int) []span {
	per, rem := n/workers, n%workers
	spans := make([]span, 0, workers)
	start := 0
	for i := range workers {
		size := per
		if i == 0 {
			size += rem
		}
		spans = append(spans, span{start, start + size})
		start += size
	}
	return spans
}

type workerResult struct {
	additions     []string
	modifications []string
}

type worker struct {
	engine *Engine
	main   Side
	sync   Side
	result workerResult
}

func (w *worker) process(key string, inSync map[string]struct{}) {
	e := w.engine
	if e.skip(key) {
		e.metrics.AddFilesSkipped(1)
		return
	}
	if _, ok := inSync[key]; !ok {
		w.result.additions = append(w.result.additions, key)
		return
	}
	e.metrics.AddFilesCompared(1)
	modified, err := w.compare(key)
	if err != nil {
		e.metrics.AddFilesFailed(1)
		plog.Warn("Skipping file, comparison failed", "path", key, "error", err)
		return
	}
	if modified {
		w.result.modifications = append(w.result.modifications, key)
	}
}

// compare reports whether the file at key differs between the roots.
func (w *worker) compare(key string) (bool, error) {
	e := w.engine
	mainAbs := util.DenormalizedAbsPath(w.main.Root, key)
	syncAbs := util.DenormalizedAbsPath(w.sync.Root, key)

	mainStat, err := e.stat.Stat(mainAbs)
	if err != nil {
		return false, fmt.Errorf("stat main: %w", err)
	}
	syncStat, err := e.stat.Stat(syncAbs)
	if err != nil {
		return false, fmt.Errorf("stat sync: %w", err)
	}

	if !e.opts.UseCache {
		if mainStat.Size != syncStat.Size {
			return true, nil
		}
		mainHash, syncHash, err := w.fingerprintBoth(mainAbs, syncAbs)
		if err != nil {
			return false, err
		}
		return mainHash != syncHash, nil
	}

	mainCached, mainHit := w.main.Cache.Lookup(key)
	syncCached, syncHit := w.sync.Cache.Lookup(key)
	if mainHit && syncHit {
		if matches(mainCached, mainStat) && matches(syncCached, syncStat) {
			e.metrics.AddFastPathHits(1)
			return mainCached.Hash != syncCached.Hash, nil
		}
	} else {
		e.metrics.AddCacheMisses(1)
	}

	mainHash, syncHash, err := w.fingerprintBoth(mainAbs, syncAbs)
	if err != nil {
		return false, err
	}
	if err := w.main.Cache.AddCache(key, dircache.OverrideFrom(mainStat, mainHash)); err != nil {
		plog.Warn("Failed to refresh main cache entry", "path", key, "error", err)
	}
	if err := w.sync.Cache.AddCache(key, dircache.OverrideFrom(syncStat, syncHash)); err != nil {
		plog.Warn("Failed to refresh sync cache entry", "path", key, "error", err)
	}
	return mainHash != syncHash, nil
}

func (w *worker) fingerprintBoth(mainAbs, syncAbs string) (fsys.Hash, fsys.Hash, error) {
	e := w.engine
	mainHash, err := e.hasher.Fingerprint(mainAbs)
	if err != nil {
		return fsys.Hash{}, fsys.Hash{}, fmt.Errorf("fingerprint main: %w", err)
	}
	e.metrics.AddFilesHashed(1)
	syncHash, err := e.hasher.Fingerprint(syncAbs)
	if err != nil {
		return fsys.Hash{}, fsys.Hash{}, fmt.Errorf("fingerprint sync: %w", err)
	}
	e.metrics.AddFilesHashed(1)
	return mainHash, syncHash, nil
}

// matches compares cached attributes with a live stat at tick resolution.
func matches(a dircache.FileAttrs, st fsys.FileStat) bool {
	return a.Size == st.Size &&
		dircache.SameInstant(a.Created, st.Created) &&
		dircache.SameInstant(a.Modified, st.Modified)
}
