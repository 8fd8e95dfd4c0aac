package filediff

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/paulschiretz/pgl-filediff/pkg/dircache"
	"github.com/paulschiretz/pgl-filediff/pkg/plog"
	"github.com/paulschiretz/pgl-filediff/pkg/util"
)

// RebuildCache clears side.Cache and fills it from a full pass over
// side.Files, hashing every file. Files that cannot be read are logged and
// left out.
func (e *Engine) RebuildCache(ctx context.Context, side Side) error {
	if side.Cache == nil {
		return fmt.Errorf("no cache store for %s", side.Root)
	}
	side.Cache.ClearCache()

	workers := e.Workers(len(side.Files))
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range partition(len(side.Files), workers) {
		g.Go(func() error {
			for _, key := range side.Files[r.start:r.end] {
				if err := gctx.Err(); err != nil {
					return err
				}
				if e.skip(key) {
					e.metrics.AddFilesSkipped(1)
					continue
				}
				abs := util.DenormalizedAbsPath(side.Root, key)
				st, err := e.stat.Stat(abs)
				if err != nil {
					e.metrics.AddFilesFailed(1)
					plog.Warn("Skipping file, stat failed", "path", key, "error", err)
					continue
				}
				h, err := e.hasher.Fingerprint(abs)
				if err != nil {
					e.metrics.AddFilesFailed(1)
					plog.Warn("Skipping file, fingerprint failed", "path", key, "error", err)
					continue
				}
				e.metrics.AddFilesHashed(1)
				if err := side.Cache.AddCache(key, dircache.OverrideFrom(st, h)); err != nil {
					e.metrics.AddFilesFailed(1)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("cache rebuild aborted: %w", err)
	}
	return nil
}

// PruneCache drops cache entries for files that are no longer in
// side.Files. It returns the number of removed entries.
func PruneCache(side Side) int {
	if side.Cache == nil {
		return 0
	}
	live := make(map[string]struct{}, len(side.Files))
	for _, f := range side.Files {
		live[f] = struct{}{}
	}
	removed := 0
	for _, key := range side.Cache.FileKeys() {
		if _, ok := live[key]; ok {
			continue
		}
		if err := side.Cache.DelCache(key); err == nil {
			removed++
		}
	}
	if removed > 0 {
		plog.Debug("Pruned stale cache entries", "root", side.Root, "count", removed)
	}
	return removed
}
