package pathsync

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/paulschiretz/pgl-filediff/pkg/plog"
	"github.com/paulschiretz/pgl-filediff/pkg/util"
)

// copyFileSafe copies absSrcPath over absTrgPath. It writes to a temporary
// file in the target directory first and renames it into place, so the
// target is never left half written.
func (s *Synchronizer) copyFileSafe(ctx context.Context, absSrcPath, absTrgPath string) (int64, error) {
	var lastErr error
	for i := range s.opts.RetryCount + 1 {
		if i > 0 {
			plog.Warn("Retrying file copy", "file", absSrcPath, "attempt", fmt.Sprintf("%d/%d", i, s.opts.RetryCount), "after", s.opts.RetryWait)
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(s.opts.RetryWait):
			}
		}

		var written int64
		written, lastErr = s.copyOnce(absSrcPath, absTrgPath)
		if lastErr == nil {
			return written, nil
		}
	}
	return 0, fmt.Errorf("failed to copy file from '%s' to '%s' after %d attempts: %w", absSrcPath, absTrgPath, s.opts.RetryCount+1, lastErr)
}

func (s *Synchronizer) copyOnce(absSrcPath, absTrgPath string) (written int64, err error) {
	in, err := os.Open(absSrcPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open source file %s: %w", absSrcPath, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat source file %s: %w", absSrcPath, err)
	}

	absTrgDir := filepath.Dir(absTrgPath)
	out, err := os.CreateTemp(absTrgDir, "pgl-filediff-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file in %s: %w", absTrgDir, err)
	}
	defer out.Close()

	absTempPath := out.Name()
	defer func() {
		if absTempPath != "" {
			os.Remove(absTempPath)
		}
	}()

	if info.Size() > 0 {
		_ = out.Truncate(info.Size())
	}

	bufPtr := s.ioBufferPool.Get().(*[]byte)
	defer s.ioBufferPool.Put(bufPtr)
	buf := (*bufPtr)[:cap(*bufPtr)]

	// Truncate pre-sized the file; CopyBuffer overwrites from offset 0.
	if written, err = io.CopyBuffer(out, in, buf); err != nil {
		return 0, fmt.Errorf("failed to copy content from %s to %s: %w", absSrcPath, absTempPath, err)
	}
	if written != info.Size() {
		if err := out.Truncate(written); err != nil {
			return 0, fmt.Errorf("failed to truncate %s: %w", absTempPath, err)
		}
	}

	// The sync tree must stay writable for the next run.
	if err := out.Chmod(util.WithUserWritePermission(info.Mode().Perm())); err != nil {
		return 0, fmt.Errorf("failed to set permissions on temporary file %s: %w", absTempPath, err)
	}

	// Close before Chtimes, flushing may touch the modification time.
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temporary file %s: %w", absTempPath, err)
	}
	if err := os.Chtimes(absTempPath, info.ModTime(), info.ModTime()); err != nil {
		return 0, fmt.Errorf("failed to set timestamps on %s: %w", absTempPath, err)
	}
	if err := os.Rename(absTempPath, absTrgPath); err != nil {
		return 0, err
	}
	absTempPath = ""
	return written, nil
}

// ensureDir creates absDir once, even when several copies need it at the
// same time.
func (s *Synchronizer) ensureDir(absDir string) error {
	_, err, _ := s.dirGroup.Do(absDir, func() (any, error) {
		return nil, os.MkdirAll(absDir, util.UserWritableDirPerms)
	})
	return err
}
