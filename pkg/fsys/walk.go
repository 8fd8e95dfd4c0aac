package fsys

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/paulschiretz/pgl-filediff/pkg/plog"
	"github.com/paulschiretz/pgl-filediff/pkg/util"
)

// DirWalker walks a tree with filepath.WalkDir. Directories whose relative
// key matches one of SkipDirs are neither listed nor descended into.
// Symlinks and other non-regular files are ignored.
type DirWalker struct {
	SkipDirs []string
}

// Walk implements Walker.
func (w DirWalker) Walk(root string) (files, dirs []string, err error) {
	skip := make(map[string]struct{}, len(w.SkipDirs))
	for _, d := range w.SkipDirs {
		skip[util.NormalizedRelPath(d)] = struct{}{}
	}

	err = filepath.WalkDir(root, func(absPath string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if absPath == root {
				return walkErr
			}
			// Unreadable subtrees are reported and left out of the listing.
			plog.Warn("Skipping unreadable path", "path", absPath, "error", walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if absPath == root {
			return nil
		}

		rel, err := filepath.Rel(root, absPath)
		if err != nil {
			return fmt.Errorf("failed to get relative path for %s: %w", absPath, err)
		}
		relKey := util.NormalizedRelPath(rel)

		switch {
		case d.IsDir():
			if _, ok := skip[relKey]; ok {
				return filepath.SkipDir
			}
			dirs = append(dirs, relKey)
		case d.Type().IsRegular():
			files = append(files, relKey)
		default:
			plog.Debug("Ignoring non-regular file", "path", relKey, "type", d.Type().String())
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return files, dirs, nil
}

var _ Walker = DirWalker{}
