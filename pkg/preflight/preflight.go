// Package preflight validates the two roots of a diff or sync run before any
// cache is loaded or any file is touched. Checks never modify the roots, with
// the exception of the short-lived probe file written by CheckRootWritable.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulschiretz/pgl-filediff/pkg/plog"
)

// Plan selects which checks Run performs.
type Plan struct {
	RootsAccessible bool
	RootsDistinct   bool
	SyncWritable    bool
}

// Run executes the checks enabled in p against the main and sync roots.
// Both paths are expected to be absolute and clean.
func Run(mainRoot, syncRoot string, p Plan) error {
	if p.RootsAccessible {
		if err := CheckRootAccessible("main", mainRoot); err != nil {
			return err
		}
		if err := CheckRootAccessible("sync", syncRoot); err != nil {
			return err
		}
	}
	if p.RootsDistinct {
		if err := CheckRootsDistinct(mainRoot, syncRoot); err != nil {
			return err
		}
	}
	if p.SyncWritable {
		if err := CheckRootWritable(syncRoot); err != nil {
			return err
		}
	}
	plog.Debug("Preflight checks passed", "main", mainRoot, "sync", syncRoot)
	return nil
}

// CheckRootAccessible validates that root exists and is a directory.
// label names the root in error messages.
func CheckRootAccessible(label, root string) error {
	if root == "" {
		return fmt.Errorf("%s root cannot be empty", label)
	}
	if err := checkVolumeExists(root); err != nil {
		return err
	}
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s root %s does not exist", label, root)
		}
		return fmt.Errorf("cannot access %s root %s: %w", label, root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s root %s is not a directory", label, root)
	}
	return nil
}

// CheckRootsDistinct rejects identical roots and roots nested inside each other.
func CheckRootsDistinct(mainRoot, syncRoot string) error {
	a, b := canonical(mainRoot), canonical(syncRoot)
	switch {
	case a == b:
		return fmt.Errorf("main and sync roots are the same directory: %s", mainRoot)
	case nested(a, b):
		return fmt.Errorf("sync root %s is inside main root %s", syncRoot, mainRoot)
	case nested(b, a):
		return fmt.Errorf("main root %s is inside sync root %s", mainRoot, syncRoot)
	}

	// Catch aliases through symlinks or bind mounts.
	ai, errA := os.Stat(mainRoot)
	bi, errB := os.Stat(syncRoot)
	if errA == nil && errB == nil && os.SameFile(ai, bi) {
		return fmt.Errorf("main root %s and sync root %s refer to the same directory", mainRoot, syncRoot)
	}
	return nil
}

// CheckRootWritable creates and removes a probe file in root.
func CheckRootWritable(root string) error {
	probe := filepath.Join(root, ".pgl-filediff-writetest.tmp")
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("sync root %s is not writable: %w", root, err)
	}
	f.Close()
	if err := os.Remove(probe); err != nil {
		plog.Warn("Failed to remove write probe", "path", probe, "error", err)
	}
	return nil
}

// nested reports whether child lies strictly below parent.
func nested(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func canonical(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		p = resolved
	}
	return foldCase(filepath.Clean(p))
}
