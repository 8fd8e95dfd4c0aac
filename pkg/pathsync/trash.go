package pathsync

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulschiretz/pgl-filediff/pkg/plog"
	"github.com/paulschiretz/pgl-filediff/pkg/util"
)

// trasher moves deleted entries below the trash root, mirroring their
// relative directory. One trasher serves one deletion pass; its counter
// numbers the entries of that pass and provides collision prefixes.
type trasher struct {
	s       *Synchronizer
	root    string
	counter int
}

func newTrasher(s *Synchronizer, syncRoot, trashDir string) *trasher {
	return &trasher{s: s, root: filepath.Join(syncRoot, trashDir)}
}

// move renames the entry at relKey into the trash and returns where it
// ended up. If the mirrored name is taken, the name is prefixed with
// "N-" where N is the pass counter, bumped until the name is free.
func (t *trasher) move(syncRoot, relKey string) (string, error) {
	t.counter++
	dir, name := util.SplitRel(relKey)
	trgDir := util.DenormalizedAbsPath(t.root, dir)
	if err := t.s.ensureDir(trgDir); err != nil {
		return "", fmt.Errorf("failed to create trash directory %s: %w", trgDir, err)
	}

	trg := filepath.Join(trgDir, name)
	if pathExists(trg) {
		plog.Warn("Name already exists in trash, adding a number prefix", "path", relKey)
		for {
			trg = filepath.Join(trgDir, fmt.Sprintf("%d-%s", t.counter, name))
			if !pathExists(trg) {
				break
			}
			t.counter++
		}
	}

	if err := os.Rename(util.DenormalizedAbsPath(syncRoot, relKey), trg); err != nil {
		return "", err
	}
	return trg, nil
}

func pathExists(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}
