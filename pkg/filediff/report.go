package filediff

import (
	"fmt"
	"io"

	"github.com/paulschiretz/pgl-filediff/pkg/plog"
)

// LogSummary logs the size of every category, or that nothing changed.
func (c *ChangeSet) LogSummary() {
	if c.IsEmpty() {
		plog.Info("No changes!")
		return
	}
	plog.Info("Changes detected",
		"file_additions", len(c.FileAdditions),
		"file_modifications", len(c.FileModifications),
		"file_deletions", len(c.FileDeletions),
		"dir_additions", len(c.DirAdditions),
		"dir_deletions", len(c.DirDeletions),
	)
}

// WriteReport lists every entry, one per line, prefixed by its category.
func (c *ChangeSet) WriteReport(w io.Writer) error {
	sections := []struct {
		marker string
		keys   []string
	}{
		{"D+", c.DirAdditions},
		{"F+", c.FileAdditions},
		{"F~", c.FileModifications},
		{"F-", c.FileDeletions},
		{"D-", c.DirDeletions},
	}
	for _, s := range sections {
		for _, k := range s.keys {
			if _, err := fmt.Fprintf(w, "%s %s\n", s.marker, k); err != nil {
				return err
			}
		}
	}
	return nil
}
