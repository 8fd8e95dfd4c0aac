// Package ignore loads the optional ignore file of a root. Each non-empty
// line is a prefix matched against forward-slash relative paths. Lines that
// contain glob metacharacters are matched with path.Match instead, and lines
// starting with '#' are comments.
package ignore

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/paulschiretz/pgl-filediff/pkg/plog"
)

// DefaultFileName is the ignore file looked up in each root.
const DefaultFileName = ".fdignore"

// List is an immutable set of ignore patterns. The zero value and a nil
// *List match nothing.
type List struct {
	prefixes []string
	globs    []string
}

// Parse reads newline-delimited patterns.
func Parse(r io.Reader) (*List, error) {
	l := &List{}
	seen := make(map[string]struct{})
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		p := strings.TrimSpace(sc.Text())
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		p = strings.TrimPrefix(strings.ReplaceAll(p, "\\", "/"), "./")
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		if strings.ContainsAny(p, "*?[") {
			if _, err := path.Match(p, ""); err != nil {
				plog.Warn("Skipping invalid ignore pattern", "pattern", p, "error", err)
				continue
			}
			l.globs = append(l.globs, p)
			continue
		}
		l.prefixes = append(l.prefixes, p)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ignore patterns: %w", err)
	}
	return l, nil
}

// Load parses the ignore file at filePath. A missing file yields an empty
// list; exists reports whether the file was there.
func Load(filePath string) (l *List, exists bool, err error) {
	f, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &List{}, false, nil
		}
		return nil, false, fmt.Errorf("could not open ignore file %s: %w", filePath, err)
	}
	defer f.Close()
	l, err = Parse(f)
	if err != nil {
		return nil, true, fmt.Errorf("could not parse ignore file %s: %w", filePath, err)
	}
	return l, true, nil
}

// Merge returns the concatenation of l and other, without duplicates.
func (l *List) Merge(other *List) *List {
	var b strings.Builder
	for _, p := range l.Patterns() {
		b.WriteString(p + "\n")
	}
	for _, p := range other.Patterns() {
		b.WriteString(p + "\n")
	}
	merged, _ := Parse(strings.NewReader(b.String()))
	return merged
}

// Matches reports whether relKey is ignored.
func (l *List) Matches(relKey string) bool {
	if l == nil {
		return false
	}
	for _, p := range l.prefixes {
		if strings.HasPrefix(relKey, p) {
			return true
		}
	}
	for _, g := range l.globs {
		if ok, _ := path.Match(g, relKey); ok {
			return true
		}
		if ok, _ := path.Match(g, path.Base(relKey)); ok {
			return true
		}
	}
	return false
}

// Patterns returns every pattern, prefixes first.
func (l *List) Patterns() []string {
	if l == nil {
		return nil
	}
	out := make([]string, 0, len(l.prefixes)+len(l.globs))
	out = append(out, l.prefixes...)
	return append(out, l.globs...)
}

// Len returns the number of patterns.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.prefixes) + len(l.globs)
}
