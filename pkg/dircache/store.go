package dircache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/paulschiretz/pgl-filediff/pkg/fsys"
	"github.com/paulschiretz/pgl-filediff/pkg/plog"
	"github.com/paulschiretz/pgl-filediff/pkg/util"
)

// DefaultFileName is the name of the persisted cache inside each root.
const DefaultFileName = ".fdc"

// Store owns the cache tree of one root. All mutation goes through a single
// mutex, so a Store can be shared by concurrent workers. Live filesystem
// reads (stat and fingerprint) happen outside the lock.
type Store struct {
	mu       sync.Mutex
	root     *TreeNode
	rootPath string
	stat     fsys.Statter
	hasher   fsys.Fingerprinter
}

// NewStore returns an empty store for the files under rootPath.
func NewStore(rootPath string, stat fsys.Statter, hasher fsys.Fingerprinter) *Store {
	return &Store{
		root:     newRoot(),
		rootPath: rootPath,
		stat:     stat,
		hasher:   hasher,
	}
}

// LoadStore reads a persisted cache. Loading is best-effort: a missing,
// unreadable or malformed file yields an empty store.
func LoadStore(cachePath, rootPath string, stat fsys.Statter, hasher fsys.Fingerprinter) *Store {
	s := NewStore(rootPath, stat, hasher)
	data, err := os.ReadFile(cachePath)
	if err != nil {
		if os.IsNotExist(err) {
			plog.Debug("No cache file found, starting empty", "path", cachePath)
		} else {
			plog.Warn("Could not read cache file, starting empty", "path", cachePath, "error", err)
		}
		return s
	}
	root, err := Decode(data)
	if err != nil {
		plog.Warn("Discarding malformed cache file", "path", cachePath, "error", err)
		return s
	}
	s.root = root
	dirs, files := root.Count()
	plog.Debug("Loaded cache", "path", cachePath, "dirs", dirs, "files", files)
	return s
}

// RootPath returns the absolute filesystem root the cache describes.
func (s *Store) RootPath() string { return s.rootPath }

// Root returns the cache root. It must not be used while other goroutines
// mutate the store.
func (s *Store) Root() *TreeNode { return s.root }

// ReadCache returns the node at relPath, or nil. "." and "" return the root.
// The node must not be used while other goroutines mutate the store; use
// Lookup from concurrent code.
func (s *Store) ReadCache(relPath string) *TreeNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(util.NormalizedRelPath(relPath))
}

// Lookup returns a copy of the cached file attributes at relPath.
func (s *Store) Lookup(relPath string) (FileAttrs, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.find(util.NormalizedRelPath(relPath))
	if n == nil {
		return FileAttrs{}, false
	}
	return n.Attrs()
}

// AddCache inserts the file at relPath, creating intermediate directories
// as needed. An existing file entry is refreshed. Unset override fields are
// read from the live file; if that fails the tree is left untouched.
func (s *Store) AddCache(relPath string, o *NodeOverride) error {
	key, err := fileKey(relPath)
	if err != nil {
		return err
	}
	attrs, err := s.resolve(key, o)
	if err != nil {
		plog.Warn("Cannot add file to cache", "path", key, "error", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	segs := strings.Split(key, "/")
	dirSegs, name := segs[:len(segs)-1], segs[len(segs)-1]

	// Validate the whole path before creating anything so a conflict
	// cannot leave empty directories behind.
	cur := s.root
	for i, seg := range dirSegs {
		next := cur.Child(seg)
		if next == nil {
			break
		}
		if !next.IsDir {
			return fmt.Errorf("cannot add %s: %s is a file in the cache", key, strings.Join(dirSegs[:i+1], "/"))
		}
		cur = next
	}

	parent := s.root
	for _, seg := range dirSegs {
		next := parent.Child(seg)
		if next == nil {
			next = newDirNode(seg)
			parent.addChild(next)
		}
		parent = next
	}

	if existing := parent.Child(name); existing != nil {
		if existing.IsDir {
			return fmt.Errorf("cannot add %s: a directory with that name is cached", key)
		}
		existing.attrs = &attrs
		return nil
	}
	parent.addChild(newFileNode(name, attrs))
	return nil
}

// UpdCache refreshes all attributes of an existing file entry. It returns
// ErrNotFound when relPath is not a cached file.
func (s *Store) UpdCache(relPath string, o *NodeOverride) error {
	key, err := fileKey(relPath)
	if err != nil {
		return err
	}
	if !s.isCachedFile(key) {
		return fmt.Errorf("update %s: %w", key, ErrNotFound)
	}
	attrs, err := s.resolve(key, o)
	if err != nil {
		plog.Warn("Cannot update cached file", "path", key, "error", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.find(key)
	if n == nil || n.IsDir {
		return fmt.Errorf("update %s: %w", key, ErrNotFound)
	}
	n.attrs = &attrs
	return nil
}

// DelCache removes the entry at relPath, a file or a whole directory
// subtree, then prunes ancestors that became empty. The root is never
// removed. A missing path returns ErrNotFound.
func (s *Store) DelCache(relPath string) error {
	key := util.NormalizedRelPath(relPath)
	if key == "" || key == "." {
		return errors.New("cannot delete the cache root, use ClearCache")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.find(key)
	if n == nil {
		return fmt.Errorf("delete %s: %w", key, ErrNotFound)
	}
	parent := n.parent
	parent.removeChild(n)
	for parent != s.root && len(parent.children) == 0 {
		up := parent.parent
		up.removeChild(parent)
		parent = up
	}
	return nil
}

// ClearCache drops every entry below the root.
func (s *Store) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.root.children {
		c.parent = nil
	}
	s.root.children = nil
	s.root.index = nil
}

// Counts returns the number of cached directories and files.
func (s *Store) Counts() (dirs, files int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root.Count()
}

// FileKeys returns the relative keys of every cached file.
func (s *Store) FileKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	s.root.Walk(func(n *TreeNode, _ int) {
		if !n.IsDir {
			keys = append(keys, n.RelPath())
		}
	})
	return keys
}

// Serialize encodes the tree.
func (s *Store) Serialize(c Compression) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Encode(s.root, c)
}

// Save writes the encoded tree to cachePath through a temp file in the
// same directory followed by a rename.
func (s *Store) Save(cachePath string, c Compression) error {
	data, err := s.Serialize(c)
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}

	tmpF, err := os.CreateTemp(filepath.Dir(cachePath), filepath.Base(cachePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	defer func() {
		if err := os.Remove(tmpF.Name()); err != nil && !os.IsNotExist(err) {
			plog.Warn("Failed to remove temporary cache file", "path", tmpF.Name(), "error", err)
		}
	}()

	if _, err := tmpF.Write(data); err != nil {
		tmpF.Close()
		return fmt.Errorf("failed to write temp cache file: %w", err)
	}
	if err := tmpF.Sync(); err != nil {
		tmpF.Close()
		return fmt.Errorf("failed to sync temp cache file: %w", err)
	}
	if err := tmpF.Close(); err != nil {
		return fmt.Errorf("failed to close temp cache file: %w", err)
	}
	if err := os.Rename(tmpF.Name(), cachePath); err != nil {
		return fmt.Errorf("failed to move cache file into place: %w", err)
	}
	return nil
}

func (s *Store) isCachedFile(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.find(key)
	return n != nil && !n.IsDir
}

// find must be called with s.mu held.
func (s *Store) find(key string) *TreeNode {
	if key == "" || key == "." {
		return s.root
	}
	cur := s.root
	for _, seg := range strings.Split(key, "/") {
		if cur == nil || !cur.IsDir {
			return nil
		}
		cur = cur.Child(seg)
	}
	return cur
}

// resolve merges the override with live metadata for key.
func (s *Store) resolve(key string, o *NodeOverride) (FileAttrs, error) {
	if o == nil {
		o = &NodeOverride{}
	}
	abs := util.DenormalizedAbsPath(s.rootPath, key)

	var a FileAttrs
	if o.Created == nil || o.Modified == nil || o.Size == nil {
		if s.stat == nil {
			return FileAttrs{}, errors.New("no stat source configured")
		}
		st, err := s.stat.Stat(abs)
		if err != nil {
			return FileAttrs{}, err
		}
		a.Created, a.Modified, a.Size = st.Created, st.Modified, st.Size
	}
	if o.Created != nil {
		a.Created = *o.Created
	}
	if o.Modified != nil {
		a.Modified = *o.Modified
	}
	if o.Size != nil {
		a.Size = *o.Size
	}

	if o.Hash != nil {
		a.Hash = *o.Hash
	} else {
		if s.hasher == nil {
			return FileAttrs{}, errors.New("no fingerprint source configured")
		}
		h, err := s.hasher.Fingerprint(abs)
		if err != nil {
			return FileAttrs{}, err
		}
		a.Hash = h
	}
	return a, nil
}

func fileKey(relPath string) (string, error) {
	key := util.NormalizedRelPath(relPath)
	if key == "" || key == "." || key == ".." || strings.HasPrefix(key, "../") || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid cache path %q", relPath)
	}
	return key, nil
}
