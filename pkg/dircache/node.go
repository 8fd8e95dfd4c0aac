// Package dircache persists file metadata of one synchronized root so that
// unchanged files can be recognised without re-hashing them.
//
// The cache is a tree of TreeNode values owned by a Store. Directories hold
// children, files hold creation time, modification time, size and an 8-byte
// content fingerprint. The tree is written to disk with a compact chunked
// binary format, see Encode and Decode.
package dircache

import (
	"slices"
	"strings"
	"time"

	"github.com/paulschiretz/pgl-filediff/pkg/fsys"
)

// RootName is the sentinel name of every cache root. It is never serialized.
const RootName = "root"

// FileAttrs are the cached attributes of a file. They are always present
// together: a file node either has all four or none.
type FileAttrs struct {
	Created  time.Time
	Modified time.Time
	Size     int64
	Hash     fsys.Hash
}

// NodeOverride lets a caller supply attributes it already knows. Nil fields
// are read from the live filesystem instead.
type NodeOverride struct {
	Created  *time.Time
	Modified *time.Time
	Size     *int64
	Hash     *fsys.Hash
}

// OverrideFrom builds a NodeOverride that sets every field.
func OverrideFrom(st fsys.FileStat, h fsys.Hash) *NodeOverride {
	return &NodeOverride{Created: &st.Created, Modified: &st.Modified, Size: &st.Size, Hash: &h}
}

// TreeNode is one cached filesystem entry.
//
// The parent pointer is a back-reference for path reconstruction and
// upward pruning only; a node is owned by its parent's child list.
type TreeNode struct {
	Name  string
	IsDir bool

	parent   *TreeNode
	children []*TreeNode
	index    map[string]*TreeNode

	attrs *FileAttrs
}

func newRoot() *TreeNode {
	return &TreeNode{Name: RootName, IsDir: true}
}

func newDirNode(name string) *TreeNode {
	return &TreeNode{Name: name, IsDir: true}
}

func newFileNode(name string, a FileAttrs) *TreeNode {
	return &TreeNode{Name: name, attrs: &a}
}

// Parent returns the owning directory, or nil for the root.
func (n *TreeNode) Parent() *TreeNode { return n.parent }

// IsRoot reports whether n is the cache root.
func (n *TreeNode) IsRoot() bool { return n.parent == nil && n.IsDir && n.Name == RootName }

// Children returns the direct children in insertion order. The slice must
// not be modified.
func (n *TreeNode) Children() []*TreeNode { return n.children }

// Attrs returns the file attributes. ok is false for directories and for
// file nodes that were never given attributes.
func (n *TreeNode) Attrs() (a FileAttrs, ok bool) {
	if n.IsDir || n.attrs == nil {
		return FileAttrs{}, false
	}
	return *n.attrs, true
}

// Child returns the direct child with the given name, or nil.
func (n *TreeNode) Child(name string) *TreeNode {
	if n.index == nil {
		return nil
	}
	return n.index[name]
}

// RelPath reconstructs the forward-slash path of n relative to the root.
func (n *TreeNode) RelPath() string {
	var segs []string
	for cur := n; cur != nil && cur.parent != nil; cur = cur.parent {
		segs = append(segs, cur.Name)
	}
	slices.Reverse(segs)
	return strings.Join(segs, "/")
}

func (n *TreeNode) addChild(c *TreeNode) {
	if n.index == nil {
		n.index = make(map[string]*TreeNode)
	}
	c.parent = n
	n.children = append(n.children, c)
	n.index[c.Name] = c
}

func (n *TreeNode) removeChild(c *TreeNode) bool {
	i := slices.Index(n.children, c)
	if i < 0 {
		return false
	}
	n.children = slices.Delete(n.children, i, i+1)
	delete(n.index, c.Name)
	c.parent = nil
	return true
}

// Walk calls fn for every node below n in depth-first order, files of a
// directory before its subdirectories.
func (n *TreeNode) Walk(fn func(node *TreeNode, depth int)) {
	n.walk(fn, 0)
}

func (n *TreeNode) walk(fn func(node *TreeNode, depth int), depth int) {
	for _, c := range n.children {
		if !c.IsDir {
			fn(c, depth)
		}
	}
	for _, c := range n.children {
		if c.IsDir {
			fn(c, depth)
			c.walk(fn, depth+1)
		}
	}
}

// Count returns the number of directories and files below n.
func (n *TreeNode) Count() (dirs, files int) {
	n.Walk(func(node *TreeNode, _ int) {
		if node.IsDir {
			dirs++
		} else {
			files++
		}
	})
	return dirs, files
}
