package dircache

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"time"
)

// Dump writes a human-readable listing of the tree below root to w:
//
//	D dir
//	-F file 2024-01-02T03:04:05Z 00000000DEADBEEF
//
// Each dash is one level of depth. Hashes are printed as the little-endian
// 64-bit value in upper hex.
func Dump(w io.Writer, root *TreeNode) error {
	if len(root.children) == 0 {
		_, err := fmt.Fprintln(w, "Empty cache")
		return err
	}
	var werr error
	root.Walk(func(n *TreeNode, depth int) {
		if werr != nil {
			return
		}
		indent := strings.Repeat("-", depth)
		if n.IsDir {
			_, werr = fmt.Fprintf(w, "%sD %s\n", indent, n.Name)
			return
		}
		a, ok := n.Attrs()
		if !ok {
			_, werr = fmt.Fprintf(w, "%sF %s <invalid>\n", indent, n.Name)
			return
		}
		_, werr = fmt.Fprintf(w, "%sF %s %s %016X\n", indent, n.Name,
			a.Created.UTC().Format(time.RFC3339), binary.LittleEndian.Uint64(a.Hash[:]))
	})
	return werr
}
