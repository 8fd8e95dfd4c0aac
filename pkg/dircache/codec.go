package dircache

import (
	"encoding/binary"
	"fmt"
	"math"
	"path"
	"strings"
	"time"

	"github.com/paulschiretz/pgl-filediff/pkg/plog"
)

// Stream layout:
//
//	[magic:1][compression:1][dirCount:int32][fileCount:int32][body]
//
// The body is a sequence of chunks followed by a single terminator byte.
// Each chunk is [len:int16][tag:1][payload:len-1]. A directory chunk is
// followed by exactly childCount chunks of its own. Integers are
// little-endian.
const (
	Magic byte = 0x5A

	tagFile    byte = 0x01
	tagDir     byte = 0x02
	terminator byte = 0xFF

	// MaxChunkLen is the largest legal chunk payload.
	MaxChunkLen = 300

	headerLen    = 10
	fileFixedLen = 1 + 8 + 8 + 8 + 8
	dirFixedLen  = 1 + 2

	maxDepth = 4096
)

// ticksAtUnixEpoch is the number of 100ns ticks between 0001-01-01 UTC and
// 1970-01-01 UTC.
const ticksAtUnixEpoch int64 = 621355968000000000

// TimeToTicks converts t to 100ns ticks since 0001-01-01T00:00:00Z.
func TimeToTicks(t time.Time) int64 {
	return ticksAtUnixEpoch + t.Unix()*1e7 + int64(t.Nanosecond())/100
}

// TicksToTime is the inverse of TimeToTicks. The result is in UTC.
func TicksToTime(ticks int64) time.Time {
	d := ticks - ticksAtUnixEpoch
	return time.Unix(d/1e7, (d%1e7)*100).UTC()
}

// SameInstant reports whether a and b are equal at tick resolution, which
// is all the cache stores.
func SameInstant(a, b time.Time) bool {
	return TimeToTicks(a) == TimeToTicks(b)
}

// Encode serializes the tree below root. The root itself is never written.
func Encode(root *TreeNode, c Compression) ([]byte, error) {
	if _, ok := compressionToString[c]; !ok {
		return nil, fmt.Errorf("unsupported compression %s", c)
	}
	e := &encoder{}
	if _, err := e.encodeChildren(root, ""); err != nil {
		return nil, err
	}
	e.body = append(e.body, terminator)

	body, err := compressBody(c, e.body)
	if err != nil {
		return nil, fmt.Errorf("failed to compress cache body: %w", err)
	}

	out := make([]byte, headerLen, headerLen+len(body))
	out[0] = Magic
	out[1] = byte(c)
	binary.LittleEndian.PutUint32(out[2:6], uint32(e.dirs))
	binary.LittleEndian.PutUint32(out[6:10], uint32(e.files))
	return append(out, body...), nil
}

type encoder struct {
	body  []byte
	dirs  int32
	files int32
}

// encodeChildren writes the files of dir, then its subdirectories, and
// returns how many chunks were emitted directly below dir.
func (e *encoder) encodeChildren(dir *TreeNode, dirPath string) (int, error) {
	emitted := 0
	for _, c := range dir.children {
		if !c.IsDir && e.encodeFile(c, dirPath) {
			emitted++
		}
	}
	for _, c := range dir.children {
		if !c.IsDir {
			continue
		}
		ok, err := e.encodeDir(c, dirPath)
		if err != nil {
			return 0, err
		}
		if ok {
			emitted++
		}
	}
	return emitted, nil
}

func (e *encoder) encodeFile(n *TreeNode, dirPath string) bool {
	if n.Name == "" {
		plog.Warn("Skipping unnamed file node in cache", "dir", displayDir(dirPath))
		return false
	}
	if n.attrs == nil {
		plog.Warn("Skipping file node without attributes in cache", "path", path.Join(dirPath, n.Name))
		return false
	}
	l := fileFixedLen + len(n.Name)
	if l > MaxChunkLen {
		plog.Warn("Skipping file with name too long for cache", "path", path.Join(dirPath, n.Name), "nameBytes", len(n.Name))
		return false
	}
	a := n.attrs
	e.body = binary.LittleEndian.AppendUint16(e.body, uint16(l))
	e.body = append(e.body, tagFile)
	e.body = binary.LittleEndian.AppendUint64(e.body, uint64(a.Size))
	e.body = binary.LittleEndian.AppendUint64(e.body, uint64(TimeToTicks(a.Created)))
	e.body = binary.LittleEndian.AppendUint64(e.body, uint64(TimeToTicks(a.Modified)))
	e.body = append(e.body, a.Hash[:]...)
	e.body = append(e.body, n.Name...)
	e.files++
	return true
}

func (e *encoder) encodeDir(n *TreeNode, dirPath string) (bool, error) {
	if n.Name == "" {
		plog.Warn("Skipping unnamed directory node in cache", "dir", displayDir(dirPath))
		return false, nil
	}
	l := dirFixedLen + len(n.Name)
	if l > MaxChunkLen {
		plog.Warn("Skipping directory with name too long for cache", "path", path.Join(dirPath, n.Name), "nameBytes", len(n.Name))
		return false, nil
	}

	start := len(e.body)
	e.body = binary.LittleEndian.AppendUint16(e.body, uint16(l))
	e.body = append(e.body, tagDir)
	countOff := len(e.body)
	e.body = append(e.body, 0, 0) // child count, patched below
	e.body = append(e.body, n.Name...)

	count, err := e.encodeChildren(n, path.Join(dirPath, n.Name))
	if err != nil {
		return false, err
	}
	if count == 0 {
		e.body = e.body[:start]
		return false, nil
	}
	if count > math.MaxUint16 {
		return false, fmt.Errorf("directory %q has %d children, more than the cache format allows (%d)", path.Join(dirPath, n.Name), count, math.MaxUint16)
	}
	binary.LittleEndian.PutUint16(e.body[countOff:], uint16(count))
	e.dirs++
	return true, nil
}

func displayDir(p string) string {
	if p == "" {
		return "."
	}
	return p
}

// Decode parses a cache stream into a new tree. Directories that end up
// without children are dropped. Any structural problem yields a
// *FormatError and no tree.
func Decode(data []byte) (*TreeNode, error) {
	if len(data) == 0 || data[0] != Magic {
		return nil, formatErrorf(0, "not cache data")
	}
	if len(data) < headerLen {
		return nil, formatErrorf(len(data), "truncated header")
	}
	comp := Compression(data[1])
	if _, ok := compressionToString[comp]; !ok {
		return nil, formatErrorf(1, "unknown compression flag 0x%02x", data[1])
	}
	wantDirs := int32(binary.LittleEndian.Uint32(data[2:6]))
	wantFiles := int32(binary.LittleEndian.Uint32(data[6:10]))

	body, err := decompressBody(comp, data[headerLen:])
	if err != nil {
		return nil, formatErrorf(headerLen, "body does not decompress as %s: %v", comp, err)
	}

	d := &decoder{data: body}
	root := newRoot()
	if err := d.readChildren(root, -1, 0); err != nil {
		return nil, err
	}

	if dirs, files := root.Count(); int32(dirs) != wantDirs || int32(files) != wantFiles {
		plog.Debug("Cache header counts differ from decoded tree",
			"headerDirs", wantDirs, "headerFiles", wantFiles, "dirs", dirs, "files", files)
	}
	return root, nil
}

type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) fail(format string, args ...any) error {
	return formatErrorf(headerLen+d.pos, format, args...)
}

type chunk struct {
	isDir      bool
	name       string
	childCount int
	attrs      FileAttrs
}

// next reads one chunk. end is true when the terminator, the final byte of
// the stream, was consumed.
func (d *decoder) next() (c chunk, end bool, err error) {
	remaining := len(d.data) - d.pos
	switch {
	case remaining == 0:
		return chunk{}, false, d.fail("unexpected end of stream, missing terminator")
	case remaining == 1:
		if d.data[d.pos] == terminator {
			d.pos++
			return chunk{}, true, nil
		}
		return chunk{}, false, d.fail("truncated chunk length")
	}

	l := int(int16(binary.LittleEndian.Uint16(d.data[d.pos:])))
	if l < 0 || l > MaxChunkLen {
		return chunk{}, false, d.fail("chunk length %d out of range [0, %d]", l, MaxChunkLen)
	}
	if l == 0 {
		return chunk{}, false, d.fail("empty chunk has no type tag")
	}
	if remaining-2 < l {
		return chunk{}, false, d.fail("truncated chunk: need %d bytes, have %d", l, remaining-2)
	}
	d.pos += 2
	p := d.data[d.pos : d.pos+l]

	switch p[0] {
	case tagFile:
		if l < fileFixedLen {
			return chunk{}, false, d.fail("file chunk too short (%d bytes)", l)
		}
		var a FileAttrs
		a.Size = int64(binary.LittleEndian.Uint64(p[1:9]))
		a.Created = TicksToTime(int64(binary.LittleEndian.Uint64(p[9:17])))
		a.Modified = TicksToTime(int64(binary.LittleEndian.Uint64(p[17:25])))
		copy(a.Hash[:], p[25:33])
		c = chunk{name: string(p[fileFixedLen:]), attrs: a}
	case tagDir:
		if l < dirFixedLen {
			return chunk{}, false, d.fail("directory chunk too short (%d bytes)", l)
		}
		c = chunk{
			isDir:      true,
			childCount: int(binary.LittleEndian.Uint16(p[1:3])),
			name:       string(p[dirFixedLen:]),
		}
	default:
		return chunk{}, false, d.fail("unknown chunk tag 0x%02x", p[0])
	}

	if c.name == "" || c.name == "." || c.name == ".." || strings.ContainsAny(c.name, "/\x00") {
		return chunk{}, false, d.fail("invalid entry name %q", c.name)
	}
	d.pos += l
	return c, false, nil
}

// readChildren attaches chunks to parent. want < 0 reads until the
// terminator; otherwise exactly want chunks are consumed.
func (d *decoder) readChildren(parent *TreeNode, want, depth int) error {
	if depth > maxDepth {
		return d.fail("directory nesting deeper than %d", maxDepth)
	}
	for n := 0; want < 0 || n < want; n++ {
		c, end, err := d.next()
		if err != nil {
			return err
		}
		if end {
			if want < 0 {
				return nil
			}
			return d.fail("directory %q declares %d children, stream ended after %d", parent.Name, want, n)
		}
		if parent.Child(c.name) != nil {
			return d.fail("duplicate entry %q in directory %q", c.name, parent.Name)
		}

		if !c.isDir {
			parent.addChild(newFileNode(c.name, c.attrs))
			continue
		}
		dir := newDirNode(c.name)
		if err := d.readChildren(dir, c.childCount, depth+1); err != nil {
			return err
		}
		if len(dir.children) > 0 {
			parent.addChild(dir)
		}
	}
	return nil
}
