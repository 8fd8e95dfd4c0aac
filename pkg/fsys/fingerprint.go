package fsys

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// defaultHashBufferSize is the read buffer size used by NewXXHash(0).
const defaultHashBufferSize = 256 * 1024

// XXHash fingerprints files with 64-bit xxHash, stored little-endian.
type XXHash struct {
	bufPool *sync.Pool
}

// NewXXHash returns a fingerprinter that reads files through pooled buffers
// of bufferSize bytes. A non-positive size selects the default.
func NewXXHash(bufferSize int) *XXHash {
	if bufferSize <= 0 {
		bufferSize = defaultHashBufferSize
	}
	return &XXHash{
		bufPool: &sync.Pool{
			New: func() any {
				b := make([]byte, bufferSize)
				return &b
			},
		},
	}
}

// Fingerprint implements Fingerprinter.
func (x *XXHash) Fingerprint(absPath string) (Hash, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return Hash{}, fmt.Errorf("failed to open %s for hashing: %w", absPath, err)
	}
	defer f.Close()

	bufPtr := x.bufPool.Get().(*[]byte)
	defer x.bufPool.Put(bufPtr)
	buf := (*bufPtr)[:cap(*bufPtr)]

	d := xxhash.New()
	if _, err := io.CopyBuffer(d, f, buf); err != nil {
		return Hash{}, fmt.Errorf("failed to hash %s: %w", absPath, err)
	}
	return SumToHash(d.Sum64()), nil
}

// SumToHash stores a 64-bit digest as a little-endian Hash.
func SumToHash(sum uint64) Hash {
	var h Hash
	binary.LittleEndian.PutUint64(h[:], sum)
	return h
}

var _ Fingerprinter = (*XXHash)(nil)
