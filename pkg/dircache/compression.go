package dircache

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/paulschiretz/pgl-filediff/pkg/util"
)

// Compression selects the codec applied to the chunk body. It is stored in
// the second header byte.
type Compression byte

const (
	CompressionNone Compression = 0x00
	CompressionGzip Compression = 0x01
	CompressionZstd Compression = 0x02
)

// maxDecodedBody bounds the size of a decompressed body.
const maxDecodedBody = 1 << 30

var compressionToString = map[Compression]string{
	CompressionNone: "none",
	CompressionGzip: "gzip",
	CompressionZstd: "zstd",
}

var stringToCompression = util.InvertMap(compressionToString)

func (c Compression) String() string {
	if s, ok := compressionToString[c]; ok {
		return s
	}
	return fmt.Sprintf("unknown(0x%02x)", byte(c))
}

// ParseCompression parses "none", "gzip" or "zstd".
func ParseCompression(s string) (Compression, error) {
	if c, ok := stringToCompression[strings.ToLower(strings.TrimSpace(s))]; ok {
		return c, nil
	}
	return 0, fmt.Errorf("invalid compression: %q. Must be one of 'none', 'gzip' or 'zstd'", s)
}

func compressBody(c Compression, body []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return body, nil
	case CompressionGzip:
		var buf bytes.Buffer
		w := pgzip.NewWriter(&buf)
		if _, err := w.Write(body); err != nil {
			w.Close()
			return nil, fmt.Errorf("gzip write failed: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("gzip close failed: %w", err)
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd encoder init failed: %w", err)
		}
		defer enc.Close()
		return enc.EncodeAll(body, nil), nil
	default:
		return nil, fmt.Errorf("unsupported compression %s", c)
	}
}

func decompressBody(c Compression, body []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return body, nil
	case CompressionGzip:
		r, err := pgzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		out, err := io.ReadAll(io.LimitReader(r, maxDecodedBody+1))
		if err != nil {
			return nil, err
		}
		if len(out) > maxDecodedBody {
			return nil, fmt.Errorf("decompressed body exceeds %s", util.ByteCountIEC(maxDecodedBody))
		}
		return out, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedBody))
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(body, nil)
	default:
		return nil, fmt.Errorf("unknown compression flag 0x%02x", byte(c))
	}
}
