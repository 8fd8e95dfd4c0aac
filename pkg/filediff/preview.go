package filediff

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/paulschiretz/pgl-filediff/pkg/hints"
	"github.com/paulschiretz/pgl-filediff/pkg/util"
)

// MaxPreviewBytes bounds the combined size of both files in a preview.
const MaxPreviewBytes = 1 << 20

// ErrNoPreview is returned for files that are too large or not text.
var ErrNoPreview = hints.New("no text preview available")

// WritePreview writes a unified diff of key from the sync version to the
// main version.
func WritePreview(w io.Writer, mainRoot, syncRoot, key string) error {
	syncData, err := readForPreview(util.DenormalizedAbsPath(syncRoot, key), MaxPreviewBytes)
	if err != nil {
		return err
	}
	mainData, err := readForPreview(util.DenormalizedAbsPath(mainRoot, key), MaxPreviewBytes-len(syncData))
	if err != nil {
		return err
	}

	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(syncData)),
		B:        difflib.SplitLines(string(mainData)),
		FromFile: "sync/" + key,
		ToFile:   "main/" + key,
		Context:  3,
	}
	if err := difflib.WriteUnifiedDiff(w, ud); err != nil {
		return fmt.Errorf("failed to render diff for %s: %w", key, err)
	}
	return nil
}

func readForPreview(absPath string, limit int) ([]byte, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	if len(data) > limit {
		return nil, hints.Newf("%s: %w (larger than %s)", absPath, ErrNoPreview, util.ByteCountIEC(MaxPreviewBytes))
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return nil, hints.Newf("%s: %w (binary content)", absPath, ErrNoPreview)
	}
	return data, nil
}
