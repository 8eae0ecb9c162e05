package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/markdave123-py/docindex/internal/core"
)

var (
	_ core.CommandRunner = ExecRunner{}
	_ PageRenderer       = (*PopplerRenderer)(nil)
)

// ExecRunner runs commands on the host.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// PopplerRenderer rasterises PDFs with pdftoppm into a scratch directory
// that is removed before RenderPages returns.
type PopplerRenderer struct {
	runner core.CommandRunner
	tmpDir string
}

// NewPopplerRenderer uses the system temp dir when tmpDir is empty.
func NewPopplerRenderer(runner core.CommandRunner, tmpDir string) *PopplerRenderer {
	return &PopplerRenderer{runner: runner, tmpDir: tmpDir}
}

// RenderPages returns one grayscale PNG per page, in page order.
func (r *PopplerRenderer) RenderPages(ctx context.Context, pdf []byte, dpi int) ([][]byte, error) {
	dir, err := os.MkdirTemp(r.tmpDir, "docindex-ocr-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(input, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("write scratch pdf: %w", err)
	}

	prefix := filepath.Join(dir, "page")
	out, err := r.runner.Run(ctx, "pdftoppm", "-r", strconv.Itoa(dpi), "-gray", "-png", input, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, bytes.TrimSpace(out))
	}

	// pdftoppm zero-pads page numbers to a common width, so lexical order is page order.
	files, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	pages := make([][]byte, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read rendered page: %w", err)
		}
		norm, err := flattenGray(data)
		if err != nil {
			return nil, fmt.Errorf("normalise %s: %w", filepath.Base(f), err)
		}
		pages = append(pages, norm)
	}
	return pages, nil
}

// flattenGray composites a page onto white and re-encodes it as 8-bit grayscale PNG.
func flattenGray(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	b := src.Bounds()
	dst := image.NewGray(b)
	draw.Draw(dst, b, image.White, image.Point{}, draw.Src)
	draw.Draw(dst, b, src, b.Min, draw.Over)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
