package document

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/disintegration/imaging"
)

// Source yields page text and page images for a validated input.
type Source struct {
	Info    *Info
	DPI     int
	TempDir string

	once sync.Once
	img  image.Image
	err  error
}

// NewSource wraps a validated file.
func NewSource(info *Info, dpi int, tempDir string) *Source {
	if dpi <= 0 {
		dpi = 200
	}
	return &Source{Info: info, DPI: dpi, TempDir: tempDir}
}

// TextLayer returns the embedded text of a PDF. Images have no text layer.
func (s *Source) TextLayer(ctx context.Context) ([]PageText, error) {
	if s.Info.Kind != KindPDF {
		return nil, nil
	}
	return ExtractTextLayer(ctx, s.Info.Path)
}

// PageImage returns page n (1-based) as an image.
func (s *Source) PageImage(ctx context.Context, n int) (image.Image, error) {
	if n < 1 || n > s.Info.Pages {
		return nil, fmt.Errorf("page %d out of range 1-%d", n, s.Info.Pages)
	}
	if s.Info.Kind == KindImage {
		s.once.Do(func() {
			s.img, s.err = imaging.Open(s.Info.Path, imaging.AutoOrientation(true))
		})
		return s.img, s.err
	}
	return RenderPage(ctx, s.Info.Path, n, s.DPI, s.TempDir)
}

// RenderPage rasterizes one PDF page with pdftoppm.
func RenderPage(ctx context.Context, pdfPath string, page, dpi int, tempDir string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp(tempDir, "clark-page-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	pageStr := strconv.Itoa(page)
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", strconv.Itoa(dpi),
		"-singlefile",
		pdfPath,
		prefix,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	img, err := imaging.Open(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered page: %w", err)
	}
	return img, nil
}

// CheckTools reports which poppler tools are missing from PATH.
func CheckTools() []string {
	var missing []string
	for _, tool := range []string{"pdftotext", "pdftoppm"} {
		if _, err := exec.LookPath(tool); err != nil {
			missing = append(missing, tool)
		}
	}
	return missing
}
