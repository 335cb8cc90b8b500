/**
 * Document - input validation, PDF text layer and page rasterization
 *
 * PDFs are parsed with pdfcpu for validation and page count. Text and page images
 * come from poppler (pdftotext, pdftoppm), which must be on PATH for PDF input.
 */

package document

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/ArmanBehnam/clark/internal/config"
	"github.com/ArmanBehnam/clark/internal/errors"
)

// Kind is the detected input kind.
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
)

// Info describes a validated input file.
type Info struct {
	Path      string
	Filename  string
	Ext       string
	SizeBytes int64
	Kind      Kind
	Format    string // pdf, png, jpeg, tiff, bmp
	Pages     int
}

// Validator checks files before the pipeline starts.
type Validator struct {
	MaxBytes int64
	Allowed  []string
}

// NewValidator creates a validator from the security section.
func NewValidator(sec config.SecurityConfig) *Validator {
	return &Validator{
		MaxBytes: int64(sec.MaxFileSizeMB) * 1024 * 1024,
		Allowed:  sec.AllowedFileExtensions,
	}
}

func init() {
	// keep pdfcpu from writing a config directory
	api.DisableConfigDir()
}

var signatures = []struct {
	prefix []byte
	format string
}{
	{[]byte("%PDF-"), "pdf"},
	{[]byte("\x89PNG\r\n\x1a\n"), "png"},
	{[]byte{0xFF, 0xD8, 0xFF}, "jpeg"},
	{[]byte("II*\x00"), "tiff"},
	{[]byte("MM\x00*"), "tiff"},
	{[]byte("BM"), "bmp"},
}

// Sniff returns the format named by the file signature, or "".
func Sniff(head []byte) string {
	for _, s := range signatures {
		if bytes.HasPrefix(head, s.prefix) {
			return s.format
		}
	}
	return ""
}

// Validate checks existence, extension, size, signature and parseability. Every
// failure is a *errors.ValidationError.
func (v *Validator) Validate(path string) (*Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, errors.NewValidationError(path, "file not found", err)
	}
	if !st.Mode().IsRegular() {
		return nil, errors.NewValidationError(path, "not a regular file", nil)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !v.allowed(ext) {
		return nil, errors.NewValidationError(path, fmt.Sprintf("extension %q not allowed", ext), nil)
	}
	if st.Size() == 0 {
		return nil, errors.NewValidationError(path, "file is empty", nil)
	}
	if v.MaxBytes > 0 && st.Size() > v.MaxBytes {
		return nil, errors.NewValidationError(path,
			fmt.Sprintf("file size %d exceeds limit %d", st.Size(), v.MaxBytes), nil)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewValidationError(path, "cannot open file", err)
	}
	defer f.Close()

	head := make([]byte, 8)
	n, _ := io.ReadFull(f, head)
	format := Sniff(head[:n])
	if format == "" {
		return nil, errors.NewValidationError(path, "unrecognized file signature", nil)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, errors.NewValidationError(path, "cannot read file", err)
	}

	info := &Info{
		Path:      path,
		Filename:  filepath.Base(path),
		Ext:       ext,
		SizeBytes: st.Size(),
		Format:    format,
	}
	if format == "pdf" {
		if ext != ".pdf" {
			return nil, errors.NewValidationError(path, "PDF content with image extension", nil)
		}
		conf := pdfmodel.NewDefaultConfiguration()
		conf.ValidationMode = pdfmodel.ValidationRelaxed
		pages, err := api.PageCount(f, conf)
		if err != nil {
			return nil, errors.NewValidationError(path, "unreadable PDF", err)
		}
		if pages < 1 {
			return nil, errors.NewValidationError(path, "PDF has no pages", nil)
		}
		info.Kind, info.Pages = KindPDF, pages
		return info, nil
	}

	if ext == ".pdf" {
		return nil, errors.NewValidationError(path, "file is not a PDF", nil)
	}
	if _, _, err := image.DecodeConfig(f); err != nil {
		return nil, errors.NewValidationError(path, "unreadable image", err)
	}
	info.Kind, info.Pages = KindImage, 1
	return info, nil
}

func (v *Validator) allowed(ext string) bool {
	if len(v.Allowed) == 0 {
		return true
	}
	for _, a := range v.Allowed {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}
