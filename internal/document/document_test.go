package document

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ArmanBehnam/clark/internal/config"
	"github.com/ArmanBehnam/clark/internal/errors"
)

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.SetGray(1, 1, color.Gray{})
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func validator() *Validator {
	return NewValidator(config.DefaultConfig().Security)
}

func TestValidateImage(t *testing.T) {
	path := writePNG(t, t.TempDir(), "sheet.png", 20, 10)
	info, err := validator().Validate(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Kind != KindImage || info.Format != "png" || info.Pages != 1 || info.Filename != "sheet.png" {
		t.Errorf("info = %+v", info)
	}

	src := NewSource(info, 0, t.TempDir())
	img, err := src.PageImage(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 20 || img.Bounds().Dy() != 10 {
		t.Errorf("bounds = %v", img.Bounds())
	}
	if _, err := src.PageImage(context.Background(), 2); err == nil {
		t.Error("expected out of range page to fail")
	}
	if pages, err := src.TextLayer(context.Background()); err != nil || pages != nil {
		t.Errorf("image text layer = %v, %v", pages, err)
	}
}

func TestValidateRejects(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}
	big := writePNG(t, dir, "big.png", 64, 64)

	tests := []struct {
		name string
		path string
		v    *Validator
		want string
	}{
		{"missing", filepath.Join(dir, "nope.pdf"), validator(), "file not found"},
		{"directory", dir, validator(), "not a regular file"},
		{"extension", write("notes.docx", "PK"), validator(), "not allowed"},
		{"empty", write("empty.pdf", ""), validator(), "empty"},
		{"signature", write("fake.png", "hello world"), validator(), "signature"},
		{"pdf mismatch", write("text.pdf", "\x89PNG\r\n\x1a\nxxxx"), validator(), "not a PDF"},
		{"broken pdf", write("broken.pdf", "%PDF-1.4\nthis is not a pdf body\n"), validator(), "unreadable PDF"},
		{"size", big, &Validator{MaxBytes: 10}, "exceeds limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.v.Validate(tt.path)
			if !errors.IsValidation(err) {
				t.Fatalf("err = %v, want validation error", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestSniff(t *testing.T) {
	tests := map[string]string{
		"%PDF-1.7":           "pdf",
		"\xFF\xD8\xFF\xE0":   "jpeg",
		"II*\x00\x08\x00":    "tiff",
		"MM\x00*":            "tiff",
		"BM\x00\x00":         "bmp",
		"GIF89a":             "",
		"\x89PNG\r\n\x1a\n0": "png",
	}
	for in, want := range tests {
		if got := Sniff([]byte(in)); got != want {
			t.Errorf("Sniff(%q) = %q, want %q", in, got, want)
		}
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

const bboxSample = `<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Transitional//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-transitional.dtd">
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title></title></head>
<body>
<doc>
  <page width="600.000000" height="800.000000">
    <word xMin="60.000000" yMin="80.000000" xMax="120.000000" yMax="96.000000">GENERAL</word>
    <word xMin="126.000000" yMin="80.000000" xMax="240.000000" yMax="96.000000">STRUCTURAL</word>
    <word xMin="246.000000" yMin="80.000000" xMax="300.000000" yMax="96.000000">NOTES</word>
    <word xMin="60.000000" yMin="120.000000" xMax="90.000000" yMax="136.000000">A36</word>
    <word xMin="96.000000" yMin="120.000000" xMax="140.000000" yMax="136.000000">Steel &amp; bolts</word>
  </page>
  <page width="600.000000" height="800.000000">
  </page>
</doc>
</body>
</html>`

func TestParseBBoxHTML(t *testing.T) {
	pages, err := ParseBBoxHTML(strings.NewReader(bboxSample))
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 || pages[0].Number != 1 || pages[1].Number != 2 {
		t.Fatalf("pages = %+v", pages)
	}
	p := pages[0]
	if len(p.Words) != 5 {
		t.Fatalf("words = %+v", p.Words)
	}
	if got := p.Words[0].BBox; !near(got.X, 0.1) || !near(got.Y, 0.1) || !near(got.Width, 0.1) || !near(got.Height, 0.02) {
		t.Errorf("first word bbox = %+v", got)
	}
	if text := p.Text(); text != "GENERAL STRUCTURAL NOTES\nA36 Steel & bolts" {
		t.Errorf("text = %q", text)
	}

	els := p.Elements()
	if len(els) != 2 || els[0].Text != "GENERAL STRUCTURAL NOTES" || els[0].Confidence != 1 {
		t.Fatalf("elements = %+v", els)
	}
	if els[0].Metadata["engine"] != TextLayerEngine || !els[0].BBox.InBounds() {
		t.Errorf("element = %+v", els[0])
	}
	if p.Sufficient() || pages[1].Sufficient() {
		t.Error("short pages must not count as sufficient")
	}
}
