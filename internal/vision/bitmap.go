/**
 * Vision - binary image primitives shared by the fallback text detector and the
 * table strategies
 *
 * All functions work on images whose bounds start at the origin; Gray normalizes
 * any input to that form.
 */

package vision

import (
	"image"
	"image/draw"

	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/segment"
)

// Bitmap is a binary image. True marks foreground (ink or edge) pixels.
type Bitmap struct {
	W, H int
	Bits []bool
}

// NewBitmap allocates an empty bitmap.
func NewBitmap(w, h int) *Bitmap {
	return &Bitmap{W: w, H: h, Bits: make([]bool, w*h)}
}

// At reports whether (x, y) is set. Out of range reads are false.
func (b *Bitmap) At(x, y int) bool {
	if x < 0 || y < 0 || x >= b.W || y >= b.H {
		return false
	}
	return b.Bits[y*b.W+x]
}

// Set marks (x, y).
func (b *Bitmap) Set(x, y int, v bool) {
	if x < 0 || y < 0 || x >= b.W || y >= b.H {
		return
	}
	b.Bits[y*b.W+x] = v
}

// Bounds returns the bitmap rectangle.
func (b *Bitmap) Bounds() image.Rectangle { return image.Rect(0, 0, b.W, b.H) }

// Count returns the number of set pixels inside r.
func (b *Bitmap) Count(r image.Rectangle) int {
	r = r.Intersect(b.Bounds())
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := b.Bits[y*b.W : (y+1)*b.W]
		for x := r.Min.X; x < r.Max.X; x++ {
			if row[x] {
				n++
			}
		}
	}
	return n
}

// Or returns the union of two bitmaps of equal size.
func Or(a, b *Bitmap) *Bitmap {
	out := NewBitmap(a.W, a.H)
	for i := range out.Bits {
		out.Bits[i] = a.Bits[i] || b.Bits[i]
	}
	return out
}

// Gray converts img to 8-bit luminance anchored at the origin.
func Gray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// SobelEdges marks pixels whose Sobel gradient magnitude reaches level. The bild
// kernels clamp negative responses, so the inverted image supplies the falling
// edges.
func SobelEdges(img image.Image, level uint8) *Bitmap {
	gray := Gray(img)
	rising := segment.Threshold(effect.Sobel(gray), level)
	falling := segment.Threshold(effect.Sobel(effect.Invert(gray)), level)
	out := NewBitmap(gray.Bounds().Dx(), gray.Bounds().Dy())
	for y := 0; y < out.H; y++ {
		for x := 0; x < out.W; x++ {
			out.Bits[y*out.W+x] = rising.GrayAt(x, y).Y > 0 || falling.GrayAt(x, y).Y > 0
		}
	}
	return out
}

// Binarize marks dark pixels using a local mean threshold: a pixel is ink when it is
// at least c gray levels darker than the mean of the surrounding window.
func Binarize(gray *image.Gray, window int, c float64) *Bitmap {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	out := NewBitmap(w, h)
	if w == 0 || h == 0 {
		return out
	}
	half := max(1, window/2)

	// summed-area table with a zero border row and column
	sat := make([]int64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var rowSum int64
		for x := 0; x < w; x++ {
			rowSum += int64(gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			sat[(y+1)*(w+1)+x+1] = sat[y*(w+1)+x+1] + rowSum
		}
	}

	for y := 0; y < h; y++ {
		y0, y1 := max(0, y-half), min(h, y+half+1)
		for x := 0; x < w; x++ {
			x0, x1 := max(0, x-half), min(w, x+half+1)
			sum := sat[y1*(w+1)+x1] - sat[y0*(w+1)+x1] - sat[y1*(w+1)+x0] + sat[y0*(w+1)+x0]
			mean := float64(sum) / float64((x1-x0)*(y1-y0))
			if float64(gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y) < mean-c {
				out.Bits[y*w+x] = true
			}
		}
	}
	return out
}

// Dilate grows set pixels by rx horizontally and ry vertically.
func Dilate(src *Bitmap, rx, ry int) *Bitmap {
	tmp := NewBitmap(src.W, src.H)
	for y := 0; y < src.H; y++ {
		for x := 0; x < src.W; x++ {
			if !src.Bits[y*src.W+x] {
				continue
			}
			for dx := -rx; dx <= rx; dx++ {
				tmp.Set(x+dx, y, true)
			}
		}
	}
	out := NewBitmap(src.W, src.H)
	for y := 0; y < src.H; y++ {
		for x := 0; x < src.W; x++ {
			if !tmp.Bits[y*src.W+x] {
				continue
			}
			for dy := -ry; dy <= ry; dy++ {
				out.Set(x, y+dy, true)
			}
		}
	}
	return out
}

// HorizontalRuns keeps only horizontal runs of at least minLen pixels.
func HorizontalRuns(src *Bitmap, minLen int) *Bitmap {
	out := NewBitmap(src.W, src.H)
	for y := 0; y < src.H; y++ {
		start := -1
		for x := 0; x <= src.W; x++ {
			on := x < src.W && src.Bits[y*src.W+x]
			if on && start < 0 {
				start = x
			}
			if !on && start >= 0 {
				if x-start >= minLen {
					for i := start; i < x; i++ {
						out.Bits[y*src.W+i] = true
					}
				}
				start = -1
			}
		}
	}
	return out
}

// VerticalRuns keeps only vertical runs of at least minLen pixels.
func VerticalRuns(src *Bitmap, minLen int) *Bitmap {
	out := NewBitmap(src.W, src.H)
	for x := 0; x < src.W; x++ {
		start := -1
		for y := 0; y <= src.H; y++ {
			on := y < src.H && src.Bits[y*src.W+x]
			if on && start < 0 {
				start = y
			}
			if !on && start >= 0 {
				if y-start >= minLen {
					for i := start; i < y; i++ {
						out.Bits[i*src.W+x] = true
					}
				}
				start = -1
			}
		}
	}
	return out
}
