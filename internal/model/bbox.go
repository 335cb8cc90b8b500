package model

import (
	"image"
	"math"
)

// BoundingBox is a page-relative rectangle in normalized [0,1] coordinates.
// Origin is the top-left corner of the page.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// FullPage covers the whole page.
var FullPage = BoundingBox{X: 0, Y: 0, Width: 1, Height: 1}

// BoxFromPixels converts a pixel rectangle on a page of the given size to a clamped
// normalized box.
func BoxFromPixels(r image.Rectangle, pageWidth, pageHeight int) BoundingBox {
	if pageWidth <= 0 || pageHeight <= 0 {
		return BoundingBox{}
	}
	pw, ph := float64(pageWidth), float64(pageHeight)
	return BoundingBox{
		X:      float64(r.Min.X) / pw,
		Y:      float64(r.Min.Y) / ph,
		Width:  float64(r.Dx()) / pw,
		Height: float64(r.Dy()) / ph,
	}.Clamp()
}

const pixelEps = 1e-6

// ToPixels converts the box back to a pixel rectangle on a page of the given size.
func (b BoundingBox) ToPixels(pageWidth, pageHeight int) image.Rectangle {
	pw, ph := float64(pageWidth), float64(pageHeight)
	return image.Rect(
		int(math.Floor(b.X*pw+pixelEps)),
		int(math.Floor(b.Y*ph+pixelEps)),
		int(math.Ceil(b.Right()*pw-pixelEps)),
		int(math.Ceil(b.Bottom()*ph-pixelEps)),
	).Intersect(image.Rect(0, 0, pageWidth, pageHeight))
}

func (b BoundingBox) Right() float64  { return b.X + b.Width }
func (b BoundingBox) Bottom() float64 { return b.Y + b.Height }

// Area returns width*height, zero for degenerate boxes.
func (b BoundingBox) Area() float64 {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// IsEmpty reports whether the box has no area.
func (b BoundingBox) IsEmpty() bool {
	return b.Area() == 0
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() (float64, float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Contains reports whether the point lies inside the box, edges inclusive.
func (b BoundingBox) Contains(x, y float64) bool {
	return x >= b.X && x <= b.Right() && y >= b.Y && y <= b.Bottom()
}

// Intersect returns the overlapping region, or an empty box.
func (b BoundingBox) Intersect(o BoundingBox) BoundingBox {
	x0 := math.Max(b.X, o.X)
	y0 := math.Max(b.Y, o.Y)
	x1 := math.Min(b.Right(), o.Right())
	y1 := math.Min(b.Bottom(), o.Bottom())
	if x1 <= x0 || y1 <= y0 {
		return BoundingBox{}
	}
	return BoundingBox{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Union returns the smallest box containing both boxes. Empty boxes are ignored.
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	if b.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return b
	}
	x0 := math.Min(b.X, o.X)
	y0 := math.Min(b.Y, o.Y)
	x1 := math.Max(b.Right(), o.Right())
	y1 := math.Max(b.Bottom(), o.Bottom())
	return BoundingBox{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// IoU is the intersection-over-union ratio of two boxes.
func (b BoundingBox) IoU(o BoundingBox) float64 {
	inter := b.Intersect(o).Area()
	if inter == 0 {
		return 0
	}
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Gap returns the horizontal and vertical distance between two boxes; zero on an
// axis where they overlap.
func (b BoundingBox) Gap(o BoundingBox) (dx, dy float64) {
	dx = math.Max(0, math.Max(o.X-b.Right(), b.X-o.Right()))
	dy = math.Max(0, math.Max(o.Y-b.Bottom(), b.Y-o.Bottom()))
	return dx, dy
}

// Clamp restricts the box to the page.
func (b BoundingBox) Clamp() BoundingBox {
	x0 := clamp01(b.X)
	y0 := clamp01(b.Y)
	x1 := clamp01(b.Right())
	y1 := clamp01(b.Bottom())
	if x1 < x0 {
		x1 = x0
	}
	if y1 < y0 {
		y1 = y0
	}
	return BoundingBox{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// InBounds reports whether the box lies within the page.
func (b BoundingBox) InBounds() bool {
	const eps = 1e-9
	return b.X >= -eps && b.Y >= -eps && b.Width >= 0 && b.Height >= 0 &&
		b.Right() <= 1+eps && b.Bottom() <= 1+eps
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ClampConfidence restricts a confidence score to [0,1].
func ClampConfidence(v float64) float64 {
	return clamp01(v)
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
