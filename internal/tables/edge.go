package tables

import (
	"github.com/ArmanBehnam/clark/internal/model"
	"github.com/ArmanBehnam/clark/internal/vision"
)

// EdgeStrategy finds outlined boxes in the Sobel edge map.
type EdgeStrategy struct {
	// Level is the gradient magnitude that counts as an edge; zero means 96.
	Level uint8
}

// Method implements Strategy.
func (EdgeStrategy) Method() model.DetectionMethod { return model.DetectEdge }

// Detect keeps edge contours whose bounding box is well covered along all four
// sides and splits each by internal divider lines.
func (s EdgeStrategy) Detect(p *Page) []model.SpatialTable {
	level := s.Level
	if level == 0 {
		level = 96
	}
	edges := vision.SobelEdges(p.Image, level)

	var out []model.SpatialTable
	for _, comp := range vision.Components(edges, 100) {
		r := comp.Bounds
		if r.Dx() < 60 || r.Dy() < 30 {
			continue
		}
		border := vision.BorderCoverage(edges, r, 4)
		if border < 0.8 {
			continue
		}
		inner := r.Inset(6)
		if inner.Empty() {
			continue
		}
		ys := offset(vision.Peaks(vision.Projection(edges, inner, true), inner.Dx()*3/5), inner.Min.Y)
		xs := offset(vision.Peaks(vision.Projection(edges, inner, false), inner.Dy()*3/5), inner.Min.X)
		ys = withBounds(collapse(ys, 6), r.Min.Y, r.Max.Y, 6)
		xs = withBounds(collapse(xs, 6), r.Min.X, r.Max.X, 6)

		conf := 0.4 + 0.4*border + 0.15*regularity(xs, ys)
		if t, ok := buildGrid(xs, ys, p, model.DetectEdge, conf); ok {
			out = append(out, t)
		}
	}
	return out
}
