package tables

import (
	"github.com/ArmanBehnam/clark/internal/model"
	"github.com/ArmanBehnam/clark/internal/vision"
)

// LineStrategy finds ruled grids.
type LineStrategy struct{}

// Method implements Strategy.
func (LineStrategy) Method() model.DetectionMethod { return model.DetectLine }

// Detect keeps long horizontal and vertical ink runs, joins them into grid regions
// and reads row and column lines from each region's projections.
func (LineStrategy) Detect(p *Page) []model.SpatialTable {
	horiz := vision.HorizontalRuns(p.Ink, max(20, p.W/25))
	vert := vision.VerticalRuns(p.Ink, max(15, p.H/40))
	grid := vision.Dilate(vision.Or(horiz, vert), 2, 2)

	var out []model.SpatialTable
	for _, comp := range vision.Components(grid, 60) {
		r := comp.Bounds
		if r.Dx() < 40 || r.Dy() < 20 {
			continue
		}
		ys := collapse(offset(vision.Peaks(vision.Projection(horiz, r, true), r.Dx()/2), r.Min.Y), 5)
		xs := collapse(offset(vision.Peaks(vision.Projection(vert, r, false), r.Dy()/2), r.Min.X), 5)
		// a closed grid has its outer border among the lines
		if len(ys) < minRows+1 || len(xs) < minCols+1 {
			continue
		}
		border := vision.BorderCoverage(grid, r, 4)
		conf := 0.4 + 0.4*border + 0.15*regularity(xs, ys)
		if t, ok := buildGrid(xs, ys, p, model.DetectLine, conf); ok {
			out = append(out, t)
		}
	}
	return out
}
