package tables

import (
	"image"
	"math"
	"sort"

	"github.com/ArmanBehnam/clark/internal/model"
)

const (
	minRows = 2
	minCols = 2
)

// buildGrid turns sorted line positions into a table of empty cells.
func buildGrid(xs, ys []int, p *Page, method model.DetectionMethod, conf float64) (model.SpatialTable, bool) {
	if len(xs)-1 < minCols || len(ys)-1 < minRows {
		return model.SpatialTable{}, false
	}
	t := model.SpatialTable{
		PageNumber:      p.Number,
		BBox:            model.BoxFromPixels(image.Rect(xs[0], ys[0], xs[len(xs)-1], ys[len(ys)-1]), p.W, p.H),
		Confidence:      model.Round(model.ClampConfidence(conf), 3),
		DetectionMethod: method,
		Strategies:      []model.DetectionMethod{method},
	}
	for r := 0; r+1 < len(ys); r++ {
		row := make([]model.TableCell, 0, len(xs)-1)
		for c := 0; c+1 < len(xs); c++ {
			row = append(row, model.TableCell{
				Row:  r,
				Col:  c,
				BBox: model.BoxFromPixels(image.Rect(xs[c], ys[r], xs[c+1], ys[r+1]), p.W, p.H),
			})
		}
		t.Rows = append(t.Rows, row)
	}
	return t, true
}

// collapse merges positions closer than minGap into their mean. Input is sorted.
func collapse(pos []int, minGap int) []int {
	if len(pos) == 0 {
		return nil
	}
	out := []int{pos[0]}
	n := 1
	for _, v := range pos[1:] {
		last := out[len(out)-1]
		if v-last < minGap {
			// running mean of the current cluster
			out[len(out)-1] = (last*n + v) / (n + 1)
			n++
			continue
		}
		out = append(out, v)
		n = 1
	}
	return out
}

// offset shifts projection positions into page coordinates.
func offset(pos []int, by int) []int {
	out := make([]int, len(pos))
	for i, v := range pos {
		out[i] = v + by
	}
	return out
}

// withBounds ensures the outer edges are present.
func withBounds(pos []int, lo, hi, minGap int) []int {
	all := append([]int{lo}, pos...)
	all = append(all, hi)
	sort.Ints(all)
	out := collapse(all, minGap)
	out[0], out[len(out)-1] = lo, hi
	return out
}

// regularity is 1 minus the mean coefficient of variation of row heights and
// column widths, floored at zero.
func regularity(xs, ys []int) float64 {
	return (spacingScore(xs) + spacingScore(ys)) / 2
}

func spacingScore(pos []int) float64 {
	if len(pos) < 3 {
		return 1
	}
	gaps := make([]float64, len(pos)-1)
	var mean float64
	for i := range gaps {
		gaps[i] = float64(pos[i+1] - pos[i])
		mean += gaps[i]
	}
	mean /= float64(len(gaps))
	if mean == 0 {
		return 0
	}
	var variance float64
	for _, g := range gaps {
		variance += (g - mean) * (g - mean)
	}
	cv := math.Sqrt(variance/float64(len(gaps))) / mean
	return math.Max(0, 1-cv)
}
