package spatial

import (
	"sort"

	"github.com/ArmanBehnam/clark/internal/model"
)

// UnionArea returns the exact area covered by the union of boxes. The x axis is
// split into slabs at every box edge and the covered y length is measured per slab.
func UnionArea(boxes []model.BoundingBox) float64 {
	xs := make([]float64, 0, 2*len(boxes))
	for _, b := range boxes {
		if b.IsEmpty() {
			continue
		}
		xs = append(xs, b.X, b.Right())
	}
	if len(xs) == 0 {
		return 0
	}
	sort.Float64s(xs)

	type span struct{ lo, hi float64 }
	var area float64
	spans := make([]span, 0, len(boxes))
	for i := 0; i+1 < len(xs); i++ {
		x0, x1 := xs[i], xs[i+1]
		if x1 <= x0 {
			continue
		}
		spans = spans[:0]
		for _, b := range boxes {
			if b.IsEmpty() || b.X > x0 || b.Right() < x1 {
				continue
			}
			spans = append(spans, span{b.Y, b.Bottom()})
		}
		if len(spans) == 0 {
			continue
		}
		sort.Slice(spans, func(a, b int) bool { return spans[a].lo < spans[b].lo })

		var covered float64
		cur := spans[0]
		for _, s := range spans[1:] {
			if s.lo <= cur.hi {
				cur.hi = max(cur.hi, s.hi)
				continue
			}
			covered += cur.hi - cur.lo
			cur = s
		}
		covered += cur.hi - cur.lo
		area += covered * (x1 - x0)
	}
	return area
}
