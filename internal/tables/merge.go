package tables

import (
	"sort"

	"github.com/ArmanBehnam/clark/internal/model"
)

// agreementBonus is added per additional distinct strategy in a merged group.
const agreementBonus = 0.1

var methodRank = map[model.DetectionMethod]int{
	model.DetectLine:    0,
	model.DetectContour: 1,
	model.DetectEdge:    2,
}

// Merge groups candidates on the same page whose IoU with the group seed is at
// least iouThreshold. Seeds are taken in descending confidence; each group keeps
// the seed's geometry and cells. The merged confidence is the seed confidence plus
// agreementBonus per additional distinct strategy, capped at 1. The result is
// ordered by page, then top edge, then left edge.
func Merge(candidates []model.SpatialTable, iouThreshold float64) []model.SpatialTable {
	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ca, cb := candidates[order[a]], candidates[order[b]]
		if ca.Confidence != cb.Confidence {
			return ca.Confidence > cb.Confidence
		}
		if methodRank[ca.DetectionMethod] != methodRank[cb.DetectionMethod] {
			return methodRank[ca.DetectionMethod] < methodRank[cb.DetectionMethod]
		}
		return less(ca, cb)
	})

	used := make([]bool, len(candidates))
	var out []model.SpatialTable
	for _, i := range order {
		if used[i] {
			continue
		}
		used[i] = true
		seed := candidates[i]
		methods := map[model.DetectionMethod]bool{seed.DetectionMethod: true}
		for _, j := range order {
			if used[j] {
				continue
			}
			c := candidates[j]
			if c.PageNumber != seed.PageNumber || seed.BBox.IoU(c.BBox) < iouThreshold {
				continue
			}
			used[j] = true
			for _, m := range c.Strategies {
				methods[m] = true
			}
			methods[c.DetectionMethod] = true
		}
		for _, m := range seed.Strategies {
			methods[m] = true
		}
		out = append(out, combine(seed, methods))
	}

	sort.SliceStable(out, func(a, b int) bool { return less(out[a], out[b]) })
	return out
}

func combine(seed model.SpatialTable, methods map[model.DetectionMethod]bool) model.SpatialTable {
	merged := seed
	merged.Rows = make([][]model.TableCell, len(seed.Rows))
	for r, row := range seed.Rows {
		merged.Rows[r] = append([]model.TableCell(nil), row...)
	}
	merged.Strategies = make([]model.DetectionMethod, 0, len(methods))
	for m := range methods {
		merged.Strategies = append(merged.Strategies, m)
	}
	sort.Slice(merged.Strategies, func(a, b int) bool {
		return methodRank[merged.Strategies[a]] < methodRank[merged.Strategies[b]]
	})
	extra := float64(len(merged.Strategies) - 1)
	merged.Confidence = model.Round(min(1, seed.Confidence+agreementBonus*extra), 3)
	return merged
}

func less(a, b model.SpatialTable) bool {
	if a.PageNumber != b.PageNumber {
		return a.PageNumber < b.PageNumber
	}
	if a.BBox.Y != b.BBox.Y {
		return a.BBox.Y < b.BBox.Y
	}
	return a.BBox.X < b.BBox.X
}
