/**
 * Spatial Analyzer - proximity clustering, coverage and keyword filtering
 *
 * Clustering is union-find over element pairs, so the same element set in any
 * input order yields the same regions.
 */

package spatial

import (
	"sort"
	"strings"

	"github.com/ArmanBehnam/clark/internal/config"
	"github.com/ArmanBehnam/clark/internal/model"
)

// Config holds the proximity thresholds in normalized page units.
type Config struct {
	GapX float64
	GapY float64
}

// ConfigFrom reads the spatial configuration section.
func ConfigFrom(cfg config.SpatialConfig) Config {
	return Config{GapX: cfg.GapX, GapY: cfg.GapY}
}

// Region is a cluster of nearby elements on one page.
type Region struct {
	PageNumber int                      `json:"page_number"`
	BBox       model.BoundingBox        `json:"bbox"`
	Text       string                   `json:"text"`
	Confidence float64                  `json:"confidence"`
	Elements   []model.ExtractedElement `json:"-"`
}

// Analysis is the spatial summary of a document.
type Analysis struct {
	Regions      []Region        `json:"regions"`
	Coverage     float64         `json:"coverage"`
	PageCoverage map[int]float64 `json:"page_coverage"`
}

// RegionsOn returns the regions of one page.
func (a Analysis) RegionsOn(page int) []Region {
	var out []Region
	for _, r := range a.Regions {
		if r.PageNumber == page {
			out = append(out, r)
		}
	}
	return out
}

// Analyze clusters elements per page and computes coverage. Pages without elements
// count with zero coverage toward the document mean.
func Analyze(elements []model.ExtractedElement, pages int, cfg Config) Analysis {
	byPage := map[int][]model.ExtractedElement{}
	for _, el := range elements {
		if el.BBox.IsEmpty() {
			continue
		}
		byPage[el.PageNumber] = append(byPage[el.PageNumber], el)
	}

	a := Analysis{PageCoverage: map[int]float64{}}
	for page := 1; page <= pages; page++ {
		a.PageCoverage[page] = 0
	}
	pageNums := make([]int, 0, len(byPage))
	for p := range byPage {
		pageNums = append(pageNums, p)
	}
	sort.Ints(pageNums)

	for _, page := range pageNums {
		els := byPage[page]
		sortReadingOrder(els)
		a.Regions = append(a.Regions, cluster(els, page, cfg)...)

		boxes := make([]model.BoundingBox, len(els))
		for i, el := range els {
			boxes[i] = el.BBox.Clamp()
		}
		a.PageCoverage[page] = model.Round(UnionArea(boxes), 4)
	}

	n := max(pages, len(a.PageCoverage))
	if n > 0 {
		var sum float64
		for _, c := range a.PageCoverage {
			sum += c
		}
		a.Coverage = model.Round(sum/float64(n), 4)
	}
	return a
}

// cluster groups elements of one page already in reading order.
func cluster(els []model.ExtractedElement, page int, cfg Config) []Region {
	uf := newUnionFind(len(els))
	for i := range els {
		for j := i + 1; j < len(els); j++ {
			dx, dy := els[i].BBox.Gap(els[j].BBox)
			if dx <= cfg.GapX && dy <= cfg.GapY {
				uf.union(i, j)
			}
		}
	}

	groups := map[int][]int{}
	var roots []int
	for i := range els {
		r := uf.find(i)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], i)
	}

	regions := make([]Region, 0, len(roots))
	for _, r := range roots {
		idx := groups[r]
		reg := Region{PageNumber: page}
		var confSum float64
		for k, i := range idx {
			el := els[i]
			if k == 0 {
				reg.BBox = el.BBox
			} else {
				reg.BBox = reg.BBox.Union(el.BBox)
			}
			confSum += el.Confidence
			reg.Elements = append(reg.Elements, el)
		}
		reg.Text = joinLines(reg.Elements)
		reg.Confidence = model.Round(confSum/float64(len(idx)), 3)
		regions = append(regions, reg)
	}

	sort.SliceStable(regions, func(i, j int) bool {
		if regions[i].BBox.Y != regions[j].BBox.Y {
			return regions[i].BBox.Y < regions[j].BBox.Y
		}
		return regions[i].BBox.X < regions[j].BBox.X
	})
	return regions
}

// sortReadingOrder sorts top to bottom, then left to right, then by text so equal
// boxes have a stable order.
func sortReadingOrder(els []model.ExtractedElement) {
	sort.SliceStable(els, func(i, j int) bool {
		a, b := els[i].BBox, els[j].BBox
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return els[i].Text < els[j].Text
	})
}

// joinLines concatenates elements in reading order; elements whose vertical
// centers are within half a line height share a line.
func joinLines(els []model.ExtractedElement) string {
	var b strings.Builder
	prev := -1
	for i, el := range els {
		text := strings.TrimSpace(el.Text)
		if text == "" {
			continue
		}
		if prev >= 0 {
			_, cy := el.BBox.Center()
			_, py := els[prev].BBox.Center()
			h := min(el.BBox.Height, els[prev].BBox.Height)
			if abs(cy-py) <= h/2 {
				b.WriteByte(' ')
			} else {
				b.WriteByte('\n')
			}
		}
		b.WriteString(text)
		prev = i
	}
	return b.String()
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

// union attaches the larger root to the smaller so roots are order independent.
func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		u.parent[rb] = ra
	} else {
		u.parent[ra] = rb
	}
}
