package tables

import (
	"image"
	"sort"

	"github.com/ArmanBehnam/clark/internal/model"
	"github.com/ArmanBehnam/clark/internal/vision"
)

// ContourStrategy finds borderless tables from word blobs.
type ContourStrategy struct{}

// Method implements Strategy.
func (ContourStrategy) Method() model.DetectionMethod { return model.DetectContour }

type blobRow struct {
	top, bottom int
	blobs       []image.Rectangle
}

// Detect groups word blobs into rows by vertical overlap, joins blobs separated by
// less than a row height into phrases, then reads columns from the horizontal
// overlap of phrases across consecutive rows. Running text joins into one phrase
// per line and never yields the two columns a table needs.
func (ContourStrategy) Detect(p *Page) []model.SpatialTable {
	rows := blobRows(wordBlobs(p))
	for i := range rows {
		rows[i].blobs = joinPhrases(rows[i].blobs, rows[i].bottom-rows[i].top)
	}

	var out []model.SpatialTable
	for _, run := range tableRuns(rows) {
		if t, ok := gridFromRun(run, p); ok {
			out = append(out, t)
		}
	}
	return out
}

// wordBlobs returns dilated text components with ruling lines removed.
func wordBlobs(p *Page) []image.Rectangle {
	lines := vision.Or(
		vision.HorizontalRuns(p.Ink, max(20, p.W/25)),
		vision.VerticalRuns(p.Ink, max(15, p.H/40)),
	)
	text := vision.NewBitmap(p.W, p.H)
	for i, on := range p.Ink.Bits {
		text.Bits[i] = on && !lines.Bits[i]
	}

	var blobs []image.Rectangle
	for _, c := range vision.Components(vision.Dilate(text, 3, 1), 6) {
		if c.Bounds.Dy() < 4 || c.Bounds.Dy() > p.H/8 {
			continue
		}
		blobs = append(blobs, c.Bounds)
	}
	return blobs
}

func blobRows(blobs []image.Rectangle) []blobRow {
	sort.SliceStable(blobs, func(i, j int) bool {
		ci := blobs[i].Min.Y + blobs[i].Dy()/2
		cj := blobs[j].Min.Y + blobs[j].Dy()/2
		if ci != cj {
			return ci < cj
		}
		return blobs[i].Min.X < blobs[j].Min.X
	})

	var rows []blobRow
	for _, b := range blobs {
		if n := len(rows); n > 0 {
			last := &rows[n-1]
			overlap := min(last.bottom, b.Max.Y) - max(last.top, b.Min.Y)
			if overlap*2 >= min(last.bottom-last.top, b.Dy()) {
				last.top = min(last.top, b.Min.Y)
				last.bottom = max(last.bottom, b.Max.Y)
				last.blobs = append(last.blobs, b)
				continue
			}
		}
		rows = append(rows, blobRow{top: b.Min.Y, bottom: b.Max.Y, blobs: []image.Rectangle{b}})
	}
	for i := range rows {
		sort.Slice(rows[i].blobs, func(a, b int) bool { return rows[i].blobs[a].Min.X < rows[i].blobs[b].Min.X })
	}
	return rows
}

// joinPhrases merges x-sorted blobs whose horizontal gap is below gap.
func joinPhrases(blobs []image.Rectangle, gap int) []image.Rectangle {
	if len(blobs) == 0 {
		return blobs
	}
	out := []image.Rectangle{blobs[0]}
	for _, b := range blobs[1:] {
		last := &out[len(out)-1]
		if b.Min.X-last.Max.X < gap {
			*last = last.Union(b)
			continue
		}
		out = append(out, b)
	}
	return out
}

// tableRuns returns maximal sequences of closely spaced rows that each hold at
// least two blobs.
func tableRuns(rows []blobRow) [][]blobRow {
	var runs [][]blobRow
	var cur []blobRow
	flush := func() {
		if len(cur) >= minRows {
			runs = append(runs, cur)
		}
		cur = nil
	}
	for _, r := range rows {
		if len(r.blobs) < minCols {
			flush()
			continue
		}
		if n := len(cur); n > 0 {
			prev := cur[n-1]
			h := max(prev.bottom-prev.top, r.bottom-r.top)
			if r.top-prev.bottom > h*5/2 {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return runs
}

type span struct{ lo, hi int }

func gridFromRun(run []blobRow, p *Page) (model.SpatialTable, bool) {
	var spans []span
	for _, r := range run {
		for _, b := range r.blobs {
			spans = append(spans, span{b.Min.X, b.Max.X})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].lo < spans[j].lo })
	cols := []span{spans[0]}
	for _, s := range spans[1:] {
		last := &cols[len(cols)-1]
		if s.lo <= last.hi {
			last.hi = max(last.hi, s.hi)
			continue
		}
		cols = append(cols, s)
	}
	if len(cols) < minCols {
		return model.SpatialTable{}, false
	}

	// share of (row, column) slots holding a blob
	filled := 0
	for _, r := range run {
		for _, c := range cols {
			for _, b := range r.blobs {
				if b.Min.X < c.hi && b.Max.X > c.lo {
					filled++
					break
				}
			}
		}
	}
	occupancy := float64(filled) / float64(len(run)*len(cols))
	if occupancy < 0.6 {
		return model.SpatialTable{}, false
	}

	xs := []int{max(0, cols[0].lo-2)}
	for i := 1; i < len(cols); i++ {
		xs = append(xs, (cols[i-1].hi+cols[i].lo)/2)
	}
	xs = append(xs, min(p.W, cols[len(cols)-1].hi+2))

	ys := []int{max(0, run[0].top-2)}
	for i := 1; i < len(run); i++ {
		ys = append(ys, (run[i-1].bottom+run[i].top)/2)
	}
	ys = append(ys, min(p.H, run[len(run)-1].bottom+2))

	conf := 0.3 + 0.4*occupancy + 0.2*spacingScore(ys)
	return buildGrid(xs, ys, p, model.DetectContour, conf)
}
