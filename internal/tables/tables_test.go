package tables

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"reflect"
	"testing"

	"github.com/ArmanBehnam/clark/internal/engine"
	"github.com/ArmanBehnam/clark/internal/model"
	"github.com/ArmanBehnam/clark/internal/spatial"
)

func whitePage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return img
}

func ink(img draw.Image, r image.Rectangle) {
	draw.Draw(img, r, image.NewUniform(color.Black), image.Point{}, draw.Src)
}

// ruledGrid draws 2px lines at the given positions.
func ruledGrid(xs, ys []int) *image.RGBA {
	img := whitePage(400, 300)
	for _, y := range ys {
		ink(img, image.Rect(xs[0], y, xs[len(xs)-1]+2, y+2))
	}
	for _, x := range xs {
		ink(img, image.Rect(x, ys[0], x+2, ys[len(ys)-1]+2))
	}
	return img
}

// word draws three 4x8 glyph blocks starting at (x, y).
func word(img draw.Image, x, y int) {
	for i := 0; i < 3; i++ {
		ink(img, image.Rect(x+i*6, y, x+i*6+4, y+8))
	}
}

func table(page int, method model.DetectionMethod, conf float64, box model.BoundingBox) model.SpatialTable {
	return model.SpatialTable{
		PageNumber:      page,
		BBox:            box,
		Confidence:      conf,
		DetectionMethod: method,
		Strategies:      []model.DetectionMethod{method},
		Rows: [][]model.TableCell{
			{{Row: 0, Col: 0, BBox: box}, {Row: 0, Col: 1, BBox: box}},
			{{Row: 1, Col: 0, BBox: box}, {Row: 1, Col: 1, BBox: box}},
		},
	}
}

func TestMergeAtExactIoUThreshold(t *testing.T) {
	a := table(1, model.DetectLine, 0.7, model.BoundingBox{Width: 0.5, Height: 0.5})
	b := table(1, model.DetectContour, 0.6, model.BoundingBox{Width: 0.5, Height: 0.25})
	if iou := a.BBox.IoU(b.BBox); iou != 0.5 {
		t.Fatalf("fixture IoU = %v", iou)
	}

	got := Merge([]model.SpatialTable{b, a}, 0.5)
	if len(got) != 1 {
		t.Fatalf("got %d tables, want 1", len(got))
	}
	m := got[0]
	if m.Confidence != 0.8 {
		t.Errorf("confidence = %v, want 0.8", m.Confidence)
	}
	if m.BBox != a.BBox || m.DetectionMethod != model.DetectLine {
		t.Errorf("geometry must come from the highest confidence member: %+v", m)
	}
	if !reflect.DeepEqual(m.Strategies, []model.DetectionMethod{model.DetectLine, model.DetectContour}) {
		t.Errorf("strategies = %v", m.Strategies)
	}
}

func TestMergeBelowThresholdKeepsBoth(t *testing.T) {
	a := table(1, model.DetectLine, 0.7, model.BoundingBox{Width: 0.5, Height: 0.5})
	b := table(1, model.DetectContour, 0.6, model.BoundingBox{Width: 0.5, Height: 0.2})
	if got := Merge([]model.SpatialTable{a, b}, 0.5); len(got) != 2 {
		t.Errorf("got %d tables, want 2", len(got))
	}
}

func TestMergeRules(t *testing.T) {
	box := model.BoundingBox{X: 0.1, Y: 0.1, Width: 0.4, Height: 0.3}

	t.Run("pages are never merged", func(t *testing.T) {
		got := Merge([]model.SpatialTable{
			table(2, model.DetectLine, 0.7, box),
			table(1, model.DetectEdge, 0.6, box),
		}, 0.5)
		if len(got) != 2 || got[0].PageNumber != 1 {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("confidence is capped", func(t *testing.T) {
		got := Merge([]model.SpatialTable{
			table(1, model.DetectLine, 0.95, box),
			table(1, model.DetectContour, 0.9, box),
			table(1, model.DetectEdge, 0.9, box),
		}, 0.5)
		if len(got) != 1 || got[0].Confidence != 1 {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("same strategy adds no bonus", func(t *testing.T) {
		got := Merge([]model.SpatialTable{
			table(1, model.DetectLine, 0.7, box),
			table(1, model.DetectLine, 0.65, box),
		}, 0.5)
		if len(got) != 1 || got[0].Confidence != 0.7 {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("order independent", func(t *testing.T) {
		in := []model.SpatialTable{
			table(1, model.DetectLine, 0.7, box),
			table(1, model.DetectEdge, 0.7, box),
			table(1, model.DetectContour, 0.6, model.BoundingBox{X: 0.6, Y: 0.6, Width: 0.2, Height: 0.2}),
		}
		rev := []model.SpatialTable{in[2], in[1], in[0]}
		if !reflect.DeepEqual(Merge(in, 0.5), Merge(rev, 0.5)) {
			t.Error("merge depends on input order")
		}
	})

	t.Run("input untouched", func(t *testing.T) {
		in := []model.SpatialTable{table(1, model.DetectLine, 0.7, box), table(1, model.DetectEdge, 0.6, box)}
		got := Merge(in, 0.5)
		got[0].Rows[0][0].Text = "changed"
		if in[0].Rows[0][0].Text != "" || len(in[0].Strategies) != 1 {
			t.Error("Merge must not share cells with its input")
		}
	})
}

func TestLineStrategyFindsRuledGrid(t *testing.T) {
	img := ruledGrid([]int{50, 150, 250, 350}, []int{50, 110, 170, 230})
	got := LineStrategy{}.Detect(NewPage(img, 3))
	if len(got) != 1 {
		t.Fatalf("got %d tables", len(got))
	}
	tb := got[0]
	if tb.RowCount() != 3 || tb.ColCount() != 3 || tb.PageNumber != 3 {
		t.Errorf("grid = %dx%d on page %d", tb.RowCount(), tb.ColCount(), tb.PageNumber)
	}
	if tb.Confidence < 0.8 {
		t.Errorf("confidence = %v", tb.Confidence)
	}
	if !tb.BBox.InBounds() || tb.BBox.X < 0.1 || tb.BBox.X > 0.14 {
		t.Errorf("bbox = %+v", tb.BBox)
	}
}

func TestLineStrategyIgnoresSingleRule(t *testing.T) {
	img := whitePage(400, 300)
	ink(img, image.Rect(20, 100, 380, 102))
	if got := (LineStrategy{}).Detect(NewPage(img, 1)); len(got) != 0 {
		t.Errorf("got %+v", got)
	}
}

func TestContourStrategyFindsBorderlessTable(t *testing.T) {
	img := whitePage(400, 300)
	for _, y := range []int{50, 80, 110} {
		for _, x := range []int{50, 150, 250} {
			word(img, x, y)
		}
	}
	got := ContourStrategy{}.Detect(NewPage(img, 1))
	if len(got) != 1 {
		t.Fatalf("got %d tables", len(got))
	}
	if got[0].RowCount() != 3 || got[0].ColCount() != 3 || got[0].DetectionMethod != model.DetectContour {
		t.Errorf("table = %+v", got[0])
	}
}

func TestContourStrategyIgnoresSingleColumn(t *testing.T) {
	img := whitePage(400, 300)
	for _, y := range []int{50, 80, 110} {
		word(img, 50, y)
	}
	if got := (ContourStrategy{}).Detect(NewPage(img, 1)); len(got) != 0 {
		t.Errorf("got %+v", got)
	}
}

func TestContourStrategyIgnoresRunningText(t *testing.T) {
	img := whitePage(400, 300)
	for line := 0; line < 4; line++ {
		y := 30 + line*40
		for x := 20; x < 380; x += 10 {
			ink(img, image.Rect(x, y, x+3, y+14))
		}
	}
	if got := (ContourStrategy{}).Detect(NewPage(img, 1)); len(got) != 0 {
		t.Errorf("running text detected as %d tables: %+v", len(got), got)
	}
	got, err := NewDetector(DefaultConfig()).Find(context.Background(), img, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("detector found %d tables on a text page", len(got))
	}
}

func TestDetectorFind(t *testing.T) {
	img := ruledGrid([]int{50, 150, 250, 350}, []int{50, 110, 170, 230})
	d := NewDetector(DefaultConfig())
	if !reflect.DeepEqual(d.Strategies(), []model.DetectionMethod{model.DetectLine, model.DetectContour, model.DetectEdge}) {
		t.Errorf("strategies = %v", d.Strategies())
	}

	got, err := d.Find(context.Background(), img, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 {
		t.Fatal("expected a table")
	}
	found := false
	for _, m := range got[0].Strategies {
		found = found || m == model.DetectLine
	}
	if !found || got[0].RowCount() != 3 {
		t.Errorf("table = %+v", got[0])
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Find(ctx, img, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

type stubCells struct {
	text  string
	err   error
	calls int
}

func (s *stubCells) RecognizeText(ctx context.Context, in engine.Input) (string, float64, error) {
	s.calls++
	if len(in.Image) == 0 || in.Format != "png" {
		return "", 0, errors.New("bad input")
	}
	return s.text, 0.9, s.err
}

func TestFillCells(t *testing.T) {
	grid := model.SpatialTable{
		PageNumber: 1,
		Rows: [][]model.TableCell{
			{
				{Row: 0, Col: 0, BBox: model.BoundingBox{X: 0, Y: 0, Width: 0.5, Height: 0.5}},
				{Row: 0, Col: 1, BBox: model.BoundingBox{X: 0.5, Y: 0, Width: 0.5, Height: 0.5}},
			},
			{
				{Row: 1, Col: 0, BBox: model.BoundingBox{X: 0, Y: 0.5, Width: 0.5, Height: 0.5}},
				{Row: 1, Col: 1, BBox: model.BoundingBox{X: 0.5, Y: 0.5, Width: 0.5, Height: 0.5}},
			},
		},
	}
	idx := spatial.NewIndex([]model.ExtractedElement{
		{Text: "W12X26", ElementType: model.ElementText, PageNumber: 1, Confidence: 0.9, BBox: model.BoundingBox{X: 0.1, Y: 0.1, Width: 0.2, Height: 0.1}},
		{Text: "BEAM", ElementType: model.ElementText, PageNumber: 1, Confidence: 0.7, BBox: model.BoundingBox{X: 0.1, Y: 0.25, Width: 0.2, Height: 0.1}},
		{Text: "A992", ElementType: model.ElementText, PageNumber: 1, Confidence: 0.8, BBox: model.BoundingBox{X: 0.6, Y: 0.1, Width: 0.2, Height: 0.1}},
		{Text: "other page", ElementType: model.ElementText, PageNumber: 2, Confidence: 0.8, BBox: model.BoundingBox{X: 0.1, Y: 0.6, Width: 0.2, Height: 0.1}},
	})
	page := whitePage(100, 100)

	t.Run("index then crops", func(t *testing.T) {
		rec := &stubCells{text: " 12 kips "}
		got, used := FillCells(context.Background(), []model.SpatialTable{grid}, idx, page, rec, 1)
		rows := got[0].Rows
		if rows[0][0].Text != "W12X26 BEAM" || rows[0][0].Confidence != 0.8 {
			t.Errorf("cell 0,0 = %+v", rows[0][0])
		}
		if rows[0][1].Text != "A992" {
			t.Errorf("cell 0,1 = %+v", rows[0][1])
		}
		if rows[1][0].Text != "12 kips" || used != 1 || rec.calls != 1 {
			t.Errorf("cell 1,0 = %+v used=%d calls=%d", rows[1][0], used, rec.calls)
		}
		if rows[1][1].Text != "" {
			t.Errorf("budget exhausted, cell 1,1 = %+v", rows[1][1])
		}
		if grid.Rows[0][0].Text != "" {
			t.Error("input tables must not be modified")
		}
	})

	t.Run("failures leave cells empty", func(t *testing.T) {
		rec := &stubCells{err: errors.New("engine down")}
		got, used := FillCells(context.Background(), []model.SpatialTable{grid}, idx, page, rec, 10)
		if used != 2 || got[0].Rows[1][0].Text != "" || got[0].Rows[1][1].Text != "" {
			t.Errorf("used=%d rows=%+v", used, got[0].Rows)
		}
	})

	t.Run("no recognizer", func(t *testing.T) {
		got, used := FillCells(context.Background(), []model.SpatialTable{grid}, idx, nil, nil, 10)
		if used != 0 || got[0].Rows[0][1].Text != "A992" {
			t.Errorf("used=%d rows=%+v", used, got[0].Rows)
		}
	})
}
