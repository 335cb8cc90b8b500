package spatial

import (
	"math"
	"reflect"
	"testing"

	"github.com/ArmanBehnam/clark/internal/model"
)

func text(page int, s string, x, y, w, h, conf float64) model.ExtractedElement {
	return model.ExtractedElement{
		Text:        s,
		ElementType: model.ElementText,
		PageNumber:  page,
		Confidence:  conf,
		BBox:        model.BoundingBox{X: x, Y: y, Width: w, Height: h},
	}
}

func sampleElements() []model.ExtractedElement {
	return []model.ExtractedElement{
		text(1, "GENERAL", 0.10, 0.10, 0.10, 0.02, 0.9),
		text(1, "STRUCTURAL NOTES", 0.21, 0.10, 0.20, 0.02, 0.8),
		text(1, "1. VERIFY DIMENSIONS", 0.10, 0.125, 0.30, 0.02, 0.7),
		text(1, "TITLE BLOCK", 0.80, 0.90, 0.15, 0.03, 0.6),
		text(2, "DESIGN CRITERIA", 0.10, 0.10, 0.25, 0.02, 0.9),
	}
}

func TestAnalyzeClustersByProximity(t *testing.T) {
	a := Analyze(sampleElements(), 2, Config{GapX: 0.02, GapY: 0.015})

	if len(a.Regions) != 3 {
		t.Fatalf("regions = %+v", a.Regions)
	}
	first := a.Regions[0]
	if first.PageNumber != 1 || first.Text != "GENERAL STRUCTURAL NOTES\n1. VERIFY DIMENSIONS" {
		t.Errorf("first region = %q on page %d", first.Text, first.PageNumber)
	}
	if first.Confidence != 0.8 {
		t.Errorf("first region confidence = %v", first.Confidence)
	}
	if a.Regions[1].Text != "TITLE BLOCK" || a.Regions[2].PageNumber != 2 {
		t.Errorf("region order = %+v", a.Regions)
	}
	if got := len(a.RegionsOn(1)); got != 2 {
		t.Errorf("RegionsOn(1) = %d", got)
	}
}

func TestAnalyzeIsOrderIndependent(t *testing.T) {
	els := sampleElements()
	cfg := Config{GapX: 0.02, GapY: 0.015}
	want := Analyze(els, 2, cfg)

	reversed := make([]model.ExtractedElement, len(els))
	for i, el := range els {
		reversed[len(els)-1-i] = el
	}
	got := Analyze(reversed, 2, cfg)

	if !reflect.DeepEqual(want, got) {
		t.Errorf("analysis depends on input order:\n%+v\n%+v", want, got)
	}
}

func TestAnalyzeCoverage(t *testing.T) {
	els := []model.ExtractedElement{
		text(1, "a", 0, 0, 0.5, 0.5, 1),
		text(1, "b", 0.25, 0.25, 0.5, 0.5, 1),
	}
	a := Analyze(els, 2, Config{})
	if a.PageCoverage[1] != 0.4375 {
		t.Errorf("page coverage = %v", a.PageCoverage[1])
	}
	if a.PageCoverage[2] != 0 {
		t.Errorf("empty page coverage = %v", a.PageCoverage[2])
	}
	if a.Coverage != 0.2188 {
		t.Errorf("coverage = %v", a.Coverage)
	}
}

func TestUnionArea(t *testing.T) {
	tests := []struct {
		name  string
		boxes []model.BoundingBox
		want  float64
	}{
		{"empty", nil, 0},
		{"single", []model.BoundingBox{{X: 0.1, Y: 0.1, Width: 0.2, Height: 0.5}}, 0.1},
		{"nested", []model.BoundingBox{{Width: 1, Height: 1}, {X: 0.2, Y: 0.2, Width: 0.1, Height: 0.1}}, 1},
		{"disjoint", []model.BoundingBox{{Width: 0.1, Height: 0.1}, {X: 0.5, Y: 0.5, Width: 0.2, Height: 0.1}}, 0.03},
		{"cross", []model.BoundingBox{{X: 0.4, Width: 0.2, Height: 1}, {Y: 0.4, Width: 1, Height: 0.2}}, 0.36},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UnionArea(tt.boxes); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("UnionArea = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIndexCentersIn(t *testing.T) {
	els := append(sampleElements(), model.ExtractedElement{
		ElementType: model.ElementTable,
		PageNumber:  1,
		BBox:        model.BoundingBox{X: 0.1, Y: 0.1, Width: 0.1, Height: 0.1},
	})
	idx := NewIndex(els)
	if idx.Len() != 5 {
		t.Errorf("Len = %d", idx.Len())
	}

	cell := model.BoundingBox{X: 0.05, Y: 0.05, Width: 0.4, Height: 0.08}
	got := idx.CentersIn(1, cell)
	if len(got) != 2 || got[0].Text != "GENERAL" || got[1].Text != "STRUCTURAL NOTES" {
		t.Errorf("CentersIn = %+v", got)
	}
	if len(idx.CentersIn(3, cell)) != 0 {
		t.Error("unknown page must be empty")
	}
}

func TestFilterKeywordsHit(t *testing.T) {
	a := Analyze(sampleElements(), 2, Config{GapX: 0.02, GapY: 0.015})
	pages := []model.PageResult{
		{PageNumber: 1, ExtractedText: "GENERAL STRUCTURAL NOTES\n1. VERIFY DIMENSIONS\nTITLE BLOCK"},
		{PageNumber: 2, ExtractedText: "DESIGN CRITERIA"},
		{PageNumber: 3, ExtractedText: "ELEVATIONS"},
	}
	f := FilterKeywords(a, pages, []string{"general  structural notes", "design criteria", "STRUCTURAL STEEL NOTES"})

	if f.FallbackUsed || f.TotalMatchingPages != 2 {
		t.Fatalf("filter = %+v", f)
	}
	if !reflect.DeepEqual(f.KeywordsFound, []string{"general  structural notes", "design criteria"}) {
		t.Errorf("KeywordsFound = %q", f.KeywordsFound)
	}
	if f.MatchingPages[0].FallbackExtraction || len(f.MatchingPages[0].MatchedKeywords) != 1 {
		t.Errorf("page 1 = %+v", f.MatchingPages[0])
	}
	if f.Summary.ExtractionMethod != model.MethodKeywordFilter || f.Summary.PercentageWithKeywords != 66.7 {
		t.Errorf("summary = %+v", f.Summary)
	}
	if pages[0].MatchedKeywords != nil {
		t.Error("input pages must not be modified")
	}
}

func TestFilterKeywordsFallback(t *testing.T) {
	pages := []model.PageResult{
		{PageNumber: 1, ExtractedText: "FLOOR PLAN"},
		{PageNumber: 2, ExtractedText: "   "},
		{PageNumber: 3, ExtractedText: "ELEVATIONS"},
	}
	f := FilterKeywords(Analysis{}, pages, []string{"DESIGN CRITERIA"})

	if !f.FallbackUsed || f.TotalMatchingPages != 2 {
		t.Fatalf("filter = %+v", f)
	}
	for _, p := range f.MatchingPages {
		if !p.FallbackExtraction || len(p.MatchedKeywords) != 0 {
			t.Errorf("fallback page = %+v", p)
		}
	}
	if len(f.KeywordsFound) != 0 {
		t.Errorf("KeywordsFound = %q", f.KeywordsFound)
	}
	want := model.PageSummary{TotalPages: 3, ExtractionMethod: model.MethodFullTextFallback}
	if f.Summary != want {
		t.Errorf("summary = %+v", f.Summary)
	}
}
