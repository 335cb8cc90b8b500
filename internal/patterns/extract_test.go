package patterns

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/ArmanBehnam/clark/internal/config"
	"github.com/ArmanBehnam/clark/internal/model"
)

const notes = `GENERAL STRUCTURAL NOTES
1. DESIGN PER IBC 2024 AND ASCE 7-16.
2. ALL STRUCTURAL STEEL SHALL BE A36 Steel UNO.
3. ROOF LIVE LOAD: 20 PSF. BASIC WIND SPEED: 115 MPH.
4. STUDS AT 16" O.C. W12X26 BEAMS. HSS 6x6x1/2 POSTS.
5. IBC 2024 GOVERNS. 2 HOUR FIRE RATING AT STAIRS.
Project: Warehouse Expansion
`

func values(ms []model.PatternMatch) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Value
	}
	return out
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

func TestExtractCatalog(t *testing.T) {
	res := Extract(notes, Default())

	tests := []struct {
		category string
		want     string
	}{
		{CategoryBuildingCodes, "IBC 2024"},
		{CategoryBuildingCodes, "ASCE 7-16"},
		{CategoryMaterialSpecs, "A36 Steel"},
		{CategoryLoadRequirements, "LIVE LOAD: 20 PSF"},
		{CategoryLoadRequirements, "BASIC WIND SPEED: 115 MPH"},
		{CategoryStructuralElements, "W12X26"},
		{CategoryStructuralElements, "HSS 6x6x1/2"},
		{CategoryDimensions, `16" O.C.`},
		{CategoryFireProtection, "2 HOUR FIRE RATING"},
		{CategoryProjectInfo, "Project: Warehouse Expansion"},
		{CategoryAbbreviations, "UNO"},
	}
	for _, tt := range tests {
		t.Run(tt.category+"/"+tt.want, func(t *testing.T) {
			got := values(res.Matches[tt.category])
			if !contains(got, tt.want) {
				t.Errorf("%s = %q, missing %q", tt.category, got, tt.want)
			}
		})
	}
}

func TestExtractValuesAreSubstrings(t *testing.T) {
	res := Extract(notes, Default())
	for category, ms := range res.Matches {
		for _, m := range ms {
			if !strings.Contains(notes, m.Value) {
				t.Errorf("%s value %q is not a substring of the text", category, m.Value)
			}
			if notes[m.Position:m.Position+len(m.Value)] != m.Value {
				t.Errorf("%s value %q has wrong position %d", category, m.Value, m.Position)
			}
			if m.Confidence <= 0 || m.Confidence > 1 {
				t.Errorf("%s value %q confidence %v", category, m.Value, m.Confidence)
			}
		}
	}
}

func TestExtractDeduplicatesIBC(t *testing.T) {
	rule, err := NewRule("codes.ibc", "codes", `IBC\s?\d{4}`, 0.9, nil)
	if err != nil {
		t.Fatal(err)
	}
	rs := (&RuleSet{}).With(rule)
	text := "Per IBC 2024. See IBC 2024 section 1604. ibc 2024"

	first := Extract(text, rs)
	ms := first.Matches["codes"]
	if len(ms) != 1 || ms[0].Value != "IBC 2024" {
		t.Fatalf("matches = %+v, want single IBC 2024", ms)
	}
	if ms[0].Position != 4 || ms[0].Source != "codes.ibc" {
		t.Errorf("match = %+v", ms[0])
	}

	second := Extract(text, rs)
	if !reflect.DeepEqual(first, second) {
		t.Error("Extract must be idempotent")
	}
}

func TestExtractDedupKeepsMaxConfidenceAndEarliestRule(t *testing.T) {
	low, _ := NewRule("c.low", "c", `ASTM\s*A\d+`, 0.6, nil)
	high, _ := NewRule("c.high", "c", `ASTM A\d+`, 0.95, nil)
	rs := (&RuleSet{}).With(low, high)

	ms := Extract("steel per ASTM A992", rs).Matches["c"]
	if len(ms) != 1 {
		t.Fatalf("matches = %+v", ms)
	}
	if ms[0].Confidence != 0.95 || ms[0].Source != "c.low" {
		t.Errorf("match = %+v, want confidence 0.95 from c.low", ms[0])
	}
}

func TestExtractNormalizesForDedup(t *testing.T) {
	r, _ := NewRule("c.wf", "c", `(?i)w\s*\d+\s*x\s*\d+`, 0.9, nil)
	rs := (&RuleSet{}).With(r)
	ms := Extract("W12X26 then w12x26 and W12 X26", rs).Matches["c"]
	if len(ms) != 2 {
		t.Errorf("matches = %q", values(ms))
	}
}

func TestExtractContextWindow(t *testing.T) {
	r, _ := NewRule("loads.force", "loads", `\d+\s*kips`, 0.7, []string{"reaction"})
	rs := (&RuleSet{}).With(r).WithContextWindow(20)

	text := "beam reaction 12 kips" + strings.Repeat(" ", 60) + "truck weight 40 kips"
	ms := Extract(text, rs).Matches["loads"]
	if got := values(ms); len(got) != 1 || got[0] != "12 kips" {
		t.Errorf("matches = %q, want only 12 kips", got)
	}
}

func TestExtractMatchesUnicodeSpaces(t *testing.T) {
	r, _ := NewRule("c.wf", "c", `\bW\s*\d+\s*X\s*\d+\b`, 0.9, nil)
	rs := (&RuleSet{}).With(r)

	text := "\u00a0BEAM W12\u00a0X26 AND W8\u2009X10"
	ms := Extract(text, rs).Matches["c"]
	if got := values(ms); !reflect.DeepEqual(got, []string{"W12 X26", "W8 X10"}) {
		t.Fatalf("matches = %q", got)
	}
	if want := strings.Index(text, "W12"); ms[0].Position != want {
		t.Errorf("position = %d, want original offset %d", ms[0].Position, want)
	}
	if ms[1].Context != "BEAM W12 X26 AND W8 X10" {
		t.Errorf("context = %q", ms[1].Context)
	}
}

func TestExtractContextWindowCountsCharacters(t *testing.T) {
	r, _ := NewRule("loads.force", "loads", `\d+\s*kips`, 0.7, []string{"reaction"})
	rs := (&RuleSet{}).With(r).WithContextWindow(20)

	tests := []struct {
		name string
		gap  int
		want int
	}{
		{"keyword inside window", 10, 1},
		{"keyword one character out", 11, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := "reaction " + strings.Repeat("é", tt.gap) + " 12 kips"
			if got := len(Extract(text, rs).Matches["loads"]); got != tt.want {
				t.Errorf("matches = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExtractOrderAndCategoryConfidence(t *testing.T) {
	a, _ := NewRule("c.a", "c", `beta`, 0.6, nil)
	b, _ := NewRule("c.b", "c", `alpha`, 1.0, nil)
	res := Extract("alpha beta", (&RuleSet{}).With(a, b))

	if got := values(res.Matches["c"]); !reflect.DeepEqual(got, []string{"alpha", "beta"}) {
		t.Errorf("order = %q", got)
	}
	if res.CategoryConfidence["c"] != 0.8 {
		t.Errorf("category confidence = %v", res.CategoryConfidence["c"])
	}
	if res.Total() != 2 {
		t.Errorf("Total = %d", res.Total())
	}
}

func TestExtractEmpty(t *testing.T) {
	if res := Extract("   ", Default()); res.Total() != 0 {
		t.Error("expected no matches for blank text")
	}
}

func TestRuleSetOperations(t *testing.T) {
	def := Default()
	if def != Default() {
		t.Error("Default must return the shared catalog")
	}
	total := def.Count("")
	cats := def.Categories()
	wantCats := []string{
		CategoryBuildingCodes, CategoryMaterialSpecs, CategoryStructuralElements,
		CategoryLoadRequirements, CategoryDimensions, CategoryFireProtection,
		CategoryProjectInfo, CategoryAbbreviations,
	}
	if !reflect.DeepEqual(cats, wantCats) {
		t.Errorf("Categories = %v", cats)
	}

	custom, _ := NewRule("custom.x", "custom", `XYZ-\d+`, 0.5, nil)
	extended := def.With(custom)
	if extended.Count("") != total+1 || def.Count("") != total {
		t.Error("With must not mutate the original set")
	}
	trimmed := extended.Without("custom.x", "building_codes.ibc")
	if trimmed.Count("") != total-1 || trimmed.Count("custom") != 0 {
		t.Errorf("Without count = %d", trimmed.Count(""))
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.PatternsConfig{
		ContextWindow: 30,
		Custom: []config.CustomPattern{
			{Category: "sheet_refs", Pattern: `S-\d{3}`},
		},
	}
	rs, err := FromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if rs.ContextWindow() != 30 || rs.Count("sheet_refs") != 1 {
		t.Errorf("window = %d count = %d", rs.ContextWindow(), rs.Count("sheet_refs"))
	}
	ms := Extract("see S-201", rs).Matches["sheet_refs"]
	if len(ms) != 1 || ms[0].Confidence != defaultCustomWeight {
		t.Errorf("custom matches = %+v", ms)
	}

	cfg.Custom[0].Pattern = `S-(\d{3}`
	if _, err := FromConfig(cfg); err == nil {
		t.Error("expected invalid custom pattern to fail")
	}
}

func TestValidatePattern(t *testing.T) {
	if err := ValidatePattern(`\bIBC\s*\d{4}\b`); err != nil {
		t.Error(err)
	}
	if ValidatePattern(`(?<=IBC)\d+`) == nil {
		t.Error("lookbehind is not RE2 and must be rejected")
	}
}

func TestMemoryRecorder(t *testing.T) {
	var rec CorrectionRecorder = NewMemoryRecorder()
	el := model.ExtractedElement{Text: "A3G Steel", ElementType: model.ElementText}
	if err := rec.RecordCorrection(context.Background(), el, "A36 Steel"); err != nil {
		t.Fatal(err)
	}
	log := rec.(*MemoryRecorder).Corrections()
	if len(log) != 1 || log[0].CorrectedValue != "A36 Steel" || log[0].RecordedAt.IsZero() {
		t.Errorf("log = %+v", log)
	}
}
