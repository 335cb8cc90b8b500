package classifier

import (
	"reflect"
	"testing"

	"github.com/ArmanBehnam/clark/internal/config"
	"github.com/ArmanBehnam/clark/internal/model"
	"github.com/ArmanBehnam/clark/internal/patterns"
)

func TestClassifyStructuralNotes(t *testing.T) {
	text := "GENERAL STRUCTURAL NOTES\nDESIGN CRITERIA\nALL STRUCTURAL STEEL SHALL BE A36 Steel. DESIGN PER IBC 2024."
	structured := patterns.Extract(text, patterns.Default()).Matches

	c := FromConfig(config.ClassifierConfig{MinConfidence: DefaultMinConfidence})
	got := c.Classify(text, structured)
	if got.Type != model.DocStructuralNotes {
		t.Fatalf("type = %s scores = %v", got.Type, got.Scores)
	}
	if got.Confidence <= DefaultMinConfidence || got.Confidence > 1 || got.Uncertain != nil {
		t.Errorf("classification = %+v", got)
	}
	if got.Confidence != got.Scores[model.DocStructuralNotes] {
		t.Error("confidence must be the winning score")
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	text := "FLOOR PLAN\nDOOR SCHEDULE\nEXTERIOR ELEVATION"
	c := New(DefaultRules(), DefaultMinConfidence)
	first := c.Classify(text, nil)
	for i := 0; i < 20; i++ {
		if got := c.Classify(text, nil); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d = %+v, want %+v", i, got, first)
		}
	}
	if first.Type != model.DocArchitecturalDrawing {
		t.Errorf("type = %s", first.Type)
	}
}

func TestClassifyBelowMinimumIsUnknown(t *testing.T) {
	c := New(DefaultRules(), 0.9)
	got := c.Classify("GENERAL STRUCTURAL NOTES", nil)
	if got.Type != model.DocUnknown {
		t.Errorf("type = %s", got.Type)
	}
	if got.Uncertain == nil || got.Uncertain.Threshold != 0.9 || got.Uncertain.Score != got.Confidence {
		t.Errorf("uncertain = %+v", got.Uncertain)
	}
	if got.Confidence == 0 {
		t.Error("UNKNOWN keeps the top score as confidence")
	}
}

func TestClassifyEmptyText(t *testing.T) {
	got := New(DefaultRules(), 0).Classify("", nil)
	if got.Type != model.DocUnknown || got.Confidence != 0 || got.Uncertain == nil {
		t.Errorf("classification = %+v", got)
	}
}

func TestClassifyTieUsesPriorityOrder(t *testing.T) {
	rules := []Rule{
		{Type: model.DocSpecification, Signals: []Signal{{Keyword: "BEAM", Weight: 1}}},
		{Type: model.DocStructuralNotes, Signals: []Signal{{Keyword: "BEAM", Weight: 2}}},
	}
	got := New(rules, 0.3).Classify("beam", nil)
	if got.Type != model.DocSpecification || got.Confidence != 1 {
		t.Errorf("classification = %+v", got)
	}
}

func TestClassifyCategorySignals(t *testing.T) {
	rules := []Rule{{Type: model.DocShopDrawing, Signals: []Signal{
		{Category: "dimensions", Weight: 1},
		{Keyword: "SHOP DRAWING", Weight: 3},
	}}}
	structured := map[string][]model.PatternMatch{"dimensions": {{Value: `16" O.C.`}}}
	got := New(rules, 0.2).Classify("nothing relevant", structured)
	if got.Type != model.DocShopDrawing || got.Confidence != 0.25 {
		t.Errorf("classification = %+v", got)
	}
}
