package patterns

import (
	"testing"

	"github.com/ArmanBehnam/clark/internal/model"
)

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"  a36   steel ": "A36 STEEL",
		"ＩＢＣ 2024":      "IBC 2024",
		"L\t/\n360":      "L / 360",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  GENERAL   NOTES  ", "GENERAL NOTES"},
		{"-- STEEL --", "STEEL"},
		{"|", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanText(tt.in); got != tt.want {
			t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsValidText(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"A36", true},
		{"x", false},
		{"----", false},
		{"#$%^&*a", false},
		{"W12X26 BEAM", true},
	}
	for _, tt := range tests {
		if got := IsValidText(tt.in, 2); got != tt.want {
			t.Errorf("IsValidText(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFilterLowQuality(t *testing.T) {
	in := []model.ExtractedElement{
		{Text: "  STRUCTURAL  NOTES ", ElementType: model.ElementText, Confidence: 0.9},
		{Text: "noise", ElementType: model.ElementText, Confidence: 0.1},
		{Text: "||", ElementType: model.ElementText, Confidence: 0.9},
		{Text: "a | b", ElementType: model.ElementTable, Confidence: 0.2},
	}
	out := FilterLowQuality(in, 0.3, 2)
	if len(out) != 2 {
		t.Fatalf("got %d elements: %+v", len(out), out)
	}
	if out[0].Text != "STRUCTURAL NOTES" {
		t.Errorf("text = %q", out[0].Text)
	}
	if in[0].Text != "  STRUCTURAL  NOTES " {
		t.Error("input must not be modified")
	}
	if out[1].ElementType != model.ElementTable {
		t.Error("table elements pass through")
	}
}

func TestTopics(t *testing.T) {
	text := "preamble\nGENERAL STRUCTURAL NOTES\n1. Verify in field.\n2. Per IBC 2024.\nDESIGN CRITERIA:\nLive load 40 psf\n"
	topics := Topics(text)
	if len(topics) != 2 {
		t.Fatalf("topics = %+v", topics)
	}
	if topics[0].Title != "GENERAL STRUCTURAL NOTES" || topics[0].Body != "1. Verify in field.\n2. Per IBC 2024." {
		t.Errorf("first topic = %+v", topics[0])
	}
	if topics[1].Title != "DESIGN CRITERIA" || topics[1].Body != "Live load 40 psf" {
		t.Errorf("second topic = %+v", topics[1])
	}
	if text[topics[1].Position:topics[1].Position+len("DESIGN")] != "DESIGN" {
		t.Errorf("position = %d", topics[1].Position)
	}
}
