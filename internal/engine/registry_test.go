package engine

import (
	"context"
	"testing"
)

type stubEngine struct {
	desc Descriptor
}

func (s stubEngine) Descriptor() Descriptor           { return s.desc }
func (s stubEngine) Supports(in InputDescriptor) bool { return SupportsInput(s.desc.Capabilities, in) }
func (s stubEngine) Recognize(context.Context, Input, Options) (*Recognition, error) {
	return &Recognition{}, nil
}

func stub(name string, priority int) stubEngine {
	return stubEngine{desc: Descriptor{Name: name, Priority: priority}}
}

func names(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Name()
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRegistryCandidatesByPriority(t *testing.T) {
	reg := NewRegistry()
	for _, e := range []stubEngine{stub("paid", 30), stub("local", 10), stub("cloud", 20), stub("tie", 10)} {
		if err := reg.Register(e); err != nil {
			t.Fatal(err)
		}
	}

	got := names(reg.Candidates(nil))
	want := []string{"local", "tie", "cloud", "paid"}
	if !equal(got, want) {
		t.Errorf("Candidates = %v, want %v", got, want)
	}
}

func TestRegistryCandidatesExplicitOrder(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(stub("a", 1))
	_ = reg.Register(stub("b", 2))
	_ = reg.Register(stub("c", 3))

	cands := reg.Candidates(SelectionOrder("c", []string{"missing", "a", "c"}))
	if got := names(cands); !equal(got, []string{"c", "a"}) {
		t.Fatalf("Candidates = %v", got)
	}
	for i, c := range cands {
		if c.Priority != i {
			t.Errorf("candidate %s priority = %d, want %d", c.Name(), c.Priority, i)
		}
	}
}

func TestRegistrySeal(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(stub("a", 1)); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(stub("a", 2)); err == nil {
		t.Error("expected duplicate registration to fail")
	}
	reg.Seal()
	if err := reg.Register(stub("b", 2)); err == nil {
		t.Error("expected registration after Seal to fail")
	}
	if _, ok := reg.Get("a"); !ok {
		t.Error("expected engine a to be retrievable")
	}
	if reg.Len() != 1 {
		t.Errorf("Len = %d", reg.Len())
	}
}

func TestSelectionOrder(t *testing.T) {
	if SelectionOrder("", nil) != nil {
		t.Error("expected nil order without preferences")
	}
	got := SelectionOrder("azure_read", []string{"tesseract", "azure_read"})
	if !equal(got, []string{"azure_read", "tesseract"}) {
		t.Errorf("SelectionOrder = %v", got)
	}
}

func TestSupportsInput(t *testing.T) {
	caps := Capabilities{MaxInputBytes: 100, MaxDimension: 50}
	tests := []struct {
		name string
		in   InputDescriptor
		want bool
	}{
		{"fits", InputDescriptor{SizeBytes: 80, Width: 40, Height: 40}, true},
		{"too large", InputDescriptor{SizeBytes: 101, Width: 40, Height: 40}, false},
		{"too wide", InputDescriptor{SizeBytes: 80, Width: 51, Height: 40}, false},
		{"empty", InputDescriptor{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SupportsInput(caps, tt.in); got != tt.want {
				t.Errorf("SupportsInput = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCostClassString(t *testing.T) {
	if CostLocal.String() != "local" || CostPaid.String() != "paid" || CostFree.String() != "free" {
		t.Error("unexpected cost class names")
	}
	if !(CostFree < CostLocal && CostLocal < CostPaid) {
		t.Error("cost classes must be ordered cheapest first")
	}
}
