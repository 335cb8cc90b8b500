package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	clarkerrors "github.com/ArmanBehnam/clark/internal/errors"
	"github.com/ArmanBehnam/clark/internal/model"
)

func TestFingerprint(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.pdf")
	b := filepath.Join(dir, "renamed.pdf")
	c := filepath.Join(dir, "c.pdf")
	os.WriteFile(a, []byte("%PDF-1.7 same"), 0o644)
	os.WriteFile(b, []byte("%PDF-1.7 same"), 0o644)
	os.WriteFile(c, []byte("%PDF-1.7 other"), 0o644)

	fa, err := Fingerprint(a)
	if err != nil {
		t.Fatal(err)
	}
	fb, _ := Fingerprint(b)
	fc, _ := Fingerprint(c)
	if len(fa) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(fa))
	}
	if fa != fb {
		t.Error("identical content should share a fingerprint")
	}
	if fa == fc {
		t.Error("different content should not share a fingerprint")
	}
	if _, err := Fingerprint(filepath.Join(dir, "missing.pdf")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSanitizeJSON(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"null removed", `{"t":"a\u0000b"}`, `{"t":"ab"}`},
		{"bell blanked", `{"t":"a\u0007b"}`, `{"t":"a b"}`},
		{"tab kept", `{"t":"a\u0009b"}`, `{"t":"a\u0009b"}`},
		{"newline kept", `{"t":"a\u000ab"}`, `{"t":"a\u000ab"}`},
		{"plain", `{"t":"W12X26"}`, `{"t":"W12X26"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(sanitizeJSON([]byte(tt.in))); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSanitizeConfidence(t *testing.T) {
	for in, want := range map[float64]float64{-0.2: 0, 1.7: 1, 0.123456: 0.1235} {
		if got := sanitizeConfidence(in); got != want {
			t.Errorf("sanitizeConfidence(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestPointIDStable(t *testing.T) {
	if PointID("doc-1", 2) != PointID("doc-1", 2) {
		t.Error("point IDs should be deterministic")
	}
	if PointID("doc-1", 2) == PointID("doc-1", 3) || PointID("doc-1", 2) == PointID("doc-2", 2) {
		t.Error("point IDs should differ per document page")
	}
}

func TestPayloadConversion(t *testing.T) {
	in := map[string]interface{}{
		"document_id": "doc-1",
		"page_number": 3,
		"confidence":  0.75,
		"fallback":    true,
		"keywords":    []string{"DESIGN CRITERIA"},
	}
	out := fromPayload(toPayload(in))
	if out["document_id"] != "doc-1" || out["page_number"] != int64(3) || out["confidence"] != 0.75 || out["fallback"] != true {
		t.Errorf("round trip = %v", out)
	}
	if kw, ok := out["keywords"].([]interface{}); !ok || len(kw) != 1 || kw[0] != "DESIGN CRITERIA" {
		t.Errorf("keywords = %v", out["keywords"])
	}
}

func TestQdrantAddress(t *testing.T) {
	tests := map[string]string{
		"http://localhost:6334": "localhost:6334",
		"https://qdrant.local/": "qdrant.local:6334",
		"qdrant:6334":           "qdrant:6334",
		"http://10.0.0.5":       "10.0.0.5:6334",
	}
	for in, want := range tests {
		if got := QdrantAddress(in); got != want {
			t.Errorf("QdrantAddress(%q) = %q, want %q", in, got, want)
		}
	}
}

type fakeResults struct {
	saved   []string
	saveErr error
	jobs    []*JobUpdate
}

func (f *fakeResults) SaveResult(ctx context.Context, res *model.ExtractionResult, fingerprint string, data []byte) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, res.DocumentID+"/"+fingerprint)
	return nil
}

func (f *fakeResults) FindByFingerprint(ctx context.Context, fingerprint string) (string, error) {
	if fingerprint == "known" {
		return "doc-known", nil
	}
	return "", ErrNotFound
}

func (f *fakeResults) UpdateJobStatus(ctx context.Context, u *JobUpdate) error {
	f.jobs = append(f.jobs, u)
	return nil
}

func (f *fakeResults) RecordCorrection(ctx context.Context, el model.ExtractedElement, v string) error {
	return nil
}

func (f *fakeResults) Close() error { return nil }

type fakeVectors struct {
	points  map[string]*VectorPoint
	deletes int
}

func newFakeVectors() *fakeVectors { return &fakeVectors{points: map[string]*VectorPoint{}} }

func (f *fakeVectors) Upsert(ctx context.Context, pts []*VectorPoint) error {
	for _, p := range pts {
		f.points[p.ID] = p
	}
	return nil
}

func (f *fakeVectors) Search(ctx context.Context, v []float32, limit int, field, value string) ([]*VectorPoint, error) {
	var out []*VectorPoint
	for _, p := range f.points {
		if value != "" && p.Metadata[field] != value {
			continue
		}
		md := fromPayload(toPayload(p.Metadata))
		out = append(out, &VectorPoint{ID: p.ID, Metadata: md, Score: 0.9})
	}
	return out, nil
}

func (f *fakeVectors) DeleteByField(ctx context.Context, field, value string) error {
	f.deletes++
	for id, p := range f.points {
		if p.Metadata[field] == value {
			delete(f.points, id)
		}
	}
	return nil
}

func (f *fakeVectors) CollectionInfo(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{"points_count": uint64(len(f.points))}, nil
}

func (f *fakeVectors) Close() error { return nil }

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func (fakeEmbedder) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	return []float32{1}, nil
}

func storedResult() *model.ExtractionResult {
	return &model.ExtractionResult{
		DocumentID:       "doc-1",
		Filename:         "S-001.pdf",
		TotalPages:       3,
		ExtractedText:    "GENERAL STRUCTURAL NOTES\n\nDESIGN CRITERIA",
		Confidence:       0.7,
		DocumentType:     model.DocStructuralNotes,
		ProcessingMethod: "text_layer",
		Metrics:          model.ProcessingMetrics{OCREngineUsed: "text_layer"},
		Pages: []model.PageResult{
			{PageNumber: 1, ExtractedText: "GENERAL STRUCTURAL NOTES", MatchedKeywords: []string{"GENERAL STRUCTURAL NOTES"}},
			{PageNumber: 2, ExtractedText: "   "},
			{PageNumber: 3, ExtractedText: "DESIGN CRITERIA"},
		},
		ProcessedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestStoreResultWritesBothSinks(t *testing.T) {
	results, vectors := &fakeResults{}, newFakeVectors()
	sm := NewStorageManager(results, vectors, fakeEmbedder{})

	if err := sm.StoreResult(context.Background(), storedResult(), "fp"); err != nil {
		t.Fatal(err)
	}
	if len(results.saved) != 1 || results.saved[0] != "doc-1/fp" {
		t.Errorf("saved = %v", results.saved)
	}
	if len(vectors.points) != 2 {
		t.Fatalf("points = %d, want 2 (blank page skipped)", len(vectors.points))
	}
	p := vectors.points[PointID("doc-1", 1)]
	if p == nil || p.Metadata["filename"] != "S-001.pdf" || p.Metadata["document_type"] != "STRUCTURAL_NOTES" {
		t.Errorf("page 1 point = %+v", p)
	}

	// Storing again replaces points instead of adding new ones.
	if err := sm.StoreResult(context.Background(), storedResult(), "fp"); err != nil {
		t.Fatal(err)
	}
	if len(vectors.points) != 2 {
		t.Errorf("points after restore = %d", len(vectors.points))
	}
}

func TestStoreResultRollsBackVectors(t *testing.T) {
	results, vectors := &fakeResults{saveErr: errors.New("connection reset")}, newFakeVectors()
	sm := NewStorageManager(results, vectors, fakeEmbedder{})

	err := sm.StoreResult(context.Background(), storedResult(), "fp")
	var pe *clarkerrors.ProcessingError
	if !errors.As(err, &pe) || pe.Code != clarkerrors.ErrorStorageFailed {
		t.Fatalf("err = %v, want STORAGE_FAILED", err)
	}
	if len(vectors.points) != 0 {
		t.Errorf("points = %d, want rollback to 0", len(vectors.points))
	}
}

func TestSearch(t *testing.T) {
	sm := NewStorageManager(nil, newFakeVectors(), fakeEmbedder{})
	if err := sm.StoreResult(context.Background(), storedResult(), "fp"); err != nil {
		t.Fatal(err)
	}
	hits, err := sm.Search(context.Background(), "design loads", 5, "STRUCTURAL_NOTES")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d", len(hits))
	}
	for _, h := range hits {
		if h.DocumentID != "doc-1" || h.PageNumber == 0 || h.Snippet == "" {
			t.Errorf("hit = %+v", h)
		}
	}
	hits, _ = sm.Search(context.Background(), "design loads", 5, "ARCHITECTURAL")
	if len(hits) != 0 {
		t.Errorf("filtered hits = %d", len(hits))
	}
}

func TestDisabledManager(t *testing.T) {
	sm := NewStorageManager(nil, newFakeVectors(), nil)
	if sm.Enabled() {
		t.Error("vectors without an embedder should be disabled")
	}
	if err := sm.StoreResult(context.Background(), storedResult(), "fp"); err != nil {
		t.Errorf("store with no sinks: %v", err)
	}
	if _, err := sm.Search(context.Background(), "q", 5, ""); err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Errorf("search err = %v", err)
	}
	if sm.Corrections() != nil {
		t.Error("no correction sink expected without PostgreSQL")
	}
	if err := sm.UpdateJobStatus(context.Background(), &JobUpdate{JobID: "j"}); err != nil {
		t.Error(err)
	}
}

func TestKnownDocument(t *testing.T) {
	sm := NewStorageManager(&fakeResults{}, nil, nil)
	if id, err := sm.KnownDocument(context.Background(), "known"); err != nil || id != "doc-known" {
		t.Errorf("known = %q, %v", id, err)
	}
	if id, err := sm.KnownDocument(context.Background(), "new"); err != nil || id != "" {
		t.Errorf("new = %q, %v", id, err)
	}
}
