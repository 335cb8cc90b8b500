package export

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ArmanBehnam/clark/internal/model"
)

func sampleResult() *model.ExtractionResult {
	cell := func(r, c int, text string) model.TableCell {
		return model.TableCell{Row: r, Col: c, Text: text, BBox: model.BoundingBox{X: 0.1 * float64(c+1), Y: 0.5, Width: 0.1, Height: 0.05}, Confidence: 0.8}
	}
	return &model.ExtractionResult{
		DocumentID:    "doc-1",
		Filename:      "S-001 notes.pdf",
		TotalPages:    1,
		ExtractedText: "GENERAL STRUCTURAL NOTES\nDesign per IBC 2024 <rev 2>",
		StructuredData: map[string][]model.PatternMatch{
			"building_codes": {{Value: "IBC 2024", Confidence: 0.9, Source: "building_codes.ibc", Position: 36}},
		},
		Tables: []model.SpatialTable{{
			PageNumber:      1,
			BBox:            model.BoundingBox{X: 0.1, Y: 0.5, Width: 0.3, Height: 0.1},
			Rows:            [][]model.TableCell{{cell(0, 0, "MARK"), cell(0, 1, "SIZE")}, {cell(1, 0, "B1"), cell(1, 1, "W12X26")}},
			Confidence:      0.85,
			DetectionMethod: model.DetectLine,
			Strategies:      []model.DetectionMethod{model.DetectLine},
		}},
		Elements: []model.ExtractedElement{{
			Text:        "GENERAL STRUCTURAL NOTES",
			ElementType: model.ElementText,
			PageNumber:  1,
			Confidence:  0.95,
			BBox:        model.BoundingBox{X: 0.1, Y: 0.1, Width: 0.5, Height: 0.04},
		}},
		Confidence:               0.72,
		DocumentType:             model.DocStructuralNotes,
		ClassificationConfidence: 0.6,
		ProcessingMethod:         "ocr",
		Metrics: model.ProcessingMetrics{
			TotalElements: 1,
			AvgConfidence: 0.95,
			OCREngineUsed: "tesseract",
		},
		Pages: []model.PageResult{{PageNumber: 1, ExtractedText: "GENERAL STRUCTURAL NOTES", ElementCount: 2, ConfidenceAvg: 0.95, MatchedKeywords: []string{"GENERAL STRUCTURAL NOTES"}}},
		KeywordFilter: &model.KeywordFilter{
			Keywords:           []string{"GENERAL STRUCTURAL NOTES"},
			MatchingPages:      []model.PageResult{{PageNumber: 1, MatchedKeywords: []string{"GENERAL STRUCTURAL NOTES"}}},
			TotalMatchingPages: 1,
			KeywordsFound:      []string{"GENERAL STRUCTURAL NOTES"},
			Summary:            model.PageSummary{TotalPages: 1, PagesWithKeywords: 1, PercentageWithKeywords: 100, ExtractionMethod: model.MethodKeywordFilter},
		},
		ProcessedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMarshalJSONContract(t *testing.T) {
	data, err := MarshalJSON(sampleResult())
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc["schema_version"] != "1.0" {
		t.Errorf("schema_version = %v", doc["schema_version"])
	}
	info := doc["document_info"].(map[string]any)
	if info["document_type"] != "STRUCTURAL_NOTES" || info["processing_method"] != "ocr" {
		t.Errorf("document_info = %v", info)
	}
	match := doc["structured_data"].(map[string]any)["building_codes"].([]any)[0].(map[string]any)
	if _, ok := match["position"]; ok {
		t.Error("structured data exports value, confidence and source only")
	}
	metrics := doc["processing_metrics"].(map[string]any)
	if _, ok := metrics["engine_attempts"].([]any); !ok {
		t.Errorf("engine_attempts must be an array, got %v", metrics["engine_attempts"])
	}
	if warnings, ok := doc["warnings"].([]any); !ok || len(warnings) != 0 {
		t.Errorf("warnings = %v", doc["warnings"])
	}
}

func TestValidateRejects(t *testing.T) {
	good, err := json.Marshal(FromResult(sampleResult()))
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(good); err != nil {
		t.Fatalf("valid document rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(d *Document)
	}{
		{"confidence above one", func(d *Document) { d.DocumentInfo.Confidence = 1.5 }},
		{"unknown document type", func(d *Document) { d.DocumentInfo.DocumentType = "BLUEPRINT" }},
		{"empty document id", func(d *Document) { d.DocumentInfo.DocumentID = "" }},
		{"wrong schema version", func(d *Document) { d.SchemaVersion = "0.9" }},
		{"bbox out of page", func(d *Document) { d.Elements[0].BBox.X = -0.2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := FromResult(sampleResult())
			tt.mutate(&doc)
			data, err := json.Marshal(doc)
			if err != nil {
				t.Fatal(err)
			}
			if Validate(data) == nil {
				t.Error("expected schema violation")
			}
		})
	}

	if Validate([]byte("{")) == nil {
		t.Error("expected decode error")
	}
}

func TestFromResultFillsEmptyCollections(t *testing.T) {
	res := &model.ExtractionResult{DocumentID: "d", Filename: "a.png", TotalPages: 1, DocumentType: model.DocUnknown, ProcessingMethod: "none"}
	data, err := MarshalJSON(res)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"tables": []`, `"elements": []`, `"pages": []`, `"warnings": []`, `"degraded_stages": []`} {
		if !bytes.Contains(data, []byte(key)) {
			t.Errorf("missing %s in %s", key, data)
		}
	}
	if bytes.Contains(data, []byte(`"keyword_filter"`)) {
		t.Error("keyword_filter must be omitted when absent")
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		format Format
		want   string
	}{
		{FormatJSON, "out/S-001 notes_result.json"},
		{FormatYAML, "out/S-001 notes_result.yaml"},
		{FormatHTML, "out/S-001 notes_report.html"},
	}
	for _, tt := range tests {
		if got := OutputPath("out", "/in/S-001 notes.pdf", tt.format); got != filepath.FromSlash(tt.want) {
			t.Errorf("OutputPath(%s) = %s, want %s", tt.format, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"JSON": FormatJSON, "yml": FormatYAML, " html ": FormatHTML} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestEncodeYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, sampleResult(), FormatYAML); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{`schema_version: "1.0"`, "document_type: STRUCTURAL_NOTES", "value: IBC 2024"} {
		if !strings.Contains(out, want) {
			t.Errorf("yaml missing %q:\n%s", want, out)
		}
	}
}

func TestRenderHTML(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderHTML(&buf, sampleResult()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"<table>", "<td>W12X26</td>", "<h3>GENERAL STRUCTURAL NOTES</h3>", "&lt;rev 2&gt;"} {
		if !strings.Contains(out, want) {
			t.Errorf("html missing %q", want)
		}
	}
	if strings.Contains(out, "<rev 2>") {
		t.Error("extracted text must be escaped")
	}
}

func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	path, err := WriteFile(dir, sampleResult(), FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "S-001 notes_result.json" {
		t.Errorf("path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(data); err != nil {
		t.Error(err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}

func TestWriteBatchReport(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteBatchReport(dir, BatchReport{
		TotalFiles: 2,
		Successful: 1,
		Failed:     1,
		Results:    []Document{FromResult(sampleResult())},
		Errors:     []BatchError{{File: "bad.pdf", Error: "file is empty"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	var rep map[string]any
	data, _ := os.ReadFile(path)
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatal(err)
	}
	if rep["total_files"] != float64(2) || rep["schema_version"] != "1.0" {
		t.Errorf("report = %v", rep)
	}
}
