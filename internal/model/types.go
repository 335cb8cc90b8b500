package model

import (
	"strings"
	"time"
)

// ElementType classifies an extracted element.
type ElementType string

const (
	ElementText    ElementType = "TEXT"
	ElementTable   ElementType = "TABLE"
	ElementImage   ElementType = "IMAGE"
	ElementDrawing ElementType = "DRAWING"
)

// ExtractedElement is one piece of recognized content on a page.
type ExtractedElement struct {
	Text        string                 `json:"text"`
	ElementType ElementType            `json:"element_type"`
	PageNumber  int                    `json:"page_number"`
	Confidence  float64                `json:"confidence"`
	BBox        BoundingBox            `json:"bbox"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// TableCell is one cell of a detected table grid.
type TableCell struct {
	Row        int         `json:"row"`
	Col        int         `json:"col"`
	Text       string      `json:"text"`
	BBox       BoundingBox `json:"bbox"`
	Confidence float64     `json:"confidence"`
}

// DetectionMethod tags which table strategy produced a geometry.
type DetectionMethod string

const (
	DetectLine    DetectionMethod = "line"
	DetectContour DetectionMethod = "contour"
	DetectEdge    DetectionMethod = "edge"
)

// SpatialTable is a table recovered from page geometry. Rows are ordered top to
// bottom and cells left to right.
type SpatialTable struct {
	PageNumber      int               `json:"page_number"`
	BBox            BoundingBox       `json:"bbox"`
	Rows            [][]TableCell     `json:"rows"`
	Confidence      float64           `json:"confidence"`
	DetectionMethod DetectionMethod   `json:"detection_method"`
	Strategies      []DetectionMethod `json:"strategies"`
}

// RowCount returns the number of rows.
func (t SpatialTable) RowCount() int { return len(t.Rows) }

// ColCount returns the number of columns in the widest row.
func (t SpatialTable) ColCount() int {
	n := 0
	for _, r := range t.Rows {
		if len(r) > n {
			n = len(r)
		}
	}
	return n
}

// Text renders the table as pipe-separated lines.
func (t SpatialTable) Text() string {
	lines := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = c.Text
		}
		lines = append(lines, strings.Join(cells, " | "))
	}
	return strings.Join(lines, "\n")
}

// PatternMatch is one structured value found by a pattern rule.
type PatternMatch struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
	Position   int     `json:"position"`
	Context    string  `json:"context,omitempty"`
}

// DocumentType is the closed set of classifier outputs.
type DocumentType string

const (
	DocStructuralNotes      DocumentType = "STRUCTURAL_NOTES"
	DocSpecification        DocumentType = "SPECIFICATION"
	DocCalculationPackage   DocumentType = "CALCULATION_PACKAGE"
	DocShopDrawing          DocumentType = "SHOP_DRAWING"
	DocArchitecturalDrawing DocumentType = "ARCHITECTURAL_DRAWING"
	DocUnknown              DocumentType = "UNKNOWN"
)

// DocumentTypes lists every classifier output.
var DocumentTypes = []DocumentType{
	DocStructuralNotes,
	DocSpecification,
	DocCalculationPackage,
	DocShopDrawing,
	DocArchitecturalDrawing,
	DocUnknown,
}

// Valid reports whether d is one of DocumentTypes.
func (d DocumentType) Valid() bool {
	for _, t := range DocumentTypes {
		if d == t {
			return true
		}
	}
	return false
}

// EngineAttempt records a recovered engine failure.
type EngineAttempt struct {
	Engine     string `json:"engine"`
	Kind       string `json:"kind"`
	Attempts   int    `json:"attempts"`
	PageNumber int    `json:"page_number"`
	Error      string `json:"error,omitempty"`
}

// StageWarning records a stage that produced partial output.
type StageWarning struct {
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// ProcessingMetrics is the write-once summary computed when the pipeline completes.
type ProcessingMetrics struct {
	TotalElements          int                `json:"total_elements"`
	AvgConfidence          float64            `json:"avg_confidence"`
	ProcessingTime         float64            `json:"processing_time"`
	MemoryUsage            uint64             `json:"memory_usage"`
	HighConfidenceElements int                `json:"high_confidence_elements"`
	OCREngineUsed          string             `json:"ocr_engine_used"`
	EnginesUsed            map[string]int     `json:"engines_used,omitempty"`
	EngineAttempts         []EngineAttempt    `json:"engine_attempts"`
	Degraded               bool               `json:"degraded"`
	DegradedStages         []StageWarning     `json:"degraded_stages"`
	StageTimings           map[string]float64 `json:"stage_timings"`
	Coverage               float64            `json:"coverage"`
	PagesOCR               int                `json:"pages_ocr"`
	TablesDetected         int                `json:"tables_detected"`
	CategoryConfidence     map[string]float64 `json:"category_confidence,omitempty"`
}

// HighConfidenceCutoff is the element confidence counted as high.
const HighConfidenceCutoff = 0.8

// PageResult summarizes one page of a document.
type PageResult struct {
	PageNumber         int                       `json:"page_number"`
	ExtractedText      string                    `json:"extracted_text"`
	ElementCount       int                       `json:"element_count"`
	TextElements       int                       `json:"text_elements"`
	TableElements      int                       `json:"table_elements"`
	ConfidenceAvg      float64                   `json:"confidence_avg"`
	MatchedKeywords    []string                  `json:"matched_keywords"`
	FallbackExtraction bool                      `json:"fallback_extraction"`
	Coverage           float64                   `json:"coverage"`
	StructuredData     map[string][]PatternMatch `json:"structured_data,omitempty"`
}

// KeywordFilter is the outcome of keyword-filtered extraction.
type KeywordFilter struct {
	Keywords           []string     `json:"keywords"`
	MatchingPages      []PageResult `json:"matching_pages"`
	TotalMatchingPages int          `json:"total_matching_pages"`
	KeywordsFound      []string     `json:"keywords_found"`
	FallbackUsed       bool         `json:"fallback_used"`
	Summary            PageSummary  `json:"summary"`
}

// PageSummary reports keyword hit rates across the document.
type PageSummary struct {
	TotalPages             int     `json:"total_pages"`
	PagesWithKeywords      int     `json:"pages_with_keywords"`
	PercentageWithKeywords float64 `json:"percentage_with_keywords"`
	ExtractionMethod       string  `json:"extraction_method"`
}

// Extraction methods reported in PageSummary.
const (
	MethodKeywordFilter    = "keyword_filter"
	MethodFullTextFallback = "full_text_fallback"
)

// ExtractionResult is the structured output for one document. It is built by the
// processor and must not be modified after it is returned.
type ExtractionResult struct {
	DocumentID               string                    `json:"document_id"`
	Filename                 string                    `json:"filename"`
	TotalPages               int                       `json:"total_pages"`
	ExtractedText            string                    `json:"extracted_text"`
	StructuredData           map[string][]PatternMatch `json:"structured_data"`
	Tables                   []SpatialTable            `json:"tables"`
	Elements                 []ExtractedElement        `json:"elements"`
	Confidence               float64                   `json:"confidence"`
	Metrics                  ProcessingMetrics         `json:"processing_metrics"`
	DocumentType             DocumentType              `json:"document_type"`
	ClassificationConfidence float64                   `json:"classification_confidence"`
	ProcessingMethod         string                    `json:"processing_method"`
	Pages                    []PageResult              `json:"pages"`
	KeywordFilter            *KeywordFilter            `json:"keyword_filter,omitempty"`
	Warnings                 []string                  `json:"warnings"`
	ProcessedAt              time.Time                 `json:"processed_at"`
}
