/**
 * Export - versioned output contract
 *
 * Results leave the pipeline as a Document: the public JSON contract, validated
 * against the embedded schema before it is written anywhere.
 */

package export

import (
	"time"

	"github.com/ArmanBehnam/clark/internal/model"
)

// SchemaVersion is the version of the output contract.
const SchemaVersion = "1.0"

// DocumentInfo is the header of an exported result.
type DocumentInfo struct {
	DocumentID               string             `json:"document_id"`
	Filename                 string             `json:"filename"`
	TotalPages               int                `json:"total_pages"`
	Confidence               float64            `json:"confidence"`
	DocumentType             model.DocumentType `json:"document_type"`
	ClassificationConfidence float64            `json:"classification_confidence"`
	ProcessingMethod         string             `json:"processing_method"`
	ProcessedAt              time.Time          `json:"processed_at"`
}

// Match is an exported pattern match.
type Match struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// Document is the exported form of an ExtractionResult.
type Document struct {
	SchemaVersion     string                   `json:"schema_version"`
	DocumentInfo      DocumentInfo             `json:"document_info"`
	ExtractedText     string                   `json:"extracted_text"`
	StructuredData    map[string][]Match       `json:"structured_data"`
	Tables            []model.SpatialTable     `json:"tables"`
	Elements          []model.ExtractedElement `json:"elements"`
	ProcessingMetrics model.ProcessingMetrics  `json:"processing_metrics"`
	Pages             []model.PageResult       `json:"pages"`
	KeywordFilter     *model.KeywordFilter     `json:"keyword_filter,omitempty"`
	Warnings          []string                 `json:"warnings"`
}

// FromResult converts a pipeline result to the contract.
func FromResult(res *model.ExtractionResult) Document {
	doc := Document{
		SchemaVersion: SchemaVersion,
		DocumentInfo: DocumentInfo{
			DocumentID:               res.DocumentID,
			Filename:                 res.Filename,
			TotalPages:               res.TotalPages,
			Confidence:               res.Confidence,
			DocumentType:             res.DocumentType,
			ClassificationConfidence: res.ClassificationConfidence,
			ProcessingMethod:         res.ProcessingMethod,
			ProcessedAt:              res.ProcessedAt,
		},
		ExtractedText:     res.ExtractedText,
		StructuredData:    map[string][]Match{},
		Tables:            orEmpty(res.Tables),
		Elements:          orEmpty(res.Elements),
		ProcessingMetrics: res.Metrics,
		Pages:             orEmpty(res.Pages),
		KeywordFilter:     res.KeywordFilter,
		Warnings:          orEmpty(res.Warnings),
	}
	for category, ms := range res.StructuredData {
		out := make([]Match, len(ms))
		for i, m := range ms {
			out[i] = Match{Value: m.Value, Confidence: m.Confidence, Source: m.Source}
		}
		doc.StructuredData[category] = out
	}
	if doc.ProcessingMetrics.EngineAttempts == nil {
		doc.ProcessingMetrics.EngineAttempts = []model.EngineAttempt{}
	}
	if doc.ProcessingMetrics.DegradedStages == nil {
		doc.ProcessingMetrics.DegradedStages = []model.StageWarning{}
	}
	if doc.ProcessingMetrics.StageTimings == nil {
		doc.ProcessingMetrics.StageTimings = map[string]float64{}
	}
	return doc
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
