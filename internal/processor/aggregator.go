package processor

import (
	"sync"
	"sync/atomic"

	"github.com/ArmanBehnam/clark/internal/model"
)

// Aggregator accumulates counters across documents. Safe for concurrent use.
type Aggregator struct {
	documents atomic.Int64
	failed    atomic.Int64
	degraded  atomic.Int64
	elements  atomic.Int64
	tables    atomic.Int64
	pagesOCR  atomic.Int64

	mu         sync.Mutex
	engines    map[string]int64
	types      map[model.DocumentType]int64
	confidence float64
	seconds    float64
}

// Snapshot is a point-in-time copy of the aggregated counters.
type Snapshot struct {
	Documents         int64                        `json:"documents"`
	Failed            int64                        `json:"failed"`
	Degraded          int64                        `json:"degraded"`
	Elements          int64                        `json:"elements"`
	Tables            int64                        `json:"tables"`
	PagesOCR          int64                        `json:"pages_ocr"`
	AvgConfidence     float64                      `json:"avg_confidence"`
	AvgProcessingTime float64                      `json:"avg_processing_time"`
	EnginesUsed       map[string]int64             `json:"engines_used"`
	DocumentTypes     map[model.DocumentType]int64 `json:"document_types"`
}

// NewAggregator creates an empty accumulator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		engines: map[string]int64{},
		types:   map[model.DocumentType]int64{},
	}
}

// Record adds a completed document.
func (a *Aggregator) Record(res *model.ExtractionResult) {
	if res == nil {
		return
	}
	a.documents.Add(1)
	if res.Metrics.Degraded {
		a.degraded.Add(1)
	}
	a.elements.Add(int64(res.Metrics.TotalElements))
	a.tables.Add(int64(res.Metrics.TablesDetected))
	a.pagesOCR.Add(int64(res.Metrics.PagesOCR))

	a.mu.Lock()
	defer a.mu.Unlock()
	for name, n := range res.Metrics.EnginesUsed {
		a.engines[name] += int64(n)
	}
	a.types[res.DocumentType]++
	a.confidence += res.Confidence
	a.seconds += res.Metrics.ProcessingTime
}

// RecordFailure counts a document rejected before processing.
func (a *Aggregator) RecordFailure() {
	a.failed.Add(1)
}

// Snapshot returns the current totals.
func (a *Aggregator) Snapshot() Snapshot {
	s := Snapshot{
		Documents:     a.documents.Load(),
		Failed:        a.failed.Load(),
		Degraded:      a.degraded.Load(),
		Elements:      a.elements.Load(),
		Tables:        a.tables.Load(),
		PagesOCR:      a.pagesOCR.Load(),
		EnginesUsed:   map[string]int64{},
		DocumentTypes: map[model.DocumentType]int64{},
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for k, v := range a.engines {
		s.EnginesUsed[k] = v
	}
	for k, v := range a.types {
		s.DocumentTypes[k] = v
	}
	// the type tally is updated under the same lock as the sums
	var n int64
	for _, v := range a.types {
		n += v
	}
	if n > 0 {
		s.AvgConfidence = model.Round(a.confidence/float64(n), 3)
		s.AvgProcessingTime = model.Round(a.seconds/float64(n), 3)
	}
	return s
}
