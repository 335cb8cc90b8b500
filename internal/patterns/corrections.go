package patterns

import (
	"context"
	"sync"
	"time"

	"github.com/ArmanBehnam/clark/internal/model"
)

// CorrectionRecorder receives human corrections of extracted values. It is an
// extension point only: recorded corrections do not change rule weights.
type CorrectionRecorder interface {
	RecordCorrection(ctx context.Context, element model.ExtractedElement, correctedValue string) error
}

// Correction is one recorded correction.
type Correction struct {
	Element        model.ExtractedElement `json:"element"`
	CorrectedValue string                 `json:"corrected_value"`
	RecordedAt     time.Time              `json:"recorded_at"`
}

// MemoryRecorder is an append-only in-process correction log.
type MemoryRecorder struct {
	mu          sync.Mutex
	corrections []Correction
}

// NewMemoryRecorder creates an empty log.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// RecordCorrection appends a correction.
func (m *MemoryRecorder) RecordCorrection(ctx context.Context, element model.ExtractedElement, correctedValue string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.corrections = append(m.corrections, Correction{
		Element:        element,
		CorrectedValue: correctedValue,
		RecordedAt:     time.Now().UTC(),
	})
	return nil
}

// Corrections returns a copy of the log.
func (m *MemoryRecorder) Corrections() []Correction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Correction(nil), m.corrections...)
}
