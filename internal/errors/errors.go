package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Error taxonomy for the extraction pipeline
 *
 * ValidationError is the only error that is fatal for a document.
 * EngineError is recovered by retry/fallback inside the OCR orchestrator.
 * StageDegradedWarning and ClassificationUncertain are recorded, never returned.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Input errors
	ErrorValidationFailed  ErrorCode = "VALIDATION_FAILED"
	ErrorUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"

	// Processing errors
	ErrorProcessingTimeout   ErrorCode = "PROCESSING_TIMEOUT"
	ErrorProcessingCancelled ErrorCode = "PROCESSING_CANCELLED"
	ErrorOCRFailed           ErrorCode = "OCR_FAILED"
	ErrorStageDegraded       ErrorCode = "STAGE_DEGRADED"
	ErrorClassification      ErrorCode = "CLASSIFICATION_UNCERTAIN"

	// Storage errors
	ErrorStorageFailed  ErrorCode = "STORAGE_FAILED"
	ErrorDatabaseFailed ErrorCode = "DATABASE_FAILED"

	// Network errors
	ErrorAPICallFailed ErrorCode = "API_CALL_FAILED"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}
	if e.JobID != "" {
		result["job_id"] = e.JobID
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}

// ValidationError reports an unreadable or disallowed input file.
type ValidationError struct {
	Path   string
	Reason string
	Cause  error
}

func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("validation failed for %s: %s: %v", e.Path, e.Reason, e.Cause)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Path, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a ValidationError.
func NewValidationError(path, reason string, cause error) *ValidationError {
	return &ValidationError{Path: path, Reason: reason, Cause: cause}
}

// EngineErrorKind classifies engine failures for the retry policy.
type EngineErrorKind string

const (
	KindAuth             EngineErrorKind = "AUTH"
	KindRateLimit        EngineErrorKind = "RATE_LIMIT"
	KindTimeout          EngineErrorKind = "TIMEOUT"
	KindUnsupportedInput EngineErrorKind = "UNSUPPORTED_INPUT"
	KindUnknown          EngineErrorKind = "UNKNOWN"
)

// Retryable reports whether an error of this kind may succeed on a later attempt.
// UNKNOWN is retryable but the orchestrator bounds it to a single retry.
func (k EngineErrorKind) Retryable() bool {
	switch k {
	case KindRateLimit, KindTimeout, KindUnknown:
		return true
	default:
		return false
	}
}

// EngineError is a failure of one OCR engine invocation.
type EngineError struct {
	Engine     string
	Kind       EngineErrorKind
	Message    string
	Attempts   int
	RetryAfter time.Duration
	Cause      error
}

func (e *EngineError) Error() string {
	msg := fmt.Sprintf("engine %s: %s", e.Engine, e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" (caused by: %v)", e.Cause)
	}
	return msg
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// NewEngineError creates an EngineError of the given kind.
func NewEngineError(engine string, kind EngineErrorKind, message string, cause error) *EngineError {
	return &EngineError{Engine: engine, Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the engine error kind from err. Context deadline errors map to
// TIMEOUT and anything unrecognized maps to UNKNOWN.
func KindOf(err error) EngineErrorKind {
	if err == nil {
		return ""
	}
	var ee *EngineError
	if stderrors.As(err, &ee) {
		return ee.Kind
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// StageDegradedWarning records a stage that produced partial or low-confidence output.
type StageDegradedWarning struct {
	Stage  string
	Reason string
	Cause  error
}

func (w *StageDegradedWarning) Error() string {
	if w.Cause != nil {
		return fmt.Sprintf("stage %s degraded: %s: %v", w.Stage, w.Reason, w.Cause)
	}
	return fmt.Sprintf("stage %s degraded: %s", w.Stage, w.Reason)
}

func (w *StageDegradedWarning) Unwrap() error {
	return w.Cause
}

// ClassificationUncertain is raised when the top classifier score is below the minimum.
type ClassificationUncertain struct {
	Score     float64
	Threshold float64
}

func (c *ClassificationUncertain) Error() string {
	return fmt.Sprintf("classification uncertain: score %.3f below threshold %.3f", c.Score, c.Threshold)
}

// Factory functions for common errors

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewCancelledError(jobID, stage string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingCancelled,
		Message:   fmt.Sprintf("Processing cancelled before stage %s", stage),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"stage": stage,
		},
		Cause: cause,
	}
}

func NewOCRFailedError(jobID string, page int, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorOCRFailed,
		Message:   fmt.Sprintf("OCR failed on page %d", page),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"page_number": page,
		},
		Cause: cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store extraction results",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return stderrors.As(err, &ve)
}
