/**
 * PostgreSQL Client for clark
 *
 * Thin result sink: one row per processed document (the exported JSON contract as
 * JSONB), one row per queued job, and an append-only correction log.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"

	"github.com/ArmanBehnam/clark/internal/logging"
	"github.com/ArmanBehnam/clark/internal/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = stderrors.New("not found")

// PostgresClient handles database operations.
type PostgresClient struct {
	db     *sql.DB
	logger *logging.Logger
}

// JobUpdate represents a job status update.
type JobUpdate struct {
	JobID            string
	Filename         string
	Status           string
	Stage            string
	Confidence       float64
	ProcessingTimeMs int64
	DocumentID       string
	ErrorCode        string
	ErrorMessage     string
	Metadata         map[string]interface{}
}

// StoredResult is a result row.
type StoredResult struct {
	DocumentID       string
	Fingerprint      string
	Filename         string
	DocumentType     model.DocumentType
	Confidence       float64
	ProcessingMethod string
	TotalPages       int
	Degraded         bool
	Keywords         []string
	Result           json.RawMessage
	ProcessedAt      time.Time
}

const schemaDDL = `
CREATE SCHEMA IF NOT EXISTS clark;

CREATE TABLE IF NOT EXISTS clark.documents (
	id                UUID PRIMARY KEY,
	fingerprint       TEXT NOT NULL,
	filename          TEXT NOT NULL,
	document_type     TEXT NOT NULL,
	confidence        NUMERIC(5,4) NOT NULL,
	processing_method TEXT NOT NULL,
	total_pages       INTEGER NOT NULL,
	degraded          BOOLEAN NOT NULL DEFAULT FALSE,
	keywords          TEXT[] NOT NULL DEFAULT '{}',
	result            JSONB NOT NULL,
	processed_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_fingerprint_idx ON clark.documents (fingerprint);

CREATE TABLE IF NOT EXISTS clark.jobs (
	id                 TEXT PRIMARY KEY,
	filename           TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL,
	stage              TEXT,
	confidence         NUMERIC(5,4),
	processing_time_ms BIGINT,
	document_id        UUID,
	error_code         TEXT,
	error_message      TEXT,
	metadata           JSONB NOT NULL DEFAULT '{}',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS clark.corrections (
	id              BIGSERIAL PRIMARY KEY,
	document_id     TEXT,
	page_number     INTEGER NOT NULL,
	original_text   TEXT NOT NULL,
	corrected_value TEXT NOT NULL,
	element         JSONB NOT NULL,
	recorded_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// sanitizeConfidence clamps to [0,1] and rounds to the 4 places of NUMERIC(5,4).
func sanitizeConfidence(confidence float64) float64 {
	return model.Round(model.ClampConfidence(confidence), 4)
}

var (
	nullEscape    = regexp.MustCompile(`\\u0000`)
	controlEscape = regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
)

// sanitizeJSON strips escapes JSONB rejects (\u0000) and blanks other control
// characters that OCR output occasionally carries.
func sanitizeJSON(data []byte) []byte {
	data = nullEscape.ReplaceAll(data, nil)
	return controlEscape.ReplaceAllFunc(data, func(m []byte) []byte {
		switch string(m[len(m)-2:]) {
		case "09", "0a", "0A", "0d", "0D":
			return m
		}
		return []byte(" ")
	})
}

// NewPostgresClient opens and pings the database.
func NewPostgresClient(ctx context.Context, databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db, logger: logging.NewLogger("Postgres")}, nil
}

// EnsureSchema creates the clark schema and tables when missing.
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveResult upserts a document row. resultJSON is the exported contract.
func (p *PostgresClient) SaveResult(ctx context.Context, res *model.ExtractionResult, fingerprint string, resultJSON []byte) error {
	if res == nil || res.DocumentID == "" {
		return fmt.Errorf("document ID is required")
	}
	var keywords []string
	if res.KeywordFilter != nil {
		keywords = res.KeywordFilter.KeywordsFound
	}
	if keywords == nil {
		keywords = []string{}
	}

	query := `
		INSERT INTO clark.documents (
			id, fingerprint, filename, document_type, confidence,
			processing_method, total_pages, degraded, keywords, result, processed_at
		) VALUES ($1::uuid, $2, $3, $4, $5::NUMERIC(5,4), $6, $7, $8, $9, $10::jsonb, $11)
		ON CONFLICT (id) DO UPDATE SET
			fingerprint = EXCLUDED.fingerprint,
			document_type = EXCLUDED.document_type,
			confidence = EXCLUDED.confidence,
			processing_method = EXCLUDED.processing_method,
			degraded = EXCLUDED.degraded,
			keywords = EXCLUDED.keywords,
			result = EXCLUDED.result,
			processed_at = EXCLUDED.processed_at
	`
	_, err := p.db.ExecContext(ctx, query,
		res.DocumentID,
		fingerprint,
		res.Filename,
		string(res.DocumentType),
		sanitizeConfidence(res.Confidence),
		res.ProcessingMethod,
		res.TotalPages,
		res.Metrics.Degraded,
		pq.Array(keywords),
		sanitizeJSON(resultJSON),
		res.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store result (document=%s): %w", res.DocumentID, err)
	}
	p.logger.Debug("Result stored", "document", res.DocumentID, "type", res.DocumentType)
	return nil
}

// GetResult loads a document row.
func (p *PostgresClient) GetResult(ctx context.Context, documentID string) (*StoredResult, error) {
	query := `
		SELECT id, fingerprint, filename, document_type, confidence,
		       processing_method, total_pages, degraded, keywords, result, processed_at
		FROM clark.documents
		WHERE id = $1::uuid
	`
	var (
		r        StoredResult
		docType  string
		keywords pq.StringArray
		raw      []byte
	)
	err := p.db.QueryRowContext(ctx, query, documentID).Scan(
		&r.DocumentID, &r.Fingerprint, &r.Filename, &docType, &r.Confidence,
		&r.ProcessingMethod, &r.TotalPages, &r.Degraded, &keywords, &raw, &r.ProcessedAt,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	r.DocumentType = model.DocumentType(docType)
	r.Keywords = keywords
	r.Result = raw
	return &r, nil
}

// FindByFingerprint returns the newest document ID stored for a file hash.
func (p *PostgresClient) FindByFingerprint(ctx context.Context, fingerprint string) (string, error) {
	var id string
	err := p.db.QueryRowContext(ctx,
		`SELECT id FROM clark.documents WHERE fingerprint = $1 ORDER BY processed_at DESC LIMIT 1`,
		fingerprint,
	).Scan(&id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up fingerprint: %w", err)
	}
	return id, nil
}

// UpdateJobStatus upserts a job row. Zero values leave the stored column as is.
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if update.Status == "" {
		return fmt.Errorf("status is required")
	}
	metadata := update.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO clark.jobs (
			id, filename, status, stage, confidence, processing_time_ms,
			document_id, error_code, error_message, metadata, created_at, updated_at
		) VALUES (
			$1, $2, $3, NULLIF($4, ''), NULLIF($5::NUMERIC(5,4), 0), NULLIF($6, 0),
			CASE WHEN $7 = '' THEN NULL ELSE $7::uuid END,
			NULLIF($8, ''), NULLIF($9, ''), $10::jsonb, NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			filename = CASE WHEN EXCLUDED.filename = '' THEN clark.jobs.filename ELSE EXCLUDED.filename END,
			stage = COALESCE(EXCLUDED.stage, clark.jobs.stage),
			confidence = COALESCE(EXCLUDED.confidence, clark.jobs.confidence),
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, clark.jobs.processing_time_ms),
			document_id = COALESCE(EXCLUDED.document_id, clark.jobs.document_id),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			metadata = clark.jobs.metadata || EXCLUDED.metadata,
			updated_at = NOW()
	`
	_, err = p.db.ExecContext(ctx, query,
		update.JobID,
		update.Filename,
		update.Status,
		update.Stage,
		sanitizeConfidence(update.Confidence),
		update.ProcessingTimeMs,
		update.DocumentID,
		update.ErrorCode,
		update.ErrorMessage,
		sanitizeJSON(metadataJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w", update.JobID, update.Status, err)
	}
	return nil
}

// RecordCorrection appends to the correction log. The document is taken from the
// element's document_id metadata when present.
func (p *PostgresClient) RecordCorrection(ctx context.Context, element model.ExtractedElement, correctedValue string) error {
	elementJSON, err := json.Marshal(element)
	if err != nil {
		return fmt.Errorf("failed to marshal element: %w", err)
	}
	var docID sql.NullString
	if id, ok := element.Metadata["document_id"].(string); ok && id != "" {
		docID = sql.NullString{String: id, Valid: true}
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO clark.corrections (document_id, page_number, original_text, corrected_value, element)
		VALUES ($1, $2, $3, $4, $5::jsonb)
	`, docID, element.PageNumber, element.Text, correctedValue, sanitizeJSON(elementJSON))
	if err != nil {
		return fmt.Errorf("failed to record correction: %w", err)
	}
	return nil
}

// Stats returns connection pool statistics.
func (p *PostgresClient) Stats() map[string]interface{} {
	s := p.db.Stats()
	return map[string]interface{}{
		"max_open_connections": s.MaxOpenConnections,
		"open_connections":     s.OpenConnections,
		"in_use":               s.InUse,
		"idle":                 s.Idle,
		"wait_count":           s.WaitCount,
		"wait_duration":        s.WaitDuration.String(),
	}
}

// Ping checks the connection.
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database.
func (p *PostgresClient) Close() error {
	return p.db.Close()
}
