/**
 * Storage Manager for clark
 *
 * Coordinates the result sinks: PostgreSQL (result rows, job status, corrections)
 * and Qdrant (one embedding per page). A sink with no configured URL is disabled,
 * so the CLI works with no storage at all.
 */

package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/ArmanBehnam/clark/internal/clients"
	"github.com/ArmanBehnam/clark/internal/config"
	"github.com/ArmanBehnam/clark/internal/errors"
	"github.com/ArmanBehnam/clark/internal/export"
	"github.com/ArmanBehnam/clark/internal/logging"
	"github.com/ArmanBehnam/clark/internal/model"
	"github.com/ArmanBehnam/clark/internal/patterns"
)

// ResultStore is the relational side of the manager.
type ResultStore interface {
	SaveResult(ctx context.Context, res *model.ExtractionResult, fingerprint string, resultJSON []byte) error
	FindByFingerprint(ctx context.Context, fingerprint string) (string, error)
	UpdateJobStatus(ctx context.Context, update *JobUpdate) error
	RecordCorrection(ctx context.Context, element model.ExtractedElement, correctedValue string) error
	Close() error
}

// VectorStore is the vector side of the manager.
type VectorStore interface {
	Upsert(ctx context.Context, points []*VectorPoint) error
	Search(ctx context.Context, vector []float32, limit int, field, value string) ([]*VectorPoint, error)
	DeleteByField(ctx context.Context, field, value string) error
	CollectionInfo(ctx context.Context) (map[string]interface{}, error)
	Close() error
}

// QueryEmbedder embeds both documents and search queries.
type QueryEmbedder interface {
	clients.Embedder
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// StorageManager coordinates the PostgreSQL and Qdrant sinks.
type StorageManager struct {
	results  ResultStore
	vectors  VectorStore
	embedder QueryEmbedder
	logger   *logging.Logger
}

// SearchHit is one page returned by a similarity search.
type SearchHit struct {
	DocumentID   string  `json:"document_id"`
	Filename     string  `json:"filename"`
	PageNumber   int     `json:"page_number"`
	DocumentType string  `json:"document_type"`
	Score        float32 `json:"score"`
	Snippet      string  `json:"snippet"`
}

// NewStorageManager wires the given sinks. Any of them may be nil; vectors need
// an embedder to be used.
func NewStorageManager(results ResultStore, vectors VectorStore, embedder QueryEmbedder) *StorageManager {
	if embedder == nil {
		vectors = nil
	}
	return &StorageManager{
		results:  results,
		vectors:  vectors,
		embedder: embedder,
		logger:   logging.NewLogger("StorageManager"),
	}
}

// Open connects the sinks named in cfg. Empty URLs leave a sink disabled.
func Open(ctx context.Context, cfg config.StorageConfig) (*StorageManager, error) {
	cfg = cfg.Resolved()
	logger := logging.NewLogger("StorageManager")

	var results ResultStore
	if cfg.DatabaseURL != "" {
		pg, err := NewPostgresClient(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		results = pg
	}

	var (
		vectors  VectorStore
		embedder QueryEmbedder
	)
	switch {
	case cfg.QdrantURL == "":
	case cfg.VoyageAPIKey == "":
		logger.Warn("Qdrant configured without a VoyageAI key, vector sink disabled")
	default:
		emb, err := clients.NewEmbeddingClient(cfg.VoyageAPIKey)
		if err != nil {
			closeQuietly(results)
			return nil, err
		}
		qc, err := NewQdrantClient(ctx, QdrantAddress(cfg.QdrantURL), cfg.QdrantCollection, clients.EmbeddingDimensions)
		if err != nil {
			closeQuietly(results)
			return nil, fmt.Errorf("failed to initialize Qdrant client: %w", err)
		}
		vectors, embedder = qc, emb
	}

	sm := NewStorageManager(results, vectors, embedder)
	logger.Info("Storage opened", "postgres", results != nil, "qdrant", vectors != nil)
	return sm, nil
}

// QdrantAddress turns a configured Qdrant URL into a gRPC dial target. A URL
// without a port gets the gRPC default 6334.
func QdrantAddress(url string) string {
	addr := strings.TrimPrefix(strings.TrimPrefix(url, "http://"), "https://")
	addr = strings.TrimSuffix(addr, "/")
	if !strings.Contains(addr, ":") {
		addr += ":6334"
	}
	return addr
}

// Enabled reports whether any sink is configured.
func (sm *StorageManager) Enabled() bool {
	return sm.results != nil || sm.vectors != nil
}

// Corrections returns the correction sink, or nil without PostgreSQL.
func (sm *StorageManager) Corrections() patterns.CorrectionRecorder {
	if sm.results == nil {
		return nil
	}
	return sm.results
}

// StoreResult writes a finished result to every enabled sink. Vectors go first;
// if the relational write then fails the document's points are removed again.
func (sm *StorageManager) StoreResult(ctx context.Context, res *model.ExtractionResult, fingerprint string) error {
	if res == nil || res.DocumentID == "" {
		return fmt.Errorf("document ID is required")
	}

	stored, err := sm.storeVectors(ctx, res, fingerprint)
	if err != nil {
		return errors.NewStorageFailedError(res.DocumentID, err)
	}

	if sm.results != nil {
		data, err := export.MarshalJSON(res)
		if err == nil {
			err = sm.results.SaveResult(ctx, res, fingerprint, data)
		}
		if err != nil {
			if stored > 0 {
				if derr := sm.vectors.DeleteByField(ctx, "document_id", res.DocumentID); derr != nil {
					sm.logger.Error("Rollback of vector points failed", "document", res.DocumentID, "error", derr)
				}
			}
			return errors.NewStorageFailedError(res.DocumentID, err)
		}
	}

	sm.logger.Info("Result stored", "document", res.DocumentID, "points", stored)
	return nil
}

func (sm *StorageManager) storeVectors(ctx context.Context, res *model.ExtractionResult, fingerprint string) (int, error) {
	if sm.vectors == nil {
		return 0, nil
	}
	pages := embeddablePages(res)
	if len(pages) == 0 {
		return 0, nil
	}
	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.ExtractedText
	}
	vecs, err := sm.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed pages: %w", err)
	}
	points := PagePoints(res, pages, vecs, fingerprint)

	// Stale pages from an earlier run of the same document must not survive.
	if err := sm.vectors.DeleteByField(ctx, "document_id", res.DocumentID); err != nil {
		return 0, err
	}
	if err := sm.vectors.Upsert(ctx, points); err != nil {
		return 0, err
	}
	return len(points), nil
}

func embeddablePages(res *model.ExtractionResult) []model.PageResult {
	var out []model.PageResult
	for _, p := range res.Pages {
		if strings.TrimSpace(p.ExtractedText) != "" {
			out = append(out, p)
		}
	}
	return out
}

// PagePoints builds one vector point per page. vecs is parallel to pages.
func PagePoints(res *model.ExtractionResult, pages []model.PageResult, vecs [][]float32, fingerprint string) []*VectorPoint {
	points := make([]*VectorPoint, 0, len(pages))
	for i, p := range pages {
		if i >= len(vecs) {
			break
		}
		keywords := p.MatchedKeywords
		if keywords == nil {
			keywords = []string{}
		}
		points = append(points, &VectorPoint{
			ID:     PointID(res.DocumentID, p.PageNumber),
			Vector: vecs[i],
			Metadata: map[string]interface{}{
				"document_id":         res.DocumentID,
				"filename":            res.Filename,
				"fingerprint":         fingerprint,
				"page_number":         p.PageNumber,
				"document_type":       string(res.DocumentType),
				"confidence":          p.ConfidenceAvg,
				"matched_keywords":    keywords,
				"fallback_extraction": p.FallbackExtraction,
				"snippet":             snippet(p.ExtractedText, 280),
			},
		})
	}
	return points
}

// Search embeds the query and returns the most similar pages. documentType
// narrows the search when non-empty.
func (sm *StorageManager) Search(ctx context.Context, query string, limit int, documentType string) ([]SearchHit, error) {
	if sm.vectors == nil {
		return nil, fmt.Errorf("vector search is not configured")
	}
	vec, err := sm.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	points, err := sm.vectors.Search(ctx, vec, limit, "document_type", documentType)
	if err != nil {
		return nil, err
	}
	hits := make([]SearchHit, 0, len(points))
	for _, p := range points {
		hits = append(hits, hitFromPayload(p.Metadata, p.Score))
	}
	return hits, nil
}

func hitFromPayload(m map[string]interface{}, score float32) SearchHit {
	h := SearchHit{Score: score}
	h.DocumentID, _ = m["document_id"].(string)
	h.Filename, _ = m["filename"].(string)
	h.DocumentType, _ = m["document_type"].(string)
	h.Snippet, _ = m["snippet"].(string)
	switch n := m["page_number"].(type) {
	case int64:
		h.PageNumber = int(n)
	case int:
		h.PageNumber = n
	case float64:
		h.PageNumber = int(n)
	}
	return h
}

// KnownDocument returns the document ID already stored for a fingerprint, or "".
func (sm *StorageManager) KnownDocument(ctx context.Context, fingerprint string) (string, error) {
	if sm.results == nil || fingerprint == "" {
		return "", nil
	}
	id, err := sm.results.FindByFingerprint(ctx, fingerprint)
	if err == ErrNotFound {
		return "", nil
	}
	return id, err
}

// UpdateJobStatus records job progress when PostgreSQL is configured.
func (sm *StorageManager) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if sm.results == nil {
		return nil
	}
	return sm.results.UpdateJobStatus(ctx, update)
}

// GetStats returns statistics from the enabled sinks.
func (sm *StorageManager) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{}
	if pg, ok := sm.results.(*PostgresClient); ok {
		stats["postgres"] = pg.Stats()
	}
	if sm.vectors != nil {
		info, err := sm.vectors.CollectionInfo(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get Qdrant stats: %w", err)
		}
		stats["qdrant"] = info
	}
	return stats, nil
}

// Close closes all connections.
func (sm *StorageManager) Close() error {
	var pgErr, qdErr error
	if sm.results != nil {
		pgErr = sm.results.Close()
	}
	if sm.vectors != nil {
		qdErr = sm.vectors.Close()
	}
	if pgErr != nil {
		return fmt.Errorf("failed to close PostgreSQL: %w", pgErr)
	}
	if qdErr != nil {
		return fmt.Errorf("failed to close Qdrant: %w", qdErr)
	}
	return nil
}

func closeQuietly(c interface{ Close() error }) {
	if c != nil {
		c.Close()
	}
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
