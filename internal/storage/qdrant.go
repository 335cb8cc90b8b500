/**
 * Qdrant Vector Database Client for clark
 *
 * Stores one point per document page (page text embedding plus result metadata)
 * over Qdrant's native gRPC API.
 */

package storage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ArmanBehnam/clark/internal/logging"
)

// pointNamespace derives stable point IDs so re-indexing a document overwrites it.
var pointNamespace = uuid.MustParse("6f1c2a52-8d3e-4c1b-9a57-3f0e2d9b7c41")

// QdrantClient handles vector database operations.
type QdrantClient struct {
	points      qdrant.PointsClient
	collections qdrant.CollectionsClient
	conn        *grpc.ClientConn
	collection  string
	dimensions  uint64
	logger      *logging.Logger
}

// VectorPoint is a vector with its payload.
type VectorPoint struct {
	ID       string
	Vector   []float32
	Metadata map[string]interface{}
	Score    float32
}

// PointID returns the stable point ID of one document page.
func PointID(documentID string, page int) string {
	return uuid.NewSHA1(pointNamespace, []byte(documentID+"#"+strconv.Itoa(page))).String()
}

// NewQdrantClient connects and makes sure the collection exists.
func NewQdrantClient(ctx context.Context, address, collection string, dimensions int) (*QdrantClient, error) {
	if address == "" {
		return nil, fmt.Errorf("qdrant address is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}

	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	qc := &QdrantClient{
		points:      qdrant.NewPointsClient(conn),
		collections: qdrant.NewCollectionsClient(conn),
		conn:        conn,
		collection:  collection,
		dimensions:  uint64(dimensions),
		logger:      logging.NewLogger("Qdrant"),
	}
	if err := qc.ensureCollection(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}
	return qc, nil
}

func (q *QdrantClient) ensureCollection(ctx context.Context) error {
	list, err := q.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, c := range list.Collections {
		if c.Name == q.collection {
			return nil
		}
	}

	_, err = q.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     q.dimensions,
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	q.logger.Info("Collection created", "collection", q.collection, "dimensions", q.dimensions)
	return nil
}

// Upsert stores or replaces points.
func (q *QdrantClient) Upsert(ctx context.Context, points []*VectorPoint) error {
	if len(points) == 0 {
		return nil
	}
	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		if uint64(len(p.Vector)) != q.dimensions {
			return fmt.Errorf("invalid vector dimensions: expected %d, got %d", q.dimensions, len(p.Vector))
		}
		id := p.ID
		if id == "" {
			id = uuid.NewString()
		}
		structs = append(structs, &qdrant.PointStruct{
			Id: &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}},
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: p.Vector}},
			},
			Payload: toPayload(p.Metadata),
		})
	}

	wait := true
	_, err := q.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d points: %w", len(structs), err)
	}
	return nil
}

// Search returns the nearest points, optionally restricted to one payload value.
func (q *QdrantClient) Search(ctx context.Context, vector []float32, limit int, field, value string) ([]*VectorPoint, error) {
	if uint64(len(vector)) != q.dimensions {
		return nil, fmt.Errorf("invalid query vector dimensions: expected %d, got %d", q.dimensions, len(vector))
	}
	if limit <= 0 {
		limit = 10
	}
	req := &qdrant.SearchPoints{
		CollectionName: q.collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
		},
	}
	if field != "" && value != "" {
		req.Filter = matchFilter(field, value)
	}

	res, err := q.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}
	out := make([]*VectorPoint, 0, len(res.Result))
	for _, r := range res.Result {
		p := &VectorPoint{Metadata: fromPayload(r.Payload), Score: r.Score}
		if r.Id != nil {
			p.ID = r.Id.GetUuid()
		}
		out = append(out, p)
	}
	return out, nil
}

// DeleteByField removes every point whose payload field equals value.
func (q *QdrantClient) DeleteByField(ctx context.Context, field, value string) error {
	_, err := q.points.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: matchFilter(field, value)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete points (%s=%s): %w", field, value, err)
	}
	return nil
}

// CollectionInfo returns collection statistics.
func (q *QdrantClient) CollectionInfo(ctx context.Context) (map[string]interface{}, error) {
	info, err := q.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: q.collection})
	if err != nil {
		return nil, fmt.Errorf("failed to get collection info: %w", err)
	}
	return map[string]interface{}{
		"collection_name": q.collection,
		"vectors_count":   info.Result.GetVectorsCount(),
		"points_count":    info.Result.GetPointsCount(),
		"indexed_vectors": info.Result.GetIndexedVectorsCount(),
		"status":          info.Result.GetStatus().String(),
	}, nil
}

// Close closes the connection.
func (q *QdrantClient) Close() error {
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

func matchFilter(field, value string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   field,
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
				},
			},
		}},
	}
}

func toValue(v interface{}) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	case []string:
		list := &qdrant.ListValue{Values: make([]*qdrant.Value, len(val))}
		for i, s := range val {
			list.Values[i] = toValue(s)
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: list}}
	default:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
	}
}

func toPayload(m map[string]interface{}) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(m))
	for k, v := range m {
		payload[k] = toValue(v)
	}
	return payload
}

func fromValue(v *qdrant.Value) interface{} {
	switch val := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_ListValue:
		out := make([]interface{}, 0, len(val.ListValue.GetValues()))
		for _, item := range val.ListValue.GetValues() {
			out = append(out, fromValue(item))
		}
		return out
	default:
		return nil
	}
}

func fromPayload(p map[string]*qdrant.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(p))
	for k, v := range p {
		out[k] = fromValue(v)
	}
	return out
}
