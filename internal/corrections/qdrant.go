package corrections

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/fyrsmithlabs/faxd/internal/fields"
)

var qdrantTracer = otel.Tracer("faxd.corrections.qdrant")

// listPageSize bounds how many records ListAll fetches from Qdrant in one
// scroll request. Correction stores hold hundreds of records, not millions.
const listPageSize = 10000

// QdrantConfig holds configuration for the Qdrant-backed store.
type QdrantConfig struct {
	// Host is the Qdrant server host. Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port. Default: 6334
	Port int

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// Collection is the collection name. Default: "corrections"
	Collection string

	// VectorSize is the embedding dimension. Must match the embedder.
	// Default: 1536 (text-embedding-3-small)
	VectorSize int

	// MaxMessageSize is the gRPC message size limit in bytes.
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "corrections"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 1536
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 32 * 1024 * 1024
	}
}

// QdrantStore implements Store against an external Qdrant server. It is
// the backend for deployments where several faxd instances share one
// correction history; the embedded chromem backend is the default.
type QdrantStore struct {
	client   *qdrant.Client
	embedder Embedder
	config   QdrantConfig
	logger   *zap.Logger

	writeMu sync.Mutex
}

// NewQdrantStore connects to Qdrant and ensures the corrections
// collection exists.
func NewQdrantStore(config QdrantConfig, embedder Embedder, logger *zap.Logger) (*QdrantStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to qdrant: %v", ErrStorage, err)
	}

	s := &QdrantStore{
		client:   client,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("correction store opened",
		zap.String("backend", "qdrant"),
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.Collection),
	)

	return s, nil
}

// ensureCollection creates the corrections collection if missing.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return fmt.Errorf("%w: checking collection: %v", ErrStorage, err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.config.VectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: creating collection: %v", ErrStorage, err)
	}
	return nil
}

// withRetry runs fn, retrying exactly once after a short delay on
// transient failure.
func (s *QdrantStore) withRetry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err == nil || ctx.Err() != nil {
		return err
	}
	s.logger.Warn("correction store operation failed, retrying once",
		zap.String("op", op),
		zap.Error(err),
	)
	select {
	case <-time.After(retryDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return fn()
}

// StoreCorrection embeds the excerpt and upserts the correction point.
func (s *QdrantStore) StoreCorrection(ctx context.Context, excerpt string, field fields.Field, value string) (string, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.StoreCorrection")
	defer span.End()
	span.SetAttributes(attribute.String("field", string(field)))

	if err := validateWrite(excerpt, field); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	vector, err := s.embedder.EmbedQuery(ctx, excerpt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: embedding excerpt: %v", ErrStorage, err)
	}

	id := uuid.NewString()
	createdAt := timeNow().UTC()

	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(id),
		Vectors: qdrant.NewVectors(vector...),
		Payload: map[string]*qdrant.Value{
			"excerpt":    {Kind: &qdrant.Value_StringValue{StringValue: excerpt}},
			"field":      {Kind: &qdrant.Value_StringValue{StringValue: string(field)}},
			"value":      {Kind: &qdrant.Value_StringValue{StringValue: value}},
			"created_at": {Kind: &qdrant.Value_StringValue{StringValue: createdAt.Format(time.RFC3339Nano)}},
		},
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err = s.withRetry(ctx, "upsert", func() error {
		_, upsertErr := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.Collection,
			Points:         []*qdrant.PointStruct{point},
		})
		return upsertErr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: upserting correction: %v", ErrStorage, err)
	}

	span.SetStatus(codes.Ok, "success")
	return id, nil
}

// FindSimilar answers a nearest-neighbor query scoped to one field.
func (s *QdrantStore) FindSimilar(ctx context.Context, excerpt string, field fields.Field, topK int, minSimilarity float64) ([]Match, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.FindSimilar")
	defer span.End()
	span.SetAttributes(
		attribute.String("field", string(field)),
		attribute.Int("top_k", topK),
	)

	if err := validateQuery(excerpt, field, topK, minSimilarity); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	vector, err := s.embedder.EmbedQuery(ctx, excerpt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: embedding excerpt: %v", ErrStorage, err)
	}

	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: "field",
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keyword{Keyword: string(field)},
						},
					},
				},
			},
		},
	}

	var points []*qdrant.ScoredPoint
	err = s.withRetry(ctx, "query", func() error {
		res, qErr := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.Collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(topK)),
			ScoreThreshold: qdrant.PtrOf(float32(minSimilarity)),
			Filter:         filter,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if qErr != nil {
			return qErr
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: querying corrections: %v", ErrStorage, err)
	}

	matches := make([]Match, 0, len(points))
	for _, p := range points {
		rec, err := recordFromPayload(p.Id, p.Payload, field)
		if err != nil {
			return nil, err
		}
		if float64(p.Score) < minSimilarity {
			continue
		}
		matches = append(matches, Match{Record: rec, Similarity: float64(p.Score)})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Record.CreatedAt.After(matches[j].Record.CreatedAt)
	})

	span.SetAttributes(attribute.Int("matches", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// ListAll returns a snapshot of every stored correction.
func (s *QdrantStore) ListAll(ctx context.Context) ([]Record, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.ListAll")
	defer span.End()

	var points []*qdrant.RetrievedPoint
	err := s.withRetry(ctx, "scroll", func() error {
		res, sErr := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.config.Collection,
			Limit:          qdrant.PtrOf(uint32(listPageSize)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if sErr != nil {
			return sErr
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: listing corrections: %v", ErrStorage, err)
	}

	records := make([]Record, 0, len(points))
	for _, p := range points {
		rec, err := recordFromPayload(p.Id, p.Payload, "")
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	span.SetStatus(codes.Ok, "success")
	return records, nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// recordFromPayload rebuilds a Record from a Qdrant payload. When field is
// empty the payload's own field tag is used.
func recordFromPayload(id *qdrant.PointId, payload map[string]*qdrant.Value, field fields.Field) (Record, error) {
	get := func(key string) string {
		if v, ok := payload[key]; ok {
			if sv, ok := v.Kind.(*qdrant.Value_StringValue); ok {
				return sv.StringValue
			}
		}
		return ""
	}

	if field == "" {
		field = fields.Field(get("field"))
	}

	createdAt, err := time.Parse(time.RFC3339Nano, get("created_at"))
	if err != nil {
		return Record{}, fmt.Errorf("%w: corrupt record payload: %v", ErrStorage, err)
	}

	return Record{
		ID:        id.GetUuid(),
		Excerpt:   get("excerpt"),
		Field:     field,
		Value:     get("value"),
		CreatedAt: createdAt,
	}, nil
}

// Ensure QdrantStore implements Store.
var _ Store = (*QdrantStore)(nil)
