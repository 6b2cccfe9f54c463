package corrections

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/faxd/internal/fields"
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

var chromemTracer = otel.Tracer("faxd.corrections.chromem")

// retryDelay is the pause before the single retry of a failed store or
// query operation.
const retryDelay = 200 * time.Millisecond

// ChromemConfig holds configuration for the embedded chromem-go backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Its contents (gob
	// index plus journal) are a complete representation of all records.
	// Default: "~/.config/faxd/corrections"
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collection is the chromem collection name.
	// Default: "corrections"
	Collection string
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/faxd/corrections"
	}
	if c.Collection == "" {
		c.Collection = "corrections"
	}
}

// ChromemStore implements Store using chromem-go, an embeddable vector
// database with persistence to gob files. No external service is needed;
// the store directory is restorable by reopening it after a restart.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	journal    *journal
	embedder   Embedder
	config     ChromemConfig
	logger     *zap.Logger

	// writeMu serializes writes. Reads run concurrently.
	writeMu sync.Mutex
}

// NewChromemStore opens (or creates) the persistent store at the
// configured path. A directory that exists but cannot be decoded is a
// corrupt index and is surfaced to the caller rather than ignored.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	path, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: opening index at %s: %v", ErrStorage, path, err)
	}

	s := &ChromemStore{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}

	s.collection, err = db.GetOrCreateCollection(config.Collection, nil, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("%w: opening collection %s: %v", ErrStorage, config.Collection, err)
	}

	s.journal, err = openJournal(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if err := s.reconcile(context.Background()); err != nil {
		return nil, err
	}

	logger.Info("correction store opened",
		zap.String("backend", "chromem"),
		zap.String("path", path),
		zap.String("collection", config.Collection),
		zap.Int("records", s.collection.Count()),
	)

	return s, nil
}

// expandPath expands ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// recordDocument converts a journal record to its chromem document.
func recordDocument(rec Record) chromem.Document {
	return chromem.Document{
		ID:      rec.ID,
		Content: rec.Excerpt,
		Metadata: map[string]string{
			"field":      string(rec.Field),
			"value":      rec.Value,
			"created_at": rec.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}

// reconcile re-adds journal records missing from the index. A crash or a
// failed index write after a successful journal append leaves such a
// record; the journal is the source of truth, so the index catches up
// here.
func (s *ChromemStore) reconcile(ctx context.Context) error {
	records, err := s.journal.snapshot()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	for _, rec := range records {
		if _, err := s.collection.GetByID(ctx, rec.ID); err == nil {
			continue
		}
		if err := s.collection.AddDocuments(ctx, []chromem.Document{recordDocument(rec)}, 1); err != nil {
			return fmt.Errorf("%w: restoring correction %s: %v", ErrStorage, rec.ID, err)
		}
		s.logger.Info("restored correction missing from index",
			zap.String("id", rec.ID),
			zap.String("field", string(rec.Field)),
		)
	}
	return nil
}

// embeddingFunc adapts the Embedder interface to chromem.
func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// withRetry runs fn, retrying exactly once after a short delay on
// transient failure.
func (s *ChromemStore) withRetry(ctx context.Context, op string, fn func() error) error {
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

// StoreCorrection embeds the excerpt and persists the correction.
func (s *ChromemStore) StoreCorrection(ctx context.Context, excerpt string, field fields.Field, value string) (string, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.StoreCorrection")
	defer span.End()
	span.SetAttributes(attribute.String("field", string(field)))

	if err := validateWrite(excerpt, field); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	rec := Record{
		ID:        uuid.NewString(),
		Excerpt:   excerpt,
		Field:     field,
		Value:     value,
		CreatedAt: timeNow().UTC(),
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// Journal first. An index entry without a journal record would be
	// invisible to ListAll with no way to recover it, while a journaled
	// record missing from the index is re-added on the next open.
	if err := s.journal.append(rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}

	err := s.withRetry(ctx, "add", func() error {
		return s.collection.AddDocuments(ctx, []chromem.Document{recordDocument(rec)}, 1)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: adding correction: %v", ErrStorage, err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("stored correction",
		zap.String("id", rec.ID),
		zap.String("field", string(field)),
	)
	return rec.ID, nil
}

// FindSimilar answers a nearest-neighbor query scoped to one field.
func (s *ChromemStore) FindSimilar(ctx context.Context, excerpt string, field fields.Field, topK int, minSimilarity float64) ([]Match, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.FindSimilar")
	defer span.End()
	span.SetAttributes(
		attribute.String("field", string(field)),
		attribute.Int("top_k", topK),
	)

	if err := validateQuery(excerpt, field, topK, minSimilarity); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}

	// chromem rejects nResults larger than the candidate set, so rank
	// over all records and scope by field here. Correction stores are
	// small; chromem's search is brute-force either way.
	var results []chromem.Result
	err := s.withRetry(ctx, "query", func() error {
		var qErr error
		results, qErr = s.collection.Query(ctx, excerpt, count, nil, nil)
		return qErr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: querying corrections: %v", ErrStorage, err)
	}

	matches := make([]Match, 0, topK)
	for _, r := range results {
		if r.Metadata["field"] != string(field) {
			continue
		}
		if float64(r.Similarity) < minSimilarity {
			continue
		}
		createdAt, err := time.Parse(time.RFC3339Nano, r.Metadata["created_at"])
		if err != nil {
			return nil, fmt.Errorf("%w: corrupt record %s: %v", ErrStorage, r.ID, err)
		}
		matches = append(matches, Match{
			Record: Record{
				ID:        r.ID,
				Excerpt:   r.Content,
				Field:     field,
				Value:     r.Metadata["value"],
				CreatedAt: createdAt,
			},
			Similarity: float64(r.Similarity),
		})
	}

	// Descending similarity; equally similar records prefer the newer
	// correction since it reflects the latest human judgment.
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Record.CreatedAt.After(matches[j].Record.CreatedAt)
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}

	span.SetAttributes(attribute.Int("matches", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// ListAll returns a fresh snapshot of every stored correction.
func (s *ChromemStore) ListAll(ctx context.Context) ([]Record, error) {
	records, err := s.journal.snapshot()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return records, nil
}

// Close closes the store. chromem persists on write, so there is nothing
// to flush.
func (s *ChromemStore) Close() error {
	s.logger.Info("correction store closed")
	return nil
}

// Ensure ChromemStore implements Store.
var _ Store = (*ChromemStore)(nil)
