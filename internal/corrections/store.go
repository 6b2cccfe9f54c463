// Package corrections persists human field corrections and answers
// nearest-neighbor similarity queries over document excerpts. Records are
// append-only: a newer correction supersedes an older one only through
// similarity ranking, never by editing in place.
package corrections

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/faxd/internal/fields"
)

// Sentinel errors for correction store operations.
var (
	// ErrStorage indicates the persistence backend is unreachable or the
	// index is corrupt. Write-path callers must surface this; read-path
	// callers may degrade to LLM-only results.
	ErrStorage = errors.New("correction store failure")

	// ErrValidation indicates a caller bug: empty excerpt, unrecognized
	// field, or out-of-range query parameters.
	ErrValidation = errors.New("invalid correction input")

	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Record is one persisted human correction. Immutable once stored.
type Record struct {
	ID        string       `json:"id"`
	Excerpt   string       `json:"excerpt"`
	Field     fields.Field `json:"field"`
	Value     string       `json:"value"`
	CreatedAt time.Time    `json:"created_at"`
}

// Match pairs a Record with its similarity to a query excerpt.
type Match struct {
	Record     Record
	Similarity float64
}

// Embedder generates vector embeddings from text. The production
// implementation lives in internal/embeddings; tests use a deterministic
// hash-based embedder.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store persists corrections and answers similarity queries, scoped per
// target field.
//
// Implementations must serialize writes (single-writer discipline) while
// permitting concurrent reads, and must be durable across process
// restarts: reopening the same persistence location restores all records.
type Store interface {
	// StoreCorrection embeds the excerpt and durably persists the
	// correction. The excerpt must be non-empty and the field recognized.
	// Each call is atomic; partial writes are never left behind.
	// Returns the new record's ID.
	StoreCorrection(ctx context.Context, excerpt string, field fields.Field, value string) (string, error)

	// FindSimilar returns up to topK corrections for field whose excerpt
	// similarity is >= minSimilarity, ordered by descending similarity
	// with ties broken by most recent timestamp first. An empty result is
	// not an error.
	FindSimilar(ctx context.Context, excerpt string, field fields.Field, topK int, minSimilarity float64) ([]Match, error)

	// ListAll returns a fresh, consistent snapshot of every stored
	// record, for inspection and debugging.
	ListAll(ctx context.Context) ([]Record, error)

	// Close releases store resources.
	Close() error
}

// validateQuery checks the shared FindSimilar constraints.
func validateQuery(excerpt string, field fields.Field, topK int, minSimilarity float64) error {
	if err := validateWrite(excerpt, field); err != nil {
		return err
	}
	if topK < 1 {
		return fmt.Errorf("%w: top_k must be >= 1, got %d", ErrValidation, topK)
	}
	if minSimilarity < 0 || minSimilarity > 1 {
		return fmt.Errorf("%w: min_similarity must be in [0,1], got %g", ErrValidation, minSimilarity)
	}
	return nil
}

// validateWrite checks the shared StoreCorrection constraints.
func validateWrite(excerpt string, field fields.Field) error {
	if excerpt == "" {
		return fmt.Errorf("%w: excerpt must be non-empty", ErrValidation)
	}
	if !field.Valid() {
		return fmt.Errorf("%w: %s %q", ErrValidation, fields.ErrUnknownField, field)
	}
	return nil
}
