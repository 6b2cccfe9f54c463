package corrections

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/faxd/internal/fields"
)

// fixedEmbedder returns preassigned unit vectors so tests control cosine
// similarity exactly. Unknown texts get an angled vector relative to the
// base axis.
type fixedEmbedder struct {
	vectors map[string][]float32
}

func newFixedEmbedder() *fixedEmbedder {
	return &fixedEmbedder{vectors: map[string][]float32{}}
}

// add registers text at the given angle (radians) from the base axis in
// the xy plane, so cosine similarity to angle-0 texts is cos(angle).
func (e *fixedEmbedder) add(text string, angle float64) {
	e.vectors[text] = []float32{float32(math.Cos(angle)), float32(math.Sin(angle)), 0}
}

func (e *fixedEmbedder) embed(text string) []float32 {
	if v, ok := e.vectors[text]; ok {
		return v
	}
	return []float32{0, 0, 1}
}

func (e *fixedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *fixedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func newTestStore(t *testing.T, embedder Embedder) *ChromemStore {
	t.Helper()

	store, err := NewChromemStore(ChromemConfig{
		Path:       t.TempDir(),
		Collection: "test_corrections",
	}, embedder, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestChromemConfig_ApplyDefaults(t *testing.T) {
	config := ChromemConfig{}
	config.ApplyDefaults()

	assert.Equal(t, "~/.config/faxd/corrections", config.Path)
	assert.Equal(t, "corrections", config.Collection)
}

func TestChromemStore_RequiresEmbedder(t *testing.T) {
	_, err := NewChromemStore(ChromemConfig{Path: t.TempDir()}, nil, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestChromemStore_StoreAndFind(t *testing.T) {
	ctx := context.Background()
	embedder := newFixedEmbedder()
	embedder.add("fax about a colonoscopy referral", 0)
	store := newTestStore(t, embedder)

	id, err := store.StoreCorrection(ctx, "fax about a colonoscopy referral", fields.DocType, "Referral")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	matches, err := store.FindSimilar(ctx, "fax about a colonoscopy referral", fields.DocType, 3, 0.85)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, id, matches[0].Record.ID)
	assert.Equal(t, "Referral", matches[0].Record.Value)
	assert.Equal(t, fields.DocType, matches[0].Record.Field)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-4)
}

func TestChromemStore_FieldIsolation(t *testing.T) {
	ctx := context.Background()
	embedder := newFixedEmbedder()
	embedder.add("shared excerpt", 0)
	store := newTestStore(t, embedder)

	_, err := store.StoreCorrection(ctx, "shared excerpt", fields.DocType, "Referral")
	require.NoError(t, err)
	_, err = store.StoreCorrection(ctx, "shared excerpt", fields.ProviderName, "Asim Ali")
	require.NoError(t, err)

	matches, err := store.FindSimilar(ctx, "shared excerpt", fields.ProviderName, 3, 0.85)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "Asim Ali", matches[0].Record.Value)
}

func TestChromemStore_MinSimilarityFilter(t *testing.T) {
	ctx := context.Background()
	embedder := newFixedEmbedder()
	embedder.add("stored excerpt", 0)
	// ~45 degrees: similarity ~0.707, below the 0.85 floor.
	embedder.add("unrelated excerpt", math.Pi/4)
	store := newTestStore(t, embedder)

	_, err := store.StoreCorrection(ctx, "stored excerpt", fields.DocType, "Labs")
	require.NoError(t, err)

	matches, err := store.FindSimilar(ctx, "unrelated excerpt", fields.DocType, 3, 0.85)
	require.NoError(t, err)
	assert.Empty(t, matches)

	// With the floor lowered the same record comes back.
	matches, err = store.FindSimilar(ctx, "unrelated excerpt", fields.DocType, 3, 0.5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, math.Cos(math.Pi/4), matches[0].Similarity, 1e-3)
}

func TestChromemStore_TiesPreferNewerCorrection(t *testing.T) {
	ctx := context.Background()
	embedder := newFixedEmbedder()
	embedder.add("same excerpt", 0)
	store := newTestStore(t, embedder)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	orig := timeNow
	timeNow = func() time.Time { return clock }
	defer func() { timeNow = orig }()

	_, err := store.StoreCorrection(ctx, "same excerpt", fields.DocType, "old value")
	require.NoError(t, err)

	clock = base.Add(time.Hour)
	_, err = store.StoreCorrection(ctx, "same excerpt", fields.DocType, "new value")
	require.NoError(t, err)

	matches, err := store.FindSimilar(ctx, "same excerpt", fields.DocType, 2, 0.85)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "new value", matches[0].Record.Value)
	assert.Equal(t, "old value", matches[1].Record.Value)
}

func TestChromemStore_TopKCapsResults(t *testing.T) {
	ctx := context.Background()
	embedder := newFixedEmbedder()
	embedder.add("excerpt", 0)
	store := newTestStore(t, embedder)

	for i := 0; i < 5; i++ {
		_, err := store.StoreCorrection(ctx, "excerpt", fields.DocType, fmt.Sprintf("v%d", i))
		require.NoError(t, err)
	}

	matches, err := store.FindSimilar(ctx, "excerpt", fields.DocType, 2, 0.85)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestChromemStore_Validation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, newFixedEmbedder())

	_, err := store.StoreCorrection(ctx, "", fields.DocType, "v")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = store.StoreCorrection(ctx, "excerpt", fields.Field("bogus"), "v")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = store.FindSimilar(ctx, "excerpt", fields.DocType, 0, 0.85)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = store.FindSimilar(ctx, "excerpt", fields.DocType, 3, 1.5)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestChromemStore_EmptyStoreFindsNothing(t *testing.T) {
	store := newTestStore(t, newFixedEmbedder())

	matches, err := store.FindSimilar(context.Background(), "anything", fields.DocType, 3, 0.85)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestChromemStore_JournalFailureLeavesIndexUntouched(t *testing.T) {
	ctx := context.Background()
	embedder := newFixedEmbedder()
	embedder.add("orphan excerpt", 0)
	dir := t.TempDir()

	store, err := NewChromemStore(ChromemConfig{Path: dir}, embedder, zap.NewNop())
	require.NoError(t, err)

	// A directory at the journal path makes the append fail.
	require.NoError(t, os.Mkdir(filepath.Join(dir, journalFile), 0700))

	_, err = store.StoreCorrection(ctx, "orphan excerpt", fields.ProviderName, "Asim Ali")
	require.ErrorIs(t, err, ErrStorage)

	// The failed write must not be recallable.
	matches, err := store.FindSimilar(ctx, "orphan excerpt", fields.ProviderName, 3, 0.5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestChromemStore_ReopenRestoresJournaledRecord(t *testing.T) {
	ctx := context.Background()
	embedder := newFixedEmbedder()
	embedder.add("journaled excerpt", 0)
	dir := t.TempDir()

	store, err := NewChromemStore(ChromemConfig{Path: dir}, embedder, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// A journal record with no index entry, as left by a crash between
	// the journal append and the index write.
	rec := Record{
		ID:        uuid.NewString(),
		Excerpt:   "journaled excerpt",
		Field:     fields.DocSubtype,
		Value:     "Cardiology",
		CreatedAt: timeNow().UTC(),
	}
	line, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, journalFile), append(line, '\n'), 0600))

	reopened, err := NewChromemStore(ChromemConfig{Path: dir}, embedder, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	matches, err := reopened.FindSimilar(ctx, "journaled excerpt", fields.DocSubtype, 3, 0.85)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, rec.ID, matches[0].Record.ID)
	assert.Equal(t, "Cardiology", matches[0].Record.Value)

	records, err := reopened.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, rec.ID, records[0].ID)
}

func TestChromemStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	embedder := newFixedEmbedder()
	embedder.add("persistent excerpt", 0)
	dir := t.TempDir()

	store, err := NewChromemStore(ChromemConfig{Path: dir}, embedder, zap.NewNop())
	require.NoError(t, err)

	id, err := store.StoreCorrection(ctx, "persistent excerpt", fields.ProviderName, "Asim Ali")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewChromemStore(ChromemConfig{Path: dir}, embedder, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	matches, err := reopened.FindSimilar(ctx, "persistent excerpt", fields.ProviderName, 3, 0.85)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, id, matches[0].Record.ID)

	records, err := reopened.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].ID)
	assert.Equal(t, "persistent excerpt", records[0].Excerpt)
}

func TestChromemStore_ListAllOldestFirst(t *testing.T) {
	ctx := context.Background()
	embedder := newFixedEmbedder()
	embedder.add("excerpt", 0)
	store := newTestStore(t, embedder)

	for i := 0; i < 3; i++ {
		_, err := store.StoreCorrection(ctx, "excerpt", fields.DocType, fmt.Sprintf("v%d", i))
		require.NoError(t, err)
	}

	records, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "v0", records[0].Value)
	assert.Equal(t, "v2", records[2].Value)
}

func TestChromemStore_ConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	embedder := newFixedEmbedder()
	embedder.add("excerpt", 0)
	store := newTestStore(t, embedder)

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.StoreCorrection(ctx, "excerpt", fields.DocType, fmt.Sprintf("v%d", i))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "write %d", i)
	}

	records, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, records, n)
}
