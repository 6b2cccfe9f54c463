package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/faxd/internal/corrections"
	"github.com/fyrsmithlabs/faxd/internal/fields"
	"github.com/fyrsmithlabs/faxd/internal/pipeline"
	"github.com/fyrsmithlabs/faxd/internal/server"
)

type stubAgent struct{}

func (stubAgent) ExtractFields(ctx context.Context, text string) (fields.Extracted, error) {
	e := fields.NewExtracted()
	e.Set(fields.PatientName, "Jane Doe")
	e.Set(fields.DateOfBirth, "01/02/1987")
	e.Set(fields.ProviderName, "Dr. Smith")
	return e, nil
}

func (stubAgent) ClassifyDocument(ctx context.Context, text string) (string, string, error) {
	return "Referral", "Quest Diagnostics", nil
}

func (stubAgent) GenerateComment(ctx context.Context, text string) (string, error) {
	return "- Routine referral.", nil
}

type stubStore struct {
	mu       sync.Mutex
	stored   []corrections.Record
	storeErr error
	listErr  error
}

func (s *stubStore) StoreCorrection(ctx context.Context, excerpt string, field fields.Field, value string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storeErr != nil {
		return "", s.storeErr
	}
	rec := corrections.Record{
		ID:        fmt.Sprintf("rec-%d", len(s.stored)+1),
		Excerpt:   excerpt,
		Field:     field,
		Value:     value,
		CreatedAt: time.Now().UTC(),
	}
	s.stored = append(s.stored, rec)
	return rec.ID, nil
}

func (s *stubStore) FindSimilar(ctx context.Context, excerpt string, field fields.Field, topK int, minSimilarity float64) ([]corrections.Match, error) {
	return nil, nil
}

func (s *stubStore) ListAll(ctx context.Context) ([]corrections.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]corrections.Record(nil), s.stored...), nil
}

func (s *stubStore) Close() error { return nil }

func newTestServer(t *testing.T, store corrections.Store) *server.Server {
	t.Helper()

	p, err := pipeline.New(stubAgent{}, store, pipeline.Config{}, nil)
	require.NoError(t, err)

	srv, err := server.NewServer(p, store, zap.NewNop(), nil)
	require.NoError(t, err)
	return srv
}

func doRequest(srv *server.Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubStore{})

	rec := doRequest(srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp server.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestProcess(t *testing.T) {
	srv := newTestServer(t, &stubStore{})

	rec := doRequest(srv, http.MethodPost, "/api/v1/process", `{"text": "fax body"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp server.ProcessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Fields, len(fields.All))
	assert.Equal(t, "Jane Doe", *resp.Fields[fields.PatientName].Value)
	assert.Equal(t, fields.SourceLLM, resp.Fields[fields.PatientName].Source)
	assert.Equal(t, fields.SourceLLM, resp.Fields[fields.DocType].Source)
}

func TestProcess_EmptyTextRejected(t *testing.T) {
	srv := newTestServer(t, &stubStore{})

	rec := doRequest(srv, http.MethodPost, "/api/v1/process", `{"text": "  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcess_MalformedBodyRejected(t *testing.T) {
	srv := newTestServer(t, &stubStore{})

	rec := doRequest(srv, http.MethodPost, "/api/v1/process", `{"text": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaveCorrection(t *testing.T) {
	store := &stubStore{}
	srv := newTestServer(t, store)

	rec := doRequest(srv, http.MethodPost, "/api/v1/corrections",
		`{"text": "fax body", "field": "doc_type", "value": "Referral"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp server.CorrectionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "rec-1", resp.ID)
	require.Len(t, store.stored, 1)
	assert.Equal(t, fields.DocType, store.stored[0].Field)
}

func TestSaveCorrection_UnknownField(t *testing.T) {
	srv := newTestServer(t, &stubStore{})

	rec := doRequest(srv, http.MethodPost, "/api/v1/corrections",
		`{"text": "fax body", "field": "fax_number", "value": "x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaveCorrection_EmptyTextRejected(t *testing.T) {
	srv := newTestServer(t, &stubStore{})

	rec := doRequest(srv, http.MethodPost, "/api/v1/corrections",
		`{"text": "", "field": "doc_type", "value": "Referral"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaveCorrection_StorageFailure(t *testing.T) {
	store := &stubStore{storeErr: fmt.Errorf("%w: disk full", corrections.ErrStorage)}
	srv := newTestServer(t, store)

	rec := doRequest(srv, http.MethodPost, "/api/v1/corrections",
		`{"text": "fax body", "field": "doc_type", "value": "Referral"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestListCorrections(t *testing.T) {
	store := &stubStore{}
	srv := newTestServer(t, store)

	_, err := store.StoreCorrection(context.Background(), "excerpt", fields.DocType, "Referral")
	require.NoError(t, err)

	rec := doRequest(srv, http.MethodGet, "/api/v1/corrections", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp server.ListCorrectionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Corrections, 1)
	assert.Equal(t, "Referral", resp.Corrections[0].Value)
}

func TestListCorrections_StorageFailure(t *testing.T) {
	store := &stubStore{listErr: fmt.Errorf("%w: backend down", corrections.ErrStorage)}
	srv := newTestServer(t, store)

	rec := doRequest(srv, http.MethodGet, "/api/v1/corrections", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
