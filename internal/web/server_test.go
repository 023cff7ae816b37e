package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/policyimport/internal/config"
	"github.com/JonMunkholm/policyimport/internal/core"
	"github.com/JonMunkholm/policyimport/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bookCSV = "policy_number,insurer_name,policyholder_name,start_date,expiry_date,premium,currency\n" +
	"POL1,Acme,Jane,2024-01-01,2025-01-01,100,EUR\n" +
	"POL2,Acme,John,2024-01-01,2025-01-01,abc,EUR\n" +
	"POL3,Acme,Mary,2024-01-01,2025-01-01,300,EUR\n"

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Port: 8080, RequestTimeout: 5 * time.Second},
		Import:   config.ImportConfig{MaxFileSize: 1 << 20, MaxRows: 1000, Workers: 1, ReviewPageSize: 50},
		Security: config.SecurityConfig{EnableCSP: true},
	}
}

type testServer struct {
	*Server
	store    *memstore.Store
	sessions *core.SessionManager
}

func newTestServer(t *testing.T, cfg *config.Config, store PolicyStore) *testServer {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	mem := memstore.New()
	if store == nil {
		store = mem
	}
	sessions := core.NewSessionManager(core.ManagerOptions{
		Session: core.SessionOptions{MaxRows: cfg.Import.MaxRows},
		Import: core.ImportOptions{
			Workers: cfg.Import.Workers,
			Limiter: core.NewCommitLimiter(4, time.Second),
		},
	})
	presets, err := core.NewPresetStore(t.TempDir())
	require.NoError(t, err)

	srv := NewServer(cfg, sessions, store, presets)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sessions.Shutdown(ctx)
		srv.Shutdown(ctx)
	})
	return &testServer{Server: srv, store: mem, sessions: sessions}
}

func (ts *testServer) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.Router().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) doJSON(t *testing.T, method, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if v != nil {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	return ts.do(t, method, path, body, map[string]string{"Content-Type": "application/json"})
}

func (ts *testServer) upload(t *testing.T, id, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return ts.do(t, http.MethodPost, "/api/import/sessions/"+id+"/file", &buf,
		map[string]string{"Content-Type": mw.FormDataContentType()})
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// createSession creates a session and moves it to the upload stage.
func (ts *testServer) createSession(t *testing.T) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/import/sessions", nil, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[core.SessionSnapshot](t, rec).ID
	require.NotEmpty(t, id)

	rec = ts.do(t, http.MethodPost, "/api/import/sessions/"+id+"/continue", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	return id
}

// reviewSession uploads bookCSV and confirms the suggested mapping.
func (ts *testServer) reviewSession(t *testing.T, content string) string {
	t.Helper()
	id := ts.createSession(t)

	rec := ts.upload(t, id, "book.csv", content)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	up := decode[uploadResponse](t, rec)

	rec = ts.doJSON(t, http.MethodPut, "/api/import/sessions/"+id+"/mapping", mappingRequest{Mapping: up.SuggestedMapping})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return id
}

func TestImportWorkflow(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	id := ts.createSession(t)

	// Upload
	rec := ts.upload(t, id, "book.csv", bookCSV)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	up := decode[uploadResponse](t, rec)
	assert.Equal(t, core.FormatCSV, up.Format)
	assert.Equal(t, 3, up.RowCount)
	assert.Equal(t, "policy_number", up.SuggestedMapping[core.FieldPolicyNumber])
	assert.Empty(t, up.UnmappedRequired)

	// Mapping
	rec = ts.doJSON(t, http.MethodPut, "/api/import/sessions/"+id+"/mapping", mappingRequest{Mapping: up.SuggestedMapping})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decode[core.ReviewSummary](t, rec)
	assert.Equal(t, 3, summary.TotalRows)
	assert.Equal(t, 2, summary.ValidRows)
	assert.Equal(t, 1, summary.InvalidRows)

	// Review
	rec = ts.do(t, http.MethodGet, "/api/import/sessions/"+id+"/review?status=invalid", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[core.ReviewPage](t, rec)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, 3, page.Rows[0].RowNumber)

	// Import
	rec = ts.do(t, http.MethodPost, "/api/import/sessions/"+id+"/import", nil, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	session, err := ts.sessions.Get(id)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, session.Wait(ctx))
	assert.Equal(t, 2, ts.store.Len())

	// Report as JSON
	rec = ts.do(t, http.MethodGet, "/api/import/sessions/"+id+"/report", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[core.ImportReport](t, rec)
	assert.Equal(t, 2, report.CommittedCount)
	assert.Equal(t, 1, report.InvalidCount)
	assert.Len(t, report.CreatedPolicyIDs, 2)
	assert.Equal(t, core.DraftPoliciesURL, report.NextURL)

	// Report as HTML
	rec = ts.do(t, http.MethodGet, "/api/import/sessions/"+id+"/report", nil, map[string]string{"Accept": "text/html"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Import complete")

	// Rejected rows
	rec = ts.do(t, http.MethodGet, "/api/import/sessions/"+id+"/report/invalid.csv", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "rejected-rows-")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "3,"), lines[1])
	assert.Contains(t, lines[1], "POL2")

	// Restart keeps the session id
	rec = ts.do(t, http.MethodPost, "/api/import/sessions/"+id+"/restart", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[core.SessionSnapshot](t, rec)
	assert.Equal(t, id, snap.ID)
	assert.Equal(t, core.StageInstructions, snap.Stage)

	// Delete
	rec = ts.do(t, http.MethodDelete, "/api/import/sessions/"+id, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/import/sessions/"+id, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBack(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	id := ts.reviewSession(t, bookCSV)

	rec := ts.do(t, http.MethodPost, "/api/import/sessions/"+id+"/back", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.StageMapping, decode[core.SessionSnapshot](t, rec).Stage)

	rec = ts.do(t, http.MethodPost, "/api/import/sessions/"+id+"/back", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.StageUpload, decode[core.SessionSnapshot](t, rec).Stage)

	rec = ts.do(t, http.MethodPost, "/api/import/sessions/"+id+"/back", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestErrorResponses(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	t.Run("unknown session", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/import/sessions/nope", nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "SES002", decode[ErrorResponse](t, rec).Code)
	})

	t.Run("wrong stage", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/import/sessions", nil, nil)
		id := decode[core.SessionSnapshot](t, rec).ID

		rec = ts.upload(t, id, "book.csv", bookCSV)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "SES001", decode[ErrorResponse](t, rec).Code)
	})

	t.Run("empty file stays in upload", func(t *testing.T) {
		id := ts.createSession(t)
		rec := ts.upload(t, id, "book.csv", "")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "PARSE001", decode[ErrorResponse](t, rec).Code)

		rec = ts.do(t, http.MethodGet, "/api/import/sessions/"+id, nil, nil)
		snap := decode[core.SessionSnapshot](t, rec)
		assert.Equal(t, core.StageUpload, snap.Stage)
		assert.NotEmpty(t, snap.LastError)
	})

	t.Run("no file", func(t *testing.T) {
		id := ts.createSession(t)
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("other", "x"))
		require.NoError(t, mw.Close())

		rec := ts.do(t, http.MethodPost, "/api/import/sessions/"+id+"/file", &buf,
			map[string]string{"Content-Type": mw.FormDataContentType()})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "UPL002", decode[ErrorResponse](t, rec).Code)
	})

	t.Run("unknown mapped header", func(t *testing.T) {
		id := ts.createSession(t)
		require.Equal(t, http.StatusOK, ts.upload(t, id, "book.csv", bookCSV).Code)

		rec := ts.doJSON(t, http.MethodPut, "/api/import/sessions/"+id+"/mapping",
			mappingRequest{Mapping: core.ColumnMapping{core.FieldPolicyNumber: "Nope"}})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "VAL004", decode[ErrorResponse](t, rec).Code)
	})

	t.Run("report before completion", func(t *testing.T) {
		id := ts.reviewSession(t, bookCSV)
		rec := ts.do(t, http.MethodGet, "/api/import/sessions/"+id+"/report", nil, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("bad review filter", func(t *testing.T) {
		id := ts.reviewSession(t, bookCSV)
		rec := ts.do(t, http.MethodGet, "/api/import/sessions/"+id+"/review?status=odd", nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestUploadTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Import.MaxFileSize = 64
	ts := newTestServer(t, cfg, nil)
	id := ts.createSession(t)

	rec := ts.upload(t, id, "book.csv", bookCSV)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "UPL001", decode[ErrorResponse](t, rec).Code)
}

// blockingStore holds every create until release is closed.
type blockingStore struct {
	started chan struct{}
	release chan struct{}
	*memstore.Store
}

func (b *blockingStore) CreatePolicy(ctx context.Context, p core.Policy) (string, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-b.release
	return b.Store.CreatePolicy(ctx, p)
}

func TestCancelDuringImport(t *testing.T) {
	store := &blockingStore{started: make(chan struct{}, 1), release: make(chan struct{}), Store: memstore.New()}
	ts := newTestServer(t, nil, store)
	id := ts.reviewSession(t, bookCSV)

	rec := ts.do(t, http.MethodPost, "/api/import/sessions/"+id+"/import", nil, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	<-store.started

	rec = ts.do(t, http.MethodDelete, "/api/import/sessions/"+id, nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "SES003", decode[ErrorResponse](t, rec).Code)

	session, err := ts.sessions.Get(id)
	require.NoError(t, err)

	// The confirmed cancel waits for the in-flight create, so release it
	// once the cancellation is recorded.
	result := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		result <- ts.do(t, http.MethodDelete, "/api/import/sessions/"+id+"?confirm=true", nil, nil)
	}()
	require.Eventually(t, func() bool { return session.Snapshot().CancelRequested }, 5*time.Second, 10*time.Millisecond)
	close(store.release)

	rec = <-result
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[core.ImportReport](t, rec)
	assert.True(t, report.Cancelled)
	assert.Equal(t, 1, report.CommittedCount)
	assert.Equal(t, 1, report.NotAttempted)
}

func TestProgressStream(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	id := ts.reviewSession(t, bookCSV)

	rec := ts.do(t, http.MethodPost, "/api/import/sessions/"+id+"/import", nil, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	session, err := ts.sessions.Get(id)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, session.Wait(ctx))

	rec = ts.do(t, http.MethodGet, "/api/import/sessions/"+id+"/progress", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: progress")
	assert.Contains(t, body, `"done":true`)
	assert.Contains(t, body, `"percent":100`)
	assert.True(t, strings.HasSuffix(body, "event: complete\ndata: {}\n\n"))
}

func TestTemplateDownload(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.do(t, http.MethodGet, "/api/import/template", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "policy_number,"))

	rec = ts.do(t, http.MethodGet, "/api/import/template?format=xlsx", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PK", rec.Body.String()[:2])

	rec = ts.do(t, http.MethodGet, "/api/import/template?format=pdf", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "PARSE004", decode[ErrorResponse](t, rec).Code)
}

func TestPresets(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	headers := []string{"Policy No", "Carrier", "Client"}
	preset := core.MappingPreset{
		Name:    "Broker A",
		Headers: headers,
		Mapping: core.ColumnMapping{
			core.FieldPolicyNumber:     "Policy No",
			core.FieldInsurerName:      "Carrier",
			core.FieldPolicyholderName: "Client",
		},
	}

	rec := ts.doJSON(t, http.MethodPost, "/api/import/presets", preset)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/import/presets", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]core.MappingPreset](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "Broker A", list[0].Name)

	rec = ts.do(t, http.MethodGet, "/api/import/presets/match?headers=Policy%20No,Carrier,Client", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	matches := decode[[]core.PresetMatch](t, rec)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].MatchScore, 1e-9)

	rec = ts.do(t, http.MethodGet, "/api/import/presets/match?headers=Other", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]core.PresetMatch](t, rec))

	rec = ts.do(t, http.MethodDelete, "/api/import/presets/Broker%20A", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/api/import/presets/Broker%20A", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfirmMappingWithPreset(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	content := "Policy No,Carrier,Client,Inception,Expiry,Gross,CCY\n" +
		"P1,Acme,Jane,2024-01-01,2025-01-01,100,EUR\n"
	preset := core.MappingPreset{
		Name:    "broker",
		Headers: []string{"Policy No", "Carrier", "Client", "Inception", "Expiry", "Gross", "CCY"},
		Mapping: core.ColumnMapping{
			core.FieldPolicyNumber:     "Policy No",
			core.FieldInsurerName:      "Carrier",
			core.FieldPolicyholderName: "Client",
			core.FieldStartDate:        "Inception",
			core.FieldExpiryDate:       "Expiry",
			core.FieldPremium:          "Gross",
			core.FieldCurrency:         "CCY",
		},
	}
	require.Equal(t, http.StatusCreated, ts.doJSON(t, http.MethodPost, "/api/import/presets", preset).Code)

	id := ts.createSession(t)
	rec := ts.upload(t, id, "export.csv", content)
	require.Equal(t, http.StatusOK, rec.Code)
	up := decode[uploadResponse](t, rec)
	require.Len(t, up.PresetMatches, 1)

	rec = ts.doJSON(t, http.MethodPut, "/api/import/sessions/"+id+"/mapping", mappingRequest{Preset: "broker"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decode[core.ReviewSummary](t, rec)
	assert.Equal(t, 1, summary.ValidRows)
	assert.Empty(t, summary.UnmappedRequired)
}

// pingStore fails Ping.
type pingStore struct {
	*memstore.Store
}

func (pingStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	rec := ts.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[healthResponse](t, rec)
	assert.Equal(t, "ok", health.Status)
	require.NotNil(t, health.Commits)
	assert.Equal(t, 4, health.Commits.MaxConcurrent)

	ts = newTestServer(t, nil, pingStore{memstore.New()})
	rec = ts.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decode[healthResponse](t, rec).Status)
}

func TestSecurityHeaders(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	rec := ts.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2}
	ts := newTestServer(t, cfg, nil)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/healthz", nil, nil).Code)
	}
	rec := ts.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE001", decode[ErrorResponse](t, rec).Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrSessionNotFound, http.StatusNotFound},
		{core.ErrPresetNotFound, http.StatusNotFound},
		{&core.SessionStateError{Op: "Upload", Stage: core.StageReview}, http.StatusConflict},
		{core.ErrImportInProgress, http.StatusConflict},
		{core.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{core.ErrNoFile, http.StatusBadRequest},
		{&core.ParseError{Reason: "empty file"}, http.StatusUnprocessableEntity},
		{&core.MappingError{}, http.StatusUnprocessableEntity},
		{core.ErrTooManyCommits, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
