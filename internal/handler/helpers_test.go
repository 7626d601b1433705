package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/shortforge/trending-pipeline/internal/db/repository"
	"github.com/shortforge/trending-pipeline/internal/models"
	"github.com/shortforge/trending-pipeline/internal/service"
)

const (
	testAPIKey = "test-api-key"
	testSecret = "test-webhook-secret"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubDispatcher struct {
	mu        sync.Mutex
	err       error
	cancelled []string
}

func (d *stubDispatcher) Dispatch(_ context.Context, job *models.ProductionJob) (service.DispatchReceipt, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return service.DispatchReceipt{}, d.err
	}
	return service.DispatchReceipt{Ref: job.JobID}, nil
}

func (d *stubDispatcher) Cancel(_ context.Context, job *models.ProductionJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelled = append(d.cancelled, job.JobID)
	return nil
}

type testServer struct {
	router     *gin.Engine
	repo       *repository.MemoryJobRepository
	dispatcher *stubDispatcher
}

func newTestServer(t *testing.T, catalog CatalogService) *testServer {
	t.Helper()

	repo := repository.NewMemoryJobRepository()
	disp := &stubDispatcher{}
	orch := service.NewJobOrchestrator(repo, disp, nil)
	orch.SetClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) })

	cfg := RouterConfig{
		Jobs:           NewJobHandler(orch),
		Webhook:        NewWebhookHandler(orch),
		Health:         NewHealthHandler(nil),
		APIKeys:        []string{testAPIKey},
		WebhookSecret:  testSecret,
		MaxPayloadSize: 1 << 20,
	}
	if catalog != nil {
		cfg.Trending = NewTrendingHandler(catalog)
	}

	return &testServer{
		router:     NewRouter(cfg),
		repo:       repo,
		dispatcher: disp,
	}
}

// do sends body (marshalled unless it is already a string) with the given headers.
func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf *bytes.Reader
	switch b := body.(type) {
	case nil:
		buf = bytes.NewReader(nil)
	case string:
		buf = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) api(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, method, path, body, map[string]string{"X-API-Key": testAPIKey})
}

func (s *testServer) callback(t *testing.T, body any) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, http.MethodPost, "/webhooks/jobs", body, map[string]string{"X-Webhook-Secret": testSecret})
}

func (s *testServer) submitRemix(t *testing.T, jobID string) {
	t.Helper()
	w := s.api(t, http.MethodPost, "/api/v1/jobs", map[string]any{
		"kind":    "remix",
		"jobId":   jobID,
		"payload": map[string]any{"source": map[string]any{"title": "X"}},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}
