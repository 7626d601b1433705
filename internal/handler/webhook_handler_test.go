package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortforge/trending-pipeline/internal/models"
)

func TestWebhookHandler_Lifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	s.submitRemix(t, "job-1")

	w := s.callback(t, map[string]any{"jobId": "job-1", "status": "processing", "step": "init"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	w = s.callback(t, map[string]any{
		"jobId":          "job-1",
		"status":         "completed",
		"step":           "assembly",
		"outputVideoUrl": "https://cdn.example.com/out.mp4",
		"tokensUsed":     1200,
	})
	require.Equal(t, http.StatusOK, w.Code)

	job := decode[models.ProductionJob](t, s.api(t, http.MethodGet, "/api/v1/jobs/job-1", nil))
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, "assembly", job.Step)
	assert.Equal(t, 100, job.ProgressPct)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)
	require.NotNil(t, job.Artifacts.OutputVideoURL)
	assert.Equal(t, "https://cdn.example.com/out.mp4", *job.Artifacts.OutputVideoURL)
	require.NotNil(t, job.CostMetrics.TokensUsed)
	assert.Equal(t, int64(1200), *job.CostMetrics.TokensUsed)
}

func TestWebhookHandler_UnauthenticatedCallbackMutatesNothing(t *testing.T) {
	s := newTestServer(t, nil)
	s.submitRemix(t, "job-guarded")

	before, err := s.repo.Get(context.Background(), "job-guarded")
	require.NoError(t, err)

	body := map[string]any{"jobId": "job-guarded", "status": "completed", "step": "assembly"}
	for name, headers := range map[string]map[string]string{
		"missing secret": nil,
		"wrong secret":   {"X-Webhook-Secret": "guess"},
	} {
		t.Run(name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/webhooks/jobs", body, headers)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.NotContains(t, w.Body.String(), "job-guarded")
		})
	}

	after, err := s.repo.Get(context.Background(), "job-guarded")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestWebhookHandler_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		wantCode int
	}{
		{"malformed json", `{"jobId":`, http.StatusBadRequest},
		{"missing job id", map[string]any{"status": "processing", "step": "init"}, http.StatusBadRequest},
		{"invalid status", map[string]any{"jobId": "job-r", "status": "paused", "step": "init"}, http.StatusBadRequest},
		{"unknown job", map[string]any{"jobId": "ghost", "status": "processing", "step": "init"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			s.submitRemix(t, "job-r")

			w := s.callback(t, tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())

			job, err := s.repo.Get(context.Background(), "job-r")
			require.NoError(t, err)
			assert.Equal(t, models.JobStatusQueued, job.Status)
		})
	}
}

func TestWebhookHandler_DuplicateTerminalCallbackIsAcknowledged(t *testing.T) {
	s := newTestServer(t, nil)
	s.submitRemix(t, "job-2")

	w := s.callback(t, map[string]any{"jobId": "job-2", "status": "failed", "step": "tts", "error": "voice quota"})
	require.Equal(t, http.StatusOK, w.Code)

	first, err := s.repo.Get(context.Background(), "job-2")
	require.NoError(t, err)

	w = s.callback(t, map[string]any{"jobId": "job-2", "status": "completed", "step": "assembly", "outputVideoUrl": "https://late"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	second, err := s.repo.Get(context.Background(), "job-2")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, models.JobStatusFailed, second.Status)
	assert.Equal(t, "voice quota", *second.Error)
}

func TestWebhookHandler_OversizedBody(t *testing.T) {
	s := newTestServer(t, nil)
	s.submitRemix(t, "job-big")

	big := make([]byte, 2<<20)
	for i := range big {
		big[i] = 'a'
	}
	w := s.callback(t, `{"jobId":"job-big","status":"processing","step":"`+string(big)+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
