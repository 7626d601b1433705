package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shortforge/trending-pipeline/internal/db/repository"
	"github.com/shortforge/trending-pipeline/internal/metrics"
	"github.com/shortforge/trending-pipeline/internal/models"
)

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, job *models.ProductionJob) (DispatchReceipt, error) {
	args := m.Called(ctx, job)
	return args.Get(0).(DispatchReceipt), args.Error(1)
}

func (m *mockDispatcher) Cancel(ctx context.Context, job *models.ProductionJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

const remixPayload = `{"source":{"platform":"youtube","sourceVideoId":"abc","title":"Cat does backflip","permalink":"https://youtube.com/shorts/abc"},"style":"punchy"}`

func newTestOrchestrator(t *testing.T) (*JobOrchestrator, *repository.MemoryJobRepository, *mockDispatcher, *fakeClock) {
	t.Helper()
	repo := repository.NewMemoryJobRepository()
	disp := &mockDispatcher{}
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	o := NewJobOrchestrator(repo, disp, metrics.New())
	o.SetClock(clock.Now)
	return o, repo, disp, clock
}

func intPtr(i int) *int { return &i }

func int64Ptr(i int64) *int64 { return &i }

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func TestSubmit_RemixLifecycle(t *testing.T) {
	o, _, disp, clock := newTestOrchestrator(t)
	ctx := context.Background()

	disp.On("Dispatch", mock.Anything, mock.MatchedBy(func(j *models.ProductionJob) bool {
		return j.JobID == "job-1" && j.Status == models.JobStatusQueued
	})).Return(DispatchReceipt{Ref: "msg-1"}, nil).Once()

	resp, err := o.Submit(ctx, SubmitRequest{
		Kind:    models.JobKindRemix,
		JobID:   "job-1",
		Payload: json.RawMessage(remixPayload),
	})
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
	assert.Equal(t, models.JobStatusQueued, resp.Status)
	assert.Nil(t, resp.Error)

	job, err := o.GetStatus(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Equal(t, StepQueued, job.Step)
	assert.Equal(t, 0, job.ProgressPct)
	require.NotNil(t, job.DispatchRef)
	assert.Equal(t, "msg-1", *job.DispatchRef)
	assert.Nil(t, job.StartedAt)

	clock.Advance(time.Second)
	res, err := o.ApplyCallback(ctx, &models.JobCallbackDTO{
		JobID: "job-1", Status: models.JobStatusProcessing, Step: models.StepInit, ProgressPct: intPtr(5),
	})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	require.NotNil(t, res.Job.StartedAt)
	startedAt := *res.Job.StartedAt
	assert.Equal(t, clock.Now(), startedAt)

	clock.Advance(time.Second)
	res, err = o.ApplyCallback(ctx, &models.JobCallbackDTO{
		JobID: "job-1", Status: models.JobStatusProcessing, Step: "transcribe", ProgressPct: intPtr(40),
		TranscriptURL: strPtr("s3://bucket/t.json"), TokensUsed: int64Ptr(1200),
	})
	require.NoError(t, err)
	assert.Equal(t, 40, res.Job.ProgressPct)
	assert.Equal(t, startedAt, *res.Job.StartedAt, "startedAt is set once")

	clock.Advance(time.Second)
	res, err = o.ApplyCallback(ctx, &models.JobCallbackDTO{
		JobID: "job-1", Status: models.JobStatusCompleted, Step: "done",
		OutputVideoURL: strPtr("s3://bucket/out.mp4"), TTSSeconds: floatPtr(31.5),
	})
	require.NoError(t, err)
	assert.True(t, res.Applied)

	final, err := o.GetStatus(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	assert.Equal(t, 100, final.ProgressPct)
	require.NotNil(t, final.CompletedAt)
	assert.Equal(t, clock.Now(), *final.CompletedAt)
	assert.Equal(t, "s3://bucket/t.json", *final.Artifacts.TranscriptURL, "earlier artifacts are kept")
	assert.Equal(t, "s3://bucket/out.mp4", *final.Artifacts.OutputVideoURL)
	assert.Equal(t, int64(1200), *final.CostMetrics.TokensUsed)
	assert.Equal(t, 31.5, *final.CostMetrics.TTSSeconds)
	assert.Nil(t, final.Error)

	disp.AssertExpectations(t)
}

func TestSubmit_GeneratesJobID(t *testing.T) {
	o, repo, disp, _ := newTestOrchestrator(t)
	disp.On("Dispatch", mock.Anything, mock.Anything).Return(DispatchReceipt{}, nil)

	resp, err := o.Submit(context.Background(), SubmitRequest{
		Kind:    models.JobKindVideoGeneration,
		Payload: json.RawMessage(`{"projectId":"p-1","prompt":"make it pop"}`),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, 1, repo.Len())

	job, err := o.GetStatus(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Nil(t, job.DispatchRef)
}

func TestSubmit_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		req     SubmitRequest
		wantMsg string
	}{
		{
			name:    "unknown kind",
			req:     SubmitRequest{Kind: "podcast", Payload: json.RawMessage(`{}`)},
			wantMsg: "unknown job kind",
		},
		{
			name:    "missing payload",
			req:     SubmitRequest{Kind: models.JobKindRemix},
			wantMsg: "payload is required",
		},
		{
			name:    "remix without source",
			req:     SubmitRequest{Kind: models.JobKindRemix, Payload: json.RawMessage(`{"style":"calm"}`)},
			wantMsg: "requires source",
		},
		{
			name:    "remix source without title or permalink",
			req:     SubmitRequest{Kind: models.JobKindRemix, Payload: json.RawMessage(`{"source":{"platform":"youtube"}}`)},
			wantMsg: "title or permalink",
		},
		{
			name:    "video generation without project",
			req:     SubmitRequest{Kind: models.JobKindVideoGeneration, Payload: json.RawMessage(`{"prompt":"x"}`)},
			wantMsg: "projectId",
		},
		{
			name:    "export with bad format",
			req:     SubmitRequest{Kind: models.JobKindExport, Payload: json.RawMessage(`{"videoUrl":"s3://v.mp4","formats":["4:3"]}`)},
			wantMsg: "unsupported export format",
		},
		{
			name:    "export without formats",
			req:     SubmitRequest{Kind: models.JobKindExport, Payload: json.RawMessage(`{"videoUrl":"s3://v.mp4"}`)},
			wantMsg: "at least one format",
		},
		{
			name:    "payload not an object",
			req:     SubmitRequest{Kind: models.JobKindExport, Payload: json.RawMessage(`"text"`)},
			wantMsg: "not a valid object",
		},
		{
			name:    "bad job id",
			req:     SubmitRequest{Kind: models.JobKindVideoGeneration, JobID: "has space", Payload: json.RawMessage(`{"projectId":"p"}`)},
			wantMsg: "invalid jobId",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, repo, disp, _ := newTestOrchestrator(t)

			_, err := o.Submit(context.Background(), tt.req)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Message, tt.wantMsg)
			assert.Equal(t, 0, repo.Len())
			disp.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
		})
	}
}

func TestSubmit_DuplicateJobID(t *testing.T) {
	o, _, disp, _ := newTestOrchestrator(t)
	disp.On("Dispatch", mock.Anything, mock.Anything).Return(DispatchReceipt{}, nil).Once()

	req := SubmitRequest{Kind: models.JobKindRemix, JobID: "dup", Payload: json.RawMessage(remixPayload)}
	_, err := o.Submit(context.Background(), req)
	require.NoError(t, err)

	_, err = o.Submit(context.Background(), req)
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "dup", ce.JobID)
	disp.AssertNumberOfCalls(t, "Dispatch", 1)
}

func TestSubmit_DispatchFailureMarksJobFailed(t *testing.T) {
	o, _, disp, _ := newTestOrchestrator(t)
	disp.On("Dispatch", mock.Anything, mock.Anything).
		Return(DispatchReceipt{}, errors.New("broker unreachable"))

	resp, err := o.Submit(context.Background(), SubmitRequest{
		Kind: models.JobKindRemix, JobID: "job-x", Payload: json.RawMessage(remixPayload),
	})
	require.NoError(t, err)
	assert.False(t, resp.Accepted)
	assert.Equal(t, models.JobStatusFailed, resp.Status)
	require.NotNil(t, resp.Error)
	assert.Contains(t, *resp.Error, "broker unreachable")

	job, err := o.GetStatus(context.Background(), "job-x")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "broker unreachable")
}

func TestSubmit_DispatchErrorAfterExecutorFinished(t *testing.T) {
	o, _, disp, _ := newTestOrchestrator(t)
	ctx := context.Background()

	// The message reaches the executor, which completes the job before the
	// publisher confirm times out.
	disp.On("Dispatch", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			job := args.Get(1).(*models.ProductionJob)
			_, err := o.ApplyCallback(ctx, &models.JobCallbackDTO{
				JobID: job.JobID, Status: models.JobStatusCompleted, Step: "done",
			})
			require.NoError(t, err)
		}).
		Return(DispatchReceipt{}, errors.New("confirm timeout"))

	resp, err := o.Submit(ctx, SubmitRequest{
		Kind: models.JobKindRemix, JobID: "job-late", Payload: json.RawMessage(remixPayload),
	})
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
	assert.Equal(t, models.JobStatusCompleted, resp.Status)
	assert.Nil(t, resp.Error)

	job, err := o.GetStatus(ctx, "job-late")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Nil(t, job.Error)
}

func submitQueued(t *testing.T, o *JobOrchestrator, disp *mockDispatcher, jobID string) {
	t.Helper()
	disp.On("Dispatch", mock.Anything, mock.Anything).Return(DispatchReceipt{Ref: jobID}, nil).Maybe()
	_, err := o.Submit(context.Background(), SubmitRequest{
		Kind: models.JobKindRemix, JobID: jobID, Payload: json.RawMessage(remixPayload),
	})
	require.NoError(t, err)
}

func TestApplyCallback_TerminalIsImmutable(t *testing.T) {
	o, _, disp, clock := newTestOrchestrator(t)
	ctx := context.Background()
	submitQueued(t, o, disp, "job-t")

	_, err := o.ApplyCallback(ctx, &models.JobCallbackDTO{
		JobID: "job-t", Status: models.JobStatusFailed, Step: "tts", Error: strPtr("voice model unavailable"),
	})
	require.NoError(t, err)
	before, err := o.GetStatus(ctx, "job-t")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	for _, cb := range []*models.JobCallbackDTO{
		{JobID: "job-t", Status: models.JobStatusProcessing, Step: "render", ProgressPct: intPtr(80)},
		{JobID: "job-t", Status: models.JobStatusCompleted, OutputVideoURL: strPtr("s3://late.mp4")},
		{JobID: "job-t", Status: models.JobStatusFailed, Error: strPtr("second failure")},
	} {
		res, err := o.ApplyCallback(ctx, cb)
		require.NoError(t, err)
		assert.False(t, res.Applied)
		assert.Equal(t, models.JobStatusFailed, res.Job.Status)
	}

	after, err := o.GetStatus(ctx, "job-t")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, "voice model unavailable", *after.Error)
}

func TestApplyCallback_FailedWithoutMessageGetsDefault(t *testing.T) {
	o, _, disp, _ := newTestOrchestrator(t)
	submitQueued(t, o, disp, "job-f")

	res, err := o.ApplyCallback(context.Background(), &models.JobCallbackDTO{
		JobID: "job-f", Status: models.JobStatusFailed, Step: "render",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Job.Error)
	assert.Contains(t, *res.Job.Error, "render")
}

func TestApplyCallback_ProgressIsClamped(t *testing.T) {
	o, _, disp, _ := newTestOrchestrator(t)
	submitQueued(t, o, disp, "job-c")

	res, err := o.ApplyCallback(context.Background(), &models.JobCallbackDTO{
		JobID: "job-c", Status: models.JobStatusProcessing, Step: "render", ProgressPct: intPtr(250),
	})
	require.NoError(t, err)
	assert.Equal(t, 100, res.Job.ProgressPct)

	res, err = o.ApplyCallback(context.Background(), &models.JobCallbackDTO{
		JobID: "job-c", Status: models.JobStatusProcessing, ProgressPct: intPtr(-3),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Job.ProgressPct)
	assert.Equal(t, "render", res.Job.Step, "absent step keeps stored value")
}

func TestApplyCallback_Errors(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)

	_, err := o.ApplyCallback(context.Background(), &models.JobCallbackDTO{Status: models.JobStatusProcessing})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = o.ApplyCallback(context.Background(), &models.JobCallbackDTO{JobID: "x", Status: "paused"})
	require.ErrorAs(t, err, &ve)

	_, err = o.ApplyCallback(context.Background(), &models.JobCallbackDTO{JobID: "missing", Status: models.JobStatusProcessing})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.JobID)
}

func TestApplyCallback_ConcurrentReportsForOneJob(t *testing.T) {
	o, _, disp, _ := newTestOrchestrator(t)
	submitQueued(t, o, disp, "job-r")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = o.ApplyCallback(context.Background(), &models.JobCallbackDTO{
				JobID: "job-r", Status: models.JobStatusProcessing, ProgressPct: intPtr(i),
			})
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = o.ApplyCallback(context.Background(), &models.JobCallbackDTO{
			JobID: "job-r", Status: models.JobStatusCompleted,
		})
	}()
	wg.Wait()

	job, err := o.GetStatus(context.Background(), "job-r")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.ProgressPct)
}

func TestGetStatus_NotFound(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)
	_, err := o.GetStatus(context.Background(), "nope")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestCancel(t *testing.T) {
	o, _, disp, _ := newTestOrchestrator(t)
	ctx := context.Background()
	submitQueued(t, o, disp, "job-k")

	disp.On("Cancel", mock.Anything, mock.MatchedBy(func(j *models.ProductionJob) bool {
		return j.JobID == "job-k"
	})).Return(nil).Once()

	resp, err := o.Cancel(ctx, "job-k")
	require.NoError(t, err)
	assert.True(t, resp.CancelRequested)
	assert.Equal(t, models.JobStatusQueued, resp.Status, "cancel does not change state")

	job, err := o.GetStatus(ctx, "job-k")
	require.NoError(t, err)
	assert.NotNil(t, job.CancelRequestedAt)
	disp.AssertExpectations(t)
}

func TestCancel_ExecutorErrorIsNotFatal(t *testing.T) {
	o, _, disp, _ := newTestOrchestrator(t)
	submitQueued(t, o, disp, "job-e")
	disp.On("Cancel", mock.Anything, mock.Anything).Return(errors.New("task already running"))

	resp, err := o.Cancel(context.Background(), "job-e")
	require.NoError(t, err)
	assert.True(t, resp.CancelRequested)
}

func TestCancel_TerminalJob(t *testing.T) {
	o, _, disp, _ := newTestOrchestrator(t)
	ctx := context.Background()
	submitQueued(t, o, disp, "job-d")
	_, err := o.ApplyCallback(ctx, &models.JobCallbackDTO{JobID: "job-d", Status: models.JobStatusCompleted})
	require.NoError(t, err)

	resp, err := o.Cancel(ctx, "job-d")
	require.NoError(t, err)
	assert.False(t, resp.CancelRequested)
	assert.Equal(t, models.JobStatusCompleted, resp.Status)
	disp.AssertNotCalled(t, "Cancel", mock.Anything, mock.Anything)
}

func TestCancel_NotFound(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)
	_, err := o.Cancel(context.Background(), "ghost")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestFailStale(t *testing.T) {
	o, _, disp, clock := newTestOrchestrator(t)
	ctx := context.Background()

	submitQueued(t, o, disp, "stale-queued")
	submitQueued(t, o, disp, "stale-processing")
	_, err := o.ApplyCallback(ctx, &models.JobCallbackDTO{JobID: "stale-processing", Status: models.JobStatusProcessing, Step: "render"})
	require.NoError(t, err)
	submitQueued(t, o, disp, "done")
	_, err = o.ApplyCallback(ctx, &models.JobCallbackDTO{JobID: "done", Status: models.JobStatusCompleted})
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)
	submitQueued(t, o, disp, "fresh")

	n, err := o.FailStale(ctx, 15*time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{"stale-queued", "stale-processing"} {
		job, err := o.GetStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusFailed, job.Status, id)
		assert.Equal(t, "timed out after 15m0s without progress", *job.Error)
	}

	fresh, err := o.GetStatus(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, fresh.Status)

	done, err := o.GetStatus(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Nil(t, done.Error)

	n, err = o.FailStale(ctx, 15*time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
