// Package models contains the data models and DTOs for the trending shorts pipeline.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/shortforge/trending-pipeline/internal/service/virality"
)

// Platform identifies a short-form video platform.
type Platform string

// Platform constants define the supported discovery sources.
const (
	PlatformYouTube   Platform = "youtube"
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
)

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformYouTube, PlatformTikTok, PlatformInstagram:
		return true
	}
	return false
}

// TrendingVideo is a normalized snapshot of a discovered piece of content.
// (Platform, SourceVideoID) is the natural external key.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type TrendingVideo struct {
	ID              uuid.UUID          `json:"id"`
	Platform        Platform           `json:"platform"`
	SourceVideoID   string             `json:"sourceVideoId"`
	Niche           string             `json:"niche"`
	Title           string             `json:"title"`
	CreatorHandle   *string            `json:"creatorHandle"`
	ThumbnailURL    *string            `json:"thumbnailUrl"`
	Permalink       string             `json:"permalink"`
	DurationSeconds *int               `json:"durationSeconds"`
	PublishedAt     *time.Time         `json:"publishedAt"`
	ViewsCount      int64              `json:"viewsCount"`
	LikesCount      int64              `json:"likesCount"`
	CommentsCount   int64              `json:"commentsCount"`
	SharesCount     int64              `json:"sharesCount"`
	ViralityScore   float64            `json:"viralityScore"`
	ScoreBreakdown  virality.Breakdown `json:"scoreBreakdown"`
	FetchedAt       time.Time          `json:"fetchedAt"`
}

// JobKind identifies the production pipeline a job runs through.
type JobKind string

// JobKind constants define the orchestrated pipelines.
const (
	JobKindVideoGeneration JobKind = "video_generation"
	JobKindRemix           JobKind = "remix"
	JobKindExport          JobKind = "export"
)

// Valid reports whether k is a known job kind.
func (k JobKind) Valid() bool {
	switch k {
	case JobKindVideoGeneration, JobKindRemix, JobKindExport:
		return true
	}
	return false
}

// JobStatus represents the lifecycle state of a production job.
type JobStatus string

// JobStatus constants define the job state machine.
const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true for completed and failed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// StepInit is the step label executors send with their first progress report.
const StepInit = "init"

// Artifacts are the outputs a pipeline produces, populated as stages complete.
type Artifacts struct {
	TranscriptURL      *string `json:"transcriptUrl,omitempty"`
	RewrittenScript    *string `json:"rewrittenScript,omitempty"`
	OutputVideoURL     *string `json:"outputVideoUrl,omitempty"`
	OutputThumbnailURL *string `json:"outputThumbnailUrl,omitempty"`
}

// CostMetrics are the executor-reported resource costs of a job.
type CostMetrics struct {
	TokensUsed        *int64   `json:"tokensUsed,omitempty"`
	TTSSeconds        *float64 `json:"ttsSeconds,omitempty"`
	CostEstimateCents *int64   `json:"costEstimateCents,omitempty"`
}

// ProductionJob is a single unit of orchestrated work.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type ProductionJob struct {
	JobID             string          `json:"jobId"`
	Kind              JobKind         `json:"kind"`
	Status            JobStatus       `json:"status"`
	Step              string          `json:"step"`
	ProgressPct       int             `json:"progressPct"`
	Payload           json.RawMessage `json:"payload,omitempty"`
	Artifacts         Artifacts       `json:"artifacts"`
	CostMetrics       CostMetrics     `json:"costMetrics"`
	Error             *string         `json:"error"`
	DispatchRef       *string         `json:"dispatchRef,omitempty"`
	CancelRequestedAt *time.Time      `json:"cancelRequestedAt,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	StartedAt         *time.Time      `json:"startedAt"`
	UpdatedAt         *time.Time      `json:"updatedAt"`
	CompletedAt       *time.Time      `json:"completedAt"`
}

// Clone returns a deep copy of the job.
func (j *ProductionJob) Clone() *ProductionJob {
	if j == nil {
		return nil
	}
	c := *j
	if j.Payload != nil {
		c.Payload = append(json.RawMessage(nil), j.Payload...)
	}
	c.Artifacts = Artifacts{
		TranscriptURL:      cloneString(j.Artifacts.TranscriptURL),
		RewrittenScript:    cloneString(j.Artifacts.RewrittenScript),
		OutputVideoURL:     cloneString(j.Artifacts.OutputVideoURL),
		OutputThumbnailURL: cloneString(j.Artifacts.OutputThumbnailURL),
	}
	c.CostMetrics = CostMetrics{
		TokensUsed:        cloneInt64(j.CostMetrics.TokensUsed),
		TTSSeconds:        cloneFloat(j.CostMetrics.TTSSeconds),
		CostEstimateCents: cloneInt64(j.CostMetrics.CostEstimateCents),
	}
	c.Error = cloneString(j.Error)
	c.DispatchRef = cloneString(j.DispatchRef)
	c.CancelRequestedAt = cloneTime(j.CancelRequestedAt)
	c.StartedAt = cloneTime(j.StartedAt)
	c.UpdatedAt = cloneTime(j.UpdatedAt)
	c.CompletedAt = cloneTime(j.CompletedAt)
	return &c
}

// RemixSource describes the trending video a remix job starts from.
type RemixSource struct {
	Platform      Platform `json:"platform,omitempty"`
	SourceVideoID string   `json:"sourceVideoId,omitempty"`
	Title         string   `json:"title"`
	Permalink     string   `json:"permalink,omitempty"`
	TranscriptURL string   `json:"transcriptUrl,omitempty"`
}

// RemixPayload is the submission payload for remix jobs.
type RemixPayload struct {
	Source *RemixSource `json:"source"`
	Style  string       `json:"style,omitempty"`
	Voice  string       `json:"voice,omitempty"`
}

// VideoGenerationPayload is the submission payload for AI video generation jobs.
type VideoGenerationPayload struct {
	ProjectID string `json:"projectId"`
	Prompt    string `json:"prompt,omitempty"`
}

// ExportFormat is an output aspect ratio for export jobs.
type ExportFormat string

// ExportFormat constants define the supported export aspect ratios.
const (
	ExportFormatVertical  ExportFormat = "9:16"
	ExportFormatSquare    ExportFormat = "1:1"
	ExportFormatLandscape ExportFormat = "16:9"
)

// ExportPayload is the submission payload for multi-format export jobs.
type ExportPayload struct {
	VideoURL string         `json:"videoUrl"`
	Formats  []ExportFormat `json:"formats"`
}

// SubmitJobDTO represents the job submission request.
type SubmitJobDTO struct {
	Kind    JobKind         `json:"kind" binding:"required"`
	JobID   string          `json:"jobId,omitempty" binding:"max=128"`
	Payload json.RawMessage `json:"payload"`
}

// SubmitJobResponseDTO represents the job submission response.
type SubmitJobResponseDTO struct {
	JobID    string    `json:"jobId"`
	Accepted bool      `json:"accepted"`
	Status   JobStatus `json:"status"`
	Error    *string   `json:"error,omitempty"`
}

// CancelJobResponseDTO represents the cancellation response.
type CancelJobResponseDTO struct {
	JobID           string    `json:"jobId"`
	CancelRequested bool      `json:"cancelRequested"`
	Status          JobStatus `json:"status"`
}

// JobCallbackDTO represents an executor progress or completion callback.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type JobCallbackDTO struct {
	JobID              string    `json:"jobId"`
	Status             JobStatus `json:"status"`
	Step               string    `json:"step"`
	ProgressPct        *int      `json:"progressPct,omitempty"`
	TranscriptURL      *string   `json:"transcriptUrl,omitempty"`
	RewrittenScript    *string   `json:"rewrittenScript,omitempty"`
	OutputVideoURL     *string   `json:"outputVideoUrl,omitempty"`
	OutputThumbnailURL *string   `json:"outputThumbnailUrl,omitempty"`
	TokensUsed         *int64    `json:"tokensUsed,omitempty"`
	TTSSeconds         *float64  `json:"ttsSeconds,omitempty"`
	CostEstimateCents  *int64    `json:"costEstimateCents,omitempty"`
	Error              *string   `json:"error,omitempty"`
}

// CallbackResponseDTO represents the webhook acknowledgement.
type CallbackResponseDTO struct {
	OK bool `json:"ok"`
}

// ErrorResponse represents an error response.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type ErrorResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Path      string    `json:"path"`
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt64(i *int64) *int64 {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
