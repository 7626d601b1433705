package youtube

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/shortforge/trending-pipeline/internal/models"
	"github.com/shortforge/trending-pipeline/internal/service/platform"
	"github.com/shortforge/trending-pipeline/pkg/logger"
)

// Quota costs of the Data API v3 calls this client makes.
const (
	SearchQuotaCost = 100
	VideosQuotaCost = 1

	// MaxResults is the per-request ceiling of search.list and videos.list.
	MaxResults = 50
)

// ErrQuotaExhausted is returned when the daily quota threshold would be crossed.
var ErrQuotaExhausted = errors.New("youtube daily quota threshold reached")

// QuotaGuard tracks Data API quota. A nil guard disables accounting.
type QuotaGuard interface {
	CheckQuotaAvailable(ctx context.Context, requiredQuota int) (bool, error)
	RecordQuotaUsage(ctx context.Context, quotaCost int, operationType string) error
}

// Client wraps the YouTube Data API v3 client
type Client struct {
	service *youtube.Service
	quota   QuotaGuard
}

// NewClient creates a new YouTube API client
func NewClient(ctx context.Context, apiKey string, quota QuotaGuard, opts ...option.ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("YouTube API key is required")
	}

	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}

	return &Client{
		service: service,
		quota:   quota,
	}, nil
}

// Platform implements the catalog source contract.
func (c *Client) Platform() models.Platform {
	return models.PlatformYouTube
}

// MaxResults implements the catalog source contract.
func (c *Client) MaxResults() int {
	return MaxResults
}

// Search finds short videos for niche ordered by view count, then resolves
// their statistics in a single videos.list call.
func (c *Client) Search(ctx context.Context, niche string, maxResults int) ([]platform.Payload, error) {
	if maxResults <= 0 || maxResults > MaxResults {
		maxResults = MaxResults
	}

	if err := c.reserve(ctx, SearchQuotaCost+VideosQuotaCost); err != nil {
		return nil, err
	}

	// Phase 1: candidate IDs
	search, err := c.service.Search.List([]string{"id"}).
		Q(niche).
		Type("video").
		VideoDuration("short").
		Order("viewCount").
		MaxResults(int64(maxResults)).
		Context(ctx).
		Do()
	c.record(ctx, SearchQuotaCost, "search.list")
	if err != nil {
		return nil, fmt.Errorf("search.list: %w", err)
	}

	ids := make([]string, 0, len(search.Items))
	seen := make(map[string]struct{}, len(search.Items))
	for _, item := range search.Items {
		if item.Id == nil {
			continue
		}
		id := strings.TrimSpace(item.Id.VideoId)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	if len(ids) == 0 {
		return []platform.Payload{}, nil
	}

	// Phase 2: statistics for exactly those IDs
	videos, err := c.FetchVideos(ctx, ids)
	if err != nil {
		return nil, err
	}

	// Keep the search ranking order
	byID := make(map[string]platform.YouTubePayload, len(videos))
	for _, v := range videos {
		byID[v.VideoID] = v
	}
	out := make([]platform.Payload, 0, len(ids))
	for _, id := range ids {
		if v, ok := byID[id]; ok {
			out = append(out, v)
		}
	}

	// Private, deleted or region-blocked videos drop out of videos.list
	if dropped := len(ids) - len(out); dropped > 0 {
		logger.Log.Warn("YouTube videos missing from videos.list",
			zap.String("niche", niche),
			zap.Int("candidates", len(ids)),
			zap.Int("dropped", dropped),
		)
	}

	logger.Log.Debug("YouTube search resolved",
		zap.String("niche", niche),
		zap.Int("candidates", len(ids)),
		zap.Int("resolved", len(out)),
	)

	return out, nil
}

// FetchVideos retrieves snippet, contentDetails and statistics for up to 50
// videos in a single batch.
func (c *Client) FetchVideos(ctx context.Context, videoIDs []string) ([]platform.YouTubePayload, error) {
	if len(videoIDs) == 0 {
		return nil, fmt.Errorf("no video IDs provided")
	}

	if len(videoIDs) > MaxResults {
		return nil, fmt.Errorf("too many video IDs (max %d, got %d)", MaxResults, len(videoIDs))
	}

	parts := []string{"snippet", "contentDetails", "statistics"}

	response, err := c.service.Videos.List(parts).Id(videoIDs...).Context(ctx).Do()
	c.record(ctx, VideosQuotaCost, "videos.list")
	if err != nil {
		return nil, fmt.Errorf("videos.list: %w", err)
	}

	payloads := make([]platform.YouTubePayload, 0, len(response.Items))
	for _, item := range response.Items {
		payloads = append(payloads, mapVideo(item))
	}

	return payloads, nil
}

// mapVideo converts a YouTube API video into the catalog payload
func mapVideo(video *youtube.Video) platform.YouTubePayload {
	p := platform.YouTubePayload{VideoID: video.Id}

	if video.Snippet != nil {
		p.Title = video.Snippet.Title
		p.ChannelTitle = video.Snippet.ChannelTitle
		p.PublishedAt = video.Snippet.PublishedAt
		p.ThumbnailURL = bestThumbnail(video.Snippet.Thumbnails)
	}

	if video.ContentDetails != nil {
		p.Duration = video.ContentDetails.Duration
	}

	if video.Statistics != nil {
		p.ViewCount = video.Statistics.ViewCount
		p.LikeCount = video.Statistics.LikeCount
		p.CommentCount = video.Statistics.CommentCount
	}

	return p
}

func bestThumbnail(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*youtube.Thumbnail{t.Maxres, t.Standard, t.High, t.Medium, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}

func (c *Client) reserve(ctx context.Context, units int) error {
	if c.quota == nil {
		return nil
	}
	ok, err := c.quota.CheckQuotaAvailable(ctx, units)
	if err != nil {
		logger.Log.Warn("Quota check failed, proceeding without accounting", zap.Error(err))
		return nil
	}
	if !ok {
		return ErrQuotaExhausted
	}
	return nil
}

func (c *Client) record(ctx context.Context, units int, op string) {
	if c.quota == nil {
		return
	}
	if err := c.quota.RecordQuotaUsage(ctx, units, op); err != nil {
		logger.Log.Warn("Failed to record quota usage",
			zap.Error(err),
			zap.String("operation", op),
		)
	}
}
