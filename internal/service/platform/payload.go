// Package platform holds the per-platform raw video payloads and the pure
// mapping from each of them into a scored models.TrendingVideo.
package platform

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shortforge/trending-pipeline/internal/models"
	"github.com/shortforge/trending-pipeline/internal/service/virality"
)

// ErrMissingID is returned for a payload without a platform-native identifier.
var ErrMissingID = errors.New("payload has no video id")

// Payload is one raw video as reported by a platform source. The set of
// implementations is closed: YouTubePayload, TikTokPayload, InstagramPayload.
type Payload interface {
	Platform() models.Platform
	isPayload()
}

// YouTubePayload is a videos.list item reduced to the fields the catalog uses.
type YouTubePayload struct {
	VideoID      string
	Title        string
	ChannelTitle string
	ThumbnailURL string
	Duration     string // ISO-8601, e.g. PT1M30S
	PublishedAt  string // RFC3339
	ViewCount    uint64
	LikeCount    uint64
	CommentCount uint64
}

func (YouTubePayload) Platform() models.Platform { return models.PlatformYouTube }
func (YouTubePayload) isPayload()                {}

// TikTokAuthor is the authorMeta block of a TikTok scraper item.
type TikTokAuthor struct {
	Name string `json:"name"`
}

// TikTokVideoMeta is the videoMeta block of a TikTok scraper item.
type TikTokVideoMeta struct {
	Duration *float64 `json:"duration"`
	CoverURL string   `json:"coverUrl"`
}

// TikTokPayload is one dataset item from the TikTok scraper actor.
type TikTokPayload struct {
	ID            string           `json:"id"`
	Text          string           `json:"text"`
	WebVideoURL   string           `json:"webVideoUrl"`
	CreateTimeISO string           `json:"createTimeISO"`
	AuthorMeta    *TikTokAuthor    `json:"authorMeta"`
	VideoMeta     *TikTokVideoMeta `json:"videoMeta"`
	PlayCount     *int64           `json:"playCount"`
	DiggCount     *int64           `json:"diggCount"`
	CommentCount  *int64           `json:"commentCount"`
	ShareCount    *int64           `json:"shareCount"`
}

func (TikTokPayload) Platform() models.Platform { return models.PlatformTikTok }
func (TikTokPayload) isPayload()                {}

// InstagramPayload is one dataset item from the Instagram scraper actor.
type InstagramPayload struct {
	ID             string   `json:"id"`
	ShortCode      string   `json:"shortCode"`
	Caption        string   `json:"caption"`
	URL            string   `json:"url"`
	Timestamp      string   `json:"timestamp"`
	DisplayURL     string   `json:"displayUrl"`
	OwnerUsername  string   `json:"ownerUsername"`
	VideoDuration  *float64 `json:"videoDuration"`
	VideoViewCount *int64   `json:"videoViewCount"`
	VideoPlayCount *int64   `json:"videoPlayCount"`
	LikesCount     *int64   `json:"likesCount"`
	CommentsCount  *int64   `json:"commentsCount"`
}

func (InstagramPayload) Platform() models.Platform { return models.PlatformInstagram }
func (InstagramPayload) isPayload()                {}

const maxTitleRunes = 200

// Normalize maps a raw payload into a scored TrendingVideo. Metrics the
// platform omitted become 0; unknown duration and publish time stay nil.
func Normalize(p Payload, niche string, fetchedAt time.Time) (*models.TrendingVideo, error) {
	var v *models.TrendingVideo

	switch raw := p.(type) {
	case YouTubePayload:
		v = fromYouTube(raw)
	case *YouTubePayload:
		v = fromYouTube(*raw)
	case TikTokPayload:
		v = fromTikTok(raw)
	case *TikTokPayload:
		v = fromTikTok(*raw)
	case InstagramPayload:
		v = fromInstagram(raw)
	case *InstagramPayload:
		v = fromInstagram(*raw)
	default:
		return nil, fmt.Errorf("unsupported payload type %T", p)
	}

	if v.SourceVideoID == "" {
		return nil, fmt.Errorf("%s: %w", p.Platform(), ErrMissingID)
	}

	v.Niche = niche
	v.FetchedAt = fetchedAt

	result := virality.Compute(virality.Metrics{
		Views:       v.ViewsCount,
		Likes:       v.LikesCount,
		Comments:    v.CommentsCount,
		Shares:      v.SharesCount,
		AgeHours:    virality.AgeHours(v.PublishedAt, fetchedAt),
		DurationSec: v.DurationSeconds,
	})
	v.ViralityScore = result.Score
	v.ScoreBreakdown = result.Breakdown

	return v, nil
}

func fromYouTube(p YouTubePayload) *models.TrendingVideo {
	id := strings.TrimSpace(p.VideoID)
	return &models.TrendingVideo{
		Platform:        models.PlatformYouTube,
		SourceVideoID:   id,
		Title:           titleOrDefault(p.Title),
		CreatorHandle:   optional(p.ChannelTitle),
		ThumbnailURL:    optional(p.ThumbnailURL),
		Permalink:       "https://www.youtube.com/shorts/" + id,
		DurationSeconds: ParseISODuration(p.Duration),
		PublishedAt:     parseTime(p.PublishedAt),
		ViewsCount:      fromUnsigned(p.ViewCount),
		LikesCount:      fromUnsigned(p.LikeCount),
		CommentsCount:   fromUnsigned(p.CommentCount),
	}
}

func fromTikTok(p TikTokPayload) *models.TrendingVideo {
	id := strings.TrimSpace(p.ID)
	v := &models.TrendingVideo{
		Platform:      models.PlatformTikTok,
		SourceVideoID: id,
		Title:         titleOrDefault(p.Text),
		Permalink:     p.WebVideoURL,
		PublishedAt:   parseTime(p.CreateTimeISO),
		ViewsCount:    count(p.PlayCount),
		LikesCount:    count(p.DiggCount),
		CommentsCount: count(p.CommentCount),
		SharesCount:   count(p.ShareCount),
	}

	var author string
	if p.AuthorMeta != nil {
		author = p.AuthorMeta.Name
		v.CreatorHandle = optional(author)
	}
	if p.VideoMeta != nil {
		v.ThumbnailURL = optional(p.VideoMeta.CoverURL)
		v.DurationSeconds = wholeSeconds(p.VideoMeta.Duration)
	}
	if v.Permalink == "" && id != "" {
		v.Permalink = fmt.Sprintf("https://www.tiktok.com/@%s/video/%s", author, id)
	}
	return v
}

func fromInstagram(p InstagramPayload) *models.TrendingVideo {
	id := strings.TrimSpace(p.ID)
	if id == "" {
		id = strings.TrimSpace(p.ShortCode)
	}

	views := p.VideoPlayCount
	if views == nil {
		views = p.VideoViewCount
	}

	v := &models.TrendingVideo{
		Platform:        models.PlatformInstagram,
		SourceVideoID:   id,
		Title:           titleOrDefault(p.Caption),
		CreatorHandle:   optional(p.OwnerUsername),
		ThumbnailURL:    optional(p.DisplayURL),
		Permalink:       p.URL,
		DurationSeconds: wholeSeconds(p.VideoDuration),
		PublishedAt:     parseTime(p.Timestamp),
		ViewsCount:      count(views),
		LikesCount:      count(p.LikesCount),
		CommentsCount:   count(p.CommentsCount),
	}
	if v.Permalink == "" && p.ShortCode != "" {
		v.Permalink = "https://www.instagram.com/reel/" + p.ShortCode + "/"
	}
	return v
}

func titleOrDefault(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "Untitled"
	}
	if r := []rune(s); len(r) > maxTitleRunes {
		return string(r[:maxTitleRunes])
	}
	return s
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func count(v *int64) int64 {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}

func fromUnsigned(v uint64) int64 {
	const maxInt64 = 1<<63 - 1
	if v > maxInt64 {
		return maxInt64
	}
	return int64(v)
}

func wholeSeconds(f *float64) *int {
	if f == nil || *f <= 0 || *f >= math.MaxInt32 || math.IsNaN(*f) {
		return nil
	}
	s := int(*f + 0.5)
	if s == 0 {
		return nil
	}
	return &s
}
