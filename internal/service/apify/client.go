// Package apify fetches TikTok and Instagram trending items through Apify
// scraper actors.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shortforge/trending-pipeline/internal/models"
	"github.com/shortforge/trending-pipeline/internal/service/platform"
	"github.com/shortforge/trending-pipeline/pkg/logger"
)

const (
	DefaultBaseURL        = "https://api.apify.com"
	DefaultTikTokActor    = "clockworks~tiktok-scraper"
	DefaultInstagramActor = "apify~instagram-hashtag-scraper"

	// MaxResults is the per-run item ceiling.
	MaxResults = 50

	maxErrorBody = 512
)

// Client runs Apify actors synchronously and reads their dataset items.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Config holds the configuration for the Apify client
type Config struct {
	BaseURL string        // default https://api.apify.com
	Token   string        // API token
	Timeout time.Duration // Request timeout (default: 120 seconds)
}

// NewClient creates a new Apify client
func NewClient(config Config) (*Client, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("apify token is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}

	return &Client{
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		token:   config.Token,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// runActor posts input to run-sync-get-dataset-items and decodes the dataset into out.
func (c *Client) runActor(ctx context.Context, actor string, input any, out any) error {
	reqBody, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("marshal actor input: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items?%s",
		c.baseURL, url.PathEscape(actor), url.Values{"format": {"json"}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("run actor %s: %w", actor, err)
	}
	defer resp.Body.Close()

	// run-sync answers 201 Created when the run finishes inside the timeout
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("apify actor %s returned status %d: %s", actor, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode dataset items from %s: %w", actor, err)
	}

	logger.Log.Debug("Apify actor finished",
		zap.String("actor", actor),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func clampResults(n int) int {
	if n <= 0 || n > MaxResults {
		return MaxResults
	}
	return n
}

// TikTokSource searches TikTok videos by keyword.
type TikTokSource struct {
	client *Client
	actor  string
}

// NewTikTokSource creates a TikTok source. An empty actor uses DefaultTikTokActor.
func NewTikTokSource(client *Client, actor string) *TikTokSource {
	if actor == "" {
		actor = DefaultTikTokActor
	}
	return &TikTokSource{client: client, actor: actor}
}

type tiktokInput struct {
	SearchQueries  []string `json:"searchQueries"`
	SearchSection  string   `json:"searchSection"`
	ResultsPerPage int      `json:"resultsPerPage"`
}

func (s *TikTokSource) Platform() models.Platform { return models.PlatformTikTok }

func (s *TikTokSource) MaxResults() int { return MaxResults }

// Search returns up to maxResults TikTok items for niche.
func (s *TikTokSource) Search(ctx context.Context, niche string, maxResults int) ([]platform.Payload, error) {
	var items []platform.TikTokPayload
	input := tiktokInput{
		SearchQueries:  []string{niche},
		SearchSection:  "/video",
		ResultsPerPage: clampResults(maxResults),
	}
	if err := s.client.runActor(ctx, s.actor, input, &items); err != nil {
		return nil, err
	}

	out := make([]platform.Payload, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}
	return out, nil
}

// InstagramSource searches Instagram reels by hashtag.
type InstagramSource struct {
	client *Client
	actor  string
}

// NewInstagramSource creates an Instagram source. An empty actor uses DefaultInstagramActor.
func NewInstagramSource(client *Client, actor string) *InstagramSource {
	if actor == "" {
		actor = DefaultInstagramActor
	}
	return &InstagramSource{client: client, actor: actor}
}

type instagramInput struct {
	Hashtags     []string `json:"hashtags"`
	ResultsType  string   `json:"resultsType"`
	ResultsLimit int      `json:"resultsLimit"`
}

func (s *InstagramSource) Platform() models.Platform { return models.PlatformInstagram }

func (s *InstagramSource) MaxResults() int { return MaxResults }

// Search returns up to maxResults Instagram reels for the niche hashtag.
func (s *InstagramSource) Search(ctx context.Context, niche string, maxResults int) ([]platform.Payload, error) {
	var items []platform.InstagramPayload
	input := instagramInput{
		Hashtags:     []string{hashtag(niche)},
		ResultsType:  "reels",
		ResultsLimit: clampResults(maxResults),
	}
	if err := s.client.runActor(ctx, s.actor, input, &items); err != nil {
		return nil, err
	}

	out := make([]platform.Payload, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}
	return out, nil
}

// hashtag turns a niche keyword into a hashtag: "street food" -> "streetfood".
func hashtag(niche string) string {
	return strings.ToLower(strings.Join(strings.Fields(strings.TrimPrefix(strings.TrimSpace(niche), "#")), ""))
}
