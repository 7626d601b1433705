package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shortforge/trending-pipeline/internal/db"
	"github.com/shortforge/trending-pipeline/internal/models"
)

// TrendingVideoRepository persists scored catalog batches.
type TrendingVideoRepository interface {
	// SaveBatch inserts every video of one fetch cycle in a single transaction.
	// Either the whole batch is stored or none of it is.
	SaveBatch(ctx context.Context, videos []*models.TrendingVideo) error

	// ListLatest returns the most recent fetch cycle for a platform and niche,
	// ordered by virality score descending.
	ListLatest(ctx context.Context, platform models.Platform, niche string, limit int) ([]*models.TrendingVideo, error)
}

type trendingVideoRepository struct {
	pool *pgxpool.Pool
}

// NewTrendingVideoRepository creates a new TrendingVideoRepository.
func NewTrendingVideoRepository(pool *pgxpool.Pool) TrendingVideoRepository {
	return &trendingVideoRepository{pool: pool}
}

func (r *trendingVideoRepository) SaveBatch(ctx context.Context, videos []*models.TrendingVideo) error {
	if len(videos) == 0 {
		return nil
	}

	query := `
		INSERT INTO trending_videos (
			id, platform, source_video_id, niche, title, creator_handle, thumbnail_url,
			permalink, duration_seconds, published_at,
			views_count, likes_count, comments_count, shares_count,
			virality_score, score_breakdown, fetched_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	batch := &pgx.Batch{}
	for _, v := range videos {
		if v.ID == uuid.Nil {
			v.ID = uuid.New()
		}
		breakdown, err := json.Marshal(v.ScoreBreakdown)
		if err != nil {
			return fmt.Errorf("marshal score breakdown: %w", err)
		}
		batch.Queue(query,
			v.ID, string(v.Platform), v.SourceVideoID, v.Niche, v.Title, v.CreatorHandle, v.ThumbnailURL,
			v.Permalink, v.DurationSeconds, v.PublishedAt,
			v.ViewsCount, v.LikesCount, v.CommentsCount, v.SharesCount,
			v.ViralityScore, breakdown, v.FetchedAt,
		)
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return db.WrapError(err, "save trending batch")
	}

	return nil
}

func (r *trendingVideoRepository) ListLatest(ctx context.Context, platform models.Platform, niche string, limit int) ([]*models.TrendingVideo, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, platform, source_video_id, niche, title, creator_handle, thumbnail_url,
		       permalink, duration_seconds, published_at,
		       views_count, likes_count, comments_count, shares_count,
		       virality_score, score_breakdown, fetched_at
		FROM trending_videos
		WHERE platform = $1 AND niche = $2
		  AND fetched_at = (
		      SELECT MAX(fetched_at) FROM trending_videos WHERE platform = $1 AND niche = $2
		  )
		ORDER BY virality_score DESC, source_video_id ASC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, string(platform), niche, limit)
	if err != nil {
		return nil, db.WrapError(err, "list latest trending videos")
	}
	defer rows.Close()

	var videos []*models.TrendingVideo
	for rows.Next() {
		v := &models.TrendingVideo{}
		var (
			p         string
			breakdown []byte
		)
		if err := rows.Scan(
			&v.ID, &p, &v.SourceVideoID, &v.Niche, &v.Title, &v.CreatorHandle, &v.ThumbnailURL,
			&v.Permalink, &v.DurationSeconds, &v.PublishedAt,
			&v.ViewsCount, &v.LikesCount, &v.CommentsCount, &v.SharesCount,
			&v.ViralityScore, &breakdown, &v.FetchedAt,
		); err != nil {
			return nil, fmt.Errorf("scan trending video: %w", err)
		}
		v.Platform = models.Platform(p)
		if err := json.Unmarshal(breakdown, &v.ScoreBreakdown); err != nil {
			return nil, fmt.Errorf("decode score breakdown: %w", err)
		}
		videos = append(videos, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trending videos: %w", err)
	}

	return videos, nil
}
