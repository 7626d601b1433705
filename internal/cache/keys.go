package cache

import (
	"fmt"
	"strings"

	"github.com/shortforge/trending-pipeline/internal/models"
)

func CatalogKey(platform models.Platform, niche string, maxResults int) string {
	return fmt.Sprintf("trending:%s:%s:%d", platform, strings.ToLower(strings.TrimSpace(niche)), maxResults)
}

func QuotaKey(api, day string) string {
	return fmt.Sprintf("quota:%s:%s", api, day)
}
