// Package youtube searches YouTube through the public innertube endpoint
// and resolves video metadata for download submissions.
package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/benasterisk/stemtube/internal/database"
)

const (
	searchEndpoint  = "https://www.youtube.com/youtubei/v1/search"
	suggestEndpoint = "https://suggestqueries.google.com/complete/search"

	clientName    = "WEB"
	clientVersion = "2.20240801.00.00"
)

// Video is one search result.
type Video struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url"`
	Duration     string `json:"duration"`
	Channel      string `json:"channel"`
	Views        string `json:"views"`
}

// Client queries the innertube API. Metadata for returned videos is written
// through to the cache so later submissions can resolve titles offline.
type Client struct {
	http  *http.Client
	cache *database.VideoCacheStore
}

func NewClient(cache *database.VideoCacheStore) *Client {
	return &Client{
		http:  &http.Client{Timeout: 15 * time.Second},
		cache: cache,
	}
}

// Search returns up to limit results for the query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Video, error) {
	if limit <= 0 {
		limit = 20
	}

	body, err := json.Marshal(map[string]any{
		"context": map[string]any{
			"client": map[string]any{
				"clientName":    clientName,
				"clientVersion": clientVersion,
			},
		},
		"query": query,
		// Restrict results to plain videos.
		"params": "EgIQAQ==",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, searchEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request: unexpected status %s", resp.Status)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}

	videos, err := parseSearchResponse(raw)
	if err != nil {
		return nil, err
	}
	if len(videos) > limit {
		videos = videos[:limit]
	}

	if c.cache != nil {
		for _, v := range videos {
			if err := c.cache.Put(ctx, database.CachedVideo{
				VideoID:      v.ID,
				Title:        v.Title,
				ThumbnailURL: v.ThumbnailURL,
				Duration:     v.Duration,
				Channel:      v.Channel,
			}); err != nil {
				log.Warn().Err(err).Str("video_id", v.ID).Msg("video cache write failed")
			}
		}
	}
	return videos, nil
}

// Lookup resolves metadata for a single video id from the cache.
func (c *Client) Lookup(ctx context.Context, videoID string) (*Video, bool) {
	if c.cache == nil {
		return nil, false
	}
	cached, ok := c.cache.Get(ctx, videoID)
	if !ok {
		return nil, false
	}
	return &Video{
		ID:           cached.VideoID,
		Title:        cached.Title,
		ThumbnailURL: cached.ThumbnailURL,
		Duration:     cached.Duration,
		Channel:      cached.Channel,
	}, true
}

// Suggest returns autocomplete suggestions for a partial query.
func (c *Client) Suggest(ctx context.Context, query string) ([]string, error) {
	u := suggestEndpoint + "?" + url.Values{
		"client": {"firefox"},
		"ds":     {"yt"},
		"q":      {query},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("suggest request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("suggest request: unexpected status %s", resp.Status)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	return parseSuggestions(raw)
}
