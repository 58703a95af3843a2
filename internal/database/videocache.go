package database

import (
	"context"
	"fmt"
	"time"
)

// CachedVideo is one remembered search result's metadata.
type CachedVideo struct {
	VideoID      string
	Title        string
	ThumbnailURL string
	Duration     string
	Channel      string
	FetchedAt    time.Time
}

// VideoCacheStore keeps search-result metadata so download submissions can
// resolve a title without another network round trip.
type VideoCacheStore struct {
	db  *DB
	ttl time.Duration
}

func NewVideoCacheStore(db *DB, ttl time.Duration) *VideoCacheStore {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &VideoCacheStore{db: db, ttl: ttl}
}

func (s *VideoCacheStore) Put(ctx context.Context, v CachedVideo) error {
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO video_cache (video_id, title, thumbnail, duration, channel, fetched_at)
		 VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(video_id) DO UPDATE SET
		   title = excluded.title, thumbnail = excluded.thumbnail,
		   duration = excluded.duration, channel = excluded.channel,
		   fetched_at = excluded.fetched_at`,
		v.VideoID, v.Title, v.ThumbnailURL, v.Duration, v.Channel)
	if err != nil {
		return fmt.Errorf("cache video %s: %w", v.VideoID, err)
	}
	return nil
}

// Get returns the cached metadata unless it has aged past the TTL.
func (s *VideoCacheStore) Get(ctx context.Context, videoID string) (*CachedVideo, bool) {
	v := &CachedVideo{}
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT video_id, title, thumbnail, duration, channel, fetched_at
		 FROM video_cache WHERE video_id = ?`, videoID).
		Scan(&v.VideoID, &v.Title, &v.ThumbnailURL, &v.Duration, &v.Channel, &v.FetchedAt)
	if err != nil {
		return nil, false
	}
	if time.Since(v.FetchedAt) > s.ttl {
		return nil, false
	}
	return v, true
}
