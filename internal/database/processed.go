package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"
)

// ProcessedStore remembers finished downloads and extractions so repeat
// requests can be served from disk instead of re-running the external
// tools.
type ProcessedStore struct {
	db *DB
}

func NewProcessedStore(db *DB) *ProcessedStore {
	return &ProcessedStore{db: db}
}

// ProcessedDownload is one remembered download output.
type ProcessedDownload struct {
	VideoID   string
	Kind      string
	Quality   string
	Title     string
	FilePath  string
	CreatedAt time.Time
}

// RecordDownload stores or replaces the output for a video/kind/quality
// combination.
func (s *ProcessedStore) RecordDownload(ctx context.Context, d ProcessedDownload) error {
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO processed_downloads (video_id, kind, quality, title, file_path)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(video_id, kind, quality) DO UPDATE SET title = excluded.title, file_path = excluded.file_path`,
		d.VideoID, d.Kind, d.Quality, d.Title, d.FilePath)
	if err != nil {
		return fmt.Errorf("record download: %w", err)
	}
	return nil
}

// LookupDownload returns the remembered output if it exists both in the
// database and on disk. Stale rows whose file vanished are pruned.
func (s *ProcessedStore) LookupDownload(ctx context.Context, videoID, kind, quality string) (*ProcessedDownload, bool) {
	d := &ProcessedDownload{}
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT video_id, kind, quality, title, file_path, created_at
		 FROM processed_downloads WHERE video_id = ? AND kind = ? AND quality = ?`,
		videoID, kind, quality).
		Scan(&d.VideoID, &d.Kind, &d.Quality, &d.Title, &d.FilePath, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) || err != nil {
		return nil, false
	}
	if _, err := os.Stat(d.FilePath); err != nil {
		_, _ = s.db.sql.ExecContext(ctx,
			"DELETE FROM processed_downloads WHERE video_id = ? AND kind = ? AND quality = ?",
			videoID, kind, quality)
		return nil, false
	}
	return d, true
}

// ProcessedExtraction is one remembered extraction output directory.
type ProcessedExtraction struct {
	AudioHash string
	Model     string
	OutputDir string
	CreatedAt time.Time
}

func (s *ProcessedStore) RecordExtraction(ctx context.Context, e ProcessedExtraction) error {
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO processed_extractions (audio_hash, model, output_dir)
		 VALUES (?, ?, ?)
		 ON CONFLICT(audio_hash, model) DO UPDATE SET output_dir = excluded.output_dir`,
		e.AudioHash, e.Model, e.OutputDir)
	if err != nil {
		return fmt.Errorf("record extraction: %w", err)
	}
	return nil
}

func (s *ProcessedStore) LookupExtraction(ctx context.Context, audioHash, model string) (*ProcessedExtraction, bool) {
	e := &ProcessedExtraction{}
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT audio_hash, model, output_dir, created_at
		 FROM processed_extractions WHERE audio_hash = ? AND model = ?`,
		audioHash, model).
		Scan(&e.AudioHash, &e.Model, &e.OutputDir, &e.CreatedAt)
	if err != nil {
		return nil, false
	}
	if _, err := os.Stat(e.OutputDir); err != nil {
		_, _ = s.db.sql.ExecContext(ctx,
			"DELETE FROM processed_extractions WHERE audio_hash = ? AND model = ?", audioHash, model)
		return nil, false
	}
	return e, true
}
