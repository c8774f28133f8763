package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ReportRepository handles image report operations.
type ReportRepository struct {
	q querier
}

// Create records an incorrect-image report for a song.
func (r *ReportRepository) Create(ctx context.Context, songID string) (*ImageReport, error) {
	report := &ImageReport{
		ID:         uuid.New(),
		SongID:     songID,
		ReportedAt: time.Now().UTC(),
	}

	query := `
		INSERT INTO image_reports (id, song_id, reported_at)
		VALUES ($1, $2, $3)
	`
	if _, err := r.q.Exec(ctx, query, report.ID, report.SongID, report.ReportedAt); err != nil {
		return nil, storeError(err, "inserting image report")
	}
	return report, nil
}

// CountForSong returns how many image reports exist for a song.
func (r *ReportRepository) CountForSong(ctx context.Context, songID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM image_reports WHERE song_id = $1`
	if err := r.q.QueryRow(ctx, query, songID).Scan(&count); err != nil {
		return 0, storeError(err, "counting image reports")
	}
	return count, nil
}
