package db

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
)

// songColumns is the select list shared by all song queries. The id is read
// as text so both uuid and text primary keys work.
const songColumns = `id::text, title, artist, work, jacket_url, spotify_track_id,
	normalized_title, normalized_artist, updated_at`

// SongRepository handles song catalog operations.
type SongRepository struct {
	q querier
}

// All retrieves every song in the catalog ordered by title.
func (r *SongRepository) All(ctx context.Context) ([]Song, error) {
	query := `SELECT ` + songColumns + ` FROM songs ORDER BY title, id`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, storeError(err, "querying songs")
	}
	defer rows.Close()

	var songs []Song
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, storeError(err, "scanning song")
		}
		songs = append(songs, *song)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(err, "iterating songs")
	}
	return songs, nil
}

// Random retrieves one uniformly random song.
// Returns ErrNotFound if the catalog is empty.
func (r *SongRepository) Random(ctx context.Context) (*Song, error) {
	query := `SELECT ` + songColumns + ` FROM songs ORDER BY random() LIMIT 1`

	song, err := scanSong(r.q.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(ErrNotFound, "catalog is empty")
	}
	if err != nil {
		return nil, storeError(err, "querying random song")
	}
	return song, nil
}

// Get retrieves a song by ID.
func (r *SongRepository) Get(ctx context.Context, id string) (*Song, error) {
	query := `SELECT ` + songColumns + ` FROM songs WHERE id::text = $1`

	song, err := scanSong(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "song %s", id)
	}
	if err != nil {
		return nil, storeError(err, "querying song")
	}
	return song, nil
}

// UpdateMetadata applies a partial metadata update to a song.
// An empty update is a no-op. Returns ErrNotFound if no row matches.
func (r *SongRepository) UpdateMetadata(ctx context.Context, id string, u MetadataUpdate) error {
	if u.IsEmpty() {
		return nil
	}

	query := `
		UPDATE songs SET
			spotify_track_id = COALESCE($2, spotify_track_id),
			jacket_url = COALESCE($3, jacket_url),
			normalized_title = COALESCE($4, normalized_title),
			normalized_artist = COALESCE($5, normalized_artist),
			updated_at = NOW()
		WHERE id::text = $1
	`
	result, err := r.q.Exec(ctx, query, id, u.SpotifyTrackID, u.JacketURL, u.NormalizedTitle, u.NormalizedArtist)
	if err != nil {
		return storeError(err, "updating song metadata")
	}
	if result.RowsAffected() == 0 {
		return errors.Wrapf(ErrNotFound, "song %s", id)
	}
	return nil
}

// scanSong reads one song from a row in songColumns order.
func scanSong(row pgx.Row) (*Song, error) {
	var song Song
	err := row.Scan(
		&song.ID,
		&song.Title,
		&song.Artist,
		&song.Work,
		&song.JacketURL,
		&song.SpotifyTrackID,
		&song.NormalizedTitle,
		&song.NormalizedArtist,
		&song.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &song, nil
}
