package db

import (
	"time"

	"github.com/google/uuid"
)

// Song is a catalog row.
type Song struct {
	ID               string
	Title            string
	Artist           string
	Work             string  // containing work, e.g. the anime or game title
	JacketURL        *string // nullable
	SpotifyTrackID   *string // nullable
	NormalizedTitle  *string // nullable - cleaned title used for the last successful lookup
	NormalizedArtist *string // nullable
	UpdatedAt        time.Time
}

// MetadataUpdate is a partial update of a song's lookup metadata.
// Nil fields are left unchanged.
type MetadataUpdate struct {
	SpotifyTrackID   *string
	JacketURL        *string
	NormalizedTitle  *string
	NormalizedArtist *string
}

// IsEmpty reports whether the update would change nothing.
func (u MetadataUpdate) IsEmpty() bool {
	return u.SpotifyTrackID == nil && u.JacketURL == nil &&
		u.NormalizedTitle == nil && u.NormalizedArtist == nil
}

// ImageReport records a user report that a song's album art is wrong.
type ImageReport struct {
	ID         uuid.UUID
	SongID     string
	ReportedAt time.Time
}
