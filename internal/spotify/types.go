package spotify

import (
	"github.com/zmb3/spotify/v2"
)

// Track is the subset of Spotify track metadata used to enrich songs.
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []string `json:"artists,omitempty"`
	PreviewURL string   `json:"preview_url,omitempty"`
	SpotifyURL string   `json:"spotify_url,omitempty"`
	Images     []string `json:"images,omitempty"` // album images, largest first
}

// AlbumArt returns the first album image URL, or "" if there is none.
func (t *Track) AlbumArt() string {
	if t == nil || len(t.Images) == 0 {
		return ""
	}
	return t.Images[0]
}

// convertTrack converts a Spotify FullTrack to a Track.
func convertTrack(ft *spotify.FullTrack) Track {
	artists := make([]string, len(ft.Artists))
	for i, a := range ft.Artists {
		artists[i] = a.Name
	}

	images := make([]string, 0, len(ft.Album.Images))
	for _, img := range ft.Album.Images {
		if img.URL != "" {
			images = append(images, img.URL)
		}
	}

	return Track{
		ID:         ft.ID.String(),
		Name:       ft.Name,
		Artists:    artists,
		PreviewURL: ft.PreviewURL,
		SpotifyURL: ft.ExternalURLs["spotify"],
		Images:     images,
	}
}
