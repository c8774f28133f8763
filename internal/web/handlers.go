package web

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/justestif/song-roulette/internal/auth"
	"github.com/justestif/song-roulette/internal/config"
	"github.com/justestif/song-roulette/internal/db"
	"github.com/justestif/song-roulette/internal/enrich"
)

// Error messages returned in JSON error bodies.
const (
	msgConfigError   = "Server configuration error"
	msgDatabaseError = "Database error"
	msgNoSongs       = "No songs found"
	msgSongNotFound  = "Song not found"
	msgNoToken       = "No access token found"
	msgTokenExpired  = "Access token has expired"
)

// Handlers contains HTTP handlers for the web application.
type Handlers struct {
	songs     SongService
	auth      *auth.Authenticator
	templates *Templates
	log       zerolog.Logger
	now       func() time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(songs SongService, authenticator *auth.Authenticator, templates *Templates, logger zerolog.Logger) *Handlers {
	return &Handlers{
		songs:     songs,
		auth:      authenticator,
		templates: templates,
		log:       logger,
		now:       time.Now,
	}
}

// RandomSong returns one enriched random song (GET /api/random-song).
func (h *Handlers) RandomSong(w http.ResponseWriter, r *http.Request) {
	song, err := h.songs.Random(r.Context())
	if err != nil {
		h.writeSongError(w, err, msgNoSongs)
		return
	}
	writeJSON(w, http.StatusOK, song)
}

// Song returns one enriched song by ID (GET /api/songs/{id}).
func (h *Handlers) Song(w http.ResponseWriter, r *http.Request) {
	song, err := h.songs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeSongError(w, err, msgSongNotFound)
		return
	}
	writeJSON(w, http.StatusOK, song)
}

// RefreshSong re-matches a song against Spotify (POST /api/songs/{id}/refresh).
func (h *Handlers) RefreshSong(w http.ResponseWriter, r *http.Request) {
	song, err := h.songs.Refresh(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeSongError(w, err, msgSongNotFound)
		return
	}
	writeJSON(w, http.StatusOK, song)
}

// ReportImage records a wrong album art report and re-matches the song
// (POST /api/songs/{id}/report-image).
func (h *Handlers) ReportImage(w http.ResponseWriter, r *http.Request) {
	song, err := h.songs.ReportImage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeSongError(w, err, msgSongNotFound)
		return
	}
	writeJSON(w, http.StatusOK, song)
}

// Home renders the playback card for a random song (GET /).
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	data := HomePageData{
		PageData: PageData{
			Title:       "Song Roulette",
			CurrentPath: r.URL.Path,
			Flash:       flashFromQuery(r.URL.Query()),
		},
		PlayerAuthorized: h.playerAuthorized(r),
	}

	status := http.StatusOK
	song, err := h.songs.Random(r.Context())
	if err != nil {
		status, data.Error = h.classify(err, msgNoSongs)
	}
	data.Song = song

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, "home", data); err != nil {
		h.log.Error().Err(err).Msg("rendering home")
	}
}

// Card renders only the song card fragment for a random song (GET /card).
func (h *Handlers) Card(w http.ResponseWriter, r *http.Request) {
	song, err := h.songs.Random(r.Context())
	if err != nil {
		status, msg := h.classify(err, msgNoSongs)
		http.Error(w, msg, status)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.RenderPartial(w, "song_card", CardData{Song: song}); err != nil {
		h.log.Error().Err(err).Msg("rendering song card")
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
	}
}

// Login initiates the Spotify OAuth flow (GET /auth/login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		writeError(w, http.StatusInternalServerError, msgConfigError)
		return
	}

	redirect, err := h.auth.Begin(w)
	if err != nil {
		h.log.Error().Err(err).Msg("starting spotify login")
		writeError(w, http.StatusInternalServerError, "Failed to create authorization URL")
		return
	}
	http.Redirect(w, r, redirect, http.StatusTemporaryRedirect)
}

// Callback handles the OAuth callback from Spotify (GET /callback).
// The outcome is reported to the home page through query parameters.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		writeError(w, http.StatusInternalServerError, msgConfigError)
		return
	}

	token, err := h.auth.Complete(r.Context(), w, r)
	if err != nil {
		h.log.Warn().Err(err).Msg("spotify callback failed")
		reason := "authentication_failed"
		switch {
		case errors.Is(err, auth.ErrAccessDenied):
			reason = r.URL.Query().Get("error")
		case errors.Is(err, auth.ErrStateMismatch):
			reason = "state_mismatch"
		case r.URL.Query().Get("code") == "":
			reason = "no_code"
		}
		http.Redirect(w, r, "/?error="+url.QueryEscape(reason), http.StatusTemporaryRedirect)
		return
	}

	h.auth.SetToken(w, token, h.now())
	http.Redirect(w, r, "/?auth=success", http.StatusTemporaryRedirect)
}

// SpotifyToken returns the user's access token for the browser player
// (GET /api/spotify-token).
func (h *Handlers) SpotifyToken(w http.ResponseWriter, r *http.Request) {
	token, err := auth.TokenFromRequest(r, h.now())
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, msgTokenExpired)
	case err != nil:
		writeError(w, http.StatusUnauthorized, msgNoToken)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"access_token": token})
	}
}

// Health reports liveness (GET /healthz).
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) playerAuthorized(r *http.Request) bool {
	_, err := auth.TokenFromRequest(r, h.now())
	return err == nil
}

// classify maps a pipeline error to a status code and public message.
func (h *Handlers) classify(err error, notFound string) (int, string) {
	switch {
	case errors.Is(err, config.ErrConfig), errors.Is(err, enrich.ErrReportsUnavailable):
		h.log.Error().Err(err).Msg("configuration error")
		return http.StatusInternalServerError, msgConfigError
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound, notFound
	default:
		h.log.Error().Err(err).Msg("catalog error")
		return http.StatusInternalServerError, msgDatabaseError
	}
}

func (h *Handlers) writeSongError(w http.ResponseWriter, err error, notFound string) {
	status, msg := h.classify(err, notFound)
	writeError(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// flashFromQuery turns the callback's ?auth= and ?error= parameters into a
// flash message.
func flashFromQuery(q url.Values) *FlashMessage {
	if reason := q.Get("error"); reason != "" {
		return &FlashMessage{Type: "error", Message: "Spotify login failed: " + reason}
	}
	if q.Get("auth") == "success" {
		return &FlashMessage{Type: "success", Message: "Connected to Spotify. Full-length playback is available."}
	}
	return nil
}
