// Package enrich attaches Spotify metadata to catalog songs. Lookups are
// cached, successful matches are written back to the catalog in the
// background, and every failure of the metadata service degrades to
// fallback data instead of an error.
package enrich

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/justestif/song-roulette/internal/cache"
	"github.com/justestif/song-roulette/internal/db"
	"github.com/justestif/song-roulette/internal/spotify"
)

const (
	// DefaultLookupTimeout bounds authentication plus search for one song.
	DefaultLookupTimeout = 10 * time.Second
	// DefaultWriteBackTimeout bounds one background catalog update.
	DefaultWriteBackTimeout = 5 * time.Second
	// DefaultPlaceholder is the album art used when nothing better exists.
	DefaultPlaceholder = "/static/default-album-art.svg"
)

// ErrReportsUnavailable is returned by ReportImage when no report store is configured.
var ErrReportsUnavailable = errors.New("image reports not configured")

// Catalog is the song store the service reads from and writes back to.
type Catalog interface {
	Random(ctx context.Context) (*db.Song, error)
	Get(ctx context.Context, id string) (*db.Song, error)
	UpdateMetadata(ctx context.Context, id string, u db.MetadataUpdate) error
}

// Reports records image reports.
type Reports interface {
	Create(ctx context.Context, songID string) (*db.ImageReport, error)
}

// Session performs metadata lookups with one credential.
type Session interface {
	SearchTrack(ctx context.Context, title, artist string) *spotify.Track
	TrackByID(ctx context.Context, id string) *spotify.Track
}

// MetadataClient opens lookup sessions.
type MetadataClient interface {
	Authenticate(ctx context.Context) (Session, error)
}

// SpotifyData is the external metadata block of an EnrichedSong.
// Only AlbumArt is always set.
type SpotifyData struct {
	AlbumArt   string  `json:"album_art"`
	PreviewURL *string `json:"preview_url"`
	SpotifyURL *string `json:"spotify_url"`
	TrackID    *string `json:"track_id"`
}

// EnrichedSong is a catalog song plus its metadata block.
type EnrichedSong struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Artist         string      `json:"artist"`
	Work           string      `json:"work"`
	JacketURL      *string     `json:"jacket_url"`
	SpotifyTrackID *string     `json:"spotify_track_id"`
	SpotifyData    SpotifyData `json:"spotify_data"`
}

// Matched reports whether the song was matched to a Spotify track.
func (e *EnrichedSong) Matched() bool {
	return e.SpotifyData.TrackID != nil
}

// Service enriches catalog songs.
type Service struct {
	catalog Catalog
	reports Reports
	meta    MetadataClient
	cache   *cache.TTL[spotify.Track]
	log     zerolog.Logger

	lookupTimeout    time.Duration
	writeBackTimeout time.Duration
	placeholder      string
	writeBack        bool

	lookups singleflight.Group
	pending sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithCache sets the track cache. By default a private cache with
// cache.DefaultTTL is used.
func WithCache(c *cache.TTL[spotify.Track]) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithLookupTimeout bounds authentication plus lookup for one song.
func WithLookupTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lookupTimeout = d
		}
	}
}

// WithPlaceholder sets the album art URL used when no image is known.
func WithPlaceholder(url string) Option {
	return func(s *Service) {
		if url != "" {
			s.placeholder = url
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) {
		s.log = l
	}
}

// WithWriteBack enables or disables the background catalog update after a
// fresh match. Enabled by default. Refresh always writes.
func WithWriteBack(enabled bool) Option {
	return func(s *Service) {
		s.writeBack = enabled
	}
}

// WithReports sets the image report store used by ReportImage.
func WithReports(r Reports) Option {
	return func(s *Service) {
		s.reports = r
	}
}

// New creates a new enrichment service.
func New(catalog Catalog, meta MetadataClient, opts ...Option) *Service {
	s := &Service{
		catalog:          catalog,
		meta:             meta,
		log:              log.Logger,
		lookupTimeout:    DefaultLookupTimeout,
		writeBackTimeout: DefaultWriteBackTimeout,
		placeholder:      DefaultPlaceholder,
		writeBack:        true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = cache.New[spotify.Track](cache.DefaultTTL)
	}
	return s
}

// Random picks a random catalog song and enriches it.
// Catalog errors (db.ErrNotFound, db.ErrStore, config.ErrConfig) are returned
// as is; metadata failures are not errors.
func (s *Service) Random(ctx context.Context) (*EnrichedSong, error) {
	song, err := s.catalog.Random(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "picking random song")
	}
	return s.Enrich(ctx, song), nil
}

// Get enriches the song with the given ID.
func (s *Service) Get(ctx context.Context, id string) (*EnrichedSong, error) {
	song, err := s.catalog.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "getting song")
	}
	return s.Enrich(ctx, song), nil
}

// Enrich attaches metadata to a song. It never fails: when no track can be
// obtained the metadata block holds fallback values.
func (s *Service) Enrich(ctx context.Context, song *db.Song) *EnrichedSong {
	key := CacheKey(song)
	if track, ok := s.cache.Get(key); ok {
		return s.build(song, &track)
	}

	// Concurrent misses for one key share a single lookup and write-back.
	// The lookup outlives a canceled first caller; fetch bounds it.
	lookupCtx := context.WithoutCancel(ctx)
	v, _, _ := s.lookups.Do(key, func() (any, error) {
		if track, ok := s.cache.Get(key); ok {
			return &track, nil
		}
		track := s.fetch(lookupCtx, song, true)
		if track == nil {
			return (*spotify.Track)(nil), nil
		}
		s.store(key, *track)
		s.writeBackAsync(*song, *track)
		return track, nil
	})

	track, _ := v.(*spotify.Track)
	return s.build(song, track)
}

// Refresh looks a song up again by title and artist, ignoring the cache and
// any stored track ID, then writes the result back and re-caches it.
// An unmatched song is returned with fallback data and no error.
func (s *Service) Refresh(ctx context.Context, id string) (*EnrichedSong, error) {
	song, err := s.catalog.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "getting song")
	}
	return s.refresh(ctx, song)
}

// ReportImage records that a song's album art is wrong and refreshes it.
func (s *Service) ReportImage(ctx context.Context, id string) (*EnrichedSong, error) {
	if s.reports == nil {
		return nil, ErrReportsUnavailable
	}

	song, err := s.catalog.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "getting song")
	}

	report, err := s.reports.Create(ctx, song.ID)
	if err != nil {
		return nil, errors.Wrap(err, "recording image report")
	}
	s.log.Info().
		Str("song_id", song.ID).
		Str("report_id", report.ID.String()).
		Msg("image reported")

	return s.refresh(ctx, song)
}

// Wait blocks until all background write-backs have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

func (s *Service) refresh(ctx context.Context, song *db.Song) (*EnrichedSong, error) {
	s.cache.Delete(CacheKey(song))
	s.cache.Delete(searchKey(song))

	track := s.fetch(ctx, song, false)
	if track == nil {
		return s.build(song, nil), nil
	}

	updated := *song
	if update := metadataUpdate(song, track); !update.IsEmpty() {
		if err := s.catalog.UpdateMetadata(ctx, song.ID, update); err != nil {
			return nil, errors.Wrap(err, "saving song metadata")
		}
		applyUpdate(&updated, update)
	}

	s.store(CacheKey(&updated), *track)
	return s.build(&updated, track), nil
}

// store caches track under key and under its track ID key, which is the key
// the song has once the match is written back.
func (s *Service) store(key string, track spotify.Track) {
	s.cache.Set(key, track)
	if track.ID != "" {
		s.cache.Set(trackKey(track.ID), track)
	}
}

// fetch authenticates and looks the song up within the lookup timeout.
// With useID set, a stored track ID is tried before searching.
// Returns nil on any failure.
func (s *Service) fetch(ctx context.Context, song *db.Song, useID bool) *spotify.Track {
	ctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	session, err := s.meta.Authenticate(ctx)
	if err != nil {
		s.log.Warn().Err(err).Str("song_id", song.ID).Msg("metadata authentication failed, using fallback")
		return nil
	}

	if id := deref(song.SpotifyTrackID); useID && id != "" {
		if track := session.TrackByID(ctx, id); track != nil {
			return track
		}
		s.log.Debug().Str("song_id", song.ID).Str("track_id", id).Msg("stored track id lookup failed, searching")
	}

	return session.SearchTrack(ctx, song.Title, song.Artist)
}

// writeBackAsync persists a fresh match without blocking the caller.
func (s *Service) writeBackAsync(song db.Song, track spotify.Track) {
	if !s.writeBack {
		return
	}
	update := metadataUpdate(&song, &track)
	if update.IsEmpty() {
		return
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.writeBackTimeout)
		defer cancel()

		if err := s.catalog.UpdateMetadata(ctx, song.ID, update); err != nil {
			s.log.Error().Err(err).Str("song_id", song.ID).Msg("writing back song metadata")
			return
		}
		s.log.Debug().Str("song_id", song.ID).Str("track_id", track.ID).Msg("song metadata written back")
	}()
}

// build assembles the response for a song and an optional track.
func (s *Service) build(song *db.Song, track *spotify.Track) *EnrichedSong {
	es := &EnrichedSong{
		ID:             song.ID,
		Title:          song.Title,
		Artist:         song.Artist,
		Work:           song.Work,
		JacketURL:      song.JacketURL,
		SpotifyTrackID: song.SpotifyTrackID,
	}

	if track == nil {
		art := deref(song.JacketURL)
		if art == "" {
			art = s.placeholder
		}
		es.SpotifyData = SpotifyData{AlbumArt: art}
		return es
	}

	art := track.AlbumArt()
	if art == "" {
		art = s.placeholder
	}
	es.SpotifyData = SpotifyData{
		AlbumArt:   art,
		PreviewURL: optional(track.PreviewURL),
		SpotifyURL: optional(track.SpotifyURL),
		TrackID:    optional(track.ID),
	}
	return es
}

// metadataUpdate returns the fields of song that differ from what track and
// the normalized names would store.
func metadataUpdate(song *db.Song, track *spotify.Track) db.MetadataUpdate {
	var u db.MetadataUpdate
	if track.ID != "" && track.ID != deref(song.SpotifyTrackID) {
		u.SpotifyTrackID = optional(track.ID)
	}
	if art := track.AlbumArt(); art != "" && art != deref(song.JacketURL) {
		u.JacketURL = optional(art)
	}
	if title := spotify.CleanTitle(song.Title); title != deref(song.NormalizedTitle) {
		u.NormalizedTitle = optional(title)
	}
	if artist := spotify.CleanArtist(song.Artist); artist != deref(song.NormalizedArtist) {
		u.NormalizedArtist = optional(artist)
	}
	return u
}

func applyUpdate(song *db.Song, u db.MetadataUpdate) {
	if u.SpotifyTrackID != nil {
		song.SpotifyTrackID = u.SpotifyTrackID
	}
	if u.JacketURL != nil {
		song.JacketURL = u.JacketURL
	}
	if u.NormalizedTitle != nil {
		song.NormalizedTitle = u.NormalizedTitle
	}
	if u.NormalizedArtist != nil {
		song.NormalizedArtist = u.NormalizedArtist
	}
}

// CacheKey returns the cache key for a song: "track::<id>" when a track ID
// is stored, otherwise the normalized "title::artist".
func CacheKey(song *db.Song) string {
	if id := strings.TrimSpace(deref(song.SpotifyTrackID)); id != "" {
		return trackKey(id)
	}
	return searchKey(song)
}

func trackKey(id string) string {
	return "track::" + id
}

func searchKey(song *db.Song) string {
	return normalizeKey(song.Title) + "::" + normalizeKey(song.Artist)
}

// normalizeKey trims, applies NFKC and case-folds s so that inputs differing
// only in case, width or surrounding space share a key.
func normalizeKey(s string) string {
	return cases.Fold().String(norm.NFKC.String(strings.TrimSpace(s)))
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
